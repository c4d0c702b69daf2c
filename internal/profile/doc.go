// Package profile builds ephemeral browser profiles.
//
// A Configurator creates a fresh profile directory, installs exactly one
// extension into it, and writes a preference set to user.js. Configure
// returns only after every write has been synced, so a caller that launches
// the browser afterwards never races the profile contents.
package profile
