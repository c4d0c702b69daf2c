// Package addon reads browser extension packages and installs them into a
// profile.
//
// Two package layouts are supported:
//
//   - WebExtensions, identified by manifest.json. The extension ID is read
//     from browser_specific_settings.gecko.id (or the older applications.gecko.id).
//     Comments and trailing commas are tolerated via github.com/tidwall/jsonc.
//   - Legacy bootstrapped extensions, identified by install.rdf. The ID is
//     the em:id of the install-manifest description.
//
// A package is either an unpacked directory or a packed .xpi archive. All
// file access goes through an afero.Fs so the same code serves the real
// filesystem and in-memory tests.
package addon
