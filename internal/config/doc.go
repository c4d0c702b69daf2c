// Package config consolidates shield's settings.
//
// Every setting is a nullable value so each source only overrides what it
// actually sets. Sources are applied in increasing priority: built-in
// defaults, the YAML config file, SHIELD_* environment variables, and
// finally command-line flags.
package config
