// Package model defines the value types shared by the shield CLI packages.
//
// Everything here lives for a single invocation: the launch configuration
// built from flags and settings, the exit codes, and the CLIError type that
// carries an exit code up to the process boundary. Nothing is persisted.
package model
