package model

import (
	"errors"
	"fmt"
	"path/filepath"
)

// LaunchConfig describes one browser launch. It is built once per CLI
// invocation from parsed flags and layered settings and is not modified
// afterwards.
type LaunchConfig struct {
	// AddonDir is the absolute path to the extension package (an unpacked
	// directory or a packed .xpi file).
	AddonDir string `json:"addonDir"`

	// Binary is an explicit browser executable. Empty means the launcher
	// discovers a default installation.
	Binary string `json:"binary,omitempty"`

	// Automation adds the -marionette flag so the browser exposes its
	// remote-control endpoint.
	Automation bool `json:"automation"`

	// Foreground asks the browser to bring itself to the front.
	Foreground bool `json:"foreground"`

	// NoRemote keeps the browser from attaching to an already running
	// instance.
	NoRemote bool `json:"noRemote"`
}

// NewLaunchConfig resolves addonDir against the working directory and
// returns an interactive (non-automated) configuration.
func NewLaunchConfig(addonDir, binary string) (LaunchConfig, error) {
	if addonDir == "" {
		return LaunchConfig{}, errors.New("addon directory must not be empty")
	}
	abs, err := filepath.Abs(addonDir)
	if err != nil {
		return LaunchConfig{}, fmt.Errorf("resolving addon directory %q: %w", addonDir, err)
	}
	return LaunchConfig{
		AddonDir:   abs,
		Binary:     binary,
		Foreground: true,
		NoRemote:   true,
	}, nil
}

// WithAutomation returns a copy of c with the automation flag set.
func (c LaunchConfig) WithAutomation() LaunchConfig {
	c.Automation = true
	return c
}

// TestDir returns the directory handed to the external test harness.
// It is always the tests subdirectory of the (absolute) addon path.
func (c LaunchConfig) TestDir() string {
	return filepath.Join(c.AddonDir, "tests")
}

// ExitCode is the process exit status returned by the CLI.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitUsage indicates an unknown subcommand, a bad flag, or a wrong
	// number of arguments.
	ExitUsage ExitCode = 2

	// ExitConfiguration indicates the addon package or the profile could
	// not be prepared, or the settings were invalid. No process is spawned.
	ExitConfiguration ExitCode = 3

	// ExitLaunch indicates the browser binary could not be found or spawned.
	ExitLaunch ExitCode = 4

	// ExitTestHarness indicates the external test harness could not be run
	// or exited non-zero.
	ExitTestHarness ExitCode = 5

	// ExitTimeout indicates a configured wait elapsed.
	ExitTimeout ExitCode = 6
)

// Kind returns the error-kind name associated with the exit code.
func (c ExitCode) Kind() string {
	switch c {
	case ExitSuccess:
		return "OK"
	case ExitUsage:
		return "USAGE_ERROR"
	case ExitConfiguration:
		return "CONFIGURATION_ERROR"
	case ExitLaunch:
		return "LAUNCH_ERROR"
	case ExitTestHarness:
		return "TEST_HARNESS_ERROR"
	case ExitTimeout:
		return "TIMEOUT"
	default:
		return "ERROR"
	}
}

// CLIError is an error that carries the exit code the CLI should return.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error returns the message, followed by the underlying error if present.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// ConfigurationError wraps err as a CONFIGURATION_ERROR.
func ConfigurationError(message string, err error) *CLIError {
	return WrapCLIError(ExitConfiguration, message, err)
}

// LaunchError wraps err as a LAUNCH_ERROR.
func LaunchError(message string, err error) *CLIError {
	return WrapCLIError(ExitLaunch, message, err)
}

// TestHarnessError wraps err as a TEST_HARNESS_ERROR.
func TestHarnessError(message string, err error) *CLIError {
	return WrapCLIError(ExitTestHarness, message, err)
}

// TimeoutError wraps err as a TIMEOUT.
func TimeoutError(message string, err error) *CLIError {
	return WrapCLIError(ExitTimeout, message, err)
}

// ExitCodeOf returns the exit code carried by err. Errors that are not (and
// do not wrap) a CLIError map to ExitGeneralError; nil maps to ExitSuccess.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitGeneralError
}
