package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shinji-kodama/shield/internal/model"
)

const (
	// DefaultCommand is the interpreter the harness script is run with.
	DefaultCommand = "python"
	// ScriptName is the harness script looked up next to the executable.
	ScriptName = "runtests.py"
)

// waitDelay bounds how long Run waits for output pipes after the harness
// has been killed, in case it left children holding them open.
const waitDelay = 2 * time.Second

// Options configures a Runner. Zero values select the defaults.
type Options struct {
	Command string
	Script  string
	// Timeout kills the harness after this long. Zero means no limit.
	Timeout time.Duration
}

// Runner invokes the test harness against a tests directory.
type Runner struct {
	command string
	script  string
	timeout time.Duration
	logger  logrus.FieldLogger
}

// NewRunner returns a Runner. When opts.Script is empty the script is
// expected next to the running executable.
func NewRunner(opts Options, logger logrus.FieldLogger) (*Runner, error) {
	r := &Runner{
		command: opts.Command,
		script:  opts.Script,
		timeout: opts.Timeout,
		logger:  logger,
	}
	if r.command == "" {
		r.command = DefaultCommand
	}
	if r.script == "" {
		script, err := DefaultScript()
		if err != nil {
			return nil, model.TestHarnessError("cannot locate the test harness script", err)
		}
		r.script = script
	}
	return r, nil
}

// DefaultScript returns the path of runtests.py in the directory holding
// the shield executable.
func DefaultScript() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), ScriptName), nil
}

// CommandLine returns the full harness invocation for testDir.
func (r *Runner) CommandLine(testDir string) []string {
	return []string{r.command, r.script, testDir}
}

// Run executes the harness and blocks until it exits. It returns the
// combined stdout and stderr. A non-zero exit is a TEST_HARNESS_ERROR whose
// message includes the output; exceeding the timeout is a TIMEOUT error.
func (r *Runner) Run(ctx context.Context, testDir string) (string, error) {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	argv := r.CommandLine(testDir)
	// #nosec G204 -- the harness command is operator configuration
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.WaitDelay = waitDelay

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logger := r.logger.WithField("tests", testDir)
	logger.WithField("command", strings.Join(argv, " ")).Debug("Running test harness")

	start := time.Now()
	err := cmd.Run()
	output := out.String()
	logger = logger.WithField("elapsed", time.Since(start).Round(time.Millisecond))

	switch {
	case err == nil:
		logger.Debug("Test harness passed")
		return output, nil

	case ctx.Err() != nil:
		return output, model.WrapCLIError(model.ExitGeneralError, "test harness interrupted", ctx.Err())

	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return output, model.TimeoutError(
			withOutput(fmt.Sprintf("test harness did not finish within %s", r.timeout), output), runCtx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		logger.WithField("status", exitErr.ExitCode()).Debug("Test harness failed")
		return output, model.TestHarnessError(
			withOutput(fmt.Sprintf("test harness exited with status %d", exitErr.ExitCode()), output), err)
	}
	return output, model.TestHarnessError(fmt.Sprintf("failed to run %s", argv[0]), err)
}

func withOutput(message, output string) string {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return message
	}
	return message + ":\n" + output
}
