package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shinji-kodama/shield/internal/model"
)

// Options describes one browser launch.
type Options struct {
	// Binary is an explicit executable. When set it is used exactly as
	// given and default discovery is skipped.
	Binary string

	ProfileDir string
	Automation bool
	Foreground bool
	NoRemote   bool

	// Args are appended after the generated arguments.
	Args []string
	// Env is appended to the inherited environment.
	Env []string

	Stdout io.Writer
	Stderr io.Writer
}

// OptionsFor derives launch options from a launch configuration and the
// profile directory the browser should use.
func OptionsFor(cfg model.LaunchConfig, profileDir string) Options {
	return Options{
		Binary:     cfg.Binary,
		ProfileDir: profileDir,
		Automation: cfg.Automation,
		Foreground: cfg.Foreground,
		NoRemote:   cfg.NoRemote,
	}
}

// Launcher spawns browser processes.
type Launcher struct {
	logger    logrus.FieldLogger
	goos      string
	lookupEnv LookupFunc
	lookPath  LookPathFunc
}

// New returns a Launcher that discovers binaries on the current platform.
func New(logger logrus.FieldLogger) *Launcher {
	return &Launcher{
		logger:    logger,
		goos:      currentOS,
		lookupEnv: os.LookupEnv,
		lookPath:  exec.LookPath,
	}
}

// Launch starts the browser and returns once the OS process exists. The
// process is killed if ctx is cancelled before it exits.
func (l *Launcher) Launch(ctx context.Context, opts Options) (*Process, error) {
	if opts.ProfileDir == "" {
		return nil, model.LaunchError("no profile directory to launch with", nil)
	}

	binary, err := l.resolveBinary(opts.Binary)
	if err != nil {
		return nil, model.LaunchError("browser executable not found", err)
	}

	args := BuildArgs(opts)
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(os.Environ(), BuildEnv(opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	logger := l.logger.WithFields(logrus.Fields{
		"binary":    binary,
		"profile":   opts.ProfileDir,
		"launch_id": uuid.NewString(),
	})
	logger.WithField("args", args).Debug("Spawning browser")

	if err := cmd.Start(); err != nil {
		return nil, model.LaunchError(fmt.Sprintf("failed to start %s", binary), err)
	}

	logger = logger.WithField("pid", cmd.Process.Pid)
	logger.Info("Browser started")

	return newProcess(cmd, binary, func(_ *Process, err error) {
		if err != nil {
			logger.WithError(err).Debug("Browser exited with error")
			return
		}
		logger.Debug("Browser exited")
	}), nil
}

// resolveBinary returns override untouched when it is set; otherwise it
// probes the platform's default locations.
func (l *Launcher) resolveBinary(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return Discover(l.goos, l.lookupEnv, l.lookPath)
}

// BuildArgs returns the browser command line for opts, without the binary.
func BuildArgs(opts Options) []string {
	args := []string{"-profile", opts.ProfileDir}
	if opts.NoRemote {
		args = append(args, "-no-remote")
	}
	if opts.Foreground {
		args = append(args, "-foreground")
	}
	if opts.Automation {
		args = append(args, "-marionette")
	}
	return append(args, opts.Args...)
}

// BuildEnv returns the environment additions for opts.
func BuildEnv(opts Options) []string {
	env := []string{
		"XPCOM_DEBUG_BREAK=stack",
		"NS_TRACE_MALLOC_DISABLE_STACKS=1",
	}
	if opts.NoRemote {
		env = append(env, "MOZ_NO_REMOTE=1")
	}
	return append(env, opts.Env...)
}
