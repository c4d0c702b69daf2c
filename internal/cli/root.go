// Package cli implements the cobra-based commands of the shield CLI.
//
// Each subcommand (run, test) is defined in its own file within this
// package. This file defines the root command, which dispatches to the
// subcommands, owns the global flags, and maps errors to exit codes.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/shield/internal/model"
)

// Version is the semantic version reported by --version. It can be
// overridden at build time via ldflags.
var Version = "0.1.0"

// globalFlags holds the persistent flags every subcommand inherits.
type globalFlags struct {
	configFile string
	json       bool
	verbose    bool
	noColor    bool
}

// globalState carries everything a command touches outside its own
// arguments: the filesystem, the standard streams, the environment, the
// logger, and the constructors of the components that spawn processes.
// Tests replace the constructors with fakes.
type globalState struct {
	ctx context.Context

	fs        afero.Fs
	stdout    io.Writer
	stderr    io.Writer
	stderrTTY bool
	lookupEnv func(string) (string, bool)

	flags  globalFlags
	logger *logrus.Logger

	launch         launchFunc
	newHarness     harnessFactory
	waitMarionette marionetteWaiter
}

// newGlobalState returns the state of a real invocation: the OS
// filesystem, stdio, the process environment and the real launcher,
// harness and Marionette probe.
func newGlobalState(ctx context.Context) *globalState {
	stderrTTY := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	logger := &logrus.Logger{
		Out:       colorable.NewColorableStderr(),
		Formatter: &logrus.TextFormatter{ForceColors: stderrTTY},
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.InfoLevel,
	}

	return &globalState{
		ctx:            ctx,
		fs:             afero.NewOsFs(),
		stdout:         os.Stdout,
		stderr:         colorable.NewColorableStderr(),
		stderrTTY:      stderrTTY,
		lookupEnv:      os.LookupEnv,
		logger:         logger,
		launch:         defaultLaunch(logger),
		newHarness:     defaultHarness,
		waitMarionette: defaultMarionetteWait,
	}
}

// newRootCommand builds the command tree around gs.
//
// The root command only dispatches: run without a subcommand it prints
// help, and an unknown subcommand is a usage error.
func newRootCommand(gs *globalState) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shield",
		Short: "Run and test SHIELD study add-ons in a throwaway Firefox profile",
		Long: `shield launches Firefox with a freshly built profile that has your
study add-on installed and unsigned add-ons allowed.

  shield run <addonDir>    open Firefox with the add-on installed
  shield test <addonDir>   open Firefox under Marionette and run <addonDir>/tests`,

		// Errors and usage are printed by Execute, in text or JSON form.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: Version,

		// Cobra only reports unknown subcommands itself when Args is nil
		// and the command is not runnable, so the check lives here.
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError(fmt.Sprintf("unknown command %q for %q", args[0], cmd.CommandPath()))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},

		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			gs.configureOutput()
		},
	}

	rootCmd.SetOut(gs.stdout)
	rootCmd.SetErr(gs.stderr)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err.Error())
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&gs.flags.configFile, "config", "", "read settings from this YAML `file` (default: ./shield.yaml)")
	pf.BoolVar(&gs.flags.json, "json", false, "print results and errors as JSON")
	pf.BoolVarP(&gs.flags.verbose, "verbose", "v", false, "enable debug logging and show browser output")
	pf.BoolVar(&gs.flags.noColor, "no-color", false, "disable colored output")

	for _, sub := range []*cobra.Command{newRunCommand(gs), newTestCommand(gs)} {
		// --version works on every subcommand and prints the same string.
		sub.Version = Version
		rootCmd.AddCommand(sub)
	}

	return rootCmd
}

// configureOutput applies the global flags to the logger and to the
// color package once flags have been parsed.
func (gs *globalState) configureOutput() {
	if gs.flags.verbose {
		gs.logger.SetLevel(logrus.DebugLevel)
	}

	_, noColorEnv := gs.lookupEnv("NO_COLOR")
	noColor := gs.flags.noColor || noColorEnv || !gs.stderrTTY
	color.NoColor = noColor

	if f, ok := gs.logger.Formatter.(*logrus.TextFormatter); ok {
		f.ForceColors = !noColor
		f.DisableColors = noColor
	}
}

// Execute runs the root command and exits the process with the code that
// matches the outcome. SIGINT and SIGTERM cancel the running command,
// which terminates the browser and the test harness.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	gs := newGlobalState(ctx)
	code := run(gs, os.Args[1:])
	stop()
	os.Exit(int(code))
}

// run executes the command tree with args and reports any error.
func run(gs *globalState, args []string) model.ExitCode {
	rootCmd := newRootCommand(gs)
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(gs.ctx)
	if err == nil {
		return model.ExitSuccess
	}

	gs.printError(err)
	return model.ExitCodeOf(err)
}

// printError writes err to stderr, as a JSON object when --json is set and
// as an "Error: ..." line otherwise.
func (gs *globalState) printError(err error) {
	code := model.ExitCodeOf(err)
	message, detail := err.Error(), ""
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		message = cliErr.Message
		if cliErr.Err != nil {
			detail = cliErr.Err.Error()
		}
	}

	if gs.flags.json {
		errObj := map[string]any{
			"error": map[string]any{
				"kind":     code.Kind(),
				"exitCode": int(code),
				"message":  message,
			},
		}
		if detail != "" {
			if errMap, ok := errObj["error"].(map[string]any); ok {
				errMap["detail"] = detail
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		_, _ = fmt.Fprintln(gs.stderr, string(data))
		return
	}

	prefix := color.New(color.FgRed, color.Bold).Sprint("Error:")
	if detail != "" {
		_, _ = fmt.Fprintf(gs.stderr, "%s %s: %s\n", prefix, message, detail)
	} else {
		_, _ = fmt.Fprintf(gs.stderr, "%s %s\n", prefix, message)
	}
	if code == model.ExitUsage {
		_, _ = fmt.Fprintln(gs.stderr, "Run 'shield --help' for usage.")
	}
}

// usageError wraps message as a usage error (exit code 2).
func usageError(message string) error {
	return model.NewCLIError(model.ExitUsage, message)
}

// exactArgs is cobra.ExactArgs reporting a usage error that names the
// missing argument.
func exactArgs(n int, name string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError(fmt.Sprintf("%s accepts %d arg(s), received %d: expected %s",
				cmd.CommandPath(), n, len(args), name))
		}
		return nil
	}
}
