// Package cli: test.go implements the "shield test" command.
//
// The test command opens Firefox under Marionette with the add-on
// installed and runs the external test harness against the add-on's tests
// directory.
//
// Orchestration steps:
//  1. Consolidate settings (defaults, shield.yaml, SHIELD_* env, flags)
//  2. Build the profile and install the add-on
//  3. Launch Firefox with -marionette
//  4. Optionally wait for the Marionette port (--marionette-wait)
//  5. Run the harness with <addonDir>/tests and print its output
//  6. Terminate Firefox (unless --keep-open) and remove the profile
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/shield/internal/harness"
)

// newTestCommand creates the "test" cobra command.
func newTestCommand(gs *globalState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test [flags] <addonDir>",
		Short: "Run the add-on's tests against Firefox",
		Long: `Build a temporary Firefox profile with the add-on at <addonDir> installed,
start Firefox with Marionette enabled, and run the test harness
(python runtests.py <addonDir>/tests by default).

The harness is started right after Firefox is spawned. Use
--marionette-wait to wait for the Marionette port first.

Examples:
  shield test ./my-study
  shield test --timeout 10m --marionette-wait 30s ./my-study
  shield test --keep-open -b ~/firefox/firefox ./my-study`,

		Args: exactArgs(1, "<addonDir>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return gs.runTest(cmd, args[0])
		},
	}

	addBrowserFlags(cmd)
	flags := cmd.Flags()
	flags.Bool("keep-open", false, "leave Firefox running after the tests and wait for it to exit")
	flags.Duration("timeout", 0, "kill the test harness after this `duration` (default: no limit)")
	flags.Duration("marionette-wait", 0, "wait up to this `duration` for Marionette before running the harness (default: don't wait)")

	return cmd
}

// runTest launches the browser with automation enabled and runs the
// harness to completion. The harness command line is printed before it
// runs and its combined output after it finishes.
func (gs *globalState) runTest(cmd *cobra.Command, addonDir string) error {
	ctx := cmd.Context()

	conf, err := gs.loadConfig(cmd)
	if err != nil {
		return err
	}

	runner, err := gs.newHarness(harness.Options{
		Command: conf.HarnessCommand.String,
		Script:  conf.HarnessScript.String,
		Timeout: conf.HarnessTimeout.ValueOrZero(),
	}, gs.logger)
	if err != nil {
		return err
	}

	s, err := gs.startBrowser(ctx, addonDir, true, conf)
	if err != nil {
		return err
	}
	defer gs.releaseProfile(s.profile, conf.KeepProfile.Bool)
	if conf.KeepOpen.Bool {
		defer s.waitBrowser()
	} else {
		defer s.terminateBrowser()
	}

	if wait := conf.MarionetteWait.ValueOrZero(); wait > 0 {
		s.logger.WithField("wait", wait).Debug("Waiting for Marionette")
		if err := gs.waitMarionette(ctx, int(conf.MarionettePort.Int64), wait); err != nil {
			return err
		}
	}

	testDir := s.launch.TestDir()
	argv := runner.CommandLine(testDir)
	if !gs.flags.json {
		_, _ = fmt.Fprintln(gs.stdout, formatCommandLine(argv))
	}

	output, err := runner.Run(ctx, testDir)
	if err != nil {
		return err
	}

	if gs.flags.json {
		return writeJSON(gs.stdout, testResultJSON{
			AddonDir: s.launch.AddonDir,
			AddonID:  s.profile.Addon().ID,
			Profile:  s.profile.Path(),
			Pid:      s.browser.Pid(),
			TestDir:  testDir,
			Command:  argv,
			Output:   output,
		})
	}
	_, _ = fmt.Fprint(gs.stdout, output)
	return nil
}
