// Package cli: run.go implements the "shield run" command.
//
// The run command opens Firefox on a fresh profile with the add-on
// installed, for trying the add-on by hand. It returns when the user
// closes the browser.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRunCommand creates the "run" cobra command.
func newRunCommand(gs *globalState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] <addonDir>",
		Short: "Open Firefox with the add-on installed",
		Long: `Build a temporary Firefox profile, install the add-on found at <addonDir>
(an unpacked directory or an .xpi file), allow unsigned add-ons, and open
Firefox on that profile. The command returns when Firefox exits.

Examples:
  shield run ./my-study
  shield run -b /opt/firefox-nightly/firefox ./my-study
  shield run --keep-profile ./my-study.xpi`,

		Args: exactArgs(1, "<addonDir>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return gs.runRun(cmd, args[0])
		},
	}
	addBrowserFlags(cmd)
	return cmd
}

// runRun launches the browser and waits for it to exit. Errors the
// browser process reports after it started are logged, not returned.
func (gs *globalState) runRun(cmd *cobra.Command, addonDir string) error {
	ctx := cmd.Context()

	conf, err := gs.loadConfig(cmd)
	if err != nil {
		return err
	}

	s, err := gs.startBrowser(ctx, addonDir, false, conf)
	if err != nil {
		return err
	}
	defer gs.releaseProfile(s.profile, conf.KeepProfile.Bool)

	if !gs.flags.json {
		_, _ = fmt.Fprintf(gs.stdout, "Firefox is running with %s installed (profile %s)\n",
			s.profile.Addon().ID, s.profile.Path())
	}

	s.waitBrowser()

	if gs.flags.json {
		return writeJSON(gs.stdout, runResultJSON{
			AddonDir: s.launch.AddonDir,
			AddonID:  s.profile.Addon().ID,
			Profile:  s.profile.Path(),
			Pid:      s.browser.Pid(),
			Kept:     conf.KeepProfile.Bool,
		})
	}
	return nil
}
