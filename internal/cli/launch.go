package cli

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/shield/internal/config"
	"github.com/shinji-kodama/shield/internal/harness"
	"github.com/shinji-kodama/shield/internal/launcher"
	"github.com/shinji-kodama/shield/internal/marionette"
	"github.com/shinji-kodama/shield/internal/model"
	"github.com/shinji-kodama/shield/internal/profile"
)

// browser is the part of a launched browser process the commands use.
// *launcher.Process implements it.
type browser interface {
	Pid() int
	Errors() <-chan error
	Done() <-chan struct{}
	Terminate() error
}

// launchFunc spawns a browser with opts.
type launchFunc func(ctx context.Context, opts launcher.Options) (browser, error)

// harnessRunner runs the external test harness. *harness.Runner
// implements it.
type harnessRunner interface {
	CommandLine(testDir string) []string
	Run(ctx context.Context, testDir string) (string, error)
}

// harnessFactory builds the harness runner from the consolidated settings.
type harnessFactory func(opts harness.Options, logger logrus.FieldLogger) (harnessRunner, error)

// marionetteWaiter blocks until the automation port accepts connections.
type marionetteWaiter func(ctx context.Context, port int, wait time.Duration) error

func defaultLaunch(logger logrus.FieldLogger) launchFunc {
	l := launcher.New(logger)
	return func(ctx context.Context, opts launcher.Options) (browser, error) {
		p, err := l.Launch(ctx, opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func defaultHarness(opts harness.Options, logger logrus.FieldLogger) (harnessRunner, error) {
	r, err := harness.NewRunner(opts, logger)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func defaultMarionetteWait(ctx context.Context, port int, wait time.Duration) error {
	return marionette.NewProbe("", port).WaitReady(ctx, wait)
}

// session is one configured profile and the browser running on it.
type session struct {
	launch  model.LaunchConfig
	profile *profile.Profile
	browser browser
	logger  logrus.FieldLogger
}

// loadConfig consolidates the settings for cmd.
func (gs *globalState) loadConfig(cmd *cobra.Command) (config.Config, error) {
	conf, err := config.Load(gs.fs, cmd.Flags(), gs.lookupEnv)
	if err != nil {
		return config.Config{}, err
	}
	gs.logger.WithFields(logrus.Fields{
		"binary":      conf.Binary.String,
		"profile_dir": conf.ProfileDir.String,
	}).Debug("Configuration loaded")
	return conf, nil
}

// startBrowser builds a profile with the add-on at addonDir installed and
// launches the browser on it. The profile is fully written before the
// launch is requested. If the launch fails the profile is cleaned up
// according to conf.
func (gs *globalState) startBrowser(
	ctx context.Context, addonDir string, automation bool, conf config.Config,
) (*session, error) {
	lc, err := model.NewLaunchConfig(addonDir, conf.Binary.String)
	if err != nil {
		return nil, model.ConfigurationError("invalid add-on path", err)
	}
	if automation {
		lc = lc.WithAutomation()
	}

	logger := gs.logger.WithField("addon", lc.AddonDir)

	configurator := profile.NewConfigurator(gs.fs, conf.ProfileDir.String, gs.logger)
	prof, err := configurator.Configure(ctx, lc.AddonDir, profile.FixedPreferences())
	if err != nil {
		return nil, err
	}
	logger = logger.WithField("profile", prof.Path())

	opts := launcher.OptionsFor(lc, prof.Path())
	if gs.flags.verbose {
		opts.Stdout = gs.stderr
		opts.Stderr = gs.stderr
	}

	b, err := gs.launch(ctx, opts)
	if err != nil {
		gs.releaseProfile(prof, conf.KeepProfile.Bool)
		return nil, err
	}

	return &session{
		launch:  lc,
		profile: prof,
		browser: b,
		logger:  logger.WithField("pid", b.Pid()),
	}, nil
}

// waitBrowser blocks until the browser exits, logging any error the
// process reports. It never restarts the browser.
func (s *session) waitBrowser() {
	for err := range s.browser.Errors() {
		s.logger.WithError(err).Error("Browser process error")
	}
	<-s.browser.Done()
	s.logger.Debug("Browser exited")
}

// terminateBrowser stops the browser if it is still running.
func (s *session) terminateBrowser() {
	if err := s.browser.Terminate(); err != nil {
		s.logger.WithError(err).Warn("Failed to terminate the browser")
	}
}

// releaseProfile removes prof unless keep is set.
func (gs *globalState) releaseProfile(prof *profile.Profile, keep bool) {
	logger := gs.logger.WithField("profile", prof.Path())
	if keep {
		logger.Info("Keeping profile")
		return
	}
	if err := prof.Remove(); err != nil {
		logger.WithError(err).Warn("Failed to remove profile")
		return
	}
	logger.Debug("Profile removed")
}

// addBrowserFlags registers the flags shared by run and test.
func addBrowserFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("binary", "b", "", "path to the Firefox `executable` (default: detect an installed Firefox)")
	flags.Bool("keep-profile", false, "keep the generated profile directory after the command finishes")
}
