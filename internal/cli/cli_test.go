package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/shield/internal/harness"
	"github.com/shinji-kodama/shield/internal/launcher"
	"github.com/shinji-kodama/shield/internal/model"
	"github.com/shinji-kodama/shield/internal/profile"
)

const studyInstallRDF = `<?xml version="1.0"?>
<RDF xmlns="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns:em="http://www.mozilla.org/2004/em-rdf#">
  <Description about="urn:mozilla:install-manifest">
    <em:id>shield-study-example@mozilla.org</em:id>
    <em:version>1.0.0</em:version>
  </Description>
</RDF>`

// fakeBrowser stands in for a spawned browser process.
type fakeBrowser struct {
	errs chan error
	done chan struct{}

	once       sync.Once
	terminated bool
}

// newFakeBrowser returns a browser that is still running, or one that
// has already exited after reporting exitErrs.
func newFakeBrowser(exited bool, exitErrs ...error) *fakeBrowser {
	b := &fakeBrowser{
		errs: make(chan error, len(exitErrs)),
		done: make(chan struct{}),
	}
	if exited {
		for _, err := range exitErrs {
			b.errs <- err
		}
		b.exit()
	}
	return b
}

func (b *fakeBrowser) exit() {
	b.once.Do(func() {
		close(b.errs)
		close(b.done)
	})
}

func (b *fakeBrowser) Pid() int              { return 4242 }
func (b *fakeBrowser) Errors() <-chan error  { return b.errs }
func (b *fakeBrowser) Done() <-chan struct{} { return b.done }

func (b *fakeBrowser) Terminate() error {
	b.terminated = true
	b.exit()
	return nil
}

// fakeLauncher records launches and snapshots the profile's preferences at
// the moment the spawn is requested.
type fakeLauncher struct {
	t       *testing.T
	fs      afero.Fs
	browser *fakeBrowser
	err     error

	calls         []launcher.Options
	prefsAtLaunch profile.Preferences
}

func (f *fakeLauncher) launch(_ context.Context, opts launcher.Options) (browser, error) {
	f.calls = append(f.calls, opts)
	prefs, err := profile.ReadPreferences(f.fs, opts.ProfileDir)
	require.NoError(f.t, err, "user.js must be written before the browser is launched")
	f.prefsAtLaunch = prefs

	if f.err != nil {
		return nil, f.err
	}
	return f.browser, nil
}

// fakeHarness records the directories it is run against.
type fakeHarness struct {
	opts   harness.Options
	output string
	err    error
	runs   []string

	// browser, when set, must still be running while the harness runs.
	browser *fakeBrowser
	t       *testing.T
}

func (h *fakeHarness) CommandLine(testDir string) []string {
	return []string{"python", "/opt/shield/runtests.py", testDir}
}

func (h *fakeHarness) Run(_ context.Context, testDir string) (string, error) {
	h.runs = append(h.runs, testDir)
	if h.browser != nil {
		assert.False(h.t, h.browser.terminated, "browser terminated before the harness finished")
	}
	return h.output, h.err
}

type testState struct {
	gs       *globalState
	fs       afero.Fs
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
	hook     *test.Hook
	launcher *fakeLauncher
	harness  *fakeHarness

	waits   []time.Duration
	ports   []int
	waitErr error
}

// newTestState returns a globalState on an in-memory filesystem that holds
// a legacy study add-on at /work/myaddon, with fake launcher and harness.
func newTestState(t *testing.T) *testState {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/myaddon/install.rdf", []byte(studyInstallRDF), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/myaddon/tests/test_study.py", []byte("# test"), 0o644))

	logger, hook := test.NewNullLogger()
	ts := &testState{
		fs:     fs,
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		hook:   hook,
	}
	ts.launcher = &fakeLauncher{t: t, fs: fs, browser: newFakeBrowser(true)}
	ts.harness = &fakeHarness{output: "Ran 3 tests\nOK\n", t: t}

	ts.gs = &globalState{
		ctx:       context.Background(),
		fs:        fs,
		stdout:    ts.stdout,
		stderr:    ts.stderr,
		lookupEnv: func(string) (string, bool) { return "", false },
		logger:    logger,
		launch:    ts.launcher.launch,
		newHarness: func(opts harness.Options, _ logrus.FieldLogger) (harnessRunner, error) {
			ts.harness.opts = opts
			return ts.harness, nil
		},
		waitMarionette: func(_ context.Context, port int, wait time.Duration) error {
			ts.ports = append(ts.ports, port)
			ts.waits = append(ts.waits, wait)
			return ts.waitErr
		},
	}
	return ts
}

func (ts *testState) run(args ...string) model.ExitCode {
	return run(ts.gs, args)
}

func TestRun_EndToEnd(t *testing.T) {
	ts := newTestState(t)

	code := ts.run("run", "/work/myaddon")
	require.Equal(t, model.ExitSuccess, code, ts.stderr.String())

	require.Len(t, ts.launcher.calls, 1)
	opts := ts.launcher.calls[0]
	assert.Empty(t, opts.Binary)
	assert.False(t, opts.Automation)
	assert.True(t, opts.NoRemote)
	assert.True(t, opts.Foreground)
	assert.Equal(t, profile.FixedPreferences(), ts.launcher.prefsAtLaunch)

	assert.Empty(t, ts.harness.runs, "run never invokes the test harness")
	assert.Contains(t, ts.stdout.String(), "shield-study-example@mozilla.org")

	exists, err := afero.DirExists(ts.fs, opts.ProfileDir)
	require.NoError(t, err)
	assert.False(t, exists, "profile is removed when the command finishes")
}

func TestRun_KeepProfile(t *testing.T) {
	ts := newTestState(t)

	require.Equal(t, model.ExitSuccess, ts.run("run", "--keep-profile", "/work/myaddon"))

	exists, err := afero.DirExists(ts.fs, ts.launcher.calls[0].ProfileDir)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRun_BinaryOverride(t *testing.T) {
	ts := newTestState(t)

	require.Equal(t, model.ExitSuccess, ts.run("run", "-b", "/opt/firefox-nightly/firefox", "/work/myaddon"))
	assert.Equal(t, "/opt/firefox-nightly/firefox", ts.launcher.calls[0].Binary)
}

// TestRun_BrowserErrorIsLogged checks that an unexpected browser exit is
// reported but does not fail the command.
func TestRun_BrowserErrorIsLogged(t *testing.T) {
	ts := newTestState(t)
	ts.launcher.browser = newFakeBrowser(true, errors.New("exit status 11"))

	require.Equal(t, model.ExitSuccess, ts.run("run", "/work/myaddon"))

	var logged bool
	for _, e := range ts.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "Browser process error" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestRun_MissingAddon(t *testing.T) {
	ts := newTestState(t)

	code := ts.run("run", "/work/missing")
	assert.Equal(t, model.ExitConfiguration, code)
	assert.Empty(t, ts.launcher.calls, "nothing is spawned for a missing add-on")
	assert.Contains(t, ts.stderr.String(), "Error:")
}

func TestTest_MissingAddon(t *testing.T) {
	ts := newTestState(t)

	code := ts.run("test", "/work/missing")
	assert.Equal(t, model.ExitConfiguration, code)
	assert.Empty(t, ts.launcher.calls, "nothing is spawned for a missing add-on")
	assert.Empty(t, ts.harness.runs, "the harness never runs for a missing add-on")
	assert.Empty(t, ts.ports, "no Marionette wait without a browser")
	assert.Contains(t, ts.stderr.String(), "Error:")
}

func TestRun_LaunchFailure(t *testing.T) {
	ts := newTestState(t)
	ts.launcher.err = model.LaunchError("browser executable not found", launcher.ErrFirefoxNotInstalled)

	assert.Equal(t, model.ExitLaunch, ts.run("run", "/work/myaddon"))

	exists, err := afero.DirExists(ts.fs, ts.launcher.calls[0].ProfileDir)
	require.NoError(t, err)
	assert.False(t, exists, "profile is removed after a failed launch")
}

func TestRun_JSON(t *testing.T) {
	ts := newTestState(t)

	require.Equal(t, model.ExitSuccess, ts.run("--json", "run", "/work/myaddon"))
	assert.JSONEq(t, `{
		"addonDir": "/work/myaddon",
		"addonId": "shield-study-example@mozilla.org",
		"profile": "`+ts.launcher.calls[0].ProfileDir+`",
		"pid": 4242,
		"profileKept": false
	}`, ts.stdout.String())
}

func TestTest_EndToEnd(t *testing.T) {
	ts := newTestState(t)
	ts.launcher.browser = newFakeBrowser(false)
	ts.harness.browser = ts.launcher.browser

	code := ts.run("test", "/work/myaddon")
	require.Equal(t, model.ExitSuccess, code, ts.stderr.String())

	require.Len(t, ts.launcher.calls, 1)
	assert.True(t, ts.launcher.calls[0].Automation)
	assert.Equal(t, profile.FixedPreferences(), ts.launcher.prefsAtLaunch)

	assert.Equal(t, []string{"/work/myaddon/tests"}, ts.harness.runs)
	assert.Equal(t, "python /opt/shield/runtests.py /work/myaddon/tests\nRan 3 tests\nOK\n", ts.stdout.String())
	assert.True(t, ts.launcher.browser.terminated)
	assert.Empty(t, ts.waits, "no readiness wait by default")
}

// TestTest_RelativeAddonDir verifies the tests directory is derived from
// the absolute add-on path.
func TestTest_RelativeAddonDir(t *testing.T) {
	ts := newTestState(t)
	t.Chdir(t.TempDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(ts.fs, filepath.Join(wd, "study", "install.rdf"), []byte(studyInstallRDF), 0o644))

	require.Equal(t, model.ExitSuccess, ts.run("test", "study"), ts.stderr.String())
	assert.Equal(t, []string{filepath.Join(wd, "study", "tests")}, ts.harness.runs)
}

func TestTest_HarnessFailure(t *testing.T) {
	ts := newTestState(t)
	ts.launcher.browser = newFakeBrowser(false)
	ts.harness.err = model.TestHarnessError("test harness exited with status 1:\nFAILED (failures=1)", errors.New("exit status 1"))

	code := ts.run("test", "/work/myaddon")
	assert.Equal(t, model.ExitTestHarness, code)
	assert.Contains(t, ts.stderr.String(), "FAILED (failures=1)")
	assert.True(t, ts.launcher.browser.terminated)
}

func TestTest_KeepOpen(t *testing.T) {
	ts := newTestState(t)

	require.Equal(t, model.ExitSuccess, ts.run("test", "--keep-open", "/work/myaddon"))
	assert.False(t, ts.launcher.browser.terminated, "the browser is left for the user to close")
}

func TestTest_MarionetteWait(t *testing.T) {
	ts := newTestState(t)

	require.Equal(t, model.ExitSuccess, ts.run("test", "--marionette-wait", "5s", "/work/myaddon"))
	assert.Equal(t, []time.Duration{5 * time.Second}, ts.waits)
	assert.Equal(t, []int{2828}, ts.ports)
}

func TestTest_MarionetteTimeout(t *testing.T) {
	ts := newTestState(t)
	ts.waitErr = model.TimeoutError("marionette did not start listening", nil)

	assert.Equal(t, model.ExitTimeout, ts.run("test", "--marionette-wait", "1s", "/work/myaddon"))
	assert.Empty(t, ts.harness.runs)
}

func TestTest_HarnessSettings(t *testing.T) {
	ts := newTestState(t)
	require.NoError(t, afero.WriteFile(ts.fs, "/etc/shield.yaml", []byte(`
harnessCommand: python3
harnessScript: /opt/harness/runtests.py
`), 0o644))

	require.Equal(t, model.ExitSuccess, ts.run("test", "--config", "/etc/shield.yaml", "--timeout", "2m", "/work/myaddon"))
	assert.Equal(t, harness.Options{
		Command: "python3",
		Script:  "/opt/harness/runtests.py",
		Timeout: 2 * time.Minute,
	}, ts.harness.opts)
}

func TestTest_JSON(t *testing.T) {
	ts := newTestState(t)

	require.Equal(t, model.ExitSuccess, ts.run("test", "--json", "/work/myaddon"))
	assert.JSONEq(t, `{
		"addonDir": "/work/myaddon",
		"addonId": "shield-study-example@mozilla.org",
		"profile": "`+ts.launcher.calls[0].ProfileDir+`",
		"pid": 4242,
		"testDir": "/work/myaddon/tests",
		"command": ["python", "/opt/shield/runtests.py", "/work/myaddon/tests"],
		"output": "Ran 3 tests\nOK\n"
	}`, ts.stdout.String())
}

func TestRoot_Version(t *testing.T) {
	for _, args := range [][]string{
		{"--version"},
		{"run", "--version"},
		{"test", "--version"},
	} {
		ts := newTestState(t)
		require.Equal(t, model.ExitSuccess, ts.run(args...))
		assert.Equal(t, "0.1.0\n", ts.stdout.String(), "args: %v", args)
		assert.Empty(t, ts.launcher.calls)
	}
}

func TestRoot_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frobnicate", "/work/myaddon"}},
		{"unknown flag", []string{"run", "--bogus", "/work/myaddon"}},
		{"missing addon dir", []string{"test"}},
		{"too many args", []string{"run", "/work/a", "/work/b"}},
		{"bad duration", []string{"test", "--timeout", "soon", "/work/myaddon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestState(t)
			assert.Equal(t, model.ExitUsage, ts.run(tt.args...))
			assert.Empty(t, ts.launcher.calls)
			assert.Contains(t, ts.stderr.String(), "Error:")
		})
	}
}

func TestRoot_NoArgsPrintsHelp(t *testing.T) {
	ts := newTestState(t)

	require.Equal(t, model.ExitSuccess, ts.run())
	assert.Contains(t, ts.stdout.String(), "shield run <addonDir>")
}

func TestPrintError_JSON(t *testing.T) {
	ts := newTestState(t)

	require.Equal(t, model.ExitConfiguration, ts.run("--json", "run", "/work/missing"))
	assert.Contains(t, ts.stderr.String(), `"kind": "CONFIGURATION_ERROR"`)
	assert.Contains(t, ts.stderr.String(), `"exitCode": 3`)
}

func TestFormatCommandLine(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{"plain", []string{"python", "runtests.py", "/a/tests"}, "python runtests.py /a/tests"},
		{"spaces quoted", []string{"python", "/My Addon/tests"}, `python "/My Addon/tests"`},
		{"empty quoted", []string{"sh", ""}, `sh ""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCommandLine(tt.argv))
		})
	}
}
