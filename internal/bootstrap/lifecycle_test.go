package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the calls made against the fake loader and runtime.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeRuntime struct {
	rec *recorder

	startupErr  error
	shutdownErr error
	// shutdownGate, when set, blocks Shutdown until it is closed.
	shutdownGate chan struct{}

	study  StudyConfig
	reason Reason
}

func (f *fakeRuntime) Startup(study StudyConfig, data AddonData, reason Reason) error {
	f.rec.add("startup")
	f.study = study
	f.reason = reason
	return f.startupErr
}

func (f *fakeRuntime) Shutdown(ctx context.Context, data AddonData, reason Reason) error {
	f.rec.add("shutdown:begin")
	if f.shutdownGate != nil {
		select {
		case <-f.shutdownGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.rec.add("shutdown:end")
	return f.shutdownErr
}

type fakeLoader struct {
	rec     *recorder
	rt      *fakeRuntime
	loadErr error
}

func (l *fakeLoader) Load() (Runtime, error) {
	l.rec.add("load")
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	return l.rt, nil
}

func (l *fakeLoader) Unload(Runtime) {
	l.rec.add("unload")
}

func newTestStub(t *testing.T) (*Stub, *fakeLoader, *test.Hook) {
	t.Helper()
	rec := &recorder{}
	loader := &fakeLoader{rec: rec, rt: &fakeRuntime{rec: rec}}
	logger, hook := test.NewNullLogger()
	stub, err := NewStub(DefaultStudy(), loader, logger)
	require.NoError(t, err)
	return stub, loader, hook
}

var addon = AddonData{ID: "shield-study-example@mozilla.org", Version: "1.0.0"}

func TestNext(t *testing.T) {
	tests := []struct {
		name      string
		state     State
		trigger   Trigger
		wantState State
		want      []Effect
		wantErr   bool
	}{
		{"install while inactive", Inactive, TriggerInstall, Inactive, []Effect{EffectLog}, false},
		{"install while active", Active, TriggerInstall, Active, []Effect{EffectLog}, false},
		{"uninstall", Inactive, TriggerUninstall, Inactive, []Effect{EffectLog}, false},
		{
			"startup", Inactive, TriggerStartup, Active,
			[]Effect{EffectLoadRuntime, EffectStartRuntime, EffectLog}, false,
		},
		{
			"shutdown", Active, TriggerShutdown, Inactive,
			[]Effect{EffectLog, EffectShutdownRuntime, EffectReleaseRuntime}, false,
		},
		{"startup twice", Active, TriggerStartup, Active, nil, true},
		{"shutdown while inactive", Inactive, TriggerShutdown, Inactive, nil, true},
		{"unknown trigger", Inactive, Trigger(9), Inactive, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, effects, err := Next(tt.state, tt.trigger)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, tt.want, effects)
		})
	}
}

func TestStub_FullLifecycle(t *testing.T) {
	stub, loader, hook := newTestStub(t)

	stub.Install(addon, AddonInstall)
	require.NoError(t, stub.Startup(addon, AddonInstall))
	assert.Equal(t, Active, stub.State())
	require.NoError(t, stub.Shutdown(context.Background(), addon, AddonUninstall))
	assert.Equal(t, Inactive, stub.State())
	stub.Uninstall(addon, AddonUninstall)

	assert.Equal(t, []string{"load", "startup", "shutdown:begin", "shutdown:end", "unload"}, loader.rec.list())
	assert.Equal(t, DefaultStudy(), loader.rt.study)
	assert.Equal(t, AddonInstall, loader.rt.reason)

	entries := hook.AllEntries()
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, logrus.InfoLevel, e.Level)
		assert.Equal(t, addon.ID, e.Data["addon"])
	}
	assert.Equal(t, "Study add-on install", entries[0].Message)
	assert.Equal(t, "Study add-on uninstall", entries[3].Message)
}

// TestStub_ReleaseAfterShutdown holds the runtime's shutdown open and
// checks nothing is released until it completes.
func TestStub_ReleaseAfterShutdown(t *testing.T) {
	stub, loader, _ := newTestStub(t)
	gate := make(chan struct{})
	loader.rt.shutdownGate = gate

	require.NoError(t, stub.Startup(addon, AppStartup))

	done := make(chan error, 1)
	go func() { done <- stub.Shutdown(context.Background(), addon, AppShutdown) }()

	require.Eventually(t, func() bool {
		events := loader.rec.list()
		return len(events) > 0 && events[len(events)-1] == "shutdown:begin"
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, loader.rec.list(), "unload")

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"load", "startup", "shutdown:begin", "shutdown:end", "unload"}, loader.rec.list())
}

func TestStub_ShutdownErrorStillReleases(t *testing.T) {
	stub, loader, _ := newTestStub(t)
	boom := errors.New("telemetry flush failed")
	loader.rt.shutdownErr = boom

	require.NoError(t, stub.Startup(addon, AppStartup))
	err := stub.Shutdown(context.Background(), addon, AppShutdown)

	assert.Same(t, boom, err)
	assert.Equal(t, Inactive, stub.State())
	assert.Equal(t, "unload", loader.rec.list()[len(loader.rec.list())-1])
}

func TestStub_StartupErrors(t *testing.T) {
	t.Run("load fails", func(t *testing.T) {
		stub, loader, _ := newTestStub(t)
		boom := errors.New("module not found")
		loader.loadErr = boom

		assert.Same(t, boom, stub.Startup(addon, AppStartup))
		assert.Equal(t, Inactive, stub.State())
		assert.Equal(t, []string{"load"}, loader.rec.list())
	})

	t.Run("runtime fails", func(t *testing.T) {
		stub, loader, _ := newTestStub(t)
		boom := errors.New("bad study")
		loader.rt.startupErr = boom

		assert.Same(t, boom, stub.Startup(addon, AppStartup))
		assert.Equal(t, Inactive, stub.State())
		assert.Equal(t, []string{"load", "startup", "unload"}, loader.rec.list())
	})
}

func TestStub_InvalidTransitions(t *testing.T) {
	stub, loader, _ := newTestStub(t)

	assert.ErrorIs(t, stub.Shutdown(context.Background(), addon, AppShutdown), ErrInvalidTransition)

	require.NoError(t, stub.Startup(addon, AppStartup))
	assert.ErrorIs(t, stub.Startup(addon, AppStartup), ErrInvalidTransition)
	assert.Equal(t, []string{"load", "startup"}, loader.rec.list())
}

func TestStub_RuntimeCannotMutateStudy(t *testing.T) {
	stub, loader, _ := newTestStub(t)
	require.NoError(t, stub.Startup(addon, AppStartup))

	loader.rt.study.Branches[0].Name = "mutated"
	assert.Equal(t, "control", stub.study.Branches[0].Name)
}

func TestNewStub_Errors(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := NewStub(StudyConfig{Name: "s"}, &fakeLoader{}, logger)
	assert.Error(t, err)

	_, err = NewStub(DefaultStudy(), nil, logger)
	assert.Error(t, err)
}
