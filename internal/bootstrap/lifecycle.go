package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// State is the shim's lifecycle state.
type State int

const (
	// Inactive means no study runtime is loaded.
	Inactive State = iota
	// Active means the runtime is loaded and has been started.
	Active
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Trigger is a lifecycle call made by the host.
type Trigger int

const (
	// TriggerInstall is sent once when the add-on is installed.
	TriggerInstall Trigger = iota
	// TriggerStartup is sent when the add-on is enabled or the browser starts.
	TriggerStartup
	// TriggerShutdown is sent when the add-on is disabled or the browser exits.
	TriggerShutdown
	// TriggerUninstall is sent once when the add-on is removed.
	TriggerUninstall
)

func (t Trigger) String() string {
	switch t {
	case TriggerInstall:
		return "install"
	case TriggerStartup:
		return "startup"
	case TriggerShutdown:
		return "shutdown"
	case TriggerUninstall:
		return "uninstall"
	default:
		return fmt.Sprintf("Trigger(%d)", int(t))
	}
}

// Effect is one step a transition performs. Effects run in the order Next
// returns them.
type Effect int

const (
	// EffectLog records the lifecycle event.
	EffectLog Effect = iota
	// EffectLoadRuntime loads the study runtime.
	EffectLoadRuntime
	// EffectStartRuntime calls Runtime.Startup with the study configuration.
	EffectStartRuntime
	// EffectShutdownRuntime calls Runtime.Shutdown and waits for it.
	EffectShutdownRuntime
	// EffectReleaseRuntime unloads the runtime.
	EffectReleaseRuntime
)

func (e Effect) String() string {
	switch e {
	case EffectLog:
		return "log"
	case EffectLoadRuntime:
		return "load-runtime"
	case EffectStartRuntime:
		return "start-runtime"
	case EffectShutdownRuntime:
		return "shutdown-runtime"
	case EffectReleaseRuntime:
		return "release-runtime"
	default:
		return fmt.Sprintf("Effect(%d)", int(e))
	}
}

// ErrInvalidTransition is returned for a trigger the current state does
// not accept.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Next returns the state that trigger leads to from state and the effects
// the transition performs. Install and uninstall only log. Startup is
// accepted while Inactive and shutdown while Active.
func Next(state State, trigger Trigger) (State, []Effect, error) {
	switch trigger {
	case TriggerInstall, TriggerUninstall:
		return state, []Effect{EffectLog}, nil

	case TriggerStartup:
		if state != Inactive {
			return state, nil, fmt.Errorf("%w: %s while %s", ErrInvalidTransition, trigger, state)
		}
		return Active, []Effect{EffectLoadRuntime, EffectStartRuntime, EffectLog}, nil

	case TriggerShutdown:
		if state != Active {
			return state, nil, fmt.Errorf("%w: %s while %s", ErrInvalidTransition, trigger, state)
		}
		return Inactive, []Effect{EffectLog, EffectShutdownRuntime, EffectReleaseRuntime}, nil
	}
	return state, nil, fmt.Errorf("%w: unknown trigger %s", ErrInvalidTransition, trigger)
}

// AddonData describes the add-on a lifecycle call concerns.
type AddonData struct {
	ID          string
	Version     string
	InstallPath string
	ResourceURI string
}

// Runtime is the study runtime that owns enrollment and branch selection.
type Runtime interface {
	// Startup begins the study. It must not block on work the runtime
	// finishes asynchronously.
	Startup(study StudyConfig, data AddonData, reason Reason) error
	// Shutdown stops the study and returns once it has fully stopped.
	Shutdown(ctx context.Context, data AddonData, reason Reason) error
}

// Loader provides the study runtime and releases it again.
type Loader interface {
	Load() (Runtime, error)
	Unload(rt Runtime)
}

// Stub is the lifecycle shim. It is safe for concurrent use; lifecycle
// calls are serialized.
type Stub struct {
	study  StudyConfig
	loader Loader
	logger logrus.FieldLogger

	mu      sync.Mutex
	state   State
	runtime Runtime
}

// NewStub returns an Inactive shim for study.
func NewStub(study StudyConfig, loader Loader, logger logrus.FieldLogger) (*Stub, error) {
	if err := study.Validate(); err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, errors.New("a runtime loader is required")
	}
	return &Stub{study: study.Clone(), loader: loader, logger: logger}, nil
}

// State returns the current lifecycle state.
func (s *Stub) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Install handles the host's install call.
func (s *Stub) Install(data AddonData, reason Reason) {
	_ = s.fire(context.Background(), TriggerInstall, data, reason)
}

// Uninstall handles the host's uninstall call.
func (s *Stub) Uninstall(data AddonData, reason Reason) {
	_ = s.fire(context.Background(), TriggerUninstall, data, reason)
}

// Startup loads the runtime and starts the study. Errors from the loader
// or the runtime are returned unmodified and leave the shim Inactive.
func (s *Stub) Startup(data AddonData, reason Reason) error {
	return s.fire(context.Background(), TriggerStartup, data, reason)
}

// Shutdown stops the study, waiting for the runtime, and then releases
// the runtime. The runtime is released even if its shutdown fails; that
// error is returned unmodified.
func (s *Stub) Shutdown(ctx context.Context, data AddonData, reason Reason) error {
	return s.fire(ctx, TriggerShutdown, data, reason)
}

func (s *Stub) fire(ctx context.Context, trigger Trigger, data AddonData, reason Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, effects, err := Next(s.state, trigger)
	if err != nil {
		return err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"addon":  data.ID,
		"reason": reason,
		"study":  s.study.Name,
	})

	var shutdownErr error
	for _, effect := range effects {
		err := s.apply(ctx, effect, trigger, data, reason, logger)
		if err == nil {
			continue
		}
		if effect == EffectShutdownRuntime {
			shutdownErr = err
			continue
		}
		s.release()
		return err
	}

	s.state = next
	return shutdownErr
}

func (s *Stub) apply(
	ctx context.Context, effect Effect, trigger Trigger, data AddonData, reason Reason, logger logrus.FieldLogger,
) error {
	switch effect {
	case EffectLog:
		logger.WithField("state", s.state).Infof("Study add-on %s", trigger)
		return nil

	case EffectLoadRuntime:
		rt, err := s.loader.Load()
		if err != nil {
			return err
		}
		s.runtime = rt
		return nil

	case EffectStartRuntime:
		return s.runtime.Startup(s.study.Clone(), data, reason)

	case EffectShutdownRuntime:
		return s.runtime.Shutdown(ctx, data, reason)

	case EffectReleaseRuntime:
		s.release()
		return nil
	}
	return fmt.Errorf("unknown effect %s", effect)
}

func (s *Stub) release() {
	if s.runtime == nil {
		return
	}
	s.loader.Unload(s.runtime)
	s.runtime = nil
}
