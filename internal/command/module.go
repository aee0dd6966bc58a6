package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Hweary/cmdClient/internal/invocation"
	"github.com/Hweary/cmdClient/internal/logging"
)

// DefaultReadyPollInterval is how often a command waiting on an unlaunched
// module checks whether it has become ready.
const DefaultReadyPollInterval = time.Second

// Task is an initialisation or launch step of a module.
type Task func(ctx context.Context) error

// Hook runs around a command's handler.
type Hook func(ctx context.Context, inv *invocation.Invocation) error

// ErrorHook sees every error raised while running a command of the module.
// It may return the error unchanged, transform it, or return nil to
// suppress it.
type ErrorHook func(ctx context.Context, inv *invocation.Invocation, err error) error

// Module groups commands that share hooks and an enabled state.
type Module struct {
	name string

	mu          sync.Mutex
	commands    []*Command
	initTasks   []Task
	launchTasks []Task
	registry    *Registry
	// log is replaced by a child of the registry's logger on registration.
	log zerolog.Logger

	// lifecycle serialises Initialise and Launch. Tasks run without mu held.
	lifecycle   sync.Mutex
	initialised bool
	launched    bool

	enabled atomic.Bool
	ready   atomic.Bool

	preHook   Hook
	postHook  Hook
	errorHook ErrorHook
	readyPoll time.Duration
}

// ModuleOption configures a Module.
type ModuleOption func(*Module)

// WithPreHook runs hook before every command, once the module is ready.
func WithPreHook(hook Hook) ModuleOption {
	return func(m *Module) { m.preHook = hook }
}

// WithPostHook runs hook after every command that completed without error.
func WithPostHook(hook Hook) ModuleOption {
	return func(m *Module) { m.postHook = hook }
}

// WithErrorHook replaces the default error hook, which returns errors
// unchanged.
func WithErrorHook(hook ErrorHook) ModuleOption {
	return func(m *Module) { m.errorHook = hook }
}

// WithReadyPollInterval sets how often waiting commands poll for readiness.
func WithReadyPollInterval(d time.Duration) ModuleOption {
	return func(m *Module) { m.readyPoll = d }
}

// Disabled creates the module in the disabled state.
func Disabled() ModuleOption {
	return func(m *Module) { m.enabled.Store(false) }
}

// NewModule creates an enabled module. Its commands wait until Launch has run.
func NewModule(name string, opts ...ModuleOption) *Module {
	m := &Module{
		name:      name,
		readyPoll: DefaultReadyPollInterval,
		log:       logging.Component("module").With().Str("module", name).Logger(),
	}
	m.enabled.Store(true)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the module name.
func (m *Module) Name() string { return m.name }

// Enabled reports whether the module's commands are dispatched.
func (m *Module) Enabled() bool { return m.enabled.Load() }

// Ready reports whether the module has been launched.
func (m *Module) Ready() bool { return m.ready.Load() }

func (m *Module) logger() zerolog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.log
}

// Add creates a command in the module and refreshes the registry's index.
func (m *Module) Add(name string, handler Handler, opts ...Option) *Command {
	cmd := newCommand(name, handler, m, opts...)

	m.mu.Lock()
	m.commands = append(m.commands, cmd)
	reg := m.registry
	log := m.log
	m.mu.Unlock()

	log.Debug().Str("command", name).Msg("Adding command")
	if reg != nil {
		reg.Rebuild()
	}
	return cmd
}

// Commands returns the module's commands in the order they were added.
func (m *Module) Commands() []*Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Command(nil), m.commands...)
}

// InitTask adds a task run once by Initialise.
func (m *Module) InitTask(task Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initTasks = append(m.initTasks, task)
}

// LaunchTask adds a task run once by Launch.
func (m *Module) LaunchTask(task Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launchTasks = append(m.launchTasks, task)
}

// Initialise runs the init tasks. Later calls are no-ops once it succeeded.
func (m *Module) Initialise(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	log := m.logger()
	if m.initialised {
		log.Debug().Msg("Already initialised, skipping initialisation")
		return nil
	}

	m.mu.Lock()
	tasks := append([]Task(nil), m.initTasks...)
	m.mu.Unlock()

	log.Debug().Int("tasks", len(tasks)).Msg("Running initialisation tasks")
	for i, task := range tasks {
		if err := task(ctx); err != nil {
			return fmt.Errorf("module %s: init task %d: %w", m.name, i, err)
		}
	}
	m.initialised = true
	return nil
}

// Launch runs the launch tasks and marks the module ready. Commands invoked
// before Launch wait for it.
func (m *Module) Launch(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	log := m.logger()
	if m.launched {
		log.Debug().Msg("Already launched, skipping launch")
		return nil
	}

	m.mu.Lock()
	tasks := append([]Task(nil), m.launchTasks...)
	m.mu.Unlock()

	log.Debug().Int("tasks", len(tasks)).Msg("Running launch tasks")
	for i, task := range tasks {
		if err := task(ctx); err != nil {
			return fmt.Errorf("module %s: launch task %d: %w", m.name, i, err)
		}
	}
	m.launched = true
	m.ready.Store(true)
	return nil
}

var errNotReady = errors.New("module not ready")

// preCommand waits until the module is ready, then runs the pre-hook.
func (m *Module) preCommand(ctx context.Context, inv *invocation.Invocation) error {
	if !m.Ready() {
		log := logging.ForMessage(m.logger(), inv.MessageID)
		log.Debug().Msg("Waiting for module to be ready")

		b := backoff.WithContext(backoff.NewConstantBackOff(m.readyPoll), ctx)
		err := backoff.Retry(func() error {
			if m.Ready() {
				return nil
			}
			return errNotReady
		}, b)
		if err != nil {
			return err
		}
	}
	if m.preHook != nil {
		return m.preHook(ctx, inv)
	}
	return nil
}

func (m *Module) postCommand(ctx context.Context, inv *invocation.Invocation) error {
	if m.postHook != nil {
		return m.postHook(ctx, inv)
	}
	return nil
}

func (m *Module) onError(ctx context.Context, inv *invocation.Invocation, err error) error {
	if m.errorHook != nil {
		return m.errorHook(ctx, inv, err)
	}
	return err
}
