package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrModuleNotFound is returned for operations on an unknown module.
var ErrModuleNotFound = errors.New("module not found")

// Registry owns the loaded modules and the command name index built from
// them.
type Registry struct {
	log zerolog.Logger

	mu      sync.Mutex
	modules []*Module
	toggled []ToggleFunc
	// launchCtx is the context Launch ran with; modules enabled afterwards
	// are brought up with it.
	launchCtx context.Context
	launched  bool

	index atomic.Pointer[nameIndex]
}

// nameIndex is immutable once published.
type nameIndex struct {
	byName map[string]*Command
	// names sorted longest first, so the first prefix match is the longest.
	names []string
}

// ToggleFunc observes a module being enabled or disabled.
type ToggleFunc func(module string, enabled bool)

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{log: logger}
	r.index.Store(&nameIndex{byName: map[string]*Command{}})
	return r
}

// AddModule registers a module and rebuilds the name index.
func (r *Registry) AddModule(m *Module) error {
	r.mu.Lock()
	for _, existing := range r.modules {
		if existing.name == m.name {
			r.mu.Unlock()
			return fmt.Errorf("module %q already registered", m.name)
		}
	}
	m.mu.Lock()
	if m.registry != nil {
		m.mu.Unlock()
		r.mu.Unlock()
		return fmt.Errorf("module %q belongs to another registry", m.name)
	}
	m.registry = r
	m.log = r.log.With().Str("module", m.name).Logger()
	m.mu.Unlock()
	r.modules = append(r.modules, m)
	r.mu.Unlock()

	r.log.Info().Str("module", m.name).Int("commands", len(m.Commands())).Msg("Module registered")
	r.Rebuild()
	return nil
}

// Module returns the registered module with the given name.
func (r *Registry) Module(name string) (*Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.modules {
		if m.name == name {
			return m, true
		}
	}
	return nil, false
}

// Modules returns the registered modules in registration order.
func (r *Registry) Modules() []*Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Module(nil), r.modules...)
}

// SetEnabled enables or disables a module and rebuilds the name index.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	m, ok := r.Module(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	if m.enabled.Swap(enabled) == enabled {
		return nil
	}
	r.log.Info().Str("module", name).Bool("enabled", enabled).Msg("Module state changed")
	r.Rebuild()

	r.mu.Lock()
	hooks := append([]ToggleFunc(nil), r.toggled...)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn(name, enabled)
	}

	if enabled {
		return r.bringUp(m)
	}
	return nil
}

// bringUp initialises and launches a module enabled after the registry was
// launched. Until then its commands wait for readiness.
func (r *Registry) bringUp(m *Module) error {
	r.mu.Lock()
	ctx, launched := r.launchCtx, r.launched
	r.mu.Unlock()
	if !launched || m.Ready() {
		return nil
	}

	r.log.Info().Str("module", m.name).Msg("Launching module enabled at runtime")
	if err := m.Initialise(ctx); err != nil {
		return err
	}
	return m.Launch(ctx)
}

// OnToggle registers fn to run after every module state change. It is
// called synchronously from SetEnabled.
func (r *Registry) OnToggle(fn ToggleFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toggled = append(r.toggled, fn)
}

// Rebuild replaces the name index with one built from the enabled modules.
// Names are case-insensitive; when two commands claim the same name the one
// registered later wins.
func (r *Registry) Rebuild() {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := &nameIndex{byName: make(map[string]*Command)}
	for _, m := range r.modules {
		if !m.Enabled() {
			continue
		}
		for _, cmd := range m.Commands() {
			for _, name := range cmd.Names() {
				key := strings.ToLower(name)
				if prev, ok := idx.byName[key]; ok && prev != cmd {
					r.log.Warn().
						Str("name", key).
						Str("previous", prev.Name).
						Str("command", cmd.Name).
						Msg("Command name claimed twice")
				}
				idx.byName[key] = cmd
			}
		}
	}

	idx.names = make([]string, 0, len(idx.byName))
	for name := range idx.byName {
		idx.names = append(idx.names, name)
	}
	sort.Slice(idx.names, func(i, j int) bool {
		if len(idx.names[i]) != len(idx.names[j]) {
			return len(idx.names[i]) > len(idx.names[j])
		}
		return idx.names[i] < idx.names[j]
	})

	r.index.Store(idx)
}

// Lookup resolves a command name or alias.
func (r *Registry) Lookup(name string) (*Command, bool) {
	cmd, ok := r.index.Load().byName[strings.ToLower(name)]
	return cmd, ok
}

// Match finds the longest command name that text starts with, ignoring
// case. It returns the command, the name it matched under, and the
// remaining text with surrounding whitespace removed.
func (r *Registry) Match(text string) (cmd *Command, alias, rest string, ok bool) {
	idx := r.index.Load()
	for _, name := range idx.names {
		if len(text) < len(name) || !strings.EqualFold(text[:len(name)], name) {
			continue
		}
		return idx.byName[name], name, strings.TrimSpace(text[len(name):]), true
	}
	return nil, "", "", false
}

// Commands returns the commands of enabled modules in registration order.
func (r *Registry) Commands() []*Command {
	var out []*Command
	for _, m := range r.Modules() {
		if m.Enabled() {
			out = append(out, m.Commands()...)
		}
	}
	return out
}

// Initialise runs the init tasks of every enabled module.
func (r *Registry) Initialise(ctx context.Context) error {
	r.log.Info().Msg("Initialising modules")
	for _, m := range r.Modules() {
		if !m.Enabled() {
			continue
		}
		if err := m.Initialise(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Launch runs the launch tasks of every enabled module and marks them ready.
// Modules enabled later are initialised and launched by SetEnabled.
func (r *Registry) Launch(ctx context.Context) error {
	r.log.Info().Msg("Launching modules")
	for _, m := range r.Modules() {
		if !m.Enabled() {
			continue
		}
		if err := m.Launch(ctx); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.launchCtx = ctx
	r.launched = true
	r.mu.Unlock()
	return nil
}
