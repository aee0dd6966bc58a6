package commands

import (
	"github.com/rs/zerolog"

	"github.com/Hweary/cmdClient/internal/builtin"
	"github.com/Hweary/cmdClient/internal/cache"
	"github.com/Hweary/cmdClient/internal/command"
	"github.com/Hweary/cmdClient/internal/config"
	"github.com/Hweary/cmdClient/internal/dispatch"
	"github.com/Hweary/cmdClient/internal/event"
	"github.com/Hweary/cmdClient/internal/logging"
	"github.com/Hweary/cmdClient/internal/platform"
)

// botID authors every message the bot sends through the memory platform.
const botID = "cmdbot"

// app holds the wired components of a running bot.
type app struct {
	log        zerolog.Logger
	platform   *platform.Memory
	registry   *command.Registry
	dispatcher *dispatch.Dispatcher
	bus        *event.Bus
	detach     func()
}

// newApp wires the engine described by cfg. Owners and the cache size are
// fixed for the lifetime of the app; everything else can be changed with
// apply.
func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	mem := platform.NewMemory(botID)

	registry := command.NewRegistry(logging.Named(logger, "registry"))
	if err := registry.AddModule(builtin.New(registry, cfg.Owners)); err != nil {
		return nil, err
	}

	contexts, err := cache.New(cfg.CacheSize, logging.Named(logger, "cache"))
	if err != nil {
		return nil, err
	}

	runner := command.NewRunner(logging.Named(logger, "runner"),
		command.WithDefaultTimeout(cfg.CommandTimeout.Std()))
	d := dispatch.New(mem, registry, runner, contexts, logging.Named(logger, "dispatch"),
		dispatch.WithPrefixes(cfg.Prefixes...),
		dispatch.WithCleanupPollInterval(cfg.CleanupPollInterval.Std()),
		dispatch.WithCleanupTimeout(cfg.CleanupTimeout.Std()),
	)

	bus := event.NewBus(logging.Named(logger, "event"))
	a := &app{
		log:        logger,
		platform:   mem,
		registry:   registry,
		dispatcher: d,
		bus:        bus,
		detach:     d.Attach(bus),
	}
	registry.OnToggle(a.publishToggle)
	a.apply(cfg)
	return a, nil
}

// publishToggle announces a module state change on the bus.
func (a *app) publishToggle(module string, enabled bool) {
	err := a.bus.Publish(event.Event{
		Type: event.ModuleToggled,
		Data: event.ModuleToggledData{Module: module, Enabled: enabled},
	})
	if err != nil {
		a.log.Warn().Err(err).Str("module", module).Msg("Failed to publish module state")
	}
}

// apply updates the prefixes and module states from cfg. The builtin module
// always stays enabled.
func (a *app) apply(cfg *config.Config) {
	a.dispatcher.SetPrefixes(cfg.Prefixes)
	for _, m := range a.registry.Modules() {
		if m.Name() == builtin.ModuleName {
			continue
		}
		if err := a.registry.SetEnabled(m.Name(), cfg.ModuleEnabled(m.Name())); err != nil {
			a.log.Warn().Err(err).Str("module", m.Name()).Msg("Failed to apply module state")
		}
	}
}

// close detaches the dispatcher and waits for in-flight work.
func (a *app) close() error {
	a.detach()
	a.dispatcher.Wait()
	return a.bus.Close()
}
