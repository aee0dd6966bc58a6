// Package dispatch routes chat messages to commands and keeps command
// state consistent when the triggering message is edited.
package dispatch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Hweary/cmdClient/internal/cache"
	"github.com/Hweary/cmdClient/internal/command"
	"github.com/Hweary/cmdClient/internal/event"
	"github.com/Hweary/cmdClient/internal/invocation"
	"github.com/Hweary/cmdClient/internal/logging"
	"github.com/Hweary/cmdClient/internal/platform"
)

const (
	// DefaultCleanupPollInterval is how often an edit waits to see a
	// cancelled invocation leave the running set.
	DefaultCleanupPollInterval = 100 * time.Millisecond
	// DefaultCleanupTimeout bounds that wait.
	DefaultCleanupTimeout = 30 * time.Second
)

// PrefixFunc returns the prefixes valid for a message. It replaces the
// configured prefixes when set.
type PrefixFunc func(ctx context.Context, msg platform.Message) []string

// Result describes what dispatching a message did.
type Result struct {
	Matched   bool            `json:"matched"`
	Skipped   bool            `json:"skipped,omitempty"`
	Command   string          `json:"command,omitempty"`
	Alias     string          `json:"alias,omitempty"`
	Prefix    string          `json:"prefix,omitempty"`
	Outcome   command.Outcome `json:"-"`
	Responses []string        `json:"responses,omitempty"`
}

// Dispatcher matches messages against the registry and runs commands.
type Dispatcher struct {
	client   platform.Client
	registry *command.Registry
	runner   *command.Runner
	cache    *cache.ContextCache
	log      zerolog.Logger

	prefixes     atomic.Pointer[[]string]
	prefixFunc   PrefixFunc
	pollInterval time.Duration
	cleanupAfter time.Duration

	mu      sync.RWMutex
	parsers []parserEntry
	bus     *event.Bus

	background sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPrefixes sets the command prefixes.
func WithPrefixes(prefixes ...string) Option {
	return func(d *Dispatcher) { d.SetPrefixes(prefixes) }
}

// WithPrefixFunc computes prefixes per message instead of using the
// configured ones.
func WithPrefixFunc(fn PrefixFunc) Option {
	return func(d *Dispatcher) { d.prefixFunc = fn }
}

// WithCleanupPollInterval sets how often an edit polls for a cancelled
// invocation to finish.
func WithCleanupPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) { d.pollInterval = interval }
}

// WithCleanupTimeout bounds how long an edit waits for a cancelled
// invocation to finish before cleaning up regardless.
func WithCleanupTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.cleanupAfter = timeout }
}

// New creates a dispatcher.
func New(client platform.Client, registry *command.Registry, runner *command.Runner, contexts *cache.ContextCache, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:       client,
		registry:     registry,
		runner:       runner,
		cache:        contexts,
		log:          logger,
		pollInterval: DefaultCleanupPollInterval,
		cleanupAfter: DefaultCleanupTimeout,
	}
	d.prefixes.Store(&[]string{})
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetPrefixes replaces the configured prefixes.
func (d *Dispatcher) SetPrefixes(prefixes []string) {
	p := append([]string(nil), prefixes...)
	d.prefixes.Store(&p)
}

// Prefixes returns the configured prefixes.
func (d *Dispatcher) Prefixes() []string {
	return append([]string(nil), *d.prefixes.Load()...)
}

// Cache returns the dispatcher's context cache.
func (d *Dispatcher) Cache() *cache.ContextCache {
	return d.cache
}

// Wait blocks until background message parsers have returned.
func (d *Dispatcher) Wait() {
	d.background.Wait()
}

// validPrefixes returns the prefixes content starts with, longest first.
func (d *Dispatcher) validPrefixes(ctx context.Context, msg platform.Message, content string) []string {
	var all []string
	if d.prefixFunc != nil {
		all = d.prefixFunc(ctx, msg)
	} else {
		all = *d.prefixes.Load()
	}
	if len(all) == 0 {
		d.log.Error().Msg("No prefix set and no prefix function implemented")
		return nil
	}

	var valid []string
	for _, p := range all {
		if p != "" && strings.HasPrefix(content, p) {
			valid = append(valid, p)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return len(valid[i]) > len(valid[j]) })
	return valid
}

// HandleMessage dispatches a new message. When no command matches, the
// extra message parsers are started in the background.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg platform.Message) Result {
	content := strings.TrimSpace(msg.Content)

	for _, prefix := range d.validPrefixes(ctx, msg, content) {
		stripped := strings.TrimSpace(content[len(prefix):])
		if cmd, alias, argStr, ok := d.registry.Match(stripped); ok {
			return d.run(ctx, msg, cmd, alias, argStr, prefix)
		}
	}

	d.runParsers(ctx, msg)
	return Result{}
}

func (d *Dispatcher) run(ctx context.Context, msg platform.Message, cmd *command.Command, alias, argStr, prefix string) Result {
	log := logging.ForMessage(d.log, msg.ID)
	res := Result{Matched: true, Command: cmd.Name, Alias: alias, Prefix: prefix}

	log.Info().
		Str("command", cmd.Name).
		Str("alias", alias).
		Str("module", cmd.Module().Name()).
		Str("author", msg.AuthorID).
		Str("guild", msg.GuildID).
		Str("channel", msg.ChannelID).
		Str("content", msg.Content).
		Msg("Executing command")

	if !cmd.Module().Enabled() {
		log.Info().Str("module", cmd.Module().Name()).Msg("Skipping command due to disabled module")
		d.registry.Rebuild()
		res.Skipped = true
		return res
	}

	inv := invocation.New(d.client, invocation.Params{
		Message:     msg,
		ArgStr:      argStr,
		Command:     cmd.Name,
		Alias:       alias,
		Prefix:      prefix,
		HandleEdits: cmd.HandleEdits,
	})

	d.cache.Put(inv.Snapshot())
	if displaced := d.cache.Register(inv); displaced != nil {
		log.Warn().Msg("Replacing a running invocation for the same message")
	}
	defer func() {
		if !d.cache.Finish(inv) {
			log.Debug().Msg("Invocation was replaced while running, keeping the newer snapshot")
		}
	}()

	res.Outcome = d.runner.Run(ctx, cmd, inv)
	res.Responses = inv.Responses()
	d.publishFinished(inv, res)
	return res
}

// Invoke runs a command without a triggering message, for example from the
// HTTP gateway. text is the command name followed by its arguments, without
// a prefix. Synthetic invocations are not cached and ignore edits.
func (d *Dispatcher) Invoke(ctx context.Context, channelID, guildID, authorID, text string) Result {
	cmd, alias, argStr, ok := d.registry.Match(strings.TrimSpace(text))
	if !ok {
		return Result{}
	}
	res := Result{Matched: true, Command: cmd.Name, Alias: alias}
	if !cmd.Module().Enabled() {
		res.Skipped = true
		return res
	}

	inv := invocation.New(d.client, invocation.Params{
		ChannelID: channelID,
		GuildID:   guildID,
		AuthorID:  authorID,
		ArgStr:    argStr,
		Command:   cmd.Name,
		Alias:     alias,
	})
	res.Outcome = d.runner.Run(ctx, cmd, inv)
	res.Responses = inv.Responses()
	d.publishFinished(inv, res)
	return res
}

func (d *Dispatcher) publishFinished(inv *invocation.Invocation, res Result) {
	d.mu.RLock()
	bus := d.bus
	d.mu.RUnlock()
	if bus == nil {
		return
	}
	err := bus.Publish(event.Event{Type: event.CommandFinished, Data: event.CommandFinishedData{
		MessageID: inv.MessageID,
		ChannelID: inv.ChannelID,
		Command:   res.Command,
		Outcome:   res.Outcome.String(),
		Responses: res.Responses,
	}})
	if err != nil {
		log := logging.ForMessage(d.log, inv.MessageID)
		log.Warn().Err(err).Msg("Failed to publish command result")
	}
}
