package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/Hweary/cmdClient/internal/event"
	"github.com/Hweary/cmdClient/internal/logging"
	"github.com/Hweary/cmdClient/internal/platform"
)

// ErrNoBus is returned when after-event handlers are added before the
// dispatcher is attached to a bus.
var ErrNoBus = errors.New("dispatcher is not attached to an event bus")

// Parser handles messages that did not match any command.
type Parser func(ctx context.Context, msg platform.Message) error

type parserEntry struct {
	name     string
	priority int
	fn       Parser
}

// AddMessageParser adds a parser run for every message that matches no
// command. Parsers are started in order of increasing priority, each in its
// own goroutine; a failing parser does not affect the others.
func (d *Dispatcher) AddMessageParser(name string, fn Parser, priority int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.parsers = append(d.parsers, parserEntry{name: name, priority: priority, fn: fn})
	sort.SliceStable(d.parsers, func(i, j int) bool { return d.parsers[i].priority < d.parsers[j].priority })
	d.log.Info().Str("parser", name).Int("priority", priority).Msg("Adding message parser")
}

func (d *Dispatcher) runParsers(ctx context.Context, msg platform.Message) {
	d.mu.RLock()
	parsers := append([]parserEntry(nil), d.parsers...)
	d.mu.RUnlock()

	for _, p := range parsers {
		d.background.Add(1)
		go func() {
			defer d.background.Done()
			if err := callParser(ctx, p.fn, msg); err != nil {
				log := logging.ForMessage(d.log, msg.ID)
				log.Error().
					Err(err).
					Str("parser", p.name).
					Str("author", msg.AuthorID).
					Str("guild", msg.GuildID).
					Str("channel", msg.ChannelID).
					Str("content", msg.Content).
					Msg("Message parser failed")
			}
		}()
	}
}

func callParser(ctx context.Context, fn Parser, msg platform.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return fn(ctx, msg)
}

// Attach subscribes the dispatcher to message events on bus, ahead of any
// other handler, and publishes command results to it. The returned function
// detaches it again.
func (d *Dispatcher) Attach(bus *event.Bus) (detach func()) {
	d.mu.Lock()
	d.bus = bus
	d.mu.Unlock()

	unsubCreated := bus.Subscribe(event.MessageCreated, func(ctx context.Context, e event.Event) error {
		data, ok := e.Data.(event.MessageCreatedData)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", e.Type, e.Data)
		}
		d.HandleMessage(ctx, data.Message)
		return nil
	}, event.WithPriority(event.CorePriority))

	unsubEdited := bus.Subscribe(event.MessageEdited, func(ctx context.Context, e event.Event) error {
		data, ok := e.Data.(event.MessageEditedData)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", e.Type, e.Data)
		}
		d.HandleEdit(ctx, data.Before, data.After)
		return nil
	}, event.WithPriority(event.CorePriority))

	return func() {
		unsubCreated()
		unsubEdited()
		d.mu.Lock()
		if d.bus == bus {
			d.bus = nil
		}
		d.mu.Unlock()
	}
}

// AddAfterEvent adds a handler that starts after the dispatcher's own
// handling of the event has started. Handlers run in order of increasing
// priority and are isolated from each other.
func (d *Dispatcher) AddAfterEvent(eventType event.EventType, fn event.Handler, priority int) (func(), error) {
	d.mu.RLock()
	bus := d.bus
	d.mu.RUnlock()
	if bus == nil {
		return nil, ErrNoBus
	}
	if priority == event.CorePriority {
		priority++
	}
	d.log.Info().Str("event", string(eventType)).Int("priority", priority).Msg("Adding after-event handler")
	return bus.Subscribe(eventType, fn, event.WithPriority(priority)), nil
}
