package event

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
)

// CorePriority is the priority of the engine's own handlers. They start
// before any handler added with a default or higher priority.
const CorePriority = math.MinInt

const metadataType = "type"

// Handler receives events. Returned errors are logged and otherwise ignored.
type Handler func(ctx context.Context, e Event) error

type handlerEntry struct {
	id       uint64
	priority int
	fn       Handler
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*handlerEntry)

// WithPriority orders the handler among the others for the same event
// type. Lower priorities start first; the default is 0.
func WithPriority(priority int) SubscribeOption {
	return func(e *handlerEntry) { e.priority = priority }
}

// Bus is the event bus that manages pub/sub using watermill.
type Bus struct {
	log zerolog.Logger

	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	handlers  map[EventType][]handlerEntry
	consumers map[EventType]bool

	nextID       uint64
	closed       bool
	closedCtx    context.Context
	closedCancel context.CancelFunc
	inflight     sync.WaitGroup
}

// NewBus creates a new event bus instance.
func NewBus(logger zerolog.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		log: logger,
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		handlers:     make(map[EventType][]handlerEntry),
		consumers:    make(map[EventType]bool),
		closedCtx:    ctx,
		closedCancel: cancel,
	}
}

// Subscribe registers a handler for a specific event type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Handler, opts ...SubscribeOption) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	entry := handlerEntry{id: atomic.AddUint64(&b.nextID, 1), fn: fn}
	for _, opt := range opts {
		opt(&entry)
	}
	subs := append(b.handlers[eventType], entry)
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].priority < subs[j].priority })
	b.handlers[eventType] = subs

	if !b.consumers[eventType] {
		if err := b.startConsumer(eventType); err != nil {
			b.log.Error().Err(err).Str("type", string(eventType)).Msg("Failed to subscribe to topic")
		} else {
			b.consumers[eventType] = true
		}
	}

	return func() {
		b.unsubscribe(eventType, entry.id)
	}
}

// unsubscribe removes a subscriber for a specific event type.
func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

// startConsumer reads the topic for eventType until the bus is closed.
// Must be called with b.mu held.
func (b *Bus) startConsumer(eventType EventType) error {
	messages, err := b.pubsub.Subscribe(b.closedCtx, string(eventType))
	if err != nil {
		return err
	}
	go func() {
		for msg := range messages {
			e, err := decode(msg)
			msg.Ack()
			if err != nil {
				b.log.Error().Err(err).Str("type", string(eventType)).Msg("Dropping undecodable event")
				continue
			}
			b.dispatch(e)
		}
	}()
	return nil
}

// Publish sends an event through the transport. Handlers run
// asynchronously; Publish returns once the event is queued.
func (b *Bus) Publish(e Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil
	}

	payload, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.Metadata.Set(metadataType, string(e.Type))
	if err := b.pubsub.Publish(string(e.Type), msg); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	return nil
}

// PublishSync calls every handler for the event in priority order in the
// current goroutine before returning.
func (b *Bus) PublishSync(ctx context.Context, e Event) {
	for _, entry := range b.snapshot(e.Type) {
		b.call(ctx, entry, e)
	}
}

func (b *Bus) snapshot(eventType EventType) []handlerEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	return append([]handlerEntry(nil), b.handlers[eventType]...)
}

// dispatch starts each handler in its own goroutine, in priority order.
func (b *Bus) dispatch(e Event) {
	for _, entry := range b.snapshot(e.Type) {
		b.inflight.Add(1)
		go func(entry handlerEntry) {
			defer b.inflight.Done()
			b.call(b.closedCtx, entry, e)
		}(entry)
	}
}

// call runs one handler, isolating its errors and panics.
func (b *Bus) call(ctx context.Context, entry handlerEntry, e Event) {
	defer func() {
		if p := recover(); p != nil {
			b.log.Error().
				Str("type", string(e.Type)).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("Event handler panicked")
		}
	}()
	if err := entry.fn(ctx, e); err != nil {
		b.log.Error().Err(err).Str("type", string(e.Type)).Int("priority", entry.priority).Msg("Event handler failed")
	}
}

func decode(msg *message.Message) (Event, error) {
	t := EventType(msg.Metadata.Get(metadataType))
	data, err := decodeData(t, json.RawMessage(msg.Payload))
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Data: data}, nil
}

// Close stops the consumers and waits for running handlers to return.
// Handlers see their context cancelled.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()
	b.handlers = make(map[EventType][]handlerEntry)
	b.mu.Unlock()

	err := b.pubsub.Close()
	b.inflight.Wait()
	return err
}

// PubSub returns the underlying watermill GoChannel.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}
