package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hweary/cmdClient/internal/platform"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus := NewBus(zerolog.Nop())
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestBus_PublishDecodesTypedData(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan Event, 1)
	unsub := bus.Subscribe(MessageEdited, func(_ context.Context, e Event) error {
		received <- e
		return nil
	})
	defer unsub()

	before := platform.Message{ID: "m1", ChannelID: "c1", AuthorID: "u1", Content: "!ping"}
	after := before
	after.Content = "!echo hi"
	require.NoError(t, bus.Publish(Event{Type: MessageEdited, Data: MessageEditedData{Before: before, After: after}}))

	select {
	case e := <-received:
		assert.Equal(t, MessageEdited, e.Type)
		data, ok := e.Data.(MessageEditedData)
		require.True(t, ok)
		assert.Equal(t, "!ping", data.Before.Content)
		assert.Equal(t, "!echo hi", data.After.Content)
		assert.Equal(t, "m1", data.After.ID)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestBus_EventTypeFiltering(t *testing.T) {
	bus := newTestBus(t)

	var created, edited int32
	bus.Subscribe(MessageCreated, func(context.Context, Event) error {
		atomic.AddInt32(&created, 1)
		return nil
	})
	bus.Subscribe(MessageEdited, func(context.Context, Event) error {
		atomic.AddInt32(&edited, 1)
		return nil
	})

	require.NoError(t, bus.Publish(Event{Type: MessageCreated, Data: MessageCreatedData{}}))
	require.NoError(t, bus.Publish(Event{Type: MessageCreated, Data: MessageCreatedData{}}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&created) == 2 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return atomic.LoadInt32(&edited) != 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := newTestBus(t)

	var count int32
	unsub := bus.Subscribe(MessageCreated, func(context.Context, Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	unsub()

	bus.PublishSync(context.Background(), Event{Type: MessageCreated})
	assert.Zero(t, atomic.LoadInt32(&count))
}

func TestBus_PublishSyncRunsInPriorityOrder(t *testing.T) {
	bus := newTestBus(t)

	var order []string
	record := func(name string) Handler {
		return func(context.Context, Event) error {
			order = append(order, name)
			return nil
		}
	}
	bus.Subscribe(MessageCreated, record("late"), WithPriority(10))
	bus.Subscribe(MessageCreated, record("default"))
	bus.Subscribe(MessageCreated, record("core"), WithPriority(CorePriority))
	bus.Subscribe(MessageCreated, record("default-2"))

	bus.PublishSync(context.Background(), Event{Type: MessageCreated})
	assert.Equal(t, []string{"core", "default", "default-2", "late"}, order)
}

func TestBus_HandlersAreIsolated(t *testing.T) {
	bus := newTestBus(t)

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(MessageCreated, func(context.Context, Event) error {
		panic("handler bug")
	})
	bus.Subscribe(MessageCreated, func(context.Context, Event) error {
		return errors.New("handler failed")
	}, WithPriority(1))
	bus.Subscribe(MessageCreated, func(context.Context, Event) error {
		wg.Done()
		return nil
	}, WithPriority(2))

	require.NoError(t, bus.Publish(Event{Type: MessageCreated, Data: MessageCreatedData{}}))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("last handler never ran")
	}
}

func TestBus_CloseStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var count int32
	bus.Subscribe(MessageCreated, func(context.Context, Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.NoError(t, bus.Publish(Event{Type: MessageCreated}))
	bus.PublishSync(context.Background(), Event{Type: MessageCreated})
	assert.Zero(t, atomic.LoadInt32(&count))

	unsub := bus.Subscribe(MessageCreated, func(context.Context, Event) error { return nil })
	unsub()
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	bus := newTestBus(t)

	var count int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(CommandFinished, func(context.Context, Event) error {
				atomic.AddInt32(&count, 1)
				return nil
			})
			bus.PublishSync(context.Background(), Event{Type: CommandFinished})
			unsub()
		}()
	}
	wg.Wait()
	assert.Positive(t, atomic.LoadInt32(&count))
}

func TestDecodeData_UnknownType(t *testing.T) {
	data, err := decodeData("custom.event", []byte(`{"k":"v"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, data)

	_, err = decodeData(MessageCreated, []byte(`not json`))
	assert.Error(t, err)
}
