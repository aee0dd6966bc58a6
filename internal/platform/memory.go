package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// StoredMessage is a message held by Memory along with its delivery state.
type StoredMessage struct {
	Message
	FromBot bool      `json:"fromBot"`
	IsError bool      `json:"isError,omitempty"`
	Deleted bool      `json:"deleted,omitempty"`
	SentAt  time.Time `json:"sentAt"`
}

// Memory is an in-process Client. It backs the HTTP gateway and the tests.
type Memory struct {
	mu       sync.RWMutex
	botID    string
	channels map[string]*memoryChannel
	messages map[string]*StoredMessage

	deleteCalls     map[string]int
	bulkDeleteCalls int
}

type memoryChannel struct {
	guildID        string
	manageMessages bool
	forbidErrors   bool
	order          []string
}

// NewMemory creates an empty in-memory platform whose sent messages are
// authored by botID.
func NewMemory(botID string) *Memory {
	return &Memory{
		botID:       botID,
		channels:    make(map[string]*memoryChannel),
		messages:    make(map[string]*StoredMessage),
		deleteCalls: make(map[string]int),
	}
}

// ChannelOption configures a channel created with AddChannel.
type ChannelOption func(*memoryChannel)

// WithManageMessages grants the bot bulk delete permission in the channel.
func WithManageMessages() ChannelOption {
	return func(c *memoryChannel) { c.manageMessages = true }
}

// WithoutErrorEmbeds makes structured error sends fail with ErrForbidden.
func WithoutErrorEmbeds() ChannelOption {
	return func(c *memoryChannel) { c.forbidErrors = true }
}

// AddChannel registers a channel. An empty guildID makes it a direct channel.
func (m *Memory) AddChannel(channelID, guildID string, opts ...ChannelOption) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := &memoryChannel{guildID: guildID}
	for _, opt := range opts {
		opt(ch)
	}
	m.channels[channelID] = ch
}

// channel returns the named channel, creating a direct channel on first use.
func (m *Memory) channel(channelID string) *memoryChannel {
	ch, ok := m.channels[channelID]
	if !ok {
		ch = &memoryChannel{}
		m.channels[channelID] = ch
	}
	return ch
}

// Receive records an inbound user message and returns it with a generated
// ID when none was supplied.
func (m *Memory) Receive(msg Message) Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	ch := m.channel(msg.ChannelID)
	if msg.GuildID == "" {
		msg.GuildID = ch.guildID
	}
	if _, exists := m.messages[msg.ID]; !exists {
		ch.order = append(ch.order, msg.ID)
	}
	m.messages[msg.ID] = &StoredMessage{Message: msg, SentAt: time.Now()}
	return msg
}

// Edit replaces the content of a stored message and returns the message as
// it was before and after the edit.
func (m *Memory) Edit(channelID, messageID, content string) (before, after Message, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.messages[messageID]
	if !ok || stored.Deleted || stored.ChannelID != channelID {
		return Message{}, Message{}, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}

	before = stored.Message
	now := time.Now()
	stored.Content = content
	stored.EditedAt = &now
	return before, stored.Message, nil
}

// Send implements Client.
func (m *Memory) Send(ctx context.Context, channelID string, out Outgoing) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := m.channel(channelID)
	if out.Error && ch.forbidErrors {
		return "", fmt.Errorf("send error notice to %s: %w", channelID, ErrForbidden)
	}

	id := ulid.Make().String()
	m.messages[id] = &StoredMessage{
		Message: Message{
			ID:        id,
			ChannelID: channelID,
			GuildID:   ch.guildID,
			AuthorID:  m.botID,
			Content:   out.Content,
		},
		FromBot: true,
		IsError: out.Error,
		SentAt:  time.Now(),
	}
	ch.order = append(ch.order, id)
	return id, nil
}

// Delete implements Client.
func (m *Memory) Delete(ctx context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteCalls[messageID]++
	return m.deleteLocked(channelID, messageID)
}

func (m *Memory) deleteLocked(channelID, messageID string) error {
	stored, ok := m.messages[messageID]
	if !ok || stored.Deleted || stored.ChannelID != channelID {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	stored.Deleted = true
	return nil
}

// BulkDelete implements Client.
func (m *Memory) BulkDelete(ctx context.Context, channelID string, messageIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[channelID]
	if !ok {
		return fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	if !ch.manageMessages {
		return fmt.Errorf("bulk delete in %s: %w", channelID, ErrForbidden)
	}

	m.bulkDeleteCalls++
	for _, id := range messageIDs {
		m.deleteCalls[id]++
		// Bulk delete ignores messages that are already gone.
		_ = m.deleteLocked(channelID, id)
	}
	return nil
}

// CanManageMessages implements Client.
func (m *Memory) CanManageMessages(ctx context.Context, channelID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.channels[channelID]
	if !ok {
		return false, nil
	}
	return ch.manageMessages, nil
}

// Get returns a stored message by ID.
func (m *Memory) Get(messageID string) (StoredMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.messages[messageID]
	if !ok {
		return StoredMessage{}, false
	}
	return *stored, true
}

// Messages lists a channel's messages in the order they arrived.
func (m *Memory) Messages(channelID string) []StoredMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.channels[channelID]
	if !ok {
		return nil
	}
	out := make([]StoredMessage, 0, len(ch.order))
	for _, id := range ch.order {
		out = append(out, *m.messages[id])
	}
	return out
}

// Sent lists live (not deleted) bot messages in a channel, oldest first.
func (m *Memory) Sent(channelID string) []StoredMessage {
	var out []StoredMessage
	for _, msg := range m.Messages(channelID) {
		if msg.FromBot && !msg.Deleted {
			out = append(out, msg)
		}
	}
	return out
}

// DeleteCalls returns how many delete attempts each message received,
// counting bulk deletes per message.
func (m *Memory) DeleteCalls() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int, len(m.deleteCalls))
	for id, n := range m.deleteCalls {
		out[id] = n
	}
	return out
}

// BulkDeleteCalls returns the number of successful bulk delete calls.
func (m *Memory) BulkDeleteCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bulkDeleteCalls
}

// Channels returns the IDs of all known channels, sorted.
func (m *Memory) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
