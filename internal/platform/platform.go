// Package platform defines the boundary between the command engine and the
// chat platform that delivers messages and accepts replies.
package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a message or channel no longer exists.
	// Callers deleting responses must treat it as success.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the bot lacks permission for an action.
	ErrForbidden = errors.New("forbidden")
)

// Message is an inbound chat message. It holds plain values only.
type Message struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channelID"`
	GuildID   string     `json:"guildID,omitempty"`
	AuthorID  string     `json:"authorID"`
	Content   string     `json:"content"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
}

// InGuild reports whether the message was sent in a guild channel.
func (m Message) InGuild() bool {
	return m.GuildID != ""
}

// Outgoing is a message the bot sends. When Error is set the platform
// renders Content as a structured error notice rather than plain text.
type Outgoing struct {
	Content string `json:"content"`
	Error   bool   `json:"error,omitempty"`
}

// Client is the outbound half of the messaging platform.
type Client interface {
	// Send posts a message to a channel and returns the new message ID.
	Send(ctx context.Context, channelID string, msg Outgoing) (string, error)

	// Delete removes a message. Returns ErrNotFound when already gone.
	Delete(ctx context.Context, channelID, messageID string) error

	// BulkDelete removes several messages from one channel in a single call.
	// Only valid when CanManageMessages reports true for the channel.
	BulkDelete(ctx context.Context, channelID string, messageIDs []string) error

	// CanManageMessages reports whether the bot may bulk delete in a channel.
	CanManageMessages(ctx context.Context, channelID string) (bool, error)
}
