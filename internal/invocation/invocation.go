// Package invocation holds the state of a single command execution: the live
// Invocation a handler works with, and the transport-free Snapshot that
// outlives it in the context cache.
package invocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/Hweary/cmdClient/internal/flags"
	"github.com/Hweary/cmdClient/internal/platform"
)

// Params describes the invocation to build. A zero Message builds a
// synthetic invocation that is not tied to any chat message.
type Params struct {
	Message     platform.Message
	ChannelID   string
	GuildID     string
	AuthorID    string
	ArgStr      string
	Command     string
	Alias       string
	Prefix      string
	HandleEdits bool
}

// Invocation is the mutable, in-flight state of one command execution.
type Invocation struct {
	MessageID string
	ChannelID string
	GuildID   string
	AuthorID  string
	Content   string

	// ArgStr is the raw text after the command name. Args starts equal to
	// ArgStr and is replaced by the flag parser's remainder.
	ArgStr string
	Args   string
	Flags  flags.Values

	Command string
	Alias   string
	Prefix  string

	CleanupOnEdit bool
	ReparseOnEdit bool

	client platform.Client

	mu        sync.Mutex
	sent      []string
	tasks     map[uint64]context.CancelCauseFunc
	nextTask  uint64
	cancelled bool
}

// New builds an invocation that replies through client.
func New(client platform.Client, p Params) *Invocation {
	inv := &Invocation{
		MessageID:     p.Message.ID,
		ChannelID:     p.Message.ChannelID,
		GuildID:       p.Message.GuildID,
		AuthorID:      p.Message.AuthorID,
		Content:       p.Message.Content,
		ArgStr:        p.ArgStr,
		Args:          p.ArgStr,
		Command:       p.Command,
		Alias:         p.Alias,
		Prefix:        p.Prefix,
		CleanupOnEdit: p.HandleEdits,
		ReparseOnEdit: p.HandleEdits,
		client:        client,
		tasks:         make(map[uint64]context.CancelCauseFunc),
	}
	if p.Message.ID == "" {
		inv.ChannelID = p.ChannelID
		inv.GuildID = p.GuildID
		inv.AuthorID = p.AuthorID
	}
	return inv
}

// Synthetic reports whether the invocation was built without a message.
func (inv *Invocation) Synthetic() bool {
	return inv.MessageID == ""
}

// InGuild reports whether the invocation came from a guild channel.
func (inv *Invocation) InGuild() bool {
	return inv.GuildID != ""
}

// Client returns the platform client used for replies.
func (inv *Invocation) Client() platform.Client {
	return inv.client
}

// ReplyOption adjusts a single Reply call.
type ReplyOption func(*replyOptions)

type replyOptions struct {
	allowMentions bool
}

// AllowMentions sends the content without neutralising mass mentions.
func AllowMentions() ReplyOption {
	return func(o *replyOptions) { o.allowMentions = true }
}

// Reply sends content to the invocation's channel and records the response.
func (inv *Invocation) Reply(ctx context.Context, content string, opts ...ReplyOption) (string, error) {
	var o replyOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.allowMentions {
		content = Sterilise(content)
	}
	return inv.send(ctx, platform.Outgoing{Content: content})
}

// ErrorReply notifies the user of a user-level error. When the channel does
// not allow structured error notices it falls back to a plain reply.
func (inv *Invocation) ErrorReply(ctx context.Context, text string) (string, error) {
	id, err := inv.send(ctx, platform.Outgoing{Content: Sterilise(text), Error: true})
	if errors.Is(err, platform.ErrForbidden) {
		return inv.Reply(ctx, text)
	}
	return id, err
}

func (inv *Invocation) send(ctx context.Context, out platform.Outgoing) (string, error) {
	if inv.client == nil {
		return "", errors.New("invocation has no platform client")
	}
	id, err := inv.client.Send(ctx, inv.ChannelID, out)
	if err != nil {
		return "", fmt.Errorf("send to channel %s: %w", inv.ChannelID, err)
	}

	inv.mu.Lock()
	inv.sent = append(inv.sent, id)
	inv.mu.Unlock()
	return id, nil
}

// Responses returns the IDs of messages sent so far, oldest first.
func (inv *Invocation) Responses() []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return append([]string(nil), inv.sent...)
}

// Track adds a cancellable task to the invocation. The returned release
// function removes it again once the task has finished. Tracking a task on an
// already cancelled invocation cancels it immediately.
func (inv *Invocation) Track(cancel context.CancelCauseFunc) (release func()) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.cancelled {
		cancel(ErrCancelled)
		return func() {}
	}

	id := inv.nextTask
	inv.nextTask++
	inv.tasks[id] = cancel
	return func() {
		inv.mu.Lock()
		delete(inv.tasks, id)
		inv.mu.Unlock()
	}
}

// Spawn runs fn in a new goroutine as a task owned by the invocation, so an
// edit that cancels the invocation also cancels fn.
func (inv *Invocation) Spawn(ctx context.Context, fn func(ctx context.Context)) {
	taskCtx, cancel := context.WithCancelCause(ctx)
	release := inv.Track(cancel)
	go func() {
		defer cancel(nil)
		defer release()
		fn(taskCtx)
	}()
}

// TaskCount returns the number of tasks currently tracked.
func (inv *Invocation) TaskCount() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.tasks)
}

// ErrCancelled is the default cancellation cause.
var ErrCancelled = errors.New("invocation cancelled")

// Cancel delivers cause to every tracked task. Only the first call has any
// effect; it reports whether this call was the one that cancelled.
func (inv *Invocation) Cancel(cause error) bool {
	if cause == nil {
		cause = ErrCancelled
	}

	inv.mu.Lock()
	if inv.cancelled {
		inv.mu.Unlock()
		return false
	}
	inv.cancelled = true
	tasks := make([]context.CancelCauseFunc, 0, len(inv.tasks))
	for _, cancel := range inv.tasks {
		tasks = append(tasks, cancel)
	}
	inv.mu.Unlock()

	for _, cancel := range tasks {
		cancel(cause)
	}
	return true
}

// Cancelled reports whether Cancel has been called.
func (inv *Invocation) Cancelled() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.cancelled
}

// Snapshot projects the invocation onto plain values.
func (inv *Invocation) Snapshot() Snapshot {
	return Snapshot{
		MessageID:     inv.MessageID,
		ChannelID:     inv.ChannelID,
		GuildID:       inv.GuildID,
		AuthorID:      inv.AuthorID,
		ArgStr:        inv.ArgStr,
		Command:       inv.Command,
		Alias:         inv.Alias,
		Prefix:        inv.Prefix,
		CleanupOnEdit: inv.CleanupOnEdit,
		ReparseOnEdit: inv.ReparseOnEdit,
		Responses:     inv.Responses(),
	}
}

const zeroWidthSpace = "\u200b"

// Sterilise neutralises @everyone and @here mentions by inserting a zero
// width space after every @. Non-ASCII characters are ignored when looking for
// mentions, so padding a mention with invisible characters does not hide it.
func Sterilise(content string) string {
	ascii := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, content)
	if !strings.Contains(ascii, "@everyone") && !strings.Contains(ascii, "@here") {
		return content
	}
	return strings.ReplaceAll(content, "@", "@"+zeroWidthSpace)
}
