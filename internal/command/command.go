package command

import (
	"context"
	"strings"
	"time"

	"github.com/Hweary/cmdClient/internal/check"
	"github.com/Hweary/cmdClient/internal/flags"
	"github.com/Hweary/cmdClient/internal/invocation"
)

// Handler executes a command. values is nil unless the command declares
// flags, in which case inv.Args already holds the text left after parsing.
type Handler func(ctx context.Context, inv *invocation.Invocation, values flags.Values) error

// HelpField is one titled section of a command's long help.
type HelpField struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Command represents a registered chat command.
type Command struct {
	Name        string        `json:"name"`
	Aliases     []string      `json:"aliases,omitempty"`
	Flags       []string      `json:"flags,omitempty"`
	Hidden      bool          `json:"hidden,omitempty"`
	HandleEdits bool          `json:"handleEdits"`
	ShortHelp   string        `json:"shortHelp,omitempty"`
	LongHelp    []HelpField   `json:"longHelp,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`

	checks  []*check.Check
	handler Handler
	module  *Module
}

// Option configures a command when it is added to a module.
type Option func(*Command)

// WithAliases adds alternate names for the command.
func WithAliases(aliases ...string) Option {
	return func(c *Command) { c.Aliases = append(c.Aliases, aliases...) }
}

// WithFlags declares the flag specs passed to flags.Parse.
func WithFlags(specs ...string) Option {
	return func(c *Command) { c.Flags = append(c.Flags, specs...) }
}

// Hidden excludes the command from public listings.
func Hidden() Option {
	return func(c *Command) { c.Hidden = true }
}

// IgnoreEdits stops edits of the triggering message from cleaning up or
// re-running the command.
func IgnoreEdits() Option {
	return func(c *Command) { c.HandleEdits = false }
}

// WithChecks adds checks evaluated in order before the handler runs.
func WithChecks(checks ...*check.Check) Option {
	return func(c *Command) { c.checks = append(c.checks, checks...) }
}

// WithShortHelp sets the one-line description.
func WithShortHelp(text string) Option {
	return func(c *Command) { c.ShortHelp = text }
}

// WithHelp sets the long help from text. See ParseHelp.
func WithHelp(text string) Option {
	return func(c *Command) { c.LongHelp = ParseHelp(text) }
}

// WithTimeout bounds the handler's run time. The handler's context is
// cancelled with ErrOperationTimeout when it elapses.
func WithTimeout(d time.Duration) Option {
	return func(c *Command) { c.Timeout = d }
}

func newCommand(name string, handler Handler, module *Module, opts ...Option) *Command {
	c := &Command{
		Name:        name,
		HandleEdits: true,
		handler:     handler,
		module:      module,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Module returns the module the command belongs to.
func (c *Command) Module() *Module { return c.module }

// Checks returns a copy of the command's checks.
func (c *Command) Checks() []*check.Check { return append([]*check.Check(nil), c.checks...) }

// Names returns the command name followed by its aliases.
func (c *Command) Names() []string {
	return append([]string{c.Name}, c.Aliases...)
}

// ParseHelp splits help text into titled fields. A line ending in ":" starts
// a new field; the lines that follow, dedented, form its content. Text
// before the first title becomes a field with an empty name.
func ParseHelp(text string) []HelpField {
	lines := strings.Split(strings.TrimSpace(dedent(text)), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}

	var (
		fields  []HelpField
		name    string
		content []string
	)
	flush := func() {
		if len(content) > 0 {
			fields = append(fields, HelpField{Name: name, Content: dedent(strings.Join(content, "\n"))})
		}
	}
	for _, line := range lines {
		if strings.HasSuffix(line, ":") {
			flush()
			name = strings.TrimSpace(strings.TrimSuffix(line, ":"))
			content = nil
			continue
		}
		content = append(content, line)
	}
	flush()
	return fields
}

// dedent removes the longest whitespace prefix common to all non-blank lines.
func dedent(text string) string {
	lines := strings.Split(text, "\n")
	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if prefix == "" {
		return text
	}
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}
