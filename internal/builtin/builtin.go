// Package builtin provides the default command module: help, ping, echo and
// owner-only module management.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/Hweary/cmdClient/internal/check"
	"github.com/Hweary/cmdClient/internal/command"
	"github.com/Hweary/cmdClient/internal/flags"
	"github.com/Hweary/cmdClient/internal/invocation"
)

// ModuleName is the name the default module registers under.
const ModuleName = "default"

const (
	maxSuggestions  = 3
	maxEditDistance = 2
	maxEchoRepeats  = 5
)

// New builds the default module for registry. owners may use the modules
// command.
func New(registry *command.Registry, owners []string) *command.Module {
	b := &builtins{registry: registry}
	m := command.NewModule(ModuleName)

	m.Add("help", b.help,
		command.WithAliases("h"),
		command.WithShortHelp("List commands or show help for one."),
		command.WithHelp(`
			Usage:
			    help [command]
			Description:
			    Without arguments, lists every visible command.
			    With a command name, shows its detailed help.
		`))

	m.Add("ping", b.ping,
		command.WithShortHelp("Check that the bot is responding."))

	m.Add("echo", b.echo,
		command.WithAliases("say"),
		command.WithFlags("upper", "times=", "sep="),
		command.WithShortHelp("Repeat the given text."),
		command.WithHelp(`
			Usage:
			    echo [--upper] [--times n] [--sep text] <text>
			Flags:
			    --upper   shout the text
			    --times   repeat up to 5 times
			    --sep     separator between repeats
		`))

	m.Add("modules", b.modules,
		command.Hidden(),
		command.WithChecks(check.IsOwner(owners...)),
		command.WithShortHelp("List, enable or disable command modules."),
		command.WithHelp(`
			Usage:
			    modules
			    modules enable <name>
			    modules disable <name>
		`))

	return m
}

type builtins struct {
	registry *command.Registry
}

func (b *builtins) help(ctx context.Context, inv *invocation.Invocation, _ flags.Values) error {
	name := strings.ToLower(strings.TrimSpace(inv.Args))
	if name == "" {
		_, err := inv.Reply(ctx, b.listing(inv.Prefix))
		return err
	}

	cmd, ok := b.registry.Lookup(name)
	if !ok || cmd.Hidden {
		msg := fmt.Sprintf("No command named `%s`.", name)
		if s := b.suggest(name); len(s) > 0 {
			msg += " Did you mean " + strings.Join(quote(s), ", ") + "?"
		}
		return command.Cancel(msg, "unknown help topic "+name)
	}
	_, err := inv.Reply(ctx, describe(inv.Prefix, cmd))
	return err
}

func (b *builtins) listing(prefix string) string {
	var sb strings.Builder
	sb.WriteString("Available commands:")
	for _, m := range b.registry.Modules() {
		if !m.Enabled() {
			continue
		}
		var lines []string
		for _, cmd := range m.Commands() {
			if cmd.Hidden {
				continue
			}
			line := "`" + prefix + cmd.Name + "`"
			if cmd.ShortHelp != "" {
				line += ": " + cmd.ShortHelp
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		sort.Strings(lines)
		sb.WriteString("\n\n" + m.Name() + "\n" + strings.Join(lines, "\n"))
	}
	return sb.String()
}

func describe(prefix string, cmd *command.Command) string {
	var sb strings.Builder
	sb.WriteString("`" + prefix + cmd.Name + "`")
	if cmd.ShortHelp != "" {
		sb.WriteString(": " + cmd.ShortHelp)
	}
	if len(cmd.Aliases) > 0 {
		sb.WriteString("\nAliases: " + strings.Join(cmd.Aliases, ", "))
	}
	for _, f := range cmd.LongHelp {
		sb.WriteString("\n\n")
		if f.Name != "" {
			sb.WriteString(f.Name + ":\n")
		}
		sb.WriteString(f.Content)
	}
	return sb.String()
}

// suggest returns the visible command names closest to name.
func (b *builtins) suggest(name string) []string {
	type candidate struct {
		name     string
		distance int
	}
	var found []candidate
	seen := make(map[string]bool)
	for _, cmd := range b.registry.Commands() {
		if cmd.Hidden {
			continue
		}
		for _, n := range cmd.Names() {
			n = strings.ToLower(n)
			if seen[n] {
				continue
			}
			seen[n] = true
			if d := levenshtein.ComputeDistance(name, n); d <= maxEditDistance {
				found = append(found, candidate{name: n, distance: d})
			}
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}
		return found[i].name < found[j].name
	})

	out := make([]string, 0, maxSuggestions)
	for i := 0; i < len(found) && i < maxSuggestions; i++ {
		out = append(out, found[i].name)
	}
	return out
}

func quote(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "`" + n + "`"
	}
	return out
}

func (b *builtins) ping(ctx context.Context, inv *invocation.Invocation, _ flags.Values) error {
	_, err := inv.Reply(ctx, "Pong!")
	return err
}

func (b *builtins) echo(ctx context.Context, inv *invocation.Invocation, values flags.Values) error {
	text := inv.Args
	if text == "" {
		return command.Cancel("Nothing to echo!", "")
	}
	if values.Has("upper") {
		text = strings.ToUpper(text)
	}

	times := 1
	if raw, ok := values.Get("times"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEchoRepeats {
			return command.Cancel(fmt.Sprintf("`--times` must be a number from 1 to %d.", maxEchoRepeats), "bad repeat count "+raw)
		}
		times = n
	}
	sep := " "
	if raw, ok := values.Get("sep"); ok {
		sep = raw
	}

	parts := make([]string, times)
	for i := range parts {
		parts[i] = text
	}
	_, err := inv.Reply(ctx, strings.Join(parts, sep))
	return err
}

func (b *builtins) modules(ctx context.Context, inv *invocation.Invocation, _ flags.Values) error {
	action, name, _ := strings.Cut(strings.TrimSpace(inv.Args), " ")
	action = strings.ToLower(action)
	name = strings.TrimSpace(name)

	switch action {
	case "":
		var lines []string
		for _, m := range b.registry.Modules() {
			state := "enabled"
			if !m.Enabled() {
				state = "disabled"
			}
			lines = append(lines, fmt.Sprintf("%s (%s, %d commands)", m.Name(), state, len(m.Commands())))
		}
		_, err := inv.Reply(ctx, strings.Join(lines, "\n"))
		return err

	case "enable", "disable":
		if name == "" {
			return command.Cancel("Which module?", "missing module name")
		}
		if name == ModuleName && action == "disable" {
			return command.Cancel("The default module can't be disabled.", "")
		}
		err := b.registry.SetEnabled(name, action == "enable")
		if errors.Is(err, command.ErrModuleNotFound) {
			return command.Cancel(fmt.Sprintf("No module named `%s`.", name), err.Error())
		}
		if err != nil {
			return fmt.Errorf("enable module %s: %w", name, err)
		}
		_, err = inv.Reply(ctx, fmt.Sprintf("Module `%s` %sd.", name, action))
		return err
	}
	return command.Cancel("Usage: `modules [enable|disable <name>]`", "unknown action "+action)
}
