package builtin

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hweary/cmdClient/internal/cache"
	"github.com/Hweary/cmdClient/internal/command"
	"github.com/Hweary/cmdClient/internal/dispatch"
	"github.com/Hweary/cmdClient/internal/flags"
	"github.com/Hweary/cmdClient/internal/invocation"
	"github.com/Hweary/cmdClient/internal/platform"
)

type fixture struct {
	mem        *platform.Memory
	registry   *command.Registry
	dispatcher *dispatch.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := platform.NewMemory("bot")
	mem.AddChannel("c1", "g1")

	registry := command.NewRegistry(zerolog.Nop())
	require.NoError(t, registry.AddModule(New(registry, []string{"owner"})))

	extra := command.NewModule("fun")
	extra.Add("roll", func(context.Context, *invocation.Invocation, flags.Values) error { return nil },
		command.WithShortHelp("Roll a die."))
	extra.Add("secret", func(context.Context, *invocation.Invocation, flags.Values) error { return nil }, command.Hidden())
	require.NoError(t, registry.AddModule(extra))
	require.NoError(t, registry.Launch(ctx))

	contexts, err := cache.New(cache.DefaultSize, zerolog.Nop())
	require.NoError(t, err)

	d := dispatch.New(mem, registry, command.NewRunner(zerolog.Nop()), contexts, zerolog.Nop(), dispatch.WithPrefixes("!"))
	return &fixture{mem: mem, registry: registry, dispatcher: d}
}

// say sends content as author and returns the bot's replies to it.
func (f *fixture) say(t *testing.T, author, content string) []string {
	t.Helper()
	msg := f.mem.Receive(platform.Message{ChannelID: "c1", AuthorID: author, Content: content})
	res := f.dispatcher.HandleMessage(context.Background(), msg)
	require.True(t, res.Matched, "no command matched %q", content)

	var out []string
	for _, id := range res.Responses {
		stored, ok := f.mem.Get(id)
		require.True(t, ok)
		out = append(out, stored.Content)
	}
	return out
}

func TestHelp_Listing(t *testing.T) {
	f := newFixture(t)

	replies := f.say(t, "u1", "!help")
	require.Len(t, replies, 1)
	listing := replies[0]

	assert.Contains(t, listing, "`!ping`: Check that the bot is responding.")
	assert.Contains(t, listing, "`!roll`: Roll a die.")
	assert.Contains(t, listing, "fun")
	assert.NotContains(t, listing, "secret")
	assert.NotContains(t, listing, "modules")
}

func TestHelp_SkipsDisabledModules(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.SetEnabled("fun", false))

	replies := f.say(t, "u1", "!h")
	require.Len(t, replies, 1)
	assert.NotContains(t, replies[0], "roll")
}

func TestHelp_Command(t *testing.T) {
	f := newFixture(t)

	replies := f.say(t, "u1", "!help ECHO")
	require.Len(t, replies, 1)
	text := replies[0]

	assert.True(t, strings.HasPrefix(text, "`!echo`: Repeat the given text."))
	assert.Contains(t, text, "Aliases: say")
	assert.Contains(t, text, "Flags:\n--upper   shout the text")
}

func TestHelp_Suggestions(t *testing.T) {
	f := newFixture(t)

	replies := f.say(t, "u1", "!help pign")
	require.Len(t, replies, 1)
	assert.Equal(t, "No command named `pign`. Did you mean `ping`?", replies[0])

	replies = f.say(t, "u1", "!help secret")
	assert.Equal(t, []string{"No command named `secret`."}, replies)
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{"Pong!"}, f.say(t, "u1", "!ping"))
}

func TestEcho(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"!echo hello world", "hello world"},
		{"!say quiet --upper please", "QUIET  PLEASE"},
		{"!echo hi --times 3", "hi hi hi"},
		{"!echo --times=2 --sep , ab", "ab,ab"},
		{"!echo -- --upper", "--upper"},
		{"!echo @everyone", "@\u200beveryone"},
		{"!echo", "Nothing to echo!"},
		{"!echo x --times 9", "`--times` must be a number from 1 to 5."},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			f := newFixture(t)
			assert.Equal(t, []string{tt.want}, f.say(t, "u1", tt.content))
		})
	}
}

func TestModules_OwnerOnly(t *testing.T) {
	f := newFixture(t)

	replies := f.say(t, "u1", "!modules")
	assert.Equal(t, []string{"You need to be a bot owner to do this!"}, replies)
}

func TestModules_EnableDisable(t *testing.T) {
	f := newFixture(t)

	replies := f.say(t, "owner", "!modules")
	assert.Equal(t, []string{"default (enabled, 4 commands)\nfun (enabled, 2 commands)"}, replies)

	assert.Equal(t, []string{"Module `fun` disabled."}, f.say(t, "owner", "!modules disable fun"))
	_, ok := f.registry.Lookup("roll")
	assert.False(t, ok)

	assert.Equal(t, []string{"Module `fun` enabled."}, f.say(t, "owner", "!modules enable fun"))
	_, ok = f.registry.Lookup("roll")
	assert.True(t, ok)

	assert.Equal(t, []string{"The default module can't be disabled."}, f.say(t, "owner", "!modules disable default"))
	assert.Equal(t, []string{"No module named `nope`."}, f.say(t, "owner", "!modules enable nope"))
	assert.Equal(t, []string{"Which module?"}, f.say(t, "owner", "!modules enable"))
}
