package check

import (
	"context"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Hweary/cmdClient/internal/invocation"
)

// DirectScope stands in for the guild ID of direct-message channels when
// matching channel patterns.
const DirectScope = "@me"

// IsOwner passes when the author is one of the bot owners.
func IsOwner(owners ...string) *Check {
	owners = slices.Clone(owners)
	return New("is_owner", func(_ context.Context, inv *invocation.Invocation) (bool, error) {
		return slices.Contains(owners, inv.AuthorID), nil
	}, WithMessage("You need to be a bot owner to do this!"))
}

// InGuild passes when the command was sent in a guild channel.
func InGuild() *Check {
	return New("in_guild", func(_ context.Context, inv *invocation.Invocation) (bool, error) {
		return inv.InGuild(), nil
	}, WithMessage("You need to be in a guild to do this!"))
}

// ChannelPath returns the path channel patterns are matched against:
// "<guildID>/<channelID>", or "@me/<channelID>" outside guilds.
func ChannelPath(inv *invocation.Invocation) string {
	scope := inv.GuildID
	if scope == "" {
		scope = DirectScope
	}
	return scope + "/" + inv.ChannelID
}

// InChannels passes when the invocation's channel path matches one of the
// glob patterns, e.g. "g1/*" for every channel of guild g1 or "*/bot-*".
// Invalid patterns never match.
func InChannels(patterns ...string) *Check {
	patterns = slices.Clone(patterns)
	return New("in_channels", func(_ context.Context, inv *invocation.Invocation) (bool, error) {
		path := ChannelPath(inv)
		for _, pattern := range patterns {
			if ok, err := doublestar.Match(pattern, path); err == nil && ok {
				return true, nil
			}
		}
		return false, nil
	}, WithMessage("This command can't be used here."))
}
