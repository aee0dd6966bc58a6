package invocation

// Snapshot is an immutable projection of an Invocation. It holds no
// reference to the platform client, so it can be cached after the live
// invocation is gone. Responses must be treated as read-only.
type Snapshot struct {
	MessageID     string   `json:"messageID,omitempty"`
	ChannelID     string   `json:"channelID,omitempty"`
	GuildID       string   `json:"guildID,omitempty"`
	AuthorID      string   `json:"authorID,omitempty"`
	ArgStr        string   `json:"argStr"`
	Command       string   `json:"command,omitempty"`
	Alias         string   `json:"alias,omitempty"`
	Prefix        string   `json:"prefix,omitempty"`
	CleanupOnEdit bool     `json:"cleanupOnEdit"`
	ReparseOnEdit bool     `json:"reparseOnEdit"`
	Responses     []string `json:"responses,omitempty"`
}

// WithoutResponses returns a copy of the snapshot with no recorded responses.
func (s Snapshot) WithoutResponses() Snapshot {
	s.Responses = nil
	return s
}
