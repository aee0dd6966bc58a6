package event

import (
	"encoding/json"
	"fmt"

	"github.com/Hweary/cmdClient/internal/platform"
)

// EventType represents the type of event.
type EventType string

const (
	MessageCreated  EventType = "message.created"
	MessageEdited   EventType = "message.edited"
	CommandFinished EventType = "command.finished"
	ModuleToggled   EventType = "module.toggled"
)

// Event represents an event to be published.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// MessageCreatedData is the data for message.created events.
type MessageCreatedData struct {
	Message platform.Message `json:"message"`
}

// MessageEditedData is the data for message.edited events.
type MessageEditedData struct {
	Before platform.Message `json:"before"`
	After  platform.Message `json:"after"`
}

// CommandFinishedData is the data for command.finished events.
type CommandFinishedData struct {
	MessageID string   `json:"messageID,omitempty"`
	ChannelID string   `json:"channelID"`
	Command   string   `json:"command"`
	Outcome   string   `json:"outcome"`
	Responses []string `json:"responses,omitempty"`
}

// ModuleToggledData is the data for module.toggled events.
type ModuleToggledData struct {
	Module  string `json:"module"`
	Enabled bool   `json:"enabled"`
}

// decodeData restores the typed payload of an event read from the wire.
func decodeData(t EventType, raw json.RawMessage) (any, error) {
	var (
		data any
		err  error
	)
	switch t {
	case MessageCreated:
		var d MessageCreatedData
		err = json.Unmarshal(raw, &d)
		data = d
	case MessageEdited:
		var d MessageEditedData
		err = json.Unmarshal(raw, &d)
		data = d
	case CommandFinished:
		var d CommandFinishedData
		err = json.Unmarshal(raw, &d)
		data = d
	case ModuleToggled:
		var d ModuleToggledData
		err = json.Unmarshal(raw, &d)
		data = d
	default:
		var d map[string]any
		err = json.Unmarshal(raw, &d)
		data = d
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return data, nil
}
