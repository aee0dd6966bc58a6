package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Hweary/cmdClient/internal/event"
	"github.com/Hweary/cmdClient/internal/invocation"
	"github.com/Hweary/cmdClient/internal/platform"
)

// ChannelRequest declares a channel.
type ChannelRequest struct {
	GuildID        string `json:"guildID,omitempty"`
	ManageMessages bool   `json:"manageMessages,omitempty"`
	// ErrorEmbeds defaults to true. When false, structured error replies
	// are refused and fall back to plain text.
	ErrorEmbeds *bool `json:"errorEmbeds,omitempty"`
}

// PostMessageRequest is the body of POST /channels/{channelID}/messages.
type PostMessageRequest struct {
	ID       string `json:"id,omitempty"`
	GuildID  string `json:"guildID,omitempty"`
	AuthorID string `json:"authorID"`
	Content  string `json:"content"`
	Sync     bool   `json:"sync,omitempty"`
}

// EditMessageRequest is the body of PATCH /channels/{channelID}/messages/{messageID}.
type EditMessageRequest struct {
	Content string `json:"content"`
	Sync    bool   `json:"sync,omitempty"`
}

// MessageResponse describes an accepted message. Context and Replies are
// only filled for synchronous requests.
type MessageResponse struct {
	Message platform.Message        `json:"message"`
	Context *invocation.Snapshot    `json:"context,omitempty"`
	Replies []platform.StoredMessage `json:"replies,omitempty"`
}

// listChannels handles GET /channels
func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.platform.Channels())
}

// putChannel handles PUT /channels/{channelID}
func (s *Server) putChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	var req ChannelRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var opts []platform.ChannelOption
	if req.ManageMessages {
		opts = append(opts, platform.WithManageMessages())
	}
	if req.ErrorEmbeds != nil && !*req.ErrorEmbeds {
		opts = append(opts, platform.WithoutErrorEmbeds())
	}
	s.platform.AddChannel(channelID, req.GuildID, opts...)
	writeSuccess(w)
}

// listMessages handles GET /channels/{channelID}/messages
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	messages := s.platform.Messages(chi.URLParam(r, "channelID"))
	if messages == nil {
		messages = []platform.StoredMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// postMessage handles POST /channels/{channelID}/messages
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	var req PostMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AuthorID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "authorID is required")
		return
	}

	msg := s.platform.Receive(platform.Message{
		ID:        req.ID,
		ChannelID: channelID,
		GuildID:   req.GuildID,
		AuthorID:  req.AuthorID,
		Content:   req.Content,
	})
	e := event.Event{Type: event.MessageCreated, Data: event.MessageCreatedData{Message: msg}}

	if !req.Sync {
		if err := s.bus.Publish(e); err != nil {
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, MessageResponse{Message: msg})
		return
	}

	s.bus.PublishSync(r.Context(), e)
	writeJSON(w, http.StatusCreated, s.messageResponse(msg))
}

// editMessage handles PATCH /channels/{channelID}/messages/{messageID}
func (s *Server) editMessage(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	messageID := chi.URLParam(r, "messageID")

	var req EditMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	before, after, err := s.platform.Edit(channelID, messageID, req.Content)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	e := event.Event{Type: event.MessageEdited, Data: event.MessageEditedData{Before: before, After: after}}

	if !req.Sync {
		if err := s.bus.Publish(e); err != nil {
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, MessageResponse{Message: after})
		return
	}

	s.bus.PublishSync(r.Context(), e)
	writeJSON(w, http.StatusOK, s.messageResponse(after))
}

// messageResponse collects the cached context of msg and its live replies.
func (s *Server) messageResponse(msg platform.Message) MessageResponse {
	resp := MessageResponse{Message: msg}
	snap, ok := s.dispatcher.Cache().Get(msg.ID)
	if !ok {
		return resp
	}
	resp.Context = &snap
	resp.Replies = s.storedReplies(snap.Responses)
	return resp
}

// storedReplies resolves response IDs to the messages still present.
func (s *Server) storedReplies(ids []string) []platform.StoredMessage {
	var out []platform.StoredMessage
	for _, id := range ids {
		if stored, ok := s.platform.Get(id); ok && !stored.Deleted {
			out = append(out, stored)
		}
	}
	return out
}
