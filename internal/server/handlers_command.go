package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Hweary/cmdClient/internal/command"
	"github.com/Hweary/cmdClient/internal/dispatch"
	"github.com/Hweary/cmdClient/internal/invocation"
	"github.com/Hweary/cmdClient/internal/platform"
)

// CommandInfo describes a registered command.
type CommandInfo struct {
	*command.Command
	Module string `json:"module"`
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	Name     string   `json:"name"`
	Enabled  bool     `json:"enabled"`
	Ready    bool     `json:"ready"`
	Commands []string `json:"commands"`
}

// UpdateModuleRequest is the body of PATCH /modules/{name}.
type UpdateModuleRequest struct {
	Enabled bool `json:"enabled"`
}

// ContextResponse is the cached state of one message's invocation.
type ContextResponse struct {
	Snapshot invocation.Snapshot `json:"snapshot"`
	Running  bool                `json:"running"`
}

// InvokeRequest is the body of POST /invoke.
type InvokeRequest struct {
	ChannelID string `json:"channelID"`
	GuildID   string `json:"guildID,omitempty"`
	AuthorID  string `json:"authorID"`
	// Text is the command name and arguments, without a prefix.
	Text string `json:"text"`
}

// InvokeResponse reports the result of a synthetic invocation.
type InvokeResponse struct {
	dispatch.Result
	Outcome string                   `json:"outcome,omitempty"`
	Replies []platform.StoredMessage `json:"replies,omitempty"`
}

// listCommands handles GET /commands
func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	includeHidden := r.URL.Query().Get("hidden") == "true"

	out := []CommandInfo{}
	for _, cmd := range s.registry.Commands() {
		if cmd.Hidden && !includeHidden {
			continue
		}
		out = append(out, CommandInfo{Command: cmd, Module: cmd.Module().Name()})
	}
	writeJSON(w, http.StatusOK, out)
}

// listModules handles GET /modules
func (s *Server) listModules(w http.ResponseWriter, r *http.Request) {
	out := []ModuleInfo{}
	for _, m := range s.registry.Modules() {
		info := ModuleInfo{Name: m.Name(), Enabled: m.Enabled(), Ready: m.Ready(), Commands: []string{}}
		for _, cmd := range m.Commands() {
			info.Commands = append(info.Commands, cmd.Name)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// updateModule handles PATCH /modules/{name}
func (s *Server) updateModule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req UpdateModuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.registry.SetEnabled(name, req.Enabled); err != nil {
		if errors.Is(err, command.ErrModuleNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Module not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// getContext handles GET /contexts/{messageID}
func (s *Server) getContext(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	contexts := s.dispatcher.Cache()

	snap, ok := contexts.Get(messageID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No cached context for message")
		return
	}
	writeJSON(w, http.StatusOK, ContextResponse{Snapshot: snap, Running: contexts.IsRegistered(messageID)})
}

// invoke handles POST /invoke
func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ChannelID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "channelID and text are required")
		return
	}

	res := s.dispatcher.Invoke(r.Context(), req.ChannelID, req.GuildID, req.AuthorID, req.Text)
	if !res.Matched {
		writeErrorWithDetails(w, http.StatusNotFound, ErrCodeNotFound, "No command matches", map[string]any{"text": req.Text})
		return
	}

	resp := InvokeResponse{Result: res, Replies: s.storedReplies(res.Responses)}
	if !res.Skipped {
		resp.Outcome = res.Outcome.String()
	}
	writeJSON(w, http.StatusOK, resp)
}
