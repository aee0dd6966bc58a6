package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w) })

	// Channels and messages
	r.Route("/channels", func(r chi.Router) {
		r.Get("/", s.listChannels)

		r.Route("/{channelID}", func(r chi.Router) {
			r.Put("/", s.putChannel)
			r.Get("/messages", s.listMessages)
			r.Post("/messages", s.postMessage)
			r.Patch("/messages/{messageID}", s.editMessage)
		})
	})

	// Commands
	r.Post("/invoke", s.invoke)
	r.Get("/commands", s.listCommands)
	r.Route("/modules", func(r chi.Router) {
		r.Get("/", s.listModules)
		r.Patch("/{name}", s.updateModule)
	})
	r.Get("/contexts/{messageID}", s.getContext)

	// Event streaming (SSE)
	r.Get("/event", s.allEvents)
}
