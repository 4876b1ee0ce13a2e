package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sharetube/watchparty/pkg/rest"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	if c.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		c.writeJSON(r.Context(), w, http.StatusOK, rest.Envelope{"status": "ok"})
	})
	r.Get("/ws/{roomId}", c.serveWS)

	r.Group(func(r chi.Router) {
		r.Use(c.rateLimitMw)

		r.Route("/room", func(r chi.Router) {
			r.Post("/create", c.createRoom)
			r.Post("/join", c.joinRoom)
			r.Post("/leave", c.leaveRoom)
			r.Get("/{roomId}", c.getRoom)
		})
		r.Route("/chat", func(r chi.Router) {
			r.Post("/send", c.sendMessage)
			r.Get("/{roomId}", c.listMessages)
		})
		r.Route("/video", func(r chi.Router) {
			r.Post("/sync", c.syncVideo)
			r.Get("/info", c.videoInfoHandler)
		})
	})

	return r
}
