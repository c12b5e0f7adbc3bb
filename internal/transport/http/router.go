package http

import (
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/feed-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/feed-service/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(h *Handler, wsServer *ws.Server, timeout time.Duration) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)

	// WS endpoint: без таймаута и обёрток ResponseWriter
	if wsServer != nil {
		r.Get("/ws", wsServer.HandleWS)
		r.Get("/ws/rooms/{room}", wsServer.HandleWS)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.RequestLogger)
		pr.Use(middlewareChi.Timeout(timeout))
		pr.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{HeaderNextCursor},
			MaxAge:         300,
		}))

		pr.Route("/rooms/{room}", func(rr chi.Router) {
			rr.Get("/messages", h.GetMessages)
			rr.Get("/polls", h.GetPolls)
			rr.Get("/history", h.GetHistory)
		})
		pr.Post("/messages", h.PostMessage)
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
