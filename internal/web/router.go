package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}

// NewRouter assembles the HTTP surface: session lifecycle, story
// inspection, operational endpoints and the event feed.
func NewRouter(h *Handlers, log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestLogger(log))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.StartSession)
			r.Post("/cleanup", h.CleanupSessions)
			r.Get("/{session_id}", h.GetSession)
			r.Post("/{session_id}/action", h.SessionAction)
			r.Delete("/{session_id}", h.CancelSession)
		})

		r.Route("/stories", func(r chi.Router) {
			r.Get("/", h.ListStories)
			r.Get("/{story_id}/validate", h.ValidateStory)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{account_id}/balance", h.AccountBalance)
			r.Get("/{account_id}/ledger", h.AccountLedger)
		})

		r.Get("/stats", h.GetStats)
		r.Get("/events", h.EventStream)
	})

	return r
}
