package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wayneh-tw/linegem/internal/channels/line"
	httpmiddleware "github.com/wayneh-tw/linegem/internal/http/middleware"
	"github.com/wayneh-tw/linegem/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	LineAdapter    *line.Adapter
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/", liveness)

	if cfg.LineAdapter != nil {
		r.Route("/chat", func(chat chi.Router) {
			chat.Get("/", cfg.LineAdapter.HandleLiveness)
			chat.Post("/", cfg.LineAdapter.HandleWebhook)
			chat.Post("/callback", cfg.LineAdapter.HandleWebhook)
		})
	}

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}

func liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
