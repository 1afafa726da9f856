package main

import (
	"io/fs"
	"net/http"

	chatbotwidget "github.com/MegaGrindStone/chatbot-widget"
	"github.com/MegaGrindStone/chatbot-widget/internal/datastream"
	"github.com/MegaGrindStone/chatbot-widget/internal/handlers"
	"github.com/MegaGrindStone/chatbot-widget/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// newRouter wires the handlers behind the middleware stack. limiter may be nil, which leaves the chat
// endpoint unlimited.
func newRouter(m handlers.Main, limiter *middleware.RateLimiter, corsOrigins []string, logger zerolog.Logger) (*chi.Mux, error) {
	staticFS, err := fs.Sub(chatbotwidget.StaticFS, "static")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open static assets")
	}

	r := chi.NewRouter()

	// Metrics first so every request is counted
	r.Use(middleware.Metrics)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// The widget is embedded in third-party pages
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{
			datastream.HeaderName,
			handlers.MaxDurationHeader,
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"Retry-After",
		},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	r.Get("/", m.HandleHome)
	r.Get("/health", m.HandleHealth)
	r.Get("/api/widget", m.HandleWidgetConfig)

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.HandleFunc("/api/chat", m.HandleChat)
	})

	return r, nil
}
