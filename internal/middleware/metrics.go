package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/metrics"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Metrics returns middleware that records Prometheus metrics. Static asset paths are folded into a single
// label to keep cardinality bounded.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch path {
	case "/", "/api/chat", "/api/widget", "/health", "/metrics":
		return path
	}
	if len(path) > len("/static/") && path[:len("/static/")] == "/static/" {
		return "/static/*"
	}
	return "other"
}
