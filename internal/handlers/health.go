package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

type healthCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

type healthReport struct {
	Status    string                 `json:"status"`
	Checks    map[string]healthCheck `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

const healthTimeout = 2 * time.Second

// HandleHealth pings every configured dependency and reports 503 when any of them is down.
func (m Main) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(m.healthChecks))
	for name := range m.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	report := healthReport{
		Status:    "healthy",
		Checks:    make(map[string]healthCheck, len(names)),
		Timestamp: time.Now().UTC(),
	}
	status := http.StatusOK

	for _, name := range names {
		start := time.Now()
		if err := m.healthChecks[name].Ping(ctx); err != nil {
			m.logger.Warn().Err(err).Str("check", name).Msg("Health check failed")
			report.Checks[name] = healthCheck{Status: "unhealthy", Error: err.Error()}
			report.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		report.Checks[name] = healthCheck{
			Status:  "healthy",
			Latency: time.Since(start).String(),
		}
	}

	writeJSON(w, status, report)
}
