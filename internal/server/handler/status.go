package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports how this instance is configured.
type StatusHandler struct {
	Mode      string
	Method    string
	Threshold float64
	StartedAt time.Time
}

// GetStatus responds with the run mode, estimation method, threshold and
// uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"method":         h.Method,
		"threshold":      h.Threshold,
		"started_at":     h.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
