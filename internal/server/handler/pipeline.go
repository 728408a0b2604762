package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// PipelineHandler queues manual scan runs for the watch loop.
type PipelineHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{}
}

// NewPipelineHandler creates a PipelineHandler. A nil channel means no
// watch loop is running and triggers are rejected.
func NewPipelineHandler(triggerCh chan<- struct{}, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{triggerCh: triggerCh, logger: logger}
}

// TriggerRun enqueues one full run. Requests made while a trigger is already
// pending are coalesced into it.
// POST /api/scan/trigger
func (h *PipelineHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.triggerCh == nil {
		writeError(w, http.StatusServiceUnavailable, "watch loop not running")
		return
	}

	queued := true
	select {
	case h.triggerCh <- struct{}{}:
	default:
		queued = false
	}
	h.logger.InfoContext(r.Context(), "handler: run trigger requested", slog.Bool("queued", queued))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"queued":       queued,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
