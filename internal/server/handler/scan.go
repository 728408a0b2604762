package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/ftarb/internal/domain"
)

// LatestSource yields the most recent scan result.
type LatestSource interface {
	Latest(ctx context.Context) (domain.ScanResult, error)
}

// LatestFunc adapts a function to LatestSource.
type LatestFunc func(ctx context.Context) (domain.ScanResult, error)

// Latest calls f.
func (f LatestFunc) Latest(ctx context.Context) (domain.ScanResult, error) { return f(ctx) }

// ScanHandler serves scan results and history.
type ScanHandler struct {
	latest  []LatestSource
	history domain.ScanStore
	logger  *slog.Logger
}

// NewScanHandler creates a ScanHandler. Latest sources are tried in order;
// history may be nil, in which case the history endpoints answer 501.
func NewScanHandler(latest []LatestSource, history domain.ScanStore, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{latest: latest, history: history, logger: logger}
}

// GetLatest returns the newest scan result.
// GET /api/scan/latest
func (h *ScanHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	for _, src := range h.latest {
		res, err := src.Latest(r.Context())
		if err == nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "handler: latest scan source failed",
				slog.String("error", err.Error()),
			)
		}
	}
	writeError(w, http.StatusNotFound, "no scan result yet")
}

type listRunsResponse struct {
	Runs []domain.ScanRecord `json:"runs"`
}

// ListRuns returns recent scan runs.
// GET /api/scans/recent?limit=20&offset=0
func (h *ScanHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "scan history not configured")
		return
	}
	runs, err := h.history.ListRuns(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list scan runs failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list scan runs")
		return
	}
	if runs == nil {
		runs = []domain.ScanRecord{}
	}
	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs})
}

type listOpportunitiesResponse struct {
	Opportunities []domain.OpportunityRecord `json:"opportunities"`
}

// ListOpportunities returns recently flagged markets across runs.
// GET /api/opportunities/recent?limit=20&offset=0
func (h *ScanHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "scan history not configured")
		return
	}
	opps, err := h.history.ListOpportunities(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.OpportunityRecord{}
	}
	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Opportunities: opps})
}
