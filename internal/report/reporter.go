// Package report fans a finished scan out to its sinks: the JSON artifact,
// the latest-result cache, scan history, live subscribers and notifications.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/ftarb/internal/domain"
	"github.com/alanyoungcy/ftarb/internal/notify"
)

// ScanChannel is the pub/sub channel scan results are published on.
const ScanChannel = "ftarb:scans"

// ArtifactWriter persists the scan result file.
type ArtifactWriter interface {
	WriteScan(ctx context.Context, result domain.ScanResult) (string, error)
}

// Broadcaster pushes a payload to locally connected clients.
type Broadcaster interface {
	Broadcast(data []byte)
}

// Sinks lists the optional destinations of a scan result. Nil fields are
// skipped.
type Sinks struct {
	Artifacts ArtifactWriter
	Cache     domain.ScanCache
	Store     domain.ScanStore
	Audit     domain.AuditStore
	Bus       domain.SignalBus
	Hub       Broadcaster
	Notifier  *notify.Notifier
}

// Reporter publishes scan results.
type Reporter struct {
	sinks  Sinks
	logger *slog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(sinks Sinks, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		sinks:  sinks,
		logger: logger.With(slog.String("component", "reporter")),
	}
}

// Publish logs the summary and delivers result to every sink. Only a failure
// to write the artifact is returned; every other sink failure is logged.
func (r *Reporter) Publish(ctx context.Context, result domain.ScanResult) error {
	r.logSummary(ctx, result)

	if r.sinks.Artifacts != nil {
		path, err := r.sinks.Artifacts.WriteScan(ctx, result)
		if err != nil {
			return fmt.Errorf("report: write artifact: %w", err)
		}
		r.logger.InfoContext(ctx, "scan result written", slog.String("file", path))
	}

	if r.sinks.Cache != nil {
		r.sinkErr(ctx, "cache", r.sinks.Cache.SetLatest(ctx, result))
	}
	if r.sinks.Store != nil {
		r.sinkErr(ctx, "store", r.sinks.Store.Save(ctx, result))
	}
	if r.sinks.Audit != nil {
		r.sinkErr(ctx, "audit", r.sinks.Audit.Log(ctx, "scan_completed", map[string]any{
			"run_id":        result.RunID,
			"method":        string(result.Method),
			"snapshot":      result.Snapshot,
			"total_markets": result.Summary.TotalMarkets,
			"opportunities": result.Summary.Opportunities,
		}))
	}

	if r.sinks.Bus != nil || r.sinks.Hub != nil {
		payload, err := json.Marshal(result)
		if err != nil {
			r.sinkErr(ctx, "encode", err)
		} else {
			if r.sinks.Bus != nil {
				r.sinkErr(ctx, "bus", r.sinks.Bus.Publish(ctx, ScanChannel, payload))
			}
			if r.sinks.Hub != nil {
				r.sinks.Hub.Broadcast(payload)
			}
		}
	}

	if len(result.Opportunities) > 0 && r.sinks.Notifier.Enabled() {
		r.sinkErr(ctx, "notify", r.sinks.Notifier.Notify(ctx, notify.EventOpportunity, notify.ScanMessage(result)))
	}
	return nil
}

// Failure reports a failed run to the notifier and audit log.
func (r *Reporter) Failure(ctx context.Context, stage string, err error) {
	r.logger.ErrorContext(ctx, "run failed", slog.String("stage", stage), slog.String("error", err.Error()))
	if r.sinks.Audit != nil {
		r.sinkErr(ctx, "audit", r.sinks.Audit.Log(ctx, "run_failed", map[string]any{
			"stage": stage,
			"error": err.Error(),
		}))
	}
	if r.sinks.Notifier.Enabled() {
		r.sinkErr(ctx, "notify", r.sinks.Notifier.Notify(ctx, notify.EventError, notify.ErrorMessage(stage, err)))
	}
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (r *Reporter) logSummary(ctx context.Context, result domain.ScanResult) {
	r.logger.InfoContext(ctx, "scan summary",
		slog.String("run_id", result.RunID),
		slog.Int("total_markets", result.Summary.TotalMarkets),
		slog.Int("liquid_markets", result.Summary.LiquidMarkets),
		slog.Int("matched_markets", result.Summary.MatchedMarkets),
		slog.Int("opportunities", result.Summary.Opportunities),
	)
	for i, o := range result.Opportunities {
		r.logger.InfoContext(ctx, "opportunity",
			slog.Int("rank", i+1),
			slog.String("title", o.Market.DisplayTitle()),
			slog.String("poly_url", o.PolyURL),
			slog.Float64("max_diff", o.MaxDiff),
		)
	}
}

func (r *Reporter) sinkErr(ctx context.Context, sink string, err error) {
	if err == nil {
		return
	}
	r.logger.WarnContext(ctx, "sink failed",
		slog.String("sink", sink),
		slog.String("error", err.Error()),
	)
}
