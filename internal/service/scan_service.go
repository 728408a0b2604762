package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/ftarb/internal/discrepancy"
	"github.com/alanyoungcy/ftarb/internal/domain"
	"github.com/alanyoungcy/ftarb/internal/metrics"
	"github.com/alanyoungcy/ftarb/internal/probability"
	"github.com/alanyoungcy/ftarb/internal/snapshot"
)

// ComparableMatcher resolves a market to its external comparable.
type ComparableMatcher interface {
	Match(m domain.NormalizedMarket) *domain.Comparable
}

// ScanConfig holds the tunable parameters of a scan.
type ScanConfig struct {
	Threshold    float64
	MinLiquidity float64
	Method       domain.EstimationMethod
}

// ScanService compares every liquid market of a snapshot with its curated
// Polymarket comparable and flags large probability gaps.
type ScanService struct {
	cfg       ScanConfig
	estimator probability.Estimator
	matcher   ComparableMatcher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewScanService creates a ScanService. It fails only for an unknown
// estimation method.
func NewScanService(cfg ScanConfig, matcher ComparableMatcher, m *metrics.Metrics, logger *slog.Logger) (*ScanService, error) {
	if cfg.Method == "" {
		cfg.Method = domain.MethodVolumeShare
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = discrepancy.DefaultThreshold
	}
	est, err := probability.New(cfg.Method)
	if err != nil {
		return nil, fmt.Errorf("scan service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanService{
		cfg:       cfg,
		estimator: est,
		matcher:   matcher,
		metrics:   m,
		logger:    logger.With(slog.String("component", "scanner")),
		now:       time.Now,
	}, nil
}

// Liquid reports whether a market has more than minVolume, either in its
// aggregate stats or summed across outcomes.
func Liquid(m domain.NormalizedMarket, minVolume float64) bool {
	return m.Volume.Total > minVolume || m.OutcomeVolume() > minVolume
}

// Scan evaluates a snapshot. Unmatched markets and markets without
// comparable outcomes are logged and skipped; a scan never fails on
// individual markets.
func (s *ScanService) Scan(ctx context.Context, snap snapshot.Snapshot) domain.ScanResult {
	start := s.now()
	result := domain.ScanResult{
		RunID:          uuid.NewString(),
		Timestamp:      start.UTC(),
		Method:         s.estimator.Method(),
		Threshold:      s.cfg.Threshold,
		Snapshot:       snap.Name,
		SnapshotDigest: snap.Digest,
		Opportunities:  []domain.Opportunity{},
	}
	result.Summary.TotalMarkets = len(snap.Markets)

	s.logger.InfoContext(ctx, "scan started",
		slog.String("run_id", result.RunID),
		slog.String("method", string(result.Method)),
		slog.String("snapshot", snap.Name),
		slog.Int("markets", len(snap.Markets)),
	)

	for _, m := range snap.Markets {
		if !Liquid(m, s.cfg.MinLiquidity) {
			continue
		}
		result.Summary.LiquidMarkets++

		opp, matched, flagged := s.evaluate(ctx, m)
		if matched {
			result.Summary.MatchedMarkets++
		}
		if flagged {
			result.Opportunities = append(result.Opportunities, opp)
		}
	}
	result.Summary.Opportunities = len(result.Opportunities)

	s.metrics.ObserveScan(string(result.Method), s.now().Sub(start).Seconds(),
		result.Summary.TotalMarkets, result.Summary.LiquidMarkets,
		result.Summary.MatchedMarkets, result.Summary.Opportunities)

	s.logger.InfoContext(ctx, "scan complete",
		slog.String("run_id", result.RunID),
		slog.Int("total", result.Summary.TotalMarkets),
		slog.Int("liquid", result.Summary.LiquidMarkets),
		slog.Int("matched", result.Summary.MatchedMarkets),
		slog.Int("opportunities", result.Summary.Opportunities),
	)
	return result
}

// evaluate matches, estimates and compares one market. The opportunity is
// only meaningful when flagged is true.
func (s *ScanService) evaluate(ctx context.Context, m domain.NormalizedMarket) (opp domain.Opportunity, matched, flagged bool) {
	title := m.DisplayTitle()
	log := s.logger.With(slog.String("market_id", m.MarketID), slog.String("title", title))

	ref := s.matcher.Match(m)
	if ref == nil {
		log.DebugContext(ctx, "no polymarket match")
		return domain.Opportunity{}, false, false
	}

	local := s.estimator.Estimate(m, ref)
	comparisons := discrepancy.Compare(local, ref.Outcomes)
	if len(comparisons) == 0 {
		log.InfoContext(ctx, "no comparable outcomes", slog.String("comparable", ref.Key))
		return domain.Opportunity{}, true, false
	}

	for _, c := range comparisons {
		log.DebugContext(ctx, "outcome compared",
			slog.String("outcome", c.Outcome),
			slog.String("local", c.FtProb),
			slog.String("polymarket", c.PolyProb),
			slog.String("diff", c.Diff),
		)
	}

	maxDiff := discrepancy.MaxDiff(comparisons)
	if !discrepancy.Flagged(maxDiff, s.cfg.Threshold) {
		log.InfoContext(ctx, "checked", slog.Float64("max_diff", maxDiff))
		return domain.Opportunity{}, true, false
	}

	log.WarnContext(ctx, "opportunity",
		slog.Float64("max_diff", maxDiff),
		slog.String("poly_url", ref.URL),
	)
	return domain.Opportunity{
		Market:      m,
		PolyURL:     ref.URL,
		Comparisons: comparisons,
		MaxDiff:     maxDiff,
	}, true, true
}
