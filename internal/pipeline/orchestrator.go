package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ftarb/internal/domain"
	"github.com/alanyoungcy/ftarb/internal/matcher"
	"github.com/alanyoungcy/ftarb/internal/snapshot"
)

// Run modes handled by the orchestrator.
const (
	ModeSnapshot = "snapshot"
	ModeScan     = "scan"
	ModeFull     = "full"
)

// runLockKey guards a full snapshot+scan cycle across instances.
const runLockKey = "run"

// Scraper produces normalized markets.
type Scraper interface {
	Run(ctx context.Context) ([]domain.NormalizedMarket, error)
}

// SnapshotStore persists and loads snapshot files.
type SnapshotStore interface {
	Write(ctx context.Context, date string, markets []domain.NormalizedMarket) (string, error)
	Latest(ctx context.Context) (snapshot.Snapshot, error)
	Load(file string) (snapshot.Snapshot, error)
	WriteTo(file string, v any) error
}

// Scanner evaluates a snapshot.
type Scanner interface {
	Scan(ctx context.Context, snap snapshot.Snapshot) domain.ScanResult
}

// Reporter delivers results and failures.
type Reporter interface {
	Publish(ctx context.Context, result domain.ScanResult) error
	Failure(ctx context.Context, stage string, err error)
}

// ComparableRefresher reloads comparable distributions from a live source.
type ComparableRefresher interface {
	Refresh(ctx context.Context, src matcher.EventSource) int
}

// Deps are the collaborators of an Orchestrator. Locks, Refresher and Events
// are optional.
type Deps struct {
	Scraper   Scraper
	Snapshots SnapshotStore
	Scanner   Scanner
	Reporter  Reporter
	Locks     domain.LockManager
	Refresher ComparableRefresher
	Events    matcher.EventSource
}

// OrchestratorConfig holds run parameters.
type OrchestratorConfig struct {
	// Input, when set, is the snapshot file scanned instead of the latest.
	Input string
	// Output, when set, receives an extra copy of the run's product: the
	// market list for a snapshot run, the scan result otherwise.
	Output  string
	LockTTL time.Duration
}

// Orchestrator sequences snapshot generation, scanning and reporting.
type Orchestrator struct {
	deps   Deps
	cfg    OrchestratorConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(deps Deps, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "orchestrator")),
	}
}

// RunOnce executes one snapshot, scan or full cycle while holding the run
// lock. A failure is reported before it is returned.
func (o *Orchestrator) RunOnce(ctx context.Context, mode string) error {
	if o.deps.Locks != nil {
		unlock, err := o.deps.Locks.Acquire(ctx, runLockKey, o.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				o.logger.WarnContext(ctx, "another run holds the lock, skipping")
			}
			return fmt.Errorf("pipeline: acquire run lock: %w", err)
		}
		defer unlock()
	}

	start := time.Now()
	var (
		product any
		err     error
	)
	switch mode {
	case ModeSnapshot:
		var markets []domain.NormalizedMarket
		_, markets, err = o.snapshot(ctx)
		product = markets
	case ModeScan:
		product, err = o.Scan(ctx, o.cfg.Input)
	case ModeFull:
		var file string
		if file, _, err = o.snapshot(ctx); err == nil {
			product, err = o.Scan(ctx, file)
		}
	default:
		return fmt.Errorf("pipeline: unknown mode %q", mode)
	}
	if err != nil {
		return err
	}

	if o.cfg.Output != "" {
		if err := o.deps.Snapshots.WriteTo(o.cfg.Output, product); err != nil {
			return fmt.Errorf("pipeline: write output: %w", err)
		}
		o.logger.InfoContext(ctx, "output written", slog.String("file", o.cfg.Output))
	}

	o.logger.InfoContext(ctx, "run complete",
		slog.String("mode", mode),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Snapshot fetches and normalizes markets and writes today's snapshot. It
// returns the dated file path.
func (o *Orchestrator) Snapshot(ctx context.Context) (string, error) {
	path, _, err := o.snapshot(ctx)
	return path, err
}

// Scan loads input, or the latest snapshot when input is empty, scans it and
// publishes the result.
func (o *Orchestrator) Scan(ctx context.Context, input string) (domain.ScanResult, error) {
	snap, err := o.load(ctx, input)
	if err != nil {
		o.deps.Reporter.Failure(ctx, "scan", err)
		return domain.ScanResult{}, fmt.Errorf("pipeline: load snapshot: %w", err)
	}
	if len(snap.Markets) == 0 {
		o.logger.WarnContext(ctx, "no snapshot markets to scan", slog.String("input", input))
	}

	if o.deps.Refresher != nil && o.deps.Events != nil {
		n := o.deps.Refresher.Refresh(ctx, o.deps.Events)
		o.logger.InfoContext(ctx, "comparables refreshed", slog.Int("updated", n))
	}

	result := o.deps.Scanner.Scan(ctx, snap)
	if err := o.deps.Reporter.Publish(ctx, result); err != nil {
		o.deps.Reporter.Failure(ctx, "report", err)
		return result, fmt.Errorf("pipeline: publish: %w", err)
	}
	return result, nil
}

// RunLoop runs a full cycle immediately, then every interval and whenever
// trigger fires, until ctx is cancelled. trigger may be nil. Cycle failures
// are logged and do not stop the loop.
func (o *Orchestrator) RunLoop(ctx context.Context, interval time.Duration, trigger <-chan struct{}) error {
	o.logger.InfoContext(ctx, "watch loop starting", slog.Duration("interval", interval))

	o.cycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("watch loop stopped")
			return nil
		case <-ticker.C:
			o.cycle(ctx)
		case <-trigger:
			o.logger.InfoContext(ctx, "manual run triggered")
			o.cycle(ctx)
		}
	}
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (o *Orchestrator) cycle(ctx context.Context) {
	if err := o.RunOnce(ctx, ModeFull); err != nil && ctx.Err() == nil {
		o.logger.ErrorContext(ctx, "watch cycle failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) snapshot(ctx context.Context) (string, []domain.NormalizedMarket, error) {
	markets, err := o.deps.Scraper.Run(ctx)
	if err != nil {
		// A cancelled run writes nothing and is not reported as a failure.
		if ctx.Err() == nil {
			o.deps.Reporter.Failure(ctx, "snapshot", err)
		}
		return "", nil, fmt.Errorf("pipeline: snapshot: %w", err)
	}

	path, err := o.deps.Snapshots.Write(ctx, o.now().UTC().Format("2006-01-02"), markets)
	if err != nil {
		o.deps.Reporter.Failure(ctx, "snapshot", err)
		return "", nil, fmt.Errorf("pipeline: write snapshot: %w", err)
	}
	return path, markets, nil
}

func (o *Orchestrator) load(ctx context.Context, input string) (snapshot.Snapshot, error) {
	if input != "" {
		return o.deps.Snapshots.Load(input)
	}
	return o.deps.Snapshots.Latest(ctx)
}
