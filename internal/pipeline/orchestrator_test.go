package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ftarb/internal/domain"
	"github.com/alanyoungcy/ftarb/internal/matcher"
	"github.com/alanyoungcy/ftarb/internal/snapshot"
)

type scraperFunc func(ctx context.Context) ([]domain.NormalizedMarket, error)

func (f scraperFunc) Run(ctx context.Context) ([]domain.NormalizedMarket, error) { return f(ctx) }

type recordingScanner struct {
	mu    sync.Mutex
	snaps []snapshot.Snapshot
}

func (s *recordingScanner) Scan(_ context.Context, snap snapshot.Snapshot) domain.ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return domain.ScanResult{RunID: "run", Snapshot: snap.Name, Summary: domain.ScanSummary{TotalMarkets: len(snap.Markets)}}
}

type recordingReporter struct {
	mu         sync.Mutex
	published  []domain.ScanResult
	failures   []string
	publishErr error
}

func (r *recordingReporter) Publish(_ context.Context, res domain.ScanResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, res)
	return r.publishErr
}

func (r *recordingReporter) Failure(_ context.Context, stage string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, stage)
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type countingLock struct{ acquired, released int }

func (l *countingLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.acquired++
	return func() { l.released++ }, nil
}

type countingRefresher struct{ calls int }

func (r *countingRefresher) Refresh(context.Context, matcher.EventSource) int {
	r.calls++
	return 1
}

type noEvents struct{}

func (noEvents) EventDistribution(context.Context, string) (domain.Distribution, error) {
	return nil, domain.ErrNotFound
}

func markets(ids ...string) []domain.NormalizedMarket {
	out := make([]domain.NormalizedMarket, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.NormalizedMarket{Platform: domain.PlatformFortyTwo, MarketID: id})
	}
	return out
}

func newOrchestrator(deps Deps, cfg OrchestratorConfig) (*Orchestrator, *snapshot.Store) {
	store := snapshot.NewStore(snapshot.StoreConfig{Fs: afero.NewMemMapFs(), Dir: "out"}, nil)
	if deps.Snapshots == nil {
		deps.Snapshots = store
	}
	o := NewOrchestrator(deps, cfg, nil)
	o.now = func() time.Time { return time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC) }
	return o, store
}

func TestRunOnce_Full(t *testing.T) {
	scanner := &recordingScanner{}
	reporter := &recordingReporter{}
	lock := &countingLock{}
	refresher := &countingRefresher{}

	o, store := newOrchestrator(Deps{
		Scraper:   scraperFunc(func(context.Context) ([]domain.NormalizedMarket, error) { return markets("a", "b"), nil }),
		Scanner:   scanner,
		Reporter:  reporter,
		Locks:     lock,
		Refresher: refresher,
		Events:    noEvents{},
	}, OrchestratorConfig{})

	require.NoError(t, o.RunOnce(context.Background(), ModeFull))

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"markets-normalized-2026-02-27.json"}, names)

	require.Len(t, scanner.snaps, 1)
	assert.Equal(t, "markets-normalized-2026-02-27.json", scanner.snaps[0].Name)
	assert.Len(t, scanner.snaps[0].Markets, 2)
	assert.NotEmpty(t, scanner.snaps[0].Digest)

	require.Len(t, reporter.published, 1)
	assert.Empty(t, reporter.failures)
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)
}

func TestRunOnce_ScanUsesInput(t *testing.T) {
	scanner := &recordingScanner{}
	o, store := newOrchestrator(Deps{Scanner: scanner, Reporter: &recordingReporter{}}, OrchestratorConfig{Input: "in/custom.json"})
	require.NoError(t, store.WriteTo("in/custom.json", markets("x")))

	require.NoError(t, o.RunOnce(context.Background(), ModeScan))
	require.Len(t, scanner.snaps, 1)
	assert.Equal(t, "custom.json", scanner.snaps[0].Name)
}

func TestRunOnce_ScanWithoutSnapshot(t *testing.T) {
	scanner := &recordingScanner{}
	reporter := &recordingReporter{}
	o, _ := newOrchestrator(Deps{Scanner: scanner, Reporter: reporter}, OrchestratorConfig{})

	require.NoError(t, o.RunOnce(context.Background(), ModeScan))
	require.Len(t, scanner.snaps, 1)
	assert.Empty(t, scanner.snaps[0].Markets)
	require.Len(t, reporter.published, 1)
}

func TestRunOnce_LockHeld(t *testing.T) {
	scanner := &recordingScanner{}
	o, _ := newOrchestrator(Deps{Scanner: scanner, Reporter: &recordingReporter{}, Locks: heldLock{}}, OrchestratorConfig{})

	err := o.RunOnce(context.Background(), ModeScan)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Empty(t, scanner.snaps)
}

func TestRunOnce_SnapshotFailureIsReported(t *testing.T) {
	reporter := &recordingReporter{}
	scanner := &recordingScanner{}
	o, _ := newOrchestrator(Deps{
		Scraper:  scraperFunc(func(context.Context) ([]domain.NormalizedMarket, error) { return nil, errors.New("upstream down") }),
		Scanner:  scanner,
		Reporter: reporter,
	}, OrchestratorConfig{})

	err := o.RunOnce(context.Background(), ModeFull)
	assert.ErrorContains(t, err, "upstream down")
	assert.Equal(t, []string{"snapshot"}, reporter.failures)
	assert.Empty(t, scanner.snaps)
}

func TestSnapshot_CancelledMidDetailWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := 0
	src := &fakeSource{
		questions: questions("a", "b", "c"),
		onDetail: func(string) error {
			n++
			if n == 2 {
				cancel()
				return ctx.Err()
			}
			return nil
		},
	}
	reporter := &recordingReporter{}
	scanner := &recordingScanner{}
	o, store := newOrchestrator(Deps{
		Scraper:  NewMarketScraper(src, ScraperConfig{PageSize: 10, Limit: 10}, nil),
		Scanner:  scanner,
		Reporter: reporter,
	}, OrchestratorConfig{})

	_, err := o.Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	names, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	latest, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, latest.Markets)
	assert.Empty(t, reporter.failures)
}

func TestRunOnce_FullCancelledSkipsScan(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		questions: questions("a", "b"),
		onDetail: func(id string) error {
			if id == "b" {
				cancel()
				return ctx.Err()
			}
			return nil
		},
	}
	scanner := &recordingScanner{}
	o, _ := newOrchestrator(Deps{
		Scraper:  NewMarketScraper(src, ScraperConfig{PageSize: 10, Limit: 10}, nil),
		Scanner:  scanner,
		Reporter: &recordingReporter{},
	}, OrchestratorConfig{})

	assert.ErrorIs(t, o.RunOnce(ctx, ModeFull), context.Canceled)
	assert.Empty(t, scanner.snaps)
}

func TestRunOnce_PublishFailure(t *testing.T) {
	reporter := &recordingReporter{publishErr: errors.New("disk full")}
	o, _ := newOrchestrator(Deps{Scanner: &recordingScanner{}, Reporter: reporter}, OrchestratorConfig{})

	err := o.RunOnce(context.Background(), ModeScan)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, []string{"report"}, reporter.failures)
}

func TestRunOnce_UnknownMode(t *testing.T) {
	o, _ := newOrchestrator(Deps{}, OrchestratorConfig{})
	assert.Error(t, o.RunOnce(context.Background(), "server"))
}

func TestRunLoop_StopsOnCancel(t *testing.T) {
	scanner := &recordingScanner{}
	o, _ := newOrchestrator(Deps{
		Scraper:  scraperFunc(func(context.Context) ([]domain.NormalizedMarket, error) { return markets("a"), nil }),
		Scanner:  scanner,
		Reporter: &recordingReporter{},
	}, OrchestratorConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	require.NoError(t, o.RunLoop(ctx, 40*time.Millisecond, nil))

	scanner.mu.Lock()
	defer scanner.mu.Unlock()
	assert.GreaterOrEqual(t, len(scanner.snaps), 2)
}

func TestRunLoop_Trigger(t *testing.T) {
	scanner := &recordingScanner{}
	o, _ := newOrchestrator(Deps{
		Scraper:  scraperFunc(func(context.Context) ([]domain.NormalizedMarket, error) { return markets("a"), nil }),
		Scanner:  scanner,
		Reporter: &recordingReporter{},
	}, OrchestratorConfig{})

	trigger := make(chan struct{}, 1)
	trigger <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, o.RunLoop(ctx, time.Hour, trigger))

	scanner.mu.Lock()
	defer scanner.mu.Unlock()
	assert.Len(t, scanner.snaps, 2)
}

func TestRunOnce_Output(t *testing.T) {
	o, store := newOrchestrator(Deps{
		Scraper:  scraperFunc(func(context.Context) ([]domain.NormalizedMarket, error) { return markets("a", "b"), nil }),
		Scanner:  &recordingScanner{},
		Reporter: &recordingReporter{},
	}, OrchestratorConfig{Output: "exports/markets.json"})

	require.NoError(t, o.RunOnce(context.Background(), ModeSnapshot))

	snap, err := store.Load("exports/markets.json")
	require.NoError(t, err)
	assert.Len(t, snap.Markets, 2)
}
