package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ftarb/internal/domain"
	"github.com/alanyoungcy/ftarb/internal/normalize"
	"github.com/alanyoungcy/ftarb/internal/platform/fortytwo"
)

// Snapshot strategies.
const (
	StrategyDetail = "detail"
	StrategyBatch  = "batch"
)

// statusLookupLimit bounds the question_status page used to fill in the
// status of partial records.
const statusLookupLimit = 500

// MarketSource is the subset of the 42.space client the scraper uses.
type MarketSource interface {
	ListMarkets(ctx context.Context, limit, offset int) ([]fortytwo.APIQuestion, error)
	QuestionStatus(ctx context.Context, limit, offset int) ([]fortytwo.APIQuestionStatus, error)
	ActiveQuestions(ctx context.Context, limit int) ([]fortytwo.APIQuestion, error)
	MarketDetail(ctx context.Context, questionID string) (fortytwo.MarketDetail, error)
	MarketStats(ctx context.Context, questionIDs []string) ([]fortytwo.APIMarketStats, error)
	MarketStatsByAddress(ctx context.Context, addresses []string) ([]fortytwo.APIMarketStats, error)
	OutcomeStats(ctx context.Context, questionIDs []string) ([]fortytwo.APIOutcomeStat, error)
	OutcomeMetadata(ctx context.Context, questionIDs []string) ([]fortytwo.APIOutcomeMetadata, error)
}

// ScraperConfig holds the pagination and pacing parameters.
type ScraperConfig struct {
	PageSize     int
	Limit        int
	Offset       int
	RequestDelay time.Duration
	DetailDelay  time.Duration
	Strategy     string
	// Input, when set, is a saved market list (home_market_list entries)
	// read from Fs instead of paginating the API. Details are still fetched.
	Input string
	Fs    afero.Fs
}

// MarketScraper fetches 42.space markets and normalizes them.
type MarketScraper struct {
	source MarketSource
	cfg    ScraperConfig
	logger *slog.Logger
}

// NewMarketScraper creates a new MarketScraper.
func NewMarketScraper(source MarketSource, cfg ScraperConfig, logger *slog.Logger) *MarketScraper {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyDetail
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketScraper{
		source: source,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "market_scraper")),
	}
}

// Run produces normalized markets using the configured strategy. A saved
// input list always goes through the detail path.
func (s *MarketScraper) Run(ctx context.Context) ([]domain.NormalizedMarket, error) {
	if s.cfg.Input != "" {
		questions, err := LoadQuestions(s.cfg.Fs, s.cfg.Input)
		if err != nil {
			return nil, err
		}
		s.logger.Info("market list loaded", slog.String("file", s.cfg.Input), slog.Int("markets", len(questions)))
		return s.Detail(ctx, questions)
	}
	if s.cfg.Strategy == StrategyBatch {
		return s.Batch(ctx)
	}
	questions, err := s.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.Detail(ctx, questions)
}

// LoadQuestions reads a saved market list. Both a bare array and the GraphQL
// data object ({"home_market_list": [...]}) are accepted.
func LoadQuestions(fsys afero.Fs, file string) ([]fortytwo.APIQuestion, error) {
	data, err := afero.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read market list %s: %w", file, err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Markets []fortytwo.APIQuestion `json:"home_market_list"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
			return nil, fmt.Errorf("pipeline: decode market list %s: %w", file, err)
		}
		return wrapped.Markets, nil
	}
	var questions []fortytwo.APIQuestion
	if err := json.Unmarshal([]byte(trimmed), &questions); err != nil {
		return nil, fmt.Errorf("pipeline: decode market list %s: %w", file, err)
	}
	return questions, nil
}

// FetchAll paginates the home market list from the configured offset until
// Limit markets are collected, a page comes back short, or a page is empty.
func (s *MarketScraper) FetchAll(ctx context.Context) ([]fortytwo.APIQuestion, error) {
	var all []fortytwo.APIQuestion
	offset := s.cfg.Offset

	for len(all) < s.cfg.Limit {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("market scraper context cancelled: %w", err)
		}

		pageSize := min(s.cfg.PageSize, s.cfg.Limit-len(all))
		page, err := s.source.ListMarkets(ctx, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("fetching markets at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		s.logger.Info("fetched market page",
			slog.Int("page_size", len(page)),
			slog.Int("total", len(all)),
			slog.Int("offset", offset),
		)

		if len(page) < pageSize {
			break
		}
		offset += pageSize

		if len(all) < s.cfg.Limit {
			if err := sleep(ctx, s.cfg.RequestDelay); err != nil {
				return nil, fmt.Errorf("market scraper context cancelled: %w", err)
			}
		}
	}

	return all, nil
}

// Detail fetches detail and aggregate stats for each question in turn and
// normalizes it. A question whose fetch fails is emitted as a partial record
// built from its list entry. Cancellation aborts the whole run: nothing
// normalized so far is returned.
func (s *MarketScraper) Detail(ctx context.Context, questions []fortytwo.APIQuestion) ([]domain.NormalizedMarket, error) {
	out := make([]domain.NormalizedMarket, 0, len(questions))
	var partial []int

	for i, q := range questions {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("detail loop cancelled", slog.Int("done", i), slog.Int("total", len(questions)))
			return nil, fmt.Errorf("market scraper context cancelled: %w", err)
		}
		s.logger.Debug("processing market",
			slog.Int("index", i+1),
			slog.Int("total", len(questions)),
			slog.String("question_id", q.QuestionID),
		)

		m, err := s.detailOne(ctx, q)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("market scraper context cancelled: %w", ctxErr)
			}
			s.logger.Warn("market detail failed, keeping partial record",
				slog.String("question_id", q.QuestionID),
				slog.String("error", err.Error()),
			)
			m = normalize.Market(q, nil, nil)
			partial = append(partial, len(out))
		}
		out = append(out, m)

		if i < len(questions)-1 {
			if err := sleep(ctx, s.cfg.DetailDelay); err != nil {
				return nil, fmt.Errorf("market scraper context cancelled: %w", err)
			}
		}
	}

	if len(partial) > 0 {
		if err := s.fillStatus(ctx, out, partial); err != nil {
			return nil, err
		}
	}

	sum := normalize.Summarize(out)
	s.logger.Info("markets normalized",
		slog.Int("total", sum.Total),
		slog.Int("live", sum.Live),
		slog.Int("finalised", sum.Finalised),
	)
	return out, nil
}

// Batch fetches up to Limit active questions, then their aggregate stats,
// outcome stats and outcome metadata concurrently, and normalizes every
// question from the combined result.
func (s *MarketScraper) Batch(ctx context.Context) ([]domain.NormalizedMarket, error) {
	questions, err := s.source.ActiveQuestions(ctx, s.cfg.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetching active questions: %w", err)
	}

	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		if q.QuestionID != "" {
			ids = append(ids, q.QuestionID)
		}
	}

	var (
		marketStats []fortytwo.APIMarketStats
		outcomeStat []fortytwo.APIOutcomeStat
		metadata    []fortytwo.APIOutcomeMetadata
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		marketStats, err = s.source.MarketStats(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		outcomeStat, err = s.source.OutcomeStats(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		metadata, err = s.source.OutcomeMetadata(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching batch stats: %w", err)
	}

	statsByQ := make(map[string]*fortytwo.APIMarketStats, len(marketStats))
	for i := range marketStats {
		statsByQ[marketStats[i].QuestionID] = &marketStats[i]
	}
	if err := s.statsByAddress(ctx, questions, outcomeStat, statsByQ); err != nil {
		return nil, err
	}
	details := make(map[string]*normalize.Detail, len(questions))
	detailFor := func(id string) *normalize.Detail {
		d, ok := details[id]
		if !ok {
			d = &normalize.Detail{}
			details[id] = d
		}
		return d
	}
	for _, st := range outcomeStat {
		d := detailFor(st.QuestionID)
		d.Stats = append(d.Stats, st)
	}
	for _, md := range metadata {
		d := detailFor(md.QuestionID)
		d.Metadata = append(d.Metadata, md)
	}

	out := make([]domain.NormalizedMarket, 0, len(questions))
	for _, q := range questions {
		out = append(out, normalize.Market(q, statsByQ[q.QuestionID], details[q.QuestionID]))
	}

	s.logger.Info("batch snapshot built",
		slog.Int("questions", len(questions)),
		slog.Int("market_stats", len(marketStats)),
		slog.Int("outcome_stats", len(outcomeStat)),
	)
	return out, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// statsByAddress fills statsByQ for questions the question-id lookup missed,
// keyed by market contract address: the address reported on the question's
// outcome stats, else its first outcome id. A failed lookup is logged and
// leaves those questions without aggregate stats.
func (s *MarketScraper) statsByAddress(ctx context.Context, questions []fortytwo.APIQuestion, outcomeStat []fortytwo.APIOutcomeStat, statsByQ map[string]*fortytwo.APIMarketStats) error {
	addrByQ := make(map[string]string)
	for _, st := range outcomeStat {
		if st.MarketAddress != "" && addrByQ[st.QuestionID] == "" {
			addrByQ[st.QuestionID] = st.MarketAddress
		}
	}

	want := make(map[string]string) // lowercased address -> question id
	var addrs []string
	for _, q := range questions {
		if q.QuestionID == "" || statsByQ[q.QuestionID] != nil {
			continue
		}
		addr := addrByQ[q.QuestionID]
		if addr == "" && len(q.Outcomes) > 0 {
			addr = q.Outcomes[0].ID.String()
		}
		if addr == "" {
			continue
		}
		want[strings.ToLower(addr)] = q.QuestionID
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil
	}

	stats, err := s.source.MarketStatsByAddress(ctx, addrs)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("market scraper context cancelled: %w", ctxErr)
		}
		s.logger.Warn("market stats by address failed",
			slog.Int("addresses", len(addrs)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	for i := range stats {
		if qid, ok := want[strings.ToLower(stats[i].MarketAddress)]; ok {
			statsByQ[qid] = &stats[i]
		}
	}
	return nil
}

// fillStatus sets the resolution status of partial records from the
// question_status view. Only a cancelled context is returned as an error.
func (s *MarketScraper) fillStatus(ctx context.Context, out []domain.NormalizedMarket, partial []int) error {
	statuses, err := s.source.QuestionStatus(ctx, statusLookupLimit, 0)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("market scraper context cancelled: %w", ctxErr)
		}
		s.logger.Warn("question status lookup failed", slog.String("error", err.Error()))
		return nil
	}

	byQ := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Status != "" {
			byQ[st.QuestionID] = st.Status
		}
	}
	for _, i := range partial {
		if out[i].Resolution.Status != nil {
			continue
		}
		if st, ok := byQ[out[i].MarketID]; ok {
			out[i].Resolution.Status = &st
		}
	}
	return nil
}

func (s *MarketScraper) detailOne(ctx context.Context, q fortytwo.APIQuestion) (domain.NormalizedMarket, error) {
	detail, err := s.source.MarketDetail(ctx, q.QuestionID)
	if err != nil {
		return domain.NormalizedMarket{}, err
	}
	stats, err := s.source.MarketStats(ctx, []string{q.QuestionID})
	if err != nil {
		return domain.NormalizedMarket{}, err
	}

	var st *fortytwo.APIMarketStats
	if len(stats) > 0 {
		st = &stats[0]
	}
	merged := fortytwo.Merge(q, detail.Question)
	return normalize.Market(merged, st, normalize.FromMarketDetail(detail)), nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
