// Package matcher maps 42.space markets onto curated Polymarket comparables.
package matcher

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/alanyoungcy/ftarb/internal/domain"
)

// EventSource supplies live reference distributions keyed by Gamma slug.
type EventSource interface {
	EventDistribution(ctx context.Context, slug string) (domain.Distribution, error)
}

// Matcher resolves a market to a comparable using title heuristics.
// Lookups are safe for concurrent use; Refresh swaps in a new table.
type Matcher struct {
	mu     sync.RWMutex
	table  *domain.ComparableTable
	logger *slog.Logger
}

// New creates a matcher over table.
func New(table *domain.ComparableTable, logger *slog.Logger) *Matcher {
	if table == nil {
		table = &domain.ComparableTable{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		table:  table,
		logger: logger.With(slog.String("component", "matcher")),
	}
}

// Table returns the current table.
func (m *Matcher) Table() *domain.ComparableTable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table
}

// Match returns the comparable for a market, or nil if none applies.
//
// The lowercased title (or question) is checked against each key in table
// order; a key contained in the title or a title contained in a key wins.
// Failing that, fallbacks are tried in order.
func (m *Matcher) Match(market domain.NormalizedMarket) *domain.Comparable {
	title := strings.ToLower(strings.TrimSpace(market.DisplayTitle()))
	if title == "" {
		return nil
	}

	t := m.Table()
	for i := range t.Entries {
		key := t.Entries[i].Key
		if strings.Contains(title, key) || strings.Contains(key, title) {
			return &t.Entries[i]
		}
	}
	for _, fb := range t.Fallbacks {
		for _, kw := range fb.Keywords {
			if strings.Contains(title, kw) {
				if c, ok := t.Entry(fb.Key); ok {
					return c
				}
			}
		}
	}
	return nil
}

// Refresh replaces the outcome distribution of every entry that has a Gamma
// slug with live prices from src. Entries that fail to refresh keep their
// curated values. It returns the number of entries updated.
func (m *Matcher) Refresh(ctx context.Context, src EventSource) int {
	cur := m.Table()
	next := &domain.ComparableTable{
		Entries:   make([]domain.Comparable, len(cur.Entries)),
		Fallbacks: cur.Fallbacks,
	}
	copy(next.Entries, cur.Entries)

	updated := 0
	for i := range next.Entries {
		e := &next.Entries[i]
		if e.GammaSlug == "" {
			continue
		}
		d, err := src.EventDistribution(ctx, e.GammaSlug)
		if err != nil {
			m.logger.Warn("comparable refresh failed, keeping curated values",
				slog.String("key", e.Key),
				slog.String("slug", e.GammaSlug),
				slog.String("error", err.Error()),
			)
			continue
		}
		e.Outcomes = mergeLive(e.Outcomes, d)
		updated++
	}

	m.mu.Lock()
	m.table = next
	m.mu.Unlock()

	m.logger.Info("comparables refreshed", slog.Int("updated", updated), slog.Int("entries", len(next.Entries)))
	return updated
}

// mergeLive keeps the curated label spelling and order for outcomes the live
// event still lists, takes their live probabilities, and appends live
// outcomes the table does not know. Curated outcomes missing from the live
// event are dropped.
func mergeLive(curated, live domain.Distribution) domain.Distribution {
	out := make(domain.Distribution, 0, len(live))
	for _, c := range curated {
		if v, ok := live.Get(c.Label); ok {
			out = append(out, domain.OutcomeProb{Label: c.Label, Value: v})
		}
	}
	for _, l := range live {
		if _, ok := curated.Get(l.Label); !ok {
			out = append(out, l)
		}
	}
	return out
}
