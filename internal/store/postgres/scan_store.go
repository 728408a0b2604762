package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/ftarb/internal/domain"
)

// ScanStore implements domain.ScanStore using PostgreSQL.
type ScanStore struct {
	db DB
}

// NewScanStore creates a new ScanStore.
func NewScanStore(db DB) *ScanStore {
	return &ScanStore{db: db}
}

// Save writes the run header and its opportunities in one transaction. Saving
// a run id twice is an error.
func (s *ScanStore) Save(ctx context.Context, result domain.ScanResult) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save scan %s: %w", result.RunID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertRun = `
		INSERT INTO scan_runs (
			run_id, method, threshold, snapshot, snapshot_digest,
			total_markets, liquid_markets, matched_markets, opportunities, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	sum := result.Summary
	if _, err := tx.Exec(ctx, insertRun,
		result.RunID, string(result.Method), result.Threshold, result.Snapshot, result.SnapshotDigest,
		sum.TotalMarkets, sum.LiquidMarkets, sum.MatchedMarkets, sum.Opportunities, result.Timestamp,
	); err != nil {
		return fmt.Errorf("postgres: insert scan run %s: %w", result.RunID, err)
	}

	const insertOpp = `
		INSERT INTO scan_opportunities (run_id, market_id, title, poly_url, max_diff, comparisons, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, o := range result.Opportunities {
		comparisons, err := json.Marshal(o.Comparisons)
		if err != nil {
			return fmt.Errorf("postgres: marshal comparisons for %s: %w", o.Market.MarketID, err)
		}
		if _, err := tx.Exec(ctx, insertOpp,
			result.RunID, o.Market.MarketID, o.Market.DisplayTitle(), o.PolyURL, o.MaxDiff, comparisons, result.Timestamp,
		); err != nil {
			return fmt.Errorf("postgres: insert opportunity %s: %w", o.Market.MarketID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit scan %s: %w", result.RunID, err)
	}
	return nil
}

// ListRuns returns run headers, newest first.
func (s *ScanStore) ListRuns(ctx context.Context, opts domain.ListOpts) ([]domain.ScanRecord, error) {
	query, args := listClause(`
		SELECT run_id, method, threshold, snapshot, snapshot_digest,
		       total_markets, liquid_markets, matched_markets, opportunities, created_at
		FROM scan_runs WHERE 1=1`, nil, opts)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scan runs: %w", err)
	}
	defer rows.Close()

	var out []domain.ScanRecord
	for rows.Next() {
		var (
			r      domain.ScanRecord
			method string
		)
		if err := rows.Scan(
			&r.RunID, &method, &r.Threshold, &r.Snapshot, &r.SnapshotDigest,
			&r.Summary.TotalMarkets, &r.Summary.LiquidMarkets, &r.Summary.MatchedMarkets, &r.Summary.Opportunities,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan run row: %w", err)
		}
		r.Method = domain.EstimationMethod(method)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list scan runs rows: %w", err)
	}
	return out, nil
}

// ListOpportunities returns flagged markets across runs, newest first.
func (s *ScanStore) ListOpportunities(ctx context.Context, opts domain.ListOpts) ([]domain.OpportunityRecord, error) {
	query, args := listClause(`
		SELECT id, run_id, market_id, title, poly_url, max_diff, comparisons, created_at
		FROM scan_opportunities WHERE 1=1`, nil, opts)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.OpportunityRecord
	for rows.Next() {
		var (
			o           domain.OpportunityRecord
			comparisons []byte
		)
		if err := rows.Scan(&o.ID, &o.RunID, &o.MarketID, &o.Title, &o.PolyURL, &o.MaxDiff, &comparisons, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity row: %w", err)
		}
		if len(comparisons) > 0 {
			if err := json.Unmarshal(comparisons, &o.Comparisons); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal comparisons: %w", err)
			}
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities rows: %w", err)
	}
	return out, nil
}

var _ domain.ScanStore = (*ScanStore)(nil)
