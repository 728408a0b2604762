package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ScanRecord is the persisted header of a scan run.
type ScanRecord struct {
	RunID          string           `json:"runId"`
	Method         EstimationMethod `json:"method"`
	Threshold      float64          `json:"threshold"`
	Snapshot       string           `json:"snapshot"`
	SnapshotDigest string           `json:"snapshotDigest"`
	Summary        ScanSummary      `json:"summary"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// OpportunityRecord is a persisted flagged market.
type OpportunityRecord struct {
	ID          int64        `json:"id"`
	RunID       string       `json:"runId"`
	MarketID    string       `json:"marketId"`
	Title       string       `json:"title"`
	PolyURL     string       `json:"polyUrl"`
	MaxDiff     float64      `json:"maxDiff"`
	Comparisons []Comparison `json:"comparisons"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// ScanStore persists scan history.
type ScanStore interface {
	Save(ctx context.Context, result ScanResult) error
	ListRuns(ctx context.Context, opts ListOpts) ([]ScanRecord, error)
	ListOpportunities(ctx context.Context, opts ListOpts) ([]OpportunityRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
