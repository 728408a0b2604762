package domain

import "time"

// EstimationMethod selects how a market's implied probabilities are derived.
type EstimationMethod string

const (
	MethodVolumeShare     EstimationMethod = "volume_share"
	MethodPriceNormalized EstimationMethod = "price_normalized"
	MethodImpliedPayout   EstimationMethod = "implied_payout"
)

// Comparison pairs one local outcome probability with its aligned external
// probability. The string fields are percentages with one decimal place.
type Comparison struct {
	Outcome             string  `json:"outcome"`
	ExternalOutcome     string  `json:"externalOutcome"`
	FtProb              string  `json:"ftProb"`
	PolyProb            string  `json:"polyProb"`
	Diff                string  `json:"diff"`
	LocalProbability    float64 `json:"localProbability"`
	ExternalProbability float64 `json:"externalProbability"`
	DiffValue           float64 `json:"diffValue"`
}

// Opportunity is a market whose largest per-outcome difference exceeds the
// scan threshold.
type Opportunity struct {
	Market      NormalizedMarket `json:"ftMarket"`
	PolyURL     string           `json:"polyUrl"`
	Comparisons []Comparison     `json:"comparisons"`
	// MaxDiff is the largest difference in percentage points, rounded to one
	// decimal place.
	MaxDiff float64 `json:"maxDiff"`
}

// ScanSummary holds the counters of a scan run.
type ScanSummary struct {
	TotalMarkets   int `json:"totalMarkets"`
	LiquidMarkets  int `json:"liquidMarkets"`
	MatchedMarkets int `json:"matchedMarkets"`
	Opportunities  int `json:"opportunities"`
}

// ScanResult is the artifact produced by one scan run.
type ScanResult struct {
	RunID          string           `json:"runId"`
	Timestamp      time.Time        `json:"timestamp"`
	Method         EstimationMethod `json:"method"`
	Threshold      float64          `json:"threshold"`
	Snapshot       string           `json:"snapshot,omitempty"`
	SnapshotDigest string           `json:"snapshotDigest,omitempty"`
	Opportunities  []Opportunity    `json:"opportunities"`
	Summary        ScanSummary      `json:"summary"`
}
