package domain

import "encoding/json"

// PlatformFortyTwo is the platform tag stamped on every normalized market.
const PlatformFortyTwo = "42space"

// NormalizedMarket is the canonical, platform-neutral market record written to
// snapshot files. Optional numeric and text fields are pointers so that absent
// upstream data serialises as JSON null rather than a zero sentinel.
type NormalizedMarket struct {
	Platform      string             `json:"platform"`
	MarketID      string             `json:"market_id"`
	ConditionID   string             `json:"condition_id"`
	Title         *string            `json:"title"`
	Question      *string            `json:"question"`
	Description   *string            `json:"description"`
	Outcomes      []Outcome          `json:"outcomes"`
	Prices        map[string]float64 `json:"prices"`
	Fees          map[string]float64 `json:"fees"`
	Timestamps    Timestamps         `json:"timestamps"`
	Resolution    Resolution         `json:"resolution"`
	Volume        Volume             `json:"volume"`
	Traders       *int64             `json:"traders"`
	Collateral    *float64           `json:"collateral"`
	MarketAddress *string            `json:"market_address"`
	Category      *string            `json:"category"`
	Raw           json.RawMessage    `json:"raw"`
}

// Outcome is a single tradable outcome within a market.
type Outcome struct {
	ID          string   `json:"id"`
	TokenID     int64    `json:"token_id"`
	Symbol      string   `json:"symbol"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Volume      *float64 `json:"volume"`
	Traders     *int64   `json:"traders"`
}

// Volume is the aggregate traded volume of a market. Unlike the other stats
// it defaults to zero when the upstream omits it.
type Volume struct {
	Total float64 `json:"total"`
	Buy   float64 `json:"buy"`
	Sell  float64 `json:"sell"`
}

// Timestamps holds RFC3339 lifecycle timestamps.
type Timestamps struct {
	CreatedAt    *string `json:"created_at"`
	EndTimestamp *string `json:"end_timestamp"`
	ResolvedAt   *string `json:"resolved_at"`
	UpdatedAt    *string `json:"updated_at"`
}

// Resolution describes settlement state.
type Resolution struct {
	Status *string `json:"status"`
	Source *string `json:"source"`
	Result *string `json:"result"`
}

// DisplayTitle returns the title, falling back to the question text.
func (m NormalizedMarket) DisplayTitle() string {
	if m.Title != nil && *m.Title != "" {
		return *m.Title
	}
	if m.Question != nil {
		return *m.Question
	}
	return ""
}

// OutcomeVolume sums the per-outcome volume, counting missing values as zero.
func (m NormalizedMarket) OutcomeVolume() float64 {
	var sum float64
	for _, o := range m.Outcomes {
		if o.Volume != nil {
			sum += *o.Volume
		}
	}
	return sum
}

// StatusIs reports whether the resolution status equals s.
func (m NormalizedMarket) StatusIs(s string) bool {
	return m.Resolution.Status != nil && *m.Resolution.Status == s
}
