package domain

import "strings"

// OutcomeProb pairs an outcome label with a probability (or, for implied
// payouts, a payout multiplier). Slices of OutcomeProb keep upstream order,
// which the alignment rules depend on.
type OutcomeProb struct {
	Label string  `json:"label" toml:"label"`
	Value float64 `json:"value" toml:"value"`
}

// Distribution is an ordered outcome probability distribution.
type Distribution []OutcomeProb

// Sum returns the total probability mass.
func (d Distribution) Sum() float64 {
	var s float64
	for _, p := range d {
		s += p.Value
	}
	return s
}

// Get returns the probability for label (case-insensitive).
func (d Distribution) Get(label string) (float64, bool) {
	for _, p := range d {
		if strings.EqualFold(p.Label, label) {
			return p.Value, true
		}
	}
	return 0, false
}

// Comparable is a curated Polymarket event used as the external reference for
// a 42.space market.
type Comparable struct {
	Key       string       `json:"key"`
	URL       string       `json:"url"`
	GammaSlug string       `json:"gamma_slug,omitempty"`
	Outcomes  Distribution `json:"outcomes"`
	// ImpliedPayouts are payout multipliers read off the 42.space market page;
	// they feed the implied_payout estimation method.
	ImpliedPayouts Distribution `json:"implied_payouts,omitempty"`
}

// Fallback routes a title containing any of Keywords to the entry named Key.
type Fallback struct {
	Keywords []string `json:"keywords"`
	Key      string   `json:"key"`
}

// ComparableTable is the ordered lookup table consulted by the matcher.
type ComparableTable struct {
	Entries   []Comparable
	Fallbacks []Fallback
}

// Entry returns the entry with the given key.
func (t *ComparableTable) Entry(key string) (*Comparable, bool) {
	for i := range t.Entries {
		if t.Entries[i].Key == key {
			return &t.Entries[i], true
		}
	}
	return nil, false
}
