// Package discrepancy aligns local and external outcome distributions and
// measures how far apart they are.
package discrepancy

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ftarb/internal/domain"
)

// DefaultThreshold is the flagging threshold in percentage points.
const DefaultThreshold = 10.0

// rule reports whether a lowercased local and external label correspond.
type rule func(local, external string) bool

func bothContain(word string) rule {
	return func(l, e string) bool {
		return strings.Contains(l, word) && strings.Contains(e, word)
	}
}

// rules are tried in order; within a rule the first external entry wins.
var rules = []rule{
	func(l, e string) bool { return l == e },
	bothContain("no change"),
	bothContain("increase"),
	bothContain("decrease"),
}

// Align returns the external outcome corresponding to label, or false if no
// rule matches.
func Align(label string, external domain.Distribution) (domain.OutcomeProb, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	for _, r := range rules {
		for _, e := range external {
			if r(l, strings.ToLower(strings.TrimSpace(e.Label))) {
				return e, true
			}
		}
	}
	return domain.OutcomeProb{}, false
}

// Compare produces one comparison per local outcome that aligns with an
// external outcome of positive probability. Local order is preserved.
func Compare(local, external domain.Distribution) []domain.Comparison {
	out := make([]domain.Comparison, 0, len(local))
	for _, p := range local {
		e, ok := Align(p.Label, external)
		if !ok || e.Value <= 0 {
			continue
		}
		diff := p.Value - e.Value
		if diff < 0 {
			diff = -diff
		}
		out = append(out, domain.Comparison{
			Outcome:             p.Label,
			ExternalOutcome:     e.Label,
			FtProb:              Percent(p.Value),
			PolyProb:            Percent(e.Value),
			Diff:                Percent(diff),
			LocalProbability:    p.Value,
			ExternalProbability: e.Value,
			DiffValue:           diff,
		})
	}
	return out
}

// MaxDiff returns the largest difference in percentage points rounded to one
// decimal place. It is 0 for no comparisons.
func MaxDiff(cs []domain.Comparison) float64 {
	var largest float64
	for _, c := range cs {
		if c.DiffValue > largest {
			largest = c.DiffValue
		}
	}
	return decimal.NewFromFloat(largest).Shift(2).Round(1).InexactFloat64()
}

// Flagged reports whether maxDiff is strictly above threshold.
func Flagged(maxDiff, threshold float64) bool {
	return maxDiff > threshold
}

// Percent renders a probability as a percentage with one decimal place.
func Percent(p float64) string {
	return decimal.NewFromFloat(p).Shift(2).StringFixed(1) + "%"
}
