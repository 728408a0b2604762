// Package probability derives implied outcome probabilities for a market.
//
// 42.space is pari-mutuel: a quoted price is not a probability. Volume share
// approximates the pool-implied probability; price normalization is a rougher
// proxy; implied payouts, when recorded for a comparable, are the closest to
// what the platform itself shows.
package probability

import (
	"fmt"

	"github.com/alanyoungcy/ftarb/internal/domain"
)

// Estimator turns a market into an ordered distribution. An empty result
// means the market carries no usable signal.
type Estimator interface {
	Method() domain.EstimationMethod
	Estimate(m domain.NormalizedMarket, ref *domain.Comparable) domain.Distribution
}

// New returns the estimator for method.
func New(method domain.EstimationMethod) (Estimator, error) {
	switch method {
	case domain.MethodVolumeShare:
		return VolumeShare{}, nil
	case domain.MethodPriceNormalized:
		return PriceNormalized{}, nil
	case domain.MethodImpliedPayout:
		return ImpliedPayout{}, nil
	default:
		return nil, fmt.Errorf("probability: unknown method %q", method)
	}
}

// VolumeShare assigns each outcome volume / total volume.
type VolumeShare struct{}

func (VolumeShare) Method() domain.EstimationMethod { return domain.MethodVolumeShare }

func (VolumeShare) Estimate(m domain.NormalizedMarket, _ *domain.Comparable) domain.Distribution {
	return share(m.Outcomes, func(o domain.Outcome) *float64 { return o.Volume })
}

// PriceNormalized assigns each outcome price / sum of prices.
type PriceNormalized struct{}

func (PriceNormalized) Method() domain.EstimationMethod { return domain.MethodPriceNormalized }

func (PriceNormalized) Estimate(m domain.NormalizedMarket, _ *domain.Comparable) domain.Distribution {
	return share(m.Outcomes, func(o domain.Outcome) *float64 { return o.Price })
}

// ImpliedPayout assigns 1 / payout using the multipliers recorded on the
// comparable. The API does not expose payouts, so markets without recorded
// values yield an empty distribution.
type ImpliedPayout struct{}

func (ImpliedPayout) Method() domain.EstimationMethod { return domain.MethodImpliedPayout }

func (ImpliedPayout) Estimate(_ domain.NormalizedMarket, ref *domain.Comparable) domain.Distribution {
	if ref == nil {
		return domain.Distribution{}
	}
	out := make(domain.Distribution, 0, len(ref.ImpliedPayouts))
	for _, p := range ref.ImpliedPayouts {
		if p.Value <= 0 {
			continue
		}
		out = append(out, domain.OutcomeProb{Label: p.Label, Value: 1 / p.Value})
	}
	return out
}

func share(outcomes []domain.Outcome, value func(domain.Outcome) *float64) domain.Distribution {
	var total float64
	for _, o := range outcomes {
		if v := value(o); v != nil {
			total += *v
		}
	}
	if total <= 0 {
		return domain.Distribution{}
	}

	out := make(domain.Distribution, 0, len(outcomes))
	for _, o := range outcomes {
		var v float64
		if p := value(o); p != nil {
			v = *p
		}
		out = append(out, domain.OutcomeProb{Label: o.Symbol, Value: v / total})
	}
	return out
}
