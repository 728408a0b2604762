// Package normalize maps raw 42.space records onto domain.NormalizedMarket.
//
// Normalization never fails: absent inputs produce null fields, and a record
// built only from list data is still syntactically complete.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ftarb/internal/domain"
	"github.com/alanyoungcy/ftarb/internal/platform/fortytwo"
)

const (
	PriceDecimals  = 18
	VolumeDecimals = 18
)

// Detail holds the optional per-outcome inputs.
type Detail struct {
	Metadata []fortytwo.APIOutcomeMetadata
	Stats    []fortytwo.APIOutcomeStat
}

// FromMarketDetail adapts a detail query result.
func FromMarketDetail(d fortytwo.MarketDetail) *Detail {
	return &Detail{Metadata: d.OutcomeMetadata, Stats: d.OutcomeStats}
}

// Market builds a normalized record from a question, optional aggregate
// stats and optional outcome detail.
func Market(q fortytwo.APIQuestion, stats *fortytwo.APIMarketStats, detail *Detail) domain.NormalizedMarket {
	metaByToken := make(map[string]fortytwo.APIOutcomeMetadata)
	statByToken := make(map[string]fortytwo.APIOutcomeStat)
	if detail != nil {
		for _, m := range detail.Metadata {
			metaByToken[m.TokenID.String()] = m
		}
		for _, s := range detail.Stats {
			statByToken[s.TokenID.String()] = s
		}
	}

	outcomes := make([]domain.Outcome, 0, len(q.Outcomes))
	prices := make(map[string]float64)
	for _, o := range q.Outcomes {
		tokenID := o.TokenID.String()
		meta, hasMeta := metaByToken[tokenID]
		stat, hasStat := statByToken[tokenID]

		out := domain.Outcome{
			ID:     o.ID.String(),
			Symbol: "Outcome " + tokenID,
		}
		if n, ok := o.TokenID.Int64(); ok {
			out.TokenID = n
		}
		if hasMeta {
			if meta.Symbol != nil && *meta.Symbol != "" {
				out.Symbol = *meta.Symbol
			}
			out.Description = nonEmpty(meta.Description)
		}
		if hasStat {
			out.Price = Scale(stat.MarginalPrice, PriceDecimals)
			out.Volume = Scale(stat.TotalVolume, VolumeDecimals)
			out.Traders = stat.Traders
			if out.Price != nil {
				prices[tokenID] = *out.Price
			}
		}
		outcomes = append(outcomes, out)
	}

	m := domain.NormalizedMarket{
		Platform:    domain.PlatformFortyTwo,
		MarketID:    q.QuestionID,
		ConditionID: q.QuestionID,
		Title:       nonEmpty(q.Title),
		Question:    nonEmpty(q.Title),
		Description: nonEmpty(q.Description),
		Outcomes:    outcomes,
		Timestamps: domain.Timestamps{
			CreatedAt:    Timestamp(q.CreatedAt),
			EndTimestamp: Timestamp(q.CurrentEndTimestamp),
			ResolvedAt:   Timestamp(q.ResolvedAt),
		},
		Resolution: domain.Resolution{
			Status: nonEmpty(q.Status),
			Source: nonEmpty(q.ResolutionSource),
		},
		Category: category(q.QuestionCategories),
		Raw:      raw(q),
	}
	if len(prices) > 0 {
		m.Prices = prices
	}

	if stats != nil {
		m.Volume = domain.Volume{
			Total: orZero(Scale(stats.TotalVolume, VolumeDecimals)),
			Buy:   orZero(Scale(stats.BuyVolume, VolumeDecimals)),
			Sell:  orZero(Scale(stats.SellVolume, VolumeDecimals)),
		}
		m.Traders = stats.Traders
		m.Collateral = Scale(stats.Collateral, VolumeDecimals)
		m.Timestamps.UpdatedAt = Timestamp(stats.UpdatedAt)
		m.MarketAddress = Address(stats.MarketAddress)
	}
	if m.MarketAddress == nil && detail != nil {
		for _, s := range detail.Stats {
			if a := Address(s.MarketAddress); a != nil {
				m.MarketAddress = a
				break
			}
		}
	}

	return m
}

// Scale converts a fixed-point integer literal to a float by dividing by
// 10^decimals. Empty or unparseable input yields nil.
func Scale(v fortytwo.FlexString, decimals int32) *float64 {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	f := d.Shift(-decimals).InexactFloat64()
	return &f
}

// Timestamp formats an upstream timestamp. Strings pass through unchanged;
// bare integers are read as Unix milliseconds and rendered in RFC3339.
func Timestamp(v fortytwo.FlexString) *string {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return nil
	}
	if ms, ok := v.Int64(); ok {
		out := time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
		return &out
	}
	return &s
}

// Address returns the EIP-55 checksummed form of a hex address. Values that
// are not hex addresses are returned as-is; empty input yields nil.
func Address(a string) *string {
	a = strings.TrimSpace(a)
	if a == "" {
		return nil
	}
	if common.IsHexAddress(a) {
		out := common.HexToAddress(a).Hex()
		return &out
	}
	return &a
}

// Summary counts markets by resolution status.
type Summary struct {
	Total     int `json:"total_markets"`
	Live      int `json:"live"`
	Finalised int `json:"finalised"`
}

// Summarize tallies live and finalised markets.
func Summarize(markets []domain.NormalizedMarket) Summary {
	s := Summary{Total: len(markets)}
	for _, m := range markets {
		switch {
		case m.StatusIs("live"):
			s.Live++
		case m.StatusIs("finalised"):
			s.Finalised++
		}
	}
	return s
}

func category(cats []fortytwo.APIQuestionCategory) *string {
	if len(cats) == 0 || cats[0].Category == nil || cats[0].Category.Name == "" {
		return nil
	}
	name := cats[0].Category.Name
	return &name
}

func raw(q fortytwo.APIQuestion) json.RawMessage {
	if len(q.Raw) > 0 {
		return q.Raw
	}
	b, err := json.Marshal(q)
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`{"question_id":%q}`, q.QuestionID))
	}
	return b
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

func orZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
