package fortytwo

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexString accepts a JSON string, number or null and keeps its literal
// text. The API transmits fixed-point integers and token ids as either.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}

// String returns the literal text.
func (f FlexString) String() string { return string(f) }

// Int64 parses the value as a base-10 integer.
func (f FlexString) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(f), 10, 64)
	return n, err == nil
}

// APIQuestion is a question (market) record. Fields beyond question_id and
// title are only present when the query asked for them.
type APIQuestion struct {
	QuestionID          string                `json:"question_id"`
	Title               *string               `json:"title"`
	Description         *string               `json:"description"`
	CreatedAt           FlexString            `json:"created_at"`
	CurrentEndTimestamp FlexString            `json:"current_end_timestamp"`
	ResolvedAt          FlexString            `json:"resolved_at"`
	ResolutionSource    *string               `json:"resolution_source"`
	Status              *string               `json:"status"`
	Active              *bool                 `json:"active"`
	QuestionCategories  []APIQuestionCategory `json:"question_categories"`
	Outcomes            []APIOutcome          `json:"outcomes"`

	// Raw holds the undecoded record as received.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the record and keeps a copy of the raw bytes.
func (q *APIQuestion) UnmarshalJSON(b []byte) error {
	type alias APIQuestion
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*q = APIQuestion(a)
	q.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// APIQuestionCategory links a question to a category.
type APIQuestionCategory struct {
	CategoryID FlexString `json:"category_id"`
	Category   *struct {
		Name string `json:"name"`
	} `json:"category"`
}

// APIOutcome is an outcome reference on a question.
type APIOutcome struct {
	ID      FlexString `json:"id"`
	TokenID FlexString `json:"token_id"`
}

// APIOutcomeMetadata carries display data for an outcome token.
type APIOutcomeMetadata struct {
	ID          FlexString `json:"id"`
	QuestionID  string     `json:"question_id"`
	TokenID     FlexString `json:"token_id"`
	Symbol      *string    `json:"symbol"`
	Description *string    `json:"description"`
}

// APIOutcomeStat carries live per-outcome trading stats. Prices and volumes
// are fixed-point integers with 18 decimals.
type APIOutcomeStat struct {
	QuestionID    string     `json:"question_id"`
	TokenID       FlexString `json:"token_id"`
	MarketAddress string     `json:"market_address"`
	MarginalPrice FlexString `json:"marginal_price"`
	Collateral    FlexString `json:"collateral"`
	TotalVolume   FlexString `json:"total_volume"`
	BuyVolume     FlexString `json:"buy_volume"`
	SellVolume    FlexString `json:"sell_volume"`
	Traders       *int64     `json:"traders"`
	UpdatedAt     FlexString `json:"updated_at"`
}

// APIMarketStats carries aggregate market stats.
type APIMarketStats struct {
	QuestionID    string     `json:"question_id"`
	MarketAddress string     `json:"market_address"`
	TotalVolume   FlexString `json:"total_volume"`
	BuyVolume     FlexString `json:"buy_volume"`
	SellVolume    FlexString `json:"sell_volume"`
	Traders       *int64     `json:"traders"`
	Collateral    FlexString `json:"collateral"`
	UpdatedAt     FlexString `json:"updated_at"`
}

// APIQuestionStatus is a lightweight lifecycle view of a question.
type APIQuestionStatus struct {
	QuestionID          string     `json:"question_id"`
	Title               string     `json:"title"`
	Status              string     `json:"status"`
	CurrentEndTimestamp FlexString `json:"current_end_timestamp"`
}

// MarketDetail is the combined result of the market detail query.
type MarketDetail struct {
	Question        *APIQuestion         `json:"question_by_pk"`
	OutcomeMetadata []APIOutcomeMetadata `json:"outcome_metadata"`
	OutcomeStats    []APIOutcomeStat     `json:"current_outcome_stats"`
}

// Merge overlays the non-empty fields of detail onto base, the way a list
// entry is enriched with its detail record.
func Merge(base APIQuestion, detail *APIQuestion) APIQuestion {
	if detail == nil {
		return base
	}
	out := base
	if detail.QuestionID != "" {
		out.QuestionID = detail.QuestionID
	}
	if detail.Title != nil {
		out.Title = detail.Title
	}
	if detail.Description != nil {
		out.Description = detail.Description
	}
	if detail.CreatedAt != "" {
		out.CreatedAt = detail.CreatedAt
	}
	if detail.CurrentEndTimestamp != "" {
		out.CurrentEndTimestamp = detail.CurrentEndTimestamp
	}
	if detail.ResolvedAt != "" {
		out.ResolvedAt = detail.ResolvedAt
	}
	if detail.ResolutionSource != nil {
		out.ResolutionSource = detail.ResolutionSource
	}
	if detail.Status != nil {
		out.Status = detail.Status
	}
	if detail.Active != nil {
		out.Active = detail.Active
	}
	if detail.QuestionCategories != nil {
		out.QuestionCategories = detail.QuestionCategories
	}
	if detail.Outcomes != nil {
		out.Outcomes = detail.Outcomes
	}
	if len(detail.Raw) > 0 {
		out.Raw = mergeRaw(base.Raw, detail.Raw)
	}
	return out
}

// mergeRaw shallow-merges two JSON objects, b winning on conflicts.
func mergeRaw(a, b json.RawMessage) json.RawMessage {
	var ma, mb map[string]json.RawMessage
	if json.Unmarshal(a, &ma) != nil || ma == nil {
		return b
	}
	if json.Unmarshal(b, &mb) != nil {
		return a
	}
	for k, v := range mb {
		ma[k] = v
	}
	out, err := json.Marshal(ma)
	if err != nil {
		return b
	}
	return out
}
