package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEvent represents an event as returned by the Polymarket Gamma API.
// A multi-outcome event is a group of binary markets, one per outcome.
type APIEvent struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Slug        string      `json:"slug"`
	Description string      `json:"description"`
	Active      flexBool    `json:"active"`
	Closed      bool        `json:"closed"`
	Markets     []APIMarket `json:"markets"`
	CreatedAt   string      `json:"created_at"`
	UpdatedAt   string      `json:"updated_at"`
}

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID             string   `json:"id"`
	Question       string   `json:"question"`
	ConditionID    string   `json:"conditionId"`
	Slug           string   `json:"slug"`
	GroupItemTitle string   `json:"groupItemTitle"`
	Active         flexBool `json:"active"`
	Closed         bool     `json:"closed"`
	Outcomes       string   `json:"outcomes"`      // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	OutcomePrices  string   `json:"outcomePrices"` // JSON-encoded: e.g. "[\"0.5\",\"0.5\"]"
	Volume         string   `json:"volume"`
}

// YesPrice returns the price of the "Yes" side, which Gamma lists first for
// the binary markets of a grouped event.
func (m *APIMarket) YesPrice() (float64, bool) {
	prices := decodeStringList(m.OutcomePrices)
	if len(prices) == 0 {
		return 0, false
	}
	idx := 0
	for i, o := range decodeStringList(m.Outcomes) {
		if strings.EqualFold(o, "yes") && i < len(prices) {
			idx = i
			break
		}
	}
	p, err := strconv.ParseFloat(prices[idx], 64)
	if err != nil {
		return 0, false
	}
	return p, true
}

// Label returns the outcome label the market represents within its event.
func (m *APIMarket) Label() string {
	if m.GroupItemTitle != "" {
		return m.GroupItemTitle
	}
	return m.Question
}

// decodeStringList parses Gamma's JSON-encoded string arrays. Malformed input
// yields nil.
func decodeStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
