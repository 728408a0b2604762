package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ftarb/internal/domain"
)

const eventBody = `[{
	"id":"1","title":"Bank of Japan Decision in March?","slug":"bank-of-japan-decision-in-march","active":"true",
	"markets":[
		{"id":"a","groupItemTitle":"No Change","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.955\",\"0.045\"]"},
		{"id":"b","groupItemTitle":"25 bps increase","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.04\",\"0.96\"]"},
		{"id":"c","groupItemTitle":"Expired","closed":true,"outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0\",\"1\"]"},
		{"id":"d","question":"Unpriced?","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"garbage"}
	]
}]`

func TestEventDistribution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "bank-of-japan-decision-in-march", r.URL.Query().Get("slug"))
		_, _ = w.Write([]byte(eventBody))
	}))
	defer srv.Close()

	d, err := NewGammaClient(srv.URL).EventDistribution(context.Background(), "bank-of-japan-decision-in-march")
	require.NoError(t, err)
	assert.Equal(t, domain.Distribution{
		{Label: "no change", Value: 0.955},
		{Label: "25 bps increase", Value: 0.04},
	}, d)
}

func TestGetEventBySlug_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewGammaClient(srv.URL).GetEventBySlug(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetEventBySlug_StatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewGammaClient(srv.URL).GetEventBySlug(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestYesPrice_NoFirst(t *testing.T) {
	m := APIMarket{Outcomes: `["No","Yes"]`, OutcomePrices: `["0.7","0.3"]`}
	p, ok := m.YesPrice()
	require.True(t, ok)
	assert.Equal(t, 0.3, p)

	_, ok = (&APIMarket{}).YesPrice()
	assert.False(t, ok)
}
