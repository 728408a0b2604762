package fortytwo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ftarb/internal/domain"
	"github.com/alanyoungcy/ftarb/internal/retry"
)

func newTestClient(t *testing.T, h http.HandlerFunc, attempts int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		Endpoint: srv.URL,
		Origin:   "https://www.42.space",
		Retry:    retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Kind: retry.Linear},
	}, nil)
}

func decodeRequest(t *testing.T, r *http.Request) graphqlRequest {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var req graphqlRequest
	require.NoError(t, json.Unmarshal(body, &req))
	return req
}

func TestClient_ListMarkets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "https://www.42.space", r.Header.Get("Origin"))

		req := decodeRequest(t, r)
		assert.Contains(t, req.Query, "home_market_list")
		assert.EqualValues(t, 20, req.Variables["limit"])
		assert.EqualValues(t, 40, req.Variables["offset"])

		_, _ = w.Write([]byte(`{"data":{"home_market_list":[
			{"question_id":"0xabc","title":"Fed decision in March 2026?"},
			{"question_id":"0xdef","title":null}
		]}}`))
	}, 1)

	markets, err := c.ListMarkets(context.Background(), 20, 40)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "0xabc", markets[0].QuestionID)
	require.NotNil(t, markets[0].Title)
	assert.Equal(t, "Fed decision in March 2026?", *markets[0].Title)
	assert.Nil(t, markets[1].Title)
	assert.JSONEq(t, `{"question_id":"0xabc","title":"Fed decision in March 2026?"}`, string(markets[0].Raw))
}

func TestClient_MarketDetail_DecodesMixedNumberEncodings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "0xabc", req.Variables["questionId"])
		_, _ = w.Write([]byte(`{"data":{
			"question_by_pk":{"question_id":"0xabc","title":"BoJ","outcomes":[{"id":"o1","token_id":1},{"id":"o2","token_id":"2"}]},
			"outcome_metadata":[{"token_id":1,"symbol":"No change"}],
			"current_outcome_stats":[{"token_id":"1","marginal_price":"500000000000000000","total_volume":1000000000000000000000,"traders":7}]
		}}`))
	}, 1)

	d, err := c.MarketDetail(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, d.Question)
	require.Len(t, d.Question.Outcomes, 2)
	assert.Equal(t, FlexString("1"), d.Question.Outcomes[0].TokenID)
	assert.Equal(t, FlexString("2"), d.Question.Outcomes[1].TokenID)
	assert.Equal(t, FlexString("500000000000000000"), d.OutcomeStats[0].MarginalPrice)
	assert.Equal(t, FlexString("1000000000000000000000"), d.OutcomeStats[0].TotalVolume)
	require.NotNil(t, d.OutcomeStats[0].Traders)
	assert.Equal(t, int64(7), *d.OutcomeStats[0].Traders)
}

func TestClient_GraphQLErrorIsRetriedThenPropagated(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"field 'nope' not found"}]}`))
	}, 3)

	_, err := c.ListMarkets(context.Background(), 10, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGraphQL)
	assert.Contains(t, err.Error(), "field 'nope' not found")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Non2xxRecoversOnRetry(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"current_market_stats":[{"question_id":"q1","total_volume":"0"}]}}`))
	}, 4)

	stats, err := c.MarketStats(context.Background(), []string{"q1"})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "q1", stats[0].QuestionID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Non2xxExhausted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, 2)

	_, err := c.ActiveQuestions(context.Background(), 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBadStatus)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestClient_EmptyIDListsSkipRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, 1)

	stats, err := c.MarketStats(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, stats)

	outcomes, err := c.OutcomeStats(context.Background(), []string{})
	require.NoError(t, err)
	assert.Nil(t, outcomes)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *mockLimiter) Wait(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func TestClient_WaitsOnRateLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"question_status":[{"question_id":"q","status":"live"}]}}`))
	}))
	defer srv.Close()

	lim := &mockLimiter{}
	lim.On("Wait", mock.Anything, "fortytwo:graphql").Return(nil).Once()

	c := NewClient(ClientConfig{Endpoint: srv.URL, Retry: retry.Policy{MaxAttempts: 1}, Limiter: lim}, nil)
	st, err := c.QuestionStatus(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, st, 1)
	assert.Equal(t, "live", st[0].Status)
	lim.AssertExpectations(t)
}

func TestClient_RateLimiterErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, 4)

	lim := &mockLimiter{}
	lim.On("Wait", mock.Anything, mock.Anything).Return(domain.ErrRateLimited).Once()
	c.limiter = lim

	_, err := c.ListMarkets(context.Background(), 1, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, int32(0), calls.Load())
	lim.AssertExpectations(t)
}

func TestMerge_DetailWins(t *testing.T) {
	var base, detail APIQuestion
	require.NoError(t, json.Unmarshal([]byte(`{"question_id":"q","title":"List title","extra":1}`), &base))
	require.NoError(t, json.Unmarshal([]byte(`{"question_id":"q","title":"Detail title","description":"d"}`), &detail))

	m := Merge(base, &detail)
	assert.Equal(t, "Detail title", *m.Title)
	assert.Equal(t, "d", *m.Description)
	assert.JSONEq(t, `{"question_id":"q","title":"Detail title","description":"d","extra":1}`, string(m.Raw))

	assert.Equal(t, base, Merge(base, nil))
}

func TestClient_MarketStatsByAddress(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Contains(t, req.Query, "market_address: { _in: $addresses }")
		assert.Equal(t, []any{"0xm1"}, req.Variables["addresses"])
		_, _ = w.Write([]byte(`{"data":{"current_market_stats":[{"question_id":"q1","market_address":"0xm1","total_volume":"1"}]}}`))
	}, 1)

	stats, err := c.MarketStatsByAddress(context.Background(), []string{"0xm1"})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "q1", stats[0].QuestionID)
}
