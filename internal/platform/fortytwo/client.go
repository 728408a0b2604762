// Package fortytwo is a GraphQL client for the 42.space market API.
package fortytwo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/ftarb/internal/domain"
	"github.com/alanyoungcy/ftarb/internal/metrics"
	"github.com/alanyoungcy/ftarb/internal/retry"
)

// DefaultEndpoint is the public 42.space GraphQL endpoint.
const DefaultEndpoint = "https://ft.42.space/v1/graphql"

// rateLimitKey is the limiter bucket shared by every instance hitting the API.
const rateLimitKey = "fortytwo:graphql"

// outcomeStatsLimit caps rows returned by the bulk outcome queries.
const outcomeStatsLimit = 500

// ClientConfig holds the parameters for the GraphQL client.
type ClientConfig struct {
	Endpoint string
	// Origin is sent as Origin/Referer; the API rejects some requests without it.
	Origin  string
	Timeout time.Duration
	Retry   retry.Policy
	// Limiter, when set, is waited on before every request.
	Limiter domain.RateLimiter
	Metrics *metrics.Metrics
}

// Client issues queries against the 42.space GraphQL API. Every request is
// retried according to the configured policy; no responses are cached.
type Client struct {
	endpoint   string
	origin     string
	httpClient *http.Client
	policy     retry.Policy
	limiter    domain.RateLimiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a new 42.space GraphQL client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   endpoint,
		origin:     cfg.Origin,
		httpClient: &http.Client{Timeout: timeout},
		policy:     cfg.Retry,
		limiter:    cfg.Limiter,
		metrics:    cfg.Metrics,
		logger:     logger.With(slog.String("component", "fortytwo")),
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ListMarkets returns one page of the home market list.
func (c *Client) ListMarkets(ctx context.Context, limit, offset int) ([]APIQuestion, error) {
	var result struct {
		Markets []APIQuestion `json:"home_market_list"`
	}
	vars := map[string]any{"limit": limit, "offset": offset}
	if err := c.query(ctx, "ListMarkets", queryListMarkets, vars, &result); err != nil {
		return nil, fmt.Errorf("fortytwo: list markets: %w", err)
	}
	return result.Markets, nil
}

// QuestionStatus returns one page of question lifecycle records.
func (c *Client) QuestionStatus(ctx context.Context, limit, offset int) ([]APIQuestionStatus, error) {
	var result struct {
		Status []APIQuestionStatus `json:"question_status"`
	}
	vars := map[string]any{"limit": limit, "offset": offset}
	if err := c.query(ctx, "QuestionStatus", queryQuestionStatus, vars, &result); err != nil {
		return nil, fmt.Errorf("fortytwo: question status: %w", err)
	}
	return result.Status, nil
}

// ActiveQuestions returns up to limit active questions, newest first, with
// their categories and outcome references.
func (c *Client) ActiveQuestions(ctx context.Context, limit int) ([]APIQuestion, error) {
	var result struct {
		Questions []APIQuestion `json:"question"`
	}
	if err := c.query(ctx, "ActiveQuestions", queryActiveQuestions, map[string]any{"limit": limit}, &result); err != nil {
		return nil, fmt.Errorf("fortytwo: active questions: %w", err)
	}
	return result.Questions, nil
}

// MarketDetail returns the question record, outcome metadata and outcome
// stats for a single question.
func (c *Client) MarketDetail(ctx context.Context, questionID string) (MarketDetail, error) {
	var detail MarketDetail
	vars := map[string]any{"questionId": questionID}
	if err := c.query(ctx, "MarketDetail", queryMarketDetail, vars, &detail); err != nil {
		return MarketDetail{}, fmt.Errorf("fortytwo: market detail %s: %w", questionID, err)
	}
	return detail, nil
}

// MarketStats returns aggregate stats for the given questions.
func (c *Client) MarketStats(ctx context.Context, questionIDs []string) ([]APIMarketStats, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}
	var result struct {
		Stats []APIMarketStats `json:"current_market_stats"`
	}
	vars := map[string]any{"questionIds": questionIDs}
	if err := c.query(ctx, "MarketStats", queryMarketStats, vars, &result); err != nil {
		return nil, fmt.Errorf("fortytwo: market stats: %w", err)
	}
	return result.Stats, nil
}

// MarketStatsByAddress returns aggregate stats for the given market
// contract addresses.
func (c *Client) MarketStatsByAddress(ctx context.Context, addresses []string) ([]APIMarketStats, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	var result struct {
		Stats []APIMarketStats `json:"current_market_stats"`
	}
	vars := map[string]any{"addresses": addresses}
	if err := c.query(ctx, "MarketStatsByAddress", queryMarketStatsByAddress, vars, &result); err != nil {
		return nil, fmt.Errorf("fortytwo: market stats by address: %w", err)
	}
	return result.Stats, nil
}

// OutcomeStats returns per-outcome stats for the given questions.
func (c *Client) OutcomeStats(ctx context.Context, questionIDs []string) ([]APIOutcomeStat, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}
	var result struct {
		Stats []APIOutcomeStat `json:"current_outcome_stats"`
	}
	vars := map[string]any{"questionIds": questionIDs, "limit": outcomeStatsLimit}
	if err := c.query(ctx, "OutcomeStats", queryOutcomeStats, vars, &result); err != nil {
		return nil, fmt.Errorf("fortytwo: outcome stats: %w", err)
	}
	return result.Stats, nil
}

// OutcomeMetadata returns outcome display metadata for the given questions.
func (c *Client) OutcomeMetadata(ctx context.Context, questionIDs []string) ([]APIOutcomeMetadata, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}
	var result struct {
		Metadata []APIOutcomeMetadata `json:"outcome_metadata"`
	}
	vars := map[string]any{"questionIds": questionIDs, "limit": outcomeStatsLimit}
	if err := c.query(ctx, "OutcomeMetadata", queryOutcomeMetadata, vars, &result); err != nil {
		return nil, fmt.Errorf("fortytwo: outcome metadata: %w", err)
	}
	return result.Metadata, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// query runs doQuery under the retry policy and decodes "data" into out.
func (c *Client) query(ctx context.Context, op, query string, variables map[string]any, out any) error {
	data, err := retry.Do(ctx, c.policy, c.logger.With(slog.String("op", op)), func(ctx context.Context) (json.RawMessage, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
				return nil, retry.Permanent(err)
			}
		}
		data, err := c.doQuery(ctx, query, variables)
		c.metrics.ObserveGraphQL(op, err)
		return data, err
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", op, err)
	}
	return nil
}

// doQuery executes a GraphQL query and returns the raw "data" field from the
// response. A non-2xx status or a non-empty errors array is a failure.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal graphql request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
		req.Header.Set("Referer", c.origin+"/")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", domain.ErrBadStatus, resp.StatusCode, truncate(body, 512))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphQL, gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
