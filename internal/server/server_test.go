package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ftarb/internal/domain"
	"github.com/alanyoungcy/ftarb/internal/metrics"
	"github.com/alanyoungcy/ftarb/internal/server/handler"
	"github.com/alanyoungcy/ftarb/internal/server/ws"
)

type fakeHistory struct {
	runs []domain.ScanRecord
	opts domain.ListOpts
	err  error
}

func (f *fakeHistory) Save(context.Context, domain.ScanResult) error { return nil }

func (f *fakeHistory) ListRuns(_ context.Context, o domain.ListOpts) ([]domain.ScanRecord, error) {
	f.opts = o
	return f.runs, f.err
}

func (f *fakeHistory) ListOpportunities(_ context.Context, o domain.ListOpts) ([]domain.OpportunityRecord, error) {
	f.opts = o
	return nil, f.err
}

type pingErr struct{ err error }

func (p pingErr) Ping(context.Context) error { return p.err }

func notFound(context.Context) (domain.ScanResult, error) { return domain.ScanResult{}, domain.ErrNotFound }

func newTestServer(t *testing.T, cfg Config, h Handlers, hub *ws.Hub) *httptest.Server {
	t.Helper()
	if h.Health == nil {
		h.Health = handler.NewHealthHandler(nil, nil)
	}
	if h.Scans == nil {
		h.Scans = handler.NewScanHandler(nil, nil, nil)
	}
	srv := httptest.NewServer(Routes(cfg, h, hub, nil))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, header http.Header) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Config{}, Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{"redis": pingErr{}}, nil),
	}, nil)
	code, body := getJSON(t, srv.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	srv = newTestServer(t, Config{}, Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{"postgres": pingErr{errors.New("down")}}, nil),
	}, nil)
	code, body = getJSON(t, srv.URL+"/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestLatestScan_FallsBackAcrossSources(t *testing.T) {
	fromFile := func(context.Context) (domain.ScanResult, error) {
		return domain.ScanResult{RunID: "from-file", Opportunities: []domain.Opportunity{}}, nil
	}
	srv := newTestServer(t, Config{}, Handlers{
		Scans: handler.NewScanHandler([]handler.LatestSource{handler.LatestFunc(notFound), handler.LatestFunc(fromFile)}, nil, nil),
	}, nil)

	code, body := getJSON(t, srv.URL+"/api/scan/latest", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "from-file", body["runId"])
}

func TestLatestScan_None(t *testing.T) {
	srv := newTestServer(t, Config{}, Handlers{
		Scans: handler.NewScanHandler([]handler.LatestSource{handler.LatestFunc(notFound)}, nil, nil),
	}, nil)
	code, _ := getJSON(t, srv.URL+"/api/scan/latest", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHistory(t *testing.T) {
	hist := &fakeHistory{runs: []domain.ScanRecord{{RunID: "r1", Method: domain.MethodVolumeShare}}}
	srv := newTestServer(t, Config{}, Handlers{Scans: handler.NewScanHandler(nil, hist, nil)}, nil)

	code, body := getJSON(t, srv.URL+"/api/scans/recent?limit=1000&offset=5", nil)
	assert.Equal(t, http.StatusOK, code)
	runs := body["runs"].([]any)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].(map[string]any)["runId"])
	assert.Equal(t, domain.ListOpts{Limit: 200, Offset: 5}, hist.opts)

	code, body = getJSON(t, srv.URL+"/api/opportunities/recent", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body["opportunities"])
	assert.Equal(t, domain.ListOpts{Limit: 20}, hist.opts)
}

func TestHistory_NotConfigured(t *testing.T) {
	srv := newTestServer(t, Config{}, Handlers{}, nil)
	code, _ := getJSON(t, srv.URL+"/api/scans/recent", nil)
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, Config{APIKey: "secret"}, Handlers{
		Scans: handler.NewScanHandler(nil, &fakeHistory{}, nil),
	}, nil)

	code, _ := getJSON(t, srv.URL+"/api/scans/recent", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = getJSON(t, srv.URL+"/api/scans/recent", http.Header{"Authorization": {"Bearer secret"}})
	assert.Equal(t, http.StatusOK, code)

	code, _ = getJSON(t, srv.URL+"/api/scans/recent", http.Header{"X-Api-Key": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = getJSON(t, srv.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Config{CORSOrigins: []string{"http://localhost:3000"}}, Handlers{}, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/scan/latest", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ObserveScan("volume_share", 0.1, 3, 2, 1, 1)
	srv := newTestServer(t, Config{}, Handlers{Metrics: m.Handler()}, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ftarb_scan_runs_total")
}

func TestTrigger(t *testing.T) {
	ch := make(chan struct{}, 1)
	srv := newTestServer(t, Config{}, Handlers{Pipeline: handler.NewPipelineHandler(ch, nil)}, nil)

	for _, queued := range []bool{true, false} {
		resp, err := http.Post(srv.URL+"/api/scan/trigger", "application/json", nil)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, queued, body["queued"])
	}
	assert.Len(t, ch, 1)
}

func TestWebSocketBroadcast(t *testing.T) {
	hub := ws.NewHub(nil, ws.Config{Mode: "watch"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := newTestServer(t, Config{}, Handlers{}, hub)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.TypeStatus, msg.Type)
	assert.Equal(t, 1, hub.Clients())

	hub.Broadcast([]byte(`{"runId":"r1"}`))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.TypeScanResult, msg.Type)
	assert.JSONEq(t, `{"runId":"r1"}`, string(msg.Payload))
}
