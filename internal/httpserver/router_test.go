package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiscout/internal/domain/scans"
	"aiscout/internal/engine"
	"aiscout/internal/store/memory"
)

type recordingMetrics struct {
	mu       sync.Mutex
	routes   []string
	rejected int
}

func (m *recordingMetrics) ObserveHTTP(method, route string, code int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, method+" "+route)
}

func (m *recordingMetrics) QueueRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

type harness struct {
	srv     *httptest.Server
	store   *memory.Store
	queue   *engine.Queue
	metrics *recordingMetrics
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newHarness wires a service whose queue is never started, so started scans
// stay queued and the lease stays held.
func newHarness(t *testing.T, queueSize int, opts ...Option) *harness {
	t.Helper()
	store := memory.New()
	eng := engine.New(store, engine.Settings{}, engine.WithLogger(quiet()))
	q, err := engine.NewQueue(queueSize, 1, eng.RunJob, quiet())
	require.NoError(t, err)
	svc := engine.NewService(store, eng, engine.WithQueue(q), engine.WithServiceLogger(quiet()))

	m := &recordingMetrics{}
	all := append([]Option{
		WithLogger(quiet()),
		WithMetrics(m, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		})),
	}, opts...)
	srv := httptest.NewServer(NewRouter(svc, all...))
	t.Cleanup(srv.Close)
	return &harness{srv: srv, store: store, queue: q, metrics: m}
}

func (h *harness) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func (h *harness) createConfig(t *testing.T, tenant, target string) scans.Configuration {
	t.Helper()
	resp, body := h.do(t, http.MethodPost, "/v1/"+tenant+"/scan-configs", `{"target":"`+target+`","access_token":"tok"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var c scans.Configuration
	require.NoError(t, json.Unmarshal(body, &c))
	return c
}

func TestCreateAndGetConfiguration(t *testing.T) {
	h := newHarness(t, 4)
	c := h.createConfig(t, "acme", "https://github.com/orgs/openai")
	assert.Equal(t, "openai", c.Target)
	assert.Equal(t, scans.StatusIdle, c.Status)

	resp, body := h.do(t, http.MethodGet, "/v1/acme/scan-configs/"+c.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "tok", "access token must never be serialized")
	var view map[string]any
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, true, view["has_credential"])

	resp, _ = h.do(t, http.MethodGet, "/v1/other/scan-configs/"+c.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "tenants are isolated")

	resp, body = h.do(t, http.MethodGet, "/v1/acme/scan-configs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []scans.Configuration
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)
}

func TestCreateConfiguration_Validation(t *testing.T) {
	h := newHarness(t, 4)
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"missing target", `{"access_token":"x"}`},
		{"unknown field", `{"target":"acme","extra":1}`},
		{"repository instead of account", `{"target":"acme/repo"}`},
		{"malformed json", `{"target":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(t, http.MethodPost, "/v1/acme/scan-configs", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
			assert.Contains(t, string(body), `"error"`)
		})
	}
}

func TestStartScan(t *testing.T) {
	h := newHarness(t, 4)
	c := h.createConfig(t, "acme", "openai")

	resp, body := h.do(t, http.MethodPost, "/v1/acme/scan-configs/"+c.ID+"/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var receipt engine.StartReceipt
	require.NoError(t, json.Unmarshal(body, &receipt))
	assert.Equal(t, c.ID, receipt.ConfigurationID)
	assert.NotEmpty(t, receipt.RunID)
	assert.Equal(t, scans.StatusScanning, receipt.Status)
	assert.Equal(t, 1, h.queue.Len())

	resp, _ = h.do(t, http.MethodPost, "/v1/acme/scan-configs/"+c.ID+"/start", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/v1/acme/scan-configs/missing/start", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartScan_QueueFull(t *testing.T) {
	h := newHarness(t, 1)
	first := h.createConfig(t, "acme", "one")
	second := h.createConfig(t, "acme", "two")

	resp, _ := h.do(t, http.MethodPost, "/v1/acme/scan-configs/"+first.ID+"/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/v1/acme/scan-configs/"+second.ID+"/start", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "30", resp.Header.Get("Retry-After"))
	assert.Equal(t, 1, h.metrics.rejected)

	got, err := h.store.GetConfiguration(context.Background(), "acme", second.ID)
	require.NoError(t, err)
	assert.Equal(t, scans.StatusFailed, got.Status, "rejected start releases the lease")
}

func TestResultsSummariesAndTracking(t *testing.T) {
	h := newHarness(t, 4)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, name := range []string{"acme/ml", "acme/docs"} {
		require.NoError(t, h.store.SaveResult(ctx, &scans.Result{
			ID: "r-" + strings.TrimPrefix(name, "acme/"), TenantID: "acme", ConfigurationID: "cfg", RunID: "run-1",
			RepositoryName: name, HasAIUsage: i == 0, ScanDate: now,
		}))
	}
	require.NoError(t, h.store.SaveSummary(ctx, &scans.Summary{
		ID: "s1", TenantID: "acme", ConfigurationID: "cfg", RunID: "run-1",
		TotalRepositories: 2, RepositoriesWithAI: 1, Status: scans.StatusCompleted, ScanDate: now,
	}))

	resp, body := h.do(t, http.MethodGet, "/v1/acme/scan-results?config_id=cfg&run_id=run-1&limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var results []scans.Result
	require.NoError(t, json.Unmarshal(body, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "acme/docs", results[0].RepositoryName, "newest first")

	resp, _ = h.do(t, http.MethodGet, "/v1/acme/scan-results?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/v1/acme/scan-summaries?config_id=cfg", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sums []scans.Summary
	require.NoError(t, json.Unmarshal(body, &sums))
	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].RepositoriesWithAI)

	resp, body = h.do(t, http.MethodGet, "/v1/nobody/scan-summaries", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", strings.TrimSpace(string(body)))

	resp, _ = h.do(t, http.MethodPost, "/v1/acme/scan-results/r-ml/track", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	tracked, err := h.store.ListResults(ctx, scans.ResultFilter{TenantID: "acme", RunID: "run-1"})
	require.NoError(t, err)
	for _, r := range tracked {
		assert.Equal(t, r.RepositoryName == "acme/ml", r.AddedToTracking, r.RepositoryName)
	}

	resp, _ = h.do(t, http.MethodPost, "/v1/acme/scan-results/missing/track", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type checkFunc func(context.Context) error

func (f checkFunc) Check(ctx context.Context) error { return f(ctx) }

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, 1)
	resp, body := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"healthy"`)

	resp, body = h.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "# metrics")

	h.metrics.mu.Lock()
	defer h.metrics.mu.Unlock()
	assert.Contains(t, h.metrics.routes, "GET /health")

	down := newHarness(t, 1, WithHealthCheck("database", checkFunc(func(context.Context) error {
		return errors.New("connection refused")
	})))
	resp, body = down.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "connection refused")
}

func TestCORS(t *testing.T) {
	h := newHarness(t, 1, WithCORS([]string{"https://dash.example.com"}))
	req, err := http.NewRequest(http.MethodOptions, h.srv.URL+"/v1/acme/scan-configs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://dash.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), time.Second, quiet())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
