package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/carscout/config"
	"github.com/use-agent/carscout/engine"
	"github.com/use-agent/carscout/models"
	"github.com/use-agent/carscout/pipeline"
	"github.com/use-agent/carscout/ratelimit"
	"github.com/use-agent/carscout/runner"
	"github.com/use-agent/carscout/source"
	"github.com/use-agent/carscout/store"
)

const testKey = "test-key"

type staticEngine struct{ html string }

func (e staticEngine) Name() string { return "static" }

func (e staticEngine) Fetch(_ context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	return &engine.FetchResult{HTML: e.html, StatusCode: 200, FinalURL: req.URL, EngineName: "static"}, nil
}

const page = `<html><body><a>Honda Civic</a><h1>2024 Honda Civic</h1><table>
<tr><th>Starting MSRP</th><td>$24,650</td></tr>
<tr><th>Horsepower</th><td>158 hp</td></tr>
</table></body></html>`

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *runner.Manager) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	orch := pipeline.New(staticEngine{html: page},
		pipeline.WithCheckpointers(st),
		pipeline.WithSourceOptions(
			source.WithSources([]source.Source{{Name: "specs", URLTemplate: "https://specs.example/{make}/{model}"}}),
			source.WithDiscovery(source.Source{Name: "search", URLTemplate: "https://search.example/?q={query}"}),
		),
		pipeline.WithLimiterOptions(ratelimit.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })),
	)
	rm := runner.New(orch, st, nil, 2)
	t.Cleanup(func() { _ = rm.Shutdown(context.Background()) })

	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		Auth:      config.AuthConfig{Enabled: true, APIKeys: []string{testKey}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(NewRouter(ctx, rm, cfg, time.Now()))
	t.Cleanup(srv.Close)
	return srv, rm
}

func do(t *testing.T, method, url, body string, auth bool) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestHealth_NoAuth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/health", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h models.HealthResponse
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 2, h.MaxRuns)
	assert.Equal(t, models.Version, h.Version)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/metrics", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/runs", "", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), models.ErrCodeUnauthorized)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/runs", nil)
	req.Header.Set("X-API-Key", "wrong")
	r2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	r2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, r2.StatusCode)

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/v1/runs", nil)
	req.Header.Set("X-API-Key", testKey)
	r3, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	r3.Body.Close()
	assert.Equal(t, http.StatusOK, r3.StatusCode)
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 1}
	})

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/v1/runs", "", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/runs", "", true)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Contains(t, string(body), models.ErrCodeRateLimited)
}

func TestRunLifecycle(t *testing.T) {
	srv, rm := newTestServer(t, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/runs",
		`{"manufacturers":["Honda"],"maxResults":1,"rateLimitDelay":500}`, true)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var acc models.RunAccepted
	require.NoError(t, json.Unmarshal(body, &acc))
	require.NotEmpty(t, acc.ID)
	assert.Equal(t, models.RunStatusQueued, acc.Status)

	require.True(t, rm.Wait(acc.ID, 5*time.Second))

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/runs/"+acc.ID, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view runner.RunView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, models.RunStatusCompleted, view.Status)
	require.NotNil(t, view.Output)
	require.Len(t, view.Output.Data, 1)
	assert.Equal(t, "Civic", view.Output.Data[0].Model)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/runs/"+acc.ID+"/checkpoints", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"manufacturer":"Honda"`)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/runs?status=completed", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), acc.ID)
}

func TestPostRun_Invalid(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/runs", `{"maxResults":5000,"country":"XX"}`, true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var er models.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &er))
	assert.Equal(t, models.ErrCodeInvalidConfig, er.Error.Code)
	assert.Len(t, er.Error.Details, 2)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/runs", `{not json`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostRun_ExplicitZeroRejected(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/runs", `{"maxResults":0,"rateLimitDelay":0}`, true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var er models.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &er))
	assert.Equal(t, models.ErrCodeInvalidConfig, er.Error.Code)
	assert.Len(t, er.Error.Details, 2)
}

func TestGetRun_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/runs/nope", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), models.ErrCodeNotFound))

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/runs/nope/checkpoints", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
