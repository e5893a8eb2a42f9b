package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/carscout/models"
	"github.com/use-agent/carscout/runner"
)

// fakeAPI answers the run endpoints; GET reports "running" until polls
// reaches doneAfter.
func fakeAPI(t *testing.T, doneAfter int32) (*httptest.Server, *models.RunConfig) {
	t.Helper()
	var got models.RunConfig
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(models.RunAccepted{ID: "run-1", Status: models.RunStatusQueued})
	})
	mux.HandleFunc("GET /api/v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "run-1" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: &models.ErrorDetail{Code: models.ErrCodeNotFound, Message: "run not found"}})
			return
		}
		v := runner.RunView{Run: models.Run{ID: "run-1", Status: models.RunStatusRunning}}
		if polls.Add(1) > doneAfter {
			rec := models.NewCarRecord("Toyota", "Camry")
			rec.Price.StartingMSRP = models.Ptr(28400.0)
			rec.DataQuality = 80
			v.Status = models.RunStatusCompleted
			v.Output = &models.RunOutput{
				Data:     []models.CarRecord{rec},
				Metadata: models.RunMetadata{TotalRecords: 1, SecurityAudit: models.SecurityAuditInfo{Score: 100}},
			}
		} else {
			v.Live = &runner.Live{Audit: models.AuditSummary{TotalRequests: 3, SuccessRate: 100}}
		}
		_ = json.NewEncoder(w).Encode(v)
	})
	mux.HandleFunc("GET /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(map[string]any{"runs": []models.Run{{ID: "run-1", Status: models.RunStatusCompleted}}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &got
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestStartRun_Waits(t *testing.T) {
	srv, got := fakeAPI(t, 1)
	c := newAPIClient(srv.URL, "k")
	c.poll = time.Millisecond

	res, err := handleStartRun(c)(context.Background(), callTool(map[string]any{
		"manufacturers":       []any{"Toyota"},
		"max_results":         float64(3),
		"include_competitors": true,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	text := resultText(t, res)
	assert.Contains(t, text, "Run run-1: completed")
	assert.Contains(t, text, "- Toyota Camry, $28400, quality 80")
	assert.Equal(t, []string{"Toyota"}, got.Manufacturers)
	assert.Equal(t, 3, got.MaxResults)
	assert.True(t, got.IncludeCompetitors)
}

func TestStartRun_PacingAndEncryption(t *testing.T) {
	srv, got := fakeAPI(t, 100)
	res, err := handleStartRun(newAPIClient(srv.URL, "k"))(context.Background(), callTool(map[string]any{
		"rate_limit_delay": float64(750),
		"encrypt":          true,
		"wait":             false,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, 750, got.RateLimitDelay)
	assert.True(t, got.EncryptSensitiveData)
	assert.Zero(t, got.MaxResults)
}

func TestStartRun_NoWait(t *testing.T) {
	srv, _ := fakeAPI(t, 100)
	res, err := handleStartRun(newAPIClient(srv.URL, "k"))(context.Background(), callTool(map[string]any{"wait": false}))
	require.NoError(t, err)
	assert.Equal(t, "Run run-1: queued", resultText(t, res))
}

func TestGetRun(t *testing.T) {
	srv, _ := fakeAPI(t, 100)
	c := newAPIClient(srv.URL, "k")

	res, err := handleGetRun(c)(context.Background(), callTool(map[string]any{"id": "run-1"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "Requests: 3")

	res, err = handleGetRun(c)(context.Background(), callTool(map[string]any{"id": "other"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "[NOT_FOUND]")

	res, err = handleGetRun(c)(context.Background(), callTool(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestListRuns(t *testing.T) {
	srv, _ := fakeAPI(t, 0)
	res, err := handleListRuns(newAPIClient(srv.URL, "k"))(context.Background(), callTool(map[string]any{"limit": float64(5)}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "run-1")
}

func TestRenderRun_Failed(t *testing.T) {
	res := renderRun(&runner.RunView{Run: models.Run{ID: "x", Status: models.RunStatusFailed, Error: "boom"}})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "boom")
}

func TestNewServer(t *testing.T) {
	assert.NotNil(t, newServer(newAPIClient("http://127.0.0.1:0", "k")))
}
