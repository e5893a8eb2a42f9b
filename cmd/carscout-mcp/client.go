package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/use-agent/carscout/models"
	"github.com/use-agent/carscout/runner"
)

// apiClient talks to a carscout API server.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	poll    time.Duration
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		poll:    2 * time.Second,
	}
}

// do sends a request and decodes a 2xx body into out. Error bodies are
// returned as "[CODE] message".
func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "API request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}
	if resp.StatusCode >= 300 {
		var er models.ErrorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error != nil {
			return fmt.Errorf("[%s] %s", er.Error.Code, er.Error.Message)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	return eris.Wrap(json.Unmarshal(raw, out), "parse response")
}

func (c *apiClient) startRun(ctx context.Context, cfg models.RunConfig) (*models.RunAccepted, error) {
	var acc models.RunAccepted
	if err := c.do(ctx, http.MethodPost, "/api/v1/runs", cfg, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *apiClient) getRun(ctx context.Context, id string) (*runner.RunView, error) {
	var v runner.RunView
	if err := c.do(ctx, http.MethodGet, "/api/v1/runs/"+id, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *apiClient) listRuns(ctx context.Context, status string, limit int) ([]models.Run, error) {
	var out struct {
		Runs []models.Run `json:"runs"`
	}
	path := fmt.Sprintf("/api/v1/runs?limit=%d", limit)
	if status != "" {
		path += "&status=" + status
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// waitRun polls a run until it completes or fails.
func (c *apiClient) waitRun(ctx context.Context, id string) (*runner.RunView, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		v, err := c.getRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if v.Status == models.RunStatusCompleted || v.Status == models.RunStatusFailed {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
