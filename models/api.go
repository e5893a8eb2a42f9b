package models

// ErrorResponse wraps an error for API clients.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"` // "healthy" or "degraded"
	Uptime     string `json:"uptime"`
	ActiveRuns int    `json:"active_runs"`
	MaxRuns    int    `json:"max_runs"`
	Version    string `json:"version"`
}

// RunAccepted is returned when a run is queued.
type RunAccepted struct {
	ID     string    `json:"id"`
	Status RunStatus `json:"status"`
}
