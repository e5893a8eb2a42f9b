package models

import (
	"encoding/json"
	"time"
)

// RunConfig is the payload for POST /api/v1/runs and the input of a
// pipeline run.
type RunConfig struct {
	// VehicleType narrows model discovery (e.g. "sedan", "suv").
	// Default: "all".
	VehicleType string `json:"vehicleType"`

	// MaxResults caps the number of records in the output. Default: 50.
	MaxResults int `json:"maxResults,omitempty"`

	// Country is the market to scrape (ISO-like code). Default: "US".
	Country string `json:"country"`

	// SecurityLevel picks the rate limiter preset. Default: "standard".
	SecurityLevel string `json:"securityLevel"`

	// RateLimitDelay is the base delay between requests in milliseconds.
	// Default: 2000.
	RateLimitDelay int `json:"rateLimitDelay,omitempty"`

	// Manufacturers overrides the default manufacturer list.
	Manufacturers []string `json:"manufacturers,omitempty"`

	IncludeCompetitors   bool `json:"includeCompetitors,omitempty"`
	EncryptSensitiveData bool `json:"encryptSensitiveData,omitempty"`
	AnonymizeData        bool `json:"anonymizeData,omitempty"`

	// zeroed marks numeric fields a JSON payload set to 0 explicitly.
	// Defaults leaves those alone so validation can reject them.
	zeroed zeroFields
}

type zeroFields uint8

const (
	zeroMaxResults zeroFields = 1 << iota
	zeroRateLimitDelay
)

// UnmarshalJSON decodes a run config, remembering which numeric fields
// were sent as 0 rather than omitted.
func (c *RunConfig) UnmarshalJSON(data []byte) error {
	type plain RunConfig
	if err := json.Unmarshal(data, (*plain)(c)); err != nil {
		return err
	}
	var present struct {
		MaxResults     *int `json:"maxResults"`
		RateLimitDelay *int `json:"rateLimitDelay"`
	}
	if err := json.Unmarshal(data, &present); err != nil {
		return err
	}
	c.zeroed = 0
	if present.MaxResults != nil && *present.MaxResults == 0 {
		c.zeroed |= zeroMaxResults
	}
	if present.RateLimitDelay != nil && *present.RateLimitDelay == 0 {
		c.zeroed |= zeroRateLimitDelay
	}
	return nil
}

// DefaultManufacturers is used when a run does not name any.
var DefaultManufacturers = []string{
	"Toyota", "Honda", "Ford", "Chevrolet", "Tesla",
	"BMW", "Mercedes-Benz", "Audi", "Hyundai", "Kia",
}

// Defaults applies default values to unset fields. Numeric fields decoded
// from an explicit JSON 0 count as set.
func (c *RunConfig) Defaults() {
	if c.VehicleType == "" {
		c.VehicleType = "all"
	}
	if c.MaxResults == 0 && c.zeroed&zeroMaxResults == 0 {
		c.MaxResults = 50
	}
	if c.Country == "" {
		c.Country = "US"
	}
	if c.SecurityLevel == "" {
		c.SecurityLevel = "standard"
	}
	if c.RateLimitDelay == 0 && c.zeroed&zeroRateLimitDelay == 0 {
		c.RateLimitDelay = 2000
	}
	if len(c.Manufacturers) == 0 {
		c.Manufacturers = append([]string(nil), DefaultManufacturers...)
	}
}

// Checkpoint is written after each manufacturer is processed.
type Checkpoint struct {
	RunID        string    `json:"run_id,omitempty"`
	Manufacturer string    `json:"manufacturer"`
	Processed    int       `json:"processed"`
	Total        int       `json:"total"`
	Timestamp    time.Time `json:"timestamp"`
}

// RunStatus is the lifecycle state of a stored run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is a persisted pipeline run.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Config    RunConfig  `json:"config"`
	Output    *RunOutput `json:"output,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
