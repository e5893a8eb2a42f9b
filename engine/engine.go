package engine

import (
	"context"
	"time"
)

// Engine is the interface that all fetch engines must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "browser", "browser-stealth").
	Name() string

	// Fetch retrieves the page content for the given request. A page that
	// loads but is an anti-bot challenge is reported as a *BlockedError.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Stealth bool
}

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	EngineName string

	// Attempts lists the tiers tried before this result, including the
	// successful one. Set by the Escalator only.
	Attempts []Attempt
}

// Attempt is one engine tier tried for a URL.
type Attempt struct {
	Engine string
	Block  BlockType
	Err    error
}
