package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Escalator tries engines one at a time, cheapest first, moving to the
// next tier when a tier fails or is blocked. The tier that last succeeded
// for a host is tried first on the next visit.
type Escalator struct {
	engines []Engine
	memory  *DomainMemory
}

// NewEscalator creates an Escalator over engines in escalation order.
// memory may be nil.
func NewEscalator(engines []Engine, memory *DomainMemory) *Escalator {
	return &Escalator{engines: engines, memory: memory}
}

// EscalationError is returned when every tier failed. Unwrap exposes the
// per-tier errors, so errors.As finds a *BlockedError when any tier was
// blocked.
type EscalationError struct {
	URL      string
	Attempts []Attempt
}

func (e *EscalationError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Engine, a.Err))
	}
	return fmt.Sprintf("escalator: all engines failed for %s (%s)", e.URL, strings.Join(parts, "; "))
}

func (e *EscalationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Name makes an Escalator usable wherever a single Engine is expected.
func (x *Escalator) Name() string { return "escalator" }

// Fetch walks the tiers in order and returns the first success, with every
// attempt recorded on the result.
func (x *Escalator) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	host := hostOf(req.URL)
	order := x.order(host)

	var attempts []Attempt
	for _, eng := range order {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{Engine: eng.Name(), Err: err})
			break
		}

		slog.Debug("engine starting", "engine", eng.Name(), "url", req.URL)
		result, err := eng.Fetch(ctx, req)
		if err == nil {
			attempts = append(attempts, Attempt{Engine: eng.Name()})
			result.Attempts = attempts
			if x.memory != nil {
				x.memory.Set(host, eng.Name())
			}
			slog.Debug("engine succeeded", "engine", eng.Name(), "url", req.URL, "tiers", len(attempts))
			return result, nil
		}

		a := Attempt{Engine: eng.Name(), Err: err}
		if be, ok := AsBlocked(err); ok {
			a.Block = be.Block
		}
		attempts = append(attempts, a)
		slog.Debug("engine failed, escalating", "engine", eng.Name(), "url", req.URL, "error", err)

		if x.memory != nil && x.memory.Get(host) == eng.Name() {
			x.memory.Delete(host)
		}
	}

	if len(attempts) == 0 {
		return nil, errors.New("escalator: no engines configured")
	}
	return nil, &EscalationError{URL: req.URL, Attempts: attempts}
}

// order puts the remembered engine for host first, keeping the rest in
// configured order.
func (x *Escalator) order(host string) []Engine {
	if x.memory == nil {
		return x.engines
	}
	remembered := x.memory.Get(host)
	if remembered == "" {
		return x.engines
	}
	out := make([]Engine, 0, len(x.engines))
	for _, eng := range x.engines {
		if eng.Name() == remembered {
			out = append(out, eng)
		}
	}
	if len(out) == 0 {
		return x.engines
	}
	for _, eng := range x.engines {
		if eng.Name() != remembered {
			out = append(out, eng)
		}
	}
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
