// Package ratelimit gates outbound scraping requests with a concurrency
// ceiling, a sliding one-minute request window and exponential backoff on
// failure streaks.
package ratelimit

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	window = time.Minute

	// minDelay is the floor applied to every Delay call, jitter included.
	minDelay = 500 * time.Millisecond

	maxBackoffExponent = 5
	maxMultiplier      = 10.0
	multiplierStep     = 1.5

	// pollInterval is the requested wait between CanAdmit polls in
	// ExecuteGated. Delay's floor still applies.
	pollInterval = 100 * time.Millisecond

	lowSuccessRate = 0.5
)

// Config controls the limiter baseline.
type Config struct {
	// MaxConcurrent is the active-request ceiling.
	MaxConcurrent int

	// RequestsPerMinute is the sliding-window ceiling.
	RequestsPerMinute int

	// BaseDelay is the delay between requests with no failures.
	BaseDelay time.Duration

	// MaxDelay caps ComputeDelay and the adaptive base delay.
	MaxDelay time.Duration

	// Jitter is the symmetric random bound added by Delay.
	Jitter time.Duration
}

// Preset returns the limiter configuration for a security level
// ("minimal", "standard", "strict", "stealth"). Unknown levels get
// "standard".
func Preset(level string, baseDelay time.Duration) Config {
	cfg := Config{
		MaxConcurrent:     3,
		RequestsPerMinute: 30,
		BaseDelay:         baseDelay,
		MaxDelay:          30 * time.Second,
		Jitter:            500 * time.Millisecond,
	}
	switch level {
	case "minimal":
		cfg.MaxConcurrent, cfg.RequestsPerMinute, cfg.Jitter = 5, 60, 250*time.Millisecond
	case "strict":
		cfg.MaxConcurrent, cfg.RequestsPerMinute, cfg.Jitter = 2, 15, time.Second
	case "stealth":
		cfg.MaxConcurrent, cfg.RequestsPerMinute, cfg.Jitter = 1, 8, 2*time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	return cfg
}

// Signal carries external detection results fed into AdaptToSignal.
type Signal struct {
	CaptchaDetected bool
	IPBlocked       bool

	// RecentSuccessRate is in [0,1]. nil means "no data".
	RecentSuccessRate *float64
}

// Stats is a snapshot of the limiter state.
type Stats struct {
	ActiveRequests      int           `json:"active_requests"`
	RequestsInWindow    int           `json:"requests_in_window"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	BackoffMultiplier   float64       `json:"backoff_multiplier"`
	BaseDelay           time.Duration `json:"base_delay"`
	RequestsPerMinute   int           `json:"requests_per_minute"`
	MaxConcurrent       int           `json:"max_concurrent"`
}

// Limiter is safe for concurrent use, although a single run drives it from
// one goroutine.
type Limiter struct {
	baseline Config

	mu         sync.Mutex
	cfg        Config
	timestamps []time.Time
	active     int
	failures   int
	multiplier float64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleeper replaces the context-aware sleep used by Delay.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// WithRand replaces the [0,1) source used for jitter.
func WithRand(r func() float64) Option {
	return func(l *Limiter) { l.rand = r }
}

// New creates a Limiter with the given baseline.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestsPerMinute < 1 {
		cfg.RequestsPerMinute = 1
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	l := &Limiter{
		baseline:   cfg,
		cfg:        cfg,
		multiplier: 1,
		now:        time.Now,
		sleep:      sleepContext,
		rand:       rand.Float64,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// CanAdmit reports whether a new request may start now. It does not
// mutate the limiter.
func (l *Limiter) CanAdmit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active < l.cfg.MaxConcurrent && l.inWindowLocked() < l.cfg.RequestsPerMinute
}

// Admit records a request start. Call only after CanAdmit returned true.
func (l *Limiter) Admit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
	l.timestamps = append(l.timestamps, l.now())
	l.active++
}

// Release records a request end.
func (l *Limiter) Release(success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active > 0 {
		l.active--
	}
	if success {
		l.failures = 0
		l.multiplier = 1
		return
	}
	l.failures++
	l.multiplier = math.Min(l.multiplier*multiplierStep, maxMultiplier)
}

// ComputeDelay returns the backoff-adjusted delay for the next request.
func (l *Limiter) ComputeDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.computeDelayLocked()
}

func (l *Limiter) computeDelayLocked() time.Duration {
	d := l.cfg.BaseDelay
	if l.failures > 0 {
		exp := min(l.failures, maxBackoffExponent)
		d = time.Duration(float64(d) * math.Pow(2, float64(exp)))
	}
	if d > l.cfg.MaxDelay {
		d = l.cfg.MaxDelay
	}
	return d
}

// Delay sleeps for override (or ComputeDelay when override <= 0) plus
// symmetric jitter, never less than 500ms. It returns ctx.Err() if the
// context ends first.
func (l *Limiter) Delay(ctx context.Context, override time.Duration) error {
	l.mu.Lock()
	d := override
	if d <= 0 {
		d = l.computeDelayLocked()
	}
	if j := l.cfg.Jitter; j > 0 {
		d += time.Duration((l.rand()*2 - 1) * float64(j))
	}
	l.mu.Unlock()

	if d < minDelay {
		d = minDelay
	}
	return l.sleep(ctx, d)
}

// ExecuteGated waits for admission, runs task and releases with the task's
// outcome. The task's error is returned unchanged.
func (l *Limiter) ExecuteGated(ctx context.Context, task func(ctx context.Context) error) error {
	for !l.CanAdmit() {
		if err := l.Delay(ctx, pollInterval); err != nil {
			return err
		}
	}
	l.Admit()
	err := task(ctx)
	l.Release(err == nil)
	return err
}

// AdaptToSignal tightens the limiter in response to anti-bot signals. It
// never loosens it; only Reset does.
func (l *Limiter) AdaptToSignal(s Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s.CaptchaDetected {
		l.cfg.RequestsPerMinute = max(1, l.cfg.RequestsPerMinute/2)
		l.cfg.BaseDelay = ratchet(l.cfg.BaseDelay, 2, l.cfg.MaxDelay)
	}
	if s.IPBlocked {
		l.cfg.BaseDelay = max(l.cfg.BaseDelay, l.cfg.MaxDelay)
		l.cfg.RequestsPerMinute = 1
	}
	if s.RecentSuccessRate != nil && *s.RecentSuccessRate < lowSuccessRate {
		l.cfg.BaseDelay = ratchet(l.cfg.BaseDelay, 1.5, l.cfg.MaxDelay/2)
	}
}

// ratchet scales d by factor up to limit without ever lowering d.
func ratchet(d time.Duration, factor float64, limit time.Duration) time.Duration {
	next := time.Duration(float64(d) * factor)
	if next > limit {
		next = limit
	}
	return max(d, next)
}

// Reset restores the baseline configuration and clears all state.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = l.baseline
	l.timestamps = nil
	l.active = 0
	l.failures = 0
	l.multiplier = 1
}

// Stats returns a snapshot of the limiter state.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		ActiveRequests:      l.active,
		RequestsInWindow:    l.inWindowLocked(),
		ConsecutiveFailures: l.failures,
		BackoffMultiplier:   l.multiplier,
		BaseDelay:           l.cfg.BaseDelay,
		RequestsPerMinute:   l.cfg.RequestsPerMinute,
		MaxConcurrent:       l.cfg.MaxConcurrent,
	}
}

func (l *Limiter) inWindowLocked() int {
	cutoff := l.now().Add(-window)
	n := 0
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

func (l *Limiter) pruneLocked() {
	cutoff := l.now().Add(-window)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	l.timestamps = l.timestamps[i:]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
