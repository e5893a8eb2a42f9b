// Package audit keeps the append-only security event ledger of a run and
// derives its summary and incident thresholds.
package audit

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/carscout/models"
)

const (
	requestWindow  = time.Minute
	trailMaxEvents = 100
)

// Config holds the advisory ceilings checked after every event.
type Config struct {
	MaxRequestsPerMinute int
	MaxIncidents         int
}

// DefaultConfig returns the ceilings used when none are configured.
func DefaultConfig() Config {
	return Config{MaxRequestsPerMinute: 30, MaxIncidents: 10}
}

// Monitor is one run's audit ledger. It never blocks or rejects a caller;
// thresholds only produce further events. Safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	cfg       Config
	now       func() time.Time
	sessionID string
	start     time.Time

	events    []models.SecurityEvent
	incidents []models.SecurityEvent

	requests int
	blocked  int
	retries  int
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithConfig overrides DefaultConfig. Non-positive fields keep the default.
func WithConfig(cfg Config) Option {
	return func(m *Monitor) {
		if cfg.MaxRequestsPerMinute > 0 {
			m.cfg.MaxRequestsPerMinute = cfg.MaxRequestsPerMinute
		}
		if cfg.MaxIncidents > 0 {
			m.cfg.MaxIncidents = cfg.MaxIncidents
		}
	}
}

// New starts a session and logs its session_start event.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		cfg:       DefaultConfig(),
		now:       time.Now,
		sessionID: uuid.NewString(),
	}
	for _, o := range opts {
		o(m)
	}
	m.start = m.now()
	m.LogEvent(EventSessionStart, map[string]any{"start_time": m.start.UTC().Format(time.RFC3339)})
	return m
}

// SessionID identifies this ledger.
func (m *Monitor) SessionID() string { return m.sessionID }

// LogEvent appends an event with sanitized details and returns its ID.
func (m *Monitor) LogEvent(t EventType, details map[string]any) string {
	return m.record(t, details, nil)
}

// TrackRequest records an outbound request.
func (m *Monitor) TrackRequest(rawURL, method string) string {
	return m.record(EventRequestMade, map[string]any{"url": rawURL, "method": method}, func() { m.requests++ })
}

// TrackBlockedRequest records a request the target refused.
func (m *Monitor) TrackBlockedRequest(rawURL, reason string) string {
	return m.record(EventRequestBlocked, map[string]any{"url": rawURL, "reason": reason}, func() { m.blocked++ })
}

// TrackRetry records a retry of a failed request.
func (m *Monitor) TrackRetry(rawURL string, attempt int, cause error) string {
	details := map[string]any{"url": rawURL, "attempt": attempt}
	if cause != nil {
		details["error"] = cause.Error()
	}
	return m.record(EventRequestRetry, details, func() { m.retries++ })
}

// CheckThresholds logs rate_limit_exceeded when the trailing minute holds
// more request_made events than allowed, and security_threshold_exceeded
// when incidents exceed the ceiling.
func (m *Monitor) CheckThresholds() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkThresholdsLocked()
}

// Summary returns a snapshot of the counters.
func (m *Monitor) Summary() models.AuditSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaryLocked()
}

// Trail exports the most recent events and every incident.
func (m *Monitor) Trail() models.AuditTrail {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.events
	if len(events) > trailMaxEvents {
		events = events[len(events)-trailMaxEvents:]
	}
	return models.AuditTrail{
		SessionID:   m.sessionID,
		StartTime:   m.start,
		EndTime:     m.now(),
		TotalEvents: len(m.events),
		Events:      append([]models.SecurityEvent{}, events...),
		Incidents:   append([]models.SecurityEvent{}, m.incidents...),
	}
}

// FinalAudit logs a final_audit event carrying the summary and returns
// that summary.
func (m *Monitor) FinalAudit() models.AuditSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.summaryLocked()
	m.appendLocked(EventFinalAudit, map[string]any{
		"processing_time":    s.ProcessingTimeMs,
		"total_requests":     s.TotalRequests,
		"blocked_requests":   s.BlockedRequests,
		"retry_count":        s.RetryCount,
		"security_incidents": s.SecurityIncidents,
		"success_rate":       s.SuccessRate,
	})
	slog.Info("audit: session closed",
		"session_id", m.sessionID,
		"requests", s.TotalRequests,
		"blocked", s.BlockedRequests,
		"incidents", s.SecurityIncidents,
	)
	return s
}

func (m *Monitor) record(t EventType, details map[string]any, bump func()) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bump != nil {
		bump()
	}
	id := m.appendLocked(t, details)
	m.checkThresholdsLocked()
	return id
}

func (m *Monitor) appendLocked(t EventType, details map[string]any) string {
	ev := models.SecurityEvent{
		ID:        uuid.NewString(),
		Type:      string(t),
		Timestamp: m.now(),
		SessionID: m.sessionID,
		Details:   sanitizeDetails(details),
		Severity:  t.Severity(),
	}
	m.events = append(m.events, ev)
	observe(t, ev.Severity)

	if ev.Severity >= IncidentSeverity {
		m.incidents = append(m.incidents, ev)
		slog.Warn("audit: security incident",
			"session_id", m.sessionID,
			"type", ev.Type,
			"severity", ev.Severity,
			"details", ev.Details,
		)
	}
	return ev.ID
}

// checkThresholdsLocked appends directly, so the events it emits are not
// themselves checked again.
func (m *Monitor) checkThresholdsLocked() {
	if n := m.recentRequestsLocked(); n > m.cfg.MaxRequestsPerMinute {
		m.appendLocked(EventRateLimitExceeded, map[string]any{
			"requests_last_minute": n,
			"limit":                m.cfg.MaxRequestsPerMinute,
		})
	}
	if n := len(m.incidents); n > m.cfg.MaxIncidents {
		m.appendLocked(EventThresholdExceeded, map[string]any{
			"incidents": n,
			"limit":     m.cfg.MaxIncidents,
		})
	}
}

// recentRequestsLocked counts request_made events inside the trailing
// window. Events are appended in time order.
func (m *Monitor) recentRequestsLocked() int {
	cutoff := m.now().Add(-requestWindow)
	n := 0
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if !ev.Timestamp.After(cutoff) {
			break
		}
		if ev.Type == string(EventRequestMade) {
			n++
		}
	}
	return n
}

func (m *Monitor) summaryLocked() models.AuditSummary {
	var rate float64
	if m.requests > 0 {
		rate = float64(m.requests-m.blocked) / float64(m.requests) * 100
	}
	return models.AuditSummary{
		SessionID:         m.sessionID,
		ProcessingTimeMs:  m.now().Sub(m.start).Milliseconds(),
		TotalRequests:     m.requests,
		BlockedRequests:   m.blocked,
		RetryCount:        m.retries,
		SecurityIncidents: len(m.incidents),
		SuccessRate:       rate,
	}
}

var sensitiveKeys = []string{"password", "passwd", "apikey", "api_key", "token", "secret", "authorization"}

func sensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// sanitizeDetails copies details without credential-like keys, reducing
// every url value to scheme://host/path. Nested maps and slices are
// walked too.
func sanitizeDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if sensitiveKey(k) {
			continue
		}
		out[k] = sanitizeValue(k, v)
	}
	return out
}

func sanitizeValue(k string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		return sanitizeDetails(val)
	case []map[string]any:
		items := make([]map[string]any, len(val))
		for i, m := range val {
			items[i] = sanitizeDetails(m)
		}
		return items
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = sanitizeValue(k, item)
		}
		return items
	case string:
		if strings.EqualFold(k, "url") {
			return stripURL(val)
		}
		return val
	default:
		return v
	}
}

func stripURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "[invalid url]"
	}
	return u.Scheme + "://" + u.Host + u.Path
}
