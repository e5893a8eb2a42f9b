// Package webhook pushes run progress and completion events to an HTTP
// endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/use-agent/carscout/models"
)

// Event types.
const (
	EventCheckpoint   = "run.checkpoint"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// SignatureHeader carries "sha256=<hex>" when a secret is configured.
const SignatureHeader = "X-Carscout-Signature"

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "Carscout-Webhook/1.0"
)

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	RunID     string `json:"run_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Notifier delivers events to one endpoint. It satisfies
// pipeline.Checkpointer.
type Notifier struct {
	url    string
	secret string
	client *http.Client
	delays []time.Duration
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.client.Timeout = d }
}

// WithRetryDelays sets the waits before each async attempt. The first
// entry is normally zero.
func WithRetryDelays(d ...time.Duration) Option {
	return func(n *Notifier) { n.delays = d }
}

// New creates a Notifier. Bodies are signed with HMAC-SHA256 when secret
// is non-empty.
func New(url, secret string, opts ...Option) *Notifier {
	n := &Notifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: defaultTimeout},
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SaveCheckpoint delivers a checkpoint synchronously, so a failing
// endpoint shows up on the run's audit log.
func (n *Notifier) SaveCheckpoint(ctx context.Context, cp models.Checkpoint) error {
	return n.Deliver(ctx, &Event{
		Type:      EventCheckpoint,
		RunID:     cp.RunID,
		Timestamp: cp.Timestamp.Unix(),
		Data:      cp,
	})
}

// RunFinished reports a finished run in the background. out is nil for
// failed runs.
func (n *Notifier) RunFinished(runID string, out *models.RunOutput, runErr error) {
	ev := &Event{Type: EventRunCompleted, RunID: runID, Timestamp: time.Now().Unix()}
	if runErr != nil {
		ev.Type = EventRunFailed
		ev.Data = map[string]string{"error": runErr.Error()}
	} else if out != nil {
		ev.Data = out.Metadata
	}
	n.DeliverAsync(ev)
}

// Deliver sends an event once.
// Header: X-Carscout-Signature: sha256=<hex>
func (n *Notifier) Deliver(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return eris.Wrap(err, "webhook: marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "webhook: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if n.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "webhook: deliver")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return eris.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync sends an event in the background, retrying per the
// notifier's delays.
func (n *Notifier) DeliverAsync(event *Event) {
	go n.deliverWithRetry(event)
}

func (n *Notifier) deliverWithRetry(event *Event) bool {
	for attempt, delay := range n.delays {
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
		err := n.Deliver(ctx, event)
		cancel()
		if err == nil {
			slog.Info("webhook delivered",
				"url", n.url,
				"event", event.Type,
				"run_id", event.RunID,
				"attempt", attempt+1,
			)
			return true
		}
		slog.Warn("webhook delivery failed",
			"url", n.url,
			"event", event.Type,
			"run_id", event.RunID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	slog.Error("webhook delivery exhausted all retries",
		"url", n.url,
		"event", event.Type,
		"run_id", event.RunID,
	)
	return false
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
