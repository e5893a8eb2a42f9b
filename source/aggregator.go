package source

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/carscout/audit"
	"github.com/use-agent/carscout/engine"
	"github.com/use-agent/carscout/extract"
	"github.com/use-agent/carscout/models"
	"github.com/use-agent/carscout/ratelimit"
)

const (
	// successWindow is the number of recent fetch outcomes used for the
	// rolling success rate.
	successWindow = 10

	// minOutcomes is how many outcomes must be seen before a low success
	// rate is reported to the limiter.
	minOutcomes = 4
)

// StopPolicy reports whether a record is complete enough to skip the
// remaining sources.
type StopPolicy func(models.CarRecord) bool

// PriceAndPower stops once the starting MSRP and horsepower are known.
func PriceAndPower(r models.CarRecord) bool {
	return r.Price.StartingMSRP != nil && r.Performance.Horsepower != nil
}

// Aggregator drives one run's fetches. Every fetch is gated by the limiter
// and reported to the monitor. Not safe for concurrent use; create one per
// run.
type Aggregator struct {
	fetcher   engine.Engine
	extractor *extract.Extractor
	limiter   *ratelimit.Limiter
	monitor   *audit.Monitor

	sources      []Source
	discovery    Source
	stop         StopPolicy
	maxRetries   int
	fetchTimeout time.Duration

	outcomes []bool
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithSources replaces DefaultSources.
func WithSources(sources []Source) Option {
	return func(a *Aggregator) { a.sources = sources }
}

// WithDiscovery replaces DefaultDiscovery.
func WithDiscovery(s Source) Option {
	return func(a *Aggregator) { a.discovery = s }
}

// WithStopPolicy replaces PriceAndPower.
func WithStopPolicy(p StopPolicy) Option {
	return func(a *Aggregator) { a.stop = p }
}

// WithMaxRetries sets how often a transient fetch failure is retried.
func WithMaxRetries(n int) Option {
	return func(a *Aggregator) { a.maxRetries = max(0, n) }
}

// WithFetchTimeout bounds each fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.fetchTimeout = d }
}

// New creates an Aggregator.
func New(fetcher engine.Engine, extractor *extract.Extractor, limiter *ratelimit.Limiter, monitor *audit.Monitor, opts ...Option) *Aggregator {
	a := &Aggregator{
		fetcher:      fetcher,
		extractor:    extractor,
		limiter:      limiter,
		monitor:      monitor,
		sources:      DefaultSources,
		discovery:    DefaultDiscovery,
		stop:         PriceAndPower,
		maxRetries:   1,
		fetchTimeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ScrapeDetails builds the record for one model from the configured
// sources, in order. A failing source is recorded and skipped. When no
// source yields a starting MSRP the manufacturer estimate is used. The
// only error returned is the context's.
func (a *Aggregator) ScrapeDetails(ctx context.Context, manufacturer, model, country string) (models.CarRecord, error) {
	rec := models.NewCarRecord(manufacturer, model)

	for _, src := range a.sources {
		if err := ctx.Err(); err != nil {
			return rec, err
		}

		pageURL := src.URL(manufacturer, model, country)
		res, err := a.fetch(ctx, pageURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rec, ctxErr
			}
			a.sourceFailed(src.Name, pageURL, err)
			continue
		}

		frag := a.extractor.Extract(res.HTML, pageURL, extract.Hint{
			Manufacturer: manufacturer,
			Model:        model,
			Selectors:    src.Selectors,
		})
		if frag.Empty() {
			slog.Debug("source: nothing extracted", "source", src.Name, "url", pageURL)
			continue
		}
		rec = Merge(rec, frag)
		rec.SourceURLs = append(rec.SourceURLs, pageURL)

		if a.stop != nil && a.stop(rec) {
			slog.Debug("source: record complete", "manufacturer", manufacturer, "model", model, "source", src.Name)
			break
		}
	}

	applyEstimate(&rec)
	rec.ValueScore = ValueScore(rec)
	return rec, nil
}

// fetch runs one gated fetch with retries on transient errors.
func (a *Aggregator) fetch(ctx context.Context, pageURL string) (*engine.FetchResult, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			a.monitor.TrackRetry(pageURL, attempt, lastErr)
		}
		if err := a.limiter.Delay(ctx, 0); err != nil {
			return nil, err
		}

		var res *engine.FetchResult
		err := a.limiter.ExecuteGated(ctx, func(ctx context.Context) error {
			var ferr error
			res, ferr = a.fetcher.Fetch(ctx, &engine.FetchRequest{URL: pageURL, Timeout: a.fetchTimeout})
			return ferr
		})
		a.report(pageURL, res, err)
		if err == nil {
			return res, nil
		}

		lastErr = err
		if ctx.Err() != nil || !engine.IsTransient(err) || attempt >= a.maxRetries {
			return nil, err
		}
	}
}

// report records each transport attempt with the monitor and feeds block
// signals and the rolling success rate to the limiter.
func (a *Aggregator) report(pageURL string, res *engine.FetchResult, err error) {
	for _, at := range a.attempts(res, err) {
		if errors.Is(at.Err, context.Canceled) || errors.Is(at.Err, context.DeadlineExceeded) {
			continue
		}
		a.monitor.TrackRequest(pageURL, "GET")
		if at.Block == engine.BlockNone {
			continue
		}

		a.monitor.TrackBlockedRequest(pageURL, string(at.Block))
		details := map[string]any{"url": pageURL, "engine": at.Engine, "block": string(at.Block)}
		switch {
		case at.Block == engine.BlockIP:
			a.monitor.LogEvent(audit.EventIPBlocked, details)
			a.limiter.AdaptToSignal(ratelimit.Signal{IPBlocked: true})
		case at.Block.Captcha():
			a.monitor.LogEvent(audit.EventCaptchaDetected, details)
			a.limiter.AdaptToSignal(ratelimit.Signal{CaptchaDetected: true})
		}
	}

	a.outcomes = append(a.outcomes, err == nil)
	if len(a.outcomes) > successWindow {
		a.outcomes = a.outcomes[len(a.outcomes)-successWindow:]
	}
	if rate, ok := a.successRate(); ok {
		a.limiter.AdaptToSignal(ratelimit.Signal{RecentSuccessRate: &rate})
	}
}

// attempts returns the per-tier attempts behind a fetch. Single engines
// report one attempt; the escalator records one per tier.
func (a *Aggregator) attempts(res *engine.FetchResult, err error) []engine.Attempt {
	if res != nil && len(res.Attempts) > 0 {
		return res.Attempts
	}
	var ee *engine.EscalationError
	if errors.As(err, &ee) {
		return ee.Attempts
	}
	at := engine.Attempt{Engine: a.fetcher.Name(), Err: err}
	if be, ok := engine.AsBlocked(err); ok {
		at.Block = be.Block
	}
	return []engine.Attempt{at}
}

func (a *Aggregator) successRate() (float64, bool) {
	if len(a.outcomes) < minOutcomes {
		return 0, false
	}
	ok := 0
	for _, o := range a.outcomes {
		if o {
			ok++
		}
	}
	return float64(ok) / float64(len(a.outcomes)), true
}

func (a *Aggregator) sourceFailed(name, pageURL string, err error) {
	code := models.ErrCodeSourceFailed
	if _, blocked := engine.AsBlocked(err); blocked {
		code = models.ErrCodeBlocked
	}
	var se *models.ScrapeError
	if errors.As(err, &se) {
		code = se.Code
	}
	slog.Warn("source failed", "source", name, "url", pageURL, "code", code, "error", err)
	a.monitor.LogEvent(audit.EventSourceFailed, map[string]any{
		"source": name,
		"url":    pageURL,
		"code":   code,
		"error":  err.Error(),
	})
}
