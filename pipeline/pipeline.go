// Package pipeline drives a scraping run: it discovers models per
// manufacturer, collects and validates their records, checkpoints
// progress and assembles the final report.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/use-agent/carscout/audit"
	"github.com/use-agent/carscout/engine"
	"github.com/use-agent/carscout/extract"
	"github.com/use-agent/carscout/models"
	"github.com/use-agent/carscout/ratelimit"
	"github.com/use-agent/carscout/source"
	"github.com/use-agent/carscout/validator"
)

// Checkpointer persists run progress. Failures are recorded on the run's
// audit log and never stop the run.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, cp models.Checkpoint) error
}

// Orchestrator runs pipelines. It holds only shared, stateless-per-run
// collaborators; every run gets its own limiter and monitor, so runs may
// execute concurrently.
type Orchestrator struct {
	fetcher     engine.Engine
	extractor   *extract.Extractor
	validator   *validator.Validator
	checkpoints []Checkpointer
	sealer      *Sealer
	sourceOpts  []source.Option
	limiterOpts []ratelimit.Option
	auditCfg    audit.Config
	now         func() time.Time
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithCheckpointers adds progress sinks.
func WithCheckpointers(cps ...Checkpointer) Option {
	return func(o *Orchestrator) { o.checkpoints = append(o.checkpoints, cps...) }
}

// WithSealer sets the price encryption key holder.
func WithSealer(s *Sealer) Option {
	return func(o *Orchestrator) { o.sealer = s }
}

// WithValidator shares a validator (and its memo table) across runs.
func WithValidator(v *validator.Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithSourceOptions configures each run's aggregator.
func WithSourceOptions(opts ...source.Option) Option {
	return func(o *Orchestrator) { o.sourceOpts = append(o.sourceOpts, opts...) }
}

// WithLimiterOptions configures each run's limiter.
func WithLimiterOptions(opts ...ratelimit.Option) Option {
	return func(o *Orchestrator) { o.limiterOpts = append(o.limiterOpts, opts...) }
}

// WithAuditConfig sets each run's monitor thresholds.
func WithAuditConfig(cfg audit.Config) Option {
	return func(o *Orchestrator) { o.auditCfg = cfg }
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator fetching through fetcher.
func New(fetcher engine.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:   fetcher,
		extractor: extract.New(),
		auditCfg:  audit.DefaultConfig(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.validator == nil {
		o.validator = validator.New()
	}
	return o
}

// Session is one prepared run. Its limiter and monitor may be read while
// the run executes.
type Session struct {
	ID      string
	Config  models.RunConfig
	Limiter *ratelimit.Limiter
	Monitor *audit.Monitor
	Started time.Time
}

// NewSession applies defaults to cfg, validates it and builds the run's
// limiter and monitor. An invalid configuration is returned as a
// *models.ScrapeError with code INVALID_CONFIG. An empty id gets a UUID.
func (o *Orchestrator) NewSession(id string, cfg models.RunConfig) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	cfg.Defaults()
	mon := audit.New(audit.WithConfig(o.auditCfg))

	res := o.validator.ValidateInput(cfg)
	if cfg.EncryptSensitiveData && o.sealer == nil {
		res.Valid = false
		res.Errors = append(res.Errors, "encryptSensitiveData requires an encryption key")
	}
	if !res.Valid {
		mon.LogEvent(audit.EventConfigInvalid, map[string]any{"run_id": id, "errors": res.Errors})
		runsTotal.WithLabelValues("invalid").Inc()
		se := models.NewScrapeError(models.ErrCodeInvalidConfig,
			"invalid run configuration: "+strings.Join(res.Errors, "; "), nil)
		se.Details = res.Errors
		return nil, se
	}

	preset := ratelimit.Preset(cfg.SecurityLevel, time.Duration(cfg.RateLimitDelay)*time.Millisecond)
	return &Session{
		ID:      id,
		Config:  cfg,
		Limiter: ratelimit.New(preset, o.limiterOpts...),
		Monitor: mon,
		Started: o.now(),
	}, nil
}

// Run validates cfg and executes a run with a fresh ID.
func (o *Orchestrator) Run(ctx context.Context, cfg models.RunConfig) (*models.RunOutput, error) {
	s, err := o.NewSession("", cfg)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, s)
}

// Execute runs a prepared session to completion. Manufacturers are
// processed in order until the result cap is reached. Per-record failures
// are logged to the session monitor and skipped; only context
// cancellation ends a run early with an error.
func (o *Orchestrator) Execute(ctx context.Context, s *Session) (*models.RunOutput, error) {
	cfg := s.Config
	mon := s.Monitor
	agg := source.New(o.fetcher, o.extractor, s.Limiter, mon, o.sourceOpts...)

	perManufacturer := (cfg.MaxResults + len(cfg.Manufacturers) - 1) / len(cfg.Manufacturers)
	slog.Info("run started",
		"run_id", s.ID,
		"session_id", mon.SessionID(),
		"manufacturers", len(cfg.Manufacturers),
		"max_results", cfg.MaxResults,
		"security_level", cfg.SecurityLevel,
	)

	accepted := make([]models.CarRecord, 0, cfg.MaxResults)
	for _, manufacturer := range cfg.Manufacturers {
		if len(accepted) >= cfg.MaxResults {
			break
		}

		names, err := agg.DiscoverModels(ctx, manufacturer, cfg.VehicleType, cfg.Country, perManufacturer)
		if err != nil {
			return nil, o.abort(s, err)
		}
		for _, name := range names {
			rec, err := agg.ScrapeDetails(ctx, manufacturer, name, cfg.Country)
			if err != nil {
				return nil, o.abort(s, err)
			}
			if r, ok := o.accept(mon, rec, cfg); ok {
				accepted = append(accepted, r)
			}
		}

		o.checkpoint(ctx, s, models.Checkpoint{
			RunID:        s.ID,
			Manufacturer: manufacturer,
			Processed:    len(accepted),
			Total:        cfg.MaxResults,
			Timestamp:    o.now().UTC(),
		})
	}
	if len(accepted) > cfg.MaxResults {
		accepted = accepted[:cfg.MaxResults]
	}

	if cfg.IncludeCompetitors {
		accepted = AnalyzeCompetitors(accepted)
	}

	summary := mon.FinalAudit()
	out := &models.RunOutput{
		Metadata: buildMetadata(accepted, summary, o.now().Sub(s.Started), o.now()),
	}

	data, err := o.finalize(accepted, cfg)
	if err != nil {
		return nil, o.abort(s, err)
	}
	out.Data = data
	out.Security = mon.Trail()

	// Memo entries only help within a run.
	o.validator.ClearCache()

	runsTotal.WithLabelValues("completed").Inc()
	runDuration.Observe(o.now().Sub(s.Started).Seconds())
	slog.Info("run completed",
		"run_id", s.ID,
		"records", len(out.Data),
		"security_score", out.Metadata.SecurityAudit.Score,
		"duration_ms", out.Metadata.ProcessingTimeMs,
	)
	return out, nil
}

// accept transforms and validates one record. Invalid records are logged
// and dropped; PII findings are logged but do not block acceptance.
func (o *Orchestrator) accept(mon *audit.Monitor, rec models.CarRecord, cfg models.RunConfig) (models.CarRecord, bool) {
	if cfg.AnonymizeData {
		rec = anonymize(rec)
	}

	res := o.validator.ValidateRecord(rec)
	if !res.Valid {
		recordsTotal.WithLabelValues("rejected").Inc()
		mon.LogEvent(audit.EventValidationFailed, map[string]any{
			"manufacturer": rec.Manufacturer,
			"model":        rec.Model,
			"errors":       res.Errors,
		})
		return rec, false
	}
	// Quality describes what survived sanitizing.
	res.Data.DataQuality = res.Score

	if pii := o.validator.CheckForPII(res.Data); pii.HasPII {
		mon.LogEvent(audit.EventPIIDetected, map[string]any{
			"manufacturer": res.Data.Manufacturer,
			"model":        res.Data.Model,
			"kinds":        pii.PIIFound,
			"count":        pii.Count,
		})
	}

	recordsTotal.WithLabelValues("accepted").Inc()
	mon.LogEvent(audit.EventRecordAccepted, map[string]any{
		"manufacturer": res.Data.Manufacturer,
		"model":        res.Data.Model,
		"score":        res.Score,
		"warnings":     len(res.Warnings),
	})
	return res.Data, true
}

// finalize seals prices when requested and stamps each emitted record
// with its integrity hash. Analytics must already have run.
func (o *Orchestrator) finalize(records []models.CarRecord, cfg models.RunConfig) ([]models.CarRecord, error) {
	out := make([]models.CarRecord, len(records))
	for i, r := range records {
		if cfg.EncryptSensitiveData {
			if err := o.sealer.sealPrice(&r); err != nil {
				return nil, eris.Wrapf(err, "seal price of %s %s", r.Manufacturer, r.Model)
			}
		}
		hash, err := IntegrityHash(r)
		if err != nil {
			return nil, eris.Wrapf(err, "hash %s %s", r.Manufacturer, r.Model)
		}
		r.IntegrityHash = hash
		out[i] = r
	}
	return out, nil
}

func (o *Orchestrator) checkpoint(ctx context.Context, s *Session, cp models.Checkpoint) {
	for _, c := range o.checkpoints {
		if err := c.SaveCheckpoint(ctx, cp); err != nil {
			slog.Warn("checkpoint failed", "run_id", s.ID, "manufacturer", cp.Manufacturer, "error", err)
			s.Monitor.LogEvent(audit.EventCheckpointFailed, map[string]any{
				"manufacturer": cp.Manufacturer,
				"error":        err.Error(),
			})
		}
	}
}

func (o *Orchestrator) abort(s *Session, err error) error {
	runsTotal.WithLabelValues("aborted").Inc()
	slog.Warn("run aborted", "run_id", s.ID, "error", err)
	s.Monitor.FinalAudit()
	return eris.Wrapf(err, "run %s", s.ID)
}
