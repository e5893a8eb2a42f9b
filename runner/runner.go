// Package runner executes pipeline runs in the background on behalf of
// the HTTP and MCP front ends and tracks them in a run store.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/use-agent/carscout/models"
	"github.com/use-agent/carscout/pipeline"
	"github.com/use-agent/carscout/ratelimit"
)

// Store persists runs. *store.SQLiteStore implements it.
type Store interface {
	CreateRun(ctx context.Context, id string, cfg models.RunConfig) (*models.Run, error)
	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errMsg string) error
	CompleteRun(ctx context.Context, id string, out *models.RunOutput) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, status models.RunStatus, limit int) ([]models.Run, error)
	Checkpoints(ctx context.Context, runID string) ([]models.Checkpoint, error)
}

// Notifier is told when a run ends. *webhook.Notifier implements it.
type Notifier interface {
	RunFinished(runID string, out *models.RunOutput, runErr error)
}

// Live is the in-flight state of a running run.
type Live struct {
	Audit   models.AuditSummary `json:"audit"`
	Limiter ratelimit.Stats     `json:"limiter"`
}

// RunView is a stored run plus live counters while it executes.
type RunView struct {
	models.Run
	Live *Live `json:"live,omitempty"`
}

// Manager starts runs and answers status queries.
type Manager struct {
	orch     *pipeline.Orchestrator
	store    Store
	notifier Notifier
	maxRuns  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*pipeline.Session
}

// New creates a Manager allowing maxRuns concurrent runs (0 = unlimited).
// notifier may be nil.
func New(orch *pipeline.Orchestrator, store Store, notifier Notifier, maxRuns int) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		orch:     orch,
		store:    store,
		notifier: notifier,
		maxRuns:  maxRuns,
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[string]*pipeline.Session),
	}
}

// Start validates cfg, records a queued run and executes it in the
// background. Invalid configs return an INVALID_CONFIG *models.ScrapeError
// and nothing is stored. After Shutdown it returns SHUTTING_DOWN.
func (m *Manager) Start(ctx context.Context, cfg models.RunConfig) (*models.Run, error) {
	id := uuid.NewString()
	s, err := m.orch.NewSession(id, cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return nil, models.NewScrapeError(models.ErrCodeShuttingDown, "server is shutting down", nil)
	}
	if m.maxRuns > 0 && len(m.active) >= m.maxRuns {
		m.mu.Unlock()
		return nil, models.NewScrapeError(models.ErrCodeRateLimited, "too many runs in progress", nil)
	}
	m.active[id] = s
	m.wg.Add(1)
	m.mu.Unlock()

	run, err := m.store.CreateRun(ctx, id, s.Config)
	if err != nil {
		m.forget(id)
		m.wg.Done()
		return nil, eris.Wrap(err, "create run")
	}

	go m.execute(s)
	return run, nil
}

func (m *Manager) execute(s *pipeline.Session) {
	defer m.wg.Done()
	defer m.forget(s.ID)

	// Status writes must land even after shutdown cancels the run.
	ctx := context.WithoutCancel(m.ctx)

	if err := m.store.UpdateRunStatus(ctx, s.ID, models.RunStatusRunning, ""); err != nil {
		slog.Error("run status update failed", "run_id", s.ID, "error", err)
	}

	out, runErr := m.orch.Execute(m.ctx, s)
	if runErr != nil {
		if err := m.store.UpdateRunStatus(ctx, s.ID, models.RunStatusFailed, runErr.Error()); err != nil {
			slog.Error("run status update failed", "run_id", s.ID, "error", err)
		}
	} else if err := m.store.CompleteRun(ctx, s.ID, out); err != nil {
		slog.Error("run output save failed", "run_id", s.ID, "error", err)
		runErr = err
		_ = m.store.UpdateRunStatus(ctx, s.ID, models.RunStatusFailed, err.Error())
	}

	if m.notifier != nil {
		m.notifier.RunFinished(s.ID, out, runErr)
	}
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// Get returns a run with live counters if it is still executing.
func (m *Manager) Get(ctx context.Context, id string) (*RunView, error) {
	run, err := m.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &RunView{Run: *run}

	m.mu.Lock()
	s, ok := m.active[id]
	m.mu.Unlock()
	if ok && !isTerminal(run.Status) {
		view.Live = &Live{Audit: s.Monitor.Summary(), Limiter: s.Limiter.Stats()}
	}
	return view, nil
}

// List returns recent runs, optionally filtered by status.
func (m *Manager) List(ctx context.Context, status models.RunStatus, limit int) ([]models.Run, error) {
	return m.store.ListRuns(ctx, status, limit)
}

// Checkpoints returns the progress checkpoints of a run.
func (m *Manager) Checkpoints(ctx context.Context, id string) ([]models.Checkpoint, error) {
	if _, err := m.store.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return m.store.Checkpoints(ctx, id)
}

// Active reports the number of runs executing now.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// MaxRuns is the concurrency ceiling, 0 when unlimited.
func (m *Manager) MaxRuns() int { return m.maxRuns }

// Shutdown cancels executing runs and waits for them to record their
// final status, or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	// Under mu so no Start can register a run once Wait begins.
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "runner: shutdown")
	}
}

// Wait blocks until the run id is no longer executing or timeout passes.
// It reports whether the run finished.
func (m *Manager) Wait(id string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		_, running := m.active[id]
		m.mu.Unlock()
		if !running {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func isTerminal(s models.RunStatus) bool {
	return s == models.RunStatusCompleted || s == models.RunStatusFailed
}
