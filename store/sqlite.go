// Package store persists runs and their progress checkpoints in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/use-agent/carscout/models"
)

// SQLiteStore implements pipeline.Checkpointer and keeps run records for
// the API.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	config     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	output     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	manufacturer TEXT NOT NULL,
	processed    INTEGER NOT NULL,
	total        INTEGER NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_checkpoints_run_id ON checkpoints(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun stores a queued run.
func (s *SQLiteStore) CreateRun(ctx context.Context, id string, cfg models.RunConfig) (*models.Run, error) {
	now := time.Now().UTC()
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal config")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, config, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(cfgJSON), string(models.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run %s", id)
	}
	return &models.Run{
		ID:        id,
		Status:    models.RunStatusQueued,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UpdateRunStatus moves a run to status. errMsg is stored for failed runs.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

// CompleteRun stores a run's output and marks it completed.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, out *models.RunOutput) error {
	outJSON, err := json.Marshal(out)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal output")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET output = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(outJSON), string(models.RunStatusCompleted), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run output %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

// GetRun returns a run, or a NOT_FOUND *models.ScrapeError.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, config, status, output, error, created_at, updated_at FROM runs WHERE id = ?`,
		id,
	)
	return scanRun(row)
}

// ListRuns returns the most recent runs first. limit <= 0 means 100.
func (s *SQLiteStore) ListRuns(ctx context.Context, status models.RunStatus, limit int) ([]models.Run, error) {
	query := `SELECT id, config, status, output, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveCheckpoint appends a progress checkpoint.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp models.Checkpoint) error {
	ts := cp.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, manufacturer, processed, total, created_at) VALUES (?, ?, ?, ?, ?)`,
		cp.RunID, cp.Manufacturer, cp.Processed, cp.Total, ts.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert checkpoint for run %s", cp.RunID)
}

// Checkpoints returns a run's checkpoints in the order they were written.
func (s *SQLiteStore) Checkpoints(ctx context.Context, runID string) ([]models.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, manufacturer, processed, total, created_at FROM checkpoints WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list checkpoints for run %s", runID)
	}
	defer rows.Close()

	cps := []models.Checkpoint{}
	for rows.Next() {
		var cp models.Checkpoint
		if err := rows.Scan(&cp.RunID, &cp.Manufacturer, &cp.Processed, &cp.Total, &cp.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan checkpoint")
		}
		cps = append(cps, cp)
	}
	return cps, eris.Wrap(rows.Err(), "sqlite: list checkpoints iterate")
}

// DeleteRunsBefore removes runs (and their checkpoints) created before
// cutoff and returns how many runs were removed.
func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)`, cutoff.UTC(),
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: delete checkpoints")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete runs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return models.NewScrapeError(models.ErrCodeNotFound, entity+" not found: "+id, nil)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*models.Run, error) {
	var r models.Run
	var cfgJSON string
	var outJSON sql.NullString

	err := row.Scan(&r.ID, &cfgJSON, &r.Status, &outJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.NewScrapeError(models.ErrCodeNotFound, "run not found", nil)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal config")
	}
	if outJSON.Valid {
		r.Output = &models.RunOutput{}
		if err := json.Unmarshal([]byte(outJSON.String), r.Output); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal output")
		}
	}
	return &r, nil
}
