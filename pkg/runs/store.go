// Package runs keeps a SQLite registry of runs and their outcomes.
package runs

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("run not found")

// Run is one registered run.
type Run struct {
	ID         string
	Name       string
	EnvID      string
	NumEnvs    int
	SuccessLog string
	MonitorLog string
	StartedAt  time.Time
	FinishedAt *time.Time
	Result     *Result
}

// Result is recorded when a run finishes.
type Result struct {
	Timesteps   int64
	Episodes    int
	Successes   int
	SuccessRate float64
	Error       string
}

// Store provides persistent storage for runs
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the registry database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create registry directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	db.SetMaxOpenConns(1)
	store, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore creates a run store using an existing database connection
func NewStore(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate run tables: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			env_id TEXT NOT NULL,
			num_envs INTEGER NOT NULL,
			success_log TEXT,
			monitor_log TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			timesteps INTEGER,
			episodes INTEGER,
			successes INTEGER,
			success_rate REAL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Start registers a run. A missing ID or start time is filled in.
func (s *Store) Start(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, name, env_id, num_envs, success_log, monitor_log, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Name, run.EnvID, run.NumEnvs, run.SuccessLog, run.MonitorLog, formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to register run: %w", err)
	}
	return nil
}

// Finish records the outcome of a run.
func (s *Store) Finish(id string, result Result) error {
	res, err := s.db.Exec(`
		UPDATE runs
		SET finished_at = ?, timesteps = ?, episodes = ?, successes = ?, success_rate = ?, error = ?
		WHERE id = ?
	`, formatTime(time.Now()), result.Timesteps, result.Episodes, result.Successes, result.SuccessRate, result.Error, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectRuns = `
	SELECT id, name, env_id, num_envs, success_log, monitor_log, started_at, finished_at,
		timesteps, episodes, successes, success_rate, error
	FROM runs`

// Get retrieves a run by ID
func (s *Store) Get(id string) (*Run, error) {
	row := s.db.QueryRow(selectRuns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// List returns all runs, newest first.
func (s *Store) List() ([]*Run, error) {
	rows, err := s.db.Query(selectRuns + ` ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run                    Run
		successLog, monitorLog sql.NullString
		startedAt              string
		finishedAt, errStr     sql.NullString
		timesteps, episodes    sql.NullInt64
		successes              sql.NullInt64
		rate                   sql.NullFloat64
	)
	err := sc.Scan(&run.ID, &run.Name, &run.EnvID, &run.NumEnvs, &successLog, &monitorLog, &startedAt,
		&finishedAt, &timesteps, &episodes, &successes, &rate, &errStr)
	if err != nil {
		return nil, err
	}

	run.SuccessLog = successLog.String
	run.MonitorLog = monitorLog.String
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
		run.Result = &Result{
			Timesteps:   timesteps.Int64,
			Episodes:    int(episodes.Int64),
			Successes:   int(successes.Int64),
			SuccessRate: rate.Float64,
			Error:       errStr.String,
		}
	}
	return &run, nil
}

// timeLayout is fixed width so that started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
