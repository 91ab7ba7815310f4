// Package storage keeps the supervision run log in SQLite.
package storage

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusNoFit     = "no_fit"
	StatusFailed    = "failed"
)

// Store wraps the SQLite database.
type Store struct {
	DB *sql.DB
}

// New opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a throwaway store.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open run log")
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS supervision_runs (
            id TEXT PRIMARY KEY,
            template_id TEXT NOT NULL,
            engine TEXT NOT NULL,
            status TEXT NOT NULL,
            target_path TEXT,
            score REAL,
            mse REAL,
            summary_json TEXT,
            error_message TEXT,
            created_at INTEGER NOT NULL,
            started_at INTEGER,
            completed_at INTEGER
        );`,
		`CREATE INDEX IF NOT EXISTS idx_supervision_runs_template ON supervision_runs(template_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return errors.Wrap(err, "create schema")
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// RunRecord is one row of the run log.
type RunRecord struct {
	ID          string
	TemplateID  string
	Engine      string
	Status      string
	TargetPath  string
	Score       *float64
	MSE         *float64
	SummaryJSON string
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// RunOutcome is what a finished run reports.
type RunOutcome struct {
	Status      string
	Score       *float64
	MSE         *float64
	SummaryJSON string
	Error       string
}

// RecordRunQueued inserts a pending run. A nil store ignores the call.
func (s *Store) RecordRunQueued(rec RunRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO supervision_runs (id, template_id, engine, status, target_path, created_at) VALUES (?, ?, ?, ?, ?, ?);`,
		rec.ID, rec.TemplateID, rec.Engine, StatusQueued, rec.TargetPath, time.Now().UnixMilli())
	return errors.Wrap(err, "record queued run")
}

// RecordRunStart marks a run as running.
func (s *Store) RecordRunStart(id string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE supervision_runs SET status=?, started_at=? WHERE id=?;`, StatusRunning, time.Now().UnixMilli(), id)
	return errors.Wrap(err, "record run start")
}

// RecordRunResult finalizes a run.
func (s *Store) RecordRunResult(id string, out RunOutcome) error {
	if s == nil {
		return nil
	}
	res, err := s.DB.Exec(`UPDATE supervision_runs SET status=?, score=?, mse=?, summary_json=?, error_message=?, completed_at=? WHERE id=?;`,
		out.Status, nullFloat(out.Score), nullFloat(out.MSE), out.SummaryJSON, out.Error, time.Now().UnixMilli(), id)
	if err != nil {
		return errors.Wrap(err, "record run result")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf("run %s not found", id)
	}
	return nil
}

const runColumns = `id, template_id, engine, status, target_path, score, mse, summary_json, error_message, created_at, started_at, completed_at`

// Run fetches one run by id.
func (s *Store) Run(id string) (RunRecord, error) {
	if s == nil {
		return RunRecord{}, errors.New("store not initialized")
	}
	row := s.DB.QueryRow(`SELECT `+runColumns+` FROM supervision_runs WHERE id=?;`, id)
	rec, err := scanRun(row)
	if err != nil {
		return RunRecord{}, errors.Wrapf(err, "run %s", id)
	}
	return rec, nil
}

// RecentRuns returns the latest runs, newest first. An empty templateID lists all templates.
func (s *Store) RecentRuns(templateID string, limit int) ([]RunRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT `+runColumns+` FROM supervision_runs WHERE ?='' OR template_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?;`,
		templateID, templateID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var rec RunRecord
	var target, summary, errMsg sql.NullString
	var score, mse sql.NullFloat64
	var created int64
	var started, completed sql.NullInt64
	if err := sc.Scan(&rec.ID, &rec.TemplateID, &rec.Engine, &rec.Status, &target, &score, &mse, &summary, &errMsg, &created, &started, &completed); err != nil {
		return RunRecord{}, err
	}
	rec.TargetPath = target.String
	rec.SummaryJSON = summary.String
	rec.Error = errMsg.String
	if score.Valid {
		rec.Score = &score.Float64
	}
	if mse.Valid {
		rec.MSE = &mse.Float64
	}
	rec.CreatedAt = time.UnixMilli(created)
	if started.Valid {
		t := time.UnixMilli(started.Int64)
		rec.StartedAt = &t
	}
	if completed.Valid {
		t := time.UnixMilli(completed.Int64)
		rec.CompletedAt = &t
	}
	return rec, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
