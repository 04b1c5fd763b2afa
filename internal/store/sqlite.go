package store

import (
	"context"
	"database/sql"
	"time"

	"cronflow/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  schedule TEXT NOT NULL,
  command TEXT NOT NULL,
  timeout_ms INTEGER NOT NULL DEFAULT 30000,
  enabled INTEGER NOT NULL DEFAULT 1,
  status TEXT NOT NULL CHECK(status IN ('idle','running','success','failed','timeout','disabled')) DEFAULT 'idle',
  last_run_minute INTEGER NOT NULL DEFAULT -1,
  last_run_hour INTEGER NOT NULL DEFAULT -1,
  last_run_at DATETIME,
  last_result TEXT NOT NULL DEFAULT '',
  last_error TEXT NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS execution_records (
  id TEXT PRIMARY KEY,
  job_id TEXT NOT NULL,
  outcome TEXT NOT NULL CHECK(outcome IN ('success','failed','timeout')),
  finished_at DATETIME NOT NULL,
  duration_ms INTEGER NOT NULL,
  result TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT '',
  FOREIGN KEY(job_id) REFERENCES jobs(id)
);
CREATE INDEX IF NOT EXISTS idx_records_job ON execution_records(job_id, finished_at DESC);
`
	_, err := db.Exec(schema)
	return err
}

// Store persists job definitions and execution records. The engine treats a
// nil Store as "no persistence"; the in-memory collection is authoritative
// either way.
type Store interface {
	SaveJob(ctx context.Context, j domain.Job) error
	DeleteJob(ctx context.Context, id string) error
	AppendRecord(ctx context.Context, rec domain.ExecutionRecord) error
	LoadJobs(ctx context.Context) ([]domain.Job, error)
	Records(ctx context.Context, jobID string, limit int) ([]domain.ExecutionRecord, error)
}

type sqliteStore struct{ db *sql.DB }

func NewSQLite(db *sql.DB) Store { return &sqliteStore{db: db} }

// SaveJob upserts the full job row, running status included, so a restart
// restores the last observed state.
func (s *sqliteStore) SaveJob(ctx context.Context, j domain.Job) error {
	var lastRunAt any
	if j.LastRunAt != nil {
		lastRunAt = *j.LastRunAt
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (id,name,schedule,command,timeout_ms,enabled,status,last_run_minute,last_run_hour,last_run_at,last_result,last_error,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name, schedule=excluded.schedule, command=excluded.command,
  timeout_ms=excluded.timeout_ms, enabled=excluded.enabled, status=excluded.status,
  last_run_minute=excluded.last_run_minute, last_run_hour=excluded.last_run_hour,
  last_run_at=excluded.last_run_at, last_result=excluded.last_result,
  last_error=excluded.last_error, updated_at=CURRENT_TIMESTAMP
`, j.ID, j.Name, j.Schedule, j.Command, j.TimeoutMS, j.Enabled, j.Status,
		j.LastRunMinute, j.LastRunHour, lastRunAt, j.LastResult, j.LastError, j.CreatedAt)
	return err
}

func (s *sqliteStore) DeleteJob(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM execution_records WHERE job_id=?", id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id=?", id)
	return err
}

func (s *sqliteStore) AppendRecord(ctx context.Context, rec domain.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO execution_records (id,job_id,outcome,finished_at,duration_ms,result,error)
VALUES (?,?,?,?,?,?,?)`,
		rec.ID, rec.JobID, rec.Outcome, rec.FinishedAt, rec.DurationMS, rec.Result, rec.Error)
	return err
}

// LoadJobs returns all jobs in insertion order with their bounded history
// attached. A job persisted as running was interrupted mid-flight; it comes
// back idle (or disabled) since its dispatch did not survive the restart.
func (s *sqliteStore) LoadJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,name,schedule,command,timeout_ms,enabled,status,last_run_minute,last_run_hour,last_run_at,last_result,last_error,created_at
FROM jobs ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var j domain.Job
		var lastRunAt sql.NullTime
		if err := rows.Scan(&j.ID, &j.Name, &j.Schedule, &j.Command, &j.TimeoutMS, &j.Enabled, &j.Status,
			&j.LastRunMinute, &j.LastRunHour, &lastRunAt, &j.LastResult, &j.LastError, &j.CreatedAt); err != nil {
			return nil, err
		}
		if lastRunAt.Valid {
			t := lastRunAt.Time
			j.LastRunAt = &t
		}
		if j.Status == domain.StatusRunning {
			j.Status = domain.StatusIdle
		}
		if !j.Enabled {
			j.Status = domain.StatusDisabled
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range jobs {
		recs, err := s.Records(ctx, jobs[i].ID, domain.MaxHistory)
		if err != nil {
			return nil, err
		}
		jobs[i].History = recs
	}
	return jobs, nil
}

// Records returns up to limit records for one job, newest first.
func (s *sqliteStore) Records(ctx context.Context, jobID string, limit int) ([]domain.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,job_id,outcome,finished_at,duration_ms,result,error
FROM execution_records WHERE job_id=? ORDER BY finished_at DESC, id DESC LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var finished time.Time
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.Outcome, &finished, &rec.DurationMS, &rec.Result, &rec.Error); err != nil {
			return nil, err
		}
		rec.FinishedAt = finished
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
