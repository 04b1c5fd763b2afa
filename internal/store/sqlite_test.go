package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"cronflow/internal/domain"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cronflow_test.db")
	db, err := sql.Open("sqlite", "file:"+path+"?cache=shared&mode=rwc")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureSchema(db))
	return NewSQLite(db)
}

func testJob(id string, created time.Time) domain.Job {
	return domain.Job{
		ID:            id,
		Name:          "backup",
		Schedule:      "*/5 * * * *",
		Command:       "pg_dump mydb",
		TimeoutMS:     30000,
		Enabled:       true,
		Status:        domain.StatusIdle,
		LastRunMinute: -1,
		LastRunHour:   -1,
		CreatedAt:     created,
	}
}

func TestSaveAndLoadJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.August, 3, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		j := testJob(fmt.Sprintf("job_%d", i), base.Add(time.Duration(i)*time.Second))
		j.Name = fmt.Sprintf("backup-%d", i)
		require.NoError(t, s.SaveJob(ctx, j))
	}

	jobs, err := s.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	for i, j := range jobs {
		assert.Equal(t, fmt.Sprintf("backup-%d", i), j.Name, "insertion order preserved")
		assert.Equal(t, -1, j.LastRunMinute)
		assert.Empty(t, j.History)
	}
}

func TestSaveJobUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := testJob("job_1", time.Now().UTC())
	require.NoError(t, s.SaveJob(ctx, j))

	at := time.Date(2026, time.August, 3, 10, 30, 0, 0, time.UTC)
	j.Status = domain.StatusSuccess
	j.LastRunMinute = 30
	j.LastRunHour = 10
	j.LastRunAt = &at
	j.LastResult = "done"
	require.NoError(t, s.SaveJob(ctx, j))

	jobs, err := s.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	got := jobs[0]
	assert.Equal(t, domain.StatusSuccess, got.Status)
	assert.Equal(t, 30, got.LastRunMinute)
	assert.Equal(t, 10, got.LastRunHour)
	assert.Equal(t, "done", got.LastResult)
	require.NotNil(t, got.LastRunAt)
}

func TestLoadNormalizesInterruptedRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := testJob("job_1", time.Now().UTC())
	j.Status = domain.StatusRunning
	require.NoError(t, s.SaveJob(ctx, j))

	jobs, err := s.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.StatusIdle, jobs[0].Status, "a dispatch does not survive a restart")

	off := testJob("job_2", time.Now().UTC())
	off.Enabled = false
	off.Status = domain.StatusRunning
	require.NoError(t, s.SaveJob(ctx, off))

	jobs, err = s.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, domain.StatusDisabled, jobs[1].Status)
}

func TestRecordsNewestFirstAndLimited(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := testJob("job_1", time.Now().UTC())
	require.NoError(t, s.SaveJob(ctx, j))

	base := time.Date(2026, time.August, 3, 10, 0, 0, 0, time.UTC)
	for i := 0; i < domain.MaxHistory+2; i++ {
		rec := domain.ExecutionRecord{
			ID:         fmt.Sprintf("run_%02d", i),
			JobID:      j.ID,
			Outcome:    domain.OutcomeSuccess,
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
			DurationMS: 100,
			Result:     "ok",
		}
		require.NoError(t, s.AppendRecord(ctx, rec))
	}

	recs, err := s.Records(ctx, j.ID, domain.MaxHistory)
	require.NoError(t, err)
	require.Len(t, recs, domain.MaxHistory)
	assert.Equal(t, "run_11", recs[0].ID)
	assert.Equal(t, "run_02", recs[len(recs)-1].ID)

	jobs, err := s.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Len(t, jobs[0].History, domain.MaxHistory)
	assert.Equal(t, "run_11", jobs[0].History[0].ID)
}

func TestDeleteJobRemovesRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := testJob("job_1", time.Now().UTC())
	require.NoError(t, s.SaveJob(ctx, j))
	require.NoError(t, s.AppendRecord(ctx, domain.ExecutionRecord{
		ID: "run_1", JobID: j.ID, Outcome: domain.OutcomeFailed,
		FinishedAt: time.Now().UTC(), DurationMS: 5, Error: "boom",
	}))

	require.NoError(t, s.DeleteJob(ctx, j.ID))

	jobs, err := s.LoadJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	recs, err := s.Records(ctx, j.ID, domain.MaxHistory)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
