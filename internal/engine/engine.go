// Package engine owns the job collection and drives cron evaluation and
// execution. External mutation (add/toggle/delete) goes through the Engine's
// API; state changes flow out through the event subscription.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"cronflow/internal/cronexpr"
	"cronflow/internal/domain"
	"cronflow/internal/executor"
	"cronflow/internal/store"
)

var ErrNotFound = errors.New("job not found")

const defaultTimeoutMS = 30_000

type jobState struct {
	mu  sync.Mutex
	job domain.Job

	// execID increments at every dispatch; settled flips when the current
	// dispatch resolves. Together they make late completions no-ops.
	execID  uint64
	settled bool

	// deleted marks a job removed from the collection while a run is still
	// in flight, so its settle neither persists nor publishes.
	deleted bool
}

type Engine struct {
	mu    sync.RWMutex
	jobs  map[string]*jobState
	order []string

	exec executor.Executor
	st   store.Store // nil means in-memory only

	tick     time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
	baseCtx  context.Context

	subMu   sync.Mutex
	subs    map[uint64]chan Event
	nextSub uint64
}

func New(exec executor.Executor, st store.Store) *Engine {
	return &Engine{
		jobs:    make(map[string]*jobState),
		exec:    exec,
		st:      st,
		tick:    time.Second,
		now:     time.Now,
		stop:    make(chan struct{}),
		baseCtx: context.Background(),
		subs:    make(map[uint64]chan Event),
	}
}

// Restore loads persisted jobs into the collection. Call before Start.
func (e *Engine) Restore(ctx context.Context) error {
	if e.st == nil {
		return nil
	}
	jobs, err := e.st.LoadJobs(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, j := range jobs {
		e.jobs[j.ID] = &jobState{job: j}
		e.order = append(e.order, j.ID)
	}
	log.Info().Int("jobs", len(jobs)).Msg("restored jobs from store")
	return nil
}

// AddJob validates and registers a new job. The schedule must split into
// five fields; deeper pattern validation is deferred to match time.
func (e *Engine) AddJob(name, schedule, command string, timeoutMS int64) (domain.Job, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Job{}, &domain.ValidationError{Field: "name", Reason: "is required"}
	}
	if strings.TrimSpace(schedule) == "" {
		return domain.Job{}, &domain.ValidationError{Field: "schedule", Reason: "is required"}
	}
	if strings.TrimSpace(command) == "" {
		return domain.Job{}, &domain.ValidationError{Field: "command", Reason: "is required"}
	}
	if _, err := cronexpr.Parse(schedule); err != nil {
		return domain.Job{}, err
	}
	if timeoutMS <= 0 {
		timeoutMS = defaultTimeoutMS
	}

	j := domain.Job{
		ID:            "job_" + uuid.NewString(),
		Name:          name,
		Schedule:      schedule,
		Command:       command,
		TimeoutMS:     timeoutMS,
		Enabled:       true,
		Status:        domain.StatusIdle,
		LastRunMinute: -1,
		LastRunHour:   -1,
		CreatedAt:     e.now(),
	}
	if err := e.persist(j); err != nil {
		return domain.Job{}, err
	}

	e.mu.Lock()
	e.jobs[j.ID] = &jobState{job: j}
	e.order = append(e.order, j.ID)
	e.mu.Unlock()

	log.Info().Str("job_id", j.ID).Str("name", j.Name).Str("schedule", j.Schedule).Msg("job added")
	e.publish(Event{Type: EventJobAdded, Job: j})
	return j, nil
}

// ToggleJob flips enabled and resets status to idle on re-enable. The store
// write happens under the job lock so per-job writes land in snapshot order.
func (e *Engine) ToggleJob(id string) (domain.Job, error) {
	js, ok := e.lookup(id)
	if !ok {
		return domain.Job{}, ErrNotFound
	}

	js.mu.Lock()
	if js.deleted {
		js.mu.Unlock()
		return domain.Job{}, ErrNotFound
	}
	js.job.Enabled = !js.job.Enabled
	if js.job.Enabled {
		js.job.Status = domain.StatusIdle
	} else {
		js.job.Status = domain.StatusDisabled
	}
	snap := cloneJob(js.job)
	if err := e.persist(snap); err != nil {
		log.Error().Err(err).Str("job_id", id).Msg("persist toggle")
	}
	js.mu.Unlock()

	log.Info().Str("job_id", id).Bool("enabled", snap.Enabled).Msg("job toggled")
	e.publish(Event{Type: EventJobUpdated, Job: snap})
	return snap, nil
}

func (e *Engine) DeleteJob(id string) error {
	e.mu.Lock()
	js, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return ErrNotFound
	}
	delete(e.jobs, id)
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	// Mark deleted and clear the store row under the job lock, so an
	// in-flight settle can never re-create either after this point.
	js.mu.Lock()
	js.deleted = true
	snap := cloneJob(js.job)
	if e.st != nil {
		if err := e.st.DeleteJob(e.baseCtx, id); err != nil {
			log.Error().Err(err).Str("job_id", id).Msg("delete from store")
		}
	}
	js.mu.Unlock()

	log.Info().Str("job_id", id).Msg("job deleted")
	e.publish(Event{Type: EventJobDeleted, Job: snap})
	return nil
}

// ListJobs returns snapshots in insertion order.
func (e *Engine) ListJobs() []domain.Job {
	e.mu.RLock()
	states := make([]*jobState, 0, len(e.order))
	for _, id := range e.order {
		states = append(states, e.jobs[id])
	}
	e.mu.RUnlock()

	jobs := make([]domain.Job, 0, len(states))
	for _, js := range states {
		js.mu.Lock()
		jobs = append(jobs, cloneJob(js.job))
		js.mu.Unlock()
	}
	return jobs
}

func (e *Engine) GetJob(id string) (domain.Job, error) {
	js, ok := e.lookup(id)
	if !ok {
		return domain.Job{}, ErrNotFound
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	return cloneJob(js.job), nil
}

func (e *Engine) lookup(id string) (*jobState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	js, ok := e.jobs[id]
	return js, ok
}

func (e *Engine) persist(j domain.Job) error {
	if e.st == nil {
		return nil
	}
	return e.st.SaveJob(e.baseCtx, j)
}

// cloneJob deep-copies the history slice so snapshots never alias live state.
func cloneJob(j domain.Job) domain.Job {
	if j.History != nil {
		h := make([]domain.ExecutionRecord, len(j.History))
		copy(h, j.History)
		j.History = h
	}
	if j.LastRunAt != nil {
		t := *j.LastRunAt
		j.LastRunAt = &t
	}
	return j
}
