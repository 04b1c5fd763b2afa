package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"cronflow/internal/cronexpr"
	"cronflow/internal/domain"
)

// Start runs the scheduler loop until ctx is canceled or Stop is called.
// Each tick snapshots the clock once and evaluates every job independently;
// due jobs dispatch on their own goroutines so a slow run never delays the
// next tick.
func (e *Engine) Start(ctx context.Context) {
	t := time.NewTicker(e.tick)
	defer t.Stop()

	log.Info().Dur("tick", e.tick).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-t.C:
			e.Tick(e.now())
		}
	}
}

// Stop is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// Tick evaluates all jobs against now and dispatches the due ones. Exposed
// so callers with their own clock (tests, a future heap-based driver) can
// drive the engine directly.
func (e *Engine) Tick(now time.Time) {
	e.mu.RLock()
	states := make([]*jobState, 0, len(e.order))
	for _, id := range e.order {
		states = append(states, e.jobs[id])
	}
	e.mu.RUnlock()

	for _, js := range states {
		e.maybeDispatch(js, now)
	}
}

// maybeDispatch applies the due checks in order (enabled, parses, not yet
// fired this minute, all five fields match) and, when due, stamps the job
// running under its lock before the action goroutine starts. Stamping at
// dispatch time is what keeps a long run from being re-dispatched by the
// next tick in the same minute.
func (e *Engine) maybeDispatch(js *jobState, now time.Time) bool {
	js.mu.Lock()
	j := &js.job
	if js.deleted || !j.Enabled {
		js.mu.Unlock()
		return false
	}
	expr, err := cronexpr.Parse(j.Schedule)
	if err != nil {
		js.mu.Unlock()
		return false
	}
	if j.LastRunMinute == now.Minute() && j.LastRunHour == now.Hour() {
		js.mu.Unlock()
		return false
	}
	if !expr.MatchesTime(now) {
		js.mu.Unlock()
		return false
	}

	j.Status = domain.StatusRunning
	j.LastRunMinute = now.Minute()
	j.LastRunHour = now.Hour()
	at := now
	j.LastRunAt = &at
	js.execID++
	js.settled = false

	id := js.execID
	command := j.Command
	timeout := j.Timeout()
	snap := cloneJob(*j)
	if err := e.persist(snap); err != nil {
		log.Error().Err(err).Str("job_id", snap.ID).Msg("persist dispatch")
	}
	js.mu.Unlock()

	log.Info().Str("job_id", snap.ID).Str("name", snap.Name).Msg("job dispatched")
	e.publish(Event{Type: EventJobUpdated, Job: snap})

	go e.run(js, id, command, timeout)
	return true
}

// run races the action against the timeout deadline. A timeout does not
// cancel the action; the late resolution is discarded by settle's exec-id
// guard. Elapsed time is wall clock from dispatch to settle.
func (e *Engine) run(js *jobState, id uint64, command string, timeout time.Duration) {
	type outcome struct {
		result string
		err    error
	}
	startedAt := time.Now()
	done := make(chan outcome, 1)
	go func() {
		res, err := e.exec.Execute(e.baseCtx, command)
		done <- outcome{result: res, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		elapsed := time.Since(startedAt)
		if out.err != nil {
			e.settle(js, id, domain.OutcomeFailed, elapsed, "", out.err.Error())
		} else {
			e.settle(js, id, domain.OutcomeSuccess, elapsed, out.result, "")
		}
	case <-timer.C:
		e.settle(js, id, domain.OutcomeTimeout, time.Since(startedAt), "",
			fmt.Sprintf("timed out after %s", timeout))
	}
}

// settle applies one dispatch's result. Only the newest unsettled dispatch
// of a live job may write: stale completions and runs of since-deleted jobs
// are dropped without touching status, history, or the store.
func (e *Engine) settle(js *jobState, id uint64, out domain.Outcome, elapsed time.Duration, result, errMsg string) {
	js.mu.Lock()
	if js.deleted {
		jobID := js.job.ID
		js.mu.Unlock()
		log.Debug().Str("job_id", jobID).Uint64("exec_id", id).Msg("settle of deleted job dropped")
		return
	}
	if id != js.execID || js.settled {
		js.mu.Unlock()
		log.Debug().Str("job_id", js.job.ID).Uint64("exec_id", id).Msg("stale completion ignored")
		return
	}
	js.settled = true

	j := &js.job
	rec := domain.ExecutionRecord{
		ID:         "run_" + uuid.NewString(),
		JobID:      j.ID,
		Outcome:    out,
		FinishedAt: e.now(),
		DurationMS: elapsed.Milliseconds(),
		Result:     result,
		Error:      errMsg,
	}
	j.History = append([]domain.ExecutionRecord{rec}, j.History...)
	if len(j.History) > domain.MaxHistory {
		j.History = j.History[:domain.MaxHistory]
	}

	switch out {
	case domain.OutcomeSuccess:
		j.Status = domain.StatusSuccess
		j.LastResult = result
		j.LastError = ""
	case domain.OutcomeFailed:
		j.Status = domain.StatusFailed
		j.LastError = errMsg
	case domain.OutcomeTimeout:
		j.Status = domain.StatusTimeout
		j.LastError = errMsg
	}
	// A job disabled mid-run keeps its disabled status.
	if !j.Enabled {
		j.Status = domain.StatusDisabled
	}
	snap := cloneJob(*j)
	// Store writes stay under the job lock: a concurrent DeleteJob or
	// ToggleJob cannot interleave its own write, so per-job rows always
	// land in snapshot order.
	if e.st != nil {
		if err := e.st.AppendRecord(e.baseCtx, rec); err != nil {
			log.Error().Err(err).Str("job_id", snap.ID).Msg("persist record")
		}
	}
	if err := e.persist(snap); err != nil {
		log.Error().Err(err).Str("job_id", snap.ID).Msg("persist settle")
	}
	js.mu.Unlock()

	log.Info().
		Str("job_id", snap.ID).
		Str("outcome", string(out)).
		Int64("duration_ms", rec.DurationMS).
		Msg("job settled")
	e.publish(Event{Type: EventRunRecorded, Job: snap, Record: &rec})
}
