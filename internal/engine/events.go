package engine

import "cronflow/internal/domain"

type EventType string

const (
	EventJobAdded    EventType = "job_added"
	EventJobUpdated  EventType = "job_updated"
	EventJobDeleted  EventType = "job_deleted"
	EventRunRecorded EventType = "run_recorded"
)

// Event carries a job snapshot and, for run_recorded, the new record.
type Event struct {
	Type   EventType               `json:"type"`
	Job    domain.Job              `json:"job"`
	Record *domain.ExecutionRecord `json:"record,omitempty"`
}

// Subscribe registers a push channel for engine events. The returned cancel
// func must be called when the subscriber goes away.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
		e.subMu.Unlock()
	}
	return ch, cancel
}

// publish fans out without blocking; a subscriber that falls behind its
// buffer loses events rather than stalling the coordinator.
func (e *Engine) publish(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
