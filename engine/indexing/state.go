package indexing

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Status is the lifecycle phase of a rebuild.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// JobState is the observable state of the current or last rebuild.
type JobState struct {
	Status         Status     `json:"status"`
	Progress       int        `json:"progress"`
	CurrentProduct string     `json:"current_product"`
	Total          int        `json:"total_products"`
	Processed      int        `json:"processed_products"`
	LastCompleted  *time.Time `json:"last_completed"`
	Errors         []string   `json:"errors"`
	Error          *string    `json:"error"`
}

func (s JobState) clone() JobState {
	out := s
	out.Errors = slices.Clone(s.Errors)
	if out.Errors == nil {
		out.Errors = []string{}
	}
	if s.LastCompleted != nil {
		t := *s.LastCompleted
		out.LastCompleted = &t
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}

// Tracker guards the job state. Readers only ever see copies.
type Tracker struct {
	mu    sync.Mutex
	state JobState
}

func NewTracker() *Tracker {
	return &Tracker{state: JobState{Status: StatusIdle, Errors: []string{}}}
}

// Snapshot returns a deep copy of the current state.
func (t *Tracker) Snapshot() JobState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// TryStart moves the job to in_progress and resets its counters. It reports
// false, changing nothing, when a run is already in progress.
func (t *Tracker) TryStart() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Status == StatusInProgress {
		return false
	}
	t.state = JobState{
		Status:        StatusInProgress,
		LastCompleted: t.state.LastCompleted,
		Errors:        []string{},
	}
	return true
}

// Running reports whether a rebuild is in progress.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Status == StatusInProgress
}

// update applies f under the lock and returns the resulting snapshot.
func (t *Tracker) update(f func(*JobState)) JobState {
	t.mu.Lock()
	defer t.mu.Unlock()
	f(&t.state)
	return t.state.clone()
}

func (t *Tracker) setTotal(n int) JobState {
	return t.update(func(s *JobState) { s.Total = n })
}

func (t *Tracker) begin(label string, processed int) JobState {
	return t.update(func(s *JobState) {
		s.CurrentProduct = label
		s.Processed = processed
		if s.Total > 0 {
			s.Progress = percent(processed, s.Total)
		}
	})
}

func (t *Tracker) recordError(msg string) {
	t.update(func(s *JobState) { s.Errors = append(s.Errors, msg) })
}

func (t *Tracker) finish(at time.Time) JobState {
	return t.update(func(s *JobState) {
		s.Status = StatusCompleted
		s.Progress = 100
		s.CurrentProduct = ""
		s.Processed = s.Total
		s.LastCompleted = &at
		if n := len(s.Errors); n > 0 {
			msg := fmt.Sprintf("%d products failed to index", n)
			s.Error = &msg
		}
	})
}

func (t *Tracker) fail(msg string) JobState {
	return t.update(func(s *JobState) {
		s.Status = StatusError
		s.CurrentProduct = ""
		s.Error = &msg
	})
}

// percent is processed/total*100 rounded half away from zero.
func percent(processed, total int) int {
	return (processed*200 + total) / (2 * total)
}
