package restserver

import (
	"sync"
	"time"

	"github.com/chrissnell/peaktree/internal/pipeline"
)

// RunStatus tracks the progress of the current run
type RunStatus struct {
	mu       sync.RWMutex
	runID    string
	started  time.Time
	finished time.Time
	gates    int
	failed   int
	byState  map[string]int
}

// RunSnapshot is the JSON view of a RunStatus
type RunSnapshot struct {
	RunID    string         `json:"run_id"`
	Started  time.Time      `json:"started"`
	Finished *time.Time     `json:"finished,omitempty"`
	Gates    int            `json:"gates"`
	Failed   int            `json:"failed"`
	States   map[string]int `json:"states"`
}

// NewRunStatus starts tracking a run
func NewRunStatus(runID string) *RunStatus {
	return &RunStatus{
		runID:   runID,
		started: time.Now(),
		byState: make(map[string]int),
	}
}

// Observe counts one result
func (s *RunStatus) Observe(r pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gates++
	switch {
	case r.Err != nil:
		s.failed++
	case r.Tree != nil:
		s.byState[r.Tree.State.String()]++
	}
}

// Finish marks the run as complete
func (s *RunStatus) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = time.Now()
}

// Snapshot returns a copy safe to encode
func (s *RunStatus) Snapshot() RunSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := RunSnapshot{
		RunID:   s.runID,
		Started: s.started,
		Gates:   s.gates,
		Failed:  s.failed,
		States:  make(map[string]int, len(s.byState)),
	}
	for k, v := range s.byState {
		snap.States[k] = v
	}
	if !s.finished.IsZero() {
		f := s.finished
		snap.Finished = &f
	}
	return snap
}
