package pipeline

import (
	"sync"
	"time"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
)

// State is the lifecycle of the most recent run of a domain.
type State string

const (
	StateNeverRun  State = "never run"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// RunStatus is the last known run of one domain.
type RunStatus struct {
	Domain          domain.Domain `json:"domain"`
	State           State         `json:"state"`
	RunID           string        `json:"run_id,omitempty"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	Records         int           `json:"records"`
	High            int           `json:"high"`
	Safe            int           `json:"safe"`
	Skipped         int           `json:"skipped"`
	GeocodeFailures int           `json:"geocode_failures"`
	Error           string        `json:"error,omitempty"`
}

// statusTracker holds one RunStatus per domain.
type statusTracker struct {
	mu       sync.RWMutex
	statuses map[domain.Domain]RunStatus
}

func newStatusTracker(domains []domain.Domain) *statusTracker {
	t := &statusTracker{statuses: make(map[domain.Domain]RunStatus, len(domains))}
	for _, d := range domains {
		t.statuses[d] = RunStatus{Domain: d, State: StateNeverRun}
	}
	return t
}

func (t *statusTracker) get(d domain.Domain) (RunStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.statuses[d]
	return s, ok
}

func (t *statusTracker) start(d domain.Domain, runID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[d] = RunStatus{Domain: d, State: StateRunning, RunID: runID, StartedAt: &at}
}

func (t *statusTracker) finish(d domain.Domain, res RunResult, at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.statuses[d]
	s.FinishedAt = &at
	s.Records = res.Records
	s.High = res.High
	s.Safe = res.Safe
	s.Skipped = res.Skipped
	s.GeocodeFailures = len(res.GeocodeFailures)
	s.State = StateSucceeded
	s.Error = ""
	if err != nil {
		s.State = StateFailed
		s.Error = err.Error()
	}
	t.statuses[d] = s
}
