package scheduler

import (
	"sync"
	"time"
)

// Job statuses in the run summary.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// JobResult is the outcome of one config document.
type JobResult struct {
	Source   string
	Kind     string
	Status   string
	Reason   string
	Err      error
	Outputs  []string
	Started  time.Time
	Finished time.Time
}

// Summary collects every job outcome for one run.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	mu      sync.Mutex
	Results []JobResult
}

func (s *Summary) add(result JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Results = append(s.Results, result)
}

// Failed counts jobs that did not succeed.
func (s *Summary) Failed() int {
	count := 0
	for _, result := range s.Results {
		if result.Status != StatusSucceeded {
			count++
		}
	}
	return count
}

// Succeeded counts jobs that completed without error.
func (s *Summary) Succeeded() int {
	return len(s.Results) - s.Failed()
}
