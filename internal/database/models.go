package database

import "time"

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Run is one execution of a job.
type Run struct {
	ID         string
	Job        string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Summary    *string
	Error      *string
}

// Duration returns how long the run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StreamCheck is the outcome of checking one channel during a run.
type StreamCheck struct {
	RunID       string
	StreamID    string
	DisplayName string
	IsLive      bool
	VideoID     *string
	Title       *string
	MatchScore  int
	CheckedAt   time.Time
}
