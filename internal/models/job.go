// -----------------------------------------------------------------------
// Jobs - background work units (training, generation, indexing)
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/google/uuid"
)

// JobKind classifies background work.
type JobKind string

const (
	JobKindTraining   JobKind = "training"
	JobKindGeneration JobKind = "generation"
	JobKindIndexing   JobKind = "indexing"
)

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStatePaused    JobState = "paused"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// IsTerminal reports whether no further transition can leave the state.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

// IsActive reports whether the job holds (or is waiting on) its resources.
func (s JobState) IsActive() bool {
	return s == JobStateQueued || s == JobStateRunning || s == JobStatePaused
}

// Job is a supervised unit of long-running work.
type Job struct {
	ID         string                 `json:"id"`
	Kind       JobKind                `json:"kind" badgerhold:"index"`
	Owner      string                 `json:"owner" badgerhold:"index"` // Project or repository name
	State      JobState               `json:"state" badgerhold:"index"`
	PID        int                    `json:"pid,omitempty"`            // Process id for supervised subprocesses
	Processed  int                    `json:"processed"`                // Items processed so far
	Total      int                    `json:"total"`                    // Items planned
	Outcomes   []ItemOutcome          `json:"outcomes,omitempty"`       // Generation item results
	Config     map[string]interface{} `json:"config,omitempty"`         // Snapshot of the request
	Error      string                 `json:"error,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

// NewJob creates a queued job with a fresh id.
func NewJob(kind JobKind, owner string, config map[string]interface{}) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Owner:     owner,
		State:     JobStateQueued,
		Config:    config,
		CreatedAt: time.Now(),
	}
}

// Progress returns processed/total as a fraction in [0,1].
func (j *Job) Progress() float64 {
	if j.Total <= 0 {
		return 0
	}
	p := float64(j.Processed) / float64(j.Total)
	if p > 1 {
		return 1
	}
	return p
}

// Clone returns a copy that shares no mutable slices with j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Outcomes != nil {
		c.Outcomes = append([]ItemOutcome(nil), j.Outcomes...)
	}
	if j.Config != nil {
		c.Config = make(map[string]interface{}, len(j.Config))
		for k, v := range j.Config {
			c.Config[k] = v
		}
	}
	return &c
}
