package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Sync job lifecycle
// =============================================================================

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// IsTerminal reports whether the job has released its user lock.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// SyncStage is the milestone a running job last reported.
type SyncStage string

const (
	StageLoadingKnown SyncStage = "loading_known"
	StageFetching     SyncStage = "fetching"
	StageCollecting   SyncStage = "collecting"
	StageClassifying  SyncStage = "classifying"
	StageDone         SyncStage = "done"
)

// SyncJob is the in-memory progress snapshot of one sync run. At most one
// non-terminal job exists per user.
type SyncJob struct {
	ID     uuid.UUID `json:"job_id"`
	UserID uuid.UUID `json:"user_id"`
	State  JobState  `json:"state"`
	Stage  SyncStage `json:"stage,omitempty"`

	Total            int `json:"total"`
	AlreadyProcessed int `json:"already_processed"`
	New              int `json:"new"`
	Processed        int `json:"processed"`
	Unprocessed      int `json:"unprocessed"`
	Failed           int `json:"failed"`

	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewSyncJob creates a QUEUED job for userID.
func NewSyncJob(userID uuid.UUID, now time.Time) *SyncJob {
	return &SyncJob{
		ID:        uuid.New(),
		UserID:    userID,
		State:     JobQueued,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy safe to hand to readers.
func (j *SyncJob) Clone() *SyncJob {
	if j == nil {
		return nil
	}
	c := *j
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// SyncReport is what a finished Sync Job hands back to the Job Manager.
type SyncReport struct {
	Total            int
	AlreadyProcessed int
	New              int
	Processed        int
	Unprocessed      int
	Failed           int
}

// Apply copies report counts onto the snapshot.
func (j *SyncJob) Apply(r SyncReport) {
	j.Total = r.Total
	j.AlreadyProcessed = r.AlreadyProcessed
	j.New = r.New
	j.Processed = r.Processed
	j.Unprocessed = r.Unprocessed
	j.Failed = r.Failed
}
