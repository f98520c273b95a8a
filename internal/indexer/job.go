package indexer

import "time"

// Metadata store keys owned by the rebuild job.
const (
	keyCheckpoint   = "index/checkpoint"
	keyJob          = "index/job"
	keyNeedsRebuild = "index/needs_rebuild"
)

// JobStatus is the state of the index job.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// Job is the persisted record of the most recent rebuild. At most one
// RUNNING instance exists system-wide.
type Job struct {
	ID         string    `json:"id"`
	Status     JobStatus `json:"status"`
	Progress   float64   `json:"progress"`
	Cursor     string    `json:"cursor,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Checkpoint is the persisted progress marker that lets an interrupted
// rebuild resume. Processed is monotonic within one run; Total is fixed at
// run start and re-validated on resume; a mismatch means the document set
// changed and the checkpoint is discarded.
type Checkpoint struct {
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	LastID    string `json:"last_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
}
