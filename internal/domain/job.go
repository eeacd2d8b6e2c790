package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// Terminal reports whether no further transition may leave s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusTimedOut:
		return true
	default:
		return false
	}
}

// AssetKind tags uploaded payloads.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindMask  AssetKind = "mask"
)

// GenerationJob is one submitted graph's execution as seen by the client.
// Transitions are driven exclusively by the job runner.
type GenerationJob struct {
	JobID           string               `json:"job_id"`
	ClientToken     string               `json:"client_token"`
	Parameters      GenerationParameters `json:"parameters"`
	Status          JobStatus            `json:"status"`
	ProgressPercent int                  `json:"progress_percent"`
	StageLabel      string               `json:"stage_label"`
	Outputs         []string             `json:"outputs,omitempty"`
	ErrorText       string               `json:"error_text,omitempty"`
	SubmittedAt     time.Time            `json:"submitted_at"`
	FinishedAt      time.Time            `json:"finished_at,omitempty"`
}
