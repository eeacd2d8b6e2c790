package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinels matched through errors.Is by the typed errors below.
var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("invalid generation parameters")
	ErrUpload           = errors.New("asset upload failed")
	ErrSubmission       = errors.New("job submission rejected")
	ErrPollTransient    = errors.New("job poll failed")
	ErrBackendExecution = errors.New("backend reported job failure")
	ErrTimeout          = errors.New("job timed out")
)

// ValidationError describes malformed parameters. It is raised before any
// network call and is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// UploadError is returned when the backend asset store rejects an upload.
type UploadError struct {
	Kind       AssetKind
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	switch {
	case e.Body != "":
		return fmt.Sprintf("upload %s: %s", e.Kind, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("upload %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("upload %s: http %d", e.Kind, e.StatusCode)
	}
}

func (e *UploadError) Unwrap() error         { return e.Err }
func (e *UploadError) Is(target error) bool { return target == ErrUpload }

// SubmissionError is returned when the backend rejects a workflow graph.
// Submissions are never retried since a retry may duplicate paid compute.
type SubmissionError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submit job: %v", e.Err)
	}
	msg := strings.TrimSpace(e.Status + " " + e.Body)
	if msg == "" {
		msg = fmt.Sprintf("http %d", e.StatusCode)
	}
	return "submit job: " + msg
}

func (e *SubmissionError) Unwrap() error         { return e.Err }
func (e *SubmissionError) Is(target error) bool { return target == ErrSubmission }

// PollTransientError wraps a single failed status poll. The job runner logs
// and swallows it.
type PollTransientError struct {
	JobID   string
	Attempt int
	Err     error
}

func (e *PollTransientError) Error() string {
	return fmt.Sprintf("poll job %s (attempt %d): %v", e.JobID, e.Attempt, e.Err)
}

func (e *PollTransientError) Unwrap() error         { return e.Err }
func (e *PollTransientError) Is(target error) bool { return target == ErrPollTransient }

// BackendExecutionError carries the backend's failure text verbatim.
type BackendExecutionError struct {
	JobID string
	Text  string
}

func (e *BackendExecutionError) Error() string {
	if strings.TrimSpace(e.Text) == "" {
		return "generation failed on the backend"
	}
	return e.Text
}

func (e *BackendExecutionError) Is(target error) bool { return target == ErrBackendExecution }

// TimeoutError means no terminal status was observed in time. The job may
// still be running server-side.
type TimeoutError struct {
	JobID   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s did not finish within %s; it may still be running on the backend", e.JobID, e.Elapsed.Round(time.Second))
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
