// Package jobrunner drives one submitted workflow graph from submission to a
// terminal state, reporting heuristic progress along the way.
package jobrunner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"studio/internal/backend"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/workflow"
)

// Defaults used when Options leave a field unset.
const (
	DefaultPollInterval = time.Second
	DefaultTimeout      = 10 * time.Minute
)

// Progress range. The backend exposes no percentage, so attempts are scaled
// into [progressFloor, progressCeiling] and 100 is reserved for success.
const (
	progressFloor   = 25
	progressCeiling = 95
)

// Backend is the subset of the backend client the runner needs.
type Backend interface {
	Submit(ctx context.Context, graph *workflow.Graph, clientToken string) (string, error)
	Poll(ctx context.Context, jobID string) (backend.JobStatus, error)
	AssetURL(ref string) string
}

// Clock abstracts wall-clock time so tests can simulate long waits.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Progress is emitted on every observable change of the job.
type Progress struct {
	JobID   string           `json:"job_id"`
	Status  domain.JobStatus `json:"status"`
	Percent int              `json:"percent"`
	Stage   string           `json:"stage"`
}

// Options configures a Runner.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Clock        Clock
	Logger       *infra.Logger
	OnProgress   func(Progress)
	NewToken     func() string
}

// Runner owns the lifecycle of jobs it submits. A Runner holds no per-job
// state and may be shared.
type Runner struct {
	backend    Backend
	interval   time.Duration
	timeout    time.Duration
	clock      Clock
	logger     *infra.Logger
	onProgress func(Progress)
	newToken   func() string
}

// New returns a runner over b.
func New(b Backend, opts Options) *Runner {
	r := &Runner{
		backend:    b,
		interval:   opts.PollInterval,
		timeout:    opts.Timeout,
		clock:      opts.Clock,
		logger:     infra.LoggerOrDiscard(opts.Logger),
		onProgress: opts.OnProgress,
		newToken:   opts.NewToken,
	}
	if r.interval <= 0 {
		r.interval = DefaultPollInterval
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.clock == nil {
		r.clock = systemClock{}
	}
	if r.newToken == nil {
		r.newToken = uuid.NewString
	}
	return r
}

// WithProgress returns a copy of r that reports to fn instead.
func (r *Runner) WithProgress(fn func(Progress)) *Runner {
	cp := *r
	cp.onProgress = fn
	return &cp
}

var titleCase = cases.Title(language.English)

// Run submits graph and polls until the job succeeds, fails or times out.
// The returned job always reflects the last observed state. Cancelling ctx
// abandons polling locally and returns ctx.Err(); the remote job is not
// cancelled.
func (r *Runner) Run(ctx context.Context, graph *workflow.Graph, params domain.GenerationParameters) (domain.GenerationJob, error) {
	job := domain.GenerationJob{
		ClientToken: r.newToken(),
		Parameters:  params,
		Status:      domain.JobStatusQueued,
		StageLabel:  "Submitting",
		SubmittedAt: r.clock.Now(),
	}
	r.emit(job)

	jobID, err := r.backend.Submit(ctx, graph, job.ClientToken)
	if err != nil {
		var serr *domain.SubmissionError
		if !errors.As(err, &serr) {
			err = &domain.SubmissionError{Err: err}
		}
		r.finish(&job, domain.JobStatusFailed, err.Error())
		r.logger.Error().Err(err).Str("client_token", job.ClientToken).Msg("jobrunner: submission failed")
		return job, err
	}
	// The job stays queued until the backend reports it has left its queue.
	job.JobID = jobID
	job.ProgressPercent = progressFloor
	job.StageLabel = "Queued"
	r.emit(job)

	return r.poll(ctx, job)
}

func (r *Runner) poll(ctx context.Context, job domain.GenerationJob) (domain.GenerationJob, error) {
	start := r.clock.Now()
	ceiling := int(r.timeout / r.interval)
	if ceiling < 1 {
		ceiling = 1
	}
	log := r.logger.With().Str("job_id", job.JobID).Logger()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			log.Info().Int("attempt", attempt).Msg("jobrunner: polling abandoned")
			return job, ctx.Err()
		case <-r.clock.After(r.interval):
		}

		elapsed := r.clock.Now().Sub(start)
		if elapsed >= r.timeout {
			return r.timedOut(&job, elapsed, log)
		}

		// A single poll may not outlive the overall deadline.
		pollCtx, cancel := context.WithTimeout(ctx, r.timeout-elapsed)
		st, err := r.backend.Poll(pollCtx, job.JobID)
		expired := pollCtx.Err() != nil
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return job, ctx.Err()
			}
			if expired {
				return r.timedOut(&job, r.timeout, log)
			}
			perr := &domain.PollTransientError{JobID: job.JobID, Attempt: attempt, Err: err}
			log.Warn().Err(perr).Int("attempt", attempt).Msg("jobrunner: transient poll failure")
			r.advance(&job, attempt, ceiling, job.Status, job.StageLabel)
			continue
		}

		switch st.Status {
		case backend.RemoteCompleted:
			if len(st.Outputs) == 0 {
				err := &domain.BackendExecutionError{JobID: job.JobID, Text: "backend completed without producing outputs"}
				r.finish(&job, domain.JobStatusFailed, err.Error())
				return job, err
			}
			job.Outputs = make([]string, 0, len(st.Outputs))
			for _, out := range st.Outputs {
				job.Outputs = append(job.Outputs, r.backend.AssetURL(out.AssetRef))
			}
			job.ProgressPercent = 100
			r.finish(&job, domain.JobStatusSucceeded, "")
			log.Info().Int("outputs", len(job.Outputs)).Int("attempt", attempt).Msg("jobrunner: job succeeded")
			return job, nil
		case backend.RemoteError:
			err := &domain.BackendExecutionError{JobID: job.JobID, Text: st.ErrorText}
			r.finish(&job, domain.JobStatusFailed, err.Error())
			log.Error().Str("error_text", st.ErrorText).Msg("jobrunner: backend reported failure")
			return job, err
		default:
			status := job.Status
			if st.Status != backend.RemoteQueued {
				status = domain.JobStatusRunning
			}
			r.advance(&job, attempt, ceiling, status, titleCase.String(st.Status))
		}
	}
}

func (r *Runner) timedOut(job *domain.GenerationJob, elapsed time.Duration, log infra.Logger) (domain.GenerationJob, error) {
	err := &domain.TimeoutError{JobID: job.JobID, Elapsed: elapsed}
	r.finish(job, domain.JobStatusTimedOut, err.Error())
	log.Warn().Dur("elapsed", elapsed).Msg("jobrunner: job timed out")
	return *job, err
}

// advance moves progress along the heuristic curve. Progress never regresses
// and stays below 100 until the job succeeds.
func (r *Runner) advance(job *domain.GenerationJob, attempt, ceiling int, status domain.JobStatus, stage string) {
	percent := progressPercent(attempt, ceiling)
	if percent <= job.ProgressPercent && stage == job.StageLabel && status == job.Status {
		return
	}
	if percent > job.ProgressPercent {
		job.ProgressPercent = percent
	}
	job.Status = status
	job.StageLabel = stage
	r.emit(*job)
}

func progressPercent(attempt, ceiling int) int {
	if attempt > ceiling {
		attempt = ceiling
	}
	return progressFloor + (progressCeiling-progressFloor)*attempt/ceiling
}

func (r *Runner) finish(job *domain.GenerationJob, status domain.JobStatus, errText string) {
	job.Status = status
	job.ErrorText = errText
	job.FinishedAt = r.clock.Now()
	switch status {
	case domain.JobStatusSucceeded:
		job.StageLabel = "Done"
	case domain.JobStatusTimedOut:
		job.StageLabel = "Timed out"
	default:
		job.StageLabel = "Failed"
	}
	r.emit(*job)
}

func (r *Runner) emit(job domain.GenerationJob) {
	if r.onProgress == nil {
		return
	}
	r.onProgress(Progress{
		JobID:   job.JobID,
		Status:  job.Status,
		Percent: job.ProgressPercent,
		Stage:   job.StageLabel,
	})
}
