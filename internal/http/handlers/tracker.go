package handlers

import (
	"sync"
	"time"

	"studio/internal/domain"
	"studio/internal/jobrunner"
	"studio/internal/session"
)

const trackerRetention = time.Hour

// Generation is the API view of one asynchronous generation request.
type Generation struct {
	ID        string                        `json:"id"`
	Status    domain.JobStatus              `json:"status"`
	Progress  jobrunner.Progress            `json:"progress"`
	Job       *domain.GenerationJob         `json:"job,omitempty"`
	Records   []domain.GeneratedImageRecord `json:"records,omitempty"`
	Warnings  []string                      `json:"warnings,omitempty"`
	Error     string                        `json:"error,omitempty"`
	ErrorCode string                        `json:"error_code,omitempty"`
	CreatedAt time.Time                     `json:"created_at"`
	UpdatedAt time.Time                     `json:"updated_at"`
}

// Tracker keeps recent generations in memory for status polling by clients.
type Tracker struct {
	mu    sync.RWMutex
	items map[string]*Generation
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{items: make(map[string]*Generation), now: time.Now}
}

// Start registers a queued generation and prunes finished ones past retention.
func (t *Tracker) Start(id string) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, g := range t.items {
		if g.Status.Terminal() && now.Sub(g.UpdatedAt) > trackerRetention {
			delete(t.items, key)
		}
	}
	t.items[id] = &Generation{
		ID:        id,
		Status:    domain.JobStatusQueued,
		Progress:  jobrunner.Progress{Status: domain.JobStatusQueued},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Progress records a runner event. Terminal state is set by Finish only.
func (t *Tracker) Progress(id string, p jobrunner.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.items[id]
	if !ok || g.Status.Terminal() {
		return
	}
	if p.Percent < g.Progress.Percent {
		p.Percent = g.Progress.Percent
	}
	g.Progress = p
	if !p.Status.Terminal() {
		g.Status = p.Status
	}
	g.UpdatedAt = t.now()
}

// Finish stores the session outcome.
func (t *Tracker) Finish(id string, res session.Result, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.items[id]
	if !ok {
		return
	}
	g.Warnings = res.Warnings
	g.Records = res.Records
	if res.Job.Status != "" {
		job := res.Job
		g.Job = &job
		g.Progress.JobID = job.JobID
		g.Progress.Percent = job.ProgressPercent
		g.Progress.Stage = job.StageLabel
	}
	switch {
	case err != nil:
		_, g.ErrorCode = errorStatus(err)
		g.Error = err.Error()
		g.Status = domain.JobStatusFailed
		if res.Job.Status == domain.JobStatusTimedOut {
			g.Status = domain.JobStatusTimedOut
		}
	default:
		g.Status = res.Job.Status
	}
	g.Progress.Status = g.Status
	g.UpdatedAt = t.now()
}

// Get returns a copy of the generation.
func (t *Tracker) Get(id string) (Generation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.items[id]
	if !ok {
		return Generation{}, false
	}
	return *g, true
}

// Len returns the number of tracked generations.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}
