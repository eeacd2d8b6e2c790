package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"studio/internal/backend"
	"studio/internal/domain"
	"studio/internal/gallery"
	"studio/internal/infra"
	"studio/internal/jobrunner"
	"studio/internal/session"
	"studio/internal/storage"
	"studio/internal/workflow"
)

// App carries the dependencies shared by every handler. Each generation
// request gets its own session; nothing here is per-request state except the
// tracker.
type App struct {
	Logger  infra.Logger
	Catalog *domain.StyleCatalog
	Backend *backend.Client
	Builder *workflow.Builder
	Runner  *jobrunner.Runner
	Store   *storage.FileStore
	Gallery gallery.Store
	Tracker *Tracker

	// ctx bounds background generations and outlives the requests that
	// start them.
	ctx      context.Context
	inflight sync.WaitGroup
	started  time.Time
}

// NewApp wires the handlers. ctx bounds background generations.
func NewApp(ctx context.Context, logger infra.Logger, catalog *domain.StyleCatalog, client *backend.Client, runner *jobrunner.Runner, store *storage.FileStore, sink gallery.Store) *App {
	if catalog == nil {
		catalog = domain.DefaultStyleCatalog()
	}
	if sink == nil {
		sink = gallery.NewMemoryStore()
	}
	return &App{
		Logger:  logger,
		Catalog: catalog,
		Backend: client,
		Builder: workflow.NewBuilder(catalog),
		Runner:  runner,
		Store:   store,
		Gallery: sink,
		Tracker: NewTracker(),
		ctx:     ctx,
		started: time.Now(),
	}
}

// Wait blocks until every background generation has returned.
func (a *App) Wait() {
	a.inflight.Wait()
}

func (a *App) newSession(onProgress func(jobrunner.Progress)) (*session.Session, error) {
	return session.New(session.Options{
		Uploader:     a.Backend,
		Fetcher:      a.Backend,
		Builder:      a.Builder,
		Runner:       a.Runner.WithProgress(onProgress),
		Cache:        a.Store,
		Gallery:      a.Gallery,
		Logger:       &a.Logger,
		DefaultStyle: a.Catalog.Default,
	})
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

// errorStatus maps the domain error taxonomy onto HTTP responses.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "invalid_parameters"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrSessionBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, domain.ErrUpload):
		return http.StatusBadGateway, "upload_failed"
	case errors.Is(err, domain.ErrSubmission):
		return http.StatusBadGateway, "submission_failed"
	case errors.Is(err, domain.ErrBackendExecution):
		return http.StatusBadGateway, "generation_failed"
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout, "timed_out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (a *App) fail(w http.ResponseWriter, err error) {
	code, errCode := errorStatus(err)
	a.error(w, code, errCode, err.Error())
}

// Health reports liveness and uptime.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime_s":    int(time.Since(a.started).Seconds()),
		"generations": a.Tracker.Len(),
	})
}

// Styles lists the style catalog.
func (a *App) Styles(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"default": a.Catalog.Default,
		"items":   a.Catalog.Styles,
	})
}
