package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studio/internal/domain"
	"studio/internal/jobrunner"
	"studio/internal/mask"
	"studio/pkg/zip"
)

const maxGenerationBody = 32 << 20

type generationRequest struct {
	Parameters domain.GenerationParameters `json:"parameters"`
	// SourceImage is a base64 PNG or JPEG bound to the session's mask
	// surface for image-to-image requests without a pre-uploaded reference.
	SourceImage string        `json:"source_image,omitempty"`
	Strokes     []mask.Stroke `json:"strokes,omitempty"`
}

type generationAccepted struct {
	ID       string           `json:"id"`
	Status   domain.JobStatus `json:"status"`
	Warnings []string         `json:"warnings,omitempty"`
}

// CreateGeneration validates the request synchronously, then runs the
// generation in the background and returns its tracking id.
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req generationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGenerationBody))
	if err := dec.Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	params := req.Parameters.WithDefaults(a.Catalog.Default)
	if err := params.ValidateShape(); err != nil {
		a.fail(w, err)
		return
	}
	if _, ok := a.Catalog.Lookup(params.StyleModelID); !ok {
		a.error(w, http.StatusBadRequest, "invalid_parameters", "style_model_id: unknown style "+params.StyleModelID)
		return
	}

	id := uuid.NewString()
	sess, err := a.newSession(func(p jobrunner.Progress) { a.Tracker.Progress(id, p) })
	if err != nil {
		a.fail(w, err)
		return
	}
	if params.Mode == domain.ModeImageToImage && params.ImageToImage.ReferenceImageAssetRef == "" {
		if err := bindSource(sess.Surface(), req.SourceImage, req.Strokes); err != nil {
			sess.Close()
			a.fail(w, err)
			return
		}
	}

	a.Tracker.Start(id)
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		defer sess.Close()
		res, err := sess.Generate(a.ctx, params)
		a.Tracker.Finish(id, res, err)
		log := a.Logger.With().Str("generation_id", id).Str("job_id", res.Job.JobID).Logger()
		if err != nil {
			log.Warn().Err(err).Msg("generation: finished with error")
			return
		}
		log.Info().Int("records", len(res.Records)).Msg("generation: finished")
	}()

	a.json(w, http.StatusAccepted, generationAccepted{ID: id, Status: domain.JobStatusQueued, Warnings: params.DimensionWarnings()})
}

func bindSource(surface *mask.Surface, encoded string, strokes []mask.Stroke) error {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return &domain.ValidationError{Field: "source_image", Message: "is required in image_to_image mode without reference_image_asset_ref"}
	}
	if _, data, ok := strings.Cut(encoded, ";base64,"); ok {
		encoded = data
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return &domain.ValidationError{Field: "source_image", Message: "must be base64"}
	}
	img, err := mask.DecodeImage(raw)
	if err != nil {
		return &domain.ValidationError{Field: "source_image", Message: err.Error()}
	}
	surface.Bind(img)
	for i, st := range strokes {
		if err := surface.ApplyStroke(st); err != nil {
			return &domain.ValidationError{Field: fmt.Sprintf("strokes[%d]", i), Message: err.Error()}
		}
	}
	return nil
}

// GetGeneration returns the tracked state of one generation.
func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	g, ok := a.Tracker.Get(chi.URLParam(r, "id"))
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "generation not found")
		return
	}
	a.json(w, http.StatusOK, g)
}

// GenerationArchive zips the locally cached outputs of a succeeded generation.
func (a *App) GenerationArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, ok := a.Tracker.Get(id)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "generation not found")
		return
	}
	if g.Status != domain.JobStatusSucceeded {
		a.error(w, http.StatusConflict, "not_ready", "generation has not succeeded")
		return
	}
	entries := make([]zip.Entry, 0, len(g.Records))
	for _, rec := range g.Records {
		if rec.LocalCacheRef == "" {
			continue
		}
		data, err := a.Store.Read(r.Context(), rec.LocalCacheRef)
		if err != nil {
			a.Logger.Warn().Err(err).Str("key", rec.LocalCacheRef).Msg("generation: cached output unreadable")
			continue
		}
		entries = append(entries, zip.Entry{Name: path.Base(rec.LocalCacheRef), Data: data, Modified: rec.CreatedAt})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_cached", "no cached outputs for this generation")
		return
	}
	archive, err := zip.Archive(entries)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=generation-%s.zip", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
