package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const maxGalleryLimit = 200

// ListGallery returns records newest first. ?favorites=true filters, ?limit
// caps the page.
func (a *App) ListGallery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit > maxGalleryLimit {
		limit = maxGalleryLimit
	}
	favorites, _ := strconv.ParseBool(q.Get("favorites"))
	items, err := a.Gallery.List(r.Context(), favorites, limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("gallery: list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load gallery")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

type favoriteRequest struct {
	Favorite *bool `json:"favorite"`
}

// SetFavorite toggles the favorite flag of one record.
func (a *App) SetFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Favorite == nil {
		a.error(w, http.StatusBadRequest, "bad_request", "favorite flag required")
		return
	}
	rec, err := a.Gallery.SetFavorite(r.Context(), chi.URLParam(r, "id"), *req.Favorite)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, rec)
}
