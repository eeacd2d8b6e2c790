package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"studio/internal/http/handlers"
	"studio/internal/middleware"
)

// Options tunes the router middleware.
type Options struct {
	RateLimitPerMin int
	AllowedOrigins  []string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/styles", app.Styles)

	r.Route("/v1/generations", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.CreateGeneration)
		r.Get("/{id}", app.GetGeneration)
		r.Get("/{id}/archive", app.GenerationArchive)
	})

	r.Route("/v1/gallery", func(r chi.Router) {
		r.Get("/", app.ListGallery)
		r.Post("/{id}/favorite", app.SetFavorite)
	})

	return r
}
