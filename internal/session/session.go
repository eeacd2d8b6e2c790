// Package session sequences one user-initiated generation: asset export and
// upload, graph build, job run, output caching and gallery persistence.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"studio/internal/domain"
	"studio/internal/gallery"
	"studio/internal/infra"
	"studio/internal/mask"
	"studio/internal/workflow"
)

var (
	// ErrSessionBusy rejects a Generate call while another one is running on
	// the same session.
	ErrSessionBusy = errors.New("session: a generation is already in progress")
	// ErrSessionClosed rejects Generate after Close.
	ErrSessionClosed = errors.New("session: closed")
)

const (
	defaultPersistTimeout = 30 * time.Second
	diagnosticsBuffer     = 16
)

// Uploader pushes exported assets to the backend.
type Uploader interface {
	Upload(ctx context.Context, data []byte, kind domain.AssetKind, filename string) (string, error)
}

// Fetcher downloads produced outputs.
type Fetcher interface {
	FetchAsset(ctx context.Context, refOrURL string) ([]byte, string, error)
}

// Builder turns parameters into a frozen graph.
type Builder interface {
	Build(p domain.GenerationParameters) (*workflow.Graph, error)
}

// Runner drives a submitted graph to a terminal state.
type Runner interface {
	Run(ctx context.Context, graph *workflow.Graph, params domain.GenerationParameters) (domain.GenerationJob, error)
}

// Cache stores fetched outputs locally.
type Cache interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Diagnostic reports a failed background persistence attempt.
type Diagnostic struct {
	JobID   string
	Records int
	Err     error
	At      time.Time
}

// Options wires a Session. Uploader, Builder and Runner are required; Fetcher,
// Cache and Gallery are optional best-effort collaborators.
type Options struct {
	Uploader       Uploader
	Fetcher        Fetcher
	Builder        Builder
	Runner         Runner
	Cache          Cache
	Gallery        gallery.Sink
	Logger         *infra.Logger
	DefaultStyle   string
	PersistTimeout time.Duration
	Now            func() time.Time
	NewID          func() string
}

// Result is what a finished generation hands back to the caller.
type Result struct {
	Job      domain.GenerationJob          `json:"job"`
	Records  []domain.GeneratedImageRecord `json:"records,omitempty"`
	Warnings []string                      `json:"warnings,omitempty"`
}

// Session owns one mask surface and runs generations against it one at a
// time. Independent sessions share no mutable state.
type Session struct {
	opts        Options
	logger      *infra.Logger
	surface     *mask.Surface
	busy        atomic.Bool
	closed      atomic.Bool
	closeMu     sync.Mutex // orders persisting.Add against Close
	persisting  sync.WaitGroup
	diagnostics chan Diagnostic
	closeOnce   sync.Once
}

// New validates opts and returns an idle session with an unbound surface.
func New(opts Options) (*Session, error) {
	if opts.Uploader == nil || opts.Builder == nil || opts.Runner == nil {
		return nil, errors.New("session: uploader, builder and runner are required")
	}
	if opts.DefaultStyle == "" {
		opts.DefaultStyle = domain.DefaultStyleCatalog().Default
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Session{
		opts:        opts,
		logger:      infra.LoggerOrDiscard(opts.Logger),
		surface:     mask.NewSurface(),
		diagnostics: make(chan Diagnostic, diagnosticsBuffer),
	}, nil
}

// Surface exposes the session's mask editor. It is single-owner and must not
// be painted while Generate runs.
func (s *Session) Surface() *mask.Surface {
	return s.surface
}

// Diagnostics delivers background persistence failures. The channel is closed
// by Close.
func (s *Session) Diagnostics() <-chan Diagnostic {
	return s.diagnostics
}

// Close waits for in-flight gallery writes and closes the diagnostics
// channel. It must not race with Generate.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed.Store(true)
		s.closeMu.Unlock()
		s.persisting.Wait()
		close(s.diagnostics)
	})
}

// Generate runs one generation end to end. Validation, upload and submission
// failures return before any polling; terminal job failures return the job
// alongside the typed error. Gallery persistence never fails the call.
func (s *Session) Generate(ctx context.Context, params domain.GenerationParameters) (Result, error) {
	if s.closed.Load() {
		return Result{}, ErrSessionClosed
	}
	if !s.busy.CompareAndSwap(false, true) {
		return Result{}, ErrSessionBusy
	}
	defer s.busy.Store(false)

	p := params.WithDefaults(s.opts.DefaultStyle)
	if err := p.ValidateShape(); err != nil {
		return Result{}, err
	}
	var res Result
	for _, w := range p.DimensionWarnings() {
		s.logger.Warn().Int("width", p.Width).Int("height", p.Height).Msg("session: " + w)
		res.Warnings = append(res.Warnings, w)
	}

	if p.Mode == domain.ModeImageToImage {
		warning, err := s.uploadAssets(ctx, p.ImageToImage)
		if err != nil {
			return res, err
		}
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
		}
	}

	graph, err := s.opts.Builder.Build(p)
	if err != nil {
		return res, err
	}
	seed := graph.Seed()
	p.Seed = &seed

	job, err := s.opts.Runner.Run(ctx, graph, p)
	res.Job = job
	if err != nil {
		return res, err
	}

	res.Records = s.materialize(ctx, job, p)
	s.persist(job.JobID, res.Records)
	return res, nil
}

// uploadAssets exports both layers from the surface, then uploads the source
// and, when painted, the mask. A mask upload failure degrades to an unmasked
// request and is reported as a warning.
func (s *Session) uploadAssets(ctx context.Context, i2i *domain.ImageToImage) (string, error) {
	if i2i.ReferenceImageAssetRef != "" {
		return "", nil
	}
	if !s.surface.Bound() {
		return "", &domain.ValidationError{Field: "reference_image_asset_ref", Message: "no reference image is bound to the mask surface"}
	}
	source, err := s.surface.EncodeSourcePNG()
	if err != nil {
		return "", fmt.Errorf("session: export source: %w", err)
	}
	var maskPNG []byte
	if s.surface.HasPaint() {
		if maskPNG, err = s.surface.EncodeMaskPNG(); err != nil {
			return "", fmt.Errorf("session: export mask: %w", err)
		}
	}

	ref, err := s.opts.Uploader.Upload(ctx, source, domain.AssetKindImage, "source.png")
	if err != nil {
		s.logger.Error().Err(err).Msg("session: source upload failed")
		return "", err
	}
	i2i.ReferenceImageAssetRef = ref

	if maskPNG == nil {
		return "", nil
	}
	maskRef, err := s.opts.Uploader.Upload(ctx, maskPNG, domain.AssetKindMask, "mask.png")
	if err != nil {
		s.logger.Warn().Err(err).Msg("session: mask upload failed, continuing without mask")
		i2i.MaskAssetRef = ""
		return "mask upload failed; generated without a mask", nil
	}
	i2i.MaskAssetRef = maskRef
	return "", nil
}

// materialize caches each output best-effort and builds one record per URL.
func (s *Session) materialize(ctx context.Context, job domain.GenerationJob, p domain.GenerationParameters) []domain.GeneratedImageRecord {
	now := s.opts.Now()
	records := make([]domain.GeneratedImageRecord, 0, len(job.Outputs))
	for i, url := range job.Outputs {
		records = append(records, domain.GeneratedImageRecord{
			ID:            s.opts.NewID(),
			JobID:         job.JobID,
			ImageURL:      url,
			LocalCacheRef: s.cache(ctx, job.JobID, i, url),
			Prompt:        p.Prompt,
			Parameters:    p,
			Status:        job.Status,
			CreatedAt:     now,
		})
	}
	return records
}

func (s *Session) cache(ctx context.Context, jobID string, index int, url string) string {
	if s.opts.Fetcher == nil || s.opts.Cache == nil {
		return ""
	}
	data, format, err := s.opts.Fetcher.FetchAsset(ctx, url)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Str("url", url).Msg("session: output fetch failed")
		return ""
	}
	key := CacheKey(jobID, index, format)
	stored, err := s.opts.Cache.Write(ctx, key, data)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Str("key", key).Msg("session: output cache failed")
		return ""
	}
	return stored
}

// CacheKey is the storage key for the index-th output of a job.
func CacheKey(jobID string, index int, format string) string {
	ext := "png"
	switch {
	case strings.Contains(format, "jpeg"), strings.Contains(format, "jpg"):
		ext = "jpg"
	case strings.Contains(format, "webp"):
		ext = "webp"
	}
	return fmt.Sprintf("generated/%s/image-%02d.%s", jobID, index+1, ext)
}

// persist appends records in a detached goroutine bounded by PersistTimeout.
// Once the session is closed the records are only logged as dropped.
func (s *Session) persist(jobID string, records []domain.GeneratedImageRecord) {
	if s.opts.Gallery == nil || len(records) == 0 {
		return
	}
	s.closeMu.Lock()
	if s.closed.Load() {
		s.closeMu.Unlock()
		s.logger.Warn().Str("job_id", jobID).Int("records", len(records)).Msg("session: closed, gallery write dropped")
		return
	}
	s.persisting.Add(1)
	s.closeMu.Unlock()
	go func() {
		defer s.persisting.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
		defer cancel()
		err := s.opts.Gallery.Append(ctx, records)
		if err == nil {
			s.logger.Debug().Str("job_id", jobID).Int("records", len(records)).Msg("session: gallery updated")
			return
		}
		s.logger.Error().Err(err).Str("job_id", jobID).Int("records", len(records)).Msg("session: gallery append failed")
		select {
		case s.diagnostics <- Diagnostic{JobID: jobID, Records: len(records), Err: err, At: s.opts.Now()}:
		default:
			s.logger.Warn().Str("job_id", jobID).Msg("session: diagnostics channel full, dropping report")
		}
	}()
}
