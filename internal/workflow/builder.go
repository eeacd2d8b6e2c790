package workflow

import (
	"math/rand"

	"studio/internal/domain"
)

// Sampler defaults. The backend accepts any of its registered names.
const (
	DefaultSamplerName    = "euler"
	DefaultScheduler      = "simple"
	DefaultFilenamePrefix = "studio"
)

// SeedSource draws a seed when the parameters leave it unset.
type SeedSource func() uint32

// Builder translates GenerationParameters into graphs. It performs no I/O.
type Builder struct {
	catalog        *domain.StyleCatalog
	seed           SeedSource
	samplerName    string
	scheduler      string
	filenamePrefix string
}

// Option customises a Builder.
type Option func(*Builder)

// WithSeedSource replaces the random seed source, mainly for tests.
func WithSeedSource(fn SeedSource) Option {
	return func(b *Builder) { b.seed = fn }
}

// WithSampler overrides the sampler name and scheduler.
func WithSampler(name, scheduler string) Option {
	return func(b *Builder) {
		if name != "" {
			b.samplerName = name
		}
		if scheduler != "" {
			b.scheduler = scheduler
		}
	}
}

// WithFilenamePrefix sets the prefix the save node writes outputs under.
func WithFilenamePrefix(prefix string) Option {
	return func(b *Builder) {
		if prefix != "" {
			b.filenamePrefix = prefix
		}
	}
}

// NewBuilder returns a builder resolving style ids against catalog. A nil
// catalog falls back to the embedded one.
func NewBuilder(catalog *domain.StyleCatalog, opts ...Option) *Builder {
	if catalog == nil {
		catalog = domain.DefaultStyleCatalog()
	}
	b := &Builder{
		catalog:        catalog,
		seed:           rand.Uint32,
		samplerName:    DefaultSamplerName,
		scheduler:      DefaultScheduler,
		filenamePrefix: DefaultFilenamePrefix,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates p and returns a frozen graph. An unset seed is drawn from
// the seed source on every call, so two builds of the same parameters differ.
func (b *Builder) Build(p domain.GenerationParameters) (*Graph, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	style, ok := b.catalog.Lookup(p.StyleModelID)
	if !ok {
		return nil, &domain.ValidationError{Field: "style_model_id", Message: "unknown style " + p.StyleModelID}
	}
	var seed uint32
	if p.Seed != nil {
		seed = *p.Seed
	} else {
		seed = b.seed()
	}

	g := NewGraph()
	g.seed = seed
	latent := g.LatentInit(LatentInit{Width: p.Width, Height: p.Height, BatchSize: p.BatchSize})
	positive := g.TextEncode(TextEncode{Text: p.Prompt})
	negative := g.TextEncode(TextEncode{Text: p.NegativePrompt})
	cond := g.StyleAdapter(StyleAdapter{
		Conditioning: positive,
		StyleModel:   style.StyleModel,
		ClipVision:   style.ClipVision,
		Strength:     *p.StyleStrength,
	})

	if p.Mode == domain.ModeImageToImage {
		cond = b.addReference(g, cond, p.ImageToImage)
	}

	samples := g.Sampler(Sampler{
		Positive:    cond,
		Negative:    negative,
		Latent:      latent,
		Seed:        seed,
		Steps:       p.Steps,
		CFG:         *p.GuidanceScale,
		SamplerName: b.samplerName,
		Scheduler:   b.scheduler,
		Denoise:     1.0,
	})
	pixels := g.Decode(Decode{Samples: samples})
	g.Save(Save{Images: pixels, FilenamePrefix: b.filenamePrefix})

	if err := g.Freeze(); err != nil {
		return nil, err
	}
	return g, nil
}

// addReference wires the image branch. The mask branch exists only when a
// mask asset was uploaded.
func (b *Builder) addReference(g *Graph, cond Conditioning, p *domain.ImageToImage) Conditioning {
	image := g.ImageLoad(ImageLoad{Asset: p.ReferenceImageAssetRef})
	ref := ReferenceConditioning{
		Conditioning:       cond,
		Image:              image,
		Strength:           *p.ReduxStrength,
		DownsamplingFactor: p.DownsamplingFactor,
		Guidance:           *p.Guidance,
	}
	if p.MaskAssetRef != "" {
		m := g.MaskLoad(MaskLoad{Asset: p.MaskAssetRef, Channel: "red"})
		ref.Mask = &m
	}
	return g.ReferenceConditioning(ref)
}
