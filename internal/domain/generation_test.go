package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() GenerationParameters {
	return GenerationParameters{Prompt: "a red cube"}.WithDefaults("flux-redux")
}

func TestGenerationParametersValidateShape(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *GenerationParameters)
		field  string
	}{
		{name: "valid defaults", mutate: func(p *GenerationParameters) {}},
		{name: "blank prompt", mutate: func(p *GenerationParameters) { p.Prompt = "   " }, field: "prompt"},
		{name: "style strength above range", mutate: func(p *GenerationParameters) { p.StyleStrength = Float(2.5) }, field: "style_strength"},
		{name: "zero steps", mutate: func(p *GenerationParameters) { p.Steps = 0 }, field: "steps"},
		{name: "too many steps", mutate: func(p *GenerationParameters) { p.Steps = 151 }, field: "steps"},
		{name: "negative guidance", mutate: func(p *GenerationParameters) { p.GuidanceScale = Float(-1) }, field: "guidance_scale"},
		{name: "zero width", mutate: func(p *GenerationParameters) { p.Width = 0 }, field: "width"},
		{name: "zero batch", mutate: func(p *GenerationParameters) { p.BatchSize = 0 }, field: "batch_size"},
		{name: "unknown mode", mutate: func(p *GenerationParameters) { p.Mode = "sketch" }, field: "mode"},
		{
			name:   "image mode without block",
			mutate: func(p *GenerationParameters) { p.Mode = ModeImageToImage; p.ImageToImage = nil },
			field:  "image_to_image",
		},
		{
			name: "bad downsampling factor",
			mutate: func(p *GenerationParameters) {
				p.Mode = ModeImageToImage
				p.ImageToImage = &ImageToImage{DownsamplingFactor: 0, ReduxStrength: Float(1), Guidance: Float(1)}
			},
			field: "downsampling_factor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			err := p.ValidateShape()
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateRequiresReferenceForImageToImage(t *testing.T) {
	p := GenerationParameters{Prompt: "restyle", Mode: ModeImageToImage}.WithDefaults("flux-redux")
	require.NoError(t, p.ValidateShape())

	err := p.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "reference_image_asset_ref", verr.Field)

	p.ImageToImage.ReferenceImageAssetRef = "asset-1"
	assert.NoError(t, p.Validate())
}

func TestNormalizeTrimsAndComposesPrompt(t *testing.T) {
	seed := uint32(7)
	// "e" followed by a combining acute accent composes to a single rune.
	p := GenerationParameters{Prompt: "  cafe\u0301  ", StyleModelID: " Watercolor ", Seed: &seed}
	out := p.Normalize()

	assert.Equal(t, "caf\u00e9", out.Prompt)
	assert.Equal(t, "watercolor", out.StyleModelID)
	require.NotNil(t, out.Seed)
	assert.Equal(t, uint32(7), *out.Seed)
	assert.NotSame(t, p.Seed, out.Seed)
}

func TestWithDefaultsKeepsExplicitValues(t *testing.T) {
	p := GenerationParameters{Prompt: "x", Steps: 42, Width: 512, Height: 768, BatchSize: 2}.WithDefaults("anime")

	assert.Equal(t, ModeTextToImage, p.Mode)
	assert.Equal(t, "anime", p.StyleModelID)
	assert.Equal(t, 42, p.Steps)
	assert.Equal(t, 512, p.Width)
	assert.Equal(t, 768, p.Height)
	assert.Equal(t, 2, p.BatchSize)
	assert.Nil(t, p.ImageToImage)
}

func TestWithDefaultsKeepsExplicitZeroStrengths(t *testing.T) {
	in := GenerationParameters{
		Prompt:        "x",
		StyleStrength: Float(0),
		GuidanceScale: Float(0),
		Mode:          ModeImageToImage,
		ImageToImage:  &ImageToImage{ReduxStrength: Float(0), Guidance: Float(0)},
	}
	p := in.WithDefaults("flux-redux")
	require.NoError(t, p.ValidateShape())

	assert.Equal(t, 0.0, *p.StyleStrength)
	assert.Equal(t, 0.0, *p.GuidanceScale)
	assert.Equal(t, 0.0, *p.ImageToImage.ReduxStrength)
	assert.Equal(t, 0.0, *p.ImageToImage.Guidance)
	assert.NotSame(t, in.StyleStrength, p.StyleStrength)
	assert.NotSame(t, in.ImageToImage.Guidance, p.ImageToImage.Guidance)

	unset := GenerationParameters{Prompt: "x", Mode: ModeImageToImage}.WithDefaults("flux-redux")
	assert.Equal(t, DefaultStyleStrength, *unset.StyleStrength)
	assert.Equal(t, DefaultGuidanceScale, *unset.GuidanceScale)
	assert.Equal(t, DefaultReduxStrength, *unset.ImageToImage.ReduxStrength)
	assert.Equal(t, DefaultReferenceGuidance, *unset.ImageToImage.Guidance)
}

func TestValidateShapeRequiresResolvedStrengths(t *testing.T) {
	p := validParams()
	p.StyleStrength = nil
	var verr *ValidationError
	require.True(t, errors.As(p.ValidateShape(), &verr))
	assert.Equal(t, "style_strength", verr.Field)
}

func TestDimensionWarnings(t *testing.T) {
	p := validParams()
	assert.Empty(t, p.DimensionWarnings())

	p.Width = 500
	assert.Len(t, p.DimensionWarnings(), 1)
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusQueued.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusSucceeded.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusTimedOut.Terminal())
}
