package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// Mode selects the graph shape built for a request.
type Mode string

const (
	ModeTextToImage  Mode = "text_to_image"
	ModeImageToImage Mode = "image_to_image"
)

// Defaults applied by WithDefaults for fields left at their zero value.
const (
	DefaultSteps              = 20
	DefaultGuidanceScale      = 3.5
	DefaultStyleStrength      = 1.0
	DefaultDimension          = 1024
	DefaultBatchSize          = 1
	DefaultReduxStrength      = 1.0
	DefaultDownsamplingFactor = 3
	DefaultReferenceGuidance  = 3.5
)

// ImageToImage holds the parameters only meaningful for ModeImageToImage.
type ImageToImage struct {
	ReferenceImageAssetRef string   `json:"reference_image_asset_ref,omitempty"`
	MaskAssetRef           string   `json:"mask_asset_ref,omitempty"`
	ReduxStrength          *float64 `json:"redux_strength,omitempty" validate:"required,gte=0"`
	DownsamplingFactor     int      `json:"downsampling_factor" validate:"gte=1"`
	Guidance               *float64 `json:"guidance,omitempty" validate:"required,gte=0"`
}

// GenerationParameters is the immutable request value handed to the graph
// builder. Treat it as a value: copy, never mutate a shared instance.
type GenerationParameters struct {
	Prompt         string        `json:"prompt" validate:"required"`
	NegativePrompt string        `json:"negative_prompt,omitempty"`
	StyleModelID   string        `json:"style_model_id" validate:"required"`
	StyleStrength  *float64      `json:"style_strength,omitempty" validate:"required,gte=0,lte=2"`
	Steps          int           `json:"steps" validate:"gte=1,lte=150"`
	GuidanceScale  *float64      `json:"guidance_scale,omitempty" validate:"required,gte=0"`
	Width          int           `json:"width" validate:"gt=0"`
	Height         int           `json:"height" validate:"gt=0"`
	BatchSize      int           `json:"batch_size" validate:"gt=0"`
	Seed           *uint32       `json:"seed,omitempty"`
	Mode           Mode          `json:"mode" validate:"oneof=text_to_image image_to_image"`
	ImageToImage   *ImageToImage `json:"image_to_image,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Float returns a pointer to v, for the optional numeric parameters.
func Float(v float64) *float64 { return &v }

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(*v)
}

// Normalize returns a copy with trimmed, NFC-normalized text fields so that
// visually identical prompts produce identical graphs.
func (p GenerationParameters) Normalize() GenerationParameters {
	out := p
	out.Prompt = norm.NFC.String(strings.TrimSpace(p.Prompt))
	out.NegativePrompt = norm.NFC.String(strings.TrimSpace(p.NegativePrompt))
	out.StyleModelID = strings.ToLower(strings.TrimSpace(p.StyleModelID))
	if p.Seed != nil {
		seed := *p.Seed
		out.Seed = &seed
	}
	out.StyleStrength = cloneFloat(p.StyleStrength)
	out.GuidanceScale = cloneFloat(p.GuidanceScale)
	if p.ImageToImage != nil {
		i2i := *p.ImageToImage
		i2i.ReduxStrength = cloneFloat(i2i.ReduxStrength)
		i2i.Guidance = cloneFloat(i2i.Guidance)
		i2i.ReferenceImageAssetRef = strings.TrimSpace(i2i.ReferenceImageAssetRef)
		i2i.MaskAssetRef = strings.TrimSpace(i2i.MaskAssetRef)
		out.ImageToImage = &i2i
	}
	return out
}

// WithDefaults fills unset fields and the mode. Zero is a valid strength or
// guidance, so those are only defaulted when nil.
func (p GenerationParameters) WithDefaults(defaultStyle string) GenerationParameters {
	out := p.Normalize()
	if out.Mode == "" {
		out.Mode = ModeTextToImage
	}
	if out.StyleModelID == "" {
		out.StyleModelID = defaultStyle
	}
	if out.StyleStrength == nil {
		out.StyleStrength = Float(DefaultStyleStrength)
	}
	if out.Steps == 0 {
		out.Steps = DefaultSteps
	}
	if out.GuidanceScale == nil {
		out.GuidanceScale = Float(DefaultGuidanceScale)
	}
	if out.Width == 0 {
		out.Width = DefaultDimension
	}
	if out.Height == 0 {
		out.Height = DefaultDimension
	}
	if out.BatchSize == 0 {
		out.BatchSize = DefaultBatchSize
	}
	if out.Mode == ModeImageToImage {
		if out.ImageToImage == nil {
			out.ImageToImage = &ImageToImage{}
		}
		if out.ImageToImage.ReduxStrength == nil {
			out.ImageToImage.ReduxStrength = Float(DefaultReduxStrength)
		}
		if out.ImageToImage.DownsamplingFactor == 0 {
			out.ImageToImage.DownsamplingFactor = DefaultDownsamplingFactor
		}
		if out.ImageToImage.Guidance == nil {
			out.ImageToImage.Guidance = Float(DefaultReferenceGuidance)
		}
	}
	return out
}

// ValidateShape checks every rule that does not depend on uploaded assets.
// Callers use it before uploading anything.
func (p GenerationParameters) ValidateShape() error {
	if strings.TrimSpace(p.Prompt) == "" {
		return &ValidationError{Field: "prompt", Message: "is required"}
	}
	if err := validate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Field: fe.Field(), Message: describeRule(fe)}
		}
		return &ValidationError{Message: err.Error()}
	}
	if p.Mode == ModeImageToImage && p.ImageToImage == nil {
		return &ValidationError{Field: "image_to_image", Message: "is required in image_to_image mode"}
	}
	return nil
}

// Validate runs ValidateShape and additionally requires the reference image
// asset for image-to-image requests.
func (p GenerationParameters) Validate() error {
	if err := p.ValidateShape(); err != nil {
		return err
	}
	if p.Mode == ModeImageToImage && strings.TrimSpace(p.ImageToImage.ReferenceImageAssetRef) == "" {
		return &ValidationError{Field: "reference_image_asset_ref", Message: "is required in image_to_image mode"}
	}
	return nil
}

// DimensionWarnings lists soft problems that do not block a submission.
func (p GenerationParameters) DimensionWarnings() []string {
	var out []string
	if p.Width%8 != 0 {
		out = append(out, fmt.Sprintf("width %d is not a multiple of 8", p.Width))
	}
	if p.Height%8 != 0 {
		out = append(out, fmt.Sprintf("height %d is not a multiple of 8", p.Height))
	}
	return out
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}
