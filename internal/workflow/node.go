package workflow

import (
	"encoding/json"
	"fmt"
)

// NodeID identifies a node inside one graph.
type NodeID string

// Ref addresses one output slot of a node. It serialises as [node, slot].
type Ref struct {
	Node NodeID
	Slot int
}

func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{string(r.Node), r.Slot})
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Node, r.Slot)
}

// Typed output handles. They are only produced by the Graph methods that add
// the producing node, so builder code cannot wire an input to a node that is
// not in the graph or to a slot of the wrong type.
type (
	Latent       struct{ ref Ref }
	Conditioning struct{ ref Ref }
	Pixels       struct{ ref Ref }
	Mask         struct{ ref Ref }
)

func (h Latent) Ref() Ref       { return h.ref }
func (h Conditioning) Ref() Ref { return h.ref }
func (h Pixels) Ref() Ref       { return h.ref }
func (h Mask) Ref() Ref         { return h.ref }

// Node kinds as understood by the backend.
const (
	KindLatentInit            = "EmptyLatentImage"
	KindTextEncode            = "CLIPTextEncode"
	KindStyleAdapter          = "StyleModelApply"
	KindSampler               = "KSampler"
	KindDecode                = "VAEDecode"
	KindSave                  = "SaveImage"
	KindImageLoad             = "LoadImage"
	KindMaskLoad              = "LoadImageMask"
	KindReferenceConditioning = "ReduxAdvanced"
)

// Node is the closed set of node variants defined in this package.
type Node interface {
	Kind() string
	// Inputs returns literal values and Ref edges keyed by input name.
	Inputs() map[string]any
	outputs() int
}

// LatentInit allocates an empty latent batch.
type LatentInit struct {
	Width     int
	Height    int
	BatchSize int
}

func (n LatentInit) Kind() string { return KindLatentInit }
func (n LatentInit) outputs() int { return 1 }
func (n LatentInit) Inputs() map[string]any {
	return map[string]any{"width": n.Width, "height": n.Height, "batch_size": n.BatchSize}
}

// TextEncode turns a prompt into conditioning.
type TextEncode struct {
	Text string
}

func (n TextEncode) Kind() string { return KindTextEncode }
func (n TextEncode) outputs() int { return 1 }
func (n TextEncode) Inputs() map[string]any {
	return map[string]any{"text": n.Text}
}

// StyleAdapter applies a catalog style model to conditioning.
type StyleAdapter struct {
	Conditioning Conditioning
	StyleModel   string
	ClipVision   string
	Strength     float64
}

func (n StyleAdapter) Kind() string { return KindStyleAdapter }
func (n StyleAdapter) outputs() int { return 1 }
func (n StyleAdapter) Inputs() map[string]any {
	in := map[string]any{
		"conditioning": n.Conditioning.ref,
		"style_model":  n.StyleModel,
		"strength":     n.Strength,
	}
	if n.ClipVision != "" {
		in["clip_vision"] = n.ClipVision
	}
	return in
}

// ImageLoad reads an uploaded asset into pixels.
type ImageLoad struct {
	Asset string
}

func (n ImageLoad) Kind() string { return KindImageLoad }
func (n ImageLoad) outputs() int { return 1 }
func (n ImageLoad) Inputs() map[string]any {
	return map[string]any{"image": n.Asset}
}

// MaskLoad reads one channel of an uploaded mask asset.
type MaskLoad struct {
	Asset   string
	Channel string
}

func (n MaskLoad) Kind() string { return KindMaskLoad }
func (n MaskLoad) outputs() int { return 1 }
func (n MaskLoad) Inputs() map[string]any {
	channel := n.Channel
	if channel == "" {
		channel = "red"
	}
	return map[string]any{"image": n.Asset, "channel": channel}
}

// ReferenceConditioning blends text conditioning with features of a
// reference image, optionally restricted by a mask.
type ReferenceConditioning struct {
	Conditioning       Conditioning
	Image              Pixels
	Mask               *Mask
	Strength           float64
	DownsamplingFactor int
	Guidance           float64
}

func (n ReferenceConditioning) Kind() string { return KindReferenceConditioning }
func (n ReferenceConditioning) outputs() int { return 1 }
func (n ReferenceConditioning) Inputs() map[string]any {
	in := map[string]any{
		"conditioning":        n.Conditioning.ref,
		"image":               n.Image.ref,
		"strength":            n.Strength,
		"downsampling_factor": n.DownsamplingFactor,
		"guidance":            n.Guidance,
	}
	if n.Mask != nil {
		in["mask"] = n.Mask.ref
	}
	return in
}

// Sampler denoises the latent batch.
type Sampler struct {
	Positive    Conditioning
	Negative    Conditioning
	Latent      Latent
	Seed        uint32
	Steps       int
	CFG         float64
	SamplerName string
	Scheduler   string
	Denoise     float64
}

func (n Sampler) Kind() string { return KindSampler }
func (n Sampler) outputs() int { return 1 }
func (n Sampler) Inputs() map[string]any {
	return map[string]any{
		"positive":     n.Positive.ref,
		"negative":     n.Negative.ref,
		"latent_image": n.Latent.ref,
		"seed":         n.Seed,
		"steps":        n.Steps,
		"cfg":          n.CFG,
		"sampler_name": n.SamplerName,
		"scheduler":    n.Scheduler,
		"denoise":      n.Denoise,
	}
}

// Decode converts latents to pixels.
type Decode struct {
	Samples Latent
}

func (n Decode) Kind() string { return KindDecode }
func (n Decode) outputs() int { return 1 }
func (n Decode) Inputs() map[string]any {
	return map[string]any{"samples": n.Samples.ref}
}

// Save is the terminal output node.
type Save struct {
	Images         Pixels
	FilenamePrefix string
}

func (n Save) Kind() string { return KindSave }
func (n Save) outputs() int { return 0 }
func (n Save) Inputs() map[string]any {
	return map[string]any{"images": n.Images.ref, "filename_prefix": n.FilenamePrefix}
}
