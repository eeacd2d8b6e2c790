package mask

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"math"
	"strings"
)

// StrokeStep is the maximum distance, in raster units, between two stamped
// discs along one stroke segment.
const StrokeStep = 2.0

// DefaultBrushSize is the disc radius used until SetBrushSize is called.
const DefaultBrushSize = 20

// MaxImagePixels caps the width*height of images accepted by DecodeImage.
const MaxImagePixels = 40_000_000

// ErrImageTooLarge is returned by DecodeImage for images above MaxImagePixels.
var ErrImageTooLarge = errors.New("mask: image too large")

// ErrNotBound is returned by operations that need a bound source image.
var ErrNotBound = errors.New("mask: no source image bound")

// Tool selects what a stroke writes into the buffer.
type Tool int

const (
	Brush Tool = iota
	Eraser
)

func (t Tool) String() string {
	if t == Eraser {
		return "eraser"
	}
	return "brush"
}

func (t Tool) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tool) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "brush":
		*t = Brush
	case "eraser":
		*t = Eraser
	default:
		return fmt.Errorf("mask: unknown tool %q", string(text))
	}
	return nil
}

var (
	brushPaint  = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	eraserPaint = color.NRGBA{}

	// OverlayTint colours painted regions in CompositeLayer.
	OverlayTint = color.NRGBA{R: 255, G: 48, B: 48, A: 128}
)

// Point is a raster position in source image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Stroke is a recorded gesture that can be replayed with ApplyStroke.
type Stroke struct {
	Tool   Tool    `json:"tool"`
	Size   int     `json:"size"`
	Points []Point `json:"points"`
}

// Surface owns a mask buffer aligned to a bound source image. A Surface has a
// single owner and is not safe for concurrent use.
type Surface struct {
	source    *image.RGBA
	buf       *Buffer
	tool      Tool
	brushSize int
	stroking  bool
	last      Point
}

// NewSurface returns an unbound surface using the brush tool.
func NewSurface() *Surface {
	return &Surface{tool: Brush, brushSize: DefaultBrushSize}
}

// Bind copies src as the new source image and allocates a fresh transparent
// buffer of the same size. Any stroke in progress is dropped.
func (s *Surface) Bind(src image.Image) {
	b := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	s.source = rgba
	s.buf = NewBuffer(b.Dx(), b.Dy())
	s.stroking = false
}

// Bound reports whether a source image is bound.
func (s *Surface) Bound() bool { return s.buf != nil }

// Bounds returns the source rectangle, empty when unbound.
func (s *Surface) Bounds() image.Rectangle {
	if s.source == nil {
		return image.Rectangle{}
	}
	return s.source.Bounds()
}

func (s *Surface) SetTool(t Tool) { s.tool = t }
func (s *Surface) Tool() Tool     { return s.tool }

// SetBrushSize sets the disc radius; values below 1 are raised to 1.
func (s *Surface) SetBrushSize(radius int) {
	if radius < 1 {
		radius = 1
	}
	s.brushSize = radius
}

func (s *Surface) BrushSize() int { return s.brushSize }

// Alpha returns the mask alpha at (x, y).
func (s *Surface) Alpha(x, y int) uint8 {
	if s.buf == nil {
		return 0
	}
	return s.buf.Alpha(x, y)
}

// HasPaint reports whether any pixel is painted.
func (s *Surface) HasPaint() bool {
	return s.buf != nil && s.buf.Painted()
}

// BeginStroke starts a gesture at p and stamps one disc there. An
// unterminated previous stroke is ended first.
func (s *Surface) BeginStroke(p Point) error {
	if s.buf == nil {
		return ErrNotBound
	}
	s.stroking = true
	s.last = p
	s.stamp(p)
	return nil
}

// ContinueStroke paints the segment from the previous point to p, stamping a
// disc at most every StrokeStep units so fast motion still yields a solid band.
func (s *Surface) ContinueStroke(p Point) error {
	if s.buf == nil {
		return ErrNotBound
	}
	if !s.stroking {
		return s.BeginStroke(p)
	}
	if !p.finite() {
		return nil
	}
	if !s.last.finite() {
		return s.BeginStroke(p)
	}
	from := s.last
	s.last = p
	t0, t1, ok := s.clipSegment(from, p)
	if !ok {
		return nil
	}
	dx := p.X - from.X
	dy := p.Y - from.Y
	steps := int(math.Ceil(math.Hypot(dx, dy) * (t1 - t0) / StrokeStep))
	if steps < 1 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		if i == 0 && t0 == 0 {
			continue
		}
		t := t0 + (t1-t0)*float64(i)/float64(steps)
		s.stamp(Point{X: from.X + dx*t, Y: from.Y + dy*t})
	}
	return nil
}

// clipSegment limits the segment a→b to the part whose discs can touch the
// buffer, returned as parameters t0 <= t1 in [0, 1] (Liang-Barsky against the
// buffer grown by the brush radius). ok is false when nothing can be painted.
func (s *Surface) clipSegment(a, b Point) (t0, t1 float64, ok bool) {
	r := float64(s.brushSize)
	minX, maxX := -r, float64(s.buf.Width()-1)+r
	minY, maxY := -r, float64(s.buf.Height()-1)+r
	dx, dy := b.X-a.X, b.Y-a.Y
	t0, t1 = 0, 1
	for _, e := range [4][2]float64{
		{-dx, a.X - minX},
		{dx, maxX - a.X},
		{-dy, a.Y - minY},
		{dy, maxY - a.Y},
	} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return 0, 0, false
			}
			t0 = max(t0, t)
		} else {
			if t < t0 {
				return 0, 0, false
			}
			t1 = min(t1, t)
		}
	}
	return t0, t1, true
}

// EndStroke terminates the current gesture.
func (s *Surface) EndStroke() {
	s.stroking = false
}

// ApplyStroke replays a recorded gesture with its own tool and size. The
// surface's current tool and size are restored afterwards.
func (s *Surface) ApplyStroke(st Stroke) error {
	if s.buf == nil {
		return ErrNotBound
	}
	if len(st.Points) == 0 {
		return nil
	}
	prevTool, prevSize := s.tool, s.brushSize
	defer func() {
		s.tool, s.brushSize = prevTool, prevSize
	}()
	s.SetTool(st.Tool)
	if st.Size > 0 {
		s.SetBrushSize(st.Size)
	}
	if err := s.BeginStroke(st.Points[0]); err != nil {
		return err
	}
	for _, p := range st.Points[1:] {
		if err := s.ContinueStroke(p); err != nil {
			return err
		}
	}
	s.EndStroke()
	return nil
}

// Clear resets the buffer to transparent, keeping its dimensions.
func (s *Surface) Clear() {
	if s.buf != nil {
		s.buf.Clear()
	}
	s.stroking = false
}

// stamp overwrites every pixel whose centre lies within brushSize of c.
func (s *Surface) stamp(c Point) {
	paint := brushPaint
	if s.tool == Eraser {
		paint = eraserPaint
	}
	r := float64(s.brushSize)
	r2 := r * r
	if !c.finite() || c.X+r < 0 || c.Y+r < 0 ||
		c.X-r > float64(s.buf.Width()-1) || c.Y-r > float64(s.buf.Height()-1) {
		return
	}
	minX := max(int(math.Floor(c.X-r)), 0)
	maxX := min(int(math.Ceil(c.X+r)), s.buf.Width()-1)
	minY := max(int(math.Floor(c.Y-r)), 0)
	maxY := min(int(math.Ceil(c.Y+r)), s.buf.Height()-1)
	for y := minY; y <= maxY; y++ {
		dy := float64(y) - c.Y
		for x := minX; x <= maxX; x++ {
			dx := float64(x) - c.X
			if dx*dx+dy*dy <= r2 {
				s.buf.Set(x, y, paint)
			}
		}
	}
}

// SourceImage returns a copy of the bound source image.
func (s *Surface) SourceImage() (*image.RGBA, error) {
	if s.source == nil {
		return nil, ErrNotBound
	}
	out := image.NewRGBA(s.source.Bounds())
	copy(out.Pix, s.source.Pix)
	return out, nil
}

// MonochromeMask exports the inverse of the paint buffer: white where alpha
// is zero, black wherever anything is painted. The backend treats black as
// the region to regenerate.
func (s *Surface) MonochromeMask() (*image.Gray, error) {
	if s.buf == nil {
		return nil, ErrNotBound
	}
	w, h := s.buf.Width(), s.buf.Height()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if s.buf.Alpha(x, y) == 0 {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out, nil
}

// CompositeLayer returns the source with painted regions tinted by
// OverlayTint, scaled by each pixel's mask alpha. Display only.
func (s *Surface) CompositeLayer() (*image.RGBA, error) {
	out, err := s.SourceImage()
	if err != nil {
		return nil, err
	}
	w, h := s.buf.Width(), s.buf.Height()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := s.buf.Alpha(x, y)
			if a == 0 {
				continue
			}
			ea := uint32(OverlayTint.A) * uint32(a) / 255
			i := out.PixOffset(x, y)
			out.Pix[i] = blend(out.Pix[i], OverlayTint.R, ea)
			out.Pix[i+1] = blend(out.Pix[i+1], OverlayTint.G, ea)
			out.Pix[i+2] = blend(out.Pix[i+2], OverlayTint.B, ea)
			out.Pix[i+3] = uint8(ea + uint32(out.Pix[i+3])*(255-ea)/255)
		}
	}
	return out, nil
}

// blend applies "over" compositing of one channel with alpha a in 0..255.
func blend(dst, src uint8, a uint32) uint8 {
	return uint8((uint32(src)*a + uint32(dst)*(255-a)) / 255)
}

// EncodeSourcePNG returns the source image as PNG bytes for upload.
func (s *Surface) EncodeSourcePNG() ([]byte, error) {
	img, err := s.SourceImage()
	if err != nil {
		return nil, err
	}
	return encodePNG(img)
}

// EncodeMaskPNG returns MonochromeMask as PNG bytes for upload.
func (s *Surface) EncodeMaskPNG() ([]byte, error) {
	img, err := s.MonochromeMask()
	if err != nil {
		return nil, err
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("mask: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeImage decodes PNG or JPEG bytes. The header is read first and images
// above MaxImagePixels are rejected with ErrImageTooLarge before any pixel
// data is allocated.
func DecodeImage(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mask: decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, MaxImagePixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mask: decode image: %w", err)
	}
	return img, nil
}
