package mask

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func boundSurface(t *testing.T, w, h int) *Surface {
	t.Helper()
	s := NewSurface()
	s.Bind(solidImage(w, h, color.RGBA{R: 10, G: 20, B: 30, A: 255}))
	return s
}

func TestBindAllocatesTransparentBuffer(t *testing.T) {
	s := boundSurface(t, 40, 30)

	assert.Equal(t, image.Rect(0, 0, 40, 30), s.Bounds())
	assert.False(t, s.HasPaint())
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			require.Zero(t, s.Alpha(x, y))
		}
	}
}

func TestBindReallocatesAndDropsStroke(t *testing.T) {
	s := boundSurface(t, 50, 50)
	require.NoError(t, s.BeginStroke(Point{X: 25, Y: 25}))
	require.True(t, s.HasPaint())

	s.Bind(solidImage(20, 10, color.White))

	assert.Equal(t, image.Rect(0, 0, 20, 10), s.Bounds())
	assert.False(t, s.HasPaint())

	// The dropped stroke must not connect to the old point.
	s.SetBrushSize(1)
	require.NoError(t, s.ContinueStroke(Point{X: 2, Y: 2}))
	s.EndStroke()
	assert.NotZero(t, s.Alpha(2, 2))
	assert.Zero(t, s.Alpha(19, 9))
}

func TestBindNormalisesOffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 20, 15))
	src.Set(10, 10, color.RGBA{R: 200, A: 255})
	s := NewSurface()
	s.Bind(src)

	out, err := s.SourceImage()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 5), out.Bounds())
	assert.Equal(t, uint8(200), out.RGBAAt(0, 0).R)
}

func TestUnboundSurfaceReturnsErrNotBound(t *testing.T) {
	s := NewSurface()
	assert.ErrorIs(t, s.BeginStroke(Point{}), ErrNotBound)
	assert.ErrorIs(t, s.ContinueStroke(Point{}), ErrNotBound)
	_, err := s.MonochromeMask()
	assert.ErrorIs(t, err, ErrNotBound)
	_, err = s.CompositeLayer()
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestSingleDiscScenario(t *testing.T) {
	s := boundSurface(t, 100, 100)
	s.SetBrushSize(10)
	require.NoError(t, s.BeginStroke(Point{X: 50, Y: 50}))
	s.EndStroke()

	m, err := s.MonochromeMask()
	require.NoError(t, err)
	assert.Equal(t, uint8(0), m.GrayAt(50, 50).Y)
	assert.Equal(t, uint8(255), m.GrayAt(0, 0).Y)
	// Radius is inclusive on the axes and excludes the bounding-box corners.
	assert.Equal(t, uint8(0), m.GrayAt(60, 50).Y)
	assert.Equal(t, uint8(255), m.GrayAt(61, 50).Y)
	assert.Equal(t, uint8(255), m.GrayAt(59, 59).Y)
}

func TestMonochromeMaskIsExactInverseOfPaint(t *testing.T) {
	s := boundSurface(t, 64, 48)
	s.SetBrushSize(5)
	require.NoError(t, s.ApplyStroke(Stroke{Tool: Brush, Size: 7, Points: []Point{{X: 3, Y: 3}, {X: 60, Y: 40}}}))
	require.NoError(t, s.ApplyStroke(Stroke{Tool: Eraser, Size: 4, Points: []Point{{X: 30, Y: 0}, {X: 30, Y: 47}}}))

	m, err := s.MonochromeMask()
	require.NoError(t, err)
	require.Equal(t, s.Bounds(), m.Bounds())
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			want := uint8(0)
			if s.Alpha(x, y) == 0 {
				want = 255
			}
			require.Equalf(t, want, m.GrayAt(x, y).Y, "pixel (%d,%d)", x, y)
		}
	}
}

func TestFastStrokePaintsConnectedBand(t *testing.T) {
	s := boundSurface(t, 200, 100)
	s.SetBrushSize(3)
	a := Point{X: 10, Y: 50}
	b := Point{X: 190, Y: 20}
	require.Greater(t, math.Hypot(b.X-a.X, b.Y-a.Y), 2.0*float64(s.BrushSize()))

	require.NoError(t, s.BeginStroke(a))
	require.NoError(t, s.ContinueStroke(b))
	s.EndStroke()

	for i := 0; i <= 1000; i++ {
		tt := float64(i) / 1000
		x := a.X + (b.X-a.X)*tt
		y := a.Y + (b.Y-a.Y)*tt
		require.NotZerof(t, s.Alpha(int(math.Round(x)), int(math.Round(y))), "gap at t=%.3f", tt)
	}
	// Points one radius off the centre line, mid-segment, are also painted.
	mid := Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	assert.NotZero(t, s.Alpha(int(mid.X), int(mid.Y)+2))
	assert.NotZero(t, s.Alpha(int(mid.X), int(mid.Y)-2))
}

func TestZeroMovementStrokeStampsOneDisc(t *testing.T) {
	s := boundSurface(t, 30, 30)
	s.SetBrushSize(2)
	require.NoError(t, s.BeginStroke(Point{X: 15, Y: 15}))
	require.NoError(t, s.ContinueStroke(Point{X: 15, Y: 15}))
	s.EndStroke()

	painted := 0
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			if s.Alpha(x, y) > 0 {
				painted++
			}
		}
	}
	// A radius-2 disc covers 13 lattice points.
	assert.Equal(t, 13, painted)
}

func TestEraserOverwritesWithTransparent(t *testing.T) {
	s := boundSurface(t, 20, 20)
	s.SetBrushSize(20)
	require.NoError(t, s.BeginStroke(Point{X: 10, Y: 10}))
	s.EndStroke()
	require.Equal(t, uint8(255), s.Alpha(10, 10))

	s.SetTool(Eraser)
	s.SetBrushSize(1)
	require.NoError(t, s.BeginStroke(Point{X: 10, Y: 10}))
	s.EndStroke()

	assert.Zero(t, s.Alpha(10, 10))
	assert.Equal(t, uint8(255), s.Alpha(12, 10))

	// Erasing twice leaves the same result.
	require.NoError(t, s.BeginStroke(Point{X: 10, Y: 10}))
	s.EndStroke()
	assert.Zero(t, s.Alpha(10, 10))
}

func TestPaintingOutsideBoundsIsClipped(t *testing.T) {
	s := boundSurface(t, 10, 10)
	s.SetBrushSize(4)
	require.NoError(t, s.BeginStroke(Point{X: -20, Y: -20}))
	require.NoError(t, s.ContinueStroke(Point{X: -1, Y: 5}))
	s.EndStroke()

	assert.NotZero(t, s.Alpha(0, 5))
	assert.NotZero(t, s.Alpha(3, 5))
	assert.Zero(t, s.Alpha(9, 9))
}

func TestHugeOutOfBoundsSegmentFinishesQuickly(t *testing.T) {
	s := boundSurface(t, 10, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.ApplyStroke(Stroke{Size: 1, Points: []Point{{X: 0, Y: 0}, {X: 1e12, Y: 0}, {X: -1e15, Y: 1e15}}})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stroke over a far out-of-bounds segment did not finish")
	}

	for x := 0; x < 10; x++ {
		assert.NotZerof(t, s.Alpha(x, 0), "row 0 gap at x=%d", x)
	}
	assert.Zero(t, s.Alpha(5, 5))
}

func TestSegmentCrossingFromFarOutsidePaintsOnlyTheCrossing(t *testing.T) {
	s := boundSurface(t, 20, 20)
	s.SetBrushSize(1)
	require.NoError(t, s.BeginStroke(Point{X: -1e9, Y: 10}))
	require.NoError(t, s.ContinueStroke(Point{X: 1e9, Y: 10}))
	s.EndStroke()

	for x := 0; x < 20; x++ {
		require.NotZerof(t, s.Alpha(x, 10), "gap at x=%d", x)
	}
	assert.Zero(t, s.Alpha(10, 5))

	miss := boundSurface(t, 20, 20)
	require.NoError(t, miss.BeginStroke(Point{X: -1e9, Y: -50}))
	require.NoError(t, miss.ContinueStroke(Point{X: 1e9, Y: -50}))
	assert.False(t, miss.HasPaint())
}

func TestNonFinitePointsAreIgnored(t *testing.T) {
	s := boundSurface(t, 10, 10)
	require.NoError(t, s.BeginStroke(Point{X: math.NaN(), Y: 1}))
	require.NoError(t, s.ContinueStroke(Point{X: math.Inf(1), Y: 1}))
	assert.False(t, s.HasPaint())

	require.NoError(t, s.ContinueStroke(Point{X: 5, Y: 5}))
	assert.NotZero(t, s.Alpha(5, 5))
}

func TestClearKeepsDimensions(t *testing.T) {
	s := boundSurface(t, 16, 8)
	require.NoError(t, s.BeginStroke(Point{X: 4, Y: 4}))
	s.Clear()

	assert.False(t, s.HasPaint())
	assert.Equal(t, image.Rect(0, 0, 16, 8), s.Bounds())
	m, err := s.MonochromeMask()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), m.Bounds())
}

func TestApplyStrokeRestoresToolAndSize(t *testing.T) {
	s := boundSurface(t, 20, 20)
	s.SetBrushSize(3)
	require.NoError(t, s.ApplyStroke(Stroke{Tool: Eraser, Size: 9, Points: []Point{{X: 1, Y: 1}}}))

	assert.Equal(t, Brush, s.Tool())
	assert.Equal(t, 3, s.BrushSize())
}

func TestCompositeLayerTintsOnlyPaintedPixels(t *testing.T) {
	s := boundSurface(t, 20, 20)
	s.SetBrushSize(2)
	require.NoError(t, s.BeginStroke(Point{X: 10, Y: 10}))
	s.EndStroke()

	out, err := s.CompositeLayer()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, out.RGBAAt(0, 0))
	tinted := out.RGBAAt(10, 10)
	assert.Greater(t, tinted.R, uint8(10))
	assert.Equal(t, uint8(255), tinted.A)

	src, err := s.SourceImage()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, src.RGBAAt(10, 10))
}

func TestEncodeMaskPNGRoundTrip(t *testing.T) {
	s := boundSurface(t, 12, 12)
	s.SetBrushSize(1)
	require.NoError(t, s.BeginStroke(Point{X: 6, Y: 6}))

	data, err := s.EncodeMaskPNG()
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, _, _, _ := img.At(6, 6).RGBA()
	assert.Zero(t, r)
	r, _, _, _ = img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	src, err := s.EncodeSourcePNG()
	require.NoError(t, err)
	decoded, err := DecodeImage(src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 12), decoded.Bounds())
}

// pngWithSize encodes a 1x1 PNG and rewrites its IHDR to declare w x h.
func pngWithSize(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	data := buf.Bytes()
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc after 13 data bytes
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecodeImageRejectsOversizedHeader(t *testing.T) {
	data := pngWithSize(t, 20000, 20000)
	require.Less(t, len(data), 128)

	_, err := DecodeImage(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = DecodeImage(pngWithSize(t, 1, 1))
	assert.NoError(t, err)
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImage([]byte("not an image"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrImageTooLarge)
}

func TestStrokeJSON(t *testing.T) {
	var st Stroke
	require.NoError(t, json.Unmarshal([]byte(`{"tool":"eraser","size":4,"points":[{"x":1,"y":2}]}`), &st))
	assert.Equal(t, Eraser, st.Tool)
	assert.Equal(t, 4, st.Size)
	require.Len(t, st.Points, 1)

	assert.Error(t, json.Unmarshal([]byte(`{"tool":"spray"}`), &st))
}
