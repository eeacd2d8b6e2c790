package mask

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferSetAndAt(t *testing.T) {
	b := NewBuffer(4, 3)
	c := color.NRGBA{R: 1, G: 2, B: 3, A: 4}

	assert.True(t, b.Set(3, 2, c))
	assert.Equal(t, c, b.At(3, 2))
	assert.Equal(t, uint8(4), b.Alpha(3, 2))
	// Flat layout: the last pixel occupies the final four bytes.
	assert.Equal(t, []byte{1, 2, 3, 4}, b.pix[len(b.pix)-4:])
}

func TestBufferClipsOutOfBounds(t *testing.T) {
	b := NewBuffer(2, 2)
	for _, p := range [][2]int{{-1, 0}, {0, -1}, {2, 0}, {0, 2}} {
		assert.False(t, b.Set(p[0], p[1], color.NRGBA{A: 255}))
		assert.Equal(t, color.NRGBA{}, b.At(p[0], p[1]))
	}
	assert.False(t, b.Painted())
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer(3, 3)
	b.Set(1, 1, color.NRGBA{A: 1})
	assert.True(t, b.Painted())

	b.Clear()
	assert.False(t, b.Painted())
	assert.Equal(t, 3, b.Width())
	assert.Equal(t, 3, b.Height())
}
