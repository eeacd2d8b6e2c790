// Package mask implements the paintable alpha mask used to constrain
// image-to-image generation to a region of the source image.
package mask

import "image/color"

// Buffer is a width×height RGBA arena stored as one flat byte slice indexed
// by (y*width+x)*4. Writes outside the grid are clipped silently.
type Buffer struct {
	width  int
	height int
	pix    []byte
}

// NewBuffer allocates a fully transparent buffer.
func NewBuffer(width, height int) *Buffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Buffer{width: width, height: height, pix: make([]byte, width*height*4)}
}

func (b *Buffer) Width() int  { return b.width }
func (b *Buffer) Height() int { return b.height }

func (b *Buffer) contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.width && y < b.height
}

func (b *Buffer) offset(x, y int) int {
	return (y*b.width + x) * 4
}

// At returns the pixel at (x, y), or transparent black outside the grid.
func (b *Buffer) At(x, y int) color.NRGBA {
	if !b.contains(x, y) {
		return color.NRGBA{}
	}
	i := b.offset(x, y)
	return color.NRGBA{R: b.pix[i], G: b.pix[i+1], B: b.pix[i+2], A: b.pix[i+3]}
}

// Alpha returns the alpha channel at (x, y); zero means untouched.
func (b *Buffer) Alpha(x, y int) uint8 {
	if !b.contains(x, y) {
		return 0
	}
	return b.pix[b.offset(x, y)+3]
}

// Set overwrites the pixel at (x, y) and reports whether it was inside the grid.
func (b *Buffer) Set(x, y int, c color.NRGBA) bool {
	if !b.contains(x, y) {
		return false
	}
	i := b.offset(x, y)
	b.pix[i] = c.R
	b.pix[i+1] = c.G
	b.pix[i+2] = c.B
	b.pix[i+3] = c.A
	return true
}

// Clear makes every pixel transparent without reallocating.
func (b *Buffer) Clear() {
	clear(b.pix)
}

// Painted reports whether any pixel has non-zero alpha.
func (b *Buffer) Painted() bool {
	for i := 3; i < len(b.pix); i += 4 {
		if b.pix[i] > 0 {
			return true
		}
	}
	return false
}
