// Package canvas holds the working pixel buffers of the rendering pipeline.
//
// A Canvas is the display-sized buffer that dithering operates on. It stores each channel as a signed 16-bit value so
// that diffused quantization error can push a pixel outside [0, 255]; values are clamped only when a palette entry is
// chosen. A Source is the scratch buffer that holds an image at its native size before it is resampled.
package canvas

import (
	"errors"
	"fmt"
	"image"
)

// MaxSourcePixels bounds the size of a Source allocated by NewSource.
const MaxSourcePixels = 4096 * 4096

var (
	// ErrBadDimensions is returned for non-positive dimensions or, for a Canvas, an odd pixel count.
	ErrBadDimensions = errors.New("canvas: invalid dimensions")
	// ErrTooLarge is returned when a Source would exceed the pixel budget.
	ErrTooLarge = errors.New("canvas: source too large")
)

// A Canvas is a Width×Height grid of signed 16-bit RGB triples.
type Canvas struct {
	Width, Height int
	Pix           []int16
}

// New allocates a canvas. The pixel count must be even so that a packed frame holds whole bytes.
func New(width, height int) (*Canvas, error) {
	if width <= 0 || height <= 0 || (width*height)%2 != 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height)
	}
	return &Canvas{Width: width, Height: height, Pix: make([]int16, width*height*3)}, nil
}

// Offset returns the index of the red channel of (x, y) in Pix.
func (c *Canvas) Offset(x, y int) int {
	return (y*c.Width + x) * 3
}

// Fill sets every pixel to (r, g, b).
func (c *Canvas) Fill(r, g, b int16) {
	for i := 0; i < len(c.Pix); i += 3 {
		c.Pix[i+0], c.Pix[i+1], c.Pix[i+2] = r, g, b
	}
}

// Clear resets the canvas to white.
func (c *Canvas) Clear() {
	c.Fill(255, 255, 255)
}

// SetRGB stores an 8-bit color at (x, y). Coordinates outside the canvas are ignored; SetRGB reports whether the
// pixel was stored.
func (c *Canvas) SetRGB(x, y int, r, g, b uint8) bool {
	if x < 0 || y < 0 || x >= c.Width || y >= c.Height {
		return false
	}
	i := c.Offset(x, y)
	c.Pix[i+0], c.Pix[i+1], c.Pix[i+2] = int16(r), int16(g), int16(b)
	return true
}

// RGB returns the unclamped value at (x, y).
func (c *Canvas) RGB(x, y int) (r, g, b int16) {
	i := c.Offset(x, y)
	return c.Pix[i+0], c.Pix[i+1], c.Pix[i+2]
}

func clamp(v int16) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}

// Image returns a clamped 8-bit copy of the canvas.
func (c *Canvas) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, c.Width, c.Height))
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			r, g, b := c.RGB(x, y)
			o := img.PixOffset(x, y)
			img.Pix[o+0], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = clamp(r), clamp(g), clamp(b), 0xff
		}
	}
	return img
}

// A Source is a Width×Height grid of 8-bit RGB triples.
type Source struct {
	Width, Height int
	Pix           []uint8
}

// NewSource allocates a white source buffer. It fails with ErrTooLarge when width×height exceeds limit; a limit of
// zero means MaxSourcePixels.
func NewSource(width, height, limit int) (*Source, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height)
	}
	if limit <= 0 {
		limit = MaxSourcePixels
	}
	if int64(width)*int64(height) > int64(limit) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, width, height, limit)
	}

	pix := make([]uint8, width*height*3)
	for i := range pix {
		pix[i] = 0xff
	}
	return &Source{Width: width, Height: height, Pix: pix}, nil
}

// Set stores a color at (x, y). Coordinates outside the buffer are ignored.
func (s *Source) Set(x, y int, r, g, b uint8) {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return
	}
	i := (y*s.Width + x) * 3
	s.Pix[i+0], s.Pix[i+1], s.Pix[i+2] = r, g, b
}

// RGB returns the color at (x, y).
func (s *Source) RGB(x, y int) (r, g, b uint8) {
	i := (y*s.Width + x) * 3
	return s.Pix[i+0], s.Pix[i+1], s.Pix[i+2]
}
