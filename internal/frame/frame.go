// Package frame implements the packed 4-bit frame buffer consumed by the panel.
package frame

import (
	"fmt"
	"image"
	"image/color"

	"github.com/pgavlin/inkframe/internal/palette"
)

// Native panel geometry.
const (
	Width  = 800
	Height = 480
	Size   = Width * Height / 2
)

// A Frame is a 4-bit image. Pixels are packed two to a byte in row-major order: the pixel with the even x coordinate
// occupies the high nibble and its odd neighbor the low nibble.
type Frame struct {
	Pix           []byte
	Width, Height int

	model color.Palette
}

// SizeOf returns the number of bytes needed to hold a width×height frame.
func SizeOf(width, height int) int {
	return width * height / 2
}

// New allocates a frame with the given dimensions.
func New(width, height int, p palette.Palette) (*Frame, error) {
	return Wrap(make([]byte, SizeOf(width, height)), width, height, p)
}

// Wrap returns a frame that packs into buf. buf must hold exactly SizeOf(width, height) bytes.
func Wrap(buf []byte, width, height int, p palette.Palette) (*Frame, error) {
	if width <= 0 || height <= 0 || (width*height)%2 != 0 {
		return nil, fmt.Errorf("frame: invalid dimensions %dx%d", width, height)
	}
	if len(buf) != SizeOf(width, height) {
		return nil, fmt.Errorf("frame: buffer holds %d bytes, need %d", len(buf), SizeOf(width, height))
	}
	if p == nil {
		p = palette.Reference
	}
	return &Frame{Pix: buf, Width: width, Height: height, model: p.Model()}, nil
}

// SetIndex stores a palette index at (x, y). Only the low four bits of index are kept.
func (f *Frame) SetIndex(x, y int, index uint8) {
	i := (y*f.Width + x) / 2
	if x%2 == 0 {
		f.Pix[i] = f.Pix[i]&0x0f | (index&0x0f)<<4
	} else {
		f.Pix[i] = f.Pix[i]&0xf0 | index&0x0f
	}
}

// Index returns the palette index at (x, y).
func (f *Frame) Index(x, y int) uint8 {
	b := f.Pix[(y*f.Width+x)/2]
	if x%2 == 0 {
		return b >> 4
	}
	return b & 0x0f
}

// Fill sets every pixel to index.
func (f *Frame) Fill(index uint8) {
	v := (index&0x0f)<<4 | index&0x0f
	for i := range f.Pix {
		f.Pix[i] = v
	}
}

// ColorModel returns the frame's paletted color model.
func (f *Frame) ColorModel() color.Model {
	return f.model
}

// Bounds returns the frame's bounds, which always start at (0, 0).
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// At returns the color of the pixel at (x, y). Indices the palette does not define render as black.
func (f *Frame) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(f.Bounds())) {
		return color.Black
	}
	if i := int(f.Index(x, y)); i < len(f.model) {
		return f.model[i]
	}
	return color.Black
}

// Set stores the palette entry nearest to c at (x, y).
func (f *Frame) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(f.Bounds())) {
		return
	}
	f.SetIndex(x, y, uint8(f.model.Index(c)))
}

// Paletted returns an unpacked copy of the frame.
func (f *Frame) Paletted() *image.Paletted {
	img := image.NewPaletted(f.Bounds(), f.model)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			img.Pix[img.PixOffset(x, y)] = f.Index(x, y)
		}
	}
	return img
}

// ColorBlocks fills f with horizontal bands of equal height, one per index, from top to bottom. Rows left over by the
// division are painted with the last index.
func ColorBlocks(f *Frame, indices ...uint8) {
	if len(indices) == 0 {
		return
	}

	band := f.Height / len(indices)
	if band == 0 {
		band = 1
	}
	for y := 0; y < f.Height; y++ {
		b := y / band
		if b >= len(indices) {
			b = len(indices) - 1
		}
		for x := 0; x < f.Width; x++ {
			f.SetIndex(x, y, indices[b])
		}
	}
}

// TestPattern is the band order the panel uses to show that it is alive.
var TestPattern = []uint8{palette.Black, palette.White, palette.Yellow, palette.Red, palette.Blue, palette.Green}
