// Package dither quantizes the display canvas to a panel palette and packs the result into a frame.
package dither

import (
	"github.com/MaxHalford/halfgone"
	"github.com/pgavlin/inkframe/internal/canvas"
	"github.com/pgavlin/inkframe/internal/frame"
	"github.com/pgavlin/inkframe/internal/palette"
)

// Diffuse splits a quantization error between the right, bottom-left, bottom, and bottom-right neighbors using the
// Floyd-Steinberg weights 7/16, 3/16, 5/16, and 1/16. Each share is truncated toward zero, so the shares never sum to
// more than |e| and the remainder is dropped.
func Diffuse(e int32) (right, downLeft, down, downRight int32) {
	return e * 7 / 16, e * 3 / 16, e * 5 / 16, e * 1 / 16
}

func spread(c *canvas.Canvas, x, y int, er, eg, eb int32) {
	i := c.Offset(x, y)
	c.Pix[i+0] = int16(int32(c.Pix[i+0]) + er)
	c.Pix[i+1] = int16(int32(c.Pix[i+1]) + eg)
	c.Pix[i+2] = int16(int32(c.Pix[i+2]) + eb)
}

// FloydSteinberg quantizes c to p in a single raster-order pass, diffusing each pixel's error into the neighbors that
// have not been visited yet, and writes the chosen indices into f. c is consumed: it holds the accumulated error
// afterwards. f must have the same dimensions as c. yield, if non-nil, is called once per pixel.
func FloydSteinberg(c *canvas.Canvas, p palette.Palette, f *frame.Frame, yield func()) {
	w, h := c.Width, c.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := c.RGB(x, y)
			nearest := p.Nearest(r, g, b)

			// The error is taken against the unclamped value.
			er := int32(r) - int32(nearest.R)
			eg := int32(g) - int32(nearest.G)
			eb := int32(b) - int32(nearest.B)

			rr, rdl, rd, rdr := Diffuse(er)
			gr, gdl, gd, gdr := Diffuse(eg)
			br, bdl, bd, bdr := Diffuse(eb)
			if x+1 < w {
				spread(c, x+1, y, rr, gr, br)
			}
			if y+1 < h {
				if x > 0 {
					spread(c, x-1, y+1, rdl, gdl, bdl)
				}
				spread(c, x, y+1, rd, gd, bd)
				if x+1 < w {
					spread(c, x+1, y+1, rdr, gdr, bdr)
				}
			}

			f.SetIndex(x, y, nearest.Index)
			if yield != nil {
				yield()
			}
		}
	}
}

// Mono renders c in black and white using halftone error diffusion on its luminance.
func Mono(c *canvas.Canvas, f *frame.Frame, yield func()) {
	gray := halfgone.ImageToGray(c.Image())

	var floydSteinberg halfgone.FloydSteinbergDitherer
	gray = floydSteinberg.Apply(gray)

	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			idx := palette.Black
			if gray.GrayAt(x, y).Y >= 128 {
				idx = palette.White
			}
			f.SetIndex(x, y, idx)
			if yield != nil {
				yield()
			}
		}
	}
}
