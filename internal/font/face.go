package font

import (
	"image"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// A Face is a font.Face that knows which family and size it belongs to.
type Face struct {
	font.Face

	faceFamily *FaceFamily
	bold       bool
}

func (f *Face) Family() *Family {
	return f.faceFamily.family
}

func (f *Face) Size() float64 {
	return f.faceFamily.Size()
}

func (f *Face) Bold() bool {
	return f.bold
}

func (f *Face) WithSize(pointSize float64) *Face {
	return f.Family().Face(pointSize, f.bold)
}

func (f *Face) WithBold(bold bool) *Face {
	return f.faceFamily.Face(bold)
}

// LineHeight returns the distance between consecutive baselines in pixels.
func (f *Face) LineHeight() int {
	m := f.Metrics()
	return (m.Ascent + m.Descent).Ceil()
}

// Measure returns the advance width of s, including kerning.
func (f *Face) Measure(s string) fixed.Int26_6 {
	var width fixed.Int26_6
	prevC := rune(-1)
	for _, c := range s {
		if prevC >= 0 {
			width += f.Kern(prevC, c)
		}
		a, ok := f.GlyphAdvance(c)
		if !ok {
			continue
		}
		width += a
		prevC = c
	}
	return width
}

// Draw renders s onto dst with its baseline at dot using src as the ink, and returns the dot after the last glyph.
func (f *Face) Draw(dst draw.Image, dot fixed.Point26_6, s string, src image.Image) fixed.Point26_6 {
	prevC := rune(-1)
	for _, c := range s {
		if prevC >= 0 {
			dot.X += f.Kern(prevC, c)
		}
		dr, mask, maskp, advance, ok := f.Glyph(dot, c)
		if !ok {
			continue
		}
		draw.DrawMask(dst, dr, src, image.Point{}, mask, maskp, draw.Over)
		dot.X += advance
		prevC = c
	}
	return dot
}
