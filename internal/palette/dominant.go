package palette

import (
	"image"
	"image/color"

	"github.com/ericpauley/go-quantize/quantize"
)

// A Match pairs a color found in an image with the palette entry it quantizes to.
type Match struct {
	Source  color.RGBA
	Nearest Color
}

// Dominant reduces img to at most n representative colors using median cut and reports the palette entry each of
// them lands on.
func (p Palette) Dominant(img image.Image, n int) []Match {
	if n <= 0 {
		return nil
	}

	q := quantize.MedianCutQuantizer{}
	reduced := q.Quantize(make(color.Palette, 0, n), img)

	matches := make([]Match, 0, len(reduced))
	for _, c := range reduced {
		rgba := color.RGBAModel.Convert(c).(color.RGBA)
		matches = append(matches, Match{
			Source:  rgba,
			Nearest: p.Nearest(int16(rgba.R), int16(rgba.G), int16(rgba.B)),
		})
	}
	return matches
}
