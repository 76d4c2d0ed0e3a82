// Package palette describes the colors a six-color reflective panel can show and finds the closest of them for an
// arbitrary RGB value.
package palette

import (
	"fmt"
	"image/color"
	"math"
	"strings"
)

// Panel color indices. These are the 4-bit values the panel controller understands.
const (
	Black  uint8 = 0
	White  uint8 = 1
	Yellow uint8 = 2
	Red    uint8 = 3
	Orange uint8 = 4
	Blue   uint8 = 5
	Green  uint8 = 6
)

// A Color is a palette entry: the 4-bit panel index and the RGB value it represents.
type Color struct {
	Index   uint8
	R, G, B uint8
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}.RGBA()
}

var names = [...]string{"black", "white", "yellow", "red", "orange", "blue", "green"}

// String returns the name of the color's panel index.
func (c Color) String() string {
	if int(c.Index) < len(names) {
		return names[c.Index]
	}
	return fmt.Sprintf("index%d", c.Index)
}

// A Palette is an ordered table of colors. Order matters: when two entries are equally close to a value, the earlier
// one wins.
type Palette []Color

// Reference is the full seven-entry table used for quantization by default.
var Reference = Palette{
	{Index: Black, R: 0, G: 0, B: 0},
	{Index: White, R: 255, G: 255, B: 255},
	{Index: Yellow, R: 255, G: 255, B: 0},
	{Index: Red, R: 255, G: 0, B: 0},
	{Index: Orange, R: 255, G: 128, B: 0},
	{Index: Blue, R: 0, G: 0, B: 255},
	{Index: Green, R: 0, G: 255, B: 0},
}

// Spectra6 holds only the six colors that are wired to the panel hardware. Indices are the same as in Reference.
var Spectra6 = Palette{
	{Index: Black, R: 0, G: 0, B: 0},
	{Index: White, R: 255, G: 255, B: 255},
	{Index: Yellow, R: 255, G: 255, B: 0},
	{Index: Red, R: 255, G: 0, B: 0},
	{Index: Blue, R: 0, G: 0, B: 255},
	{Index: Green, R: 0, G: 255, B: 0},
}

// Parse returns the palette with the given name ("reference" or "spectra6"). An empty name selects Reference.
func Parse(name string) (Palette, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "reference":
		return Reference, nil
	case "spectra6":
		return Spectra6, nil
	default:
		return nil, fmt.Errorf("palette: unknown palette %q", name)
	}
}

func clamp(v int16) int32 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return int32(v)
}

// Distance returns the squared Euclidean distance between (r, g, b) and c.
func Distance(r, g, b int32, c Color) int32 {
	dr, dg, db := r-int32(c.R), g-int32(c.G), b-int32(c.B)
	return dr*dr + dg*dg + db*db
}

// Nearest returns the entry closest to (r, g, b) after clamping each channel to [0, 255]. Ties resolve to the entry
// that appears first in the table.
func (p Palette) Nearest(r, g, b int16) Color {
	cr, cg, cb := clamp(r), clamp(g), clamp(b)

	best, bestDist := 0, int32(math.MaxInt32)
	for i, c := range p {
		if d := Distance(cr, cg, cb, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return p[best]
}

// Lookup returns the entry with the given panel index.
func (p Palette) Lookup(index uint8) (Color, bool) {
	for _, c := range p {
		if c.Index == index {
			return c, true
		}
	}
	return Color{}, false
}

// Model returns a color.Palette in which position i holds the entry with panel index i. Indices the palette does
// not define are filled from Reference so that every 4-bit value produced for the panel maps to a color.
func (p Palette) Model() color.Palette {
	n := 0
	for _, c := range p {
		if int(c.Index)+1 > n {
			n = int(c.Index) + 1
		}
	}

	m := make(color.Palette, n)
	for i := range m {
		m[i] = color.Black
		if c, ok := Reference.Lookup(uint8(i)); ok {
			m[i] = c
		}
	}
	for _, c := range p {
		m[c.Index] = c
	}
	return m
}
