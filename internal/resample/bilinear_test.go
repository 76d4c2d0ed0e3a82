package resample

import (
	"testing"

	"github.com/pgavlin/inkframe/internal/canvas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCanvas(t *testing.T, w, h int) *canvas.Canvas {
	c, err := canvas.New(w, h)
	require.NoError(t, err)
	return c
}

func newSource(t *testing.T, w, h int) *canvas.Source {
	s, err := canvas.NewSource(w, h, 0)
	require.NoError(t, err)
	return s
}

func TestBilinearIdentity(t *testing.T) {
	src := newSource(t, 6, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			src.Set(x, y, uint8(x*40), uint8(y*60), uint8(x*y))
		}
	}

	dst := newCanvas(t, 6, 4)
	calls := 0
	Bilinear(dst, src, func() { calls++ })
	assert.Equal(t, 24, calls)

	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			sr, sg, sb := src.RGB(x, y)
			r, g, b := dst.RGB(x, y)
			assert.Equal(t, [3]int16{int16(sr), int16(sg), int16(sb)}, [3]int16{r, g, b})
		}
	}
}

func TestBilinearDownscaleOfBlocksIsExact(t *testing.T) {
	// A 2x downscale of an image made of 2x2 blocks lands exactly on block corners.
	src := newSource(t, 8, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			src.Set(x, y, uint8(x/2*50), uint8(y/2*100), 7)
		}
	}

	dst := newCanvas(t, 4, 2)
	Bilinear(dst, src, nil)
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			r, g, b := dst.RGB(x, y)
			assert.Equal(t, [3]int16{int16(x * 50), int16(y * 100), 7}, [3]int16{r, g, b})
		}
	}
}

func TestBilinearUpscaleInterpolates(t *testing.T) {
	src := newSource(t, 2, 1)
	src.Set(0, 0, 0, 0, 0)
	src.Set(1, 0, 255, 100, 1)

	dst := newCanvas(t, 4, 1)
	Bilinear(dst, src, nil)

	// sx = 0, 0.5, 1, 1.5; the last two clamp to the final column.
	want := [][3]int16{{0, 0, 0}, {128, 50, 1}, {255, 100, 1}, {255, 100, 1}}
	for x, w := range want {
		r, g, b := dst.RGB(x, 0)
		assert.Equal(t, w, [3]int16{r, g, b}, "x=%d", x)
	}
}

func TestBilinearRoundsHalfUp(t *testing.T) {
	src := newSource(t, 2, 2)
	src.Set(0, 0, 0, 0, 0)
	src.Set(1, 0, 1, 1, 1)
	src.Set(0, 1, 0, 0, 0)
	src.Set(1, 1, 0, 0, 0)

	dst := newCanvas(t, 4, 4)
	Bilinear(dst, src, nil)

	// (0.5, 0) blends 0 and 1 equally: 0.5 rounds to 1.
	r, _, _ := dst.RGB(1, 0)
	assert.Equal(t, int16(1), r)
	// (0.5, 0.5) sees a quarter: 0.25 rounds to 0.
	r, _, _ = dst.RGB(1, 1)
	assert.Equal(t, int16(0), r)
}
