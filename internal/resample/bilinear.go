// Package resample scales a decoded source image onto the display canvas.
package resample

import "github.com/pgavlin/inkframe/internal/canvas"

// Bilinear fills dst with src scaled to dst's size. Each destination pixel (dx, dy) samples the source at
// (dx·srcW/dstW, dy·srcH/dstH) and blends the four surrounding pixels, clamping the far neighbors to the last row and
// column. Results are rounded half up. yield, if non-nil, is called once per destination pixel.
func Bilinear(dst *canvas.Canvas, src *canvas.Source, yield func()) {
	if src == nil || src.Width == 0 || src.Height == 0 {
		return
	}

	xRatio := float32(src.Width) / float32(dst.Width)
	yRatio := float32(src.Height) / float32(dst.Height)

	for dy := 0; dy < dst.Height; dy++ {
		sy := float32(dy) * yRatio
		y0 := int(sy)
		y1 := y0
		if y0+1 < src.Height {
			y1 = y0 + 1
		}
		yFrac := sy - float32(y0)

		for dx := 0; dx < dst.Width; dx++ {
			sx := float32(dx) * xRatio
			x0 := int(sx)
			x1 := x0
			if x0+1 < src.Width {
				x1 = x0 + 1
			}
			xFrac := sx - float32(x0)

			i00 := (y0*src.Width + x0) * 3
			i01 := (y0*src.Width + x1) * 3
			i10 := (y1*src.Width + x0) * 3
			i11 := (y1*src.Width + x1) * 3

			o := dst.Offset(dx, dy)
			for c := 0; c < 3; c++ {
				top := float32(src.Pix[i00+c])*(1-xFrac) + float32(src.Pix[i01+c])*xFrac
				bot := float32(src.Pix[i10+c])*(1-xFrac) + float32(src.Pix[i11+c])*xFrac
				val := top*(1-yFrac) + bot*yFrac
				dst.Pix[o+c] = int16(val + 0.5)
			}

			if yield != nil {
				yield()
			}
		}
	}
}
