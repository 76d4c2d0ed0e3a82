package pipeline

import (
	"image/color"

	"github.com/pgavlin/inkframe/internal/canvas"
)

// adapter routes decoder output into the pipeline's buffers. When scaling is enabled and the image does not already
// match the canvas, pixels are collected in a native-size source buffer for resampling; otherwise they are written
// straight into the canvas, cropping anything that does not fit.
type adapter struct {
	p      *Pipeline
	source *canvas.Source

	// degraded is set when scaling was requested but the image had to be cropped.
	degraded bool
}

func (a *adapter) Header(width, height int) {
	p := a.p
	p.logger.Printf("decoding %dx%d image", width, height)

	if p.scaling.srcWidth != 0 && p.scaling.srcHeight != 0 &&
		(p.scaling.srcWidth != width || p.scaling.srcHeight != height) {
		p.logger.Printf("warning: configured source size %dx%d does not match image size %dx%d",
			p.scaling.srcWidth, p.scaling.srcHeight, width, height)
	}

	if !p.scaling.scaleToFit || (width == p.canvas.Width && height == p.canvas.Height) {
		return
	}

	src, err := p.opts.AllocSource(width, height)
	if err != nil {
		p.logger.Printf("warning: %v; cropping instead of scaling", newError(ErrResourceExhausted, "allocate source", err))
		a.degraded = true
		return
	}
	a.source, p.source = src, src
}

func (a *adapter) Pixel(x, y int, c color.NRGBA) {
	if a.source != nil {
		a.source.Set(x, y, c.R, c.G, c.B)
	} else {
		a.p.canvas.SetRGB(x, y, c.R, c.G, c.B)
	}
	a.p.tick()
}
