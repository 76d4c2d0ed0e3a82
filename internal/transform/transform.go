// Package transform rotates and mirrors the display canvas.
//
// Rotations are clockwise. For a W×H plane, a 90° rotation produces an H×W plane with
//
//	dst(x, y) = src(y, H-1-x)
//
// 180° produces dst(x, y) = src(W-1-x, H-1-y) and 270° produces dst(x, y) = src(W-1-y, x). Mirroring reverses the x
// axis (MirrorH) or the y axis (MirrorV) of whatever plane it is applied to. When the final plane does not match the
// canvas it is centered on it: overflow is cropped and uncovered pixels are white.
package transform

import (
	"errors"
	"fmt"

	"github.com/pgavlin/inkframe/internal/canvas"
)

// A Rotation is a clockwise rotation in degrees.
type Rotation int

// Supported rotations.
const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// ErrInvalidRotation is returned for rotations other than 0, 90, 180, and 270.
var ErrInvalidRotation = errors.New("transform: rotation must be 0, 90, 180, or 270")

// ParseRotation validates a rotation in degrees.
func ParseRotation(degrees int) (Rotation, error) {
	switch r := Rotation(degrees); r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return r, nil
	}
	return 0, fmt.Errorf("%w: got %d", ErrInvalidRotation, degrees)
}

// Options selects the transform applied to the canvas.
type Options struct {
	Rotation Rotation
	MirrorH  bool
	MirrorV  bool
	// RotateFirst applies the rotation before mirroring. When false, mirroring happens first.
	RotateFirst bool
}

// Validate checks that the options describe a supported transform.
func (o Options) Validate() error {
	_, err := ParseRotation(int(o.Rotation))
	return err
}

// Identity reports whether the options leave the canvas unchanged.
func (o Options) Identity() bool {
	return o.Rotation == Rotate0 && !o.MirrorH && !o.MirrorV
}

func (o Options) String() string {
	return fmt.Sprintf("rot=%d,h=%v,v=%v,first=%v", o.Rotation, o.MirrorH, o.MirrorV, o.RotateFirst)
}

// plane is a dense RGB grid that may have different dimensions than the canvas.
type plane struct {
	w, h int
	pix  []int16
}

func (p *plane) at(x, y int) []int16 {
	i := (y*p.w + x) * 3
	return p.pix[i : i+3]
}

func rotate(src *plane, r Rotation, yield func()) *plane {
	if r == Rotate0 {
		return src
	}

	dst := &plane{w: src.w, h: src.h, pix: make([]int16, len(src.pix))}
	if r == Rotate90 || r == Rotate270 {
		dst.w, dst.h = src.h, src.w
	}
	for y := 0; y < dst.h; y++ {
		for x := 0; x < dst.w; x++ {
			var sx, sy int
			switch r {
			case Rotate90:
				sx, sy = y, src.h-1-x
			case Rotate180:
				sx, sy = src.w-1-x, src.h-1-y
			case Rotate270:
				sx, sy = src.w-1-y, x
			}
			copy(dst.at(x, y), src.at(sx, sy))
			if yield != nil {
				yield()
			}
		}
	}
	return dst
}

func mirror(p *plane, horizontal, vertical bool, yield func()) {
	if horizontal {
		for y := 0; y < p.h; y++ {
			for x := 0; x < p.w/2; x++ {
				a, b := p.at(x, y), p.at(p.w-1-x, y)
				a[0], a[1], a[2], b[0], b[1], b[2] = b[0], b[1], b[2], a[0], a[1], a[2]
				if yield != nil {
					yield()
				}
			}
		}
	}
	if vertical {
		for y := 0; y < p.h/2; y++ {
			for x := 0; x < p.w; x++ {
				a, b := p.at(x, y), p.at(x, p.h-1-y)
				a[0], a[1], a[2], b[0], b[1], b[2] = b[0], b[1], b[2], a[0], a[1], a[2]
				if yield != nil {
					yield()
				}
			}
		}
	}
}

// Apply transforms the contents of c in place. yield, if non-nil, is called once per pixel moved.
func Apply(c *canvas.Canvas, o Options, yield func()) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.Identity() {
		return nil
	}

	p := &plane{w: c.Width, h: c.Height, pix: c.Pix}
	if o.RotateFirst {
		p = rotate(p, o.Rotation, yield)
		mirror(p, o.MirrorH, o.MirrorV, yield)
	} else {
		mirror(p, o.MirrorH, o.MirrorV, yield)
		p = rotate(p, o.Rotation, yield)
	}

	if p.w == c.Width && p.h == c.Height {
		if &p.pix[0] != &c.Pix[0] {
			copy(c.Pix, p.pix)
		}
		return nil
	}

	// Center the rotated plane on the canvas.
	c.Clear()
	ox, oy := (p.w-c.Width)/2, (p.h-c.Height)/2
	for y := 0; y < c.Height; y++ {
		sy := y + oy
		if sy < 0 || sy >= p.h {
			continue
		}
		for x := 0; x < c.Width; x++ {
			sx := x + ox
			if sx < 0 || sx >= p.w {
				continue
			}
			copy(c.Pix[c.Offset(x, y):], p.at(sx, sy))
		}
	}
	return nil
}
