package main

import (
	"image"
	"image/color"
	"sync"

	"github.com/pgavlin/inkframe/internal/frame"
	"github.com/pgavlin/inkframe/internal/palette"
)

// bezel is the width of the frame drawn around the panel in preview images.
const bezel = 16

var bezelColor = color.Gray{0x40}

// preview is an in-memory display. It keeps a copy of the last frame it was asked to show and renders it, surrounded
// by a bezel, as an image.
type preview struct {
	m sync.Mutex

	width, height int
	palette       palette.Palette
	current       *frame.Frame
	asleep        bool
}

func newPreview(width, height int, p palette.Palette) *preview {
	return &preview{width: width, height: height, palette: p}
}

func (p *preview) Display(f *frame.Frame) error {
	c, err := frame.New(f.Width, f.Height, p.palette)
	if err != nil {
		return err
	}
	copy(c.Pix, f.Pix)

	p.m.Lock()
	defer p.m.Unlock()
	p.current, p.asleep = c, false
	return nil
}

func (p *preview) Clear(index uint8) error {
	f, err := frame.New(p.width, p.height, p.palette)
	if err != nil {
		return err
	}
	f.Fill(index)
	return p.Display(f)
}

func (p *preview) Sleep() error {
	p.m.Lock()
	defer p.m.Unlock()
	p.asleep = true
	return nil
}

// Frame returns the frame on display, or nil if nothing has been shown.
func (p *preview) Frame() *frame.Frame {
	p.m.Lock()
	defer p.m.Unlock()
	return p.current
}

func (p *preview) ColorModel() color.Model {
	return color.RGBAModel
}

func (p *preview) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.width+2*bezel, p.height+2*bezel)
}

func (p *preview) At(x, y int) color.Color {
	x, y = x-bezel, y-bezel
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return bezelColor
	}

	f := p.Frame()
	if f == nil || x >= f.Width || y >= f.Height {
		return color.White
	}
	return f.At(x, y)
}
