// Package errscreen renders a full-screen error report onto a frame so that a failed update never leaves the panel
// blank or stale without explanation.
package errscreen

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/datamatrix"
	"golang.org/x/image/math/fixed"

	"github.com/pgavlin/inkframe/internal/font"
	"github.com/pgavlin/inkframe/internal/frame"
	"github.com/pgavlin/inkframe/internal/palette"
	"github.com/pgavlin/inkframe/internal/pipeline"
)

// A Category is a coarse classification of a failure.
type Category int

const (
	Unknown Category = iota
	Init
	Network
	HTTP
	Image
)

type description struct {
	name, title, suggestion string
}

var descriptions = map[Category]description{
	Unknown: {"unknown", "Error", "Check the configuration and try again."},
	Init:    {"init", "Initialization Error", "Restart the device. If the problem persists, check available memory."},
	Network: {"network", "Network Error", "Check the network connection and that the image server is reachable."},
	HTTP:    {"http", "Server Error", "Check that the image URL is correct and that the server is serving the file."},
	Image:   {"image", "Image Error", "Make sure the URL points to a valid PNG image."},
}

func (c Category) String() string {
	return descriptions[c].name
}

// Title returns the heading shown for the category.
func (c Category) Title() string {
	return descriptions[c].title
}

// Suggestion returns a hint for resolving failures in the category.
func (c Category) Suggestion() string {
	return descriptions[c].suggestion
}

// Categorize classifies an error. Pipeline errors are classified by kind; other errors by their message.
func Categorize(err error) Category {
	switch {
	case err == nil:
		return Unknown
	case errors.Is(err, pipeline.ErrInitialization):
		return Init
	case errors.Is(err, pipeline.ErrNetwork):
		return Network
	case errors.Is(err, pipeline.ErrHTTPStatus):
		return HTTP
	case errors.Is(err, pipeline.ErrDecode), errors.Is(err, pipeline.ErrResourceExhausted):
		return Image
	case errors.Is(err, pipeline.ErrInvalidArgument):
		return Unknown
	}
	return CategorizeMessage(err.Error())
}

// CategorizeMessage classifies an error message, such as the one reported by Pipeline.LastError.
func CategorizeMessage(msg string) Category {
	msg = strings.ToLower(msg)
	containsAny := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(msg, w) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny("initialization", "out of memory"):
		return Init
	case containsAny("network", "timeout", "deadline exceeded", "connection", "no such host"):
		return Network
	case containsAny("http status", "request failed"):
		return HTTP
	case containsAny("decode", "png", "image", "resource exhausted"):
		return Image
	}
	return Unknown
}

// A Screen describes an error report.
type Screen struct {
	Category Category
	Detail   string
	URL      string
}

const (
	margin      = 24
	bandHeight  = 80
	titleSize   = 28
	detailSize  = 16
	hintSize    = 14
	codeMaxSide = 160
)

var (
	ink   = image.NewUniform(color.Black)
	paper = image.NewUniform(color.White)
	red   = image.NewUniform(color.RGBA{255, 0, 0, 255})
	blue  = image.NewUniform(color.RGBA{0, 0, 255, 255})
)

// renderCode renders url as a Data Matrix barcode scaled up to at most codeMaxSide pixels.
func renderCode(url string) (image.Image, error) {
	code, err := datamatrix.Encode(url)
	if err != nil {
		return nil, err
	}

	side := code.Bounds().Dx()
	if scale := codeMaxSide / side; scale > 1 {
		side *= scale
	}
	return barcode.Scale(code, side, side)
}

func drawLines(img draw.Image, face *font.Face, lines []string, x, y int, src image.Image) int {
	for _, l := range lines {
		y += face.LineHeight()
		face.Draw(img, fixed.P(x, y-face.Metrics().Descent.Ceil()), l, src)
	}
	return y
}

// Draw renders the screen onto an RGB image of the given size.
func Draw(width, height int, fam *font.Family, s Screen) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), paper, image.Point{}, draw.Src)

	// Title band.
	draw.Draw(img, image.Rect(0, 0, width, bandHeight), red, image.Point{}, draw.Src)
	title := fam.Face(titleSize, true)
	titleY := (bandHeight + title.LineHeight()) / 2
	title.Draw(img, fixed.P(margin, titleY-title.Metrics().Descent.Ceil()), s.Category.Title(), paper)

	textWidth := width - 2*margin
	if s.URL != "" {
		code, err := renderCode(s.URL)
		if err != nil {
			return nil, err
		}
		b := code.Bounds()
		at := image.Pt(width-margin-b.Dx(), height-margin-b.Dy())
		draw.Draw(img, image.Rectangle{at, at.Add(b.Size())}, code, b.Min, draw.Src)
		textWidth -= b.Dx() + margin
	}

	y := bandHeight + margin/2
	detail := fam.Face(detailSize, false)
	y = drawLines(img, detail, font.Wrap(detail, s.Detail, textWidth), margin, y, ink)
	if s.URL != "" {
		y = drawLines(img, detail, font.Wrap(detail, s.URL, textWidth), margin, y+margin/2, ink)
	}

	hint := fam.Face(hintSize, true)
	drawLines(img, hint, font.Wrap(hint, s.Category.Suggestion(), textWidth), margin, y+margin, blue)
	return img, nil
}

// Render draws the screen into f. Antialiased edges are snapped to the six colors the panel can show.
func Render(f *frame.Frame, fam *font.Family, s Screen) error {
	img, err := Draw(f.Width, f.Height, fam, s)
	if err != nil {
		return err
	}

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			o := img.PixOffset(x, y)
			c := palette.Spectra6.Nearest(int16(img.Pix[o+0]), int16(img.Pix[o+1]), int16(img.Pix[o+2]))
			f.SetIndex(x, y, c.Index)
		}
	}
	return nil
}
