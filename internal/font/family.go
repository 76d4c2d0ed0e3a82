// Package font provides the typefaces used to draw text onto frames.
package font

import (
	"fmt"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// DPI approximates the pixel density of a 7.3" 800x480 panel.
const DPI = 127

// Options are the rasterizer options shared by every face.
var Options = truetype.Options{DPI: DPI, SubPixelsX: 1}

// A Family is a regular and a bold typeface. Faces are created lazily and cached per point size. A Family is not safe
// for concurrent use.
type Family struct {
	options truetype.Options

	regularFont *truetype.Font
	boldFont    *truetype.Font

	sizes map[float64]*FaceFamily
}

// ParseFamily parses TrueType data for the regular and bold typefaces. If bold is nil the regular typeface is used
// for both.
func ParseFamily(regular, bold []byte, options truetype.Options) (*Family, error) {
	regularFont, err := truetype.Parse(regular)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regular font: %w", err)
	}
	boldFont := regularFont
	if bold != nil {
		if boldFont, err = truetype.Parse(bold); err != nil {
			return nil, fmt.Errorf("failed to parse bold font: %w", err)
		}
	}

	return &Family{
		options:     options,
		regularFont: regularFont,
		boldFont:    boldFont,
		sizes:       map[float64]*FaceFamily{},
	}, nil
}

// Default returns the Go font family.
func Default() *Family {
	family, err := ParseFamily(goregular.TTF, gobold.TTF, Options)
	if err != nil {
		panic(fmt.Errorf("error parsing font family: %v", err))
	}
	return family
}

// Size returns the faces of the family at the given point size.
func (f *Family) Size(pointSize float64) *FaceFamily {
	if faceFamily, ok := f.sizes[pointSize]; ok {
		return faceFamily
	}

	faceFamily := &FaceFamily{
		family:    f,
		pointSize: pointSize,
	}
	f.sizes[pointSize] = faceFamily
	return faceFamily
}

// Face returns a single face.
func (f *Family) Face(pointSize float64, bold bool) *Face {
	return f.Size(pointSize).Face(bold)
}
