package pngstream

import (
	"bytes"
	"image/color"
	"image/png"
	"io"

	"github.com/klauspost/compress/zlib"
)

// A Sink receives the output of Decode. Header is called exactly once, before any pixel. Pixel is then called once
// per pixel in raster order. Colors are straight (non-premultiplied).
type Sink interface {
	Header(width, height int)
	Pixel(x, y int, c color.NRGBA)
}

// Decode decodes the PNG image in data and pushes its pixels into s. It returns the image dimensions. Errors are
// FormatError or UnsupportedError values; pixels delivered before a failure are not retracted.
//
// Interlaced images cannot be decoded a row at a time; they are decoded in full and then replayed into s.
func Decode(data []byte, s Sink) (width, height int, err error) {
	d := newDecoder(data)
	if err := d.readHeaders(); err != nil {
		return 0, 0, err
	}
	if d.info.Interlaced {
		return decodeInterlaced(data, s)
	}

	s.Header(d.info.Width, d.info.Height)
	if err := d.decodeRows(s); err != nil {
		return d.info.Width, d.info.Height, err
	}
	if err := d.readTrailer(); err != nil {
		return d.info.Width, d.info.Height, err
	}
	return d.info.Width, d.info.Height, nil
}

func (d *decoder) decodeRows(s Sink) error {
	r, err := zlib.NewReader(d)
	if err != nil {
		return asFormatError(err)
	}
	defer r.Close()

	bitsPerPixel := d.info.bitsPerPixel()
	bytesPerPixel := (bitsPerPixel + 7) / 8

	// The +1 is for the per-row filter type, which is at cr[0].
	rowSize := 1 + (int64(bitsPerPixel)*int64(d.info.Width)+7)/8
	if rowSize != int64(int(rowSize)) {
		return UnsupportedError("dimension overflow")
	}
	// cr and pr are the bytes for the current and previous row.
	cr := make([]uint8, rowSize)
	pr := make([]uint8, rowSize)

	for y := 0; y < d.info.Height; y++ {
		if _, err := io.ReadFull(r, cr); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return FormatError("not enough pixel data")
			}
			return asFormatError(err)
		}

		cdat, pdat := cr[1:], pr[1:]
		if err := unfilter(cr[0], cdat, pdat, bytesPerPixel); err != nil {
			return err
		}
		d.emitRow(s, y, cdat)

		pr, cr = cr, pr
	}

	// Check for EOF, to verify the zlib checksum.
	n := 0
	for i := 0; n == 0 && err == nil; i++ {
		if i == 100 {
			return io.ErrNoProgress
		}
		n, err = r.Read(pr[:1])
	}
	if err != nil && err != io.EOF {
		return asFormatError(err)
	}
	if n != 0 || d.idatLength != 0 {
		return FormatError("too much pixel data")
	}
	return nil
}

func unfilter(filter uint8, cdat, pdat []uint8, bytesPerPixel int) error {
	switch filter {
	case ftNone:
		// No-op.
	case ftSub:
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += cdat[i-bytesPerPixel]
		}
	case ftUp:
		for i, p := range pdat {
			cdat[i] += p
		}
	case ftAverage:
		// The first pixel has nothing to its left.
		for i := 0; i < bytesPerPixel && i < len(cdat); i++ {
			cdat[i] += pdat[i] / 2
		}
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += uint8((int(cdat[i-bytesPerPixel]) + int(pdat[i])) / 2)
		}
	case ftPaeth:
		filterPaeth(cdat, pdat, bytesPerPixel)
	default:
		return FormatError("bad filter type")
	}
	return nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func filterPaeth(cdat, pdat []byte, bytesPerPixel int) {
	var a, b, c, pa, pb, pc int
	for i := 0; i < bytesPerPixel && i < len(cdat); i++ {
		a, c = 0, 0
		for j := i; j < len(cdat); j += bytesPerPixel {
			b = int(pdat[j])
			pa = b - c
			pb = a - c
			pc = abs(pa + pb)
			pa = abs(pa)
			pb = abs(pb)
			if pa <= pb && pa <= pc {
				// No-op.
			} else if pb <= pc {
				a = b
			} else {
				a = c
			}
			a += int(cdat[j])
			a &= 0xff
			cdat[j] = uint8(a)
			c = b
		}
	}
}

// sample returns the depth-bit sample at position i of a packed row.
func sample(row []uint8, i, depth int) uint8 {
	switch depth {
	case 8:
		return row[i]
	case 16:
		return row[2*i]
	}
	perByte := 8 / depth
	shift := uint(8 - depth - (i%perByte)*depth)
	return row[i/perByte] >> shift & (1<<uint(depth) - 1)
}

// grayScale maps a sub-byte gray sample onto 0..255.
var grayScale = [...]uint8{1: 0xff, 2: 0x55, 4: 0x11, 8: 1, 16: 1}

func (d *decoder) emitRow(s Sink, y int, row []uint8) {
	w, depth := d.info.Width, d.info.Depth
	switch d.info.ColorType {
	case ctGrayscale:
		for x := 0; x < w; x++ {
			v := sample(row, x, depth) * grayScale[depth]
			s.Pixel(x, y, color.NRGBA{v, v, v, 0xff})
		}
	case ctGrayscaleAlpha:
		for x := 0; x < w; x++ {
			v, a := sample(row, 2*x, depth), sample(row, 2*x+1, depth)
			s.Pixel(x, y, color.NRGBA{v, v, v, a})
		}
	case ctTrueColor:
		for x := 0; x < w; x++ {
			s.Pixel(x, y, color.NRGBA{sample(row, 3*x, depth), sample(row, 3*x+1, depth), sample(row, 3*x+2, depth), 0xff})
		}
	case ctTrueColorAlpha:
		for x := 0; x < w; x++ {
			s.Pixel(x, y, color.NRGBA{sample(row, 4*x, depth), sample(row, 4*x+1, depth), sample(row, 4*x+2, depth), sample(row, 4*x+3, depth)})
		}
	case ctPaletted:
		for x := 0; x < w; x++ {
			c := color.NRGBA{0, 0, 0, 0xff}
			if i := int(sample(row, x, depth)); i < len(d.palette) {
				c = d.palette[i]
			}
			s.Pixel(x, y, c)
		}
	}
}

func decodeInterlaced(data []byte, s Sink) (int, int, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, asFormatError(err)
	}

	b := img.Bounds()
	s.Header(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			s.Pixel(x, y, color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA))
		}
	}
	return b.Dx(), b.Dy(), nil
}

func asFormatError(err error) error {
	switch err := err.(type) {
	case FormatError, UnsupportedError:
		return err
	case png.FormatError:
		return FormatError(string(err))
	case png.UnsupportedError:
		return UnsupportedError(string(err))
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return FormatError("unexpected end of data")
	}
	return FormatError(err.Error())
}
