// Package pngstream implements a row-by-row PNG decoder that pushes pixels into a Sink instead of building an
// image.Image. Only the current and previous scanlines are resident while decoding, so memory use is proportional to
// the image width rather than its area.
package pngstream

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"image/color"
	"io"
)

// Color types, as per the PNG spec.
const (
	ctGrayscale      = 0
	ctTrueColor      = 2
	ctPaletted       = 3
	ctGrayscaleAlpha = 4
	ctTrueColorAlpha = 6
)

// Filter types, as per the PNG spec.
const (
	ftNone    = 0
	ftSub     = 1
	ftUp      = 2
	ftAverage = 3
	ftPaeth   = 4
)

// Decoding stages. IHDR must come first, PLTE (if any) before the first IDAT, and IDAT chunks are contiguous.
const (
	dsStart = iota
	dsSeenIHDR
	dsSeenPLTE
	dsSeenIDAT
	dsSeenIEND
)

const pngHeader = "\x89PNG\r\n\x1a\n"

// A FormatError reports that the input is not a valid PNG.
type FormatError string

func (e FormatError) Error() string { return "png: invalid format: " + string(e) }

var chunkOrderError = FormatError("chunk out of order")

// An UnsupportedError reports that the input uses a valid but unimplemented PNG feature.
type UnsupportedError string

func (e UnsupportedError) Error() string { return "png: unsupported feature: " + string(e) }

// Info describes a PNG stream as declared by its IHDR chunk.
type Info struct {
	Width, Height int
	Depth         int
	ColorType     int
	Interlaced    bool
}

// Channels returns the number of samples per pixel.
func (i Info) Channels() int {
	switch i.ColorType {
	case ctTrueColor:
		return 3
	case ctGrayscaleAlpha:
		return 2
	case ctTrueColorAlpha:
		return 4
	}
	return 1
}

func (i Info) bitsPerPixel() int {
	return i.Channels() * i.Depth
}

type decoder struct {
	r          io.Reader
	crc        hash.Hash32
	info       Info
	palette    []color.NRGBA
	stage      int
	idatLength uint32
	tmp        [3 * 256]byte
}

func newDecoder(data []byte) *decoder {
	return &decoder{r: bytes.NewReader(data), crc: crc32.NewIEEE()}
}

func (d *decoder) checkHeader() error {
	if _, err := io.ReadFull(d.r, d.tmp[:len(pngHeader)]); err != nil {
		return noEOF(err)
	}
	if string(d.tmp[:len(pngHeader)]) != pngHeader {
		return FormatError("not a PNG file")
	}
	return nil
}

// readChunkHeader reads a chunk's length and type and primes the checksum.
func (d *decoder) readChunkHeader() (uint32, string, error) {
	if _, err := io.ReadFull(d.r, d.tmp[:8]); err != nil {
		return 0, "", noEOF(err)
	}
	length := binary.BigEndian.Uint32(d.tmp[:4])
	if length > 0x7fffffff {
		return 0, "", FormatError(fmt.Sprintf("bad chunk length: %d", length))
	}
	d.crc.Reset()
	d.crc.Write(d.tmp[4:8])
	return length, string(d.tmp[4:8]), nil
}

// readHeaders consumes chunks up to and including the first IDAT chunk header.
func (d *decoder) readHeaders() error {
	if err := d.checkHeader(); err != nil {
		return err
	}
	for {
		length, typ, err := d.readChunkHeader()
		if err != nil {
			return err
		}

		switch typ {
		case "IHDR":
			if d.stage != dsStart {
				return chunkOrderError
			}
			d.stage = dsSeenIHDR
			if err := d.parseIHDR(length); err != nil {
				return err
			}
		case "PLTE":
			if d.stage != dsSeenIHDR {
				return chunkOrderError
			}
			d.stage = dsSeenPLTE
			if err := d.parsePLTE(length); err != nil {
				return err
			}
		case "IDAT":
			if d.stage < dsSeenIHDR {
				return chunkOrderError
			}
			if d.info.ColorType == ctPaletted && d.stage != dsSeenPLTE {
				return FormatError("missing palette")
			}
			d.stage = dsSeenIDAT
			d.idatLength = length
			return nil
		case "IEND":
			return FormatError("missing pixel data")
		default:
			if d.stage == dsStart {
				return chunkOrderError
			}
			if err := d.skip(length); err != nil {
				return err
			}
		}
	}
}

func (d *decoder) parseIHDR(length uint32) error {
	if length != 13 {
		return FormatError("bad IHDR length")
	}
	if _, err := io.ReadFull(d.r, d.tmp[:13]); err != nil {
		return noEOF(err)
	}
	d.crc.Write(d.tmp[:13])
	if d.tmp[10] != 0 {
		return UnsupportedError("compression method")
	}
	if d.tmp[11] != 0 {
		return UnsupportedError("filter method")
	}
	if d.tmp[12] > 1 {
		return FormatError("bad interlace method")
	}

	w := int32(binary.BigEndian.Uint32(d.tmp[0:4]))
	h := int32(binary.BigEndian.Uint32(d.tmp[4:8]))
	if w <= 0 || h <= 0 {
		return FormatError("non-positive dimension")
	}
	nPixels64 := int64(w) * int64(h)
	if nPixels64 != int64(int(nPixels64)) {
		return UnsupportedError("dimension overflow")
	}

	depth, ct := int(d.tmp[8]), int(d.tmp[9])
	valid := false
	switch ct {
	case ctGrayscale:
		valid = depth == 1 || depth == 2 || depth == 4 || depth == 8 || depth == 16
	case ctPaletted:
		valid = depth == 1 || depth == 2 || depth == 4 || depth == 8
	case ctTrueColor, ctGrayscaleAlpha, ctTrueColorAlpha:
		valid = depth == 8 || depth == 16
	}
	if !valid {
		return UnsupportedError(fmt.Sprintf("bit depth %d, color type %d", depth, ct))
	}

	d.info = Info{Width: int(w), Height: int(h), Depth: depth, ColorType: ct, Interlaced: d.tmp[12] == 1}
	return d.verifyChecksum()
}

func (d *decoder) parsePLTE(length uint32) error {
	np := int(length / 3)
	if length%3 != 0 || np <= 0 || np > 256 {
		return FormatError("bad PLTE length")
	}
	n, err := io.ReadFull(d.r, d.tmp[:3*np])
	if err != nil {
		return noEOF(err)
	}
	d.crc.Write(d.tmp[:n])

	d.palette = make([]color.NRGBA, np)
	for i := range d.palette {
		d.palette[i] = color.NRGBA{d.tmp[3*i+0], d.tmp[3*i+1], d.tmp[3*i+2], 0xff}
	}
	return d.verifyChecksum()
}

// skip discards a chunk whose contents the decoder does not need.
func (d *decoder) skip(length uint32) error {
	var ignored [4096]byte
	for length > 0 {
		n, err := io.ReadFull(d.r, ignored[:min(len(ignored), int(length))])
		if err != nil {
			return noEOF(err)
		}
		d.crc.Write(ignored[:n])
		length -= uint32(n)
	}
	return d.verifyChecksum()
}

// Read presents one or more IDAT chunks as one continuous stream (minus the intermediate chunk headers and
// footers). After the last byte of pixel data is read, d.r is positioned before the final IDAT chunk's checksum.
func (d *decoder) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for d.idatLength == 0 {
		// We have exhausted an IDAT chunk. Verify its checksum and move on to the next one.
		if err := d.verifyChecksum(); err != nil {
			return 0, err
		}
		length, typ, err := d.readChunkHeader()
		if err != nil {
			return 0, err
		}
		if typ != "IDAT" {
			return 0, FormatError("not enough pixel data")
		}
		d.idatLength = length
	}
	n, err := d.r.Read(p[:min(len(p), int(d.idatLength))])
	d.crc.Write(p[:n])
	d.idatLength -= uint32(n)
	return n, err
}

// readTrailer consumes everything after the pixel data up to and including IEND.
func (d *decoder) readTrailer() error {
	if err := d.verifyChecksum(); err != nil {
		return err
	}
	for {
		length, typ, err := d.readChunkHeader()
		if err != nil {
			return err
		}
		if typ == "IEND" {
			if length != 0 {
				return FormatError("bad IEND length")
			}
			d.stage = dsSeenIEND
			return d.verifyChecksum()
		}
		if err := d.skip(length); err != nil {
			return err
		}
	}
}

func (d *decoder) verifyChecksum() error {
	if _, err := io.ReadFull(d.r, d.tmp[:4]); err != nil {
		return noEOF(err)
	}
	if binary.BigEndian.Uint32(d.tmp[:4]) != d.crc.Sum32() {
		return FormatError("invalid checksum")
	}
	return nil
}

// noEOF turns a premature end of input into a FormatError.
func noEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return FormatError("unexpected end of data")
	}
	return err
}

// ReadInfo parses the signature and the chunks preceding the pixel data and returns the image header.
func ReadInfo(data []byte) (Info, error) {
	d := newDecoder(data)
	if err := d.readHeaders(); err != nil {
		return Info{}, err
	}
	return d.info, nil
}
