// Package display sends packed frames to a panel.
package display

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/tarm/serial"

	"github.com/pgavlin/inkframe/internal/frame"
)

// A Device shows frames.
type Device interface {
	// Display shows a frame.
	Display(f *frame.Frame) error
	// Clear fills the panel with a single color.
	Clear(index uint8) error
	// Sleep puts the panel into its low-power state. The next command wakes it.
	Sleep() error
}

// Serial command bytes.
const (
	cmdDisplay = 'D'
	cmdClear   = 'C'
	cmdSleep   = 'S'
)

// DefaultBaud is the default serial line rate.
const DefaultBaud = 115200

// A Serial device drives a panel controller over a byte stream.
//
// Each command is a single byte. Display is followed by a 4-byte big-endian length and the packed frame; Clear is
// followed by the color index.
type Serial struct {
	w io.Writer
}

// NewSerial returns a device that writes commands to w.
func NewSerial(w io.Writer) *Serial {
	return &Serial{w: w}
}

// OpenSerial opens the named serial port.
func OpenSerial(port string, baud int) (*Serial, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	s, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("opening '%v': %w", port, err)
	}
	return NewSerial(s), nil
}

func (d *Serial) Display(f *frame.Frame) error {
	if len(f.Pix) != frame.SizeOf(f.Width, f.Height) {
		return fmt.Errorf("frame holds %d bytes, need %d", len(f.Pix), frame.SizeOf(f.Width, f.Height))
	}

	var header [5]byte
	header[0] = cmdDisplay
	binary.BigEndian.PutUint32(header[1:], uint32(len(f.Pix)))
	if _, err := d.w.Write(header[:]); err != nil {
		return err
	}
	_, err := d.w.Write(f.Pix)
	return err
}

func (d *Serial) Clear(index uint8) error {
	if index > 0x0f {
		return fmt.Errorf("color index %d does not fit in a nibble", index)
	}
	_, err := d.w.Write([]byte{cmdClear, index})
	return err
}

func (d *Serial) Sleep() error {
	_, err := d.w.Write([]byte{cmdSleep})
	return err
}

// Close closes the underlying stream if it is closable.
func (d *Serial) Close() error {
	if c, ok := d.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// A File device writes each frame to a file as raw packed bytes.
type File struct {
	Path          string
	Width, Height int
}

func (d *File) Display(f *frame.Frame) error {
	return ioutil.WriteFile(d.Path, f.Pix, 0o644)
}

func (d *File) Clear(index uint8) error {
	f, err := frame.New(d.Width, d.Height, nil)
	if err != nil {
		return err
	}
	f.Fill(index)
	return d.Display(f)
}

func (d *File) Sleep() error {
	return nil
}
