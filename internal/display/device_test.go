package display

import (
	"bytes"
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgavlin/inkframe/internal/frame"
	"github.com/pgavlin/inkframe/internal/palette"
)

var _ Device = (*Serial)(nil)
var _ Device = (*File)(nil)

func TestSerialDisplay(t *testing.T) {
	f, err := frame.New(4, 2, nil)
	require.NoError(t, err)
	frame.ColorBlocks(f, palette.Red, palette.Blue)

	var buf bytes.Buffer
	require.NoError(t, NewSerial(&buf).Display(f))
	assert.Equal(t, []byte{'D', 0, 0, 0, 4, 0x33, 0x33, 0x55, 0x55}, buf.Bytes())
}

func TestSerialClearAndSleep(t *testing.T) {
	var buf bytes.Buffer
	d := NewSerial(&buf)
	require.NoError(t, d.Clear(palette.Green))
	require.NoError(t, d.Sleep())
	assert.Equal(t, []byte{'C', 6, 'S'}, buf.Bytes())

	assert.Error(t, d.Clear(16))
	assert.NoError(t, d.Close())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("port gone")
}

func TestSerialWriteError(t *testing.T) {
	f, err := frame.New(2, 2, nil)
	require.NoError(t, err)
	assert.EqualError(t, NewSerial(failingWriter{}).Display(f), "port gone")
}

func TestOpenSerialMissingPort(t *testing.T) {
	_, err := OpenSerial(filepath.Join(t.TempDir(), "ttyMissing"), 0)
	assert.Error(t, err)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.bin")
	d := &File{Path: path, Width: frame.Width, Height: frame.Height}

	require.NoError(t, d.Clear(palette.Yellow))
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, frame.Size)
	assert.Equal(t, byte(0x22), data[0])
	assert.Equal(t, byte(0x22), data[frame.Size-1])

	f, err := frame.New(frame.Width, frame.Height, nil)
	require.NoError(t, err)
	frame.ColorBlocks(f, frame.TestPattern...)
	require.NoError(t, d.Display(f))
	data, err = ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.Pix, data)
	assert.NoError(t, d.Sleep())
}
