package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/pgavlin/inkframe/internal/cache"
	"github.com/pgavlin/inkframe/internal/canvas"
	"github.com/pgavlin/inkframe/internal/fetch"
	"github.com/pgavlin/inkframe/internal/frame"
	"github.com/pgavlin/inkframe/internal/palette"
	"github.com/pgavlin/inkframe/internal/pngstream"
	"github.com/pgavlin/inkframe/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// noise returns a w×h image made of blocks of block×block identical pixels.
func noise(w, h, block int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for by := 0; by < h; by += block {
		for bx := 0; bx < w; bx += block {
			c := color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 0xff}
			draw.Draw(img, image.Rect(bx, by, bx+block, by+block), image.NewUniform(c), image.Point{}, draw.Src)
		}
	}
	return img
}

func newPipeline(t *testing.T, opts Options) *Pipeline {
	p, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func serve(t *testing.T, body []byte) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewDefaults(t *testing.T) {
	p := newPipeline(t, Options{})
	w, h := p.Bounds()
	assert.Equal(t, frame.Width, w)
	assert.Equal(t, frame.Height, h)
	assert.Equal(t, frame.Size, p.FrameSize())

	_, err := New(Options{Width: 3, Height: 3})
	assert.ErrorIs(t, err, ErrInitialization)
}

// Scenario A: a native-size image is decoded straight into the canvas.
func TestRunNativeSize(t *testing.T) {
	srv := serve(t, encodePNG(t, noise(frame.Width, frame.Height, 4, 1)))
	p := newPipeline(t, Options{})

	out := make([]byte, frame.Size)
	require.NoError(t, p.Run(context.Background(), srv.URL, out))
	assert.Len(t, out, 192000)
	assert.Empty(t, p.LastError())
	assert.Nil(t, p.download)
	assert.Nil(t, p.source)
}

// Scenario B: a 2x image scaled to fit produces the same frame as its 1x equivalent.
func TestRunScalesToFit(t *testing.T) {
	small := noise(frame.Width, frame.Height, 1, 2)
	large := image.NewRGBA(image.Rect(0, 0, 2*frame.Width, 2*frame.Height))
	for y := 0; y < 2*frame.Height; y++ {
		for x := 0; x < 2*frame.Width; x++ {
			large.SetRGBA(x, y, small.RGBAAt(x/2, y/2))
		}
	}

	var logs bytes.Buffer
	p := newPipeline(t, Options{Logger: log.New(&logs, "", 0)})

	want := make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(encodePNG(t, small), want))

	p.ConfigureScaling(1600, 960, true)
	got := make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(encodePNG(t, large), got))
	assert.Equal(t, want, got)
	assert.Contains(t, logs.String(), "scaling 1600x960 to 800x480")
	assert.Nil(t, p.source)
}

// Scenario C: a uniform black image has no quantization error.
func TestRunAllBlack(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	p := newPipeline(t, Options{})
	out := bytes.Repeat([]byte{0xff}, frame.Size)
	require.NoError(t, p.RunBytes(encodePNG(t, img), out))
	for _, b := range out {
		require.Equal(t, byte(0), b)
	}
}

// Scenario D: a timeout is a network error, and the pipeline keeps working afterwards.
func TestRunTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	p := newPipeline(t, Options{Timeout: 50 * time.Millisecond})
	out := make([]byte, frame.Size)
	err := p.Run(context.Background(), slow.URL, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotEmpty(t, p.LastError())
	assert.Nil(t, p.download)

	srv := serve(t, encodePNG(t, noise(64, 48, 1, 3)))
	require.NoError(t, p.Run(context.Background(), srv.URL, out))
	assert.Empty(t, p.LastError())
}

// Scenario E: a truncated stream is a decode error and leaves no buffers behind.
func TestRunTruncated(t *testing.T) {
	data := encodePNG(t, noise(1600, 960, 1, 4))
	srv := serve(t, data[:len(data)/3])

	p := newPipeline(t, Options{})
	p.ConfigureScaling(0, 0, true)
	err := p.Run(context.Background(), srv.URL, make([]byte, frame.Size))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)

	var fe pngstream.FormatError
	assert.True(t, errors.As(err, &fe))
	assert.Contains(t, p.LastError(), "decode")
	assert.Nil(t, p.download)
	assert.Nil(t, p.source)
}

// Scenario F: when the native-size buffer cannot be allocated the image is cropped instead.
func TestRunFallsBackToCrop(t *testing.T) {
	large := noise(1600, 960, 1, 5)
	cropped := large.SubImage(image.Rect(0, 0, frame.Width, frame.Height))

	direct := newPipeline(t, Options{})
	want := make([]byte, frame.Size)
	require.NoError(t, direct.RunBytes(encodePNG(t, cropped), want))

	var logs bytes.Buffer
	p := newPipeline(t, Options{
		Logger: log.New(&logs, "", 0),
		AllocSource: func(w, h int) (*canvas.Source, error) {
			return nil, errors.New("out of memory")
		},
	})
	p.ConfigureScaling(1600, 960, true)

	got := make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(encodePNG(t, large), got))
	assert.Equal(t, want, got)
	assert.Contains(t, logs.String(), "resource exhausted")
}

func TestRunSourceLimitFallsBackToCrop(t *testing.T) {
	p := newPipeline(t, Options{MaxSourcePixels: 1000})
	p.ConfigureScaling(0, 0, true)
	require.NoError(t, p.RunBytes(encodePNG(t, noise(100, 100, 1, 6)), make([]byte, frame.Size)))
}

func TestRunPadsSmallImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{255, 0, 0, 255}), image.Point{}, draw.Src)

	p := newPipeline(t, Options{})
	out := make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(encodePNG(t, img), out))

	f, err := frame.Wrap(out, frame.Width, frame.Height, nil)
	require.NoError(t, err)
	assert.Equal(t, palette.Red, f.Index(0, 0))
	assert.Equal(t, palette.Red, f.Index(9, 9))
	assert.Equal(t, palette.White, f.Index(10, 0))
	assert.Equal(t, palette.White, f.Index(frame.Width-1, frame.Height-1))
}

func TestRunIsDeterministic(t *testing.T) {
	data := encodePNG(t, noise(frame.Width, frame.Height, 3, 7))
	p := newPipeline(t, Options{})

	a, b := make([]byte, frame.Size), make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(data, a))
	require.NoError(t, p.RunBytes(data, b))
	assert.Equal(t, a, b)

	// Yielding never changes the output.
	yields := 0
	q := newPipeline(t, Options{YieldEvery: 7, Yield: func() { yields++ }})
	c := make([]byte, frame.Size)
	require.NoError(t, q.RunBytes(data, c))
	assert.Equal(t, a, c)
	assert.Greater(t, yields, 0)
}

func TestRunInvalidArguments(t *testing.T) {
	p := newPipeline(t, Options{})

	err := p.RunBytes([]byte{1}, make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = p.RunBytes(nil, make([]byte, frame.Size))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = p.Run(context.Background(), "", make([]byte, frame.Size))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, err, fetch.ErrInvalidURL)

	err = p.ConfigureTransform(transform.Options{Rotation: 45})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, err, transform.ErrInvalidRotation)

	err = p.RunBytes([]byte("definitely not a png"), make([]byte, frame.Size))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestRunHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p := newPipeline(t, Options{})
	err := p.Run(context.Background(), srv.URL, make([]byte, frame.Size))
	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.NotErrorIs(t, err, ErrNetwork)

	var se *fetch.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestRunAfterClose(t *testing.T) {
	p, err := New(Options{})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	err = p.RunBytes([]byte{1}, make([]byte, frame.Size))
	assert.ErrorIs(t, err, ErrInitialization)
}

func TestRunTransform(t *testing.T) {
	img := noise(frame.Width, frame.Height, 8, 8)
	flipped := image.NewRGBA(img.Bounds())
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			flipped.SetRGBA(x, y, img.RGBAAt(frame.Width-1-x, frame.Height-1-y))
		}
	}

	p := newPipeline(t, Options{})
	want := make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(encodePNG(t, flipped), want))

	require.NoError(t, p.ConfigureTransform(transform.Options{Rotation: transform.Rotate180, RotateFirst: true}))
	got := make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(encodePNG(t, img), got))
	assert.Equal(t, want, got)
}

func TestRunMono(t *testing.T) {
	p := newPipeline(t, Options{Mode: ModeMono})
	out := make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(encodePNG(t, noise(frame.Width, frame.Height, 16, 9)), out))
	for _, b := range out {
		require.True(t, b>>4 <= palette.White && b&0x0f <= palette.White, "%#x", b)
	}
}

func TestRunUsesCache(t *testing.T) {
	db, err := cache.Open(filepath.Join(t.TempDir(), "frames.db"))
	require.NoError(t, err)
	defer db.Close()

	var logs bytes.Buffer
	p := newPipeline(t, Options{Cache: db, Logger: log.New(&logs, "", 0)})
	data := encodePNG(t, noise(frame.Width, frame.Height, 5, 10))

	a := make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(data, a))
	assert.NotContains(t, logs.String(), "cache hit")

	b := make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(data, b))
	assert.Contains(t, logs.String(), "cache hit")
	assert.Equal(t, a, b)

	// A different transform is a different frame.
	require.NoError(t, p.ConfigureTransform(transform.Options{MirrorH: true}))
	logs.Reset()
	require.NoError(t, p.RunBytes(data, b))
	assert.NotContains(t, logs.String(), "cache hit")

	n, err := db.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSourceSizeHintMismatchIsLogged(t *testing.T) {
	var logs bytes.Buffer
	p := newPipeline(t, Options{Logger: log.New(&logs, "", 0)})
	p.ConfigureScaling(1024, 768, false)
	require.NoError(t, p.RunBytes(encodePNG(t, noise(64, 48, 1, 11)), make([]byte, frame.Size)))
	assert.Contains(t, logs.String(), "does not match image size 64x48")
}

func TestErrorKinds(t *testing.T) {
	err := error(newError(ErrDecode, "decode", pngstream.FormatError("bad")))
	assert.ErrorIs(t, err, ErrDecode)
	assert.NotErrorIs(t, err, ErrNetwork)
	assert.Equal(t, "decode: decode error: png: invalid format: bad", err.Error())
}

func TestCroppedFrameIsNotCached(t *testing.T) {
	db, err := cache.Open(filepath.Join(t.TempDir(), "frames.db"))
	require.NoError(t, err)
	defer db.Close()

	large := noise(1600, 960, 2, 12)
	data := encodePNG(t, large)

	scaled := make([]byte, frame.Size)
	reference := newPipeline(t, Options{})
	reference.ConfigureScaling(1600, 960, true)
	require.NoError(t, reference.RunBytes(data, scaled))

	// The first allocation fails; later ones succeed.
	allocs := 0
	p := newPipeline(t, Options{
		Cache: db,
		AllocSource: func(w, h int) (*canvas.Source, error) {
			allocs++
			if allocs == 1 {
				return nil, errors.New("out of memory")
			}
			return canvas.NewSource(w, h, 0)
		},
	})
	p.ConfigureScaling(1600, 960, true)

	cropped := make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(data, cropped))
	assert.NotEqual(t, scaled, cropped)

	n, err := db.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got := make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(data, got))
	assert.Equal(t, 2, allocs)
	assert.Equal(t, scaled, got)

	n, err = db.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func pngChunk(buf *bytes.Buffer, typ string, data []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(data)))
	buf.Write(n[:])
	buf.WriteString(typ)
	buf.Write(data)
	binary.BigEndian.PutUint32(n[:], crc32.ChecksumIEEE(append([]byte(typ), data...)))
	buf.Write(n[:])
}

// interlacedPixel returns a 1x1 Adam7-interlaced RGB PNG.
func interlacedPixel(t *testing.T, r, g, b uint8) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], 1)
	binary.BigEndian.PutUint32(ihdr[4:], 1)
	ihdr[8], ihdr[9], ihdr[12] = 8, 2, 1
	pngChunk(&buf, "IHDR", ihdr)

	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	_, err := zw.Write([]byte{0, r, g, b})
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	pngChunk(&buf, "IDAT", z.Bytes())
	pngChunk(&buf, "IEND", nil)
	return buf.Bytes()
}

func TestInterlacedImageIsLogged(t *testing.T) {
	var logs bytes.Buffer
	p := newPipeline(t, Options{Logger: log.New(&logs, "", 0)})

	out := make([]byte, frame.Size)
	require.NoError(t, p.RunBytes(interlacedPixel(t, 0, 0, 255), out))
	assert.Contains(t, logs.String(), "1x1 image is interlaced")

	f, err := frame.Wrap(out, frame.Width, frame.Height, nil)
	require.NoError(t, err)
	assert.Equal(t, palette.Blue, f.Index(0, 0))
	assert.Equal(t, palette.White, f.Index(1, 0))

	logs.Reset()
	require.NoError(t, p.RunBytes(encodePNG(t, noise(8, 8, 1, 13)), out))
	assert.NotContains(t, logs.String(), "interlaced")
}
