// Package pipeline turns a PNG image into a packed frame for a six-color panel: fetch, decode, optionally resample,
// rotate and mirror, then dither to the panel palette.
package pipeline

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pgavlin/inkframe/internal/cache"
	"github.com/pgavlin/inkframe/internal/canvas"
	"github.com/pgavlin/inkframe/internal/dither"
	"github.com/pgavlin/inkframe/internal/fetch"
	"github.com/pgavlin/inkframe/internal/frame"
	"github.com/pgavlin/inkframe/internal/palette"
	"github.com/pgavlin/inkframe/internal/pngstream"
	"github.com/pgavlin/inkframe/internal/resample"
	"github.com/pgavlin/inkframe/internal/transform"
)

// DefaultYieldEvery is the number of pixel operations between cooperative yields.
const DefaultYieldEvery = 4000

// A Mode selects how the canvas is reduced to panel colors.
type Mode int

const (
	// ModeColor dithers to the full palette.
	ModeColor Mode = iota
	// ModeMono dithers to black and white.
	ModeMono
)

// ParseMode parses "color" or "mono". An empty string selects ModeColor.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "color":
		return ModeColor, nil
	case "mono":
		return ModeMono, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) String() string {
	if m == ModeMono {
		return "mono"
	}
	return "color"
}

// A FrameCache stores rendered frames by key. *cache.FrameDB implements it.
type FrameCache interface {
	Get(key string, dst []byte) (bool, error)
	Put(key string, frame []byte) error
}

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	// Width and Height are the display resolution. They default to the native panel size.
	Width, Height int
	Palette       palette.Palette
	Mode          Mode

	// MaxBytes bounds the download buffer.
	MaxBytes   int
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string

	Logger *log.Logger

	// Yield is called every YieldEvery pixel operations. It defaults to runtime.Gosched.
	YieldEvery int
	Yield      func()

	// MaxSourcePixels bounds the native-size buffer used for resampling.
	MaxSourcePixels int
	// AllocSource allocates the native-size buffer. When it fails the pipeline crops instead of scaling.
	AllocSource func(width, height int) (*canvas.Source, error)

	Cache FrameCache
}

type scaling struct {
	srcWidth, srcHeight int
	scaleToFit          bool
}

// A Pipeline owns the display canvas and renders images into caller-supplied frame buffers. Runs are serialized.
type Pipeline struct {
	mu sync.Mutex

	opts    Options
	logger  *log.Logger
	fetcher *fetch.Fetcher
	canvas  *canvas.Canvas

	scaling   scaling
	transform transform.Options
	lastError string
	ops       int

	// Per-run buffers, released before Run returns.
	download *fetch.Download
	source   *canvas.Source
}

// New allocates a pipeline and its canvas.
func New(opts Options) (*Pipeline, error) {
	if opts.Width == 0 && opts.Height == 0 {
		opts.Width, opts.Height = frame.Width, frame.Height
	}
	if opts.Palette == nil {
		opts.Palette = palette.Reference
	}
	if opts.Logger == nil {
		opts.Logger = log.New(ioutil.Discard, "", 0)
	}
	if opts.YieldEvery <= 0 {
		opts.YieldEvery = DefaultYieldEvery
	}
	if opts.Yield == nil {
		opts.Yield = runtime.Gosched
	}
	if opts.AllocSource == nil {
		limit := opts.MaxSourcePixels
		opts.AllocSource = func(width, height int) (*canvas.Source, error) {
			return canvas.NewSource(width, height, limit)
		}
	}

	c, err := canvas.New(opts.Width, opts.Height)
	if err != nil {
		return nil, newError(ErrInitialization, "init", err)
	}

	p := &Pipeline{
		opts:   opts,
		logger: opts.Logger,
		canvas: c,
		fetcher: fetch.New(
			fetch.WithHTTPClient(opts.HTTPClient),
			fetch.WithTimeout(opts.Timeout),
			fetch.WithMaxBytes(opts.MaxBytes),
			fetch.WithUserAgent(opts.UserAgent),
			fetch.WithLogger(opts.Logger),
		),
		transform: transform.Options{RotateFirst: true},
	}
	p.logger.Printf("pipeline ready: %dx%d canvas, %d-byte frames", c.Width, c.Height, p.FrameSize())
	return p, nil
}

// FrameSize returns the size of the buffer Run fills.
func (p *Pipeline) FrameSize() int {
	return frame.SizeOf(p.opts.Width, p.opts.Height)
}

// Bounds returns the display resolution.
func (p *Pipeline) Bounds() (width, height int) {
	return p.opts.Width, p.opts.Height
}

// ConfigureScaling records the expected source size and whether images whose size differs from the display are
// scaled to fit. A zero source size means no expectation.
func (p *Pipeline) ConfigureScaling(srcWidth, srcHeight int, scaleToFit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.scaling = scaling{srcWidth: srcWidth, srcHeight: srcHeight, scaleToFit: scaleToFit}
	p.logger.Printf("scaling: src=%dx%d, scaleToFit=%v", srcWidth, srcHeight, scaleToFit)
}

// ConfigureTransform sets the rotation and mirroring applied after decoding.
func (p *Pipeline) ConfigureTransform(o transform.Options) error {
	if err := o.Validate(); err != nil {
		return newError(ErrInvalidArgument, "configure transform", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.transform = o
	p.logger.Printf("transform: %v", o)
	return nil
}

// LastError returns the message of the most recent failed run, or "" if the most recent run succeeded.
func (p *Pipeline) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

// Close releases the canvas. Later runs fail with ErrInitialization.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.canvas = nil
	return nil
}

// Run fetches the image at url and renders it into out, which must hold exactly FrameSize bytes. On failure the
// contents of out are unspecified.
func (p *Pipeline) Run(ctx context.Context, url string, out []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.finish(p.run(ctx, url, out))
}

// RunBytes renders an already-fetched image into out.
func (p *Pipeline) RunBytes(data, out []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.finish(p.runBytes(data, out))
}

func (p *Pipeline) finish(err *Error) error {
	if err != nil {
		p.lastError = err.Error()
		p.logger.Printf("run failed: %v", err)
		return err
	}
	p.lastError = ""
	return nil
}

// release drops the per-run buffers.
func (p *Pipeline) release() {
	p.download, p.source = nil, nil
}

func (p *Pipeline) check(out []byte) *Error {
	if p.canvas == nil {
		return newError(ErrInitialization, "run", errClosed)
	}
	if len(out) != p.FrameSize() {
		return newError(ErrInvalidArgument, "run", fmt.Errorf("output buffer holds %d bytes, need %d", len(out), p.FrameSize()))
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, url string, out []byte) *Error {
	if err := p.check(out); err != nil {
		return err
	}
	defer p.release()

	start := time.Now()
	d, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return fetchError(err)
	}
	p.download = d
	if d.Truncated {
		p.logger.Printf("warning: %v was truncated to %d bytes; decoding what arrived", url, len(d.Bytes))
	}
	p.logger.Printf("download finished in %v", time.Since(start))

	return p.render(d.Bytes, out)
}

func (p *Pipeline) runBytes(data, out []byte) *Error {
	if err := p.check(out); err != nil {
		return err
	}
	if len(data) == 0 {
		return newError(ErrInvalidArgument, "run", fmt.Errorf("no image data"))
	}
	defer p.release()

	return p.render(data, out)
}

// variant describes everything besides the image bytes that affects the rendered frame.
func (p *Pipeline) variant() string {
	return fmt.Sprintf("%dx%d,%v,%v,fit=%v,%v", p.opts.Width, p.opts.Height, p.opts.Palette, p.opts.Mode,
		p.scaling.scaleToFit, p.transform)
}

func (p *Pipeline) render(data, out []byte) *Error {
	f, err := frame.Wrap(out, p.opts.Width, p.opts.Height, p.opts.Palette)
	if err != nil {
		return newError(ErrInvalidArgument, "render", err)
	}

	var key string
	if p.opts.Cache != nil {
		key = cache.Key(data, p.variant())
		switch hit, err := p.opts.Cache.Get(key, out); {
		case err != nil:
			p.logger.Printf("warning: frame cache lookup failed: %v", err)
		case hit:
			p.logger.Printf("frame cache hit (%v)", key)
			return nil
		}
	}

	start := time.Now()
	p.canvas.Clear()
	p.ops = 0

	if info, err := pngstream.ReadInfo(data); err == nil && info.Interlaced {
		p.logger.Printf("warning: %dx%d image is interlaced; decoding it in full", info.Width, info.Height)
	}

	a := &adapter{p: p}
	if _, _, err := pngstream.Decode(data, a); err != nil {
		return newError(ErrDecode, "decode", err)
	}
	p.logger.Printf("decode finished in %v", time.Since(start))

	if a.source != nil {
		p.logger.Printf("scaling %dx%d to %dx%d", a.source.Width, a.source.Height, p.canvas.Width, p.canvas.Height)
		resample.Bilinear(p.canvas, a.source, p.tick)
		p.source = nil
	}

	if !p.transform.Identity() {
		p.logger.Printf("applying transform %v", p.transform)
		if err := transform.Apply(p.canvas, p.transform, p.tick); err != nil {
			return newError(ErrInvalidArgument, "transform", err)
		}
	}

	switch p.opts.Mode {
	case ModeMono:
		dither.Mono(p.canvas, f, p.tick)
	default:
		dither.FloydSteinberg(p.canvas, p.opts.Palette, f, p.tick)
	}
	p.logger.Printf("render finished in %v", time.Since(start))

	switch {
	case p.opts.Cache == nil:
	case a.degraded:
		p.logger.Printf("not caching cropped frame (%v)", key)
	default:
		if err := p.opts.Cache.Put(key, out); err != nil {
			p.logger.Printf("warning: frame cache store failed: %v", err)
		}
	}
	return nil
}

// tick counts a pixel operation and yields to the scheduler periodically.
func (p *Pipeline) tick() {
	p.ops++
	if p.ops%p.opts.YieldEvery == 0 {
		p.opts.Yield()
	}
}
