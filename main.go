package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/ioutil"
	"log"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/pgavlin/inkframe/internal/display"
	"github.com/pgavlin/inkframe/internal/fetch"
	"github.com/pgavlin/inkframe/internal/font"
	"github.com/pgavlin/inkframe/internal/palette"
	"github.com/pgavlin/inkframe/internal/pngstream"
)

func newLogger(c *cli.Context) *log.Logger {
	logger := log.New(ioutil.Discard, "", 0)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
		logger.SetFlags(log.LstdFlags)
	}
	return logger
}

// pipelineFlags are accepted by every command that runs the pipeline. They override the configuration file.
func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", EnvVars: []string{"INKFRAME_CONFIG"}, Usage: "path to a JSON configuration file"},
		&cli.StringFlag{Name: "url", EnvVars: []string{"INKFRAME_URL"}, Usage: "URL of the PNG image to render"},
		&cli.IntFlag{Name: "source-width", Usage: "expected width of the source image"},
		&cli.IntFlag{Name: "source-height", Usage: "expected height of the source image"},
		&cli.BoolFlag{Name: "scale-to-fit", EnvVars: []string{"INKFRAME_SCALE_TO_FIT"}, Usage: "resample images that do not match the display"},
		&cli.IntFlag{Name: "rotation", EnvVars: []string{"INKFRAME_ROTATION"}, Usage: "clockwise rotation in degrees (0, 90, 180, 270)"},
		&cli.BoolFlag{Name: "mirror-h", Usage: "mirror horizontally"},
		&cli.BoolFlag{Name: "mirror-v", Usage: "mirror vertically"},
		&cli.BoolFlag{Name: "rotate-first", Value: true, Usage: "rotate before mirroring"},
		&cli.DurationFlag{Name: "timeout", EnvVars: []string{"INKFRAME_TIMEOUT"}, Usage: "download timeout"},
		&cli.IntFlag{Name: "max-bytes", EnvVars: []string{"INKFRAME_MAX_BYTES"}, Usage: "largest download accepted"},
		&cli.StringFlag{Name: "palette", EnvVars: []string{"INKFRAME_PALETTE"}, Usage: "quantization palette (reference or spectra6)"},
		&cli.StringFlag{Name: "mode", EnvVars: []string{"INKFRAME_MODE"}, Usage: "render mode (color or mono)"},
		&cli.StringFlag{Name: "cache", EnvVars: []string{"INKFRAME_CACHE"}, Usage: "path to the frame cache database"},
		&cli.StringFlag{Name: "serial", EnvVars: []string{"INKFRAME_SERIAL"}, Usage: "serial port of the display"},
		&cli.IntFlag{Name: "baud", Value: display.DefaultBaud, Usage: "serial line rate"},
		&cli.StringFlag{Name: "fallback", Value: "blocks", EnvVars: []string{"INKFRAME_FALLBACK"}, Usage: "what to show when rendering fails (blocks, error, or none)"},
	}
}

// configure loads the configuration file and applies command-line overrides.
func configure(c *cli.Context) (config, error) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return config{}, err
	}

	if c.IsSet("url") {
		cfg.URL = c.String("url")
	}
	if c.IsSet("source-width") {
		cfg.SourceWidth = c.Int("source-width")
	}
	if c.IsSet("source-height") {
		cfg.SourceHeight = c.Int("source-height")
	}
	if c.IsSet("scale-to-fit") {
		cfg.ScaleToFit = c.Bool("scale-to-fit")
	}
	if c.IsSet("rotation") {
		cfg.Rotation = c.Int("rotation")
	}
	if c.IsSet("mirror-h") {
		cfg.MirrorH = c.Bool("mirror-h")
	}
	if c.IsSet("mirror-v") {
		cfg.MirrorV = c.Bool("mirror-v")
	}
	if c.IsSet("rotate-first") {
		rotateFirst := c.Bool("rotate-first")
		cfg.RotateFirst = &rotateFirst
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout").String()
	}
	if c.IsSet("max-bytes") {
		cfg.MaxBytes = c.Int("max-bytes")
	}
	if c.IsSet("palette") {
		cfg.Palette = c.String("palette")
	}
	if c.IsSet("mode") {
		cfg.Mode = c.String("mode")
	}
	if c.IsSet("cache") {
		cfg.Cache = c.String("cache")
	}
	if c.IsSet("serial") {
		cfg.Serial = &serialConfig{Port: c.String("serial"), Baud: c.Int("baud")}
	}
	return cfg, nil
}

// newUpdater builds the pipeline and fallback renderer for a command. The returned function releases them.
func newUpdater(ctx context.Context, c *cli.Context, cfg config, logger *log.Logger) (*updater, func(), error) {
	fb, err := parseFallback(c.String("fallback"))
	if err != nil {
		return nil, nil, err
	}
	pal, err := cfg.palette()
	if err != nil {
		return nil, nil, err
	}

	var family *font.Family
	if fb == fallbackError {
		if family, err = cfg.fontFamily(ctx, logger); err != nil {
			return nil, nil, err
		}
	}

	p, release, err := cfg.newPipeline(logger)
	if err != nil {
		return nil, nil, err
	}
	return &updater{logger: logger, pipeline: p, palette: pal, family: family, fallback: fb}, release, nil
}

func render(ctx context.Context, c *cli.Context) error {
	logger := newLogger(c)

	cfg, err := configure(c)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	var data []byte
	if file := c.String("file"); file != "" {
		if data, err = ioutil.ReadFile(file); err != nil {
			return cli.NewExitError(err, 1)
		}
	} else if cfg.URL == "" {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	u, release, err := newUpdater(ctx, c, cfg, logger)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer release()

	f, runErr := u.update(ctx, cfg.URL, data)
	if f == nil {
		return cli.NewExitError(runErr, 1)
	}

	width, height := u.pipeline.Bounds()
	pv := newPreview(width, height, u.palette)
	devices := []display.Device{pv}
	if out := c.String("out"); out != "" {
		devices = append(devices, &display.File{Path: out, Width: width, Height: height})
	}
	serial, err := cfg.openDisplay()
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if serial != nil {
		defer serial.Close()
		devices = append(devices, serial)
	}

	for _, d := range devices {
		if err := d.Display(f); err != nil {
			return cli.NewExitError(fmt.Errorf("error updating display: %w", err), 1)
		}
		if err := d.Sleep(); err != nil {
			logger.Printf("warning: %v", err)
		}
	}

	if path := c.String("preview"); path != "" {
		if err := writePNG(path, pv); err != nil {
			return cli.NewExitError(err, 1)
		}
	}

	if runErr != nil {
		return cli.NewExitError(runErr, 1)
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runServer(ctx context.Context, c *cli.Context) error {
	logger := newLogger(c)

	cfg, err := configure(c)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	u, release, err := newUpdater(ctx, c, cfg, logger)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer release()

	width, height := u.pipeline.Bounds()
	s := &server{
		logger:  logger,
		updater: u,
		url:     cfg.URL,
	}

	serial, err := cfg.openDisplay()
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	switch {
	case serial != nil:
		defer serial.Close()
		s.device = serial
	case c.String("out") != "":
		s.device = &display.File{Path: c.String("out"), Width: width, Height: height}
	}

	if err := serve(ctx, c.String("address"), s); err != nil {
		return cli.NewExitError(err, 1)
	}
	return nil
}

// nrgbaSink collects decoded pixels into an image.
type nrgbaSink struct {
	img *image.NRGBA
}

func (s *nrgbaSink) Header(width, height int) {
	s.img = image.NewNRGBA(image.Rect(0, 0, width, height))
}

func (s *nrgbaSink) Pixel(x, y int, c color.NRGBA) {
	s.img.SetNRGBA(x, y, c)
}

func inspect(ctx context.Context, c *cli.Context) error {
	logger := newLogger(c)

	var data []byte
	var err error
	switch {
	case c.NArg() > 0:
		data, err = ioutil.ReadFile(c.Args().First())
	case c.String("url") != "":
		var d *fetch.Download
		if d, err = fetch.New(fetch.WithLogger(logger)).Fetch(ctx, c.String("url")); err == nil {
			data = d.Bytes
		}
	default:
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	pal, err := palette.Parse(c.String("palette"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	info, err := pngstream.ReadInfo(data)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	w := c.App.Writer
	fmt.Fprintf(w, "size: %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(w, "depth: %d, color type: %d, channels: %d, interlaced: %v\n", info.Depth, info.ColorType, info.Channels(), info.Interlaced)

	sink := &nrgbaSink{}
	if _, _, err := pngstream.Decode(data, sink); err != nil {
		return cli.NewExitError(err, 1)
	}
	fmt.Fprintf(w, "dominant colors:\n")
	for _, m := range pal.Dominant(sink.img, c.Int("colors")) {
		fmt.Fprintf(w, "  #%02x%02x%02x -> %v\n", m.Source.R, m.Source.G, m.Source.B, m.Nearest)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := cli.NewApp()

	app.Name = "inkframe"
	app.Usage = "render PNG images for six-color e-paper panels"
	app.Version = "1.0.0"

	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "log progress to stderr",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:  "render",
			Usage: "Render an image into a packed frame",
			Flags: append(pipelineFlags(),
				&cli.StringFlag{Name: "file", Usage: "render a local PNG file instead of downloading one"},
				&cli.StringFlag{Name: "out", Usage: "write the packed frame to this file"},
				&cli.StringFlag{Name: "preview", Usage: "write a PNG preview to this file"},
			),
			Action: func(c *cli.Context) error {
				return render(ctx, c)
			},
		},
		{
			Name:  "serve",
			Usage: "Serve rendered previews over HTTP",
			Flags: append(pipelineFlags(),
				&cli.StringFlag{Name: "address", Value: ":8080", EnvVars: []string{"INKFRAME_ADDRESS"}, Usage: "the address to serve on"},
				&cli.StringFlag{Name: "out", Usage: "display pushes write the packed frame to this file"},
			),
			Action: func(c *cli.Context) error {
				return runServer(ctx, c)
			},
		},
		{
			Name:      "inspect",
			Usage:     "Describe a PNG image and the panel colors it maps to",
			ArgsUsage: "[FILE]",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "url", Usage: "inspect the image at this URL"},
				&cli.StringFlag{Name: "palette", Usage: "palette to match against (reference or spectra6)"},
				&cli.IntFlag{Name: "colors", Value: 6, Usage: "number of dominant colors to report"},
			},
			Action: func(c *cli.Context) error {
				return inspect(ctx, c)
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
