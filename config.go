package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"time"

	"github.com/pgavlin/inkframe/internal/cache"
	"github.com/pgavlin/inkframe/internal/display"
	"github.com/pgavlin/inkframe/internal/fetch"
	"github.com/pgavlin/inkframe/internal/font"
	"github.com/pgavlin/inkframe/internal/palette"
	"github.com/pgavlin/inkframe/internal/pipeline"
	"github.com/pgavlin/inkframe/internal/transform"
)

type serialConfig struct {
	Port string `json:"port,omitempty"`
	Baud int    `json:"baud,omitempty"`
}

type fontConfig struct {
	Regular string `json:"regular,omitempty"`
	Bold    string `json:"bold,omitempty"`
}

type config struct {
	URL string `json:"url,omitempty"`

	SourceWidth  int  `json:"sourceWidth,omitempty"`
	SourceHeight int  `json:"sourceHeight,omitempty"`
	ScaleToFit   bool `json:"scaleToFit,omitempty"`

	Rotation    int   `json:"rotation,omitempty"`
	MirrorH     bool  `json:"mirrorH,omitempty"`
	MirrorV     bool  `json:"mirrorV,omitempty"`
	RotateFirst *bool `json:"rotateFirst,omitempty"`

	Timeout  string `json:"timeout,omitempty"`
	MaxBytes int    `json:"maxBytes,omitempty"`

	Palette string `json:"palette,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Cache   string `json:"cache,omitempty"`

	Serial *serialConfig `json:"serial,omitempty"`
	Font   *fontConfig   `json:"font,omitempty"`
}

// loadConfig reads the configuration in path. An empty path yields the zero configuration.
func loadConfig(path string) (config, error) {
	if path == "" {
		return config{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return config{}, err
	}
	defer f.Close()

	var c config
	if err = json.NewDecoder(f).Decode(&c); err != nil {
		return config{}, fmt.Errorf("error parsing '%v': %w", path, err)
	}
	return c, nil
}

func (c *config) transform() (transform.Options, error) {
	rotation, err := transform.ParseRotation(c.Rotation)
	if err != nil {
		return transform.Options{}, err
	}

	rotateFirst := true
	if c.RotateFirst != nil {
		rotateFirst = *c.RotateFirst
	}
	return transform.Options{Rotation: rotation, MirrorH: c.MirrorH, MirrorV: c.MirrorV, RotateFirst: rotateFirst}, nil
}

func (c *config) timeout() (time.Duration, error) {
	if c.Timeout == "" {
		return fetch.DefaultTimeout, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	return d, nil
}

func (c *config) palette() (palette.Palette, error) {
	return palette.Parse(c.Palette)
}

func (c *config) pipelineOptions(logger *log.Logger) (pipeline.Options, error) {
	p, err := c.palette()
	if err != nil {
		return pipeline.Options{}, err
	}
	mode, err := pipeline.ParseMode(c.Mode)
	if err != nil {
		return pipeline.Options{}, err
	}
	timeout, err := c.timeout()
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		Palette:  p,
		Mode:     mode,
		MaxBytes: c.MaxBytes,
		Timeout:  timeout,
		Logger:   logger,
	}, nil
}

// newPipeline builds a configured pipeline. The returned function releases it along with its frame cache.
func (c *config) newPipeline(logger *log.Logger) (*pipeline.Pipeline, func(), error) {
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}
	opts, err := c.pipelineOptions(logger)
	if err != nil {
		return nil, nil, err
	}
	t, err := c.transform()
	if err != nil {
		return nil, nil, err
	}

	var db *cache.FrameDB
	if c.Cache != "" {
		if db, err = cache.Open(c.Cache); err != nil {
			return nil, nil, fmt.Errorf("error opening frame cache: %w", err)
		}
		if n, err := db.Len(); err == nil {
			logger.Printf("frame cache %v holds %d frames", c.Cache, n)
		}
		opts.Cache = db
	}
	closeCache := func() {
		if db != nil {
			db.Close()
		}
	}

	p, err := pipeline.New(opts)
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	p.ConfigureScaling(c.SourceWidth, c.SourceHeight, c.ScaleToFit)
	if err = p.ConfigureTransform(t); err != nil {
		p.Close()
		closeCache()
		return nil, nil, err
	}

	return p, func() { p.Close(); closeCache() }, nil
}

func (c *config) fontFamily(ctx context.Context, logger *log.Logger) (*font.Family, error) {
	if c.Font == nil {
		return font.Default(), nil
	}
	return font.Load(ctx, fetch.New(fetch.WithLogger(logger)), c.Font.Regular, c.Font.Bold)
}

// openDisplay opens the configured serial display, if any.
func (c *config) openDisplay() (*display.Serial, error) {
	if c.Serial == nil || c.Serial.Port == "" {
		return nil, nil
	}
	return display.OpenSerial(c.Serial.Port, c.Serial.Baud)
}
