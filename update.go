package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/pgavlin/inkframe/internal/errscreen"
	"github.com/pgavlin/inkframe/internal/font"
	"github.com/pgavlin/inkframe/internal/frame"
	"github.com/pgavlin/inkframe/internal/palette"
	"github.com/pgavlin/inkframe/internal/pipeline"
)

// A fallback selects what is shown when a run fails.
type fallback int

const (
	fallbackBlocks fallback = iota
	fallbackError
	fallbackNone
)

func parseFallback(s string) (fallback, error) {
	switch strings.ToLower(s) {
	case "", "blocks":
		return fallbackBlocks, nil
	case "error":
		return fallbackError, nil
	case "none":
		return fallbackNone, nil
	}
	return 0, fmt.Errorf("unknown fallback %q (want blocks, error, or none)", s)
}

// An updater produces frames for the panel, substituting a fallback frame when the pipeline fails.
type updater struct {
	logger   *log.Logger
	pipeline *pipeline.Pipeline
	palette  palette.Palette
	family   *font.Family
	fallback fallback

	// Font faces cache glyphs and are not safe for concurrent use.
	fontMu sync.Mutex
}

// update renders the image at url (or data, if non-nil) and returns the frame to show. The pipeline error is returned
// alongside the fallback frame; the frame is nil only if no fallback is configured.
func (u *updater) update(ctx context.Context, url string, data []byte) (*frame.Frame, error) {
	width, height := u.pipeline.Bounds()
	f, err := frame.New(width, height, u.palette)
	if err != nil {
		return nil, err
	}

	if data != nil {
		err = u.pipeline.RunBytes(data, f.Pix)
	} else {
		err = u.pipeline.Run(ctx, url, f.Pix)
	}
	if err == nil {
		return f, nil
	}

	switch u.fallback {
	case fallbackError:
		screen := errscreen.Screen{Category: errscreen.Categorize(err), Detail: err.Error(), URL: url}
		u.fontMu.Lock()
		rerr := errscreen.Render(f, u.family, screen)
		u.fontMu.Unlock()
		if rerr == nil {
			return f, err
		}
		u.logger.Printf("warning: error screen failed: %v; showing color blocks", rerr)
	case fallbackNone:
		return nil, err
	}
	frame.ColorBlocks(f, frame.TestPattern...)
	return f, err
}
