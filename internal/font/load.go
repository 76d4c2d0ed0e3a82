package font

import (
	"context"
	"fmt"

	woff "github.com/tdewolff/canvas/font"

	"github.com/pgavlin/inkframe/internal/fetch"
)

func loadTTF(ctx context.Context, f *fetch.Fetcher, url string) ([]byte, error) {
	d, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if d.Truncated {
		return nil, fmt.Errorf("font at %v is larger than %d bytes", url, f.MaxBytes())
	}

	return woff.ToSFNT(d.Bytes)
}

// Load downloads a family. Fonts may be TrueType, OpenType, or WOFF. An empty bold URL reuses the regular typeface.
func Load(ctx context.Context, f *fetch.Fetcher, regularURL, boldURL string) (*Family, error) {
	if regularURL == "" {
		return nil, fmt.Errorf("font family must specify a regular typeface")
	}

	regular, err := loadTTF(ctx, f, regularURL)
	if err != nil {
		return nil, fmt.Errorf("error loading regular typeface: %w", err)
	}

	var bold []byte
	if boldURL != "" {
		if bold, err = loadTTF(ctx, f, boldURL); err != nil {
			return nil, fmt.Errorf("error loading bold typeface: %w", err)
		}
	}

	return ParseFamily(regular, bold, Options)
}
