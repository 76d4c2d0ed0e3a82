package main

import (
	"context"
	"io/ioutil"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgavlin/inkframe/internal/font"
	"github.com/pgavlin/inkframe/internal/frame"
	"github.com/pgavlin/inkframe/internal/palette"
	"github.com/pgavlin/inkframe/internal/pipeline"
)

func TestParseFallback(t *testing.T) {
	for s, want := range map[string]fallback{"": fallbackBlocks, "blocks": fallbackBlocks, "ERROR": fallbackError, "none": fallbackNone} {
		fb, err := parseFallback(s)
		require.NoError(t, err)
		assert.Equal(t, want, fb, s)
	}
	_, err := parseFallback("panic")
	assert.Error(t, err)
}

func newTestUpdater(t *testing.T, fb fallback) *updater {
	logger := log.New(ioutil.Discard, "", 0)
	p, release, err := (&config{}).newPipeline(logger)
	require.NoError(t, err)
	t.Cleanup(release)
	return &updater{logger: logger, pipeline: p, palette: palette.Reference, family: font.Default(), fallback: fb}
}

func TestUpdateFromBytes(t *testing.T) {
	u := newTestUpdater(t, fallbackNone)
	f, err := u.update(context.Background(), "", encodePNG(t, frame.Width, frame.Height, palette.Reference[palette.Blue]))
	require.NoError(t, err)
	assert.Equal(t, palette.Blue, f.Index(0, 0))
	assert.Equal(t, palette.Blue, f.Index(frame.Width-1, frame.Height-1))
}

func TestUpdateErrorScreen(t *testing.T) {
	u := newTestUpdater(t, fallbackError)
	f, err := u.update(context.Background(), "", []byte("not a png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrDecode)
	require.NotNil(t, f)

	// The title band.
	assert.Equal(t, palette.Red, f.Index(2, 2))
	assert.Equal(t, palette.White, f.Index(2, frame.Height-2))
}

func TestUpdateNoFallback(t *testing.T) {
	u := newTestUpdater(t, fallbackNone)
	f, err := u.update(context.Background(), "", []byte("not a png"))
	assert.Error(t, err)
	assert.Nil(t, f)
}
