package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) *bytes.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &buf
}

func TestResizedDimensions(t *testing.T) {
	tests := []struct {
		w, h, tw, th int
		ew, eh       int
	}{
		{1200, 800, 300, 533, 300, 200},
		{600, 900, 300, 533, 300, 450},
		{100, 50, 300, 533, 100, 50},
		{0, 10, 300, 533, 1, 1},
	}
	for _, tt := range tests {
		w, h := resizedDimensions(tt.w, tt.h, tt.tw, tt.th)
		assert.Equal(t, tt.ew, w)
		assert.Equal(t, tt.eh, h)
	}
}

func TestThumbnail(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "thumbnail.jpeg")

	res, err := Thumbnail(encodePNG(t, 1200, 800), dst, DefaultBox)
	require.NoError(t, err)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, 1200, res.Width)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 200, cfg.Height)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(dst), ".thumb-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestThumbnail_NotAnImage(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "thumbnail.jpeg")

	_, err := Thumbnail(strings.NewReader("definitely not pixels"), dst, DefaultBox)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
	assert.NoFileExists(t, dst)
}
