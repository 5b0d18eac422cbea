package imaging

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imageorient"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage means the bytes could not be decoded as an image
var ErrUnsupportedImage = errors.New("unsupported image")

// Box is the largest thumbnail size; the aspect ratio is kept
type Box struct {
	Width  int
	Height int
}

// DefaultBox fits portrait phone shots and landscape images alike
var DefaultBox = Box{Width: 300, Height: 533}

// Result describes a decoded source image
type Result struct {
	Format string
	Width  int
	Height int
}

// Thumbnail decodes src, honouring EXIF orientation, and writes a JPEG no
// larger than box to dst. dst is replaced atomically.
func Thumbnail(src io.Reader, dst string, box Box) (Result, error) {
	orig, format, err := imageorient.Decode(src)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	bounds := orig.Bounds()
	w, h := resizedDimensions(bounds.Dx(), bounds.Dy(), box.Width, box.Height)
	thumb := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), orig, bounds, draw.Over, nil)

	if err := writeAtomic(dst, func(w io.Writer) error {
		return jpeg.Encode(w, thumb, &jpeg.Options{Quality: 85})
	}); err != nil {
		return Result{}, err
	}

	return Result{Format: format, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

// resizedDimensions fits width x height into the target box without upscaling
func resizedDimensions(width, height, targetw, targeth int) (int, int) {
	if width <= 0 || height <= 0 {
		return 1, 1
	}
	ratio := math.Min(1, math.Min(float64(targetw)/float64(width), float64(targeth)/float64(height)))
	return max(1, int(float64(width)*ratio)), max(1, int(float64(height)*ratio))
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".thumb-*")
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close thumbnail: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit thumbnail: %w", err)
	}
	return nil
}
