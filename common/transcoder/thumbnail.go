package transcoder

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Thumbnail writes a single frame from the second half of raw to out
func (f *FFmpeg) Thumbnail(ctx context.Context, raw, out string) error {
	duration, err := f.ProbeDuration(ctx, raw)
	if err != nil {
		return fmt.Errorf("thumbnail: %w", err)
	}

	at := pickTimestamp(duration, f.rand())
	if _, err := f.run(ctx, f.ffmpeg,
		"-y", "-v", "error",
		"-ss", formatSeconds(at),
		"-i", raw,
		"-frames:v", "1",
		out,
	); err != nil {
		return fmt.Errorf("thumbnail: %w", err)
	}

	f.log.Debug("thumbnail extracted", "raw", raw, "at", at, "duration", duration)
	return nil
}

// pickTimestamp maps r in [0,1) onto [d/2, d)
func pickTimestamp(d time.Duration, r float64) time.Duration {
	half := d / 2
	at := half + time.Duration(r*float64(d-half))
	if at >= d {
		at = d - 1
	}
	return at
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Truncate(time.Millisecond).Seconds(), 'f', 3, 64)
}
