package transcoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// SliceEvent is one report from a transcode run: SliceWip, SliceOk or SliceErr
type SliceEvent interface {
	sliceEvent()
}

// SliceWip reports encoder progress
type SliceWip struct {
	Progress Progress
}

// SliceOk reports that every rung and the master playlist were written
type SliceOk struct{}

// SliceErr reports a failed run
type SliceErr struct {
	Err error
}

func (SliceWip) sliceEvent() {}
func (SliceOk) sliceEvent()  {}
func (SliceErr) sliceEvent() {}

// Progress is one block of ffmpeg's -progress output
type Progress struct {
	Frame    int64
	OutTime  time.Duration
	Speed    string
	Duration time.Duration // zero when the input duration is unknown
}

// Fraction returns OutTime/Duration clamped to [0,1], or -1 when unknown
func (p Progress) Fraction() float64 {
	if p.Duration <= 0 || p.OutTime < 0 {
		return -1
	}
	return min(float64(p.OutTime)/float64(p.Duration), 1)
}

// TranscodeStream runs a single ffmpeg process producing every rung under
// outDir. The channel yields SliceWip events followed by exactly one
// SliceOk or SliceErr, then closes.
func (f *FFmpeg) TranscodeStream(ctx context.Context, raw, outDir string) <-chan SliceEvent {
	events := make(chan SliceEvent, 16)
	send := func(ev SliceEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(events)
		err := f.transcode(ctx, raw, outDir, func(p Progress) {
			send(SliceWip{Progress: p})
		})
		if err != nil {
			send(SliceErr{Err: err})
			return
		}
		send(SliceOk{})
	}()

	return events
}

// Transcode is the blocking form of TranscodeStream
func (f *FFmpeg) Transcode(ctx context.Context, raw, outDir string) error {
	var result error = errors.New("transcode ended without a result")
	for ev := range f.TranscodeStream(ctx, raw, outDir) {
		switch ev := ev.(type) {
		case SliceWip:
		case SliceOk:
			result = nil
		case SliceErr:
			result = ev.Err
		default:
			return fmt.Errorf("unexpected transcode event %T", ev)
		}
	}
	return result
}

func (f *FFmpeg) transcode(ctx context.Context, raw, outDir string, onProgress func(Progress)) error {
	for _, r := range f.rungs {
		if err := os.MkdirAll(filepath.Join(outDir, r.Name), 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", r.Name, err)
		}
	}

	duration, err := f.ProbeDuration(ctx, raw)
	if err != nil {
		f.log.Debug("duration unknown, progress will be relative", "raw", raw, "error", err)
		duration = 0
	}

	cmd := exec.CommandContext(ctx, f.ffmpeg, f.sliceArgs(raw, outDir)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return &ExecError{Command: "ffmpeg", Err: err}
	}

	stderr := newTailBuffer(stderrTail)
	var g errgroup.Group
	g.Go(func() error {
		err := parseProgress(stdout, duration, onProgress)
		if err != nil {
			// ffmpeg blocks once the pipe fills
			_, _ = io.Copy(io.Discard, stdout)
		}
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(stderr, stderrPipe)
		return err
	})
	readErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		return &ExecError{Command: "ffmpeg", Err: err, Stderr: stderr.String()}
	}
	if readErr != nil {
		return fmt.Errorf("read ffmpeg output: %w", readErr)
	}

	if err := WriteMasterPlaylist(outDir, f.rungs); err != nil {
		return err
	}
	f.log.Debug("transcode finished", "raw", raw, "out", outDir)
	return nil
}

func (f *FFmpeg) sliceArgs(raw, outDir string) []string {
	args := []string{"-y", "-v", "error", "-nostats", "-progress", "pipe:1", "-i", raw}
	for _, r := range f.rungs {
		args = append(args,
			"-map", "0:v:0", "-map", "0:a?",
			"-c:v", "libx264",
			"-filter:v", fmt.Sprintf("scale=%d:-2", r.Width),
			"-g", strconv.Itoa(gopSize),
			"-profile:v", "main", "-level", r.Level,
			"-b:v", fmt.Sprintf("%dk", r.BitrateKbps),
			"-maxrate", fmt.Sprintf("%dk", r.BitrateKbps),
			"-bufsize", fmt.Sprintf("%dk", r.BufsizeKbps),
			"-c:a", "aac",
			"-start_number", "0",
			"-hls_time", "1",
			"-hls_list_size", "0",
			"-f", "hls",
			filepath.Join(outDir, r.Name, playlistName),
		)
	}
	return args
}

// maxProgressLine bounds a single line of ffmpeg progress output
const maxProgressLine = 1 << 20

// parseProgress reads key=value blocks terminated by a progress= line
func parseProgress(r io.Reader, duration time.Duration, onProgress func(Progress)) error {
	cur := Progress{Duration: duration}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxProgressLine)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "frame":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				cur.Frame = n
			}
		case "out_time_us", "out_time_ms":
			// both keys carry microseconds
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				cur.OutTime = time.Duration(n) * time.Microsecond
			}
		case "speed":
			cur.Speed = value
		case "progress":
			onProgress(cur)
			cur = Progress{Duration: duration, OutTime: cur.OutTime, Frame: cur.Frame}
		}
	}
	return sc.Err()
}
