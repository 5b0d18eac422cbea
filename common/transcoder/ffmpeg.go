package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/lyzr/materials/common/logger"
)

// Config locates the ffmpeg binaries and sets the rendition ladder
type Config struct {
	FFmpegPath  string
	FFprobePath string
	SidecarDir  string
	Rungs       []Rung
}

// FFmpeg runs ffmpeg and ffprobe as child processes
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	rungs   []Rung
	log     *logger.Logger
	rand    func() float64
}

// New resolves binary paths. A missing binary is reported when a stage
// first needs it, not here.
func New(cfg Config, log *logger.Logger) *FFmpeg {
	rungs := cfg.Rungs
	if len(rungs) == 0 {
		rungs = DefaultRungs()
	}
	return &FFmpeg{
		ffmpeg:  resolveBinary(cfg.FFmpegPath, cfg.SidecarDir, "ffmpeg"),
		ffprobe: resolveBinary(cfg.FFprobePath, cfg.SidecarDir, "ffprobe"),
		rungs:   rungs,
		log:     log,
		rand:    rand.Float64,
	}
}

// Rungs returns the rendition ladder
func (f *FFmpeg) Rungs() []Rung {
	return f.rungs
}

// Version returns the first line of `ffmpeg -version`
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	out, err := f.run(ctx, f.ffmpeg, "-version")
	if err != nil {
		return "", err
	}
	line, _, _ := bytes.Cut(out, []byte("\n"))
	return string(bytes.TrimSpace(line)), nil
}

// LogVersion reports the detected ffmpeg at startup without failing
func (f *FFmpeg) LogVersion(ctx context.Context) {
	version, err := f.Version(ctx)
	if err != nil {
		f.log.Warn("ffmpeg unavailable, video ingestion will fail until it is installed",
			"ffmpeg_path", f.ffmpeg, "error", err)
		return
	}
	f.log.Info("ffmpeg detected", "version", version, "ffmpeg_path", f.ffmpeg, "ffprobe_path", f.ffprobe)
}

// run executes bin and returns its stdout
func (f *FFmpeg) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout bytes.Buffer
	stderr := newTailBuffer(stderrTail)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	f.log.Debug("running command", "bin", bin, "args", args)
	if err := cmd.Run(); err != nil {
		return nil, &ExecError{Command: filepath.Base(bin), Err: err, Stderr: stderr.String()}
	}
	return stdout.Bytes(), nil
}

func resolveBinary(explicit, sidecarDir, name string) string {
	if explicit != "" {
		return explicit
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if sidecarDir != "" {
		candidate := filepath.Join(sidecarDir, name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate
		}
	}
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	return name
}

const stderrTail = 4096

// ExecError is a failed ffmpeg or ffprobe run with the end of its stderr
type ExecError struct {
	Command string
	Err     error
	Stderr  string
}

func (e *ExecError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, lastLine(e.Stderr))
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

func lastLine(s string) string {
	var last string
	sc := bufio.NewScanner(bytes.NewBufferString(s))
	for sc.Scan() {
		if line := bytes.TrimSpace(sc.Bytes()); len(line) > 0 {
			last = string(line)
		}
	}
	return last
}

// tailBuffer keeps the last n bytes written to it
type tailBuffer struct {
	buf []byte
	n   int
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.n; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
