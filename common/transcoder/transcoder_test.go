package transcoder

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lyzr/materials/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript drops an executable shell script into dir
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newFake(t *testing.T, ffprobeBody, ffmpegBody string) (*FFmpeg, string) {
	t.Helper()
	bin := t.TempDir()
	f := New(Config{
		FFprobePath: writeScript(t, bin, "ffprobe", ffprobeBody),
		FFmpegPath:  writeScript(t, bin, "ffmpeg", ffmpegBody),
	}, logger.Discard())
	return f, t.TempDir()
}

const probeTenSeconds = "echo duration=10.000000\n"

// touchLast creates the file named by the last argument
const touchLast = `for last; do :; done
echo frame > "$last"
`

func collect(ch <-chan SliceEvent) []SliceEvent {
	var out []SliceEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration([]byte("duration=12.500000\n"))
	require.NoError(t, err)
	assert.Equal(t, 12500*time.Millisecond, d)

	for _, bad := range []string{"duration=N/A\n", "duration=0.000000\n", "duration=-3\n", "", "format=mp4\n"} {
		_, err := parseDuration([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestPickTimestamp(t *testing.T) {
	d := 10 * time.Second
	assert.Equal(t, 5*time.Second, pickTimestamp(d, 0))
	assert.Less(t, pickTimestamp(d, 0.999999999), d)

	short := 400 * time.Millisecond
	for _, r := range []float64{0, 0.3, 0.9999} {
		at := pickTimestamp(short, r)
		assert.GreaterOrEqual(t, at, short/2)
		assert.Less(t, at, short)
	}
}

func TestMasterPlaylist(t *testing.T) {
	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=1500000,RESOLUTION=1280x720\n" +
		"720p/slice.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=3000000,RESOLUTION=1920x1080\n" +
		"1080p/slice.m3u8\n"
	assert.Equal(t, want, string(MasterPlaylist(DefaultRungs())))
}

func TestParseProgress(t *testing.T) {
	input := "frame=12\nout_time_us=2000000\nspeed=2.0x\nprogress=continue\n" +
		"frame=30\nout_time_us=N/A\nprogress=continue\n" +
		"frame=60\nout_time_ms=8000000\nprogress=end\n"

	var got []Progress
	require.NoError(t, parseProgress(strings.NewReader(input), 8*time.Second, func(p Progress) {
		got = append(got, p)
	}))

	require.Len(t, got, 3)
	assert.Equal(t, int64(12), got[0].Frame)
	assert.InDelta(t, 0.25, got[0].Fraction(), 1e-9)
	assert.InDelta(t, 0.25, got[1].Fraction(), 1e-9, "unknown out_time keeps the previous value")
	assert.InDelta(t, 1.0, got[2].Fraction(), 1e-9)
	assert.Equal(t, float64(-1), Progress{OutTime: time.Second}.Fraction())
}

func TestSliceArgs(t *testing.T) {
	f := New(Config{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"}, logger.Discard())
	args := strings.Join(f.sliceArgs("/in/raw", "/out"), " ")

	assert.Contains(t, args, "-progress pipe:1")
	assert.Contains(t, args, "scale=1280:-2")
	assert.Contains(t, args, "scale=1920:-2")
	assert.Contains(t, args, "-level 4.0")
	assert.Contains(t, args, "-level 4.2")
	assert.Contains(t, args, "-b:v 3000k -maxrate 3000k -bufsize 4500k")
	assert.Contains(t, args, "/out/720p/slice.m3u8")
	assert.Contains(t, args, "/out/1080p/slice.m3u8")
}

func TestThumbnail(t *testing.T) {
	f, out := newFake(t, probeTenSeconds, touchLast)
	f.rand = func() float64 { return 0.5 }

	thumb := filepath.Join(out, "thumbnail.jpeg")
	require.NoError(t, f.Thumbnail(context.Background(), "/in/raw", thumb))
	assert.FileExists(t, thumb)
}

func TestThumbnail_ZeroDuration(t *testing.T) {
	f, out := newFake(t, "echo duration=0.000000\n", touchLast)

	err := f.Thumbnail(context.Background(), "/in/raw", filepath.Join(out, "thumbnail.jpeg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unusable duration")
}

func TestThumbnail_MissingBinary(t *testing.T) {
	f := New(Config{FFmpegPath: "/nonexistent/ffmpeg", FFprobePath: "/nonexistent/ffprobe"}, logger.Discard())

	err := f.Thumbnail(context.Background(), "/in/raw", filepath.Join(t.TempDir(), "t.jpeg"))
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "ffprobe", execErr.Command)
}

func TestTranscodeStream_Success(t *testing.T) {
	ffmpeg := "printf 'frame=10\\nout_time_us=2500000\\nprogress=continue\\n'\n" +
		"printf 'frame=20\\nout_time_us=5000000\\nprogress=end\\n'\n"
	f, out := newFake(t, probeTenSeconds, ffmpeg)

	events := collect(f.TranscodeStream(context.Background(), "/in/raw", out))

	require.Len(t, events, 3)
	first, ok := events[0].(SliceWip)
	require.True(t, ok)
	assert.InDelta(t, 0.25, first.Progress.Fraction(), 1e-9)
	second, ok := events[1].(SliceWip)
	require.True(t, ok)
	assert.InDelta(t, 0.5, second.Progress.Fraction(), 1e-9)
	assert.IsType(t, SliceOk{}, events[2])

	master, err := os.ReadFile(filepath.Join(out, MasterPlaylistName))
	require.NoError(t, err)
	assert.Equal(t, MasterPlaylist(DefaultRungs()), master)
	assert.DirExists(t, filepath.Join(out, "720p"))
	assert.DirExists(t, filepath.Join(out, "1080p"))
}

func TestTranscodeStream_Failure(t *testing.T) {
	ffmpeg := "printf 'frame=1\\nprogress=continue\\n'\n" +
		"echo 'raw: Invalid data found when processing input' >&2\nexit 1\n"
	f, out := newFake(t, probeTenSeconds, ffmpeg)

	events := collect(f.TranscodeStream(context.Background(), "/in/raw", out))

	require.NotEmpty(t, events)
	last, ok := events[len(events)-1].(SliceErr)
	require.True(t, ok, "last event must be SliceErr, got %T", events[len(events)-1])
	assert.Contains(t, last.Err.Error(), "Invalid data found")
	for _, ev := range events[:len(events)-1] {
		assert.IsType(t, SliceWip{}, ev)
	}
	assert.NoFileExists(t, filepath.Join(out, MasterPlaylistName))
}

func TestParseProgress_LongLines(t *testing.T) {
	long := strings.Repeat("x", 100*1024)
	input := "frame=5\nnote=" + long + "\nprogress=end\n"

	var got []Progress
	require.NoError(t, parseProgress(strings.NewReader(input), 0, func(p Progress) {
		got = append(got, p)
	}))
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].Frame)

	tooLong := strings.Repeat("x", maxProgressLine+1) + "\n"
	err := parseProgress(strings.NewReader(tooLong), 0, func(Progress) {})
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}

func TestTranscode_OversizedProgressLineDoesNotHang(t *testing.T) {
	// the line overflows the parser and the rest outgrows the pipe buffer
	ffmpeg := "head -c 4194304 /dev/zero | tr '\\0' x\n" +
		"echo\nprintf 'progress=end\\n'\n"
	f, out := newFake(t, probeTenSeconds, ffmpeg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := f.Transcode(ctx, "/in/raw", out)
	require.Error(t, err)
	assert.ErrorIs(t, err, bufio.ErrTooLong, "ffmpeg exits on its own instead of being killed")
	assert.NoError(t, ctx.Err())
}

func TestTranscode_UnknownDurationStillRuns(t *testing.T) {
	f, out := newFake(t, "echo duration=N/A\n", "printf 'progress=end\\n'\n")

	require.NoError(t, f.Transcode(context.Background(), "/in/raw", out))
	assert.FileExists(t, filepath.Join(out, MasterPlaylistName))
}

func TestVersion(t *testing.T) {
	f, _ := newFake(t, probeTenSeconds, "echo 'ffmpeg version 7.1 Copyright (c)'\necho 'built with gcc'\n")

	v, err := f.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg version 7.1 Copyright (c)", v)
}

func TestResolveBinary(t *testing.T) {
	assert.Equal(t, "/opt/ffmpeg", resolveBinary("/opt/ffmpeg", "", "ffmpeg"))

	sidecar := t.TempDir()
	p := writeScript(t, sidecar, "ffmpeg", "exit 0\n")
	assert.Equal(t, p, resolveBinary("", sidecar, "ffmpeg"))
}
