package transcoder

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

const (
	playlistName = "slice.m3u8"
	gopSize      = 30
)

// Rung is one rendition of the HLS ladder
type Rung struct {
	Name        string
	Width       int
	Height      int
	BitrateKbps int
	BufsizeKbps int
	Level       string
}

// DefaultRungs returns the 720p and 1080p ladder
func DefaultRungs() []Rung {
	return []Rung{
		{Name: "720p", Width: 1280, Height: 720, BitrateKbps: 1500, BufsizeKbps: 2250, Level: "4.0"},
		{Name: "1080p", Width: 1920, Height: 1080, BitrateKbps: 3000, BufsizeKbps: 4500, Level: "4.2"},
	}
}

// PlaylistPath returns the media playlist path of rung relative to the output dir
func (r Rung) PlaylistPath() string {
	return r.Name + "/" + playlistName
}

// MasterPlaylistName is the file name of the multi-variant playlist
const MasterPlaylistName = playlistName

// MasterPlaylist renders the multi-variant playlist referencing every rung
func MasterPlaylist(rungs []Rung) []byte {
	var b bytes.Buffer
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, r := range rungs {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", r.BitrateKbps*1000, r.Width, r.Height)
		b.WriteString(r.PlaylistPath())
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// WriteMasterPlaylist atomically writes the master playlist into dir
func WriteMasterPlaylist(dir string, rungs []Rung) error {
	tmp, err := os.CreateTemp(dir, ".master-*.m3u8")
	if err != nil {
		return fmt.Errorf("create master playlist: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod master playlist: %w", err)
	}
	if _, err := tmp.Write(MasterPlaylist(rungs)); err != nil {
		tmp.Close()
		return fmt.Errorf("write master playlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close master playlist: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, MasterPlaylistName)); err != nil {
		return fmt.Errorf("commit master playlist: %w", err)
	}
	return nil
}
