package blobstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/lyzr/materials/common/logger"
)

const tmpSuffix = ".tmp"

// tmpFile is a uniquely named file in the store root. Its path is removed on
// cleanup unless release was called after the file was renamed into place.
type tmpFile struct {
	f        *os.File
	path     string
	log      *logger.Logger
	released bool
}

func createTemp(root string, log *logger.Logger) (*tmpFile, error) {
	path := filepath.Join(root, uuid.NewString()+tmpSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &tmpFile{f: f, path: path, log: log}, nil
}

func (t *tmpFile) Write(p []byte) (int, error) {
	return t.f.Write(p)
}

// finish flushes and closes the file so it can be linked or renamed
func (t *tmpFile) finish() error {
	if err := t.f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	err := t.f.Close()
	t.f = nil
	if err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return nil
}

// release hands ownership of the path to the caller
func (t *tmpFile) release() {
	t.released = true
}

func (t *tmpFile) cleanup() {
	if t.f != nil {
		_ = t.f.Close()
		t.f = nil
	}
	if t.released {
		return
	}
	t.released = true
	if err := os.Remove(t.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.log.Warn("failed to remove temp file", "path", t.path, "error", err)
	}
}
