package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/lyzr/materials/common/logger"
)

const (
	rawName          = "raw"
	defaultChunkSize = 32 * 1024
)

// LocalStore keeps every record under <root>/<id>/ on the local filesystem.
// Temp files live directly in root so commits never cross filesystems.
type LocalStore struct {
	root      string
	mount     string
	mode      Mode
	newHash   HashFunc
	chunkSize int
	log       *logger.Logger
}

// Option configures a LocalStore
type Option func(*LocalStore)

// WithHash sets the content digest used in ModeContent
func WithHash(fn HashFunc) Option {
	return func(s *LocalStore) {
		s.newHash = fn
	}
}

// WithChunkSize sets the copy buffer size
func WithChunkSize(n int) Option {
	return func(s *LocalStore) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// NewLocalStore creates root if needed and validates the public mount path
func NewLocalStore(root, mount string, mode Mode, log *logger.Logger, opts ...Option) (*LocalStore, error) {
	if err := validateMount(mount); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	hashFn, _ := NewHashFunc(HashSHA256)
	s := &LocalStore{
		root:      abs,
		mount:     mount,
		mode:      mode,
		newHash:   hashFn,
		chunkSize: defaultChunkSize,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}

	log.Info("blob store ready", "root", abs, "mount", mount, "mode", mode.String())
	return s, nil
}

// Root returns the absolute storage root
func (s *LocalStore) Root() string {
	return s.root
}

// Mode returns the identifier mode of the store
func (s *LocalStore) Mode() Mode {
	return s.mode
}

// Exists reports whether the record's raw file is committed
func (s *LocalStore) Exists(ctx context.Context, id Identifier) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, err
	}
	return s.committed(id)
}

// Save streams r into the store under its content identifier
func (s *LocalStore) Save(ctx context.Context, r io.Reader) (SaveOutcome, error) {
	if s.mode != ModeContent {
		return SaveOutcome{}, ErrWrongMode
	}

	tmp, err := createTemp(s.root, s.log)
	if err != nil {
		return SaveOutcome{}, err
	}
	defer tmp.cleanup()

	h := s.newHash()
	n, err := s.copy(ctx, io.MultiWriter(tmp, h), r)
	if err != nil {
		return SaveOutcome{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.finish(); err != nil {
		return SaveOutcome{}, err
	}

	return s.commit(tmp, ContentIdentifier(h.Sum(nil)), n)
}

// SaveAs streams r into the store under a caller-generated identifier.
// An already committed record is reported without reading r.
func (s *LocalStore) SaveAs(ctx context.Context, id Identifier, r io.Reader) (SaveOutcome, error) {
	if s.mode != ModeGenerated {
		return SaveOutcome{}, ErrWrongMode
	}
	if err := id.Validate(); err != nil {
		return SaveOutcome{}, err
	}

	exists, err := s.committed(id)
	if err != nil {
		return SaveOutcome{}, err
	}
	if exists {
		return SaveOutcome{ID: id, Kind: SaveExisted}, nil
	}

	tmp, err := createTemp(s.root, s.log)
	if err != nil {
		return SaveOutcome{}, err
	}
	defer tmp.cleanup()

	n, err := s.copy(ctx, tmp, r)
	if err != nil {
		return SaveOutcome{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.finish(); err != nil {
		return SaveOutcome{}, err
	}

	return s.commit(tmp, id, n)
}

// commit moves a finished temp file to <root>/<id>/raw without ever
// replacing a committed raw file. Whoever loses a race gets SaveExisted.
func (s *LocalStore) commit(tmp *tmpFile, id Identifier, size int64) (SaveOutcome, error) {
	dir := filepath.Join(s.root, string(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SaveOutcome{}, fmt.Errorf("create record directory: %w", err)
	}
	final := filepath.Join(dir, rawName)

	err := os.Link(tmp.path, final)
	switch {
	case err == nil:
		return SaveOutcome{ID: id, Kind: SaveNew, Size: size}, nil
	case errors.Is(err, fs.ErrExist):
		s.log.Debug("record already committed", "id", id)
		return SaveOutcome{ID: id, Kind: SaveExisted, Size: size}, nil
	}

	// Filesystems without hard links fall back to check-then-rename.
	s.log.Debug("hard link unavailable, falling back to rename", "id", id, "error", err)
	if _, statErr := os.Lstat(final); statErr == nil {
		return SaveOutcome{ID: id, Kind: SaveExisted, Size: size}, nil
	}
	if err := os.Rename(tmp.path, final); err != nil {
		return SaveOutcome{}, fmt.Errorf("commit record: %w", err)
	}
	tmp.release()
	return SaveOutcome{ID: id, Kind: SaveNew, Size: size}, nil
}

// Delete removes a record and everything derived from it. The raw file goes
// first so the record stops being reported as existing before its subtree is
// removed. Deleting a missing record is not an error.
func (s *LocalStore) Delete(ctx context.Context, id Identifier) error {
	if err := id.Validate(); err != nil {
		return err
	}

	dir := filepath.Join(s.root, string(id))
	if err := os.Remove(filepath.Join(dir, rawName)); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove raw file: %w", err)
		}
		s.log.Warn("deleting record without raw file", "id", id)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove record directory: %w", err)
	}
	return nil
}

// RawFile returns the path of the committed raw file
func (s *LocalStore) RawFile(ctx context.Context, id Identifier) (string, error) {
	return s.DerivedFile(ctx, id, rawName)
}

// DerivedFile returns the path of rel inside a committed record. The file
// itself need not exist yet.
func (s *LocalStore) DerivedFile(ctx context.Context, id Identifier, rel string) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	clean, err := cleanRel(rel)
	if err != nil {
		return "", err
	}

	ok, err := s.committed(id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return filepath.Join(s.root, string(id), clean), nil
}

// URL returns base joined with the mount path, the identifier and rel
func (s *LocalStore) URL(base *url.URL, id Identifier, rel string) (string, error) {
	if base == nil {
		return "", fmt.Errorf("base url is required")
	}
	if err := validateMount(s.mount); err != nil {
		return "", err
	}
	if err := id.Validate(); err != nil {
		return "", err
	}
	clean, err := cleanRel(rel)
	if err != nil {
		return "", err
	}

	return base.JoinPath(s.mount, string(id), filepath.ToSlash(clean)).String(), nil
}

func (s *LocalStore) committed(id Identifier) (bool, error) {
	info, err := os.Stat(filepath.Join(s.root, string(id), rawName))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat raw file: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

func (s *LocalStore) copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	return io.CopyBuffer(dst, ctxReader{ctx: ctx, r: src}, make([]byte, s.chunkSize))
}

func cleanRel(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if rel == "" || !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return clean, nil
}

func validateMount(mount string) error {
	if mount == "" {
		return fmt.Errorf("%w: empty", ErrInvalidMountPath)
	}
	u, err := url.Parse(mount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMountPath, err)
	}
	if u.Scheme != "" || u.Host != "" || u.User != nil || u.Opaque != "" ||
		u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return fmt.Errorf("%w: %q must be a bare path", ErrInvalidMountPath, mount)
	}
	return nil
}
