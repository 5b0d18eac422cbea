package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lyzr/materials/cmd/materials/models"
	"github.com/lyzr/materials/cmd/materials/repository"
	"github.com/lyzr/materials/common/blobstore"
	"github.com/lyzr/materials/common/logger"
	"github.com/lyzr/materials/common/progress"
	rediscommon "github.com/lyzr/materials/common/redis"
	"github.com/lyzr/materials/common/transcoder"
	"github.com/stretchr/testify/require"
)

func newVideoStore(t *testing.T) *blobstore.LocalStore {
	t.Helper()
	s, err := blobstore.NewLocalStore(t.TempDir(), "/storage", blobstore.ModeContent, logger.Discard())
	require.NoError(t, err)
	return s
}

func newImageStore(t *testing.T) *blobstore.LocalStore {
	t.Helper()
	s, err := blobstore.NewLocalStore(t.TempDir(), "/storage/images", blobstore.ModeGenerated, logger.Discard())
	require.NoError(t, err)
	return s
}

// fakeTranscoder writes placeholder artifacts and replays canned progress
type fakeTranscoder struct {
	thumbErr error
	progress []transcoder.Progress
	sliceErr error

	mu         sync.Mutex
	transcodes int
}

func (f *fakeTranscoder) Thumbnail(_ context.Context, _, out string) error {
	if f.thumbErr != nil {
		return f.thumbErr
	}
	return os.WriteFile(out, []byte("jpeg"), 0o644)
}

func (f *fakeTranscoder) TranscodeStream(_ context.Context, _, _ string) <-chan transcoder.SliceEvent {
	f.mu.Lock()
	f.transcodes++
	f.mu.Unlock()

	ch := make(chan transcoder.SliceEvent, len(f.progress)+1)
	for _, p := range f.progress {
		ch <- transcoder.SliceWip{Progress: p}
	}
	if f.sliceErr != nil {
		ch <- transcoder.SliceErr{Err: f.sliceErr}
	} else {
		ch <- transcoder.SliceOk{}
	}
	close(ch)
	return ch
}

func (f *fakeTranscoder) Transcodes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transcodes
}

// fakeRepo is an in-memory MaterialStore
type fakeRepo struct {
	mu        sync.Mutex
	materials map[string]*models.Material
	saveErr   error
	deleteErr error

	// afterExists runs once Exists has read its answer
	afterExists func(id string)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{materials: make(map[string]*models.Material)}
}

func (r *fakeRepo) Save(_ context.Context, m *models.Material, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if _, ok := r.materials[m.ID]; ok {
		return fmt.Errorf("duplicate material %s", m.ID)
	}
	m.Tags = tags
	cp := *m
	r.materials[m.ID] = &cp
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (*models.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.materials[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrMaterialNotFound, id)
	}
	cp := *m
	return &cp, nil
}

func (r *fakeRepo) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	_, ok := r.materials[id]
	hook := r.afterExists
	r.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return ok, nil
}

func (r *fakeRepo) put(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.materials[id] = models.NewVideo(id, "winner.mp4", nil, "bob")
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.materials, id)
	return nil
}

func (r *fakeRepo) Update(_ context.Context, m *models.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.materials[m.ID]; !ok {
		return fmt.Errorf("%w: %s", repository.ErrMaterialNotFound, m.ID)
	}
	cp := *m
	r.materials[m.ID] = &cp
	return nil
}

func (r *fakeRepo) Search(_ context.Context, cond models.SearchCondition) ([]*models.Material, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Material
	for _, m := range r.materials {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	lo := min(cond.Offset(), len(out))
	hi := min(lo+cond.Size, len(out))
	return out[lo:hi], total, nil
}

func (r *fakeRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.materials)
}

// fakeKV is an in-memory KeyValueClient
type fakeKV struct {
	mu        sync.Mutex
	values    map[string]string
	published map[string][]string
	err       error
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: make(map[string]string), published: make(map[string][]string)}
}

func (k *fakeKV) Get(_ context.Context, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return "", k.err
	}
	v, ok := k.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", rediscommon.ErrKeyNotFound, key)
	}
	return v, nil
}

func (k *fakeKV) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return false, k.err
	}
	if _, ok := k.values[key]; ok {
		return false, nil
	}
	k.values[key] = value
	return true, nil
}

func (k *fakeKV) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.values[key] != value {
		return false, nil
	}
	delete(k.values, key)
	return true, nil
}

func (k *fakeKV) Delete(_ context.Context, keys ...string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		delete(k.values, key)
	}
	return nil
}

func (k *fakeKV) SetAndPublish(_ context.Context, key, value string, _ time.Duration, channel string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return k.err
	}
	k.values[key] = value
	k.published[channel] = append(k.published[channel], value)
	return nil
}

func (k *fakeKV) Published(channel string) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.published[channel]...)
}

// drain collects every event until the bus is closed
func drain(bus *progress.Bus) []progress.Event {
	var events []progress.Event
	for ev := range bus.Events() {
		events = append(events, ev)
	}
	return events
}

var errBoom = errors.New("boom")
