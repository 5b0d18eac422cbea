package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/materials/common/logger"
)

// InflightTracker marks identifiers whose artifacts are being derived so at
// most one ingestion works on an identifier at a time
type InflightTracker interface {
	// Acquire claims id. release is non-nil only when acquired is true.
	Acquire(ctx context.Context, id string) (release func(), acquired bool, err error)
}

func inflightKey(id string) string {
	return "materials:ingest:" + id
}

// RedisInflightTracker claims identifiers with SET NX and a TTL so a crashed
// process cannot hold an identifier forever
type RedisInflightTracker struct {
	client KeyValueClient
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisInflightTracker creates a tracker whose markers expire after ttl
func NewRedisInflightTracker(client KeyValueClient, ttl time.Duration, log *logger.Logger) *RedisInflightTracker {
	return &RedisInflightTracker{client: client, ttl: ttl, log: log}
}

// Acquire implements InflightTracker
func (t *RedisInflightTracker) Acquire(ctx context.Context, id string) (func(), bool, error) {
	key := inflightKey(id)
	token := uuid.NewString()

	ok, err := t.client.SetNX(ctx, key, token, t.ttl)
	if err != nil || !ok {
		return nil, false, err
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := t.client.DeleteIfValue(ctx, key, token); err != nil {
			t.log.Warn("failed to release inflight marker", "material_id", id, "error", err)
		}
	}
	return release, true, nil
}

// MemoryInflightTracker is a process-local tracker, used when Redis is
// not configured
type MemoryInflightTracker struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewMemoryInflightTracker creates an empty tracker
func NewMemoryInflightTracker() *MemoryInflightTracker {
	return &MemoryInflightTracker{ids: make(map[string]struct{})}
}

// Acquire implements InflightTracker
func (t *MemoryInflightTracker) Acquire(_ context.Context, id string) (func(), bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, held := t.ids[id]; held {
		return nil, false, nil
	}
	t.ids[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.ids, id)
			t.mu.Unlock()
		})
	}, true, nil
}
