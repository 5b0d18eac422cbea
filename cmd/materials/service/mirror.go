package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lyzr/materials/common/logger"
	"github.com/lyzr/materials/common/progress"
	rediscommon "github.com/lyzr/materials/common/redis"
)

// ErrNoProgress means no event was mirrored for the identifier
var ErrNoProgress = errors.New("no progress recorded")

func progressKey(id string) string {
	return "materials:progress:" + id
}

func eventsChannel(creator string) string {
	return "materials:events:" + creator
}

// ProgressMirror copies progress events to Redis: the latest event per
// identifier is kept for polling clients and every event is published on
// the creator's channel
type ProgressMirror struct {
	client KeyValueClient
	ttl    time.Duration
	log    *logger.Logger
}

// NewProgressMirror creates a mirror keeping events for ttl
func NewProgressMirror(client KeyValueClient, ttl time.Duration, log *logger.Logger) *ProgressMirror {
	return &ProgressMirror{client: client, ttl: ttl, log: log}
}

// Observer returns a bus observer mirroring creator's events. Failures are
// logged and never reach the ingestion.
func (m *ProgressMirror) Observer(creator string) func(progress.Event) {
	return func(ev progress.Event) {
		// failed saves carry no identifier
		if ev.ID == "" {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := m.Publish(ctx, creator, ev); err != nil {
			m.log.Warn("failed to mirror progress", "material_id", ev.ID, "state", ev.Stage, "error", err)
		}
	}
}

// Publish stores ev as the latest event for its identifier and publishes it
func (m *ProgressMirror) Publish(ctx context.Context, creator string, ev progress.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	return m.client.SetAndPublish(ctx, progressKey(ev.ID), string(payload), m.ttl, eventsChannel(creator))
}

// Last returns the latest mirrored event for id
func (m *ProgressMirror) Last(ctx context.Context, id string) (progress.Event, error) {
	raw, err := m.client.Get(ctx, progressKey(id))
	if errors.Is(err, rediscommon.ErrKeyNotFound) {
		return progress.Event{}, fmt.Errorf("%w: %s", ErrNoProgress, id)
	}
	if err != nil {
		return progress.Event{}, err
	}

	var ev progress.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return progress.Event{}, fmt.Errorf("failed to decode progress: %w", err)
	}
	return ev, nil
}

// Forget drops the mirrored event for id
func (m *ProgressMirror) Forget(ctx context.Context, id string) error {
	return m.client.Delete(ctx, progressKey(id))
}
