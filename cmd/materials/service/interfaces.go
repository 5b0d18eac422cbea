package service

import (
	"context"
	"time"

	"github.com/lyzr/materials/cmd/materials/models"
	"github.com/lyzr/materials/common/transcoder"
)

// MaterialStore is the metadata collaborator
type MaterialStore interface {
	Save(ctx context.Context, m *models.Material, tags []string) error
	Get(ctx context.Context, id string) (*models.Material, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, m *models.Material) error
	Search(ctx context.Context, cond models.SearchCondition) ([]*models.Material, int64, error)
}

// Transcoder produces a thumbnail and HLS renditions of a stored video
type Transcoder interface {
	Thumbnail(ctx context.Context, raw, out string) error
	TranscodeStream(ctx context.Context, raw, outDir string) <-chan transcoder.SliceEvent
}

// KeyValueClient is the subset of the Redis wrapper used by the service
type KeyValueClient interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	SetAndPublish(ctx context.Context, key, value string, expiry time.Duration, channel string) error
}
