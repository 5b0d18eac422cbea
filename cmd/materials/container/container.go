package container

import (
	"fmt"

	"github.com/lyzr/materials/cmd/materials/repository"
	"github.com/lyzr/materials/cmd/materials/service"
	"github.com/lyzr/materials/common/blobstore"
	"github.com/lyzr/materials/common/bootstrap"
	"github.com/lyzr/materials/common/cache"
	"github.com/lyzr/materials/common/ratelimit"
	"github.com/lyzr/materials/common/transcoder"
	"github.com/lyzr/materials/common/worker"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Storage and tools
	Videos *blobstore.LocalStore
	Images *blobstore.LocalStore
	FFmpeg *transcoder.FFmpeg
	Pool   *worker.Pool

	// Repositories
	MaterialRepo *repository.MaterialRepository

	// Redis-backed helpers, in-process fallbacks without Redis
	Inflight    service.InflightTracker
	Mirror      *service.ProgressMirror
	RateLimiter *ratelimit.RateLimiter
	LocalCache  *cache.MemoryCache

	// Services
	Policy          *service.UploadPolicy
	IngestService   *service.IngestService
	MaterialService *service.MaterialService
	ImageService    *service.ImageService
	SweepService    *service.SweepService
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	hashFn, err := blobstore.NewHashFunc(cfg.Storage.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	videos, err := blobstore.NewLocalStore(cfg.Storage.VideoDir, cfg.Storage.VideoMount, blobstore.ModeContent, log,
		blobstore.WithHash(hashFn),
		blobstore.WithChunkSize(cfg.Storage.ChunkSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open video store: %w", err)
	}

	images, err := blobstore.NewLocalStore(cfg.Storage.ImageDir, cfg.Storage.ImageMount, blobstore.ModeGenerated, log,
		blobstore.WithChunkSize(cfg.Storage.ChunkSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open image store: %w", err)
	}

	ffmpeg := transcoder.New(transcoder.Config{
		FFmpegPath:  cfg.FFmpeg.FFmpegPath,
		FFprobePath: cfg.FFmpeg.FFprobePath,
		SidecarDir:  cfg.FFmpeg.SidecarDir,
	}, log)

	pool := worker.NewPool(cfg.Ingest.MaxConcurrency, log)

	policy, err := service.NewUploadPolicy(cfg.Ingest.Policy, cfg.Ingest.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid upload policy: %w", err)
	}

	// Initialize repositories
	materialRepo := repository.NewMaterialRepository(components.DB)

	var (
		inflight    service.InflightTracker
		mirror      *service.ProgressMirror
		rateLimiter *ratelimit.RateLimiter
		localCache  *cache.MemoryCache
	)
	if components.Redis != nil {
		inflight = service.NewRedisInflightTracker(components.Redis, cfg.Ingest.InflightTTL, log)
		mirror = service.NewProgressMirror(components.Redis, cfg.Ingest.ProgressTTL, log)
		rateLimiter = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), log)
	} else {
		log.Warn("redis disabled: inflight markers and progress are process-local")
		localCache = cache.NewMemoryCache(log)
		components.OnShutdown("local cache", localCache.Close)
		inflight = service.NewMemoryInflightTracker()
		mirror = service.NewProgressMirror(localCache, cfg.Ingest.ProgressTTL, log)
	}

	// Initialize services (bottom-up: dependencies first)
	ingestService := service.NewIngestService(
		videos,
		ffmpeg,
		materialRepo,
		inflight,
		mirror,
		pool,
		components.Metrics,
		cfg.Ingest.BusCapacity,
		log,
	)
	materialService := service.NewMaterialService(videos, images, materialRepo, mirror, log)
	imageService := service.NewImageService(images, materialRepo, pool, components.Metrics, log)
	sweepService := service.NewSweepService(map[string]service.TempSweeper{
		"video": videos,
		"image": images,
	}, cfg.Storage.TmpMaxAge, components.Metrics, log)

	return &Container{
		Components:      components,
		Videos:          videos,
		Images:          images,
		FFmpeg:          ffmpeg,
		Pool:            pool,
		MaterialRepo:    materialRepo,
		Inflight:        inflight,
		Mirror:          mirror,
		RateLimiter:     rateLimiter,
		LocalCache:      localCache,
		Policy:          policy,
		IngestService:   ingestService,
		MaterialService: materialService,
		ImageService:    imageService,
		SweepService:    sweepService,
	}, nil
}

