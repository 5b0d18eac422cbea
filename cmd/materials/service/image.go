package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/lyzr/materials/cmd/materials/models"
	"github.com/lyzr/materials/common/blobstore"
	"github.com/lyzr/materials/common/imaging"
	"github.com/lyzr/materials/common/logger"
	"github.com/lyzr/materials/common/metrics"
	"github.com/lyzr/materials/common/worker"
)

const kindImage = "image"

// ImageUpload is one file of an image upload
type ImageUpload struct {
	FileName string
	File     io.Reader
}

// ImageService stores images under generated identifiers and renders their
// thumbnails in-process
type ImageService struct {
	store   blobstore.Store
	repo    MaterialStore
	pool    *worker.Pool
	metrics *metrics.Metrics
	box     imaging.Box
	log     *logger.Logger
}

// NewImageService creates the service. store must use generated identifiers.
func NewImageService(store blobstore.Store, repo MaterialStore, pool *worker.Pool, m *metrics.Metrics, log *logger.Logger) *ImageService {
	return &ImageService{
		store:   store,
		repo:    repo,
		pool:    pool,
		metrics: m,
		box:     imaging.DefaultBox,
		log:     log,
	}
}

// Upload stores every file, renders its thumbnail and commits its metadata.
// Files before a failing one stay committed.
func (s *ImageService) Upload(ctx context.Context, files []ImageUpload, tags []string, desc *string, creator string, base *url.URL) ([]models.MaterialImage, error) {
	if creator == "" {
		return nil, ErrNoCreator
	}
	if len(files) == 0 {
		return nil, ErrNoFile
	}

	images := make([]models.MaterialImage, 0, len(files))
	for _, f := range files {
		img, err := s.uploadOne(ctx, f, tags, desc, creator, base)
		if err != nil {
			s.metrics.IngestFinished(kindImage, metrics.OutcomeFailed)
			return images, fmt.Errorf("%s: %w", f.FileName, err)
		}
		s.metrics.IngestFinished(kindImage, metrics.OutcomeNew)
		images = append(images, img)
	}
	return images, nil
}

func (s *ImageService) uploadOne(ctx context.Context, f ImageUpload, tags []string, desc *string, creator string, base *url.URL) (models.MaterialImage, error) {
	log := s.log.WithContext(ctx).WithCreator(creator)
	id := blobstore.GenerateIdentifier()

	start := time.Now()
	saved, err := s.store.SaveAs(ctx, id, f.File)
	s.metrics.ObserveStage("save", start, err)
	if err != nil {
		return models.MaterialImage{}, err
	}
	s.metrics.BytesStored(kindImage, saved.Size)

	var decoded imaging.Result
	start = time.Now()
	err = s.pool.Do(ctx, "image-thumbnail", func(ctx context.Context) error {
		decoded, err = s.thumbnail(ctx, id)
		return err
	})
	s.metrics.ObserveStage("thumbnail", start, err)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedImage) {
			if derr := s.store.Delete(context.WithoutCancel(ctx), id); derr != nil {
				log.Warn("failed to remove undecodable upload", "material_id", id, "error", derr)
			}
		}
		return models.MaterialImage{}, err
	}

	name := f.FileName
	if name == "" {
		name = "no_name"
	}
	m := models.NewImage(id.String(), name, desc, creator)
	start = time.Now()
	err = s.repo.Save(ctx, m, tags)
	s.metrics.ObserveStage("metadata", start, err)
	if err != nil {
		return models.MaterialImage{}, err
	}

	raw, err := s.store.URL(base, id, "raw")
	if err != nil {
		return models.MaterialImage{}, err
	}
	thumb, err := s.store.URL(base, id, thumbnailName)
	if err != nil {
		return models.MaterialImage{}, err
	}

	log.Info("stored image", "material_id", id, "format", decoded.Format, "width", decoded.Width, "height", decoded.Height)

	return models.MaterialImage{
		ID:          m.ID,
		Name:        name,
		Raw:         raw,
		Thumbnail:   thumb,
		Description: models.Deref(desc),
		Width:       decoded.Width,
		Height:      decoded.Height,
		Tags:        m.Tags,
	}, nil
}

func (s *ImageService) thumbnail(ctx context.Context, id blobstore.Identifier) (imaging.Result, error) {
	raw, err := s.store.RawFile(ctx, id)
	if err != nil {
		return imaging.Result{}, err
	}
	dst, err := s.store.DerivedFile(ctx, id, thumbnailName)
	if err != nil {
		return imaging.Result{}, err
	}

	src, err := os.Open(raw)
	if err != nil {
		return imaging.Result{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer src.Close()

	return imaging.Thumbnail(src, dst, s.box)
}
