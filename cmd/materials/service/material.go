package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/lyzr/materials/cmd/materials/models"
	"github.com/lyzr/materials/cmd/materials/repository"
	"github.com/lyzr/materials/common/blobstore"
	"github.com/lyzr/materials/common/logger"
	"github.com/lyzr/materials/common/progress"
	"github.com/lyzr/materials/common/transcoder"
	"github.com/lyzr/materials/common/validation"
)

var (
	// ErrInvalidPatch means a PATCH body could not be applied
	ErrInvalidPatch = errors.New("invalid patch")
	// ErrInvalidSearch means a search condition is malformed
	ErrInvalidSearch = errors.New("invalid search condition")
)

// Patch media types
const (
	MergePatchType = "application/merge-patch+json"
	JSONPatchType  = "application/json-patch+json"
)

// MaterialService reads, edits and removes stored materials
type MaterialService struct {
	videos blobstore.Store
	images blobstore.Store
	repo   MaterialStore
	mirror *ProgressMirror
	rungs  []transcoder.Rung
	log    *logger.Logger
}

// NewMaterialService creates the service. mirror may be nil.
func NewMaterialService(videos, images blobstore.Store, repo MaterialStore, mirror *ProgressMirror, log *logger.Logger) *MaterialService {
	return &MaterialService{
		videos: videos,
		images: images,
		repo:   repo,
		mirror: mirror,
		rungs:  transcoder.DefaultRungs(),
		log:    log,
	}
}

// locate finds the store holding a committed record for id
func (s *MaterialService) locate(ctx context.Context, id string) (blobstore.Store, error) {
	bid, err := blobstore.ParseIdentifier(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrMaterialNotFound, id)
	}

	for _, store := range []blobstore.Store{s.videos, s.images} {
		ok, err := store.Exists(ctx, bid)
		if err != nil {
			return nil, err
		}
		if ok {
			return store, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", repository.ErrMaterialNotFound, id)
}

// Exists reports whether id names stored material
func (s *MaterialService) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.locate(ctx, id)
	if errors.Is(err, repository.ErrMaterialNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Detail returns the material with URLs for its raw file and artifacts
func (s *MaterialService) Detail(ctx context.Context, id string, base *url.URL) (*models.MaterialDetail, error) {
	store, err := s.locate(ctx, id)
	if err != nil {
		return nil, err
	}

	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	bid := blobstore.Identifier(id)
	link := func(rel string) (string, error) {
		return store.URL(base, bid, rel)
	}

	detail := &models.MaterialDetail{
		Video: models.MaterialVideo{
			ID:          m.ID,
			Name:        models.Deref(m.Name),
			Description: models.Deref(m.Description),
			Tags:        m.Tags,
		},
	}
	if detail.Video.Raw, err = link("raw"); err != nil {
		return nil, err
	}
	if detail.Video.Thumbnail, err = link(thumbnailName); err != nil {
		return nil, err
	}

	if m.Type != models.TypeVideo {
		return detail, nil
	}

	if detail.Slice, err = link(transcoder.MasterPlaylistName); err != nil {
		return nil, err
	}
	for _, rung := range s.rungs {
		u, err := link(rung.PlaylistPath())
		if err != nil {
			return nil, err
		}
		switch rung.Name {
		case "720p":
			detail.Slice720p = u
		case "1080p":
			detail.Slice1080p = u
		}
	}

	return detail, nil
}

// Delete removes the stored files, then the metadata. Metadata is kept
// when the files could not be removed.
func (s *MaterialService) Delete(ctx context.Context, id string) error {
	store, err := s.locate(ctx, id)
	if err != nil {
		return err
	}

	if err := store.Delete(ctx, blobstore.Identifier(id)); err != nil {
		return fmt.Errorf("failed to delete stored files: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}

	if s.mirror != nil {
		if err := s.mirror.Forget(ctx, id); err != nil {
			s.log.Warn("failed to forget progress", "material_id", id, "error", err)
		}
	}

	s.log.Info("deleted material", "material_id", id)
	return nil
}

// Update applies a JSON merge patch (RFC 7396) or JSON patch (RFC 6902)
// to the editable fields {name, description, tags}
func (s *MaterialService) Update(ctx context.Context, id, contentType string, patch []byte) (*models.Material, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	doc, err := json.Marshal(models.MaterialPatch{
		Name:        m.Name,
		Description: m.Description,
		Tags:        m.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode material: %w", err)
	}

	patched, err := applyPatch(doc, contentType, patch)
	if err != nil {
		return nil, err
	}

	var edited models.MaterialPatch
	if err := json.Unmarshal(patched, &edited); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	m.Name = edited.Name
	m.Description = edited.Description
	m.Tags = NormalizeTags(edited.Tags)

	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}

	s.log.Info("updated material", "material_id", id, "tags", len(m.Tags))
	return m, nil
}

var patchValidator = validation.NewPatchValidator("name", "description", "tags")

func applyPatch(doc []byte, contentType string, patch []byte) ([]byte, error) {
	switch contentType {
	case JSONPatchType:
		var raw []map[string]interface{}
		if err := json.Unmarshal(patch, &raw); err != nil {
			return nil, fmt.Errorf("%w: failed to decode patch: %v", ErrInvalidPatch, err)
		}
		if err := patchValidator.ValidateOperations(raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		ops, err := jsonpatch.DecodePatch(patch)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode patch: %v", ErrInvalidPatch, err)
		}
		out, err := ops.Apply(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to apply patch operations: %v", ErrInvalidPatch, err)
		}
		return out, nil
	default:
		out, err := jsonpatch.MergePatch(doc, patch)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		return out, nil
	}
}

// Progress returns the last mirrored progress event of id
func (s *MaterialService) Progress(ctx context.Context, id string) (progress.Event, error) {
	if s.mirror == nil {
		return progress.Event{}, fmt.Errorf("%w: %s", ErrNoProgress, id)
	}
	return s.mirror.Last(ctx, id)
}

// Search returns one page of materials with thumbnail URLs
func (s *MaterialService) Search(ctx context.Context, cond models.SearchCondition, base *url.URL) (*models.PageResult[models.MaterialSummary], error) {
	if cond.Type != "" {
		if _, err := models.ParseMaterialType(cond.Type); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSearch, err)
		}
	}
	cond.Normalize()
	cond.Tags = NormalizeTags(cond.Tags)

	materials, total, err := s.repo.Search(ctx, cond)
	if err != nil {
		return nil, err
	}

	result := &models.PageResult[models.MaterialSummary]{
		Page:    cond.Page,
		Size:    cond.Size,
		Total:   total,
		Records: make([]models.MaterialSummary, 0, len(materials)),
	}
	for _, m := range materials {
		store := s.videos
		if m.Type == models.TypeImage {
			store = s.images
		}
		thumb, err := store.URL(base, blobstore.Identifier(m.ID), thumbnailName)
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, models.MaterialSummary{
			ID:          m.ID,
			Type:        m.Type.String(),
			Name:        models.Deref(m.Name),
			Description: models.Deref(m.Description),
			Creator:     m.Creator,
			Thumbnail:   thumb,
			Tags:        m.Tags,
			CreatedAt:   m.CreatedAt,
		})
	}
	return result, nil
}
