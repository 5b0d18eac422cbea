package models

import (
	"fmt"
	"strings"
	"time"
)

// MaterialType distinguishes the kinds of uploaded material
type MaterialType int16

const (
	TypeVideo MaterialType = 1
	TypeImage MaterialType = 2
)

// String returns the wire name of the type
func (t MaterialType) String() string {
	switch t {
	case TypeVideo:
		return "video"
	case TypeImage:
		return "image"
	default:
		return "unknown"
	}
}

// ParseMaterialType accepts "video" or "image"
func ParseMaterialType(s string) (MaterialType, error) {
	switch strings.ToLower(s) {
	case "video":
		return TypeVideo, nil
	case "image":
		return TypeImage, nil
	default:
		return 0, fmt.Errorf("unknown material type %q", s)
	}
}

// MaterialState tracks the lifecycle of a material record
type MaterialState int16

// StateOK is the only state written today; records exist only once every
// derived artifact is in place
const StateOK MaterialState = 0

// Material represents a row in the materials table
type Material struct {
	ID          string        `json:"id"`
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	Creator     string        `json:"creator"`
	State       MaterialState `json:"state"`
	Type        MaterialType  `json:"type"`
	CreatedAt   time.Time     `json:"created_at"`
	Tags        []string      `json:"tags"`
}

// NewVideo builds a video record ready to be committed
func NewVideo(id, name string, description *string, creator string) *Material {
	return &Material{
		ID:          id,
		Name:        &name,
		Description: description,
		Creator:     creator,
		State:       StateOK,
		Type:        TypeVideo,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewImage builds an image record ready to be committed
func NewImage(id, name string, description *string, creator string) *Material {
	m := NewVideo(id, name, description, creator)
	m.Type = TypeImage
	return m
}

// MaterialVideo is the client view of a stored video
type MaterialVideo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Raw         string   `json:"raw"`
	Thumbnail   string   `json:"thumbnail"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// VideoSlices holds the playlist URLs of a transcoded video
type VideoSlices struct {
	Slice      string `json:"slice,omitempty"`
	Slice720p  string `json:"slice720p,omitempty"`
	Slice1080p string `json:"slice1080p,omitempty"`
}

// MaterialDetail is returned by GET /api/v1/materials/:id
type MaterialDetail struct {
	Video MaterialVideo `json:"video"`
	VideoSlices
}

// MaterialImage is returned for each uploaded image
type MaterialImage struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Raw         string   `json:"raw"`
	Thumbnail   string   `json:"thumbnail"`
	Description string   `json:"description"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	Tags        []string `json:"tags"`
}

// MaterialSummary is one entry of a search result
type MaterialSummary struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Creator     string    `json:"creator"`
	Thumbnail   string    `json:"thumbnail"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
}

// MaterialPatch is the document a JSON merge patch is applied to
type MaterialPatch struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

// Deref returns *s or "" when s is nil
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
