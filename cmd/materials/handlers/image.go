package handlers

import (
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/materials/cmd/materials/middleware"
	"github.com/lyzr/materials/cmd/materials/service"
	"github.com/lyzr/materials/common/logger"
)

// ImageHandler accepts image uploads
type ImageHandler struct {
	images *service.ImageService
	policy *service.UploadPolicy
	base   *url.URL
	log    *logger.Logger
}

// NewImageHandler creates a new image handler
func NewImageHandler(images *service.ImageService, policy *service.UploadPolicy, base *url.URL, log *logger.Logger) *ImageHandler {
	return &ImageHandler{
		images: images,
		policy: policy,
		base:   base,
		log:    log,
	}
}

// Upload stores one or more images
// POST /api/v1/materials/image
func (h *ImageHandler) Upload(c echo.Context) error {
	username := middleware.GetUsername(c)

	form, err := c.MultipartForm()
	if err != nil {
		return respondError(c, http.StatusBadRequest, "malformed multipart form")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return respondError(c, http.StatusBadRequest, "multipart field \"files\" is required")
	}

	for _, fh := range headers {
		if err := h.policy.Check(service.UploadInfo{
			Size:        fh.Size,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			FileName:    fh.Filename,
			Kind:        "image",
			Creator:     username,
		}); err != nil {
			return respondErr(c, err)
		}
	}

	uploads := make([]service.ImageUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return respondError(c, http.StatusBadRequest, "failed to read upload")
		}
		defer func(f multipart.File) { _ = f.Close() }(f)
		uploads = append(uploads, service.ImageUpload{FileName: fh.Filename, File: f})
	}

	images, err := h.images.Upload(c.Request().Context(), uploads,
		service.ParseTags(c.FormValue("tags")), optionalForm(c, "desc"), username, baseURL(c, h.base))
	if err != nil {
		h.log.WithContext(c.Request().Context()).Warn("image upload failed", "stored", len(images), "error", err)
		return respondErr(c, err)
	}

	return respondOK(c, images)
}
