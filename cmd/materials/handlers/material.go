package handlers

import (
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/materials/cmd/materials/models"
	"github.com/lyzr/materials/cmd/materials/service"
	"github.com/lyzr/materials/common/logger"
)

const maxPatchBytes = 64 << 10

// MaterialHandler handles material lookups and edits
type MaterialHandler struct {
	materials *service.MaterialService
	base      *url.URL
	log       *logger.Logger
}

// NewMaterialHandler creates a new material handler
func NewMaterialHandler(materials *service.MaterialService, base *url.URL, log *logger.Logger) *MaterialHandler {
	return &MaterialHandler{
		materials: materials,
		base:      base,
		log:       log,
	}
}

// Exists reports whether a material is stored
// HEAD /api/v1/materials/:id
func (h *MaterialHandler) Exists(c echo.Context) error {
	ok, err := h.materials.Exists(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondErr(c, err)
	}
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	return c.NoContent(http.StatusOK)
}

// Detail returns a material with its artifact URLs
// GET /api/v1/materials/:id
func (h *MaterialHandler) Detail(c echo.Context) error {
	detail, err := h.materials.Detail(c.Request().Context(), c.Param("id"), baseURL(c, h.base))
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, detail)
}

// Delete removes a material and its files
// DELETE /api/v1/materials/:id
func (h *MaterialHandler) Delete(c echo.Context) error {
	if err := h.materials.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, "ok")
}

// Update edits name, description and tags
// PATCH /api/v1/materials/:id
func (h *MaterialHandler) Update(c echo.Context) error {
	mediaType, _, err := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if err != nil {
		mediaType = service.MergePatchType
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPatchBytes))
	if err != nil {
		return respondError(c, http.StatusBadRequest, "failed to read patch")
	}

	m, err := h.materials.Update(c.Request().Context(), c.Param("id"), mediaType, body)
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, m)
}

// Progress returns the last progress event of an ingestion
// GET /api/v1/materials/:id/progress
func (h *MaterialHandler) Progress(c echo.Context) error {
	ev, err := h.materials.Progress(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, ev)
}

// Search pages through materials
// POST /api/v1/materials/search
func (h *MaterialHandler) Search(c echo.Context) error {
	var cond models.SearchCondition
	if err := c.Bind(&cond); err != nil {
		return respondError(c, http.StatusBadRequest, "malformed search condition")
	}

	page, err := h.materials.Search(c.Request().Context(), cond, baseURL(c, h.base))
	if err != nil {
		return respondErr(c, err)
	}
	return respondOK(c, page)
}
