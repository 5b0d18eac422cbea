package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/materials/common/blobstore"
)

// StorageHandler serves committed files of one blob store
type StorageHandler struct {
	store blobstore.Store
}

// NewStorageHandler creates a handler for store
func NewStorageHandler(store blobstore.Store) *StorageHandler {
	return &StorageHandler{store: store}
}

// Serve returns a raw file or derived artifact
// GET {mount}/:id/*
func (h *StorageHandler) Serve(c echo.Context) error {
	id, err := blobstore.ParseIdentifier(c.Param("id"))
	if err != nil {
		return respondError(c, http.StatusNotFound, "not found")
	}

	path, err := h.store.DerivedFile(c.Request().Context(), id, c.Param("*"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.File(path)
}
