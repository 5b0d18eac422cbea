package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/materials/cmd/materials/repository"
	"github.com/lyzr/materials/cmd/materials/service"
	"github.com/lyzr/materials/common/blobstore"
	"github.com/lyzr/materials/common/imaging"
)

// Response is the envelope of every JSON reply
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func respondOK(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Code: 0, Msg: "OK", Data: data})
}

func respondError(c echo.Context, status int, msg string) error {
	return c.JSON(status, Response{Code: status, Msg: msg})
}

// statusOf maps service errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, repository.ErrMaterialNotFound),
		errors.Is(err, service.ErrNoProgress),
		errors.Is(err, blobstore.ErrNotFound),
		errors.Is(err, blobstore.ErrInvalidIdentifier),
		errors.Is(err, blobstore.ErrInvalidPath):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidPatch),
		errors.Is(err, service.ErrInvalidSearch),
		errors.Is(err, service.ErrNoFile),
		errors.Is(err, imaging.ErrUnsupportedImage):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUploadRejected):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNoCreator):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(c echo.Context, err error) error {
	return respondError(c, statusOf(err), err.Error())
}

// baseURL returns the configured public base URL or the one the request
// was made against
func baseURL(c echo.Context, configured *url.URL) *url.URL {
	if configured != nil {
		return configured
	}
	return &url.URL{Scheme: c.Scheme(), Host: c.Request().Host}
}
