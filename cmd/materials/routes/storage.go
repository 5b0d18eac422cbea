package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/lyzr/materials/cmd/materials/container"
	"github.com/lyzr/materials/cmd/materials/handlers"
)

// RegisterStorageRoutes serves committed files under each store's mount
func RegisterStorageRoutes(e *echo.Echo, c *container.Container) {
	cfg := c.Components.Config.Storage

	videos := handlers.NewStorageHandler(c.Videos)
	e.GET(cfg.VideoMount+"/:id/*", videos.Serve)
	e.HEAD(cfg.VideoMount+"/:id/*", videos.Serve)

	images := handlers.NewStorageHandler(c.Images)
	e.GET(cfg.ImageMount+"/:id/*", images.Serve)
	e.HEAD(cfg.ImageMount+"/:id/*", images.Serve)
}
