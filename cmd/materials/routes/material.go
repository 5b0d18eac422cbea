package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/lyzr/materials/cmd/materials/container"
	"github.com/lyzr/materials/cmd/materials/handlers"
	"github.com/lyzr/materials/cmd/materials/middleware"
	commonmw "github.com/lyzr/materials/common/middleware"
)

// RegisterMaterialRoutes registers upload, lookup and edit routes
func RegisterMaterialRoutes(e *echo.Echo, c *container.Container) {
	cfg := c.Components.Config
	log := c.Components.Logger
	base := cfg.BaseURL()

	videoHandler := handlers.NewVideoHandler(c.IngestService, c.Policy, cfg.Ingest.HeartbeatInterval, log)
	imageHandler := handlers.NewImageHandler(c.ImageService, c.Policy, base, log)
	materialHandler := handlers.NewMaterialHandler(c.MaterialService, base, log)

	materials := e.Group("/api/v1/materials", middleware.ExtractUsernameStrict())

	uploads := []echo.MiddlewareFunc{}
	if c.RateLimiter != nil {
		uploads = append(uploads, commonmw.UploadRateLimitMiddleware(c.RateLimiter, commonmw.UploadLimit{
			Limit:          cfg.Ingest.UploadRateLimit,
			Window:         cfg.Ingest.UploadRateWindow,
			InternalSecret: cfg.Ingest.InternalSecret,
		}))
	}

	{
		materials.POST("/video", videoHandler.Upload, uploads...)
		materials.POST("/image", imageHandler.Upload, uploads...)
		materials.POST("/search", materialHandler.Search)
		materials.HEAD("/:id", materialHandler.Exists)
		materials.GET("/:id", materialHandler.Detail)
		materials.DELETE("/:id", materialHandler.Delete)
		materials.PATCH("/:id", materialHandler.Update)
		materials.GET("/:id/progress", materialHandler.Progress)
	}
}
