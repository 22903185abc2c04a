package api

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/api/handlers"
	"github.com/botforge/forge3d/internal/api/middleware"
	"github.com/botforge/forge3d/internal/daemon"
)

func SetupRoutes(d *daemon.Daemon, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	cfg := d.Config()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.Metrics(d.Metrics()))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedExtensions([]string{".glb", ".png"})))

	// Create handlers
	h := handlers.NewHandlers(d)

	router.GET("/health", h.Health)
	router.GET("/status", h.Status)

	router.POST("/generate", h.Generate)
	router.POST("/search-image", h.SearchImage)
	router.POST("/merge", h.Merge)
	router.POST("/rig", h.Rig)

	router.GET("/parts", h.ListParts)
	router.GET("/parts/generated/*filepath", h.ServeGenerated)

	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(d.Metrics().Handler()))
	}

	// Catch-all for undefined routes
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "endpoint not found",
			"path":  c.Request.URL.Path,
		})
	})

	return router
}
