package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/monkeycs60/vincent/internal/app"
	"github.com/monkeycs60/vincent/internal/handlers"
	"github.com/monkeycs60/vincent/internal/middleware"
	"github.com/monkeycs60/vincent/internal/services"
)

// Deps bundles the wired services the router exposes over HTTP.
type Deps struct {
	DB        *gorm.DB
	Generator handlers.Generator
	Seeder    handlers.Seeder
	// MediaRoot, when set, is served under the configured public path so the
	// filesystem blob store URLs resolve.
	MediaRoot string
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Deps) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.NoRoute(middleware.NotFoundHandler)

	if cfg.Monitoring.Health.Enabled {
		healthHandler := handlers.NewHealthHandler(deps.DB, deps.MediaRoot)
		r.GET("/health", healthHandler.Health)
	}

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	if deps.MediaRoot != "" {
		publicPath := cfg.Storage.PublicPath
		if publicPath == "" {
			publicPath = "/media"
		}
		r.Static(publicPath, deps.MediaRoot)
	}

	imageService, err := services.NewImageService(deps.DB)
	if err != nil {
		return nil, err
	}
	imageHandler := handlers.NewImageHandler(imageService)
	generationHandler := handlers.NewGenerationHandler(deps.Generator)

	api := r.Group("/api")
	{
		api.GET("/images", imageHandler.List)
		api.GET("/images/latest", imageHandler.Latest)
		api.GET("/cron", generationHandler.Cron)

		// Only the manual trigger is rate limited; reads stay cheap and the
		// cron twin is meant for trusted schedulers.
		limiter := middleware.NewRateLimiter(cfg.Generation.RateLimit)
		api.POST("/generate", middleware.RateLimit(cfg.Generation.RateLimit, limiter), generationHandler.Generate)

		if deps.Seeder != nil {
			seedHandler := handlers.NewSeedHandler(deps.Seeder, cfg.Seed.APIKey)
			api.GET("/seed", seedHandler.Seed)
		}
	}

	return r, nil
}
