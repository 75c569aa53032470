package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"rollout.io/rollout/internal/api/handlers"
	"rollout.io/rollout/internal/api/middleware"
	"rollout.io/rollout/internal/config"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/pkg/metrics"
)

// defaultAllowedOrigins are used when server.allowed_origins names no usable
// origin.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
}

var quietPaths = []string{
	"/api/v1/health/live",
	"/api/v1/health/ready",
	"/metrics",
}

func newRouter(cfg *config.Config, server *handlers.Server) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(quietPaths...),
		cors.New(buildCORSConfig(cfg)),
		middleware.ErrorHandler(),
	)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api/v1")
	server.RegisterRoutes(api)
	api.Any("/admin/log/level", gin.WrapH(logger.LevelHandler()))

	return router
}

// buildCORSConfig turns the server settings into a cors.Config. A wildcard
// origin is dropped unless UnsafeAllowAllOrigins is set, and allow-all never
// sends credentials.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	if cfg.Server.UnsafeAllowAllOrigins {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
		return c
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" {
			continue
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	c.AllowOrigins = origins
	c.AllowCredentials = cfg.Server.AllowCredentials
	return c
}
