package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
	healthError    = "error"
)

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": healthOK})
}

// GetReadiness handles GET /health/ready. It probes the database and the
// cache store.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string)
	allHealthy := true

	probe := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(c.Request.Context()); err != nil {
			checks[name] = healthError
			allHealthy = false
			return
		}
		checks[name] = healthOK
	}
	probe("database", s.database)
	probe("cache", s.cache)

	status := healthOK
	httpStatus := http.StatusOK
	if !allHealthy {
		status = healthDegraded
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, gin.H{"status": status, "checks": checks})
}
