package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/botfleet/pkg/response"
)

// HealthChecker is a dependency checked by /health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// InstanceCounter reports the number of running tenant instances
type InstanceCounter interface {
	Count() int
}

// HealthHandler reports process and dependency health
type HealthHandler struct {
	checks    map[string]HealthChecker
	instances InstanceCounter
	timeout   time.Duration
}

// NewHealthHandler creates a new HealthHandler. Nil checkers are skipped.
func NewHealthHandler(instances InstanceCounter, checks map[string]HealthChecker) *HealthHandler {
	live := make(map[string]HealthChecker, len(checks))
	for name, c := range checks {
		if c != nil {
			live[name] = c
		}
	}
	return &HealthHandler{checks: live, instances: instances, timeout: 2 * time.Second}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check.HealthCheck(ctx); err != nil {
			deps[name] = err.Error()
			healthy = false
			continue
		}
		deps[name] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, response.ErrorWithDetails(response.ErrCodeServiceUnavailable, "degraded", deps))
		return
	}
	c.JSON(http.StatusOK, response.Success(gin.H{
		"status":       "ok",
		"instances":    h.instances.Count(),
		"dependencies": deps,
	}))
}
