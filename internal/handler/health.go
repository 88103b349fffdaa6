package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Healthz reports store and redis reachability. Redis is only checked when a
// health check was configured.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbHealthy := h.service.Store().Ping(ctx) == nil
	redisHealthy := true
	if h.redisHealth != nil {
		redisHealthy = h.redisHealth(ctx)
	}

	status := http.StatusOK
	text := "ok"
	if !dbHealthy || !redisHealthy {
		status = http.StatusServiceUnavailable
		text = "degraded"
	}
	c.JSON(status, gin.H{"status": text, "db": dbHealthy, "redis": redisHealthy})
}
