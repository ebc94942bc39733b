package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health handles /healthz and /api/health: every dependency check must pass for a 200.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{}
	healthy := true
	for name, check := range h.health {
		ok := check(ctx)
		body[name] = ok
		healthy = healthy && ok
	}
	status := http.StatusOK
	body["status"] = "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	body["timestamp"] = h.now().UTC()
	c.JSON(status, body)
}
