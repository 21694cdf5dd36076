package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler reports liveness and dependency status.
type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler creates a HealthHandler checking each named dependency.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health godoc
// @Summary     Health check
// @Tags        health
// @Produce     json
// @Success     200 {object} map[string]interface{}
// @Failure     503 {object} map[string]interface{}
// @Router      /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = "down"
			continue
		}
		deps[name] = "up"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "dependencies": deps})
}
