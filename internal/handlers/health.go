package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Pinger checks that a dependency is reachable.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	ping Pinger
	log  *logrus.Logger
}

func NewHealthHandler(ping Pinger, log *logrus.Logger) *HealthHandler {
	return &HealthHandler{ping: ping, log: log}
}

func (h *HealthHandler) Check(ctx *gin.Context) {
	status, database, code := "ok", "ok", http.StatusOK

	if err := h.ping(ctx.Request.Context()); err != nil {
		h.log.WithError(err).Warn("Database health check failed")
		status, database, code = "degraded", "unreachable", http.StatusServiceUnavailable
	}

	ctx.JSON(code, gin.H{
		"status":    status,
		"database":  database,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
