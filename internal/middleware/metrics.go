package middleware

import (
	"github.com/calcforest/calcforest/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics records request counts and latency labelled by route template, so
// /api/calculations/:id is one series regardless of id.
func Metrics(m *metrics.Collector) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		done := m.RequestStarted(ctx.Request.Method, ctx.FullPath())
		ctx.Next()
		done(ctx.Writer.Status())
	}
}
