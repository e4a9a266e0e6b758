package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/antedotee/mad-project-price-tracker/metrics"
)

// requestLogger logs each request through slog and counts it by route.
func requestLogger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.IncHTTPRequest(route, status)

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("elapsed", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("error", c.Errors.String()))
		}
		switch {
		case status >= 500:
			slog.Error("request failed", attrs...)
		case route == "/healthz" || route == "/metrics":
			slog.Debug("request", attrs...)
		default:
			slog.Info("request", attrs...)
		}
	}
}
