package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

// CorrelationIDKey is the context key under which RequestLogger stores the
// per-request correlation ID.
const CorrelationIDKey contextKey = "correlation_id"

// GetCorrelationID returns the correlation ID stored in ctx, or an empty
// string when none is present.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestLogger returns a gin middleware that logs each request with zap
// and threads an X-Correlation-ID header through the request context.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(string(CorrelationIDKey), correlationID)
		ctx := context.WithValue(c.Request.Context(), CorrelationIDKey, correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		method := c.Request.Method

		if len(c.Errors) > 0 {
			for _, e := range c.Errors.Errors() {
				logger.Error("Request failed",
					zap.String("correlation_id", correlationID),
					zap.String("error", e),
					zap.Int("status", statusCode),
					zap.String("method", method),
					zap.String("path", path),
					zap.Duration("latency", latency),
				)
			}
		} else {
			logger.Info("Request completed",
				zap.String("correlation_id", correlationID),
				zap.Int("status", statusCode),
				zap.String("method", method),
				zap.String("path", path),
				zap.Duration("latency", latency),
			)
		}
	}
}
