// Package httpmw provides the gin middleware stack shared by every
// route: request-id propagation, structured access logging, and panic
// recovery.
package httpmw

import (
	"net/http"
	"time"

	"coderunner/internal/obslog"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"
const requestIDKey = "request_id"

// RequestID assigns a UUID to every request lacking one, echoing it
// back on the response and stashing it in the gin context for Logger
// and handlers to pick up.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Logger writes one structured log entry per request via the global
// zap logger.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		obslog.L().Info("http request",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// Recovery converts a panic into a 500 response and a logged stack
// trace instead of killing the server.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		obslog.L().Error("panic recovered",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Any("recovered", recovered),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}
