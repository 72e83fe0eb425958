// Package middleware holds the gin middleware chain wired into the
// gateway's http.Handler: admin credential checking, request logging, and
// Prometheus exposition. Grounded on shared/middleware's CORS/DB/Prometheus
// middlewares and helpers/middleware/logger.go's CustomLogger, generalized
// from per-organization API keys to the single static ADMIN_API_KEY this
// gateway's admin surface uses.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/config"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/gwerrors"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/obslog"
)

// AdminAuth rejects any request under /admin/* whose x-admin-key header
// does not match the configured ADMIN_API_KEY.
func AdminAuth(runtime *config.Runtime) gin.HandlerFunc {
	return func(c *gin.Context) {
		want, _ := runtime.Get("ADMIN_API_KEY")
		got := c.GetHeader("x-admin-key")
		if want == "" || got != want {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gwerrors.Reason(gwerrors.ErrUnauthorizedAdmin)})
			return
		}
		c.Next()
	}
}

// RequestLogger writes one line per request to the process system log,
// skipping /health and /metrics since they carry no business signal.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}
		c.Next()
		obslog.Global().Info("%s %s %d %s", c.Request.Method, path, c.Writer.Status(), c.ClientIP())
	}
}

// Prometheus exposes the collected metrics at GET /metrics.
func Prometheus() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			handler.ServeHTTP(c.Writer, c.Request)
			c.Abort()
			return
		}
		c.Next()
	}
}
