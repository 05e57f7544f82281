package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/taskdesk-api/internal/service/audit"
)

// AuditClient captures the caller's IP address and user agent for activity
// log entries recorded while serving the request.
func AuditClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithClient(c.Request.Context(), audit.Client{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
