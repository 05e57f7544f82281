package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/taskdesk-api/pkg/httputil"
)

// DefaultMaxBodySize covers the largest task or comment payload.
const DefaultMaxBodySize = 1 << 20

// SizeLimit rejects requests whose declared body exceeds max and caps reads
// for those that do not declare one.
func SizeLimit(max int64) gin.HandlerFunc {
	if max <= 0 {
		max = DefaultMaxBodySize
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > max {
			httputil.RespondWithStatusError(c, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}
