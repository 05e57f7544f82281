package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/taskdesk-api/pkg/errors"
	"github.com/jwalitptl/taskdesk-api/pkg/httputil"
)

// ErrorHandler logs errors attached to the context. Handlers normally answer
// through httputil themselves; if one attached an error without writing a
// response, the last error is rendered here.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		l := zerolog.Ctx(c.Request.Context())
		for _, e := range c.Errors {
			event := l.Warn()
			if apperrors.Code(e.Err) == apperrors.ErrInternal {
				event = l.Error()
			}
			event.
				Err(e.Err).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		if !c.Writer.Written() {
			httputil.RespondWithError(c, c.Errors.Last().Err)
		}
	}
}
