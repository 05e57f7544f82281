package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/taskdesk-api/pkg/auth"
	apperrors "github.com/jwalitptl/taskdesk-api/pkg/errors"
	"github.com/jwalitptl/taskdesk-api/pkg/httputil"
)

// ContextActorID is the gin key holding the authenticated actor id.
const ContextActorID = "actor_id"

var (
	errMissingAuthHeader = errors.New("missing authorization header")
	errBadAuthHeader     = errors.New("invalid authorization format")
)

type AuthMiddleware struct {
	validator auth.TokenValidator
}

func NewAuthMiddleware(validator auth.TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Authenticate verifies the bearer token and puts the actor id on both the
// gin context and the request context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errMissingAuthHeader))
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errBadAuthHeader))
			return
		}

		actorID, _, err := m.validator.ValidateToken(token)
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}

		c.Set(ContextActorID, actorID)
		ctx := auth.WithActor(c.Request.Context(), actorID)
		zerolog.Ctx(ctx).UpdateContext(func(l zerolog.Context) zerolog.Context {
			return l.Str("actor_id", actorID.String())
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ActorID returns the actor set by Authenticate.
func ActorID(c *gin.Context) (uuid.UUID, bool) {
	return auth.ActorFrom(c.Request.Context())
}
