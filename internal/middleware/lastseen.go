package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// LastSeenInterval is the minimum gap between two last-seen writes for one
// user.
const LastSeenInterval = 24 * time.Hour

type LastSeenToucher interface {
	TouchLastSeen(ctx context.Context, userID uuid.UUID) error
}

// LastSeen refreshes the actor's last_seen_at at most once per interval per
// process. Failures are logged and never affect the request.
func LastSeen(toucher LastSeenToucher, interval time.Duration) gin.HandlerFunc {
	if interval <= 0 {
		interval = LastSeenInterval
	}
	seen := cache.New(interval, interval)

	return func(c *gin.Context) {
		actorID, ok := ActorID(c)
		if ok && seen.Add(actorID.String(), struct{}{}, cache.DefaultExpiration) == nil {
			ctx := context.WithoutCancel(c.Request.Context())
			if err := toucher.TouchLastSeen(ctx, actorID); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to refresh last seen")
				// retry on the next request
				seen.Delete(actorID.String())
			}
		}
		c.Next()
	}
}
