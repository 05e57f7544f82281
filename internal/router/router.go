package router

import (
	"compress/gzip"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	auditHandler "github.com/jwalitptl/taskdesk-api/internal/handler/audit"
	"github.com/jwalitptl/taskdesk-api/internal/handler/health"
	permissionHandler "github.com/jwalitptl/taskdesk-api/internal/handler/permission"
	promHandler "github.com/jwalitptl/taskdesk-api/internal/handler/prometheus"
	rbacHandler "github.com/jwalitptl/taskdesk-api/internal/handler/rbac"
	taskHandler "github.com/jwalitptl/taskdesk-api/internal/handler/task"
	userHandler "github.com/jwalitptl/taskdesk-api/internal/handler/user"
	"github.com/jwalitptl/taskdesk-api/internal/middleware"
	"github.com/jwalitptl/taskdesk-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Health     *health.Handler
	Metrics    *promHandler.Handler
	Permission *permissionHandler.Handler
	RBAC       *rbacHandler.Handler
	User       *userHandler.Handler
	Audit      *auditHandler.Handler
	Task       *taskHandler.Handler
}

type RouterConfig struct {
	Mode        string
	RateLimit   rate.Limit
	RateBurst   int
	CORSOrigins []string
	MetricsPath string
	MaxBodySize int64
	Logger      zerolog.Logger
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	lastSeen middleware.LastSeenToucher
	handlers Handlers
	metrics  *metrics.Metrics
	config   RouterConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	lastSeen middleware.LastSeenToucher,
	handlers Handlers,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		lastSeen: lastSeen,
		handlers: handlers,
		metrics:  m,
		config:   config,
	}

	engine.Use(
		middleware.RequestID(config.Logger),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.ErrorHandler(),
		middleware.Metrics(m),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(middleware.DefaultCORSConfig(config.CORSOrigins)),
		middleware.SizeLimit(config.MaxBodySize),
	)
	return r
}

func (r *Router) Setup() {
	if r.handlers.Metrics != nil && r.config.MetricsPath != "" {
		r.engine.GET(r.config.MetricsPath, r.handlers.Metrics.Handler())
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.handlers.Health.RegisterRoutes(api)

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  r.config.RateLimit,
		Burst: r.config.RateBurst,
	})

	protected := api.Group("")
	protected.Use(
		r.auth.Authenticate(),
		rateLimiter.RateLimit(),
		middleware.AuditClient(),
		middleware.LastSeen(r.lastSeen, middleware.LastSeenInterval),
	)
	r.setupProtectedRoutes(protected)
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	for _, h := range []Handler{
		r.handlers.Permission,
		r.handlers.Task,
		r.handlers.User,
		r.handlers.Audit,
	} {
		h.RegisterRoutes(rg)
	}

	admin := rg.Group("/admin")
	r.handlers.RBAC.RegisterRoutes(admin)
	r.handlers.User.RegisterAdminRoutes(admin)
	r.handlers.Audit.RegisterAdminRoutes(admin, middleware.Compress(gzip.DefaultCompression))
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
