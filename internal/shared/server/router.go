package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/audiochat"
	"coach-backend/internal/chat"
	"coach-backend/internal/services/health"
	"coach-backend/internal/shared/auth"
	"coach-backend/internal/shared/config"
	"coach-backend/internal/shared/metrics"
	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/server/respond"
	"coach-backend/internal/speech"
	"coach-backend/internal/usage"
)

// Deps are the handlers and services the router mounts.
type Deps struct {
	Signer    *auth.Signer
	Health    *health.Service
	Chat      *chat.Handler
	Speech    *speech.Handler
	AudioChat *audiochat.Handler
	Usage     *usage.Handler
	// StaticDir is served under /static when objects live on local disk.
	StaticDir string
}

// voiceRoutes call the speech providers and get the stricter rate limit.
var voiceRoutes = map[string]string{
	"POST /api/v1/speech/transcribe": middleware.VoiceRateLimitGroup,
	"POST /api/v1/speech/synthesize": middleware.VoiceRateLimitGroup,
	"POST /api/v1/audio-chat":        middleware.VoiceRateLimitGroup,
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config, d Deps) *gin.Engine {
	if !config.IsDevLike(cfg.Env) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())
	if d.StaticDir != "" {
		r.Static("/static", d.StaticDir)
	}

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		body, ok := d.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, body)
	})

	authed := api.Group("")
	authed.Use(
		middleware.Auth(d.Signer),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT":                      {Rate: cfg.RateLimitPerSecond, Burst: cfg.RateLimitBurst},
				middleware.VoiceRateLimitGroup: {Rate: cfg.VoiceRateLimitPerSecond, Burst: cfg.VoiceRateLimitBurst},
			},
			GroupFor: middleware.GroupByRoute(voiceRoutes),
		}),
	)
	registerMeRoutes(authed)
	d.Chat.RegisterRoutes(authed)
	d.Speech.RegisterRoutes(authed)
	d.AudioChat.RegisterRoutes(authed)
	d.Usage.RegisterRoutes(authed)
	if config.IsDevLike(cfg.Env) {
		d.Usage.RegisterDevRoutes(authed.Group("/dev"))
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
