package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/mathemusician/church-volunteers/internal/app"
	"github.com/mathemusician/church-volunteers/internal/config"
	"github.com/mathemusician/church-volunteers/internal/http/middleware"
	"github.com/mathemusician/church-volunteers/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

type handlers struct {
	svc *app.Services
	own owner
	now func() time.Time
}

// NewServer wires routes over the assembled services. rds may be nil, which
// disables rate limiting.
func NewServer(cfg config.Config, svc *app.Services, rds *redis.Client) *Server {
	h := &handlers{svc: svc, own: owner{repos: svc.Repos}, now: time.Now}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(echoLevel(cfg.App.LogLevel))
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	limit := func(prefix string) echo.MiddlewareFunc {
		return middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Redis:          rds,
			RPS:            cfg.RateLimit.RPS,
			KeyPrefix:      prefix,
			Window:         time.Second,
			RetryAfterHint: true,
		})
	}

	admin := e.Group("/v1/admin", middleware.APIKeyMiddleware(svc.Repos.Organizations), limit("rl:admin:"))
	admin.POST("/templates/:id/generate", h.generate)
	admin.POST("/reminders", h.sendReminders)
	admin.GET("/lists/:id/reminders", h.reminderStatuses)
	admin.POST("/lists/:id/signups", h.adminRegister)
	admin.DELETE("/signups/:id", h.adminCancel)
	admin.GET("/conversations", h.conversations)
	admin.GET("/conversations/:phone", h.thread)
	admin.POST("/conversations/:phone/read", h.markRead)
	admin.GET("/reports/messages", h.listMessages)

	cron := e.Group("/v1/cron", middleware.CronSecretMiddleware(cfg.Cron.Secret))
	cron.POST("/maintain-instances", h.maintainInstances)

	public := e.Group("/v1", limit("rl:public:"))
	public.POST("/lists/:id/signups", h.register)
	public.GET("/lists/:id/siblings", h.siblings)
	public.GET("/manage/:token", h.manageOverview)
	public.POST("/manage/:token/cancel", h.manageCancel)
	public.GET("/sms/webhook", webhookProbe)
	public.POST("/sms/webhook", h.smsWebhook)

	return &Server{e: e}
}

func echoLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	}
	return log.INFO
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }

func (s *Server) Start(addr string) error {
	s.e.Logger.Infof("http: listening on %s", addr)
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
