// Package http is the API surface: tenant-facing enqueue/status/cancel
// and credit endpoints plus the admin read models, all behind API-key
// auth and a per-tenant rate limit.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/paktel/notify-gateway/internal/channelcfg"
	"github.com/paktel/notify-gateway/internal/config"
	"github.com/paktel/notify-gateway/internal/credit"
	"github.com/paktel/notify-gateway/internal/http/middleware"
	"github.com/paktel/notify-gateway/internal/logger"
	"github.com/paktel/notify-gateway/internal/metrics"
	"github.com/paktel/notify-gateway/internal/release"
	"github.com/paktel/notify-gateway/internal/repository"
	"github.com/paktel/notify-gateway/internal/service/admin"
	"github.com/paktel/notify-gateway/internal/service/queue"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	tenantsRepo := repository.NewTenantsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	jobsRepo := repository.NewJobsRepository(mysqlDB, outboxRepo)
	creditsRepo := repository.NewCreditsRepository(mysqlDB)
	admitRepo := repository.NewAdmitRepository(mysqlDB, jobsRepo, creditsRepo, logger.Named("admit"))
	channelCfgRepo := repository.NewChannelConfigRepository(mysqlDB)
	statsRepo := repository.NewStatsRepository(mysqlDB)
	heartbeatsRepo := repository.NewHeartbeatsRepository(mysqlDB)

	// repos (ClickHouse)
	archiveRepo := repository.NewArchiveRepository(clickhouseDB)

	// services
	resolver := channelcfg.NewResolver(channelCfgRepo, channelcfg.NewRedisCache(rds), cfg.ChannelCache.TTL, logger.Named("channelcfg"))
	gate := credit.NewGate(resolver, admitRepo, credit.Pricing{
		Email:    cfg.Pricing.Email,
		SMS:      cfg.Pricing.SMS,
		WhatsApp: cfg.Pricing.WhatsApp,
		InApp:    cfg.Pricing.InApp,
	}, logger.Named("credit"))
	queueSvc := queue.New(jobsRepo, gate, cfg.Dispatcher.MaxAttempts, logger.Named("queue"))
	scheduler := release.NewScheduler(jobsRepo, gate, logger.Named("release"))
	adminSvc := admin.New(statsRepo, jobsRepo, heartbeatsRepo, archiveRepo, cfg.Dispatcher.HeartbeatInterval)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	authMW := middleware.APIKey(tenantsRepo)
	rlMW := middleware.RateLimit(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:tenant:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	v1 := e.Group("/v1", authMW, rlMW)

	v1.POST("/jobs", createJobHandler(queueSvc))
	v1.GET("/jobs/status", jobStatusHandler(queueSvc))
	v1.POST("/jobs/:id/cancel", cancelJobHandler(queueSvc))
	v1.POST("/jobs/:id/confirm", confirmJobHandler(queueSvc))

	v1.POST("/credits/topup", topupHandler(admitRepo, creditsRepo))
	v1.GET("/credits/waiting", waitingHandler(scheduler, creditsRepo))
	v1.POST("/credits/release", releaseHandler(scheduler))

	adm := v1.Group("/admin", middleware.AdminOnly())
	adm.GET("/queue-metrics", queueMetricsHandler(adminSvc))
	adm.GET("/tenants/stats", tenantStatsHandler(adminSvc))
	adm.GET("/events", listEventsHandler(adminSvc))
	adm.GET("/events/archive", archiveEventsHandler(adminSvc))
	adm.GET("/events/:id", eventDetailHandler(adminSvc))
	adm.GET("/workers", workerHealthHandler(adminSvc))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	logger.Named("http").Info("listening on " + addr)
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
