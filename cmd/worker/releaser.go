package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/paktel/notify-gateway/internal/channelcfg"
	"github.com/paktel/notify-gateway/internal/credit"
	"github.com/paktel/notify-gateway/internal/db"
	"github.com/paktel/notify-gateway/internal/logger"
	"github.com/paktel/notify-gateway/internal/metrics"
	"github.com/paktel/notify-gateway/internal/release"
	"github.com/paktel/notify-gateway/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var releaserCmd = &cobra.Command{
	Use:   "releaser",
	Short: "Run the periodic credit release sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.Named("releaser")

		metrics.MustRegister(prometheus.DefaultRegisterer)

		dbx, err := connectMySQL(cfg)
		if err != nil {
			return err
		}
		defer dbx.Close()

		rds, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = rds.Close() }()

		outboxRepo := repository.NewOutboxRepository(dbx)
		jobsRepo := repository.NewJobsRepository(dbx, outboxRepo)
		creditsRepo := repository.NewCreditsRepository(dbx)
		admitRepo := repository.NewAdmitRepository(dbx, jobsRepo, creditsRepo, logger.Named("admit"))
		channelCfgRepo := repository.NewChannelConfigRepository(dbx)

		resolver := channelcfg.NewResolver(channelCfgRepo, channelcfg.NewRedisCache(rds),
			cfg.ChannelCache.TTL, logger.Named("channelcfg"))
		gate := credit.NewGate(resolver, admitRepo, credit.Pricing{
			Email:    cfg.Pricing.Email,
			SMS:      cfg.Pricing.SMS,
			WhatsApp: cfg.Pricing.WhatsApp,
			InApp:    cfg.Pricing.InApp,
		}, logger.Named("credit"))
		scheduler := release.NewScheduler(jobsRepo, gate, log)

		schedule := cfg.Release.Schedule
		if schedule == "" {
			schedule = "@every 1m"
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c := cron.New()
		_, err = c.AddFunc(schedule, func() {
			released, err := scheduler.ReleaseAll(ctx, cfg.Release.MaxPerTenant)
			if err != nil {
				log.Error("release sweep failed", zap.Error(err))
				return
			}
			if released > 0 {
				log.Info("release sweep done", zap.Int("released", released))
			}
		})
		if err != nil {
			return fmt.Errorf("invalid release schedule %q: %w", schedule, err)
		}

		log.Info("releaser starting", zap.String("schedule", schedule))
		c.Start()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info("signal received, stopping", zap.String("signal", sig.String()))

		cancel()
		<-c.Stop().Done()
		return nil
	},
}
