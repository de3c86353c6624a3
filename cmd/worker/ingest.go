package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paktel/notify-gateway/internal/channelcfg"
	"github.com/paktel/notify-gateway/internal/credit"
	"github.com/paktel/notify-gateway/internal/db"
	"github.com/paktel/notify-gateway/internal/kafka"
	"github.com/paktel/notify-gateway/internal/logger"
	"github.com/paktel/notify-gateway/internal/metrics"
	"github.com/paktel/notify-gateway/internal/repository"
	"github.com/paktel/notify-gateway/internal/service/queue"
	workerpkg "github.com/paktel/notify-gateway/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestWorkers int

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Consume enqueue envelopes from Kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.Named("ingest")

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
		queueSvc := queue.New(jobsRepo, gate, cfg.Dispatcher.MaxAttempts, logger.Named("queue"))

		consumer := kafka.NewConsumer(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.EnqueueTopic,
			GroupID:        cfg.Kafka.GroupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer func() { _ = consumer.Close() }()

		ingest := workerpkg.NewIngest(consumer, queueSvc, ingestWorkers, log)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			log.Info("signal received, stopping", zap.String("signal", sig.String()))
			cancel()
		}()

		log.Info("ingest starting",
			zap.String("topic", cfg.Kafka.EnqueueTopic),
			zap.String("group", cfg.Kafka.GroupID))
		if err := ingest.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 8, "concurrent envelope processors")
}
