package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/paktel/notify-gateway/internal/backoff"
	"github.com/paktel/notify-gateway/internal/dispatcher"
	"github.com/paktel/notify-gateway/internal/logger"
	"github.com/paktel/notify-gateway/internal/metrics"
	"github.com/paktel/notify-gateway/internal/model"
	"github.com/paktel/notify-gateway/internal/render"
	"github.com/paktel/notify-gateway/internal/repository"
	"github.com/paktel/notify-gateway/internal/sender"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dispatcherChannels string

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run the job dispatch worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.Named("dispatcher")

		metrics.MustRegister(prometheus.DefaultRegisterer)

		dbx, err := connectMySQL(cfg)
		if err != nil {
			return err
		}
		defer dbx.Close()

		// Channel set: --channels flag narrows what this pool services.
		var channels []model.Channel
		if dispatcherChannels != "" {
			for _, p := range strings.Split(dispatcherChannels, ",") {
				ch, ok := model.ParseChannel(strings.TrimSpace(p))
				if !ok {
					return fmt.Errorf("unknown channel %q", p)
				}
				channels = append(channels, ch)
			}
		}

		senders := make([]sender.Sender, 0, len(cfg.Senders))
		for _, sc := range cfg.Senders {
			if !sc.Enabled {
				continue
			}
			ch, ok := model.ParseChannel(sc.Channel)
			if !ok {
				return fmt.Errorf("sender config: unknown channel %q", sc.Channel)
			}
			senders = append(senders, sender.NewHTTPSender(sender.HTTPSenderOpts{
				Channel:       ch,
				BaseURL:       sc.BaseURL,
				Path:          sc.Path,
				TimeoutMs:     sc.TimeoutMs,
				Async:         sc.Async,
				FailThreshold: sc.Breaker.FailThreshold,
				OpenForMs:     sc.Breaker.OpenForMs,
			}))
		}
		if len(senders) == 0 {
			return fmt.Errorf("no senders enabled in config")
		}

		outboxRepo := repository.NewOutboxRepository(dbx)
		jobsRepo := repository.NewJobsRepository(dbx, outboxRepo)
		templatesRepo := repository.NewTemplatesRepository(dbx)
		heartbeatsRepo := repository.NewHeartbeatsRepository(dbx)

		pool := dispatcher.NewPool(
			jobsRepo,
			sender.NewRegistry(senders...),
			render.NewRenderer(templatesRepo),
			backoff.NewExponential(cfg.Dispatcher.Backoff.Base, cfg.Dispatcher.Backoff.Max),
			heartbeatsRepo,
			dispatcher.Config{
				Workers:           cfg.Dispatcher.WorkerCount,
				Channels:          channels,
				ClaimBatch:        cfg.Dispatcher.ClaimBatch,
				PollInterval:      cfg.Dispatcher.PollInterval,
				SendTimeout:       cfg.Dispatcher.SendTimeout,
				HeartbeatInterval: cfg.Dispatcher.HeartbeatInterval,
				ReapInterval:      cfg.Dispatcher.Reaper.Interval,
				StaleAfter:        cfg.Dispatcher.Reaper.StaleAfter,
				ReapBatch:         cfg.Dispatcher.Reaper.Batch,
			},
			log,
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			log.Info("signal received, draining workers", zap.String("signal", sig.String()))
			cancel()
		}()

		log.Info("dispatcher starting",
			zap.Int("workers", cfg.Dispatcher.WorkerCount),
			zap.String("channels", dispatcherChannels))
		if err := pool.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

func init() {
	dispatcherCmd.Flags().StringVar(&dispatcherChannels, "channels", "",
		"comma-separated channel list to service (default: all)")
}
