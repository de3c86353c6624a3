// Package worker hosts the long-running consumers started by the
// worker CLI. Ingest is the Kafka enqueue lane: upstream producers
// publish enqueue envelopes instead of calling the HTTP API, and this
// worker funnels them through the same idempotent create path.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/paktel/notify-gateway/internal/kafka"
	"github.com/paktel/notify-gateway/internal/model"
	"github.com/paktel/notify-gateway/internal/service/queue"
	"go.uber.org/zap"
)

// Enqueuer is the ingest worker's slice of the enqueue service.
type Enqueuer interface {
	CreateJob(ctx context.Context, req queue.CreateJobRequest) (*model.Job, error)
}

// Ingest consumes enqueue envelopes and creates jobs. Malformed or
// invalid envelopes are committed and skipped (poison messages must not
// wedge the partition); infrastructure failures leave the offset alone
// so the message is retried.
type Ingest struct {
	Consumer *kafka.Consumer
	Jobs     Enqueuer
	Log      *zap.Logger

	Workers int
}

func NewIngest(consumer *kafka.Consumer, jobs Enqueuer, workers int, log *zap.Logger) *Ingest {
	if workers <= 0 {
		workers = 8
	}
	return &Ingest{Consumer: consumer, Jobs: jobs, Log: log, Workers: workers}
}

// Run blocks until ctx is cancelled.
func (w *Ingest) Run(ctx context.Context) error {
	msgCh := make(chan kafka.Message, w.Workers*2)

	go func() {
		defer close(msgCh)
		for {
			m, err := w.Consumer.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.Log.Warn("kafka fetch failed", zap.Error(err))
				time.Sleep(200 * time.Millisecond)
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	done := make(chan struct{})
	for i := 0; i < w.Workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for m := range msgCh {
				w.handle(ctx, m)
			}
		}()
	}

	for i := 0; i < w.Workers; i++ {
		<-done
	}
	return ctx.Err()
}

func (w *Ingest) handle(ctx context.Context, m kafka.Message) {
	var env model.EnqueueEnvelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		w.Log.Warn("skipping undecodable envelope",
			zap.Int64("offset", m.Offset),
			zap.Int("partition", m.Partition),
			zap.Error(err))
		w.commit(ctx, m)
		return
	}

	req := queue.CreateJobRequest{
		TenantID:          env.TenantID,
		IsLive:            env.IsLive,
		EventTypeCode:     env.EventTypeCode,
		Channel:           env.Channel.String(),
		SourceTypeCode:    env.SourceTypeCode,
		SourceID:          env.SourceID,
		RecipientName:     env.RecipientName,
		RecipientContact:  env.RecipientContact,
		TemplateKey:       env.TemplateKey,
		TemplateVariables: env.TemplateVariables,
		Metadata:          env.Metadata,
		PerformedByType:   env.PerformedByType,
		PerformedByID:     env.PerformedByID,
		PerformedByName:   env.PerformedByName,
	}

	job, err := w.Jobs.CreateJob(ctx, req)
	switch {
	case err == nil:
		w.Log.Debug("envelope ingested",
			zap.String("job_id", job.ID),
			zap.String("status", job.Status.String()))
		w.commit(ctx, m)
	case errors.Is(err, model.ErrValidation):
		w.Log.Warn("skipping invalid envelope",
			zap.Int64("offset", m.Offset),
			zap.String("source_id", env.SourceID),
			zap.Error(err))
		w.commit(ctx, m)
	default:
		// Likely the database: leave uncommitted so the group replays it.
		w.Log.Error("ingest failed, will retry", zap.Error(err))
	}
}

func (w *Ingest) commit(ctx context.Context, m kafka.Message) {
	if err := w.Consumer.Commit(ctx, m); err != nil && ctx.Err() == nil {
		w.Log.Error("offset commit failed", zap.Error(err))
	}
}
