// Package dispatcher runs the worker pool that claims queued jobs,
// renders them and hands them to a channel sender, recording the
// outcome. Claiming is the only mutually exclusive step: a conditional
// update on the job row that exactly one racing worker wins.
package dispatcher

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/paktel/notify-gateway/internal/backoff"
	"github.com/paktel/notify-gateway/internal/metrics"
	"github.com/paktel/notify-gateway/internal/model"
	"github.com/paktel/notify-gateway/internal/sender"
	"go.uber.org/zap"
)

// JobStore is the dispatcher's slice of the job repository.
type JobStore interface {
	NextQueued(ctx context.Context, channels []model.Channel, limit int) ([]model.Job, error)
	Claim(ctx context.Context, id, workerID string) (bool, error)
	MarkSent(ctx context.Context, id string, attempt int, completed bool) error
	// Requeue re-checks cancel_requested under the row lock and reports
	// false when the retry was suppressed and the job terminated.
	Requeue(ctx context.Context, id string, attempt int, nextAt time.Time, errMsg string) (bool, error)
	MarkFailed(ctx context.Context, id string, attempt int, errMsg string) error
	ReapStuck(ctx context.Context, staleAfter time.Duration, limit int) (int64, error)
}

// Renderer builds the outbound message body.
type Renderer interface {
	Render(ctx context.Context, job *model.Job) (string, error)
}

// Heartbeats persists worker liveness. Delete removes the row when a
// worker drains cleanly; crashed workers just go stale.
type Heartbeats interface {
	Upsert(ctx context.Context, hb model.WorkerHeartbeat) error
	Delete(ctx context.Context, workerID string) error
}

type Config struct {
	Workers      int
	Channels     []model.Channel
	ClaimBatch   int
	PollInterval time.Duration
	SendTimeout  time.Duration

	HeartbeatInterval time.Duration
	ReapInterval      time.Duration
	StaleAfter        time.Duration
	ReapBatch         int
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if len(c.Channels) == 0 {
		c.Channels = model.Channels()
	}
	if c.ClaimBatch <= 0 {
		c.ClaimBatch = 16
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.ReapBatch <= 0 {
		c.ReapBatch = 100
	}
}

type Pool struct {
	store    JobStore
	senders  *sender.Registry
	renderer Renderer
	strategy backoff.Strategy
	hb       Heartbeats
	cfg      Config
	log      *zap.Logger
}

func NewPool(store JobStore, senders *sender.Registry, renderer Renderer, strategy backoff.Strategy, hb Heartbeats, cfg Config, log *zap.Logger) *Pool {
	cfg.defaults()
	return &Pool{
		store:    store,
		senders:  senders,
		renderer: renderer,
		strategy: strategy,
		hb:       hb,
		cfg:      cfg,
		log:      log,
	}
}

// Run starts the workers and the reaper and blocks until ctx ends.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for i := 0; i < p.cfg.Workers; i++ {
		w := newWorker(p)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runReaper(ctx)
	}()

	wg.Wait()
	return ctx.Err()
}

// runReaper returns jobs stuck in sending to the queue. A worker that
// crashed mid-send leaves its claim behind; past StaleAfter we assume
// it is dead.
func (p *Pool) runReaper(ctx context.Context) {
	tick := time.NewTicker(p.cfg.ReapInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			n, err := p.store.ReapStuck(ctx, p.cfg.StaleAfter, p.cfg.ReapBatch)
			if err != nil {
				p.log.Warn("reap pass failed", zap.Error(err))
				continue
			}
			if n > 0 {
				p.log.Warn("reaped stuck jobs back to queue", zap.Int64("count", n))
				metrics.JobsTotal.WithLabelValues("reaped", "all").Add(float64(n))
			}
		}
	}
}

// worker is one polling goroutine with its own identity and counters.
type worker struct {
	pool *Pool
	id   string

	processed  atomic.Int64
	failed     atomic.Int64
	currentJob atomic.Value // string
}

func newWorker(p *Pool) *worker {
	w := &worker{pool: p, id: uuid.NewString()}
	w.currentJob.Store("")
	return w
}

func (w *worker) run(ctx context.Context) {
	poll := time.NewTicker(w.pool.cfg.PollInterval)
	defer poll.Stop()
	hb := time.NewTicker(w.pool.cfg.HeartbeatInterval)
	defer hb.Stop()

	w.heartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			w.deregister()
			return
		case <-hb.C:
			w.heartbeat(ctx)
		case <-poll.C:
			w.poll(ctx)
		}
	}
}

// deregister removes the heartbeat row on clean shutdown. The run ctx
// is already done here, so the delete gets its own short deadline.
func (w *worker) deregister() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := w.pool.hb.Delete(ctx, w.id); err != nil {
		w.pool.log.Debug("heartbeat delete failed", zap.String("worker_id", w.id), zap.Error(err))
	}
}

func (w *worker) heartbeat(ctx context.Context) {
	names := make([]string, 0, len(w.pool.cfg.Channels))
	for _, c := range w.pool.cfg.Channels {
		names = append(names, c.String())
	}

	cur := sql.NullString{}
	if id, _ := w.currentJob.Load().(string); id != "" {
		cur = sql.NullString{String: id, Valid: true}
	}

	err := w.pool.hb.Upsert(ctx, model.WorkerHeartbeat{
		WorkerID:      w.id,
		Channels:      strings.Join(names, ","),
		JobsProcessed: w.processed.Load(),
		JobsFailed:    w.failed.Load(),
		CurrentJobID:  cur,
	})
	if err != nil {
		w.pool.log.Debug("heartbeat upsert failed", zap.String("worker_id", w.id), zap.Error(err))
	}
}

// poll grabs a batch of candidates and races other workers for each.
// Losing a claim is normal; the loser just moves to the next candidate.
func (w *worker) poll(ctx context.Context) {
	jobs, err := w.pool.store.NextQueued(ctx, w.pool.cfg.Channels, w.pool.cfg.ClaimBatch)
	if err != nil {
		w.pool.log.Warn("poll failed", zap.String("worker_id", w.id), zap.Error(err))
		return
	}

	for i := range jobs {
		if ctx.Err() != nil {
			return
		}
		job := jobs[i]

		claimed, err := w.pool.store.Claim(ctx, job.ID, w.id)
		if err != nil {
			w.pool.log.Warn("claim failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if !claimed {
			metrics.ClaimConflicts.Inc()
			continue
		}

		w.currentJob.Store(job.ID)
		w.process(ctx, &job)
		w.currentJob.Store("")
		w.heartbeat(ctx)
	}
}

func (w *worker) process(ctx context.Context, job *model.Job) {
	log := w.pool.log.With(
		zap.String("worker_id", w.id),
		zap.String("job_id", job.ID),
		zap.String("channel", job.Channel.String()),
	)

	msg, err := w.pool.renderer.Render(ctx, job)
	if err != nil {
		// Bad input will not fix itself: render failures are terminal
		// and do not consume a send attempt.
		w.fail(ctx, job, job.AttemptCount, "render: "+err.Error(), log)
		return
	}

	snd, ok := w.pool.senders.ForChannel(job.Channel)
	if !ok {
		w.fail(ctx, job, job.AttemptCount, "no sender registered for channel "+job.Channel.String(), log)
		return
	}

	attempt := job.AttemptCount + 1

	sctx, cancel := context.WithTimeout(ctx, w.pool.cfg.SendTimeout)
	start := time.Now()
	res, err := snd.Send(sctx, job.RecipientContact, msg)
	cancel()
	metrics.SendDuration.WithLabelValues(job.Channel.String()).Observe(time.Since(start).Seconds())

	if err == nil {
		completed := !res.AwaitsConfirmation
		if serr := w.pool.store.MarkSent(ctx, job.ID, attempt, completed); serr != nil {
			log.Error("mark sent failed", zap.Error(serr))
			w.failed.Add(1)
			return
		}
		stage := "sent"
		if completed {
			stage = "completed"
		}
		metrics.JobsTotal.WithLabelValues(stage, job.Channel.String()).Inc()
		w.processed.Add(1)
		log.Info("job dispatched", zap.Int("attempt", attempt), zap.Bool("completed", completed))
		return
	}

	if sender.IsPermanent(err) || job.CancelRequested {
		w.fail(ctx, job, attempt, err.Error(), log)
		return
	}

	// Transient: retry with backoff while attempts remain. A timed-out
	// send lands here too. The cancel flag is checked again inside
	// Requeue: the snapshot above predates the claim, so a cancel that
	// landed during the send is only visible to the store.
	if attempt < job.MaxAttempts {
		nextAt := time.Now().Add(w.pool.strategy.Delay(attempt))
		retried, rerr := w.pool.store.Requeue(ctx, job.ID, attempt, nextAt, err.Error())
		if rerr != nil {
			log.Error("requeue failed", zap.Error(rerr))
			w.failed.Add(1)
			return
		}
		if !retried {
			metrics.JobsTotal.WithLabelValues("failed", job.Channel.String()).Inc()
			w.failed.Add(1)
			log.Warn("cancel requested during send, retry suppressed",
				zap.Int("attempt", attempt), zap.Error(err))
			return
		}
		metrics.JobsTotal.WithLabelValues("requeued", job.Channel.String()).Inc()
		log.Warn("transient send failure, requeued",
			zap.Int("attempt", attempt),
			zap.Time("next_attempt_at", nextAt),
			zap.Error(err))
		return
	}

	w.fail(ctx, job, attempt, err.Error(), log)
}

func (w *worker) fail(ctx context.Context, job *model.Job, attempt int, msg string, log *zap.Logger) {
	if err := w.pool.store.MarkFailed(ctx, job.ID, attempt, msg); err != nil && !errors.Is(err, model.ErrConflict) {
		log.Error("mark failed errored", zap.Error(err))
	}
	metrics.JobsTotal.WithLabelValues("failed", job.Channel.String()).Inc()
	w.failed.Add(1)
	log.Warn("job failed", zap.Int("attempt", attempt), zap.String("reason", msg))
}
