// Package release re-admits parked jobs once credits become available.
// It shares the credit gate's atomic admit path, so a release pass can
// never double-spend what ordinary admission already reserved.
package release

import (
	"context"
	"fmt"

	"github.com/paktel/notify-gateway/internal/credit"
	"github.com/paktel/notify-gateway/internal/metrics"
	"github.com/paktel/notify-gateway/internal/model"
	"go.uber.org/zap"
)

// Admitter is the credit gate surface the scheduler needs.
type Admitter interface {
	Admit(ctx context.Context, job *model.Job) (credit.Outcome, error)
}

// WaitingStore reads parked jobs.
type WaitingStore interface {
	ListWaiting(ctx context.Context, tenantID int64, channel model.Channel, limit int) ([]model.Job, error)
	CountWaiting(ctx context.Context, tenantID int64, channel model.Channel) (int64, error)
	TenantsWithWaiting(ctx context.Context) ([]int64, error)
}

// Result of one release pass.
type Result struct {
	ReleasedCount int      `json:"released_count"`
	ReleasedIDs   []string `json:"released_ids"`
}

type Scheduler struct {
	store WaitingStore
	gate  Admitter
	log   *zap.Logger
}

func NewScheduler(store WaitingStore, gate Admitter, log *zap.Logger) *Scheduler {
	return &Scheduler{store: store, gate: gate, log: log}
}

// Release promotes up to maxRelease parked jobs for the tenant, oldest
// first. channel narrows the scan ("" or "all" means every channel).
// The pass stops as soon as the balance runs dry again; calling with
// zero available credit is a no-op, not an error.
func (s *Scheduler) Release(ctx context.Context, tenantID int64, channel string, maxRelease int) (Result, error) {
	if maxRelease <= 0 {
		maxRelease = 50
	}

	var ch model.Channel
	if channel != "" && channel != "all" {
		parsed, ok := model.ParseChannel(channel)
		if !ok {
			return Result{}, fmt.Errorf("%w: unknown channel %q", model.ErrValidation, channel)
		}
		ch = parsed
	}

	res := Result{ReleasedIDs: []string{}}
	// Over-fetch a little so cancelled jobs (channel disabled while
	// parked) do not eat into the promotion budget.
	jobs, err := s.store.ListWaiting(ctx, tenantID, ch, maxRelease*2)
	if err != nil {
		return Result{}, fmt.Errorf("list waiting: %w", err)
	}

	for i := range jobs {
		if res.ReleasedCount >= maxRelease {
			break
		}
		job := &jobs[i]

		out, err := s.gate.Admit(ctx, job)
		if err != nil {
			return res, fmt.Errorf("admit %s: %w", job.ID, err)
		}
		switch out {
		case credit.OutcomeQueued:
			res.ReleasedCount++
			res.ReleasedIDs = append(res.ReleasedIDs, job.ID)
			metrics.JobsTotal.WithLabelValues("released", job.Channel.String()).Inc()
		case credit.OutcomeParked:
			// Balance exhausted again: later jobs are younger, stop.
			return res, nil
		case credit.OutcomeCancelled:
			// Policy skip, keep scanning.
		}
	}
	return res, nil
}

// WaitingCount reports how many jobs are parked for the tenant.
func (s *Scheduler) WaitingCount(ctx context.Context, tenantID int64, channel string) (int64, error) {
	var ch model.Channel
	if channel != "" && channel != "all" {
		parsed, ok := model.ParseChannel(channel)
		if !ok {
			return 0, fmt.Errorf("%w: unknown channel %q", model.ErrValidation, channel)
		}
		ch = parsed
	}
	return s.store.CountWaiting(ctx, tenantID, ch)
}

// ReleaseAll runs one bounded pass for every tenant that has parked
// jobs. Used by the periodic sweep; failures on one tenant do not stop
// the others.
func (s *Scheduler) ReleaseAll(ctx context.Context, maxPerTenant int) (int, error) {
	tenants, err := s.store.TenantsWithWaiting(ctx)
	if err != nil {
		return 0, fmt.Errorf("tenants with waiting: %w", err)
	}

	total := 0
	for _, id := range tenants {
		res, err := s.Release(ctx, id, "all", maxPerTenant)
		if err != nil {
			s.log.Warn("release pass failed", zap.Int64("tenant_id", id), zap.Error(err))
			continue
		}
		total += res.ReleasedCount
	}
	return total, nil
}
