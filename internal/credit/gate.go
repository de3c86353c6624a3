// Package credit gates job admission on the tenant's credit balance.
// The actual debit+transition atomicity lives in the store; the gate is
// the policy layer on top of it.
package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/paktel/notify-gateway/internal/metrics"
	"github.com/paktel/notify-gateway/internal/model"
	"go.uber.org/zap"
)

// Outcome of one admission attempt.
type Outcome int

const (
	OutcomeQueued Outcome = iota
	OutcomeParked
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeQueued:
		return "queued"
	case OutcomeParked:
		return "parked"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// ChannelConfig resolves whether a channel is switched on for a
// tenant/source pair.
type ChannelConfig interface {
	Enabled(ctx context.Context, tenantID int64, sourceType string, ch model.Channel) (bool, error)
}

// Store is the atomic admission path. AdmitJob must debit and promote
// to queued in one unit, returning model.ErrInsufficientCredits without
// debiting when the balance is short.
type Store interface {
	AdmitJob(ctx context.Context, job *model.Job, price int64) error
	ParkJob(ctx context.Context, jobID string) error
	CancelJob(ctx context.Context, jobID, reason string) error
}

// Pricing maps a channel to its per-message credit cost.
type Pricing struct {
	Email    int64
	SMS      int64
	WhatsApp int64
	InApp    int64
}

func (p Pricing) Of(ch model.Channel) int64 {
	switch ch {
	case model.ChannelEmail:
		return p.Email
	case model.ChannelSMS:
		return p.SMS
	case model.ChannelWhatsApp:
		return p.WhatsApp
	case model.ChannelInApp:
		return p.InApp
	}
	return 0
}

type Gate struct {
	cfg     ChannelConfig
	store   Store
	pricing Pricing
	log     *zap.Logger
}

func NewGate(cfg ChannelConfig, store Store, pricing Pricing, log *zap.Logger) *Gate {
	return &Gate{cfg: cfg, store: store, pricing: pricing, log: log}
}

// Admit decides what happens to a created (or parked) job:
//   - channel disabled for the tenant/source: cancelled, a policy skip,
//     never an error and never a credit check;
//   - balance short: parked as waiting_credits, nothing debited;
//   - otherwise: debited and queued atomically.
//
// Release passes call the same method; there is no separate path.
func (g *Gate) Admit(ctx context.Context, job *model.Job) (Outcome, error) {
	enabled, err := g.cfg.Enabled(ctx, job.TenantID, job.SourceTypeCode, job.Channel)
	if err != nil {
		return 0, fmt.Errorf("channel config: %w", err)
	}
	if !enabled {
		if err := g.store.CancelJob(ctx, job.ID, "channel disabled"); err != nil {
			return 0, fmt.Errorf("cancel disabled-channel job: %w", err)
		}
		metrics.JobsTotal.WithLabelValues("cancelled", job.Channel.String()).Inc()
		return OutcomeCancelled, nil
	}

	price := g.pricing.Of(job.Channel)
	err = g.store.AdmitJob(ctx, job, price)
	if errors.Is(err, model.ErrInsufficientCredits) {
		if perr := g.store.ParkJob(ctx, job.ID); perr != nil {
			return 0, fmt.Errorf("park job: %w", perr)
		}
		g.log.Info("job parked: insufficient credits",
			zap.String("job_id", job.ID),
			zap.Int64("tenant_id", job.TenantID),
			zap.Bool("is_live", job.IsLive),
			zap.Int64("price", price))
		metrics.JobsTotal.WithLabelValues("parked", job.Channel.String()).Inc()
		return OutcomeParked, nil
	}
	if err != nil {
		return 0, fmt.Errorf("admit job: %w", err)
	}

	metrics.JobsTotal.WithLabelValues("queued", job.Channel.String()).Inc()
	return OutcomeQueued, nil
}
