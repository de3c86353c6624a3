package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/paktel/notify-gateway/internal/model"
	"go.uber.org/zap"
)

// AdmitRepository is the atomic admission path shared by first-time
// admission and release passes: the credit debit and the queued
// transition commit as a single unit or not at all. There is no faster
// path that could double-spend credit.
type AdmitRepository struct {
	db      *sqlx.DB
	jobs    *JobsRepositoryImpl
	credits CreditsRepository
	log     *zap.Logger
}

func NewAdmitRepository(db *sqlx.DB, jobs *JobsRepositoryImpl, credits CreditsRepository, log *zap.Logger) *AdmitRepository {
	return &AdmitRepository{db: db, jobs: jobs, credits: credits, log: log}
}

// AdmitJob debits `price` from the job's tenant account and promotes the
// job to queued, atomically. Returns model.ErrInsufficientCredits (and
// debits nothing) when the balance is short. A ledger row keyed
// debit-<jobID> makes re-admission of the same job a no-charge no-op.
func (r *AdmitRepository) AdmitJob(ctx context.Context, job *model.Job, price int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.credits.UpsertAccount(ctx, tx, job.TenantID, job.IsLive); err != nil {
		return fmt.Errorf("credits upsert: %w", err)
	}

	bal, err := r.credits.GetForUpdate(ctx, tx, job.TenantID, job.IsLive)
	if err != nil {
		return fmt.Errorf("credits get for update: %w", err)
	}

	idem := "debit-" + job.ID
	debited, err := r.credits.ExistsByIdem(ctx, tx, idem)
	if err != nil {
		return fmt.Errorf("ledger lookup: %w", err)
	}

	if !debited {
		if price > 0 && bal < price {
			return model.ErrInsufficientCredits
		}
		if price > 0 {
			if err := r.credits.Adjust(ctx, tx, job.TenantID, job.IsLive, -price); err != nil {
				return fmt.Errorf("credits debit: %w", err)
			}
		}
		if err := r.credits.InsertDebit(ctx, tx, job.TenantID, job.IsLive, price, job.ID, idem); err != nil {
			return fmt.Errorf("ledger debit: %w", err)
		}
	}

	if err := r.jobs.MarkQueued(ctx, tx, job.ID); err != nil {
		return fmt.Errorf("mark queued: %w", err)
	}

	if err := tx.Commit(); err != nil {
		// A commit that fails here rolls back debit and transition
		// together, so the store stays consistent, but the caller saw
		// neither outcome: surface it loudly for an operator.
		r.log.Error("admit commit failed: debit and queued transition rolled back",
			zap.String("job_id", job.ID),
			zap.Int64("tenant_id", job.TenantID),
			zap.Int64("price", price),
			zap.Error(err))
		return fmt.Errorf("admit commit: %w", err)
	}
	return nil
}

// ParkJob records that the job is waiting on credits.
func (r *AdmitRepository) ParkJob(ctx context.Context, jobID string) error {
	return r.jobs.Park(ctx, jobID)
}

// CancelJob records a policy skip (e.g. channel disabled).
func (r *AdmitRepository) CancelJob(ctx context.Context, jobID, reason string) error {
	return r.jobs.CancelPolicy(ctx, jobID, reason)
}

// TopupAccount credits a tenant balance idempotently per request key.
// Returns true when the topup was already applied.
func (r *AdmitRepository) TopupAccount(ctx context.Context, tenantID int64, isLive bool, amount int64, requestID string) (bool, error) {
	idem := "topup-" + requestID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.credits.UpsertAccount(ctx, tx, tenantID, isLive); err != nil {
		return false, fmt.Errorf("credits upsert: %w", err)
	}

	exists, err := r.credits.ExistsByIdem(ctx, tx, idem)
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	if exists {
		return true, tx.Commit()
	}

	if err := r.credits.InsertTopup(ctx, tx, tenantID, isLive, amount, idem); err != nil {
		return false, fmt.Errorf("ledger topup: %w", err)
	}
	if err := r.credits.Adjust(ctx, tx, tenantID, isLive, amount); err != nil {
		return false, fmt.Errorf("credits topup: %w", err)
	}
	return false, tx.Commit()
}
