package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/paktel/notify-gateway/internal/model"
)

// isDuplicateKey reports a MySQL 1062 unique-key violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

const jobColumns = `
	id, tenant_id, is_live, event_type_code, channel_code, source_type_code, source_id,
	status_code, priority, attempt_count, max_attempts,
	recipient_name, recipient_contact, payload, template_key, template_variables, metadata,
	performed_by_type, performed_by_id, performed_by_name,
	claimed_by, cancel_requested, next_attempt_at, error_message,
	created_at, queued_at, executed_at, completed_at, updated_at`

// JobsRepository defines persistence for the jobs table and its
// job_status_history audit trail. Every status transition is a
// conditional update guarded by the expected current status, with a
// history row written in the same transaction.
type JobsRepository interface {
	Insert(ctx context.Context, job *model.Job, envelope []byte) error
	GetByID(ctx context.Context, id string) (*model.Job, error)
	FindBySource(ctx context.Context, sourceType, sourceID string, isLive bool) (*model.Job, error)

	// Credit gate transitions. MarkQueued participates in the admit
	// transaction; Park and CancelPolicy manage their own.
	MarkQueued(ctx context.Context, tx *sqlx.Tx, id string) error
	Park(ctx context.Context, id string) error
	CancelPolicy(ctx context.Context, id, reason string) error

	// Dispatcher transitions.
	NextQueued(ctx context.Context, channels []model.Channel, limit int) ([]model.Job, error)
	Claim(ctx context.Context, id, workerID string) (bool, error)
	MarkSent(ctx context.Context, id string, attempt int, completed bool) error
	Requeue(ctx context.Context, id string, attempt int, nextAt time.Time, errMsg string) (bool, error)
	MarkFailed(ctx context.Context, id string, attempt int, errMsg string) error
	ConfirmDelivery(ctx context.Context, id string) (bool, error)
	ReapStuck(ctx context.Context, staleAfter time.Duration, limit int) (int64, error)

	// Caller-initiated cancellation.
	CancelPending(ctx context.Context, id, reason string) (bool, error)
	RequestCancel(ctx context.Context, id string) (bool, error)

	// Release scheduler reads.
	ListWaiting(ctx context.Context, tenantID int64, channel model.Channel, limit int) ([]model.Job, error)
	CountWaiting(ctx context.Context, tenantID int64, channel model.Channel) (int64, error)
	TenantsWithWaiting(ctx context.Context) ([]int64, error)
}

type JobsRepositoryImpl struct {
	db     *sqlx.DB
	outbox OutboxRepository
}

func NewJobsRepository(db *sqlx.DB, outbox OutboxRepository) *JobsRepositoryImpl {
	return &JobsRepositoryImpl{db: db, outbox: outbox}
}

var _ JobsRepository = (*JobsRepositoryImpl)(nil)

func (r *JobsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, jobID string, from, to model.JobStatus, note string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO job_status_history (job_id, from_status, to_status, note, created_at)
		VALUES (?, ?, ?, ?, NOW())
	`, jobID, from.String(), to.String(), note)
	return err
}

// transition performs a guarded status update plus its history row.
// Returns (false, nil) when the guard does not match anymore.
func (r *JobsRepositoryImpl) transition(ctx context.Context, tx *sqlx.Tx, id string, from []model.JobStatus, to model.JobStatus, note, setClause string, args ...any) (bool, error) {
	moved := false
	err := r.withTx(ctx, tx, func(t *sqlx.Tx) error {
		var cur string
		err := t.QueryRowxContext(ctx,
			`SELECT status_code FROM jobs WHERE id = ? FOR UPDATE`, id,
		).Scan(&cur)
		if err == sql.ErrNoRows {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}

		ok := false
		for _, f := range from {
			if model.JobStatus(cur) == f {
				ok = true
				break
			}
		}
		if !ok {
			return nil
		}

		q := `UPDATE jobs SET status_code = ?, updated_at = NOW()`
		if setClause != "" {
			q += ", " + setClause
		}
		q += ` WHERE id = ?`
		allArgs := append([]any{to.String()}, args...)
		allArgs = append(allArgs, id)
		if _, err := t.ExecContext(ctx, q, allArgs...); err != nil {
			return err
		}
		if err := insertHistory(ctx, t, id, model.JobStatus(cur), to, note); err != nil {
			return err
		}
		moved = true
		return nil
	})
	return moved, err
}

// Insert writes a new job with status=created, its first history row and
// the outbox envelope, in a single transaction.
func (r *JobsRepositoryImpl) Insert(ctx context.Context, job *model.Job, envelope []byte) error {
	const q = `
		INSERT INTO jobs
			(id, tenant_id, is_live, event_type_code, channel_code, source_type_code, source_id,
			 status_code, priority, attempt_count, max_attempts,
			 recipient_name, recipient_contact, payload, template_key, template_variables, metadata,
			 performed_by_type, performed_by_id, performed_by_name,
			 created_at, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?,
			 'created', ?, 0, ?,
			 ?, ?, ?, ?, ?, ?,
			 ?, ?, ?,
			 NOW(), NOW())
	`
	return r.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			job.ID, job.TenantID, job.IsLive, job.EventTypeCode, job.Channel.String(),
			job.SourceTypeCode, job.SourceID,
			job.Priority, job.MaxAttempts,
			job.RecipientName, job.RecipientContact, job.Payload, job.TemplateKey,
			job.TemplateVariables, job.Metadata,
			job.PerformedByType, job.PerformedByID, job.PerformedByName,
		)
		if isDuplicateKey(err) {
			return model.ErrDuplicate
		}
		if err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, job.ID, model.StatusCreated, model.StatusCreated, "job created"); err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, OutboxEvent{
			Aggregate:   "job",
			AggregateID: job.ID,
			Topic:       TopicJobs,
			Payload:     envelope,
		})
	})
}

func (r *JobsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	err := r.db.GetContext(ctx, &j, `SELECT `+jobColumns+` FROM jobs WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// FindBySource resolves the idempotency key (source_type, source_id, is_live).
// A source can accumulate terminal rows from re-enqueues, so the live
// row wins over failed/cancelled ones, newest first among terminals.
// Returns nil when no job exists.
func (r *JobsRepositoryImpl) FindBySource(ctx context.Context, sourceType, sourceID string, isLive bool) (*model.Job, error) {
	var j model.Job
	err := r.db.GetContext(ctx, &j, `
		SELECT `+jobColumns+`
		  FROM jobs
		 WHERE source_type_code = ? AND source_id = ? AND is_live = ?
		 ORDER BY (status_code IN ('failed', 'cancelled')) ASC, created_at DESC
		 LIMIT 1
	`, sourceType, sourceID, isLive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// MarkQueued promotes created/waiting_credits to queued. It runs inside
// the admit transaction so the credit debit and the status flip commit
// as one unit.
func (r *JobsRepositoryImpl) MarkQueued(ctx context.Context, tx *sqlx.Tx, id string) error {
	moved, err := r.transition(ctx, tx, id,
		[]model.JobStatus{model.StatusCreated, model.StatusWaitingCredits},
		model.StatusQueued, "credits debited",
		"queued_at = NOW(), next_attempt_at = NULL")
	if err != nil {
		return err
	}
	if !moved {
		return model.ErrConflict
	}
	return nil
}

// Park moves a created job to waiting_credits. Already-parked jobs are a
// no-op so release passes can re-run admit safely.
func (r *JobsRepositoryImpl) Park(ctx context.Context, id string) error {
	_, err := r.transition(ctx, nil, id,
		[]model.JobStatus{model.StatusCreated},
		model.StatusWaitingCredits, "insufficient credits", "")
	return err
}

// CancelPolicy cancels a job the channel config disallows. Not an error
// path: the skip is recorded on the job itself.
func (r *JobsRepositoryImpl) CancelPolicy(ctx context.Context, id, reason string) error {
	_, err := r.transition(ctx, nil, id,
		[]model.JobStatus{model.StatusCreated, model.StatusWaitingCredits},
		model.StatusCancelled, reason,
		"error_message = ?, completed_at = NOW()", reason)
	return err
}

// NextQueued returns claim candidates: eligible queued jobs for the given
// channels, most urgent first, oldest first within a priority.
func (r *JobsRepositoryImpl) NextQueued(ctx context.Context, channels []model.Channel, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 16
	}
	chans := make([]string, 0, len(channels))
	for _, c := range channels {
		chans = append(chans, c.String())
	}
	q, args, err := sqlx.In(`
		SELECT `+jobColumns+`
		  FROM jobs
		 WHERE status_code = 'queued'
		   AND channel_code IN (?)
		   AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
		 ORDER BY priority ASC, created_at ASC
		 LIMIT ?
	`, chans, limit)
	if err != nil {
		return nil, err
	}
	q = r.db.Rebind(q)

	var jobs []model.Job
	if err := r.db.SelectContext(ctx, &jobs, q, args...); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Claim atomically moves a queued job to sending on behalf of workerID.
// Exactly one racing worker observes true.
func (r *JobsRepositoryImpl) Claim(ctx context.Context, id, workerID string) (bool, error) {
	claimed := false
	err := r.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs
			   SET status_code = 'sending', claimed_by = ?, updated_at = NOW()
			 WHERE id = ? AND status_code = 'queued'
		`, workerID, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		claimed = true
		return insertHistory(ctx, tx, id, model.StatusQueued, model.StatusSending, "claimed by "+workerID)
	})
	return claimed, err
}

// MarkSent records a successful send. Channels without an async
// confirmation step complete in the same transition.
func (r *JobsRepositoryImpl) MarkSent(ctx context.Context, id string, attempt int, completed bool) error {
	if completed {
		moved, err := r.transition(ctx, nil, id,
			[]model.JobStatus{model.StatusSending},
			model.StatusCompleted, "delivered",
			"attempt_count = ?, executed_at = NOW(), completed_at = NOW(), claimed_by = NULL, error_message = NULL", attempt)
		if err != nil {
			return err
		}
		if !moved {
			return model.ErrConflict
		}
		return nil
	}
	moved, err := r.transition(ctx, nil, id,
		[]model.JobStatus{model.StatusSending},
		model.StatusSent, "sent, awaiting confirmation",
		"attempt_count = ?, executed_at = NOW(), claimed_by = NULL, error_message = NULL", attempt)
	if err != nil {
		return err
	}
	if !moved {
		return model.ErrConflict
	}
	return nil
}

// Requeue schedules a retry after a transient failure. The
// cancel_requested flag is re-read under the row lock: a cancel issued
// while the send was in flight suppresses the retry and terminates the
// job as failed instead. Returns false when the retry was suppressed.
func (r *JobsRepositoryImpl) Requeue(ctx context.Context, id string, attempt int, nextAt time.Time, errMsg string) (bool, error) {
	retried := false
	err := r.withTx(ctx, nil, func(t *sqlx.Tx) error {
		var cur string
		var cancelRequested bool
		err := t.QueryRowxContext(ctx, `
			SELECT status_code, cancel_requested FROM jobs WHERE id = ? FOR UPDATE
		`, id).Scan(&cur, &cancelRequested)
		if err == sql.ErrNoRows {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}
		if model.JobStatus(cur) != model.StatusSending {
			return model.ErrConflict
		}

		if cancelRequested {
			if _, err := t.ExecContext(ctx, `
				UPDATE jobs SET status_code = ?, updated_at = NOW(),
				       attempt_count = ?, executed_at = NOW(), completed_at = NOW(),
				       claimed_by = NULL, error_message = ?
				 WHERE id = ?
			`, model.StatusFailed.String(), attempt, errMsg, id); err != nil {
				return err
			}
			return insertHistory(ctx, t, id,
				model.StatusSending, model.StatusFailed, "cancel requested, retry suppressed")
		}

		if _, err := t.ExecContext(ctx, `
			UPDATE jobs SET status_code = ?, updated_at = NOW(),
			       attempt_count = ?, next_attempt_at = ?, claimed_by = NULL, error_message = ?
			 WHERE id = ?
		`, model.StatusQueued.String(), attempt, nextAt, errMsg, id); err != nil {
			return err
		}
		if err := insertHistory(ctx, t, id,
			model.StatusSending, model.StatusQueued, "transient failure, retrying"); err != nil {
			return err
		}
		retried = true
		return nil
	})
	return retried, err
}

// MarkFailed terminates a job after a permanent failure or exhausted retries.
func (r *JobsRepositoryImpl) MarkFailed(ctx context.Context, id string, attempt int, errMsg string) error {
	moved, err := r.transition(ctx, nil, id,
		[]model.JobStatus{model.StatusSending},
		model.StatusFailed, "delivery failed",
		"attempt_count = ?, executed_at = NOW(), completed_at = NOW(), claimed_by = NULL, error_message = ?", attempt, errMsg)
	if err != nil {
		return err
	}
	if !moved {
		return model.ErrConflict
	}
	return nil
}

// ConfirmDelivery flips sent to completed once the provider confirms.
func (r *JobsRepositoryImpl) ConfirmDelivery(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, nil, id,
		[]model.JobStatus{model.StatusSent},
		model.StatusCompleted, "delivery confirmed",
		"completed_at = NOW()")
}

// CancelPending cancels a job no worker has touched yet.
func (r *JobsRepositoryImpl) CancelPending(ctx context.Context, id, reason string) (bool, error) {
	return r.transition(ctx, nil, id,
		[]model.JobStatus{model.StatusCreated, model.StatusQueued, model.StatusWaitingCredits},
		model.StatusCancelled, reason,
		"error_message = ?, completed_at = NOW()", reason)
}

// RequestCancel flags an in-flight job so a failed send is not retried.
// The send itself cannot be interrupted.
func (r *JobsRepositoryImpl) RequestCancel(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET cancel_requested = 1, updated_at = NOW()
		 WHERE id = ? AND status_code = 'sending'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReapStuck returns jobs stuck in sending past staleAfter to the queue,
// assuming the claiming worker died mid-send.
func (r *JobsRepositoryImpl) ReapStuck(ctx context.Context, staleAfter time.Duration, limit int) (int64, error) {
	if limit <= 0 {
		limit = 100
	}
	var reaped int64
	err := r.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		var ids []string
		err := tx.SelectContext(ctx, &ids, `
			SELECT id FROM jobs
			 WHERE status_code = 'sending'
			   AND updated_at < NOW() - INTERVAL ? SECOND
			 LIMIT ? FOR UPDATE
		`, int64(staleAfter.Seconds()), limit)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		q, args, err := sqlx.In(`
			UPDATE jobs
			   SET status_code = 'queued', claimed_by = NULL, updated_at = NOW()
			 WHERE id IN (?)
		`, ids)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
			return err
		}
		for _, id := range ids {
			if err := insertHistory(ctx, tx, id, model.StatusSending, model.StatusQueued, "reaped: worker presumed dead"); err != nil {
				return err
			}
		}
		reaped = int64(len(ids))
		return nil
	})
	return reaped, err
}

// ListWaiting returns parked jobs for a tenant, oldest first (FIFO
// fairness for release passes). Empty channel means all channels.
func (r *JobsRepositoryImpl) ListWaiting(ctx context.Context, tenantID int64, channel model.Channel, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT ` + jobColumns + `
		  FROM jobs
		 WHERE tenant_id = ? AND status_code = 'waiting_credits'
	`
	args := []any{tenantID}
	if channel != "" {
		q += " AND channel_code = ?"
		args = append(args, channel.String())
	}
	q += " ORDER BY created_at ASC LIMIT ?"
	args = append(args, limit)

	var jobs []model.Job
	if err := r.db.SelectContext(ctx, &jobs, q, args...); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *JobsRepositoryImpl) CountWaiting(ctx context.Context, tenantID int64, channel model.Channel) (int64, error) {
	q := `SELECT COUNT(*) FROM jobs WHERE tenant_id = ? AND status_code = 'waiting_credits'`
	args := []any{tenantID}
	if channel != "" {
		q += " AND channel_code = ?"
		args = append(args, channel.String())
	}
	var n int64
	err := r.db.GetContext(ctx, &n, q, args...)
	return n, err
}

// TenantsWithWaiting lists tenants that currently have parked jobs,
// used by the periodic release sweep.
func (r *JobsRepositoryImpl) TenantsWithWaiting(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT tenant_id FROM jobs WHERE status_code = 'waiting_credits'
	`)
	return ids, err
}
