package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/paktel/notify-gateway/internal/model"
)

// HeartbeatsRepository persists worker liveness records. The table is
// advisory only: job ownership lives on the job row.
type HeartbeatsRepository interface {
	Upsert(ctx context.Context, hb model.WorkerHeartbeat) error
	List(ctx context.Context) ([]model.WorkerHeartbeat, error)
	Delete(ctx context.Context, workerID string) error
}

type heartbeatsRepo struct {
	db *sqlx.DB
}

func NewHeartbeatsRepository(db *sqlx.DB) HeartbeatsRepository {
	return &heartbeatsRepo{db: db}
}

func (r *heartbeatsRepo) Upsert(ctx context.Context, hb model.WorkerHeartbeat) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO worker_heartbeats
			(worker_id, channels, last_seen_at, jobs_processed, jobs_failed, current_job_id)
		VALUES (?, ?, NOW(), ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			channels = VALUES(channels),
			last_seen_at = VALUES(last_seen_at),
			jobs_processed = VALUES(jobs_processed),
			jobs_failed = VALUES(jobs_failed),
			current_job_id = VALUES(current_job_id)
	`, hb.WorkerID, hb.Channels, hb.JobsProcessed, hb.JobsFailed, hb.CurrentJobID)
	return err
}

func (r *heartbeatsRepo) List(ctx context.Context) ([]model.WorkerHeartbeat, error) {
	var rows []model.WorkerHeartbeat
	err := r.db.SelectContext(ctx, &rows, `
		SELECT worker_id, channels, last_seen_at, jobs_processed, jobs_failed, current_job_id
		  FROM worker_heartbeats
		 ORDER BY worker_id
	`)
	return rows, err
}

func (r *heartbeatsRepo) Delete(ctx context.Context, workerID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM worker_heartbeats WHERE worker_id = ?`, workerID)
	return err
}
