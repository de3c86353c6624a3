package model

import (
	"database/sql"
	"time"
)

// WorkerHeartbeat is the ephemeral liveness record a dispatch worker
// upserts while running. It feeds health reporting only; job ownership
// is tracked on the job row itself.
type WorkerHeartbeat struct {
	WorkerID      string         `db:"worker_id"`
	Channels      string         `db:"channels"` // comma-separated serviced channels
	LastSeenAt    time.Time      `db:"last_seen_at"`
	JobsProcessed int64          `db:"jobs_processed"`
	JobsFailed    int64          `db:"jobs_failed"`
	CurrentJobID  sql.NullString `db:"current_job_id"`
}

// WorkerStatus is a heartbeat enriched for the health view.
type WorkerStatus struct {
	WorkerHeartbeat
	AgeSeconds int64 `json:"age_seconds"`
	Stale      bool  `json:"stale"`
}
