package model

import "time"

// QueueMetric is one status/channel bucket of the global queue snapshot.
type QueueMetric struct {
	Status  JobStatus `db:"status_code" json:"status_code"`
	Channel Channel   `db:"channel_code" json:"channel_code"`
	Count   int64     `db:"cnt" json:"count"`
}

// TenantStat aggregates job counts for one tenant (or globally when
// TenantID is zero, the summary row).
type TenantStat struct {
	TenantID   int64  `db:"tenant_id" json:"tenant_id"`
	TenantName string `db:"tenant_name" json:"tenant_name"`
	TotalJobs  int64  `db:"total_jobs" json:"total_jobs"`
	Queued     int64  `db:"queued_jobs" json:"queued_jobs"`
	Waiting    int64  `db:"waiting_jobs" json:"waiting_jobs"`
	Completed  int64  `db:"completed_jobs" json:"completed_jobs"`
	Failed     int64  `db:"failed_jobs" json:"failed_jobs"`
}

// TenantStatsQuery selects/sorts the tenant stats page.
type TenantStatsQuery struct {
	Page    int
	Limit   int
	Search  string // tenant id or name fragment
	SortBy  string // total_jobs|completed_jobs|failed_jobs|tenant_id
	SortDir string // asc|desc
}

// EventFilter narrows the admin event listing.
type EventFilter struct {
	TenantID       int64
	Status         JobStatus
	EventTypeCode  string
	Channel        Channel
	SourceTypeCode string
	Search         string // matches recipient, source id, error message
	CreatedFrom    time.Time
	CreatedTo      time.Time

	Page    int
	Limit   int
	SortBy  string // created_at|priority|status_code
	SortDir string
}
