package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/paktel/notify-gateway/internal/model"
)

// StatsRepository serves the read-only observability views over the
// jobs table. Nothing here mutates state.
type StatsRepository interface {
	QueueMetrics(ctx context.Context) ([]model.QueueMetric, error)
	TenantStats(ctx context.Context, q model.TenantStatsQuery) ([]model.TenantStat, model.TenantStat, int64, error)
	ListEvents(ctx context.Context, f model.EventFilter) ([]model.Job, int64, error)
	History(ctx context.Context, jobID string) ([]model.StatusTransition, error)
}

type StatsRepositoryImpl struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sqlx.DB) *StatsRepositoryImpl {
	return &StatsRepositoryImpl{db: db}
}

var _ StatsRepository = (*StatsRepositoryImpl)(nil)

// QueueMetrics returns counts per status x channel. The buckets sum to
// the total row count of the jobs table.
func (r *StatsRepositoryImpl) QueueMetrics(ctx context.Context) ([]model.QueueMetric, error) {
	var rows []model.QueueMetric
	err := r.db.SelectContext(ctx, &rows, `
		SELECT status_code, channel_code, COUNT(*) AS cnt
		  FROM jobs
		 GROUP BY status_code, channel_code
	`)
	return rows, err
}

var tenantSortCols = map[string]string{
	"tenant_id":      "t.id",
	"total_jobs":     "total_jobs",
	"queued_jobs":    "queued_jobs",
	"waiting_jobs":   "waiting_jobs",
	"completed_jobs": "completed_jobs",
	"failed_jobs":    "failed_jobs",
}

const tenantStatSums = `
	COUNT(j.id)                                                  AS total_jobs,
	COALESCE(SUM(j.status_code = 'queued'), 0)                   AS queued_jobs,
	COALESCE(SUM(j.status_code = 'waiting_credits'), 0)          AS waiting_jobs,
	COALESCE(SUM(j.status_code = 'completed'), 0)                AS completed_jobs,
	COALESCE(SUM(j.status_code IN ('failed', 'cancelled')), 0)   AS failed_jobs`

// TenantStats returns one aggregated row per tenant (paginated) plus a
// global summary row and the total tenant count for the pager.
func (r *StatsRepositoryImpl) TenantStats(ctx context.Context, q model.TenantStatsQuery) ([]model.TenantStat, model.TenantStat, int64, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 25
	}
	offset := (page - 1) * limit

	sortCol, ok := tenantSortCols[q.SortBy]
	if !ok {
		sortCol = "total_jobs"
	}
	dir := "DESC"
	if strings.EqualFold(q.SortDir, "asc") {
		dir = "ASC"
	}

	where := ""
	args := []any{}
	if s := strings.TrimSpace(q.Search); s != "" {
		where = " WHERE (t.name LIKE ? OR CAST(t.id AS CHAR) = ?)"
		args = append(args, "%"+s+"%", s)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM tenants t`+where, args...); err != nil {
		return nil, model.TenantStat{}, 0, err
	}

	listQ := `
		SELECT t.id AS tenant_id, t.name AS tenant_name, ` + tenantStatSums + `
		  FROM tenants t
		  LEFT JOIN jobs j ON j.tenant_id = t.id` + where + `
		 GROUP BY t.id, t.name
		 ORDER BY ` + sortCol + ` ` + dir + `
		 LIMIT ? OFFSET ?`
	listArgs := append(append([]any{}, args...), limit, offset)

	var rows []model.TenantStat
	if err := r.db.SelectContext(ctx, &rows, listQ, listArgs...); err != nil {
		return nil, model.TenantStat{}, 0, err
	}

	var summary model.TenantStat
	if err := r.db.GetContext(ctx, &summary, `
		SELECT 0 AS tenant_id, 'all' AS tenant_name, `+strings.ReplaceAll(tenantStatSums, "j.", "")+`
		  FROM jobs
	`); err != nil {
		return nil, model.TenantStat{}, 0, err
	}

	return rows, summary, total, nil
}

var eventSortCols = map[string]string{
	"created_at":  "created_at",
	"priority":    "priority",
	"status_code": "status_code",
	"queued_at":   "queued_at",
}

// ListEvents is the filterable admin event listing over the live jobs
// table (the ClickHouse archive covers long horizons).
func (r *StatsRepositoryImpl) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Job, int64, error) {
	where := " WHERE 1=1"
	args := []any{}

	if f.TenantID > 0 {
		where += " AND tenant_id = ?"
		args = append(args, f.TenantID)
	}
	if f.Status != "" {
		where += " AND status_code = ?"
		args = append(args, f.Status.String())
	}
	if f.EventTypeCode != "" {
		where += " AND event_type_code = ?"
		args = append(args, f.EventTypeCode)
	}
	if f.Channel != "" {
		where += " AND channel_code = ?"
		args = append(args, f.Channel.String())
	}
	if f.SourceTypeCode != "" {
		where += " AND source_type_code = ?"
		args = append(args, f.SourceTypeCode)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where += ` AND (recipient_name LIKE ? OR recipient_contact LIKE ?
			OR source_id LIKE ? OR error_message LIKE ?)`
		like := "%" + s + "%"
		args = append(args, like, like, like, like)
	}
	if !f.CreatedFrom.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, f.CreatedFrom)
	}
	if !f.CreatedTo.IsZero() {
		where += " AND created_at < ?"
		args = append(args, f.CreatedTo)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM jobs`+where, args...); err != nil {
		return nil, 0, err
	}

	sortCol, ok := eventSortCols[f.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(f.SortDir, "asc") {
		dir = "ASC"
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	q := `SELECT ` + jobColumns + ` FROM jobs` + where +
		` ORDER BY ` + sortCol + ` ` + dir + ` LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)

	var jobs []model.Job
	if err := r.db.SelectContext(ctx, &jobs, q, args...); err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *StatsRepositoryImpl) History(ctx context.Context, jobID string) ([]model.StatusTransition, error) {
	var rows []model.StatusTransition
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, job_id, from_status, to_status, note, created_at
		  FROM job_status_history
		 WHERE job_id = ?
		 ORDER BY id ASC
	`, jobID)
	return rows, err
}
