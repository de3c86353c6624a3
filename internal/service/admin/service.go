// Package admin serves the operator-facing read models: queue depth,
// per-tenant aggregates, event listings with their audit trail, the
// ClickHouse archive and worker health. Everything here is a pure read.
package admin

import (
	"context"
	"time"

	"github.com/paktel/notify-gateway/internal/model"
	"github.com/paktel/notify-gateway/internal/repository"
)

// JobReader fetches a single job for the detail view.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*model.Job, error)
}

// HeartbeatReader lists worker heartbeats.
type HeartbeatReader interface {
	List(ctx context.Context) ([]model.WorkerHeartbeat, error)
}

type Service struct {
	stats   repository.StatsRepository
	jobs    JobReader
	hb      HeartbeatReader
	archive repository.ArchiveRepository

	heartbeatInterval time.Duration
}

func New(stats repository.StatsRepository, jobs JobReader, hb HeartbeatReader, archive repository.ArchiveRepository, heartbeatInterval time.Duration) *Service {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 5 * time.Second
	}
	return &Service{stats: stats, jobs: jobs, hb: hb, archive: archive, heartbeatInterval: heartbeatInterval}
}

// QueueMetrics returns the status x channel job counts plus their sum,
// which by construction equals the total number of job rows.
func (s *Service) QueueMetrics(ctx context.Context) ([]model.QueueMetric, int64, error) {
	buckets, err := s.stats.QueueMetrics(ctx)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	for _, b := range buckets {
		total += b.Count
	}
	return buckets, total, nil
}

// TenantStatsPage is one page of tenant aggregates with the global
// summary row alongside.
type TenantStatsPage struct {
	Tenants []model.TenantStat `json:"tenants"`
	Summary model.TenantStat   `json:"summary"`
	Total   int64              `json:"total"`
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
}

func (s *Service) TenantStats(ctx context.Context, q model.TenantStatsQuery) (*TenantStatsPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 25
	}
	rows, summary, total, err := s.stats.TenantStats(ctx, q)
	if err != nil {
		return nil, err
	}
	return &TenantStatsPage{Tenants: rows, Summary: summary, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

// EventsPage is one page of the filtered event listing.
type EventsPage struct {
	Events []model.Job `json:"events"`
	Total  int64       `json:"total"`
	Page   int         `json:"page"`
	Limit  int         `json:"limit"`
}

func (s *Service) ListEvents(ctx context.Context, f model.EventFilter) (*EventsPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 25
	}
	events, total, err := s.stats.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	return &EventsPage{Events: events, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// EventDetail is one job with its full status history.
type EventDetail struct {
	Job     *model.Job               `json:"job"`
	History []model.StatusTransition `json:"history"`
}

func (s *Service) EventDetail(ctx context.Context, jobID string) (*EventDetail, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	history, err := s.stats.History(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &EventDetail{Job: job, History: history}, nil
}

// ArchiveEvents reads the long-horizon event archive.
func (s *Service) ArchiveEvents(ctx context.Context, f model.EventFilter) ([]repository.ArchivedEvent, error) {
	return s.archive.List(ctx, f)
}

// WorkerHealth reports every known worker with a staleness flag. A
// worker that has not heartbeated for three intervals is presumed dead.
func (s *Service) WorkerHealth(ctx context.Context) ([]model.WorkerStatus, error) {
	beats, err := s.hb.List(ctx)
	if err != nil {
		return nil, err
	}
	threshold := 3 * s.heartbeatInterval
	now := time.Now()

	out := make([]model.WorkerStatus, 0, len(beats))
	for _, hb := range beats {
		age := now.Sub(hb.LastSeenAt)
		out = append(out, model.WorkerStatus{
			WorkerHeartbeat: hb,
			AgeSeconds:      int64(age.Seconds()),
			Stale:           age > threshold,
		})
	}
	return out, nil
}
