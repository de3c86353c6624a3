package admin

import (
	"context"
	"testing"
	"time"

	"github.com/paktel/notify-gateway/internal/model"
	"github.com/paktel/notify-gateway/internal/repository"
)

type fakeStats struct {
	metrics []model.QueueMetric
	events  []model.Job
	total   int64
	history []model.StatusTransition

	gotQuery  model.TenantStatsQuery
	gotFilter model.EventFilter
}

func (f *fakeStats) QueueMetrics(ctx context.Context) ([]model.QueueMetric, error) {
	return f.metrics, nil
}

func (f *fakeStats) TenantStats(ctx context.Context, q model.TenantStatsQuery) ([]model.TenantStat, model.TenantStat, int64, error) {
	f.gotQuery = q
	return nil, model.TenantStat{}, f.total, nil
}

func (f *fakeStats) ListEvents(ctx context.Context, flt model.EventFilter) ([]model.Job, int64, error) {
	f.gotFilter = flt
	return f.events, f.total, nil
}

func (f *fakeStats) History(ctx context.Context, jobID string) ([]model.StatusTransition, error) {
	return f.history, nil
}

type fakeJobReader struct{ job *model.Job }

func (f *fakeJobReader) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if f.job == nil || f.job.ID != id {
		return nil, model.ErrNotFound
	}
	return f.job, nil
}

type fakeHeartbeats struct{ beats []model.WorkerHeartbeat }

func (f *fakeHeartbeats) List(ctx context.Context) ([]model.WorkerHeartbeat, error) {
	return f.beats, nil
}

type fakeArchive struct{ events []repository.ArchivedEvent }

func (f *fakeArchive) List(ctx context.Context, flt model.EventFilter) ([]repository.ArchivedEvent, error) {
	return f.events, nil
}

func TestQueueMetrics_SumsBuckets(t *testing.T) {
	stats := &fakeStats{metrics: []model.QueueMetric{
		{Status: model.StatusQueued, Channel: model.ChannelSMS, Count: 4},
		{Status: model.StatusWaitingCredits, Channel: model.ChannelEmail, Count: 2},
		{Status: model.StatusCompleted, Channel: model.ChannelSMS, Count: 10},
	}}
	svc := New(stats, &fakeJobReader{}, &fakeHeartbeats{}, &fakeArchive{}, time.Second)

	buckets, total, err := svc.QueueMetrics(context.Background())
	if err != nil {
		t.Fatalf("QueueMetrics: %v", err)
	}
	if len(buckets) != 3 {
		t.Fatalf("buckets = %d, want 3", len(buckets))
	}
	if total != 16 {
		t.Fatalf("total = %d, want 16", total)
	}
}

func TestTenantStats_ClampsPaging(t *testing.T) {
	stats := &fakeStats{}
	svc := New(stats, &fakeJobReader{}, &fakeHeartbeats{}, &fakeArchive{}, time.Second)

	page, err := svc.TenantStats(context.Background(), model.TenantStatsQuery{Page: 0, Limit: 10000})
	if err != nil {
		t.Fatalf("TenantStats: %v", err)
	}
	if stats.gotQuery.Page != 1 || stats.gotQuery.Limit != 25 {
		t.Fatalf("query = page %d limit %d, want defaults applied", stats.gotQuery.Page, stats.gotQuery.Limit)
	}
	if page.Page != 1 || page.Limit != 25 {
		t.Fatalf("page = %d/%d, want echoed defaults", page.Page, page.Limit)
	}
}

func TestEventDetail_JoinsHistory(t *testing.T) {
	job := &model.Job{ID: "j1", Status: model.StatusFailed}
	stats := &fakeStats{history: []model.StatusTransition{
		{JobID: "j1", FromStatus: model.StatusCreated, ToStatus: model.StatusQueued},
		{JobID: "j1", FromStatus: model.StatusQueued, ToStatus: model.StatusSending},
		{JobID: "j1", FromStatus: model.StatusSending, ToStatus: model.StatusFailed},
	}}
	svc := New(stats, &fakeJobReader{job: job}, &fakeHeartbeats{}, &fakeArchive{}, time.Second)

	detail, err := svc.EventDetail(context.Background(), "j1")
	if err != nil {
		t.Fatalf("EventDetail: %v", err)
	}
	if detail.Job.ID != "j1" || len(detail.History) != 3 {
		t.Fatalf("detail = %+v, want job with 3 transitions", detail)
	}
}

func TestWorkerHealth_StaleFlag(t *testing.T) {
	now := time.Now()
	hb := &fakeHeartbeats{beats: []model.WorkerHeartbeat{
		{WorkerID: "fresh", LastSeenAt: now.Add(-2 * time.Second)},
		{WorkerID: "dead", LastSeenAt: now.Add(-time.Minute)},
	}}
	svc := New(&fakeStats{}, &fakeJobReader{}, hb, &fakeArchive{}, 5*time.Second)

	out, err := svc.WorkerHealth(context.Background())
	if err != nil {
		t.Fatalf("WorkerHealth: %v", err)
	}
	byID := map[string]model.WorkerStatus{}
	for _, w := range out {
		byID[w.WorkerID] = w
	}
	if byID["fresh"].Stale {
		t.Fatal("fresh worker flagged stale")
	}
	if !byID["dead"].Stale {
		t.Fatal("worker silent for 1m not flagged stale at 5s interval")
	}
}
