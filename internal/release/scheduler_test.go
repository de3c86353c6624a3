package release

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/paktel/notify-gateway/internal/credit"
	"github.com/paktel/notify-gateway/internal/model"
	"go.uber.org/zap"
)

// fakeGate admits jobs while credits last, one credit per job.
type fakeGate struct {
	credits   int
	admitted  []string
	cancelIDs map[string]bool
}

func (g *fakeGate) Admit(ctx context.Context, job *model.Job) (credit.Outcome, error) {
	if g.cancelIDs[job.ID] {
		return credit.OutcomeCancelled, nil
	}
	if g.credits <= 0 {
		return credit.OutcomeParked, nil
	}
	g.credits--
	g.admitted = append(g.admitted, job.ID)
	return credit.OutcomeQueued, nil
}

type fakeWaiting struct {
	jobs []model.Job
}

func (s *fakeWaiting) ListWaiting(ctx context.Context, tenantID int64, channel model.Channel, limit int) ([]model.Job, error) {
	out := []model.Job{}
	for _, j := range s.jobs {
		if j.TenantID != tenantID || j.Status != model.StatusWaitingCredits {
			continue
		}
		if channel != "" && j.Channel != channel {
			continue
		}
		out = append(out, j)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeWaiting) CountWaiting(ctx context.Context, tenantID int64, channel model.Channel) (int64, error) {
	jobs, _ := s.ListWaiting(ctx, tenantID, channel, len(s.jobs)+1)
	return int64(len(jobs)), nil
}

func (s *fakeWaiting) TenantsWithWaiting(ctx context.Context) ([]int64, error) {
	seen := map[int64]bool{}
	var ids []int64
	for _, j := range s.jobs {
		if j.Status == model.StatusWaitingCredits && !seen[j.TenantID] {
			seen[j.TenantID] = true
			ids = append(ids, j.TenantID)
		}
	}
	return ids, nil
}

func parkedJobs(tenantID int64, n int) []model.Job {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jobs := make([]model.Job, 0, n)
	for i := 0; i < n; i++ {
		jobs = append(jobs, model.Job{
			ID:        fmt.Sprintf("j%02d", i),
			TenantID:  tenantID,
			Channel:   model.ChannelSMS,
			Status:    model.StatusWaitingCredits,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return jobs
}

func TestRelease_CapsAtMaxRelease(t *testing.T) {
	gate := &fakeGate{credits: 100}
	s := NewScheduler(&fakeWaiting{jobs: parkedJobs(1, 10)}, gate, zap.NewNop())

	res, err := s.Release(context.Background(), 1, "all", 3)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if res.ReleasedCount != 3 {
		t.Fatalf("released %d, want 3", res.ReleasedCount)
	}
}

func TestRelease_OldestFirst(t *testing.T) {
	gate := &fakeGate{credits: 2}
	s := NewScheduler(&fakeWaiting{jobs: parkedJobs(1, 5)}, gate, zap.NewNop())

	res, err := s.Release(context.Background(), 1, "all", 10)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	want := []string{"j00", "j01"}
	if len(res.ReleasedIDs) != len(want) {
		t.Fatalf("released ids = %v, want %v", res.ReleasedIDs, want)
	}
	for i, id := range want {
		if res.ReleasedIDs[i] != id {
			t.Fatalf("released ids = %v, want %v (FIFO)", res.ReleasedIDs, want)
		}
	}
}

func TestRelease_StopsWhenCreditsExhausted(t *testing.T) {
	gate := &fakeGate{credits: 2}
	s := NewScheduler(&fakeWaiting{jobs: parkedJobs(1, 10)}, gate, zap.NewNop())

	res, err := s.Release(context.Background(), 1, "all", 10)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if res.ReleasedCount != 2 {
		t.Fatalf("released %d, want 2 (stop on exhaustion)", res.ReleasedCount)
	}
	if len(gate.admitted) != 2 {
		t.Fatalf("admitted = %v, want exactly the 2 paid jobs", gate.admitted)
	}
}

func TestRelease_ZeroCreditIsNoop(t *testing.T) {
	gate := &fakeGate{credits: 0}
	s := NewScheduler(&fakeWaiting{jobs: parkedJobs(1, 4)}, gate, zap.NewNop())

	res, err := s.Release(context.Background(), 1, "all", 10)
	if err != nil {
		t.Fatalf("Release with zero credit must not error: %v", err)
	}
	if res.ReleasedCount != 0 {
		t.Fatalf("released %d, want 0", res.ReleasedCount)
	}
}

func TestRelease_CancelledDoesNotConsumeBudget(t *testing.T) {
	jobs := parkedJobs(1, 4)
	gate := &fakeGate{credits: 100, cancelIDs: map[string]bool{"j00": true}}
	s := NewScheduler(&fakeWaiting{jobs: jobs}, gate, zap.NewNop())

	res, err := s.Release(context.Background(), 1, "all", 3)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if res.ReleasedCount != 3 {
		t.Fatalf("released %d, want 3 (skip does not count)", res.ReleasedCount)
	}
	if res.ReleasedIDs[0] != "j01" {
		t.Fatalf("first released = %s, want j01", res.ReleasedIDs[0])
	}
}

func TestRelease_InvalidChannelRejected(t *testing.T) {
	s := NewScheduler(&fakeWaiting{}, &fakeGate{}, zap.NewNop())
	if _, err := s.Release(context.Background(), 1, "pigeon", 5); err == nil {
		t.Fatal("expected validation error for unknown channel")
	}
}

func TestReleaseAll_SweepsEveryTenant(t *testing.T) {
	jobs := append(parkedJobs(1, 2), parkedJobs(2, 2)...)
	// IDs collide across tenants in the helper; make them unique.
	for i := range jobs {
		jobs[i].ID = fmt.Sprintf("t%d-%s", jobs[i].TenantID, jobs[i].ID)
	}
	gate := &fakeGate{credits: 100}
	s := NewScheduler(&fakeWaiting{jobs: jobs}, gate, zap.NewNop())

	total, err := s.ReleaseAll(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReleaseAll: %v", err)
	}
	if total != 4 {
		t.Fatalf("total released = %d, want 4", total)
	}
}
