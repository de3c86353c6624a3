package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/paktel/notify-gateway/internal/credit"
	"github.com/paktel/notify-gateway/internal/model"
	"go.uber.org/zap"
)

type fakeJobs struct {
	jobs map[string]*model.Job

	insertErr      error
	hideFirstFind  bool
	findCalls      int
	cancelPending  bool
	requestCancels int
	confirmMoved   bool
}

func newFakeJobs(jobs ...*model.Job) *fakeJobs {
	f := &fakeJobs{jobs: map[string]*model.Job{}}
	for _, j := range jobs {
		f.jobs[j.ID] = j
	}
	return f
}

func (f *fakeJobs) Insert(ctx context.Context, job *model.Job, envelope []byte) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	// Mirror the unique key on (source_type, source_id, is_live): it
	// only spans live rows, terminal ones don't block a fresh insert.
	for _, j := range f.jobs {
		if j.SourceTypeCode == job.SourceTypeCode && j.SourceID == job.SourceID &&
			j.IsLive == job.IsLive &&
			j.Status != model.StatusFailed && j.Status != model.StatusCancelled {
			return model.ErrDuplicate
		}
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobs) GetByID(ctx context.Context, id string) (*model.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) FindBySource(ctx context.Context, sourceType, sourceID string, isLive bool) (*model.Job, error) {
	f.findCalls++
	if f.hideFirstFind && f.findCalls == 1 {
		return nil, nil
	}
	var terminal *model.Job
	for _, j := range f.jobs {
		if j.SourceTypeCode != sourceType || j.SourceID != sourceID || j.IsLive != isLive {
			continue
		}
		// Live row wins over terminal leftovers from re-enqueues.
		if j.Status != model.StatusFailed && j.Status != model.StatusCancelled {
			cp := *j
			return &cp, nil
		}
		terminal = j
	}
	if terminal != nil {
		cp := *terminal
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeJobs) CancelPending(ctx context.Context, id, reason string) (bool, error) {
	if !f.cancelPending {
		return false, nil
	}
	f.jobs[id].Status = model.StatusCancelled
	return true, nil
}

func (f *fakeJobs) RequestCancel(ctx context.Context, id string) (bool, error) {
	f.requestCancels++
	f.jobs[id].CancelRequested = true
	return true, nil
}

func (f *fakeJobs) ConfirmDelivery(ctx context.Context, id string) (bool, error) {
	if f.confirmMoved {
		f.jobs[id].Status = model.StatusCompleted
	}
	return f.confirmMoved, nil
}

type fakeGate struct {
	outcome credit.Outcome
	err     error
	calls   int
}

func (g *fakeGate) Admit(ctx context.Context, job *model.Job) (credit.Outcome, error) {
	g.calls++
	return g.outcome, g.err
}

func validRequest() CreateJobRequest {
	return CreateJobRequest{
		TenantID:         7,
		IsLive:           true,
		EventTypeCode:    "order.shipped",
		Channel:          "sms",
		SourceTypeCode:   "order",
		SourceID:         "ord-91",
		RecipientContact: "0912 345 6789",
		TemplateKey:      "order-shipped",
	}
}

func TestCreateJob_QueuedThroughGate(t *testing.T) {
	jobs := newFakeJobs()
	gate := &fakeGate{outcome: credit.OutcomeQueued}
	svc := New(jobs, gate, 3, zap.NewNop())

	job, err := svc.CreateJob(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != model.StatusQueued {
		t.Fatalf("status = %s, want queued", job.Status)
	}
	if job.MaxAttempts != 3 {
		t.Fatalf("max_attempts = %d, want default 3", job.MaxAttempts)
	}
	if job.RecipientContact != "09123456789" {
		t.Fatalf("contact = %q, want normalized phone", job.RecipientContact)
	}
	if gate.calls != 1 {
		t.Fatalf("gate calls = %d, want 1", gate.calls)
	}
}

func TestCreateJob_ValidationErrors(t *testing.T) {
	svc := New(newFakeJobs(), &fakeGate{}, 3, zap.NewNop())

	tests := []struct {
		name   string
		mutate func(*CreateJobRequest)
	}{
		{"missing template_key", func(r *CreateJobRequest) { r.TemplateKey = "" }},
		{"missing source_id", func(r *CreateJobRequest) { r.SourceID = "" }},
		{"unknown channel", func(r *CreateJobRequest) { r.Channel = "pigeon" }},
		{"negative priority", func(r *CreateJobRequest) { r.Priority = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			if _, err := svc.CreateJob(context.Background(), req); !errors.Is(err, model.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateJob_IdempotentOnSource(t *testing.T) {
	existing := &model.Job{
		ID:             "existing",
		TenantID:       7,
		IsLive:         true,
		SourceTypeCode: "order",
		SourceID:       "ord-91",
		Status:         model.StatusSent,
	}
	jobs := newFakeJobs(existing)
	gate := &fakeGate{outcome: credit.OutcomeQueued}
	svc := New(jobs, gate, 3, zap.NewNop())

	job, err := svc.CreateJob(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.ID != "existing" {
		t.Fatalf("got new job %s, want existing returned", job.ID)
	}
	if gate.calls != 0 {
		t.Fatal("gate must not run for a deduped job")
	}
}

func TestCreateJob_FailedJobReEnqueued(t *testing.T) {
	old := &model.Job{
		ID:             "old",
		TenantID:       7,
		IsLive:         true,
		SourceTypeCode: "order",
		SourceID:       "ord-91",
		Status:         model.StatusFailed,
	}
	jobs := newFakeJobs(old)
	svc := New(jobs, &fakeGate{outcome: credit.OutcomeQueued}, 3, zap.NewNop())

	job, err := svc.CreateJob(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.ID == "old" {
		t.Fatal("failed job must be replaced by a fresh one")
	}
	if job.Status != model.StatusQueued {
		t.Fatalf("status = %s, want queued", job.Status)
	}
	// The old row stays for audit; the fresh one coexists with it.
	if len(jobs.jobs) != 2 {
		t.Fatalf("job rows = %d, want 2 (terminal row kept)", len(jobs.jobs))
	}
	if jobs.jobs["old"].Status != model.StatusFailed {
		t.Fatalf("old row status = %s, want failed untouched", jobs.jobs["old"].Status)
	}
}

func TestCreateJob_StrandedCreatedJobReadmitted(t *testing.T) {
	// Insert committed but the gate errored afterwards: the job sits in
	// created with nothing scanning for it. A repeat enqueue for the
	// same source must push it through the gate instead of returning it
	// stranded.
	stranded := &model.Job{
		ID:             "stuck",
		TenantID:       7,
		IsLive:         true,
		SourceTypeCode: "order",
		SourceID:       "ord-91",
		Status:         model.StatusCreated,
	}
	jobs := newFakeJobs(stranded)
	gate := &fakeGate{outcome: credit.OutcomeQueued}
	svc := New(jobs, gate, 3, zap.NewNop())

	job, err := svc.CreateJob(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.ID != "stuck" {
		t.Fatalf("job = %s, want the stranded job itself", job.ID)
	}
	if job.Status != model.StatusQueued {
		t.Fatalf("status = %s, want queued after re-admission", job.Status)
	}
	if gate.calls != 1 {
		t.Fatalf("gate calls = %d, want 1", gate.calls)
	}
	if len(jobs.jobs) != 1 {
		t.Fatalf("job rows = %d, want 1 (no duplicate insert)", len(jobs.jobs))
	}
}

func TestCreateJob_ParkedOutcome(t *testing.T) {
	svc := New(newFakeJobs(), &fakeGate{outcome: credit.OutcomeParked}, 3, zap.NewNop())

	job, err := svc.CreateJob(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != model.StatusWaitingCredits {
		t.Fatalf("status = %s, want waiting_credits", job.Status)
	}
}

func TestCreateJob_DuplicateRaceReturnsWinner(t *testing.T) {
	winner := &model.Job{
		ID:             "winner",
		TenantID:       7,
		IsLive:         true,
		SourceTypeCode: "order",
		SourceID:       "ord-91",
		Status:         model.StatusQueued,
	}
	// The racing create lands between the lookup and the insert: the
	// first FindBySource sees nothing, the insert hits the unique key.
	jobs := newFakeJobs(winner)
	jobs.hideFirstFind = true
	jobs.insertErr = model.ErrDuplicate
	svc := New(jobs, &fakeGate{}, 3, zap.NewNop())

	job, err := svc.CreateJob(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.ID != "winner" {
		t.Fatalf("job = %s, want racing winner", job.ID)
	}
}

func TestJobStatus_WrongTenantIsNotFound(t *testing.T) {
	jobs := newFakeJobs(&model.Job{
		ID:             "j1",
		TenantID:       9,
		IsLive:         true,
		SourceTypeCode: "order",
		SourceID:       "ord-91",
		Status:         model.StatusQueued,
	})
	svc := New(jobs, &fakeGate{}, 3, zap.NewNop())

	if _, err := svc.JobStatus(context.Background(), 7, "order", "ord-91", true); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCancel_States(t *testing.T) {
	t.Run("pending cancels outright", func(t *testing.T) {
		jobs := newFakeJobs(&model.Job{ID: "j1", TenantID: 7, Status: model.StatusWaitingCredits})
		jobs.cancelPending = true
		svc := New(jobs, &fakeGate{}, 3, zap.NewNop())

		job, err := svc.Cancel(context.Background(), 7, "j1")
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if job.Status != model.StatusCancelled {
			t.Fatalf("status = %s, want cancelled", job.Status)
		}
	})

	t.Run("sending sets cancel_requested", func(t *testing.T) {
		jobs := newFakeJobs(&model.Job{ID: "j1", TenantID: 7, Status: model.StatusSending})
		svc := New(jobs, &fakeGate{}, 3, zap.NewNop())

		job, err := svc.Cancel(context.Background(), 7, "j1")
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if !job.CancelRequested {
			t.Fatal("cancel_requested not set")
		}
		if jobs.requestCancels != 1 {
			t.Fatalf("RequestCancel calls = %d, want 1", jobs.requestCancels)
		}
	})

	t.Run("terminal conflicts", func(t *testing.T) {
		jobs := newFakeJobs(&model.Job{ID: "j1", TenantID: 7, Status: model.StatusCompleted})
		svc := New(jobs, &fakeGate{}, 3, zap.NewNop())

		if _, err := svc.Cancel(context.Background(), 7, "j1"); !errors.Is(err, model.ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
	})

	t.Run("other tenant's job is not found", func(t *testing.T) {
		jobs := newFakeJobs(&model.Job{ID: "j1", TenantID: 9, Status: model.StatusQueued})
		svc := New(jobs, &fakeGate{}, 3, zap.NewNop())

		if _, err := svc.Cancel(context.Background(), 7, "j1"); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestConfirmDelivery(t *testing.T) {
	t.Run("sent completes", func(t *testing.T) {
		jobs := newFakeJobs(&model.Job{ID: "j1", TenantID: 7, Status: model.StatusSent})
		jobs.confirmMoved = true
		svc := New(jobs, &fakeGate{}, 3, zap.NewNop())

		if err := svc.ConfirmDelivery(context.Background(), "j1"); err != nil {
			t.Fatalf("ConfirmDelivery: %v", err)
		}
	})

	t.Run("repeat confirm is idempotent", func(t *testing.T) {
		jobs := newFakeJobs(&model.Job{ID: "j1", TenantID: 7, Status: model.StatusCompleted})
		svc := New(jobs, &fakeGate{}, 3, zap.NewNop())

		if err := svc.ConfirmDelivery(context.Background(), "j1"); err != nil {
			t.Fatalf("repeat confirm: %v", err)
		}
	})

	t.Run("queued job conflicts", func(t *testing.T) {
		jobs := newFakeJobs(&model.Job{ID: "j1", TenantID: 7, Status: model.StatusQueued})
		svc := New(jobs, &fakeGate{}, 3, zap.NewNop())

		if err := svc.ConfirmDelivery(context.Background(), "j1"); !errors.Is(err, model.ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
	})
}
