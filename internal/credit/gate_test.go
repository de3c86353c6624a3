package credit

import (
	"context"
	"errors"
	"testing"

	"github.com/paktel/notify-gateway/internal/model"
	"go.uber.org/zap"
)

type fakeConfig struct {
	enabled bool
	err     error
}

func (f *fakeConfig) Enabled(ctx context.Context, tenantID int64, sourceType string, ch model.Channel) (bool, error) {
	return f.enabled, f.err
}

type fakeStore struct {
	balance int64

	admitted  []string
	parked    []string
	cancelled map[string]string

	admitErr error
}

func newFakeStore(balance int64) *fakeStore {
	return &fakeStore{balance: balance, cancelled: map[string]string{}}
}

func (f *fakeStore) AdmitJob(ctx context.Context, job *model.Job, price int64) error {
	if f.admitErr != nil {
		return f.admitErr
	}
	if f.balance < price {
		return model.ErrInsufficientCredits
	}
	f.balance -= price
	f.admitted = append(f.admitted, job.ID)
	return nil
}

func (f *fakeStore) ParkJob(ctx context.Context, jobID string) error {
	f.parked = append(f.parked, jobID)
	return nil
}

func (f *fakeStore) CancelJob(ctx context.Context, jobID, reason string) error {
	f.cancelled[jobID] = reason
	return nil
}

func testJob(id string) *model.Job {
	return &model.Job{
		ID:             id,
		TenantID:       1,
		IsLive:         true,
		Channel:        model.ChannelSMS,
		SourceTypeCode: "user_invite",
		SourceID:       "src-" + id,
		Status:         model.StatusCreated,
	}
}

func TestAdmit_QueuesAndDebits(t *testing.T) {
	store := newFakeStore(10)
	g := NewGate(&fakeConfig{enabled: true}, store, Pricing{SMS: 3}, zap.NewNop())

	out, err := g.Admit(context.Background(), testJob("j1"))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if out != OutcomeQueued {
		t.Fatalf("outcome = %v, want queued", out)
	}
	if store.balance != 7 {
		t.Fatalf("balance = %d, want 7 (debited with the transition)", store.balance)
	}
	if len(store.admitted) != 1 {
		t.Fatalf("admitted %d jobs, want 1", len(store.admitted))
	}
}

func TestAdmit_ParksWithoutDebit(t *testing.T) {
	store := newFakeStore(2)
	g := NewGate(&fakeConfig{enabled: true}, store, Pricing{SMS: 3}, zap.NewNop())

	out, err := g.Admit(context.Background(), testJob("j1"))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if out != OutcomeParked {
		t.Fatalf("outcome = %v, want parked", out)
	}
	if store.balance != 2 {
		t.Fatalf("balance = %d, want 2 (park must not debit)", store.balance)
	}
	if len(store.parked) != 1 || store.parked[0] != "j1" {
		t.Fatalf("parked = %v, want [j1]", store.parked)
	}
}

func TestAdmit_DisabledChannelCancelsBeforeCreditCheck(t *testing.T) {
	store := newFakeStore(0) // would park if the credit check ran
	g := NewGate(&fakeConfig{enabled: false}, store, Pricing{SMS: 3}, zap.NewNop())

	out, err := g.Admit(context.Background(), testJob("j1"))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if out != OutcomeCancelled {
		t.Fatalf("outcome = %v, want cancelled", out)
	}
	if store.cancelled["j1"] != "channel disabled" {
		t.Fatalf("cancel reason = %q, want %q", store.cancelled["j1"], "channel disabled")
	}
	if len(store.parked) != 0 {
		t.Fatal("disabled channel must never reach the credit check")
	}
}

func TestAdmit_ZeroPriceChannelAlwaysQueues(t *testing.T) {
	store := newFakeStore(0)
	g := NewGate(&fakeConfig{enabled: true}, store, Pricing{}, zap.NewNop())

	j := testJob("j1")
	j.Channel = model.ChannelInApp
	out, err := g.Admit(context.Background(), j)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if out != OutcomeQueued {
		t.Fatalf("outcome = %v, want queued for zero-price channel", out)
	}
}

func TestAdmit_StoreErrorPropagates(t *testing.T) {
	store := newFakeStore(10)
	store.admitErr = errors.New("deadlock")
	g := NewGate(&fakeConfig{enabled: true}, store, Pricing{SMS: 1}, zap.NewNop())

	if _, err := g.Admit(context.Background(), testJob("j1")); err == nil {
		t.Fatal("expected store error to propagate")
	}
	if len(store.parked) != 0 {
		t.Fatal("hard store errors must not park the job")
	}
}
