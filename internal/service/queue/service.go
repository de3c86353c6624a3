// Package queue is the enqueue service: it persists new jobs together
// with their audit and outbox rows, runs them through the credit gate,
// and answers caller-facing status and cancel requests.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/paktel/notify-gateway/internal/credit"
	"github.com/paktel/notify-gateway/internal/model"
	"github.com/paktel/notify-gateway/internal/util"
	"go.uber.org/zap"
)

// JobStore is the service's slice of the jobs repository.
type JobStore interface {
	Insert(ctx context.Context, job *model.Job, envelope []byte) error
	GetByID(ctx context.Context, id string) (*model.Job, error)
	FindBySource(ctx context.Context, sourceType, sourceID string, isLive bool) (*model.Job, error)
	CancelPending(ctx context.Context, id, reason string) (bool, error)
	RequestCancel(ctx context.Context, id string) (bool, error)
	ConfirmDelivery(ctx context.Context, id string) (bool, error)
}

// Admitter runs the credit gate on a freshly created job.
type Admitter interface {
	Admit(ctx context.Context, job *model.Job) (credit.Outcome, error)
}

// CreateJobRequest carries one enqueue call. TenantID and IsLive come
// from the authenticated API key, not the request body.
type CreateJobRequest struct {
	TenantID int64 `json:"-"`
	IsLive   bool  `json:"-"`

	EventTypeCode  string `json:"event_type_code"`
	Channel        string `json:"channel_code"`
	SourceTypeCode string `json:"source_type_code"`
	SourceID       string `json:"source_id"`

	RecipientName    string `json:"recipient_name"`
	RecipientContact string `json:"recipient_contact"`

	TemplateKey       string        `json:"template_key"`
	TemplateVariables model.JSONMap `json:"template_variables"`
	Payload           model.JSONMap `json:"payload"`
	Metadata          model.JSONMap `json:"metadata"`

	Priority    int `json:"priority"`
	MaxAttempts int `json:"max_attempts"`

	PerformedByType string `json:"performed_by_type"`
	PerformedByID   string `json:"performed_by_id"`
	PerformedByName string `json:"performed_by_name"`
}

func (r *CreateJobRequest) validate() error {
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"event_type_code", r.EventTypeCode},
		{"channel_code", r.Channel},
		{"source_type_code", r.SourceTypeCode},
		{"source_id", r.SourceID},
		{"recipient_contact", r.RecipientContact},
		{"template_key", r.TemplateKey},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", model.ErrValidation, strings.Join(missing, ", "))
	}
	if _, ok := model.ParseChannel(r.Channel); !ok {
		return fmt.Errorf("%w: unknown channel %q", model.ErrValidation, r.Channel)
	}
	if r.Priority < 0 {
		return fmt.Errorf("%w: priority must be >= 0", model.ErrValidation)
	}
	return nil
}

type Service struct {
	jobs     JobStore
	gate     Admitter
	log      *zap.Logger
	attempts int
}

// New constructs the enqueue service. defaultMaxAttempts applies when
// the caller leaves max_attempts unset.
func New(jobs JobStore, gate Admitter, defaultMaxAttempts int, log *zap.Logger) *Service {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = 3
	}
	return &Service{jobs: jobs, gate: gate, attempts: defaultMaxAttempts, log: log}
}

// CreateJob validates, dedupes on (source_type, source_id, is_live),
// persists the job with its history and outbox rows in one transaction
// and runs the credit gate. A prior job for the same source that is not
// failed or cancelled is returned as-is, except one stranded in created,
// which is re-admitted first; failed and cancelled jobs may be
// re-enqueued as fresh ones.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*model.Job, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	channel, _ := model.ParseChannel(req.Channel)

	existing, err := s.jobs.FindBySource(ctx, req.SourceTypeCode, req.SourceID, req.IsLive)
	if err != nil {
		return nil, fmt.Errorf("find by source: %w", err)
	}
	if existing != nil && existing.Status != model.StatusFailed && existing.Status != model.StatusCancelled {
		// A job stuck in created was inserted but never admitted (the
		// gate errored after the insert committed). Admit is idempotent
		// per job, so push it through now instead of stranding it.
		if existing.Status == model.StatusCreated {
			return s.admit(ctx, existing)
		}
		return existing, nil
	}

	job := &model.Job{
		ID:             util.NewID(),
		TenantID:       req.TenantID,
		IsLive:         req.IsLive,
		EventTypeCode:  req.EventTypeCode,
		Channel:        channel,
		SourceTypeCode: req.SourceTypeCode,
		SourceID:       req.SourceID,
		Status:         model.StatusCreated,
		Priority:       req.Priority,
		MaxAttempts:    req.MaxAttempts,

		RecipientName:    req.RecipientName,
		RecipientContact: util.NormalizeContact(channel.String(), req.RecipientContact),

		Payload:           req.Payload,
		TemplateKey:       req.TemplateKey,
		TemplateVariables: req.TemplateVariables,
		Metadata:          req.Metadata,

		PerformedByType: req.PerformedByType,
		PerformedByID:   req.PerformedByID,
		PerformedByName: req.PerformedByName,
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = s.attempts
	}

	envelope, err := json.Marshal(model.JobEnvelope{
		ID:             job.ID,
		TenantID:       job.TenantID,
		IsLive:         job.IsLive,
		EventTypeCode:  job.EventTypeCode,
		Channel:        job.Channel,
		SourceTypeCode: job.SourceTypeCode,
		SourceID:       job.SourceID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	if err := s.jobs.Insert(ctx, job, envelope); err != nil {
		// A racing create for the same source slipped in between the
		// lookup and the insert: surface the winner, but only a live
		// one. The unique key ignores terminal rows, so a terminal
		// winner here means the lookup raced a transition too.
		if errors.Is(err, model.ErrDuplicate) {
			winner, ferr := s.jobs.FindBySource(ctx, req.SourceTypeCode, req.SourceID, req.IsLive)
			if ferr == nil && winner != nil && winner.Status != model.StatusFailed && winner.Status != model.StatusCancelled {
				if winner.Status == model.StatusCreated {
					return s.admit(ctx, winner)
				}
				return winner, nil
			}
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.admit(ctx, job)
}

// admit runs the credit gate on a persisted job and reflects the
// outcome on the returned copy. Safe to re-run for a job stranded in
// created: the debit ledger key makes the gate idempotent per job.
func (s *Service) admit(ctx context.Context, job *model.Job) (*model.Job, error) {
	outcome, err := s.gate.Admit(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("admit: %w", err)
	}
	switch outcome {
	case credit.OutcomeQueued:
		job.Status = model.StatusQueued
	case credit.OutcomeParked:
		job.Status = model.StatusWaitingCredits
	case credit.OutcomeCancelled:
		job.Status = model.StatusCancelled
	}

	s.log.Info("job admitted",
		zap.String("job_id", job.ID),
		zap.Int64("tenant_id", job.TenantID),
		zap.String("channel", job.Channel.String()),
		zap.String("status", job.Status.String()))
	return job, nil
}

// JobStatus looks a job up by its source key.
func (s *Service) JobStatus(ctx context.Context, tenantID int64, sourceType, sourceID string, isLive bool) (*model.Job, error) {
	job, err := s.jobs.FindBySource(ctx, sourceType, sourceID, isLive)
	if err != nil {
		return nil, err
	}
	if job == nil || job.TenantID != tenantID {
		return nil, model.ErrNotFound
	}
	return job, nil
}

// Cancel stops a job if its state still allows it. Pending jobs are
// cancelled outright; a job mid-send only gets cancel_requested set so
// the worker skips the retry; terminal jobs yield ErrConflict.
func (s *Service) Cancel(ctx context.Context, tenantID int64, jobID string) (*model.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.TenantID != tenantID {
		return nil, model.ErrNotFound
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: job already %s", model.ErrConflict, job.Status)
	}

	if job.Status == model.StatusSending {
		if _, err := s.jobs.RequestCancel(ctx, jobID); err != nil {
			return nil, fmt.Errorf("request cancel: %w", err)
		}
		return s.jobs.GetByID(ctx, jobID)
	}

	moved, err := s.jobs.CancelPending(ctx, jobID, "cancelled by caller")
	if err != nil {
		return nil, fmt.Errorf("cancel pending: %w", err)
	}
	if !moved {
		// Lost the race against a worker or another cancel.
		return nil, fmt.Errorf("%w: job no longer cancellable", model.ErrConflict)
	}
	return s.jobs.GetByID(ctx, jobID)
}

// ConfirmDelivery completes a sent job when the provider reports
// delivery (the async-channel webhook path).
func (s *Service) ConfirmDelivery(ctx context.Context, jobID string) error {
	moved, err := s.jobs.ConfirmDelivery(ctx, jobID)
	if err != nil {
		return err
	}
	if !moved {
		job, gerr := s.jobs.GetByID(ctx, jobID)
		if gerr != nil {
			return gerr
		}
		if job.Status == model.StatusCompleted {
			return nil // already confirmed, idempotent
		}
		return fmt.Errorf("%w: job is %s, not sent", model.ErrConflict, job.Status)
	}
	return nil
}
