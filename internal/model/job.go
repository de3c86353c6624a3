package model

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type JobStatus string

const (
	StatusCreated        JobStatus = "created"
	StatusWaitingCredits JobStatus = "waiting_credits"
	StatusQueued         JobStatus = "queued"
	StatusSending        JobStatus = "sending"
	StatusSent           JobStatus = "sent"
	StatusCompleted      JobStatus = "completed"
	StatusFailed         JobStatus = "failed"
	StatusCancelled      JobStatus = "cancelled"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusWaitingCredits, StatusQueued, StatusSending,
		StatusSent, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// JSONMap is a map column stored as JSON text.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("jsonmap: unsupported source %T", src)
	}
	if len(b) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(b, m)
}

// Job is the DB entity persisted in the jobs table: one outbound
// notification tracked through its whole lifecycle.
type Job struct {
	ID       string `db:"id"`
	TenantID int64  `db:"tenant_id"`
	IsLive   bool   `db:"is_live"`

	EventTypeCode  string  `db:"event_type_code"`
	Channel        Channel `db:"channel_code"`
	SourceTypeCode string  `db:"source_type_code"`
	SourceID       string  `db:"source_id"`

	Status       JobStatus `db:"status_code"`
	Priority     int       `db:"priority"` // lower = more urgent
	AttemptCount int       `db:"attempt_count"`
	MaxAttempts  int       `db:"max_attempts"`

	RecipientName    string `db:"recipient_name"`
	RecipientContact string `db:"recipient_contact"`

	Payload           JSONMap `db:"payload"`
	TemplateKey       string  `db:"template_key"`
	TemplateVariables JSONMap `db:"template_variables"`
	Metadata          JSONMap `db:"metadata"`

	PerformedByType string `db:"performed_by_type"`
	PerformedByID   string `db:"performed_by_id"`
	PerformedByName string `db:"performed_by_name"`

	ClaimedBy       sql.NullString `db:"claimed_by"`
	CancelRequested bool           `db:"cancel_requested"`
	NextAttemptAt   sql.NullTime   `db:"next_attempt_at"`
	ErrorMessage    sql.NullString `db:"error_message"`

	CreatedAt   time.Time    `db:"created_at"`
	QueuedAt    sql.NullTime `db:"queued_at"`
	ExecutedAt  sql.NullTime `db:"executed_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

// StatusTransition is one row of a job's audit trail (job_status_history).
type StatusTransition struct {
	ID         int64     `db:"id"`
	JobID      string    `db:"job_id"`
	FromStatus JobStatus `db:"from_status"`
	ToStatus   JobStatus `db:"to_status"`
	Note       string    `db:"note"`
	CreatedAt  time.Time `db:"created_at"`
}
