package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/paktel/notify-gateway/internal/model"
)

// ArchivedEvent is the denormalized shape the Kafka/ClickHouse pipeline
// materializes for long-horizon queries.
type ArchivedEvent struct {
	ID             string    `db:"id" json:"id"`
	TenantID       int64     `db:"tenant_id" json:"tenant_id"`
	IsLive         bool      `db:"is_live" json:"is_live"`
	EventTypeCode  string    `db:"event_type_code" json:"event_type_code"`
	Channel        string    `db:"channel_code" json:"channel_code"`
	SourceTypeCode string    `db:"source_type_code" json:"source_type_code"`
	SourceID       string    `db:"source_id" json:"source_id"`
	Status         string    `db:"status_code" json:"status_code"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ArchiveRepository lists archived job events from ClickHouse (the
// latest-state view fed by the outbox pipeline).
type ArchiveRepository interface {
	List(ctx context.Context, f model.EventFilter) ([]ArchivedEvent, error)
}

type archiveRepo struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewArchiveRepository(ch *sqlx.DB) ArchiveRepository {
	return &archiveRepo{ch: ch}
}

func (r *archiveRepo) List(ctx context.Context, f model.EventFilter) ([]ArchivedEvent, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	page := f.Page
	if page < 1 {
		page = 1
	}

	q := `
		SELECT id, tenant_id, is_live, event_type_code, channel_code,
		       source_type_code, source_id, status_code, created_at
		  FROM notifygw.events_latest
		 WHERE 1 = 1
	`
	args := []any{}

	if f.TenantID > 0 {
		q += " AND tenant_id = ?"
		args = append(args, f.TenantID)
	}
	if f.Status != "" {
		q += " AND status_code = ?"
		args = append(args, f.Status.String())
	}
	if f.Channel != "" {
		q += " AND channel_code = ?"
		args = append(args, f.Channel.String())
	}
	if f.SourceTypeCode != "" {
		q += " AND source_type_code = ?"
		args = append(args, f.SourceTypeCode)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q += " AND source_id LIKE ?"
		args = append(args, "%"+s+"%")
	}
	if !f.CreatedFrom.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, f.CreatedFrom)
	}
	if !f.CreatedTo.IsZero() {
		q += " AND created_at < ?"
		args = append(args, f.CreatedTo)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	var rows []ArchivedEvent
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
