package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/paktel/notify-gateway/internal/model"
)

type TemplatesRepository interface {
	Get(ctx context.Context, key string, channel model.Channel) (*model.Template, error)
}

type templatesRepo struct {
	db *sqlx.DB
}

func NewTemplatesRepository(db *sqlx.DB) TemplatesRepository {
	return &templatesRepo{db: db}
}

func (r *templatesRepo) Get(ctx context.Context, key string, channel model.Channel) (*model.Template, error) {
	var t model.Template
	err := r.db.GetContext(ctx, &t, `
		SELECT template_key, channel_code, body, created_at, updated_at
		  FROM templates
		 WHERE template_key = ? AND channel_code = ?
		 LIMIT 1
	`, key, channel.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
