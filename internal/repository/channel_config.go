package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/paktel/notify-gateway/internal/model"
)

// ChannelConfigRepository reads per-tenant, per-source channel switches.
// Configuration rows are externally managed; this side is read-only.
type ChannelConfigRepository interface {
	// Get returns nil when no active row exists for the pair.
	Get(ctx context.Context, tenantID int64, sourceType string) (*model.TenantChannelConfig, error)
}

type channelConfigRepo struct {
	db *sqlx.DB
}

func NewChannelConfigRepository(db *sqlx.DB) ChannelConfigRepository {
	return &channelConfigRepo{db: db}
}

func (r *channelConfigRepo) Get(ctx context.Context, tenantID int64, sourceType string) (*model.TenantChannelConfig, error) {
	var c model.TenantChannelConfig
	err := r.db.GetContext(ctx, &c, `
		SELECT tenant_id, source_type_code, channels_enabled, is_enabled, is_active,
		       created_at, updated_at
		  FROM tenant_channel_configs
		 WHERE tenant_id = ? AND source_type_code = ? AND is_active = 1
		 LIMIT 1
	`, tenantID, sourceType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
