package model

import "time"

type Tenant struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	APIKey       string    `db:"api_key"`
	Status       string    `db:"status"` // active|suspended
	IsAdmin      bool      `db:"is_admin"`
	RateLimitRPS *int      `db:"rate_limit_rps"` // nullable
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// CreditAccount is a tenant's balance for one environment. Live and test
// credits are separate rows and never mix.
type CreditAccount struct {
	TenantID  int64     `db:"tenant_id"`
	IsLive    bool      `db:"is_live"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
