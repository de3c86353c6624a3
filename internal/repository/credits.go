package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// CreditsRepository manages credit accounts and their ledger. Accounts
// are keyed by (tenant_id, is_live): live and test balances never mix.
// All methods run inside a caller-provided transaction so debits commit
// atomically with job status transitions.
type CreditsRepository interface {
	UpsertAccount(ctx context.Context, tx *sqlx.Tx, tenantID int64, isLive bool) error
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, tenantID int64, isLive bool) (balance int64, err error)
	Adjust(ctx context.Context, tx *sqlx.Tx, tenantID int64, isLive bool, delta int64) error
	Balance(ctx context.Context, tenantID int64, isLive bool) (int64, error)

	ExistsByIdem(ctx context.Context, tx *sqlx.Tx, idem string) (bool, error)
	InsertDebit(ctx context.Context, tx *sqlx.Tx, tenantID int64, isLive bool, amount int64, jobID, idem string) error
	InsertTopup(ctx context.Context, tx *sqlx.Tx, tenantID int64, isLive bool, amount int64, idem string) error
}

type creditsRepo struct {
	db *sqlx.DB
}

func NewCreditsRepository(db *sqlx.DB) CreditsRepository { return &creditsRepo{db: db} }

func (r *creditsRepo) UpsertAccount(ctx context.Context, tx *sqlx.Tx, tenantID int64, isLive bool) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_accounts (tenant_id, is_live, balance, created_at, updated_at)
		VALUES (?, ?, 0, NOW(), NOW())
		ON DUPLICATE KEY UPDATE updated_at = VALUES(updated_at)
	`, tenantID, isLive)
	return err
}

// GetForUpdate row-locks the account so concurrent admissions for the
// same tenant serialize on the balance.
func (r *creditsRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, tenantID int64, isLive bool) (int64, error) {
	var bal int64
	err := tx.QueryRowxContext(ctx, `
		SELECT balance
		  FROM credit_accounts
		 WHERE tenant_id = ? AND is_live = ?
		 FOR UPDATE
	`, tenantID, isLive).Scan(&bal)
	return bal, err
}

func (r *creditsRepo) Adjust(ctx context.Context, tx *sqlx.Tx, tenantID int64, isLive bool, delta int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE credit_accounts
		   SET balance = balance + ?, updated_at = NOW()
		 WHERE tenant_id = ? AND is_live = ?
	`, delta, tenantID, isLive)
	return err
}

func (r *creditsRepo) Balance(ctx context.Context, tenantID int64, isLive bool) (int64, error) {
	var bal int64
	err := r.db.GetContext(ctx, &bal, `
		SELECT balance FROM credit_accounts WHERE tenant_id = ? AND is_live = ?
	`, tenantID, isLive)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return bal, err
}

// ExistsByIdem checks if a ledger row with the given idempotency key already exists.
func (r *creditsRepo) ExistsByIdem(ctx context.Context, tx *sqlx.Tx, idem string) (bool, error) {
	var one int
	err := tx.QueryRowxContext(ctx,
		`SELECT 1 FROM credit_ledger WHERE idempotency_key = ? LIMIT 1`, idem,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *creditsRepo) InsertDebit(ctx context.Context, tx *sqlx.Tx, tenantID int64, isLive bool, amount int64, jobID, idem string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (tenant_id, is_live, op, amount, idempotency_key, job_id)
		VALUES (?, ?, 'debit', ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id
	`, tenantID, isLive, amount, idem, jobID)
	return err
}

func (r *creditsRepo) InsertTopup(ctx context.Context, tx *sqlx.Tx, tenantID int64, isLive bool, amount int64, idem string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (tenant_id, is_live, op, amount, idempotency_key)
		VALUES (?, ?, 'topup', ?, ?)
		ON DUPLICATE KEY UPDATE id = id
	`, tenantID, isLive, amount, idem)
	return err
}
