package db

import (
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

type MySQLOpts struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// NewMySQLConnection opens the primary store. The DSN needs
// parseTime=true (time.Time scanning) and multiStatements=true (the
// migrate command runs a whole script in one exec).
func NewMySQLConnection(dsn string, opts MySQLOpts) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, errors.New("mysql: empty DSN")
	}
	conn, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql open: %w", err)
	}
	tunePool(conn, poolOpts{
		maxOpen:     opts.MaxOpenConns,
		maxIdle:     opts.MaxIdleConns,
		maxLifetime: opts.ConnMaxLifetime,
		maxIdleTime: opts.ConnMaxIdleTime,
	})

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := pingWithin(conn, timeout); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return conn, nil
}
