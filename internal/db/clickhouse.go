package db

import (
	"errors"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
)

type ClickHouseOpts struct {
	// DSN like clickhouse://default:@localhost:9000/notifygw?dial_timeout=5s&compress=true
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// NewClickHouseConnection opens the archive store used by the admin
// event-history reads. Writes land there through the Debezium pipeline,
// never through this connection.
func NewClickHouseConnection(opts ClickHouseOpts) (*sqlx.DB, error) {
	if opts.DSN == "" {
		return nil, errors.New("clickhouse: empty DSN")
	}
	conn, err := sqlx.Open("clickhouse", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	tunePool(conn, poolOpts{
		maxOpen:     opts.MaxOpenConns,
		maxIdle:     opts.MaxIdleConns,
		maxLifetime: opts.ConnMaxLifetime,
		maxIdleTime: opts.ConnMaxIdleTime,
	})

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if err := pingWithin(conn, timeout); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return conn, nil
}
