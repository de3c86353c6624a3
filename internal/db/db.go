// Package db opens the backing stores. Every constructor verifies the
// connection before returning so a bad DSN fails at process start, not
// on the first query.
package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type poolOpts struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}

func tunePool(conn *sqlx.DB, o poolOpts) {
	if o.maxOpen > 0 {
		conn.SetMaxOpenConns(o.maxOpen)
	}
	if o.maxIdle > 0 {
		conn.SetMaxIdleConns(o.maxIdle)
	}
	if o.maxLifetime > 0 {
		conn.SetConnMaxLifetime(o.maxLifetime)
	}
	if o.maxIdleTime > 0 {
		conn.SetConnMaxIdleTime(o.maxIdleTime)
	}
}

func pingWithin(conn *sqlx.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return conn.PingContext(ctx)
}
