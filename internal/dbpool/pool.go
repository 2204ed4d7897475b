// Package dbpool owns the PostgreSQL pool shared by the checkout ledger and
// anything else that needs the database.
package dbpool

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/veya/storefront/internal/config"
)

// SharedPool is one *sql.DB handed to several stores.
type SharedPool struct {
	db *sql.DB
}

// Open connects, pings within timeout and applies the pool limits.
func Open(connectionString string, poolConfig config.PostgresPoolConfig, timeout time.Duration) (*SharedPool, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	config.ApplyPostgresPoolSettings(db, poolConfig)
	return &SharedPool{db: db}, nil
}

// DB returns the pool.
func (p *SharedPool) DB() *sql.DB {
	return p.db
}

// Close closes the pool; stores built on it must not be used afterwards.
func (p *SharedPool) Close() error {
	return p.db.Close()
}
