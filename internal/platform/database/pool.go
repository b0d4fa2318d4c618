// Package database opens the Postgres pool behind the durable audit store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"sharedauth/internal/platform/config"
	"sharedauth/pkg/platform/sentinel"
)

const (
	applicationName    = "shared-auth"
	defaultPingTimeout = 5 * time.Second
)

type Pool struct {
	db *sql.DB
}

// New opens a pgx-backed pool for audit events. It returns nil, nil when no
// URL is configured and audit events stay in memory.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	connCfg, err := connConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping audit database: %w: %w", sentinel.ErrUnavailable, err)
	}
	return &Pool{db: db}, nil
}

// connConfig parses the URL and tags every session with the application
// name, so audit writes are attributable in pg_stat_activity. An explicit
// application_name in the URL wins.
func connConfig(url string) (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if connCfg.RuntimeParams == nil {
		connCfg.RuntimeParams = map[string]string{}
	}
	if connCfg.RuntimeParams["application_name"] == "" {
		connCfg.RuntimeParams["application_name"] = applicationName
	}
	return connCfg, nil
}

func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health pings the audit database.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("audit database not configured: %w", sentinel.ErrUnavailable)
	}
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (p *Pool) Name() string {
	return "postgres"
}

func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
