package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const defaultSQLitePath = ".onboarding.db"

// Backend is a wizard store with its lifecycle.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DB() *sql.DB
	Dialect() Dialect
	Close() error
}

// Config selects the storage backend.
type Config struct {
	Type string // "memory", "sqlite" or "postgres"
	DSN  string // file path for SQLite, DSN for Postgres
}

// New creates a store based on the provided configuration.
func New(cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		if cfg.DSN == "" {
			cfg.DSN = defaultSQLitePath
		}
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres connection string is required")
		}
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
