package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Dialect selects placeholder style and DDL.
type Dialect string

const (
	DialectNone     Dialect = ""
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Rebind rewrites '?' placeholders to the dialect's form.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQL is a key/value store over database/sql.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

func newSQL(db *sql.DB, dialect Dialect) (*SQL, error) {
	if db == nil {
		return nil, errors.New("store: nil db")
	}
	s := &SQL{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQL) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS wizard_kv (
	store_key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`)
	return err
}

// Load returns the blob stored under key.
func (s *SQL) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT value FROM wizard_kv WHERE store_key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

// Save upserts the blob stored under key.
func (s *SQL) Save(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
INSERT INTO wizard_kv (store_key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (store_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		key, string(value), time.Now().UTC())
	return err
}

// Delete removes key.
func (s *SQL) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM wizard_kv WHERE store_key = ?`), key)
	return err
}

// DB exposes the handle for metrics and audit.
func (s *SQL) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect.
func (s *SQL) Dialect() Dialect { return s.dialect }

// Close closes the database connection.
func (s *SQL) Close() error { return s.db.Close() }
