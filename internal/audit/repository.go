package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"plant-onboarding/internal/onboarding/infrastructure/store"
)

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	actor TEXT NOT NULL,
	role TEXT NOT NULL,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	session TEXT NOT NULL,
	metadata TEXT,
	payload_digest TEXT,
	ip TEXT,
	user_agent TEXT,
	created_at TIMESTAMP NOT NULL
)`

// Repository writes audit logs to the wizard database.
type Repository struct {
	db      *sql.DB
	dialect store.Dialect
}

// NewRepository constructs an audit repository and creates its table.
func NewRepository(db *sql.DB, dialect store.Dialect) (*Repository, error) {
	if db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	if _, err := db.Exec(createAuditTable); err != nil {
		return nil, fmt.Errorf("audit repo: migrate: %w", err)
	}
	return &Repository{db: db, dialect: dialect}, nil
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry.fill()

	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`
INSERT INTO audit_logs (
	id, tenant_id, actor, role, action, resource_type, resource_id, session,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		entry.ID, entry.TenantID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID, entry.Session,
		string(entry.Metadata), entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}

// Count returns the number of entries recorded for an action.
func (r *Repository) Count(ctx context.Context, action string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM audit_logs WHERE action = ?`), action).Scan(&n)
	return n, err
}
