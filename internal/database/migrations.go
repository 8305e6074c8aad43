package database

import (
	"context"
	"fmt"
	"strings"
)

// schema is shared by both backends; {{amount}} and {{time}} are replaced
// with the column types of the dialect. Groups must be created before
// the tables that reference them.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    avatar_url TEXT,
    created_at {{time}} NOT NULL
);

CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    currency TEXT NOT NULL,
    created_by TEXT NOT NULL REFERENCES users(id),
    created_at {{time}} NOT NULL,
    updated_at {{time}} NOT NULL
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    member_id TEXT NOT NULL REFERENCES users(id),
    role TEXT NOT NULL,
    status TEXT NOT NULL,
    joined_at {{time}} NOT NULL,
    PRIMARY KEY (group_id, member_id)
);

CREATE INDEX IF NOT EXISTS idx_group_members_member ON group_members(member_id);

CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    description TEXT NOT NULL,
    notes TEXT,
    category TEXT NOT NULL,
    amount {{amount}} NOT NULL,
    currency TEXT NOT NULL,
    payer_id TEXT NOT NULL REFERENCES users(id),
    split_type TEXT NOT NULL,
    status TEXT NOT NULL,
    expense_date {{time}} NOT NULL,
    settled_at {{time}},
    created_by TEXT NOT NULL,
    created_at {{time}} NOT NULL,
    updated_at {{time}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_expenses_group_status ON expenses(group_id, status);

CREATE TABLE IF NOT EXISTS expense_splits (
    expense_id TEXT NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
    member_id TEXT NOT NULL REFERENCES users(id),
    amount {{amount}},
    percentage {{amount}},
    shares INTEGER,
    owed_amount {{amount}} NOT NULL,
    PRIMARY KEY (expense_id, member_id)
);

CREATE TABLE IF NOT EXISTS settlements (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    payer_id TEXT NOT NULL REFERENCES users(id),
    payee_id TEXT NOT NULL REFERENCES users(id),
    amount {{amount}} NOT NULL,
    currency TEXT NOT NULL,
    status TEXT NOT NULL,
    notes TEXT,
    created_by TEXT NOT NULL,
    created_at {{time}} NOT NULL,
    updated_at {{time}} NOT NULL,
    completed_at {{time}}
);

CREATE INDEX IF NOT EXISTS idx_settlements_group ON settlements(group_id);

CREATE TABLE IF NOT EXISTS settlement_expenses (
    settlement_id TEXT NOT NULL REFERENCES settlements(id) ON DELETE CASCADE,
    expense_id TEXT NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
    PRIMARY KEY (settlement_id, expense_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    group_id TEXT,
    action TEXT NOT NULL,
    actor_id TEXT,
    details TEXT,
    created_at {{time}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
`

// Migrate creates any missing tables. It is safe to run on every start.
func Migrate(ctx context.Context, db *DB) error {
	amount, ts := "TEXT", "DATETIME"
	if db.dialect == Postgres {
		amount, ts = "NUMERIC(20, 4)", "TIMESTAMPTZ"
	}
	ddl := strings.NewReplacer("{{amount}}", amount, "{{time}}", ts).Replace(schema)

	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
