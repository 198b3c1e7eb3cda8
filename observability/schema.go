package observability

import (
	"database/sql"
	"fmt"
	"strings"
)

// Schema is the DDL of the command audit trail. Only command metadata is
// stored; analysis results never are.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    entry_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    operation TEXT NOT NULL,
    transport TEXT NOT NULL DEFAULT '',
    request_id TEXT,
    session_id TEXT,
    remote_addr TEXT,
    page_url TEXT,
    parameters TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL,
    error_message TEXT,
    duration_ms INTEGER,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_log(operation, status);
`

// Init applies Schema.
func Init(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("observability: init schema: %w", err)
	}
	// Databases created before remote_addr existed.
	if _, err := db.Exec(`ALTER TABLE audit_log ADD COLUMN remote_addr TEXT`); err != nil && !strings.Contains(err.Error(), "duplicate column") {
		return fmt.Errorf("observability: migrate schema: %w", err)
	}
	return nil
}
