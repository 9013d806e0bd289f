// Package audit provides a durable, queryable sink for tenant.Event
// records: the in-process ring in internal/tenant is bounded and
// ephemeral, while this store persists every event to SQLite so an
// operator can inspect history beyond the ring's capacity.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cordlesssteve/layered-memory/internal/logging"
	"github.com/cordlesssteve/layered-memory/internal/tenant"
)

var log = logging.GetLogger("audit")

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY,
	timestamp  DATETIME NOT NULL,
	tenant_id  TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	event_type TEXT NOT NULL,
	severity   TEXT NOT NULL,
	resource   TEXT NOT NULL,
	action     TEXT NOT NULL,
	metadata   TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_events_tenant ON audit_events(tenant_id, timestamp);
`

// Store is a durable append-only log of tenant.Events.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) a SQLite-backed audit store at path.
func Open(path string) (*Store, error) {
	log.Info("opening audit store", "path", path)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Append persists a single event.
func (s *Store) Append(ev tenant.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := ""
	for k, v := range ev.Metadata {
		meta += k + "=" + v + ";"
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO audit_events (id, timestamp, tenant_id, user_id, event_type, severity, resource, action, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp, ev.TenantID, ev.UserID, ev.EventType, string(ev.Severity), ev.Resource, ev.Action, meta,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ForTenant returns every persisted event for tenantID, newest first,
// capped at limit (0 means no cap).
func (s *Store) ForTenant(tenantID string, limit int) ([]tenant.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, timestamp, tenant_id, user_id, event_type, severity, resource, action
	          FROM audit_events WHERE tenant_id = ? ORDER BY timestamp DESC`
	args := []any{tenantID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []tenant.Event
	for rows.Next() {
		var ev tenant.Event
		var severity string
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.TenantID, &ev.UserID, &ev.EventType, &severity, &ev.Resource, &ev.Action); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Severity = tenant.Severity(severity)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
