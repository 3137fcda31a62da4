package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/edugatenow/edugate/pkg/storage/postgres"
)

// Schema creates audit_logs, its indexes and the guard trigger. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	user_email TEXT NOT NULL DEFAULT '',
	user_name TEXT NOT NULL DEFAULT '',
	user_role TEXT NOT NULL DEFAULT '',
	action VARCHAR(32) NOT NULL,
	entity_type VARCHAR(32) NOT NULL,
	entity_id TEXT NOT NULL DEFAULT '',
	entity_name TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	changes JSONB,
	ip_address VARCHAR(64) NOT NULL DEFAULT '',
	request_method VARCHAR(10) NOT NULL DEFAULT '',
	request_path TEXT NOT NULL DEFAULT '',
	status_code INTEGER,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
CREATE INDEX IF NOT EXISTS idx_audit_logs_entity_type ON audit_logs(entity_type);

CREATE OR REPLACE FUNCTION audit_logs_guard() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'UPDATE' THEN
		RAISE EXCEPTION 'audit_logs is append-only';
	END IF;
	IF current_setting('edugate.audit_retention', true) IS DISTINCT FROM 'on' THEN
		RAISE EXCEPTION 'audit_logs rows may only be removed by the retention job';
	END IF;
	RETURN OLD;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS audit_logs_guard_rows ON audit_logs;
CREATE TRIGGER audit_logs_guard_rows BEFORE UPDATE OR DELETE ON audit_logs
	FOR EACH ROW EXECUTE FUNCTION audit_logs_guard();

DROP TRIGGER IF EXISTS audit_logs_guard_truncate ON audit_logs;
CREATE TRIGGER audit_logs_guard_truncate BEFORE TRUNCATE ON audit_logs
	FOR EACH STATEMENT EXECUTE FUNCTION audit_logs_guard();
`

const entryColumns = `id, user_id, user_email, user_name, user_role,
	action, entity_type, entity_id, entity_name, description, changes,
	ip_address, request_method, request_path, status_code, error_message, created_at`

// DBLogger writes entries to Postgres and serves searches, preferring a replica
type DBLogger struct {
	conns *postgres.ConnectionManager
}

// NewDBLogger ensures the schema on the primary and returns the sink
func NewDBLogger(ctx context.Context, conns *postgres.ConnectionManager) (*DBLogger, error) {
	if conns == nil || conns.Primary() == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := conns.Primary().ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs schema: %w", err)
	}
	return &DBLogger{conns: conns}, nil
}

// Log inserts entry
func (l *DBLogger) Log(ctx context.Context, entry *Entry) error {
	var changes interface{}
	if len(entry.Changes) > 0 {
		data, err := json.Marshal(entry.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
		changes = string(data)
	}
	status := sql.NullInt64{Int64: int64(entry.StatusCode), Valid: entry.StatusCode != 0}

	query := `INSERT INTO audit_logs (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := l.conns.Primary().ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.UserEmail, entry.UserName, entry.UserRole,
		string(entry.Action), string(entry.EntityType), entry.EntityID, entry.EntityName,
		entry.Description, changes,
		entry.IPAddress, entry.RequestMethod, entry.RequestPath, status, entry.ErrorMessage,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Search returns one page of matching entries ordered by created_at DESC
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) (*SearchResult, error) {
	filter = filter.normalized()
	where, args := buildWhere(filter)
	db := l.conns.Replica()

	var total int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM audit_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		entryColumns, where, len(args)+1, len(args)+2)
	rows, err := db.QueryContext(ctx, query, append(args, filter.Limit, filter.offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	return &SearchResult{
		Entries: entries,
		Total:   total,
		Page:    filter.Page,
		Limit:   filter.Limit,
		Pages:   pages(total, filter.Limit),
	}, nil
}

func buildWhere(filter SearchFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.Action != "" {
		args = append(args, string(filter.Action))
		clauses = append(clauses, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.EntityType != "" {
		args = append(args, string(filter.EntityType))
		clauses = append(clauses, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(description ILIKE $%d OR user_email ILIKE $%d OR user_name ILIKE $%d OR entity_name ILIKE $%d)",
			n, n, n, n))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	entries := make([]*Entry, 0)
	for rows.Next() {
		var (
			e       Entry
			action  string
			entity  string
			changes []byte
			status  sql.NullInt64
		)
		err := rows.Scan(
			&e.ID, &e.UserID, &e.UserEmail, &e.UserName, &e.UserRole,
			&action, &entity, &e.EntityID, &e.EntityName, &e.Description, &changes,
			&e.IPAddress, &e.RequestMethod, &e.RequestPath, &status, &e.ErrorMessage, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		e.Action = Action(action)
		e.EntityType = EntityType(entity)
		if status.Valid {
			e.StatusCode = int(status.Int64)
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}
	return entries, nil
}

// Close leaves the shared connections open; the ConnectionManager owns them
func (l *DBLogger) Close() error {
	return nil
}
