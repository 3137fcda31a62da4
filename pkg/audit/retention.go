package audit

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/observability"
)

// RetentionResult summarizes one retention run
type RetentionResult struct {
	Cutoff   time.Time
	Archived int
	Location string
	Pruned   int64
}

// Retention archives and deletes entries past the retention period. It is
// the only code path that sets edugate.audit_retention.
type Retention struct {
	db       *sql.DB
	archiver Archiver
	clock    clock.Clock
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewRetention creates a retention job. archiver may be nil to delete without archiving.
func NewRetention(db *sql.DB, archiver Archiver, clk clock.Clock, logger *observability.Logger, metrics *observability.Metrics) *Retention {
	if clk == nil {
		clk = clock.System()
	}
	return &Retention{db: db, archiver: archiver, clock: clk, logger: logger, metrics: metrics}
}

// Run archives then deletes every entry older than retentionDays
func (r *Retention) Run(ctx context.Context, retentionDays int) (*RetentionResult, error) {
	if retentionDays < 1 {
		return nil, fmt.Errorf("retention must be at least 1 day, got %d", retentionDays)
	}
	result := &RetentionResult{Cutoff: r.clock.Now().UTC().AddDate(0, 0, -retentionDays)}

	entries, err := r.Expired(ctx, result.Cutoff)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return result, nil
	}

	if r.archiver != nil {
		var buf bytes.Buffer
		if err := WriteNDJSON(&buf, entries); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("audit-before-%s.ndjson", result.Cutoff.Format("20060102T150405Z"))
		location, err := r.archiver.Archive(ctx, name, buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("archive expired entries: %w", err)
		}
		result.Archived = len(entries)
		result.Location = location
	}

	// only the rows that were archived are deleted
	pruned, err := r.Prune(ctx, result.Cutoff, entries[len(entries)-1].CreatedAt)
	if err != nil {
		return nil, err
	}
	result.Pruned = pruned
	r.metrics.AuditPruned(pruned)

	if r.logger != nil {
		r.logger.WithFields(map[string]interface{}{
			"cutoff":   result.Cutoff,
			"archived": result.Archived,
			"location": result.Location,
			"pruned":   result.Pruned,
		}).Info("audit retention completed")
	}
	return result, nil
}

// Expired returns entries created before cutoff, oldest first
func (r *Retention) Expired(ctx context.Context, cutoff time.Time) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM audit_logs WHERE created_at < $1 ORDER BY created_at ASC", cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired audit logs: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Prune deletes entries created before cutoff and no later than newest, in a
// transaction that unlocks the delete trigger
func (r *Retention) Prune(ctx context.Context, cutoff, newest time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin retention transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SET LOCAL edugate.audit_retention = 'on'"); err != nil {
		return 0, fmt.Errorf("failed to enable retention: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM audit_logs WHERE created_at < $1 AND created_at <= $2", cutoff, newest)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired audit logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit retention: %w", err)
	}
	return n, nil
}
