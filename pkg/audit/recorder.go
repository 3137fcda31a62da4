package audit

import (
	"context"
	"os"

	"github.com/google/uuid"

	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/observability"
)

// Recorder stamps entries and writes them to a sink
type Recorder struct {
	sink    Logger
	clock   clock.Clock
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRecorder creates a Recorder. logger receives sink failures; metrics may be nil.
func NewRecorder(sink Logger, clk clock.Clock, logger *observability.Logger, metrics *observability.Metrics) *Recorder {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}
	return &Recorder{sink: sink, clock: clk, logger: logger, metrics: metrics}
}

// Record writes entry. It never returns an error and never panics: the
// operation being audited has already happened.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	defer observability.RecoverPanicWithCallback(r.logger, "audit.Record", func(interface{}) {
		r.metrics.AuditWriteFailed()
	})

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock.Now().UTC()
	}

	if entry.UserID == "" {
		if id := auth.FromContext(ctx); id != nil {
			entry.UserID = id.UserID
			entry.UserEmail = id.Email
			entry.UserName = id.Name
			entry.UserRole = string(id.Role)
		}
	}

	if meta, ok := RequestMetaFrom(ctx); ok {
		if entry.IPAddress == "" {
			entry.IPAddress = meta.IPAddress
		}
		if entry.RequestMethod == "" {
			entry.RequestMethod = meta.Method
		}
		if entry.RequestPath == "" {
			entry.RequestPath = meta.Path
		}
	}

	if err := r.sink.Log(ctx, &entry); err != nil {
		r.metrics.AuditWriteFailed()
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"audit_id":    entry.ID,
			"action":      string(entry.Action),
			"entity_type": string(entry.EntityType),
			"entity_id":   entry.EntityID,
		}).Error("failed to write audit entry")
		return
	}
	r.metrics.AuditWritten(string(entry.Action), string(entry.EntityType))
}

// Close closes the sink
func (r *Recorder) Close() error {
	return r.sink.Close()
}
