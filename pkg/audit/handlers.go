package audit

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/edugatenow/edugate/pkg/httputil"
	"github.com/edugatenow/edugate/pkg/observability"
)

// MaxExportEntries caps a single export download
const MaxExportEntries = 10000

// Handlers serves the audit viewer
type Handlers struct {
	store    Store
	recorder *Recorder
}

// NewHandlers creates audit handlers. recorder audits exports and may be nil.
func NewHandlers(store Store, recorder *Recorder) *Handlers {
	return &Handlers{store: store, recorder: recorder}
}

// List handles GET /api/audit
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	result, err := h.store.Search(r.Context(), filter)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("audit search failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WritePage(w, result.Entries, httputil.Pagination{
		Page:  result.Page,
		Limit: result.Limit,
		Total: result.Total,
		Pages: result.Pages,
	})
}

// Export handles GET /api/audit/export?format=ndjson|csv with the same filters as List
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	format, err := ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var entries []*Entry
	filter.Limit = 100
	for filter.Page = 1; len(entries) < MaxExportEntries; filter.Page++ {
		result, err := h.store.Search(r.Context(), filter)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Error("audit export failed")
			httputil.WriteInternalError(w)
			return
		}
		entries = append(entries, result.Entries...)
		if int64(filter.Page) >= result.Pages {
			break
		}
	}
	if len(entries) > MaxExportEntries {
		entries = entries[:MaxExportEntries]
	}

	if h.recorder != nil {
		h.recorder.Record(r.Context(), Entry{
			Action:      ActionExport,
			EntityType:  EntityAuth,
			Description: fmt.Sprintf("Exported %d audit entries as %s", len(entries), format),
		})
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=audit-logs.%s", format))
	w.WriteHeader(http.StatusOK)
	if err := format.Write(w, entries); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("audit export write failed")
	}
}

func parseFilter(w http.ResponseWriter, r *http.Request) (SearchFilter, bool) {
	page, limit, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return SearchFilter{}, false
	}

	filter := SearchFilter{
		Page:   page,
		Limit:  limit,
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	}
	if a := r.URL.Query().Get("action"); a != "" {
		filter.Action = Action(strings.ToUpper(a))
		if !filter.Action.IsValid() {
			httputil.WriteBadRequest(w, fmt.Sprintf("unknown action %q", a))
			return SearchFilter{}, false
		}
	}
	if t := r.URL.Query().Get("entityType"); t != "" {
		filter.EntityType = EntityType(t)
		if !filter.EntityType.IsValid() {
			httputil.WriteBadRequest(w, fmt.Sprintf("unknown entity type %q", t))
			return SearchFilter{}, false
		}
	}
	return filter, true
}
