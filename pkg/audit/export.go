package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatNDJSON ExportFormat = "ndjson"
	ExportFormatCSV    ExportFormat = "csv"
)

// ParseExportFormat defaults to NDJSON
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", ExportFormatNDJSON:
		return ExportFormatNDJSON, nil
	case ExportFormatCSV:
		return ExportFormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type for f
func (f ExportFormat) ContentType() string {
	if f == ExportFormatCSV {
		return "text/csv"
	}
	return "application/x-ndjson"
}

// Write encodes entries to w in format f
func (f ExportFormat) Write(w io.Writer, entries []*Entry) error {
	if f == ExportFormatCSV {
		return WriteCSV(w, entries)
	}
	return WriteNDJSON(w, entries)
}

// WriteNDJSON writes one JSON object per line
func WriteNDJSON(w io.Writer, entries []*Entry) error {
	encoder := json.NewEncoder(w)
	for _, e := range entries {
		if err := encoder.Encode(e); err != nil {
			return fmt.Errorf("failed to encode entry: %w", err)
		}
	}
	return nil
}

var csvHeader = []string{
	"id", "createdAt", "action", "entityType", "entityId", "entityName", "description",
	"userId", "userEmail", "userName", "userRole",
	"ipAddress", "requestMethod", "requestPath", "statusCode", "errorMessage", "changes",
}

// WriteCSV writes entries with a header row; changes are embedded as JSON
func WriteCSV(w io.Writer, entries []*Entry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range entries {
		changes := ""
		if len(e.Changes) > 0 {
			data, err := json.Marshal(e.Changes)
			if err != nil {
				return err
			}
			changes = string(data)
		}
		status := ""
		if e.StatusCode != 0 {
			status = strconv.Itoa(e.StatusCode)
		}

		row := []string{
			e.ID, e.CreatedAt.UTC().Format(time.RFC3339), string(e.Action), string(e.EntityType),
			e.EntityID, e.EntityName, e.Description,
			e.UserID, e.UserEmail, e.UserName, e.UserRole,
			e.IPAddress, e.RequestMethod, e.RequestPath, status, e.ErrorMessage, changes,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
