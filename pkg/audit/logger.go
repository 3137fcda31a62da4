package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Logger is an audit sink. Implementations only append.
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	Close() error
}

// Store is the read side used by the audit viewer
type Store interface {
	Search(ctx context.Context, filter SearchFilter) (*SearchResult, error)
}

// MemoryLogger keeps entries in process memory
type MemoryLogger struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryLogger creates an empty in-memory sink
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) Log(ctx context.Context, entry *Entry) error {
	copied := *entry
	copied.Changes = append([]FieldChange(nil), entry.Changes...)

	l.mu.Lock()
	l.entries = append(l.entries, &copied)
	l.mu.Unlock()
	return nil
}

// Entries returns a snapshot in insertion order
func (l *MemoryLogger) Entries() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Entry(nil), l.entries...)
}

// Search applies the same filters as DBLogger.Search
func (l *MemoryLogger) Search(ctx context.Context, filter SearchFilter) (*SearchResult, error) {
	filter = filter.normalized()
	needle := strings.ToLower(strings.TrimSpace(filter.Search))

	l.mu.RLock()
	matched := make([]*Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if needle != "" && !containsFold(needle, e.Description, e.UserEmail, e.UserName, e.EntityName) {
			continue
		}
		matched = append(matched, e)
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := filter.offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}

	return &SearchResult{
		Entries: matched[start:end],
		Total:   total,
		Page:    filter.Page,
		Limit:   filter.Limit,
		Pages:   pages(total, filter.Limit),
	}, nil
}

func containsFold(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func (l *MemoryLogger) Close() error { return nil }

// MultiLogger writes every entry to each of its sinks in order
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a fan-out sink
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes to every sink even when an earlier one fails
func (m *MultiLogger) Log(ctx context.Context, entry *Entry) error {
	var errs []error
	for i, l := range m.loggers {
		if err := l.Log(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
