package storage

import (
	"context"
	"errors"
	"time"

	"github.com/edugatenow/edugate/pkg/query"
)

var (
	// ErrNotFound is returned when no document matches
	ErrNotFound = errors.New("document not found")

	// ErrDuplicate is returned when an insert collides with an existing id or unique key
	ErrDuplicate = errors.New("duplicate document")
)

// SortField orders results by one field
type SortField struct {
	Field      string
	Descending bool
}

// FindOptions controls ordering and paging of Find
type FindOptions struct {
	Sort  []SortField
	Skip  int64
	Limit int64
}

// Update describes an atomic single-document modification
type Update struct {
	// Set assigns fields (dotted paths allowed)
	Set map[string]interface{}
	// Inc adds to numeric fields
	Inc map[string]int64
	// Push appends a value to array fields
	Push map[string]interface{}
	// Pull removes array elements matching the filter, keyed by array field
	Pull map[string]query.Filter
}

// IsEmpty reports whether the update changes nothing
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Inc) == 0 && len(u.Push) == 0 && len(u.Pull) == 0
}

// DocumentReader reads documents. out arguments are decoded with the bson codec.
type DocumentReader interface {
	FindOne(ctx context.Context, collection string, filter query.Filter, out interface{}) error
	Find(ctx context.Context, collection string, filter query.Filter, opts FindOptions, out interface{}) error
	CountDocuments(ctx context.Context, collection string, filter query.Filter) (int64, error)
}

// DocumentWriter mutates documents. Every method is atomic per document.
type DocumentWriter interface {
	InsertOne(ctx context.Context, collection string, doc interface{}) error
	UpdateOne(ctx context.Context, collection string, id string, update Update) error
	// FindOneAndUpdate applies update to the first document matching filter and
	// decodes the updated document into out. Returns ErrNotFound when nothing
	// matched; callers use the filter as a compare-and-set condition.
	FindOneAndUpdate(ctx context.Context, collection string, filter query.Filter, update Update, out interface{}) error
	DeleteOne(ctx context.Context, collection string, id string) error
	// AtomicIncrement adds delta to field and returns the new value
	AtomicIncrement(ctx context.Context, collection string, id string, field string, delta int64) (int64, error)
}

// DocumentStore is the document database the CRM runs on
type DocumentStore interface {
	DocumentReader
	DocumentWriter
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ByID matches a document by its _id
func ByID(id string) query.Filter {
	return query.Eq("_id", id)
}

// Config for storage backends
type Config struct {
	Type string // "memory" or "mongo"

	// MongoDB config
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	// PostgreSQL config (audit log)
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// S3 config (audit archive)
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Redis config (shared rate limit and CSRF state)
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		MongoDatabase:    "edugate",
		MongoTimeout:     10 * time.Second,
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		S3Region:         "us-east-1",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
	}
}
