// Package mongo implements storage.DocumentStore on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/query"
	"github.com/edugatenow/edugate/pkg/storage"
)

var tracer = otel.Tracer("github.com/edugatenow/edugate/pkg/storage/mongo")

// Store is a DocumentStore backed by a MongoDB database
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// NewStore connects to MongoDB and verifies the connection
func NewStore(ctx context.Context, cfg storage.Config) (*Store, error) {
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}
	timeout := cfg.MongoTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(cfg.MongoURI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Store{
		client:  client,
		db:      client.Database(cfg.MongoDatabase),
		timeout: timeout,
	}, nil
}

func (s *Store) startSpan(ctx context.Context, op, collection string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Mongo."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mongodb"),
			attribute.String("db.operation", op),
			attribute.String("db.mongodb.collection", collection),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// FindOne decodes the first document matching filter into out
func (s *Store) FindOne(ctx context.Context, collection string, filter query.Filter, out interface{}) (err error) {
	ctx, span := s.startSpan(ctx, "FindOne", collection)
	defer func() { endSpan(span, err) }()

	err = s.db.Collection(collection).FindOne(ctx, RenderFilter(filter)).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find one in %s: %w", collection, err)
	}
	return nil
}

// Find decodes matching documents into out, which must point to a slice
func (s *Store) Find(ctx context.Context, collection string, filter query.Filter, opts storage.FindOptions, out interface{}) (err error) {
	ctx, span := s.startSpan(ctx, "Find", collection)
	defer func() { endSpan(span, err) }()

	findOpts := options.Find()
	if len(opts.Sort) > 0 {
		findOpts.SetSort(RenderSort(opts.Sort))
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cursor, err := s.db.Collection(collection).Find(ctx, RenderFilter(filter), findOpts)
	if err != nil {
		return fmt.Errorf("find in %s: %w", collection, err)
	}
	if err = cursor.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s results: %w", collection, err)
	}
	return nil
}

// CountDocuments counts documents matching filter
func (s *Store) CountDocuments(ctx context.Context, collection string, filter query.Filter) (n int64, err error) {
	ctx, span := s.startSpan(ctx, "CountDocuments", collection)
	defer func() { endSpan(span, err) }()

	n, err = s.db.Collection(collection).CountDocuments(ctx, RenderFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// InsertOne stores doc
func (s *Store) InsertOne(ctx context.Context, collection string, doc interface{}) (err error) {
	ctx, span := s.startSpan(ctx, "InsertOne", collection)
	defer func() { endSpan(span, err) }()

	_, err = s.db.Collection(collection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}
	if err != nil {
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return nil
}

// UpdateOne applies update to the document with id
func (s *Store) UpdateOne(ctx context.Context, collection string, id string, update storage.Update) (err error) {
	ctx, span := s.startSpan(ctx, "UpdateOne", collection)
	defer func() { endSpan(span, err) }()

	res, err := s.db.Collection(collection).UpdateOne(ctx, RenderFilter(storage.ByID(id)), RenderUpdate(update))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindOneAndUpdate applies update to the first document matching filter and
// decodes the updated document into out
func (s *Store) FindOneAndUpdate(ctx context.Context, collection string, filter query.Filter, update storage.Update, out interface{}) (err error) {
	ctx, span := s.startSpan(ctx, "FindOneAndUpdate", collection)
	defer func() { endSpan(span, err) }()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	res := s.db.Collection(collection).FindOneAndUpdate(ctx, RenderFilter(filter), RenderUpdate(update), opts)

	if out == nil {
		var discard bson.M
		out = &discard
	}
	err = res.Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}
	if err != nil {
		return fmt.Errorf("find and update in %s: %w", collection, err)
	}
	return nil
}

// DeleteOne removes the document with id
func (s *Store) DeleteOne(ctx context.Context, collection string, id string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteOne", collection)
	defer func() { endSpan(span, err) }()

	res, err := s.db.Collection(collection).DeleteOne(ctx, RenderFilter(storage.ByID(id)))
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AtomicIncrement adds delta to field with $inc and returns the new value
func (s *Store) AtomicIncrement(ctx context.Context, collection string, id string, field string, delta int64) (int64, error) {
	var out bson.M
	err := s.FindOneAndUpdate(ctx, collection, storage.ByID(id),
		storage.Update{Inc: map[string]int64{field: delta}}, &out)
	if err != nil {
		return 0, err
	}
	for _, v := range query.Lookup(out, field) {
		switch n := v.(type) {
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		}
	}
	return 0, fmt.Errorf("field %s is not numeric after increment", field)
}

// HealthCheck pings the primary
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the scoped queries rely on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for collection, indexes := range Indexes() {
		if _, err := s.db.Collection(collection).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create indexes on %s: %w", collection, err)
		}
	}
	return nil
}

// Indexes returns the index models per collection
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		models.CollectionCustomers: {
			{Keys: bson.D{{Key: "isDeleted", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "createdBy", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "assignment.assignedAgentId", Value: 1}}},
			{Keys: bson.D{{Key: "assignment.assignedAgents.agentId", Value: 1}, {Key: "assignment.assignedAgents.isActive", Value: 1}}},
		},
		models.CollectionFollowups: {
			{Keys: bson.D{{Key: "agentId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "customerId", Value: 1}}},
		},
		models.CollectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
}
