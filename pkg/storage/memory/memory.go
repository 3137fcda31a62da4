// Package memory provides an in-process DocumentStore. Documents are kept in
// their BSON form so filters, updates and decoding behave as they do against
// MongoDB.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/edugatenow/edugate/pkg/query"
	"github.com/edugatenow/edugate/pkg/storage"
)

type collection struct {
	docs  map[string]bson.M
	order []string
}

// Store is a mutex-guarded document store. All operations on one store are
// serialized, so every single-document update is atomic.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
	unique      map[string][]string
}

// Option configures a Store
type Option func(*Store)

// WithUniqueIndex rejects inserts and updates that would duplicate field within collection
func WithUniqueIndex(collectionName, field string) Option {
	return func(s *Store) {
		s.unique[collectionName] = append(s.unique[collectionName], field)
	}
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]*collection),
		unique:      make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]bson.M)}
		s.collections[name] = c
	}
	return c
}

// InsertOne stores doc. The document must carry a string _id.
func (s *Store) InsertOne(ctx context.Context, collectionName string, doc interface{}) error {
	m, err := toDocument(doc)
	if err != nil {
		return err
	}
	id, ok := m["_id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("document in %s has no string _id", collectionName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collectionName)
	if _, exists := c.docs[id]; exists {
		return fmt.Errorf("%w: %s/%s", storage.ErrDuplicate, collectionName, id)
	}
	if err := s.checkUnique(collectionName, c, id, m); err != nil {
		return err
	}
	c.docs[id] = m
	c.order = append(c.order, id)
	return nil
}

// FindOne decodes the first document matching filter into out
func (s *Store) FindOne(ctx context.Context, collectionName string, filter query.Filter, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.matching(collectionName, filter)
	if len(docs) == 0 {
		return storage.ErrNotFound
	}
	return decode(docs[0], out)
}

// Find decodes matching documents into out, which must point to a slice
func (s *Store) Find(ctx context.Context, collectionName string, filter query.Filter, opts storage.FindOptions, out interface{}) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("find result must be a pointer to a slice, got %T", out)
	}

	s.mu.Lock()
	docs := s.matching(collectionName, filter)
	s.mu.Unlock()

	if len(opts.Sort) > 0 {
		sort.SliceStable(docs, func(i, j int) bool {
			return less(docs[i], docs[j], opts.Sort)
		})
	}

	if opts.Skip > 0 {
		if opts.Skip >= int64(len(docs)) {
			docs = nil
		} else {
			docs = docs[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int64(len(docs)) > opts.Limit {
		docs = docs[:opts.Limit]
	}

	slice := rv.Elem()
	elemType := slice.Type().Elem()
	result := reflect.MakeSlice(slice.Type(), 0, len(docs))
	for _, doc := range docs {
		elem := reflect.New(elemType)
		if err := decode(doc, elem.Interface()); err != nil {
			return err
		}
		result = reflect.Append(result, elem.Elem())
	}
	slice.Set(result)
	return nil
}

// CountDocuments counts documents matching filter
func (s *Store) CountDocuments(ctx context.Context, collectionName string, filter query.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.matching(collectionName, filter))), nil
}

// UpdateOne applies update to the document with id
func (s *Store) UpdateOne(ctx context.Context, collectionName string, id string, update storage.Update) error {
	return s.FindOneAndUpdate(ctx, collectionName, storage.ByID(id), update, nil)
}

// FindOneAndUpdate applies update to the first document matching filter and
// decodes the result into out when out is non-nil
func (s *Store) FindOneAndUpdate(ctx context.Context, collectionName string, filter query.Filter, update storage.Update, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collectionName)
	for _, id := range c.order {
		doc := c.docs[id]
		if !filter.Match(doc) {
			continue
		}
		updated, err := applyUpdate(doc, update)
		if err != nil {
			return err
		}
		if err := s.checkUnique(collectionName, c, id, updated); err != nil {
			return err
		}
		c.docs[id] = updated
		if out != nil {
			return decode(updated, out)
		}
		return nil
	}
	return storage.ErrNotFound
}

// DeleteOne removes the document with id
func (s *Store) DeleteOne(ctx context.Context, collectionName string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collectionName)
	if _, ok := c.docs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// AtomicIncrement adds delta to field on the document with id
func (s *Store) AtomicIncrement(ctx context.Context, collectionName string, id string, field string, delta int64) (int64, error) {
	var out bson.M
	err := s.FindOneAndUpdate(ctx, collectionName, storage.ByID(id),
		storage.Update{Inc: map[string]int64{field: delta}}, &out)
	if err != nil {
		return 0, err
	}
	for _, v := range query.Lookup(out, field) {
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	}
	return 0, fmt.Errorf("field %s is not numeric after increment", field)
}

// HealthCheck always succeeds
func (s *Store) HealthCheck(ctx context.Context) error { return nil }

// Close is a no-op
func (s *Store) Close(ctx context.Context) error { return nil }

// matching returns documents in insertion order. Caller holds s.mu.
func (s *Store) matching(collectionName string, filter query.Filter) []bson.M {
	c := s.coll(collectionName)
	var out []bson.M
	for _, id := range c.order {
		if doc := c.docs[id]; filter.Match(doc) {
			out = append(out, doc)
		}
	}
	return out
}

func (s *Store) checkUnique(collectionName string, c *collection, id string, doc bson.M) error {
	for _, field := range s.unique[collectionName] {
		values := query.Lookup(doc, field)
		if len(values) == 0 {
			continue
		}
		for otherID, other := range c.docs {
			if otherID == id {
				continue
			}
			if query.Eq(field, values[0]).Match(other) {
				return fmt.Errorf("%w: %s.%s", storage.ErrDuplicate, collectionName, field)
			}
		}
	}
	return nil
}

func less(a, b bson.M, fields []storage.SortField) bool {
	for _, f := range fields {
		av, bv := first(query.Lookup(a, f.Field)), first(query.Lookup(b, f.Field))
		cmp, ok := query.Compare(av, bv)
		if !ok || cmp == 0 {
			continue
		}
		if f.Descending {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

func first(values []interface{}) interface{} {
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// toDocument converts any bson-encodable value into a bson.M copy
func toDocument(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to normalize document: %w", err)
	}
	return m, nil
}

// toValue converts a single value into its stored bson form
func toValue(v interface{}) (interface{}, error) {
	m, err := toDocument(bson.M{"v": v})
	if err != nil {
		return nil, err
	}
	return m["v"], nil
}

func decode(doc bson.M, out interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// applyUpdate returns a modified copy of doc
func applyUpdate(doc bson.M, u storage.Update) (bson.M, error) {
	updated, err := toDocument(doc)
	if err != nil {
		return nil, err
	}

	for path, v := range u.Set {
		val, err := toValue(v)
		if err != nil {
			return nil, err
		}
		setPath(updated, path, val)
	}

	for path, delta := range u.Inc {
		current, _ := toInt64(first(query.Lookup(updated, path)))
		setPath(updated, path, current+delta)
	}

	for path, v := range u.Push {
		val, err := toValue(v)
		if err != nil {
			return nil, err
		}
		arr := query.AsArray(first(query.Lookup(updated, path)))
		next := make(primitive.A, 0, len(arr)+1)
		next = append(next, arr...)
		next = append(next, val)
		setPath(updated, path, next)
	}

	for path, match := range u.Pull {
		arr := query.AsArray(first(query.Lookup(updated, path)))
		next := make(primitive.A, 0, len(arr))
		for _, elem := range arr {
			if sub, ok := query.AsDocument(elem); ok && match.Match(sub) {
				continue
			}
			next = append(next, elem)
		}
		setPath(updated, path, next)
	}

	return updated, nil
}

// setPath assigns a dotted path, creating intermediate documents
func setPath(doc bson.M, path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := query.AsDocument(current[part])
		if !ok {
			next = bson.M{}
		}
		child := bson.M(next)
		current[part] = child
		current = child
	}
	current[parts[len(parts)-1]] = value
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
