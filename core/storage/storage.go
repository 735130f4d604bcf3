// Package storage defines the document-oriented persistence contract shared
// by the bot utilities (roles, state, user metadata, bot log) together with
// an in-memory implementation. Real backends live in the subpackages
// local, mongo, and postgres.
package storage

import (
	"context"
	"fmt"
)

// DefaultIDField is the document key used as identifier unless a caller
// overrides it.
const DefaultIDField = "_id"

// Document is a schemaless record stored in a named collection.
type Document = map[string]any

// Store reads and writes documents grouped into named collections.
// Collections referenced by consumers must already exist for backends that
// cannot create them on the fly (Mongo, Postgres).
type Store interface {
	// Find returns up to limit documents matching every key of filter.
	// A nil filter matches everything; limit <= 0 means no limit.
	// When fields is non-empty, returned documents carry only those keys.
	Find(ctx context.Context, collection string, filter Document, fields []string, limit int) ([]Document, error)

	// FindByField is shorthand for a single-key filter.
	FindByField(ctx context.Context, collection, field string, value any, fields []string, limit int) ([]Document, error)

	InsertOne(ctx context.Context, collection string, doc Document) error
	InsertMany(ctx context.Context, collection string, docs []Document) error

	// DeleteOne removes the first document matching filter, DeleteMany all
	// of them. Deleting with an empty match set is not an error.
	DeleteOne(ctx context.Context, collection string, filter Document) error
	DeleteMany(ctx context.Context, collection string, filter Document) error

	// DeleteBefore removes documents whose numeric field value is less than
	// or equal to cutoff. Used for log retention.
	DeleteBefore(ctx context.Context, collection, field string, cutoff int64) error

	// UpdateOne merges patch into the first document whose idField equals
	// id, inserting a fresh document when none matches (upsert).
	// UpdateMany does the same for every matching document.
	UpdateOne(ctx context.Context, collection, idField string, id any, patch Document) error
	UpdateMany(ctx context.Context, collection, idField string, id any, patch Document) error

	Close(ctx context.Context) error
}

// CanonicalValue renders a filter value in the form used for matching.
// Backends that round-trip documents through JSON lose integer types, so
// matching is done on the canonical textual form.
func CanonicalValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%v", x)
	case float32:
		return CanonicalValue(float64(x))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Matches reports whether doc satisfies every key/value pair of filter.
func Matches(doc, filter Document) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || CanonicalValue(got) != CanonicalValue(want) {
			return false
		}
	}
	return true
}

// Project returns a copy of doc restricted to fields. An empty field list
// keeps the whole document.
func Project(doc Document, fields []string) Document {
	out := make(Document, len(doc))
	if len(fields) == 0 {
		for k, v := range doc {
			out[k] = v
		}
		return out
	}
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

// NumericValue coerces a stored value to int64 for range comparisons.
func NumericValue(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		return int64(x), true
	case float32:
		return int64(x), true
	}
	return 0, false
}
