package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"botkit/core/storage"
)

// Store adapts jsonb collection tables to the storage contract. Every
// collection maps to a table of the same name with a single `doc jsonb`
// column.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open connection pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects, runs migrations, and returns a ready store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

// fieldExpr renders a jsonb text extraction for the given document key.
// The key is embedded as a SQL string literal, so quotes are doubled.
func fieldExpr(field string) string {
	return fmt.Sprintf("doc->>'%s'", strings.ReplaceAll(field, "'", "''"))
}

func whereClause(filter storage.Document) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	var (
		conds []string
		args  []any
	)
	for k, v := range filter {
		args = append(args, storage.CanonicalValue(v))
		conds = append(conds, fmt.Sprintf("%s = $%d", fieldExpr(k), len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) queryDocs(ctx context.Context, query string, args ...any) ([]storage.Document, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query: %w", err)
	}
	defer rows.Close()

	var out []storage.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres scan: %w", err)
		}
		var doc storage.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("postgres decode: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres rows: %w", err)
	}
	return out, nil
}

// Find returns documents matching filter, projected to fields.
func (s *Store) Find(ctx context.Context, collection string, filter storage.Document, fields []string, limit int) ([]storage.Document, error) {
	query := "SELECT doc FROM " + pq.QuoteIdentifier(collection)
	where, args := whereClause(filter)
	query += where
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	docs, err := s.queryDocs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return docs, nil
	}
	out := make([]storage.Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, storage.Project(doc, fields))
	}
	return out, nil
}

// FindByField is shorthand for a single-key filter.
func (s *Store) FindByField(ctx context.Context, collection, field string, value any, fields []string, limit int) ([]storage.Document, error) {
	return s.Find(ctx, collection, storage.Document{field: value}, fields, limit)
}

func encodeDoc(doc storage.Document) ([]byte, error) {
	copied := storage.Project(doc, nil)
	if _, ok := copied[storage.DefaultIDField]; !ok {
		copied[storage.DefaultIDField] = uuid.NewString()
	}
	data, err := json.Marshal(copied)
	if err != nil {
		return nil, fmt.Errorf("postgres encode: %w", err)
	}
	return data, nil
}

// InsertOne stores a single document.
func (s *Store) InsertOne(ctx context.Context, collection string, doc storage.Document) error {
	data, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	query := "INSERT INTO " + pq.QuoteIdentifier(collection) + " (doc) VALUES ($1)"
	if _, err := s.db.ExecContext(ctx, query, data); err != nil {
		return fmt.Errorf("postgres insert %s: %w", collection, err)
	}
	return nil
}

// InsertMany stores a batch of documents in one transaction.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []storage.Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres begin: %w", err)
	}
	query := "INSERT INTO " + pq.QuoteIdentifier(collection) + " (doc) VALUES ($1)"
	for _, doc := range docs {
		data, err := encodeDoc(doc)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, query, data); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("postgres insert %s: %w", collection, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres commit: %w", err)
	}
	return nil
}

// DeleteOne removes the first document matching filter.
func (s *Store) DeleteOne(ctx context.Context, collection string, filter storage.Document) error {
	table := pq.QuoteIdentifier(collection)
	where, args := whereClause(filter)
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE ctid IN (SELECT ctid FROM %s%s LIMIT 1)",
		table, table, where,
	)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres delete %s: %w", collection, err)
	}
	return nil
}

// DeleteMany removes every document matching filter.
func (s *Store) DeleteMany(ctx context.Context, collection string, filter storage.Document) error {
	where, args := whereClause(filter)
	query := "DELETE FROM " + pq.QuoteIdentifier(collection) + where
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres delete many %s: %w", collection, err)
	}
	return nil
}

// DeleteBefore removes documents whose field value is <= cutoff.
func (s *Store) DeleteBefore(ctx context.Context, collection, field string, cutoff int64) error {
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE (%s)::bigint <= $1",
		pq.QuoteIdentifier(collection), fieldExpr(field),
	)
	if _, err := s.db.ExecContext(ctx, query, cutoff); err != nil {
		return fmt.Errorf("postgres delete before %s: %w", collection, err)
	}
	return nil
}

// UpdateOne merges patch into the first matching document, upserting.
func (s *Store) UpdateOne(ctx context.Context, collection, idField string, id any, patch storage.Document) error {
	return s.update(ctx, collection, idField, id, patch, false)
}

// UpdateMany merges patch into every matching document, upserting.
func (s *Store) UpdateMany(ctx context.Context, collection, idField string, id any, patch storage.Document) error {
	return s.update(ctx, collection, idField, id, patch, true)
}

func (s *Store) update(ctx context.Context, collection, idField string, id any, patch storage.Document, all bool) error {
	data, err := json.Marshal(storage.Project(patch, nil))
	if err != nil {
		return fmt.Errorf("postgres encode: %w", err)
	}

	table := pq.QuoteIdentifier(collection)
	match := fmt.Sprintf("%s = $2", fieldExpr(idField))
	var query string
	if all {
		query = fmt.Sprintf("UPDATE %s SET doc = doc || $1::jsonb WHERE %s", table, match)
	} else {
		query = fmt.Sprintf(
			"UPDATE %s SET doc = doc || $1::jsonb WHERE ctid IN (SELECT ctid FROM %s WHERE %s LIMIT 1)",
			table, table, match,
		)
	}

	res, err := s.db.ExecContext(ctx, query, data, storage.CanonicalValue(id))
	if err != nil {
		return fmt.Errorf("postgres update %s: %w", collection, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres update %s: %w", collection, err)
	}
	if affected > 0 {
		return nil
	}

	// Upsert semantics mirror Mongo's update with upsert=true.
	fresh := storage.Project(patch, nil)
	fresh[idField] = id
	return s.InsertOne(ctx, collection, fresh)
}

// Close releases the connection pool.
func (s *Store) Close(context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("postgres close: %w", err)
	}
	return nil
}
