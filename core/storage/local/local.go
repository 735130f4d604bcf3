// Package local implements the storage contract over a folder of plain JSON
// files, one file per collection. It is meant for small single-process bots
// that do not want to run a database.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"botkit/core/storage"
)

// Store persists collections as <folder>/<collection>.json, each file
// holding a JSON array of documents. All operations take a write lock and
// rewrite the file; concurrency is bounded by the single process owning
// the folder.
type Store struct {
	folder string
	mu     sync.Mutex
}

// New prepares a local JSON store rooted at folder, creating it when absent.
func New(folder string) (*Store, error) {
	if folder == "" {
		return nil, fmt.Errorf("local storage: empty folder")
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: init folder %s: %w", folder, err)
	}
	return &Store{folder: folder}, nil
}

func (s *Store) path(collection string) string {
	return filepath.Join(s.folder, collection+".json")
}

func (s *Store) load(collection string) ([]storage.Document, error) {
	data, err := os.ReadFile(s.path(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("local storage: read %s: %w", collection, err)
	}
	var docs []storage.Document
	if len(data) > 0 {
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("local storage: decode %s: %w", collection, err)
		}
	}
	return docs, nil
}

func (s *Store) save(collection string, docs []storage.Document) error {
	if docs == nil {
		docs = []storage.Document{}
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("local storage: encode %s: %w", collection, err)
	}
	if err := os.WriteFile(s.path(collection), data, 0o644); err != nil {
		return fmt.Errorf("local storage: write %s: %w", collection, err)
	}
	return nil
}

// Find returns documents matching filter, projected to fields.
func (s *Store) Find(_ context.Context, collection string, filter storage.Document, fields []string, limit int) ([]storage.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.load(collection)
	if err != nil {
		return nil, err
	}
	var out []storage.Document
	for _, doc := range docs {
		if filter != nil && !storage.Matches(doc, filter) {
			continue
		}
		out = append(out, storage.Project(doc, fields))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// FindByField is shorthand for a single-key filter.
func (s *Store) FindByField(ctx context.Context, collection, field string, value any, fields []string, limit int) ([]storage.Document, error) {
	return s.Find(ctx, collection, storage.Document{field: value}, fields, limit)
}

// InsertOne appends doc to the collection file, generating an id when the
// document does not carry one.
func (s *Store) InsertOne(ctx context.Context, collection string, doc storage.Document) error {
	return s.InsertMany(ctx, collection, []storage.Document{doc})
}

// InsertMany appends docs to the collection file in one write.
func (s *Store) InsertMany(_ context.Context, collection string, docs []storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(collection)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		copied := storage.Project(doc, nil)
		if _, ok := copied[storage.DefaultIDField]; !ok {
			copied[storage.DefaultIDField] = uuid.NewString()
		}
		existing = append(existing, copied)
	}
	return s.save(collection, existing)
}

// DeleteOne removes the first document matching filter.
func (s *Store) DeleteOne(_ context.Context, collection string, filter storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.load(collection)
	if err != nil {
		return err
	}
	for i, doc := range docs {
		if storage.Matches(doc, filter) {
			return s.save(collection, append(docs[:i:i], docs[i+1:]...))
		}
	}
	return nil
}

// DeleteMany removes every document matching filter.
func (s *Store) DeleteMany(_ context.Context, collection string, filter storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.load(collection)
	if err != nil {
		return err
	}
	kept := docs[:0:0]
	for _, doc := range docs {
		if !storage.Matches(doc, filter) {
			kept = append(kept, doc)
		}
	}
	return s.save(collection, kept)
}

// DeleteBefore removes documents whose field value is <= cutoff.
func (s *Store) DeleteBefore(_ context.Context, collection, field string, cutoff int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.load(collection)
	if err != nil {
		return err
	}
	kept := docs[:0:0]
	for _, doc := range docs {
		if n, ok := storage.NumericValue(doc[field]); ok && n <= cutoff {
			continue
		}
		kept = append(kept, doc)
	}
	return s.save(collection, kept)
}

// UpdateOne patches the first matching document, inserting one when absent.
func (s *Store) UpdateOne(_ context.Context, collection, idField string, id any, patch storage.Document) error {
	return s.update(collection, idField, id, patch, false)
}

// UpdateMany patches every matching document, inserting one when absent.
func (s *Store) UpdateMany(_ context.Context, collection, idField string, id any, patch storage.Document) error {
	return s.update(collection, idField, id, patch, true)
}

func (s *Store) update(collection, idField string, id any, patch storage.Document, all bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.load(collection)
	if err != nil {
		return err
	}
	updated := false
	for _, doc := range docs {
		if storage.CanonicalValue(doc[idField]) != storage.CanonicalValue(id) {
			continue
		}
		for k, v := range patch {
			doc[k] = v
		}
		updated = true
		if !all {
			break
		}
	}
	if !updated {
		fresh := storage.Project(patch, nil)
		fresh[idField] = id
		docs = append(docs, fresh)
	}
	return s.save(collection, docs)
}

// Close is a no-op; files are rewritten synchronously on every mutation.
func (s *Store) Close(context.Context) error {
	return nil
}
