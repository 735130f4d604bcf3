package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

// NewMemoryStore constructs an in-memory Store implementation for tests and
// development. Collections spring into existence on first write.
func NewMemoryStore() Store {
	return &memoryStore{collections: make(map[string][]Document)}
}

func (m *memoryStore) Find(_ context.Context, collection string, filter Document, fields []string, limit int) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Document
	for _, doc := range m.collections[collection] {
		if filter != nil && !Matches(doc, filter) {
			continue
		}
		out = append(out, Project(doc, fields))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memoryStore) FindByField(ctx context.Context, collection, field string, value any, fields []string, limit int) ([]Document, error) {
	return m.Find(ctx, collection, Document{field: value}, fields, limit)
}

func (m *memoryStore) InsertOne(_ context.Context, collection string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], Project(doc, nil))
	return nil
}

func (m *memoryStore) InsertMany(ctx context.Context, collection string, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		m.collections[collection] = append(m.collections[collection], Project(doc, nil))
	}
	return nil
}

func (m *memoryStore) DeleteOne(_ context.Context, collection string, filter Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.collections[collection]
	for i, doc := range docs {
		if Matches(doc, filter) {
			m.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memoryStore) DeleteMany(_ context.Context, collection string, filter Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.collections[collection]
	kept := docs[:0:0]
	for _, doc := range docs {
		if !Matches(doc, filter) {
			kept = append(kept, doc)
		}
	}
	m.collections[collection] = kept
	return nil
}

func (m *memoryStore) DeleteBefore(_ context.Context, collection, field string, cutoff int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.collections[collection]
	kept := docs[:0:0]
	for _, doc := range docs {
		if n, ok := NumericValue(doc[field]); ok && n <= cutoff {
			continue
		}
		kept = append(kept, doc)
	}
	m.collections[collection] = kept
	return nil
}

func (m *memoryStore) UpdateOne(_ context.Context, collection, idField string, id any, patch Document) error {
	return m.update(collection, idField, id, patch, false)
}

func (m *memoryStore) UpdateMany(_ context.Context, collection, idField string, id any, patch Document) error {
	return m.update(collection, idField, id, patch, true)
}

func (m *memoryStore) update(collection, idField string, id any, patch Document, all bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	updated := false
	for _, doc := range m.collections[collection] {
		if CanonicalValue(doc[idField]) != CanonicalValue(id) {
			continue
		}
		for k, v := range patch {
			doc[k] = v
		}
		updated = true
		if !all {
			return nil
		}
	}
	if updated {
		return nil
	}

	// Upsert semantics mirror Mongo's update with upsert=true.
	fresh := Project(patch, nil)
	fresh[idField] = id
	m.collections[collection] = append(m.collections[collection], fresh)
	return nil
}

func (m *memoryStore) Close(context.Context) error {
	return nil
}
