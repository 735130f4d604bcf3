package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreInsertAndFind(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	req.NoError(store.InsertOne(ctx, "Users", Document{"_id": int64(1), "Username": "alice"}))
	req.NoError(store.InsertOne(ctx, "Users", Document{"_id": int64(2), "Username": "bob"}))

	docs, err := store.Find(ctx, "Users", nil, nil, 0)
	req.NoError(err)
	req.Len(docs, 2)

	docs, err = store.FindByField(ctx, "Users", "_id", int64(2), nil, 1)
	req.NoError(err)
	req.Len(docs, 1)
	req.Equal("bob", docs[0]["Username"])
}

func TestMemoryStoreFindMatchesAcrossNumericTypes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	// JSON round-trips turn int64 ids into float64.
	req.NoError(store.InsertOne(ctx, "Users", Document{"_id": float64(7)}))

	docs, err := store.FindByField(ctx, "Users", "_id", int64(7), nil, 0)
	req.NoError(err)
	req.Len(docs, 1)
}

func TestMemoryStoreProjection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	req.NoError(store.InsertOne(ctx, "Users", Document{"_id": int64(1), "Username": "alice", "Locale": "en"}))

	docs, err := store.Find(ctx, "Users", nil, []string{"Locale"}, 0)
	req.NoError(err)
	req.Len(docs, 1)
	req.Equal("en", docs[0]["Locale"])
	req.NotContains(docs[0], "Username")
}

func TestMemoryStoreUpdateOneMergesPatch(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	req.NoError(store.InsertOne(ctx, "Users", Document{"_id": int64(1), "State": "free", "Locale": "en"}))
	req.NoError(store.UpdateOne(ctx, "Users", "_id", int64(1), Document{"State": "ordering"}))

	docs, err := store.FindByField(ctx, "Users", "_id", int64(1), nil, 1)
	req.NoError(err)
	req.Len(docs, 1)
	req.Equal("ordering", docs[0]["State"])
	req.Equal("en", docs[0]["Locale"])
}

func TestMemoryStoreUpdateOneUpserts(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	req.NoError(store.UpdateOne(ctx, "Users", "_id", int64(9), Document{"State": "free"}))

	docs, err := store.FindByField(ctx, "Users", "_id", int64(9), nil, 1)
	req.NoError(err)
	req.Len(docs, 1)
	req.Equal("free", docs[0]["State"])
}

func TestMemoryStoreDelete(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	for i := int64(1); i <= 3; i++ {
		req.NoError(store.InsertOne(ctx, "Users", Document{"_id": i, "Group": "a"}))
	}

	req.NoError(store.DeleteOne(ctx, "Users", Document{"Group": "a"}))
	docs, err := store.Find(ctx, "Users", nil, nil, 0)
	req.NoError(err)
	req.Len(docs, 2)

	req.NoError(store.DeleteMany(ctx, "Users", Document{"Group": "a"}))
	docs, err = store.Find(ctx, "Users", nil, nil, 0)
	req.NoError(err)
	req.Empty(docs)
}

func TestMemoryStoreDeleteBefore(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	req.NoError(store.InsertMany(ctx, "Logs", []Document{
		{"time": int64(100), "event": "old"},
		{"time": int64(200), "event": "edge"},
		{"time": int64(300), "event": "new"},
	}))

	req.NoError(store.DeleteBefore(ctx, "Logs", "time", 200))

	docs, err := store.Find(ctx, "Logs", nil, nil, 0)
	req.NoError(err)
	req.Len(docs, 1)
	req.Equal("new", docs[0]["event"])
}

func TestCanonicalValue(t *testing.T) {
	req := require.New(t)
	req.Equal("7", CanonicalValue(int64(7)))
	req.Equal("7", CanonicalValue(float64(7)))
	req.Equal("7.5", CanonicalValue(7.5))
	req.Equal("abc", CanonicalValue("abc"))
}
