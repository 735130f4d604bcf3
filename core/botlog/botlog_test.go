package botlog

import (
	"context"
	"testing"
	"time"

	"botkit/core/storage"

	"github.com/stretchr/testify/require"
)

func newLogger(t *testing.T, opts Options) (*Logger, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	l, err := New(store, opts)
	require.NoError(t, err)
	return l, store
}

func readAll(t *testing.T, store storage.Store) []storage.Document {
	t.Helper()
	docs, err := store.Find(context.Background(), "Logs", nil, nil, 0)
	require.NoError(t, err)
	return docs
}

func TestWritePersistsEvent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	l, store := newLogger(t, Options{})

	req.NoError(l.Write(ctx, LevelInfo, "Message sent", storage.Document{"user_id": int64(1)}))

	docs := readAll(t, store)
	req.Len(docs, 1)
	req.Equal("Message sent", docs[0][FieldEvent])
	ts, ok := storage.NumericValue(docs[0][FieldTime])
	req.True(ok)
	req.Greater(ts, int64(0))
}

func TestWriteRespectsThreshold(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	l, store := newLogger(t, Options{Level: LevelWarning})

	req.NoError(l.Write(ctx, LevelInfo, "dropped", nil))
	req.Empty(readAll(t, store))

	req.NoError(l.Write(ctx, LevelError, "kept", nil))
	req.Len(readAll(t, store), 1)
}

func TestSetLevel(t *testing.T) {
	req := require.New(t)
	l, _ := newLogger(t, Options{})

	req.NoError(l.SetLevel("debug"))
	req.ErrorIs(l.SetLevel("verbose"), ErrUnknownLevel)

	err := l.Write(context.Background(), "NOISE", "event", nil)
	req.ErrorIs(err, ErrUnknownLevel)
}

func TestShortParamsCutsMultilineValues(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	l, store := newLogger(t, Options{ShortParams: true})

	req.NoError(l.Write(ctx, LevelInfo, "Message sent", storage.Document{
		"text": "first line\nsecond line\nthird line",
	}))

	docs := readAll(t, store)
	req.Len(docs, 1)
	params, ok := docs[0][FieldParams].(storage.Document)
	req.True(ok)
	req.Equal("first line <...>", params["text"])
}

func TestCleanOld(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	l, store := newLogger(t, Options{})

	old := time.Now().Add(-48 * time.Hour).UnixMilli()
	req.NoError(store.InsertOne(ctx, "Logs", storage.Document{FieldTime: old, FieldEvent: "old"}))
	req.NoError(l.Write(ctx, LevelInfo, "recent", nil))

	req.NoError(l.CleanOld(ctx, 24*time.Hour))

	docs := readAll(t, store)
	events := make([]string, 0, len(docs))
	for _, doc := range docs {
		events = append(events, doc[FieldEvent].(string))
	}
	req.NotContains(events, "old")
	req.Contains(events, "recent")
	req.Contains(events, "Old logs cleaned")
}

func TestDumpLastReturnsNewestInOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	l, store := newLogger(t, Options{})

	for i, event := range []string{"first", "second", "third"} {
		req.NoError(store.InsertOne(ctx, "Logs", storage.Document{
			FieldTime:  int64(100 + i),
			FieldEvent: event,
		}))
	}

	docs, err := l.DumpLast(ctx, 2)
	req.NoError(err)
	req.Len(docs, 2)
	req.Equal("second", docs[0][FieldEvent])
	req.Equal("third", docs[1][FieldEvent])
}

func TestHelpers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	l, store := newLogger(t, Options{})

	req.NoError(l.Start(ctx))
	req.NoError(l.ReceivedCommand(ctx, 1, "start"))
	req.NoError(l.SentMessage(ctx, 1, "hi"))
	req.NoError(l.ReceivedDocument(ctx, 1, "data.csv"))
	req.NoError(l.Stop(ctx))

	docs := readAll(t, store)
	req.Len(docs, 5)
}
