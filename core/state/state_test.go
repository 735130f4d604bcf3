package state

import (
	"context"
	"testing"

	"botkit/core/storage"

	"github.com/stretchr/testify/require"
)

func newManager(withParams bool, states ...string) (*Manager, storage.Store) {
	store := storage.NewMemoryStore()
	mgr := NewManager(store, Options{
		States:     states,
		WithParams: withParams,
	})
	return mgr, store
}

func seedUser(t *testing.T, store storage.Store, userID int64, st string) {
	t.Helper()
	require.NoError(t, store.InsertOne(context.Background(), "Users", storage.Document{
		"_id":   userID,
		"State": st,
	}))
}

func TestValid(t *testing.T) {
	req := require.New(t)
	mgr, _ := newManager(false, "ordering", "paying")

	req.True(mgr.Valid("ordering"))
	req.True(mgr.Valid("free"))
	req.False(mgr.Valid("unknown"))
	req.False(mgr.Valid(""))
}

func TestValidWithEmptyStateList(t *testing.T) {
	req := require.New(t)
	mgr, _ := newManager(false)

	req.True(mgr.Valid("anything"))
	req.False(mgr.Valid(""))
}

func TestGetAndSet(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	mgr, store := newManager(false, "ordering")

	seedUser(t, store, 1, "free")

	st, err := mgr.Get(ctx, 1)
	req.NoError(err)
	req.Equal("free", st.State)

	req.NoError(mgr.Set(ctx, 1, "ordering", nil))
	st, err = mgr.Get(ctx, 1)
	req.NoError(err)
	req.Equal("ordering", st.State)

	req.ErrorIs(mgr.Set(ctx, 1, "nonsense", nil), ErrUnknownState)
}

func TestGetUnknownUser(t *testing.T) {
	req := require.New(t)
	mgr, _ := newManager(false, "ordering")

	_, err := mgr.Get(context.Background(), 42)
	req.ErrorIs(err, ErrUserNotFound)
}

func TestSetRejectsParamsWhenDisabled(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	mgr, store := newManager(false, "ordering")
	seedUser(t, store, 1, "free")

	err := mgr.Set(ctx, 1, "ordering", storage.Document{"item": "tea"})
	req.Error(err)
}

func TestParamsRoundTrip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	mgr, store := newManager(true, "ordering")
	seedUser(t, store, 1, "free")

	req.NoError(mgr.Set(ctx, 1, "ordering", storage.Document{"item": "tea"}))

	st, err := mgr.Get(ctx, 1)
	req.NoError(err)
	req.Equal("ordering", st.State)
	req.Equal("tea", st.Params["item"])
}

// Params stored as a plain map, the shape JSON decoding produces, must come
// back as a params document.
func TestParamsFromPlainMap(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	mgr, store := newManager(true, "ordering")

	req.NoError(store.InsertOne(ctx, "Users", storage.Document{
		"_id":          int64(1),
		"State":        "ordering",
		"State_Params": map[string]any{"item": "tea"},
	}))

	st, err := mgr.Get(ctx, 1)
	req.NoError(err)
	req.Equal(storage.Document{"item": "tea"}, st.Params)
}

func TestSetFreeClearsParams(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	mgr, store := newManager(true, "ordering")
	seedUser(t, store, 1, "free")

	req.NoError(mgr.Set(ctx, 1, "ordering", storage.Document{"item": "tea"}))
	req.NoError(mgr.SetFree(ctx, 1))

	free, err := mgr.IsFree(ctx, 1)
	req.NoError(err)
	req.True(free)

	st, err := mgr.Get(ctx, 1)
	req.NoError(err)
	req.Empty(st.Params)
}
