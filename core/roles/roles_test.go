package roles

import (
	"context"
	"testing"

	"botkit/core/storage"

	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, store storage.Store, userID int64, userRoles []string) {
	t.Helper()
	require.NoError(t, store.InsertOne(context.Background(), "Users", storage.Document{
		"_id":   userID,
		"Roles": userRoles,
	}))
}

func TestListIsSorted(t *testing.T) {
	req := require.New(t)
	auth := NewAuth(storage.NewMemoryStore(), map[string]string{
		"user":  "",
		"admin": "secret",
	}, Options{})

	req.Equal([]string{"admin", "user"}, auth.List())
}

func TestAddAndRemove(t *testing.T) {
	req := require.New(t)
	auth := NewAuth(storage.NewMemoryStore(), nil, Options{})

	auth.Add("moderator", "pw")
	req.Contains(auth.List(), "moderator")

	req.ErrorIs(auth.Remove("moderator", "wrong"), ErrWrongPassword)
	req.NoError(auth.Remove("moderator", "pw"))
	req.ErrorIs(auth.Remove("moderator", "pw"), ErrRoleNotFound)
}

func TestUserRoles(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storage.NewMemoryStore()
	auth := NewAuth(store, map[string]string{"user": ""}, Options{})

	seedUser(t, store, 1, []string{"user"})

	got, err := auth.UserRoles(ctx, 1)
	req.NoError(err)
	req.Equal([]string{"user"}, got)

	_, err = auth.UserRoles(ctx, 2)
	req.ErrorIs(err, ErrUserNotFound)
}

func TestUserRolesToleratesJSONDecodedLists(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storage.NewMemoryStore()
	auth := NewAuth(store, nil, Options{})

	// Local JSON storage decodes the role list as []any.
	require.NoError(t, store.InsertOne(ctx, "Users", storage.Document{
		"_id":   int64(5),
		"Roles": []any{"user", "admin"},
	}))

	got, err := auth.UserRoles(ctx, 5)
	req.NoError(err)
	req.Equal([]string{"user", "admin"}, got)
}

func TestLoginAs(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storage.NewMemoryStore()
	auth := NewAuth(store, map[string]string{
		"user":  "",
		"admin": "secret",
	}, Options{})

	seedUser(t, store, 1, []string{"user"})

	req.ErrorIs(auth.LoginAs(ctx, "owner", 1, "x"), ErrRoleNotFound)
	req.ErrorIs(auth.LoginAs(ctx, "admin", 1, "wrong"), ErrWrongPassword)

	req.NoError(auth.LoginAs(ctx, "admin", 1, "secret"))
	held, err := auth.IsLoggedAs(ctx, "admin", 1)
	req.NoError(err)
	req.True(held)

	req.ErrorIs(auth.LoginAs(ctx, "admin", 1, "secret"), ErrAlreadyLogged)
}

func TestLogoutAs(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storage.NewMemoryStore()
	auth := NewAuth(store, map[string]string{
		"user":  "",
		"admin": "secret",
	}, Options{})

	seedUser(t, store, 1, []string{"user", "admin"})

	req.NoError(auth.LogoutAs(ctx, "admin", 1))
	held, err := auth.IsLoggedAs(ctx, "admin", 1)
	req.NoError(err)
	req.False(held)

	req.ErrorIs(auth.LogoutAs(ctx, "admin", 1), ErrNotLogged)
}
