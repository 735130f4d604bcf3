// Package roles implements the role/authorization system: a static mapping
// of role names to passwords, plus per-user role assignments persisted
// through the storage contract.
package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"botkit/core/logger"
	"botkit/core/storage"
	"log/slog"
)

// Default document field names in the users collection.
const (
	DefaultRolesField = "Roles"
)

var (
	// ErrRoleNotFound reports a role absent from the configured mapping.
	ErrRoleNotFound = errors.New("role not found")
	// ErrWrongPassword reports a password mismatch for a role.
	ErrWrongPassword = errors.New("wrong role password")
	// ErrAlreadyLogged reports a login for a role the user already holds.
	ErrAlreadyLogged = errors.New("already logged in as role")
	// ErrNotLogged reports a logout for a role the user does not hold.
	ErrNotLogged = errors.New("not logged in as role")
	// ErrUserNotFound reports a missing user document.
	ErrUserNotFound = errors.New("user not found")
)

// Options override storage layout defaults.
type Options struct {
	Collection string
	IDField    string
	RolesField string
}

func (o *Options) normalize() {
	if o.Collection == "" {
		o.Collection = "Users"
	}
	if o.IDField == "" {
		o.IDField = storage.DefaultIDField
	}
	if o.RolesField == "" {
		o.RolesField = DefaultRolesField
	}
}

// Auth manages the role mapping and user role assignments.
type Auth struct {
	store storage.Store
	opts  Options

	mu    sync.RWMutex
	roles map[string]string // role -> password
}

// NewAuth builds an Auth over the given store and role mapping.
// The mapping is copied; later mutations go through Add/Remove.
func NewAuth(store storage.Store, roleMap map[string]string, opts Options) *Auth {
	opts.normalize()
	copied := make(map[string]string, len(roleMap))
	for role, password := range roleMap {
		copied[role] = password
	}
	return &Auth{store: store, opts: opts, roles: copied}
}

// List returns the configured role names, sorted.
func (a *Auth) List() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.roles))
	for role := range a.roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// Add registers a role in the mapping, overwriting an existing password.
func (a *Auth) Add(role, password string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.roles[role] = password
}

// Remove deletes a role from the mapping after a password check.
// User documents keep any assignment of the removed role.
func (a *Auth) Remove(role, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	stored, ok := a.roles[role]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, role)
	}
	if stored != password {
		return fmt.Errorf("%w: %s", ErrWrongPassword, role)
	}
	delete(a.roles, role)
	return nil
}

func (a *Auth) check(role, password string, verifyPassword bool) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	stored, ok := a.roles[role]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, role)
	}
	if verifyPassword && stored != password {
		return fmt.Errorf("%w: %s", ErrWrongPassword, role)
	}
	return nil
}

// UserRoles returns the roles assigned to the user.
func (a *Auth) UserRoles(ctx context.Context, userID int64) ([]string, error) {
	docs, err := a.store.FindByField(ctx, a.opts.Collection, a.opts.IDField, userID, []string{a.opts.RolesField}, 1)
	if err != nil {
		return nil, fmt.Errorf("roles: lookup user %d: %w", userID, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	return toStrings(docs[0][a.opts.RolesField]), nil
}

// IsLoggedAs reports whether the user holds the given role.
func (a *Auth) IsLoggedAs(ctx context.Context, role string, userID int64) (bool, error) {
	userRoles, err := a.UserRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range userRoles {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

// LoginAs grants the role to the user after checking the role password.
func (a *Auth) LoginAs(ctx context.Context, role string, userID int64, password string) error {
	if err := a.check(role, password, true); err != nil {
		return err
	}

	userRoles, err := a.UserRoles(ctx, userID)
	if err != nil {
		return err
	}
	for _, r := range userRoles {
		if r == role {
			return fmt.Errorf("%w: %s", ErrAlreadyLogged, role)
		}
	}

	patch := storage.Document{a.opts.RolesField: append(userRoles, role)}
	if err := a.store.UpdateOne(ctx, a.opts.Collection, a.opts.IDField, userID, patch); err != nil {
		return fmt.Errorf("roles: update user %d: %w", userID, err)
	}
	logger.Info(ctx, "roles", "login",
		slog.Int64("user_id", userID),
		slog.String("role", role),
	)
	return nil
}

// LogoutAs revokes the role from the user.
func (a *Auth) LogoutAs(ctx context.Context, role string, userID int64) error {
	if err := a.check(role, "", false); err != nil {
		return err
	}

	userRoles, err := a.UserRoles(ctx, userID)
	if err != nil {
		return err
	}
	kept := make([]string, 0, len(userRoles))
	found := false
	for _, r := range userRoles {
		if r == role {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotLogged, role)
	}

	patch := storage.Document{a.opts.RolesField: kept}
	if err := a.store.UpdateOne(ctx, a.opts.Collection, a.opts.IDField, userID, patch); err != nil {
		return fmt.Errorf("roles: update user %d: %w", userID, err)
	}
	logger.Info(ctx, "roles", "logout",
		slog.Int64("user_id", userID),
		slog.String("role", role),
	)
	return nil
}

// toStrings tolerates both []string and JSON-decoded []any role lists.
func toStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
