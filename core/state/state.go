// Package state implements the per-user conversation state machine backed
// by the storage contract. A user is either in the free state or in one of
// the configured states, optionally with a parameter document attached.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"botkit/core/logger"
	"botkit/core/storage"
)

// Default document field names in the users collection.
const (
	DefaultStateField  = "State"
	DefaultParamsField = "State_Params"
	DefaultFreeState   = "free"
)

var (
	// ErrUnknownState reports a state outside the configured list.
	ErrUnknownState = errors.New("unknown state")
	// ErrUserNotFound reports a missing user document.
	ErrUserNotFound = errors.New("user not found")
)

// Status is a user's current state together with its parameters.
// Params is nil when the manager runs without parameters.
type Status struct {
	State  string
	Params storage.Document
}

// Options configure a Manager.
type Options struct {
	Collection  string
	IDField     string
	StateField  string
	ParamsField string
	// FreeState names the resting state; defaults to "free".
	FreeState string
	// States is the allowed state list. Empty allows any non-empty state.
	States []string
	// WithParams enables the parameter document alongside the state value.
	WithParams bool
}

// Manager reads and writes user conversation state.
type Manager struct {
	store      storage.Store
	opts       Options
	allowed    map[string]struct{}
	withParams bool
}

// NewManager builds a Manager over the given store.
func NewManager(store storage.Store, opts Options) *Manager {
	if opts.Collection == "" {
		opts.Collection = "Users"
	}
	if opts.IDField == "" {
		opts.IDField = storage.DefaultIDField
	}
	if opts.StateField == "" {
		opts.StateField = DefaultStateField
	}
	if opts.ParamsField == "" {
		opts.ParamsField = DefaultParamsField
	}
	if opts.FreeState == "" {
		opts.FreeState = DefaultFreeState
	}

	var allowed map[string]struct{}
	if len(opts.States) > 0 {
		allowed = make(map[string]struct{}, len(opts.States)+1)
		for _, st := range opts.States {
			allowed[st] = struct{}{}
		}
		allowed[opts.FreeState] = struct{}{}
	}
	return &Manager{store: store, opts: opts, allowed: allowed, withParams: opts.WithParams}
}

// FreeState returns the configured resting state name.
func (m *Manager) FreeState() string { return m.opts.FreeState }

// WithParams reports whether the manager tracks state parameters.
func (m *Manager) WithParams() bool { return m.withParams }

// Valid reports whether the state belongs to the configured list.
func (m *Manager) Valid(state string) bool {
	if state == "" {
		return false
	}
	if m.allowed == nil {
		return true
	}
	_, ok := m.allowed[state]
	return ok
}

// Get returns the user's current state and, when enabled, its parameters.
func (m *Manager) Get(ctx context.Context, userID int64) (Status, error) {
	fields := []string{m.opts.StateField}
	if m.withParams {
		fields = append(fields, m.opts.ParamsField)
	}
	docs, err := m.store.FindByField(ctx, m.opts.Collection, m.opts.IDField, userID, fields, 1)
	if err != nil {
		return Status{}, fmt.Errorf("state: lookup user %d: %w", userID, err)
	}
	if len(docs) == 0 {
		return Status{}, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}

	st := Status{State: m.opts.FreeState}
	if raw, ok := docs[0][m.opts.StateField].(string); ok && raw != "" {
		st.State = raw
	}
	if m.withParams {
		st.Params = toDocument(docs[0][m.opts.ParamsField])
	}
	return st, nil
}

// Set moves the user into the given state. Params are stored only when the
// manager runs with parameters; passing params otherwise is an error.
func (m *Manager) Set(ctx context.Context, userID int64, state string, params storage.Document) error {
	if !m.Valid(state) {
		return fmt.Errorf("%w: %q", ErrUnknownState, state)
	}
	if params != nil && !m.withParams {
		return fmt.Errorf("state: params not enabled")
	}

	patch := storage.Document{m.opts.StateField: state}
	if m.withParams {
		if params == nil {
			params = storage.Document{}
		}
		patch[m.opts.ParamsField] = params
	}
	if err := m.store.UpdateOne(ctx, m.opts.Collection, m.opts.IDField, userID, patch); err != nil {
		return fmt.Errorf("state: update user %d: %w", userID, err)
	}
	logger.Debug(ctx, "state", "state.set",
		slog.Int64("user_id", userID),
		slog.String("state", state),
	)
	return nil
}

// SetFree resets the user to the free state and clears parameters.
func (m *Manager) SetFree(ctx context.Context, userID int64) error {
	patch := storage.Document{m.opts.StateField: m.opts.FreeState}
	if m.withParams {
		patch[m.opts.ParamsField] = storage.Document{}
	}
	if err := m.store.UpdateOne(ctx, m.opts.Collection, m.opts.IDField, userID, patch); err != nil {
		return fmt.Errorf("state: update user %d: %w", userID, err)
	}
	logger.Debug(ctx, "state", "state.set",
		slog.Int64("user_id", userID),
		slog.String("state", m.opts.FreeState),
	)
	return nil
}

// IsFree reports whether the user is in the free state.
func (m *Manager) IsFree(ctx context.Context, userID int64) (bool, error) {
	st, err := m.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return st.State == m.opts.FreeState, nil
}

func toDocument(v any) storage.Document {
	if doc, ok := v.(map[string]any); ok {
		return doc
	}
	return storage.Document{}
}
