// Package usermeta stores per-user profile metadata: Telegram username,
// first/last name, and the preferred locale.
package usermeta

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
	DefaultUsernameField  = "Username"
	DefaultFirstNameField = "First_Name"
	DefaultLastNameField  = "Last_Name"
	DefaultLocaleField    = "Locale"
)

// ErrUserNotFound reports a missing user document.
var ErrUserNotFound = errors.New("user not found")

// Meta is a user's profile snapshot.
type Meta struct {
	Username  string
	FirstName string
	LastName  string
	Locale    string
}

// Options override storage layout defaults.
type Options struct {
	Collection     string
	IDField        string
	UsernameField  string
	FirstNameField string
	LastNameField  string
	LocaleField    string
	// DefaultLocale seeds the locale of newly initialized users.
	DefaultLocale string
}

func (o *Options) normalize() {
	if o.Collection == "" {
		o.Collection = "Users"
	}
	if o.IDField == "" {
		o.IDField = storage.DefaultIDField
	}
	if o.UsernameField == "" {
		o.UsernameField = DefaultUsernameField
	}
	if o.FirstNameField == "" {
		o.FirstNameField = DefaultFirstNameField
	}
	if o.LastNameField == "" {
		o.LastNameField = DefaultLastNameField
	}
	if o.LocaleField == "" {
		o.LocaleField = DefaultLocaleField
	}
}

// Store reads and writes user profile documents.
type Store struct {
	store storage.Store
	opts  Options
}

// NewStore builds a Store over the given document store.
func NewStore(store storage.Store, opts Options) *Store {
	opts.normalize()
	return &Store{store: store, opts: opts}
}

// Exists reports whether a document for the user is present.
func (s *Store) Exists(ctx context.Context, userID int64) (bool, error) {
	docs, err := s.store.FindByField(ctx, s.opts.Collection, s.opts.IDField, userID, []string{s.opts.IDField}, 1)
	if err != nil {
		return false, fmt.Errorf("usermeta: lookup user %d: %w", userID, err)
	}
	return len(docs) > 0, nil
}

// Init creates the user document when absent. The seed carries the fields
// other subsystems expect on a fresh user (roles, state); Init adds the id,
// profile fields, and the default locale on top. Existing users are left
// untouched.
func (s *Store) Init(ctx context.Context, userID int64, meta Meta, seed storage.Document) error {
	exists, err := s.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	doc := storage.Document{}
	for k, v := range seed {
		doc[k] = v
	}
	doc[s.opts.IDField] = userID
	doc[s.opts.UsernameField] = meta.Username
	doc[s.opts.FirstNameField] = meta.FirstName
	doc[s.opts.LastNameField] = meta.LastName
	locale := meta.Locale
	if locale == "" {
		locale = s.opts.DefaultLocale
	}
	doc[s.opts.LocaleField] = locale

	if err := s.store.InsertOne(ctx, s.opts.Collection, doc); err != nil {
		return fmt.Errorf("usermeta: insert user %d: %w", userID, err)
	}
	logger.Info(ctx, "usermeta", "user.init",
		slog.Int64("user_id", userID),
		slog.String("username", meta.Username),
		slog.String("locale", locale),
	)
	return nil
}

// Update refreshes the profile fields of an existing user.
func (s *Store) Update(ctx context.Context, userID int64, meta Meta) error {
	exists, err := s.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}

	patch := storage.Document{
		s.opts.UsernameField:  meta.Username,
		s.opts.FirstNameField: meta.FirstName,
		s.opts.LastNameField:  meta.LastName,
	}
	if err := s.store.UpdateOne(ctx, s.opts.Collection, s.opts.IDField, userID, patch); err != nil {
		return fmt.Errorf("usermeta: update user %d: %w", userID, err)
	}
	return nil
}

// Meta returns the user's profile snapshot.
func (s *Store) Meta(ctx context.Context, userID int64) (Meta, error) {
	fields := []string{
		s.opts.UsernameField,
		s.opts.FirstNameField,
		s.opts.LastNameField,
		s.opts.LocaleField,
	}
	docs, err := s.store.FindByField(ctx, s.opts.Collection, s.opts.IDField, userID, fields, 1)
	if err != nil {
		return Meta{}, fmt.Errorf("usermeta: lookup user %d: %w", userID, err)
	}
	if len(docs) == 0 {
		return Meta{}, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	doc := docs[0]
	return Meta{
		Username:  stringValue(doc[s.opts.UsernameField]),
		FirstName: stringValue(doc[s.opts.FirstNameField]),
		LastName:  stringValue(doc[s.opts.LastNameField]),
		Locale:    stringValue(doc[s.opts.LocaleField]),
	}, nil
}

// Locale returns the user's preferred locale, falling back to the default
// when the stored value is empty.
func (s *Store) Locale(ctx context.Context, userID int64) (string, error) {
	meta, err := s.Meta(ctx, userID)
	if err != nil {
		return "", err
	}
	if meta.Locale == "" {
		return s.opts.DefaultLocale, nil
	}
	return meta.Locale, nil
}

// SetLocale stores the user's preferred locale.
func (s *Store) SetLocale(ctx context.Context, userID int64, locale string) error {
	exists, err := s.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	patch := storage.Document{s.opts.LocaleField: locale}
	if err := s.store.UpdateOne(ctx, s.opts.Collection, s.opts.IDField, userID, patch); err != nil {
		return fmt.Errorf("usermeta: update user %d: %w", userID, err)
	}
	logger.Debug(ctx, "usermeta", "locale.set",
		slog.Int64("user_id", userID),
		slog.String("locale", locale),
	)
	return nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
