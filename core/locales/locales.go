// Package locales loads reply texts and keyboard layouts from per-locale
// JSON files and serves lookups by locale code.
//
// Each file in the locale folder is a JSON document of the form:
//
//	{
//	  "code": "en",
//	  "replies": {
//	    "simple": {"greeting": "Hello!"},
//	    "format": {"balance": "You have %d points"}
//	  },
//	  "keyboards": {
//	    "buttons": {"yes": "Yes", "no": "No"},
//	    "arrangements": {"confirm": [["yes", "no"]]}
//	  },
//	  "other": {"currencies": ["USD", "EUR"]}
//	}
package locales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"botkit/core/logger"
)

var (
	// ErrLocaleNotFound reports a locale code with no loaded file.
	ErrLocaleNotFound = errors.New("locale not found")
	// ErrKeyNotFound reports a missing reply, keyboard, or value key.
	ErrKeyNotFound = errors.New("locale key not found")
)

type localeData struct {
	Code      string `json:"code"`
	Replies   struct {
		Simple map[string]string `json:"simple"`
		Format map[string]string `json:"format"`
	} `json:"replies"`
	Keyboards struct {
		Buttons      map[string]string     `json:"buttons"`
		Arrangements map[string][][]string `json:"arrangements"`
	} `json:"keyboards"`
	Other map[string]any `json:"other"`
}

// Manager serves localized replies and keyboards loaded from a folder.
type Manager struct {
	locales map[string]*localeData
}

// New loads every *.json file from the folder. Files without a "code"
// value are rejected; duplicate codes keep the last file read.
func New(folder string) (*Manager, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("locales: read folder %s: %w", folder, err)
	}

	m := &Manager{locales: make(map[string]*localeData)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(folder, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("locales: read %s: %w", path, err)
		}
		var loc localeData
		if err := json.Unmarshal(data, &loc); err != nil {
			return nil, fmt.Errorf("locales: parse %s: %w", path, err)
		}
		if loc.Code == "" {
			return nil, fmt.Errorf("locales: %s: missing locale code", path)
		}
		m.locales[loc.Code] = &loc
	}
	if len(m.locales) == 0 {
		return nil, fmt.Errorf("locales: no locale files in %s", folder)
	}

	logger.Info(context.Background(), "locales", "locales.loaded",
		slog.Int("count", len(m.locales)),
	)
	return m, nil
}

// Locales returns the loaded locale codes, sorted.
func (m *Manager) Locales() []string {
	out := make([]string, 0, len(m.locales))
	for code := range m.locales {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Has reports whether the locale code is loaded.
func (m *Manager) Has(locale string) bool {
	_, ok := m.locales[locale]
	return ok
}

func (m *Manager) locale(locale string) (*localeData, error) {
	loc, ok := m.locales[locale]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocaleNotFound, locale)
	}
	return loc, nil
}

// SimpleReply returns a fixed reply text.
func (m *Manager) SimpleReply(name, locale string) (string, error) {
	loc, err := m.locale(locale)
	if err != nil {
		return "", err
	}
	text, ok := loc.Replies.Simple[name]
	if !ok {
		return "", fmt.Errorf("%w: replies.simple.%s (%s)", ErrKeyNotFound, name, locale)
	}
	return text, nil
}

// FormatReply returns a reply template expanded with fmt verbs.
func (m *Manager) FormatReply(name, locale string, args ...any) (string, error) {
	loc, err := m.locale(locale)
	if err != nil {
		return "", err
	}
	tmpl, ok := loc.Replies.Format[name]
	if !ok {
		return "", fmt.Errorf("%w: replies.format.%s (%s)", ErrKeyNotFound, name, locale)
	}
	return fmt.Sprintf(tmpl, args...), nil
}

// Keyboard resolves a named arrangement into rows of button labels.
// Arrangement cells reference keyboards.buttons entries by name; a cell
// without a button entry is used verbatim.
func (m *Manager) Keyboard(name, locale string) ([][]string, error) {
	loc, err := m.locale(locale)
	if err != nil {
		return nil, err
	}
	arrangement, ok := loc.Keyboards.Arrangements[name]
	if !ok {
		return nil, fmt.Errorf("%w: keyboards.arrangements.%s (%s)", ErrKeyNotFound, name, locale)
	}
	rows := make([][]string, 0, len(arrangement))
	for _, row := range arrangement {
		labels := make([]string, 0, len(row))
		for _, cell := range row {
			if label, ok := loc.Keyboards.Buttons[cell]; ok {
				labels = append(labels, label)
			} else {
				labels = append(labels, cell)
			}
		}
		rows = append(rows, labels)
	}
	return rows, nil
}

// Button returns the label of a named button.
func (m *Manager) Button(name, locale string) (string, error) {
	loc, err := m.locale(locale)
	if err != nil {
		return "", err
	}
	label, ok := loc.Keyboards.Buttons[name]
	if !ok {
		return "", fmt.Errorf("%w: keyboards.buttons.%s (%s)", ErrKeyNotFound, name, locale)
	}
	return label, nil
}

// Other returns an arbitrary value from the locale's "other" section.
func (m *Manager) Other(name, locale string) (any, error) {
	loc, err := m.locale(locale)
	if err != nil {
		return nil, err
	}
	value, ok := loc.Other[name]
	if !ok {
		return nil, fmt.Errorf("%w: other.%s (%s)", ErrKeyNotFound, name, locale)
	}
	return value, nil
}
