package locales

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const enLocale = `{
  "code": "en",
  "replies": {
    "simple": {"greeting": "Hello!"},
    "format": {"balance": "You have %d points"}
  },
  "keyboards": {
    "buttons": {"yes": "Yes", "no": "No"},
    "arrangements": {"confirm": [["yes", "no"]]}
  },
  "other": {"currencies": ["USD", "EUR"]}
}`

const ruLocale = `{
  "code": "ru",
  "replies": {
    "simple": {"greeting": "Привет!"}
  }
}`

func writeLocales(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestNewLoadsFolder(t *testing.T) {
	req := require.New(t)
	dir := writeLocales(t, map[string]string{
		"en.json": enLocale,
		"ru.json": ruLocale,
	})

	m, err := New(dir)
	req.NoError(err)
	req.Equal([]string{"en", "ru"}, m.Locales())
	req.True(m.Has("en"))
	req.False(m.Has("de"))
}

func TestNewRejectsMissingCode(t *testing.T) {
	req := require.New(t)
	dir := writeLocales(t, map[string]string{
		"broken.json": `{"replies": {}}`,
	})

	_, err := New(dir)
	req.Error(err)
}

func TestNewRejectsEmptyFolder(t *testing.T) {
	req := require.New(t)
	_, err := New(t.TempDir())
	req.Error(err)
}

func TestSimpleReply(t *testing.T) {
	req := require.New(t)
	dir := writeLocales(t, map[string]string{"en.json": enLocale})
	m, err := New(dir)
	req.NoError(err)

	text, err := m.SimpleReply("greeting", "en")
	req.NoError(err)
	req.Equal("Hello!", text)

	_, err = m.SimpleReply("missing", "en")
	req.ErrorIs(err, ErrKeyNotFound)

	_, err = m.SimpleReply("greeting", "de")
	req.ErrorIs(err, ErrLocaleNotFound)
}

func TestFormatReply(t *testing.T) {
	req := require.New(t)
	dir := writeLocales(t, map[string]string{"en.json": enLocale})
	m, err := New(dir)
	req.NoError(err)

	text, err := m.FormatReply("balance", "en", 42)
	req.NoError(err)
	req.Equal("You have 42 points", text)
}

func TestKeyboardResolvesButtons(t *testing.T) {
	req := require.New(t)
	dir := writeLocales(t, map[string]string{"en.json": enLocale})
	m, err := New(dir)
	req.NoError(err)

	rows, err := m.Keyboard("confirm", "en")
	req.NoError(err)
	req.Equal([][]string{{"Yes", "No"}}, rows)

	_, err = m.Keyboard("missing", "en")
	req.ErrorIs(err, ErrKeyNotFound)
}

func TestButtonAndOther(t *testing.T) {
	req := require.New(t)
	dir := writeLocales(t, map[string]string{"en.json": enLocale})
	m, err := New(dir)
	req.NoError(err)

	label, err := m.Button("yes", "en")
	req.NoError(err)
	req.Equal("Yes", label)

	value, err := m.Other("currencies", "en")
	req.NoError(err)
	req.Equal([]any{"USD", "EUR"}, value)

	_, err = m.Other("missing", "en")
	req.ErrorIs(err, ErrKeyNotFound)
}
