package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_BundledCatalogs(t *testing.T) {
	m, err := Load("ru")
	require.NoError(t, err)

	assert.Equal(t, []string{"en", "ru"}, m.Languages())
	assert.Equal(t, "ru", m.DefaultLang())

	en := m.Translator("EN")
	assert.Equal(t, "en", en.Lang())
	assert.Equal(t, "How is your mood today?", en.T("prompt.question"))
	assert.Equal(t, "Stats:\nWeek: 0.33\nMonth: -1.00", en.T("stats", 1.0/3.0, -1.0))
}

func TestLoad_EveryLanguageHasEveryKey(t *testing.T) {
	m, err := Load("ru")
	require.NoError(t, err)

	for key := range m.translations["ru"] {
		_, ok := m.translations["en"][key]
		assert.True(t, ok, "en is missing %q", key)
	}
	for key := range m.translations["en"] {
		_, ok := m.translations["ru"][key]
		assert.True(t, ok, "ru is missing %q", key)
	}
}

func TestTranslator_Fallbacks(t *testing.T) {
	fsys := fstest.MapFS{
		"l/base.yaml": {Data: []byte("en:\n  hello: Hello\n  only_en: English\n")},
		"l/extra.yml": {Data: []byte("de:\n  hello: Hallo\n")},
		"l/notes.txt": {Data: []byte("ignored")},
	}

	m, err := LoadFS(fsys, "l", "en")
	require.NoError(t, err)

	de := m.Translator("de")
	assert.Equal(t, "Hallo", de.T("hello"))
	assert.Equal(t, "English", de.T("only_en"))
	assert.Equal(t, "missing.key", de.T("missing.key"))

	assert.Equal(t, "en", m.Translator("fr").Lang())
	assert.Equal(t, "en", m.Translator("").Lang())
}

func TestLoadFS_Errors(t *testing.T) {
	_, err := LoadFS(fstest.MapFS{"l/a.txt": {Data: []byte("x")}}, "l", "en")
	assert.Error(t, err)

	_, err = LoadFS(fstest.MapFS{"l/a.yaml": {Data: []byte("de:\n  a: b\n")}}, "l", "en")
	assert.Error(t, err)
}
