// Package i18n serves the bot's message catalogs.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var locales embed.FS

// Translator resolves dot-separated keys such as "prompt.question". Arguments are applied to the
// entry with fmt.Sprintf; an unknown key is returned as is.
type Translator interface {
	T(key string, args ...any) string
	Lang() string
}

// Manager holds one flat catalog per language.
type Manager struct {
	translations map[string]map[string]string
	defaultLang  string
}

// Load reads the catalogs embedded in the binary.
func Load(defaultLang string) (*Manager, error) {
	return LoadFS(locales, "locales", defaultLang)
}

// LoadFS reads every .yaml/.yml file in dir. Each file maps language codes to nested entries;
// several files may contribute to the same language.
func LoadFS(fsys fs.FS, dir, defaultLang string) (*Manager, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read dir %s: %w", dir, err)
	}

	m := &Manager{translations: make(map[string]map[string]string), defaultLang: defaultLang}
	if m.defaultLang == "" {
		m.defaultLang = "en"
	}

	files := 0
	for _, entry := range entries {
		ext := strings.ToLower(path.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		files++

		if err := m.loadFile(fsys, path.Join(dir, entry.Name())); err != nil {
			return nil, err
		}
	}

	if files == 0 {
		return nil, fmt.Errorf("i18n: no yaml files found in %s", dir)
	}
	if _, ok := m.translations[m.defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", m.defaultLang)
	}

	return m, nil
}

func (m *Manager) loadFile(fsys fs.FS, name string) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("i18n: read file %s: %w", name, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("i18n: parse file %s: %w", name, err)
	}
	if len(doc.Content) == 0 {
		return nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("i18n: %s: top level must map languages to entries", name)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		lang := strings.ToLower(strings.TrimSpace(root.Content[i].Value))
		if lang == "" {
			continue
		}

		catalog := m.translations[lang]
		if catalog == nil {
			catalog = make(map[string]string)
		}
		collect(root.Content[i+1], "", catalog)

		if len(catalog) > 0 {
			m.translations[lang] = catalog
		}
	}

	return nil
}

// collect walks a mapping node and stores every scalar under its dotted path.
func collect(node *yaml.Node, prefix string, out map[string]string) {
	switch node.Kind {
	case yaml.ScalarNode:
		if prefix != "" {
			out[prefix] = node.Value
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			if key == "" {
				continue
			}
			if prefix != "" {
				key = prefix + "." + key
			}
			collect(node.Content[i+1], key, out)
		}
	}
}

// Translator picks the catalog for lang, falling back to the default language.
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}

	code := strings.ToLower(strings.TrimSpace(lang))
	if _, ok := m.translations[code]; !ok {
		code = m.defaultLang
	}

	return translator{
		lang:     code,
		primary:  m.translations[code],
		fallback: m.translations[m.defaultLang],
	}
}

func (m *Manager) DefaultLang() string {
	if m == nil {
		return ""
	}
	return m.defaultLang
}

// Languages lists the loaded language codes in order.
func (m *Manager) Languages() []string {
	if m == nil {
		return nil
	}

	out := make([]string, 0, len(m.translations))
	for code := range m.translations {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

type translator struct {
	lang     string
	primary  map[string]string
	fallback map[string]string
}

func (t translator) Lang() string { return t.lang }

func (t translator) T(key string, args ...any) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}

	value, ok := t.primary[key]
	if !ok {
		value, ok = t.fallback[key]
	}
	if !ok {
		return key
	}

	if len(args) == 0 {
		return value
	}
	return fmt.Sprintf(value, args...)
}
