// Package i18n resolves dotted translation keys against a YAML catalog.
package i18n

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var locales embed.FS

// DefaultLang is used when the configured language has no built-in catalog.
const DefaultLang = "zh_cn"

// Translator looks up strings by dotted key. It is safe for concurrent use.
type Translator struct {
	mu      sync.RWMutex
	lang    string
	entries map[string]string
}

// New loads the built-in catalog for lang and, when overridePath is set,
// merges the user's file on top of it.
func New(lang, overridePath string) (*Translator, error) {
	t := &Translator{}
	if err := t.Load(lang, overridePath); err != nil {
		return nil, err
	}
	return t, nil
}

// Load replaces the catalog.
func (t *Translator) Load(lang, overridePath string) error {
	if lang == "" {
		lang = DefaultLang
	}
	data, err := locales.ReadFile("locales/" + lang + ".yaml")
	if err != nil {
		lang = DefaultLang
		data, err = locales.ReadFile("locales/" + DefaultLang + ".yaml")
		if err != nil {
			return err
		}
	}

	entries := make(map[string]string)
	if err := merge(entries, data); err != nil {
		return fmt.Errorf("built-in catalog %s: %w", lang, err)
	}
	if overridePath != "" {
		extra, err := os.ReadFile(overridePath)
		if err != nil {
			return fmt.Errorf("read catalog: %w", err)
		}
		if err := merge(entries, extra); err != nil {
			return fmt.Errorf("catalog %s: %w", overridePath, err)
		}
	}

	t.mu.Lock()
	t.lang = lang
	t.entries = entries
	t.mu.Unlock()
	return nil
}

// Lang returns the active language.
func (t *Translator) Lang() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lang
}

// Tr resolves key and substitutes {name} placeholders from params. Unknown
// keys resolve to the key itself so a missing entry is visible, not silent.
func (t *Translator) Tr(key string, params map[string]any) string {
	t.mu.RLock()
	s, ok := t.entries[key]
	t.mu.RUnlock()
	if !ok {
		return key
	}
	return Format(s, params)
}

// Has reports whether key exists.
func (t *Translator) Has(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[key]
	return ok
}

// Keys returns every key, sorted.
func (t *Translator) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Format replaces {name} placeholders. Placeholders without a parameter are
// left as written.
func Format(s string, params map[string]any) string {
	if len(params) == 0 || !strings.Contains(s, "{") {
		return s
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

func merge(dst map[string]string, data []byte) error {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	flatten(dst, "", tree)
	return nil
}

func flatten(dst map[string]string, prefix string, node map[string]any) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch x := v.(type) {
		case map[string]any:
			flatten(dst, key, x)
		case nil:
		default:
			dst[key] = fmt.Sprint(x)
		}
	}
}
