// Package i18n provides locale-aware string lookup backed by go-i18n bundles.
// Catalog files are named after their locale (en.yaml, ru.yaml) and may nest
// keys; nested keys are addressed with dots ("cmd.start.btn.packs").
package i18n

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Translator renders a message for a locale.
type Translator interface {
	Translate(locale, key string, params map[string]any) string
}

// Catalog wraps a message bundle with a fixed fallback locale.
type Catalog struct {
	fallback string
	bundle   *goi18n.Bundle
	loaded   map[string]bool

	mu         sync.RWMutex
	localizers map[string]*goi18n.Localizer
}

// New returns an empty catalog falling back to the given locale.
func New(fallback string) *Catalog {
	fallback = Normalize(fallback)
	tag, err := language.Parse(fallback)
	if err != nil || fallback == "" {
		tag, fallback = language.English, "en"
	}
	b := goi18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)
	b.RegisterUnmarshalFunc("yml", yaml.Unmarshal)
	return &Catalog{
		fallback:   fallback,
		bundle:     b,
		loaded:     make(map[string]bool),
		localizers: make(map[string]*goi18n.Localizer),
	}
}

// LoadFS reads every *.yaml / *.yml file in dir of fsys.
func LoadFS(fsys fs.FS, dir, fallback string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read dir %s: %w", dir, err)
	}
	c := New(fallback)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch path.Ext(e.Name()) {
		case ".yaml", ".yml":
		default:
			continue
		}
		mf, err := c.bundle.LoadMessageFileFS(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("i18n: load %s: %w", e.Name(), err)
		}
		c.loaded[Normalize(mf.Tag.String())] = true
	}
	if !c.loaded[c.fallback] {
		return nil, fmt.Errorf("i18n: fallback locale %q has no catalog", c.fallback)
	}
	return c, nil
}

// LoadDir reads catalogs from a directory on disk.
func LoadDir(dir, fallback string) (*Catalog, error) {
	return LoadFS(os.DirFS(dir), ".", fallback)
}

// Add merges a YAML document into the locale's messages.
func (c *Catalog) Add(locale string, data []byte) error {
	locale = Normalize(locale)
	if _, err := c.bundle.ParseMessageFileBytes(data, locale+".yaml"); err != nil {
		return fmt.Errorf("i18n: parse %s: %w", locale, err)
	}
	c.loaded[locale] = true
	return nil
}

// Locales lists loaded locales in sorted order.
func (c *Catalog) Locales() []string {
	out := make([]string, 0, len(c.loaded))
	for l := range c.loaded {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a catalog exists for the locale.
func (c *Catalog) Has(locale string) bool {
	return c.loaded[Normalize(locale)]
}

// Fallback returns the fallback locale.
func (c *Catalog) Fallback() string { return c.fallback }

// Translate renders key for locale, then for the fallback locale. Missing
// keys render as the key itself.
func (c *Catalog) Translate(locale, key string, params map[string]any) string {
	cfg := &goi18n.LocalizeConfig{MessageID: key, TemplateData: params}
	if msg, err := c.localizer(locale).Localize(cfg); err == nil {
		return msg
	}
	if msg, err := c.localizer(c.fallback).Localize(cfg); err == nil {
		return msg
	}
	return key
}

func (c *Catalog) localizer(locale string) *goi18n.Localizer {
	locale = Normalize(locale)
	c.mu.RLock()
	l, ok := c.localizers[locale]
	c.mu.RUnlock()
	if ok {
		return l
	}
	l = goi18n.NewLocalizer(c.bundle, locale, c.fallback)
	c.mu.Lock()
	c.localizers[locale] = l
	c.mu.Unlock()
	return l
}

// Normalize reduces "en-US" / "EN_us" to "en".
func Normalize(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return locale
}
