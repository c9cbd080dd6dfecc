package stickers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Pack types.
const (
	TypeCommon   = "common"
	TypeInline   = "inline"
	TypeAnimated = "animated"
	TypeVideo    = "video"
)

var (
	// ErrPackNotFound is returned for unknown pack names.
	ErrPackNotFound = errors.New("stickers: pack not found")
	// ErrPackExists is returned when creating a pack under a taken name.
	ErrPackExists = errors.New("stickers: pack already exists")
	// ErrNotOwner is returned when a user changes a pack they do not own.
	ErrNotOwner = errors.New("stickers: not the pack owner")
	// ErrStickerNotFound is returned for an out of range sticker index.
	ErrStickerNotFound = errors.New("stickers: sticker not found")
)

// Sticker is one item of a pack.
type Sticker struct {
	FileID string
	// Original is the file the sticker was made from, when known.
	Original string
	Emoji    string
	Deleted  bool
}

// Pack is a sticker set.
type Pack struct {
	Name     string
	Title    string
	Type     string
	Owner    int64
	Public   bool
	Hidden   bool
	Stickers []Sticker
}

// FileIDs returns the file ids of the stickers not deleted.
func (p Pack) FileIDs() []string {
	ids := make([]string, 0, len(p.Stickers))
	for _, s := range p.Stickers {
		if !s.Deleted {
			ids = append(ids, s.FileID)
		}
	}
	return ids
}

// Catalog stores sticker packs. Persisting business data is left to the
// implementation; the bot ships an in-memory one.
type Catalog interface {
	Create(ctx context.Context, p Pack) error
	Pack(ctx context.Context, name string) (Pack, error)
	// Packs lists the owner's packs of type t (all types when t is empty).
	Packs(ctx context.Context, owner int64, t string, withHidden bool) ([]Pack, error)
	PublicPacks(ctx context.Context) ([]Pack, error)
	Update(ctx context.Context, name string, owner int64, fn func(p *Pack) error) error
	// Original returns the source file of a sticker file id.
	Original(ctx context.Context, fileID string) (string, bool, error)
}

// MemoryCatalog is a Catalog in process memory.
type MemoryCatalog struct {
	mu    sync.RWMutex
	packs map[string]*Pack
}

// NewMemoryCatalog returns an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{packs: make(map[string]*Pack)}
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func clonePack(p *Pack) Pack {
	out := *p
	out.Stickers = slices.Clone(p.Stickers)
	return out
}

func (m *MemoryCatalog) Create(_ context.Context, p Pack) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("stickers: empty pack name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(p.Name)
	if _, ok := m.packs[k]; ok {
		return fmt.Errorf("%w: %s", ErrPackExists, p.Name)
	}
	cp := clonePack(&p)
	m.packs[k] = &cp
	return nil
}

func (m *MemoryCatalog) Pack(_ context.Context, name string) (Pack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.packs[key(name)]
	if !ok {
		return Pack{}, fmt.Errorf("%w: %s", ErrPackNotFound, name)
	}
	return clonePack(p), nil
}

func (m *MemoryCatalog) Packs(_ context.Context, owner int64, t string, withHidden bool) ([]Pack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Pack
	for _, p := range m.packs {
		if p.Owner != owner || (t != "" && p.Type != t) || (p.Hidden && !withHidden) {
			continue
		}
		out = append(out, clonePack(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryCatalog) PublicPacks(_ context.Context) ([]Pack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Pack
	for _, p := range m.packs {
		if p.Public && !p.Hidden {
			out = append(out, clonePack(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Update applies fn to the stored pack. Owners may change their packs;
// public packs accept changes from anyone (owner 0 skips the check).
func (m *MemoryCatalog) Update(_ context.Context, name string, owner int64, fn func(p *Pack) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packs[key(name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPackNotFound, name)
	}
	if owner != 0 && p.Owner != owner && !p.Public {
		return ErrNotOwner
	}
	cp := clonePack(p)
	if err := fn(&cp); err != nil {
		return err
	}
	*p = cp
	return nil
}

func (m *MemoryCatalog) Original(_ context.Context, fileID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.packs {
		for _, s := range p.Stickers {
			if s.FileID == fileID && s.Original != "" {
				return s.Original, true, nil
			}
		}
	}
	return "", false, nil
}
