// Package store provides bulletin.Store implementations: an in-memory store
// for tests and single-process runs, and a PostgreSQL store built on gorm.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/a3tai/mcp-bulletin/internal/bulletin"
)

// Memory is a bulletin.Store held in process memory
type Memory struct {
	mu        sync.RWMutex
	seq       int
	templates map[string]templateEntry
	bulletins map[string]*bulletin.Bulletin
}

type templateEntry struct {
	seq      int
	template *bulletin.Template
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		templates: make(map[string]templateEntry),
		bulletins: make(map[string]*bulletin.Bulletin),
	}
}

// CreateTemplate stores a copy of t
func (m *Memory) CreateTemplate(ctx context.Context, t *bulletin.Template) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("template id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.templates[t.ID]; exists {
		return fmt.Errorf("template %s already exists", t.ID)
	}
	m.seq++
	m.templates[t.ID] = templateEntry{seq: m.seq, template: copyTemplate(t)}
	return nil
}

// GetTemplate returns a copy of the church's template id
func (m *Memory) GetTemplate(ctx context.Context, churchID, id string) (*bulletin.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.templates[id]
	if !ok || entry.template.ChurchID != churchID {
		return nil, fmt.Errorf("template %s: %w", id, bulletin.ErrNotFound)
	}
	return copyTemplate(entry.template), nil
}

// ListTemplates returns the church's templates, newest first
func (m *Memory) ListTemplates(ctx context.Context, churchID string) ([]bulletin.Template, error) {
	m.mu.RLock()
	var entries []templateEntry
	for _, entry := range m.templates {
		if entry.template.ChurchID == churchID {
			entries = append(entries, entry)
		}
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.template.CreatedAt.Equal(b.template.CreatedAt) {
			return a.template.CreatedAt.After(b.template.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]bulletin.Template, len(entries))
	for i, entry := range entries {
		out[i] = *copyTemplate(entry.template)
	}
	return out, nil
}

// CreateBulletin stores a copy of b
func (m *Memory) CreateBulletin(ctx context.Context, b *bulletin.Bulletin) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("bulletin id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bulletins[b.ID]; exists {
		return fmt.Errorf("bulletin %s already exists", b.ID)
	}
	m.bulletins[b.ID] = copyBulletin(b)
	return nil
}

// GetBulletin returns a copy of the church's bulletin id
func (m *Memory) GetBulletin(ctx context.Context, churchID, id string) (*bulletin.Bulletin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bulletins[id]
	if !ok || b.ChurchID != churchID {
		return nil, fmt.Errorf("bulletin %s: %w", id, bulletin.ErrNotFound)
	}
	return copyBulletin(b), nil
}

// UpdateBulletin replaces the stored bulletin
func (m *Memory) UpdateBulletin(ctx context.Context, b *bulletin.Bulletin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.bulletins[b.ID]
	if !ok || stored.ChurchID != b.ChurchID {
		return fmt.Errorf("bulletin %s: %w", b.ID, bulletin.ErrNotFound)
	}
	m.bulletins[b.ID] = copyBulletin(b)
	return nil
}

func copyTemplate(t *bulletin.Template) *bulletin.Template {
	c := *t
	c.FieldDefinitions = append([]bulletin.FieldDefinition(nil), t.FieldDefinitions...)
	return &c
}

func copyBulletin(b *bulletin.Bulletin) *bulletin.Bulletin {
	c := *b
	if b.TemplateID != nil {
		id := *b.TemplateID
		c.TemplateID = &id
	}
	c.FieldValues = make(map[string]string, len(b.FieldValues))
	for k, v := range b.FieldValues {
		c.FieldValues[k] = v
	}
	return &c
}
