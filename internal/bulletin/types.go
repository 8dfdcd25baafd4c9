// Package bulletin ties layout analysis, template matching and PDF
// regeneration to stored templates and bulletins.
package bulletin

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/a3tai/mcp-bulletin/internal/layout"
)

// FieldType is the kind of value a field holds
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldDate   FieldType = "date"
	FieldNumber FieldType = "number"
)

// Valid reports whether t is a known field type. The empty type means text.
func (t FieldType) Valid() bool {
	switch t {
	case "", FieldText, FieldDate, FieldNumber:
		return true
	default:
		return false
	}
}

// FieldDefinition is a rectangle drawn over a page, in canvas coordinates
// (origin top-left, pixels at scale 1.0)
type FieldDefinition struct {
	ID     string    `json:"id" yaml:"id"`
	Label  string    `json:"label" yaml:"label"`
	X      float64   `json:"x" yaml:"x"`
	Y      float64   `json:"y" yaml:"y"`
	Width  float64   `json:"width,omitempty" yaml:"width,omitempty"`
	Height float64   `json:"height,omitempty" yaml:"height,omitempty"`
	Page   int       `json:"page" yaml:"page"`
	Type   FieldType `json:"type,omitempty" yaml:"type,omitempty"`
}

// Geometry returns the rectangle used by extraction and generation
func (f FieldDefinition) Geometry() layout.Field {
	return layout.Field{
		ID:     f.ID,
		X:      f.X,
		Y:      f.Y,
		Width:  f.Width,
		Height: f.Height,
		Page:   f.Page,
	}
}

// Geometries converts a list of definitions
func Geometries(defs []FieldDefinition) []layout.Field {
	fields := make([]layout.Field, len(defs))
	for i, def := range defs {
		fields[i] = def.Geometry()
	}
	return fields
}

// Template is a named layout fingerprint with its field definitions
type Template struct {
	ID                string            `json:"id"`
	ChurchID          string            `json:"churchId"`
	Name              string            `json:"name"`
	LayoutFingerprint string            `json:"layoutFingerprint"`
	FieldDefinitions  []FieldDefinition `json:"fieldDefinitions"`
	// SourceBulletinID is the bulletin whose PDF the fields were drawn on
	SourceBulletinID string    `json:"sourceBulletinId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Bulletin is one uploaded weekly PDF
type Bulletin struct {
	ID                string            `json:"id"`
	ChurchID          string            `json:"churchId"`
	OriginalPDFURL    string            `json:"originalPdfUrl"`
	WeekOf            time.Time         `json:"weekOf"`
	IsTemplate        bool              `json:"isTemplate"`
	TemplateID        *string           `json:"templateId,omitempty"`
	FieldValues       map[string]string `json:"fieldValues"`
	LayoutFingerprint string            `json:"layoutFingerprint,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// MatchResult is the outcome of matching a fingerprint against a church's
// templates. A nil Template means no template reached the threshold.
type MatchResult struct {
	Template   *Template `json:"template"`
	Confidence float64   `json:"confidence"`
}

// Matched reports whether a template was selected
func (m MatchResult) Matched() bool {
	return m.Template != nil
}

var (
	// ErrNotFound is returned when a template or bulletin does not exist for the church
	ErrNotFound = errors.New("not found")
	// ErrNoTemplateFields is returned when a bulletin has no template fields to work with
	ErrNoTemplateFields = errors.New("no template fields found for this bulletin")
	// ErrInvalidField is returned for malformed field definitions
	ErrInvalidField = errors.New("invalid field definition")
	// ErrInvalidInput is returned for missing or malformed request data
	ErrInvalidInput = errors.New("invalid input")
)

// ValidateFieldDefinitions checks ids, pages, types and sizes
func ValidateFieldDefinitions(defs []FieldDefinition) error {
	if len(defs) == 0 {
		return fmt.Errorf("%w: at least one field is required", ErrInvalidField)
	}

	seen := make(map[string]struct{}, len(defs))
	for i, def := range defs {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			return fmt.Errorf("%w: field %d has no id", ErrInvalidField, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate field id %q", ErrInvalidField, id)
		}
		seen[id] = struct{}{}

		if def.Page < 1 {
			return fmt.Errorf("%w: field %q page must be >= 1, got %d", ErrInvalidField, id, def.Page)
		}
		if def.Width < 0 || def.Height < 0 {
			return fmt.Errorf("%w: field %q has a negative size", ErrInvalidField, id)
		}
		if !def.Type.Valid() {
			return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidField, id, def.Type)
		}
	}
	return nil
}
