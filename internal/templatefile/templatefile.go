// Package templatefile reads and writes template and field value files used
// by the command line tool. Template files are YAML checked against a CUE
// schema before use.
package templatefile

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"

	"github.com/a3tai/mcp-bulletin/internal/bulletin"
)

//go:embed schema.cue
var schemaSource string

// File is the on-disk form of a template
type File struct {
	Name        string                     `json:"name" yaml:"name"`
	Fingerprint string                     `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Fields      []bulletin.FieldDefinition `json:"fields" yaml:"fields"`
}

// FromTemplate converts a stored template into its file form
func FromTemplate(t *bulletin.Template) *File {
	fields := make([]bulletin.FieldDefinition, len(t.FieldDefinitions))
	copy(fields, t.FieldDefinitions)
	return &File{
		Name:        t.Name,
		Fingerprint: t.LayoutFingerprint,
		Fields:      fields,
	}
}

// Loader reads and writes files on fs. A Loader holds a CUE context and is
// not safe for concurrent use.
type Loader struct {
	fs     afero.Fs
	ctx    *cue.Context
	schema cue.Value
}

// NewLoader compiles the template schema
func NewLoader(fs afero.Fs) (*Loader, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	ctx := cuecontext.New()
	compiled := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := compiled.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile template schema: %w", err)
	}

	schema := compiled.LookupPath(cue.ParsePath("#Template"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("template schema has no #Template definition: %w", err)
	}

	return &Loader{fs: fs, ctx: ctx, schema: schema}, nil
}

// Load reads and validates a template file
func (l *Loader) Load(path string) (*File, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}

	f, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates template YAML
func (l *Loader) Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("%w: %v", bulletin.ErrInvalidField, err)
	}
	if err := l.Validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks f against the schema and the field rules shared with the
// service, such as unique IDs
func (l *Loader) Validate(f *File) error {
	value := l.ctx.Encode(f)
	if err := value.Err(); err != nil {
		return fmt.Errorf("%w: %v", bulletin.ErrInvalidField, err)
	}

	if err := l.schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", bulletin.ErrInvalidField, err)
	}

	return bulletin.ValidateFieldDefinitions(f.Fields)
}

// Save validates f and writes it as YAML
func (l *Loader) Save(path string, f *File) error {
	if err := l.Validate(f); err != nil {
		return err
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}
	return l.write(path, data)
}

// LoadValues reads a field ID to value mapping
func (l *Loader) LoadValues(path string) (map[string]string, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read values %s: %w", path, err)
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: values %s: %v", bulletin.ErrInvalidInput, path, err)
	}
	return values, nil
}

// SaveValues writes a field ID to value mapping as YAML
func (l *Loader) SaveValues(path string, values map[string]string) error {
	if values == nil {
		values = map[string]string{}
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode values: %w", err)
	}
	return l.write(path, data)
}

func (l *Loader) write(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := l.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(l.fs, path, data, os.FileMode(0o644)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
