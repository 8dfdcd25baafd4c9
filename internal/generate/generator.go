// Package generate overlays field values on a template PDF.
package generate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/a3tai/mcp-bulletin/internal/layout"
	pdferrors "github.com/a3tai/mcp-bulletin/internal/pdf/errors"
	"github.com/a3tai/mcp-bulletin/internal/pdf/wrapper"
)

const (
	// DefaultFontSize caps the size of drawn values when a request sets none
	DefaultFontSize = 12.0
	// fieldFillRatio is the share of a field's height a value may occupy
	fieldFillRatio = 0.8
)

// Fetcher loads the bytes behind a stored PDF URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Request describes one regeneration. Template takes precedence over
// TemplateURL when both are set.
type Request struct {
	Template    []byte
	TemplateURL string
	Fields      []layout.Field
	Values      map[string]string
	FontSize    float64
}

// Generator draws values onto template PDFs through a wrapper.Writer
type Generator struct {
	writer  wrapper.Writer
	fetcher Fetcher
	font    wrapper.StandardFont
	color   wrapper.Color
}

// Option configures a Generator
type Option func(*Generator)

// WithFont selects the standard font values are drawn in
func WithFont(font wrapper.StandardFont) Option {
	return func(g *Generator) { g.font = font }
}

// WithColor selects the fill color values are drawn in
func WithColor(color wrapper.Color) Option {
	return func(g *Generator) { g.color = color }
}

// NewGenerator creates a Generator. fetcher may be nil when every request
// carries its template bytes.
func NewGenerator(writer wrapper.Writer, fetcher Fetcher, opts ...Option) *Generator {
	g := &Generator{
		writer:  writer,
		fetcher: fetcher,
		font:    wrapper.FontHelvetica,
		color:   wrapper.Black,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FontSize returns the size a value is drawn at: the requested size capped
// at 80% of the field height. A field without a height uses the requested
// size.
func FontSize(fieldHeight, requested float64) float64 {
	if requested <= 0 {
		requested = DefaultFontSize
	}
	if fieldHeight <= 0 {
		return requested
	}
	return math.Min(fieldHeight*fieldFillRatio, requested)
}

// Baseline converts a field's canvas y to the PDF y of a text baseline.
// The font size, not the field height, is subtracted because text is
// positioned by its baseline.
func Baseline(pageHeight, fieldY, fontSize float64) float64 {
	return pageHeight - fieldY - fontSize
}

// Generate returns a new PDF with every non-blank value drawn at its field.
// Any failure is returned as a generation error and no PDF is produced.
func (g *Generator) Generate(ctx context.Context, req Request) ([]byte, error) {
	data, err := g.template(ctx, req)
	if err != nil {
		return nil, err
	}

	doc, err := g.writer.Load(data)
	if err != nil {
		return nil, pdferrors.NewGenerationError("load", pdferrors.NewDecodeError("load", err))
	}

	for _, field := range drawable(req.Fields, req.Values) {
		index := field.Page - 1
		if index < 0 || index >= doc.GetPageCount() {
			cause := pdferrors.NewPDFError(pdferrors.ErrorTypePageRange, "draw",
				fmt.Sprintf("field %q references page %d of %d", field.ID, field.Page, doc.GetPageCount())).
				WithPage(field.Page)
			return nil, pdferrors.NewGenerationError("draw", cause)
		}

		size, err := doc.GetPageSize(index)
		if err != nil {
			return nil, pdferrors.NewGenerationError("page_size", err).WithPage(field.Page)
		}

		fontSize := FontSize(field.Height, req.FontSize)
		opts := wrapper.DrawOptions{
			X:     field.X,
			Y:     Baseline(size.Height, field.Y, fontSize),
			Size:  fontSize,
			Font:  g.font,
			Color: g.color,
		}
		if err := doc.DrawText(index, req.Values[field.ID], opts); err != nil {
			return nil, pdferrors.NewGenerationError("draw", err).WithPage(field.Page).WithContext(field.ID)
		}
	}

	out, err := doc.Save()
	if err != nil {
		return nil, pdferrors.NewGenerationError("save", err)
	}
	return out, nil
}

func (g *Generator) template(ctx context.Context, req Request) ([]byte, error) {
	if len(req.Template) > 0 {
		return req.Template, nil
	}
	if req.TemplateURL == "" {
		return nil, pdferrors.NewGenerationError("fetch",
			pdferrors.NewPDFError(pdferrors.ErrorTypeFetch, "fetch", "no template PDF given"))
	}
	if g.fetcher == nil {
		return nil, pdferrors.NewGenerationError("fetch",
			pdferrors.NewPDFError(pdferrors.ErrorTypeFetch, "fetch", "no fetcher configured").WithContext(req.TemplateURL))
	}

	data, err := g.fetcher.Fetch(ctx, req.TemplateURL)
	if err != nil {
		return nil, pdferrors.NewGenerationError("fetch",
			pdferrors.WrapError(pdferrors.ErrorTypeFetch, "fetch", err).WithContext(req.TemplateURL))
	}
	return data, nil
}

// drawable returns the fields that carry a non-blank value, ordered by page
// so stamps are applied deterministically
func drawable(fields []layout.Field, values map[string]string) []layout.Field {
	var out []layout.Field
	for _, field := range fields {
		if strings.TrimSpace(values[field.ID]) == "" {
			continue
		}
		out = append(out, field)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Page < out[j].Page
	})
	return out
}
