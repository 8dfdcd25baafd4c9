package layout

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	pdferrors "github.com/a3tai/mcp-bulletin/internal/pdf/errors"
	"github.com/a3tai/mcp-bulletin/internal/pdf/wrapper"
)

// Extractor pulls positioned text out of PDF documents through a
// wrapper.Source and fingerprints the result
type Extractor struct {
	source        wrapper.Source
	opts          Options
	fingerprinter *Fingerprinter
}

// NewExtractor creates an Extractor over source
func NewExtractor(source wrapper.Source, opts Options) *Extractor {
	opts = opts.withDefaults()
	return &Extractor{
		source:        source,
		opts:          opts,
		fingerprinter: NewFingerprinter(opts),
	}
}

// NewExtractorForBackend creates an Extractor using the named PDF backend
func NewExtractorForBackend(factory *wrapper.PDFLibraryFactory, backend wrapper.LibraryType, opts Options) (*Extractor, error) {
	if factory == nil {
		factory = wrapper.NewPDFLibraryFactory()
	}
	source, err := factory.CreateSource(backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create text source: %w", err)
	}
	return NewExtractor(source, opts), nil
}

// Fingerprinter returns the fingerprinter configured with the extractor's tunables
func (e *Extractor) Fingerprinter() *Fingerprinter {
	return e.fingerprinter
}

// Options returns the effective tunables
func (e *Extractor) Options() Options {
	return e.opts
}

// Extract decodes every page and returns its non-empty text runs together
// with the layout fingerprint. Pages are decoded concurrently; the output is
// in page order. Any page failure fails the whole call with a decode error.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*Analysis, error) {
	doc, err := e.source.Open(data)
	if err != nil {
		return nil, pdferrors.NewDecodeError("open", err)
	}
	defer doc.Close()

	count := doc.GetPageCount()
	pages := make([][]Fragment, count)
	heights := make([]float64, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := 0; i < count; i++ {
		pageNum := i + 1
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frags, height, err := readPage(doc, pageNum)
			if err != nil {
				return err
			}
			pages[pageNum-1] = frags
			heights[pageNum-1] = height
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if pdferrors.IsDecode(err) {
			return nil, err
		}
		return nil, pdferrors.NewDecodeError("extract", err)
	}

	analysis := &Analysis{
		PageCount:   count,
		PageHeights: heights,
	}
	for _, frags := range pages {
		analysis.Fragments = append(analysis.Fragments, frags...)
	}
	analysis.Fingerprint = e.fingerprinter.Generate(analysis.Fragments)

	return analysis, nil
}

func readPage(doc wrapper.Document, pageNum int) ([]Fragment, float64, error) {
	page, err := doc.GetPage(pageNum)
	if err != nil {
		return nil, 0, pdferrors.NewDecodeError("get_page", err).WithPage(pageNum)
	}

	height := DefaultPageHeight
	if size, err := page.GetSize(); err == nil && size != nil && size.Height > 0 {
		height = size.Height
	}

	items, err := page.GetTextContent()
	if err != nil {
		return nil, 0, pdferrors.NewDecodeError("text_content", err).WithPage(pageNum)
	}

	frags := make([]Fragment, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Str) == "" {
			continue
		}
		frags = append(frags, fromTextItem(item, pageNum))
	}
	return frags, height, nil
}

// ExtractFieldValues extracts every field's value from data. It fails
// closed: when the document cannot be decoded or a field names a page the
// document does not have, every field maps to "" and the returned error is
// a recoverable extraction error for the caller to log.
func (e *Extractor) ExtractFieldValues(ctx context.Context, data []byte, fields []Field) (map[string]string, error) {
	analysis, err := e.Extract(ctx, data)
	if err != nil {
		return emptyValues(fields), pdferrors.NewExtractionError("extract_fields", err)
	}
	return e.FieldValues(analysis, fields)
}

// FieldValues extracts field values from an existing analysis with the same
// fail-closed contract as ExtractFieldValues
func (e *Extractor) FieldValues(analysis *Analysis, fields []Field) (map[string]string, error) {
	if analysis == nil {
		return emptyValues(fields), pdferrors.NewExtractionError("extract_fields", fmt.Errorf("no analysis"))
	}

	byPage := make(map[int][]Field)
	for _, field := range fields {
		if _, ok := analysis.PageHeight(field.Page); !ok {
			cause := pdferrors.NewPDFError(pdferrors.ErrorTypePageRange, "extract_fields",
				fmt.Sprintf("field %q references page %d of %d", field.ID, field.Page, analysis.PageCount)).
				WithPage(field.Page)
			return emptyValues(fields), pdferrors.NewExtractionError("extract_fields", cause)
		}
		byPage[field.Page] = append(byPage[field.Page], field)
	}

	values := make(map[string]string, len(fields))
	for page, pageFields := range byPage {
		height, _ := analysis.PageHeight(page)
		for id, value := range extractPageValues(analysis.PageFragments(page), height, pageFields, e.opts.RowTolerance) {
			values[id] = value
		}
	}
	return values, nil
}

func emptyValues(fields []Field) map[string]string {
	values := make(map[string]string, len(fields))
	for _, field := range fields {
		values[field.ID] = ""
	}
	return values
}
