package wrapper

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// defaultPageHeight is US Letter, used when a page has no MediaBox
	defaultPageHeight = 792.0
	defaultPageWidth  = 612.0

	// runBaselineTolerance is the largest baseline drift still treated as the same run
	runBaselineTolerance = 0.5
	// runGapFactor bounds the gap between glyphs of one run, relative to font size
	runGapFactor = 0.3
)

// LedongthucLibrary implements Source using ledongthuc/pdf
type LedongthucLibrary struct {
	config FactoryConfig
}

// NewLedongthucLibrary creates a new ledongthuc library wrapper
func NewLedongthucLibrary(config FactoryConfig) *LedongthucLibrary {
	return &LedongthucLibrary{config: config}
}

// Open decodes a PDF held in memory. ledongthuc panics on some malformed
// inputs, so the panic is converted into a WrapperError.
func (l *LedongthucLibrary) Open(data []byte) (doc Document, err error) {
	if err := checkSize(l.config, LibraryLedongthuc, data); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = &WrapperError{
				Library: LibraryLedongthuc,
				Op:      "open",
				Err:     fmt.Errorf("malformed PDF: %v", r),
			}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &WrapperError{
			Library: LibraryLedongthuc,
			Op:      "open",
			Err:     fmt.Errorf("failed to open PDF: %w", err),
		}
	}

	count := reader.NumPage()
	if count <= 0 {
		return nil, &WrapperError{
			Library: LibraryLedongthuc,
			Op:      "open",
			Err:     fmt.Errorf("document has no pages"),
		}
	}

	if l.config.DebugMode {
		log.Printf("ledongthuc: opened %d-page document (%d bytes)", count, len(data))
	}

	return &LedongthucDocument{reader: reader, pageCount: count}, nil
}

// GetLibraryType returns the library type
func (l *LedongthucLibrary) GetLibraryType() LibraryType {
	return LibraryLedongthuc
}

// LedongthucDocument implements Document
type LedongthucDocument struct {
	reader    *pdf.Reader
	pageCount int
	closed    bool
}

// GetPageCount returns the number of pages
func (d *LedongthucDocument) GetPageCount() int {
	return d.pageCount
}

// GetPage returns the 1-based page pageNum
func (d *LedongthucDocument) GetPage(pageNum int) (p Page, err error) {
	if d.closed {
		return nil, &WrapperError{Library: LibraryLedongthuc, Op: "get_page", Err: ErrDocumentClosed.Err}
	}
	if pageNum < 1 || pageNum > d.pageCount {
		return nil, &WrapperError{
			Library: LibraryLedongthuc,
			Op:      "get_page",
			Err:     fmt.Errorf("%w: %d (document has %d pages)", ErrInvalidPage.Err, pageNum, d.pageCount),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = &WrapperError{Library: LibraryLedongthuc, Op: "get_page", Err: fmt.Errorf("page %d: %v", pageNum, r)}
		}
	}()

	page := d.reader.Page(pageNum)
	if page.V.IsNull() {
		return nil, &WrapperError{
			Library: LibraryLedongthuc,
			Op:      "get_page",
			Err:     fmt.Errorf("page %d is missing from the page tree", pageNum),
		}
	}

	return &LedongthucPage{page: page, number: pageNum}, nil
}

// Close releases the document. ledongthuc keeps no file handle for
// in-memory readers, so this only marks the document closed.
func (d *LedongthucDocument) Close() error {
	d.closed = true
	return nil
}

// LedongthucPage implements Page
type LedongthucPage struct {
	page   pdf.Page
	number int
}

// GetNumber returns the page number
func (p *LedongthucPage) GetNumber() int {
	return p.number
}

// GetSize returns the page size from the (possibly inherited) MediaBox
func (p *LedongthucPage) GetSize() (size *PageSize, err error) {
	defer func() {
		if r := recover(); r != nil {
			size = &PageSize{Width: defaultPageWidth, Height: defaultPageHeight, Unit: "pt"}
			err = nil
		}
	}()

	box := inheritedKey(p.page.V, "MediaBox")
	if box.Len() < 4 {
		return &PageSize{Width: defaultPageWidth, Height: defaultPageHeight, Unit: "pt"}, nil
	}

	width := math.Abs(box.Index(2).Float64() - box.Index(0).Float64())
	height := math.Abs(box.Index(3).Float64() - box.Index(1).Float64())
	if height == 0 {
		height = defaultPageHeight
	}
	if width == 0 {
		width = defaultPageWidth
	}

	return &PageSize{Width: width, Height: height, Unit: "pt"}, nil
}

// inheritedKey looks key up on the page and then on each ancestor in the
// page tree, as MediaBox and other page attributes may be inherited
func inheritedKey(page pdf.Value, key string) pdf.Value {
	for v := page; !v.IsNull(); v = v.Key("Parent") {
		if r := v.Key(key); !r.IsNull() {
			return r
		}
	}
	return pdf.Value{}
}

// GetTextContent interprets the content stream and merges the glyphs
// ledongthuc reports into runs of text sharing a baseline and font size.
func (p *LedongthucPage) GetTextContent() (items []TextItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = &WrapperError{
				Library: LibraryLedongthuc,
				Op:      "text_content",
				Err:     fmt.Errorf("page %d: %v", p.number, r),
			}
		}
	}()

	content := p.page.Content()
	return mergeGlyphs(content.Text), nil
}

// mergeGlyphs joins consecutive glyphs into runs. A run continues while the
// next glyph sits on the same baseline, uses the same font size and starts
// no further than a fraction of the font size after the previous glyph ends.
func mergeGlyphs(glyphs []pdf.Text) []TextItem {
	var items []TextItem
	var run strings.Builder
	var current *TextItem
	var runEnd float64

	flush := func() {
		if current == nil {
			return
		}
		current.Str = run.String()
		current.Width = runEnd - current.Transform[4]
		if strings.TrimSpace(current.Str) != "" {
			items = append(items, *current)
		}
		current = nil
		run.Reset()
	}

	for _, g := range glyphs {
		if g.S == "\n" || g.S == "\r" {
			flush()
			continue
		}

		if current != nil && continuesRun(current, runEnd, g) {
			run.WriteString(g.S)
			runEnd = math.Max(runEnd, g.X+g.W)
			continue
		}

		flush()
		current = &TextItem{
			Transform: [6]float64{g.FontSize, 0, 0, g.FontSize, g.X, g.Y},
			Height:    g.FontSize,
			FontName:  g.Font,
		}
		run.WriteString(g.S)
		runEnd = g.X + g.W
	}
	flush()

	return items
}

func continuesRun(current *TextItem, runEnd float64, g pdf.Text) bool {
	if math.Abs(g.Y-current.Transform[5]) > runBaselineTolerance {
		return false
	}
	if g.FontSize != current.Height {
		return false
	}
	gap := g.X - runEnd
	limit := runGapFactor * g.FontSize
	if limit <= 0 {
		limit = runGapFactor
	}
	return gap >= -limit && gap <= limit
}
