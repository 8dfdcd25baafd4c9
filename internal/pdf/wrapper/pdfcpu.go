package wrapper

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var disableConfigDir sync.Once

// PDFCPULibrary implements Writer using pdfcpu text stamps
type PDFCPULibrary struct {
	config FactoryConfig
}

// NewPDFCPULibrary creates a new pdfcpu library wrapper
func NewPDFCPULibrary(config FactoryConfig) *PDFCPULibrary {
	// pdfcpu would otherwise create a config directory under the user's home
	disableConfigDir.Do(api.DisableConfigDir)
	return &PDFCPULibrary{config: config}
}

func (l *PDFCPULibrary) newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Load reads the template document and its page geometry
func (l *PDFCPULibrary) Load(data []byte) (WritableDocument, error) {
	if err := checkSize(l.config, LibraryPDFCPU, data); err != nil {
		return nil, err
	}

	conf := l.newConfiguration()
	dims, err := api.PageDims(bytes.NewReader(data), conf)
	if err != nil {
		return nil, &WrapperError{
			Library: LibraryPDFCPU,
			Op:      "load",
			Err:     fmt.Errorf("failed to read PDF: %w", err),
		}
	}
	if len(dims) == 0 {
		return nil, &WrapperError{
			Library: LibraryPDFCPU,
			Op:      "load",
			Err:     fmt.Errorf("document has no pages"),
		}
	}

	return &PDFCPUDocument{
		data:   data,
		dims:   dims,
		conf:   conf,
		stamps: make(map[int][]*model.Watermark),
		debug:  l.config.DebugMode,
	}, nil
}

// GetLibraryType returns the library type
func (l *PDFCPULibrary) GetLibraryType() LibraryType {
	return LibraryPDFCPU
}

// PDFCPUDocument implements WritableDocument. Draw operations are kept as
// per-page watermarks and applied in a single pass by Save.
type PDFCPUDocument struct {
	data   []byte
	dims   []types.Dim
	conf   *model.Configuration
	stamps map[int][]*model.Watermark
	saved  bool
	debug  bool
}

// GetPageCount returns the number of pages
func (d *PDFCPUDocument) GetPageCount() int {
	return len(d.dims)
}

// GetPageSize returns the size of the 0-based page index
func (d *PDFCPUDocument) GetPageSize(index int) (*PageSize, error) {
	if index < 0 || index >= len(d.dims) {
		return nil, &WrapperError{
			Library: LibraryPDFCPU,
			Op:      "page_size",
			Err:     fmt.Errorf("%w: index %d (document has %d pages)", ErrInvalidPage.Err, index, len(d.dims)),
		}
	}
	dim := d.dims[index]
	return &PageSize{Width: dim.Width, Height: dim.Height, Unit: "pt"}, nil
}

// DrawText queues value at the baseline origin given by opts
func (d *PDFCPUDocument) DrawText(index int, value string, opts DrawOptions) error {
	if d.saved {
		return &WrapperError{Library: LibraryPDFCPU, Op: "draw_text", Err: ErrDocumentClosed.Err}
	}
	if index < 0 || index >= len(d.dims) {
		return &WrapperError{
			Library: LibraryPDFCPU,
			Op:      "draw_text",
			Err:     fmt.Errorf("%w: index %d (document has %d pages)", ErrInvalidPage.Err, index, len(d.dims)),
		}
	}

	text := stampText(value)
	if text == "" {
		return nil
	}

	wm, err := api.TextWatermark(text, stampDescription(opts), true, false, types.POINTS)
	if err != nil {
		return &WrapperError{
			Library: LibraryPDFCPU,
			Op:      "draw_text",
			Err:     fmt.Errorf("invalid stamp: %w", err),
		}
	}

	page := index + 1
	d.stamps[page] = append(d.stamps[page], wm)
	return nil
}

// Save applies every queued stamp and returns the new document
func (d *PDFCPUDocument) Save() ([]byte, error) {
	d.saved = true

	if len(d.stamps) == 0 {
		out := make([]byte, len(d.data))
		copy(out, d.data)
		return out, nil
	}

	var buf bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(d.data), &buf, d.stamps, d.conf); err != nil {
		return nil, &WrapperError{
			Library: LibraryPDFCPU,
			Op:      "save",
			Err:     fmt.Errorf("failed to apply stamps: %w", err),
		}
	}
	if d.debug {
		count := 0
		for _, page := range d.stamps {
			count += len(page)
		}
		log.Printf("pdfcpu: applied %d stamps across %d pages (%d bytes)", count, len(d.stamps), buf.Len())
	}
	return buf.Bytes(), nil
}

// stampText flattens line breaks, which pdfcpu would render as extra lines
func stampText(value string) string {
	replacer := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")
	return strings.TrimSpace(replacer.Replace(value))
}

// stampDescription builds the pdfcpu watermark description for a text stamp
// whose baseline starts at (X, Y). pdfcpu takes whole points only, anchors
// the stamp's bounding box bottom-left at the offset and sets the text a
// quarter of the point size above the box bottom, so the offset is lowered
// by that amount.
func stampDescription(opts DrawOptions) string {
	points := int(math.Floor(opts.Size))
	if points < 1 {
		points = 1
	}
	y := opts.Y - stampDescent(points)
	font := opts.Font
	if font == "" {
		font = FontHelvetica
	}

	return fmt.Sprintf(
		"fontname:%s, points:%d, position:bl, offset:%.2f %.2f, scalefactor:1 abs, rotation:0, fillcolor:%s, opacity:1",
		font, points, opts.X, y, opts.Color.Hex(),
	)
}

// stampDescent is the distance between a stamp's box bottom and its baseline
func stampDescent(points int) float64 {
	return float64(points) / 4
}
