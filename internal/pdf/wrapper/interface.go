package wrapper

import (
	"fmt"
	"strconv"
	"strings"
)

// Source opens PDF bytes for positioned text reading
type Source interface {
	Open(data []byte) (Document, error)

	// Library identification
	GetLibraryType() LibraryType
}

// Document is a decoded PDF held open for page access
type Document interface {
	GetPageCount() int
	GetPage(pageNum int) (Page, error)
	Close() error
}

// Page is a single 1-based page of a Document
type Page interface {
	GetNumber() int
	GetSize() (*PageSize, error)
	GetTextContent() ([]TextItem, error)
}

// Writer loads an existing PDF and stamps text on its pages
type Writer interface {
	Load(data []byte) (WritableDocument, error)
	GetLibraryType() LibraryType
}

// WritableDocument accumulates draw operations until Save serializes them.
// Page indexes are 0-based.
type WritableDocument interface {
	GetPageCount() int
	GetPageSize(index int) (*PageSize, error)
	DrawText(index int, value string, opts DrawOptions) error
	Save() ([]byte, error)
}

// LibraryType represents the underlying PDF library being used
type LibraryType string

const (
	LibraryPDFCPU     LibraryType = "pdfcpu"
	LibraryLedongthuc LibraryType = "ledongthuc"
	LibraryAuto       LibraryType = "auto" // Automatically select best library
)

// TextItem is one run of text as reported by the backend. Transform follows
// the PDF text matrix layout [a b c d e f]; Transform[4] and Transform[5] hold
// the baseline origin in PDF user space (origin bottom-left).
type TextItem struct {
	Str       string     `json:"str"`
	Transform [6]float64 `json:"transform"`
	Width     float64    `json:"width"`
	Height    float64    `json:"height"`
	FontName  string     `json:"font_name,omitempty"`
}

// X returns the horizontal origin of the item
func (t TextItem) X() float64 { return t.Transform[4] }

// Y returns the baseline of the item in bottom-left coordinates
func (t TextItem) Y() float64 { return t.Transform[5] }

// PageSize represents the dimensions of a PDF page
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit"` // "pt"
}

// Color represents a color value
type Color struct {
	R float64 `json:"r"` // Red component (0-1)
	G float64 `json:"g"` // Green component (0-1)
	B float64 `json:"b"` // Blue component (0-1)
}

// Hex renders the color as #RRGGBB
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", channel(c.R), channel(c.G), channel(c.B))
}

func channel(v float64) int {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return int(v*255 + 0.5)
	}
}

// Black is the default fill for stamped values
var Black = Color{}

// ParseColor reads a #RRGGBB hex color, with or without the leading #
func ParseColor(hex string) (Color, error) {
	digits := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(digits) != 6 {
		return Color{}, fmt.Errorf("invalid color %q: want #RRGGBB", hex)
	}
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	return Color{
		R: float64(v>>16&0xFF) / 255,
		G: float64(v>>8&0xFF) / 255,
		B: float64(v&0xFF) / 255,
	}, nil
}

// StandardFont names one of the PDF base-14 fonts
type StandardFont string

const (
	FontHelvetica     StandardFont = "Helvetica"
	FontHelveticaBold StandardFont = "Helvetica-Bold"
	FontTimesRoman    StandardFont = "Times-Roman"
	FontCourier       StandardFont = "Courier"
)

// StandardFonts lists the fonts values may be drawn in
func StandardFonts() []StandardFont {
	return []StandardFont{FontHelvetica, FontHelveticaBold, FontTimesRoman, FontCourier}
}

// ParseFont resolves a font name, ignoring case
func ParseFont(name string) (StandardFont, error) {
	for _, font := range StandardFonts() {
		if strings.EqualFold(string(font), strings.TrimSpace(name)) {
			return font, nil
		}
	}
	return "", fmt.Errorf("unsupported font %q", name)
}

// DrawOptions positions a single text stamp. X and Y are the baseline origin
// in PDF user space.
type DrawOptions struct {
	X     float64      `json:"x"`
	Y     float64      `json:"y"`
	Size  float64      `json:"size"`
	Font  StandardFont `json:"font"`
	Color Color        `json:"color"`
}

// Error types for wrapper operations
type WrapperError struct {
	Library LibraryType `json:"library"`
	Op      string      `json:"operation"`
	Err     error       `json:"error"`
}

func (e *WrapperError) Error() string {
	return fmt.Sprintf("PDF %s library error in %s: %v", e.Library, e.Op, e.Err)
}

func (e *WrapperError) Unwrap() error {
	return e.Err
}

// Common error variables
var (
	ErrUnsupportedLibrary = &WrapperError{Op: "factory", Err: fmt.Errorf("unsupported library type")}
	ErrDocumentClosed     = &WrapperError{Op: "document", Err: fmt.Errorf("document is closed")}
	ErrInvalidPage        = &WrapperError{Op: "page", Err: fmt.Errorf("invalid page number")}
)
