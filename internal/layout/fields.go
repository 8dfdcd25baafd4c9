package layout

import (
	"strings"
)

// Field is a rectangle drawn on a page in canvas space (origin top-left,
// y grows downward, pixels at scale 1.0). Page is 1-based.
type Field struct {
	ID     string
	X      float64
	Y      float64
	Width  float64
	Height float64
	Page   int
}

// Rect is an axis-aligned rectangle in PDF space, anchored bottom-left
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether (x, y) lies inside r, edges included
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width &&
		y >= r.Y && y <= r.Y+r.Height
}

// Size returns the field's width and height with the defaults applied
func (f Field) Size() (float64, float64) {
	width, height := f.Width, f.Height
	if width <= 0 {
		width = DefaultFieldWidth
	}
	if height <= 0 {
		height = DefaultFieldHeight
	}
	return width, height
}

// PDFRect converts the canvas rectangle to PDF space. The rectangle's own
// height is subtracted so the result is anchored at its bottom edge.
func (f Field) PDFRect(pageHeight float64) Rect {
	width, height := f.Size()
	return Rect{
		X:      f.X,
		Y:      pageHeight - f.Y - height,
		Width:  width,
		Height: height,
	}
}

// ExtractPageValues attributes the fragments of one page to fields by
// center-point containment and joins each field's text in reading order.
// Every field ID is present in the result; fields without text map to "".
func ExtractPageValues(frags []Fragment, pageHeight float64, fields []Field) map[string]string {
	return extractPageValues(frags, pageHeight, fields, DefaultRowTolerance)
}

func extractPageValues(frags []Fragment, pageHeight float64, fields []Field, rowTolerance float64) map[string]string {
	values := make(map[string]string, len(fields))
	if len(frags) == 0 {
		for _, field := range fields {
			values[field.ID] = ""
		}
		return values
	}

	ordered := SortReadingOrder(frags, rowTolerance)
	for _, field := range fields {
		rect := field.PDFRect(pageHeight)

		var parts []string
		for _, frag := range ordered {
			if rect.Contains(frag.Center()) {
				parts = append(parts, frag.Text)
			}
		}
		values[field.ID] = strings.TrimSpace(strings.Join(parts, " "))
	}
	return values
}
