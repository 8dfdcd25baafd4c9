package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestField_PDFRect(t *testing.T) {
	field := Field{ID: "f", X: 90, Y: 680, Width: 80, Height: 15, Page: 1}
	assert.Equal(t, Rect{X: 90, Y: 97, Width: 80, Height: 15}, field.PDFRect(792))

	defaulted := Field{ID: "d", X: 10, Y: 100, Page: 1}
	assert.Equal(t, Rect{X: 10, Y: 677, Width: DefaultFieldWidth, Height: DefaultFieldHeight}, defaulted.PDFRect(792))
}

func TestExtractPageValues_TestValue(t *testing.T) {
	frags := []Fragment{
		{Text: "Test", X: 100, Y: 100, Width: 30, Height: 12, Page: 1},
		{Text: "Value", X: 135, Y: 100, Width: 35, Height: 12, Page: 1},
	}
	fields := []Field{{ID: "title", X: 90, Y: 680, Width: 80, Height: 15, Page: 1}}

	values := ExtractPageValues(frags, 792, fields)
	assert.Equal(t, map[string]string{"title": "Test Value"}, values)
}

func TestExtractPageValues_Boundaries(t *testing.T) {
	// field spans x 90..170 and y 97..112 in PDF space
	field := Field{ID: "f", X: 90, Y: 680, Width: 80, Height: 15, Page: 1}

	tests := []struct {
		name string
		x, y float64
		want string
	}{
		{name: "bottom_left_corner", x: 90, y: 97, want: "hit"},
		{name: "top_right_corner", x: 170, y: 112, want: "hit"},
		{name: "left_edge", x: 90, y: 105, want: "hit"},
		{name: "one_left", x: 89, y: 105, want: ""},
		{name: "one_right", x: 171, y: 105, want: ""},
		{name: "one_below", x: 120, y: 96, want: ""},
		{name: "one_above", x: 120, y: 113, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// zero-size fragment, so its center is its origin
			frags := []Fragment{{Text: "hit", X: tt.x, Y: tt.y, Page: 1}}
			values := ExtractPageValues(frags, 792, []Field{field})
			assert.Equal(t, tt.want, values["f"])
		})
	}
}

func TestExtractPageValues_CenterPolicy(t *testing.T) {
	field := Field{ID: "f", X: 100, Y: 692, Width: 100, Height: 20, Page: 1} // PDF y 80..100

	frags := []Fragment{
		// overlaps the field but its center is left of it
		{Text: "brushing", X: 20, Y: 85, Width: 150, Height: 10, Page: 1},
		// mostly inside, center just above the top edge
		{Text: "above", X: 120, Y: 93, Width: 20, Height: 16, Page: 1},
		{Text: "inside", X: 120, Y: 85, Width: 20, Height: 10, Page: 1},
	}

	values := ExtractPageValues(frags, 792, []Field{field})
	assert.Equal(t, "inside", values["f"])
}

func TestExtractPageValues_ReadingOrder(t *testing.T) {
	field := Field{ID: "notes", X: 0, Y: 0, Width: 612, Height: 792, Page: 1}
	frags := []Fragment{
		{Text: "third", X: 50, Y: 600, Width: 30, Height: 10, Page: 1},
		{Text: "second", X: 200, Y: 702, Width: 30, Height: 10, Page: 1},
		{Text: "first", X: 50, Y: 700, Width: 30, Height: 10, Page: 1},
	}

	values := ExtractPageValues(frags, 792, []Field{field})
	assert.Equal(t, "first second third", values["notes"])
}

func TestExtractPageValues_Empty(t *testing.T) {
	fields := []Field{
		{ID: "a", X: 10, Y: 10, Page: 1},
		{ID: "b", X: 300, Y: 300, Page: 1},
	}

	assert.Equal(t, map[string]string{"a": "", "b": ""}, ExtractPageValues(nil, 792, fields))

	frags := []Fragment{{Text: "far away", X: 500, Y: 20, Width: 40, Height: 10, Page: 1}}
	assert.Equal(t, map[string]string{"a": "", "b": ""}, ExtractPageValues(frags, 792, fields))
}

func TestExtractPageValues_TrimsJoinedText(t *testing.T) {
	field := Field{ID: "f", X: 0, Y: 0, Width: 612, Height: 792, Page: 1}
	frags := []Fragment{{Text: "  padded ", X: 10, Y: 700, Width: 40, Height: 10, Page: 1}}

	assert.Equal(t, "padded", ExtractPageValues(frags, 792, []Field{field})["f"])
}
