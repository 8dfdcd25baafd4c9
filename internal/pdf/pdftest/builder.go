// Package pdftest builds small, valid PDF documents in memory for tests.
// Text is set in Courier so glyph widths are fixed at 0.6 em.
package pdftest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// GlyphAdvance is the Courier advance width per font-size unit
const GlyphAdvance = 0.6

// Letter page dimensions in points
const (
	LetterWidth  = 612.0
	LetterHeight = 792.0
)

// Text is a string shown at a baseline origin in PDF user space
type Text struct {
	X     float64
	Y     float64
	Size  float64
	Value string
}

// Page describes one page. Zero dimensions default to US Letter.
type Page struct {
	Width  float64
	Height float64
	Texts  []Text
}

// TextWidth returns the rendered width of s at size
func TextWidth(s string, size float64) float64 {
	return float64(len(s)) * GlyphAdvance * size
}

// SinglePage builds a one-page Letter document
func SinglePage(texts ...Text) []byte {
	return Build(Page{Texts: texts})
}

// Build assembles a document with one object per catalog, page tree, font,
// page and content stream, and a classic cross-reference table.
func Build(pages ...Page) []byte {
	return build("", pages)
}

// BuildInherited is Build with a MediaBox of width x height on the page
// tree node. Pages without a size of their own carry no MediaBox and
// inherit it.
func BuildInherited(width, height float64, pages ...Page) []byte {
	return build(fmt.Sprintf(" /MediaBox [0 0 %s %s]", num(width), num(height)), pages)
}

func build(treeBox string, pages []Page) []byte {
	if len(pages) == 0 {
		pages = []Page{{}}
	}

	var objects []string
	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d%s >>", strings.Join(kids, " "), len(pages), treeBox))
	objects = append(objects, fontObject())

	for i, p := range pages {
		box := ""
		if treeBox == "" || p.Width > 0 || p.Height > 0 {
			width, height := p.Width, p.Height
			if width <= 0 {
				width = LetterWidth
			}
			if height <= 0 {
				height = LetterHeight
			}
			box = fmt.Sprintf(" /MediaBox [0 0 %s %s]", num(width), num(height))
		}
		content := contentStream(p.Texts)
		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R%s /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			box, 5+2*i,
		))
		objects = append(objects, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return buf.Bytes()
}

func fontObject() string {
	widths := make([]string, 126-32+1)
	for i := range widths {
		widths[i] = "600"
	}
	return fmt.Sprintf(
		"<< /Type /Font /Subtype /Type1 /BaseFont /Courier /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>",
		strings.Join(widths, " "),
	)
}

func contentStream(texts []Text) string {
	var b strings.Builder
	for _, t := range texts {
		size := t.Size
		if size <= 0 {
			size = 12
		}
		fmt.Fprintf(&b, "BT /F1 %s Tf %s %s Td (%s) Tj ET\n", num(size), num(t.X), num(t.Y), escape(t.Value))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
