// Package layout turns positioned PDF text into layout fingerprints and
// extracts field values by geometric containment.
package layout

import (
	"runtime"

	"github.com/a3tai/mcp-bulletin/internal/pdf/wrapper"
)

// Tunables shared by the fingerprint and field extraction passes
const (
	DefaultRowTolerance   = 5.0
	DefaultQuantum        = 10.0
	DefaultMaxFragments   = 100
	DefaultTextPrefix     = 20
	DefaultFragmentHeight = 10.0
	DefaultFieldWidth     = 80.0
	DefaultFieldHeight    = 15.0
	DefaultPageHeight     = 792.0
	DefaultLookupRadius   = 10.0
)

// Fragment is a non-empty run of text on one page. X and Y are the run
// origin in PDF space (origin bottom-left, y grows upward).
type Fragment struct {
	Text   string  `json:"text" yaml:"text"`
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Page   int     `json:"page" yaml:"page"`
}

// Center returns the geometric center of the fragment's box
func (f Fragment) Center() (float64, float64) {
	return f.X + f.Width/2, f.Y + f.Height/2
}

// Analysis is the result of one extraction pass over a document
type Analysis struct {
	PageCount   int        `json:"page_count" yaml:"page_count"`
	PageHeights []float64  `json:"page_heights" yaml:"page_heights"`
	Fragments   []Fragment `json:"fragments" yaml:"fragments"`
	Fingerprint string     `json:"fingerprint" yaml:"fingerprint"`
}

// PageHeight returns the height of the 1-based page
func (a *Analysis) PageHeight(page int) (float64, bool) {
	if page < 1 || page > len(a.PageHeights) {
		return 0, false
	}
	return a.PageHeights[page-1], true
}

// PageFragments returns the fragments of the 1-based page in extraction order
func (a *Analysis) PageFragments(page int) []Fragment {
	var out []Fragment
	for _, f := range a.Fragments {
		if f.Page == page {
			out = append(out, f)
		}
	}
	return out
}

// Options configures extraction and fingerprinting
type Options struct {
	// RowTolerance is the y distance within which fragments share a row
	RowTolerance float64
	// Quantum is the grid fingerprint coordinates are rounded to
	Quantum float64
	// MaxFragments bounds how many sorted fragments enter the fingerprint
	MaxFragments int
	// TextPrefix is how many runes of each fragment enter the fingerprint
	TextPrefix int
	// Workers bounds concurrent page decoding
	Workers int
}

// DefaultOptions returns the standard tunables
func DefaultOptions() Options {
	return Options{
		RowTolerance: DefaultRowTolerance,
		Quantum:      DefaultQuantum,
		MaxFragments: DefaultMaxFragments,
		TextPrefix:   DefaultTextPrefix,
		Workers:      runtime.NumCPU(),
	}
}

// withDefaults fills zero values so a partially populated Options is usable
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RowTolerance <= 0 {
		o.RowTolerance = d.RowTolerance
	}
	if o.Quantum <= 0 {
		o.Quantum = d.Quantum
	}
	if o.MaxFragments <= 0 {
		o.MaxFragments = d.MaxFragments
	}
	if o.TextPrefix <= 0 {
		o.TextPrefix = d.TextPrefix
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	return o
}

// fromTextItem converts a backend text item into a Fragment
func fromTextItem(item wrapper.TextItem, page int) Fragment {
	height := item.Height
	if height <= 0 {
		height = DefaultFragmentHeight
	}
	return Fragment{
		Text:   item.Str,
		X:      item.X(),
		Y:      item.Y(),
		Width:  item.Width,
		Height: height,
		Page:   page,
	}
}
