package layout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// syntheticLineHeight spaces the lines of plain text fingerprinted by FingerprintText
const syntheticLineHeight = 12.0

// Record is the normalized form of one fragment inside a fingerprint
type Record struct {
	Text string  `json:"t" yaml:"t"`
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Page int     `json:"p" yaml:"p"`
}

// Fingerprinter reduces positioned text to a stable layout digest
type Fingerprinter struct {
	opts Options
}

// NewFingerprinter creates a Fingerprinter with the given tunables
func NewFingerprinter(opts Options) *Fingerprinter {
	return &Fingerprinter{opts: opts.withDefaults()}
}

// Generate returns the hex SHA-256 of the normalized records of frags
func (f *Fingerprinter) Generate(frags []Fragment) string {
	records := f.Records(frags)

	// Record has a fixed field order, so the encoding is deterministic
	payload, err := json.Marshal(records)
	if err != nil {
		// strings, ints and finite floats always encode
		panic(err)
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Records sorts frags into reading order, keeps the leading MaxFragments and
// normalizes each one
func (f *Fingerprinter) Records(frags []Fragment) []Record {
	sorted := SortReadingOrder(frags, f.opts.RowTolerance)
	if len(sorted) > f.opts.MaxFragments {
		sorted = sorted[:f.opts.MaxFragments]
	}

	records := make([]Record, len(sorted))
	for i, frag := range sorted {
		records[i] = Record{
			Text: NormalizeText(frag.Text, f.opts.TextPrefix),
			X:    quantize(frag.X, f.opts.Quantum),
			Y:    quantize(frag.Y, f.opts.Quantum),
			Page: frag.Page,
		}
	}
	return records
}

// GenerateText fingerprints plain text, one synthetic fragment per non-empty
// line stacked down page 1
func (f *Fingerprinter) GenerateText(text string) string {
	var frags []Fragment
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		frags = append(frags, Fragment{
			Text:   line,
			X:      0,
			Y:      DefaultPageHeight - float64(len(frags)+1)*syntheticLineHeight,
			Width:  float64(len(line)) * syntheticLineHeight / 2,
			Height: syntheticLineHeight,
			Page:   1,
		})
	}
	return f.Generate(frags)
}

// FingerprintText fingerprints plain text with the default tunables
func FingerprintText(text string) string {
	return NewFingerprinter(DefaultOptions()).GenerateText(text)
}

// NormalizeText composes the text to NFC, collapses whitespace runs, trims,
// lower-cases and truncates to the first prefix runes. Some fonts emit
// accents as separate combining marks; NFC makes both forms hash alike.
func NormalizeText(text string, prefix int) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(norm.NFC.String(text)), " "))
	if prefix <= 0 {
		return normalized
	}
	runes := []rune(normalized)
	if len(runes) > prefix {
		return string(runes[:prefix])
	}
	return normalized
}

func quantize(v, quantum float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	q := math.Round(v/quantum) * quantum
	if q == 0 {
		// avoid encoding negative zero
		return 0
	}
	return q
}
