package bulletin

import (
	"context"
	"fmt"
	"log"

	"github.com/a3tai/mcp-bulletin/internal/layout"
)

// DefaultMatchThreshold is the lowest similarity accepted as a match
const DefaultMatchThreshold = 0.7

// Matcher selects the stored template closest to a fingerprint
type Matcher struct {
	store     Store
	threshold float64
}

// NewMatcher creates a Matcher. A threshold outside (0,1] uses the default.
func NewMatcher(store Store, threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultMatchThreshold
	}
	return &Matcher{store: store, threshold: threshold}
}

// Threshold returns the effective threshold
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// FindBestMatch scores every template of the church against fingerprint.
// The best template is returned when it reaches the threshold; otherwise
// Template is nil and Confidence carries the best score seen. A church
// without templates yields a zero confidence.
func (m *Matcher) FindBestMatch(ctx context.Context, fingerprint, churchID string) (MatchResult, error) {
	templates, err := m.store.ListTemplates(ctx, churchID)
	if err != nil {
		log.Printf("Failed to load templates for church %s: %v", churchID, err)
		return MatchResult{}, fmt.Errorf("failed to load templates: %w", err)
	}
	return m.Best(fingerprint, templates), nil
}

// Best picks the best of templates without touching the store. Ties keep
// the earlier template, which for store listings is the newest.
func (m *Matcher) Best(fingerprint string, templates []Template) MatchResult {
	var best *Template
	bestScore := 0.0
	for i := range templates {
		score := layout.CalculateSimilarity(fingerprint, templates[i].LayoutFingerprint)
		if best == nil || score > bestScore {
			best = &templates[i]
			bestScore = score
		}
	}

	if best == nil || bestScore < m.threshold {
		return MatchResult{Confidence: bestScore}
	}

	matched := *best
	return MatchResult{Template: &matched, Confidence: bestScore}
}
