package layout

import "math"

// FindTextAtPosition returns the first fragment on page whose origin lies
// within tolerance of (x, y) on both axes. A non-positive tolerance uses
// DefaultLookupRadius.
func FindTextAtPosition(frags []Fragment, page int, x, y, tolerance float64) (Fragment, bool) {
	if tolerance <= 0 {
		tolerance = DefaultLookupRadius
	}
	for _, frag := range frags {
		if frag.Page != page {
			continue
		}
		if math.Abs(frag.X-x) <= tolerance && math.Abs(frag.Y-y) <= tolerance {
			return frag, true
		}
	}
	return Fragment{}, false
}
