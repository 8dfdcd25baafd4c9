package layout

import (
	"math"
	"sort"
)

// SortReadingOrder returns a copy of frags ordered by page, then top to
// bottom by row, then left to right. Fragments whose baselines lie within
// rowTolerance of the first fragment of a row join that row. The result
// depends only on the set of fragments, not on their input order.
func SortReadingOrder(frags []Fragment, rowTolerance float64) []Fragment {
	sorted := make([]Fragment, len(frags))
	copy(sorted, frags)
	if len(sorted) < 2 {
		return sorted
	}

	// total order first so row grouping is independent of input order
	sort.Slice(sorted, func(i, j int) bool {
		return lessStrict(sorted[i], sorted[j])
	})

	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) &&
			sorted[i].Page == sorted[start].Page &&
			math.Abs(sorted[start].Y-sorted[i].Y) <= rowTolerance {
			continue
		}
		row := sorted[start:i]
		sort.SliceStable(row, func(a, b int) bool {
			return row[a].X < row[b].X
		})
		start = i
	}

	return sorted
}

func lessStrict(a, b Fragment) bool {
	switch {
	case a.Page != b.Page:
		return a.Page < b.Page
	case a.Y != b.Y:
		return a.Y > b.Y
	case a.X != b.X:
		return a.X < b.X
	case a.Text != b.Text:
		return a.Text < b.Text
	case a.Width != b.Width:
		return a.Width < b.Width
	default:
		return a.Height < b.Height
	}
}
