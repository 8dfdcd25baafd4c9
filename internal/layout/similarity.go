package layout

// CalculateSimilarity scores two fingerprints in [0,1] as one minus the
// normalized Hamming distance. Positions past the shorter string each count
// as one difference.
func CalculateSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}

	ra, rb := []rune(a), []rune(b)
	shorter, longer := len(ra), len(rb)
	if shorter > longer {
		shorter, longer = longer, shorter
	}

	distance := longer - shorter
	for i := 0; i < shorter; i++ {
		if ra[i] != rb[i] {
			distance++
		}
	}

	score := 1 - float64(distance)/float64(longer)
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
