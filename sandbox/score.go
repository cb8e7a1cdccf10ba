package sandbox

import "math"

// Score maps diagnostics per file to 10..100. Higher is cleaner.
func Score(issues, files int) int {
	if files <= 0 {
		return 0
	}
	r := float64(issues) / float64(files)
	var score float64
	switch {
	case r <= 2:
		score = 95 + (2-r)*2.5
	case r <= 5:
		score = 70 + (5-r)*6.5
	case r <= 10:
		score = 40 + (10-r)*3
	default:
		score = math.Max(10, 40-(r-10)*2)
	}
	return int(score)
}

// truncationMarker is appended to diagnostics cut at the budget.
const truncationMarker = "..."

// Truncate cuts s to budget characters, appending the marker when anything
// was cut.
func Truncate(s string, budget int) string {
	if budget <= 0 || len(s) <= budget {
		return s
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget]) + truncationMarker
}
