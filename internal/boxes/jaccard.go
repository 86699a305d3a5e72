// Package boxes groups memories produced in the same topical stretch of
// conversation into sealed boxes, and weaves sealed boxes sharing a topic
// into cross-session traces.
package boxes

// jaccard is the symmetric set-overlap ratio |a∩b| / |a∪b|, bounded to
// [0, 1]. Two empty sets are defined as having zero overlap rather than
// dividing by zero.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := toSet(a)
	setB := toSet(b)

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(topics []string) map[string]bool {
	set := make(map[string]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	return set
}

// mergeTopics returns the deduplicated union of a and b, preserving a's
// order then b's.
func mergeTopics(a, b []string) []string {
	seen := toSet(a)
	out := append([]string{}, a...)
	for _, t := range b {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
