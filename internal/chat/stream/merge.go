package stream

import "strings"

// MergeText folds an incoming delta into the accumulated text. Gateways
// re-send fragments in several shapes (pure tail, full prefix plus tail,
// overlapping window, exact repeat), so the merge has to recognize each
// without ever dropping confirmed characters or duplicating an overlap.
func MergeText(previous, incoming string) string {
	if previous == "" {
		return incoming
	}
	if incoming == "" || incoming == previous {
		return previous
	}
	// Server re-sent everything so far plus the new tail.
	if strings.HasPrefix(incoming, previous) {
		return incoming
	}
	// Incoming is a stale re-send of something we already hold.
	if strings.HasPrefix(previous, incoming) || strings.HasSuffix(previous, incoming) {
		return previous
	}
	// Overlap scan: longest suffix of previous that prefixes incoming.
	max := len(incoming)
	if len(previous) < max {
		max = len(previous)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(previous, incoming[:k]) {
			return previous + incoming[k:]
		}
	}
	return previous + incoming
}
