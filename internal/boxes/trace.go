package boxes

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"engram/internal/model"
)

// mintTraceID derives a deterministic trace id from a box's topic set, so
// the same topic combination always mints the same id if it's ever minted
// twice (e.g. after a traces.json loss).
func mintTraceID(topics []string) string {
	sorted := append([]string{}, topics...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return "trace-" + hex.EncodeToString(sum[:])[:8]
}

// bestMatchingTrace returns the id of the trace whose topic set has the
// highest Jaccard overlap with topics, if that overlap meets threshold;
// otherwise "".
func bestMatchingTrace(ti *model.TraceIndex, topics []string, threshold float64) string {
	bestID := ""
	bestScore := -1.0
	for traceID, traceTopics := range ti.TraceTopics {
		score := jaccard(traceTopics, topics)
		if score > bestScore {
			bestScore = score
			bestID = traceID
		}
	}
	if bestID != "" && bestScore >= threshold {
		return bestID
	}
	return ""
}

// assignTrace reuses the best-overlapping trace for a newly sealed box's
// topics, or mints a new one, updating ti in place. Returns the assigned
// trace id.
func assignTrace(ti *model.TraceIndex, boxID string, topics []string, threshold float64) string {
	traceID := bestMatchingTrace(ti, topics, threshold)
	if traceID == "" {
		traceID = mintTraceID(topics)
	}
	ti.TraceTopics[traceID] = mergeTopics(ti.TraceTopics[traceID], topics)
	ti.BoxToTrace[boxID] = traceID
	ti.Traces[traceID] = append(ti.Traces[traceID], boxID)
	return traceID
}
