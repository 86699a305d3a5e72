// Package retrieval implements the hybrid retrieval planner: query
// expansion, namespace fan-out over the Index collaborator, local scoring,
// optional LLM rerank, verbatim artifact top-up, and impression logging.
package retrieval

import (
	"context"
	"time"

	"engram/internal/model"
)

// Candidate is a scored memory item on its way through the pipeline.
type Candidate struct {
	Item          *model.MemoryItem
	Snippet       string
	SemanticScore float64
	RecencyScore  float64
	AccessCount   int
	Score         float64
	Explanation   map[string]float64
}

// Result is the final, ordered output of a recall() call.
type Result struct {
	Candidates  []Candidate
	Artifacts   []Artifact
	ShortCircuited bool
}

// Artifact is a short verbatim quote derived from an active source item.
type Artifact struct {
	SourceID string
	Quote    string
}

// Weights holds the scoring and policy knobs from the external
// configuration surface (§6, abbreviated here to the fields the planner
// consumes directly).
type Weights struct {
	RecencyWeight              float64
	RecencyTauDays             float64
	BoostAccessCount           bool
	NegativeExamplesPenaltyPerHit float64
	NegativeExamplesPenaltyCap    float64
	IntentRoutingBoost          float64

	QueryExpansionMaxQueries   int
	QueryExpansionMinTokenLen  int

	RerankEnabled       bool
	RerankMaxCandidates int
	RerankTimeoutMs     int
	RerankCacheTTL      time.Duration

	NamespaceFanoutK int
	ArtifactMax      int

	DefaultNamespace string
	SharedNamespace  string
	RecallNamespaces []string
}

// ItemStore is the subset of the content-addressed store the planner
// reads from.
type ItemStore interface {
	ListAll(ctx context.Context, ns string) ([]*model.MemoryItem, error)
	RecordImpression(ctx context.Context, ns string, impression model.Impression) error
}

// NegativeExampleSource reports per-item "not useful" feedback counts.
type NegativeExampleSource interface {
	NegativeHits(ctx context.Context, ns, itemID string) int
}

// AccessSource reports how often each item has surfaced in recent recalls,
// for the access-count boost term.
type AccessSource interface {
	AccessCounts(ctx context.Context, ns string) map[string]int
}

// ACL decides whether a principal may fan out into a given namespace.
type ACL interface {
	CanRead(principal, namespace string) bool
}

// Metrics is the narrow collaborator the planner reports stage timings
// through; a nil Metrics is valid and simply means "don't record".
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}
