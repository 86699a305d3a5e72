// Package model defines the durable data types that flow between Engram's
// subsystems: turns, buffered state, memory items, entities, profile and
// identity documents, questions, and sealed memory boxes.
package model

import "time"

// Role identifies the speaker of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single immutable conversational exchange observed by the buffer.
type Turn struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	SessionKey string    `json:"sessionKey,omitempty"`
}

// Category enumerates the kinds of durable memory item the extraction
// pipeline can emit.
type Category string

const (
	CategoryFact         Category = "fact"
	CategoryPreference   Category = "preference"
	CategoryCorrection   Category = "correction"
	CategoryEntity       Category = "entity"
	CategoryDecision     Category = "decision"
	CategoryRelationship Category = "relationship"
	CategoryPrinciple    Category = "principle"
	CategoryCommitment   Category = "commitment"
	CategoryMoment       Category = "moment"
	CategorySkill        Category = "skill"
)

// Categories lists every recognized category, in the canonical order used
// when sharding the store by directory.
var Categories = []Category{
	CategoryFact, CategoryPreference, CategoryCorrection, CategoryEntity,
	CategoryDecision, CategoryRelationship, CategoryPrinciple,
	CategoryCommitment, CategoryMoment, CategorySkill,
}

// Status is the lifecycle state of a MemoryItem.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
	StatusArchived   Status = "archived"
	StatusMissing    Status = "missing"
)

// ConfidenceTier is the qualitative bucket derived from a confidence score.
type ConfidenceTier string

const (
	TierExplicit    ConfidenceTier = "explicit"
	TierImplied     ConfidenceTier = "implied"
	TierInferred    ConfidenceTier = "inferred"
	TierSpeculative ConfidenceTier = "speculative"
)

// ConfidenceTierOf is the pure function mapping a confidence score to its
// qualitative tier (see §3 of the memory-subsystem data model).
func ConfidenceTierOf(confidence float64) ConfidenceTier {
	switch {
	case confidence >= 0.95:
		return TierExplicit
	case confidence >= 0.70:
		return TierImplied
	case confidence >= 0.40:
		return TierInferred
	default:
		return TierSpeculative
	}
}

// MemoryKind distinguishes time-bound episodes from stable notes.
type MemoryKind string

const (
	KindEpisode MemoryKind = "episode"
	KindNote    MemoryKind = "note"
)

// SpeculativeTTL is the default lifetime applied to speculative items
// (confidence < 0.40) absent an explicit override.
const SpeculativeTTL = 30 * 24 * time.Hour

// MemoryItem is a durable, markdown-backed record with frontmatter.
type MemoryItem struct {
	ID             string         `yaml:"id" json:"id"`
	Category       Category       `yaml:"category" json:"category"`
	Created        time.Time      `yaml:"created" json:"created"`
	Updated        time.Time      `yaml:"updated" json:"updated"`
	Source         string         `yaml:"source" json:"source"`
	Confidence     float64        `yaml:"confidence" json:"confidence"`
	ConfidenceTier ConfidenceTier `yaml:"confidenceTier" json:"confidenceTier"`
	Tags           []string       `yaml:"tags" json:"tags"`
	EntityRef      string         `yaml:"entityRef,omitempty" json:"entityRef,omitempty"`
	Status         Status         `yaml:"status" json:"status"`
	Supersedes     string         `yaml:"supersedes,omitempty" json:"supersedes,omitempty"`
	Lineage        []string       `yaml:"lineage,omitempty" json:"lineage,omitempty"`
	ExpiresAt      *time.Time     `yaml:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	MemoryKind     MemoryKind     `yaml:"memoryKind" json:"memoryKind"`
	Namespace      string         `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// Body is the markdown prose following the frontmatter block.
	Body string `yaml:"-" json:"body"`

	// Unknown preserves frontmatter keys the current schema doesn't
	// recognize, so they survive a read/rewrite round-trip.
	Unknown map[string]any `yaml:"-" json:"-"`
}

// Normalize derives ConfidenceTier and the default ExpiresAt for
// speculative items. Callers invoke it after setting Confidence/Created.
func (m *MemoryItem) Normalize() {
	m.ConfidenceTier = ConfidenceTierOf(m.Confidence)
	if m.ConfidenceTier == TierSpeculative && m.ExpiresAt == nil {
		exp := m.Created.Add(SpeculativeTTL)
		m.ExpiresAt = &exp
	}
}

// EntityType enumerates recognized entity categories.
type EntityType string

const (
	EntityPerson  EntityType = "person"
	EntityProject EntityType = "project"
	EntityTool    EntityType = "tool"
	EntityCompany EntityType = "company"
	EntityPlace   EntityType = "place"
	EntityOther   EntityType = "other"
)

// Entity is a named, typed collection of facts referenced by MemoryItems
// via EntityRef.
type Entity struct {
	Name  string     `yaml:"name" json:"name"`
	Type  EntityType `yaml:"type" json:"type"`
	Facts []string   `yaml:"facts" json:"facts"`
}

// Question is an open question surfaced during extraction, awaiting
// resolution.
type Question struct {
	ID         string     `yaml:"id" json:"id"`
	Question   string     `yaml:"question" json:"question"`
	Context    string     `yaml:"context" json:"context"`
	Priority   float64    `yaml:"priority" json:"priority"`
	Created    time.Time  `yaml:"created" json:"created"`
	Resolved   bool       `yaml:"resolved" json:"resolved"`
	ResolvedAt *time.Time `yaml:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
}

// BufferState is the persisted rolling window of recent turns for one
// memory root.
type BufferState struct {
	Turns            []Turn     `json:"turns"`
	LastExtractionAt *time.Time `json:"lastExtractionAt"`
	ExtractionCount  uint64     `json:"extractionCount"`
}

// SealReason explains why a box was sealed.
type SealReason string

const (
	SealTopicShift  SealReason = "topic_shift"
	SealTimeGap     SealReason = "time_gap"
	SealMaxMemories SealReason = "max_memories"
	SealForced      SealReason = "forced"
	SealFlush       SealReason = "flush"
)

// Box is a sealed group of memories sharing a topic window.
type Box struct {
	ID         string     `yaml:"id" json:"id"`
	MemoryKind string     `yaml:"memoryKind" json:"memoryKind"` // always "box"
	CreatedAt  time.Time  `yaml:"createdAt" json:"createdAt"`
	SealedAt   time.Time  `yaml:"sealedAt" json:"sealedAt"`
	SealReason SealReason `yaml:"sealReason" json:"sealReason"`
	Topics     []string   `yaml:"topics" json:"topics"`
	MemoryIDs  []string   `yaml:"memoryIds" json:"memoryIds"`
	TraceID    string     `yaml:"traceId,omitempty" json:"traceId,omitempty"`
}

// OpenBox is the in-memory (and state-file persisted) box accumulator.
// At most one exists per memory root.
type OpenBox struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	Topics         []string  `json:"topics"`
	MemoryIDs      []string  `json:"memoryIds"`
}

// TraceIndex tracks which boxes belong to which cross-session trace.
type TraceIndex struct {
	Traces      map[string][]string `json:"traces"`      // traceId -> []boxId
	BoxToTrace  map[string]string   `json:"boxToTrace"`  // boxId -> traceId
	TraceTopics map[string][]string `json:"traceTopics"` // traceId -> canonical topic set
}

// NewTraceIndex returns an initialized, empty TraceIndex.
func NewTraceIndex() *TraceIndex {
	return &TraceIndex{
		Traces:      map[string][]string{},
		BoxToTrace:  map[string]string{},
		TraceTopics: map[string][]string{},
	}
}

// ExtractionEvent is the input to the box builder: one per successful
// extraction run.
type ExtractionEvent struct {
	Topics    []string
	MemoryIDs []string
	Timestamp time.Time
}

// Impression records a recall event for feedback purposes, without
// retaining the raw query text.
type Impression struct {
	SessionKey  string    `json:"sessionKey"`
	RecordedAt  time.Time `json:"recordedAt"`
	QueryHash   string    `json:"queryHash"`
	QueryLen    int       `json:"queryLen"`
	MemoryIDs   []string  `json:"memoryIds"`
}
