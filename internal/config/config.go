// Package config defines the typed configuration surface for the memory
// daemon: trigger/buffer tuning, namespace routing, retrieval weights, box
// sealing thresholds, and the LLM/embedding/index provider wiring.
package config

// ObsConfig controls structured logging and OpenTelemetry export.
type ObsConfig struct {
	LogPath        string `yaml:"log_path"`
	LogLevel       string `yaml:"log_level"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
}

// LLMRoute is a single provider/model pair in a fallback chain, e.g.
// "anthropic/claude-sonnet-4-5".
type LLMRoute struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// LLMConfig configures the extraction/consolidation/rerank model chains.
type LLMConfig struct {
	ExtractionChain    string `yaml:"extraction_chain"`
	ConsolidationChain string `yaml:"consolidation_chain"`
	RerankChain        string `yaml:"rerank_chain"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`

	Anthropic LLMRoute `yaml:"anthropic"`
	OpenAI    LLMRoute `yaml:"openai"`
	Gemini    LLMRoute `yaml:"gemini"`
}

// EmbeddingConfig configures the embedding HTTP endpoint used for semantic
// indexing and query vectorization.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"`
	Path       string `yaml:"path"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key,omitempty"`
	APIHeader  string `yaml:"api_header,omitempty"`
	// Headers are sent verbatim on every request and win over the legacy
	// APIHeader/APIKey pair when both name the same header.
	Headers    map[string]string `yaml:"headers,omitempty"`
	Dimensions int    `yaml:"dimensions"`
	Timeout    int    `yaml:"timeout_seconds"`
}

// IndexConfig configures the optional Qdrant-backed semantic index. When
// Enabled is false the daemon falls back to index.NoopIndex and retrieval
// relies on the local scoring pass alone.
type IndexConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DSN        string `yaml:"dsn"`
	Metric     string `yaml:"metric"`
	Dimensions int    `yaml:"dimensions"`
}

// PGIndexConfig configures the optional Postgres full-text shadow index.
type PGIndexConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// RerankCacheConfig configures the optional Redis-backed rerank cache.
type RerankCacheConfig struct {
	Enabled               bool   `yaml:"enabled"`
	Addr                  string `yaml:"addr"`
	Password              string `yaml:"password,omitempty"`
	DB                    int    `yaml:"db"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify"`
	TTLSeconds            int    `yaml:"ttl_seconds"`
}

// BufferConfig tunes the turn buffer and trigger engine (§4.1).
type BufferConfig struct {
	TriggerMode        string   `yaml:"trigger_mode"` // smart|every_n|time_based
	MaxTurns           int      `yaml:"max_turns"`
	MaxMinutes         int      `yaml:"max_minutes"`
	HighSignalPatterns []string `yaml:"high_signal_patterns,omitempty"`
}

// StoreConfig tunes the content-addressed store and namespace routing
// (§4.2, §4.3).
type StoreConfig struct {
	MemoryDir              string   `yaml:"memory_dir"`
	WorkspaceDir           string   `yaml:"workspace_dir"`
	NamespacesEnabled      bool     `yaml:"namespaces_enabled"`
	DefaultNamespace       string   `yaml:"default_namespace"`
	SharedNamespace        string   `yaml:"shared_namespace"`
	DefaultRecallNamespaces []string `yaml:"default_recall_namespaces,omitempty"`
	SpeculativeTTLDays     int      `yaml:"speculative_ttl_days"`
}

// RetrievalConfig tunes the hybrid retrieval planner's scoring and
// pipeline knobs (§4.4).
type RetrievalConfig struct {
	RecencyWeight                 float64 `yaml:"recency_weight"`
	RecencyTauDays                float64 `yaml:"recency_tau_days"`
	BoostAccessCount               bool    `yaml:"boost_access_count"`
	NegativeExamplesPenaltyPerHit float64 `yaml:"negative_examples_penalty_per_hit"`
	NegativeExamplesPenaltyCap    float64 `yaml:"negative_examples_penalty_cap"`
	IntentRoutingBoost            float64 `yaml:"intent_routing_boost"`

	QueryExpansionMaxQueries  int `yaml:"query_expansion_max_queries"`
	QueryExpansionMinTokenLen int `yaml:"query_expansion_min_token_len"`

	RerankEnabled       bool `yaml:"rerank_enabled"`
	RerankMaxCandidates int  `yaml:"rerank_max_candidates"`
	RerankTimeoutMs     int  `yaml:"rerank_timeout_ms"`

	NamespaceFanoutK int `yaml:"namespace_fanout_k"`
	ArtifactMax      int `yaml:"artifact_max"`
}

// BoxConfig tunes memory box sealing and the trace weaver (§4.5).
type BoxConfig struct {
	TopicShiftThreshold     float64 `yaml:"topic_shift_threshold"`
	TimeGapMinutes          int     `yaml:"time_gap_minutes"`
	MaxMemories             int     `yaml:"max_memories"`
	TraceOverlapThreshold   float64 `yaml:"trace_overlap_threshold"`
}

// ExtractionConfig tunes the extraction/consolidation pipeline (§4.3).
type ExtractionConfig struct {
	DedupeWindowMinutes     int    `yaml:"dedupe_window_minutes"`
	MaxFactsPerRun          int    `yaml:"max_facts_per_run"`
	MaxEntitiesPerRun       int    `yaml:"max_entities_per_run"`
	MaxQuestionsPerRun      int    `yaml:"max_questions_per_run"`
	MaxProfileUpdatesPerRun int    `yaml:"max_profile_updates_per_run"`
	ConsolidationWindow     int    `yaml:"consolidation_window"`
	CommitmentDecayDays     int    `yaml:"commitment_decay_days"`
	ExtractionEffort        string `yaml:"extraction_effort"`
	ConsolidationEffort     string `yaml:"consolidation_effort"`
	ProfileByteBudget       int    `yaml:"profile_byte_budget"`
	IdentityByteBudget      int    `yaml:"identity_byte_budget"`
}

// Config is the full daemon configuration, assembled by Load from
// defaults, an optional YAML file, and environment overrides (env wins).
type Config struct {
	Obs        ObsConfig         `yaml:"obs"`
	LLM        LLMConfig         `yaml:"llm"`
	Embedding  EmbeddingConfig   `yaml:"embedding"`
	Index      IndexConfig       `yaml:"index"`
	PGIndex    PGIndexConfig     `yaml:"pg_index"`
	RerankCache RerankCacheConfig `yaml:"rerank_cache"`
	Buffer     BufferConfig      `yaml:"buffer"`
	Store      StoreConfig       `yaml:"store"`
	Retrieval  RetrievalConfig   `yaml:"retrieval"`
	Box        BoxConfig         `yaml:"box"`
	Extraction ExtractionConfig  `yaml:"extraction"`
}

// Defaults returns a Config populated with the values the daemon runs with
// when nothing is overridden.
func Defaults() Config {
	return Config{
		Obs: ObsConfig{
			LogLevel:    "info",
			ServiceName: "engramd",
		},
		LLM: LLMConfig{
			TimeoutSeconds: 30,
		},
		Embedding: EmbeddingConfig{
			Path:       "/embeddings",
			Dimensions: 1536,
			Timeout:    30,
		},
		Index: IndexConfig{
			Metric:     "cosine",
			Dimensions: 1536,
		},
		RerankCache: RerankCacheConfig{
			TTLSeconds: 600,
		},
		Buffer: BufferConfig{
			TriggerMode: "smart",
			MaxTurns:    12,
			MaxMinutes:  20,
		},
		Store: StoreConfig{
			MemoryDir:          "memory",
			WorkspaceDir:       "workspace",
			DefaultNamespace:   "default",
			SharedNamespace:    "shared",
			SpeculativeTTLDays: 30,
		},
		Retrieval: RetrievalConfig{
			RecencyWeight:                 0.3,
			RecencyTauDays:                14,
			BoostAccessCount:              true,
			NegativeExamplesPenaltyPerHit: 0.1,
			NegativeExamplesPenaltyCap:    1.0,
			IntentRoutingBoost:            0.15,
			QueryExpansionMaxQueries:      4,
			QueryExpansionMinTokenLen:     3,
			RerankMaxCandidates:           20,
			RerankTimeoutMs:               4000,
			NamespaceFanoutK:              20,
			ArtifactMax:                   3,
		},
		Box: BoxConfig{
			TopicShiftThreshold:   0.35,
			TimeGapMinutes:        30,
			MaxMemories:           12,
			TraceOverlapThreshold: 0.4,
		},
		Extraction: ExtractionConfig{
			DedupeWindowMinutes:     5,
			MaxFactsPerRun:          20,
			MaxEntitiesPerRun:       10,
			MaxQuestionsPerRun:      5,
			MaxProfileUpdatesPerRun: 3,
			ConsolidationWindow:     50,
			CommitmentDecayDays:     14,
			ExtractionEffort:        "medium",
			ConsolidationEffort:     "medium",
			ProfileByteBudget:       32 * 1024,
			IdentityByteBudget:      16 * 1024,
		},
	}
}
