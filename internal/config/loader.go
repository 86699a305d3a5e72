package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load assembles Config from, in increasing precedence: built-in defaults,
// an optional YAML file at path (skipped if empty or missing), and
// environment variables (loaded from .env via godotenv.Overload if
// present, then read directly — env always wins).
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	_ = godotenv.Overload()
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Obs.LogPath = firstNonEmpty(os.Getenv("ENGRAM_LOG_PATH"), cfg.Obs.LogPath)
	cfg.Obs.LogLevel = firstNonEmpty(os.Getenv("ENGRAM_LOG_LEVEL"), cfg.Obs.LogLevel)
	cfg.Obs.ServiceName = firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), cfg.Obs.ServiceName)
	cfg.Obs.Environment = firstNonEmpty(os.Getenv("ENGRAM_ENVIRONMENT"), cfg.Obs.Environment)
	cfg.Obs.OTLPEndpoint = firstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), cfg.Obs.OTLPEndpoint)
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		cfg.Obs.OTLPInsecure = parseBool(v, cfg.Obs.OTLPInsecure)
	}

	cfg.LLM.ExtractionChain = firstNonEmpty(os.Getenv("ENGRAM_EXTRACTION_CHAIN"), cfg.LLM.ExtractionChain)
	cfg.LLM.ConsolidationChain = firstNonEmpty(os.Getenv("ENGRAM_CONSOLIDATION_CHAIN"), cfg.LLM.ConsolidationChain)
	cfg.LLM.RerankChain = firstNonEmpty(os.Getenv("ENGRAM_RERANK_CHAIN"), cfg.LLM.RerankChain)
	cfg.LLM.Anthropic.APIKey = firstNonEmpty(os.Getenv("ANTHROPIC_API_KEY"), cfg.LLM.Anthropic.APIKey)
	cfg.LLM.Anthropic.BaseURL = firstNonEmpty(os.Getenv("ANTHROPIC_BASE_URL"), cfg.LLM.Anthropic.BaseURL)
	cfg.LLM.OpenAI.APIKey = firstNonEmpty(os.Getenv("OPENAI_API_KEY"), cfg.LLM.OpenAI.APIKey)
	cfg.LLM.OpenAI.BaseURL = firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), cfg.LLM.OpenAI.BaseURL)
	cfg.LLM.Gemini.APIKey = firstNonEmpty(os.Getenv("GOOGLE_GEMINI_API_KEY"), cfg.LLM.Gemini.APIKey)
	cfg.LLM.Gemini.BaseURL = firstNonEmpty(os.Getenv("GOOGLE_GEMINI_BASE_URL"), cfg.LLM.Gemini.BaseURL)

	cfg.Embedding.BaseURL = firstNonEmpty(os.Getenv("ENGRAM_EMBEDDING_BASE_URL"), cfg.Embedding.BaseURL)
	cfg.Embedding.Model = firstNonEmpty(os.Getenv("ENGRAM_EMBEDDING_MODEL"), cfg.Embedding.Model)
	cfg.Embedding.APIKey = firstNonEmpty(os.Getenv("ENGRAM_EMBEDDING_API_KEY"), cfg.Embedding.APIKey)
	if v := os.Getenv("ENGRAM_EMBEDDING_DIMENSIONS"); v != "" {
		cfg.Embedding.Dimensions = parseIntDefault(v, cfg.Embedding.Dimensions)
	}

	cfg.Index.DSN = firstNonEmpty(os.Getenv("ENGRAM_QDRANT_DSN"), cfg.Index.DSN)
	if v := os.Getenv("ENGRAM_INDEX_ENABLED"); v != "" {
		cfg.Index.Enabled = parseBool(v, cfg.Index.Enabled)
	}

	cfg.PGIndex.DSN = firstNonEmpty(os.Getenv("ENGRAM_PG_DSN"), os.Getenv("DATABASE_URL"), cfg.PGIndex.DSN)
	if v := os.Getenv("ENGRAM_PG_INDEX_ENABLED"); v != "" {
		cfg.PGIndex.Enabled = parseBool(v, cfg.PGIndex.Enabled)
	}

	cfg.RerankCache.Addr = firstNonEmpty(os.Getenv("ENGRAM_REDIS_ADDR"), cfg.RerankCache.Addr)
	cfg.RerankCache.Password = firstNonEmpty(os.Getenv("ENGRAM_REDIS_PASSWORD"), cfg.RerankCache.Password)
	if v := os.Getenv("ENGRAM_REDIS_ENABLED"); v != "" {
		cfg.RerankCache.Enabled = parseBool(v, cfg.RerankCache.Enabled)
	}

	cfg.Buffer.TriggerMode = firstNonEmpty(os.Getenv("ENGRAM_TRIGGER_MODE"), cfg.Buffer.TriggerMode)
	if v := os.Getenv("ENGRAM_BUFFER_MAX_TURNS"); v != "" {
		cfg.Buffer.MaxTurns = parseIntDefault(v, cfg.Buffer.MaxTurns)
	}
	if v := os.Getenv("ENGRAM_BUFFER_MAX_MINUTES"); v != "" {
		cfg.Buffer.MaxMinutes = parseIntDefault(v, cfg.Buffer.MaxMinutes)
	}
	if v := os.Getenv("ENGRAM_HIGH_SIGNAL_PATTERNS"); v != "" {
		cfg.Buffer.HighSignalPatterns = parseCommaSeparatedList(v)
	}

	cfg.Store.MemoryDir = firstNonEmpty(os.Getenv("ENGRAM_MEMORY_DIR"), cfg.Store.MemoryDir)
	cfg.Store.WorkspaceDir = firstNonEmpty(os.Getenv("ENGRAM_WORKSPACE_DIR"), cfg.Store.WorkspaceDir)
	cfg.Store.DefaultNamespace = firstNonEmpty(os.Getenv("ENGRAM_DEFAULT_NAMESPACE"), cfg.Store.DefaultNamespace)
	cfg.Store.SharedNamespace = firstNonEmpty(os.Getenv("ENGRAM_SHARED_NAMESPACE"), cfg.Store.SharedNamespace)
	if v := os.Getenv("ENGRAM_NAMESPACES_ENABLED"); v != "" {
		cfg.Store.NamespacesEnabled = parseBool(v, cfg.Store.NamespacesEnabled)
	}
	if v := os.Getenv("ENGRAM_RECALL_NAMESPACES"); v != "" {
		cfg.Store.DefaultRecallNamespaces = parseCommaSeparatedList(v)
	}

	if v := os.Getenv("ENGRAM_RERANK_ENABLED"); v != "" {
		cfg.Retrieval.RerankEnabled = parseBool(v, cfg.Retrieval.RerankEnabled)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseBool(s string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return b
}

func parseIntDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func parseCommaSeparatedList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
