// Package orchestrator composes the buffer, extraction pipeline, store,
// box builder, and retrieval planner into the operations the daemon and
// CLI expose: recording a turn, recalling memories for a query, and
// flushing pending work.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"engram/internal/config"
	"engram/internal/llm"
	"engram/internal/llm/anthropic"
	"engram/internal/llm/gemini"
	"engram/internal/llm/openai"
)

// resolveChain parses a "<provider>/<model>,..." chain string and builds a
// FallbackClient over the configured provider routes, in order. An empty
// chain resolves to a nil Client, which every collaborator treats as "not
// configured" rather than an error.
//
// This is the one place allowed to import every provider adapter: each
// adapter imports engram/internal/llm for Client/Message/Options, so
// internal/llm itself can never import them back without a cycle.
func resolveChain(ctx context.Context, chain string, llmCfg config.LLMConfig, httpClient *http.Client, log *zerolog.Logger) (llm.Client, error) {
	routes, err := llm.ParseChain(chain)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, nil
	}

	clients := make([]llm.Client, 0, len(routes))
	for _, r := range routes {
		c, err := buildClient(ctx, r, llmCfg, httpClient, log)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: building client for %s/%s: %w", r.Provider, r.Model, err)
		}
		clients = append(clients, c)
	}
	return llm.NewFallbackClient(clients...), nil
}

func buildClient(ctx context.Context, r llm.Route, llmCfg config.LLMConfig, httpClient *http.Client, log *zerolog.Logger) (llm.Client, error) {
	switch r.Provider {
	case "anthropic":
		route := llmCfg.Anthropic
		return anthropic.New(route.APIKey, route.BaseURL, r.Model, httpClient, log), nil
	case "openai":
		route := llmCfg.OpenAI
		return openai.New(route.APIKey, route.BaseURL, r.Model, httpClient, log), nil
	case "gemini":
		route := llmCfg.Gemini
		c, err := gemini.New(ctx, route.APIKey, route.BaseURL, r.Model, httpClient, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", r.Provider)
	}
}
