package llm

import (
	"context"
	"fmt"
	"strings"
)

// Route is a parsed "<provider>/<model>" entry from a fallback chain
// configuration string.
type Route struct {
	Provider string
	Model    string
}

// ParseChain parses a comma-separated "<provider>/<model>" chain, e.g.
// "anthropic/claude-3-7-sonnet-latest,openai/gpt-4o-mini".
func ParseChain(spec string) ([]Route, error) {
	var routes []Route
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		provider, model, ok := strings.Cut(entry, "/")
		if !ok || provider == "" || model == "" {
			return nil, fmt.Errorf("llm: malformed chain entry %q, want \"<provider>/<model>\"", entry)
		}
		routes = append(routes, Route{Provider: provider, Model: model})
	}
	return routes, nil
}

// FallbackClient tries each named client in order, falling through to the
// next on error or a nil result. It never returns an error to the caller:
// exhausting the chain yields (nil, nil), which callers treat as "failed,
// propagate as empty result" per the collaborator contract.
type FallbackClient struct {
	clients []Client
}

// NewFallbackClient builds a FallbackClient from an ordered list of
// concrete clients (already resolved from a Route chain).
func NewFallbackClient(clients ...Client) *FallbackClient {
	return &FallbackClient{clients: clients}
}

func (f *FallbackClient) ChatCompletion(ctx context.Context, messages []Message, opts Options) (*Result, error) {
	for _, c := range f.clients {
		if c == nil {
			continue
		}
		res, err := c.ChatCompletion(ctx, messages, opts)
		if err != nil || res == nil {
			continue
		}
		return res, nil
	}
	return nil, nil
}
