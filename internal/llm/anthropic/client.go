// Package anthropic adapts the Anthropic SDK to engram/internal/llm's
// Client contract.
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"engram/internal/llm"
)

// Client wraps the Anthropic SDK's Messages endpoint.
type Client struct {
	sdk   anthropic.Client
	model string
	log   *zerolog.Logger
}

// New builds a Client. apiKey/baseURL/model follow the usual env-derived
// config; model falls back to a current Sonnet if empty.
func New(apiKey, baseURL, model string, httpClient *http.Client, log *zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	if model = strings.TrimSpace(model); model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &Client{sdk: anthropic.NewClient(opts...), model: model, log: log}
}

// ChatCompletion implements llm.Client. A nil result (with nil error) is
// returned whenever the call fails; callers treat this as an empty result.
func (c *Client) ChatCompletion(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Result, error) {
	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	var system string
	msgs := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		if c.log != nil {
			c.log.Warn().Err(err).Str("operation", opts.Operation).Msg("anthropic: chat completion failed")
		}
		return nil, nil
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if text := block.AsAny(); text != nil {
			if tb, ok := text.(anthropic.TextBlock); ok {
				content.WriteString(tb.Text)
			}
		}
	}
	return &llm.Result{
		Content: content.String(),
		Usage: &llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
