// Package gemini adapts google.golang.org/genai to engram/internal/llm's
// Client contract.
package gemini

import (
	"context"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"github.com/rs/zerolog"

	"engram/internal/llm"
)

// Client wraps the Gemini SDK's GenerateContent endpoint.
type Client struct {
	sdk   *genai.Client
	model string
	log   *zerolog.Logger
}

func New(ctx context.Context, apiKey, baseURL, model string, httpClient *http.Client, log *zerolog.Logger) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(baseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      strings.TrimSpace(apiKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, err
	}
	if model = strings.TrimSpace(model); model == "" {
		model = "gemini-1.5-flash"
	}
	return &Client{sdk: client, model: model, log: log}, nil
}

func (c *Client) ChatCompletion(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Result, error) {
	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	var system string
	var contents []*genai.Content
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		role := genai.Role(genai.RoleUser)
		if m.Role == "assistant" {
			role = genai.Role(genai.RoleModel)
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		cfg.Temperature = &t
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	resp, err := c.sdk.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		if c.log != nil {
			c.log.Warn().Err(err).Str("operation", opts.Operation).Msg("gemini: chat completion failed")
		}
		return nil, nil
	}
	text := resp.Text()
	if text == "" {
		return nil, nil
	}
	result := &llm.Result{Content: text}
	if resp.UsageMetadata != nil {
		result.Usage = &llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return result, nil
}
