// Package anthropic implements llm.Provider against the Anthropic
// Messages API, grounded on the teacher's AnthropicProvider —
// request/config shape and retry policy carried over, collapsed from
// a streaming to a single-call contract per the orchestrator's needs.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/convoyhq/convoy/internal/llm"
)

const defaultModel = "claude-sonnet-4-20250514"

// Config holds construction parameters for Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// Provider implements llm.Provider for Claude models.
type Provider struct {
	client       anthropicsdk.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// New constructs an Anthropic provider. APIKey is required.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:       anthropicsdk.NewClient(opts...),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	params := p.buildParams(req)

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}

		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			lastErr = err
			if !llm.IsRetryableError(err) {
				return nil, fmt.Errorf("anthropic: generate: %w", err)
			}
			continue
		}
		return parseMessage(msg)
	}
	return nil, fmt.Errorf("anthropic: generate failed after %d attempts: %w", p.maxRetries+1, lastErr)
}

func (p *Provider) Health(ctx context.Context) llm.Health {
	start := time.Now()
	resp, err := p.Generate(ctx, llm.Request{
		History: []llm.Message{{Role: "user", Text: "ping"}},
		Knobs:   llm.GenKnobs{Model: p.defaultModel, MaxTokens: 8},
	})
	latency := time.Since(start)
	if err != nil {
		return llm.Health{Healthy: false, Latency: latency, Message: err.Error()}
	}
	if resp.FinishReason == llm.FinishError {
		return llm.Health{Healthy: false, Latency: latency, Message: "empty probe response"}
	}
	return llm.Health{Healthy: true, Latency: latency}
}

func (p *Provider) buildParams(req llm.Request) anthropicsdk.MessageNewParams {
	model := req.Knobs.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := int64(req.Knobs.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	msgs := make([]anthropicsdk.MessageParam, 0, len(req.History))
	for _, m := range req.History {
		if m.Role == "model" {
			msgs = append(msgs, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Text)))
		} else {
			msgs = append(msgs, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Text)))
		}
	}

	params := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(model),
		MaxTokens:   maxTokens,
		Messages:    msgs,
		Temperature: anthropicsdk.Float(req.Knobs.Temperature),
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropicsdk.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			var schema map[string]any
			_ = json.Unmarshal(t.Schema, &schema)
			tools = append(tools, anthropicsdk.ToolUnionParam{
				OfTool: &anthropicsdk.ToolParam{
					Name:        t.Name,
					Description: anthropicsdk.String(t.Description),
					InputSchema: anthropicsdk.ToolInputSchemaParam{
						Properties: schema["properties"],
					},
				},
			})
		}
		params.Tools = tools
	}
	return params
}

func parseMessage(msg *anthropicsdk.Message) (*llm.Response, error) {
	resp := &llm.Response{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			resp.Text += variant.Text
		case anthropicsdk.ToolUseBlock:
			var args map[string]any
			_ = json.Unmarshal([]byte(variant.JSON.Input.Raw()), &args)
			resp.ToolCall = &llm.ToolCall{Name: variant.Name, Args: args}
		}
	}
	if resp.ToolCall != nil {
		resp.Text = ""
		resp.FinishReason = llm.FinishToolCall
		return resp, nil
	}
	if resp.Text != "" {
		resp.FinishReason = llm.FinishText
		return resp, nil
	}
	resp.FinishReason = llm.FinishError
	return resp, llm.ErrEmptyResponse
}
