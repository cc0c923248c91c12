// Package openai implements llm.Provider against the OpenAI Chat
// Completions API (and any OpenAI-compatible endpoint reachable by
// overriding BaseURL), grounded on the teacher's venice.Client —
// same go-openai dependency, same tool/schema conversion, collapsed
// to a single non-streaming call per turn.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/convoyhq/convoy/internal/llm"
)

const defaultModel = "gpt-4o"

// Config holds construction parameters for Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// Provider implements llm.Provider for OpenAI-compatible chat models.
type Provider struct {
	client       *openaisdk.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// New constructs an OpenAI provider. APIKey is required.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	clientCfg := openaisdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:       openaisdk.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	chatReq := p.buildRequest(req)

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}

		resp, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			lastErr = err
			if !llm.IsRetryableError(err) {
				return nil, fmt.Errorf("openai: generate: %w", err)
			}
			continue
		}
		return parseResponse(resp)
	}
	return nil, fmt.Errorf("openai: generate failed after %d attempts: %w", p.maxRetries+1, lastErr)
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

func (p *Provider) buildRequest(req llm.Request) openaisdk.ChatCompletionRequest {
	model := req.Knobs.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]openaisdk.ChatCompletionMessage, 0, len(req.History)+1)
	if req.System != "" {
		messages = append(messages, openaisdk.ChatCompletionMessage{Role: openaisdk.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.History {
		role := openaisdk.ChatMessageRoleUser
		if m.Role == "model" {
			role = openaisdk.ChatMessageRoleAssistant
		}
		messages = append(messages, openaisdk.ChatCompletionMessage{Role: role, Content: m.Text})
	}

	chatReq := openaisdk.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Knobs.Temperature),
	}
	if req.Knobs.MaxTokens > 0 {
		chatReq.MaxTokens = req.Knobs.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}
	return chatReq
}

func convertTools(tools []llm.ToolSpec) []openaisdk.Tool {
	out := make([]openaisdk.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openaisdk.Tool{
			Type: openaisdk.ToolTypeFunction,
			Function: &openaisdk.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	return out
}

func parseResponse(resp openaisdk.ChatCompletionResponse) (*llm.Response, error) {
	out := &llm.Response{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		out.FinishReason = llm.FinishError
		return out, llm.ErrEmptyResponse
	}
	msg := resp.Choices[0].Message

	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCall = &llm.ToolCall{Name: tc.Function.Name, Args: args}
		out.FinishReason = llm.FinishToolCall
		return out, nil
	}
	if msg.Content != "" {
		out.Text = msg.Content
		out.FinishReason = llm.FinishText
		return out, nil
	}
	out.FinishReason = llm.FinishError
	return out, llm.ErrEmptyResponse
}
