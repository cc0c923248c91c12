// Package llm abstracts the large-language-model backend behind a
// single-call, tool-aware contract (C6). Unlike the streaming
// agent.LLMProvider this is grounded on, an orchestration turn needs
// exactly one parsed decision — text to show the user, or a tool the
// model wants invoked — not a token stream, so Provider.Generate
// returns a single Response rather than a channel of chunks.
package llm

import (
	"context"
	"errors"
	"time"
)

// FinishReason classifies how a Generate call concluded.
type FinishReason string

const (
	FinishText     FinishReason = "text"
	FinishToolCall FinishReason = "tool_call"
	FinishError    FinishReason = "error"
)

// ErrEmptyResponse is returned when a provider's response carries
// neither text nor a tool call. The orchestrator renders this as a
// ProtocolError.
var ErrEmptyResponse = errors.New("llm: provider returned neither text nor tool_call")

// Message is one turn of conversation input to a Generate call.
type Message struct {
	Role string // "user" or "model"
	Text string
}

// ToolSpec describes one callable function exposed to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      []byte // JSON Schema, as produced by tools.Registry.Export
}

// ToolCall is a model-issued request to invoke a named tool.
type ToolCall struct {
	Name string
	Args map[string]any
}

// GenKnobs carries the clamped generation parameters from the tenant's
// agent policy (§3's temperature/max_tokens invariant is enforced by
// the caller before this struct is built).
type GenKnobs struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Request is the full input to one LLM turn.
type Request struct {
	System  string
	History []Message
	Tools   []ToolSpec
	Knobs   GenKnobs
}

// Response is a provider's parsed decision for one turn. Exactly one
// of Text or ToolCall is populated when FinishReason is not
// FinishError.
type Response struct {
	FinishReason FinishReason
	Text         string
	ToolCall     *ToolCall
	InputTokens  int
	OutputTokens int
}

// Health reports the outcome of a minimal generate probe.
type Health struct {
	Healthy bool
	Latency time.Duration
	Message string
}

// Provider is the C6 contract every backend (Anthropic, OpenAI, ...)
// implements. Implementations must be safe for concurrent use.
type Provider interface {
	// Generate sends req and returns the parsed decision. Transient
	// transport errors may be retried internally up to a small bounded
	// count with backoff; content errors are never retried silently.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name is the stable, lowercase provider identifier used in logs
	// and metrics.
	Name() string

	// Health issues a minimal generate call and reports reachability.
	Health(ctx context.Context) Health
}
