package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/convoyhq/convoy/internal/crm"
	"github.com/convoyhq/convoy/internal/llm"
	"github.com/convoyhq/convoy/internal/session"
	"github.com/convoyhq/convoy/internal/tenant"
	"github.com/convoyhq/convoy/internal/tools"
	"github.com/convoyhq/convoy/pkg/models"
)

// fakeTenantStore is a minimal tenant.Store backing a single tenant with
// a mock CRM binding, used by every orchestrator test in this file.
type fakeTenantStore struct {
	binding *models.CRMBinding
	policy  *models.AgentPolicy
}

func (f *fakeTenantStore) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	return &models.Tenant{ID: tenantID, Name: "Acme Salon"}, nil
}

func (f *fakeTenantStore) GetChannelByWebhookToken(ctx context.Context, token string) (*models.Channel, error) {
	return nil, nil
}

func (f *fakeTenantStore) GetCRMBinding(ctx context.Context, tenantID string) (*models.CRMBinding, error) {
	return f.binding, nil
}

func (f *fakeTenantStore) GetAgentPolicy(ctx context.Context, tenantID string) (*models.AgentPolicy, error) {
	return f.policy, nil
}

// fixedProvider always returns the same canned Response, regardless of
// the request, so a test can pin the orchestrator to one turn shape.
type fixedProvider struct {
	resp *llm.Response
	err  error
}

func (p *fixedProvider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}
func (p *fixedProvider) Name() string { return "fixed" }
func (p *fixedProvider) Health(ctx context.Context) llm.Health {
	return llm.Health{Healthy: true}
}

func newTestOrchestrator(t *testing.T, provider llm.Provider) *Orchestrator {
	t.Helper()
	store := &fakeTenantStore{
		binding: &models.CRMBinding{TenantID: "t1", CRMKind: "mock", BaseURL: "https://mock.example"},
		policy:  &models.AgentPolicy{TenantID: "t1", Temperature: 0.5, MaxTokens: 512},
	}
	crms := crm.NewRegistry()
	crms.Register("mock", func(creds crm.Credentials) (crm.Adapter, error) {
		return crm.NewMockAdapter(), nil
	})
	return New(Config{
		Tenants:  tenant.New(store),
		CRMRegistry: crms,
		Sessions: session.NewMemoryStore(),
		Locker:   session.NewLocker(session.DefaultLockTimeout),
		Provider: provider,
		Tools:    tools.NewRegistry(),
	})
}

func TestHandleMissingTenantIsValidationError(t *testing.T) {
	o := newTestOrchestrator(t, &fixedProvider{})
	_, err := o.Handle(context.Background(), models.InboundMessage{SessionID: "s1"})
	if err == nil {
		t.Fatal("expected an error for a message without a tenant id")
	}
	var ce *ClassifiedError
	if !errors.As(err, &ce) || ce.Class != ClassValidation {
		t.Fatalf("expected ClassValidation, got %v", err)
	}
}

func TestHandleTextReplyAdvancesStateAndPersists(t *testing.T) {
	provider := &fixedProvider{resp: &llm.Response{FinishReason: llm.FinishText, Text: "Hi there, how can I help?"}}
	o := newTestOrchestrator(t, provider)

	reply, err := o.Handle(context.Background(), models.InboundMessage{
		TenantID: "t1", SessionID: "sess-1", ChannelKind: models.ChannelWeb,
		ExternalUserID: "u1", Kind: models.MessageText, Text: "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.FunctionCalled {
		t.Fatal("a text-finish turn must not report FunctionCalled")
	}
	if reply.Text != "Hi there, how can I help?" {
		t.Fatalf("unexpected reply text: %q", reply.Text)
	}
	if reply.SessionState != models.StateGreeting {
		t.Fatalf("expected session to advance to StateGreeting, got %s", reply.SessionState)
	}

	sess, err := o.sessions.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("session was not persisted: %v", err)
	}
	if sess.State != models.StateGreeting {
		t.Fatalf("persisted session state = %s, want StateGreeting", sess.State)
	}
}

func TestHandleToolCallReturnsFollowup(t *testing.T) {
	provider := &fixedProvider{resp: &llm.Response{
		FinishReason: llm.FinishToolCall,
		ToolCall:     &llm.ToolCall{Name: "get_available_slots", Args: map[string]any{"service_id": "svc1"}},
	}}
	o := newTestOrchestrator(t, provider)

	reply, err := o.Handle(context.Background(), models.InboundMessage{
		TenantID: "t1", SessionID: "sess-2", ChannelKind: models.ChannelWeb,
		ExternalUserID: "u2", Kind: models.MessageText, Text: "what slots are free?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reply.FunctionCalled || !reply.NeedsFollowup {
		t.Fatalf("expected a tool-call reply with NeedsFollowup, got %+v", reply)
	}
	if reply.FunctionName != "get_available_slots" {
		t.Fatalf("unexpected function name: %s", reply.FunctionName)
	}
}

func TestHandleProviderErrorReturnsFallbackReplyAndError(t *testing.T) {
	o := newTestOrchestrator(t, &fixedProvider{err: errors.New("boom")})

	reply, err := o.Handle(context.Background(), models.InboundMessage{
		TenantID: "t1", SessionID: "sess-3", ChannelKind: models.ChannelWeb,
		ExternalUserID: "u3", Kind: models.MessageText, Text: "hi",
	})
	if err == nil {
		t.Fatal("expected an error when the provider fails")
	}
	if reply == nil || reply.SessionState != models.StateFailed {
		t.Fatalf("expected a fallback reply with StateFailed, got %+v", reply)
	}
}

func TestHandleUnconfiguredTenantIsConfigError(t *testing.T) {
	store := &fakeTenantStore{} // no binding configured
	crms := crm.NewRegistry()
	o := New(Config{
		Tenants:  tenant.New(store),
		CRMRegistry: crms,
		Sessions: session.NewMemoryStore(),
		Provider: &fixedProvider{resp: &llm.Response{FinishReason: llm.FinishText, Text: "hi"}},
		Tools:    tools.NewRegistry(),
	})

	_, err := o.Handle(context.Background(), models.InboundMessage{TenantID: "no-binding", SessionID: "s1", Text: "hi"})
	if err == nil {
		t.Fatal("expected an error for a tenant without a CRM binding")
	}
	var ce *ClassifiedError
	if !errors.As(err, &ce) || ce.Class != ClassConfig {
		t.Fatalf("expected ClassConfig, got %v", err)
	}
}
