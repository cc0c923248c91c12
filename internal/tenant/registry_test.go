package tenant

import (
	"context"
	"testing"

	"github.com/convoyhq/convoy/pkg/models"
)

type fakeStore struct {
	channels map[string]*models.Channel
	bindings map[string]*models.CRMBinding
	policies map[string]*models.AgentPolicy
	tenants  map[string]*models.Tenant
	calls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		channels: map[string]*models.Channel{},
		bindings: map[string]*models.CRMBinding{},
		policies: map[string]*models.AgentPolicy{},
		tenants:  map[string]*models.Tenant{},
	}
}

func (f *fakeStore) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	return f.tenants[tenantID], nil
}

func (f *fakeStore) GetChannelByWebhookToken(ctx context.Context, token string) (*models.Channel, error) {
	f.calls++
	return f.channels[token], nil
}

func (f *fakeStore) GetCRMBinding(ctx context.Context, tenantID string) (*models.CRMBinding, error) {
	return f.bindings[tenantID], nil
}

func (f *fakeStore) GetAgentPolicy(ctx context.Context, tenantID string) (*models.AgentPolicy, error) {
	return f.policies[tenantID], nil
}

func TestResolveByWebhookTokenNotFound(t *testing.T) {
	r := New(newFakeStore())
	if _, err := r.ResolveByWebhookToken(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveByWebhookTokenInactive(t *testing.T) {
	store := newFakeStore()
	store.channels["tok"] = &models.Channel{ID: "c1", TenantID: "t1", IsActive: false}
	r := New(store)

	ch, err := r.ResolveByWebhookToken(context.Background(), "tok")
	if err != ErrInactive {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
	if ch.TenantID != "t1" {
		t.Fatalf("expected channel returned alongside the error, got %+v", ch)
	}
}

func TestResolveByWebhookTokenCaches(t *testing.T) {
	store := newFakeStore()
	store.channels["tok"] = &models.Channel{ID: "c1", TenantID: "t1", IsActive: true}
	r := New(store)

	for i := 0; i < 3; i++ {
		if _, err := r.ResolveByWebhookToken(context.Background(), "tok"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if store.calls != 1 {
		t.Fatalf("expected one backing store call due to caching, got %d", store.calls)
	}
}

func TestLoadAgentPolicyFallsBackToDefault(t *testing.T) {
	r := New(newFakeStore())
	policy, err := r.LoadAgentPolicy(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy.Temperature != 0.7 || policy.MaxTokens != 1024 {
		t.Fatalf("expected default policy knobs, got %+v", policy)
	}
}

func TestLoadCRMBindingNotConfigured(t *testing.T) {
	r := New(newFakeStore())
	if _, err := r.LoadCRMBinding(context.Background(), "t1"); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestInvalidateDropsTenantCacheOnly(t *testing.T) {
	store := newFakeStore()
	store.policies["t1"] = &models.AgentPolicy{TenantID: "t1", Temperature: 1.0, MaxTokens: 10}
	r := New(store)

	if _, err := r.LoadAgentPolicy(context.Background(), "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.policies["t1"].Temperature = 1.5
	r.Invalidate("t1")

	policy, err := r.LoadAgentPolicy(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy.Temperature != 1.5 {
		t.Fatalf("expected cache invalidation to pick up the new value, got %v", policy.Temperature)
	}
}
