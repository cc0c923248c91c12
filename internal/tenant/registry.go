// Package tenant implements the tenant registry (C1, §4.1): resolving a
// webhook token to a Channel/tenant, and loading CRM bindings and agent
// policy with a short-TTL read cache.
package tenant

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/convoyhq/convoy/pkg/models"
)

var (
	// ErrNotFound is returned for an unknown webhook token (§4.9: -> 404).
	ErrNotFound = errors.New("tenant: not found")
	// ErrInactive is returned for a channel that exists but is disabled (§4.9: -> 403).
	ErrInactive = errors.New("tenant: channel inactive")
	// ErrNotConfigured is returned when a tenant has no CRM binding.
	ErrNotConfigured = errors.New("tenant: crm binding not configured")
)

// Store is the persistence contract the registry reads through. It is
// satisfied by PostgresStore (postgres.go) in production and by a fake
// in tests; provisioning (writes) is out of
// scope per spec.md §1.
type Store interface {
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
	GetChannelByWebhookToken(ctx context.Context, token string) (*models.Channel, error)
	GetCRMBinding(ctx context.Context, tenantID string) (*models.CRMBinding, error)
	GetAgentPolicy(ctx context.Context, tenantID string) (*models.AgentPolicy, error)
}

// cacheTTL is the §4.1 "implementations MAY cache ... with a short TTL
// (<=60s)" ceiling.
const cacheTTL = 60 * time.Second

type cacheEntry struct {
	value   any
	expires time.Time
}

// Registry resolves tenants/channels/bindings/policy with a read-mostly
// in-process cache. One Registry instance is shared process-wide (§5
// global state: "the tenant-registry cache ... initialized at process
// start").
type Registry struct {
	store Store

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New constructs a Registry backed by store.
func New(store Store) *Registry {
	return &Registry{store: store, cache: make(map[string]cacheEntry)}
}

// ResolveByWebhookToken looks up the owning Channel for an inbound
// webhook token (§4.1). Unknown tokens yield ErrNotFound; disabled
// channels yield ErrInactive — callers MUST check state before touching
// any session data (§3 Channel invariant).
func (r *Registry) ResolveByWebhookToken(ctx context.Context, token string) (*models.Channel, error) {
	if v, ok := r.cacheGet("channel:" + token); ok {
		return r.checkChannel(v.(*models.Channel))
	}

	ch, err := r.store.GetChannelByWebhookToken(ctx, token)
	if err != nil {
		return nil, ErrNotFound
	}
	if ch == nil {
		return nil, ErrNotFound
	}
	r.cacheSet("channel:"+token, ch)
	return r.checkChannel(ch)
}

func (r *Registry) checkChannel(ch *models.Channel) (*models.Channel, error) {
	if !ch.IsActive {
		return ch, ErrInactive
	}
	return ch, nil
}

// LoadCRMBinding returns the tenant's CRM binding. Missing binding is a
// ConfigError (§7): the orchestrator MUST fail closed rather than guess
// a vendor.
func (r *Registry) LoadCRMBinding(ctx context.Context, tenantID string) (*models.CRMBinding, error) {
	key := "binding:" + tenantID
	if v, ok := r.cacheGet(key); ok {
		return v.(*models.CRMBinding), nil
	}
	binding, err := r.store.GetCRMBinding(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, ErrNotConfigured
	}
	r.cacheSet(key, binding)
	return binding, nil
}

// LoadAgentPolicy returns the tenant's agent policy, or a deterministic
// empty default if none is configured (§4.1).
func (r *Registry) LoadAgentPolicy(ctx context.Context, tenantID string) (*models.AgentPolicy, error) {
	key := "policy:" + tenantID
	if v, ok := r.cacheGet(key); ok {
		return v.(*models.AgentPolicy), nil
	}
	policy, err := r.store.GetAgentPolicy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		def := models.DefaultAgentPolicy(tenantID)
		policy = &def
	}
	policy.ClampLLMKnobs()
	r.cacheSet(key, policy)
	return policy, nil
}

// LoadCompanyPromptContext derives the prompt-context projection of the
// tenant's policy (§4.1).
func (r *Registry) LoadCompanyPromptContext(ctx context.Context, tenantID string) (*models.PromptContext, error) {
	t, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	policy, err := r.LoadAgentPolicy(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	name := tenantID
	if t != nil {
		name = t.Name
	}

	return &models.PromptContext{
		TenantName:         name,
		BusinessDesc:       policy.BusinessDesc,
		WorkingHours:       policy.WorkingHours,
		Address:            policy.Address,
		DisplayPhone:       policy.DisplayPhone,
		Services:           policy.Services,
		Products:           policy.Products,
		Greeting:           policy.Greeting,
		Farewell:           policy.Farewell,
		CustomInstructions: policy.CustomInstructions,
	}, nil
}

// Invalidate drops every cache entry for a tenant. Admin provisioning
// (out of scope for this package) MUST call this after a write so stale
// reads never outlive the §4.1 TTL ceiling.
func (r *Registry) Invalidate(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, "binding:"+tenantID)
	delete(r.cache, "policy:"+tenantID)
	for k, entry := range r.cache {
		if ch, ok := entry.value.(*models.Channel); ok && ch.TenantID == tenantID {
			delete(r.cache, k)
		}
	}
}

func (r *Registry) cacheGet(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[key]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.value, true
}

func (r *Registry) cacheSet(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = cacheEntry{value: value, expires: time.Now().Add(cacheTTL)}
}
