// Package retention implements the C10 retention engine (§4.10):
// per-plan cleanup, dry-run estimates, and right-to-erasure deletion,
// batched against internal/history to bound lock time. Grounded on the
// teacher's background-task shape for per-tenant failure isolation —
// one tenant's failure never aborts the rest of a sweep.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/convoyhq/convoy/internal/config"
	"github.com/convoyhq/convoy/internal/history"
)

// Plan is a subscription tier, used to look up the default retention
// window when a request doesn't override it explicitly.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Engine runs retention operations against the durable store.
type Engine struct {
	store     *history.Store
	cfg       config.RetentionConfig
}

// New constructs a retention Engine.
func New(store *history.Store, cfg config.RetentionConfig) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// DefaultDaysForPlan returns the §4.10 policy-table default for plan.
func (e *Engine) DefaultDaysForPlan(plan Plan) int {
	switch plan {
	case PlanStarter:
		return e.cfg.StarterDays
	case PlanPro:
		return e.cfg.ProDays
	case PlanEnterprise:
		return e.cfg.EnterpriseDays
	default:
		return e.cfg.FreeDays
	}
}

// Policy is the effective retention request for one tenant: independent
// windows for messages and sessions, both floored at the configured
// minimum (§4.10: "Enforced minimum: 30d").
type Policy struct {
	MessagesRetentionDays int
	SessionsRetentionDays int
}

// Validate enforces the §7 ValidationError for retention days below
// the configured minimum.
func (e *Engine) Validate(p Policy) error {
	min := e.cfg.MinimumDays
	if min <= 0 {
		min = 30
	}
	if p.MessagesRetentionDays < min {
		return fmt.Errorf("retention: messages_retention_days must be >= %d", min)
	}
	if p.SessionsRetentionDays < min {
		return fmt.Errorf("retention: sessions_retention_days must be >= %d", min)
	}
	return nil
}

// Counts reports how many rows an operation touched or would touch.
type Counts struct {
	MessagesDeleted int64
	SessionsDeleted int64
}

// CleanupTenant deletes messages then sessions older than their
// respective cutoffs, in batches of at most cfg.BatchSize, until each
// cutoff is fully swept (§4.10: "deletes messages then sessions older
// than their respective cutoffs in batches of <=1000").
func (e *Engine) CleanupTenant(ctx context.Context, tenantID string, p Policy) (Counts, error) {
	if err := e.Validate(p); err != nil {
		return Counts{}, err
	}
	batch := e.cfg.BatchSize
	if batch <= 0 {
		batch = 1000
	}

	var out Counts
	msgCutoff := time.Now().AddDate(0, 0, -p.MessagesRetentionDays)
	for {
		n, err := e.store.DeleteMessagesOlderThan(ctx, tenantID, msgCutoff, batch)
		if err != nil {
			return out, fmt.Errorf("retention: delete messages for %s: %w", tenantID, err)
		}
		out.MessagesDeleted += n
		if n < int64(batch) {
			break
		}
	}

	sessCutoff := time.Now().AddDate(0, 0, -p.SessionsRetentionDays)
	for {
		n, err := e.store.DeleteSessionsOlderThan(ctx, tenantID, sessCutoff, batch)
		if err != nil {
			return out, fmt.Errorf("retention: delete sessions for %s: %w", tenantID, err)
		}
		out.SessionsDeleted += n
		if n < int64(batch) {
			break
		}
	}

	return out, nil
}

// Estimate returns the counts CleanupTenant would delete, without
// deleting anything (§4.10 dry-run).
func (e *Engine) Estimate(ctx context.Context, tenantID string, p Policy) (Counts, error) {
	if err := e.Validate(p); err != nil {
		return Counts{}, err
	}
	msgCutoff := time.Now().AddDate(0, 0, -p.MessagesRetentionDays)
	sessCutoff := time.Now().AddDate(0, 0, -p.SessionsRetentionDays)

	msgCount, err := e.store.CountMessagesOlderThan(ctx, tenantID, msgCutoff)
	if err != nil {
		return Counts{}, fmt.Errorf("retention: estimate messages for %s: %w", tenantID, err)
	}
	sessCount, err := e.store.CountSessionsOlderThan(ctx, tenantID, sessCutoff)
	if err != nil {
		return Counts{}, fmt.Errorf("retention: estimate sessions for %s: %w", tenantID, err)
	}
	return Counts{MessagesDeleted: int64(msgCount), SessionsDeleted: int64(sessCount)}, nil
}

// DeleteAllTenantData implements the right-to-erasure operation: every
// durable record for tenantID, no cutoff.
func (e *Engine) DeleteAllTenantData(ctx context.Context, tenantID string) (Counts, error) {
	msgs, sessions, err := e.store.DeleteAllTenantData(ctx, tenantID)
	if err != nil {
		return Counts{}, fmt.Errorf("retention: delete all data for %s: %w", tenantID, err)
	}
	return Counts{MessagesDeleted: msgs, SessionsDeleted: sessions}, nil
}

// SweepResult is one tenant's outcome within a multi-tenant sweep.
type SweepResult struct {
	TenantID string
	Counts   Counts
	Err      error
}

// Sweep runs CleanupTenant for every tenant in tenantIDs, isolating
// failures per-tenant: one tenant's error is recorded in its
// SweepResult and does not stop the rest of the batch (§7 propagation
// policy: "Background retention tasks MUST isolate per-tenant
// failures").
func (e *Engine) Sweep(ctx context.Context, tenantIDs []string, policyFor func(tenantID string) Policy) []SweepResult {
	results := make([]SweepResult, 0, len(tenantIDs))
	for _, tenantID := range tenantIDs {
		counts, err := e.CleanupTenant(ctx, tenantID, policyFor(tenantID))
		results = append(results, SweepResult{TenantID: tenantID, Counts: counts, Err: err})
	}
	return results
}
