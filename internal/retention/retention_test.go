package retention

import (
	"testing"

	"github.com/convoyhq/convoy/internal/config"
)

func newTestEngine() *Engine {
	return New(nil, config.DefaultRetentionConfig())
}

func TestValidateRejectsBelowMinimum(t *testing.T) {
	e := newTestEngine()
	err := e.Validate(Policy{MessagesRetentionDays: 10, SessionsRetentionDays: 30})
	if err == nil {
		t.Fatal("expected error for messages_retention_days below minimum")
	}
	err = e.Validate(Policy{MessagesRetentionDays: 30, SessionsRetentionDays: 10})
	if err == nil {
		t.Fatal("expected error for sessions_retention_days below minimum")
	}
}

func TestValidateAcceptsAtMinimum(t *testing.T) {
	e := newTestEngine()
	if err := e.Validate(Policy{MessagesRetentionDays: 30, SessionsRetentionDays: 30}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDefaultDaysForPlanMatchesPolicyTable(t *testing.T) {
	e := newTestEngine()
	cases := map[Plan]int{
		PlanFree:       30,
		PlanStarter:    90,
		PlanPro:        365,
		PlanEnterprise: 730,
	}
	for plan, want := range cases {
		if got := e.DefaultDaysForPlan(plan); got != want {
			t.Errorf("plan %s: got %d days, want %d", plan, got, want)
		}
	}
}

func TestSweepIsolatesPerTenantFailure(t *testing.T) {
	e := newTestEngine()
	results := e.Sweep(nil, []string{"t1", "t2"}, func(tenantID string) Policy {
		return Policy{MessagesRetentionDays: 5, SessionsRetentionDays: 30}
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Err == nil {
			t.Fatalf("expected validation error for tenant %s (sub-minimum messages days)", r.TenantID)
		}
	}
}
