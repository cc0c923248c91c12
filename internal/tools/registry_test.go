package tools

import (
	"context"
	"testing"

	"github.com/convoyhq/convoy/internal/crm"
)

func newTestRegistry() (*Registry, *crm.MockAdapter) {
	return NewRegistry(), crm.NewMockAdapter()
}

func TestExportListsAllNineTools(t *testing.T) {
	r, _ := newTestRegistry()
	specs := r.Export()
	if len(specs) != 9 {
		t.Fatalf("got %d tool specs, want 9", len(specs))
	}
}

func TestExecuteGetServices(t *testing.T) {
	r, adapter := newTestRegistry()
	res, err := r.Execute(context.Background(), adapter, "get_services", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", res.Message)
	}
	if len(res.Content) == 0 {
		t.Fatal("expected non-empty content")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r, adapter := newTestRegistry()
	res, err := r.Execute(context.Background(), adapter, "does_not_exist", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError for unknown tool")
	}
}

func TestExecuteMissingRequiredArgSurfacesAsError(t *testing.T) {
	r, adapter := newTestRegistry()
	res, err := r.Execute(context.Background(), adapter, "get_service_by_id", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError for missing service_id")
	}
}

func TestExecuteCreateAppointmentEndToEnd(t *testing.T) {
	r, adapter := newTestRegistry()
	ctx := context.Background()

	client, err := adapter.CreateClient(ctx, "Ann", "+79001234567")
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}

	res, err := r.Execute(ctx, adapter, "create_appointment", map[string]any{
		"client_id":        client.ID,
		"service_id":       "svc-1",
		"employee_id":      "emp-1",
		"appointment_date": "2026-08-02",
		"appointment_time": "10:00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", res.Message)
	}
}

func TestExecuteNameTooLong(t *testing.T) {
	r, adapter := newTestRegistry()
	longName := make([]byte, MaxToolNameLength+1)
	for i := range longName {
		longName[i] = 'a'
	}
	res, err := r.Execute(context.Background(), adapter, string(longName), map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError for oversized tool name")
	}
}
