package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/convoyhq/convoy/internal/tenant"
	"github.com/convoyhq/convoy/pkg/models"
)

type fakeTenantStore struct {
	channels map[string]*models.Channel
}

func (f *fakeTenantStore) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	return nil, nil
}

func (f *fakeTenantStore) GetChannelByWebhookToken(ctx context.Context, token string) (*models.Channel, error) {
	ch, ok := f.channels[token]
	if !ok {
		return nil, nil
	}
	return ch, nil
}

func (f *fakeTenantStore) GetCRMBinding(ctx context.Context, tenantID string) (*models.CRMBinding, error) {
	return nil, nil
}

func (f *fakeTenantStore) GetAgentPolicy(ctx context.Context, tenantID string) (*models.AgentPolicy, error) {
	return nil, nil
}

func TestResolveTokenStripsPrefixAndTrailingSlash(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telegram/webhook/abc123/", nil)
	if got := resolveToken(req, "/api/v1/telegram/webhook/"); got != "abc123" {
		t.Fatalf("got %q, want abc123", got)
	}
}

func TestResolveChannelStatusCodes(t *testing.T) {
	store := &fakeTenantStore{channels: map[string]*models.Channel{
		"active-token":   {ID: "c1", TenantID: "t1", IsActive: true},
		"inactive-token": {ID: "c2", TenantID: "t1", IsActive: false},
	}}
	s := New(Config{Tenants: tenant.New(store)})

	rec := httptest.NewRecorder()
	ch, ok := s.resolveChannel(rec, httptest.NewRequest(http.MethodPost, "/x", nil), "active-token")
	if !ok || ch == nil || ch.TenantID != "t1" {
		t.Fatalf("expected active channel resolved, got ok=%v ch=%v", ok, ch)
	}

	rec = httptest.NewRecorder()
	_, ok = s.resolveChannel(rec, httptest.NewRequest(http.MethodPost, "/x", nil), "inactive-token")
	if ok || rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for inactive channel, got ok=%v status=%d", ok, rec.Code)
	}

	rec = httptest.NewRecorder()
	_, ok = s.resolveChannel(rec, httptest.NewRequest(http.MethodPost, "/x", nil), "unknown-token")
	if ok || rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown token, got ok=%v status=%d", ok, rec.Code)
	}
}

func TestTelegramUpdateParsing(t *testing.T) {
	raw := `{
		"message": {
			"from": {"id": 42, "first_name": "Ada"},
			"text": "hello",
			"chat": {"id": 42},
			"message_id": 7
		}
	}`
	var update telegramUpdate
	if err := json.Unmarshal([]byte(raw), &update); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if update.Message.From.ID != 42 || update.Message.Text != "hello" || update.Message.From.FirstName != "Ada" {
		t.Fatalf("unexpected parse result: %+v", update)
	}
}

func TestWhatsAppPayloadParsing(t *testing.T) {
	raw := `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [
						{"from": "15551234567", "id": "wamid.1", "text": {"body": "hi there"}, "timestamp": "1690000000"}
					]
				}
			}]
		}]
	}`
	var payload whatsappPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload.Entry) != 1 || len(payload.Entry[0].Changes) != 1 {
		t.Fatalf("unexpected structure: %+v", payload)
	}
	msgs := payload.Entry[0].Changes[0].Value.Messages
	if len(msgs) != 1 || msgs[0].From != "15551234567" || msgs[0].Text.Body != "hi there" {
		t.Fatalf("unexpected message: %+v", msgs)
	}
}

func TestHandleGenericMessageRejectsMissingFields(t *testing.T) {
	s := New(Config{})
	body, err := json.Marshal(genericMessageRequest{TenantID: "t1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleGenericMessage(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
