package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/convoyhq/convoy/internal/tenant"
	"github.com/convoyhq/convoy/pkg/models"
)

// resolveToken extracts the {token} path segment after prefix, the
// teacher's webhook_hooks.go path-matching shape simplified to a single
// trailing segment since each channel has its own fixed mux pattern.
func resolveToken(r *http.Request, prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/")
}

// resolveChannel runs the §4.9 step-2 token lookup, translating the
// tenant sentinel errors into their mandated HTTP statuses.
func (s *Server) resolveChannel(w http.ResponseWriter, r *http.Request, token string) (*models.Channel, bool) {
	ch, err := s.cfg.Tenants.ResolveByWebhookToken(r.Context(), token)
	switch {
	case err == nil:
		return ch, true
	case errors.Is(err, tenant.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown webhook token")
	case errors.Is(err, tenant.ErrInactive):
		writeError(w, http.StatusForbidden, "channel is inactive")
	default:
		writeError(w, http.StatusInternalServerError, "tenant lookup failed")
	}
	return nil, false
}

// telegramUpdate mirrors only the fields §4.9 says the ingress reads
// out of a Telegram Bot API update payload.
type telegramUpdate struct {
	Message struct {
		From struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
		} `json:"from"`
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		MessageID int64 `json:"message_id"`
	} `json:"message"`
}

func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	token := resolveToken(r, "/api/v1/telegram/webhook/")
	ch, ok := s.resolveChannel(w, r, token)
	if !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	if err := s.verifyWebhookSignature(r, body); err != nil {
		writeError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	var update telegramUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		// §4.9: webhook responses are always 200 once the token is
		// accepted, even for payloads we can't parse, so the provider
		// doesn't retry-storm us.
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if update.Message.Text == "" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	externalUserID := strconv.FormatInt(update.Message.From.ID, 10)
	msg := models.InboundMessage{
		TenantID:       ch.TenantID,
		SessionID:      fmt.Sprintf("telegram_%s", externalUserID),
		ChannelKind:    models.ChannelTelegram,
		ExternalUserID: externalUserID,
		UserName:       update.Message.From.FirstName,
		Kind:           models.MessageText,
		Text:           update.Message.Text,
	}
	s.forward(r.Context(), msg)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// whatsappPayload mirrors the WhatsApp Cloud API webhook envelope shape
// named in §4.9.
type whatsappPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Timestamp string `json:"timestamp"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	token := resolveToken(r, "/api/v1/whatsapp/webhook/")

	if r.Method == http.MethodGet {
		s.handleWhatsAppVerification(w, r, token)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ch, ok := s.resolveChannel(w, r, token)
	if !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	if err := s.verifyWebhookSignature(r, body); err != nil {
		writeError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	var payload whatsappPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.Text.Body == "" {
					continue
				}
				msg := models.InboundMessage{
					TenantID:       ch.TenantID,
					SessionID:      fmt.Sprintf("whatsapp_%s", m.From),
					ChannelKind:    models.ChannelWhatsApp,
					ExternalUserID: m.From,
					Kind:           models.MessageText,
					Text:           m.Text.Body,
				}
				s.forward(r.Context(), msg)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleWhatsAppVerification answers the Meta hub.challenge handshake
// (§4.9 / §6: GET /api/v1/whatsapp/webhook/{token}).
func (s *Server) handleWhatsAppVerification(w http.ResponseWriter, r *http.Request, token string) {
	if _, ok := s.resolveChannel(w, r, token); !ok {
		return
	}
	mode := r.URL.Query().Get("hub.mode")
	challenge := r.URL.Query().Get("hub.challenge")
	verifyToken := r.URL.Query().Get("hub.verify_token")
	if mode != "subscribe" || verifyToken != s.cfg.WebhookSecret {
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}
	challengeNum, err := strconv.Atoi(challenge)
	if err != nil {
		writeError(w, http.StatusBadRequest, "hub.challenge must be an integer")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(strconv.Itoa(challengeNum)))
}

// genericMessageRequest is the body shape for POST /api/v1/messages, the
// channel-agnostic ingress path for channels without a dedicated webhook
// shape (e.g. a custom web widget).
type genericMessageRequest struct {
	TenantID       string `json:"tenant_id"`
	ChannelKind    string `json:"channel_kind"`
	ExternalUserID string `json:"external_user_id"`
	UserName       string `json:"user_name"`
	Text           string `json:"text"`
}

func (s *Server) handleGenericMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	var req genericMessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TenantID == "" || req.ExternalUserID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, external_user_id, and text are required")
		return
	}
	channel := models.ChannelKind(req.ChannelKind)
	if channel == "" {
		channel = models.ChannelWeb
	}

	msg := models.InboundMessage{
		TenantID:       req.TenantID,
		SessionID:      fmt.Sprintf("%s_%s", channel, req.ExternalUserID),
		ChannelKind:    channel,
		ExternalUserID: req.ExternalUserID,
		UserName:       req.UserName,
		Kind:           models.MessageText,
		Text:           req.Text,
	}

	reply, err := s.cfg.Orchestrator.Handle(r.Context(), msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "orchestration failed")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleProcess is the internal-only equivalent of handleGenericMessage,
// used for direct agent invocation bypassing channel framing entirely
// (§6: POST /process).
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var msg models.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, err := s.cfg.Orchestrator.Handle(r.Context(), msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "orchestration failed")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// forward hands an inbound webhook message to the orchestrator
// in-process (§4.9 step 5). The webhook response has already been
// decided independently of this call's outcome: providers expect 200
// once the payload is accepted, not once it's fully handled.
func (s *Server) forward(ctx context.Context, msg models.InboundMessage) {
	if _, err := s.cfg.Orchestrator.Handle(ctx, msg); err != nil && s.cfg.Logger != nil {
		s.cfg.Logger.Error(ctx, "webhook forward failed", "tenant_id", msg.TenantID, "session_id", msg.SessionID, "error", err)
	}
}
