// Package models defines the shared data model for the dialogue
// orchestration platform: tenants, channels, CRM bindings, agent policy,
// sessions, and messages. These types are persisted by internal/session
// (hot tier) and internal/history (durable tier) and passed between
// internal/orchestrator, internal/llm, and internal/crm.
package models

import (
	"encoding/json"
	"time"
)

// Plan is a tenant's subscription tier. It governs retention (§4.10) and
// rate-limit defaults.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Tenant is the billing and isolation unit. All runtime resources are
// tenant-scoped.
type Tenant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Plan         Plan      `json:"plan"`
	Deactivated  bool      `json:"deactivated"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChannelKind identifies a messaging transport.
type ChannelKind string

const (
	ChannelTelegram ChannelKind = "telegram"
	ChannelWhatsApp ChannelKind = "whatsapp"
	ChannelVoice    ChannelKind = "voice"
	ChannelWeb      ChannelKind = "web"
)

// Channel binds a webhook token to a tenant. WebhookToken is the sole
// ingress-time tenant identifier (§3) and must be treated as secret-grade.
type Channel struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	Kind         ChannelKind       `json:"kind"`
	WebhookToken string            `json:"-"`
	IsActive     bool              `json:"is_active"`
	ExtraConfig  map[string]string `json:"extra_config,omitempty"`
	MessageCount int64             `json:"message_count"`
	LastActivity time.Time         `json:"last_activity"`
}

// CRMKind identifies a vendor CRM adapter (§4.5).
type CRMKind string

const (
	CRMYclients CRMKind = "yclients"
	CRMAltegio  CRMKind = "altegio"
	CRMBitrix24 CRMKind = "bitrix24"
	CRMOneC     CRMKind = "1c_odata"
	CRMAmoCRM   CRMKind = "amocrm"
	CRMDikidi   CRMKind = "dikidi"
	CRMEasyWeek CRMKind = "easyweek"
)

// CRMBinding ties a tenant to a single vendor CRM account. Credentials
// are stored only in encrypted form; decryption happens exclusively in
// internal/orchestrator at request time (§4.2, §4.8).
type CRMBinding struct {
	TenantID             string            `json:"tenant_id"`
	CRMKind              CRMKind           `json:"crm_kind"`
	EncryptedCredentials []byte            `json:"-"`
	BaseURL              string            `json:"base_url"`
	RemoteAccountID       string            `json:"remote_account_id"`
	ExtraSettings        map[string]string `json:"extra_settings,omitempty"`
}

// CatalogueItem is a service or product entry in the tenant's agent
// policy prompt context.
type CatalogueItem struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price,omitempty"`
	DurationMin int     `json:"duration_min,omitempty"`
}

// AgentPolicy is the tenant-scoped prompt context and LLM knob set (§3).
// A missing policy yields DefaultAgentPolicy(tenantID), never a nil.
type AgentPolicy struct {
	TenantID           string          `json:"tenant_id"`
	BusinessDesc       string          `json:"business_description,omitempty"`
	WorkingHours       string          `json:"working_hours,omitempty"`
	Address            string          `json:"address,omitempty"`
	DisplayPhone       string          `json:"display_phone,omitempty"`
	Services           []CatalogueItem `json:"services,omitempty"`
	Products           []CatalogueItem `json:"products,omitempty"`
	Greeting           string          `json:"greeting,omitempty"`
	Farewell           string          `json:"farewell,omitempty"`
	CustomInstructions string          `json:"custom_instructions,omitempty"`
	Temperature        float64         `json:"temperature"`
	MaxTokens          int             `json:"max_tokens"`
	ModelName          string          `json:"model_name,omitempty"`
	AutoBooking        bool            `json:"auto_booking"`
}

// DefaultAgentPolicy returns the deterministic empty default required by
// §4.1 when a tenant has not configured a policy.
func DefaultAgentPolicy(tenantID string) AgentPolicy {
	return AgentPolicy{
		TenantID:    tenantID,
		Temperature: 0.7,
		MaxTokens:   1024,
		ModelName:   "",
	}
}

// ClampLLMKnobs enforces the §3 invariant that temperature and max_tokens
// are always clamped to provider-valid ranges before use.
func (p *AgentPolicy) ClampLLMKnobs() {
	if p.Temperature < 0 {
		p.Temperature = 0
	}
	if p.Temperature > 2 {
		p.Temperature = 2
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = 1024
	}
}

// PromptContext is the derived projection of AgentPolicy + tenant name
// used to compose the LLM system instruction (§4.1, §4.8 step 5).
type PromptContext struct {
	TenantName         string
	BusinessDesc       string
	WorkingHours       string
	Address            string
	DisplayPhone       string
	Services           []CatalogueItem
	Products           []CatalogueItem
	Greeting           string
	Farewell           string
	CustomInstructions string
}

// SessionState is the closed set of dialogue states (§3).
type SessionState string

const (
	StateInitiated     SessionState = "INITIATED"
	StateGreeting      SessionState = "GREETING"
	StateCollectingInfo SessionState = "COLLECTING_INFO"
	StateConsulting    SessionState = "CONSULTING"
	StateBooking       SessionState = "BOOKING"
	StateConfirming    SessionState = "CONFIRMING"
	StateCompleted     SessionState = "COMPLETED"
	StateFailed        SessionState = "FAILED"
)

// Terminal reports whether state is a terminal state (§3 invariant: once
// COMPLETED or FAILED, no further LLM call may mutate state implicitly).
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// FunctionResult records one executed tool call within a session's
// context (§4.8 step 8, tool_call branch).
type FunctionResult struct {
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// SlotSelection is the user's chosen appointment slot, once picked.
type SlotSelection struct {
	Date       string `json:"date"`
	Time       string `json:"time"`
	EmployeeID string `json:"employee_id,omitempty"`
}

// SessionContext is the small structured bag of collected fields (§3).
type SessionContext struct {
	Name            string           `json:"name,omitempty"`
	Phone           string           `json:"phone,omitempty"`
	DesiredService  string           `json:"desired_service,omitempty"`
	SelectedSlot    *SlotSelection   `json:"selected_slot,omitempty"`
	AppointmentID   string           `json:"appointment_id,omitempty"`
	ClientID        string           `json:"client_id,omitempty"`
	FunctionResults []FunctionResult `json:"function_results,omitempty"`
}

// HasAnyContactInfo reports whether any of the §4.8 transition fields
// (desired_service, name, phone) are present.
func (c *SessionContext) HasAnyContactInfo() bool {
	return c.DesiredService != "" || c.Name != "" || c.Phone != ""
}

// HasAllContactInfo reports whether name, phone, and desired_service are
// all present (GREETING -> COLLECTING_INFO -> BOOKING gate, §4.8).
func (c *SessionContext) HasAllContactInfo() bool {
	return c.Name != "" && c.Phone != "" && c.DesiredService != ""
}

// Session is one conversation with one end-user on one channel (§3).
type Session struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	ExternalUserID    string          `json:"external_user_id"`
	ChannelKind       ChannelKind     `json:"channel_kind"`
	State             SessionState    `json:"state"`
	Context           SessionContext  `json:"context"`
	CRMClientRef      string          `json:"crm_client_ref,omitempty"`
	CRMAppointmentRef string          `json:"crm_appointment_ref,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	LastActivity      time.Time       `json:"last_activity"`
	TTL               time.Duration   `json:"-"`
}

// MessageKind is the content kind of an inbound/outbound message (§3).
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageAudio    MessageKind = "audio"
	MessageImage    MessageKind = "image"
	MessageVideo    MessageKind = "video"
	MessageDocument MessageKind = "document"
	MessageLocation MessageKind = "location"
	MessageContact  MessageKind = "contact"
)

// Message is a durable message record (§3, §4.7).
type Message struct {
	ID           string            `json:"id"`
	SessionID    string            `json:"session_id"`
	TenantID     string            `json:"tenant_id"`
	ChannelKind  ChannelKind       `json:"channel_kind"`
	Kind         MessageKind       `json:"kind"`
	Text         string            `json:"text,omitempty"`
	MediaURL     string            `json:"media_url,omitempty"`
	IsFromBot    bool              `json:"is_from_bot"`
	FromUserID   string            `json:"from_user_id,omitempty"`
	FromUserName string            `json:"from_user_name,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// HistoryRole is the role tag of a hot conversation-history entry (§3).
// Narrower than the durable Message taxonomy: the LLM conversation loop
// only ever sees "user" and "model" turns.
type HistoryRole string

const (
	RoleUser  HistoryRole = "user"
	RoleModel HistoryRole = "model"
)

// HistoryEntry is one hot conversation-history turn, bounded at N_hist
// entries per session (§3, §4.6).
type HistoryEntry struct {
	Role HistoryRole `json:"role"`
	Text string      `json:"text"`
}

// InboundMessage is the neutral message shape produced by C9 ingress and
// consumed by C8 orchestration (§4.9 step 4).
type InboundMessage struct {
	TenantID       string
	SessionID      string
	ChannelKind    ChannelKind
	ExternalUserID string
	UserName       string
	Kind           MessageKind
	Text           string
	MediaURL       string
	Metadata       map[string]string
}
