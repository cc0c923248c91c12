// Package orchestrator implements the C8 core loop: tenant resolution,
// policy load, session state, one LLM turn with tool dispatch, and the
// §4.8 state transition table — grounded on the teacher's
// agent.AgenticLoop (turn structure: assemble history, call provider,
// branch on tool-call vs text) and internal/sessions.Locker (per-key
// serialization), collapsed from a multi-iteration streaming loop to
// the single-request-single-turn contract §4.8 actually specifies.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convoyhq/convoy/internal/crm"
	"github.com/convoyhq/convoy/internal/history"
	"github.com/convoyhq/convoy/internal/llm"
	"github.com/convoyhq/convoy/internal/observability"
	"github.com/convoyhq/convoy/internal/session"
	"github.com/convoyhq/convoy/internal/tenant"
	"github.com/convoyhq/convoy/internal/tools"
	"github.com/convoyhq/convoy/internal/vault"
	"github.com/convoyhq/convoy/pkg/models"
)

// Orchestrator runs one request's worth of the §4.8 algorithm: tenant
// and policy resolution, session load/create, a single LLM turn, tool
// dispatch, the deterministic state transition table, and persistence.
// CRM credential decryption happens here rather than in internal/tenant,
// keeping the tenant store ignorant of key material.
type Orchestrator struct {
	tenants  *tenant.Registry
	vault    *vault.Vault
	crms     *crm.Registry
	sessions session.Store
	locker   *session.Locker
	history  *history.Store
	provider llm.Provider
	tools    *tools.Registry
	logger   *observability.Logger
	metrics  *observability.Metrics

	fallbackText string
}

// Config bundles an Orchestrator's collaborators.
type Config struct {
	Tenants      *tenant.Registry
	Vault        *vault.Vault
	CRMRegistry  *crm.Registry
	Sessions     session.Store
	Locker       *session.Locker
	History      *history.Store
	Provider     llm.Provider
	Tools        *tools.Registry
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	FallbackText string
}

// New constructs an Orchestrator from its collaborators.
func New(cfg Config) *Orchestrator {
	fallback := cfg.FallbackText
	if fallback == "" {
		fallback = "Sorry, something went wrong on our end. Could you try again?"
	}
	locker := cfg.Locker
	if locker == nil {
		locker = session.NewLocker(session.DefaultLockTimeout)
	}
	return &Orchestrator{
		tenants:      cfg.Tenants,
		vault:        cfg.Vault,
		crms:         cfg.CRMRegistry,
		sessions:     cfg.Sessions,
		locker:       locker,
		history:      cfg.History,
		provider:     cfg.Provider,
		tools:        cfg.Tools,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		fallbackText: fallback,
	}
}

// Reply is the orchestrator's response to one inbound message (§4.8
// step 8's dispatch shape).
type Reply struct {
	Text           string
	FunctionCalled bool
	NeedsFollowup  bool
	FunctionName   string
	FunctionResult json.RawMessage
	SessionState   models.SessionState
}

// Handle runs the full §4.8 loop for one inbound message.
func (o *Orchestrator) Handle(ctx context.Context, msg models.InboundMessage) (*Reply, error) {
	start := time.Now()
	if msg.TenantID == "" {
		return nil, validationErr(ErrMissingTenant)
	}

	release, err := o.locker.Acquire(ctx, msg.SessionID)
	if err != nil {
		return nil, transportErr(fmt.Errorf("acquire session lock: %w", err))
	}
	defer release()

	reply, handleErr := o.handleLocked(ctx, msg)
	if o.metrics != nil {
		state := string(models.StateFailed)
		if reply != nil {
			state = string(reply.SessionState)
		}
		o.metrics.OrchestratorTurns.WithLabelValues(state).Inc()
		o.metrics.OrchestratorTurnDuration.WithLabelValues(string(msg.ChannelKind)).Observe(time.Since(start).Seconds())
	}
	if handleErr != nil {
		o.logError(ctx, msg, handleErr)
		return &Reply{Text: o.fallbackText, SessionState: models.StateFailed}, handleErr
	}
	return reply, nil
}

func (o *Orchestrator) handleLocked(ctx context.Context, msg models.InboundMessage) (*Reply, error) {
	binding, err := o.tenants.LoadCRMBinding(ctx, msg.TenantID)
	if err != nil {
		return nil, configErr(fmt.Errorf("load CRM binding: %w", err))
	}
	if binding == nil {
		return nil, configErr(fmt.Errorf("tenant %s has no CRM binding configured", msg.TenantID))
	}

	promptCtx, err := o.tenants.LoadCompanyPromptContext(ctx, msg.TenantID)
	if err != nil {
		return nil, configErr(fmt.Errorf("load prompt context: %w", err))
	}

	policy, err := o.tenants.LoadAgentPolicy(ctx, msg.TenantID)
	if err != nil {
		return nil, configErr(fmt.Errorf("load agent policy: %w", err))
	}

	adapter, err := o.buildAdapter(binding)
	if err != nil {
		return nil, configErr(err)
	}

	sess, err := o.loadOrCreateSession(ctx, msg)
	if err != nil {
		return nil, transportErr(fmt.Errorf("load session: %w", err))
	}

	hist, err := o.sessions.GetHistory(ctx, sess.ID)
	if err != nil && err != session.ErrNotFound {
		return nil, transportErr(fmt.Errorf("load history: %w", err))
	}
	if _, err := o.sessions.AppendHistory(ctx, sess.ID, models.HistoryEntry{Role: models.RoleUser, Text: msg.Text}); err != nil {
		return nil, transportErr(fmt.Errorf("append inbound history: %w", err))
	}

	llmReq := llm.Request{
		System:  composeSystemInstruction(promptCtx, sess),
		History: toLLMHistory(hist, msg.Text),
		Tools:   o.tools.Export(),
		Knobs:   llm.GenKnobs{Model: policy.ModelName, Temperature: policy.Temperature, MaxTokens: policy.MaxTokens},
	}

	genResp, err := o.provider.Generate(ctx, llmReq)
	if err != nil {
		return nil, transportErr(fmt.Errorf("llm generate: %w", err))
	}
	if genResp.FinishReason == llm.FinishError {
		return nil, protocolErr(llm.ErrEmptyResponse)
	}

	reply, err := o.dispatch(ctx, sess, adapter, genResp)
	if err != nil {
		sess.State = models.StateFailed
		o.persistBestEffort(ctx, sess, msg)
		return nil, err
	}

	applyStateTransition(sess)
	reply.SessionState = sess.State

	if err := o.persist(ctx, sess, msg, reply); err != nil {
		return nil, transportErr(fmt.Errorf("persist: %w", err))
	}
	return reply, nil
}

func (o *Orchestrator) buildAdapter(binding *models.CRMBinding) (crm.Adapter, error) {
	creds := crm.Credentials{BaseURL: binding.BaseURL, RemoteAccountID: binding.RemoteAccountID}
	if len(binding.EncryptedCredentials) > 0 {
		plaintext, err := o.vault.Decrypt(binding.EncryptedCredentials)
		if err != nil {
			return nil, fmt.Errorf("decrypt CRM credentials: %w", err)
		}
		var secrets map[string]string
		if err := json.Unmarshal(plaintext, &secrets); err != nil {
			return nil, fmt.Errorf("decode CRM credentials: %w", err)
		}
		creds.Secrets = secrets
	}
	adapter, err := o.crms.Build(binding.CRMKind, creds)
	if err != nil {
		return nil, fmt.Errorf("build CRM adapter: %w", err)
	}
	return adapter, nil
}

func (o *Orchestrator) loadOrCreateSession(ctx context.Context, msg models.InboundMessage) (*models.Session, error) {
	if msg.SessionID != "" {
		sess, err := o.sessions.Get(ctx, msg.SessionID)
		if err == nil {
			sess.LastActivity = time.Now()
			return sess, nil
		}
		if err != session.ErrNotFound {
			return nil, err
		}
	}

	sess := &models.Session{
		ID:             msg.SessionID,
		TenantID:       msg.TenantID,
		ExternalUserID: msg.ExternalUserID,
		ChannelKind:    msg.ChannelKind,
		State:          models.StateInitiated,
		CreatedAt:      time.Now(),
		LastActivity:   time.Now(),
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if err := o.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, sess *models.Session, adapter crm.Adapter, resp *llm.Response) (*Reply, error) {
	switch resp.FinishReason {
	case llm.FinishText:
		if _, err := o.sessions.AppendHistory(ctx, sess.ID, models.HistoryEntry{Role: models.RoleModel, Text: resp.Text}); err != nil {
			return nil, transportErr(fmt.Errorf("append outbound history: %w", err))
		}
		return &Reply{Text: resp.Text, FunctionCalled: false}, nil

	case llm.FinishToolCall:
		result, err := o.tools.Execute(ctx, adapter, resp.ToolCall.Name, resp.ToolCall.Args)
		if err != nil {
			return nil, transportErr(fmt.Errorf("tool execute: %w", err))
		}
		fr := models.FunctionResult{Tool: resp.ToolCall.Name, Timestamp: time.Now()}
		if argsRaw, err := json.Marshal(resp.ToolCall.Args); err == nil {
			fr.Args = argsRaw
		}
		if result.IsError {
			fr.Error = result.Message
		} else {
			fr.Result = result.Content
			applyToolArgsToContext(sess, resp.ToolCall.Name, resp.ToolCall.Args)
			applyFunctionResultToContext(sess, resp.ToolCall.Name, result.Content)
		}
		sess.Context.FunctionResults = append(sess.Context.FunctionResults, fr)

		return &Reply{
			FunctionCalled: true,
			NeedsFollowup:  true,
			FunctionName:   resp.ToolCall.Name,
			FunctionResult: result.Content,
		}, nil

	default:
		return nil, protocolErr(fmt.Errorf("unrecognized finish reason: %s", resp.FinishReason))
	}
}

func (o *Orchestrator) persist(ctx context.Context, sess *models.Session, msg models.InboundMessage, reply *Reply) error {
	if err := o.sessions.Put(ctx, sess); err != nil {
		return err
	}
	if o.history == nil {
		return nil
	}
	if err := o.history.PutSession(ctx, sess); err != nil {
		return err
	}
	inbound := &models.Message{
		SessionID: sess.ID, TenantID: sess.TenantID, ChannelKind: msg.ChannelKind,
		Kind: msg.Kind, Text: msg.Text, FromUserID: msg.ExternalUserID, FromUserName: msg.UserName,
	}
	if err := o.history.AppendMessage(ctx, inbound); err != nil {
		return err
	}
	if reply.Text != "" {
		outbound := &models.Message{
			SessionID: sess.ID, TenantID: sess.TenantID, ChannelKind: msg.ChannelKind,
			Kind: models.MessageText, Text: reply.Text, IsFromBot: true,
		}
		if err := o.history.AppendMessage(ctx, outbound); err != nil {
			return err
		}
	}
	return nil
}

// persistBestEffort is used on the failure path (§4.8 step 11): the
// inbound message and a failed-session record are still written so
// nothing silently vanishes, but errors here are swallowed since the
// caller is already returning a failure.
func (o *Orchestrator) persistBestEffort(ctx context.Context, sess *models.Session, msg models.InboundMessage) {
	_ = o.sessions.Put(ctx, sess)
	if o.history == nil {
		return
	}
	_ = o.history.PutSession(ctx, sess)
	_ = o.history.AppendMessage(ctx, &models.Message{
		SessionID: sess.ID, TenantID: sess.TenantID, ChannelKind: msg.ChannelKind,
		Kind: msg.Kind, Text: msg.Text, FromUserID: msg.ExternalUserID, FromUserName: msg.UserName,
	})
}

func (o *Orchestrator) logError(ctx context.Context, msg models.InboundMessage, err error) {
	if o.logger == nil {
		return
	}
	class := ClassTransport
	if ce, ok := err.(*ClassifiedError); ok {
		class = ce.Class
	}
	o.logger.Error(ctx, "orchestrator turn failed",
		"tenant_id", msg.TenantID, "session_id", msg.SessionID, "error_class", string(class))
}

func toLLMHistory(hist []models.HistoryEntry, latestUserText string) []llm.Message {
	out := make([]llm.Message, 0, len(hist)+1)
	for _, h := range hist {
		out = append(out, llm.Message{Role: string(h.Role), Text: h.Text})
	}
	out = append(out, llm.Message{Role: "user", Text: latestUserText})
	return out
}
