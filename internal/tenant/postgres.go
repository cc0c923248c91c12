package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/convoyhq/convoy/pkg/models"
)

// Schema is the DDL backing PostgresStore, applied via the same migration
// tooling as internal/history.Schema (they share one database per §1).
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	plan         TEXT NOT NULL DEFAULT 'free',
	deactivated  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS channels (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL REFERENCES tenants(id),
	kind           TEXT NOT NULL,
	webhook_token  TEXT NOT NULL UNIQUE,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	extra_config   JSONB,
	message_count  BIGINT NOT NULL DEFAULT 0,
	last_activity  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_channels_tenant ON channels (tenant_id);

CREATE TABLE IF NOT EXISTS crm_bindings (
	tenant_id              TEXT PRIMARY KEY REFERENCES tenants(id),
	crm_kind               TEXT NOT NULL,
	encrypted_credentials  BYTEA NOT NULL,
	base_url               TEXT,
	remote_account_id      TEXT,
	extra_settings         JSONB
);

CREATE TABLE IF NOT EXISTS agent_policies (
	tenant_id            TEXT PRIMARY KEY REFERENCES tenants(id),
	business_desc        TEXT,
	working_hours        TEXT,
	address              TEXT,
	display_phone        TEXT,
	services             JSONB,
	products             JSONB,
	greeting             TEXT,
	farewell             TEXT,
	custom_instructions  TEXT,
	temperature          DOUBLE PRECISION NOT NULL DEFAULT 0.7,
	max_tokens           INTEGER NOT NULL DEFAULT 1024,
	model_name           TEXT,
	auto_booking         BOOLEAN NOT NULL DEFAULT FALSE
);
`

// PostgresStore implements Store against the shared database pool.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing pool (shared with internal/history).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	t := &models.Tenant{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, plan, deactivated, created_at FROM tenants WHERE id = $1
	`, tenantID).Scan(&t.ID, &t.Name, &t.Plan, &t.Deactivated, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenant: get tenant: %w", err)
	}
	return t, nil
}

func (p *PostgresStore) GetChannelByWebhookToken(ctx context.Context, token string) (*models.Channel, error) {
	ch := &models.Channel{}
	var extra []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, kind, webhook_token, is_active, extra_config, message_count, last_activity
		FROM channels WHERE webhook_token = $1
	`, token).Scan(&ch.ID, &ch.TenantID, &ch.Kind, &ch.WebhookToken, &ch.IsActive, &extra, &ch.MessageCount, &ch.LastActivity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenant: get channel: %w", err)
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &ch.ExtraConfig); err != nil {
			return nil, fmt.Errorf("tenant: unmarshal extra_config: %w", err)
		}
	}
	return ch, nil
}

func (p *PostgresStore) GetCRMBinding(ctx context.Context, tenantID string) (*models.CRMBinding, error) {
	b := &models.CRMBinding{}
	var extra []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT tenant_id, crm_kind, encrypted_credentials, base_url, remote_account_id, extra_settings
		FROM crm_bindings WHERE tenant_id = $1
	`, tenantID).Scan(&b.TenantID, &b.CRMKind, &b.EncryptedCredentials, &b.BaseURL, &b.RemoteAccountID, &extra)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenant: get crm binding: %w", err)
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &b.ExtraSettings); err != nil {
			return nil, fmt.Errorf("tenant: unmarshal extra_settings: %w", err)
		}
	}
	return b, nil
}

func (p *PostgresStore) GetAgentPolicy(ctx context.Context, tenantID string) (*models.AgentPolicy, error) {
	pol := &models.AgentPolicy{TenantID: tenantID}
	var services, products []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT business_desc, working_hours, address, display_phone, services, products,
			greeting, farewell, custom_instructions, temperature, max_tokens, model_name, auto_booking
		FROM agent_policies WHERE tenant_id = $1
	`, tenantID).Scan(
		&pol.BusinessDesc, &pol.WorkingHours, &pol.Address, &pol.DisplayPhone, &services, &products,
		&pol.Greeting, &pol.Farewell, &pol.CustomInstructions, &pol.Temperature, &pol.MaxTokens,
		&pol.ModelName, &pol.AutoBooking,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenant: get agent policy: %w", err)
	}
	if len(services) > 0 {
		if err := json.Unmarshal(services, &pol.Services); err != nil {
			return nil, fmt.Errorf("tenant: unmarshal services: %w", err)
		}
	}
	if len(products) > 0 {
		if err := json.Unmarshal(products, &pol.Products); err != nil {
			return nil, fmt.Errorf("tenant: unmarshal products: %w", err)
		}
	}
	return pol, nil
}
