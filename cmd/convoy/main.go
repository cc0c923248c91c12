// Command convoy is the platform's single binary: the HTTP gateway
// (serve) and the retention sweep/estimate jobs. Grounded on the
// teacher's cmd/nexus/main.go cobra root-command bootstrap, but the
// serve command's body here is fully wired rather than the teacher's
// TODO-stubbed component list.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq"

	"github.com/convoyhq/convoy/internal/analytics"
	"github.com/convoyhq/convoy/internal/config"
	"github.com/convoyhq/convoy/internal/crm"
	"github.com/convoyhq/convoy/internal/crm/altegio"
	"github.com/convoyhq/convoy/internal/crm/amocrm"
	"github.com/convoyhq/convoy/internal/crm/bitrix24"
	"github.com/convoyhq/convoy/internal/crm/dikidi"
	"github.com/convoyhq/convoy/internal/crm/easyweek"
	"github.com/convoyhq/convoy/internal/crm/onec"
	"github.com/convoyhq/convoy/internal/crm/yclients"
	"github.com/convoyhq/convoy/internal/gateway"
	"github.com/convoyhq/convoy/internal/history"
	"github.com/convoyhq/convoy/internal/llm"
	"github.com/convoyhq/convoy/internal/llm/anthropic"
	"github.com/convoyhq/convoy/internal/llm/openai"
	"github.com/convoyhq/convoy/internal/observability"
	"github.com/convoyhq/convoy/internal/orchestrator"
	"github.com/convoyhq/convoy/internal/ratelimit"
	"github.com/convoyhq/convoy/internal/retention"
	"github.com/convoyhq/convoy/internal/session"
	"github.com/convoyhq/convoy/internal/tenant"
	"github.com/convoyhq/convoy/internal/tools"
	"github.com/convoyhq/convoy/internal/vault"
	"github.com/convoyhq/convoy/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "convoy",
		Short:         "Multi-tenant dialogue-orchestration platform",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")

	root.AddCommand(
		buildServeCmd(&configPath),
		buildRetentionCmd(&configPath),
		buildVersionCmd(),
	)
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("convoy %s (%s)\n", version, commit)
			return nil
		},
	}
}

func buildServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Long: `Start the dialogue-orchestration gateway.

The server will:
1. Load and validate configuration
2. Open the durable store connection pool
3. Construct the tenant registry, vault, CRM adapter registry, tool
   catalogue, and LLM provider
4. Start the HTTP gateway: webhook ingress, rate limiting, and the
   API-key-protected admin surface

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func buildRetentionCmd(configPath *string) *cobra.Command {
	var tenantID string
	var messagesDays, sessionsDays int

	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Run retention cleanup jobs out of band",
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Delete data older than each tenant's plan-determined retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetentionSweep(cmd.Context(), *configPath)
		},
	}

	estimate := &cobra.Command{
		Use:   "estimate",
		Short: "Report how much data a cleanup for one tenant would delete, without deleting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetentionEstimate(cmd.Context(), *configPath, tenantID, messagesDays, sessionsDays)
		},
	}
	estimate.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	estimate.Flags().IntVar(&messagesDays, "messages-days", 30, "messages retention window in days")
	estimate.Flags().IntVar(&sessionsDays, "sessions-days", 30, "sessions retention window in days")
	_ = estimate.MarkFlagRequired("tenant")

	cmd.AddCommand(sweep, estimate)
	return cmd
}

// platform bundles every collaborator the gateway and the retention
// jobs need, so serve/retention share one bootstrap path.
type platform struct {
	cfg       *config.Config
	db        *sql.DB
	logger    *observability.Logger
	metrics   *observability.Metrics
	histStore *history.Store
	tenants   *tenant.Registry
	retention *retention.Engine
	analytics *analytics.Reporter
}

func bootstrap(ctx context.Context, configPath string) (*platform, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
		Output: os.Stderr,
	})
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	dbCfg := history.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	}
	histStore, err := history.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}

	tenantStore := tenant.NewPostgresStore(histStore.DB())
	tenants := tenant.New(tenantStore)
	retentionEngine := retention.New(histStore, cfg.Retention)
	analyticsReporter := analytics.New(histStore)

	return &platform{
		cfg:       cfg,
		db:        histStore.DB(),
		logger:    logger,
		metrics:   metrics,
		histStore: histStore,
		tenants:   tenants,
		retention: retentionEngine,
		analytics: analyticsReporter,
	}, nil
}

func runServe(ctx context.Context, configPath string) error {
	p, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.histStore.Close()

	v, err := vault.New(vault.Config{Secret: p.cfg.Vault.MasterSecret, Salt: p.cfg.Vault.Salt})
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	provider, err := buildLLMProvider(p.cfg.LLM)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		Tenants:     p.tenants,
		Vault:       v,
		CRMRegistry: buildCRMRegistry(),
		Sessions:    session.NewMemoryStore(),
		Locker:      session.NewLocker(session.DefaultLockTimeout),
		History:     p.histStore,
		Provider:    provider,
		Tools:       tools.NewRegistry(),
		Logger:      p.logger,
		Metrics:     p.metrics,
	})

	gw := gateway.New(gateway.Config{
		Host:           p.cfg.Server.Host,
		Port:           p.cfg.Server.HTTPPort,
		Orchestrator:   orch,
		Tenants:        p.tenants,
		HistoryStore:   p.histStore,
		Analytics:      p.analytics,
		Retention:      p.retention,
		RateLimitStore: ratelimit.NewMemoryStore(100_000),
		RateLimits: gateway.PathClassLimits{
			Health:        p.cfg.RateLimit.HealthPerMinute,
			Webhook:       p.cfg.RateLimit.WebhookPerMinute,
			Authenticated: p.cfg.RateLimit.AuthPerMinute,
			Default:       p.cfg.RateLimit.DefaultPerMinute,
		},
		APIKey:        p.cfg.Auth.APIKey,
		WebhookSecret: p.cfg.Auth.WebhookSecret,
		ReplayWindow:  p.cfg.Auth.ReplayWindow,
		Logger:        p.logger,
		StartTime:     time.Now(),
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}
	p.logger.Info(ctx, "convoy gateway started",
		"version", version, "commit", commit,
		"addr", fmt.Sprintf("%s:%d", p.cfg.Server.Host, p.cfg.Server.HTTPPort))

	<-ctx.Done()
	p.logger.Info(ctx, "shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	p.logger.Info(ctx, "convoy gateway stopped")
	return nil
}

func runRetentionSweep(ctx context.Context, configPath string) error {
	p, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.histStore.Close()

	tenantIDs, err := listAllTenantIDs(ctx, p.db)
	if err != nil {
		return fmt.Errorf("list tenants for sweep: %w", err)
	}

	results := p.retention.Sweep(ctx, tenantIDs, func(tenantID string) retention.Policy {
		plan := planForTenant(ctx, p.db, tenantID)
		days := p.retention.DefaultDaysForPlan(plan)
		return retention.Policy{MessagesRetentionDays: days, SessionsRetentionDays: days}
	})

	for _, r := range results {
		if r.Err != nil {
			p.logger.Error(ctx, "retention sweep failed for tenant", "tenant_id", r.TenantID, "error", r.Err)
			continue
		}
		p.logger.Info(ctx, "retention sweep completed for tenant",
			"tenant_id", r.TenantID, "messages_deleted", r.Counts.MessagesDeleted, "sessions_deleted", r.Counts.SessionsDeleted)
	}
	return nil
}

func runRetentionEstimate(ctx context.Context, configPath, tenantID string, messagesDays, sessionsDays int) error {
	p, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.histStore.Close()

	counts, err := p.retention.Estimate(ctx, tenantID, retention.Policy{
		MessagesRetentionDays: messagesDays,
		SessionsRetentionDays: sessionsDays,
	})
	if err != nil {
		return err
	}
	fmt.Printf("tenant=%s messages_to_delete=%d sessions_to_delete=%d\n", tenantID, counts.MessagesDeleted, counts.SessionsDeleted)
	return nil
}

func buildLLMProvider(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.New(openai.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			MaxRetries:   cfg.MaxRetries,
		})
	default:
		return anthropic.New(anthropic.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			MaxRetries:   cfg.MaxRetries,
		})
	}
}

// buildCRMRegistry wires every vendor adapter from the example pack
// into a construction-only registry (§4.5). This wiring cannot live in
// internal/crm itself without an import cycle — package crm owns the
// Registry type, and each vendor package already imports crm for
// Adapter/Credentials, so crm importing every vendor back would cycle.
func buildCRMRegistry() *crm.Registry {
	r := crm.NewRegistry()
	r.Register(models.CRMYclients, yclients.New)
	r.Register(models.CRMAltegio, altegio.New)
	r.Register(models.CRMBitrix24, bitrix24.New)
	r.Register(models.CRMOneC, onec.New)
	r.Register(models.CRMAmoCRM, amocrm.New)
	r.Register(models.CRMDikidi, dikidi.New)
	r.Register(models.CRMEasyWeek, easyweek.New)
	return r
}

func listAllTenantIDs(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM tenants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func planForTenant(ctx context.Context, db *sql.DB, tenantID string) retention.Plan {
	var plan string
	if err := db.QueryRowContext(ctx, `SELECT plan FROM tenants WHERE id = $1`, tenantID).Scan(&plan); err != nil {
		return retention.PlanFree
	}
	return retention.Plan(plan)
}

