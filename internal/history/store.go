// Package history implements the durable tier (C4, §4.4): transactional
// Postgres storage for messages and sessions, paginated reads, retention
// deletes, and the aggregation queries C11 builds on.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/convoyhq/convoy/pkg/models"
)

// Config configures the connection pool, following the teacher's
// CockroachConfig knobs (§4.4: "connection pooling, prepared statements").
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// DefaultConfig returns sane pool defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
}

// Store is the durable-tier Postgres implementation. Statements are
// prepared once at construction for reuse across requests.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration

	stmtInsertMessage   *sql.Stmt
	stmtUpsertSession   *sql.Stmt
	stmtGetSession      *sql.Stmt
	stmtMessagesPage    *sql.Stmt
	stmtCountByTenant   *sql.Stmt
	stmtDeleteMessages  *sql.Stmt
	stmtDeleteSessions  *sql.Stmt

	stmtCountMessagesOlder *sql.Stmt
	stmtCountSessionsOlder *sql.Stmt
	stmtDeleteMessagesByTenant *sql.Stmt
	stmtDeleteSessionsByTenant *sql.Stmt
	stmtDeleteAllMessages      *sql.Stmt
	stmtDeleteAllSessions      *sql.Stmt
}

// Open connects to Postgres, verifies reachability, configures the pool,
// and prepares all statements.
func Open(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("history: database URL is required")
	}
	defaults := DefaultConfig()
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaults.MaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaults.MaxIdleConns
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaults.QueryTimeout
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	s := &Store{db: db, queryTimeout: cfg.QueryTimeout}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: prepare statements: %w", err)
	}
	return s, nil
}

func (s *Store) prepareStatements() error {
	var err error

	s.stmtInsertMessage, err = s.db.Prepare(`
		INSERT INTO messages (id, session_id, tenant_id, channel_kind, kind, text, media_url,
			is_from_bot, from_user_id, from_user_name, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	s.stmtUpsertSession, err = s.db.Prepare(`
		INSERT INTO sessions (id, tenant_id, external_user_id, channel_kind, state, context,
			crm_client_ref, crm_appointment_ref, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			context = EXCLUDED.context,
			crm_client_ref = EXCLUDED.crm_client_ref,
			crm_appointment_ref = EXCLUDED.crm_appointment_ref,
			last_activity = EXCLUDED.last_activity
	`)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	s.stmtGetSession, err = s.db.Prepare(`
		SELECT id, tenant_id, external_user_id, channel_kind, state, context,
			crm_client_ref, crm_appointment_ref, created_at, last_activity
		FROM sessions WHERE id = $1
	`)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	s.stmtMessagesPage, err = s.db.Prepare(`
		SELECT id, session_id, tenant_id, channel_kind, kind, text, media_url,
			is_from_bot, from_user_id, from_user_name, metadata, created_at
		FROM messages
		WHERE session_id = $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`)
	if err != nil {
		return fmt.Errorf("messages page: %w", err)
	}

	s.stmtCountByTenant, err = s.db.Prepare(`
		SELECT COUNT(*) FROM sessions WHERE tenant_id = $1
	`)
	if err != nil {
		return fmt.Errorf("count by tenant: %w", err)
	}

	s.stmtDeleteMessages, err = s.db.Prepare(`
		DELETE FROM messages WHERE session_id IN (
			SELECT id FROM sessions WHERE tenant_id = $1 AND created_at < $2 LIMIT $3
		)
	`)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	s.stmtDeleteSessions, err = s.db.Prepare(`
		DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions WHERE tenant_id = $1 AND created_at < $2 LIMIT $3
		)
	`)
	if err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}

	s.stmtCountMessagesOlder, err = s.db.Prepare(`
		SELECT COUNT(*) FROM messages WHERE tenant_id = $1 AND created_at < $2
	`)
	if err != nil {
		return fmt.Errorf("count messages older: %w", err)
	}

	s.stmtCountSessionsOlder, err = s.db.Prepare(`
		SELECT COUNT(*) FROM sessions WHERE tenant_id = $1 AND created_at < $2
	`)
	if err != nil {
		return fmt.Errorf("count sessions older: %w", err)
	}

	s.stmtDeleteMessagesByTenant, err = s.db.Prepare(`
		DELETE FROM messages WHERE id IN (
			SELECT id FROM messages WHERE tenant_id = $1 AND created_at < $2 LIMIT $3
		)
	`)
	if err != nil {
		return fmt.Errorf("delete messages by tenant: %w", err)
	}

	s.stmtDeleteSessionsByTenant, err = s.db.Prepare(`
		DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions WHERE tenant_id = $1 AND created_at < $2 LIMIT $3
		)
	`)
	if err != nil {
		return fmt.Errorf("delete sessions by tenant: %w", err)
	}

	s.stmtDeleteAllMessages, err = s.db.Prepare(`DELETE FROM messages WHERE tenant_id = $1`)
	if err != nil {
		return fmt.Errorf("delete all messages: %w", err)
	}

	s.stmtDeleteAllSessions, err = s.db.Prepare(`DELETE FROM sessions WHERE tenant_id = $1`)
	if err != nil {
		return fmt.Errorf("delete all sessions: %w", err)
	}

	return nil
}

// Close releases the prepared statements and the underlying pool.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{
		s.stmtInsertMessage, s.stmtUpsertSession, s.stmtGetSession,
		s.stmtMessagesPage, s.stmtCountByTenant, s.stmtDeleteMessages, s.stmtDeleteSessions,
		s.stmtCountMessagesOlder, s.stmtCountSessionsOlder,
		s.stmtDeleteMessagesByTenant, s.stmtDeleteSessionsByTenant,
		s.stmtDeleteAllMessages, s.stmtDeleteAllSessions,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

// DB exposes the pool for packages sharing it (tenant registry, analytics).
func (s *Store) DB() *sql.DB { return s.db }

// PutSession upserts a session snapshot (§4.4: "every state transition is
// durably persisted").
func (s *Store) PutSession(ctx context.Context, sess *models.Session) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	ctxJSON, err := json.Marshal(sess.Context)
	if err != nil {
		return fmt.Errorf("history: marshal context: %w", err)
	}

	_, err = s.stmtUpsertSession.ExecContext(ctx,
		sess.ID, sess.TenantID, sess.ExternalUserID, sess.ChannelKind, sess.State, ctxJSON,
		sess.CRMClientRef, sess.CRMAppointmentRef, sess.CreatedAt, sess.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("history: put session: %w", err)
	}
	return nil
}

// GetSession retrieves one durable session snapshot by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	sess := &models.Session{}
	var ctxJSON []byte
	err := s.stmtGetSession.QueryRowContext(ctx, id).Scan(
		&sess.ID, &sess.TenantID, &sess.ExternalUserID, &sess.ChannelKind, &sess.State, &ctxJSON,
		&sess.CRMClientRef, &sess.CRMAppointmentRef, &sess.CreatedAt, &sess.LastActivity,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("history: session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("history: get session: %w", err)
	}
	if len(ctxJSON) > 0 {
		if err := json.Unmarshal(ctxJSON, &sess.Context); err != nil {
			return nil, fmt.Errorf("history: unmarshal context: %w", err)
		}
	}
	return sess, nil
}

// AppendMessage durably records one message (§4.4). Every write to this
// store is transactional at the statement level via Postgres's own
// implicit per-statement atomicity; compound writes use WithTx.
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("history: marshal metadata: %w", err)
	}

	_, err = s.stmtInsertMessage.ExecContext(ctx,
		msg.ID, msg.SessionID, msg.TenantID, msg.ChannelKind, msg.Kind, msg.Text, msg.MediaURL,
		msg.IsFromBot, msg.FromUserID, msg.FromUserName, metadataJSON, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("history: append message: %w", err)
	}
	return nil
}

// Page is one page of durable messages, newest-first within the page but
// ascending once the caller reverses it (§4.4 pagination contract).
type Page struct {
	Messages []*models.Message
	NextCursor time.Time
	HasMore    bool
}

// ListMessages returns a page of messages for a session older than
// `before` (zero value means "now"), newest first, size-bounded by
// pageSize (§4.4 cursor-based pagination to avoid OFFSET drift).
func (s *Store) ListMessages(ctx context.Context, sessionID string, before time.Time, pageSize int) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if before.IsZero() {
		before = time.Now().Add(time.Hour)
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	rows, err := s.stmtMessagesPage.QueryContext(ctx, sessionID, before, pageSize+1)
	if err != nil {
		return nil, fmt.Errorf("history: list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var metadataJSON []byte
		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &msg.TenantID, &msg.ChannelKind, &msg.Kind, &msg.Text, &msg.MediaURL,
			&msg.IsFromBot, &msg.FromUserID, &msg.FromUserName, &metadataJSON, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("history: scan message: %w", err)
		}
		if len(metadataJSON) > 0 && string(metadataJSON) != "null" {
			if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("history: unmarshal metadata: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}

	page := &Page{Messages: out}
	if len(out) > pageSize {
		page.HasMore = true
		page.Messages = out[:pageSize]
	}
	if len(page.Messages) > 0 {
		page.NextCursor = page.Messages[len(page.Messages)-1].CreatedAt
	}
	return page, nil
}

// SessionFilter narrows ListSessionsForTenant (§6 GET /sessions query
// params). Zero values are "no filter".
type SessionFilter struct {
	Channel   string
	State     string
	StartDate time.Time
	EndDate   time.Time
	Page      int
	PerPage   int
}

// SessionPage is one page of the admin session listing.
type SessionPage struct {
	Sessions []*models.Session
	Total    int
}

// ListSessionsForTenant runs an ad hoc filtered, paginated query over
// sessions for the admin API (§6 GET /sessions). Filters are applied
// additively; unset fields are skipped. Not a hot path, so unlike
// AppendMessage/PutSession this isn't a prepared statement.
func (s *Store) ListSessionsForTenant(ctx context.Context, tenantID string, f SessionFilter) (*SessionPage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	page, perPage := f.Page, f.PerPage
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	where := "WHERE tenant_id = $1"
	args := []any{tenantID}
	if f.Channel != "" {
		args = append(args, f.Channel)
		where += fmt.Sprintf(" AND channel_kind = $%d", len(args))
	}
	if f.State != "" {
		args = append(args, f.State)
		where += fmt.Sprintf(" AND state = $%d", len(args))
	}
	if !f.StartDate.IsZero() {
		args = append(args, f.StartDate)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !f.EndDate.IsZero() {
		args = append(args, f.EndDate)
		where += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("history: count sessions for listing: %w", err)
	}

	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`
		SELECT id, tenant_id, external_user_id, channel_kind, state, context,
		       crm_client_ref, crm_appointment_ref, created_at, last_activity
		FROM sessions %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess := &models.Session{}
		var ctxJSON []byte
		if err := rows.Scan(
			&sess.ID, &sess.TenantID, &sess.ExternalUserID, &sess.ChannelKind, &sess.State, &ctxJSON,
			&sess.CRMClientRef, &sess.CRMAppointmentRef, &sess.CreatedAt, &sess.LastActivity,
		); err != nil {
			return nil, fmt.Errorf("history: scan session: %w", err)
		}
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &sess.Context); err != nil {
				return nil, fmt.Errorf("history: unmarshal context: %w", err)
			}
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return &SessionPage{Sessions: out, Total: total}, nil
}

// MessageFilter narrows ListMessagesForTenant (§6 GET /messages).
type MessageFilter struct {
	SessionID string
	Channel   string
	StartDate time.Time
	EndDate   time.Time
	Page      int
	PerPage   int
}

// MessagePage is one page of the admin message listing.
type MessagePage struct {
	Messages []*models.Message
	Total    int
}

// ListMessagesForTenant is ListSessionsForTenant's counterpart for the
// admin GET /messages endpoint: filtered, paginated, tenant-scoped.
func (s *Store) ListMessagesForTenant(ctx context.Context, tenantID string, f MessageFilter) (*MessagePage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	page, perPage := f.Page, f.PerPage
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	where := "WHERE tenant_id = $1"
	args := []any{tenantID}
	if f.SessionID != "" {
		args = append(args, f.SessionID)
		where += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	if f.Channel != "" {
		args = append(args, f.Channel)
		where += fmt.Sprintf(" AND channel_kind = $%d", len(args))
	}
	if !f.StartDate.IsZero() {
		args = append(args, f.StartDate)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !f.EndDate.IsZero() {
		args = append(args, f.EndDate)
		where += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("history: count messages for listing: %w", err)
	}

	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`
		SELECT id, session_id, tenant_id, channel_kind, kind, text, media_url,
		       is_from_bot, from_user_id, from_user_name, metadata, created_at
		FROM messages %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list messages for tenant: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var metadataJSON []byte
		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &msg.TenantID, &msg.ChannelKind, &msg.Kind, &msg.Text, &msg.MediaURL,
			&msg.IsFromBot, &msg.FromUserID, &msg.FromUserName, &metadataJSON, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("history: scan message: %w", err)
		}
		if len(metadataJSON) > 0 && string(metadataJSON) != "null" {
			if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("history: unmarshal metadata: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return &MessagePage{Messages: out, Total: total}, nil
}

// CountSessionsForTenant returns the number of sessions stored for tenantID.
func (s *Store) CountSessionsForTenant(ctx context.Context, tenantID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var count int
	if err := s.stmtCountByTenant.QueryRowContext(ctx, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("history: count sessions: %w", err)
	}
	return count, nil
}

// DeleteOlderThan bulk-deletes, in one batch capped at batchSize, every
// session (and its messages) for tenantID created before cutoff (§4.10:
// retention sweep, per-tenant batch caps to bound lock time).
func (s *Store) DeleteOlderThan(ctx context.Context, tenantID string, cutoff time.Time, batchSize int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if batchSize <= 0 {
		batchSize = 500
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("history: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.StmtContext(ctx, s.stmtDeleteMessages).ExecContext(ctx, tenantID, cutoff, batchSize); err != nil {
		return 0, fmt.Errorf("history: delete messages: %w", err)
	}

	result, err := tx.StmtContext(ctx, s.stmtDeleteSessions).ExecContext(ctx, tenantID, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("history: delete sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("history: commit: %w", err)
	}
	return rows, nil
}

// CountMessagesOlderThan reports how many messages a retention sweep
// would delete without deleting them (§4.10 estimate).
func (s *Store) CountMessagesOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var count int
	if err := s.stmtCountMessagesOlder.QueryRowContext(ctx, tenantID, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("history: count messages older: %w", err)
	}
	return count, nil
}

// CountSessionsOlderThan reports how many sessions a retention sweep
// would delete without deleting them (§4.10 estimate).
func (s *Store) CountSessionsOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var count int
	if err := s.stmtCountSessionsOlder.QueryRowContext(ctx, tenantID, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("history: count sessions older: %w", err)
	}
	return count, nil
}

// DeleteMessagesOlderThan deletes, in one batch capped at batchSize,
// messages for tenantID older than cutoff, independent of their
// session's age (§4.10: messages and sessions retention windows are
// configured independently).
func (s *Store) DeleteMessagesOlderThan(ctx context.Context, tenantID string, cutoff time.Time, batchSize int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if batchSize <= 0 {
		batchSize = 500
	}
	result, err := s.stmtDeleteMessagesByTenant.ExecContext(ctx, tenantID, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("history: delete messages by tenant: %w", err)
	}
	return result.RowsAffected()
}

// DeleteSessionsOlderThan deletes, in one batch capped at batchSize,
// sessions for tenantID older than cutoff (and, via ON DELETE CASCADE,
// any messages still attached to them).
func (s *Store) DeleteSessionsOlderThan(ctx context.Context, tenantID string, cutoff time.Time, batchSize int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if batchSize <= 0 {
		batchSize = 500
	}
	result, err := s.stmtDeleteSessionsByTenant.ExecContext(ctx, tenantID, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("history: delete sessions by tenant: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAllTenantData removes every durable record for tenantID, with
// no cutoff (§4.10 right-to-erasure).
func (s *Store) DeleteAllTenantData(ctx context.Context, tenantID string) (messagesDeleted, sessionsDeleted int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("history: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	msgResult, err := tx.StmtContext(ctx, s.stmtDeleteAllMessages).ExecContext(ctx, tenantID)
	if err != nil {
		return 0, 0, fmt.Errorf("history: delete all messages: %w", err)
	}
	messagesDeleted, err = msgResult.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("history: rows affected: %w", err)
	}

	sessResult, err := tx.StmtContext(ctx, s.stmtDeleteAllSessions).ExecContext(ctx, tenantID)
	if err != nil {
		return 0, 0, fmt.Errorf("history: delete all sessions: %w", err)
	}
	sessionsDeleted, err = sessResult.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("history: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("history: commit: %w", err)
	}
	return messagesDeleted, sessionsDeleted, nil
}

// Schema is the DDL C4 requires (§4.7 mandatory indexes). Applied by
// operators via migration tooling; kept here as the single source of
// truth for index names referenced elsewhere.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                   TEXT PRIMARY KEY,
	tenant_id            TEXT NOT NULL,
	external_user_id     TEXT NOT NULL,
	channel_kind         TEXT NOT NULL,
	state                TEXT NOT NULL,
	context              JSONB NOT NULL DEFAULT '{}',
	crm_client_ref       TEXT,
	crm_appointment_ref  TEXT,
	created_at           TIMESTAMPTZ NOT NULL,
	last_activity        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_tenant_created ON sessions (tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_sessions_tenant_state ON sessions (tenant_id, state);
CREATE INDEX IF NOT EXISTS idx_sessions_tenant_channel ON sessions (tenant_id, channel_kind);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_tenant_channel_user ON sessions (tenant_id, channel_kind, external_user_id)
	WHERE state NOT IN ('COMPLETED', 'FAILED');
CREATE INDEX IF NOT EXISTS idx_sessions_tenant_converted ON sessions (tenant_id)
	WHERE crm_appointment_ref IS NOT NULL AND crm_appointment_ref != '';

CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	tenant_id        TEXT NOT NULL,
	channel_kind     TEXT NOT NULL,
	kind             TEXT NOT NULL,
	text             TEXT NOT NULL DEFAULT '',
	media_url        TEXT,
	is_from_bot      BOOLEAN NOT NULL DEFAULT FALSE,
	from_user_id     TEXT,
	from_user_name   TEXT,
	metadata         JSONB,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages (session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_tenant_created ON messages (tenant_id, created_at);
`
