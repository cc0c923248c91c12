// Package session implements the hot session store (C3, §4.3): a
// TTL-bounded, bounded-history view of an in-progress conversation.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/convoyhq/convoy/pkg/models"
)

// MaxHistory is the §4.3 bounded-history ceiling (N_hist=20): the store
// retains at most this many HistoryEntry items per session, trimming the
// oldest on overflow.
const MaxHistory = 20

// ErrNotFound is returned by Get/Append for an unknown or expired session ID.
var ErrNotFound = errors.New("session: not found")

// Store is the hot-tier session contract. A real multi-process deployment
// backs this with a shared cache; no Redis client exists anywhere in the
// retrieved example corpus, so the shipped implementation is an in-memory
// TTL map and this interface is the seam a shared-cache implementation
// would satisfy.
type Store interface {
	// Get returns the session, or ErrNotFound if absent or TTL-expired.
	// A TTL-expired session is treated as gone, never as resumable (§9
	// Open Question: no implicit resumption across TTL expiry).
	Get(ctx context.Context, sessionID string) (*models.Session, error)

	// GetByExternalUser looks up the active session for a given
	// tenant+channel+external user, or ErrNotFound.
	GetByExternalUser(ctx context.Context, tenantID string, channel models.ChannelKind, externalUserID string) (*models.Session, error)

	// Put stores or replaces a session and resets its TTL clock.
	Put(ctx context.Context, s *models.Session) error

	// AppendHistory appends one entry to a session's bounded history,
	// trimming to MaxHistory and resetting the TTL clock atomically.
	AppendHistory(ctx context.Context, sessionID string, entry models.HistoryEntry) ([]models.HistoryEntry, error)

	// GetHistory returns the current bounded history for a session.
	GetHistory(ctx context.Context, sessionID string) ([]models.HistoryEntry, error)

	// Delete removes a session immediately.
	Delete(ctx context.Context, sessionID string) error
}

type record struct {
	session *models.Session
	history []models.HistoryEntry
	expires time.Time
}

// MemoryStore is an in-process, TTL-expiring Store. Sessions are keyed by
// ID; a secondary index resolves tenant+channel+external-user to the
// current session ID (§4.3 "at most one non-terminal session per
// tenant+channel+external_user").
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
	byUser  map[string]string
}

// NewMemoryStore constructs an empty hot session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*record),
		byUser:  make(map[string]string),
	}
}

func userKey(tenantID string, channel models.ChannelKind, externalUserID string) string {
	return tenantID + "\x00" + string(channel) + "\x00" + externalUserID
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(sessionID)
}

// getLocked assumes mu is held for reading.
func (m *MemoryStore) getLocked(sessionID string) (*models.Session, error) {
	rec, ok := m.records[sessionID]
	if !ok || time.Now().After(rec.expires) {
		return nil, ErrNotFound
	}
	return cloneSessionValue(rec.session), nil
}

func (m *MemoryStore) GetByExternalUser(ctx context.Context, tenantID string, channel models.ChannelKind, externalUserID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUser[userKey(tenantID, channel, externalUserID)]
	if !ok {
		return nil, ErrNotFound
	}
	return m.getLocked(id)
}

func (m *MemoryStore) Put(ctx context.Context, s *models.Session) error {
	if s == nil || s.ID == "" {
		return errors.New("session: id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	var hist []models.HistoryEntry
	if existing, ok := m.records[s.ID]; ok {
		hist = existing.history
	}

	clone := cloneSessionValue(s)
	m.records[s.ID] = &record{session: clone, history: hist, expires: time.Now().Add(ttl)}
	m.byUser[userKey(s.TenantID, s.ChannelKind, s.ExternalUserID)] = s.ID
	return nil
}

func (m *MemoryStore) AppendHistory(ctx context.Context, sessionID string, entry models.HistoryEntry) ([]models.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sessionID]
	if !ok || time.Now().After(rec.expires) {
		return nil, ErrNotFound
	}

	rec.history = append(rec.history, entry)
	if len(rec.history) > MaxHistory {
		excess := len(rec.history) - MaxHistory
		rec.history = rec.history[excess:]
	}

	ttl := rec.session.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	rec.expires = time.Now().Add(ttl)
	rec.session.LastActivity = time.Now()

	out := make([]models.HistoryEntry, len(rec.history))
	copy(out, rec.history)
	return out, nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, sessionID string) ([]models.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[sessionID]
	if !ok || time.Now().After(rec.expires) {
		return nil, ErrNotFound
	}
	out := make([]models.HistoryEntry, len(rec.history))
	copy(out, rec.history)
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sessionID]
	if !ok {
		return nil
	}
	delete(m.records, sessionID)
	delete(m.byUser, userKey(rec.session.TenantID, rec.session.ChannelKind, rec.session.ExternalUserID))
	return nil
}

func cloneSessionValue(s *models.Session) *models.Session {
	clone := *s
	clone.Context.FunctionResults = append([]models.FunctionResult(nil), s.Context.FunctionResults...)
	if s.Context.SelectedSlot != nil {
		slot := *s.Context.SelectedSlot
		clone.Context.SelectedSlot = &slot
	}
	return &clone
}
