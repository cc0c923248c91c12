package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/convoyhq/convoy/internal/history"
	"github.com/convoyhq/convoy/internal/retention"
)

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func queryDate(r *http.Request, key string) time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func requireTenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := r.URL.Query().Get("company_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required")
		return "", false
	}
	return tenantID, true
}

// handleListSessions serves GET /sessions (§6), the paginated, filtered
// session listing backed by internal/history.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenantID(w, r)
	if !ok {
		return
	}
	page, err := s.historyStore().ListSessionsForTenant(r.Context(), tenantID, history.SessionFilter{
		Channel:   r.URL.Query().Get("channel"),
		State:     r.URL.Query().Get("state"),
		StartDate: queryDate(r, "start_date"),
		EndDate:   queryDate(r, "end_date"),
		Page:      queryInt(r, "page", 1),
		PerPage:   queryInt(r, "per_page", 50),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": page.Sessions, "total": page.Total})
}

// handleGetSession serves GET /sessions/{id}, embedding the session's
// message history in the response (§6: "session with embedded
// messages").
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	sess, err := s.historyStore().GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	msgPage, err := s.historyStore().ListMessages(r.Context(), id, time.Time{}, 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess, "messages": msgPage.Messages})
}

// handleListMessages serves GET /messages (§6).
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenantID(w, r)
	if !ok {
		return
	}
	page, err := s.historyStore().ListMessagesForTenant(r.Context(), tenantID, history.MessageFilter{
		SessionID: r.URL.Query().Get("session_id"),
		Channel:   r.URL.Query().Get("channel"),
		StartDate: queryDate(r, "start_date"),
		EndDate:   queryDate(r, "end_date"),
		Page:      queryInt(r, "page", 1),
		PerPage:   queryInt(r, "per_page", 50),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": page.Messages, "total": page.Total})
}

// handleAnalyticsSummary serves GET /analytics (§4.11, §6).
func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenantID(w, r)
	if !ok {
		return
	}
	totals, err := s.cfg.Analytics.Summary(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute analytics summary")
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// handleAnalyticsDaily serves GET /analytics/daily (§4.11, §6).
func (s *Server) handleAnalyticsDaily(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenantID(w, r)
	if !ok {
		return
	}
	days := queryInt(r, "days", 30)
	points, err := s.cfg.Analytics.Daily(r.Context(), tenantID, days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute daily analytics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": points})
}

// cleanupRequest is the shared body shape for POST /cleanup and
// POST /cleanup/estimate (§4.10, §6).
type cleanupRequest struct {
	MessagesRetentionDays int `json:"messages_retention_days"`
	SessionsRetentionDays int `json:"sessions_retention_days"`
}

func decodeCleanupRequest(w http.ResponseWriter, r *http.Request) (retention.Policy, bool) {
	var req cleanupRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return retention.Policy{}, false
	}
	return retention.Policy{
		MessagesRetentionDays: req.MessagesRetentionDays,
		SessionsRetentionDays: req.SessionsRetentionDays,
	}, true
}

// handleCleanup serves POST /cleanup (§4.10): applies the retention
// policy and reports deletion counts.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenantID(w, r)
	if !ok {
		return
	}
	policy, ok := decodeCleanupRequest(w, r)
	if !ok {
		return
	}
	counts, err := s.cfg.Retention.CleanupTenant(r.Context(), tenantID, policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// handleCleanupEstimate serves POST /cleanup/estimate (§4.10): a dry run
// reporting what handleCleanup would delete.
func (s *Server) handleCleanupEstimate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenantID(w, r)
	if !ok {
		return
	}
	policy, ok := decodeCleanupRequest(w, r)
	if !ok {
		return
	}
	counts, err := s.cfg.Retention.Estimate(r.Context(), tenantID, policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) historyStore() *history.Store {
	return s.cfg.HistoryStore
}
