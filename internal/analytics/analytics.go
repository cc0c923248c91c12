// Package analytics implements the C11 read-only aggregation queries
// (§4.11) over the durable store: totals, last-30d counts, by-channel
// and by-state breakdowns, a daily series, and conversion rate.
// Grounded on internal/history.Store's query-preparation and
// QueryContext-with-timeout idiom, but these queries are ad hoc (run
// once per request, not on a hot path) so they are not prepared
// statements.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store is the read-only surface analytics needs from the durable
// tier. internal/history.Store.DB() satisfies it.
type Store interface {
	DB() *sql.DB
}

// Reporter runs aggregation queries for one tenant at a time.
type Reporter struct {
	db *sql.DB
}

// New constructs a Reporter over the durable store's shared connection
// pool.
func New(store Store) *Reporter {
	return &Reporter{db: store.DB()}
}

// Totals is the top-level summary returned by GET /analytics.
type Totals struct {
	TotalSessions      int64            `json:"total_sessions"`
	TotalMessages      int64            `json:"total_messages"`
	Last30dSessions    int64            `json:"last_30d_sessions"`
	Last30dMessages    int64            `json:"last_30d_messages"`
	ByChannel          map[string]int64 `json:"by_channel"`
	ByState            map[string]int64 `json:"by_state"`
	ConversionRatePct  float64          `json:"conversion_rate_pct"`
}

// Summary computes the Totals for one tenant.
func (r *Reporter) Summary(ctx context.Context, tenantID string) (*Totals, error) {
	out := &Totals{ByChannel: map[string]int64{}, ByState: map[string]int64{}}

	if err := r.scalar(ctx, &out.TotalSessions,
		`SELECT COUNT(*) FROM sessions WHERE tenant_id = $1`, tenantID); err != nil {
		return nil, err
	}
	if err := r.scalar(ctx, &out.TotalMessages,
		`SELECT COUNT(*) FROM messages WHERE tenant_id = $1`, tenantID); err != nil {
		return nil, err
	}

	since30d := time.Now().AddDate(0, 0, -30)
	if err := r.scalar(ctx, &out.Last30dSessions,
		`SELECT COUNT(*) FROM sessions WHERE tenant_id = $1 AND created_at >= $2`, tenantID, since30d); err != nil {
		return nil, err
	}
	if err := r.scalar(ctx, &out.Last30dMessages,
		`SELECT COUNT(*) FROM messages WHERE tenant_id = $1 AND created_at >= $2`, tenantID, since30d); err != nil {
		return nil, err
	}

	if err := r.byGroup(ctx, tenantID, "channel_kind", out.ByChannel); err != nil {
		return nil, err
	}
	if err := r.byGroup(ctx, tenantID, "state", out.ByState); err != nil {
		return nil, err
	}

	completed, err := r.conversionCount(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if out.TotalSessions > 0 {
		out.ConversionRatePct = round2(float64(completed) / float64(out.TotalSessions) * 100)
	}

	return out, nil
}

// DailyPoint is one day's session/message counts in a daily series.
type DailyPoint struct {
	Date     string `json:"date"`
	Sessions int64  `json:"sessions"`
	Messages int64  `json:"messages"`
}

// Daily returns the last `days` days of per-day counts, oldest first.
func (r *Reporter) Daily(ctx context.Context, tenantID string, days int) ([]DailyPoint, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	rows, err := r.db.QueryContext(ctx, `
		SELECT date_trunc('day', created_at) AS d, COUNT(*)
		FROM sessions
		WHERE tenant_id = $1 AND created_at >= $2
		GROUP BY d
		ORDER BY d
	`, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("analytics: daily sessions query: %w", err)
	}
	sessionsByDay := map[string]int64{}
	for rows.Next() {
		var d time.Time
		var count int64
		if err := rows.Scan(&d, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("analytics: scan daily sessions: %w", err)
		}
		sessionsByDay[d.Format("2006-01-02")] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, `
		SELECT date_trunc('day', created_at) AS d, COUNT(*)
		FROM messages
		WHERE tenant_id = $1 AND created_at >= $2
		GROUP BY d
		ORDER BY d
	`, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("analytics: daily messages query: %w", err)
	}
	messagesByDay := map[string]int64{}
	for rows.Next() {
		var d time.Time
		var count int64
		if err := rows.Scan(&d, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("analytics: scan daily messages: %w", err)
		}
		messagesByDay[d.Format("2006-01-02")] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	out := make([]DailyPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := time.Now().AddDate(0, 0, -i).Format("2006-01-02")
		out = append(out, DailyPoint{Date: day, Sessions: sessionsByDay[day], Messages: messagesByDay[day]})
	}
	return out, nil
}

func (r *Reporter) scalar(ctx context.Context, dst *int64, query string, args ...any) error {
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(dst); err != nil {
		return fmt.Errorf("analytics: query failed: %w", err)
	}
	return nil
}

func (r *Reporter) byGroup(ctx context.Context, tenantID, column string, dst map[string]int64) error {
	query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM sessions WHERE tenant_id = $1 GROUP BY %s`, column, column)
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return fmt.Errorf("analytics: group by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("analytics: scan group by %s: %w", column, err)
		}
		dst[key] = count
	}
	return rows.Err()
}

// conversionCount counts sessions in state COMPLETED with a CRM
// appointment reference attached, the numerator of §4.11's
// conversion-rate formula.
func (r *Reporter) conversionCount(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions
		WHERE tenant_id = $1 AND state = 'COMPLETED' AND crm_appointment_ref IS NOT NULL AND crm_appointment_ref != ''
	`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("analytics: conversion count: %w", err)
	}
	return count, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
