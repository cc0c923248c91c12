package analytics

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

type fakeStore struct{ db *sql.DB }

func (f *fakeStore) DB() *sql.DB { return f.db }

func setupMockReporter(t *testing.T) (*Reporter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return New(&fakeStore{db: db}), mock
}

func TestSummaryAggregatesAllCounters(t *testing.T) {
	r, mock := setupMockReporter(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions WHERE tenant_id = \$1$`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM messages WHERE tenant_id = \$1$`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(40))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions WHERE tenant_id = \$1 AND created_at >= \$2`).
		WithArgs("t1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM messages WHERE tenant_id = \$1 AND created_at >= \$2`).
		WithArgs("t1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(16))
	mock.ExpectQuery(`SELECT channel_kind, COUNT\(\*\) FROM sessions WHERE tenant_id = \$1 GROUP BY channel_kind`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"channel_kind", "count"}).AddRow("telegram", 7).AddRow("web", 3))
	mock.ExpectQuery(`SELECT state, COUNT\(\*\) FROM sessions WHERE tenant_id = \$1 GROUP BY state`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"state", "count"}).AddRow("COMPLETED", 5).AddRow("BOOKING", 5))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions\s+WHERE tenant_id = \$1 AND state = 'COMPLETED'`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	totals, err := r.Summary(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if totals.TotalSessions != 10 || totals.TotalMessages != 40 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if totals.Last30dSessions != 4 || totals.Last30dMessages != 16 {
		t.Fatalf("unexpected last-30d totals: %+v", totals)
	}
	if totals.ByChannel["telegram"] != 7 || totals.ByChannel["web"] != 3 {
		t.Fatalf("unexpected by-channel breakdown: %+v", totals.ByChannel)
	}
	if totals.ByState["COMPLETED"] != 5 || totals.ByState["BOOKING"] != 5 {
		t.Fatalf("unexpected by-state breakdown: %+v", totals.ByState)
	}
	// 5 of 10 sessions completed with a CRM appointment ref -> 50%.
	if totals.ConversionRatePct != 50 {
		t.Fatalf("ConversionRatePct = %v, want 50", totals.ConversionRatePct)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSummaryZeroSessionsYieldsZeroConversionRate(t *testing.T) {
	r, mock := setupMockReporter(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions WHERE tenant_id = \$1$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM messages WHERE tenant_id = \$1$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions WHERE tenant_id = \$1 AND created_at >= \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM messages WHERE tenant_id = \$1 AND created_at >= \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT channel_kind, COUNT\(\*\) FROM sessions`).
		WillReturnRows(sqlmock.NewRows([]string{"channel_kind", "count"}))
	mock.ExpectQuery(`SELECT state, COUNT\(\*\) FROM sessions`).
		WillReturnRows(sqlmock.NewRows([]string{"state", "count"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions\s+WHERE tenant_id = \$1 AND state = 'COMPLETED'`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	totals, err := r.Summary(context.Background(), "empty-tenant")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if totals.ConversionRatePct != 0 {
		t.Fatalf("ConversionRatePct = %v, want 0 with no sessions", totals.ConversionRatePct)
	}
}

func TestDailyFillsEveryDayIncludingZeroes(t *testing.T) {
	r, mock := setupMockReporter(t)

	today := time.Now()
	mock.ExpectQuery(`FROM sessions`).
		WillReturnRows(sqlmock.NewRows([]string{"d", "count"}).AddRow(today, 3))
	mock.ExpectQuery(`FROM messages`).
		WillReturnRows(sqlmock.NewRows([]string{"d", "count"}).AddRow(today, 9))

	points, err := r.Daily(context.Background(), "t1", 3)
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("len(points) = %d, want 3", len(points))
	}
	last := points[len(points)-1]
	if last.Sessions != 3 || last.Messages != 9 {
		t.Fatalf("unexpected most-recent point: %+v", last)
	}
	// Days with no matching rows must still appear, with zero counts.
	if points[0].Sessions != 0 || points[0].Messages != 0 {
		t.Fatalf("unexpected oldest point: %+v", points[0])
	}
}

func TestDailyDefaultsToThirtyDaysWhenNonPositive(t *testing.T) {
	r, mock := setupMockReporter(t)

	mock.ExpectQuery(`FROM sessions`).WillReturnRows(sqlmock.NewRows([]string{"d", "count"}))
	mock.ExpectQuery(`FROM messages`).WillReturnRows(sqlmock.NewRows([]string{"d", "count"}))

	points, err := r.Daily(context.Background(), "t1", 0)
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if len(points) != 30 {
		t.Fatalf("len(points) = %d, want 30 for a non-positive days argument", len(points))
	}
}
