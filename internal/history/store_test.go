package history

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/convoyhq/convoy/pkg/models"
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}

	expectAllPrepares(mock)

	s := &Store{db: db, queryTimeout: time.Second}
	if err := s.prepareStatements(); err != nil {
		t.Fatalf("prepareStatements: %v", err)
	}
	return s, mock
}

func expectAllPrepares(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare("INSERT INTO messages")
	mock.ExpectPrepare("INSERT INTO sessions")
	mock.ExpectPrepare("SELECT (.+) FROM sessions WHERE id")
	mock.ExpectPrepare("SELECT (.+) FROM messages")
	mock.ExpectPrepare("SELECT COUNT")
	mock.ExpectPrepare("DELETE FROM messages")
	mock.ExpectPrepare("DELETE FROM sessions")
	mock.ExpectPrepare("SELECT COUNT")
	mock.ExpectPrepare("SELECT COUNT")
	mock.ExpectPrepare("DELETE FROM messages")
	mock.ExpectPrepare("DELETE FROM sessions")
	mock.ExpectPrepare("DELETE FROM messages")
	mock.ExpectPrepare("DELETE FROM sessions")
}

func TestAppendMessageInsertsRow(t *testing.T) {
	s, mock := setupMockStore(t)
	defer s.db.Close()

	mock.ExpectExec("INSERT INTO messages").
		WithArgs("m1", "s1", "t1", models.ChannelTelegram, models.MessageText, "hi",
			"", false, "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.AppendMessage(context.Background(), &models.Message{
		ID: "m1", SessionID: "s1", TenantID: "t1", ChannelKind: models.ChannelTelegram,
		Kind: models.MessageText, Text: "hi",
	})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPutSessionUpserts(t *testing.T) {
	s, mock := setupMockStore(t)
	defer s.db.Close()

	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.PutSession(context.Background(), &models.Session{
		ID: "s1", TenantID: "t1", ExternalUserID: "u1", ChannelKind: models.ChannelTelegram,
		State: models.StateGreeting, CreatedAt: time.Now(), LastActivity: time.Now(),
	})
	if err != nil {
		t.Fatalf("PutSession: %v", err)
	}
}

func TestCountSessionsForTenant(t *testing.T) {
	s, mock := setupMockStore(t)
	defer s.db.Close()

	rows := sqlmock.NewRows([]string{"count"}).AddRow(3)
	mock.ExpectQuery("SELECT COUNT").WithArgs("t1").WillReturnRows(rows)

	count, err := s.CountSessionsForTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("CountSessionsForTenant: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}
}

func TestDeleteOlderThanCommitsTransaction(t *testing.T) {
	s, mock := setupMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM messages").WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec("DELETE FROM sessions").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	deleted, err := s.DeleteOlderThan(context.Background(), "t1", time.Now(), 100)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 sessions deleted, got %d", deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
