package session

import (
	"context"
	"testing"
	"time"

	"github.com/convoyhq/convoy/pkg/models"
)

func newTestSession(id string) *models.Session {
	return &models.Session{
		ID:             id,
		TenantID:       "t1",
		ExternalUserID: "u1",
		ChannelKind:    models.ChannelTelegram,
		State:          models.StateInitiated,
		TTL:            time.Minute,
	}
}

func TestPutAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, newTestSession("s1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TenantID != "t1" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestGetByExternalUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Put(ctx, newTestSession("s1"))

	got, err := s.GetByExternalUser(ctx, "t1", models.ChannelTelegram, "u1")
	if err != nil {
		t.Fatalf("GetByExternalUser: %v", err)
	}
	if got.ID != "s1" {
		t.Fatalf("expected s1, got %s", got.ID)
	}
}

func TestGetExpiredReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	sess := newTestSession("s1")
	sess.TTL = time.Millisecond
	_ = s.Put(ctx, sess)

	time.Sleep(5 * time.Millisecond)
	if _, err := s.Get(ctx, "s1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
}

func TestAppendHistoryTrimsToMax(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Put(ctx, newTestSession("s1"))

	var last []models.HistoryEntry
	for i := 0; i < MaxHistory+5; i++ {
		hist, err := s.AppendHistory(ctx, "s1", models.HistoryEntry{Role: models.RoleUser, Text: "hi"})
		if err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
		last = hist
	}
	if len(last) != MaxHistory {
		t.Fatalf("expected history trimmed to %d, got %d", MaxHistory, len(last))
	}
}

func TestAppendHistoryUnknownSession(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.AppendHistory(context.Background(), "missing", models.HistoryEntry{}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesUserIndex(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Put(ctx, newTestSession("s1"))

	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.GetByExternalUser(ctx, "t1", models.ChannelTelegram, "u1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLockerSerializesAccess(t *testing.T) {
	l := NewLocker(time.Second)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		r2, err := l.Acquire(ctx, "s1")
		if err != nil {
			t.Errorf("second Acquire: %v", err)
			close(done)
			return
		}
		r2()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Acquire should not have succeeded before release")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	<-done
}

func TestLockerTimesOut(t *testing.T) {
	l := NewLocker(20 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	if _, err := l.Acquire(ctx, "s1"); err != ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}
