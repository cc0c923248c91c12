package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a lock could not be acquired before its
// deadline, per §5's per-session serialization requirement.
var ErrLockTimeout = errors.New("session: lock acquisition timeout")

// DefaultLockTimeout bounds how long a caller waits for another in-flight
// turn on the same session to finish (§5: "at most one orchestrator turn
// runs per session at a time").
const DefaultLockTimeout = 10 * time.Second

const lockPollInterval = 5 * time.Millisecond

// sessionMutex wraps a flag mutex for per-session locking, following the
// same shape as the teacher's SessionLocker.
type sessionMutex struct {
	mu     sync.Mutex
	locked bool
}

// Locker serializes access to a single session ID across concurrent
// requests (e.g. two webhook deliveries for the same user arriving close
// together). One Locker instance is shared process-wide.
type Locker struct {
	locks   sync.Map // map[string]*sessionMutex
	timeout time.Duration
}

// NewLocker creates a Locker with the given default acquire timeout.
func NewLocker(timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Locker{timeout: timeout}
}

func (l *Locker) getOrCreate(sessionID string) *sessionMutex {
	actual, _ := l.locks.LoadOrStore(sessionID, &sessionMutex{})
	return actual.(*sessionMutex)
}

// Acquire blocks until the session's lock is free, ctx is cancelled, or
// the default timeout elapses, returning a release function on success.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	m := l.getOrCreate(sessionID)
	deadline := time.Now().Add(l.timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		m.mu.Lock()
		if !m.locked {
			m.locked = true
			m.mu.Unlock()
			return func() {
				m.mu.Lock()
				m.locked = false
				m.mu.Unlock()
			}, nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}
