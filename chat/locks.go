package chat

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTurnLockTimeout is returned when a turn cannot acquire its session's
// lock before the configured timeout.
var ErrTurnLockTimeout = errors.New("chat: turn lock acquisition timeout")

// turnLocks serializes conversation turns per session. Only one turn may
// mutate a session's conversation and context at a time; turns for distinct
// sessions proceed concurrently. Each session's lock is a buffered channel
// of capacity one so acquisition composes with timeouts and cancellation
// through select.
type turnLocks struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	timeout time.Duration
}

func newTurnLocks(timeout time.Duration) *turnLocks {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &turnLocks{
		locks:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

// Acquire blocks until the session's lock is free, the timeout elapses or
// ctx is canceled. It returns a release function that must be called when
// the turn completes.
func (t *turnLocks) Acquire(ctx context.Context, sessionID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	sem, ok := t.locks[sessionID]
	if !ok {
		sem = make(chan struct{}, 1)
		t.locks[sessionID] = sem
	}
	t.mu.Unlock()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, ErrTurnLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
