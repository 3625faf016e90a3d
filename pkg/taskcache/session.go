// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package taskcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/postfiatorg/postfiat-wallet/pkg/task"
)

// NoCursor is the cursor of a session that has never been synced.
const NoCursor int64 = -1

// Aggregate absorbs an account's messages in ledger order. The cache
// serialises all calls to an Aggregate, so implementations need no locking.
type Aggregate interface {
	Update(msg *task.Message)
	// Tasks returns the task map; callers only read it.
	Tasks() map[string]*task.TaskState
	AccountStatus() task.AccountStatus
}

// AggregateFactory creates the aggregate for a new session.
type AggregateFactory func(account string) Aggregate

func newAccountState(account string) Aggregate {
	return task.NewAccountState(account)
}

// Session is the cached state of one account.
type Session struct {
	account string

	// syncMu is held for a whole sync (backfill or refresh iteration), so at
	// most one writer feeds the aggregate at a time.
	syncMu sync.Mutex

	// mu guards the fields below. It is held for single message applies and
	// for query projections.
	mu          sync.RWMutex
	cursor      int64
	aggregate   Aggregate
	taskUpdated map[string]time.Time
	errorStreak int

	// lastAccess is unix nanoseconds.
	lastAccess atomic.Int64

	// lifecycle guards the refresh handle and the evicted flag.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	evicted   bool
}

func newSession(account string, aggregate Aggregate, now time.Time) *Session {
	s := &Session{
		account:     account,
		cursor:      NoCursor,
		aggregate:   aggregate,
		taskUpdated: make(map[string]time.Time),
	}
	s.touch(now)
	return s
}

// Account returns the account the session caches.
func (s *Session) Account() string {
	return s.account
}

// Cursor returns the last fully processed ledger, or NoCursor.
func (s *Session) Cursor() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// ErrorStreak returns the number of consecutive failed refresh iterations.
func (s *Session) ErrorStreak() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errorStreak
}

// LastAccess returns when the session was last read or written.
func (s *Session) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastAccess.Store(now.UnixNano())
}

// apply feeds one message to the aggregate and advances the cursor.
func (s *Session) apply(msg *task.Message, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregate.Update(msg)
	s.cursor = max(s.cursor, msg.LedgerSeq)
	if msg.TaskID != "" {
		s.taskUpdated[msg.TaskID] = now
	}
}

// markSynced sets the cursor of a never-synced session.
func (s *Session) markSynced(ledgerSeq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == NoCursor {
		s.cursor = ledgerSeq
	}
}

func (s *Session) recordFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorStreak++
	return s.errorStreak
}

func (s *Session) resetErrorStreak() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorStreak = 0
}

// read runs fn with the aggregate under the read lock.
func (s *Session) read(fn func(agg Aggregate, taskUpdated map[string]time.Time)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.aggregate, s.taskUpdated)
}

// Refreshing reports whether a refresh loop is running.
func (s *Session) Refreshing() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.runningLocked()
}

func (s *Session) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Session) isEvicted() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.evicted
}

// startRefresh launches loop unless one is already running. It reports
// false if the session has been evicted.
func (s *Session) startRefresh(parent context.Context, wg *sync.WaitGroup, loop func(ctx context.Context)) bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.evicted {
		return false
	}
	if s.runningLocked() {
		return true
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		loop(ctx)
	}()
	return true
}

// stopRefresh cancels the refresh loop and waits for it to exit. The handle
// is kept until the loop has exited, so concurrent callers all wait for it.
func (s *Session) stopRefresh() {
	s.lifecycle.Lock()
	cancel, done := s.cancel, s.done
	s.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.lifecycle.Lock()
	if s.done == done {
		s.cancel, s.done = nil, nil
	}
	s.lifecycle.Unlock()
}

// evict marks the session dead, then stops its refresh loop. Once evict
// returns no refresh loop can touch the session again.
func (s *Session) evict() {
	s.lifecycle.Lock()
	s.evicted = true
	s.lifecycle.Unlock()
	s.stopRefresh()
}
