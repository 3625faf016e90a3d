// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package taskcache keeps an in-memory, continuously refreshed view of the
// task state of each tracked account.
//
// A Manager owns one Session per account. A session is built by a backfill
// over the account's ledger history and kept fresh by a per-account refresh
// loop that polls for new transactions, merges the decoder streams in ledger
// order and feeds the account aggregate. Sessions nobody has accessed for
// the configured TTL are evicted.
package taskcache

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/postfiatorg/postfiat-wallet/pkg/errors"
	"github.com/postfiatorg/postfiat-wallet/pkg/ledger"
	"github.com/postfiatorg/postfiat-wallet/pkg/logger"
	"github.com/postfiatorg/postfiat-wallet/pkg/task"
)

const (
	// maxParallelEvictions bounds how many sessions a sweep stops at once.
	maxParallelEvictions = 8

	invalidateTimeout = 5 * time.Second
)

// KeyResolver returns the key material used to read an account's encrypted
// messages, or nil.
type KeyResolver func(account string) *task.KeyMaterial

// Option configures a Manager.
type Option func(*Manager)

// WithAggregateFactory sets how session aggregates are created.
func WithAggregateFactory(f AggregateFactory) Option {
	return func(m *Manager) {
		m.newAggregate = f
	}
}

// WithKeyResolver sets the key material lookup used when decoding.
func WithKeyResolver(r KeyResolver) Option {
	return func(m *Manager) {
		m.keys = r
	}
}

// WithMetrics sets the collectors the manager reports to.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager is the per-account task cache.
type Manager struct {
	source       ledger.Source
	decoders     []task.Decoder
	config       Config
	newAggregate AggregateFactory
	keys         KeyResolver
	metrics      *Metrics
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	sessions map[string]*Session
	// closed is set under mu before Close waits on wg; no loop starts after.
	closed bool

	// ctx is the parent of every refresh loop; cancel stops them all.
	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks refresh loops and the janitor.
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a task cache reading from source through decoders. Decoders
// are merged in the order given. A background sweep of idle sessions is
// started unless config.SweepInterval is zero.
func New(source ledger.Source, decoders []task.Decoder, config Config, opts ...Option) (*Manager, error) {
	if source == nil {
		return nil, fmt.Errorf("transaction source is required")
	}
	if len(decoders) == 0 {
		return nil, fmt.Errorf("at least one decoder is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task cache configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		source:       source,
		decoders:     decoders,
		config:       config,
		newAggregate: newAccountState,
		keys:         func(string) *task.KeyMaterial { return nil },
		now:          time.Now,
		sleep:        sleepContext,
		sessions:     make(map[string]*Session),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(m)
	}

	if config.SweepInterval > 0 {
		m.wg.Add(1)
		go m.janitor()
	}
	return m, nil
}

// Nodes returns the node addresses of the registered decoders.
func (m *Manager) Nodes() []string {
	nodes := make([]string, 0, len(m.decoders))
	for _, d := range m.decoders {
		nodes = append(nodes, d.Node())
	}
	return nodes
}

// lookup returns the live session for account.
func (m *Manager) lookup(account string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[account]
	m.mu.RUnlock()
	if !ok || s.isEvicted() {
		return nil, false
	}
	return s, true
}

// getOrCreate returns the live session for account, creating it if needed.
// An evicted session still in the map is replaced.
func (m *Manager) getOrCreate(account string) *Session {
	if s, ok := m.lookup(account); ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[account]; ok && !s.isEvicted() {
		return s
	}
	s := newSession(account, m.newAggregate(account), m.now())
	m.sessions[account] = s
	m.metrics.setSessions(len(m.sessions))
	return s
}

// IsInitialized reports whether account has a session that completed at
// least one sync.
func (m *Manager) IsInitialized(account string) bool {
	s, ok := m.lookup(account)
	return ok && s.Cursor() != NoCursor
}

// Session returns the live session for account.
func (m *Manager) Session(account string) (*Session, error) {
	s, ok := m.lookup(account)
	if !ok {
		return nil, errors.NewSessionNotFoundError("no cached state for account "+account, nil)
	}
	return s, nil
}

// Initialize syncs account from its cursor, or from the earliest ledger if
// it has never been synced, up to the latest ledger. Calling it again on an
// initialized account catches up. Messages applied before a failure stay
// applied.
func (m *Manager) Initialize(ctx context.Context, account string) error {
	if account == "" {
		return errors.NewInvalidArgumentError("account is required", nil)
	}
	s := m.getOrCreate(account)
	s.touch(m.now())

	applied, err := m.sync(ctx, s)
	if err != nil {
		logger.ForAccount(account).Error("Failed to initialize tasks", "error", err, "applied", applied)
		return err
	}
	logger.ForAccount(account).Info("Initialized tasks", "applied", applied, "cursor", s.Cursor())
	return nil
}

// sync fetches everything after the session cursor through every decoder
// and applies the merged messages. It returns the number of messages
// applied. A cancelled ctx stops it between messages and is returned as is.
func (m *Manager) sync(ctx context.Context, s *Session) (int, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	started := time.Now()
	cursor := s.Cursor()
	from, kind := m.config.EarliestLedger, "backfill"
	if cursor != NoCursor {
		from, kind = cursor+1, "catchup"
	}

	keys := m.keys(s.account)
	streams := make([]iter.Seq2[*task.Message, error], 0, len(m.decoders))
	for _, d := range m.decoders {
		txns := m.source.Transactions(ctx, s.account, from, ledger.LatestLedger)
		streams = append(streams, d.Decode(ctx, txns, keys))
	}

	applied := 0
	defer func() { m.metrics.applied(applied) }()
	for msg, err := range Merge(streams...) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return applied, ctxErr
		}
		if err != nil {
			return applied, errors.NewSyncFailureError("failed to sync account "+s.account, err)
		}
		s.apply(msg, m.now())
		applied++
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return applied, ctxErr
	}

	if applied == 0 {
		s.markSynced(from)
	}
	m.metrics.synced(kind, time.Since(started))
	return applied, nil
}

// StartRefresh starts the refresh loop for account unless one is running.
// The session is created if needed; a loop on a never-synced session does
// the backfill itself.
func (m *Manager) StartRefresh(account string) error {
	if account == "" {
		return errors.NewInvalidArgumentError("account is required", nil)
	}
	for {
		s := m.getOrCreate(account)
		s.touch(m.now())
		started, err := m.startLoop(s)
		if err != nil || started {
			return err
		}
		// evicted between lookup and start; retry with a fresh session
	}
}

// startLoop starts the refresh loop of s. The read lock keeps Close from
// waiting on the loop group while a loop is being added to it.
func (m *Manager) startLoop(s *Session) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, errors.NewInternalError("task cache is closed", nil)
	}
	return s.startRefresh(m.ctx, &m.wg, func(ctx context.Context) { m.refreshLoop(ctx, s) }), nil
}

// StopRefresh stops the refresh loop for account and waits for it to exit.
// The cached state is kept.
func (m *Manager) StopRefresh(account string) {
	if s, ok := m.lookup(account); ok {
		s.stopRefresh()
	}
}

// Clear stops the refresh loop for account and discards its cached state.
// A source that caches history drops the account's history too, so the
// next backfill reads from upstream.
func (m *Manager) Clear(account string) {
	if m.remove(account, nil) {
		m.metrics.evicted(evictCleared)
		logger.ForAccount(account).Info("Cleared cached state")
	}

	if inv, ok := m.source.(ledger.Invalidator); ok {
		ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
		defer cancel()
		if err := inv.Invalidate(ctx, account); err != nil {
			logger.ForAccount(account).Warn("Failed to drop cached transactions", "error", err)
		}
	}
}

// remove evicts the session for account. If expect is non-nil only that
// session is removed. The map lock is not held while waiting for the
// refresh loop.
func (m *Manager) remove(account string, expect *Session) bool {
	m.mu.RLock()
	s, ok := m.sessions[account]
	m.mu.RUnlock()
	if !ok || (expect != nil && s != expect) {
		return false
	}

	s.evict()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[account] == s {
		delete(m.sessions, account)
	}
	m.metrics.setSessions(len(m.sessions))
	return true
}

// SweepIdle evicts every session not accessed within the idle TTL and
// returns how many were evicted.
func (m *Manager) SweepIdle() int {
	cutoff := m.now().Add(-m.config.IdleTTL)

	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.LastAccess().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	var (
		g       errgroup.Group
		countMu sync.Mutex
		count   int
	)
	g.SetLimit(maxParallelEvictions)
	for _, s := range idle {
		g.Go(func() error {
			// touched since the scan
			if !s.LastAccess().Before(cutoff) {
				return nil
			}
			if m.remove(s.account, s) {
				m.metrics.evicted(evictIdle)
				logger.ForAccount(s.account).Info("Evicted idle session", "last_access", s.LastAccess())
				countMu.Lock()
				count++
				countMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return count
}

func (m *Manager) janitor() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := m.SweepIdle(); n > 0 {
				logger.Debugw("Idle sweep finished", "evicted", n)
			}
		case <-m.ctx.Done():
			return
		}
	}
}

// Close stops every refresh loop and the idle sweep, and drops all cached
// state. The manager cannot be used afterwards.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		m.cancel()
		m.wg.Wait()

		m.mu.Lock()
		defer m.mu.Unlock()
		for account, s := range m.sessions {
			s.evict()
			delete(m.sessions, account)
		}
		m.metrics.setSessions(0)
	})
}
