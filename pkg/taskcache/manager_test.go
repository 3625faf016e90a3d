// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package taskcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postfiatorg/postfiat-wallet/pkg/errors"
	"github.com/postfiatorg/postfiat-wallet/pkg/ledger"
	"github.com/postfiatorg/postfiat-wallet/pkg/task"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	decoders := []task.Decoder{task.NewTaskDecoder(taskNode)}

	tests := []struct {
		name     string
		source   ledger.Source
		decoders []task.Decoder
		mutate   func(*Config)
	}{
		{name: "nil source", decoders: decoders},
		{name: "no decoders", source: newFakeSource()},
		{name: "zero earliest ledger", source: newFakeSource(), decoders: decoders, mutate: func(c *Config) { c.EarliestLedger = 0 }},
		{name: "cap below base", source: newFakeSource(), decoders: decoders, mutate: func(c *Config) { c.BackoffCap = time.Second }},
		{name: "zero idle ttl", source: newFakeSource(), decoders: decoders, mutate: func(c *Config) { c.IdleTTL = 0 }},
		{name: "zero active interval", source: newFakeSource(), decoders: decoders, mutate: func(c *Config) { c.ActiveInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			_, err := New(tt.source, tt.decoders, cfg)
			assert.Error(t, err)
		})
	}

	m, err := New(newFakeSource(), decoders, DefaultConfig())
	require.NoError(t, err)
	m.Close()
	m.Close()
}

func TestInitialize_CursorTracksHighestMessage(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.add(accountA, proposalTx(100), acceptanceTx(105))
	m := newTestManager(t, source, testConfig())

	require.False(t, m.IsInitialized(accountA))
	require.NoError(t, m.Initialize(context.Background(), accountA))

	s, err := m.Session(accountA)
	require.NoError(t, err)
	assert.Equal(t, int64(105), s.Cursor())
	assert.True(t, m.IsInitialized(accountA))
	assert.Equal(t, []int64{1, 1}, source.calls())

	// catching up starts after the cursor and only moves it forward
	source.add(accountA, requestTx("R2", 110, "2024-12-06_09:00"))
	require.NoError(t, m.Initialize(context.Background(), accountA))
	assert.Equal(t, int64(110), s.Cursor())
	assert.Equal(t, []int64{1, 1, 106, 106}, source.calls()[:4])

	require.NoError(t, m.Initialize(context.Background(), accountA))
	assert.Equal(t, int64(110), s.Cursor())
}

func TestInitialize_EmptyAccountSetsCursorToStart(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.EarliestLedger = 500
	m := newTestManager(t, newFakeSource(), cfg)

	require.NoError(t, m.Initialize(context.Background(), accountA))
	s, err := m.Session(accountA)
	require.NoError(t, err)
	assert.Equal(t, int64(500), s.Cursor())
}

func TestInitialize_FailureIsReportedAndRetryable(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.add(accountA, proposalTx(100))
	source.fail = []bool{false, true}
	m := newTestManager(t, source, testConfig())

	err := m.Initialize(context.Background(), accountA)
	require.Error(t, err)
	assert.True(t, errors.IsSyncFailure(err))
	assert.True(t, errors.IsSourceUnavailable(err))
	assert.False(t, m.IsInitialized(accountA))

	require.NoError(t, m.Initialize(context.Background(), accountA))
	assert.True(t, m.IsInitialized(accountA))
}

func TestInitialize_FailureKeepsAppliedMessages(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.add(accountA, proposalTx(100), acceptanceTx(105))
	source.breakAfter = 1
	m, err := New(source, []task.Decoder{task.NewTaskDecoder(taskNode)}, testConfig())
	require.NoError(t, err)
	t.Cleanup(m.Close)

	err = m.Initialize(context.Background(), accountA)
	require.True(t, errors.IsSyncFailure(err))

	s, err := m.Session(accountA)
	require.NoError(t, err)
	assert.Equal(t, int64(100), s.Cursor())

	views, err := m.TasksByStatus(context.Background(), accountA, nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "proposed", views[0].Status)
}

func TestInitialize_RequiresAccount(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakeSource(), testConfig())
	assert.True(t, errors.IsInvalidArgument(m.Initialize(context.Background(), "")))
	assert.True(t, errors.IsInvalidArgument(m.StartRefresh("")))
}

func TestInitialize_AppliesMergedOrder(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.add(accountA,
		requestTx("T1", 1, "2024-12-01_10:00"),
		paymentTx("M2", 2, accountA, memoNode, ledger.Memo{Type: "n", Data: "memo 2"}),
		requestTx("T3", 3, "2024-12-03_10:00"),
		paymentTx("M4", 4, memoNode, accountA, ledger.Memo{Type: "n", Data: "memo 4"}),
		requestTx("T5", 5, "2024-12-05_10:00"),
		paymentTx("M6", 6, accountA, memoNode, ledger.Memo{Type: "n", Data: "memo 6"}),
	)
	aggs := &aggregates{}
	m := newTestManager(t, source, testConfig(), WithAggregateFactory(aggs.factory))

	require.NoError(t, m.Initialize(context.Background(), accountA))
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, aggs.latest(accountA).applied())
}

func TestStartRefresh_IsIdempotent(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	m := newTestManager(t, newFakeSource(), testConfig(), WithMetrics(metrics))

	require.NoError(t, m.StartRefresh(accountA))
	require.NoError(t, m.StartRefresh(accountA))

	s, err := m.Session(accountA)
	require.NoError(t, err)
	assert.True(t, s.Refreshing())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.refreshLoops) == 1 && m.IsInitialized(accountA)
	}, time.Second, time.Millisecond)

	m.StopRefresh(accountA)
	assert.False(t, s.Refreshing())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.refreshLoops))

	// state survives a stop, and refresh can be restarted
	assert.True(t, m.IsInitialized(accountA))
	require.NoError(t, m.StartRefresh(accountA))
	assert.True(t, s.Refreshing())
}

func TestStartRefresh_BackfillsNeverSyncedSession(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.add(accountA, proposalTx(100), acceptanceTx(105))
	m := newTestManager(t, source, testConfig())

	require.NoError(t, m.StartRefresh(accountA))
	require.Eventually(t, func() bool { return m.IsInitialized(accountA) }, time.Second, time.Millisecond)

	s, err := m.Session(accountA)
	require.NoError(t, err)
	assert.Equal(t, int64(105), s.Cursor())
}

func TestStartRefresh_WaitsForInFlightInitialize(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.add(accountA, proposalTx(100), acceptanceTx(105))
	source.gate = make(chan struct{})
	aggs := &aggregates{}
	m := newTestManager(t, source, testConfig(), WithAggregateFactory(aggs.factory))

	initDone := make(chan error, 1)
	go func() { initDone <- m.Initialize(context.Background(), accountA) }()

	require.Eventually(t, func() bool { return len(source.calls()) >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, m.StartRefresh(accountA))

	// the loop cannot start a sync while the backfill holds the session
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, source.calls(), 2)

	close(source.gate)
	require.NoError(t, <-initDone)

	require.Eventually(t, func() bool { return len(source.calls()) >= 4 }, time.Second, time.Millisecond)
	m.StopRefresh(accountA)

	assert.Equal(t, []int64{100, 105}, aggs.latest(accountA).applied())
	for _, from := range source.calls()[2:] {
		assert.Equal(t, int64(106), from)
	}
}

func TestStopThenClear_NoMutationAfterRemoval(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	for i := int64(1); i <= 50; i++ {
		source.add(accountA, requestTx("R", i, "2024-12-05_10:00"))
	}
	source.gate = make(chan struct{})
	aggs := &aggregates{}
	m := newTestManager(t, source, testConfig(), WithAggregateFactory(aggs.factory))

	require.NoError(t, m.StartRefresh(accountA))
	require.Eventually(t, func() bool { return len(source.calls()) >= 2 }, time.Second, time.Millisecond)

	m.StopRefresh(accountA)
	m.Clear(accountA)
	agg := aggs.latest(accountA)
	agg.seal()

	close(source.gate)
	time.Sleep(20 * time.Millisecond)

	assert.Zero(t, agg.lateUpdates())
	_, err := m.Session(accountA)
	assert.True(t, errors.IsSessionNotFound(err))
	assert.False(t, m.IsInitialized(accountA))
}

func TestStopRefreshAndClear_Concurrent(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.add(accountA, proposalTx(100))
	agg := newBlockingAggregate(accountA)
	m := newTestManager(t, source, testConfig(),
		WithAggregateFactory(func(string) Aggregate { return agg }))

	require.NoError(t, m.StartRefresh(accountA))
	select {
	case <-agg.entered:
	case <-time.After(time.Second):
		t.Fatal("refresh loop never applied a message")
	}

	stopped := make(chan struct{})
	go func() {
		m.StopRefresh(accountA)
		close(stopped)
	}()
	time.Sleep(10 * time.Millisecond)

	cleared := make(chan struct{})
	go func() {
		m.Clear(accountA)
		close(cleared)
	}()

	// neither call may return while the loop is inside Update
	select {
	case <-stopped:
		t.Fatal("StopRefresh returned while an update was in flight")
	case <-cleared:
		t.Fatal("Clear returned while an update was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	assert.True(t, agg.inFlight.Load())

	close(agg.release)
	<-stopped
	<-cleared

	assert.False(t, agg.inFlight.Load())
	_, err := m.Session(accountA)
	assert.True(t, errors.IsSessionNotFound(err))
}

func TestClear_DropsCachedTransactions(t *testing.T) {
	t.Parallel()

	source := &invalidatingSource{fakeSource: newFakeSource()}
	source.add(accountA, proposalTx(100))
	m := newTestManager(t, source, testConfig())

	require.NoError(t, m.Initialize(context.Background(), accountA))
	m.Clear(accountA)
	// clearing an account with no session still drops its history
	m.Clear(otherAccount)

	assert.Equal(t, []string{accountA, otherAccount}, source.invalidated())
	assert.False(t, m.IsInitialized(accountA))
}

func TestClear_WhileRefreshing(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.add(accountA, proposalTx(100))
	aggs := &aggregates{}
	m := newTestManager(t, source, testConfig(), WithAggregateFactory(aggs.factory))

	require.NoError(t, m.StartRefresh(accountA))
	require.Eventually(t, func() bool { return m.IsInitialized(accountA) }, time.Second, time.Millisecond)

	first := aggs.latest(accountA)
	m.Clear(accountA)
	first.seal()

	// a new start builds a fresh session from the earliest ledger
	require.NoError(t, m.StartRefresh(accountA))
	require.Eventually(t, func() bool { return m.IsInitialized(accountA) }, time.Second, time.Millisecond)
	m.StopRefresh(accountA)

	assert.Zero(t, first.lateUpdates())
	assert.NotSame(t, first, aggs.latest(accountA))
	assert.Equal(t, []int64{100}, aggs.latest(accountA).applied())
}

func TestSweepIdle(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: baseTime}
	source := newFakeSource()
	source.add(accountA, proposalTx(100))
	const other = "rJ1mBMhEBKack5uTQvM8vWoAntbufyG9Yn"

	cfg := testConfig()
	cfg.IdleTTL = 2 * time.Hour
	m := newTestManager(t, source, cfg, WithClock(clock.Now))

	require.NoError(t, m.Initialize(context.Background(), accountA))
	clock.Advance(90 * time.Minute)
	require.NoError(t, m.Initialize(context.Background(), other))

	assert.Zero(t, m.SweepIdle())

	clock.Advance(31 * time.Minute)
	assert.Equal(t, 1, m.SweepIdle())
	assert.False(t, m.IsInitialized(accountA))
	assert.True(t, m.IsInitialized(other))

	// the next query starts over from the earliest ledger
	before := len(source.calls())
	views, err := m.TasksByStatus(context.Background(), accountA, nil)
	require.NoError(t, err)
	assert.Len(t, views, 1)
	assert.Equal(t, []int64{1, 1}, source.calls()[before:])
}

func TestSweepIdle_KeepsPolledSessions(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: baseTime}
	source := newFakeSource()
	source.add(accountA, proposalTx(100))

	cfg := testConfig()
	cfg.IdleTTL = 2 * time.Hour
	m := newTestManager(t, source, cfg, WithClock(clock.Now))

	require.NoError(t, m.StartRefresh(accountA))
	require.Eventually(t, func() bool { return m.IsInitialized(accountA) }, time.Second, time.Millisecond)
	s, err := m.Session(accountA)
	require.NoError(t, err)

	// nobody queries the account, but the loop keeps polling it
	clock.Advance(2*time.Hour + time.Minute)
	require.Eventually(t, func() bool { return s.LastAccess().Equal(clock.Now()) }, time.Second, time.Millisecond)

	assert.Zero(t, m.SweepIdle())
	assert.True(t, m.IsInitialized(accountA))
	assert.True(t, s.Refreshing())

	// once stopped, the session ages out
	m.StopRefresh(accountA)
	clock.Advance(2*time.Hour + time.Minute)
	assert.Equal(t, 1, m.SweepIdle())
	assert.False(t, m.IsInitialized(accountA))
}

func TestJanitorSweepsInBackground(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: baseTime}
	cfg := testConfig()
	cfg.SweepInterval = time.Millisecond
	cfg.IdleTTL = time.Minute
	m := newTestManager(t, newFakeSource(), cfg, WithClock(clock.Now))

	require.NoError(t, m.Initialize(context.Background(), accountA))
	clock.Advance(2 * time.Minute)

	require.Eventually(t, func() bool { return !m.IsInitialized(accountA) }, time.Second, time.Millisecond)
}

func TestClose_StopsLoops(t *testing.T) {
	t.Parallel()

	m, err := New(newFakeSource(), []task.Decoder{task.NewTaskDecoder(taskNode)}, testConfig())
	require.NoError(t, err)

	require.NoError(t, m.StartRefresh(accountA))
	s, err := m.Session(accountA)
	require.NoError(t, err)

	m.Close()
	assert.False(t, s.Refreshing())
	assert.True(t, errors.IsInternal(m.StartRefresh(accountA)))
}

func TestStartRefresh_RacingClose(t *testing.T) {
	t.Parallel()

	for range 20 {
		m, err := New(newFakeSource(), []task.Decoder{task.NewTaskDecoder(taskNode)}, testConfig())
		require.NoError(t, err)

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := m.StartRefresh(accountA)
				if err != nil {
					assert.True(t, errors.IsInternal(err))
				}
			}()
		}
		m.Close()
		wg.Wait()

		// a loop started after Close would still be running here
		if s, err := m.Session(accountA); err == nil {
			assert.False(t, s.Refreshing())
		}
		assert.True(t, errors.IsInternal(m.StartRefresh(accountA)))
	}
}

func TestConcurrentQueriesDuringRefresh(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.add(accountA, proposalTx(100), acceptanceTx(105))
	m := newTestManager(t, source, testConfig())
	require.NoError(t, m.StartRefresh(accountA))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				_, err := m.TasksByUISection(context.Background(), accountA)
				assert.NoError(t, err)
				_ = m.AccountStatus(accountA)
			}
		}()
	}
	wg.Wait()

	views, err := m.TasksByStatus(context.Background(), accountA, nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "accepted", views[0].Status)
}
