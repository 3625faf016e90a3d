// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package taskcache

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/postfiatorg/postfiat-wallet/pkg/errors"
	"github.com/postfiatorg/postfiat-wallet/pkg/ledger"
	"github.com/postfiatorg/postfiat-wallet/pkg/task"
)

const (
	accountA = "rPT1Sjq2YGrBMTttX4GZHjKu9dyfzbpAYe"
	taskNode = "r4yc85M1hwsegVGZ1pawpZPwj65SVs8PzD"
	memoNode = "rJ1mBMhEBKack5uTQvM8vWoAntbufyG9Yn"
	taskID   = "2024-12-05_10:00__AB12"
)

var baseTime = time.Date(2024, 12, 5, 10, 0, 0, 0, time.UTC)

// fakeSource serves an in-memory ledger history. Calls can be scripted to
// fail, and reads can be held at a gate.
type fakeSource struct {
	mu    sync.Mutex
	txns  map[string][]*ledger.Transaction
	froms []int64
	// fail scripts the outcome of successive calls; true means fail.
	fail []bool
	// gate, if set, is waited on after the first transaction is yielded.
	gate chan struct{}
	// breakAfter, if positive, fails every read after that many transactions.
	breakAfter int
}

func newFakeSource() *fakeSource {
	return &fakeSource{txns: make(map[string][]*ledger.Transaction)}
}

func (f *fakeSource) add(account string, txns ...*ledger.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txns[account] = append(f.txns[account], txns...)
}

func (f *fakeSource) calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.froms...)
}

func (f *fakeSource) Transactions(ctx context.Context, account string, from, to int64) iter.Seq2[*ledger.Transaction, error] {
	f.mu.Lock()
	call := len(f.froms)
	f.froms = append(f.froms, from)
	failing := call < len(f.fail) && f.fail[call]
	var matching []*ledger.Transaction
	for _, tx := range f.txns[account] {
		if tx.LedgerIndex >= from && (to == ledger.LatestLedger || tx.LedgerIndex <= to) {
			matching = append(matching, tx)
		}
	}
	gate, breakAfter := f.gate, f.breakAfter
	f.mu.Unlock()

	return func(yield func(*ledger.Transaction, error) bool) {
		if failing {
			yield(nil, errors.NewSourceUnavailableError("node unreachable", nil))
			return
		}
		for i, tx := range matching {
			if breakAfter > 0 && i == breakAfter {
				yield(nil, errors.NewSourceUnavailableError("connection reset", nil))
				return
			}
			if !yield(tx, nil) {
				return
			}
			if i == 0 && gate != nil {
				select {
				case <-gate:
				case <-ctx.Done():
					yield(nil, ctx.Err())
					return
				}
			}
		}
	}
}

func paymentTx(hash string, ledgerIndex int64, from, to string, memos ...ledger.Memo) *ledger.Transaction {
	return &ledger.Transaction{
		Hash:        hash,
		LedgerIndex: ledgerIndex,
		Timestamp:   baseTime.Add(time.Duration(ledgerIndex) * time.Second),
		Type:        "Payment",
		Account:     from,
		Destination: to,
		Result:      "tesSUCCESS",
		Delivered:   ledger.Amount{Currency: ledger.XRPCurrency, Value: "1"},
		Memos:       memos,
	}
}

func proposalTx(ledgerIndex int64) *ledger.Transaction {
	return paymentTx("P", ledgerIndex, taskNode, accountA,
		ledger.Memo{Type: taskID, Data: "PROPOSED PF ___ Write docs .. 900"})
}

func acceptanceTx(ledgerIndex int64) *ledger.Transaction {
	return paymentTx("A", ledgerIndex, accountA, taskNode,
		ledger.Memo{Type: taskID, Data: "ACCEPTANCE REASON ___ on it"})
}

func requestTx(hash string, ledgerIndex int64, id string) *ledger.Transaction {
	return paymentTx(hash, ledgerIndex, accountA, taskNode,
		ledger.Memo{Type: id, Data: "REQUEST_POST_FIAT ___ need work"})
}

// recordingAggregate wraps the real account state and records the ledger
// sequence of every update. Updates after sealed is set are counted as late.
type recordingAggregate struct {
	*task.AccountState

	mu     sync.Mutex
	seqs   []int64
	sealed bool
	late   int
}

func (r *recordingAggregate) Update(msg *task.Message) {
	r.mu.Lock()
	r.seqs = append(r.seqs, msg.LedgerSeq)
	if r.sealed {
		r.late++
	}
	r.mu.Unlock()
	r.AccountState.Update(msg)
}

func (r *recordingAggregate) applied() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.seqs...)
}

func (r *recordingAggregate) seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *recordingAggregate) lateUpdates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.late
}

// aggregates hands out recording aggregates and remembers them per account.
type aggregates struct {
	mu   sync.Mutex
	byID map[string][]*recordingAggregate
}

func (a *aggregates) factory(account string) Aggregate {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.byID == nil {
		a.byID = make(map[string][]*recordingAggregate)
	}
	r := &recordingAggregate{AccountState: task.NewAccountState(account)}
	a.byID[account] = append(a.byID[account], r)
	return r
}

func (a *aggregates) latest(account string) *recordingAggregate {
	a.mu.Lock()
	defer a.mu.Unlock()
	list := a.byID[account]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// blockingAggregate holds every Update until release is closed.
type blockingAggregate struct {
	*task.AccountState

	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
	inFlight atomic.Bool
}

func newBlockingAggregate(account string) *blockingAggregate {
	return &blockingAggregate{
		AccountState: task.NewAccountState(account),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (b *blockingAggregate) Update(msg *task.Message) {
	b.inFlight.Store(true)
	defer b.inFlight.Store(false)
	b.once.Do(func() { close(b.entered) })
	<-b.release
	b.AccountState.Update(msg)
}

// invalidatingSource records which accounts had their history dropped.
type invalidatingSource struct {
	*fakeSource

	invMu sync.Mutex
	inv   []string
}

func (s *invalidatingSource) Invalidate(_ context.Context, account string) error {
	s.invMu.Lock()
	defer s.invMu.Unlock()
	s.inv = append(s.inv, account)
	return nil
}

func (s *invalidatingSource) invalidated() []string {
	s.invMu.Lock()
	defer s.invMu.Unlock()
	return append([]string(nil), s.inv...)
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EarliestLedger = 1
	cfg.GraceDelay = 0
	cfg.ActiveInterval = 5 * time.Millisecond
	cfg.BackoffBase = 5 * time.Millisecond
	cfg.BackoffCap = 20 * time.Millisecond
	cfg.SweepInterval = 0
	return cfg
}

func newTestManager(t *testing.T, source ledger.Source, cfg Config, opts ...Option) *Manager {
	t.Helper()
	decoders := []task.Decoder{task.NewTaskDecoder(taskNode), task.NewRemembrancerDecoder(memoNode)}
	m, err := New(source, decoders, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}
