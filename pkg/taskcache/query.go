// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package taskcache

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/postfiatorg/postfiat-wallet/pkg/errors"
	"github.com/postfiatorg/postfiat-wallet/pkg/ledger"
	"github.com/postfiatorg/postfiat-wallet/pkg/task"
)

// MessageView is one entry of a task's message history.
type MessageView struct {
	Timestamp *string `json:"timestamp"`
	Direction string  `json:"direction"`
	Data      string  `json:"data"`
}

// TaskView is the caller-facing projection of a task.
type TaskView struct {
	ID                  string        `json:"id"`
	Status              string        `json:"status"`
	PFTOffered          *string       `json:"pft_offered"`
	PFTRewarded         *string       `json:"pft_rewarded"`
	MessageHistory      []MessageView `json:"message_history"`
	TaskRequest         *string       `json:"task_request"`
	TaskStatement       *string       `json:"task_statement"`
	CompletionStatement *string       `json:"completion_statement"`
	ChallengeStatement  *string       `json:"challenge_statement"`
	ChallengeResponse   *string       `json:"challenge_response"`
	// LastUpdated is when a message last touched the task, in unix seconds,
	// or 0.
	LastUpdated float64 `json:"last_updated"`

	firstLedger int64
}

// PaymentView is a plain payment to or from the account.
type PaymentView struct {
	LedgerIndex int64   `json:"ledger_index"`
	Timestamp   *string `json:"timestamp"`
	Hash        string  `json:"hash"`
	FromAddress string  `json:"from_address"`
	ToAddress   string  `json:"to_address"`
	AmountXRP   float64 `json:"amount_xrp"`
	AmountPFT   float64 `json:"amount_pft"`
	MemoData    *string `json:"memo_data"`
}

// StatusView is the account-level status.
type StatusView struct {
	InitRiteStatus    string                    `json:"init_rite_status"`
	ContextDocLink    *string                   `json:"context_doc_link"`
	IsBlacklisted     bool                      `json:"is_blacklisted"`
	InitRiteStatement *string                   `json:"init_rite_statement"`
	Handshakes        map[string]task.Handshake `json:"handshakes,omitempty"`
}

// NodeMessageView is one message exchanged with a node.
type NodeMessageView struct {
	MessageID string  `json:"message_id"`
	Direction string  `json:"direction"`
	Message   string  `json:"message"`
	Encrypted bool    `json:"encrypted"`
	Timestamp float64 `json:"timestamp"`
	AmountPFT float64 `json:"amount_pft"`
}

// ensureSession returns the session for account, running the backfill
// first if it has never synced.
func (m *Manager) ensureSession(ctx context.Context, account string) (*Session, error) {
	if account == "" {
		return nil, errors.NewInvalidArgumentError("account is required", nil)
	}
	s := m.getOrCreate(account)
	s.touch(m.now())
	if s.Cursor() != NoCursor {
		return s, nil
	}
	if _, err := m.sync(ctx, s); err != nil {
		return nil, errors.NewNotInitializedError("failed to load tasks for account "+account, err)
	}
	return s, nil
}

// TasksByStatus returns the account's tasks, all of them or only those with
// the given status, ordered by first appearance. A never-synced account is
// backfilled first.
func (m *Manager) TasksByStatus(ctx context.Context, account string, status *task.Status) ([]TaskView, error) {
	s, err := m.ensureSession(ctx, account)
	if err != nil {
		return nil, err
	}

	views := []TaskView{}
	s.read(func(agg Aggregate, taskUpdated map[string]time.Time) {
		for id, t := range agg.Tasks() {
			if status != nil && t.Status != *status {
				continue
			}
			views = append(views, projectTask(t, taskUpdated[id]))
		}
	})
	slices.SortFunc(views, func(a, b TaskView) int {
		if c := cmp.Compare(a.firstLedger, b.firstLedger); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return views, nil
}

// TasksByUISection returns the account's tasks grouped by status name. Every
// status is present, mapped to an empty list if it has no tasks.
func (m *Manager) TasksByUISection(ctx context.Context, account string) (map[string][]TaskView, error) {
	views, err := m.TasksByStatus(ctx, account, nil)
	if err != nil {
		return nil, err
	}
	sections := make(map[string][]TaskView, len(task.AllStatuses()))
	for _, st := range task.AllStatuses() {
		sections[st.String()] = []TaskView{}
	}
	for _, v := range views {
		sections[v.Status] = append(sections[v.Status], v)
	}
	return sections, nil
}

func projectTask(t *task.TaskState, updated time.Time) TaskView {
	history := make([]MessageView, 0, len(t.History))
	for _, h := range t.History {
		history = append(history, MessageView{
			Timestamp: isoTime(h.Timestamp),
			Direction: h.Direction.String(),
			Data:      h.Data,
		})
	}
	v := TaskView{
		ID:                  t.ID,
		Status:              t.Status.String(),
		PFTOffered:          optional(t.PFTOffered),
		PFTRewarded:         optional(t.PFTRewarded),
		MessageHistory:      history,
		TaskRequest:         optional(t.TaskRequest),
		TaskStatement:       optional(t.TaskStatement),
		CompletionStatement: optional(t.CompletionStatement),
		ChallengeStatement:  optional(t.ChallengeStatement),
		ChallengeResponse:   optional(t.ChallengeResponse),
		firstLedger:         t.FirstLedger,
	}
	if !updated.IsZero() {
		v.LastUpdated = float64(updated.UnixNano()) / float64(time.Second)
	}
	return v
}

// Payments lists plain payments of the account with ledger index in
// [from, to], read directly from the transaction source. Transactions with
// any of the cache's nodes are left out. Nil bounds mean the earliest and
// the latest ledger.
func (m *Manager) Payments(ctx context.Context, account string, from, to *int64) ([]PaymentView, error) {
	if account == "" {
		return nil, errors.NewInvalidArgumentError("account is required", nil)
	}
	lo, hi := m.config.EarliestLedger, ledger.LatestLedger
	if from != nil {
		lo = *from
	}
	if to != nil {
		hi = *to
	}
	if hi != ledger.LatestLedger && hi < lo {
		return nil, errors.NewInvalidArgumentError("end ledger is before start ledger", nil)
	}
	if s, ok := m.lookup(account); ok {
		s.touch(m.now())
	}

	nodes := m.Nodes()
	payments := []PaymentView{}
	for tx, err := range m.source.Transactions(ctx, account, lo, hi) {
		if err != nil {
			return nil, err
		}
		if !tx.IsPayment() || (tx.Result != "" && !tx.Succeeded()) {
			continue
		}
		if slices.ContainsFunc(nodes, tx.Involves) {
			continue
		}
		p := PaymentView{
			LedgerIndex: tx.LedgerIndex,
			Timestamp:   isoTime(tx.Timestamp),
			Hash:        tx.Hash,
			FromAddress: tx.Account,
			ToAddress:   tx.Destination,
			AmountXRP:   tx.Delivered.XRP(),
		}
		if tx.Delivered.Currency == task.PFTCurrency {
			p.AmountPFT = tx.Delivered.Float()
		}
		if len(tx.Memos) > 0 {
			p.MemoData = optional(tx.Memos[0].Data)
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// AccountStatus returns the account-level status. An account with no
// cached state reports the defaults without triggering a backfill.
func (m *Manager) AccountStatus(account string) StatusView {
	st := task.DefaultAccountStatus()
	if s, ok := m.lookup(account); ok {
		s.touch(m.now())
		s.read(func(agg Aggregate, _ map[string]time.Time) {
			st = agg.AccountStatus()
		})
	}
	return StatusView{
		InitRiteStatus:    string(st.InitRiteStatus),
		ContextDocLink:    optional(st.ContextDocLink),
		IsBlacklisted:     st.Blacklisted,
		InitRiteStatement: optional(st.InitRiteStatement),
		Handshakes:        st.Handshakes,
	}
}

// NodeMessages returns every message the account exchanged with node,
// decoded straight from the transaction source and ordered by time.
func (m *Manager) NodeMessages(ctx context.Context, account, node string) ([]NodeMessageView, error) {
	idx := slices.IndexFunc(m.decoders, func(d task.Decoder) bool { return d.Node() == node })
	if idx < 0 {
		return nil, errors.NewInvalidArgumentError("unknown node: "+node, nil)
	}
	if _, err := m.ensureSession(ctx, account); err != nil {
		return nil, err
	}

	txns := m.source.Transactions(ctx, account, m.config.EarliestLedger, ledger.LatestLedger)
	messages := []NodeMessageView{}
	for msg, err := range m.decoders[idx].Decode(ctx, txns, m.keys(account)) {
		if err != nil {
			return nil, err
		}
		v := NodeMessageView{
			MessageID: msg.MessageID(),
			Direction: "USER_TO_NODE",
			Message:   msg.Body,
			Encrypted: msg.Encrypted,
			AmountPFT: msg.AmountPFT(),
		}
		if msg.Direction == task.NodeToUser {
			v.Direction = "NODE_TO_USER"
		}
		if !msg.Timestamp.IsZero() {
			v.Timestamp = float64(msg.Timestamp.Unix())
		}
		messages = append(messages, v)
	}
	slices.SortStableFunc(messages, func(a, b NodeMessageView) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return messages, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isoTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

