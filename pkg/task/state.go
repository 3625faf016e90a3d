// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"maps"
	"strings"
	"time"
)

// HistoryEntry is one message in a task's conversation.
type HistoryEntry struct {
	Timestamp time.Time
	Direction Direction
	Data      string
}

// TaskState is the folded state of one task.
type TaskState struct {
	ID                  string
	Status              Status
	PFTOffered          string
	PFTRewarded         string
	History             []HistoryEntry
	TaskRequest         string
	TaskStatement       string
	CompletionStatement string
	ChallengeStatement  string
	ChallengeResponse   string
	// FirstLedger is the ledger of the first message seen for the task.
	FirstLedger int64
	// LastLedger is the ledger of the latest message seen for the task.
	LastLedger int64
}

// Handshake holds the encryption public keys exchanged with a node.
type Handshake struct {
	UserKey string `json:"user_key,omitempty"`
	NodeKey string `json:"node_key,omitempty"`
}

// Complete reports whether both sides have sent their key.
func (h Handshake) Complete() bool {
	return h.UserKey != "" && h.NodeKey != ""
}

// AccountStatus is the account-level state kept by the task node.
type AccountStatus struct {
	InitRiteStatus    InitRiteStatus
	InitRiteStatement string
	ContextDocLink    string
	Blacklisted       bool
	// Handshakes is keyed by node address.
	Handshakes map[string]Handshake
}

// DefaultAccountStatus is the status of an account with no known history.
func DefaultAccountStatus() AccountStatus {
	return AccountStatus{InitRiteStatus: InitRiteUnstarted}
}

// AccountState folds an account's messages, in ledger order, into task and
// account-level state. It is not safe for concurrent use.
type AccountState struct {
	account  string
	tasks    map[string]*TaskState
	status   AccountStatus
	memos    int
	lastSeen int64
}

// NewAccountState creates empty state for account.
func NewAccountState(account string) *AccountState {
	return &AccountState{
		account: account,
		tasks:   make(map[string]*TaskState),
		status:  DefaultAccountStatus(),
	}
}

// Account returns the account the state belongs to.
func (a *AccountState) Account() string {
	return a.account
}

// LastLedger returns the ledger of the latest message applied.
func (a *AccountState) LastLedger() int64 {
	return a.lastSeen
}

// MemoCount returns the number of free-form memos applied.
func (a *AccountState) MemoCount() int {
	return a.memos
}

// Tasks returns the task map. Callers must not modify it.
func (a *AccountState) Tasks() map[string]*TaskState {
	return a.tasks
}

// AccountStatus returns a copy of the account-level state.
func (a *AccountState) AccountStatus() AccountStatus {
	st := a.status
	st.Handshakes = maps.Clone(a.status.Handshakes)
	return st
}

// Update applies one message. Messages for a different user are ignored.
func (a *AccountState) Update(msg *Message) {
	if msg == nil || (msg.User != "" && a.account != "" && msg.User != a.account) {
		return
	}
	a.lastSeen = max(a.lastSeen, msg.LedgerSeq)

	if msg.TaskID != "" {
		a.updateTask(msg)
		return
	}

	switch msg.Kind {
	case KindInitiationRite:
		if msg.Direction == UserToNode {
			a.status.InitRiteStatus = InitRitePending
			a.status.InitRiteStatement = msg.Body
		}
	case KindInitiationReward:
		if msg.Direction == NodeToUser {
			if strings.Contains(strings.ToUpper(msg.Body), "REJECT") {
				a.status.InitRiteStatus = InitRiteRejected
			} else {
				a.status.InitRiteStatus = InitRiteComplete
			}
		}
	case KindContextDocLink:
		if msg.Direction == UserToNode {
			a.status.ContextDocLink = msg.Body
		}
	case KindBlacklist:
		if msg.Direction == NodeToUser {
			a.status.Blacklisted = true
		}
	case KindHandshake:
		if a.status.Handshakes == nil {
			a.status.Handshakes = make(map[string]Handshake)
		}
		h := a.status.Handshakes[msg.Node]
		if msg.Direction == UserToNode {
			h.UserKey = msg.Body
		} else {
			h.NodeKey = msg.Body
		}
		a.status.Handshakes[msg.Node] = h
	case KindMemo:
		a.memos++
	}
}

func (a *AccountState) updateTask(msg *Message) {
	t, ok := a.tasks[msg.TaskID]
	if !ok {
		t = &TaskState{ID: msg.TaskID, FirstLedger: msg.LedgerSeq}
		a.tasks[msg.TaskID] = t
	}
	t.LastLedger = msg.LedgerSeq
	t.History = append(t.History, HistoryEntry{
		Timestamp: msg.Timestamp,
		Direction: msg.Direction,
		Data:      msg.Body,
	})

	// a task must open with a request or a proposal
	opens := msg.Kind == KindRequest || msg.Kind == KindProposal
	if !ok && !opens {
		t.Status = StatusInvalid
		return
	}
	// invalid is terminal; later messages are only recorded
	if ok && t.Status == StatusInvalid {
		return
	}

	switch msg.Kind {
	case KindRequest:
		t.TaskRequest = msg.Body
		t.Status = StatusRequested
	case KindProposal:
		t.TaskStatement = msg.Body
		t.PFTOffered = msg.Offered
		t.Status = StatusProposed
	case KindAcceptance:
		t.Status = StatusAccepted
	case KindRefusal:
		t.Status = StatusRefused
	case KindCompletion:
		t.CompletionStatement = msg.Body
		t.Status = StatusCompleted
	case KindChallenge:
		t.ChallengeStatement = msg.Body
		t.Status = StatusChallenged
	case KindChallengeResponse:
		t.ChallengeResponse = msg.Body
		t.Status = StatusResponded
	case KindReward:
		if msg.PFT != "" {
			t.PFTRewarded = msg.PFT
		}
		t.Status = StatusRewarded
	}
}
