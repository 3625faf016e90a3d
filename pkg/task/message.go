// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package task decodes PostFiat node messages out of ledger transactions and
// folds them into per-account task state.
package task

import (
	"context"
	"iter"
	"strconv"
	"time"

	"github.com/postfiatorg/postfiat-wallet/pkg/ledger"
)

// Direction is which way a message travelled between the user and a node.
type Direction int

// Message directions.
const (
	UserToNode Direction = iota
	NodeToUser
)

func (d Direction) String() string {
	if d == NodeToUser {
		return "node_to_user"
	}
	return "user_to_node"
}

// Kind classifies a decoded message.
type Kind int

// Message kinds.
const (
	KindRequest Kind = iota
	KindProposal
	KindAcceptance
	KindRefusal
	KindCompletion
	KindChallenge
	KindChallengeResponse
	KindReward
	KindInitiationRite
	KindInitiationReward
	KindContextDocLink
	KindHandshake
	KindBlacklist
	KindMemo
)

var kindNames = [...]string{
	KindRequest:           "request",
	KindProposal:          "proposal",
	KindAcceptance:        "acceptance",
	KindRefusal:           "refusal",
	KindCompletion:        "completion",
	KindChallenge:         "challenge",
	KindChallengeResponse: "challenge_response",
	KindReward:            "reward",
	KindInitiationRite:    "initiation_rite",
	KindInitiationReward:  "initiation_reward",
	KindContextDocLink:    "context_doc_link",
	KindHandshake:         "handshake",
	KindBlacklist:         "blacklist",
	KindMemo:              "memo",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Message is one application message carried by a ledger transaction.
type Message struct {
	LedgerSeq int64
	Hash      string
	Timestamp time.Time
	Direction Direction
	Kind      Kind
	// TaskID is empty for account-level messages.
	TaskID string
	Node   string
	User   string
	// Body is the memo payload with any protocol prefix removed.
	Body string
	// PFT is the PFT amount delivered by the transaction, as a decimal string.
	PFT string
	// Offered is the PFT amount named in a proposal.
	Offered string
	// Encrypted is set when Body is still ciphertext.
	Encrypted bool
}

// MessageID identifies the message; it is the carrying transaction's hash.
func (m *Message) MessageID() string {
	return m.Hash
}

// AmountPFT returns the delivered PFT amount, or 0.
func (m *Message) AmountPFT() float64 {
	v, err := strconv.ParseFloat(m.PFT, 64)
	if err != nil {
		return 0
	}
	return v
}

// KeyMaterial is optional user key material for reading encrypted messages.
type KeyMaterial struct {
	// Decrypt returns the plaintext of a message exchanged with node.
	Decrypt func(ctx context.Context, node, ciphertext string) (string, error)
}

// Decoder turns an account's transactions into the messages it exchanged
// with one node. Decoders are stateless and safe for concurrent use.
type Decoder interface {
	// Node is the node address the decoder reads messages for.
	Node() string
	// Decode lazily maps txns to messages, preserving ledger order.
	// Transactions that carry no message for this node are skipped.
	Decode(ctx context.Context, txns iter.Seq2[*ledger.Transaction, error], keys *KeyMaterial) iter.Seq2[*Message, error]
}
