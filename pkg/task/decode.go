// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"iter"
	"regexp"
	"strings"

	"github.com/postfiatorg/postfiat-wallet/pkg/errors"
	"github.com/postfiatorg/postfiat-wallet/pkg/ledger"
	"github.com/postfiatorg/postfiat-wallet/pkg/logger"
)

// PFTCurrency is the currency code of the PostFiat token.
const PFTCurrency = "PFT"

// encryptedPrefix marks memo data encrypted with the user/node shared secret.
const encryptedPrefix = "WHISPER__"

// Control memo types understood by the task node.
const (
	memoInitiationRite   = "INITIATION_RITE"
	memoInitiationReward = "INITIATION_REWARD"
	memoContextDocLink   = "google_doc_context_link"
	memoHandshake        = "HANDSHAKE"
	memoBlacklist        = "BLACKLIST"
)

// proposalSeparator splits a proposal's statement from its offered amount.
const proposalSeparator = " .. "

var taskIDPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{2}:\d{2}(__[A-Z0-9]{4})?$`)

var taskPrefixes = []struct {
	prefix string
	kind   Kind
}{
	{"REQUEST_POST_FIAT ___", KindRequest},
	{"PROPOSED PF ___", KindProposal},
	{"ACCEPTANCE REASON ___", KindAcceptance},
	{"REFUSAL REASON ___", KindRefusal},
	{"COMPLETION JUSTIFICATION ___", KindCompletion},
	{"VERIFICATION PROMPT ___", KindChallenge},
	{"VERIFICATION RESPONSE ___", KindChallengeResponse},
	{"REWARD RESPONSE __", KindReward},
}

// IsTaskID reports whether s has the shape of a task identifier.
func IsTaskID(s string) bool {
	return taskIDPattern.MatchString(s)
}

// classifyFunc fills in the kind-specific fields of msg from the memo type
// and the (decrypted) memo data. It returns false if the memo is not a
// message this decoder understands.
type classifyFunc func(msg *Message, memoType, data string) bool

// decodeStream is shared by the decoders: it resolves the direction, picks
// the memo, decrypts it when possible and hands it to classify.
func decodeStream(
	ctx context.Context,
	node string,
	txns iter.Seq2[*ledger.Transaction, error],
	keys *KeyMaterial,
	classify classifyFunc,
) iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		for tx, err := range txns {
			if err != nil {
				yield(nil, err)
				return
			}
			if tx == nil || tx.Hash == "" || tx.LedgerIndex <= 0 {
				yield(nil, errors.NewDecodeFailureError("transaction without hash or ledger index", nil))
				return
			}
			msg, ok := decodeOne(ctx, node, tx, keys, classify)
			if !ok {
				continue
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

func decodeOne(ctx context.Context, node string, tx *ledger.Transaction, keys *KeyMaterial, classify classifyFunc) (*Message, bool) {
	if !tx.Succeeded() {
		return nil, false
	}
	memo, ok := firstMemo(tx.Memos)
	if !ok {
		return nil, false
	}

	msg := &Message{
		LedgerSeq: tx.LedgerIndex,
		Hash:      tx.Hash,
		Timestamp: tx.Timestamp,
		Node:      node,
	}
	switch {
	case tx.Account == node && tx.Destination != "" && tx.Destination != node:
		msg.Direction, msg.User = NodeToUser, tx.Destination
	case tx.Destination == node && tx.Account != "" && tx.Account != node:
		msg.Direction, msg.User = UserToNode, tx.Account
	default:
		return nil, false
	}
	if tx.Delivered.Currency == PFTCurrency {
		msg.PFT = tx.Delivered.Value
	}

	data := memo.Data
	if strings.HasPrefix(data, encryptedPrefix) {
		data, msg.Encrypted = decrypt(ctx, node, data, keys)
	}
	return msg, classify(msg, memo.Type, data)
}

func firstMemo(memos []ledger.Memo) (ledger.Memo, bool) {
	for _, m := range memos {
		if m.Type != "" || m.Data != "" {
			return m, true
		}
	}
	return ledger.Memo{}, false
}

// decrypt returns the plaintext and false, or the ciphertext and true when
// no key material is available or decryption fails.
func decrypt(ctx context.Context, node, data string, keys *KeyMaterial) (string, bool) {
	if keys == nil || keys.Decrypt == nil {
		return data, true
	}
	plain, err := keys.Decrypt(ctx, node, strings.TrimPrefix(data, encryptedPrefix))
	if err != nil {
		logger.Debugw("Failed to decrypt message", "node", node, "error", err)
		return data, true
	}
	return plain, false
}

// TaskDecoder reads the task protocol spoken with the primary task node.
type TaskDecoder struct {
	node string
}

// NewTaskDecoder creates a decoder for messages exchanged with node.
func NewTaskDecoder(node string) *TaskDecoder {
	return &TaskDecoder{node: node}
}

// Node implements Decoder.
func (d *TaskDecoder) Node() string {
	return d.node
}

// Decode implements Decoder.
func (d *TaskDecoder) Decode(
	ctx context.Context, txns iter.Seq2[*ledger.Transaction, error], keys *KeyMaterial,
) iter.Seq2[*Message, error] {
	return decodeStream(ctx, d.node, txns, keys, classifyTask)
}

func classifyTask(msg *Message, memoType, data string) bool {
	if IsTaskID(memoType) {
		if msg.Encrypted {
			return false
		}
		for _, p := range taskPrefixes {
			if !strings.HasPrefix(data, p.prefix) {
				continue
			}
			msg.Kind = p.kind
			msg.TaskID = memoType
			msg.Body = strings.TrimSpace(strings.TrimPrefix(data, p.prefix))
			if p.kind == KindProposal {
				msg.Body, msg.Offered = splitProposal(msg.Body)
			}
			return true
		}
		return false
	}

	msg.Body = strings.TrimSpace(data)
	switch memoType {
	case memoInitiationRite:
		msg.Kind = KindInitiationRite
	case memoInitiationReward:
		msg.Kind = KindInitiationReward
	case memoContextDocLink:
		msg.Kind = KindContextDocLink
	case memoHandshake:
		msg.Kind = KindHandshake
	case memoBlacklist:
		msg.Kind = KindBlacklist
	default:
		return false
	}
	return true
}

// splitProposal splits "<statement> .. <amount>". A proposal without an
// amount keeps the whole body as its statement.
func splitProposal(body string) (statement, amount string) {
	idx := strings.LastIndex(body, proposalSeparator)
	if idx < 0 {
		return body, ""
	}
	return strings.TrimSpace(body[:idx]), strings.TrimSpace(body[idx+len(proposalSeparator):])
}

// RemembrancerDecoder reads the free-form memo conversation held with the
// long-term-memory node.
type RemembrancerDecoder struct {
	node string
}

// NewRemembrancerDecoder creates a decoder for messages exchanged with node.
func NewRemembrancerDecoder(node string) *RemembrancerDecoder {
	return &RemembrancerDecoder{node: node}
}

// Node implements Decoder.
func (d *RemembrancerDecoder) Node() string {
	return d.node
}

// Decode implements Decoder.
func (d *RemembrancerDecoder) Decode(
	ctx context.Context, txns iter.Seq2[*ledger.Transaction, error], keys *KeyMaterial,
) iter.Seq2[*Message, error] {
	return decodeStream(ctx, d.node, txns, keys, classifyMemo)
}

func classifyMemo(msg *Message, memoType, data string) bool {
	msg.Body = data
	if memoType == memoHandshake {
		msg.Kind = KindHandshake
		return true
	}
	if data == "" {
		return false
	}
	msg.Kind = KindMemo
	return true
}
