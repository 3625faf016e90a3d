// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/postfiatorg/postfiat-wallet/pkg/errors"
)

// rippleEpochOffset is the number of seconds between the Unix epoch and the
// Ripple epoch (2000-01-01T00:00:00Z).
const rippleEpochOffset = 946684800

// ParseTransaction decodes one entry of an account_tx "transactions" array.
// Both the API v1 shape ({"tx": ..., "meta": ...}) and the API v2 shape
// ({"tx_json": ..., "hash": ..., "ledger_index": ...}) are accepted.
func ParseTransaction(raw []byte) (*Transaction, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.NewDecodeFailureError("transaction is not valid JSON", nil)
	}
	return parseEntry(gjson.ParseBytes(raw))
}

func parseEntry(entry gjson.Result) (*Transaction, error) {
	tx := entry.Get("tx_json")
	if !tx.Exists() {
		tx = entry.Get("tx")
	}
	if !tx.Exists() {
		tx = entry
	}

	hash := firstOf(entry.Get("hash"), tx.Get("hash")).String()
	if hash == "" {
		return nil, errors.NewDecodeFailureError("transaction has no hash", nil)
	}
	ledgerIndex := firstOf(entry.Get("ledger_index"), tx.Get("ledger_index")).Int()
	if ledgerIndex <= 0 {
		return nil, errors.NewDecodeFailureError("transaction "+hash+" has no ledger index", nil)
	}

	meta := entry.Get("meta")
	if !meta.Exists() {
		meta = entry.Get("metaData")
	}

	t := &Transaction{
		Hash:        hash,
		LedgerIndex: ledgerIndex,
		Type:        tx.Get("TransactionType").String(),
		Account:     tx.Get("Account").String(),
		Destination: tx.Get("Destination").String(),
		Result:      meta.Get("TransactionResult").String(),
		Raw:         []byte(entry.Raw),
	}

	if date := firstOf(tx.Get("date"), entry.Get("date")); date.Exists() {
		t.Timestamp = time.Unix(date.Int()+rippleEpochOffset, 0).UTC()
	}

	delivered := meta.Get("delivered_amount")
	if !delivered.Exists() || delivered.String() == "unavailable" {
		delivered = firstOf(tx.Get("DeliverMax"), tx.Get("Amount"))
	}
	t.Delivered = parseAmount(delivered)

	tx.Get("Memos.#.Memo").ForEach(func(_, memo gjson.Result) bool {
		t.Memos = append(t.Memos, Memo{
			Type:   decodeHexField(memo.Get("MemoType").String()),
			Data:   decodeHexField(memo.Get("MemoData").String()),
			Format: decodeHexField(memo.Get("MemoFormat").String()),
		})
		return true
	})

	return t, nil
}

func parseAmount(v gjson.Result) Amount {
	switch {
	case !v.Exists():
		return Amount{}
	case v.IsObject():
		return Amount{
			Currency: v.Get("currency").String(),
			Issuer:   v.Get("issuer").String(),
			Value:    v.Get("value").String(),
		}
	default:
		return Amount{Currency: XRPCurrency, Value: v.String()}
	}
}

func firstOf(results ...gjson.Result) gjson.Result {
	for _, r := range results {
		if r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

// decodeHexField decodes a hex memo field. Fields that are not hex are
// returned as-is; some clients write plain text memos.
func decodeHexField(s string) string {
	if s == "" {
		return ""
	}
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return string(b)
}
