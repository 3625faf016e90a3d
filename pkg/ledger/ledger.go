// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ledger defines the raw XRP Ledger transaction model and the
// contracts for reading an account's transaction history.
//
// A Source yields an account's transactions lazily, in ascending ledger
// order, for a closed ledger range. Sources must be safe for concurrent use:
// the task cache opens one independent read per decoder for every sync.
package ledger

import (
	"context"
	"encoding/json"
	"iter"
	"regexp"
	"strconv"
	"time"

	"github.com/postfiatorg/postfiat-wallet/pkg/errors"
)

// LatestLedger as the upper bound of a range means "latest validated ledger".
const LatestLedger int64 = -1

// XRPCurrency is the currency code used for native XRP amounts (in drops).
const XRPCurrency = "XRP"

// dropsPerXRP is the number of drops in one XRP.
const dropsPerXRP = 1_000_000

// Source yields the transactions that touch an account.
type Source interface {
	// Transactions returns the account's transactions with ledger index in
	// [from, to], ascending. to may be LatestLedger. The sequence stops at the
	// first error, which is yielded with a nil transaction.
	Transactions(ctx context.Context, account string, from, to int64) iter.Seq2[*Transaction, error]
}

// Invalidator is implemented by sources that keep a copy of account
// history and can drop it.
type Invalidator interface {
	Invalidate(ctx context.Context, account string) error
}

// Page is one page of an account_tx style enumeration.
type Page struct {
	Transactions []*Transaction
	// Marker resumes the enumeration; empty on the last page.
	Marker json.RawMessage
	// LedgerIndexMax is the highest ledger the server searched.
	LedgerIndexMax int64
}

// Pager fetches single pages of an account's history.
type Pager interface {
	AccountTxPage(ctx context.Context, account string, from, to int64, marker json.RawMessage) (*Page, error)
}

// Paginate adapts a Pager into a lazy transaction sequence. A page is only
// requested once the consumer has drained the previous one.
func Paginate(ctx context.Context, pager Pager, account string, from, to int64) iter.Seq2[*Transaction, error] {
	return func(yield func(*Transaction, error) bool) {
		var marker json.RawMessage
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, err := pager.AccountTxPage(ctx, account, from, to, marker)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, tx := range page.Transactions {
				if !yield(tx, nil) {
					return
				}
			}
			if len(page.Marker) == 0 {
				return
			}
			marker = page.Marker
		}
	}
}

// Amount is an XRPL amount. Native XRP is expressed in drops.
type Amount struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer,omitempty"`
	Value    string `json:"value"`
}

// IsXRP reports whether the amount is native XRP.
func (a Amount) IsXRP() bool {
	return a.Currency == XRPCurrency
}

// Float returns the numeric value, or 0 if it does not parse.
func (a Amount) Float() float64 {
	v, err := strconv.ParseFloat(a.Value, 64)
	if err != nil {
		return 0
	}
	return v
}

// XRP returns the amount in XRP for native amounts and 0 otherwise.
func (a Amount) XRP() float64 {
	if !a.IsXRP() {
		return 0
	}
	return a.Float() / dropsPerXRP
}

// Memo is a transaction memo with its hex fields decoded.
type Memo struct {
	Type   string `json:"type"`
	Data   string `json:"data"`
	Format string `json:"format,omitempty"`
}

// Transaction is one validated ledger transaction affecting an account.
type Transaction struct {
	Hash        string
	LedgerIndex int64
	Timestamp   time.Time
	Type        string
	Account     string
	Destination string
	Result      string
	Delivered   Amount
	Memos       []Memo
	// Raw is the transaction as returned by the server, kept for caching.
	Raw json.RawMessage
}

// IsPayment reports whether the transaction is a Payment.
func (t *Transaction) IsPayment() bool {
	return t.Type == "Payment"
}

// Succeeded reports whether the transaction was applied successfully.
func (t *Transaction) Succeeded() bool {
	return t.Result == "tesSUCCESS"
}

// Involves reports whether address is the sender or the destination.
func (t *Transaction) Involves(address string) bool {
	return address != "" && (t.Account == address || t.Destination == address)
}

var classicAddress = regexp.MustCompile(`^r[1-9A-HJ-NP-Za-km-z]{24,34}$`)

// ValidateAddress checks that account looks like an XRPL classic address.
func ValidateAddress(account string) error {
	if account == "" {
		return errors.NewInvalidArgumentError("account is required", nil)
	}
	if !classicAddress.MatchString(account) {
		return errors.NewInvalidArgumentError("invalid account address: "+account, nil)
	}
	return nil
}
