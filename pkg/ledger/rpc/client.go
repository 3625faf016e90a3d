// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package rpc reads account history and balances from an XRPL node over
// JSON-RPC.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/postfiatorg/postfiat-wallet/pkg/errors"
	"github.com/postfiatorg/postfiat-wallet/pkg/ledger"
	"github.com/postfiatorg/postfiat-wallet/pkg/logger"
)

const (
	// DefaultEndpoint is the PostFiat XRPL JSON-RPC endpoint.
	DefaultEndpoint = "https://xrpl.postfiat.org:6007"

	defaultPageSize          = 200
	defaultRequestsPerSecond = 5
	defaultMaxRetries        = 3
	defaultRetryInterval     = 500 * time.Millisecond
	defaultTimeout           = 30 * time.Second

	// maxResponseBytes bounds a single response body.
	maxResponseBytes = 32 << 20
)

// Client is a JSON-RPC client for a rippled-compatible node. It implements
// ledger.Source and ledger.Pager and is safe for concurrent use.
type Client struct {
	endpoint      string
	httpClient    *http.Client
	limiter       *rate.Limiter
	pageSize      int
	maxRetries    uint
	retryInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit caps the request rate against the node.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithPageSize sets the account_tx page size.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRetry sets how many times a transient failure is retried and the
// initial retry interval.
func WithRetry(maxRetries uint, initial time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		if initial > 0 {
			c.retryInterval = initial
		}
	}
}

// NewClient creates a client for the given endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:      endpoint,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		limiter:       rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
		pageSize:      defaultPageSize,
		maxRetries:    defaultMaxRetries,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transactions implements ledger.Source.
func (c *Client) Transactions(ctx context.Context, account string, from, to int64) iter.Seq2[*ledger.Transaction, error] {
	return ledger.Paginate(ctx, c, account, from, to)
}

type accountTxParams struct {
	Account        string          `json:"account"`
	LedgerIndexMin int64           `json:"ledger_index_min"`
	LedgerIndexMax int64           `json:"ledger_index_max"`
	Forward        bool            `json:"forward"`
	Limit          int             `json:"limit"`
	Marker         json.RawMessage `json:"marker,omitempty"`
}

// AccountTxPage implements ledger.Pager with a forward account_tx call.
func (c *Client) AccountTxPage(
	ctx context.Context, account string, from, to int64, marker json.RawMessage,
) (*ledger.Page, error) {
	if from <= 0 {
		from = ledger.LatestLedger
	}
	result, err := c.call(ctx, "account_tx", accountTxParams{
		Account:        account,
		LedgerIndexMin: from,
		LedgerIndexMax: to,
		Forward:        true,
		Limit:          c.pageSize,
		Marker:         marker,
	})
	if err != nil {
		if isEmptyRange(err) {
			return &ledger.Page{}, nil
		}
		return nil, err
	}

	page := &ledger.Page{LedgerIndexMax: result.Get("ledger_index_max").Int()}
	var parseErr error
	result.Get("transactions").ForEach(func(_, entry gjson.Result) bool {
		tx, err := ledger.ParseTransaction([]byte(entry.Raw))
		if err != nil {
			parseErr = err
			return false
		}
		page.Transactions = append(page.Transactions, tx)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if m := result.Get("marker"); m.Exists() {
		page.Marker = json.RawMessage(m.Raw)
	}
	return page, nil
}

// Balances is an account's XRP and PFT holdings.
type Balances struct {
	XRP float64 `json:"xrp_balance"`
	PFT float64 `json:"pft_balance"`
}

type ledgerQueryParams struct {
	Account     string `json:"account"`
	LedgerIndex string `json:"ledger_index"`
}

// Balances returns the validated XRP balance and the PFT trust line balance
// issued by pftIssuer.
func (c *Client) Balances(ctx context.Context, account, pftIssuer string) (*Balances, error) {
	params := ledgerQueryParams{Account: account, LedgerIndex: "validated"}

	info, err := c.call(ctx, "account_info", params)
	if err != nil {
		return nil, err
	}
	drops := ledger.Amount{Currency: ledger.XRPCurrency, Value: info.Get("account_data.Balance").String()}

	lines, err := c.call(ctx, "account_lines", params)
	if err != nil {
		return nil, err
	}
	balances := &Balances{XRP: drops.XRP()}
	lines.Get("lines").ForEach(func(_, line gjson.Result) bool {
		if line.Get("currency").String() == "PFT" && line.Get("account").String() == pftIssuer {
			balances.PFT = line.Get("balance").Float()
			return false
		}
		return true
	})
	return balances, nil
}

// rpcError is an error status returned inside a JSON-RPC result.
type rpcError struct {
	Code    string
	Message string
}

func (e *rpcError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// isEmptyRange reports errors that mean there is nothing to read: the
// account is not funded yet, or the range starts past the latest validated
// ledger.
func isEmptyRange(err error) bool {
	var re *rpcError
	if !stderrors.As(err, &re) {
		return false
	}
	return re.Code == "actNotFound" || re.Code == "lgrIdxsInvalid"
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// call performs one JSON-RPC request, retrying transient failures with
// exponential backoff. The returned result is the "result" object.
func (c *Client) call(ctx context.Context, method string, params any) (gjson.Result, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Params: []any{params}})
	if err != nil {
		return gjson.Result{}, errors.NewInternalError("failed to encode "+method+" request", err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.retryInterval
	expBackoff.MaxInterval = 20 * c.retryInterval
	expBackoff.Reset()

	operation := func() (gjson.Result, error) {
		return c.do(ctx, body)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(c.maxRetries+1),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Debugw("Retrying ledger request", "method", method, "after", d, "error", err)
		}),
	)
	if err != nil {
		return gjson.Result{}, errors.NewSourceUnavailableError(method+" request failed", err)
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, body []byte) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return gjson.Result{}, backoff.Permanent(ctx.Err())
		}
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return gjson.Result{}, fmt.Errorf("node returned HTTP %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return gjson.Result{}, backoff.Permanent(fmt.Errorf("node returned HTTP %d", resp.StatusCode))
	}

	if !gjson.ValidBytes(data) {
		return gjson.Result{}, backoff.Permanent(fmt.Errorf("node returned invalid JSON"))
	}
	result := gjson.GetBytes(data, "result")
	if result.Get("status").String() == "error" {
		re := &rpcError{Code: result.Get("error").String(), Message: result.Get("error_message").String()}
		if re.Code == "slowDown" || re.Code == "tooBusy" {
			return gjson.Result{}, re
		}
		return gjson.Result{}, backoff.Permanent(re)
	}
	return result, nil
}
