// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/postfiatorg/postfiat-wallet/pkg/api/errors"
	"github.com/postfiatorg/postfiat-wallet/pkg/errors"
)

// AccountRoutes defines the account level routes.
type AccountRoutes struct {
	service   TaskService
	balances  BalanceService
	pftIssuer string
}

// AccountRouter creates the account routes.
func AccountRouter(service TaskService, balances BalanceService, pftIssuer string) http.Handler {
	routes := AccountRoutes{service: service, balances: balances, pftIssuer: pftIssuer}

	r := chi.NewRouter()
	r.Get("/{account}/status", apierrors.ErrorHandler(routes.getStatus))
	r.Get("/{account}/summary", apierrors.ErrorHandler(routes.getSummary))
	return r
}

type summaryResponse struct {
	Address    string  `json:"address"`
	XRPBalance float64 `json:"xrp_balance"`
	PFTBalance float64 `json:"pft_balance"`
}

// getStatus
//
//	@Summary	Get the initiation, context document and blacklist status of an account
//	@Tags		account
//	@Produce	json
//	@Param		account	path		string	true	"Account address"
//	@Success	200		{object}	taskcache.StatusView
//	@Failure	400		{string}	string	"Bad Request"
//	@Router		/api/v1/account/{account}/status [get]
func (s *AccountRoutes) getStatus(w http.ResponseWriter, r *http.Request) error {
	account, err := accountParam(r)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, s.service.AccountStatus(account))
}

// getSummary
//
//	@Summary	Get the XRP and PFT balances of an account
//	@Tags		account
//	@Produce	json
//	@Param		account	path		string	true	"Account address"
//	@Success	200		{object}	summaryResponse
//	@Failure	400		{string}	string	"Bad Request"
//	@Failure	502		{string}	string	"Bad Gateway"
//	@Router		/api/v1/account/{account}/summary [get]
func (s *AccountRoutes) getSummary(w http.ResponseWriter, r *http.Request) error {
	account, err := accountParam(r)
	if err != nil {
		return err
	}
	b, err := s.balances.Balances(r.Context(), account, s.pftIssuer)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, summaryResponse{Address: account, XRPBalance: b.XRP, PFTBalance: b.PFT})
}

// PaymentRoutes defines the payment history routes.
type PaymentRoutes struct {
	service TaskService
}

// PaymentRouter creates the payment routes.
func PaymentRouter(service TaskService) http.Handler {
	routes := PaymentRoutes{service: service}

	r := chi.NewRouter()
	r.Get("/{account}", apierrors.ErrorHandler(routes.listPayments))
	return r
}

type paymentListResponse struct {
	Payments any `json:"payments"`
}

// listPayments
//
//	@Summary	List plain payments of an account
//	@Tags		payments
//	@Produce	json
//	@Param		account			path		string	true	"Account address"
//	@Param		start_ledger	query		int		false	"First ledger"
//	@Param		end_ledger		query		int		false	"Last ledger"
//	@Success	200				{object}	paymentListResponse
//	@Failure	400				{string}	string	"Bad Request"
//	@Failure	502				{string}	string	"Bad Gateway"
//	@Router		/api/v1/payments/{account} [get]
func (s *PaymentRoutes) listPayments(w http.ResponseWriter, r *http.Request) error {
	account, err := accountParam(r)
	if err != nil {
		return err
	}
	from, err := ledgerParam(r, "start_ledger")
	if err != nil {
		return err
	}
	to, err := ledgerParam(r, "end_ledger")
	if err != nil {
		return err
	}

	payments, err := s.service.Payments(r.Context(), account, from, to)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, paymentListResponse{Payments: payments})
}

// ledgerParam parses an optional positive ledger index query parameter.
func ledgerParam(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, errors.NewInvalidArgumentError("invalid "+name+": "+raw, err)
	}
	return &v, nil
}

// MessageRoutes defines the routes for messages exchanged with nodes.
type MessageRoutes struct {
	service TaskService
	nodes   []string
}

// MessageRouter creates the message routes. Without a node query
// parameter, the first of nodes is used.
func MessageRouter(service TaskService, nodes []string) http.Handler {
	routes := MessageRoutes{service: service, nodes: nodes}

	r := chi.NewRouter()
	r.Get("/{account}", apierrors.ErrorHandler(routes.listMessages))
	return r
}

type messageListResponse struct {
	Messages any `json:"messages"`
}

// listMessages
//
//	@Summary	List the messages an account exchanged with a node
//	@Tags		messages
//	@Produce	json
//	@Param		account	path		string	true	"Account address"
//	@Param		node	query		string	false	"Node address"
//	@Success	200		{object}	messageListResponse
//	@Failure	400		{string}	string	"Bad Request"
//	@Router		/api/v1/messages/{account} [get]
func (s *MessageRoutes) listMessages(w http.ResponseWriter, r *http.Request) error {
	account, err := accountParam(r)
	if err != nil {
		return err
	}
	node := r.URL.Query().Get("node")
	if node == "" {
		if len(s.nodes) == 0 {
			return errors.NewInvalidArgumentError("node is required", nil)
		}
		node = s.nodes[0]
	}

	messages, err := s.service.NodeMessages(r.Context(), account, node)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, messageListResponse{Messages: messages})
}
