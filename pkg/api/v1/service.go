// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package v1 contains the version 1 HTTP routes of the wallet API.
package v1

import (
	"context"

	"github.com/postfiatorg/postfiat-wallet/pkg/ledger/rpc"
	"github.com/postfiatorg/postfiat-wallet/pkg/task"
	"github.com/postfiatorg/postfiat-wallet/pkg/taskcache"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go TaskService,BalanceService

// TaskService is the task cache as seen by the API.
type TaskService interface {
	Initialize(ctx context.Context, account string) error
	StartRefresh(account string) error
	StopRefresh(account string)
	Clear(account string)
	TasksByStatus(ctx context.Context, account string, status *task.Status) ([]taskcache.TaskView, error)
	TasksByUISection(ctx context.Context, account string) (map[string][]taskcache.TaskView, error)
	Payments(ctx context.Context, account string, from, to *int64) ([]taskcache.PaymentView, error)
	AccountStatus(account string) taskcache.StatusView
	NodeMessages(ctx context.Context, account, node string) ([]taskcache.NodeMessageView, error)
}

// BalanceService looks up account balances on the ledger.
type BalanceService interface {
	Balances(ctx context.Context, account, pftIssuer string) (*rpc.Balances, error)
}

var _ TaskService = (*taskcache.Manager)(nil)
var _ BalanceService = (*rpc.Client)(nil)
