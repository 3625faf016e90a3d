// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/postfiatorg/postfiat-wallet/pkg/api"
	"github.com/postfiatorg/postfiat-wallet/pkg/config"
	"github.com/postfiatorg/postfiat-wallet/pkg/ledger"
	"github.com/postfiatorg/postfiat-wallet/pkg/ledger/rpc"
	"github.com/postfiatorg/postfiat-wallet/pkg/ledger/txcache"
	"github.com/postfiatorg/postfiat-wallet/pkg/logger"
	"github.com/postfiatorg/postfiat-wallet/pkg/task"
	"github.com/postfiatorg/postfiat-wallet/pkg/taskcache"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the wallet API server",
		Long: `Start the wallet API server. Task state is read from the configured
JSON-RPC endpoint, optionally through a shared Redis transaction cache.`,
		RunE: runServe,
	}
	cmd.Flags().String("address", "", "Address to listen on, overriding the configuration")
	if err := viper.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		logger.Errorf("Error binding address flag: %v", err)
	}
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadOrCreateConfig(viper.GetString("config"))
	if err != nil {
		return err
	}
	if addr := viper.GetString("address"); addr != "" {
		cfg.Server.Address = addr
	}

	client := rpc.NewClient(cfg.Ledger.Endpoint, cfg.RPCOptions()...)
	var source ledger.Source = client
	if txc := cfg.TxCache(); txc != nil {
		cache, err := txcache.New(ctx, *txc, client)
		if err != nil {
			return fmt.Errorf("failed to set up transaction cache: %w", err)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warnf("Failed to close transaction cache: %v", err)
			}
		}()
		source = cache
		logger.Infow("Using Redis transaction cache", "addr", txc.Addr)
	}

	decoders := []task.Decoder{task.NewTaskDecoder(cfg.Nodes.TaskNode)}
	if cfg.Nodes.Remembrancer != "" {
		decoders = append(decoders, task.NewRemembrancerDecoder(cfg.Nodes.Remembrancer))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	manager, err := taskcache.New(source, decoders, cfg.TaskCache(), taskcache.WithMetrics(taskcache.NewMetrics(reg)))
	if err != nil {
		return err
	}
	defer manager.Close()

	return api.Serve(ctx, api.Config{
		Address:    cfg.Server.Address,
		UnixSocket: cfg.Server.UnixSocket,
		Tasks:      manager,
		Balances:   client,
		PFTIssuer:  cfg.Nodes.PFTIssuer,
		Nodes:      manager.Nodes(),
		Gatherer:   reg,
	})
}
