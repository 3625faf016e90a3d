// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api contains the REST API of the wallet service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/postfiatorg/postfiat-wallet/pkg/api/v1"
	"github.com/postfiatorg/postfiat-wallet/pkg/logger"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
	socketPermissions = 0660
)

// Config holds what the API server serves.
type Config struct {
	// Address is a host:port, or a socket path if UnixSocket is set.
	Address    string
	UnixSocket bool

	Tasks     v1.TaskService
	Balances  v1.BalanceService
	PFTIssuer string
	// Nodes are the node addresses messages can be listed for; the first is
	// the default.
	Nodes []string

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

func setupUnixSocket(address string) (net.Listener, error) {
	if _, err := os.Stat(address); err == nil {
		if err := os.Remove(address); err != nil {
			return nil, fmt.Errorf("failed to remove existing socket: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(address), 0750); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", address)
	if err != nil {
		return nil, fmt.Errorf("failed to create UNIX socket listener: %w", err)
	}
	if err := os.Chmod(address, socketPermissions); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}
	return listener, nil
}

func cleanupUnixSocket(address string) {
	if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to remove socket file: %v", err)
	}
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter builds the HTTP handler for cfg.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
	)

	routers := map[string]http.Handler{
		"/health":          v1.HealthcheckRouter(),
		"/api/v1/version":  v1.VersionRouter(),
		"/api/v1/tasks":    v1.TaskRouter(cfg.Tasks),
		"/api/v1/payments": v1.PaymentRouter(cfg.Tasks),
		"/api/v1/account":  v1.AccountRouter(cfg.Tasks, cfg.Balances, cfg.PFTIssuer),
		"/api/v1/messages": v1.MessageRouter(cfg.Tasks, cfg.Nodes),
	}
	if cfg.Gatherer != nil {
		routers["/metrics"] = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
	}

	for prefix, router := range routers {
		r.Mount(prefix, router)
	}
	return r
}

// Serve serves the API until ctx is cancelled, then shuts the server down.
// The caller is expected to set up signal handling.
func Serve(ctx context.Context, cfg Config) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              cfg.Address,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	var (
		listener net.Listener
		err      error
		addrType = "HTTP"
	)
	if cfg.UnixSocket {
		listener, err = setupUnixSocket(cfg.Address)
		addrType = "UNIX socket"
		defer cleanupUnixSocket(cfg.Address)
	} else {
		listener, err = net.Listen("tcp", cfg.Address)
	}
	if err != nil {
		return err
	}

	logger.Infow("Starting server", "type", addrType, "address", listener.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Infow("Server stopped", "type", addrType)
	return nil
}
