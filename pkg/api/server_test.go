// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/postfiatorg/postfiat-wallet/pkg/api/v1/mocks"
	"github.com/postfiatorg/postfiat-wallet/pkg/taskcache"
)

const testAccount = "rPT1Sjq2YGrBMTttX4GZHjKu9dyfzbpAYe"

func TestNewRouter(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	service := mocks.NewMockTaskService(ctrl)
	service.EXPECT().AccountStatus(testAccount).Return(taskcache.StatusView{InitRiteStatus: "UNSTARTED"})

	reg := prometheus.NewRegistry()
	taskcache.NewMetrics(reg)
	router := NewRouter(Config{
		Tasks:    service,
		Balances: mocks.NewMockBalanceService(ctrl),
		Gatherer: reg,
	})

	t.Run("health", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "pftwallet_taskcache_sessions")
	})

	t.Run("api routes are json", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/account/"+testAccount+"/status", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"init_rite_status":"UNSTARTED","context_doc_link":null,"is_blacklisted":false,"init_rite_statement":null}`,
			w.Body.String())
	})

	t.Run("unknown route", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nothing", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	// reserve a free port
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctrl := gomock.NewController(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, Config{Address: addr, Tasks: mocks.NewMockTaskService(ctrl)})
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
