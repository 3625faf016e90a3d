// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/postfiatorg/postfiat-wallet/pkg/versions"
)

// VersionRouter sets up the version route.
func VersionRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", getVersion)
	return r
}

type versionResponse struct {
	Version string `json:"version"`
}

// getVersion
//
//	@Summary	Get server version
//	@Tags		version
//	@Produce	json
//	@Success	200	{object}	versionResponse
//	@Router		/api/v1/version [get]
func getVersion(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, versionResponse{Version: versions.GetVersionInfo().Version})
}
