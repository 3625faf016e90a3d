// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/postfiatorg/postfiat-wallet/pkg/api/errors"
	"github.com/postfiatorg/postfiat-wallet/pkg/ledger"
	"github.com/postfiatorg/postfiat-wallet/pkg/logger"
	"github.com/postfiatorg/postfiat-wallet/pkg/task"
)

// TaskRoutes defines the routes for the task cache.
type TaskRoutes struct {
	service TaskService
}

// TaskRouter creates the task routes.
func TaskRouter(service TaskService) http.Handler {
	routes := TaskRoutes{service: service}

	r := chi.NewRouter()
	r.Get("/statuses", routes.listStatuses)
	r.Post("/initialize/{account}", apierrors.ErrorHandler(routes.initialize))
	r.Post("/start-refresh/{account}", apierrors.ErrorHandler(routes.startRefresh))
	r.Post("/stop-refresh/{account}", apierrors.ErrorHandler(routes.stopRefresh))
	r.Post("/clear-state/{account}", apierrors.ErrorHandler(routes.clearState))
	r.Get("/{account}", apierrors.ErrorHandler(routes.getTasks))
	return r
}

type statusResponse struct {
	Status string `json:"status"`
}

type taskStatus struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type statusListResponse struct {
	Statuses []taskStatus `json:"statuses"`
}

// accountParam returns the validated {account} path parameter.
func accountParam(r *http.Request) (string, error) {
	account := chi.URLParam(r, "account")
	if err := ledger.ValidateAddress(account); err != nil {
		return "", err
	}
	return account, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// headers are gone; the error can only be logged
		logger.Errorf("Failed to encode response: %v", err)
	}
	return nil
}

func success(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

// listStatuses
//
//	@Summary	List task statuses
//	@Tags		tasks
//	@Produce	json
//	@Success	200	{object}	statusListResponse
//	@Router		/api/v1/tasks/statuses [get]
func (*TaskRoutes) listStatuses(w http.ResponseWriter, _ *http.Request) {
	resp := statusListResponse{Statuses: make([]taskStatus, 0, len(task.AllStatuses()))}
	for _, st := range task.AllStatuses() {
		resp.Statuses = append(resp.Statuses, taskStatus{Name: strings.ToUpper(st.String()), Value: st.String()})
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

// initialize
//
//	@Summary	Backfill or catch up the task state of an account
//	@Tags		tasks
//	@Param		account	path		string	true	"Account address"
//	@Success	200		{object}	statusResponse
//	@Failure	400		{string}	string	"Bad Request"
//	@Failure	500		{string}	string	"Internal Server Error"
//	@Router		/api/v1/tasks/initialize/{account} [post]
func (s *TaskRoutes) initialize(w http.ResponseWriter, r *http.Request) error {
	account, err := accountParam(r)
	if err != nil {
		return err
	}
	if err := s.service.Initialize(r.Context(), account); err != nil {
		return err
	}
	return success(w)
}

// startRefresh
//
//	@Summary	Start refreshing the task state of an account in the background
//	@Tags		tasks
//	@Param		account	path		string	true	"Account address"
//	@Success	200		{object}	statusResponse
//	@Router		/api/v1/tasks/start-refresh/{account} [post]
func (s *TaskRoutes) startRefresh(w http.ResponseWriter, r *http.Request) error {
	account, err := accountParam(r)
	if err != nil {
		return err
	}
	if err := s.service.StartRefresh(account); err != nil {
		return err
	}
	return success(w)
}

// stopRefresh
//
//	@Summary	Stop refreshing an account, keeping its cached state
//	@Tags		tasks
//	@Param		account	path		string	true	"Account address"
//	@Success	200		{object}	statusResponse
//	@Router		/api/v1/tasks/stop-refresh/{account} [post]
func (s *TaskRoutes) stopRefresh(w http.ResponseWriter, r *http.Request) error {
	account, err := accountParam(r)
	if err != nil {
		return err
	}
	s.service.StopRefresh(account)
	return success(w)
}

// clearState
//
//	@Summary	Stop refreshing an account and drop its cached state
//	@Tags		tasks
//	@Param		account	path		string	true	"Account address"
//	@Success	200		{object}	statusResponse
//	@Router		/api/v1/tasks/clear-state/{account} [post]
func (s *TaskRoutes) clearState(w http.ResponseWriter, r *http.Request) error {
	account, err := accountParam(r)
	if err != nil {
		return err
	}
	s.service.Clear(account)
	return success(w)
}

// getTasks
//
//	@Summary		List the tasks of an account
//	@Description	Without a status filter the tasks are grouped by status.
//	@Tags			tasks
//	@Produce		json
//	@Param			account	path		string	true	"Account address"
//	@Param			status	query		string	false	"Status filter"
//	@Success		200		{array}		taskcache.TaskView
//	@Failure		400		{string}	string	"Bad Request"
//	@Failure		500		{string}	string	"Internal Server Error"
//	@Router			/api/v1/tasks/{account} [get]
func (s *TaskRoutes) getTasks(w http.ResponseWriter, r *http.Request) error {
	account, err := accountParam(r)
	if err != nil {
		return err
	}

	if name := r.URL.Query().Get("status"); name != "" {
		status, err := task.ParseStatus(name)
		if err != nil {
			return err
		}
		views, err := s.service.TasksByStatus(r.Context(), account, &status)
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, views)
	}

	sections, err := s.service.TasksByUISection(r.Context(), account)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sections)
}
