// communicator - A contact list filtering and device notification core.
// Copyright (C) 2024 communicator contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package api implements the HTTP control API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"go.mau.fi/communicator/pkg/contactfilter"
	"go.mau.fi/communicator/pkg/contactlist"
	"go.mau.fi/communicator/pkg/contactquery"
	"go.mau.fi/communicator/pkg/conversation"
	"go.mau.fi/communicator/pkg/metrics"
	"go.mau.fi/communicator/pkg/uimodel"
)

type Options struct {
	SharedSecret  string
	PublicMetrics bool
	Filter        contactfilter.Options
	ShowOffline   bool
	PhoneRegion   string
}

type API struct {
	log     zerolog.Logger
	opts    Options
	list    *contactlist.List
	source  *uimodel.Source
	metrics *metrics.Metrics
}

func New(log zerolog.Logger, opts Options, list *contactlist.List, source *uimodel.Source, m *metrics.Metrics) *API {
	return &API{
		log:     log,
		opts:    opts,
		list:    list,
		source:  source,
		metrics: m,
	}
}

func (api *API) Router() *mux.Router {
	router := mux.NewRouter()
	if api.opts.PublicMetrics && api.metrics != nil {
		router.Handle("/metrics", api.metrics.Handler()).Methods(http.MethodGet)
	}
	r := router.PathPrefix("/v1").Subrouter()
	r.Use(api.AuthMiddleware)
	r.HandleFunc("/filter", api.ApplyFilter).Methods(http.MethodPost)
	r.HandleFunc("/query", api.GetQuery).Methods(http.MethodGet)
	r.HandleFunc("/query", api.CancelQuery).Methods(http.MethodDelete)
	r.HandleFunc("/tree", api.GetTree).Methods(http.MethodGet)
	r.HandleFunc("/contacts/{id}", api.GetContact).Methods(http.MethodGet)
	r.HandleFunc("/contacts/{id}/target", api.GetTarget).Methods(http.MethodGet)
	r.HandleFunc("/contacts/{id}/presence", api.SetPresence).Methods(http.MethodPut)
	if !api.opts.PublicMetrics && api.metrics != nil {
		r.Handle("/metrics", api.metrics.Handler()).Methods(http.MethodGet)
	}
	return router
}

type responseWrap struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrap) WriteHeader(statusCode int) {
	rw.ResponseWriter.WriteHeader(statusCode)
	rw.statusCode = statusCode
}

func jsonResponse(w http.ResponseWriter, status int, response any) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

type Error struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	ErrCode string `json:"errcode"`
}

func errorResponse(w http.ResponseWriter, status int, errcode, message string) {
	jsonResponse(w, status, Error{Error: message, ErrCode: errcode})
}

func (api *API) AuthMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if auth != api.opts.SharedSecret {
			api.log.Info().Str("path", r.URL.Path).Msg("Authentication token does not match shared secret")
			errorResponse(w, http.StatusForbidden, "FORBIDDEN", "Authentication token does not match shared secret")
			return
		}
		start := time.Now()
		wWrap := &responseWrap{w, http.StatusOK}
		h.ServeHTTP(wWrap, r.WithContext(api.log.WithContext(r.Context())))
		api.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status_code", wWrap.statusCode).
			Dur("duration", time.Since(start)).
			Msg("Handled API request")
	})
}

type FilterRequest struct {
	Query string `json:"query"`
	Regex bool   `json:"regex"`
	Wait  bool   `json:"wait"`
}

type QueryResponse struct {
	Success     bool      `json:"success"`
	QueryID     uuid.UUID `json:"query_id"`
	Filter      string    `json:"filter"`
	Status      string    `json:"status"`
	ResultCount int       `json:"result_count"`
}

func queryResponse(query *contactquery.Query) QueryResponse {
	return QueryResponse{
		Success:     true,
		QueryID:     query.ID,
		Filter:      query.Name,
		Status:      query.Status().String(),
		ResultCount: query.ResultCount(),
	}
}

func (api *API) buildFilter(req *FilterRequest) (contactfilter.ContactFilter, error) {
	if strings.TrimSpace(req.Query) == "" {
		return &contactfilter.PresenceFilter{ShowOffline: api.opts.ShowOffline}, nil
	} else if !req.Regex {
		return contactfilter.NewSearchFilter(req.Query, api.opts.Filter), nil
	}
	pattern, err := contactfilter.CompileRegexPattern(req.Query)
	if err != nil {
		return nil, err
	}
	return &contactfilter.SearchFilter{Pattern: pattern, Options: api.opts.Filter}, nil
}

func (api *API) ApplyFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "BAD_JSON", "Failed to parse request body")
		return
	}
	filter, err := api.buildFilter(&req)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "INVALID_PATTERN", err.Error())
		return
	}
	// The query outlives the request unless the client waits for it.
	query := api.source.ApplyFilter(api.log.WithContext(context.Background()), filter)
	if req.Wait {
		if _, err = query.Wait(r.Context()); err != nil {
			errorResponse(w, http.StatusGatewayTimeout, "TIMEOUT", "Request ended before the query finished")
			return
		}
		if err = api.source.Sync(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Err(err).Msg("Failed to wait for pending tree updates")
		}
	}
	jsonResponse(w, http.StatusOK, queryResponse(query))
}

func (api *API) GetQuery(w http.ResponseWriter, r *http.Request) {
	query := api.source.CurrentQuery()
	if query == nil {
		errorResponse(w, http.StatusNotFound, "NOT_FOUND", "No query has been started")
		return
	}
	jsonResponse(w, http.StatusOK, queryResponse(query))
}

func (api *API) CancelQuery(w http.ResponseWriter, r *http.Request) {
	query := api.source.CurrentQuery()
	if query == nil {
		errorResponse(w, http.StatusNotFound, "NOT_FOUND", "No query has been started")
		return
	}
	query.Cancel()
	_, _ = query.Wait(r.Context())
	jsonResponse(w, http.StatusOK, queryResponse(query))
}

type TreeResponse struct {
	Success bool          `json:"success"`
	Rows    []uimodel.Row `json:"rows"`
}

func (api *API) GetTree(w http.ResponseWriter, r *http.Request) {
	rows, err := api.source.Snapshot(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Err(err).Msg("Failed to get tree snapshot")
		errorResponse(w, http.StatusInternalServerError, "INTERNAL", "Failed to read displayed tree")
		return
	}
	if rows == nil {
		rows = []uimodel.Row{}
	}
	jsonResponse(w, http.StatusOK, TreeResponse{Success: true, Rows: rows})
}

var errInvalidID = errors.New("invalid meta contact ID")

func (api *API) getMetaContact(w http.ResponseWriter, r *http.Request) contactlist.MetaContact {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "INVALID_ID", errInvalidID.Error())
		return nil
	}
	mc, ok := api.list.GetMetaContact(id)
	if !ok {
		errorResponse(w, http.StatusNotFound, "NOT_FOUND", "Meta contact not found")
		return nil
	}
	return mc
}

type ContactResponse struct {
	Success     bool      `json:"success"`
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Hidden      bool      `json:"hidden"`
	Presence    string    `json:"presence"`
	Addresses   []string  `json:"addresses"`
	Details     []string  `json:"details"`
}

func (api *API) GetContact(w http.ResponseWriter, r *http.Request) {
	mc := api.getMetaContact(w, r)
	if mc == nil {
		return
	}
	resp := ContactResponse{
		Success:     true,
		ID:          mc.ID(),
		DisplayName: mc.DisplayName(),
		Hidden:      mc.Hidden(),
		Presence:    mc.Presence().String(),
		Addresses:   []string{},
		Details:     []string{},
	}
	for _, contact := range mc.Contacts() {
		resp.Addresses = append(resp.Addresses, contact.Address)
	}
	if wrapper := api.source.UIContact(mc); wrapper != nil {
		resp.Details = append(resp.Details, wrapper.DisplayDetails(*zerolog.Ctx(r.Context()), api.opts.PhoneRegion)...)
	}
	jsonResponse(w, http.StatusOK, resp)
}

type TargetResponse struct {
	Success     bool   `json:"success"`
	Kind        string `json:"kind"`
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
}

func (api *API) GetTarget(w http.ResponseWriter, r *http.Request) {
	mc := api.getMetaContact(w, r)
	if mc == nil {
		return
	}
	target, err := conversation.NewTarget(mc)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, TargetResponse{
		Success:     true,
		Kind:        target.Kind.String(),
		Key:         target.Key(),
		DisplayName: target.DisplayName(),
	})
}

type PresenceRequest struct {
	Address string `json:"address"`
	Status  string `json:"status"`
}

func (api *API) SetPresence(w http.ResponseWriter, r *http.Request) {
	mc := api.getMetaContact(w, r)
	if mc == nil {
		return
	}
	var req PresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "BAD_JSON", "Failed to parse request body")
		return
	}
	err := api.list.SetPresence(mc, req.Address, contactlist.ParsePresenceStatus(req.Status))
	if errors.Is(err, contactlist.ErrAddressNotFound) {
		errorResponse(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	} else if err != nil {
		zerolog.Ctx(r.Context()).Err(err).Msg("Failed to set presence")
		errorResponse(w, http.StatusInternalServerError, "INTERNAL", "Failed to set presence")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"success": true, "presence": mc.Presence().String()})
}
