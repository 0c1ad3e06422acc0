// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/lawbase/internal/lawerr"
	"github.com/kadirpekel/lawbase/internal/retrieval"
)

// ServeCmd serves the read-only HTTP API spec §6/§12 describe as a
// supplemented outer surface: POST /query runs a retrieval, GET
// /documents/{id} returns a stored document's chunk tree, and GET /metrics
// exposes the prometheus registry when metrics are enabled.
type ServeCmd struct {
	Addr string `help:"Address to listen on." default:":8080"`
}

// queryRequest is the generic JSON shape POST /query accepts; unset fields
// fall back to the configured RetrievalConfig defaults via
// retrieval.OptionsFromConfig. mapstructure decodes the already-unmarshaled
// map into retrieval.Options, tolerating the request body to be a superset
// of the Options fields (e.g. clients forwarding unrelated metadata).
type queryRequest struct {
	Query string                 `json:"query"`
	Opts  map[string]interface{} `json:"options"`
}

func (c *ServeCmd) Run(cli *CLI, ctx context.Context) error {
	a, cleanup, err := buildApp(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/query", handleQuery(a))
	r.Get("/documents/{id}", handleGetDocument(a))
	if a.metrics != nil {
		r.Get("/metrics", a.metrics.Handler().ServeHTTP)
	}

	srv := &http.Server{Addr: c.Addr, Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return lawerr.New(lawerr.StoreUnavailable, "serve", err)
	}
}

func handleQuery(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		opts := retrieval.OptionsFromConfig(a.cfg.Retrieval)
		if req.Opts != nil {
			if err := mapstructure.Decode(req.Opts, &opts); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}

		pack, err := a.retrieval.Retrieve(r.Context(), req.Query, opts)
		if err != nil {
			writeLawbaseError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pack)
	}
}

func handleGetDocument(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		doc, err := a.store.GetDocument(r.Context(), id)
		if err != nil {
			writeLawbaseError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeLawbaseError(w http.ResponseWriter, err error) {
	kind, ok := lawerr.KindOf(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusInternalServerError
	switch kind {
	case lawerr.InvalidInput:
		status = http.StatusBadRequest
	case lawerr.AlreadyIndexed:
		status = http.StatusConflict
	case lawerr.Cancelled:
		status = http.StatusGatewayTimeout
	}
	writeError(w, status, err)
}
