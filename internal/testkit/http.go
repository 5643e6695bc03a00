/*
 * Copyright 2026 The NeoRPC Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package testkit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/neorpc/neorpc-go/internal/wire"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// StartHTTP serves the JSON over HTTP transport and returns its endpoint.
func (s *Server) StartHTTP() string {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+wire.RPCPath+"{method}", s.serveHTTP)

	srv := httptest.NewServer(mux)
	s.shutdown = append(s.shutdown, srv.Close)
	s.addPort("http", srv.Listener.Addr().String())
	return srv.URL
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	method := wire.Method(r.PathValue("method"))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeHTTPError(w, http.StatusBadRequest, err)
		return
	}

	rsp, err := s.Call(r.Context(), method, body)
	switch {
	case errors.Is(err, errUnknownMethod):
		writeHTTPError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, errBadRequest):
		writeHTTPError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		writeHTTPError(w, http.StatusInternalServerError, err)
		return
	}

	data, err := json.Marshal(rsp)
	if err != nil {
		writeHTTPError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("write response", zap.String("method", string(method)), zap.Error(err))
	}
}

func writeHTTPError(w http.ResponseWriter, code int, err error) {
	data, _ := json.Marshal(map[string]string{"message": err.Error()})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
