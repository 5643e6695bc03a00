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

package neorpc

import (
	"context"
	"encoding/json"
	"io"
	"net/url"

	"github.com/neorpc/neorpc-go/internal/wire"
	"github.com/neorpc/neorpc-go/types"
)

// rpcAPI defines the procedures of a NeoRPC server.
type rpcAPI interface {
	// invoke calls a unary procedure and decodes its response into rsp.
	// The status of rsp is left for the caller to check.
	invoke(ctx context.Context, method wire.Method, req any, rsp wire.Response) error
	// rowStream returns the row source of an open cursor.
	rowStream(h wire.Handle, cols types.Columns) rowStream
	// appendStream returns the write stream of an open appender.
	appendStream(h wire.Handle, cols types.Columns) (appendStream, error)
	// close releases the transport.
	close() error
}

// rowStream yields the rows of one cursor.
type rowStream interface {
	// next returns the next row, or io.EOF once the cursor is exhausted.
	next(ctx context.Context) ([]types.Value, error)
	// close tears down the stream. The cursor itself stays open on the server.
	close()
}

// appendStream carries the batches of one appender.
type appendStream interface {
	// send transmits one batch and waits for its acknowledgement.
	send(ctx context.Context, rows [][]types.Value) (*wire.AppendResponse, error)
	// closeAndRecv ends the stream and returns the summary of the appender.
	closeAndRecv(ctx context.Context) (*wire.AppendCloseResponse, error)
	// abort tears down the stream without finishing the appender.
	abort()
}

var (
	_ rpcAPI       = (*httpRPC)(nil)
	_ rowStream    = (*httpRows)(nil)
	_ appendStream = (*httpAppend)(nil)
)

// httpRPC calls procedures as JSON POSTs under wire.RPCPath.
type httpRPC struct {
	endpoint string
	http     HTTPClient
}

func newHTTPRPC(endpoint string, http HTTPClient) *httpRPC {
	return &httpRPC{endpoint: endpoint, http: http}
}

func (r *httpRPC) invoke(ctx context.Context, method wire.Method, request any, response wire.Response) error {
	req, err := url.Parse(r.endpoint + wire.RPCPath + string(method))
	if err != nil {
		return err
	}

	body, err := json.Marshal(request)
	if err != nil {
		return err
	}

	resp, err := r.http.Post(ctx, req, body)
	if err != nil {
		return err
	}
	defer sneakyBodyClose(resp.Body)
	if err := checkStatusCodeOK(resp); err != nil {
		return err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, response)
}

func (r *httpRPC) rowStream(h wire.Handle, cols types.Columns) rowStream {
	return &httpRows{r: r, h: h, cols: cols}
}

func (r *httpRPC) appendStream(h wire.Handle, cols types.Columns) (appendStream, error) {
	return &httpAppend{r: r, h: h, cols: cols}, nil
}

func (r *httpRPC) close() error {
	r.http.Close()
	return nil
}

// httpRows fetches one row per RowsFetch call.
type httpRows struct {
	r    *httpRPC
	h    wire.Handle
	cols types.Columns
}

func (s *httpRows) next(ctx context.Context) ([]types.Value, error) {
	var rsp wire.RowsFetchResponse
	if err := s.r.invoke(ctx, wire.MethodRowsFetch, &wire.RowsFetchRequest{Rows: s.h}, &rsp); err != nil {
		return nil, err
	}
	if err := statusError(string(wire.MethodRowsFetch), s.h, &rsp.Status); err != nil {
		return nil, err
	}
	if rsp.HasNoRows {
		return nil, io.EOF
	}
	return types.DecodeRow(rsp.Values, s.cols)
}

func (s *httpRows) close() {}

// httpAppend posts every batch as base64 encoded Arrow IPC.
type httpAppend struct {
	r    *httpRPC
	h    wire.Handle
	cols types.Columns
}

func (s *httpAppend) send(ctx context.Context, rows [][]types.Value) (*wire.AppendResponse, error) {
	payload, err := wire.EncodeRows(s.cols, rows)
	if err != nil {
		return nil, err
	}
	var rsp wire.AppendResponse
	err = s.r.invoke(ctx, wire.MethodAppend, &wire.AppendRequest{Handle: s.h, Rows: payload}, &rsp)
	return &rsp, err
}

func (s *httpAppend) closeAndRecv(ctx context.Context) (*wire.AppendCloseResponse, error) {
	var rsp wire.AppendCloseResponse
	err := s.r.invoke(ctx, wire.MethodAppendClose, &wire.AppendCloseRequest{Handle: s.h}, &rsp)
	return &rsp, err
}

func (s *httpAppend) abort() {}
