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
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/neorpc/neorpc-go/internal/wire"
	"github.com/neorpc/neorpc-go/types"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		err  error
		kind ErrorKind
	}{
		{context.DeadlineExceeded, KindTimeout},
		{pkgerrors.Wrap(context.Canceled, "fetch"), KindTimeout},
		{status.Error(codes.DeadlineExceeded, "slow"), KindTimeout},
		{status.Error(codes.Unauthenticated, "who"), KindAuth},
		{status.Error(codes.NotFound, "gone"), KindInvalidHandle},
		{status.Error(codes.InvalidArgument, "bad"), KindQuery},
		{status.Error(codes.Unavailable, "down"), KindTransport},
		{pkgerrors.Wrap(types.ErrValueOutOfRange, "row 3"), KindUnsupportedType},
		{types.ErrMalformed, KindUnsupportedType},
		{errors.New("connection reset"), KindTransport},
	} {
		require.Equal(t, tc.kind, classify(tc.err), tc.err.Error())
	}
}

func TestWrapError(t *testing.T) {
	require.NoError(t, wrapError("Exec", "h1", nil))

	err := wrapError("Exec", "h1", context.DeadlineExceeded)
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, "neorpc: Exec [h1]: timeout: context deadline exceeded", err.Error())

	// bare kinds pick up the operation, annotated errors are kept
	bare := &Error{Kind: KindAuth, Message: "401: denied"}
	err = wrapError("Conn", "", bare)
	require.Equal(t, "neorpc: Conn: auth: 401: denied", err.Error())
	require.Same(t, err, wrapError("Other", "h2", err))

	pf := &PartialFailureError{Handle: "a1", Accepted: 1}
	require.Same(t, error(pf), wrapError("Append", "a1", pf))
	require.Equal(t, KindPartialFailure, KindOf(pf))
	require.ErrorIs(t, pf, ErrPartialFailure)
	require.Equal(t, ErrorKind(""), KindOf(errors.New("other")))
}

func TestStatusError(t *testing.T) {
	require.NoError(t, statusError("Ping", "h", &wire.Status{Success: true}))

	for code, kind := range map[wire.Code]ErrorKind{
		wire.CodeAuth:     KindAuth,
		wire.CodeHandle:   KindInvalidHandle,
		wire.CodeType:     KindUnsupportedType,
		wire.CodeBusy:     KindHandleBusy,
		wire.CodeQuery:    KindQuery,
		wire.CodeInternal: KindQuery,
	} {
		err := statusError("Exec", "h", &wire.Status{Code: code, Reason: "nope"})
		require.Equal(t, kind, KindOf(err))
	}

	err := statusError("Exec", "h", &wire.Status{})
	require.ErrorContains(t, err, "request failed without reason")
}

func TestPartialFailureMessage(t *testing.T) {
	pf := &PartialFailureError{Handle: "a1", Accepted: 2}
	for i := range 5 {
		pf.Rejected = append(pf.Rejected, RowError{Index: i, Err: errors.New("bad")})
	}
	require.Equal(t, "neorpc: Append [a1]: partial failure: 2 accepted, 5 rejected; row 0: bad; row 1: bad; row 2: bad; ...", pf.Error())
}

func TestCheckStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"engine failure"}`))
		case "/denied":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("denied\n"))
		}
	}))
	defer srv.Close()

	hc := NewHTTPClient()
	defer hc.Close()
	post := func(path string) error {
		u, err := url.Parse(srv.URL + path)
		require.NoError(t, err)
		resp, err := hc.Post(context.Background(), u, nil)
		require.NoError(t, err)
		defer sneakyBodyClose(resp.Body)
		return checkStatusCodeOK(resp)
	}

	var se *ServerError
	require.ErrorAs(t, post("/json"), &se)
	require.Equal(t, "500: engine failure", se.Error())
	require.Equal(t, KindTransport, classify(se))

	err := post("/denied")
	require.Equal(t, KindAuth, KindOf(err))
	require.ErrorContains(t, err, "401: denied")
}
