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
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/neorpc/neorpc-go/internal/wire"
	"github.com/neorpc/neorpc-go/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies every error returned by this package.
type ErrorKind string

const (
	// KindTransport is a network or channel failure. Retrying is up to the caller.
	KindTransport ErrorKind = "transport"
	// KindAuth is a credential rejection.
	KindAuth ErrorKind = "auth"
	// KindInvalidHandle is a use of an unknown, closed, failed or finalized handle.
	KindInvalidHandle ErrorKind = "invalid handle"
	// KindConcurrentFetch is a fetch issued while another fetch on the same cursor is outstanding.
	KindConcurrentFetch ErrorKind = "concurrent fetch"
	// KindQuery is a statement rejected by the server.
	KindQuery ErrorKind = "query"
	// KindUnsupportedType is a value the codec cannot represent.
	KindUnsupportedType ErrorKind = "unsupported type"
	// KindPartialFailure is a batch of which some rows were rejected.
	KindPartialFailure ErrorKind = "partial failure"
	// KindTimeout is an expired deadline. The handle is left failed and must be closed.
	KindTimeout ErrorKind = "timeout"
	// KindHandleBusy is a close of a session that still has open cursors or appenders.
	KindHandleBusy ErrorKind = "handle busy"
)

// Error is the error type returned by Client, Session, Rows and Appender.
type Error struct {
	// Kind classifies the error.
	Kind ErrorKind
	// Op is the operation that failed, e.g. "RowsFetch".
	Op string
	// Handle is the handle the operation was applied to, if any.
	Handle string
	// Message describes the failure, usually as reported by the server.
	Message string
	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("neorpc: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Handle != "" {
			fmt.Fprintf(&b, " [%s]", e.Handle)
		}
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare sentinel of the same kind, so errors.Is(err, ErrTimeout) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Handle == "" && t.Message == "" && t.Err == nil
}

var (
	ErrTransport       = &Error{Kind: KindTransport}
	ErrAuth            = &Error{Kind: KindAuth}
	ErrInvalidHandle   = &Error{Kind: KindInvalidHandle}
	ErrConcurrentFetch = &Error{Kind: KindConcurrentFetch}
	ErrQuery           = &Error{Kind: KindQuery}
	ErrUnsupportedType = &Error{Kind: KindUnsupportedType}
	ErrPartialFailure  = &Error{Kind: KindPartialFailure}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrHandleBusy      = &Error{Kind: KindHandleBusy}

	// ErrEndOfRows is returned by Rows.Fetch once the cursor is exhausted.
	ErrEndOfRows = errors.New("neorpc: end of rows")
	// ErrNoRows is returned by Session.QueryRow when the query yields no row.
	ErrNoRows = errors.New("neorpc: no rows in result set")
)

// RowError is the outcome of a rejected row.
type RowError struct {
	// Index is the position of the row in the batch passed to AppendBatch.
	Index int
	// Err is the reason of the rejection.
	Err error
}

// PartialFailureError reports a batch of which some rows were rejected.
// The other rows were accepted.
type PartialFailureError struct {
	Handle   string
	Accepted int
	Rejected []RowError
}

func (e *PartialFailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "neorpc: Append [%s]: partial failure: %d accepted, %d rejected", e.Handle, e.Accepted, len(e.Rejected))
	for i, r := range e.Rejected {
		if i == 3 {
			fmt.Fprintf(&b, "; ...")
			break
		}
		fmt.Fprintf(&b, "; row %d: %v", r.Index, r.Err)
	}
	return b.String()
}

func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

func newError(kind ErrorKind, op string, h wire.Handle, msg string) *Error {
	return &Error{Kind: kind, Op: op, Handle: string(h), Message: msg}
}

// wrapError classifies err, which happened while running op on h.
func wrapError(op string, h wire.Handle, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			return &Error{Kind: e.Kind, Op: op, Handle: string(h), Message: e.Message, Err: e.Err}
		}
		return err
	}
	var pf *PartialFailureError
	if errors.As(err, &pf) {
		return err
	}
	return &Error{Kind: classify(err), Op: op, Handle: string(h), Err: err}
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	case errors.Is(err, types.ErrUnsupportedType),
		errors.Is(err, types.ErrTypeMismatch),
		errors.Is(err, types.ErrValueOutOfRange),
		errors.Is(err, types.ErrMalformed):
		return KindUnsupportedType
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.DeadlineExceeded, codes.Canceled:
			return KindTimeout
		case codes.Unauthenticated, codes.PermissionDenied:
			return KindAuth
		case codes.NotFound:
			return KindInvalidHandle
		case codes.InvalidArgument:
			return KindQuery
		}
	}
	return KindTransport
}

// KindOf returns the kind of an error returned by this package, or "" for
// any other error. A *PartialFailureError is of kind KindPartialFailure.
func KindOf(err error) ErrorKind {
	var pf *PartialFailureError
	if errors.As(err, &pf) {
		return KindPartialFailure
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// statusError converts a failed response status into an error.
func statusError(op string, h wire.Handle, s *wire.Status) error {
	if s.Success {
		return nil
	}
	kind := KindQuery
	switch s.Code {
	case wire.CodeAuth:
		kind = KindAuth
	case wire.CodeHandle:
		kind = KindInvalidHandle
	case wire.CodeType:
		kind = KindUnsupportedType
	case wire.CodeBusy:
		kind = KindHandleBusy
	}
	msg := s.Reason
	if msg == "" {
		msg = "request failed without reason"
	}
	return newError(kind, op, h, msg)
}

// ServerError is the body of a non-200 HTTP response.
type ServerError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

func checkStatusCodeOK(resp *http.Response) error {
	return checkStatusCode(resp, http.StatusOK)
}

func checkStatusCode(resp *http.Response, expected int) error {
	if resp.StatusCode == expected {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	msg := string(data)
	if err != nil {
		return &ServerError{StatusCode: resp.StatusCode, Message: msg}
	}
	errResp := ServerError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(data, &errResp); err != nil || errResp.Message == "" {
		errResp.Message = strings.TrimSpace(msg)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &Error{Kind: KindAuth, Message: errResp.Error()}
	}
	return &errResp
}

// sneakyBodyClose closes the body and ignores the error.
// This is useful to close the HTTP response body when we don't care about the error.
func sneakyBodyClose(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
