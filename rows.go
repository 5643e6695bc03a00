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
	"fmt"
	"io"
	"iter"
	"sync/atomic"

	"github.com/neorpc/neorpc-go/internal/wire"
	"github.com/neorpc/neorpc-go/types"
	"go.uber.org/zap"
)

// CursorState is the state of a Rows cursor.
type CursorState int

const (
	CursorCreated CursorState = iota
	CursorColumnsKnown
	CursorFetching
	CursorExhausted
	CursorFailed
	CursorClosed
)

func (s CursorState) String() string {
	switch s {
	case CursorCreated:
		return "created"
	case CursorColumnsKnown:
		return "columns known"
	case CursorFetching:
		return "fetching"
	case CursorExhausted:
		return "exhausted"
	case CursorFailed:
		return "failed"
	case CursorClosed:
		return "closed"
	}
	return fmt.Sprintf("CursorState(%d)", int(s))
}

// Rows is a forward-only cursor over the result of a query.
//
// Fetch must not be called concurrently on the same Rows; an overlapping
// call fails with KindConcurrentFetch instead of waiting. Other methods wait
// for an outstanding fetch.
type Rows struct {
	s *Session
	h *handle

	fetching atomic.Bool

	// guarded by h.mu
	stream  rowStream
	cols    types.Columns
	state   CursorState
	failure error
}

// Handle returns the server handle of the cursor.
func (r *Rows) Handle() string {
	return string(r.h.id)
}

// State returns the current state of the cursor.
func (r *Rows) State() CursorState {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	return r.state
}

// Columns returns the column descriptors of the result.
func (r *Rows) Columns(ctx context.Context) (types.Columns, error) {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()

	if err := r.check(wire.MethodColumns); err != nil {
		return nil, err
	}
	return r.columns(ctx)
}

func (r *Rows) check(op wire.Method) error {
	switch r.state {
	case CursorClosed:
		return newError(KindInvalidHandle, string(op), r.h.id, "cursor is closed")
	case CursorFailed:
		return &Error{
			Kind:    KindInvalidHandle,
			Op:      string(op),
			Handle:  string(r.h.id),
			Message: "cursor failed and must be closed",
			Err:     r.failure,
		}
	}
	return nil
}

func (r *Rows) columns(ctx context.Context) (types.Columns, error) {
	if r.cols != nil {
		return r.cols, nil
	}

	var rsp wire.ColumnsResponse
	err := r.s.c.call(ctx, r.s.c.config.QueryTimeout, wire.MethodColumns, r.h.id, &wire.ColumnsRequest{Rows: r.h.id}, &rsp)
	if err != nil {
		if kind := KindOf(err); kind == KindTimeout || kind == KindTransport {
			r.fail(err)
		}
		return nil, err
	}

	r.cols = rsp.Columns
	if r.cols == nil {
		r.cols = types.Columns{}
	}
	r.stream = r.s.c.rpc.rowStream(r.h.id, r.cols)
	if r.state == CursorCreated {
		r.state = CursorColumnsKnown
	}
	return r.cols, nil
}

// Fetch returns the next row. It returns ErrEndOfRows once the cursor is
// exhausted, and keeps returning it without calling the server.
//
// Any other error leaves the cursor failed; it must then be closed.
func (r *Rows) Fetch(ctx context.Context) (Row, error) {
	const op = wire.MethodRowsFetch
	if !r.fetching.CompareAndSwap(false, true) {
		return nil, newError(KindConcurrentFetch, string(op), r.h.id, "another fetch is outstanding")
	}
	defer r.fetching.Store(false)

	r.h.mu.Lock()
	defer r.h.mu.Unlock()

	if err := r.check(op); err != nil {
		return nil, err
	}
	if r.state == CursorExhausted {
		return nil, ErrEndOfRows
	}
	if _, err := r.columns(ctx); err != nil {
		return nil, err
	}
	if r.s.c.closed.Load() {
		return nil, newError(KindTransport, string(op), r.h.id, "client is closed")
	}

	ctx, cancel := withDefaultTimeout(ctx, r.s.c.config.QueryTimeout)
	defer cancel()

	r.state = CursorFetching
	values, err := r.stream.next(ctx)
	if err == nil {
		return values, nil
	}
	if errors.Is(err, io.EOF) {
		r.state = CursorExhausted
		r.stream.close()
		return nil, ErrEndOfRows
	}
	err = wrapError(string(op), r.h.id, err)
	r.fail(err)
	return nil, err
}

func (r *Rows) fail(err error) {
	r.state = CursorFailed
	r.failure = err
	if r.stream != nil {
		r.stream.close()
	}
	r.s.c.logger.Warn("cursor failed", zap.String("rows", string(r.h.id)), zap.Error(err))
}

// Close releases the cursor. It is valid in every state but Closed, and the
// client side handle is released even when the server call fails.
func (r *Rows) Close(ctx context.Context) error {
	const op = wire.MethodRowsClose
	r.h.mu.Lock()
	defer r.h.mu.Unlock()

	if r.state == CursorClosed {
		return newError(KindInvalidHandle, string(op), r.h.id, "cursor is already closed")
	}
	if r.stream != nil {
		r.stream.close()
	}
	r.state = CursorClosed
	r.s.c.handles.remove(r.h)

	var rsp wire.RowsCloseResponse
	err := r.s.c.call(ctx, r.s.c.config.QueryTimeout, op, r.h.id, &wire.RowsCloseRequest{Rows: r.h.id}, &rsp)
	r.s.c.logger.Debug("cursor closed", zap.String("rows", string(r.h.id)), zap.Error(err))
	return err
}

// All iterates over the remaining rows. Iteration stops after the first error.
func (r *Rows) All(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for {
			row, err := r.Fetch(ctx)
			if errors.Is(err, ErrEndOfRows) {
				return
			}
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// Row is one row of a result, aligned with its columns.
type Row []types.Value

// Scan copies the values of the row into dst, one pointer per column.
func (r Row) Scan(dst ...any) error {
	if len(dst) != len(r) {
		return &Error{
			Kind:    KindUnsupportedType,
			Op:      "Scan",
			Message: fmt.Sprintf("expected %d destinations, got %d", len(r), len(dst)),
		}
	}
	for i, d := range dst {
		if err := types.Scan(r[i], d); err != nil {
			return &Error{
				Kind:    KindUnsupportedType,
				Op:      "Scan",
				Message: fmt.Sprintf("column %d", i),
				Err:     err,
			}
		}
	}
	return nil
}

// Values returns the native Go values of the row.
func (r Row) Values() []any {
	values := make([]any, len(r))
	for i, v := range r {
		values[i] = v.Native()
	}
	return values
}
