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
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/neorpc/neorpc-go/internal/wire"
	"github.com/neorpc/neorpc-go/types"
	"go.uber.org/zap"
)

// AppenderState is the state of an Appender.
type AppenderState int

const (
	AppenderOpened AppenderState = iota
	AppenderStreaming
	AppenderFinalized
	AppenderFailed
)

func (s AppenderState) String() string {
	switch s {
	case AppenderOpened:
		return "opened"
	case AppenderStreaming:
		return "streaming"
	case AppenderFinalized:
		return "finalized"
	case AppenderFailed:
		return "failed"
	}
	return fmt.Sprintf("AppenderState(%d)", int(s))
}

// TableType is the kind of table an Appender writes to, as reported by the
// server. It is empty when the server does not say.
type TableType string

// LogTable is a table whose first column holds the arrival time of each row.
const LogTable TableType = "log"

// AppendSummary is the final account of an Appender.
type AppendSummary struct {
	Accepted int64
	Rejected int64
}

// Appender streams rows into one table. Rows are checked against the column
// descriptors of the table before they are sent; rows that do not fit are
// reported as rejected without reaching the server.
type Appender struct {
	s         *Session
	h         *handle
	table     string
	tableType TableType
	cols      types.Columns

	// guarded by h.mu
	stream         appendStream
	state          AppenderState
	failure        error
	clientRejected int64
}

// Handle returns the server handle of the appender.
func (a *Appender) Handle() string {
	return string(a.h.id)
}

// TableName returns the name of the target table.
func (a *Appender) TableName() string {
	return a.table
}

// TableType returns the kind of the target table.
func (a *Appender) TableType() TableType {
	return a.tableType
}

// Columns returns the column descriptors of the target table.
func (a *Appender) Columns() types.Columns {
	return a.cols
}

// State returns the current state of the appender.
func (a *Appender) State() AppenderState {
	a.h.mu.Lock()
	defer a.h.mu.Unlock()
	return a.state
}

func (a *Appender) check(op wire.Method) error {
	switch a.state {
	case AppenderFinalized:
		return newError(KindInvalidHandle, string(op), a.h.id, "appender is finalized")
	case AppenderFailed:
		return &Error{
			Kind:    KindInvalidHandle,
			Op:      string(op),
			Handle:  string(a.h.id),
			Message: "appender failed and must be finalized",
			Err:     a.failure,
		}
	}
	return nil
}

// AppendBatch sends rows to the table. When some rows are rejected, either
// by the column check or by the server, it returns a *PartialFailureError
// whose row indexes refer to rows; the other rows are accepted. A batch the
// server refuses as a whole returns the server error, or a
// *PartialFailureError rejecting every row when the column check already
// rejected some.
//
// A transport failure or timeout fails the whole batch and leaves the
// appender failed.
func (a *Appender) AppendBatch(ctx context.Context, rows [][]any) error {
	const op = wire.MethodAppend
	a.h.mu.Lock()
	defer a.h.mu.Unlock()

	if err := a.check(op); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	var rejected []RowError
	valid := make([][]types.Value, 0, len(rows))
	index := make([]int, 0, len(rows))
	for i, row := range rows {
		values, err := types.CoerceRow(row, a.cols)
		if err != nil {
			rejected = append(rejected, RowError{Index: i, Err: wrapError(string(op), a.h.id, err)})
			continue
		}
		valid = append(valid, values)
		index = append(index, i)
	}
	a.clientRejected += int64(len(rejected))

	var accepted int
	if len(valid) > 0 {
		if a.s.c.closed.Load() {
			return newError(KindTransport, string(op), a.h.id, "client is closed")
		}
		ctx, cancel := withDefaultTimeout(ctx, a.s.c.config.AppendTimeout)
		defer cancel()

		a.state = AppenderStreaming
		rsp, err := a.stream.send(ctx, valid)
		if err != nil {
			err = wrapError(string(op), a.h.id, err)
			a.fail(err)
			return err
		}
		if err := statusError(string(op), a.h.id, &rsp.Status); err != nil {
			if errors.Is(err, ErrInvalidHandle) {
				a.fail(err)
				return err
			}
			if len(rejected) == 0 {
				return err
			}
			// the server refused every row it was sent
			for _, i := range index {
				rejected = append(rejected, RowError{Index: i, Err: err})
			}
			slices.SortFunc(rejected, func(x, y RowError) int { return cmp.Compare(x.Index, y.Index) })
			return &PartialFailureError{Handle: string(a.h.id), Rejected: rejected}
		}
		for _, f := range rsp.Failures {
			if f.Index < 0 || f.Index >= len(index) {
				err := newError(KindTransport, string(op), a.h.id, fmt.Sprintf("server rejected row %d of a %d row batch", f.Index, len(index)))
				a.fail(err)
				return err
			}
			rejected = append(rejected, RowError{
				Index: index[f.Index],
				Err:   newError(KindQuery, string(op), a.h.id, f.Reason),
			})
		}
		accepted = int(rsp.Accepted)
	}

	if len(rejected) == 0 {
		return nil
	}
	slices.SortFunc(rejected, func(x, y RowError) int { return cmp.Compare(x.Index, y.Index) })
	return &PartialFailureError{Handle: string(a.h.id), Accepted: accepted, Rejected: rejected}
}

// Append sends a single row. A rejected row is reported by its own error
// rather than a *PartialFailureError.
func (a *Appender) Append(ctx context.Context, values ...any) error {
	err := a.AppendBatch(ctx, [][]any{values})
	var pf *PartialFailureError
	if errors.As(err, &pf) && len(pf.Rejected) == 1 {
		return pf.Rejected[0].Err
	}
	return err
}

// AppendLogTime sends a single row to a log table with an explicit arrival
// time. values hold the other columns.
func (a *Appender) AppendLogTime(ctx context.Context, ts time.Time, values ...any) error {
	if a.tableType != LogTable {
		return newError(KindUnsupportedType, string(wire.MethodAppend), a.h.id, fmt.Sprintf("%s is not a log table, use Append instead", a.table))
	}
	return a.Append(ctx, append([]any{ts}, values...)...)
}

func (a *Appender) fail(err error) {
	a.state = AppenderFailed
	a.failure = err
	a.stream.abort()
	a.s.c.logger.Warn("appender failed", zap.String("appender", string(a.h.id)), zap.Error(err))
}

// Finalize ends the appender and returns its summary. Rows rejected by the
// column check count as rejected. The handle is released whatever the
// outcome; later calls fail with KindInvalidHandle.
func (a *Appender) Finalize(ctx context.Context) (*AppendSummary, error) {
	const op = wire.MethodAppendClose
	a.h.mu.Lock()
	defer a.h.mu.Unlock()

	if a.state == AppenderFinalized {
		return nil, newError(KindInvalidHandle, string(op), a.h.id, "appender is finalized")
	}
	failed := a.state == AppenderFailed
	a.state = AppenderFinalized
	defer a.s.c.handles.remove(a.h)

	ctx, cancel := withDefaultTimeout(ctx, a.s.c.config.AppendTimeout)
	defer cancel()

	var (
		rsp *wire.AppendCloseResponse
		err error
	)
	switch {
	case failed:
		rsp = &wire.AppendCloseResponse{}
		err = a.s.c.call(ctx, 0, op, a.h.id, &wire.AppendCloseRequest{Handle: a.h.id}, rsp)
	case a.s.c.closed.Load():
		a.stream.abort()
		err = newError(KindTransport, string(op), a.h.id, "client is closed")
	default:
		rsp, err = a.stream.closeAndRecv(ctx)
		if err != nil {
			a.stream.abort()
			err = wrapError(string(op), a.h.id, err)
		} else {
			err = statusError(string(op), a.h.id, &rsp.Status)
		}
	}
	if err != nil {
		a.s.c.logger.Warn("appender finalize failed", zap.String("appender", string(a.h.id)), zap.Error(err))
		return nil, err
	}

	summary := &AppendSummary{
		Accepted: rsp.SuccessCount,
		Rejected: rsp.FailCount + a.clientRejected,
	}
	a.s.c.logger.Debug("appender finalized",
		zap.String("appender", string(a.h.id)),
		zap.Int64("accepted", summary.Accepted),
		zap.Int64("rejected", summary.Rejected))
	return summary, nil
}
