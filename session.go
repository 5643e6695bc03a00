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
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neorpc/neorpc-go/internal/wire"
	"github.com/neorpc/neorpc-go/types"
	"go.uber.org/zap"
)

// Session is an authenticated connection on the server. Operations on one
// Session run one at a time; use several sessions for parallel work.
type Session struct {
	c *Client
	h *handle

	// guarded by h.mu
	closed bool
}

// Result is the outcome of Session.Exec.
type Result struct {
	RowsAffected int64
	Message      string
}

// Connect opens a session with the credentials of the client config.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	return c.Conn(ctx, c.config.User, c.config.Password)
}

// Conn opens a session. Only errors of kind KindTransport are worth retrying.
func (c *Client) Conn(ctx context.Context, user, password string) (*Session, error) {
	const op = string(wire.MethodConn)

	var rsp wire.ConnResponse
	if err := c.call(ctx, c.config.QueryTimeout, wire.MethodConn, "", &wire.ConnRequest{User: user, Password: password}, &rsp); err != nil {
		return nil, err
	}
	if rsp.Conn == "" {
		return nil, newError(KindTransport, op, "", "server returned no session handle")
	}

	h := newHandle(rsp.Conn, SessionHandle, nil)
	c.handles.add(h)
	c.logger.Debug("session opened", zap.String("session", string(h.id)), zap.String("user", user))
	return &Session{c: c, h: h}, nil
}

// Handle returns the server handle of the session.
func (s *Session) Handle() string {
	return string(s.h.id)
}

// acquire locks the session for op. The caller unlocks s.h.mu on success.
func (s *Session) acquire(op wire.Method) error {
	s.h.mu.Lock()
	if s.closed {
		s.h.mu.Unlock()
		return newError(KindInvalidHandle, string(op), s.h.id, "session is closed")
	}
	return nil
}

// Close ends the session. It fails with KindHandleBusy while cursors or
// appenders of the session are open.
func (s *Session) Close(ctx context.Context) error {
	if err := s.acquire(wire.MethodConnClose); err != nil {
		return err
	}
	defer s.h.mu.Unlock()

	if n := s.h.childCount(); n > 0 {
		return newError(KindHandleBusy, string(wire.MethodConnClose), s.h.id, fmt.Sprintf("%d cursors or appenders still open", n))
	}

	var rsp wire.ConnCloseResponse
	err := s.c.call(ctx, s.c.config.QueryTimeout, wire.MethodConnClose, s.h.id, &wire.ConnCloseRequest{Conn: s.h.id}, &rsp)
	if err != nil && !errors.Is(err, ErrInvalidHandle) {
		return err
	}
	s.closed = true
	s.c.handles.remove(s.h)
	s.c.logger.Debug("session closed", zap.String("session", string(s.h.id)))
	return err
}

// Ping sends a token through the session and returns the round trip time.
func (s *Session) Ping(ctx context.Context) (time.Duration, error) {
	if err := s.acquire(wire.MethodPing); err != nil {
		return 0, err
	}
	defer s.h.mu.Unlock()

	token := newToken()
	start := time.Now()
	var rsp wire.PingResponse
	if err := s.c.call(ctx, s.c.config.QueryTimeout, wire.MethodPing, s.h.id, &wire.PingRequest{Conn: s.h.id, Token: token}, &rsp); err != nil {
		return 0, err
	}
	if rsp.Token != token {
		return 0, newError(KindTransport, string(wire.MethodPing), s.h.id, fmt.Sprintf("token mismatch: sent %d, received %d", token, rsp.Token))
	}
	return time.Since(start), nil
}

func newToken() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]))
}

// Exec runs a statement that returns no rows.
func (s *Session) Exec(ctx context.Context, sql string, params ...any) (*Result, error) {
	if err := s.acquire(wire.MethodExec); err != nil {
		return nil, err
	}
	defer s.h.mu.Unlock()

	args, err := types.EncodeAll(params)
	if err != nil {
		return nil, wrapError(string(wire.MethodExec), s.h.id, err)
	}

	var rsp wire.ExecResponse
	if err := s.c.call(ctx, s.c.config.QueryTimeout, wire.MethodExec, s.h.id, &wire.ExecRequest{Conn: s.h.id, SQL: sql, Params: args}, &rsp); err != nil {
		return nil, err
	}
	return &Result{RowsAffected: rsp.RowsAffected, Message: rsp.Message}, nil
}

// Query opens a cursor over the rows of a query. The cursor must be closed.
func (s *Session) Query(ctx context.Context, sql string, params ...any) (*Rows, error) {
	if err := s.acquire(wire.MethodQuery); err != nil {
		return nil, err
	}
	defer s.h.mu.Unlock()

	args, err := types.EncodeAll(params)
	if err != nil {
		return nil, wrapError(string(wire.MethodQuery), s.h.id, err)
	}

	var rsp wire.QueryResponse
	if err := s.c.call(ctx, s.c.config.QueryTimeout, wire.MethodQuery, s.h.id, &wire.QueryRequest{Conn: s.h.id, SQL: sql, Params: args}, &rsp); err != nil {
		return nil, err
	}
	if rsp.Rows == "" {
		return nil, newError(KindTransport, string(wire.MethodQuery), s.h.id, "server returned no cursor handle")
	}

	h := newHandle(rsp.Rows, RowsHandle, s.h)
	s.c.handles.add(h)
	s.c.logger.Debug("cursor opened", zap.String("session", string(s.h.id)), zap.String("rows", string(h.id)))
	return &Rows{s: s, h: h}, nil
}

// QueryRow runs a query and returns its first row. It returns ErrNoRows when
// the query yields nothing. The cursor is always closed.
func (s *Session) QueryRow(ctx context.Context, sql string, params ...any) (Row, error) {
	rows, err := s.Query(ctx, sql, params...)
	if err != nil {
		return nil, err
	}
	row, err := rows.Fetch(ctx)
	closeErr := rows.Close(ctx)
	if errors.Is(err, ErrEndOfRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return row, nil
}

// Appender opens an append session on a table.
func (s *Session) Appender(ctx context.Context, table string) (*Appender, error) {
	if err := s.acquire(wire.MethodAppender); err != nil {
		return nil, err
	}
	defer s.h.mu.Unlock()

	var rsp wire.AppenderResponse
	if err := s.c.call(ctx, s.c.config.QueryTimeout, wire.MethodAppender, s.h.id, &wire.AppenderRequest{Conn: s.h.id, TableName: table}, &rsp); err != nil {
		return nil, err
	}
	if rsp.Handle == "" {
		return nil, newError(KindTransport, string(wire.MethodAppender), s.h.id, "server returned no appender handle")
	}

	stream, err := s.c.rpc.appendStream(rsp.Handle, rsp.Columns)
	if err != nil {
		var done wire.AppendCloseResponse
		_ = s.c.call(ctx, s.c.config.AppendTimeout, wire.MethodAppendClose, rsp.Handle, &wire.AppendCloseRequest{Handle: rsp.Handle}, &done)
		return nil, wrapError(string(wire.MethodAppender), rsp.Handle, err)
	}

	name := rsp.TableName
	if name == "" {
		name = table
	}
	h := newHandle(rsp.Handle, AppenderHandle, s.h)
	s.c.handles.add(h)
	s.c.logger.Debug("appender opened",
		zap.String("session", string(s.h.id)),
		zap.String("appender", string(h.id)),
		zap.String("table", name))
	return &Appender{s: s, h: h, table: name, tableType: TableType(rsp.TableType), cols: rsp.Columns, stream: stream}, nil
}

// Explain returns the plan of a statement. full asks for the detailed plan.
func (s *Session) Explain(ctx context.Context, sql string, full bool) (string, error) {
	if err := s.acquire(wire.MethodExplain); err != nil {
		return "", err
	}
	defer s.h.mu.Unlock()

	var rsp wire.ExplainResponse
	if err := s.c.call(ctx, s.c.config.QueryTimeout, wire.MethodExplain, s.h.id, &wire.ExplainRequest{Conn: s.h.id, SQL: sql, Full: full}, &rsp); err != nil {
		return "", err
	}
	return rsp.Plan, nil
}
