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
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neorpc/neorpc-go/internal/wire"
	"github.com/neorpc/neorpc-go/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	errUnknownMethod = errors.New("unknown method")
	errBadRequest    = errors.New("bad request")
)

type conn struct {
	id            wire.Handle
	user          string
	created       time.Time
	latestSQL     string
	latestSQLTime time.Time
	children      int
}

type cursor struct {
	id   wire.Handle
	conn wire.Handle
	cols types.Columns

	mu   sync.Mutex
	rows [][]types.Value
	pos  int
}

// next returns up to n rows and advances the cursor.
func (c *cursor) next(n int) [][]types.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	end := min(c.pos+n, len(c.rows))
	batch := c.rows[c.pos:end]
	c.pos = end
	return batch
}

type appender struct {
	id    wire.Handle
	conn  wire.Handle
	table string
	cols  types.Columns

	mu      sync.Mutex
	success int64
	fail    int64
}

func newHandle() wire.Handle {
	return wire.Handle(uuid.NewString())
}

// Call runs one unary method. The error is set only for requests that
// cannot be served at all; failures of the method are in the status of the
// response.
func (s *Server) Call(ctx context.Context, method wire.Method, body []byte) (wire.Response, error) {
	start := time.Now()

	var (
		rsp wire.Response
		err error
	)
	switch method {
	case wire.MethodConn:
		rsp, err = serve(body, &wire.ConnResponse{}, s.conn)
	case wire.MethodConnClose:
		rsp, err = serve(body, &wire.ConnCloseResponse{}, s.connClose)
	case wire.MethodPing:
		rsp, err = serve(body, &wire.PingResponse{}, s.ping)
	case wire.MethodExec:
		rsp, err = serveCtx(ctx, body, &wire.ExecResponse{}, s.exec)
	case wire.MethodQuery:
		rsp, err = serveCtx(ctx, body, &wire.QueryResponse{}, s.query)
	case wire.MethodColumns:
		rsp, err = serve(body, &wire.ColumnsResponse{}, s.columns)
	case wire.MethodRowsFetch:
		if err := s.gate.wait(ctx); err != nil {
			return nil, err
		}
		rsp, err = serve(body, &wire.RowsFetchResponse{}, s.rowsFetch)
	case wire.MethodRowsClose:
		rsp, err = serve(body, &wire.RowsCloseResponse{}, s.rowsClose)
	case wire.MethodAppender:
		rsp, err = serveCtx(ctx, body, &wire.AppenderResponse{}, s.appender)
	case wire.MethodAppend:
		rsp, err = serveCtx(ctx, body, &wire.AppendResponse{}, s.append)
	case wire.MethodAppendClose:
		rsp, err = serve(body, &wire.AppendCloseResponse{}, s.appendClose)
	case wire.MethodExplain:
		rsp, err = serveCtx(ctx, body, &wire.ExplainResponse{}, s.explain)
	case wire.MethodUserAuth:
		rsp, err = serve(body, &wire.UserAuthResponse{}, s.userAuth)
	case wire.MethodGetServerInfo:
		rsp, err = serveCtx(ctx, body, &wire.ServerInfoResponse{}, s.serverInfo)
	case wire.MethodGetServicePorts:
		rsp, err = serve(body, &wire.ServicePortsResponse{}, s.servicePorts)
	case wire.MethodSessions:
		rsp, err = serve(body, &wire.SessionsResponse{}, s.sessions)
	default:
		return nil, errors.Wrapf(errUnknownMethod, "%q", method)
	}
	if err != nil {
		return nil, err
	}

	status := rsp.GetStatus()
	status.Elapse = time.Since(start).String()
	if !status.Success {
		s.logger.Debug("call failed",
			zap.String("method", string(method)),
			zap.String("code", string(status.Code)),
			zap.String("reason", status.Reason))
	}
	return rsp, nil
}

func serve[Req any, Rsp wire.Response](body []byte, rsp Rsp, fn func(*Req, Rsp)) (wire.Response, error) {
	var req Req
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.Wrap(errBadRequest, err.Error())
	}
	fn(&req, rsp)
	return rsp, nil
}

func serveCtx[Req any, Rsp wire.Response](ctx context.Context, body []byte, rsp Rsp, fn func(context.Context, *Req, Rsp)) (wire.Response, error) {
	var req Req
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.Wrap(errBadRequest, err.Error())
	}
	fn(ctx, &req, rsp)
	return rsp, nil
}

func (s *Server) checkUser(user, password string) bool {
	pw, ok := s.users[user]
	return ok && pw == password
}

func (s *Server) conn(req *wire.ConnRequest, rsp *wire.ConnResponse) {
	if !s.checkUser(req.User, req.Password) {
		rsp.Fail(wire.CodeAuth, "invalid user or password")
		return
	}
	c := &conn{id: newHandle(), user: req.User, created: time.Now()}

	s.mu.Lock()
	s.conns[c.id] = c
	s.statz.Conns++
	s.statz.ConnsInUse++
	s.mu.Unlock()

	rsp.Success = true
	rsp.Conn = c.id
}

func (s *Server) lookupConn(id wire.Handle, status *wire.Status) *conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok {
		status.Fail(wire.CodeHandle, fmt.Sprintf("session %s not found", id))
		return nil
	}
	return c
}

func (s *Server) connClose(req *wire.ConnCloseRequest, rsp *wire.ConnCloseResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[req.Conn]
	switch {
	case !ok:
		rsp.Fail(wire.CodeHandle, fmt.Sprintf("session %s not found", req.Conn))
	case c.children > 0:
		rsp.Fail(wire.CodeBusy, fmt.Sprintf("session %s has %d open handles", req.Conn, c.children))
	default:
		delete(s.conns, req.Conn)
		s.statz.ConnsInUse--
		rsp.Success = true
	}
}

func (s *Server) ping(req *wire.PingRequest, rsp *wire.PingResponse) {
	if s.lookupConn(req.Conn, &rsp.Status) == nil {
		return
	}
	rsp.Success = true
	rsp.Token = req.Token
}

func (s *Server) touch(c *conn, query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.latestSQL = query
	c.latestSQLTime = time.Now()
}

func decodeParams(params []types.TaggedValue) ([]any, error) {
	args := make([]any, len(params))
	for i, p := range params {
		v, err := types.Decode(p, "")
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %d", i+1)
		}
		args[i] = sqlArg(v)
	}
	return args, nil
}

func (s *Server) exec(ctx context.Context, req *wire.ExecRequest, rsp *wire.ExecResponse) {
	c := s.lookupConn(req.Conn, &rsp.Status)
	if c == nil {
		return
	}
	s.touch(c, req.SQL)
	args, err := decodeParams(req.Params)
	if err != nil {
		rsp.Fail(wire.CodeType, err.Error())
		return
	}
	result, err := s.db.ExecContext(ctx, req.SQL, args...)
	if err != nil {
		rsp.Fail(wire.CodeQuery, err.Error())
		return
	}
	n, _ := result.RowsAffected()
	rsp.Success = true
	rsp.RowsAffected = n
	rsp.Message = fmt.Sprintf("%d rows affected", n)
}

func (s *Server) query(ctx context.Context, req *wire.QueryRequest, rsp *wire.QueryResponse) {
	c := s.lookupConn(req.Conn, &rsp.Status)
	if c == nil {
		return
	}
	s.touch(c, req.SQL)
	args, err := decodeParams(req.Params)
	if err != nil {
		rsp.Fail(wire.CodeType, err.Error())
		return
	}
	cols, rows, err := materialize(ctx, s.db, req.SQL, args...)
	if err != nil {
		rsp.Fail(wire.CodeQuery, err.Error())
		return
	}

	cur := &cursor{id: newHandle(), conn: c.id, cols: cols, rows: rows}
	s.mu.Lock()
	s.cursors[cur.id] = cur
	c.children++
	s.statz.Stmts++
	s.statz.StmtsInUse++
	s.mu.Unlock()

	rsp.Success = true
	rsp.Rows = cur.id
}

func (s *Server) cursor(id wire.Handle) (*cursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cursors[id]
	return cur, ok
}

func (s *Server) columns(req *wire.ColumnsRequest, rsp *wire.ColumnsResponse) {
	cur, ok := s.cursor(req.Rows)
	if !ok {
		rsp.Fail(wire.CodeHandle, fmt.Sprintf("cursor %s not found", req.Rows))
		return
	}
	rsp.Success = true
	rsp.Columns = cur.cols
}

func (s *Server) rowsFetch(req *wire.RowsFetchRequest, rsp *wire.RowsFetchResponse) {
	cur, ok := s.cursor(req.Rows)
	if !ok {
		rsp.Fail(wire.CodeHandle, fmt.Sprintf("cursor %s not found", req.Rows))
		return
	}
	rsp.Success = true
	batch := cur.next(1)
	if len(batch) == 0 {
		rsp.HasNoRows = true
		return
	}
	rsp.Values = make([]types.TaggedValue, len(batch[0]))
	for i, v := range batch[0] {
		rsp.Values[i] = types.Marshal(v)
	}
}

func (s *Server) rowsClose(req *wire.RowsCloseRequest, rsp *wire.RowsCloseResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cursors[req.Rows]
	if !ok {
		rsp.Fail(wire.CodeHandle, fmt.Sprintf("cursor %s not found", req.Rows))
		return
	}
	delete(s.cursors, req.Rows)
	if c, ok := s.conns[cur.conn]; ok {
		c.children--
	}
	s.statz.StmtsInUse--
	rsp.Success = true
}

// arrivalColumn leads the columns of a log table.
const arrivalColumn = "_arrival_time"

func (s *Server) appender(ctx context.Context, req *wire.AppenderRequest, rsp *wire.AppenderResponse) {
	c := s.lookupConn(req.Conn, &rsp.Status)
	if c == nil {
		return
	}
	cols, err := tableColumns(ctx, s.db, req.TableName)
	if err != nil {
		rsp.Fail(wire.CodeQuery, err.Error())
		return
	}
	if len(cols) == 0 {
		rsp.Fail(wire.CodeQuery, fmt.Sprintf("table %s does not exist", req.TableName))
		return
	}

	ap := &appender{id: newHandle(), conn: c.id, table: req.TableName, cols: cols}
	s.mu.Lock()
	s.appenders[ap.id] = ap
	c.children++
	s.statz.Appenders++
	s.statz.AppendersInUse++
	s.mu.Unlock()

	rsp.Success = true
	rsp.Handle = ap.id
	rsp.TableName = ap.table
	rsp.Columns = cols
	if cols[0].Name == arrivalColumn && cols[0].Type == types.DatetimeDataType {
		rsp.TableType = "log"
	}
}

func (s *Server) lookupAppender(id wire.Handle) (*appender, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ap, ok := s.appenders[id]
	return ap, ok
}

func (s *Server) append(ctx context.Context, req *wire.AppendRequest, rsp *wire.AppendResponse) {
	ap, ok := s.lookupAppender(req.Handle)
	if !ok {
		rsp.Fail(wire.CodeHandle, fmt.Sprintf("appender %s not found", req.Handle))
		return
	}
	cols, rows, err := wire.DecodeRows(req.Rows)
	if err != nil {
		rsp.Fail(wire.CodeType, err.Error())
		return
	}
	if len(cols) != len(ap.cols) {
		rsp.Fail(wire.CodeType, fmt.Sprintf("batch has %d columns, table %s has %d", len(cols), ap.table, len(ap.cols)))
		return
	}
	s.insert(ctx, ap, rows, rsp)
}

// insert writes rows one by one and reports the rows SQLite refuses.
func (s *Server) insert(ctx context.Context, ap *appender, rows [][]types.Value, rsp *wire.AppendResponse) {
	s.mu.Lock()
	reason := s.rejectNext
	s.rejectNext = ""
	s.mu.Unlock()
	if reason != "" {
		rsp.Fail(wire.CodeQuery, reason)
		return
	}

	names := make([]string, len(ap.cols))
	marks := make([]string, len(ap.cols))
	for i, col := range ap.cols {
		names[i] = quote(col.Name)
		marks[i] = "?"
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quote(ap.table), strings.Join(names, ", "), strings.Join(marks, ", "))

	ap.mu.Lock()
	defer ap.mu.Unlock()

	rsp.Success = true
	for i, row := range rows {
		args := make([]any, len(row))
		for j, v := range row {
			args[j] = sqlArg(v)
		}
		if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
			rsp.Failures = append(rsp.Failures, wire.RowFailure{Index: i, Reason: err.Error()})
			ap.fail++
			continue
		}
		rsp.Accepted++
		ap.success++
	}
}

func (s *Server) appendClose(req *wire.AppendCloseRequest, rsp *wire.AppendCloseResponse) {
	s.mu.Lock()
	ap, ok := s.appenders[req.Handle]
	if ok {
		delete(s.appenders, req.Handle)
		if c, ok := s.conns[ap.conn]; ok {
			c.children--
		}
		s.statz.AppendersInUse--
	}
	s.mu.Unlock()

	if !ok {
		rsp.Fail(wire.CodeHandle, fmt.Sprintf("appender %s not found", req.Handle))
		return
	}
	ap.mu.Lock()
	defer ap.mu.Unlock()
	rsp.Success = true
	rsp.SuccessCount = ap.success
	rsp.FailCount = ap.fail
}

func (s *Server) explain(ctx context.Context, req *wire.ExplainRequest, rsp *wire.ExplainResponse) {
	c := s.lookupConn(req.Conn, &rsp.Status)
	if c == nil {
		return
	}
	rows, err := s.db.QueryContext(ctx, "EXPLAIN QUERY PLAN "+req.SQL)
	if err != nil {
		rsp.Fail(wire.CodeQuery, err.Error())
		return
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var id, parent, unused int
		var detail string
		if err := rows.Scan(&id, &parent, &unused, &detail); err != nil {
			rsp.Fail(wire.CodeInternal, err.Error())
			return
		}
		if req.Full {
			lines = append(lines, fmt.Sprintf("%d %d %s", id, parent, detail))
		} else {
			lines = append(lines, detail)
		}
	}
	if err := rows.Err(); err != nil {
		rsp.Fail(wire.CodeQuery, err.Error())
		return
	}
	rsp.Success = true
	rsp.Plan = strings.Join(lines, "\n")
}

func (s *Server) userAuth(req *wire.UserAuthRequest, rsp *wire.UserAuthResponse) {
	if !s.checkUser(req.User, req.Password) {
		rsp.Fail(wire.CodeAuth, "invalid user or password")
		return
	}
	rsp.Success = true
}

func (s *Server) serverInfo(ctx context.Context, _ *wire.ServerInfoRequest, rsp *wire.ServerInfoResponse) {
	var engine string
	if err := s.db.QueryRowContext(ctx, `SELECT sqlite_version()`).Scan(&engine); err != nil {
		rsp.Fail(wire.CodeInternal, err.Error())
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rsp.Success = true
	rsp.Version = wire.Version{
		Major:         1,
		BuildCompiler: runtime.Version(),
		Engine:        "sqlite " + engine,
	}
	rsp.Runtime = wire.Runtime{
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		Pid:            int32(os.Getpid()),
		UptimeInSecond: int64(time.Since(s.started).Seconds()),
		Processes:      int32(runtime.NumCPU()),
		Goroutines:     int32(runtime.NumGoroutine()),
		MemSys:         mem.Sys,
		MemHeapAlloc:   mem.HeapAlloc,
	}
}

func (s *Server) servicePorts(req *wire.ServicePortsRequest, rsp *wire.ServicePortsResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rsp.Success = true
	rsp.Ports = []wire.Port{}
	for _, p := range s.ports {
		if req.Service == "" || req.Service == p.Service {
			rsp.Ports = append(rsp.Ports, p)
		}
	}
}

func (s *Server) sessions(req *wire.SessionsRequest, rsp *wire.SessionsResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rsp.Success = true
	if req.Statz {
		statz := s.statz
		rsp.Statz = &statz
	}
	if req.Sessions {
		for _, c := range s.conns {
			info := wire.Session{
				ID:        string(c.id),
				User:      c.user,
				CreTime:   c.created.UnixNano(),
				LatestSQL: c.latestSQL,
			}
			if !c.latestSQLTime.IsZero() {
				info.LatestSQLTime = c.latestSQLTime.UnixNano()
			}
			rsp.Sessions = append(rsp.Sessions, info)
		}
		slices.SortFunc(rsp.Sessions, func(a, b wire.Session) int {
			return cmp.Compare(a.CreTime, b.CreTime)
		})
	}
}
