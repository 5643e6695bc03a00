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

// Package wire defines the request and response messages of the NeoRPC
// protocol and the Arrow encoding of row batches.
package wire

import (
	"github.com/neorpc/neorpc-go/types"
)

// RPCPath is the HTTP path prefix of unary methods: POST RPCPath + Method.
const RPCPath = "/v1/rpc/"

// Method names a remote procedure.
type Method string

const (
	MethodConn            Method = "Conn"
	MethodConnClose       Method = "ConnClose"
	MethodPing            Method = "Ping"
	MethodExec            Method = "Exec"
	MethodQuery           Method = "Query"
	MethodColumns         Method = "Columns"
	MethodRowsFetch       Method = "RowsFetch"
	MethodRowsClose       Method = "RowsClose"
	MethodAppender        Method = "Appender"
	MethodAppend          Method = "Append"
	MethodAppendClose     Method = "AppendClose"
	MethodExplain         Method = "Explain"
	MethodUserAuth        Method = "UserAuth"
	MethodGetServerInfo   Method = "GetServerInfo"
	MethodGetServicePorts Method = "GetServicePorts"
	MethodSessions        Method = "Sessions"
)

// Handle is an opaque identifier issued by the server.
type Handle string

// Code classifies a failed response.
type Code string

const (
	CodeAuth     Code = "AUTH"
	CodeHandle   Code = "HANDLE"
	CodeQuery    Code = "QUERY"
	CodeType     Code = "TYPE"
	CodeBusy     Code = "BUSY"
	CodeInternal Code = "INTERNAL"
)

// Status is carried by every response. A response is successful only when
// Success is set; an empty payload means nothing.
type Status struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Code    Code   `json:"code,omitempty"`
	Elapse  string `json:"elapse,omitempty"`
}

// GetStatus returns s. It is promoted to every response embedding Status.
func (s *Status) GetStatus() *Status { return s }

// Fail marks the status failed with the given code and reason.
func (s *Status) Fail(code Code, reason string) {
	s.Success = false
	s.Code = code
	s.Reason = reason
}

// Response is implemented by every response message.
type Response interface {
	GetStatus() *Status
}

type ConnRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type ConnResponse struct {
	Status
	Conn Handle `json:"conn,omitempty"`
}

type ConnCloseRequest struct {
	Conn Handle `json:"conn"`
}

type ConnCloseResponse struct {
	Status
}

type PingRequest struct {
	Conn  Handle `json:"conn"`
	Token int64  `json:"token"`
}

type PingResponse struct {
	Status
	Token int64 `json:"token"`
}

type ExecRequest struct {
	Conn   Handle              `json:"conn"`
	SQL    string              `json:"sql"`
	Params []types.TaggedValue `json:"params,omitempty"`
}

type ExecResponse struct {
	Status
	RowsAffected int64  `json:"rows_affected"`
	Message      string `json:"message,omitempty"`
}

type QueryRequest struct {
	Conn   Handle              `json:"conn"`
	SQL    string              `json:"sql"`
	Params []types.TaggedValue `json:"params,omitempty"`
}

type QueryResponse struct {
	Status
	Rows Handle `json:"rows,omitempty"`
}

type ColumnsRequest struct {
	Rows Handle `json:"rows"`
}

type ColumnsResponse struct {
	Status
	Columns types.Columns `json:"columns"`
}

type RowsFetchRequest struct {
	Rows Handle `json:"rows"`
}

type RowsFetchResponse struct {
	Status
	HasNoRows bool                `json:"has_no_rows"`
	Values    []types.TaggedValue `json:"values,omitempty"`
}

type RowsCloseRequest struct {
	Rows Handle `json:"rows"`
}

type RowsCloseResponse struct {
	Status
}

// StreamTicket addresses the record batch stream of an open cursor.
type StreamTicket struct {
	Rows      Handle `json:"rows"`
	FetchSize int    `json:"fetch_size,omitempty"`
}

type AppenderRequest struct {
	Conn      Handle `json:"conn"`
	TableName string `json:"table_name"`
}

type AppenderResponse struct {
	Status
	Handle    Handle        `json:"handle,omitempty"`
	TableName string        `json:"table_name,omitempty"`
	TableType string        `json:"table_type,omitempty"`
	Columns   types.Columns `json:"columns,omitempty"`
}

// AppendRequest carries one batch of rows as base64 encoded Arrow IPC.
type AppendRequest struct {
	Handle Handle `json:"handle"`
	Rows   string `json:"rows"`
}

// RowFailure reports a row the server refused, indexed within its batch.
type RowFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type AppendResponse struct {
	Status
	Accepted int64        `json:"accepted"`
	Failures []RowFailure `json:"failures,omitempty"`
}

// AppendDescriptor is the command of a streamed append.
type AppendDescriptor struct {
	Handle Handle `json:"handle"`
}

type AppendCloseRequest struct {
	Handle Handle `json:"handle"`
}

type AppendCloseResponse struct {
	Status
	SuccessCount int64 `json:"success_count"`
	FailCount    int64 `json:"fail_count"`
}

type ExplainRequest struct {
	Conn Handle `json:"conn"`
	SQL  string `json:"sql"`
	Full bool   `json:"full,omitempty"`
}

type ExplainResponse struct {
	Status
	Plan string `json:"plan"`
}

type UserAuthRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type UserAuthResponse struct {
	Status
}

type ServerInfoRequest struct{}

type ServerInfoResponse struct {
	Status
	Version Version `json:"version"`
	Runtime Runtime `json:"runtime"`
}

// Version describes the server build.
type Version struct {
	Major          int32  `json:"major"`
	Minor          int32  `json:"minor"`
	Patch          int32  `json:"patch"`
	GitSHA         string `json:"git_sha,omitempty"`
	BuildTimestamp string `json:"build_timestamp,omitempty"`
	BuildCompiler  string `json:"build_compiler,omitempty"`
	Engine         string `json:"engine,omitempty"`
}

// Runtime describes the server process.
type Runtime struct {
	OS             string `json:"os"`
	Arch           string `json:"arch"`
	Pid            int32  `json:"pid"`
	UptimeInSecond int64  `json:"uptime_in_second"`
	Processes      int32  `json:"processes"`
	Goroutines     int32  `json:"goroutines"`
	MemSys         uint64 `json:"mem_sys"`
	MemHeapAlloc   uint64 `json:"mem_heap_alloc"`
}

type ServicePortsRequest struct {
	Service string `json:"service,omitempty"`
}

type ServicePortsResponse struct {
	Status
	Ports []Port `json:"ports"`
}

// Port is a listening address of a server service.
type Port struct {
	Service string `json:"service"`
	Address string `json:"address"`
}

type SessionsRequest struct {
	Statz    bool `json:"statz,omitempty"`
	Sessions bool `json:"sessions,omitempty"`
}

type SessionsResponse struct {
	Status
	Statz    *Statz    `json:"statz,omitempty"`
	Sessions []Session `json:"sessions,omitempty"`
}

// Statz holds server side handle counters.
type Statz struct {
	Conns          int64 `json:"conns"`
	ConnsInUse     int32 `json:"conns_in_use"`
	Stmts          int64 `json:"stmts"`
	StmtsInUse     int32 `json:"stmts_in_use"`
	Appenders      int64 `json:"appenders"`
	AppendersInUse int32 `json:"appenders_in_use"`
}

// Session describes a live server session.
type Session struct {
	ID            string `json:"id"`
	User          string `json:"user,omitempty"`
	CreTime       int64  `json:"cre_time"`
	LatestSQLTime int64  `json:"latest_sql_time,omitempty"`
	LatestSQL     string `json:"latest_sql,omitempty"`
}
