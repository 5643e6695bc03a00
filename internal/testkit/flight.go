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
	"context"
	"encoding/json"
	"io"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/neorpc/neorpc-go/internal/wire"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultFetchSize = 1024

// StartFlight serves the Arrow Flight transport and returns its endpoint.
func (s *Server) StartFlight() string {
	srv := flight.NewServerWithMiddleware(nil)
	srv.RegisterFlightService(&flightService{s: s, mem: memory.DefaultAllocator})
	require.NoError(s.tb, srv.Init("127.0.0.1:0"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(); err != nil {
			s.logger.Warn("flight server stopped", zap.Error(err))
		}
	}()
	s.shutdown = append(s.shutdown, func() {
		srv.Shutdown()
		<-done
	})

	addr := srv.Addr().String()
	s.addPort("grpc", addr)
	return "grpc://" + addr
}

type flightService struct {
	flight.BaseFlightServer
	s   *Server
	mem memory.Allocator
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, errUnknownMethod):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, errBadRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

func (f *flightService) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	rsp, err := f.s.Call(stream.Context(), wire.Method(action.Type), action.Body)
	if err != nil {
		return grpcError(err)
	}
	body, err := json.Marshal(rsp)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.Send(&flight.Result{Body: body})
}

// DoGet streams the remaining rows of a cursor in batches of the ticket's
// fetch size.
func (f *flightService) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	var t wire.StreamTicket
	if err := json.Unmarshal(ticket.Ticket, &t); err != nil {
		return status.Errorf(codes.InvalidArgument, "bad ticket: %v", err)
	}
	if err := f.s.gate.wait(stream.Context()); err != nil {
		return grpcError(err)
	}
	cur, ok := f.s.cursor(t.Rows)
	if !ok {
		return status.Errorf(codes.NotFound, "cursor %s not found", t.Rows)
	}

	schema, err := wire.Schema(cur.cols)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	size := t.FetchSize
	if size <= 0 {
		size = defaultFetchSize
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(schema), ipc.WithAllocator(f.mem))
	for {
		batch := cur.next(size)
		if len(batch) == 0 {
			break
		}
		rec, err := wire.NewRecord(f.mem, schema, cur.cols, batch)
		if err != nil {
			_ = w.Close()
			return status.Error(codes.Internal, err.Error())
		}
		err = w.Write(rec)
		rec.Release()
		if err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

// DoPut appends every record of the stream, acknowledging each one, and
// finishes the appender once the client half-closes the stream. When the
// stream breaks the appender stays open.
func (f *flightService) DoPut(stream flight.FlightService_DoPutServer) error {
	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(f.mem))
	if err != nil {
		return err
	}
	defer reader.Release()

	var desc wire.AppendDescriptor
	d := reader.LatestFlightDescriptor()
	if d == nil || json.Unmarshal(d.Cmd, &desc) != nil {
		return status.Error(codes.InvalidArgument, "missing append descriptor")
	}
	ap, ok := f.s.lookupAppender(desc.Handle)
	if !ok {
		return status.Errorf(codes.NotFound, "appender %s not found", desc.Handle)
	}

	for reader.Next() {
		var rsp wire.AppendResponse
		rows, err := wire.RecordRows(reader.Record(), ap.cols)
		if err != nil {
			rsp.Fail(wire.CodeType, err.Error())
		} else {
			f.s.insert(stream.Context(), ap, rows, &rsp)
		}
		if err := f.sendResult(stream, &rsp); err != nil {
			return err
		}
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	var done wire.AppendCloseResponse
	f.s.appendClose(&wire.AppendCloseRequest{Handle: desc.Handle}, &done)
	return f.sendResult(stream, &done)
}

func (f *flightService) sendResult(stream flight.FlightService_DoPutServer, rsp wire.Response) error {
	meta, err := json.Marshal(rsp)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.Send(&flight.PutResult{AppMetadata: meta})
}
