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
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/neorpc/neorpc-go/internal/wire"
	"github.com/neorpc/neorpc-go/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	_ rpcAPI       = (*flightRPC)(nil)
	_ rowStream    = (*flightRows)(nil)
	_ appendStream = (*flightAppend)(nil)
)

// flightRPC speaks Arrow Flight: unary procedures are DoAction calls with
// JSON bodies, cursors are DoGet streams and appenders are DoPut streams.
type flightRPC struct {
	client    flight.Client
	mem       memory.Allocator
	fetchSize int
}

func newFlightRPC(addr string, fetchSize int) (*flightRPC, error) {
	client, err := flight.NewClientWithMiddleware(addr, nil, nil, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &flightRPC{
		client:    client,
		mem:       memory.DefaultAllocator,
		fetchSize: fetchSize,
	}, nil
}

func (r *flightRPC) invoke(ctx context.Context, method wire.Method, request any, response wire.Response) error {
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}

	stream, err := r.client.DoAction(ctx, &flight.Action{Type: string(method), Body: body})
	if err != nil {
		return err
	}
	result, err := stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty response")
		}
		return err
	}
	if err := flight.ReadUntilEOF(stream); err != nil {
		return err
	}
	return json.Unmarshal(result.Body, response)
}

func (r *flightRPC) rowStream(h wire.Handle, cols types.Columns) rowStream {
	ticket, _ := json.Marshal(wire.StreamTicket{Rows: h, FetchSize: r.fetchSize})
	ctx, cancel := context.WithCancel(context.Background())
	return &flightRows{r: r, ticket: ticket, cols: cols, ctx: ctx, cancel: cancel}
}

func (r *flightRPC) appendStream(h wire.Handle, cols types.Columns) (appendStream, error) {
	schema, err := wire.Schema(cols)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &flightAppend{r: r, h: h, cols: cols, schema: schema, ctx: ctx, cancel: cancel}, nil
}

func (r *flightRPC) close() error {
	return r.client.Close()
}

// await runs fn in its own goroutine so that ctx can interrupt a blocked
// stream. On interruption the stream context is cancelled and fn is waited
// for before returning.
func await(ctx context.Context, cancelStream context.CancelFunc, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancelStream()
		<-done
		return ctx.Err()
	}
}

// flightRows reads the record batches of one cursor and hands out rows one
// at a time. The stream is opened on the first fetch.
type flightRows struct {
	r      *flightRPC
	ticket []byte
	cols   types.Columns

	ctx    context.Context
	cancel context.CancelFunc

	reader  *flight.Reader
	pending [][]types.Value
	done    bool
}

func (s *flightRows) next(ctx context.Context) ([]types.Value, error) {
	if len(s.pending) == 0 && !s.done {
		if err := await(ctx, s.cancel, s.advance); err != nil {
			s.close()
			return nil, err
		}
	}
	if len(s.pending) == 0 {
		return nil, io.EOF
	}
	row := s.pending[0]
	s.pending = s.pending[1:]
	return row, nil
}

func (s *flightRows) advance() error {
	if s.reader == nil {
		stream, err := s.r.client.DoGet(s.ctx, &flight.Ticket{Ticket: s.ticket})
		if err != nil {
			return err
		}
		reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.r.mem))
		if err != nil {
			return err
		}
		s.reader = reader
	}

	for s.reader.Next() {
		rows, err := wire.RecordRows(s.reader.Record(), s.cols)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			s.pending = rows
			return nil
		}
	}
	if err := s.reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	s.done = true
	return nil
}

func (s *flightRows) close() {
	s.cancel()
	if s.reader != nil {
		s.reader.Release()
		s.reader = nil
	}
	s.pending = nil
	s.done = true
}

// flightAppend writes the batches of one appender on a DoPut stream. The
// server acknowledges every record with a PutResult and sends the summary
// after the client half-closes the stream.
type flightAppend struct {
	r      *flightRPC
	h      wire.Handle
	cols   types.Columns
	schema *arrow.Schema

	ctx    context.Context
	cancel context.CancelFunc

	stream flight.FlightService_DoPutClient
	writer *flight.Writer
}

func (s *flightAppend) open() error {
	if s.stream != nil {
		return nil
	}
	stream, err := s.r.client.DoPut(s.ctx)
	if err != nil {
		return err
	}
	cmd, err := json.Marshal(wire.AppendDescriptor{Handle: s.h})
	if err != nil {
		return err
	}
	s.writer = flight.NewRecordWriter(stream, ipc.WithSchema(s.schema), ipc.WithAllocator(s.r.mem))
	s.writer.SetFlightDescriptor(&flight.FlightDescriptor{Type: flight.DescriptorCMD, Cmd: cmd})
	s.stream = stream
	return nil
}

func (s *flightAppend) send(ctx context.Context, rows [][]types.Value) (*wire.AppendResponse, error) {
	rec, err := wire.NewRecord(s.r.mem, s.schema, s.cols, rows)
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	var rsp wire.AppendResponse
	err = await(ctx, s.cancel, func() error {
		if err := s.open(); err != nil {
			return err
		}
		if err := s.writer.Write(rec); err != nil {
			return s.streamError(err)
		}
		ack, err := s.stream.Recv()
		if err != nil {
			return err
		}
		return json.Unmarshal(ack.AppMetadata, &rsp)
	})
	if err != nil {
		return nil, err
	}
	return &rsp, nil
}

func (s *flightAppend) closeAndRecv(ctx context.Context) (*wire.AppendCloseResponse, error) {
	defer s.cancel()

	var rsp wire.AppendCloseResponse
	if s.stream == nil {
		err := s.r.invoke(ctx, wire.MethodAppendClose, &wire.AppendCloseRequest{Handle: s.h}, &rsp)
		return &rsp, err
	}

	err := await(ctx, s.cancel, func() error {
		if err := s.writer.Close(); err != nil {
			return s.streamError(err)
		}
		if err := s.stream.CloseSend(); err != nil {
			return err
		}
		done, err := s.stream.Recv()
		if err != nil {
			return err
		}
		return json.Unmarshal(done.AppMetadata, &rsp)
	})
	if err != nil {
		return nil, err
	}
	return &rsp, nil
}

// streamError recovers the status of a stream the server already ended;
// Send only reports io.EOF in that case.
func (s *flightAppend) streamError(err error) error {
	if !errors.Is(err, io.EOF) {
		return err
	}
	if _, rerr := s.stream.Recv(); rerr != nil && !errors.Is(rerr, io.EOF) {
		return rerr
	}
	return err
}

func (s *flightAppend) abort() {
	s.cancel()
}
