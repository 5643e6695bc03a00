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

package neorpc_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neorpc/neorpc-go"
	"github.com/neorpc/neorpc-go/internal/testkit"
	"github.com/stretchr/testify/require"
)

func countRows(t *testing.T, s *neorpc.Session, table string) int64 {
	row, err := s.QueryRow(context.Background(), fmt.Sprintf(`SELECT count(*) FROM %s`, s.Table(table).Identifier()))
	require.NoError(t, err)
	var n int64
	require.NoError(t, row.Scan(&n))
	return n
}

func TestAppendPartialFailure(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		c := newClient(t, endpoint)
		s := connect(t, c)
		_, err := s.Exec(ctx, `CREATE TABLE readings (id SHORT, sensor VARCHAR(16))`)
		require.NoError(t, err)

		a, err := s.Appender(ctx, "readings")
		require.NoError(t, err)
		require.Equal(t, "readings", a.TableName())
		require.Equal(t, neorpc.AppenderOpened, a.State())

		batch := make([][]any, 9)
		for i := range batch {
			batch[i] = []any{i, fmt.Sprintf("sensor-%d", i)}
		}
		batch[4][0] = 70000

		err = a.AppendBatch(ctx, batch)
		require.ErrorIs(t, err, neorpc.ErrPartialFailure)
		require.Equal(t, neorpc.KindPartialFailure, neorpc.KindOf(err))

		var pf *neorpc.PartialFailureError
		require.True(t, errors.As(err, &pf))
		require.Equal(t, 8, pf.Accepted)
		require.Len(t, pf.Rejected, 1)
		require.Equal(t, 4, pf.Rejected[0].Index)
		require.ErrorIs(t, pf.Rejected[0].Err, neorpc.ErrUnsupportedType)
		require.Equal(t, neorpc.AppenderStreaming, a.State())

		summary, err := a.Finalize(ctx)
		require.NoError(t, err)
		require.Equal(t, &neorpc.AppendSummary{Accepted: 8, Rejected: 1}, summary)
		require.Equal(t, neorpc.AppenderFinalized, a.State())

		require.EqualValues(t, 8, countRows(t, s, "readings"))
		require.NoError(t, s.Close(ctx))
		require.Empty(t, c.Handles())
	})
}

func TestAppendServerRejection(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))
		_, err := s.Exec(ctx, `CREATE TABLE accounts (id LONG NOT NULL, balance DOUBLE CHECK (balance >= 0))`)
		require.NoError(t, err)

		a, err := s.Appender(ctx, "accounts")
		require.NoError(t, err)

		err = a.AppendBatch(ctx, [][]any{
			{1, 10.0},
			{2, -1.0},
			{nil, 5.0},
			{4, "much"},
			{5, 0},
		})
		var pf *neorpc.PartialFailureError
		require.True(t, errors.As(err, &pf))
		require.Equal(t, 2, pf.Accepted)
		require.Len(t, pf.Rejected, 3)

		require.Equal(t, 1, pf.Rejected[0].Index)
		require.ErrorIs(t, pf.Rejected[0].Err, neorpc.ErrQuery)
		require.Equal(t, 2, pf.Rejected[1].Index)
		require.ErrorIs(t, pf.Rejected[1].Err, neorpc.ErrQuery)
		require.Equal(t, 3, pf.Rejected[2].Index)
		require.ErrorIs(t, pf.Rejected[2].Err, neorpc.ErrUnsupportedType)

		require.NoError(t, a.Append(ctx, 6, 1.25))
		require.ErrorIs(t, a.Append(ctx, 7, -2), neorpc.ErrQuery)
		require.ErrorIs(t, a.Append(ctx, 8), neorpc.ErrUnsupportedType)

		summary, err := a.Finalize(ctx)
		require.NoError(t, err)
		require.Equal(t, &neorpc.AppendSummary{Accepted: 3, Rejected: 5}, summary)

		require.EqualValues(t, 3, countRows(t, s, "accounts"))
		require.NoError(t, s.Close(ctx))
	})
}

func TestAppendBatchRefused(t *testing.T) {
	forEachTransport(t, func(t *testing.T, srv *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))
		_, err := s.Exec(ctx, `CREATE TABLE readings (id SHORT, sensor VARCHAR(16))`)
		require.NoError(t, err)

		a, err := s.Appender(ctx, "readings")
		require.NoError(t, err)

		srv.RejectNextBatch("disk full")
		err = a.AppendBatch(ctx, [][]any{{1, "a"}, {70000, "b"}, {3, "c"}})
		var pf *neorpc.PartialFailureError
		require.True(t, errors.As(err, &pf))
		require.Zero(t, pf.Accepted)
		require.Len(t, pf.Rejected, 3)
		for i, r := range pf.Rejected {
			require.Equal(t, i, r.Index)
		}
		require.ErrorIs(t, pf.Rejected[0].Err, neorpc.ErrQuery)
		require.ErrorContains(t, pf.Rejected[0].Err, "disk full")
		require.ErrorIs(t, pf.Rejected[1].Err, neorpc.ErrUnsupportedType)
		require.ErrorIs(t, pf.Rejected[2].Err, neorpc.ErrQuery)

		// without client side rejections the server error comes back as is
		srv.RejectNextBatch("disk full")
		err = a.AppendBatch(ctx, [][]any{{4, "d"}})
		require.ErrorIs(t, err, neorpc.ErrQuery)
		require.False(t, errors.As(err, &pf))

		require.NoError(t, a.Append(ctx, 5, "e"))
		summary, err := a.Finalize(ctx)
		require.NoError(t, err)
		require.Equal(t, &neorpc.AppendSummary{Accepted: 1, Rejected: 1}, summary)
		require.NoError(t, s.Close(ctx))
	})
}

func TestAppendLogTime(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))
		_, err := s.Exec(ctx, `CREATE TABLE events (_arrival_time DATETIME, msg VARCHAR(64))`)
		require.NoError(t, err)
		_, err = s.Exec(ctx, `CREATE TABLE plain (msg VARCHAR(64))`)
		require.NoError(t, err)

		logs, err := s.Appender(ctx, "events")
		require.NoError(t, err)
		require.Equal(t, neorpc.LogTable, logs.TableType())

		arrived := time.Date(2026, time.March, 1, 12, 0, 0, 5, time.UTC)
		require.NoError(t, logs.AppendLogTime(ctx, arrived, "boot"))
		summary, err := logs.Finalize(ctx)
		require.NoError(t, err)
		require.Equal(t, &neorpc.AppendSummary{Accepted: 1}, summary)

		row, err := s.QueryRow(ctx, `SELECT _arrival_time, msg FROM events`)
		require.NoError(t, err)
		var (
			at  time.Time
			msg string
		)
		require.NoError(t, row.Scan(&at, &msg))
		require.True(t, arrived.Equal(at))
		require.Equal(t, "boot", msg)

		other, err := s.Appender(ctx, "plain")
		require.NoError(t, err)
		require.Empty(t, other.TableType())
		err = other.AppendLogTime(ctx, arrived, "boot")
		require.ErrorIs(t, err, neorpc.ErrUnsupportedType)
		require.ErrorContains(t, err, "not a log table")
		_, err = other.Finalize(ctx)
		require.NoError(t, err)

		require.NoError(t, s.Close(ctx))
	})
}

func TestAppenderFinalized(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))
		_, err := s.Exec(ctx, `CREATE TABLE empty (id LONG)`)
		require.NoError(t, err)

		a, err := s.Appender(ctx, "empty")
		require.NoError(t, err)
		require.ErrorIs(t, s.Close(ctx), neorpc.ErrHandleBusy)

		summary, err := a.Finalize(ctx)
		require.NoError(t, err)
		require.Equal(t, &neorpc.AppendSummary{}, summary)

		_, err = a.Finalize(ctx)
		require.ErrorIs(t, err, neorpc.ErrInvalidHandle)
		require.ErrorIs(t, a.AppendBatch(ctx, [][]any{{1}}), neorpc.ErrInvalidHandle)

		require.NoError(t, s.Close(ctx))
	})
}

func TestAppenderUnknownTable(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		c := newClient(t, endpoint)
		s := connect(t, c)

		_, err := s.Appender(ctx, "missing")
		require.ErrorIs(t, err, neorpc.ErrQuery)
		require.Len(t, c.Handles(), 1)
		require.NoError(t, s.Close(ctx))
	})
}

func TestAppendTimeout(t *testing.T) {
	srv := testkit.New(t)
	c := newClient(t, srv.StartFlight())
	ctx := context.Background()
	s := connect(t, c)
	_, err := s.Exec(ctx, `CREATE TABLE ticks (id LONG)`)
	require.NoError(t, err)

	a, err := s.Appender(ctx, "ticks")
	require.NoError(t, err)
	require.NoError(t, a.Append(ctx, 1))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = a.AppendBatch(cancelled, [][]any{{2}, {3}})
	require.ErrorIs(t, err, neorpc.ErrTimeout)
	require.Equal(t, neorpc.AppenderFailed, a.State())
	require.ErrorIs(t, a.Append(ctx, 4), neorpc.ErrInvalidHandle)

	summary, err := a.Finalize(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, summary.Accepted)
	require.NoError(t, s.Close(ctx))
}
