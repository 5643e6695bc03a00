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
	"net/netip"
	"testing"
	"time"

	"github.com/neorpc/neorpc-go"
	"github.com/neorpc/neorpc-go/internal/testkit"
	"github.com/neorpc/neorpc-go/types"
	"github.com/stretchr/testify/require"
)

var exampleColumns = types.Columns{
	{Name: "name", Type: types.StringDataType, Length: 32},
	{Name: "value", Type: types.DoubleDataType},
	{Name: "time", Type: types.DatetimeDataType},
}

var exampleEpoch = time.Date(2026, time.January, 2, 3, 4, 5, 6, time.UTC)

// seedExample creates the example table with ten rows, inserted out of time order.
func seedExample(t *testing.T, s *neorpc.Session) {
	ctx := context.Background()
	require.NoError(t, s.Table("example").Create(ctx, exampleColumns))

	a, err := s.Appender(ctx, "example")
	require.NoError(t, err)
	var rows [][]any
	for _, i := range []int{3, 7, 0, 9, 1, 5, 8, 2, 6, 4} {
		rows = append(rows, []any{string(rune('a' + i)), float64(i) * 1.5, exampleEpoch.Add(time.Duration(i) * time.Second)})
	}
	require.NoError(t, a.AppendBatch(ctx, rows))
	summary, err := a.Finalize(ctx)
	require.NoError(t, err)
	require.Equal(t, &neorpc.AppendSummary{Accepted: 10}, summary)
}

func TestExampleScenario(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		c := newClient(t, endpoint)
		s := connect(t, c)
		seedExample(t, s)

		rows, err := s.Query(ctx, `SELECT name, value, time FROM example ORDER BY time`)
		require.NoError(t, err)
		require.Equal(t, neorpc.CursorCreated, rows.State())

		cols, err := rows.Columns(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"name", "value", "time"}, cols.Names())
		require.Equal(t, exampleColumns, cols)
		require.Equal(t, neorpc.CursorColumnsKnown, rows.State())

		for i := range 10 {
			row, err := rows.Fetch(ctx)
			require.NoError(t, err)
			require.Len(t, row, len(cols))

			var (
				name  string
				value float64
				ts    time.Time
			)
			require.NoError(t, row.Scan(&name, &value, &ts))
			require.Equal(t, string(rune('a'+i)), name)
			require.Equal(t, float64(i)*1.5, value)
			require.True(t, exampleEpoch.Add(time.Duration(i)*time.Second).Equal(ts))
			require.Equal(t, neorpc.CursorFetching, rows.State())
		}

		_, err = rows.Fetch(ctx)
		require.ErrorIs(t, err, neorpc.ErrEndOfRows)
		_, err = rows.Fetch(ctx)
		require.ErrorIs(t, err, neorpc.ErrEndOfRows)
		require.Equal(t, neorpc.CursorExhausted, rows.State())

		require.NoError(t, rows.Close(ctx))
		require.Equal(t, neorpc.CursorClosed, rows.State())
		_, err = rows.Fetch(ctx)
		require.ErrorIs(t, err, neorpc.ErrInvalidHandle)
		_, err = rows.Columns(ctx)
		require.ErrorIs(t, err, neorpc.ErrInvalidHandle)
		require.ErrorIs(t, rows.Close(ctx), neorpc.ErrInvalidHandle)

		require.NoError(t, s.Close(ctx))
		require.Empty(t, c.Handles())
	})
}

func TestRowsAll(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))
		seedExample(t, s)

		rows, err := s.Query(ctx, `SELECT value FROM example WHERE value > ? ORDER BY time`, 6)
		require.NoError(t, err)

		var values []any
		for row, err := range rows.All(ctx) {
			require.NoError(t, err)
			values = append(values, row.Values()...)
		}
		require.Equal(t, []any{7.5, 9.0, 10.5, 12.0, 13.5}, values)
		require.Equal(t, neorpc.CursorExhausted, rows.State())

		require.NoError(t, rows.Close(ctx))
		require.NoError(t, s.Close(ctx))
	})
}

func TestRowsFetchSmallBatches(t *testing.T) {
	srv := testkit.New(t)
	c := newClient(t, srv.StartFlight(), func(config *neorpc.Config) {
		config.FetchSize = 3
	})
	ctx := context.Background()
	s := connect(t, c)
	seedExample(t, s)

	row, err := s.QueryRow(ctx, `SELECT count(*) FROM example`)
	require.NoError(t, err)
	require.Equal(t, neorpc.Row{types.Int64(10)}, row)

	rows, err := s.Query(ctx, `SELECT name FROM example ORDER BY time`)
	require.NoError(t, err)
	var names []string
	for row, err := range rows.All(ctx) {
		require.NoError(t, err)
		var name string
		require.NoError(t, row.Scan(&name))
		names = append(names, name)
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, names)
	require.NoError(t, rows.Close(ctx))
	require.NoError(t, s.Close(ctx))
}

func TestConcurrentFetch(t *testing.T) {
	forEachTransport(t, func(t *testing.T, srv *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))
		seedExample(t, s)

		rows, err := s.Query(ctx, `SELECT name FROM example ORDER BY time`)
		require.NoError(t, err)
		_, err = rows.Columns(ctx)
		require.NoError(t, err)

		started, release := srv.HoldFetch()
		type result struct {
			row neorpc.Row
			err error
		}
		first := make(chan result, 1)
		go func() {
			row, err := rows.Fetch(ctx)
			first <- result{row, err}
		}()

		<-started
		_, err = rows.Fetch(ctx)
		require.ErrorIs(t, err, neorpc.ErrConcurrentFetch)

		release()
		r := <-first
		require.NoError(t, r.err)
		require.Equal(t, neorpc.Row{types.String("a")}, r.row)

		require.NoError(t, rows.Close(ctx))
		require.NoError(t, s.Close(ctx))
	})
}

func TestFetchWaitsForOtherCalls(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))
		seedExample(t, s)

		rows, err := s.Query(ctx, `SELECT name FROM example ORDER BY time`)
		require.NoError(t, err)

		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-stop:
					return
				default:
				}
				_ = rows.State()
				_, _ = rows.Columns(ctx)
			}
		}()

		n := 0
		for {
			_, err := rows.Fetch(ctx)
			if errors.Is(err, neorpc.ErrEndOfRows) {
				break
			}
			require.NoError(t, err)
			n++
		}
		close(stop)
		<-done
		require.Equal(t, 10, n)

		require.NoError(t, rows.Close(ctx))
		require.NoError(t, s.Close(ctx))
	})
}

func TestFetchTimeout(t *testing.T) {
	forEachTransport(t, func(t *testing.T, srv *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))
		seedExample(t, s)

		rows, err := s.Query(ctx, `SELECT name FROM example`)
		require.NoError(t, err)
		_, err = rows.Columns(ctx)
		require.NoError(t, err)

		_, release := srv.HoldFetch()
		defer release()

		fetchCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err = rows.Fetch(fetchCtx)
		require.ErrorIs(t, err, neorpc.ErrTimeout)
		require.Equal(t, neorpc.CursorFailed, rows.State())

		_, err = rows.Fetch(ctx)
		require.ErrorIs(t, err, neorpc.ErrInvalidHandle)

		require.NoError(t, rows.Close(ctx))
		require.NoError(t, s.Close(ctx))
	})
}

func TestQueryTimeoutDefault(t *testing.T) {
	srv := testkit.New(t)
	c := newClient(t, srv.StartHTTP(), func(config *neorpc.Config) {
		config.QueryTimeout = 100 * time.Millisecond
	})
	ctx := context.Background()
	s := connect(t, c)
	seedExample(t, s)

	rows, err := s.Query(ctx, `SELECT name FROM example`)
	require.NoError(t, err)
	_, err = rows.Columns(ctx)
	require.NoError(t, err)

	_, release := srv.HoldFetch()
	defer release()
	_, err = rows.Fetch(ctx)
	require.ErrorIs(t, err, neorpc.ErrTimeout)

	require.NoError(t, rows.Close(ctx))
	require.NoError(t, s.Close(ctx))
}

func TestValueRoundTrip(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))

		cols := types.Columns{
			{Name: "s", Type: types.StringDataType},
			{Name: "d", Type: types.DoubleDataType},
			{Name: "f", Type: types.FloatDataType},
			{Name: "i16", Type: types.Int16DataType},
			{Name: "i32", Type: types.Int32DataType},
			{Name: "i64", Type: types.Int64DataType},
			{Name: "dt", Type: types.DatetimeDataType},
			{Name: "b", Type: types.BooleanDataType},
			{Name: "bin", Type: types.BinaryDataType},
			{Name: "v4", Type: types.IPv4DataType},
			{Name: "v6", Type: types.IPv6DataType},
		}
		tbl := s.Table("all_types")
		require.NoError(t, tbl.Create(ctx, cols))

		want := [][]types.Value{
			{
				types.String("héllo"),
				types.Double(-3.25),
				types.Float(1.5),
				types.Int16(-32768),
				types.Int32(2147483647),
				types.Int64(-9223372036854775808),
				types.Datetime(1767225600123456789),
				types.Boolean(true),
				types.Binary{0x00, 0xff, 0x10},
				types.IPv4{Addr: netip.MustParseAddr("10.1.2.3")},
				types.IPv6{Addr: netip.MustParseAddr("2001:db8::1")},
			},
			{
				types.Null{}, types.Null{}, types.Null{}, types.Null{}, types.Null{}, types.Null{},
				types.Null{}, types.Null{}, types.Null{}, types.Null{}, types.Null{},
			},
		}

		a, err := tbl.Appender(ctx)
		require.NoError(t, err)
		require.Equal(t, cols, a.Columns())
		batch := make([][]any, len(want))
		for i, row := range want {
			batch[i] = make([]any, len(row))
			for j, v := range row {
				batch[i][j] = v
			}
		}
		require.NoError(t, a.AppendBatch(ctx, batch))
		_, err = a.Finalize(ctx)
		require.NoError(t, err)

		rows, err := s.Query(ctx, `SELECT * FROM all_types ORDER BY s IS NULL`)
		require.NoError(t, err)
		var got [][]types.Value
		for row, err := range rows.All(ctx) {
			require.NoError(t, err)
			require.Len(t, row, len(cols))
			got = append(got, row)
		}
		require.Equal(t, want, got)
		require.NoError(t, rows.Close(ctx))
		require.NoError(t, s.Close(ctx))
	})
}
