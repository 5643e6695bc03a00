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
	"strings"
	"testing"

	"github.com/neorpc/neorpc-go"
	"github.com/neorpc/neorpc-go/internal/testkit"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		c := newClient(t, endpoint)

		s := connect(t, c)
		require.NotEmpty(t, s.Handle())

		latency, err := s.Ping(ctx)
		require.NoError(t, err)
		require.Positive(t, latency)

		require.Len(t, c.Handles(), 1)
		require.Equal(t, neorpc.SessionHandle, c.Handles()[0].Kind)

		require.NoError(t, s.Close(ctx))
		require.Empty(t, c.Handles())

		_, err = s.Ping(ctx)
		require.ErrorIs(t, err, neorpc.ErrInvalidHandle)
		_, err = s.Exec(ctx, `SELECT 1`)
		require.ErrorIs(t, err, neorpc.ErrInvalidHandle)
		_, err = s.Query(ctx, `SELECT 1`)
		require.ErrorIs(t, err, neorpc.ErrInvalidHandle)
		// a closed session wins over a parameter that cannot be encoded
		_, err = s.Exec(ctx, `SELECT ?`, struct{}{})
		require.ErrorIs(t, err, neorpc.ErrInvalidHandle)
		_, err = s.Query(ctx, `SELECT ?`, struct{}{})
		require.ErrorIs(t, err, neorpc.ErrInvalidHandle)
		_, err = s.Appender(ctx, "example")
		require.ErrorIs(t, err, neorpc.ErrInvalidHandle)
		_, err = s.Explain(ctx, `SELECT 1`, false)
		require.ErrorIs(t, err, neorpc.ErrInvalidHandle)
		require.ErrorIs(t, s.Close(ctx), neorpc.ErrInvalidHandle)
	})
}

func TestConnAuth(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		c := newClient(t, endpoint)

		_, err := c.Conn(ctx, "sys", "wrong")
		require.ErrorIs(t, err, neorpc.ErrAuth)
		require.Equal(t, neorpc.KindAuth, neorpc.KindOf(err))

		require.ErrorIs(t, c.UserAuth(ctx, "nobody", "manager"), neorpc.ErrAuth)
		require.NoError(t, c.UserAuth(ctx, "sys", "manager"))
	})
}

func TestConnTransportError(t *testing.T) {
	for _, endpoint := range []string{"http://127.0.0.1:1", "grpc://127.0.0.1:1"} {
		t.Run(endpoint, func(t *testing.T) {
			c := newClient(t, endpoint)
			_, err := c.Connect(context.Background())
			require.ErrorIs(t, err, neorpc.ErrTransport)
		})
	}
}

func TestSessionCloseBusy(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))

		rows, err := s.Query(ctx, `SELECT 1`)
		require.NoError(t, err)
		require.ErrorIs(t, s.Close(ctx), neorpc.ErrHandleBusy)

		require.NoError(t, rows.Close(ctx))
		require.NoError(t, s.Close(ctx))
	})
}

func TestExecAndQueryRow(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))
		defer func() { require.NoError(t, s.Close(ctx)) }()

		_, err := s.Exec(ctx, `CREATE TABLE kv (k VARCHAR(16) NOT NULL, v LONG)`)
		require.NoError(t, err)

		result, err := s.Exec(ctx, `INSERT INTO kv (k, v) VALUES (?, ?), (?, ?)`, "a", 1, "b", int64(2))
		require.NoError(t, err)
		require.EqualValues(t, 2, result.RowsAffected)

		row, err := s.QueryRow(ctx, `SELECT v FROM kv WHERE k = ?`, "b")
		require.NoError(t, err)
		var v int64
		require.NoError(t, row.Scan(&v))
		require.EqualValues(t, 2, v)

		_, err = s.QueryRow(ctx, `SELECT v FROM kv WHERE k = ?`, "zzz")
		require.ErrorIs(t, err, neorpc.ErrNoRows)

		_, err = s.Exec(ctx, `SELECT ?`, struct{}{})
		require.ErrorIs(t, err, neorpc.ErrUnsupportedType)
	})
}

func TestQueryError(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))
		defer func() { require.NoError(t, s.Close(ctx)) }()

		_, err := s.Query(ctx, `SELEKT 1`)
		require.ErrorIs(t, err, neorpc.ErrQuery)

		var e *neorpc.Error
		require.True(t, errors.As(err, &e))
		require.Equal(t, "Query", e.Op)
		require.Equal(t, s.Handle(), e.Handle)
		require.Contains(t, e.Message, "syntax error")
		require.True(t, strings.HasPrefix(err.Error(), "neorpc: Query ["+s.Handle()+"]: query: "))
	})
}

func TestExplain(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		s := connect(t, newClient(t, endpoint))
		defer func() { require.NoError(t, s.Close(ctx)) }()

		_, err := s.Exec(ctx, `CREATE TABLE example (name VARCHAR(32), value DOUBLE, time DATETIME)`)
		require.NoError(t, err)

		plan, err := s.Explain(ctx, `SELECT * FROM example ORDER BY time`, false)
		require.NoError(t, err)
		require.Contains(t, plan, "SCAN")

		full, err := s.Explain(ctx, `SELECT * FROM example ORDER BY time`, true)
		require.NoError(t, err)
		require.Greater(t, len(full), len(plan))

		_, err = s.Explain(ctx, `SELECT * FROM missing`, false)
		require.ErrorIs(t, err, neorpc.ErrQuery)
	})
}
