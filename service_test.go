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
	"runtime"
	"strings"
	"testing"

	"github.com/neorpc/neorpc-go"
	"github.com/neorpc/neorpc-go/internal/testkit"
	"github.com/stretchr/testify/require"
)

func TestServerInfo(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		info, err := newClient(t, endpoint).GetServerInfo(context.Background())
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(info.Version.Engine, "sqlite "), info.Version.Engine)
		require.Equal(t, runtime.GOOS, info.Runtime.OS)
		require.NotZero(t, info.Runtime.Pid)
	})
}

func TestServicePorts(t *testing.T) {
	ctx := context.Background()
	srv := testkit.New(t)
	httpEndpoint := srv.StartHTTP()
	srv.StartFlight()

	c := newClient(t, httpEndpoint)
	ports, err := c.GetServicePorts(ctx, "")
	require.NoError(t, err)
	require.Len(t, ports, 2)

	ports, err = c.GetServicePorts(ctx, "grpc")
	require.NoError(t, err)
	require.Len(t, ports, 1)
	require.Equal(t, "grpc", ports[0].Service)

	ports, err = c.GetServicePorts(ctx, "mysql")
	require.NoError(t, err)
	require.Empty(t, ports)
}

func TestUserAuth(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		c := newClient(t, endpoint)
		require.NoError(t, c.UserAuth(ctx, "sys", "manager"))
		require.ErrorIs(t, c.UserAuth(ctx, "sys", "guess"), neorpc.ErrAuth)
	})
}

func TestSessionsAndHandles(t *testing.T) {
	forEachTransport(t, func(t *testing.T, _ *testkit.Server, endpoint string) {
		ctx := context.Background()
		c := newClient(t, endpoint)
		s := connect(t, c)
		_, err := s.Exec(ctx, `CREATE TABLE t (v LONG)`)
		require.NoError(t, err)

		rows, err := s.Query(ctx, `SELECT v FROM t`)
		require.NoError(t, err)

		handles := c.Handles()
		require.Len(t, handles, 2)
		require.Equal(t, neorpc.SessionHandle, handles[0].Kind)
		require.Equal(t, neorpc.RowsHandle, handles[1].Kind)
		require.Equal(t, handles[0].ID, handles[1].Parent)
		require.Equal(t, rows.Handle(), handles[1].ID)

		info, err := c.Sessions(ctx, true, true)
		require.NoError(t, err)
		require.NotNil(t, info.Statz)
		require.EqualValues(t, 1, info.Statz.ConnsInUse)
		require.EqualValues(t, 1, info.Statz.StmtsInUse)
		require.Len(t, info.Sessions, 1)
		require.Equal(t, s.Handle(), info.Sessions[0].ID)
		require.Equal(t, "sys", info.Sessions[0].User)
		require.Equal(t, `SELECT v FROM t`, info.Sessions[0].LatestSQL)

		require.NoError(t, rows.Close(ctx))
		require.NoError(t, s.Close(ctx))
		require.Empty(t, c.Handles())

		info, err = c.Sessions(ctx, true, false)
		require.NoError(t, err)
		require.Empty(t, info.Sessions)
		require.Zero(t, info.Statz.ConnsInUse)
		require.Zero(t, info.Statz.StmtsInUse)
	})
}
