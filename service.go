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

	"github.com/neorpc/neorpc-go/internal/wire"
)

type (
	// Version describes the server build.
	Version = wire.Version
	// Runtime describes the server process.
	Runtime = wire.Runtime
	// Port is a listening address of a server service.
	Port = wire.Port
	// Statz holds the handle counters of the server.
	Statz = wire.Statz
	// SessionInfo describes a live server session.
	SessionInfo = wire.Session
)

// ServerInfo is returned by Client.GetServerInfo.
type ServerInfo struct {
	Version Version
	Runtime Runtime
}

// SessionsInfo is returned by Client.Sessions.
type SessionsInfo struct {
	Statz    *Statz
	Sessions []SessionInfo
}

// UserAuth checks credentials without opening a session.
func (c *Client) UserAuth(ctx context.Context, user, password string) error {
	var rsp wire.UserAuthResponse
	return c.call(ctx, c.config.QueryTimeout, wire.MethodUserAuth, "", &wire.UserAuthRequest{User: user, Password: password}, &rsp)
}

// GetServerInfo returns the version and the runtime statistics of the server.
func (c *Client) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	var rsp wire.ServerInfoResponse
	if err := c.call(ctx, c.config.QueryTimeout, wire.MethodGetServerInfo, "", &wire.ServerInfoRequest{}, &rsp); err != nil {
		return nil, err
	}
	return &ServerInfo{Version: rsp.Version, Runtime: rsp.Runtime}, nil
}

// GetServicePorts lists the listening addresses of the server. An empty
// service lists every service.
func (c *Client) GetServicePorts(ctx context.Context, service string) ([]Port, error) {
	var rsp wire.ServicePortsResponse
	if err := c.call(ctx, c.config.QueryTimeout, wire.MethodGetServicePorts, "", &wire.ServicePortsRequest{Service: service}, &rsp); err != nil {
		return nil, err
	}
	return rsp.Ports, nil
}

// Sessions returns the handle counters of the server when statz is set and
// the live sessions when sessions is set.
func (c *Client) Sessions(ctx context.Context, statz, sessions bool) (*SessionsInfo, error) {
	var rsp wire.SessionsResponse
	if err := c.call(ctx, c.config.QueryTimeout, wire.MethodSessions, "", &wire.SessionsRequest{Statz: statz, Sessions: sessions}, &rsp); err != nil {
		return nil, err
	}
	return &SessionsInfo{Statz: rsp.Statz, Sessions: rsp.Sessions}, nil
}
