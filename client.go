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
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/neorpc/neorpc-go/internal/wire"
	"go.uber.org/zap"
)

// HTTPClient is the interface for HTTP client.
type HTTPClient interface {
	// Post sends a POST request to the NeoRPC server.
	Post(context.Context, *url.URL, []byte) (*http.Response, error)
	// Close releases idle connections.
	Close()
}

type httpClient struct {
	client *http.Client
}

// NewHTTPClient creates a new internal HTTP client.
func NewHTTPClient() HTTPClient {
	return &httpClient{
		client: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
	}
}

// Ensure httpClient implements HTTPClient.
var _ HTTPClient = (*httpClient)(nil)

func (c *httpClient) Post(ctx context.Context, u *url.URL, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	return resp, err
}

func (c *httpClient) Close() {
	c.client.CloseIdleConnections()
}

// Client is the entry point to a NeoRPC server. It is safe for concurrent use.
type Client struct {
	config  *Config
	rpc     rpcAPI
	handles *handleTable
	logger  *zap.Logger
	closed  atomic.Bool
}

// NewClient creates a client for config.Endpoint. No connection is made
// until the first call.
func NewClient(config *Config) (*Client, error) {
	scheme, u, err := config.scheme()
	if err != nil {
		return nil, err
	}

	var rpc rpcAPI
	switch scheme {
	case "grpc":
		rpc, err = newFlightRPC(u.Host, config.fetchSize())
		if err != nil {
			return nil, &Error{Kind: KindTransport, Op: "Dial", Err: err}
		}
	default:
		hc := config.HTTPClient
		if hc == nil {
			hc = NewHTTPClient()
		}
		rpc = newHTTPRPC(strings.TrimSuffix(config.Endpoint, "/"), hc)
	}

	logger := config.logger().With(zap.String("endpoint", config.Endpoint))
	logger.Debug("client created", zap.String("transport", scheme))
	return &Client{
		config:  config,
		rpc:     rpc,
		handles: newHandleTable(),
		logger:  logger,
	}, nil
}

// Close releases the transport. Handles still open are abandoned and
// further calls fail with ErrTransport.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if open := c.handles.list(); len(open) > 0 {
		c.logger.Warn("client closed with open handles", zap.Int("handles", len(open)))
	}
	return c.rpc.close()
}

// Handles lists the handles this client currently holds open.
func (c *Client) Handles() []HandleInfo {
	return c.handles.list()
}

// call runs a unary procedure and turns both transport failures and failed
// statuses into *Error.
func (c *Client) call(ctx context.Context, timeout time.Duration, method wire.Method, h wire.Handle, req any, rsp wire.Response) error {
	if c.closed.Load() {
		return newError(KindTransport, string(method), h, "client is closed")
	}
	ctx, cancel := withDefaultTimeout(ctx, timeout)
	defer cancel()

	if err := c.rpc.invoke(ctx, method, req, rsp); err != nil {
		return wrapError(string(method), h, err)
	}
	return statusError(string(method), h, rsp.GetStatus())
}

func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
