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
	"fmt"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	defaultFetchSize = 1024
)

// Config defines the configuration for the client.
type Config struct {
	// Endpoint is the URL of the NeoRPC server.
	//
	// http:// and https:// endpoints use JSON over HTTP; grpc:// endpoints
	// use Arrow Flight, e.g. "grpc://127.0.0.1:5655".
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// User and Password are the default credentials of Client.Connect.
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// QueryTimeout bounds calls that have no deadline of their own, except appends.
	// Zero means no default deadline.
	QueryTimeout time.Duration `json:"query_timeout,omitempty" yaml:"query_timeout,omitempty"`
	// AppendTimeout bounds AppendBatch and Finalize calls that have no deadline of their own.
	AppendTimeout time.Duration `json:"append_timeout,omitempty" yaml:"append_timeout,omitempty"`
	// FetchSize is the number of rows per record batch of a streamed cursor.
	FetchSize int `json:"fetch_size,omitempty" yaml:"fetch_size,omitempty"`

	// HTTPClient overrides the HTTP client of http:// endpoints.
	HTTPClient HTTPClient `json:"-" yaml:"-"`
	// Logger receives handle lifecycle events. Nil disables logging.
	Logger *zap.Logger `json:"-" yaml:"-"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &config, nil
}

func (c *Config) scheme() (string, *url.URL, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	switch u.Scheme {
	case "http", "https", "grpc":
		return u.Scheme, u, nil
	}
	return "", nil, fmt.Errorf("invalid endpoint %q: unsupported scheme %q", c.Endpoint, u.Scheme)
}

func (c *Config) fetchSize() int {
	if c.FetchSize <= 0 {
		return defaultFetchSize
	}
	return c.FetchSize
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
