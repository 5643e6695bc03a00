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

// Package testkit runs an in-process NeoRPC server backed by an in-memory
// SQLite database. It serves the JSON over HTTP transport and the Arrow
// Flight transport from the same state.
package testkit

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/neorpc/neorpc-go/internal/wire"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	_ "modernc.org/sqlite"
)

// Option configures a Server.
type Option func(*Server)

// WithUser adds an account to the server.
func WithUser(user, password string) Option {
	return func(s *Server) {
		s.users[user] = password
	}
}

// WithLogger replaces the test logger of the server.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server is a NeoRPC server for tests. Build it with New; the server and
// its listeners are shut down when the test ends.
type Server struct {
	tb      testing.TB
	db      *sql.DB
	logger  *zap.Logger
	users   map[string]string
	started time.Time

	mu        sync.Mutex
	conns     map[wire.Handle]*conn
	cursors   map[wire.Handle]*cursor
	appenders map[wire.Handle]*appender
	statz     wire.Statz
	ports     []wire.Port

	gate       fetchGate
	rejectNext string
	shutdown   []func()
}

// New starts a server with the default account sys/manager.
func New(tb testing.TB, opts ...Option) *Server {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(tb, err)
	// Every connection to :memory: is a database of its own.
	db.SetMaxOpenConns(1)

	s := &Server{
		tb:        tb,
		db:        db,
		logger:    zaptest.NewLogger(tb),
		users:     map[string]string{"sys": "manager"},
		started:   time.Now(),
		conns:     make(map[wire.Handle]*conn),
		cursors:   make(map[wire.Handle]*cursor),
		appenders: make(map[wire.Handle]*appender),
	}
	for _, opt := range opts {
		opt(s)
	}

	tb.Cleanup(s.close)
	return s
}

func (s *Server) close() {
	s.gate.releaseAll()
	for i := len(s.shutdown) - 1; i >= 0; i-- {
		s.shutdown[i]()
	}
	require.NoError(s.tb, s.db.Close())
}

// Exec runs a statement directly on the database, e.g. to seed a table.
func (s *Server) Exec(query string, args ...any) {
	_, err := s.db.ExecContext(context.Background(), query, args...)
	require.NoError(s.tb, err)
}

// HoldFetch makes the next row fetch block until release is called or the
// fetch is cancelled by its caller. started is closed once the fetch is
// blocked.
func (s *Server) HoldFetch() (started <-chan struct{}, release func()) {
	return s.gate.hold()
}

// RejectNextBatch makes the server refuse the next append batch as a whole
// with a query error carrying reason.
func (s *Server) RejectNextBatch(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext = reason
}

func (s *Server) addPort(service, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports = append(s.ports, wire.Port{Service: service, Address: address})
}

// RandomName returns a random identifier usable as a table name.
func RandomName(tb testing.TB) string {
	name := strings.ToLower(gofakeit.Adjective() + "_" + gofakeit.Animal() + "_" + gofakeit.DigitN(4))
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, name)
}

// fetchGate parks fetches while a hold is armed.
type fetchGate struct {
	mu    sync.Mutex
	armed *hold
	holds []*hold
}

type hold struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (h *hold) open() {
	h.once.Do(func() { close(h.release) })
}

func (g *fetchGate) hold() (<-chan struct{}, func()) {
	h := &hold{started: make(chan struct{}), release: make(chan struct{})}
	g.mu.Lock()
	g.armed = h
	g.holds = append(g.holds, h)
	g.mu.Unlock()
	return h.started, h.open
}

// wait blocks the calling fetch if a hold is armed.
func (g *fetchGate) wait(ctx context.Context) error {
	g.mu.Lock()
	h := g.armed
	g.armed = nil
	g.mu.Unlock()
	if h == nil {
		return nil
	}

	close(h.started)
	select {
	case <-h.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fetchGate) releaseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = nil
	for _, h := range g.holds {
		h.open()
	}
}
