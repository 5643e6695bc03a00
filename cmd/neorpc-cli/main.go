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

// Command neorpc-cli runs statements and appends against a NeoRPC server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/neorpc/neorpc-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type CLI struct {
	Config   string        `name:"config" short:"c" type:"existingfile" help:"YAML configuration file."`
	Endpoint string        `name:"endpoint" short:"e" env:"NEORPC_ENDPOINT" help:"Server endpoint, e.g. grpc://127.0.0.1:5655."`
	User     string        `name:"user" short:"u" env:"NEORPC_USER" help:"User name."`
	Password string        `name:"password" short:"p" env:"NEORPC_PASSWORD" help:"Password."`
	Timeout  time.Duration `name:"timeout" help:"Default deadline of every call."`
	Verbose  bool          `name:"verbose" short:"v" help:"Log handle lifecycle events to stderr."`

	Ping     PingCmd     `cmd:"" help:"Open a session and measure the round trip."`
	Exec     ExecCmd     `cmd:"" help:"Run a statement that returns no rows."`
	Query    QueryCmd    `cmd:"" help:"Run a query and print its rows."`
	Explain  ExplainCmd  `cmd:"" help:"Print the plan of a statement."`
	Append   AppendCmd   `cmd:"" help:"Append the rows of a CSV file to a table."`
	Info     InfoCmd     `cmd:"" help:"Print the server version and runtime."`
	Ports    PortsCmd    `cmd:"" help:"List the listening addresses of the server."`
	Sessions SessionsCmd `cmd:"" help:"List the live sessions of the server."`
}

// env is what every command runs with.
type env struct {
	ctx    context.Context
	out    io.Writer
	client *neorpc.Client
}

func (e *env) connect() (*neorpc.Session, error) {
	return e.client.Connect(e.ctx)
}

func (cli *CLI) config() (*neorpc.Config, error) {
	config := &neorpc.Config{}
	if cli.Config != "" {
		var err error
		if config, err = neorpc.LoadConfig(cli.Config); err != nil {
			return nil, err
		}
	}
	if cli.Endpoint != "" {
		config.Endpoint = cli.Endpoint
	}
	if cli.User != "" {
		config.User = cli.User
	}
	if cli.Password != "" {
		config.Password = cli.Password
	}
	if cli.Timeout > 0 {
		config.QueryTimeout = cli.Timeout
		config.AppendTimeout = cli.Timeout
	}
	if config.Endpoint == "" {
		return nil, errors.New("no endpoint: pass --endpoint, set NEORPC_ENDPOINT or use --config")
	}
	if config.User == "" {
		config.User, config.Password = "sys", "manager"
	}
	return config, nil
}

func newLogger(verbose bool, stderr io.Writer) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	config := zap.NewDevelopmentEncoderConfig()
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(config), zapcore.AddSync(stderr), zap.DebugLevel))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("neorpc-cli"),
		kong.Description("A command line client of NeoRPC servers."),
		kong.Writers(stdout, stderr),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true, FlagsLast: true}),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	config, err := cli.config()
	if err != nil {
		return err
	}
	logger := newLogger(cli.Verbose, stderr)
	defer func() { _ = logger.Sync() }()
	config.Logger = logger

	client, err := neorpc.NewClient(config)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("close client", zap.Error(err))
		}
	}()

	return kctx.Run(&env{ctx: ctx, out: stdout, client: client})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "neorpc-cli:", err)
		stop()
		os.Exit(1)
	}
}
