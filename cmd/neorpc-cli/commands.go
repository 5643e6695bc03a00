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

package main

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/neorpc/neorpc-go"
	"github.com/neorpc/neorpc-go/types"
	"github.com/pkg/errors"
)

type PingCmd struct {
	Count int `name:"count" short:"n" default:"1" help:"Number of pings."`
}

func (c *PingCmd) Run(e *env) (err error) {
	s, err := e.connect()
	if err != nil {
		return err
	}
	defer closeSession(e, s, &err)

	for i := range c.Count {
		latency, err := s.Ping(e.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "ping %d: session %s, %s\n", i+1, s.Handle(), latency)
	}
	return nil
}

type ExecCmd struct {
	SQL    string   `arg:"" name:"sql" help:"Statement to run."`
	Params []string `arg:"" optional:"" name:"params" help:"Statement parameters, passed as strings."`
}

func (c *ExecCmd) Run(e *env) (err error) {
	s, err := e.connect()
	if err != nil {
		return err
	}
	defer closeSession(e, s, &err)

	result, err := s.Exec(e.ctx, c.SQL, stringParams(c.Params)...)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%d rows affected", result.RowsAffected)
	if result.Message != "" {
		fmt.Fprintf(e.out, ": %s", result.Message)
	}
	fmt.Fprintln(e.out)
	return nil
}

type QueryCmd struct {
	SQL    string   `arg:"" name:"sql" help:"Query to run."`
	Params []string `arg:"" optional:"" name:"params" help:"Query parameters, passed as strings."`

	Format string `name:"format" short:"f" enum:"box,csv,markdown,tsv" default:"box" help:"Output format: ${enum}."`
	Limit  int    `name:"limit" help:"Stop after this many rows. Zero prints every row."`
}

func (c *QueryCmd) Run(e *env) (err error) {
	s, err := e.connect()
	if err != nil {
		return err
	}
	defer closeSession(e, s, &err)

	rows, err := s.Query(e.ctx, c.SQL, stringParams(c.Params)...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rows.Close(e.ctx); err == nil {
			err = cerr
		}
	}()

	cols, err := rows.Columns(e.ctx)
	if err != nil {
		return err
	}
	t := newTable(e.out)
	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col.Name
	}
	t.AppendHeader(header)

	n := 0
	for row, err := range rows.All(e.ctx) {
		if err != nil {
			return err
		}
		t.AppendRow(displayRow(row))
		if n++; c.Limit > 0 && n >= c.Limit {
			break
		}
	}

	switch c.Format {
	case "csv":
		t.RenderCSV()
	case "markdown":
		t.RenderMarkdown()
	case "tsv":
		t.RenderTSV()
	default:
		t.SetCaption("%d rows", n)
		t.Render()
	}
	return nil
}

type ExplainCmd struct {
	SQL  string `arg:"" name:"sql" help:"Statement to explain."`
	Full bool   `name:"full" help:"Print the full plan."`
}

func (c *ExplainCmd) Run(e *env) (err error) {
	s, err := e.connect()
	if err != nil {
		return err
	}
	defer closeSession(e, s, &err)

	plan, err := s.Explain(e.ctx, c.SQL, c.Full)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, plan)
	return nil
}

type AppendCmd struct {
	Table  string `arg:"" name:"table" help:"Target table."`
	File   string `arg:"" optional:"" name:"file" default:"-" help:"CSV file whose first line names the columns. '-' reads stdin."`
	Header bool   `name:"header" negatable:"" default:"true" help:"Skip the first line."`
	Batch  int    `name:"batch" default:"1024" help:"Rows per append batch."`
}

func (c *AppendCmd) Run(e *env) (err error) {
	var in io.Reader = os.Stdin
	if c.File != "-" {
		f, err := os.Open(c.File)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	s, err := e.connect()
	if err != nil {
		return err
	}
	defer closeSession(e, s, &err)

	a, err := s.Appender(e.ctx, c.Table)
	if err != nil {
		return err
	}
	cols := a.Columns()

	r := csv.NewReader(in)
	r.FieldsPerRecord = len(cols)
	r.ReuseRecord = true
	if c.Header {
		if _, err := r.Read(); err != nil && !errors.Is(err, io.EOF) {
			return abandon(e, a, errors.Wrap(err, "read header"))
		}
	}

	var batch [][]any
	line := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		first := line - len(batch) + 1
		err := a.AppendBatch(e.ctx, batch)
		batch = batch[:0]
		var pf *neorpc.PartialFailureError
		if errors.As(err, &pf) {
			for _, r := range pf.Rejected {
				fmt.Fprintf(e.out, "record %d rejected: %v\n", first+r.Index, r.Err)
			}
			return nil
		}
		return err
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return abandon(e, a, err)
		}
		line++
		values, err := parseRecord(record, cols)
		if err != nil {
			return abandon(e, a, errors.Wrapf(err, "record %d", line))
		}
		if batch = append(batch, values); len(batch) >= c.Batch {
			if err := flush(); err != nil {
				return abandon(e, a, err)
			}
		}
	}
	if err := flush(); err != nil {
		return abandon(e, a, err)
	}

	summary, err := a.Finalize(e.ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%d rows appended, %d rejected\n", summary.Accepted, summary.Rejected)
	return nil
}

// abandon finalizes a after err so that the session can be closed.
func abandon(e *env, a *neorpc.Appender, err error) error {
	if _, ferr := a.Finalize(e.ctx); ferr != nil {
		return errors.Wrapf(err, "finalize: %v", ferr)
	}
	return err
}

type InfoCmd struct{}

func (c *InfoCmd) Run(e *env) error {
	info, err := e.client.GetServerInfo(e.ctx)
	if err != nil {
		return err
	}
	t := newTable(e.out)
	t.SetTitle("server")
	t.AppendRows([]table.Row{
		{"version", fmt.Sprintf("%d.%d.%d", info.Version.Major, info.Version.Minor, info.Version.Patch)},
		{"engine", info.Version.Engine},
		{"compiler", info.Version.BuildCompiler},
		{"git", info.Version.GitSHA},
		{"os/arch", info.Runtime.OS + "/" + info.Runtime.Arch},
		{"pid", info.Runtime.Pid},
		{"uptime", (time.Duration(info.Runtime.UptimeInSecond) * time.Second).String()},
		{"goroutines", info.Runtime.Goroutines},
		{"heap", info.Runtime.MemHeapAlloc},
	})
	t.Render()
	return nil
}

type PortsCmd struct {
	Service string `arg:"" optional:"" name:"service" help:"Only list this service."`
}

func (c *PortsCmd) Run(e *env) error {
	ports, err := e.client.GetServicePorts(e.ctx, c.Service)
	if err != nil {
		return err
	}
	t := newTable(e.out)
	t.AppendHeader(table.Row{"service", "address"})
	for _, p := range ports {
		t.AppendRow(table.Row{p.Service, p.Address})
	}
	t.Render()
	return nil
}

type SessionsCmd struct {
	Statz bool `name:"statz" help:"Print the handle counters instead of the sessions."`
}

func (c *SessionsCmd) Run(e *env) error {
	info, err := e.client.Sessions(e.ctx, c.Statz, !c.Statz)
	if err != nil {
		return err
	}
	t := newTable(e.out)
	if c.Statz && info.Statz != nil {
		st := info.Statz
		t.AppendHeader(table.Row{"handle", "opened", "in use"})
		t.AppendRows([]table.Row{
			{"conns", st.Conns, st.ConnsInUse},
			{"stmts", st.Stmts, st.StmtsInUse},
			{"appenders", st.Appenders, st.AppendersInUse},
		})
		t.Render()
		return nil
	}
	t.AppendHeader(table.Row{"id", "user", "created", "latest sql"})
	for _, s := range info.Sessions {
		t.AppendRow(table.Row{s.ID, s.User, time.Unix(0, s.CreTime).UTC().Format(time.RFC3339), s.LatestSQL})
	}
	t.Render()
	return nil
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	return t
}

func closeSession(e *env, s *neorpc.Session, err *error) {
	if cerr := s.Close(e.ctx); *err == nil {
		*err = cerr
	}
}

func stringParams(params []string) []any {
	values := make([]any, len(params))
	for i, p := range params {
		values[i] = p
	}
	return values
}

func displayRow(row neorpc.Row) table.Row {
	out := make(table.Row, len(row))
	for i, v := range row.Values() {
		switch v := v.(type) {
		case nil:
			out[i] = "NULL"
		case time.Time:
			out[i] = v.UTC().Format(time.RFC3339Nano)
		case []byte:
			out[i] = hex.EncodeToString(v)
		default:
			out[i] = v
		}
	}
	return out
}

// parseRecord converts the fields of a CSV record to values of cols. Empty
// fields are nulls.
func parseRecord(record []string, cols types.Columns) ([]any, error) {
	values := make([]any, len(record))
	for i, field := range record {
		if field == "" {
			continue
		}
		v, err := parseField(field, cols[i].Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", cols[i].Name)
		}
		values[i] = v
	}
	return values, nil
}

func parseField(s string, typ types.DataType) (any, error) {
	switch typ {
	case types.DoubleDataType:
		return strconv.ParseFloat(s, 64)
	case types.FloatDataType:
		f, err := strconv.ParseFloat(s, 32)
		return float32(f), err
	case types.Int16DataType, types.Int32DataType, types.Int64DataType:
		return strconv.ParseInt(s, 10, 64)
	case types.BooleanDataType:
		return strconv.ParseBool(s)
	case types.DatetimeDataType:
		if ns, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(0, ns).UTC(), nil
		}
		return time.Parse(time.RFC3339Nano, s)
	case types.BinaryDataType:
		return hex.DecodeString(s)
	case types.IPv4DataType, types.IPv6DataType:
		return netip.ParseAddr(s)
	}
	return s, nil
}
