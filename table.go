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
	"fmt"
	"strings"

	"github.com/neorpc/neorpc-go/types"
)

// Table is a helper around one table of a session.
type Table struct {
	s *Session

	// Name is the name of the table.
	Name string
}

// Table returns a helper for the named table.
func (s *Session) Table(name string) *Table {
	return &Table{s: s, Name: name}
}

// Identifier returns the quoted name of the table.
func (t *Table) Identifier() string {
	return quoteIdent(t.Name, '"')
}

// Create creates the table with the given columns.
func (t *Table) Create(ctx context.Context, cols types.Columns) error {
	defs := make([]string, len(cols))
	for i, col := range cols {
		typ, err := SQLType(col)
		if err != nil {
			return wrapError("Create", t.s.h.id, err)
		}
		defs[i] = quoteIdent(col.Name, '"') + " " + typ
	}
	_, err := t.s.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`, t.Identifier(), strings.Join(defs, ", ")))
	return err
}

// Drop drops the table.
func (t *Table) Drop(ctx context.Context) error {
	_, err := t.s.Exec(ctx, fmt.Sprintf(`DROP TABLE %s`, t.Identifier()))
	return err
}

// Columns returns the column descriptors of the table.
func (t *Table) Columns(ctx context.Context) (types.Columns, error) {
	rows, err := t.s.Query(ctx, fmt.Sprintf(`SELECT * FROM %s WHERE 1 = 0`, t.Identifier()))
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns(ctx)
	if cerr := rows.Close(ctx); err == nil {
		err = cerr
	}
	return cols, err
}

// Appender opens an appender on the table.
func (t *Table) Appender(ctx context.Context) (*Appender, error) {
	return t.s.Appender(ctx, t.Name)
}

// SQLType returns the column type used by Table.Create for col.
func SQLType(col types.Column) (string, error) {
	switch col.Type {
	case types.StringDataType:
		if col.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", col.Length), nil
		}
		return "VARCHAR", nil
	case types.DoubleDataType:
		return "DOUBLE", nil
	case types.FloatDataType:
		return "FLOAT", nil
	case types.Int16DataType:
		return "SHORT", nil
	case types.Int32DataType:
		return "INTEGER", nil
	case types.Int64DataType:
		return "LONG", nil
	case types.DatetimeDataType:
		return "DATETIME", nil
	case types.BooleanDataType:
		return "BOOLEAN", nil
	case types.BinaryDataType:
		return "BINARY", nil
	case types.IPv4DataType:
		return "IPV4", nil
	case types.IPv6DataType:
		return "IPV6", nil
	}
	return "", fmt.Errorf("column %q: %w", col.Name, types.ErrUnsupportedType)
}

func quoteIdent(s string, r rune) string {
	var b bytes.Buffer
	b.WriteRune(r)
	for _, c := range s {
		if c == r {
			b.WriteRune(c)
		}
		b.WriteRune(c)
	}
	b.WriteRune(r)
	return b.String()
}
