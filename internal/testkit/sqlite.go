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

package testkit

import (
	"context"
	"database/sql"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/neorpc/neorpc-go/types"
	"github.com/pkg/errors"
)

// declType maps a declared SQLite column type to a column type. An empty
// declaration, as for expressions, yields "".
func declType(decl string) (types.DataType, int) {
	decl = strings.ToUpper(strings.TrimSpace(decl))
	base, rest, _ := strings.Cut(decl, "(")
	base = strings.TrimSpace(base)
	length, _ := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(rest), ")"))

	switch base {
	case "":
		return "", 0
	case "CHAR", "TEXT", "VARCHAR", "STRING", "CLOB", "NVARCHAR":
		return types.StringDataType, length
	case "DATETIME", "TIMESTAMP", "DATE":
		return types.DatetimeDataType, 0
	case "DOUBLE", "REAL", "DOUBLE PRECISION", "NUMERIC", "DECIMAL":
		return types.DoubleDataType, 0
	case "FLOAT":
		return types.FloatDataType, 0
	case "SHORT", "SMALLINT", "INT16", "TINYINT":
		return types.Int16DataType, 0
	case "INT", "INTEGER", "INT32":
		return types.Int32DataType, 0
	case "LONG", "BIGINT", "INT64":
		return types.Int64DataType, 0
	case "BOOL", "BOOLEAN":
		return types.BooleanDataType, 0
	case "BLOB", "BINARY", "VARBINARY":
		return types.BinaryDataType, 0
	case "IPV4":
		return types.IPv4DataType, 0
	case "IPV6":
		return types.IPv6DataType, 0
	}
	return types.StringDataType, length
}

// inferType types an expression column from its first non-null value.
func inferType(raw [][]any, i int) types.DataType {
	for _, row := range raw {
		switch row[i].(type) {
		case nil:
			continue
		case int64:
			return types.Int64DataType
		case float64:
			return types.DoubleDataType
		case bool:
			return types.BooleanDataType
		case []byte:
			return types.BinaryDataType
		case time.Time:
			return types.DatetimeDataType
		default:
			return types.StringDataType
		}
	}
	return types.StringDataType
}

// materialize reads every row of a query.
func materialize(ctx context.Context, db *sql.DB, query string, args ...any) (types.Columns, [][]types.Value, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, err
	}

	var raw [][]any
	for rows.Next() {
		values := make([]any, len(colTypes))
		ptrs := make([]any, len(colTypes))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		raw = append(raw, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	cols := make(types.Columns, len(colTypes))
	for i, ct := range colTypes {
		typ, length := declType(ct.DatabaseTypeName())
		if typ == "" {
			typ = inferType(raw, i)
		}
		cols[i] = types.Column{Name: ct.Name(), Type: typ, Length: length}
	}

	result := make([][]types.Value, len(raw))
	for r, values := range raw {
		row := make([]types.Value, len(values))
		for i, v := range values {
			if row[i], err = valueOf(v, cols[i].Type); err != nil {
				return nil, nil, errors.Wrapf(err, "row %d column %q", r, cols[i].Name)
			}
		}
		result[r] = row
	}
	return cols, result, nil
}

// tableColumns lists the columns of a table.
func tableColumns(ctx context.Context, db *sql.DB, table string) (types.Columns, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols types.Columns
	for rows.Next() {
		var (
			cid     int
			name    string
			decl    string
			notNull bool
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &decl, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		typ, length := declType(decl)
		if typ == "" {
			typ = types.StringDataType
		}
		cols = append(cols, types.Column{Name: name, Type: typ, Length: length})
	}
	return cols, rows.Err()
}

// valueOf converts a value scanned from SQLite to typ.
func valueOf(v any, typ types.DataType) (types.Value, error) {
	if v == nil {
		return types.Null{}, nil
	}

	switch typ {
	case types.StringDataType:
		switch v := v.(type) {
		case string:
			return types.String(v), nil
		case []byte:
			return types.String(v), nil
		case int64:
			return types.String(strconv.FormatInt(v, 10)), nil
		case float64:
			return types.String(strconv.FormatFloat(v, 'g', -1, 64)), nil
		}
	case types.DoubleDataType, types.FloatDataType:
		var f float64
		switch v := v.(type) {
		case float64:
			f = v
		case int64:
			f = float64(v)
		default:
			return nil, errors.Wrapf(types.ErrTypeMismatch, "%T for %s column", v, typ)
		}
		if typ == types.FloatDataType {
			return types.Float(f), nil
		}
		return types.Double(f), nil
	case types.Int16DataType, types.Int32DataType, types.Int64DataType:
		var n int64
		switch v := v.(type) {
		case int64:
			n = v
		case float64:
			n = int64(v)
		case bool:
			if v {
				n = 1
			}
		default:
			return nil, errors.Wrapf(types.ErrTypeMismatch, "%T for %s column", v, typ)
		}
		return types.Coerce(n, typ)
	case types.DatetimeDataType:
		switch v := v.(type) {
		case int64:
			return types.Datetime(v), nil
		case time.Time:
			return types.DatetimeOf(v)
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, errors.Wrapf(types.ErrMalformed, "datetime %q", v)
			}
			return types.DatetimeOf(t)
		}
	case types.BooleanDataType:
		switch v := v.(type) {
		case bool:
			return types.Boolean(v), nil
		case int64:
			return types.Boolean(v != 0), nil
		}
	case types.BinaryDataType:
		switch v := v.(type) {
		case []byte:
			return types.Binary(v), nil
		case string:
			return types.Binary(v), nil
		}
	case types.IPv4DataType, types.IPv6DataType:
		s, ok := v.(string)
		if !ok {
			break
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, errors.Wrapf(types.ErrMalformed, "address %q", s)
		}
		return types.Coerce(addr, typ)
	}
	return nil, errors.Wrapf(types.ErrTypeMismatch, "%T for %s column", v, typ)
}

// sqlArg converts a value to a SQLite bind argument.
func sqlArg(v types.Value) any {
	switch v := v.(type) {
	case types.Null:
		return nil
	case types.String:
		return string(v)
	case types.Double:
		return float64(v)
	case types.Float:
		return float64(v)
	case types.Int16:
		return int64(v)
	case types.Int32:
		return int64(v)
	case types.Int64:
		return int64(v)
	case types.Datetime:
		return int64(v)
	case types.Boolean:
		return bool(v)
	case types.Binary:
		return []byte(v)
	case types.IPv4:
		return v.Addr.String()
	case types.IPv6:
		return v.Addr.String()
	}
	return nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
