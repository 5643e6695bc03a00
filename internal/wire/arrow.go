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

package wire

import (
	"bytes"
	"encoding/base64"
	stderrors "errors"
	"net/netip"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/neorpc/neorpc-go/types"
	"github.com/pkg/errors"
)

const (
	typeMetadataKey   = "neorpc.type"
	lengthMetadataKey = "neorpc.length"
)

func arrowType(typ types.DataType) (arrow.DataType, error) {
	switch typ {
	case types.StringDataType, types.IPv4DataType, types.IPv6DataType:
		return arrow.BinaryTypes.String, nil
	case types.DoubleDataType:
		return arrow.PrimitiveTypes.Float64, nil
	case types.FloatDataType:
		return arrow.PrimitiveTypes.Float32, nil
	case types.Int16DataType:
		return arrow.PrimitiveTypes.Int16, nil
	case types.Int32DataType:
		return arrow.PrimitiveTypes.Int32, nil
	case types.Int64DataType:
		return arrow.PrimitiveTypes.Int64, nil
	case types.DatetimeDataType:
		return arrow.FixedWidthTypes.Timestamp_ns, nil
	case types.BooleanDataType:
		return arrow.FixedWidthTypes.Boolean, nil
	case types.BinaryDataType:
		return arrow.BinaryTypes.Binary, nil
	}
	return nil, errors.Wrapf(types.ErrUnsupportedType, "column type %q", typ)
}

// Schema builds the Arrow schema of a row batch. The logical type of every
// column is kept in the field metadata.
func Schema(cols types.Columns) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(cols))
	for i, col := range cols {
		typ, err := arrowType(col.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", col.Name)
		}
		keys := []string{typeMetadataKey}
		values := []string{string(col.Type)}
		if col.Length > 0 {
			keys = append(keys, lengthMetadataKey)
			values = append(values, strconv.Itoa(col.Length))
		}
		fields[i] = arrow.Field{
			Name:     col.Name,
			Type:     typ,
			Nullable: true,
			Metadata: arrow.NewMetadata(keys, values),
		}
	}
	return arrow.NewSchema(fields, nil), nil
}

// ColumnsOf recovers column descriptors from a schema built by Schema. Fields
// without metadata are typed from their Arrow type.
func ColumnsOf(schema *arrow.Schema) (types.Columns, error) {
	cols := make(types.Columns, schema.NumFields())
	for i, field := range schema.Fields() {
		col := types.Column{Name: field.Name}
		if v, ok := field.Metadata.GetValue(typeMetadataKey); ok {
			col.Type = types.DataType(v)
		} else {
			switch field.Type.ID() {
			case arrow.STRING, arrow.LARGE_STRING:
				col.Type = types.StringDataType
			case arrow.FLOAT64:
				col.Type = types.DoubleDataType
			case arrow.FLOAT32:
				col.Type = types.FloatDataType
			case arrow.INT8, arrow.INT16, arrow.UINT8:
				col.Type = types.Int16DataType
			case arrow.INT32, arrow.UINT16:
				col.Type = types.Int32DataType
			case arrow.INT64, arrow.UINT32:
				col.Type = types.Int64DataType
			case arrow.TIMESTAMP:
				col.Type = types.DatetimeDataType
			case arrow.BOOL:
				col.Type = types.BooleanDataType
			case arrow.BINARY, arrow.LARGE_BINARY:
				col.Type = types.BinaryDataType
			default:
				return nil, errors.Wrapf(types.ErrUnsupportedType, "arrow type %s of field %q", field.Type, field.Name)
			}
		}
		if !col.Type.Known() || col.Type == types.NullDataType {
			return nil, errors.Wrapf(types.ErrUnsupportedType, "column type %q of field %q", col.Type, field.Name)
		}
		if v, ok := field.Metadata.GetValue(lengthMetadataKey); ok {
			col.Length, _ = strconv.Atoi(v)
		}
		cols[i] = col
	}
	return cols, nil
}

// NewRecord builds a record from rows whose values already match cols.
func NewRecord(mem memory.Allocator, schema *arrow.Schema, cols types.Columns, rows [][]types.Value) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for r, row := range rows {
		if len(row) != len(cols) {
			return nil, errors.Wrapf(types.ErrTypeMismatch, "row %d has %d values for %d columns", r, len(row), len(cols))
		}
		for i, v := range row {
			if err := appendValue(b.Field(i), cols[i].Type, v); err != nil {
				return nil, errors.Wrapf(err, "row %d column %q", r, cols[i].Name)
			}
		}
	}
	return b.NewRecord(), nil
}

func appendValue(fb array.Builder, typ types.DataType, v types.Value) error {
	if types.IsNull(v) {
		fb.AppendNull()
		return nil
	}
	if v.Type() != typ {
		return errors.Wrapf(types.ErrTypeMismatch, "%s value for %s column", v.Type(), typ)
	}
	switch v := v.(type) {
	case types.String:
		fb.(*array.StringBuilder).Append(string(v))
	case types.IPv4:
		fb.(*array.StringBuilder).Append(v.Addr.String())
	case types.IPv6:
		fb.(*array.StringBuilder).Append(v.Addr.String())
	case types.Double:
		fb.(*array.Float64Builder).Append(float64(v))
	case types.Float:
		fb.(*array.Float32Builder).Append(float32(v))
	case types.Int16:
		fb.(*array.Int16Builder).Append(int16(v))
	case types.Int32:
		fb.(*array.Int32Builder).Append(int32(v))
	case types.Int64:
		fb.(*array.Int64Builder).Append(int64(v))
	case types.Datetime:
		fb.(*array.TimestampBuilder).Append(arrow.Timestamp(v))
	case types.Boolean:
		fb.(*array.BooleanBuilder).Append(bool(v))
	case types.Binary:
		fb.(*array.BinaryBuilder).Append([]byte(v))
	default:
		return errors.Wrapf(types.ErrUnsupportedType, "%T", v)
	}
	return nil
}

// RecordRows reads every row of rec as values of cols.
func RecordRows(rec arrow.Record, cols types.Columns) ([][]types.Value, error) {
	if int(rec.NumCols()) != len(cols) {
		return nil, errors.Wrapf(types.ErrTypeMismatch, "record has %d columns, want %d", rec.NumCols(), len(cols))
	}
	rows := make([][]types.Value, rec.NumRows())
	for r := range rows {
		rows[r] = make([]types.Value, len(cols))
	}
	for i, col := range cols {
		arr := rec.Column(i)
		for r := range rows {
			v, err := valueAt(arr, col.Type, r)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %q", r, col.Name)
			}
			rows[r][i] = v
		}
	}
	return rows, nil
}

func valueAt(arr arrow.Array, typ types.DataType, i int) (types.Value, error) {
	if arr.IsNull(i) {
		return types.Null{}, nil
	}
	switch arr := arr.(type) {
	case *array.String:
		s := strings.Clone(arr.Value(i))
		switch typ {
		case types.IPv4DataType, types.IPv6DataType:
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, errors.Wrapf(types.ErrMalformed, "address %q", s)
			}
			if typ == types.IPv4DataType {
				return types.IPv4{Addr: addr.Unmap()}, nil
			}
			return types.IPv6{Addr: netip.AddrFrom16(addr.As16())}, nil
		}
		return types.String(s), nil
	case *array.Float64:
		return types.Double(arr.Value(i)), nil
	case *array.Float32:
		return types.Float(arr.Value(i)), nil
	case *array.Int8:
		return types.Int16(arr.Value(i)), nil
	case *array.Uint8:
		return types.Int16(arr.Value(i)), nil
	case *array.Int16:
		return types.Int16(arr.Value(i)), nil
	case *array.Uint16:
		return types.Int32(arr.Value(i)), nil
	case *array.Int32:
		return types.Int32(arr.Value(i)), nil
	case *array.Uint32:
		return types.Int64(arr.Value(i)), nil
	case *array.Int64:
		return types.Int64(arr.Value(i)), nil
	case *array.Timestamp:
		return types.Datetime(arr.Value(i)), nil
	case *array.Boolean:
		return types.Boolean(arr.Value(i)), nil
	case *array.Binary:
		return types.Binary(append([]byte{}, arr.Value(i)...)), nil
	}
	return nil, errors.Wrapf(types.ErrUnsupportedType, "arrow type %s", arr.DataType())
}

// EncodeRecords encodes the given record batches into a base64 encoded byte slice.
func EncodeRecords(schema *arrow.Schema, batches []arrow.Record) (payload []byte, err error) {
	if len(batches) == 0 {
		return nil, stderrors.New("cannot encode empty batches")
	}

	var buf bytes.Buffer
	defer func() {
		if err == nil {
			payload = buf.Bytes()
		}
	}()

	encoder := base64.NewEncoder(base64.StdEncoding, &buf)
	defer func() {
		err = stderrors.Join(err, encoder.Close())
	}()

	writer := ipc.NewWriter(encoder, ipc.WithSchema(schema))
	defer func() {
		err = stderrors.Join(err, writer.Close())
	}()

	for _, batch := range batches {
		if err := writer.Write(batch); err != nil {
			return nil, err
		}
	}
	return
}

// DecodeRecords decodes the given base64 encoded byte slice into its schema
// and record batches. The caller releases the records.
func DecodeRecords(data []byte) (*arrow.Schema, []arrow.Record, error) {
	decoder := base64.NewDecoder(base64.StdEncoding, bytes.NewReader(data))
	reader, err := ipc.NewReader(decoder)
	if err != nil {
		return nil, nil, err
	}
	defer reader.Release()

	batches := make([]arrow.Record, 0)
	for reader.Next() {
		batch := reader.Record()
		batch.Retain()
		batches = append(batches, batch)
	}
	if err := reader.Err(); err != nil {
		for _, batch := range batches {
			batch.Release()
		}
		return nil, nil, err
	}
	return reader.Schema(), batches, nil
}

// EncodeRows encodes rows of cols as a single base64 Arrow IPC batch.
func EncodeRows(cols types.Columns, rows [][]types.Value) (string, error) {
	schema, err := Schema(cols)
	if err != nil {
		return "", err
	}
	rec, err := NewRecord(nil, schema, cols, rows)
	if err != nil {
		return "", err
	}
	defer rec.Release()

	payload, err := EncodeRecords(schema, []arrow.Record{rec})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// DecodeRows decodes a payload produced by EncodeRows.
func DecodeRows(payload string) (types.Columns, [][]types.Value, error) {
	schema, batches, err := DecodeRecords([]byte(payload))
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		for _, batch := range batches {
			batch.Release()
		}
	}()

	cols, err := ColumnsOf(schema)
	if err != nil {
		return nil, nil, err
	}
	var rows [][]types.Value
	for _, batch := range batches {
		batchRows, err := RecordRows(batch, cols)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, batchRows...)
	}
	return cols, rows, nil
}
