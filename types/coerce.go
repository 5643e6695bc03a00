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

package types

import (
	"math"
	"net/netip"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Coerce converts v to a value of type typ, checking ranges.
//
// Values that ValueOf rejects fail with ErrUnsupportedType. Values of an
// incompatible kind fail with ErrTypeMismatch and values that do not fit
// the target width fail with ErrValueOutOfRange.
func Coerce(v any, typ DataType) (Value, error) {
	if !typ.Known() || typ == NullDataType {
		return nil, errors.Wrapf(ErrUnsupportedType, "column type %q", typ)
	}
	val, err := ValueOf(v)
	if err != nil {
		return nil, err
	}
	if val.Type() == typ || IsNull(val) {
		return val, nil
	}

	switch typ {
	case Int16DataType, Int32DataType, Int64DataType:
		n, err := integerOf(val)
		if err != nil {
			return nil, errors.Wrapf(err, "%s to %s", val.Type(), typ)
		}
		return intOfWidth(n, typ)
	case DoubleDataType:
		switch val := val.(type) {
		case Float:
			return Double(val), nil
		case Int16, Int32, Int64:
			n, _ := integerOf(val)
			return Double(n), nil
		}
	case FloatDataType:
		switch val := val.(type) {
		case Double:
			f := float64(val)
			if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
				return nil, errors.Wrapf(ErrValueOutOfRange, "%g overflows float", f)
			}
			return Float(f), nil
		case Int16, Int32, Int64:
			n, _ := integerOf(val)
			return Float(n), nil
		}
	case DatetimeDataType:
		switch val := val.(type) {
		case Int16, Int32, Int64:
			n, _ := integerOf(val)
			return Datetime(n), nil
		case String:
			t, err := time.Parse(time.RFC3339Nano, string(val))
			if err != nil {
				return nil, errors.Wrapf(ErrTypeMismatch, "parse datetime %q", string(val))
			}
			return DatetimeOf(t)
		}
	case StringDataType:
		switch val := val.(type) {
		case Binary:
			if !utf8.Valid(val) {
				return nil, errors.Wrap(ErrTypeMismatch, "binary is not valid UTF-8")
			}
			return String(val), nil
		case IPv4:
			return String(val.String()), nil
		case IPv6:
			return String(val.String()), nil
		}
	case BinaryDataType:
		if s, ok := val.(String); ok {
			return Binary(s), nil
		}
	case IPv4DataType:
		switch val := val.(type) {
		case String:
			addr, err := netip.ParseAddr(string(val))
			if err != nil || !addr.Unmap().Is4() {
				return nil, errors.Wrapf(ErrTypeMismatch, "parse ipv4 %q", string(val))
			}
			return IPv4{Addr: addr.Unmap()}, nil
		case IPv6:
			if !val.Addr.Is4In6() {
				return nil, errors.Wrapf(ErrValueOutOfRange, "%s is not an ipv4 address", val.Addr)
			}
			return IPv4{Addr: val.Addr.Unmap()}, nil
		}
	case IPv6DataType:
		switch val := val.(type) {
		case String:
			addr, err := netip.ParseAddr(string(val))
			if err != nil {
				return nil, errors.Wrapf(ErrTypeMismatch, "parse ipv6 %q", string(val))
			}
			return IPv6{Addr: netip.AddrFrom16(addr.As16())}, nil
		case IPv4:
			return IPv6{Addr: netip.AddrFrom16(val.Addr.As16())}, nil
		}
	}
	return nil, errors.Wrapf(ErrTypeMismatch, "%s to %s", val.Type(), typ)
}

// CoerceRow coerces every value of row to the matching column type. Strings
// longer than the declared length of their column, in bytes, are out of range.
func CoerceRow(row []any, cols Columns) ([]Value, error) {
	if len(row) != len(cols) {
		return nil, errors.Wrapf(ErrTypeMismatch, "row has %d values for %d columns", len(row), len(cols))
	}
	out := make([]Value, len(row))
	for i, v := range row {
		val, err := Coerce(v, cols[i].Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", cols[i].Name)
		}
		if s, ok := val.(String); ok && cols[i].Length > 0 && len(s) > cols[i].Length {
			return nil, errors.Wrapf(ErrValueOutOfRange, "column %q: %d bytes exceed length %d", cols[i].Name, len(s), cols[i].Length)
		}
		out[i] = val
	}
	return out, nil
}

func integerOf(v Value) (int64, error) {
	switch v := v.(type) {
	case Int16:
		return int64(v), nil
	case Int32:
		return int64(v), nil
	case Int64:
		return int64(v), nil
	case Datetime:
		return int64(v), nil
	case Double:
		return integralFloat(float64(v))
	case Float:
		return integralFloat(float64(v))
	}
	return 0, ErrTypeMismatch
}

func integralFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errors.Wrapf(ErrTypeMismatch, "%g is not integral", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errors.Wrapf(ErrValueOutOfRange, "%g overflows int64", f)
	}
	return int64(f), nil
}

func intOfWidth(n int64, typ DataType) (Value, error) {
	switch typ {
	case Int16DataType:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, errors.Wrapf(ErrValueOutOfRange, "%d overflows int16", n)
		}
		return Int16(n), nil
	case Int32DataType:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, errors.Wrapf(ErrValueOutOfRange, "%d overflows int32", n)
		}
		return Int32(n), nil
	}
	return Int64(n), nil
}
