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
	"encoding/binary"
	"math"
	"net"
	"net/netip"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedType is returned when a value or discriminator is outside the supported set.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrTypeMismatch is returned when a value cannot be used where another type is expected.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrValueOutOfRange is returned when a value does not fit the target type.
	ErrValueOutOfRange = errors.New("value out of range")
	// ErrMalformed is returned when a payload does not match its discriminator.
	ErrMalformed = errors.New("malformed value")
)

// TaggedValue is the wire form of a Value: a discriminator and the payload bytes.
//
// Fixed-width payloads are big-endian. Strings are UTF-8, booleans are a
// single 0 or 1 byte, datetimes are int64 nanoseconds and null has no payload.
type TaggedValue struct {
	Type DataType `json:"type"`
	Data []byte   `json:"data,omitempty"`
}

// Marshal converts v to its tagged wire form.
//
// Addresses are expected in the form ValueOf produces. A zero Addr marshals
// as null and an IPv4 holding a non-IPv4 address marshals as IPv6.
func Marshal(v Value) TaggedValue {
	switch v := v.(type) {
	case nil, Null:
		return TaggedValue{Type: NullDataType}
	case String:
		return TaggedValue{Type: StringDataType, Data: []byte(v)}
	case Double:
		return TaggedValue{Type: DoubleDataType, Data: binary.BigEndian.AppendUint64(nil, math.Float64bits(float64(v)))}
	case Float:
		return TaggedValue{Type: FloatDataType, Data: binary.BigEndian.AppendUint32(nil, math.Float32bits(float32(v)))}
	case Int16:
		return TaggedValue{Type: Int16DataType, Data: binary.BigEndian.AppendUint16(nil, uint16(v))}
	case Int32:
		return TaggedValue{Type: Int32DataType, Data: binary.BigEndian.AppendUint32(nil, uint32(v))}
	case Int64:
		return TaggedValue{Type: Int64DataType, Data: binary.BigEndian.AppendUint64(nil, uint64(v))}
	case Datetime:
		return TaggedValue{Type: DatetimeDataType, Data: binary.BigEndian.AppendUint64(nil, uint64(v))}
	case Boolean:
		if v {
			return TaggedValue{Type: BooleanDataType, Data: []byte{1}}
		}
		return TaggedValue{Type: BooleanDataType, Data: []byte{0}}
	case Binary:
		return TaggedValue{Type: BinaryDataType, Data: append([]byte{}, v...)}
	case IPv4:
		addr := v.Addr.Unmap()
		if !addr.Is4() {
			return Marshal(IPv6(v))
		}
		b := addr.As4()
		return TaggedValue{Type: IPv4DataType, Data: b[:]}
	case IPv6:
		if !v.Addr.IsValid() {
			return TaggedValue{Type: NullDataType}
		}
		b := v.Addr.As16()
		return TaggedValue{Type: IPv6DataType, Data: b[:]}
	}
	panic("unreachable")
}

// Encode converts a native Go value to its tagged wire form.
func Encode(v any) (TaggedValue, error) {
	val, err := ValueOf(v)
	if err != nil {
		return TaggedValue{}, err
	}
	return Marshal(val), nil
}

// EncodeAll encodes every value of vs.
func EncodeAll(vs []any) ([]TaggedValue, error) {
	out := make([]TaggedValue, len(vs))
	for i, v := range vs {
		tv, err := Encode(v)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %d", i)
		}
		out[i] = tv
	}
	return out, nil
}

var payloadWidth = map[DataType]int{
	DoubleDataType:   8,
	FloatDataType:    4,
	Int16DataType:    2,
	Int32DataType:    4,
	Int64DataType:    8,
	DatetimeDataType: 8,
	BooleanDataType:  1,
	IPv4DataType:     4,
	IPv6DataType:     16,
	NullDataType:     0,
}

// Decode converts a tagged value back to a Value.
//
// The expected type may be empty to accept any known discriminator. A null
// value is accepted whatever the expected type is.
func Decode(tv TaggedValue, expected DataType) (Value, error) {
	if !tv.Type.Known() {
		return nil, errors.Wrapf(ErrUnsupportedType, "discriminator %q", tv.Type)
	}
	if tv.Type == NullDataType {
		if len(tv.Data) != 0 {
			return nil, errors.Wrap(ErrMalformed, "null with payload")
		}
		return Null{}, nil
	}
	if expected != "" && expected != tv.Type {
		return nil, errors.Wrapf(ErrTypeMismatch, "expected %s, got %s", expected, tv.Type)
	}
	if w, ok := payloadWidth[tv.Type]; ok && len(tv.Data) != w {
		return nil, errors.Wrapf(ErrMalformed, "%s payload of %d bytes", tv.Type, len(tv.Data))
	}

	data := tv.Data
	switch tv.Type {
	case StringDataType:
		if !utf8.Valid(data) {
			return nil, errors.Wrap(ErrMalformed, "string is not valid UTF-8")
		}
		return String(data), nil
	case DoubleDataType:
		return Double(math.Float64frombits(binary.BigEndian.Uint64(data))), nil
	case FloatDataType:
		return Float(math.Float32frombits(binary.BigEndian.Uint32(data))), nil
	case Int16DataType:
		return Int16(binary.BigEndian.Uint16(data)), nil
	case Int32DataType:
		return Int32(binary.BigEndian.Uint32(data)), nil
	case Int64DataType:
		return Int64(binary.BigEndian.Uint64(data)), nil
	case DatetimeDataType:
		return Datetime(binary.BigEndian.Uint64(data)), nil
	case BooleanDataType:
		switch data[0] {
		case 0:
			return Boolean(false), nil
		case 1:
			return Boolean(true), nil
		default:
			return nil, errors.Wrapf(ErrMalformed, "boolean byte %#x", data[0])
		}
	case BinaryDataType:
		return Binary(append([]byte{}, data...)), nil
	case IPv4DataType:
		return IPv4{Addr: netip.AddrFrom4([4]byte(data))}, nil
	case IPv6DataType:
		return IPv6{Addr: netip.AddrFrom16([16]byte(data))}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedType, "discriminator %q", tv.Type)
}

// DecodeRow decodes a positional row against its column descriptors.
func DecodeRow(tvs []TaggedValue, cols Columns) ([]Value, error) {
	if len(tvs) != len(cols) {
		return nil, errors.Wrapf(ErrMalformed, "row has %d values for %d columns", len(tvs), len(cols))
	}
	row := make([]Value, len(tvs))
	for i, tv := range tvs {
		v, err := Decode(tv, cols[i].Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", cols[i].Name)
		}
		row[i] = v
	}
	return row, nil
}

// ValueOf maps a native Go value onto the closed value set.
//
// Signed integers of any width become Int64, except int16 and int32 which
// keep their width. Unsigned integers above MaxInt64 are out of range. An
// invalid address is null, whether native or wrapped in IPv4 or IPv6.
func ValueOf(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return Null{}, nil
	case IPv4:
		switch {
		case !v.Addr.IsValid():
			return Null{}, nil
		case !v.Addr.Unmap().Is4():
			return nil, errors.Wrapf(ErrTypeMismatch, "%s is not an ipv4 address", v.Addr)
		}
		return IPv4{Addr: v.Addr.Unmap()}, nil
	case IPv6:
		if !v.Addr.IsValid() {
			return Null{}, nil
		}
		return IPv6{Addr: netip.AddrFrom16(v.Addr.As16())}, nil
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case []byte:
		if v == nil {
			return Null{}, nil
		}
		return Binary(v), nil
	case bool:
		return Boolean(v), nil
	case int:
		return Int64(v), nil
	case int8:
		return Int16(v), nil
	case int16:
		return Int16(v), nil
	case int32:
		return Int32(v), nil
	case int64:
		return Int64(v), nil
	case uint8:
		return Int16(v), nil
	case uint16:
		return Int32(v), nil
	case uint32:
		return Int64(v), nil
	case uint:
		return uintValue(uint64(v))
	case uint64:
		return uintValue(v)
	case float32:
		return Float(v), nil
	case float64:
		return Double(v), nil
	case time.Time:
		return DatetimeOf(v)
	case netip.Addr:
		return addrValue(v)
	case net.IP:
		if v == nil {
			return Null{}, nil
		}
		addr, ok := netip.AddrFromSlice(v)
		if !ok {
			return nil, errors.Wrapf(ErrMalformed, "ip of %d bytes", len(v))
		}
		return addrValue(addr)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Null{}, nil
		}
		return ValueOf(rv.Elem().Interface())
	}
	return nil, errors.Wrapf(ErrUnsupportedType, "%T", v)
}

func uintValue(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return nil, errors.Wrapf(ErrValueOutOfRange, "%d overflows int64", u)
	}
	return Int64(u), nil
}

func addrValue(addr netip.Addr) (Value, error) {
	switch {
	case !addr.IsValid():
		return Null{}, nil
	case addr.Is4():
		return IPv4{Addr: addr}, nil
	default:
		return IPv6{Addr: addr}, nil
	}
}
