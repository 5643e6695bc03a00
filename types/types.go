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

// Package types implements the closed set of scalar values exchanged with a
// NeoRPC server and their tagged wire representation.
package types

import (
	"fmt"
	"math"
	"net/netip"
	"time"

	"github.com/pkg/errors"
)

// DataType is the discriminator of a tagged value and the logical type of a column.
type DataType string

const (
	// StringDataType is a UTF-8 string.
	StringDataType DataType = "string"
	// DoubleDataType is a 64-bit IEEE 754 float.
	DoubleDataType DataType = "double"
	// FloatDataType is a 32-bit IEEE 754 float.
	FloatDataType DataType = "float"
	// Int16DataType is a 16-bit signed integer.
	Int16DataType DataType = "int16"
	// Int32DataType is a 32-bit signed integer.
	Int32DataType DataType = "int32"
	// Int64DataType is a 64-bit signed integer.
	Int64DataType DataType = "int64"
	// DatetimeDataType is a point in time, nanoseconds since the Unix epoch.
	DatetimeDataType DataType = "datetime"
	// BooleanDataType is a boolean.
	BooleanDataType DataType = "bool"
	// BinaryDataType is an opaque byte string.
	BinaryDataType DataType = "binary"
	// IPv4DataType is an IPv4 address.
	IPv4DataType DataType = "ipv4"
	// IPv6DataType is an IPv6 address.
	IPv6DataType DataType = "ipv6"
	// NullDataType marks an absent value. It is never the type of a column.
	NullDataType DataType = "null"
)

var knownDataTypes = map[DataType]struct{}{
	StringDataType:   {},
	DoubleDataType:   {},
	FloatDataType:    {},
	Int16DataType:    {},
	Int32DataType:    {},
	Int64DataType:    {},
	DatetimeDataType: {},
	BooleanDataType:  {},
	BinaryDataType:   {},
	IPv4DataType:     {},
	IPv6DataType:     {},
	NullDataType:     {},
}

// Known reports whether typ is one of the supported discriminators.
func (typ DataType) Known() bool {
	_, ok := knownDataTypes[typ]
	return ok
}

// Value is a single decoded cell. The set of implementations is closed.
type Value interface {
	// Type returns the discriminator of the value.
	Type() DataType
	// Native returns the value as a plain Go value.
	Native() any

	isValue()
}

type (
	String  string
	Double  float64
	Float   float32
	Int16   int16
	Int32   int32
	Int64   int64
	Boolean bool
	Binary  []byte
	// Datetime is a timestamp in nanoseconds since the Unix epoch.
	Datetime int64
	// IPv4 holds an address for which Addr.Is4 is true.
	IPv4 struct{ Addr netip.Addr }
	// IPv6 holds a 16-byte address, possibly an IPv4-mapped one.
	IPv6 struct{ Addr netip.Addr }
	// Null is the absent value.
	Null struct{}
)

func (String) Type() DataType   { return StringDataType }
func (Double) Type() DataType   { return DoubleDataType }
func (Float) Type() DataType    { return FloatDataType }
func (Int16) Type() DataType    { return Int16DataType }
func (Int32) Type() DataType    { return Int32DataType }
func (Int64) Type() DataType    { return Int64DataType }
func (Boolean) Type() DataType  { return BooleanDataType }
func (Binary) Type() DataType   { return BinaryDataType }
func (Datetime) Type() DataType { return DatetimeDataType }
func (IPv4) Type() DataType     { return IPv4DataType }
func (IPv6) Type() DataType     { return IPv6DataType }
func (Null) Type() DataType     { return NullDataType }

func (v String) Native() any   { return string(v) }
func (v Double) Native() any   { return float64(v) }
func (v Float) Native() any    { return float32(v) }
func (v Int16) Native() any    { return int16(v) }
func (v Int32) Native() any    { return int32(v) }
func (v Int64) Native() any    { return int64(v) }
func (v Boolean) Native() any  { return bool(v) }
func (v Binary) Native() any   { return []byte(v) }
func (v Datetime) Native() any { return v.Time() }
func (v IPv4) Native() any     { return v.Addr }
func (v IPv6) Native() any     { return v.Addr }
func (Null) Native() any       { return nil }

func (String) isValue()   {}
func (Double) isValue()   {}
func (Float) isValue()    {}
func (Int16) isValue()    {}
func (Int32) isValue()    {}
func (Int64) isValue()    {}
func (Boolean) isValue()  {}
func (Binary) isValue()   {}
func (Datetime) isValue() {}
func (IPv4) isValue()     {}
func (IPv6) isValue()     {}
func (Null) isValue()     {}

var (
	minDatetime = time.Unix(0, math.MinInt64)
	maxDatetime = time.Unix(0, math.MaxInt64)
)

// DatetimeOf converts t to a Datetime without losing precision. Times that
// cannot be counted in int64 nanoseconds, the zero time.Time included, are
// out of range.
func DatetimeOf(t time.Time) (Datetime, error) {
	if t.Before(minDatetime) || t.After(maxDatetime) {
		return 0, errors.Wrapf(ErrValueOutOfRange, "time %s", t.Format(time.RFC3339Nano))
	}
	return Datetime(t.UnixNano()), nil
}

// Time returns the value as a UTC time.Time, keeping nanoseconds.
func (v Datetime) Time() time.Time {
	return time.Unix(0, int64(v)).UTC()
}

func (v Datetime) String() string {
	return v.Time().Format(time.RFC3339Nano)
}

func (v IPv4) String() string { return v.Addr.String() }
func (v IPv6) String() string { return v.Addr.String() }

// IsNull reports whether v is absent.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Format renders v for display.
func Format(v Value) string {
	switch v := v.(type) {
	case nil, Null:
		return "NULL"
	case Binary:
		return fmt.Sprintf("%x", []byte(v))
	case Datetime:
		return v.String()
	default:
		return fmt.Sprint(v.Native())
	}
}
