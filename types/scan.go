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
	"net/netip"
	"time"

	"github.com/pkg/errors"
)

// Scan stores v into the value pointed to by dst.
//
// A null value stores the zero value. Integer destinations accept any
// integer value that fits.
func Scan(v Value, dst any) error {
	if v == nil {
		v = Null{}
	}
	switch dst := dst.(type) {
	case *Value:
		*dst = v
		return nil
	case *any:
		*dst = v.Native()
		return nil
	}

	if IsNull(v) {
		return scanZero(dst)
	}

	switch dst := dst.(type) {
	case *string:
		if s, ok := v.(String); ok {
			*dst = string(s)
			return nil
		}
		*dst = Format(v)
		return nil
	case *[]byte:
		switch v := v.(type) {
		case Binary:
			*dst = append([]byte{}, v...)
			return nil
		case String:
			*dst = []byte(v)
			return nil
		}
	case *bool:
		if b, ok := v.(Boolean); ok {
			*dst = bool(b)
			return nil
		}
	case *int16:
		val, err := Coerce(v, Int16DataType)
		if err != nil {
			return err
		}
		*dst = int16(val.(Int16))
		return nil
	case *int32:
		val, err := Coerce(v, Int32DataType)
		if err != nil {
			return err
		}
		*dst = int32(val.(Int32))
		return nil
	case *int64:
		val, err := Coerce(v, Int64DataType)
		if err != nil {
			return err
		}
		*dst = int64(val.(Int64))
		return nil
	case *int:
		val, err := Coerce(v, Int64DataType)
		if err != nil {
			return err
		}
		*dst = int(val.(Int64))
		return nil
	case *float32:
		val, err := Coerce(v, FloatDataType)
		if err != nil {
			return err
		}
		*dst = float32(val.(Float))
		return nil
	case *float64:
		val, err := Coerce(v, DoubleDataType)
		if err != nil {
			return err
		}
		*dst = float64(val.(Double))
		return nil
	case *time.Time:
		val, err := Coerce(v, DatetimeDataType)
		if err != nil {
			return err
		}
		*dst = val.(Datetime).Time()
		return nil
	case *netip.Addr:
		switch v := v.(type) {
		case IPv4:
			*dst = v.Addr
			return nil
		case IPv6:
			*dst = v.Addr
			return nil
		}
	default:
		return errors.Wrapf(ErrUnsupportedType, "scan into %T", dst)
	}
	return errors.Wrapf(ErrTypeMismatch, "scan %s into %T", v.Type(), dst)
}

func scanZero(dst any) error {
	switch dst := dst.(type) {
	case *string:
		*dst = ""
	case *[]byte:
		*dst = nil
	case *bool:
		*dst = false
	case *int16:
		*dst = 0
	case *int32:
		*dst = 0
	case *int64:
		*dst = 0
	case *int:
		*dst = 0
	case *float32:
		*dst = 0
	case *float64:
		*dst = 0
	case *time.Time:
		*dst = time.Time{}
	case *netip.Addr:
		*dst = netip.Addr{}
	default:
		return errors.Wrapf(ErrUnsupportedType, "scan into %T", dst)
	}
	return nil
}
