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

// Column describes a single column of a result set or table.
type Column struct {
	// Name is the column name.
	Name string `json:"name"`
	// Type is the column data type.
	Type DataType `json:"type"`
	// Length is the declared length, zero when the type has none.
	Length int `json:"length,omitempty"`
}

// Columns describes the columns of a result set or table, in order.
type Columns []Column

// Names returns the column names.
func (cs Columns) Names() []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

// Types returns the column types.
func (cs Columns) Types() []DataType {
	typs := make([]DataType, len(cs))
	for i, c := range cs {
		typs[i] = c.Type
	}
	return typs
}

// Index returns the position of the named column or -1.
func (cs Columns) Index(name string) int {
	for i, c := range cs {
		if c.Name == name {
			return i
		}
	}
	return -1
}
