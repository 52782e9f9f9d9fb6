// Copyright 2025 The cdmlint Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cdm resolves datatype metadata of the common data model schema.
// Temporal and value-bound checks need to know whether a field holds a date,
// a datetime or a number to pick the right cast in the rendered SQL.
package cdm

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DateType     = "date"
	DatetimeType = "datetime"
)

//go:embed field_types.yaml
var defaultFieldTypes []byte

// Model holds per-field datatype metadata keyed by "table.field". Explicit
// entries from the field-level metadata file take precedence; fields absent
// from it fall back to the embedded catalog and finally to the CDM column
// naming convention (the _date and _datetime suffixes).
type Model struct {
	types    map[string]string
	fallback map[string]string
}

func NewModel() (*Model, error) {
	var catalog map[string]string
	if err := yaml.Unmarshal(defaultFieldTypes, &catalog); err != nil {
		return nil, fmt.Errorf("cannot parse embedded field type catalog: %w", err)
	}
	return &Model{
		types:    make(map[string]string),
		fallback: catalog,
	}, nil
}

// SetFieldType records the datatype of table.field as declared by the
// field-level metadata file.
func (m *Model) SetFieldType(table, field, datatype string) {
	if datatype == "" {
		return
	}
	m.types[key(table, field)] = strings.ToLower(datatype)
}

// FieldType returns the datatype of table.field, or "" when unknown.
func (m *Model) FieldType(table, field string) string {
	k := key(table, field)
	if t, ok := m.types[k]; ok {
		return t
	}
	if t, ok := m.fallback[k]; ok {
		return t
	}
	switch {
	case strings.HasSuffix(strings.ToLower(field), "_datetime"):
		return DatetimeType
	case strings.HasSuffix(strings.ToLower(field), "_date"):
		return DateType
	}
	return ""
}

// IsTemporal reports whether table.field holds a date or datetime value.
func (m *Model) IsTemporal(table, field string) bool {
	return isTemporalType(m.FieldType(table, field))
}

// NormalizedType returns the datatype of table.field as it should appear in
// rendered SQL. The embedded catalog and the temporal naming convention win
// over a declaration that is blank or does not name a temporal type, so a
// datetime column declared varchar still renders with date casts.
func (m *Model) NormalizedType(table, field string) string {
	declared := m.types[key(table, field)]
	if isTemporalType(declared) {
		return declared
	}
	if t, ok := m.fallback[key(table, field)]; ok {
		return t
	}
	switch {
	case strings.HasSuffix(strings.ToLower(field), "_datetime"):
		return DatetimeType
	case strings.HasSuffix(strings.ToLower(field), "_date"):
		return DateType
	}
	return declared
}

func isTemporalType(datatype string) bool {
	switch datatype {
	case DateType, DatetimeType, "timestamp":
		return true
	}
	return false
}

func key(table, field string) string {
	return strings.ToLower(table) + "." + strings.ToLower(field)
}
