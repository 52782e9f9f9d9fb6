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

package sqltemplate

import (
	"github.com/spf13/cast"
)

type ValueKind int

const (
	StringKind ValueKind = iota
	NumberKind
	BoolKind
)

// Value is a typed template variable. The kind decides how the value is
// rendered into SQL text and how it behaves in a conditional: strings are
// substituted verbatim (the templates treat them as trusted identifiers or
// SQL fragments), numbers render as bare literals, booleans only make sense
// as conditional toggles.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

func StringValue(s string) Value {
	return Value{kind: StringKind, str: s}
}

func NumberValue(n float64) Value {
	return Value{kind: NumberKind, num: n}
}

func IntValue(n int64) Value {
	return Value{kind: NumberKind, num: float64(n)}
}

func BoolValue(b bool) Value {
	return Value{kind: BoolKind, b: b}
}

func (v Value) Kind() ValueKind {
	return v.kind
}

// Render returns the literal text substituted for a {{name}} token.
func (v Value) Render() string {
	switch v.kind {
	case NumberKind:
		return cast.ToString(v.num)
	case BoolKind:
		if v.b {
			return "1"
		}
		return "0"
	default:
		return v.str
	}
}

// Truthy reports how the value behaves as a bare conditional variable:
// false/0/empty are falsy, everything else is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case BoolKind:
		return v.b
	case NumberKind:
		return v.num != 0
	default:
		return v.str != "" && v.str != "false" && v.str != "FALSE" && v.str != "0"
	}
}

// Context maps placeholder names to their typed values for one render.
type Context map[string]Value

// Merge returns a new context with entries of other overriding entries of c.
func (c Context) Merge(other Context) Context {
	res := make(Context, len(c)+len(other))
	for k, v := range c {
		res[k] = v
	}
	for k, v := range other {
		res[k] = v
	}
	return res
}
