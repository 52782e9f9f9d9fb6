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

import "fmt"

// Error reports a parse or render failure of one template: a missing
// placeholder, a malformed tag or an expression that cannot be evaluated.
type Error struct {
	Template string
	Msg      string
}

func (e *Error) Error() string {
	if e.Template == "" {
		return fmt.Sprintf("template: %s", e.Msg)
	}
	return fmt.Sprintf("template %s: %s", e.Template, e.Msg)
}

func errorf(template, format string, args ...any) *Error {
	return &Error{Template: template, Msg: fmt.Sprintf(format, args...)}
}
