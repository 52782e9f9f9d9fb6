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

package checks

import (
	"embed"
	"fmt"
	"sync"

	"github.com/cdmlint/cdmlint/internal/sqltemplate"
)

//go:embed sql/*.sql
var templateFS embed.FS

var (
	parsedMx sync.Mutex
	parsed   = make(map[Kind]*sqltemplate.Template)
)

// LoadTemplate returns the parsed SQL template of a check kind. Parsed
// templates are cached; they are immutable and safe for concurrent renders.
func LoadTemplate(kind Kind) (*sqltemplate.Template, error) {
	parsedMx.Lock()
	defer parsedMx.Unlock()
	if t, ok := parsed[kind]; ok {
		return t, nil
	}
	desc, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown check kind %q", kind)
	}
	raw, err := templateFS.ReadFile("sql/" + desc.SQLFile)
	if err != nil {
		return nil, fmt.Errorf("cannot read template for %s: %w", kind, err)
	}
	t, err := sqltemplate.Parse(desc.SQLFile, string(raw))
	if err != nil {
		return nil, fmt.Errorf("cannot parse template for %s: %w", kind, err)
	}
	parsed[kind] = t
	return t, nil
}
