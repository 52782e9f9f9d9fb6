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
	"strings"
)

// Render evaluates the template against ctx and returns the final SQL text.
// A substitution of a variable that is absent from ctx fails with *Error.
func (t *Template) Render(ctx Context) (string, error) {
	var b strings.Builder
	if err := renderNodes(t.name, t.nodes, ctx, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func renderNodes(tmpl string, nodes []node, ctx Context, b *strings.Builder) error {
	for _, n := range nodes {
		switch n := n.(type) {
		case textNode:
			b.WriteString(string(n))
		case varNode:
			v, ok := ctx[string(n)]
			if !ok {
				return errorf(tmpl, "variable %q is not defined", string(n))
			}
			b.WriteString(v.Render())
		case *ifNode:
			body, err := selectBranch(tmpl, n, ctx)
			if err != nil {
				return err
			}
			if err := renderNodes(tmpl, body, ctx, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func selectBranch(tmpl string, n *ifNode, ctx Context) ([]node, error) {
	for _, br := range n.branches {
		ok, err := br.cond.eval(tmpl, ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return br.body, nil
		}
	}
	return n.elseBody, nil
}
