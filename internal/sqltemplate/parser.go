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

// The template syntax has two constructs on top of plain SQL text:
//
//	{{name}}                         - substitution of a context value
//	{% if expr %} ... {% elif expr %} ... {% else %} ... {% endif %}
//
// Conditional blocks nest. Content of a false branch is omitted entirely
// from the output.

type node interface{}

type textNode string

type varNode string

type condBranch struct {
	cond boolExpr
	body []node
}

type ifNode struct {
	branches []condBranch
	elseBody []node
}

// Template is a parsed SQL template. A parsed template is immutable and may
// be rendered concurrently.
type Template struct {
	name  string
	nodes []node
}

func (t *Template) Name() string {
	return t.name
}

const (
	openVar  = "{{"
	closeVar = "}}"
	openTag  = "{%"
	closeTag = "%}"
)

type segKind int

const (
	segText segKind = iota
	segVar
	segTag
)

type segment struct {
	kind segKind
	text string
}

// Parse builds the node tree for one template text.
func Parse(name, text string) (*Template, error) {
	segs, err := lex(name, text)
	if err != nil {
		return nil, err
	}
	p := &parser{name: name, segs: segs}
	nodes, err := p.parseNodes(false)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.segs) {
		return nil, errorf(name, "unexpected tag %q without an open if block", p.segs[p.pos].text)
	}
	return &Template{name: name, nodes: nodes}, nil
}

func lex(name, text string) ([]segment, error) {
	var segs []segment
	for len(text) > 0 {
		iVar := strings.Index(text, openVar)
		iTag := strings.Index(text, openTag)
		next, open, close_ := -1, "", ""
		kind := segVar
		switch {
		case iVar >= 0 && (iTag < 0 || iVar < iTag):
			next, open, close_, kind = iVar, openVar, closeVar, segVar
		case iTag >= 0:
			next, open, close_, kind = iTag, openTag, closeTag, segTag
		}
		if next < 0 {
			segs = append(segs, segment{kind: segText, text: text})
			break
		}
		if next > 0 {
			segs = append(segs, segment{kind: segText, text: text[:next]})
		}
		text = text[next+len(open):]
		end := strings.Index(text, close_)
		if end < 0 {
			return nil, errorf(name, "unterminated %q tag", open)
		}
		content := strings.TrimSpace(text[:end])
		if content == "" {
			return nil, errorf(name, "empty %q tag", open)
		}
		segs = append(segs, segment{kind: kind, text: content})
		text = text[end+len(close_):]
	}
	return segs, nil
}

type parser struct {
	name string
	segs []segment
	pos  int
}

// parseNodes consumes segments until the end of input or, when inIf is set,
// until an elif/else/endif tag. The terminating tag is left for the caller.
func (p *parser) parseNodes(inIf bool) ([]node, error) {
	var nodes []node
	for p.pos < len(p.segs) {
		seg := p.segs[p.pos]
		switch seg.kind {
		case segText:
			nodes = append(nodes, textNode(seg.text))
			p.pos++
		case segVar:
			nodes = append(nodes, varNode(seg.text))
			p.pos++
		case segTag:
			keyword, rest := splitTag(seg.text)
			switch keyword {
			case "if":
				n, err := p.parseIf(rest)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, n)
			case "elif", "else", "endif":
				if !inIf {
					return nil, errorf(p.name, "unexpected tag %q without an open if block", seg.text)
				}
				return nodes, nil
			default:
				return nil, errorf(p.name, "unknown tag %q", seg.text)
			}
		}
	}
	if inIf {
		return nil, errorf(p.name, "missing endif")
	}
	return nodes, nil
}

func (p *parser) parseIf(condText string) (*ifNode, error) {
	cond, err := parseExpr(p.name, condText)
	if err != nil {
		return nil, err
	}
	p.pos++ // consume the if tag

	n := &ifNode{}
	branch := condBranch{cond: cond}
	inElse := false
	for {
		body, err := p.parseNodes(true)
		if err != nil {
			return nil, err
		}
		if inElse {
			n.elseBody = body
		} else {
			branch.body = body
			n.branches = append(n.branches, branch)
		}
		if p.pos >= len(p.segs) {
			return nil, errorf(p.name, "missing endif")
		}
		keyword, rest := splitTag(p.segs[p.pos].text)
		p.pos++
		switch keyword {
		case "endif":
			return n, nil
		case "elif":
			if inElse {
				return nil, errorf(p.name, "elif after else")
			}
			cond, err := parseExpr(p.name, rest)
			if err != nil {
				return nil, err
			}
			branch = condBranch{cond: cond}
		case "else":
			if inElse {
				return nil, errorf(p.name, "duplicate else")
			}
			inElse = true
		}
	}
}

func splitTag(content string) (keyword, rest string) {
	keyword, rest, _ = strings.Cut(content, " ")
	return keyword, strings.TrimSpace(rest)
}
