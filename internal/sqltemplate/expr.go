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
	"strconv"
	"strings"
)

// Conditional expression grammar:
//
//	expr   := and ('|' and)*
//	and    := term ('&' term)*
//	term   := '(' expr ')' | comparison | ident
//	comparison := operand ('==' | '!=') operand
//	            | operand 'IN' '(' operand (',' operand)* ')'
//	operand    := '...quoted...' | ident | number
//
// Quoted operands may embed {{name}} substitutions, which lets a condition
// compare a schema-qualified table reference against a literal. A bare ident
// term is truthy when the variable is present and not false/0/empty.

type boolExpr interface {
	eval(tmpl string, ctx Context) (bool, error)
}

type orExpr struct{ l, r boolExpr }

func (e orExpr) eval(tmpl string, ctx Context) (bool, error) {
	l, err := e.l.eval(tmpl, ctx)
	if err != nil {
		return false, err
	}
	if l {
		return true, nil
	}
	return e.r.eval(tmpl, ctx)
}

type andExpr struct{ l, r boolExpr }

func (e andExpr) eval(tmpl string, ctx Context) (bool, error) {
	l, err := e.l.eval(tmpl, ctx)
	if err != nil {
		return false, err
	}
	if !l {
		return false, nil
	}
	return e.r.eval(tmpl, ctx)
}

type truthyExpr struct{ name string }

func (e truthyExpr) eval(_ string, ctx Context) (bool, error) {
	v, ok := ctx[e.name]
	if !ok {
		return false, nil
	}
	return v.Truthy(), nil
}

type cmpExpr struct {
	lhs, rhs operand
	negate   bool
}

func (e cmpExpr) eval(tmpl string, ctx Context) (bool, error) {
	l, err := e.lhs.resolve(tmpl, ctx)
	if err != nil {
		return false, err
	}
	r, err := e.rhs.resolve(tmpl, ctx)
	if err != nil {
		return false, err
	}
	eq := equalOperands(l, r)
	if e.negate {
		return !eq, nil
	}
	return eq, nil
}

type inExpr struct {
	lhs operand
	set []operand
}

func (e inExpr) eval(tmpl string, ctx Context) (bool, error) {
	l, err := e.lhs.resolve(tmpl, ctx)
	if err != nil {
		return false, err
	}
	for _, o := range e.set {
		r, err := o.resolve(tmpl, ctx)
		if err != nil {
			return false, err
		}
		if equalOperands(l, r) {
			return true, nil
		}
	}
	return false, nil
}

// equalOperands compares numerically when both sides parse as numbers, so
// that a condition like cohortDefinitionId == 0 is insensitive to formatting.
func equalOperands(l, r string) bool {
	if l == r {
		return true
	}
	lf, lerr := strconv.ParseFloat(l, 64)
	rf, rerr := strconv.ParseFloat(r, 64)
	return lerr == nil && rerr == nil && lf == rf
}

type operand struct {
	raw    string
	quoted bool
}

func (o operand) resolve(tmpl string, ctx Context) (string, error) {
	if o.quoted {
		return substitute(tmpl, o.raw, ctx)
	}
	if _, err := strconv.ParseFloat(o.raw, 64); err == nil {
		return o.raw, nil
	}
	v, ok := ctx[o.raw]
	if !ok {
		return "", errorf(tmpl, "variable %q is not defined", o.raw)
	}
	return v.Render(), nil
}

// substitute resolves {{name}} occurrences inside a quoted operand.
func substitute(tmpl, s string, ctx Context) (string, error) {
	var b strings.Builder
	for {
		i := strings.Index(s, openVar)
		if i < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		b.WriteString(s[:i])
		s = s[i+len(openVar):]
		j := strings.Index(s, closeVar)
		if j < 0 {
			return "", errorf(tmpl, "unterminated %q inside a quoted operand", openVar)
		}
		name := strings.TrimSpace(s[:j])
		v, ok := ctx[name]
		if !ok {
			return "", errorf(tmpl, "variable %q is not defined", name)
		}
		b.WriteString(v.Render())
		s = s[j+len(closeVar):]
	}
}

type exprToken struct {
	kind exprTokenKind
	text string
}

type exprTokenKind int

const (
	tokIdent exprTokenKind = iota
	tokQuoted
	tokNumber
	tokOp // == != & | ( ) ,
	tokIn
)

func parseExpr(tmpl, text string) (boolExpr, error) {
	toks, err := lexExpr(tmpl, text)
	if err != nil {
		return nil, err
	}
	ep := &exprParser{tmpl: tmpl, src: text, toks: toks}
	e, err := ep.parseOr()
	if err != nil {
		return nil, err
	}
	if ep.pos < len(ep.toks) {
		return nil, errorf(tmpl, "unexpected %q in condition %q", ep.toks[ep.pos].text, text)
	}
	return e, nil
}

func lexExpr(tmpl, text string) ([]exprToken, error) {
	var toks []exprToken
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'':
			j := strings.IndexByte(text[i+1:], '\'')
			if j < 0 {
				return nil, errorf(tmpl, "unterminated quote in condition %q", text)
			}
			toks = append(toks, exprToken{kind: tokQuoted, text: text[i+1 : i+1+j]})
			i += j + 2
		case c == '&' || c == '|' || c == '(' || c == ')' || c == ',':
			toks = append(toks, exprToken{kind: tokOp, text: string(c)})
			i++
		case c == '=' || c == '!':
			if i+1 >= len(text) || text[i+1] != '=' {
				return nil, errorf(tmpl, "unknown operator %q in condition %q", string(c), text)
			}
			toks = append(toks, exprToken{kind: tokOp, text: text[i : i+2]})
			i += 2
		default:
			j := i
			for j < len(text) && isWordByte(text[j]) {
				j++
			}
			if j == i {
				return nil, errorf(tmpl, "unexpected character %q in condition %q", string(c), text)
			}
			word := text[i:j]
			switch {
			case strings.EqualFold(word, "in"):
				toks = append(toks, exprToken{kind: tokIn, text: word})
			case isNumber(word):
				toks = append(toks, exprToken{kind: tokNumber, text: word})
			default:
				toks = append(toks, exprToken{kind: tokIdent, text: word})
			}
			i = j
		}
	}
	return toks, nil
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

type exprParser struct {
	tmpl string
	src  string
	toks []exprToken
	pos  int
}

func (p *exprParser) parseOr() (boolExpr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekOp("|") {
		p.pos++
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = orExpr{l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseAnd() (boolExpr, error) {
	l, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peekOp("&") {
		p.pos++
		r, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		l = andExpr{l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseTerm() (boolExpr, error) {
	if p.peekOp("(") {
		p.pos++
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.peekOp(")") {
			return nil, errorf(p.tmpl, "missing ) in condition %q", p.src)
		}
		p.pos++
		return e, nil
	}

	lhs, ok := p.nextOperand()
	if !ok {
		return nil, errorf(p.tmpl, "malformed condition %q", p.src)
	}

	switch {
	case p.peekOp("=="), p.peekOp("!="):
		op := p.toks[p.pos].text
		p.pos++
		rhs, ok := p.nextOperand()
		if !ok {
			return nil, errorf(p.tmpl, "missing right operand of %q in condition %q", op, p.src)
		}
		return cmpExpr{lhs: lhs, rhs: rhs, negate: op == "!="}, nil
	case p.pos < len(p.toks) && p.toks[p.pos].kind == tokIn:
		p.pos++
		set, err := p.parseInSet()
		if err != nil {
			return nil, err
		}
		return inExpr{lhs: lhs, set: set}, nil
	default:
		if lhs.quoted {
			return nil, errorf(p.tmpl, "quoted operand %q needs a comparison in condition %q", lhs.raw, p.src)
		}
		return truthyExpr{name: lhs.raw}, nil
	}
}

func (p *exprParser) parseInSet() ([]operand, error) {
	if !p.peekOp("(") {
		return nil, errorf(p.tmpl, "IN requires a parenthesised list in condition %q", p.src)
	}
	p.pos++
	var set []operand
	for {
		o, ok := p.nextOperand()
		if !ok {
			return nil, errorf(p.tmpl, "malformed IN list in condition %q", p.src)
		}
		set = append(set, o)
		switch {
		case p.peekOp(","):
			p.pos++
		case p.peekOp(")"):
			p.pos++
			return set, nil
		default:
			return nil, errorf(p.tmpl, "malformed IN list in condition %q", p.src)
		}
	}
}

func (p *exprParser) nextOperand() (operand, bool) {
	if p.pos >= len(p.toks) {
		return operand{}, false
	}
	t := p.toks[p.pos]
	switch t.kind {
	case tokQuoted:
		p.pos++
		return operand{raw: t.text, quoted: true}, true
	case tokIdent, tokNumber:
		p.pos++
		return operand{raw: t.text}, true
	default:
		return operand{}, false
	}
}

func (p *exprParser) peekOp(op string) bool {
	return p.pos < len(p.toks) && p.toks[p.pos].kind == tokOp && p.toks[p.pos].text == op
}
