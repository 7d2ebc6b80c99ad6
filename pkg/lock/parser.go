package lock

import (
	"fmt"
	"strings"
)

// node is one node of a parsed lock expression tree.
type node struct {
	op    nodeOp
	left  *node
	right *node
	name  string // predicate name for opCall
	arg   string // predicate argument for opCall
}

type nodeOp int

const (
	opAnd nodeOp = iota
	opOr
	opNot
	opCall
)

func errUnknownRole(name string) error {
	return fmt.Errorf("unknown role %q", name)
}

// exprParser holds state for parsing one lock expression string.
// Grammar:
//
//	E → T ('or' E)?
//	T → F ('and' T)?
//	F → 'not' F | '(' E ')' | name '(' arg ')'
type exprParser struct {
	toks []token
	pos  int
}

type token struct {
	kind tokKind
	text string
}

type tokKind int

const (
	tokWord tokKind = iota // identifier, "and", "or", "not"
	tokLParen
	tokRParen
)

// tokenize splits an expression into words and parentheses. Predicate
// arguments are captured as part of a single call token pair, so commas and
// spaces inside name(...) never reach the boolean grammar.
func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case ch == '(':
			toks = append(toks, token{kind: tokLParen})
			i++
		case ch == ')':
			toks = append(toks, token{kind: tokRParen})
			i++
		default:
			start := i
			for i < len(src) && src[i] != ' ' && src[i] != '\t' && src[i] != '(' && src[i] != ')' {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: src[start:i]})
		}
	}
	return toks, nil
}

// Parse parses a lock expression into a tree. An empty expression parses to
// nil, which always evaluates to allowed.
func Parse(expr string) (*node, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, fmt.Errorf("unexpected trailing input at token %d", p.pos)
	}
	return n, nil
}

func (p *exprParser) peekWord() (string, bool) {
	if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokWord {
		return "", false
	}
	return strings.ToLower(p.toks[p.pos].text), true
}

func (p *exprParser) parseOr() (*node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if w, ok := p.peekWord(); ok && w == "or" {
		p.pos++
		right, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		return &node{op: opOr, left: left, right: right}, nil
	}
	return left, nil
}

func (p *exprParser) parseAnd() (*node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if w, ok := p.peekWord(); ok && w == "and" {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		return &node{op: opAnd, left: left, right: right}, nil
	}
	return left, nil
}

func (p *exprParser) parseUnary() (*node, error) {
	if w, ok := p.peekWord(); ok && w == "not" {
		p.pos++
		sub, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &node{op: opNot, left: sub}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (*node, error) {
	if p.pos >= len(p.toks) {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	tok := p.toks[p.pos]

	if tok.kind == tokLParen {
		p.pos++
		sub, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return sub, nil
	}

	if tok.kind != tokWord {
		return nil, fmt.Errorf("unexpected token")
	}
	name := strings.ToLower(tok.text)
	if name == "and" || name == "or" || name == "not" {
		return nil, fmt.Errorf("misplaced keyword %q", name)
	}
	p.pos++

	// Predicate call: name followed by a parenthesized argument.
	if p.pos < len(p.toks) && p.toks[p.pos].kind == tokLParen {
		p.pos++
		var args []string
		for p.pos < len(p.toks) && p.toks[p.pos].kind == tokWord {
			args = append(args, p.toks[p.pos].text)
			p.pos++
		}
		if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokRParen {
			return nil, fmt.Errorf("unterminated argument list for %q", name)
		}
		p.pos++
		return &node{op: opCall, name: name, arg: strings.Join(args, " ")}, nil
	}

	// Bare predicate with no argument.
	return &node{op: opCall, name: name}, nil
}
