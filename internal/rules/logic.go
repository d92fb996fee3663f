package rules

import (
	"fmt"
	"strings"
	"unicode"
)

// verdict is the three-valued result of a condition or expression. unknown
// dominates every operator so an unresolvable condition cannot be negated into
// a pass; skipped is neutral and drops out of AND, OR and NOT.
type verdict uint8

const (
	unsatisfied verdict = iota
	satisfied
	skipped
	unknown
)

func verdictOf(b bool) verdict {
	if b {
		return satisfied
	}
	return unsatisfied
}

// node is a parsed logic expression over rule ids.
type node interface {
	eval(leaf func(id string) verdict) verdict
}

type refNode struct{ id string }

type notNode struct{ x node }

type andNode struct{ l, r node }

type orNode struct{ l, r node }

func (n refNode) eval(leaf func(string) verdict) verdict { return leaf(n.id) }

func (n notNode) eval(leaf func(string) verdict) verdict {
	switch v := n.x.eval(leaf); v {
	case satisfied:
		return unsatisfied
	case unsatisfied:
		return satisfied
	default:
		return v
	}
}

func (n andNode) eval(leaf func(string) verdict) verdict {
	return combine(n.l.eval(leaf), n.r.eval(leaf), func(a, b bool) bool { return a && b })
}

func (n orNode) eval(leaf func(string) verdict) verdict {
	return combine(n.l.eval(leaf), n.r.eval(leaf), func(a, b bool) bool { return a || b })
}

// combine evaluates both operands, never short-circuiting, so an unknown
// operand poisons the result wherever it sits.
func combine(l, r verdict, op func(a, b bool) bool) verdict {
	switch {
	case l == unknown || r == unknown:
		return unknown
	case l == skipped:
		return r
	case r == skipped:
		return l
	default:
		return verdictOf(op(l == satisfied, r == satisfied))
	}
}

// parseLogic parses expressions such as "1 AND (2 OR NOT 3)". Precedence is
// NOT, then AND, then OR. Keywords are case-insensitive.
func parseLogic(expr string) (node, []string, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, nil, err
	}
	p := &logicParser{toks: toks}
	n, err := p.or()
	if err != nil {
		return nil, nil, err
	}
	if p.pos != len(p.toks) {
		return nil, nil, fmt.Errorf("unexpected token %q", p.toks[p.pos])
	}
	return n, p.refs, nil
}

func tokenize(expr string) ([]string, error) {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range expr {
		switch {
		case unicode.IsSpace(r):
			flush()
		case r == '(' || r == ')':
			flush()
			toks = append(toks, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.':
			cur.WriteRune(r)
		default:
			return nil, fmt.Errorf("invalid character %q", r)
		}
	}
	flush()
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return toks, nil
}

type logicParser struct {
	toks []string
	pos  int
	refs []string
}

func (p *logicParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *logicParser) keyword(kw string) bool {
	if strings.EqualFold(p.peek(), kw) {
		p.pos++
		return true
	}
	return false
}

func (p *logicParser) or() (node, error) {
	l, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		r, err := p.and()
		if err != nil {
			return nil, err
		}
		l = orNode{l, r}
	}
	return l, nil
}

func (p *logicParser) and() (node, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = andNode{l, r}
	}
	return l, nil
}

func (p *logicParser) unary() (node, error) {
	if p.keyword("NOT") {
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return notNode{x}, nil
	}
	return p.primary()
}

func (p *logicParser) primary() (node, error) {
	tok := p.peek()
	switch {
	case tok == "":
		return nil, fmt.Errorf("unexpected end of expression")
	case tok == "(":
		p.pos++
		n, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return n, nil
	case tok == ")", isKeyword(tok):
		return nil, fmt.Errorf("unexpected token %q", tok)
	default:
		p.pos++
		p.refs = append(p.refs, tok)
		return refNode{id: tok}, nil
	}
}

func isKeyword(tok string) bool {
	return strings.EqualFold(tok, "AND") || strings.EqualFold(tok, "OR") || strings.EqualFold(tok, "NOT")
}
