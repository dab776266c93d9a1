package expr

import (
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"cvp-knife/internal/cvp"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r):
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || unicode.IsLetter(rs[i]) || rs[i] == '_') {
				i++
			}
			toks = append(toks, token{tokNumber, string(rs[start:i]), start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || unicode.IsLetter(rs[i]) || rs[i] == '_') {
				i++
			}
			toks = append(toks, token{tokIdent, string(rs[start:i]), start})
		case r == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		default:
			start := i
			op := string(r)
			if i+1 < len(rs) {
				two := string(rs[i : i+2])
				switch two {
				case "**", "==", "!=", "<=", ">=":
					op = two
				}
			}
			if !strings.Contains("+-*^=<>", string(r)) && op != "!=" {
				return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, r, i)
			}
			i += len([]rune(op))
			toks = append(toks, token{tokOp, op, start})
		}
	}
	return append(toks, token{tokEOF, "", len(rs)}), nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

var relations = map[string]cvp.Relation{
	"==": cvp.RelationEqual,
	"=":  cvp.RelationEqual,
	"!=": cvp.RelationNotEqual,
	"<":  cvp.RelationLess,
	"<=": cvp.RelationLessEqual,
	">":  cvp.RelationGreater,
	">=": cvp.RelationGreaterEqual,
}

// Parse parses an integer polynomial expression, optionally a relation such
// as "3*x + y - 7 == 0". Powers use ^ or **.
func Parse(src string) (*Expression, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}

	lhs, err := p.sum()
	if err != nil {
		return nil, err
	}
	e := &Expression{Lhs: lhs, text: strings.TrimSpace(src)}

	if t := p.peek(); t.kind == tokOp {
		rel, ok := relations[t.text]
		if !ok {
			return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
		}
		p.next()
		rhs, err := p.sum()
		if err != nil {
			return nil, err
		}
		e.Rel, e.Rhs = rel, rhs
	}

	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
	}
	return e, nil
}

// MustParse is Parse that panics on error
func MustParse(src string) *Expression {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

func (p *parser) sum() (Node, error) {
	first, err := p.product()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.isOp("+", "-") {
		op := p.next().text
		n, err := p.product()
		if err != nil {
			return nil, err
		}
		if op == "-" {
			n = Neg(n)
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return Sum{Terms: terms}, nil
}

func (p *parser) product() (Node, error) {
	first, err := p.unary()
	if err != nil {
		return nil, err
	}
	factors := []Node{first}
	for p.isOp("*") {
		p.next()
		n, err := p.unary()
		if err != nil {
			return nil, err
		}
		factors = append(factors, n)
	}
	if len(factors) == 1 {
		return first, nil
	}
	return Product{Factors: factors}, nil
}

func (p *parser) unary() (Node, error) {
	if p.isOp("-") {
		p.next()
		n, err := p.unary()
		if err != nil {
			return nil, err
		}
		return Neg(n), nil
	}
	if p.isOp("+") {
		p.next()
		return p.unary()
	}
	return p.power()
}

func (p *parser) power() (Node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if !p.isOp("^", "**") {
		return base, nil
	}
	p.next()
	t := p.next()
	if t.kind != tokNumber {
		return nil, fmt.Errorf("%w: at %d", ErrExponent, t.pos)
	}
	v, ok := parseInt(t.text)
	if !ok || !v.IsInt64() || v.Int64() > MaxConstExponent {
		return nil, fmt.Errorf("%w: %q", ErrExponent, t.text)
	}
	return Power{Base: base, Exp: int(v.Int64())}, nil
}

func (p *parser) primary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, ok := parseInt(t.text)
		if !ok {
			return nil, fmt.Errorf("%w: bad number %q at %d", ErrSyntax, t.text, t.pos)
		}
		return Constant{Value: v}, nil
	case tokIdent:
		return Variable{Name: t.text}, nil
	case tokLParen:
		n, err := p.sum()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: expected ) at %d", ErrSyntax, closing.pos)
		}
		return n, nil
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of input", ErrSyntax)
	}
	return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
}

func parseInt(s string) (*big.Int, bool) {
	return ParseInt(s)
}

// ParseInt parses a signed decimal or 0x/0o/0b prefixed integer. A leading
// zero does not mean octal.
func ParseInt(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	base := 10
	if len(digits) > 1 && digits[0] == '0' && strings.ContainsRune("xXoObB", rune(digits[1])) {
		base = 0
	} else {
		s = strings.ReplaceAll(s, "_", "")
	}
	if digits == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, base)
}
