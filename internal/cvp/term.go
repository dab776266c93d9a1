package cvp

import (
	"fmt"
	"math/big"
	"strings"
)

// One is the monomial of the implicit constant symbol
const One = "1"

// Term is one (coefficient, monomial, degree) part of an expanded expression
type Term struct {
	Coeff    *big.Int
	Monomial string
	Degree   int
}

// NewTerm creates a degree-1 term coeff*name
func NewTerm(coeff int64, name string) Term {
	return Term{Coeff: big.NewInt(coeff), Monomial: name, Degree: 1}
}

// ConstTerm creates the constant term c
func ConstTerm(c *big.Int) Term {
	return Term{Coeff: new(big.Int).Set(c), Monomial: One}
}

// IsConstant reports whether t is the constant term
func (t Term) IsConstant() bool {
	return t.Monomial == One || t.Monomial == ""
}

// Relation is the relational operator of an expression, if any
type Relation int

const (
	RelationNone Relation = iota
	RelationEqual
	RelationNotEqual
	RelationLess
	RelationLessEqual
	RelationGreater
	RelationGreaterEqual
)

func (r Relation) String() string {
	switch r {
	case RelationEqual:
		return "=="
	case RelationNotEqual:
		return "!="
	case RelationLess:
		return "<"
	case RelationLessEqual:
		return "<="
	case RelationGreater:
		return ">"
	case RelationGreaterEqual:
		return ">="
	default:
		return ""
	}
}

// Expr is what the symbolic layer hands to the compiler. For relations
// Terms returns the expansion of lhs - rhs.
type Expr interface {
	String() string
	Relation() Relation
	Terms() ([]Term, error)
}

// Linear is an already decomposed expression
type Linear struct {
	Label string
	Parts []Term
	Rel   Relation
}

// Lin builds a Linear expression from terms
func Lin(parts ...Term) Linear {
	return Linear{Parts: parts}
}

// Relation implements Expr
func (l Linear) Relation() Relation { return l.Rel }

// Terms implements Expr
func (l Linear) Terms() ([]Term, error) { return l.Parts, nil }

func (l Linear) String() string {
	if l.Label != "" {
		return l.Label
	}
	var sb strings.Builder
	for i, t := range l.Parts {
		c := t.Coeff
		if i > 0 {
			if c.Sign() < 0 {
				sb.WriteString(" - ")
				c = new(big.Int).Neg(c)
			} else {
				sb.WriteString(" + ")
			}
		}
		switch {
		case t.IsConstant():
			sb.WriteString(c.String())
		case c.IsInt64() && c.Int64() == 1:
			sb.WriteString(t.Monomial)
		default:
			fmt.Fprintf(&sb, "%s*%s", c, t.Monomial)
		}
	}
	if l.Rel != RelationNone {
		fmt.Fprintf(&sb, " %s 0", l.Rel)
	}
	return sb.String()
}

// mergeTerms sums coefficients of repeated monomials, keeping first-seen order
func mergeTerms(terms []Term) []Term {
	index := make(map[string]int, len(terms))
	var out []Term
	for _, t := range terms {
		if t.Coeff == nil {
			continue
		}
		name := t.Monomial
		if t.IsConstant() {
			name = One
		}
		if i, ok := index[name]; ok {
			out[i].Coeff.Add(out[i].Coeff, t.Coeff)
			continue
		}
		index[name] = len(out)
		out = append(out, Term{Coeff: new(big.Int).Set(t.Coeff), Monomial: name, Degree: t.Degree})
	}
	return out
}
