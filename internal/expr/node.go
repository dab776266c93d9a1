package expr

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"cvp-knife/internal/cvp"
)

// Common errors
var (
	ErrSyntax   = errors.New("syntax error")
	ErrExponent = errors.New("exponent must be a small non-negative integer")
	ErrTooLarge = errors.New("expression too large")
)

// Expansion limits. MaxCoeffBits caps every coefficient, MaxTerms caps the
// number of monomials of any intermediate polynomial.
const (
	MaxExponent      = 64
	MaxConstExponent = 1 << 16
	MaxCoeffBits     = 1 << 20
	MaxTerms         = 1 << 16
)

// Node is one of Constant, Variable, Sum, Product, Power
type Node interface {
	String() string
	expand() (*poly, error)
}

// Constant is an integer literal
type Constant struct {
	Value *big.Int
}

// Variable is a named unknown
type Variable struct {
	Name string
}

// Sum adds its terms
type Sum struct {
	Terms []Node
}

// Product multiplies its factors
type Product struct {
	Factors []Node
}

// Power raises Base to a constant exponent
type Power struct {
	Base Node
	Exp  int
}

// Int returns a Constant node
func Int(v int64) Constant { return Constant{Value: big.NewInt(v)} }

// Big returns a Constant node holding a copy of v
func Big(v *big.Int) Constant { return Constant{Value: new(big.Int).Set(v)} }

// Var returns a Variable node
func Var(name string) Variable { return Variable{Name: name} }

// Add returns the sum of nodes
func Add(nodes ...Node) Sum { return Sum{Terms: nodes} }

// Mul returns the product of nodes
func Mul(nodes ...Node) Product { return Product{Factors: nodes} }

// Neg returns -n
func Neg(n Node) Product { return Product{Factors: []Node{Int(-1), n}} }

// Sub returns a - b
func Sub(a, b Node) Sum { return Sum{Terms: []Node{a, Neg(b)}} }

// Pow returns base^exp
func Pow(base Node, exp int) Power { return Power{Base: base, Exp: exp} }

func (c Constant) String() string { return c.Value.String() }

func (v Variable) String() string { return v.Name }

func (s Sum) String() string {
	parts := make([]string, len(s.Terms))
	for i, t := range s.Terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, " + ") + ")"
}

func (p Product) String() string {
	parts := make([]string, len(p.Factors))
	for i, f := range p.Factors {
		parts[i] = f.String()
	}
	return strings.Join(parts, "*")
}

func (p Power) String() string {
	return fmt.Sprintf("%s^%d", p.Base, p.Exp)
}

// Expression is an expression or relation handed to the compiler
type Expression struct {
	Lhs  Node
	Rel  cvp.Relation
	Rhs  Node
	text string
}

// E wraps a node as an expression
func E(n Node) *Expression {
	return &Expression{Lhs: n}
}

// Eq returns the relation lhs == rhs
func Eq(lhs, rhs Node) *Expression {
	return &Expression{Lhs: lhs, Rel: cvp.RelationEqual, Rhs: rhs}
}

// Relation implements cvp.Expr
func (e *Expression) Relation() cvp.Relation {
	return e.Rel
}

// Terms implements cvp.Expr, relations expand as lhs - rhs
func (e *Expression) Terms() ([]cvp.Term, error) {
	p, err := e.Lhs.expand()
	if err != nil {
		return nil, err
	}
	if e.Rel != cvp.RelationNone && e.Rhs != nil {
		q, err := e.Rhs.expand()
		if err != nil {
			return nil, err
		}
		p = p.add(q.scale(big.NewInt(-1)))
	}
	return p.terms(), nil
}

func (e *Expression) String() string {
	if e.text != "" {
		return e.text
	}
	if e.Rel == cvp.RelationNone || e.Rhs == nil {
		return e.Lhs.String()
	}
	return fmt.Sprintf("%s %s %s", e.Lhs, e.Rel, e.Rhs)
}
