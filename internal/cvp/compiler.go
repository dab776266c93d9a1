package cvp

import (
	"context"
	"fmt"
	"math/big"

	"cvp-knife/internal/lattice"
)

// State is the compiler lifecycle state
type State int

const (
	StateInput State = iota
	StateCompiled
	StateSolved
)

func (s State) String() string {
	switch s {
	case StateCompiled:
		return "compiled"
	case StateSolved:
		return "solved"
	default:
		return "input"
	}
}

// Warner receives non-fatal diagnostics
type Warner interface {
	Warn(format string, args ...interface{})
}

// Interval is an inclusive integer range
type Interval struct {
	Lower *big.Int
	Upper *big.Int
}

// Width returns Upper - Lower
func (iv Interval) Width() *big.Int {
	return new(big.Int).Sub(iv.Upper, iv.Lower)
}

// IsExact reports whether the interval holds a single value
func (iv Interval) IsExact() bool {
	return iv.Lower.Cmp(iv.Upper) == 0
}

// Contains reports whether v lies in the interval
func (iv Interval) Contains(v *big.Int) bool {
	return iv.Lower.Cmp(v) <= 0 && v.Cmp(iv.Upper) <= 0
}

func (iv Interval) String() string {
	return fmt.Sprintf("(%s, %s)", iv.Lower, iv.Upper)
}

// Option configures a Compiler
type Option func(*Compiler)

// WithReducer replaces the default LLL reducer
func WithReducer(r lattice.Reducer) Option {
	return func(c *Compiler) { c.reducer = r }
}

// WithWarner forwards warnings to w
func WithWarner(w Warner) Option {
	return func(c *Compiler) { c.warner = w }
}

// WithStrict turns non-linear terms and out-of-bounds results into errors
func WithStrict(strict bool) Option {
	return func(c *Compiler) { c.strict = strict }
}

// ExprOption configures a single AddExpr call
type ExprOption func(*exprOptions)

type exprOptions struct {
	mod    *big.Int
	lower  *big.Int
	upper  *big.Int
	traced *bool
}

// Mod makes the constraint hold modulo m
func Mod(m *big.Int) ExprOption {
	return func(o *exprOptions) { o.mod = m }
}

// Bounded bounds the value of the expression to [lo, hi]
func Bounded(lo, hi *big.Int) ExprOption {
	return func(o *exprOptions) { o.lower, o.upper = lo, hi }
}

// Traced overrides whether the constraint's value is reported
func Traced(trace bool) ExprOption {
	return func(o *exprOptions) { o.traced = &trace }
}

// Compiler collects affine constraints and turns them into a CVP instance.
// A Compiler is owned by a single goroutine.
type Compiler struct {
	state     State
	registry  *Registry
	entries   *SparseMatrix
	bounds    []Interval
	trace     []bool
	exprs     []string
	magnitude *big.Int

	reducer  lattice.Reducer
	warner   Warner
	strict   bool
	warnings []string

	compiled *Lattice
}

// NewCompiler creates a compiler in the input state
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		registry:  NewRegistry(),
		entries:   NewSparseMatrix(nil),
		magnitude: new(big.Int),
		reducer:   lattice.NewLLL(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state
func (c *Compiler) State() State {
	return c.state
}

// RegisterVariable returns the row of name, allocating it on first use
func (c *Compiler) RegisterVariable(name string) (int, error) {
	if c.state != StateInput {
		return 0, ErrAlreadyCompiled
	}
	return c.registry.Register(name), nil
}

// Registry exposes the variable registry for inspection
func (c *Compiler) Registry() *Registry {
	return c.registry
}

// Warnings returns all warnings raised so far
func (c *Compiler) Warnings() []string {
	out := make([]string, len(c.warnings))
	copy(out, c.warnings)
	return out
}

func (c *Compiler) warn(format string, args ...interface{}) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
	if c.warner != nil {
		c.warner.Warn(format, args...)
	}
}

// AddExpr adds one constraint. Without options the expression must equal
// zero and is not reported.
func (c *Compiler) AddExpr(e Expr, opts ...ExprOption) error {
	if c.state != StateInput {
		return ErrAlreadyCompiled
	}

	o := exprOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	switch rel := e.Relation(); rel {
	case RelationNone, RelationEqual:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedRelation, rel)
	}

	if o.mod != nil && o.mod.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidModulus, o.mod)
	}
	lower, upper := o.lower, o.upper
	if lower == nil {
		lower = new(big.Int)
	}
	if upper == nil {
		upper = new(big.Int)
	}
	if lower.Cmp(upper) > 0 {
		return fmt.Errorf("%w: (%s, %s)", ErrInvalidBounds, lower, upper)
	}

	raw, err := e.Terms()
	if err != nil {
		return fmt.Errorf("expanding %s: %w", e, err)
	}
	terms := mergeTerms(raw)

	variables := 0
	for _, t := range terms {
		if !t.IsConstant() && t.Coeff.Sign() != 0 {
			variables++
		}
	}
	if variables == 0 {
		return fmt.Errorf("%w: %s", ErrConstantExpression, e)
	}

	col := len(c.bounds)
	for _, t := range terms {
		if t.Coeff.Sign() != 0 && t.Degree >= 2 {
			if c.strict {
				return fmt.Errorf("%w: %s in %s", ErrNonLinear, t.Monomial, e)
			}
			c.warn("expression %d has component %s with degree >= 2", col, t.Monomial)
		}
	}

	for _, t := range terms {
		if t.Coeff.Sign() == 0 {
			continue
		}
		coeff := t.Coeff
		if o.mod != nil {
			coeff = new(big.Int).Mod(coeff, o.mod)
			if coeff.Sign() == 0 {
				continue
			}
		}
		c.entries.Set(c.registry.Register(t.Monomial), col, coeff)
		if abs := new(big.Int).Abs(coeff); abs.Cmp(c.magnitude) > 0 {
			c.magnitude = abs
		}
	}

	if o.mod != nil {
		row := c.registry.AddAuxRow(fmt.Sprintf("%% col %d", col))
		c.entries.Set(row, col, o.mod)
	}

	c.bounds = append(c.bounds, Interval{Lower: new(big.Int).Set(lower), Upper: new(big.Int).Set(upper)})

	trace := lower.Sign() != 0 || upper.Sign() != 0
	if o.traced != nil {
		trace = *o.traced
	}
	c.trace = append(c.trace, trace)
	c.exprs = append(c.exprs, e.String())
	return nil
}

// Compile fixes the lattice. It runs once.
func (c *Compiler) Compile() (*Lattice, error) {
	if c.state != StateInput {
		return nil, ErrAlreadyCompiled
	}
	if len(c.bounds) == 0 {
		return nil, ErrNoConstraints
	}

	lat, err := c.calibrate()
	if err != nil {
		return nil, err
	}
	c.compiled = lat
	c.state = StateCompiled
	return lat, nil
}

// Lattice returns the compiled lattice, nil before Compile
func (c *Compiler) Lattice() *Lattice {
	return c.compiled
}

// Solve runs the closest vector search on the compiled lattice and decodes it
func (c *Compiler) Solve(ctx context.Context) (*Solution, error) {
	if c.state == StateInput {
		return nil, ErrNotCompiled
	}
	sol, err := c.compiled.solve(ctx, c.reducer, c.strict, c.warn)
	if err != nil {
		return nil, err
	}
	c.state = StateSolved
	return sol, nil
}

func (c *Compiler) String() string {
	traced := 0
	for _, t := range c.trace {
		if t {
			traced++
		}
	}
	return fmt.Sprintf("cvp.Compiler(%d expressions with %d traced across %d variables)",
		len(c.exprs), traced, len(c.registry.vars))
}
