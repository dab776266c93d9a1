package problem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"cvp-knife/internal/cvp"
	"cvp-knife/internal/expr"
)

// Common errors
var (
	ErrEmpty          = errors.New("system has no constraints")
	ErrTooLarge       = errors.New("system has too many constraints")
	ErrInvalidInteger = errors.New("invalid integer")
	ErrInvalidBounds  = errors.New("bounds must be a [lower, upper] pair")
	ErrBlankExpr      = errors.New("empty expression")
)

// Integer is an arbitrary precision integer carried as text. JSON numbers
// and strings are both accepted; decimal and 0x forms parse.
type Integer string

// UnmarshalJSON accepts "123", 123 and "0x7b"
func (i *Integer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*i = Integer(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInteger, b)
	}
	*i = Integer(n.String())
	return nil
}

// Big parses the integer
func (i Integer) Big() (*big.Int, error) {
	v, ok := expr.ParseInt(string(i))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInteger, string(i))
	}
	return v, nil
}

// IntegerOf formats v for a problem file
func IntegerOf(v *big.Int) Integer {
	return Integer(v.String())
}

// Constraint is one add_expr call
type Constraint struct {
	Expr   string    `json:"expr" yaml:"expr"`
	Mod    Integer   `json:"mod,omitempty" yaml:"mod,omitempty"`
	Bounds []Integer `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	Trace  *bool     `json:"trace,omitempty" yaml:"trace,omitempty"`
}

// System is a named list of constraints
type System struct {
	Name        string       `json:"name" yaml:"name"`
	Format      string       `json:"format,omitempty" yaml:"format,omitempty"`
	Constraints []Constraint `json:"constraints" yaml:"constraints"`
}

// Result is the reportable outcome of solving a System. Values always
// holds the traced values in insertion order, Mapping is filled for the
// mapping format only.
type Result struct {
	Name     string            `json:"name"`
	Format   cvp.Format        `json:"format"`
	Values   []string          `json:"values"`
	Mapping  map[string]string `json:"mapping,omitempty"`
	Labels   []string          `json:"labels"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Decode reads a system from YAML or JSON
func Decode(data []byte) (*System, error) {
	var sys System
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &sys); err != nil {
			return nil, fmt.Errorf("decoding json: %w", err)
		}
		return &sys, nil
	}
	if err := yaml.Unmarshal(data, &sys); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	return &sys, nil
}

// Load reads a system from a file
func Load(path string) (*System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sys, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sys.Name == "" {
		sys.Name = path
	}
	return sys, nil
}

// Validate checks the system without building it. maxConstraints <= 0 means no limit.
func (s *System) Validate(maxConstraints int) error {
	if len(s.Constraints) == 0 {
		return ErrEmpty
	}
	if maxConstraints > 0 && len(s.Constraints) > maxConstraints {
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, len(s.Constraints), maxConstraints)
	}
	if _, err := cvp.ParseFormat(s.Format); err != nil {
		return err
	}
	for i, c := range s.Constraints {
		if strings.TrimSpace(c.Expr) == "" {
			return fmt.Errorf("constraint %d: %w", i, ErrBlankExpr)
		}
		if c.Mod != "" {
			if _, err := c.Mod.Big(); err != nil {
				return fmt.Errorf("constraint %d: %w", i, err)
			}
		}
		if _, _, err := c.bounds(); err != nil {
			return fmt.Errorf("constraint %d: %w", i, err)
		}
	}
	return nil
}

func (c Constraint) bounds() (*big.Int, *big.Int, error) {
	switch len(c.Bounds) {
	case 0:
		return nil, nil, nil
	case 2:
		lo, err := c.Bounds[0].Big()
		if err != nil {
			return nil, nil, err
		}
		hi, err := c.Bounds[1].Big()
		if err != nil {
			return nil, nil, err
		}
		return lo, hi, nil
	}
	return nil, nil, fmt.Errorf("%w: got %d values", ErrInvalidBounds, len(c.Bounds))
}

// Fingerprint identifies the system by the Keccak256 of its JSON encoding
func (s *System) Fingerprint() string {
	data, _ := json.Marshal(s)
	return hexutil.Encode(crypto.Keccak256(data))
}

// Build parses every constraint and adds it to a new compiler
func (s *System) Build(opts ...cvp.Option) (*cvp.Compiler, error) {
	c := cvp.NewCompiler(opts...)
	for i, con := range s.Constraints {
		e, err := expr.Parse(con.Expr)
		if err != nil {
			return nil, fmt.Errorf("constraint %d: %w", i, err)
		}

		var eopts []cvp.ExprOption
		if con.Mod != "" {
			m, err := con.Mod.Big()
			if err != nil {
				return nil, fmt.Errorf("constraint %d: %w", i, err)
			}
			eopts = append(eopts, cvp.Mod(m))
		}
		lo, hi, err := con.bounds()
		if err != nil {
			return nil, fmt.Errorf("constraint %d: %w", i, err)
		}
		if lo != nil {
			eopts = append(eopts, cvp.Bounded(lo, hi))
		}
		if con.Trace != nil {
			eopts = append(eopts, cvp.Traced(*con.Trace))
		}

		if err := c.AddExpr(e, eopts...); err != nil {
			return nil, fmt.Errorf("constraint %d (%s): %w", i, con.Expr, err)
		}
	}
	return c, nil
}

// Run builds, compiles and solves the system
func (s *System) Run(ctx context.Context, opts ...cvp.Option) (*Result, error) {
	format, err := cvp.ParseFormat(s.Format)
	if err != nil {
		return nil, err
	}
	c, err := s.Build(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := c.Compile(); err != nil {
		return nil, err
	}
	sol, err := c.Solve(ctx)
	if err != nil {
		return nil, err
	}
	return NewResult(s.Name, format, sol), nil
}

// Inspect builds and compiles the system and renders its lattice to w.
// A non-nil mod reduces the printed entries.
func (s *System) Inspect(w io.Writer, mod *big.Int, opts ...cvp.Option) error {
	c, err := s.Build(opts...)
	if err != nil {
		return err
	}
	lat, err := c.Compile()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, c); err != nil {
		return err
	}
	return lat.Render(w, mod)
}

// NewResult converts a solution to its reportable form
func NewResult(name string, format cvp.Format, sol *cvp.Solution) *Result {
	res := &Result{Name: name, Format: format, Values: []string{}, Labels: []string{}, Warnings: sol.Warnings}
	for i, v := range sol.Values {
		if !sol.Traced[i] {
			continue
		}
		res.Labels = append(res.Labels, sol.Exprs[i])
		res.Values = append(res.Values, v.String())
		if format == cvp.FormatMapping {
			if res.Mapping == nil {
				res.Mapping = make(map[string]string)
			}
			res.Mapping[sol.Exprs[i]] = v.String()
		}
	}
	return res
}
