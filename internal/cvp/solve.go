package cvp

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"cvp-knife/internal/lattice"
)

// Format selects how a solution is reported
type Format string

const (
	FormatList    Format = "list"
	FormatMapping Format = "mapping"
)

// ParseFormat parses a format name, "dict" is accepted for mapping
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "list":
		return FormatList, nil
	case "mapping", "dict", "map":
		return FormatMapping, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Solution is a decoded closest vector
type Solution struct {
	// Raw is the closest lattice vector as returned by the search
	Raw []*big.Int
	// Values holds the unscaled value of every added constraint, in order
	Values   []*big.Int
	Traced   []bool
	Exprs    []string
	Warnings []string
}

// List returns the values of traced constraints in insertion order
func (s *Solution) List() []*big.Int {
	out := []*big.Int{}
	for i, v := range s.Values {
		if s.Traced[i] {
			out = append(out, v)
		}
	}
	return out
}

// Mapping returns expression -> value for traced constraints
func (s *Solution) Mapping() map[string]*big.Int {
	out := make(map[string]*big.Int)
	for i, v := range s.Values {
		if s.Traced[i] {
			out[s.Exprs[i]] = v
		}
	}
	return out
}

// Result returns List or Mapping depending on f
func (s *Solution) Result(f Format) interface{} {
	if f == FormatMapping {
		return s.Mapping()
	}
	return s.List()
}

// Solve runs the search with r and decodes the result
func (l *Lattice) Solve(ctx context.Context, r lattice.Reducer) (*Solution, error) {
	return l.solve(ctx, r, false, nil)
}

func (l *Lattice) solve(ctx context.Context, r lattice.Reducer, strict bool, warn func(string, ...interface{})) (*Solution, error) {
	if r == nil {
		r = lattice.NewLLL()
	}
	raw, err := lattice.ClosestVector(ctx, r, l.basis, l.target)
	if err != nil {
		return nil, err
	}

	sol := &Solution{
		Raw:    raw,
		Traced: append([]bool(nil), l.traced...),
		Exprs:  append([]string(nil), l.exprs...),
	}
	rem := new(big.Int)
	values := make([]*big.Int, len(raw))
	for col, v := range raw {
		q, m := new(big.Int).QuoRem(v, l.scales[col], rem)
		if m.Sign() != 0 {
			return nil, fmt.Errorf("%w: column %d value %s is not a multiple of %s",
				ErrSolutionOutOfScale, col, v, l.scales[col])
		}
		values[col] = q
	}

	for col, v := range values {
		b := l.bounds[col]
		if b.Contains(v) {
			continue
		}
		if b.IsExact() {
			return nil, fmt.Errorf("%w: exact column %d decoded to %s, want %s",
				ErrSolutionOutOfScale, col, v, b.Lower)
		}
		if strict {
			return nil, fmt.Errorf("%w: expression %d value %s outside %s", ErrOutOfBounds, col, v, b)
		}
		msg := fmt.Sprintf("expression %d solution was out of bounds: %s not in %s", col, v, b)
		sol.Warnings = append(sol.Warnings, msg)
		if warn != nil {
			warn("%s", msg)
		}
	}

	sol.Values = values[:len(l.traced)]
	return sol, nil
}
