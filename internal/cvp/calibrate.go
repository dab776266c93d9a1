package cvp

import (
	"math/big"
)

// calibrate derives per-column scales and assembles the scaled lattice
func (c *Compiler) calibrate() (*Lattice, error) {
	two := big.NewInt(2)

	// lcm of 2*width over bounded columns; the slack every column is normalized to
	expected := big.NewInt(1)
	for _, b := range c.bounds {
		if b.IsExact() {
			continue
		}
		expected = lcm(expected, new(big.Int).Mul(two, b.Width()))
	}

	magnitude := new(big.Int).Set(c.magnitude)
	if expected.Cmp(magnitude) > 0 {
		magnitude.Set(expected)
	}
	bits := uint(magnitude.BitLen())
	large := new(big.Int).Lsh(big.NewInt(1), 2*bits)
	huge := new(big.Int).Lsh(big.NewInt(1), 3*bits)

	bounds := make([]Interval, len(c.bounds), len(c.bounds)+1)
	copy(bounds, c.bounds)
	scales := make([]*big.Int, len(bounds), len(bounds)+1)
	for col, b := range bounds {
		if b.IsExact() {
			scales[col] = large
		} else {
			scales[col] = new(big.Int).Quo(expected, b.Width())
		}
	}

	entries := c.entries
	if row, ok := c.registry.Lookup(One); ok {
		col := len(bounds)
		entries.Set(row, col, big.NewInt(1))
		bounds = append(bounds, Interval{Lower: big.NewInt(1), Upper: big.NewInt(1)})
		scales = append(scales, huge)
	}

	target := make([]*big.Int, len(bounds))
	for col, b := range bounds {
		mid := new(big.Int).Add(b.Lower, b.Upper)
		mid.Mul(mid, scales[col])
		target[col] = mid.Div(mid, two)
	}

	rows := c.registry.Len()
	basis, err := assemble(entries, rows, len(bounds), scales)
	if err != nil {
		return nil, err
	}

	labels := make([]string, rows)
	for i := range labels {
		labels[i] = c.registry.Label(i)
	}

	return &Lattice{
		basis:         basis,
		target:        target,
		scales:        scales,
		bounds:        bounds,
		labels:        labels,
		traced:        append([]bool(nil), c.trace...),
		exprs:         append([]string(nil), c.exprs...),
		expectedError: expected,
		large:         large,
		huge:          huge,
	}, nil
}

// assemble materializes the scaled basis
func assemble(entries *SparseMatrix, rows, cols int, scales []*big.Int) ([][]*big.Int, error) {
	return entries.Dense(rows, cols, scales)
}

func lcm(a, b *big.Int) *big.Int {
	if a.Sign() == 0 || b.Sign() == 0 {
		return new(big.Int)
	}
	g := new(big.Int).GCD(nil, nil, a, b)
	out := new(big.Int).Quo(a, g)
	out.Mul(out, b)
	return out.Abs(out)
}
