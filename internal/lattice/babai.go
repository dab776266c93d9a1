package lattice

import (
	"context"
	"math/big"
)

// GramSchmidt returns the un-normalized Gram-Schmidt orthogonalization of rows
func GramSchmidt(rows [][]*big.Int) [][]*big.Rat {
	g := make([][]*big.Rat, len(rows))
	norms := make([]*big.Rat, len(rows))
	tmp := new(big.Rat)
	for i, row := range rows {
		v := make([]*big.Rat, len(row))
		for c, x := range row {
			v[c] = new(big.Rat).SetInt(x)
		}
		for j := 0; j < i; j++ {
			if norms[j].Sign() == 0 {
				continue
			}
			mu := dotIntRat(row, g[j])
			if mu.Sign() == 0 {
				continue
			}
			mu.Quo(mu, norms[j])
			for c := range v {
				if g[j][c].Sign() == 0 {
					continue
				}
				v[c].Sub(v[c], tmp.Mul(mu, g[j][c]))
			}
		}
		g[i] = v
		norms[i] = dotRat(v, v)
	}
	return g
}

// ClosestVector returns a lattice vector close to target using Babai's
// nearest plane procedure over the basis reduced by r
func ClosestVector(ctx context.Context, r Reducer, basis [][]*big.Int, target []*big.Int) ([]*big.Int, error) {
	cols, err := checkRectangular(basis)
	if err != nil {
		return nil, err
	}
	if len(target) != cols {
		return nil, ErrDimension
	}

	reduced, err := r.Reduce(ctx, basis)
	if err != nil {
		return nil, err
	}
	if len(reduced) == 0 {
		return Zero(cols), nil
	}
	for _, row := range reduced {
		if len(row) != cols {
			return nil, ErrDimension
		}
	}

	g := GramSchmidt(reduced)
	diff := CloneVector(target)
	for i := len(reduced) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		norm := dotRat(g[i], g[i])
		if norm.Sign() == 0 {
			continue
		}
		c := roundRat(norm.Quo(dotIntRat(diff, g[i]), norm))
		if c.Sign() == 0 {
			continue
		}
		subMul(diff, reduced[i], c)
	}

	out := make([]*big.Int, cols)
	for i := range out {
		out[i] = new(big.Int).Sub(target[i], diff[i])
	}
	return out, nil
}
