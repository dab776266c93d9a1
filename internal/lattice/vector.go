package lattice

import (
	"errors"
	"math/big"
)

// Common errors
var (
	ErrEmptyBasis = errors.New("empty basis")
	ErrDimension  = errors.New("inconsistent dimensions")
	ErrDependent  = errors.New("basis rows are linearly dependent")
)

// Dot returns the inner product of two integer vectors of equal length
func Dot(a, b []*big.Int) *big.Int {
	sum := new(big.Int)
	tmp := new(big.Int)
	for i := range a {
		sum.Add(sum, tmp.Mul(a[i], b[i]))
	}
	return sum
}

func dotRat(a, b []*big.Rat) *big.Rat {
	sum := new(big.Rat)
	tmp := new(big.Rat)
	for i := range a {
		sum.Add(sum, tmp.Mul(a[i], b[i]))
	}
	return sum
}

func dotIntRat(a []*big.Int, b []*big.Rat) *big.Rat {
	sum := new(big.Rat)
	tmp := new(big.Rat)
	x := new(big.Rat)
	for i := range a {
		if a[i].Sign() == 0 || b[i].Sign() == 0 {
			continue
		}
		sum.Add(sum, tmp.Mul(x.SetInt(a[i]), b[i]))
	}
	return sum
}

// CloneVector returns a deep copy of v
func CloneVector(v []*big.Int) []*big.Int {
	out := make([]*big.Int, len(v))
	for i, x := range v {
		out[i] = new(big.Int).Set(x)
	}
	return out
}

// CloneMatrix returns a deep copy of m
func CloneMatrix(m [][]*big.Int) [][]*big.Int {
	out := make([][]*big.Int, len(m))
	for i, row := range m {
		out[i] = CloneVector(row)
	}
	return out
}

// Zero returns a vector of n zeros
func Zero(n int) []*big.Int {
	out := make([]*big.Int, n)
	for i := range out {
		out[i] = new(big.Int)
	}
	return out
}

// subMul sets dst = dst - q*src
func subMul(dst, src []*big.Int, q *big.Int) {
	tmp := new(big.Int)
	for i := range dst {
		if src[i].Sign() == 0 {
			continue
		}
		dst[i].Sub(dst[i], tmp.Mul(q, src[i]))
	}
}

// combine returns x*a + y*b
func combine(x *big.Int, a []*big.Int, y *big.Int, b []*big.Int) []*big.Int {
	out := make([]*big.Int, len(a))
	tmp := new(big.Int)
	for i := range a {
		out[i] = new(big.Int).Mul(x, a[i])
		out[i].Add(out[i], tmp.Mul(y, b[i]))
	}
	return out
}

// roundRat rounds x to the nearest integer, halves away from zero
func roundRat(x *big.Rat) *big.Int {
	num := new(big.Int).Abs(x.Num())
	den := x.Denom()
	// floor((2|p| + q) / 2q)
	num.Lsh(num, 1)
	num.Add(num, den)
	q := num.Quo(num, new(big.Int).Lsh(den, 1))
	if x.Sign() < 0 {
		q.Neg(q)
	}
	return q
}

func checkRectangular(m [][]*big.Int) (int, error) {
	if len(m) == 0 {
		return 0, ErrEmptyBasis
	}
	cols := len(m[0])
	for _, row := range m {
		if len(row) != cols {
			return 0, ErrDimension
		}
	}
	return cols, nil
}
