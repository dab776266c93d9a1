package lattice

import (
	"context"
	"math/big"
)

// Reducer turns a generating set of a lattice into a reduced basis of the
// same lattice
type Reducer interface {
	Reduce(ctx context.Context, basis [][]*big.Int) ([][]*big.Int, error)
}

// ReducerFunc adapts a function to the Reducer interface
type ReducerFunc func(ctx context.Context, basis [][]*big.Int) ([][]*big.Int, error)

// Reduce calls f
func (f ReducerFunc) Reduce(ctx context.Context, basis [][]*big.Int) ([][]*big.Int, error) {
	return f(ctx, basis)
}

// LLL is the integral Lenstra-Lenstra-Lovász reduction. Dependent input rows
// are removed by an echelon pass first.
type LLL struct {
	// Delta is the Lovász constant in (1/4, 1). Nil means 99/100.
	Delta *big.Rat
}

// NewLLL returns an LLL reducer with the default Lovász constant
func NewLLL() LLL {
	return LLL{}
}

// Reduce implements Reducer
func (l LLL) Reduce(ctx context.Context, basis [][]*big.Int) ([][]*big.Int, error) {
	independent, err := Echelon(basis)
	if err != nil {
		return nil, err
	}
	if len(independent) < 2 {
		return independent, nil
	}

	delta := l.Delta
	if delta == nil {
		delta = big.NewRat(99, 100)
	}
	st := newLLLState(independent)
	if err := st.run(ctx, delta.Num(), delta.Denom()); err != nil {
		return nil, err
	}
	return st.b[1:], nil
}

// lllState holds the integral Gram-Schmidt data, 1-based like the textbook
// presentation: d[i] is the Gram determinant of b[1..i] and lam[k][j] = mu[k][j]*d[j].
type lllState struct {
	n   int
	b   [][]*big.Int
	d   []*big.Int
	lam [][]*big.Int
}

func newLLLState(rows [][]*big.Int) *lllState {
	n := len(rows)
	st := &lllState{
		n:   n,
		b:   make([][]*big.Int, n+1),
		d:   make([]*big.Int, n+1),
		lam: make([][]*big.Int, n+1),
	}
	for i := 1; i <= n; i++ {
		st.b[i] = rows[i-1]
		st.d[i] = new(big.Int)
		st.lam[i] = make([]*big.Int, n+1)
		for j := range st.lam[i] {
			st.lam[i][j] = new(big.Int)
		}
	}
	st.d[0] = big.NewInt(1)
	return st
}

func (st *lllState) run(ctx context.Context, num, den *big.Int) error {
	st.d[1] = Dot(st.b[1], st.b[1])
	if st.d[1].Sign() == 0 {
		return ErrDependent
	}

	lhs, rhs, tmp := new(big.Int), new(big.Int), new(big.Int)
	k, kmax := 2, 1
	for k <= st.n {
		if err := ctx.Err(); err != nil {
			return err
		}
		if k > kmax {
			kmax = k
			if err := st.extend(k); err != nil {
				return err
			}
		}

		st.sizeReduce(k, k-1)

		// Lovász: den*d_k*d_{k-2} >= num*d_{k-1}^2 - den*lam_{k,k-1}^2
		lhs.Mul(st.d[k], st.d[k-2])
		lhs.Mul(lhs, den)
		rhs.Mul(st.d[k-1], st.d[k-1])
		rhs.Mul(rhs, num)
		tmp.Mul(st.lam[k][k-1], st.lam[k][k-1])
		tmp.Mul(tmp, den)
		rhs.Sub(rhs, tmp)
		if lhs.Cmp(rhs) < 0 {
			st.swap(k, kmax)
			if k > 2 {
				k--
			}
			continue
		}

		for l := k - 2; l >= 1; l-- {
			st.sizeReduce(k, l)
		}
		k++
	}
	return nil
}

// extend computes lam[k][1..k-1] and d[k] for a newly reached row
func (st *lllState) extend(k int) error {
	for j := 1; j <= k; j++ {
		u := Dot(st.b[k], st.b[j])
		for i := 1; i < j; i++ {
			t := new(big.Int).Mul(st.d[i], u)
			t.Sub(t, new(big.Int).Mul(st.lam[k][i], st.lam[j][i]))
			u = t.Quo(t, st.d[i-1])
		}
		if j < k {
			st.lam[k][j] = u
		} else {
			if u.Sign() == 0 {
				return ErrDependent
			}
			st.d[k] = u
		}
	}
	return nil
}

func (st *lllState) sizeReduce(k, l int) {
	lam := st.lam[k][l]
	twice := new(big.Int).Abs(lam)
	twice.Lsh(twice, 1)
	if twice.Cmp(st.d[l]) <= 0 {
		return
	}
	// q = floor((2*lam + d_l) / (2*d_l))
	q := new(big.Int).Lsh(lam, 1)
	q.Add(q, st.d[l])
	q.Div(q, new(big.Int).Lsh(st.d[l], 1))

	subMul(st.b[k], st.b[l], q)
	lam.Sub(lam, new(big.Int).Mul(q, st.d[l]))
	tmp := new(big.Int)
	for i := 1; i < l; i++ {
		st.lam[k][i].Sub(st.lam[k][i], tmp.Mul(q, st.lam[l][i]))
	}
}

func (st *lllState) swap(k, kmax int) {
	st.b[k], st.b[k-1] = st.b[k-1], st.b[k]
	for j := 1; j <= k-2; j++ {
		st.lam[k][j], st.lam[k-1][j] = st.lam[k-1][j], st.lam[k][j]
	}

	lam := st.lam[k][k-1]
	bNew := new(big.Int).Mul(st.d[k-2], st.d[k])
	bNew.Add(bNew, new(big.Int).Mul(lam, lam))
	bNew.Quo(bNew, st.d[k-1])

	for i := k + 1; i <= kmax; i++ {
		t := st.lam[i][k]
		nk := new(big.Int).Mul(st.d[k], st.lam[i][k-1])
		nk.Sub(nk, new(big.Int).Mul(lam, t))
		nk.Quo(nk, st.d[k-1])

		nk1 := new(big.Int).Mul(bNew, t)
		nk1.Add(nk1, new(big.Int).Mul(lam, nk))
		nk1.Quo(nk1, st.d[k])

		st.lam[i][k] = nk
		st.lam[i][k-1] = nk1
	}
	st.d[k-1] = bNew
}
