package lattice

import "math/big"

// Echelon brings the rows of basis into integer row echelon form using only
// unimodular row operations, so the returned rows span the same lattice.
// Zero rows are dropped, which leaves a linearly independent basis.
func Echelon(basis [][]*big.Int) ([][]*big.Int, error) {
	cols, err := checkRectangular(basis)
	if err != nil {
		return nil, err
	}
	rows := CloneMatrix(basis)

	r := 0
	for c := 0; c < cols && r < len(rows); c++ {
		for i := r + 1; i < len(rows); i++ {
			if rows[i][c].Sign() == 0 {
				continue
			}
			if rows[r][c].Sign() == 0 {
				rows[r], rows[i] = rows[i], rows[r]
				continue
			}
			a, b := rows[r][c], rows[i][c]
			x, y := new(big.Int), new(big.Int)
			g := new(big.Int).GCD(x, y, a, b)
			ag := new(big.Int).Quo(a, g)
			bg := new(big.Int).Quo(b, g)
			bg.Neg(bg)
			// [x y; -b/g a/g] has determinant 1
			rows[r], rows[i] = combine(x, rows[r], y, rows[i]), combine(bg, rows[r], ag, rows[i])
		}
		if rows[r][c].Sign() != 0 {
			r++
		}
	}
	return rows[:r], nil
}
