package cvp

import (
	"fmt"
	"math/big"

	"cvp-knife/internal/lattice"
)

type cell struct {
	row, col int
}

// SparseMatrix maps (row, col) to a coefficient, cells not set read as fill
type SparseMatrix struct {
	data map[cell]*big.Int
	fill *big.Int
}

// NewSparseMatrix creates an empty sparse matrix with the given fill value
func NewSparseMatrix(fill *big.Int) *SparseMatrix {
	if fill == nil {
		fill = new(big.Int)
	}
	return &SparseMatrix{data: make(map[cell]*big.Int), fill: fill}
}

// Get returns the value at (row, col)
func (m *SparseMatrix) Get(row, col int) *big.Int {
	if v, ok := m.data[cell{row, col}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int).Set(m.fill)
}

// Set stores v at (row, col)
func (m *SparseMatrix) Set(row, col int, v *big.Int) {
	m.data[cell{row, col}] = new(big.Int).Set(v)
}

// Len returns the number of stored cells
func (m *SparseMatrix) Len() int {
	return len(m.data)
}

// Shape returns the smallest (rows, cols) holding every stored cell
func (m *SparseMatrix) Shape() (int, int) {
	rows, cols := 0, 0
	for c := range m.data {
		if c.row >= rows {
			rows = c.row + 1
		}
		if c.col >= cols {
			cols = c.col + 1
		}
	}
	return rows, cols
}

// Build materializes the matrix at the shape inferred from the stored cells
func (m *SparseMatrix) Build() ([][]*big.Int, error) {
	if len(m.data) == 0 {
		return nil, fmt.Errorf("%w: no cells set", lattice.ErrEmptyBasis)
	}
	rows, cols := m.Shape()
	return m.Dense(rows, cols, nil)
}

// Dense materializes the matrix with the given shape, multiplying column c
// by scales[c] when scales is not nil
func (m *SparseMatrix) Dense(rows, cols int, scales []*big.Int) ([][]*big.Int, error) {
	if scales != nil && len(scales) != cols {
		return nil, fmt.Errorf("%w: %d scales for %d columns", ErrInternal, len(scales), cols)
	}
	out := make([][]*big.Int, rows)
	for i := range out {
		out[i] = make([]*big.Int, cols)
		for j := range out[i] {
			out[i][j] = new(big.Int).Set(m.fill)
			if scales != nil {
				out[i][j].Mul(out[i][j], scales[j])
			}
		}
	}
	for c, v := range m.data {
		if c.row >= rows || c.col >= cols {
			return nil, fmt.Errorf("%w: cell (%d, %d) outside %dx%d", ErrInternal, c.row, c.col, rows, cols)
		}
		out[c.row][c.col].Set(v)
		if scales != nil {
			out[c.row][c.col].Mul(out[c.row][c.col], scales[c.col])
		}
	}
	return out, nil
}
