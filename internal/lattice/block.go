package lattice

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrBlockType is returned for cells that are neither integer matrices nor scalars
var ErrBlockType = errors.New("unsupported block type")

type block struct {
	matrix [][]*big.Int
	scalar *big.Int
}

// Expand assembles a block matrix. A cell is an integer matrix ([][]*big.Int
// or [][]int64) or a scalar (*big.Int, int, int64) repeated over the cell,
// nil is a zero block. Each block row needs at least one matrix to fix its
// height and each block column one to fix its width. Matrices sharing a
// block row or block column must agree.
func Expand(blocks [][]any) ([][]*big.Int, error) {
	if len(blocks) == 0 || len(blocks[0]) == 0 {
		return nil, ErrEmptyBasis
	}
	width := len(blocks[0])

	cells := make([][]block, len(blocks))
	heights := make([]int, len(blocks))
	widths := make([]int, width)
	for i := range heights {
		heights[i] = -1
	}
	for j := range widths {
		widths[j] = -1
	}

	for i, row := range blocks {
		if len(row) != width {
			return nil, fmt.Errorf("%w: block row %d has %d cells, want %d", ErrDimension, i, len(row), width)
		}
		cells[i] = make([]block, width)
		for j, v := range row {
			b, err := toBlock(v)
			if err != nil {
				return nil, fmt.Errorf("block (%d, %d): %w", i, j, err)
			}
			cells[i][j] = b
			if b.matrix == nil {
				continue
			}
			r, c := len(b.matrix), len(b.matrix[0])
			if heights[i] >= 0 && heights[i] != r {
				return nil, fmt.Errorf("%w: block row %d has heights %d and %d", ErrDimension, i, heights[i], r)
			}
			if widths[j] >= 0 && widths[j] != c {
				return nil, fmt.Errorf("%w: block column %d has widths %d and %d", ErrDimension, j, widths[j], c)
			}
			heights[i], widths[j] = r, c
		}
	}

	rows, cols := 0, 0
	for i, h := range heights {
		if h < 0 {
			return nil, fmt.Errorf("%w: block row %d has no matrix to size it", ErrDimension, i)
		}
		rows += h
	}
	for j, w := range widths {
		if w < 0 {
			return nil, fmt.Errorf("%w: block column %d has no matrix to size it", ErrDimension, j)
		}
		cols += w
	}

	out := make([][]*big.Int, 0, rows)
	for i, h := range heights {
		for r := 0; r < h; r++ {
			line := make([]*big.Int, 0, cols)
			for j, w := range widths {
				b := cells[i][j]
				for c := 0; c < w; c++ {
					if b.matrix != nil {
						line = append(line, new(big.Int).Set(b.matrix[r][c]))
					} else {
						line = append(line, new(big.Int).Set(b.scalar))
					}
				}
			}
			out = append(out, line)
		}
	}
	return out, nil
}

func toBlock(v any) (block, error) {
	switch x := v.(type) {
	case nil:
		return block{scalar: new(big.Int)}, nil
	case *big.Int:
		if x == nil {
			return block{scalar: new(big.Int)}, nil
		}
		return block{scalar: new(big.Int).Set(x)}, nil
	case int:
		return block{scalar: big.NewInt(int64(x))}, nil
	case int64:
		return block{scalar: big.NewInt(x)}, nil
	case [][]*big.Int:
		m := make([][]*big.Int, len(x))
		for i, row := range x {
			m[i] = make([]*big.Int, len(row))
			for j, e := range row {
				m[i][j] = new(big.Int)
				if e != nil {
					m[i][j].Set(e)
				}
			}
		}
		return matrixBlock(m)
	case [][]int64:
		m := make([][]*big.Int, len(x))
		for i, row := range x {
			m[i] = ints64(row)
		}
		return matrixBlock(m)
	}
	return block{}, fmt.Errorf("%w: %T", ErrBlockType, v)
}

func matrixBlock(m [][]*big.Int) (block, error) {
	cols, err := checkRectangular(m)
	if err != nil {
		return block{}, err
	}
	if cols == 0 {
		return block{}, fmt.Errorf("%w: block has no columns", ErrDimension)
	}
	return block{matrix: m}, nil
}

func ints64(row []int64) []*big.Int {
	out := make([]*big.Int, len(row))
	for i, v := range row {
		out[i] = big.NewInt(v)
	}
	return out
}
