package cvp

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"cvp-knife/internal/lattice"
)

// Lattice is the compiled, immutable CVP instance
type Lattice struct {
	basis  [][]*big.Int
	target []*big.Int
	scales []*big.Int
	bounds []Interval
	labels []string
	traced []bool
	exprs  []string

	expectedError *big.Int
	large         *big.Int
	huge          *big.Int
}

// Rows returns the number of basis rows
func (l *Lattice) Rows() int { return len(l.basis) }

// Cols returns the number of columns, including the synthetic constant column
func (l *Lattice) Cols() int { return len(l.target) }

// Basis returns a copy of the scaled basis
func (l *Lattice) Basis() [][]*big.Int { return lattice.CloneMatrix(l.basis) }

// Target returns a copy of the scaled target vector
func (l *Lattice) Target() []*big.Int { return lattice.CloneVector(l.target) }

// Scales returns a copy of the per-column scale table
func (l *Lattice) Scales() []*big.Int { return lattice.CloneVector(l.scales) }

// RowLabels returns the label of every basis row
func (l *Lattice) RowLabels() []string { return append([]string(nil), l.labels...) }

// ExpectedError returns the common slack bounded columns are scaled to
func (l *Lattice) ExpectedError() *big.Int { return new(big.Int).Set(l.expectedError) }

// Weights returns the weights of exact and constant columns
func (l *Lattice) Weights() (large, huge *big.Int) {
	return new(big.Int).Set(l.large), new(big.Int).Set(l.huge)
}

// Render writes the basis and target, reduced modulo mod when mod is not nil
func (l *Lattice) Render(w io.Writer, mod *big.Int) error {
	show := func(v *big.Int) string {
		if mod == nil || mod.Sign() <= 0 {
			return v.String()
		}
		return new(big.Int).Mod(v, mod).String()
	}

	cells := make([][]string, len(l.basis))
	widths := make([]int, l.Cols())
	for i, row := range l.basis {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			cells[i][j] = show(v)
			if len(cells[i][j]) > widths[j] {
				widths[j] = len(cells[i][j])
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("Lattice:\n")
	for i, row := range cells {
		sb.WriteString("[")
		for j, s := range row {
			if j > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "%*s", widths[j], s)
		}
		fmt.Fprintf(&sb, "] <- %s\n", l.labels[i])
	}
	sb.WriteString("Goal vector:\n(")
	for j, v := range l.target {
		if j > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(show(v))
	}
	sb.WriteString(")\n")

	_, err := io.WriteString(w, sb.String())
	return err
}
