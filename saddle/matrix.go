// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package saddle

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/kkt/canon"
)

// Matrix describes a saddle point system of order t = n + mu + ml
//
//	┌ 𝐇 + diag(𝐃)   𝐀ᵤᵀ   𝐀ₗᵀ ┐ ┌ 𝑥 ┐   ┌ 𝑎 ┐
//	│     𝐀ᵤ         0     0  │ │ 𝑦ᵤ│ = │ 𝑏ᵤ│
//	└     𝐀ₗ         0   −𝐆  ┘ └ 𝑦ₗ┘   └ 𝑏ₗ┘
//
// where 𝐇 is the n×n Hessian block, 𝐃 a diagonal regularization of the primal
// variables, 𝐀ᵤ and 𝐀ₗ two stacked constraint blocks with mu and ml rows, and
// 𝐆 an ml×ml regularization of the lower dual variables.
//
// Nil blocks are treated as zero. A Hessian block implementing mat.Diagonal
// qualifies for the Rangespace method.
//
// Jf lists fixed variables. For each j ∈ Jf row and column j of the assembled
// matrix are cleared and the diagonal entry is set to one, so the solution
// satisfies s[j] = r[j] exactly and the remaining unknowns are independent of
// the fixed ones.
type Matrix struct {
	// N is the number of primal variables.
	N int
	// H is the n×n Hessian block, or nil for a zero block.
	H mat.Matrix
	// D holds the diagonal regularization of the primal variables,
	// or nil for none.
	D []float64
	// Au is the upper constraint block, or nil when mu = 0.
	Au *mat.Dense
	// Al is the lower constraint block, or nil when ml = 0.
	Al *mat.Dense
	// G is the ml×ml regularization of the lower dual block,
	// or nil for a zero block.
	G *mat.Dense
	// Jf lists the indices of fixed variables.
	Jf []int
}

// Dims returns the block dimensions (n, mu, ml).
func (m *Matrix) Dims() (n, mu, ml int) {
	n = m.N
	if m.Au != nil {
		mu, _ = m.Au.Dims()
	}
	if m.Al != nil {
		ml, _ = m.Al.Dims()
	}
	return n, mu, ml
}

// Size returns the order t = n + mu + ml of the assembled matrix.
func (m *Matrix) Size() int {
	n, mu, ml := m.Dims()
	return n + mu + ml
}

// Dense assembles the full t×t saddle point matrix, including the clearing of
// fixed rows and columns. The result shares no storage with the blocks.
//
// Dense assumes a well-formed matrix. It is the reference against which every
// method of the Solver is exact up to roundoff.
func (m *Matrix) Dense() *mat.Dense {
	n, mu, ml := m.Dims()
	t := n + mu + ml
	out := mat.NewDense(t, t, nil)
	if m.H != nil {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				out.Set(i, j, m.H.At(i, j))
			}
		}
	}
	if m.D != nil {
		for i := 0; i < n; i++ {
			out.Set(i, i, out.At(i, i)+m.D[i])
		}
	}
	for k := 0; k < mu; k++ {
		for j := 0; j < n; j++ {
			v := m.Au.At(k, j)
			out.Set(n+k, j, v)
			out.Set(j, n+k, v)
		}
	}
	for k := 0; k < ml; k++ {
		for j := 0; j < n; j++ {
			v := m.Al.At(k, j)
			out.Set(n+mu+k, j, v)
			out.Set(j, n+mu+k, v)
		}
	}
	if m.G != nil {
		for i := 0; i < ml; i++ {
			for j := 0; j < ml; j++ {
				out.Set(n+mu+i, n+mu+j, -m.G.At(i, j))
			}
		}
	}
	for _, j := range m.Jf {
		row := out.RawRowView(j)
		for i := range row {
			row[i] = zero
		}
		for i := 0; i < t; i++ {
			out.Set(i, j, zero)
		}
		out.Set(j, j, one)
	}
	return out
}

// stackFreeColumns gathers the listed columns of the stacked constraint
// blocks into an (mu+ml)×len(free) matrix, or nil when either dimension
// is empty.
func stackFreeColumns(au, al *mat.Dense, free []int) *mat.Dense {
	var mu, ml int
	if au != nil {
		mu, _ = au.Dims()
	}
	if al != nil {
		ml, _ = al.Dims()
	}
	if mu+ml == 0 || len(free) == 0 {
		return nil
	}
	out := mat.NewDense(mu+ml, len(free), nil)
	for i := 0; i < mu; i++ {
		dst := out.RawRowView(i)
		for k, j := range free {
			dst[k] = au.At(i, j)
		}
	}
	for i := 0; i < ml; i++ {
		dst := out.RawRowView(mu + i)
		for k, j := range free {
			dst[k] = al.At(i, j)
		}
	}
	return out
}

// validate reports the first shape inconsistency between the blocks.
func (m *Matrix) validate() error {
	if m.N < 1 {
		return fmt.Errorf("saddle: matrix requires at least one variable: %w", canon.ErrDimensionMismatch)
	}
	n, _, ml := m.Dims()
	if m.H != nil {
		if r, c := m.H.Dims(); r != n || c != n {
			return fmt.Errorf("saddle: hessian block is %d×%d, want %d×%d: %w", r, c, n, n, canon.ErrDimensionMismatch)
		}
	}
	if m.D != nil && len(m.D) != n {
		return fmt.Errorf("saddle: diagonal has %d entries, want %d: %w", len(m.D), n, canon.ErrDimensionMismatch)
	}
	if m.Au != nil {
		if _, c := m.Au.Dims(); c != n {
			return fmt.Errorf("saddle: upper constraint block has %d columns, want %d: %w", c, n, canon.ErrDimensionMismatch)
		}
	}
	if m.Al != nil {
		if _, c := m.Al.Dims(); c != n {
			return fmt.Errorf("saddle: lower constraint block has %d columns, want %d: %w", c, n, canon.ErrDimensionMismatch)
		}
	}
	if m.G != nil {
		if ml == 0 {
			return fmt.Errorf("saddle: regularization block without lower constraints: %w", canon.ErrDimensionMismatch)
		}
		if r, c := m.G.Dims(); r != ml || c != ml {
			return fmt.Errorf("saddle: regularization block is %d×%d, want %d×%d: %w", r, c, ml, ml, canon.ErrDimensionMismatch)
		}
	}
	for _, j := range m.Jf {
		if j < 0 || j >= n {
			return fmt.Errorf("saddle: fixed variable %d out of range [0,%d): %w", j, n, canon.ErrDimensionMismatch)
		}
	}
	return nil
}
