// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package saddle

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/kkt/canon"
)

// rangespace eliminates the primal variables through the inverse of the
// Hessian diagonal and factorizes the dual Schur complement
//
//	𝐍 = 𝐀F·diag(𝐇ff+𝐃f)⁻¹·𝐀Fᵀ + blkdiag(0, 𝐆)
//
// of order mu+ml. It requires the Hessian block to be diagonal and the free
// entries of diag(𝐇)+𝐃 to be invertible.
type rangespace struct {
	m  int        // constraint rows mu+ml
	hd []float64  // reciprocal free Hessian diagonal
	af *mat.Dense // free columns of the stacked constraint blocks
	lu mat.LU     // factorization of the Schur complement

	haf, w, lam []float64
}

func (r *rangespace) decompose(s *Solver, m *Matrix) error {
	if m.H != nil {
		if _, ok := m.H.(mat.Diagonal); !ok {
			return fmt.Errorf("saddle: rangespace requires a diagonal hessian block: %w", ErrStrategyPrecondition)
		}
	}
	nf := len(s.free)
	r.m = s.mu + s.ml

	r.hd = resize(r.hd, nf)
	maxAbs := zero
	for k, j := range s.free {
		v := zero
		if m.H != nil {
			v = m.H.At(j, j)
		}
		if m.D != nil {
			v += m.D[j]
		}
		r.hd[k] = v
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	tol := s.opts.PivotTolerance
	if tol == zero {
		tol = eps * float64(s.n)
	}
	for k, j := range s.free {
		if math.Abs(r.hd[k]) <= maxAbs*tol {
			return fmt.Errorf("saddle: rangespace requires an invertible hessian diagonal: entry %d: %w", j, ErrStrategyPrecondition)
		}
		r.hd[k] = one / r.hd[k]
	}

	if r.m == 0 {
		return nil
	}
	r.af = stackFreeColumns(m.Au, m.Al, s.free)
	schur := mat.NewDense(r.m, r.m, nil)
	if r.af != nil {
		scaled := mat.NewDense(r.m, nf, nil)
		for i := 0; i < r.m; i++ {
			src := r.af.RawRowView(i)
			dst := scaled.RawRowView(i)
			for k, v := range src {
				dst[k] = v * r.hd[k]
			}
		}
		schur.Mul(scaled, r.af.T())
	}
	if m.G != nil {
		for i := 0; i < s.ml; i++ {
			row := schur.RawRowView(s.mu + i)
			floats.Add(row[s.mu:], m.G.RawRowView(i))
		}
	}
	r.lu.Factorize(schur)
	if det := r.lu.Det(); det == zero || math.IsNaN(det) {
		return fmt.Errorf("saddle: rangespace schur complement is singular: %w", canon.ErrSingularStructure)
	}
	return nil
}

func (r *rangespace) solve(s *Solver, rr, sol []float64) error {
	a := rr[:s.n]
	b := rr[s.n:]
	nf := len(s.free)

	r.haf = resize(r.haf, nf)
	for k, j := range s.free {
		r.haf[k] = r.hd[k] * a[j]
	}
	if r.m == 0 {
		for k, j := range s.free {
			sol[j] = r.haf[k]
		}
		return nil
	}

	// w = 𝐀F·(hd∘aF) − b
	r.w = resize(r.w, r.m)
	for i := 0; i < r.m; i++ {
		v := zero
		if r.af != nil {
			v = floats.Dot(r.af.RawRowView(i), r.haf)
		}
		r.w[i] = v - b[i]
	}

	// λ = 𝐍⁻¹w
	r.lam = resize(r.lam, r.m)
	lam := mat.NewVecDense(r.m, r.lam)
	if err := r.lu.SolveVecTo(lam, false, mat.NewVecDense(r.m, r.w)); err != nil {
		return fmt.Errorf("saddle: rangespace solve: %w", err)
	}

	// xF = hd∘(aF − 𝐀Fᵀλ)
	for k, j := range s.free {
		r.haf[k] = a[j]
	}
	if r.af != nil {
		for i := 0; i < r.m; i++ {
			floats.AddScaled(r.haf, -r.lam[i], r.af.RawRowView(i))
		}
	}
	for k, j := range s.free {
		sol[j] = r.hd[k] * r.haf[k]
	}
	copy(sol[s.n:], r.lam)
	return nil
}
