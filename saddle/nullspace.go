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

// nullspace eliminates the constraint rows through a basis 𝐙 of their
// nullspace and factorizes the reduced Hessian
//
//	𝐊 = 𝐙ᵀ(𝐇ff + diag(𝐃)f)𝐙
//
// of order nf−m. The basis comes from the canonical form 𝐑𝐀F𝐐 = [𝐈 𝐒] of the
// free constraint columns, giving 𝐙 = 𝐐[−𝐒; 𝐈] and the particular solution
// xp = 𝐐[𝐑b; 0]. The method requires a zero 𝐆 block and full row rank of the
// constraints; it stays accurate when diag(𝐃) dominates 𝐇, where rangespace
// style eliminations lose the constraint residual.
type nullspace struct {
	m          int // constraint rows mu+ml
	nf, nb, nn int

	ech canon.Echelonizer
	hff *mat.Dense // free Hessian block including the diagonal regularization
	z   *mat.Dense // nullspace basis, nf×nn
	lu  mat.LU     // reduced Hessian, or 𝐇ff itself when there are no constraints

	xp, rhs, un, cb, lam, buf []float64
}

func (ns *nullspace) decompose(s *Solver, m *Matrix) error {
	if m.G != nil {
		for i := 0; i < s.ml; i++ {
			for _, v := range m.G.RawRowView(i) {
				if v != zero {
					return fmt.Errorf("saddle: nullspace requires a zero regularization block: %w", ErrStrategyPrecondition)
				}
			}
		}
	}
	nf := len(s.free)
	ns.nf = nf
	ns.m = s.mu + s.ml

	if nf > 0 {
		ns.hff = mat.NewDense(nf, nf, nil)
		for a, i := range s.free {
			row := ns.hff.RawRowView(a)
			if m.H != nil {
				for b, j := range s.free {
					row[b] = m.H.At(i, j)
				}
			}
			if m.D != nil {
				row[a] += m.D[i]
			}
		}
	} else {
		ns.hff = nil
	}

	if ns.m == 0 {
		ns.z = nil
		ns.nb, ns.nn = 0, nf
		if nf > 0 {
			ns.lu.Factorize(ns.hff)
			if det := ns.lu.Det(); det == zero || math.IsNaN(det) {
				return fmt.Errorf("saddle: nullspace reduced hessian is singular: %w", canon.ErrSingularStructure)
			}
		}
		return nil
	}
	if nf < ns.m {
		return fmt.Errorf("saddle: nullspace with %d constraint rows over %d free variables: %w", ns.m, nf, canon.ErrSingularStructure)
	}

	if tol := s.opts.PivotTolerance; tol > zero {
		ns.ech.SetThreshold(tol)
	}
	if err := ns.ech.Compute(stackFreeColumns(m.Au, m.Al, s.free)); err != nil {
		return fmt.Errorf("saddle: nullspace canonicalization: %w", err)
	}
	if nb := ns.ech.NumBasicVariables(); nb < ns.m {
		return fmt.Errorf("saddle: nullspace with %d dependent constraint rows: %w", ns.m-nb, canon.ErrSingularStructure)
	}
	ns.nb = ns.m
	ns.nn = nf - ns.m

	ns.z = nil
	if ns.nn > 0 {
		ns.z = mat.NewDense(nf, ns.nn, nil)
		q := ns.ech.Q()
		sm := ns.ech.S()
		for k := 0; k < ns.nb; k++ {
			dst := ns.z.RawRowView(q[k])
			for j, v := range sm.RawRowView(k) {
				dst[j] = -v
			}
		}
		for k := ns.nb; k < nf; k++ {
			ns.z.Set(q[k], k-ns.nb, one)
		}

		tmp := mat.NewDense(nf, ns.nn, nil)
		tmp.Mul(ns.hff, ns.z)
		red := mat.NewDense(ns.nn, ns.nn, nil)
		red.Mul(ns.z.T(), tmp)
		ns.lu.Factorize(red)
		if det := ns.lu.Det(); det == zero || math.IsNaN(det) {
			return fmt.Errorf("saddle: nullspace reduced hessian is singular: %w", canon.ErrSingularStructure)
		}
	}
	return nil
}

func (ns *nullspace) solve(s *Solver, rr, sol []float64) error {
	nf := ns.nf
	a := rr[:s.n]

	ns.buf = resize(ns.buf, nf)
	for k, j := range s.free {
		ns.buf[k] = a[j]
	}

	if ns.m == 0 {
		if nf > 0 {
			ns.xp = resize(ns.xp, nf)
			dst := mat.NewVecDense(nf, ns.xp)
			if err := ns.lu.SolveVecTo(dst, false, mat.NewVecDense(nf, ns.buf)); err != nil {
				return fmt.Errorf("saddle: nullspace solve: %w", err)
			}
			for k, j := range s.free {
				sol[j] = ns.xp[k]
			}
		}
		return nil
	}

	b := rr[s.n:]
	q := ns.ech.Q()
	r := ns.ech.R()

	// particular solution xp = 𝐐[𝐑b; 0]
	ns.xp = resize(ns.xp, nf)
	for k := range ns.xp {
		ns.xp[k] = zero
	}
	for k := 0; k < ns.nb; k++ {
		ns.xp[q[k]] = floats.Dot(r.RawRowView(k), b)
	}

	if ns.nn > 0 {
		// reduced right-hand side 𝐙ᵀ(aF − 𝐇ff·xp)
		for k := 0; k < nf; k++ {
			ns.buf[k] -= floats.Dot(ns.hff.RawRowView(k), ns.xp)
		}
		ns.rhs = resize(ns.rhs, ns.nn)
		for j := range ns.rhs {
			ns.rhs[j] = zero
		}
		for k := 0; k < nf; k++ {
			floats.AddScaled(ns.rhs, ns.buf[k], ns.z.RawRowView(k))
		}

		ns.un = resize(ns.un, ns.nn)
		dst := mat.NewVecDense(ns.nn, ns.un)
		if err := ns.lu.SolveVecTo(dst, false, mat.NewVecDense(ns.nn, ns.rhs)); err != nil {
			return fmt.Errorf("saddle: nullspace solve: %w", err)
		}

		// xF = xp + 𝐙·un
		for k := 0; k < nf; k++ {
			ns.xp[k] += floats.Dot(ns.z.RawRowView(k), ns.un)
		}
	}

	// duals from the free stationarity rows: 𝐀Fᵀy = aF − 𝐇ff·xF
	// gives y = 𝐑ᵀ(𝐐ᵀ(aF − 𝐇ff·xF))[:m]
	for k, j := range s.free {
		ns.buf[k] = a[j] - floats.Dot(ns.hff.RawRowView(k), ns.xp)
	}
	ns.cb = resize(ns.cb, ns.nb)
	for k := 0; k < ns.nb; k++ {
		ns.cb[k] = ns.buf[q[k]]
	}
	ns.lam = resize(ns.lam, ns.m)
	for i := range ns.lam {
		ns.lam[i] = zero
	}
	for k := 0; k < ns.nb; k++ {
		floats.AddScaled(ns.lam, ns.cb[k], r.RawRowView(k))
	}

	for k, j := range s.free {
		sol[j] = ns.xp[k]
	}
	copy(sol[s.n:], ns.lam)
	return nil
}
