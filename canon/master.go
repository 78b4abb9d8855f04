// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package canon

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Priority tiers for the basic set selection. Stable variables dominate, so
// that unstable variables leave the basis whenever the algebra permits.
// Variables hinted as unstable-but-basic sit between the tiers: they are the
// preferred pivots among the unstable, yet always ordered after the stable.
const (
	weightStable        = one
	weightUnstableBasic = 1e-8
	weightUnstable      = 1e-16
)

// MasterMatrix is the stacked constraint matrix of the optimization problem
//
//	𝐖 = [𝐀x 𝐀p]
//	    [𝐉x 𝐉p]
//
// with ny linear equality rows, nz nonlinear constraint rows, nx variable
// columns and np parameter columns, together with the advisory stability
// hints for the variables. A nil block declares the corresponding dimension
// absent and is treated as zero.
type MasterMatrix struct {
	Nx, Np, Ny, Nz int

	Ax *mat.Dense // ny×nx equality constraint block
	Ap *mat.Dense // ny×np parameter coupling block
	Jx *mat.Dense // nz×nx nonlinear constraint block
	Jp *mat.Dense // nz×np nonlinear parameter block

	// Ju hints the variables currently unstable, e.g. attached to a bound.
	Ju []int
	// Junit hints unstable variables expected to remain basic.
	Junit []int
}

// Dims holds the dimension counters of a canonical partition.
type Dims struct {
	Nx int // variables
	Np int // parameters
	Ny int // linear equality constraints
	Nz int // nonlinear constraints
	Nw int // total constraint rows, ny + nz

	Ns int // stable variables
	Nu int // unstable variables

	Nb int // basic variables, the rank of [𝐀x; 𝐉x]
	Nn int // non-basic variables
	Nl int // linearly dependent constraint rows, nw - nb

	Nbs int // basic stable variables
	Nbu int // basic unstable variables
	Nns int // non-basic stable variables
	Nnu int // non-basic unstable variables
}

// CanonicalForm is the canonical partition of a master matrix.
//
// Stable lists the stable variables with the basic ones first, in the row
// order of the reduction, so that row i of 𝐑 corresponds to variable
// Stable[i] for i < Dims.Nbs. Unstable lists the unstable variables, basic
// first. The matrix blocks are the raw constraint blocks gathered by the
// partition: As = 𝐀x[:,Stable], Au = 𝐀x[:,Unstable], Js = 𝐉x[:,Stable],
// and Ap passed through. Nil blocks are empty.
//
// R is a live view of the decomposer state: the form remains consistent only
// while Decomposer.Valid reports true.
type CanonicalForm struct {
	Dims Dims

	Stable   []int
	Unstable []int

	R  *mat.Dense // nw×nw reduction of [𝐀x; 𝐉x]
	As *mat.Dense // ny×ns
	Au *mat.Dense // ny×nu
	Ap *mat.Dense // ny×np
	Js *mat.Dense // nz×ns

	gen uint64
}

// Decomposer computes canonical partitions of master matrices.
//
// A Decomposer owns the echelonization workspace: forms produced by Compute
// share it, and only the most recent form is valid. The zero value is ready
// for use.
type Decomposer struct {
	ech Echelonizer
	w   []float64
	gen uint64
}

// NewDecomposer creates an empty decomposer.
func NewDecomposer() *Decomposer { return &Decomposer{} }

// Valid reports whether the given form is the one produced by the most
// recent Compute call on this decomposer.
func (d *Decomposer) Valid(f *CanonicalForm) bool { return f != nil && f.gen == d.gen && d.gen > 0 }

// Compute canonicalizes the constraint block [𝐀x; 𝐉x] of the master matrix
// and derives the variable partition from the result and the stability hints.
// Hints are advisory: overlapping or duplicated hint sets are tolerated, and
// rank feasibility always wins over the hinted classification. Linearly
// dependent constraint rows are reported through Dims.Nl, not as an error.
func (d *Decomposer) Compute(m *MasterMatrix) (*CanonicalForm, error) {
	if err := validateMaster(m); err != nil {
		return nil, err
	}
	nx, np, ny, nz := m.Nx, m.Np, m.Ny, m.Nz
	nw := ny + nz

	unstable := make([]bool, nx)
	for _, j := range m.Ju {
		unstable[j] = true
	}
	for _, j := range m.Junit {
		unstable[j] = true
	}

	d.gen++
	f := &CanonicalForm{gen: d.gen}
	f.Dims = Dims{Nx: nx, Np: np, Ny: ny, Nz: nz, Nw: nw}

	var basic, nonbasic []int
	if nw > 0 {
		wx := mat.NewDense(nw, nx, nil)
		if ny > 0 {
			wx.Slice(0, ny, 0, nx).(*mat.Dense).Copy(m.Ax)
		}
		if nz > 0 {
			wx.Slice(ny, nw, 0, nx).(*mat.Dense).Copy(m.Jx)
		}

		if err := d.ech.Compute(wx); err != nil {
			return nil, fmt.Errorf("canonicalize master matrix: %w", err)
		}

		if cap(d.w) < nx {
			d.w = make([]float64, nx)
		}
		w := d.w[:nx]
		for i := range w {
			w[i] = weightStable
		}
		for _, j := range m.Ju {
			w[j] = weightUnstable
		}
		for _, j := range m.Junit {
			w[j] = weightUnstableBasic
		}
		if err := d.ech.UpdateWithPriorityWeights(w); err != nil {
			return nil, fmt.Errorf("canonicalize master matrix: %w", err)
		}
		d.ech.CleanResidualRoundoffErrors()

		basic = d.ech.Basic()
		nonbasic = d.ech.NonBasic()
		f.R = d.ech.R()
	} else {
		nonbasic = indices(nx)
	}

	nb := len(basic)
	f.Dims.Nb = nb
	f.Dims.Nn = nx - nb
	f.Dims.Nl = nw - nb

	f.Stable = make([]int, 0, nx)
	f.Unstable = make([]int, 0, len(m.Ju)+len(m.Junit))
	for _, j := range basic {
		if unstable[j] {
			f.Unstable = append(f.Unstable, j)
		} else {
			f.Stable = append(f.Stable, j)
		}
	}
	f.Dims.Nbs = len(f.Stable)
	f.Dims.Nbu = len(f.Unstable)
	for _, j := range nonbasic {
		if unstable[j] {
			f.Unstable = append(f.Unstable, j)
		} else {
			f.Stable = append(f.Stable, j)
		}
	}
	f.Dims.Ns = len(f.Stable)
	f.Dims.Nu = len(f.Unstable)
	f.Dims.Nns = f.Dims.Ns - f.Dims.Nbs
	f.Dims.Nnu = f.Dims.Nu - f.Dims.Nbu

	f.As = gatherColumns(m.Ax, f.Stable)
	f.Au = gatherColumns(m.Ax, f.Unstable)
	f.Js = gatherColumns(m.Jx, f.Stable)
	f.Ap = m.Ap
	return f, nil
}

// validateMaster checks the declared dimensions against the given blocks and
// hint sets.
func validateMaster(m *MasterMatrix) error {
	if m == nil || m.Nx < 1 || m.Np < 0 || m.Ny < 0 || m.Nz < 0 {
		return fmt.Errorf("master matrix dimensions: %w", ErrDimensionMismatch)
	}
	check := func(b *mat.Dense, r, c int, name string) error {
		if r == 0 || c == 0 {
			if b != nil {
				return fmt.Errorf("master matrix block %s declared absent but present: %w", name, ErrDimensionMismatch)
			}
			return nil
		}
		if b == nil {
			return fmt.Errorf("master matrix block %s missing: %w", name, ErrDimensionMismatch)
		}
		if br, bc := b.Dims(); br != r || bc != c {
			return fmt.Errorf("master matrix block %s is %d×%d, declared %d×%d: %w", name, br, bc, r, c, ErrDimensionMismatch)
		}
		return nil
	}
	if err := check(m.Ax, m.Ny, m.Nx, "Ax"); err != nil {
		return err
	}
	if err := check(m.Ap, m.Ny, m.Np, "Ap"); err != nil {
		return err
	}
	if err := check(m.Jx, m.Nz, m.Nx, "Jx"); err != nil {
		return err
	}
	if err := check(m.Jp, m.Nz, m.Np, "Jp"); err != nil {
		return err
	}
	for _, set := range [][]int{m.Ju, m.Junit} {
		for _, j := range set {
			if j < 0 || j >= m.Nx {
				return fmt.Errorf("stability hint %d outside 0..%d: %w", j, m.Nx-1, ErrDimensionMismatch)
			}
		}
	}
	return nil
}

// gatherColumns builds a dense copy of the given columns of a, or nil when
// the selection is empty.
func gatherColumns(a *mat.Dense, cols []int) *mat.Dense {
	if a == nil || len(cols) == 0 {
		return nil
	}
	r, _ := a.Dims()
	out := mat.NewDense(r, len(cols), nil)
	for i := 0; i < r; i++ {
		src := a.RawRowView(i)
		dst := out.RawRowView(i)
		for k, j := range cols {
			dst[k] = src[j]
		}
	}
	return out
}
