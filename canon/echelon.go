// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package canon

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	zero = 0.0
	one  = 1.0
	ten  = 10.0
	eps  = float64(7)/3 - float64(4)/3 - 1.
)

// Echelonizer computes and maintains the canonical form of an m×n matrix 𝐀 with m ≤ n:
//
//	𝐑𝐀𝐐 = 𝐂 = [𝐈 𝐒]
//
// where 𝐐 is a permutation of the variables (columns), 𝐑 is the product of the row
// operations that reduce 𝐀, and 𝐒 is the coefficient block of the non-basic variables.
// The first nb entries of 𝐐 identify the basic variables, whose columns form a
// numerically nonsingular block of 𝐀; nb is also the rank of 𝐀.
//
// # Basics
//
// The factors come from a Gaussian elimination with full pivoting, 𝐏𝐀𝐐 = 𝐋𝐔, so that
//
//	𝐑 = 𝐔bb⁻¹𝐋⁻¹𝐏    𝐒 = 𝐔bb⁻¹𝐔bn
//
// with 𝐔bb the leading nb×nb upper-triangular block of 𝐔 and 𝐔bn the trailing block.
// Full pivoting selects the largest entry of the active submatrix at every step, so
// the basic set favours the numerically dominant columns and the elimination remains
// stable for rank-deficient input. Rows beyond nb are linearly dependent within the
// pivot tolerance; they are kept in 𝐑 but excluded from 𝐒 and the basic set.
//
// Once computed, the canonical form can be maintained under basis changes without
// refactorization: SwapBasicVariable performs a Gauss-Jordan pivot on 𝐒 (applying the
// same row operations to 𝐑), and UpdateWithPriorityWeights drives the basis towards
// the variables with the largest weights.
//
// # References
//
//   - R.J. Vanderbei, 'Linear Programming: Foundations and Extensions', Springer, 2014. Chapter 8.
//   - G.H. Golub, C.F. Van Loan, 'Matrix Computations', 4th ed., 2013. Section 3.4.
type Echelonizer struct {
	m, n, nb int

	// compact LU factors of 𝐏𝐀𝐐 (unit lower 𝐋 below the diagonal, 𝐔 on and above)
	fac *mat.Dense
	// largest pivot met during the elimination
	maxPivot float64
	// prescribed relative pivot tolerance, zero for the default 𝜀·min(m,n)
	tol float64
	// magnitude below which entries of 𝐒 are treated as zero pivots
	threshold float64
	// power of ten used by CleanResidualRoundoffErrors
	sigma float64

	r *mat.Dense // m×m, nil when m = 0
	s *mat.Dense // nb×(n-nb), nil when either dimension is 0

	p   []int // p[k]: original row at reduced position k
	ptr []int // ptr[i]: reduced position of original row i
	q   []int // q[k]: variable at canonical position k, basic first

	col []float64 // scratch pivot column for swaps

	r0 *mat.Dense // state at the last Compute, for Reset
	s0 *mat.Dense
	q0 []int
}

// NewEchelonizer computes the canonical form of the given matrix.
func NewEchelonizer(a mat.Matrix) (*Echelonizer, error) {
	e := &Echelonizer{}
	if err := e.Compute(a); err != nil {
		return nil, err
	}
	return e, nil
}

// SetThreshold prescribes the relative pivot tolerance used for rank decisions
// and swap feasibility. A zero value restores the default 𝜀·min(m,n) rule.
// It takes effect on the next Compute.
func (e *Echelonizer) SetThreshold(tol float64) { e.tol = math.Abs(tol) }

// NumVariables returns the number of columns of the canonicalized matrix.
func (e *Echelonizer) NumVariables() int { return e.n }

// NumEquations returns the number of rows of the canonicalized matrix.
func (e *Echelonizer) NumEquations() int { return e.m }

// NumBasicVariables returns the number of basic variables, which is also the
// numerical rank of the canonicalized matrix.
func (e *Echelonizer) NumBasicVariables() int { return e.nb }

// NumNonBasicVariables returns the number of non-basic variables.
func (e *Echelonizer) NumNonBasicVariables() int { return e.n - e.nb }

// R returns the m×m transformation matrix of the canonical form. The returned
// matrix is a live view owned by the Echelonizer and must not be modified.
func (e *Echelonizer) R() *mat.Dense { return e.r }

// S returns the nb×(n-nb) non-basic block of the canonical form, or nil when
// the block is empty. The returned matrix is a live view and must not be modified.
func (e *Echelonizer) S() *mat.Dense { return e.s }

// Q returns the canonical variable order: basic variables first, non-basic after.
// The returned slice is a live view and must not be modified.
func (e *Echelonizer) Q() []int { return e.q }

// Basic returns the indices of the basic variables in canonical order.
func (e *Echelonizer) Basic() []int { return e.q[:e.nb] }

// NonBasic returns the indices of the non-basic variables in canonical order.
func (e *Echelonizer) NonBasic() []int { return e.q[e.nb:] }

// Equations returns, for every original row, its position in the reduced row
// order. Rows placed at positions ≥ NumBasicVariables are linearly dependent.
func (e *Echelonizer) Equations() []int { return e.ptr }

// C assembles the canonical matrix 𝐂 = 𝐑𝐀𝐐 = [𝐈 𝐒] with zero rows for the
// linearly dependent part.
func (e *Echelonizer) C() *mat.Dense {
	c := mat.NewDense(e.m, e.n, nil)
	for i := 0; i < e.nb; i++ {
		c.Set(i, i, one)
		if e.s != nil {
			copy(c.RawRowView(i)[e.nb:], e.s.RawRowView(i))
		}
	}
	return c
}

// Compute performs a full recomputation of the canonical form.
// The matrix must have at least one row and no more rows than columns.
func (e *Echelonizer) Compute(a mat.Matrix) error {
	m, n := a.Dims()
	if m < 1 || n < m {
		return fmt.Errorf("canonicalize %d×%d matrix: %w", m, n, ErrDimensionMismatch)
	}
	e.init(m, n)
	e.fac.Copy(a)

	maxAbs := zero
	fac := e.fac.RawMatrix()
	for i := 0; i < m; i++ {
		row := fac.Data[i*fac.Stride : i*fac.Stride+n]
		for _, v := range row {
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
	}
	if math.IsNaN(maxAbs) || math.IsInf(maxAbs, 0) {
		return fmt.Errorf("canonicalize %d×%d matrix with non-finite entries: %w", m, n, ErrSingularStructure)
	}

	e.factorize()

	nb := e.rank()
	e.nb = nb

	e.reduce()

	tol := e.tol
	if tol == zero {
		tol = eps * float64(min(m, n))
	}
	e.threshold = e.maxPivot * tol * float64(max(m, n))

	e.sigma = zero
	if maxAbs > zero {
		e.sigma = math.Pow(ten, one+math.Ceil(math.Log10(maxAbs)))
	}

	e.r0 = mat.DenseCopyOf(e.r)
	if e.s != nil {
		e.s0 = mat.DenseCopyOf(e.s)
	} else {
		e.s0 = nil
	}
	e.q0 = append(e.q0[:0], e.q...)
	return nil
}

func (e *Echelonizer) init(m, n int) {
	if e.m != m || e.n != n || e.fac == nil {
		e.fac = mat.NewDense(m, n, nil)
		e.r = mat.NewDense(m, m, nil)
		e.p = make([]int, m)
		e.ptr = make([]int, m)
		e.q = make([]int, n)
	}
	e.m, e.n = m, n
	for i := range e.p {
		e.p[i] = i
	}
	for j := range e.q {
		e.q[j] = j
	}
}

// factorize performs the full-pivot elimination 𝐏𝐀𝐐 = 𝐋𝐔 in place.
func (e *Echelonizer) factorize() {
	m, n := e.m, e.n
	fac := e.fac.RawMatrix()
	row := func(i int) []float64 { return fac.Data[i*fac.Stride : i*fac.Stride+n] }

	e.maxPivot = zero
	for k := 0; k < m; k++ {
		pi, pj, pv := k, k, zero
		for i := k; i < m; i++ {
			ri := row(i)
			for j := k; j < n; j++ {
				if v := math.Abs(ri[j]); v > pv {
					pv, pi, pj = v, i, j
				}
			}
		}
		if pv == zero {
			break // active submatrix exhausted, remaining pivots are zero
		}
		e.maxPivot = math.Max(e.maxPivot, pv)
		if pi != k {
			e.p[k], e.p[pi] = e.p[pi], e.p[k]
			rk, ri := row(k), row(pi)
			for j := 0; j < n; j++ {
				rk[j], ri[j] = ri[j], rk[j]
			}
		}
		if pj != k {
			e.q[k], e.q[pj] = e.q[pj], e.q[k]
			for i := 0; i < m; i++ {
				ri := row(i)
				ri[k], ri[pj] = ri[pj], ri[k]
			}
		}
		rk := row(k)
		piv := rk[k]
		for i := k + 1; i < m; i++ {
			ri := row(i)
			l := ri[k] / piv
			ri[k] = l
			if l != zero {
				floats.AddScaled(ri[k+1:], -l, rk[k+1:])
			}
		}
	}
	for i, pi := range e.p {
		e.ptr[pi] = i
	}
}

// rank counts the leading pivots above the relative tolerance. A maximum pivot
// below 10𝜀 degenerates the comparison to an absolute one and reports rank zero.
func (e *Echelonizer) rank() int {
	if e.maxPivot < ten*eps {
		return 0
	}
	tol := e.tol
	if tol == zero {
		tol = eps * float64(min(e.m, e.n))
	}
	pre := e.maxPivot * tol
	r := 0
	for r < e.m && math.Abs(e.fac.At(r, r)) > pre {
		r++
	}
	return r
}

// reduce derives 𝐑 = 𝐔bb⁻¹𝐋⁻¹𝐏 and 𝐒 = 𝐔bb⁻¹𝐔bn from the factors.
func (e *Echelonizer) reduce() {
	m, n, nb := e.m, e.n, e.nb

	e.r.Zero()
	for k := 0; k < m; k++ {
		e.r.Set(k, e.p[k], one)
	}
	for k := 1; k < m; k++ {
		rk := e.r.RawRowView(k)
		for j := 0; j < k; j++ {
			if l := e.fac.At(k, j); l != zero {
				floats.AddScaled(rk, -l, e.r.RawRowView(j))
			}
		}
	}

	nn := n - nb
	if nb > 0 && nn > 0 {
		if e.s == nil {
			e.s = mat.NewDense(nb, nn, nil)
		} else if r, c := e.s.Dims(); r != nb || c != nn {
			e.s = mat.NewDense(nb, nn, nil)
		}
		for i := 0; i < nb; i++ {
			copy(e.s.RawRowView(i), e.fac.RawRowView(i)[nb:])
		}
	} else {
		e.s = nil
	}

	for i := nb - 1; i >= 0; i-- {
		ri := e.r.RawRowView(i)
		var si []float64
		if e.s != nil {
			si = e.s.RawRowView(i)
		}
		for j := i + 1; j < nb; j++ {
			if u := e.fac.At(i, j); u != zero {
				floats.AddScaled(ri, -u, e.r.RawRowView(j))
				if si != nil {
					floats.AddScaled(si, -u, e.s.RawRowView(j))
				}
			}
		}
		d := one / e.fac.At(i, i)
		floats.Scale(d, ri)
		if si != nil {
			floats.Scale(d, si)
		}
	}
}

// SwapBasicVariable swaps the ib-th basic variable with the in-th non-basic
// variable, updating 𝐑, 𝐒 and 𝐐 in place through a Gauss-Jordan pivot on 𝐒.
// The swap requires |𝐒(ib,in)| above the pivot threshold.
func (e *Echelonizer) SwapBasicVariable(ib, in int) error {
	nb, nn := e.nb, e.n-e.nb
	if ib < 0 || ib >= nb || in < 0 || in >= nn {
		return fmt.Errorf("swap basic %d with non-basic %d of %d×%d basis: %w", ib, in, nb, nn, ErrDimensionMismatch)
	}
	if math.Abs(e.s.At(ib, in)) <= e.threshold {
		return fmt.Errorf("swap basic %d with non-basic %d: pivot below threshold: %w", ib, in, ErrSingularStructure)
	}
	e.swapBasic(ib, in)
	return nil
}

func (e *Echelonizer) swapBasic(ib, in int) {
	nb := e.nb
	if cap(e.col) < nb {
		e.col = make([]float64, nb)
	}
	col := e.col[:nb]
	for i := 0; i < nb; i++ {
		col[i] = e.s.At(i, in)
	}
	aux := one / col[ib]

	floats.Scale(aux, e.r.RawRowView(ib))
	for i := 0; i < nb; i++ {
		if i != ib {
			floats.AddScaled(e.r.RawRowView(i), -col[i], e.r.RawRowView(ib))
		}
	}

	floats.Scale(aux, e.s.RawRowView(ib))
	for i := 0; i < nb; i++ {
		if i != ib {
			floats.AddScaled(e.s.RawRowView(i), -col[i], e.s.RawRowView(ib))
		}
	}
	for i := 0; i < nb; i++ {
		e.s.Set(i, in, -col[i]*aux)
	}
	e.s.Set(ib, in, aux)

	e.q[ib], e.q[nb+in] = e.q[nb+in], e.q[ib]
}

// UpdateWithPriorityWeights updates the canonical form so that variables with
// larger weights are preferred as basic, then orders both the basic and the
// non-basic sets in descending weight. Entries of 𝐒 at or below the pivot
// threshold never serve as swap pivots, and ties keep their current order.
func (e *Echelonizer) UpdateWithPriorityWeights(w []float64) error {
	if len(w) != e.n {
		return fmt.Errorf("update with %d weights for %d variables: %w", len(w), e.n, ErrDimensionMismatch)
	}
	nb, nn := e.nb, e.n-e.nb

	if nn > 0 {
		for i := 0; i < nb; i++ {
			si := e.s.RawRowView(i)
			best, bj := math.Inf(-1), -1
			for k := 0; k < nn; k++ {
				sv := math.Abs(si[k])
				if sv <= e.threshold {
					continue
				}
				if t := w[e.q[nb+k]] * sv; t > best {
					best, bj = t, k
				}
			}
			if bj >= 0 && w[e.q[i]] < best {
				e.swapBasic(i, bj)
			}
		}
	}

	kb := ordering(nb, func(l, r int) bool { return w[e.q[l]] > w[e.q[r]] })
	kn := ordering(nn, func(l, r int) bool { return w[e.q[nb+l]] > w[e.q[nb+r]] })
	e.applyOrdering(kb, kn)
	return nil
}

// UpdateOrdering applies explicit reorderings of the basic and non-basic sets:
// position i of the new basic order takes the current basic variable kb[i], and
// likewise kn for the non-basic order.
func (e *Echelonizer) UpdateOrdering(kb, kn []int) error {
	nb, nn := e.nb, e.n-e.nb
	if len(kb) != nb || len(kn) != nn {
		return fmt.Errorf("reorder %d basic and %d non-basic variables with %d and %d indices: %w",
			nb, nn, len(kb), len(kn), ErrDimensionMismatch)
	}
	if !isPermutation(kb) || !isPermutation(kn) {
		return fmt.Errorf("reorder variables: not a permutation: %w", ErrDimensionMismatch)
	}
	e.applyOrdering(kb, kn)
	return nil
}

func (e *Echelonizer) applyOrdering(kb, kn []int) {
	nb, nn := e.nb, e.n-e.nb

	if nb > 0 {
		rows := make([][]float64, nb)
		for i := 0; i < nb; i++ {
			rows[i] = append([]float64(nil), e.r.RawRowView(kb[i])...)
		}
		for i := 0; i < nb; i++ {
			copy(e.r.RawRowView(i), rows[i])
		}
	}

	if e.s != nil {
		old := mat.DenseCopyOf(e.s)
		for i := 0; i < nb; i++ {
			si := e.s.RawRowView(i)
			oi := old.RawRowView(kb[i])
			for j := 0; j < nn; j++ {
				si[j] = oi[kn[j]]
			}
		}
	}

	qb := append([]int(nil), e.q[:nb]...)
	for i := 0; i < nb; i++ {
		e.q[i] = qb[kb[i]]
	}
	qn := append([]int(nil), e.q[nb:]...)
	for j := 0; j < nn; j++ {
		e.q[nb+j] = qn[kn[j]]
	}
}

// Reset restores 𝐑, 𝐒 and 𝐐 to the state computed by the last Compute,
// discarding swap updates and their accumulated round-off.
func (e *Echelonizer) Reset() {
	e.r.Copy(e.r0)
	if e.s != nil {
		e.s.Copy(e.s0)
	}
	copy(e.q, e.q0)
}

// CleanResidualRoundoffErrors flushes residual round-off in 𝐑 and 𝐒 by adding
// and subtracting a power of ten just above the magnitude of the canonicalized
// matrix, so that entries that should be integral or zero become exactly so.
func (e *Echelonizer) CleanResidualRoundoffErrors() {
	if e.sigma == zero {
		return
	}
	clean := func(d *mat.Dense) {
		raw := d.RawMatrix()
		for i := 0; i < raw.Rows; i++ {
			row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
			for j, v := range row {
				row[j] = (v + e.sigma) - e.sigma
			}
		}
	}
	clean(e.r)
	if e.s != nil {
		clean(e.s)
	}
}

// ordering returns 0..n-1 sorted by the given less function, keeping the
// original order of equal elements.
func ordering(n int, less func(l, r int) bool) []int {
	ord := make([]int, n)
	for i := range ord {
		ord[i] = i
	}
	sort.SliceStable(ord, func(i, j int) bool { return less(ord[i], ord[j]) })
	return ord
}

func isPermutation(k []int) bool {
	seen := make([]bool, len(k))
	for _, v := range k {
		if v < 0 || v >= len(k) || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}
