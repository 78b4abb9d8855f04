// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package saddle solves the saddle point systems arising from the Newton
// steps of constrained optimization.
//
// # Basics
//
// Each Newton step requires the solution of
//
//	┌ 𝐇 + diag(𝐃)   𝐀ᵤᵀ   𝐀ₗᵀ ┐ ┌ 𝑥 ┐   ┌ 𝑎 ┐
//	│     𝐀ᵤ         0     0  │ │ 𝑦ᵤ│ = │ 𝑏ᵤ│
//	└     𝐀ₗ         0   −𝐆  ┘ └ 𝑦ₗ┘   └ 𝑏ₗ┘
//
// whose left-hand side changes far less often than its right-hand side.
// The Solver therefore splits the work into a Decompose step that factorizes
// the matrix and a Solve step that reuses the factorization for each
// right-hand side.
//
// Three factorization strategies are available. Fullspace works on the
// assembled matrix and has no preconditions. Rangespace exploits a diagonal
// Hessian block to reduce the system to the dual variables. Nullspace
// exploits a zero 𝐆 block to reduce the system to a basis of the constraint
// nullspace, which stays well conditioned when diag(𝐃) carries dominant
// entries from active barrier terms.
//
// # References
//
//   - Nocedal J, Wright S. Numerical optimization. 2006. Chapter 16.
//   - Benzi M, Golub G H, Liesen J. Numerical solution of saddle point
//     problems. Acta numerica, 2005.
package saddle

import (
	"fmt"

	"github.com/curioloop/kkt/canon"
)

const (
	zero = 0.0
	one  = 1.0

	// machine precision
	eps = float64(7)/3 - float64(4)/3 - 1.
)

// Solver factorizes a saddle point matrix once and solves it repeatedly.
//
// A Solver is not safe for concurrent use. The zero value is not usable;
// construct with NewSolver.
type Solver struct {
	opts Options

	n, mu, ml, t int

	fixed []bool // mask of fixed variables
	free  []int  // ascending indices of free variables

	fs fullspace
	rs rangespace
	ns nullspace

	method Method
	ok     bool
}

// NewSolver returns a solver using the given options.
func NewSolver(opts Options) (*Solver, error) {
	switch opts.Method {
	case Fullspace, Nullspace, Rangespace:
	default:
		return nil, fmt.Errorf("saddle: unknown method %d", int(opts.Method))
	}
	if opts.PivotTolerance < 0 {
		return nil, fmt.Errorf("saddle: negative pivot tolerance %v", opts.PivotTolerance)
	}
	return &Solver{opts: opts}, nil
}

// Method returns the configured factorization strategy.
func (s *Solver) Method() Method {
	return s.opts.Method
}

// Decompose factorizes the saddle point matrix for subsequent Solve calls.
//
// The blocks of m are read during Decompose only and may be modified freely
// afterwards. An error invalidates any previous factorization:
//
//   - canon.ErrDimensionMismatch when the blocks have inconsistent shapes
//   - ErrStrategyPrecondition when the matrix violates the structural
//     requirements of the configured method
//   - canon.ErrSingularStructure when the constraint rows are linearly
//     dependent and no factorization exists
func (s *Solver) Decompose(m *Matrix) error {
	s.ok = false
	if m == nil {
		return fmt.Errorf("saddle: decompose of nil matrix: %w", canon.ErrDimensionMismatch)
	}
	if err := m.validate(); err != nil {
		return err
	}

	n, mu, ml := m.Dims()
	s.n, s.mu, s.ml, s.t = n, mu, ml, n+mu+ml

	if cap(s.fixed) < n {
		s.fixed = make([]bool, n)
	} else {
		s.fixed = s.fixed[:n]
		for i := range s.fixed {
			s.fixed[i] = false
		}
	}
	for _, j := range m.Jf {
		s.fixed[j] = true
	}
	s.free = s.free[:0]
	for j := 0; j < n; j++ {
		if !s.fixed[j] {
			s.free = append(s.free, j)
		}
	}

	var err error
	switch s.opts.Method {
	case Fullspace:
		err = s.fs.decompose(s, m)
	case Rangespace:
		err = s.rs.decompose(s, m)
	case Nullspace:
		err = s.ns.decompose(s, m)
	}
	if err != nil {
		return err
	}
	s.method = s.opts.Method
	s.ok = true
	return nil
}

// Solve computes the solution of the factorized system for the right-hand
// side r and stores it into sol. Both vectors have length t = n + mu + ml and
// may not alias. Entries of r at fixed variables pass through unchanged.
//
// Solve returns ErrNotDecomposed when no valid factorization is present and
// canon.ErrDimensionMismatch when the vector lengths disagree with the
// decomposed matrix.
func (s *Solver) Solve(r, sol []float64) error {
	if !s.ok {
		return ErrNotDecomposed
	}
	if len(r) != s.t {
		return fmt.Errorf("saddle: right-hand side has %d entries, want %d: %w", len(r), s.t, canon.ErrDimensionMismatch)
	}
	if len(sol) != s.t {
		return fmt.Errorf("saddle: solution has %d entries, want %d: %w", len(sol), s.t, canon.ErrDimensionMismatch)
	}
	var err error
	switch s.method {
	case Fullspace:
		err = s.fs.solve(s, r, sol)
	case Rangespace:
		err = s.rs.solve(s, r, sol)
	case Nullspace:
		err = s.ns.solve(s, r, sol)
	}
	if err != nil {
		return err
	}
	for j := 0; j < s.n; j++ {
		if s.fixed[j] {
			sol[j] = r[j]
		}
	}
	return nil
}

// resize returns s with length n, reallocating when the capacity is short.
func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}
