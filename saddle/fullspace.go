// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package saddle

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/kkt/canon"
)

// fullspace factorizes the assembled saddle point matrix with a dense LU.
// It accepts any well-formed matrix and serves as the reference strategy.
type fullspace struct {
	lu mat.LU
}

func (f *fullspace) decompose(s *Solver, m *Matrix) error {
	f.lu.Factorize(m.Dense())
	if det := f.lu.Det(); det == zero || math.IsNaN(det) {
		return fmt.Errorf("saddle: fullspace matrix is singular: %w", canon.ErrSingularStructure)
	}
	return nil
}

func (f *fullspace) solve(s *Solver, r, sol []float64) error {
	dst := mat.NewVecDense(s.t, sol)
	if err := f.lu.SolveVecTo(dst, false, mat.NewVecDense(s.t, r)); err != nil {
		return fmt.Errorf("saddle: fullspace solve: %w", err)
	}
	return nil
}
