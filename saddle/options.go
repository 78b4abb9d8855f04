// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package saddle

// Method selects the factorization strategy applied during Decompose.
//
// All methods compute the same solution up to roundoff. They differ in the
// shape of the factorized system and in the structure they demand from the
// matrix blocks:
//
//   - Fullspace factorizes the assembled saddle point matrix directly and
//     accepts any well-formed input.
//   - Nullspace eliminates the constraint rows through a basis of their
//     nullspace and requires a zero 𝐆 block.
//   - Rangespace eliminates the primal variables through the inverse of the
//     Hessian diagonal and requires a diagonal, invertible Hessian block.
type Method int

const (
	Fullspace Method = iota
	Nullspace
	Rangespace
)

// String returns the lowercase name of the method.
func (m Method) String() string {
	switch m {
	case Fullspace:
		return "fullspace"
	case Nullspace:
		return "nullspace"
	case Rangespace:
		return "rangespace"
	}
	return "unknown"
}

// Options configure a Solver.
type Options struct {
	// Method selects the factorization strategy. The zero value is Fullspace.
	Method Method
	// PivotTolerance overrides the relative tolerance used for rank and
	// invertibility decisions inside Decompose. Zero keeps the defaults of
	// the underlying factorizations.
	PivotTolerance float64
}
