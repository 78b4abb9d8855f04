// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package saddle

import "errors"

// Sentinel errors reported by the saddle point solver. Callers should compare
// with errors.Is since returned errors may wrap these values with context.
var (
	// ErrStrategyPrecondition indicates that the numerical precondition of the
	// selected method is violated by the given matrix, e.g. Rangespace with a
	// non-diagonal Hessian block. The usual reaction is to fall back to the
	// Fullspace method; the solver never retries internally.
	ErrStrategyPrecondition = errors.New("saddle: strategy precondition violated")

	// ErrNotDecomposed indicates a Solve call without a preceding successful
	// Decompose.
	ErrNotDecomposed = errors.New("saddle: solve requires a successful decompose")
)
