// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package canon

import "errors"

// Sentinel errors reported by the canonical decomposition types.
// Callers should compare with errors.Is since returned errors may wrap
// these values with extra context.
var (
	// ErrSingularStructure indicates that no rank-consistent basic set of the
	// required size exists for the declared dimensions. This points at
	// malformed input (non-finite entries, impossible shapes), not at plain
	// rank deficiency, which is a handled outcome reported through Dims.
	ErrSingularStructure = errors.New("canon: no rank-consistent basic set for declared dimensions")

	// ErrDimensionMismatch indicates an input vector or matrix whose shape
	// is inconsistent with the declared problem dimensions. It is reported
	// before any numerical work begins.
	ErrDimensionMismatch = errors.New("canon: dimension mismatch")
)
