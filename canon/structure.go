// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package canon

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Structure describes the fixed structure of an optimization problem: the
// number of variables n, the number of linear equality constraints m, the
// constraint Jacobian 𝐀 ∈ ℝᵐˣⁿ, and the classification of the variables by
// bound type. The decomposition and solver types only read it; the outer
// algorithm mutates the classifications between solves.
//
// Each classification (lower bounds, upper bounds, fixed values) is an index
// set over 0..n-1 kept sorted in ascending order, with its complement exposed
// by the corresponding VariablesWithout method. The classifications are
// independent of each other.
type Structure struct {
	// A is the m×n Jacobian of the equality constraints, owned by the caller.
	A *mat.Dense

	n, m  int
	lower []int
	upper []int
	fixed []int
}

// NewStructure creates a problem structure with n variables and m linear
// equality constraints and no classified variables.
func NewStructure(n, m int) (*Structure, error) {
	if n < 1 || m < 0 {
		return nil, fmt.Errorf("structure with %d variables and %d constraints: %w", n, m, ErrDimensionMismatch)
	}
	return &Structure{n: n, m: m}, nil
}

// NumVariables returns the number of variables n.
func (s *Structure) NumVariables() int { return s.n }

// NumEqualityConstraints returns the number of equality constraints m.
func (s *Structure) NumEqualityConstraints() int { return s.m }

// SetVariablesWithLowerBounds classifies the given variables as lower bounded.
// The previous classification is replaced. Duplicate indices are ignored.
func (s *Structure) SetVariablesWithLowerBounds(idx []int) error {
	set, err := s.indexSet(idx)
	if err != nil {
		return fmt.Errorf("set lower bounded variables: %w", err)
	}
	s.lower = set
	return nil
}

// SetVariablesWithUpperBounds classifies the given variables as upper bounded.
// The previous classification is replaced. Duplicate indices are ignored.
func (s *Structure) SetVariablesWithUpperBounds(idx []int) error {
	set, err := s.indexSet(idx)
	if err != nil {
		return fmt.Errorf("set upper bounded variables: %w", err)
	}
	s.upper = set
	return nil
}

// SetVariablesWithFixedValues classifies the given variables as fixed.
// The previous classification is replaced. Duplicate indices are ignored.
func (s *Structure) SetVariablesWithFixedValues(idx []int) error {
	set, err := s.indexSet(idx)
	if err != nil {
		return fmt.Errorf("set fixed variables: %w", err)
	}
	s.fixed = set
	return nil
}

// AllVariablesHaveLowerBounds classifies every variable as lower bounded.
func (s *Structure) AllVariablesHaveLowerBounds() { s.lower = indices(s.n) }

// AllVariablesHaveUpperBounds classifies every variable as upper bounded.
func (s *Structure) AllVariablesHaveUpperBounds() { s.upper = indices(s.n) }

// VariablesWithLowerBounds returns the lower bounded variables in ascending order.
func (s *Structure) VariablesWithLowerBounds() []int { return s.lower }

// VariablesWithoutLowerBounds returns the variables with no lower bound in ascending order.
func (s *Structure) VariablesWithoutLowerBounds() []int { return complement(s.n, s.lower) }

// VariablesWithUpperBounds returns the upper bounded variables in ascending order.
func (s *Structure) VariablesWithUpperBounds() []int { return s.upper }

// VariablesWithoutUpperBounds returns the variables with no upper bound in ascending order.
func (s *Structure) VariablesWithoutUpperBounds() []int { return complement(s.n, s.upper) }

// VariablesWithFixedValues returns the fixed variables in ascending order.
func (s *Structure) VariablesWithFixedValues() []int { return s.fixed }

// VariablesWithoutFixedValues returns the free variables in ascending order.
func (s *Structure) VariablesWithoutFixedValues() []int { return complement(s.n, s.fixed) }

// indexSet copies, sorts and deduplicates idx, rejecting entries outside 0..n-1.
func (s *Structure) indexSet(idx []int) ([]int, error) {
	set := make([]int, 0, len(idx))
	for _, i := range idx {
		if i < 0 || i >= s.n {
			return nil, fmt.Errorf("variable index %d outside 0..%d: %w", i, s.n-1, ErrDimensionMismatch)
		}
		set = append(set, i)
	}
	sort.Ints(set)
	w := 0
	for r, v := range set {
		if r == 0 || v != set[w-1] {
			set[w] = v
			w++
		}
	}
	return set[:w], nil
}

// complement returns the ascending indices of 0..n-1 not present in the sorted set.
func complement(n int, set []int) []int {
	out := make([]int, 0, n-len(set))
	k := 0
	for i := 0; i < n; i++ {
		if k < len(set) && set[k] == i {
			k++
			continue
		}
		out = append(out, i)
	}
	return out
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
