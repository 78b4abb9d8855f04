// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package canon

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// dominantMatrix returns an m×n full row rank matrix where row i carries a
// dominant entry at column (offset+i) mod n over a sinusoidal background.
func dominantMatrix(m, n, offset int) *mat.Dense {
	a := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, 0.5*math.Sin(float64(1+i*n+j)))
		}
		a.Set(i, (offset+i)%n, ten+float64(i))
	}
	return a
}

// scaledBasisMatrix returns an m×n matrix whose leading m×m block is 16·𝐈 and
// whose trailing columns hold small multiples of 16. Since the eliminations
// reduce to exponent shifts, the canonical factors are exact in floating point.
func scaledBasisMatrix(m, n int) *mat.Dense {
	a := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		a.Set(i, i, 16)
		for j := m; j < n; j++ {
			a.Set(i, j, 16*float64(1+(i+j)%3)/10)
		}
	}
	return a
}

// canonicalResidual returns the largest entry of 𝐑·𝐀·𝐐 − [𝐈 𝐒], covering the
// zero rows of the linearly dependent part as well.
func canonicalResidual(e *Echelonizer, a mat.Matrix) float64 {
	m, _ := a.Dims()
	var ra mat.Dense
	ra.Mul(e.R(), a)
	c := e.C()
	worst := zero
	for i := 0; i < m; i++ {
		for k, j := range e.Q() {
			worst = math.Max(worst, math.Abs(ra.At(i, j)-c.At(i, k)))
		}
	}
	return worst
}

func TestEchelonizerCanonicalForm(t *testing.T) {
	cases := []struct{ m, n, offset int }{
		{1, 1, 0}, {1, 4, 0}, {3, 7, 2}, {5, 10, 0}, {4, 10, 3}, {6, 6, 2}, {8, 12, 7},
	}
	for _, tc := range cases {
		a := dominantMatrix(tc.m, tc.n, tc.offset)
		e, err := NewEchelonizer(a)
		require.NoError(t, err)

		require.Equal(t, tc.m, e.NumEquations())
		require.Equal(t, tc.n, e.NumVariables())
		require.Equal(t, tc.m, e.NumBasicVariables(), "full row rank input")
		require.Equal(t, tc.n-tc.m, e.NumNonBasicVariables())
		require.Len(t, e.Basic(), tc.m)
		require.Len(t, e.NonBasic(), tc.n-tc.m)
		require.True(t, isPermutation(e.Q()))
		require.True(t, isPermutation(e.Equations()))
		if tc.n == tc.m {
			require.Nil(t, e.S())
		} else {
			r, c := e.S().Dims()
			require.Equal(t, tc.m, r)
			require.Equal(t, tc.n-tc.m, c)
		}

		res := canonicalResidual(e, a)
		t.Logf("%d×%d offset %d : residual %.3e", tc.m, tc.n, tc.offset, res)
		require.Less(t, res, 1e-12)
	}
}

func TestEchelonizerExactFactors(t *testing.T) {
	const m, n = 3, 7
	a := scaledBasisMatrix(m, n)
	e, err := NewEchelonizer(a)
	require.NoError(t, err)

	// a uniform power of two basis makes every factor entry exact
	require.Equal(t, []int{0, 1, 2}, e.Basic())
	require.Equal(t, []int{3, 4, 5, 6}, e.NonBasic())
	for i := 0; i < m; i++ {
		for k := 0; k < n-m; k++ {
			require.Equal(t, float64(1+(i+m+k)%3)/10, e.S().At(i, k))
		}
	}
	require.Equal(t, 0.0, canonicalResidual(e, a))
}

func TestEchelonizerRankDeficient(t *testing.T) {
	t.Run("duplicate rows", func(t *testing.T) {
		a := mat.NewDense(5, 8, nil)
		a.Copy(dominantMatrix(3, 8, 2))
		a.SetRow(3, a.RawRowView(0))
		a.SetRow(4, a.RawRowView(1))

		e, err := NewEchelonizer(a)
		require.NoError(t, err)
		require.Equal(t, 3, e.NumBasicVariables())
		require.Equal(t, []int{4, 3, 2}, e.Basic(), "dominant columns in pivot order")

		eq := e.Equations()
		for i := 0; i < 3; i++ {
			require.Less(t, eq[i], 3, "independent row %d", i)
		}
		require.GreaterOrEqual(t, eq[3], 3, "duplicated row")
		require.GreaterOrEqual(t, eq[4], 3, "duplicated row")

		require.Less(t, canonicalResidual(e, a), 1e-12)
	})

	t.Run("zero matrix", func(t *testing.T) {
		e, err := NewEchelonizer(mat.NewDense(2, 5, nil))
		require.NoError(t, err)
		require.Equal(t, 0, e.NumBasicVariables())
		require.Nil(t, e.S())
		require.Empty(t, e.Basic())
		require.True(t, mat.Equal(mat.NewDense(2, 5, nil), e.C()))
	})

	t.Run("negligible entries", func(t *testing.T) {
		a := mat.NewDense(2, 4, []float64{
			1e-16, 2e-16, -3e-16, 5e-16,
			-2e-16, 8e-16, 4e-16, -1e-16,
		})
		e, err := NewEchelonizer(a)
		require.NoError(t, err)
		require.Equal(t, 0, e.NumBasicVariables(), "pivots below 10𝜀 report rank zero")
	})
}

func TestEchelonizerComputeChecks(t *testing.T) {
	_, err := NewEchelonizer(mat.NewDense(3, 2, nil))
	require.ErrorIs(t, err, ErrDimensionMismatch)

	a := dominantMatrix(2, 4, 0)
	a.Set(1, 2, math.NaN())
	_, err = NewEchelonizer(a)
	require.ErrorIs(t, err, ErrSingularStructure)

	a = dominantMatrix(2, 4, 0)
	a.Set(0, 3, math.Inf(1))
	_, err = NewEchelonizer(a)
	require.ErrorIs(t, err, ErrSingularStructure)
}

func TestEchelonizerSetThreshold(t *testing.T) {
	a := mat.NewDense(4, 6, nil)
	for i := 0; i < 4; i++ {
		a.Set(i, i, 16/math.Pow(2, float64(i)))
		a.Set(i, 4, 1)
		a.Set(i, 5, 1)
	}

	e, err := NewEchelonizer(a)
	require.NoError(t, err)
	require.Equal(t, 4, e.NumBasicVariables())

	// pivots 4 and 2 fall below 0.3 of the maximum pivot 16
	e.SetThreshold(0.3)
	require.NoError(t, e.Compute(a))
	require.Equal(t, 2, e.NumBasicVariables())
	require.Equal(t, []int{0, 1}, e.Basic())

	e.SetThreshold(0)
	require.NoError(t, e.Compute(a))
	require.Equal(t, 4, e.NumBasicVariables())
}

func TestEchelonizerSwapBasicVariable(t *testing.T) {
	a := scaledBasisMatrix(3, 7)
	e, err := NewEchelonizer(a)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, e.Basic())

	require.NoError(t, e.SwapBasicVariable(1, 2))
	require.Equal(t, []int{0, 5, 2}, e.Basic())
	require.Equal(t, []int{3, 4, 1}, e.NonBasic())
	require.Less(t, canonicalResidual(e, a), 1e-12)

	require.ErrorIs(t, e.SwapBasicVariable(3, 0), ErrDimensionMismatch)
	require.ErrorIs(t, e.SwapBasicVariable(0, 4), ErrDimensionMismatch)
	require.ErrorIs(t, e.SwapBasicVariable(-1, 0), ErrDimensionMismatch)
}

func TestEchelonizerSwapZeroPivot(t *testing.T) {
	a := scaledBasisMatrix(3, 7)
	for i := 0; i < 3; i++ {
		a.Set(i, 6, a.At(i, 0)) // duplicate a basic column
	}
	e, err := NewEchelonizer(a)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, e.Basic())

	// the duplicated column reduces to a unit column of 𝐒, so it can only
	// replace its twin in the basis
	require.ErrorIs(t, e.SwapBasicVariable(1, 3), ErrSingularStructure)
	require.ErrorIs(t, e.SwapBasicVariable(2, 3), ErrSingularStructure)
	require.NoError(t, e.SwapBasicVariable(0, 3))
	require.Equal(t, []int{6, 1, 2}, e.Basic())
	require.Less(t, canonicalResidual(e, a), 1e-12)
}

func TestEchelonizerUpdateWithPriorityWeights(t *testing.T) {
	a := scaledBasisMatrix(4, 9)
	e, err := NewEchelonizer(a)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, e.Basic())

	w := []float64{1e-16, 1e-16, 1, 1, 1, 1, 4, 3, 1}
	require.NoError(t, e.UpdateWithPriorityWeights(w))

	basic, nonBasic := e.Basic(), e.NonBasic()
	t.Logf("basic %v non-basic %v", basic, nonBasic)
	require.Contains(t, basic, 6)
	require.Contains(t, basic, 7)
	require.NotContains(t, basic, 0, "negligible weight leaves the basis")
	require.NotContains(t, basic, 1, "negligible weight leaves the basis")
	for i := 1; i < len(basic); i++ {
		require.GreaterOrEqual(t, w[basic[i-1]], w[basic[i]])
	}
	for i := 1; i < len(nonBasic); i++ {
		require.GreaterOrEqual(t, w[nonBasic[i-1]], w[nonBasic[i]])
	}
	require.Less(t, canonicalResidual(e, a), 1e-12)

	require.ErrorIs(t, e.UpdateWithPriorityWeights(w[:5]), ErrDimensionMismatch)
}

func TestEchelonizerUpdateOrdering(t *testing.T) {
	a := scaledBasisMatrix(3, 7)
	e, err := NewEchelonizer(a)
	require.NoError(t, err)

	require.NoError(t, e.UpdateOrdering([]int{2, 0, 1}, []int{1, 2, 0, 3}))
	require.Equal(t, []int{2, 0, 1}, e.Basic())
	require.Equal(t, []int{4, 5, 3, 6}, e.NonBasic())
	require.Less(t, canonicalResidual(e, a), 1e-12)

	require.ErrorIs(t, e.UpdateOrdering([]int{0, 1}, []int{0, 1, 2, 3}), ErrDimensionMismatch)
	require.ErrorIs(t, e.UpdateOrdering([]int{0, 0, 1}, []int{0, 1, 2, 3}), ErrDimensionMismatch)
	require.ErrorIs(t, e.UpdateOrdering([]int{0, 1, 2}, []int{0, 0, 1, 2}), ErrDimensionMismatch)
}

func TestEchelonizerReset(t *testing.T) {
	a := scaledBasisMatrix(3, 7)
	e, err := NewEchelonizer(a)
	require.NoError(t, err)

	q := append([]int(nil), e.Q()...)
	r := mat.DenseCopyOf(e.R())
	s := mat.DenseCopyOf(e.S())

	require.NoError(t, e.SwapBasicVariable(0, 0))
	require.NotEqual(t, q, e.Q())

	e.Reset()
	require.Equal(t, q, e.Q())
	require.True(t, mat.Equal(r, e.R()))
	require.True(t, mat.Equal(s, e.S()))
}

func TestEchelonizerCleanResidualRoundoffErrors(t *testing.T) {
	a := mat.NewDense(4, 6, nil)
	for i := 0; i < 4; i++ {
		a.Set(i, i, 16/math.Pow(2, float64(i)))
		a.Set(i, 4, 1)
		a.Set(i, 5, 1)
	}
	e, err := NewEchelonizer(a)
	require.NoError(t, err)
	require.Equal(t, 0.0625, e.S().At(0, 0))

	// inject round-off below the matrix magnitude and flush it
	e.s.Set(0, 0, e.s.At(0, 0)+1e-15)
	e.r.Set(0, 1, 1e-15)
	require.NotEqual(t, 0.0625, e.s.At(0, 0))

	e.CleanResidualRoundoffErrors()
	require.Equal(t, 0.0625, e.S().At(0, 0))
	require.Equal(t, 0.0, e.R().At(0, 1))
}
