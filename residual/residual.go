// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package residual

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/kkt/canon"
)

// ResidualVector evaluates the first-order optimality residuals of the
// optimization problem in the canonical coordinate system of a master matrix.
//
// For a canonical partition with stable variables js, unstable variables ju
// and reduction 𝐑, an update with the current primal/dual state and model
// derivatives produces
//
//	xs  = -(g[js] + 𝐀sᵀy + 𝐉sᵀz)
//	p   = -v
//	wbs = (𝐑·[ay; az])[:nbs]    ay = -(𝐀s·x[js] + 𝐀u·x[ju] + 𝐀p·p - b)
//	                            az = -h
//
// restricted to the nbs basic stable rows. The assembler performs no row
// dropping of its own: it trusts the partition it is given.
type ResidualVector struct {
	nx, np, ny, nz int

	xs  []float64
	p   []float64
	wbs []float64

	aw       []float64
	xjs, xju []float64
}

// CanonicalVector gives access to the components of the canonical residual
// vector. The slices are views into the assembler state, valid until the
// next Update.
type CanonicalVector struct {
	Xs  []float64 // residual of the stable variables, in Stable order
	P   []float64 // residual of the parameters
	Wbs []float64 // reduced constraint residual of the basic stable rows
}

// NewResidualVector creates an assembler for a problem with nx variables,
// np parameters, ny linear equality constraints and nz nonlinear constraints.
func NewResidualVector(nx, np, ny, nz int) (*ResidualVector, error) {
	if nx < 1 || np < 0 || ny < 0 || nz < 0 {
		return nil, fmt.Errorf("residual: assembler dims %d/%d/%d/%d: %w", nx, np, ny, nz, canon.ErrDimensionMismatch)
	}
	return &ResidualVector{nx: nx, np: np, ny: ny, nz: nz}, nil
}

// Update evaluates the canonical residual for the given partition and state:
// primal variables x, parameters p, equality multipliers y, nonlinear
// constraint multipliers z, gradient g, parameter stationarity v, and the
// constraint residual targets b and h.
func (rv *ResidualVector) Update(f *canon.CanonicalForm, x, p, y, z, g, v, b, h []float64) error {
	if f == nil {
		return fmt.Errorf("residual: update without canonical form: %w", canon.ErrDimensionMismatch)
	}
	d := f.Dims
	switch {
	case d.Nx != rv.nx || d.Np != rv.np || d.Ny != rv.ny || d.Nz != rv.nz:
		return fmt.Errorf("residual: partition dims %d/%d/%d/%d, assembler dims %d/%d/%d/%d: %w",
			d.Nx, d.Np, d.Ny, d.Nz, rv.nx, rv.np, rv.ny, rv.nz, canon.ErrDimensionMismatch)
	case len(x) != rv.nx || len(g) != rv.nx:
		return fmt.Errorf("residual: len(x)=%d len(g)=%d, want %d: %w", len(x), len(g), rv.nx, canon.ErrDimensionMismatch)
	case len(p) != rv.np || len(v) != rv.np:
		return fmt.Errorf("residual: len(p)=%d len(v)=%d, want %d: %w", len(p), len(v), rv.np, canon.ErrDimensionMismatch)
	case len(y) != rv.ny || len(b) != rv.ny:
		return fmt.Errorf("residual: len(y)=%d len(b)=%d, want %d: %w", len(y), len(b), rv.ny, canon.ErrDimensionMismatch)
	case len(z) != rv.nz || len(h) != rv.nz:
		return fmt.Errorf("residual: len(z)=%d len(h)=%d, want %d: %w", len(z), len(h), rv.nz, canon.ErrDimensionMismatch)
	}

	ns, nu := d.Ns, d.Nu
	ny, nz := rv.ny, rv.nz

	// xs = -(g[js] + 𝐀sᵀy + 𝐉sᵀz)
	rv.xs = resize(rv.xs, ns)
	for k, j := range f.Stable {
		acc := g[j]
		for i := 0; i < ny; i++ {
			acc += f.As.At(i, k) * y[i]
		}
		for i := 0; i < nz; i++ {
			acc += f.Js.At(i, k) * z[i]
		}
		rv.xs[k] = -acc
	}

	// p = -v
	rv.p = resize(rv.p, rv.np)
	for i, vi := range v {
		rv.p[i] = -vi
	}

	rv.xjs = resize(rv.xjs, ns)
	for k, j := range f.Stable {
		rv.xjs[k] = x[j]
	}
	rv.xju = resize(rv.xju, nu)
	for k, j := range f.Unstable {
		rv.xju[k] = x[j]
	}

	// aw = [ay; az]
	rv.aw = resize(rv.aw, d.Nw)
	for i := 0; i < ny; i++ {
		acc := -b[i]
		if ns > 0 {
			acc += floats.Dot(f.As.RawRowView(i), rv.xjs)
		}
		if nu > 0 {
			acc += floats.Dot(f.Au.RawRowView(i), rv.xju)
		}
		if rv.np > 0 {
			acc += floats.Dot(f.Ap.RawRowView(i), p)
		}
		rv.aw[i] = -acc
	}
	for i := 0; i < nz; i++ {
		rv.aw[ny+i] = -h[i]
	}

	// wbs = (𝐑·aw)[:nbs]
	rv.wbs = resize(rv.wbs, d.Nbs)
	for i := 0; i < d.Nbs; i++ {
		rv.wbs[i] = floats.Dot(f.R.RawRowView(i), rv.aw)
	}
	return nil
}

// CanonicalVector returns the components computed by the last Update.
func (rv *ResidualVector) CanonicalVector() CanonicalVector {
	return CanonicalVector{Xs: rv.xs, P: rv.p, Wbs: rv.wbs}
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}
