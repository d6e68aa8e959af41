package fitting

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spectro/chromatic"
	"github.com/cwbudde/algo-spectro/psf"
)

// designColumn is one column of the sparse 2-D design matrix: the unit-flux
// pixel footprint of one PSF over its kernel neighbourhood.
type designColumn struct {
	jmin, jmax int
	vals       []float64 // (jmax-jmin+1) x ny, column major
}

func (c *designColumn) at(j, y, ny int) float64 {
	return c.vals[(j-c.jmin)*ny+y]
}

// buildDesign renders the unit PSF footprint of every column from the given
// per-column [amplitude, center, shape...] rows.
func buildDesign(t *chromatic.Table, rows [][]float64) []designColumn {
	design := make([]designColumn, t.Nx)
	for i := 0; i < t.Nx; i++ {
		row := rows[i]
		p := psf.Params{
			Amplitude: 1,
			CenterX:   t.XC[i],
			CenterY:   row[1],
			Shape:     row[2:],
		}

		w := chromatic.KernelHalfWidth(t.Profile.FWHM(row[2:]))
		jmin, jmax := i-w, i+w
		if jmin < 0 {
			jmin = 0
		}

		if jmax >= t.Nx {
			jmax = t.Nx - 1
		}

		vals := make([]float64, (jmax-jmin+1)*t.Ny)
		for j := jmin; j <= jmax; j++ {
			for y := 0; y < t.Ny; y++ {
				vals[(j-jmin)*t.Ny+y] = t.Profile.Evaluate(float64(j), float64(y), p)
			}
		}

		design[i] = designColumn{jmin: jmin, jmax: jmax, vals: vals}
	}

	return design
}

// normalEquations assembles M^T W M and M^T W d from the sparse design.
// Only column pairs with overlapping footprints contribute.
func normalEquations(t *chromatic.Table, design []designColumn, resid, weights *mat.Dense) (*mat.SymDense, []float64) {
	n := mat.NewSymDense(t.Nx, nil)
	b := make([]float64, t.Nx)

	for i := 0; i < t.Nx; i++ {
		ci := &design[i]

		for j := ci.jmin; j <= ci.jmax; j++ {
			for y := 0; y < t.Ny; y++ {
				w := weights.At(y, j)
				if w == 0 {
					continue
				}

				b[i] += ci.at(j, y, t.Ny) * w * resid.At(y, j)
			}
		}

		for k := i; k < t.Nx; k++ {
			ck := &design[k]
			lo, hi := ci.jmin, ci.jmax
			if ck.jmin > lo {
				lo = ck.jmin
			}

			if ck.jmax < hi {
				hi = ck.jmax
			}

			if lo > hi {
				continue
			}

			sum := 0.0
			for j := lo; j <= hi; j++ {
				for y := 0; y < t.Ny; y++ {
					w := weights.At(y, j)
					if w == 0 {
						continue
					}

					sum += ci.at(j, y, t.Ny) * w * ck.at(j, y, t.Ny)
				}
			}

			n.SetSym(i, k, sum)
		}
	}

	return n, b
}

// solve2D performs the regularised joint amplitude solve
// (M^T W M + r Q) A = M^T W d + r Q A0 with Q = diag(1/var(A0)).
func solve2D(t *chromatic.Table, rows [][]float64, resid, weights *mat.Dense, reg float64, priorAmp, priorVar []float64) (*solveResult, error) {
	design := buildDesign(t, rows)
	n, b := normalEquations(t, design, resid, weights)

	if reg > 0 {
		for i := 0; i < t.Nx; i++ {
			n.SetSym(i, i, n.At(i, i)+reg/priorVar[i])
			b[i] += reg * priorAmp[i] / priorVar[i]
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(n); !ok {
		return nil, fmt.Errorf("%w: normal matrix is not positive definite (reg=%g)", ErrFitFailed, reg)
	}

	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, mat.NewVecDense(t.Nx, b)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFitFailed, err)
	}

	amps := make([]float64, t.Nx)
	for i := range amps {
		a := sol.AtVec(i)
		if a < 0 {
			a = 0
		}

		amps[i] = a
	}

	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFitFailed, err)
	}

	ampErrs := make([]float64, t.Nx)
	for i := range ampErrs {
		v := cov.At(i, i)
		if v > 0 {
			ampErrs[i] = math.Sqrt(v)
		}
	}

	return &solveResult{
		amps:    amps,
		ampErrs: ampErrs,
		cov:     &cov,
		chi2:    designChi2(t, design, amps, resid, weights),
	}, nil
}

// designChi2 evaluates the weighted residual sum of the model implied by
// the design and amplitudes.
func designChi2(t *chromatic.Table, design []designColumn, amps []float64, resid, weights *mat.Dense) float64 {
	model := mat.NewDense(t.Ny, t.Nx, nil)
	for i := range design {
		c := &design[i]
		for j := c.jmin; j <= c.jmax; j++ {
			for y := 0; y < t.Ny; y++ {
				model.Set(y, j, model.At(y, j)+amps[i]*c.at(j, y, t.Ny))
			}
		}
	}

	chi2 := 0.0
	for y := 0; y < t.Ny; y++ {
		for x := 0; x < t.Nx; x++ {
			w := weights.At(y, x)
			if w == 0 {
				continue
			}

			r := resid.At(y, x) - model.At(y, x)
			chi2 += w * r * r
		}
	}

	return chi2
}

// scanRegularisation picks the regularisation strength from the configured
// grid by generalised cross validation: the effective number of model
// degrees of freedom is the trace of (M^T W M + r Q)^-1 M^T W M.
func scanRegularisation(t *chromatic.Table, shapeCoeffs []float64, resid, weights *mat.Dense, priorAmp, priorVar []float64, opts Options) (float64, error) {
	rows, err := profileRows(t, shapeCoeffs)
	if err != nil {
		return 0, err
	}

	design := buildDesign(t, rows)
	n0, b := normalEquations(t, design, resid, weights)

	npix := 0
	for y := 0; y < t.Ny; y++ {
		for x := 0; x < t.Nx; x++ {
			if weights.At(y, x) > 0 {
				npix++
			}
		}
	}

	n0Dense := mat.DenseCopyOf(n0)
	best, bestScore := -1.0, math.Inf(1)
	for _, reg := range opts.RegGrid {
		nr := mat.NewSymDense(t.Nx, nil)
		nr.CopySym(n0)
		br := append([]float64(nil), b...)
		for i := 0; i < t.Nx; i++ {
			nr.SetSym(i, i, nr.At(i, i)+reg/priorVar[i])
			br[i] += reg * priorAmp[i] / priorVar[i]
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(nr); !ok {
			continue
		}

		var sol mat.VecDense
		if err := chol.SolveVecTo(&sol, mat.NewVecDense(t.Nx, br)); err != nil {
			continue
		}

		amps := make([]float64, t.Nx)
		for i := range amps {
			amps[i] = sol.AtVec(i)
		}

		var hat mat.Dense
		if err := chol.SolveTo(&hat, n0Dense); err != nil {
			continue
		}

		trace := 0.0
		for i := 0; i < t.Nx; i++ {
			trace += hat.At(i, i)
		}

		dof := float64(npix) - trace
		if dof <= 0 {
			continue
		}

		chi2 := designChi2(t, design, amps, resid, weights)
		score := float64(npix) * chi2 / (dof * dof)

		opts.Logger.Debug().Float64("reg", reg).Float64("gcv", score).Msg("regularisation candidate")

		if score < bestScore {
			best, bestScore = reg, score
		}
	}

	if best < 0 {
		return 0, fmt.Errorf("%w: no usable regularisation strength on the grid", ErrFitFailed)
	}

	return best, nil
}
