package fitting

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spectro/chromatic"
	"github.com/cwbudde/algo-spectro/psf"
)

// solve1D fits each column amplitude independently by weighted linear least
// squares against the unit transverse profile. The amplitude covariance is
// diagonal.
func solve1D(t *chromatic.Table, rows [][]float64, resid, weights *mat.Dense) (*solveResult, error) {
	amps := make([]float64, t.Nx)
	ampErrs := make([]float64, t.Nx)
	cov := mat.NewSymDense(t.Nx, nil)

	unit := make([]float64, t.Ny)
	chi2 := 0.0
	for i := 0; i < t.Nx; i++ {
		row := rows[i]
		p := psf.Params{Amplitude: 1, CenterY: row[1], Shape: row[2:]}
		for y := range unit {
			unit[y] = t.Profile.Transverse(float64(y), p)
		}

		num, den := 0.0, 0.0
		for y := 0; y < t.Ny; y++ {
			w := weights.At(y, i)
			if w == 0 {
				continue
			}

			num += unit[y] * w * resid.At(y, i)
			den += unit[y] * unit[y] * w
		}

		if den <= 0 {
			continue
		}

		amp := num / den
		if amp < 0 {
			amp = 0
		}

		amps[i] = amp
		ampErrs[i] = math.Sqrt(1 / den)
		cov.SetSym(i, i, 1/den)

		for y := 0; y < t.Ny; y++ {
			w := weights.At(y, i)
			if w == 0 {
				continue
			}

			r := resid.At(y, i) - amp*unit[y]
			chi2 += w * r * r
		}
	}

	return &solveResult{amps: amps, ampErrs: ampErrs, cov: cov, chi2: chi2}, nil
}
