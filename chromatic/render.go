package chromatic

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spectro/psf"
)

// Mode selects the rendering fidelity of the chromatic PSF model.
type Mode int

const (
	// Mode1D sums modeled flux along the cross-dispersion axis per column.
	// Fast; used for stability checks and the first-pass amplitude solve.
	Mode1D Mode = iota

	// Mode2D renders the full pixel grid with cross-column PSF mixing.
	// Used for the joint deconvolution and residual diagnostics.
	Mode2D
)

// String returns the canonical mode name.
func (m Mode) String() string {
	switch m {
	case Mode1D:
		return "1D"
	case Mode2D:
		return "2D"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// KernelHalfWidth returns the column neighbourhood radius over which a PSF
// of the given FWHM contributes in 2-D rendering.
func KernelHalfWidth(fwhm float64) int {
	w := int(math.Ceil(1.5 * fwhm))
	if w < 1 {
		w = 1
	}

	return w
}

// Evaluate renders a synthetic spectrogram from a polynomial parameter
// vector. Mode1D returns a 1 x Nx matrix of per-column summed model flux;
// Mode2D returns the full Ny x Nx pixel grid. Saturation clipping applies
// to the total pixel value.
func (t *Table) Evaluate(poly []float64, mode Mode) (*mat.Dense, error) {
	params, err := t.ProfileParamsFromPoly(poly, true)
	if err != nil {
		return nil, err
	}

	switch mode {
	case Mode1D:
		return t.render1D(params), nil
	case Mode2D:
		return t.render2D(params), nil
	default:
		return nil, fmt.Errorf("chromatic: unsupported render mode %d", int(mode))
	}
}

// render1D sums the clipped transverse profile of each column.
func (t *Table) render1D(params [][]float64) *mat.Dense {
	out := mat.NewDense(1, t.Nx, nil)

	unit := make([]float64, t.Ny)
	scaled := make([]float64, t.Ny)
	for i := 0; i < t.Nx; i++ {
		row := params[i]
		t.unitTransverse(unit, row[1], row[2:])
		vecmath.ScaleBlock(scaled, unit, row[0])

		sum := 0.0
		for _, v := range scaled {
			if t.Saturation > 0 && v > t.Saturation {
				v = t.Saturation
			}

			sum += v
		}

		out.Set(0, i, sum)
	}

	return out
}

// render2D accumulates the radial 2-D profile of every column over its
// kernel neighbourhood, then clips at saturation.
func (t *Table) render2D(params [][]float64) *mat.Dense {
	cols := make([][]float64, t.Nx)
	for j := range cols {
		cols[j] = make([]float64, t.Ny)
	}

	unit := make([]float64, t.Ny)
	scaled := make([]float64, t.Ny)
	for i := 0; i < t.Nx; i++ {
		row := params[i]
		p := psf.Params{
			Amplitude: 1,
			CenterX:   t.XC[i],
			CenterY:   row[1],
			Shape:     row[2:],
		}

		w := KernelHalfWidth(t.Profile.FWHM(row[2:]))
		jmin, jmax := i-w, i+w
		if jmin < 0 {
			jmin = 0
		}

		if jmax >= t.Nx {
			jmax = t.Nx - 1
		}

		for j := jmin; j <= jmax; j++ {
			for y := 0; y < t.Ny; y++ {
				unit[y] = t.Profile.Evaluate(float64(j), float64(y), p)
			}

			vecmath.ScaleBlock(scaled, unit, row[0])
			vecmath.AddBlockInPlace(cols[j], scaled)
		}
	}

	out := mat.NewDense(t.Ny, t.Nx, nil)
	for j := range cols {
		for y, v := range cols[j] {
			if t.Saturation > 0 && v > t.Saturation {
				v = t.Saturation
			}

			out.Set(y, j, v)
		}
	}

	return out
}

// unitTransverse fills dst with the unit-flux transverse profile with the
// given center and shape, without saturation clipping.
func (t *Table) unitTransverse(dst []float64, center float64, shape []float64) {
	p := psf.Params{Amplitude: 1, CenterY: center, Shape: shape}
	for y := range dst {
		dst[y] = t.Profile.Transverse(float64(y), p)
	}
}
