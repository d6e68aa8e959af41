package chromatic

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spectro/internal/numeric"
	"github.com/cwbudde/algo-spectro/psf"
)

// PolyLen returns the length of the polynomial parameter vector: Nx
// amplitudes followed by (deg+1) coefficients for the center and for each
// shape parameter.
func (t *Table) PolyLen() int {
	return t.Nx + (1+t.NumShape())*(t.Deg+1)
}

// scaledX maps column index i to the fit coordinate u in [-1, 1].
func (t *Table) scaledX(i int) float64 {
	if t.Nx == 1 {
		return 0
	}

	return 2*float64(i)/float64(t.Nx-1) - 1
}

// PolyParams converts the table to its polynomial parameter vector by
// least-squares fitting each shape column against the scaled column
// coordinate. The inverse is ProfileParamsFromPoly followed by
// FillFromProfileParams; the round trip is exact for columns that are
// polynomials of degree <= Deg.
func (t *Table) PolyParams() ([]float64, error) {
	poly := make([]float64, 0, t.PolyLen())
	poly = append(poly, t.Amplitude...)

	centerCoeffs, err := t.fitPoly(t.YC)
	if err != nil {
		return nil, err
	}

	poly = append(poly, centerCoeffs...)

	for k := range t.Shape {
		coeffs, err := t.fitPoly(t.Shape[k])
		if err != nil {
			return nil, err
		}

		poly = append(poly, coeffs...)
	}

	return poly, nil
}

// ProfileParamsFromPoly expands a polynomial parameter vector into
// per-column profile parameters [amplitude, center, shape...]. When
// applyBounds is set, the center is clamped to the crop and each shape
// parameter to its family bounds.
func (t *Table) ProfileParamsFromPoly(poly []float64, applyBounds bool) ([][]float64, error) {
	if len(poly) != t.PolyLen() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadPolyLength, len(poly), t.PolyLen())
	}

	nShape := t.NumShape()
	bounds := t.Profile.ShapeBounds(float64(t.Ny))

	centerCoeffs := poly[t.Nx : t.Nx+t.Deg+1]
	shapeCoeffs := make([][]float64, nShape)
	for k := 0; k < nShape; k++ {
		lo := t.Nx + (1+k)*(t.Deg+1)
		shapeCoeffs[k] = poly[lo : lo+t.Deg+1]
	}

	params := make([][]float64, t.Nx)
	for i := 0; i < t.Nx; i++ {
		u := t.scaledX(i)

		row := make([]float64, 2+nShape)
		row[0] = poly[i]
		row[1] = evalPoly(centerCoeffs, u)
		if applyBounds {
			row[1] = numeric.Clamp(row[1], 0, float64(t.Ny-1))
		}

		for k := 0; k < nShape; k++ {
			v := evalPoly(shapeCoeffs[k], u)
			if applyBounds {
				v = numeric.Clamp(v, bounds[k].Lower, bounds[k].Upper)
			}

			row[2+k] = v
		}

		params[i] = row
	}

	return params, nil
}

// FillFromProfileParams writes per-column profile parameters back into the
// table columns and refreshes the derived quantities (FWHM, model flux
// integral, FWHM bands).
func (t *Table) FillFromProfileParams(params [][]float64) error {
	if len(params) != t.Nx {
		return fmt.Errorf("%w: %d rows for Nx=%d", ErrLengthMismatch, len(params), t.Nx)
	}

	for i, row := range params {
		t.Amplitude[i] = row[0]
		t.YC[i] = row[1]
		for k := range t.Shape {
			t.Shape[k][i] = row[2+k]
		}

		t.FWHM[i] = t.Profile.FWHM(row[2:])
		t.FluxIntegral[i] = t.columnIntegral(i)
	}

	t.updateFWHMBands()

	return nil
}

// columnIntegral sums the rendered transverse profile of column i over the
// crop height, including saturation clipping.
func (t *Table) columnIntegral(i int) float64 {
	p := psf.Params{
		Amplitude:  t.Amplitude[i],
		CenterX:    t.XC[i],
		CenterY:    t.YC[i],
		Shape:      t.shapeAt(i),
		Saturation: t.Saturation,
	}

	sum := 0.0
	for y := 0; y < t.Ny; y++ {
		sum += t.Profile.Transverse(float64(y), p)
	}

	return sum
}

// fitPoly fits a degree-Deg polynomial in the scaled coordinate to ys by
// QR least squares.
func (t *Table) fitPoly(ys []float64) ([]float64, error) {
	if len(ys) != t.Nx {
		return nil, fmt.Errorf("%w: %d values for Nx=%d", ErrLengthMismatch, len(ys), t.Nx)
	}

	cols := t.Deg + 1
	vand := mat.NewDense(t.Nx, cols, nil)
	for i := 0; i < t.Nx; i++ {
		u := t.scaledX(i)
		p := 1.0
		for j := 0; j < cols; j++ {
			vand.Set(i, j, p)
			p *= u
		}
	}

	var qr mat.QR
	qr.Factorize(vand)

	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, mat.NewDense(t.Nx, 1, ys)); err != nil {
		return nil, fmt.Errorf("chromatic: polynomial fit failed: %w", err)
	}

	coeffs := make([]float64, cols)
	for j := range coeffs {
		coeffs[j] = sol.At(j, 0)
	}

	return coeffs, nil
}

// evalPoly evaluates a power-basis polynomial at u by Horner's scheme.
func evalPoly(coeffs []float64, u float64) float64 {
	v := 0.0
	for j := len(coeffs) - 1; j >= 0; j-- {
		v = v*u + coeffs[j]
	}

	return v
}
