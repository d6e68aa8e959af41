package chromatic

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// Reinitialize builds a fresh table on a new crop geometry, seeded with the
// results of a previous fit: amplitudes, flux errors and the dispersion-axis
// track are interpolated from the previous table onto the new Dx grid, and
// the shape polynomial coefficients are carried over as priors. The
// previous table is not mutated.
func Reinitialize(prev *Table, nx, ny int, x0, y0 float64, dxNew, shapePriors []float64) (*Table, error) {
	wantShape := (1 + prev.NumShape()) * (prev.Deg + 1)
	if len(shapePriors) != wantShape {
		return nil, fmt.Errorf("%w: %d shape prior coefficients, want %d", ErrBadPolyLength, len(shapePriors), wantShape)
	}

	if len(dxNew) != nx {
		return nil, fmt.Errorf("%w: %d offsets for nx=%d", ErrLengthMismatch, len(dxNew), nx)
	}

	t, err := NewTable(prev.Profile, nx, ny, x0, y0, prev.Deg, prev.Saturation)
	if err != nil {
		return nil, err
	}

	copy(t.Dx, dxNew)

	for _, m := range []struct {
		src, dst []float64
	}{
		{prev.Amplitude, t.Amplitude},
		{prev.FluxErr, t.FluxErr},
		{prev.DyDispAxis, t.DyDispAxis},
	} {
		var pl interp.PiecewiseLinear
		if err := pl.Fit(prev.Dx, m.src); err != nil {
			return nil, fmt.Errorf("chromatic: reinitializing table: %w", err)
		}

		for i := range t.Dx {
			m.dst[i] = pl.Predict(t.Dx[i])
		}
	}

	poly := make([]float64, 0, t.PolyLen())
	poly = append(poly, t.Amplitude...)
	poly = append(poly, shapePriors...)

	params, err := t.ProfileParamsFromPoly(poly, true)
	if err != nil {
		return nil, err
	}

	if err := t.FillFromProfileParams(params); err != nil {
		return nil, err
	}

	for i := range t.Dy {
		t.Dy[i] = t.YC[i] - y0
	}

	t.updateFWHMBands()

	return t, nil
}
