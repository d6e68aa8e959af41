package chromatic

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/cwbudde/algo-spectro/internal/numeric"
)

// ErrTransverseFit reports that no column could be fitted.
var ErrTransverseFit = errors.New("chromatic: transverse profile fit failed on every column")

// TransverseOptions configures the per-column transverse profile fit.
type TransverseOptions struct {
	// SignalHalfWidth is the half-width of the central band used for the
	// cross-dispersion flux sum.
	SignalHalfWidth int

	// PixelStride samples every PixelStride-th column; skipped columns are
	// interpolated from the fitted ones.
	PixelStride int

	// SigmaClip rejects pixels whose residual pull exceeds this threshold
	// between fit iterations.
	SigmaClip float64

	// ClipIterations bounds the fit/reject loop per column.
	ClipIterations int

	// Saturation marks pixels at or above this level as unusable.
	Saturation float64

	// Logger receives per-column diagnostics at debug level.
	Logger zerolog.Logger
}

// DefaultTransverseOptions returns the standard transverse fit options.
func DefaultTransverseOptions() TransverseOptions {
	return TransverseOptions{
		SignalHalfWidth: 10,
		PixelStride:     10,
		SigmaClip:       5,
		ClipIterations:  2,
		Logger:          zerolog.Nop(),
	}
}

// FitTransverseProfile fits the transverse PSF independently on columns
// sampled at the configured stride, after subtracting the background
// surface, and fills the table. Saturated pixels are excluded from each
// column fit. Skipped columns are filled by interpolation.
func (t *Table) FitTransverseProfile(data, errs *mat.Dense, bgd func(x, y float64) float64, opts TransverseOptions) error {
	ny, nx := data.Dims()
	if ny != t.Ny || nx != t.Nx {
		return fmt.Errorf("%w: data %dx%d for table %dx%d", ErrLengthMismatch, ny, nx, t.Ny, t.Nx)
	}

	stride := opts.PixelStride
	if stride < 1 {
		stride = 1
	}

	fittedX := make([]float64, 0, t.Nx/stride+2)
	fitted := make(map[int][]float64) // column -> [amplitude, center, shape...]

	col := make([]float64, t.Ny)
	colErr := make([]float64, t.Ny)
	for i := 0; i < t.Nx; i += stride {
		for y := 0; y < t.Ny; y++ {
			col[y] = data.At(y, i) - bgd(float64(i), float64(y))
			colErr[y] = errs.At(y, i)
		}

		theta, ok := t.fitColumn(i, data, col, colErr, opts)
		if !ok {
			opts.Logger.Debug().Int("column", i).Msg("transverse fit rejected; column will be interpolated")
			continue
		}

		fittedX = append(fittedX, float64(i))
		fitted[i] = theta

		t.fillColumn(i, theta, col, colErr, opts.SignalHalfWidth)
	}

	if len(fittedX) == 0 {
		return ErrTransverseFit
	}

	if len(fittedX) == 1 {
		// A single fitted column fills the whole table.
		theta := fitted[int(fittedX[0])]
		for i := 0; i < t.Nx; i++ {
			for y := 0; y < t.Ny; y++ {
				col[y] = data.At(y, i) - bgd(float64(i), float64(y))
				colErr[y] = errs.At(y, i)
			}

			t.fillColumn(i, theta, col, colErr, opts.SignalHalfWidth)
		}

		return nil
	}

	return t.interpolateSkipped(fittedX, data, errs, bgd, opts)
}

// fitColumn fits the transverse profile of one column. It returns the fit
// vector [amplitude, center, shape...] and whether the fit is usable.
func (t *Table) fitColumn(i int, data *mat.Dense, col, colErr []float64, opts TransverseOptions) ([]float64, bool) {
	ny := t.Ny

	// Weights: inverse variance, zero for saturated or unusable pixels.
	weights := make([]float64, ny)
	for y := 0; y < ny; y++ {
		e := colErr[y]
		if e <= 0 || math.IsNaN(e) || math.IsNaN(col[y]) {
			continue
		}

		if opts.Saturation > 0 && data.At(y, i) >= opts.Saturation {
			continue
		}

		weights[y] = 1 / (e * e)
	}

	// Moment-based first guess.
	amp0, center0 := 0.0, float64(ny)/2
	peak := math.Inf(-1)
	for y, v := range col {
		if weights[y] == 0 {
			continue
		}

		if v > peak {
			peak = v
			center0 = float64(y)
		}

		if v > 0 {
			amp0 += v
		}
	}

	if amp0 <= 0 || math.IsInf(peak, -1) {
		return nil, false
	}

	shape0 := t.Profile.DefaultShape()
	bounds := t.Profile.ShapeBounds(float64(ny))

	theta0 := make([]float64, 2+len(shape0))
	theta0[0] = amp0
	theta0[1] = center0
	copy(theta0[2:], shape0)

	theta := theta0
	unit := make([]float64, ny)
	for iter := 0; iter <= opts.ClipIterations; iter++ {
		objective := func(x []float64) float64 {
			amp := x[0]
			center := numeric.Clamp(x[1], 0, float64(ny-1))
			shape := make([]float64, len(bounds))
			penalty := 0.0
			for k := range bounds {
				shape[k] = numeric.Clamp(x[2+k], bounds[k].Lower, bounds[k].Upper)
				d := x[2+k] - shape[k]
				penalty += d * d
			}

			if amp < 0 {
				penalty += amp * amp
				amp = 0
			}

			t.unitTransverse(unit, center, shape)

			chi2 := 0.0
			for y := 0; y < ny; y++ {
				if weights[y] == 0 {
					continue
				}

				r := col[y] - amp*unit[y]
				chi2 += weights[y] * r * r
			}

			return chi2 + 1e3*penalty
		}

		problem := optimize.Problem{Func: objective}
		settings := &optimize.Settings{FuncEvaluations: 4000}

		result, err := optimize.Minimize(problem, theta, settings, &optimize.NelderMead{})
		if err == nil && result != nil && numeric.AllFinite(result.X) {
			theta = result.X
		}

		if iter == opts.ClipIterations || opts.SigmaClip <= 0 {
			break
		}

		// Reject outliers against the current model before refitting.
		center := numeric.Clamp(theta[1], 0, float64(ny-1))
		shape := make([]float64, len(bounds))
		for k := range bounds {
			shape[k] = numeric.Clamp(theta[2+k], bounds[k].Lower, bounds[k].Upper)
		}

		t.unitTransverse(unit, center, shape)
		for y := 0; y < ny; y++ {
			if weights[y] == 0 {
				continue
			}

			pull := (col[y] - theta[0]*unit[y]) * math.Sqrt(weights[y])
			if math.Abs(pull) > opts.SigmaClip {
				weights[y] = 0
			}
		}
	}

	if theta[0] <= 0 || !numeric.AllFinite(theta) {
		return nil, false
	}

	theta[1] = numeric.Clamp(theta[1], 0, float64(ny-1))
	for k := range bounds {
		theta[2+k] = numeric.Clamp(theta[2+k], bounds[k].Lower, bounds[k].Upper)
	}

	return theta, true
}

// fillColumn writes one column fit into the table, together with the
// cross-dispersion flux bookkeeping of the central signal band.
func (t *Table) fillColumn(i int, theta []float64, col, colErr []float64, signalHalfWidth int) {
	t.Amplitude[i] = theta[0]
	t.YC[i] = theta[1]
	for k := range t.Shape {
		t.Shape[k][i] = theta[2+k]
	}

	shape := theta[2:]
	t.FWHM[i] = t.Profile.FWHM(shape)

	yLo := t.Ny/2 - signalHalfWidth
	yHi := t.Ny/2 + signalHalfWidth
	if yLo < 0 {
		yLo = 0
	}

	if yHi > t.Ny {
		yHi = t.Ny
	}

	fluxSum, varSum := 0.0, 0.0
	for y := yLo; y < yHi; y++ {
		fluxSum += col[y]
		varSum += colErr[y] * colErr[y]
	}

	t.FluxSum[i] = fluxSum
	t.FluxErr[i] = math.Sqrt(varSum)
	t.FluxIntegral[i] = t.columnIntegral(i)
	t.DyFWHMInf[i] = t.Dy[i] - 0.5*t.FWHM[i]
	t.DyFWHMSup[i] = t.Dy[i] + 0.5*t.FWHM[i]
}

// interpolateSkipped fills non-fitted columns by piecewise-linear
// interpolation of the fitted ones, then refreshes the flux bookkeeping.
func (t *Table) interpolateSkipped(fittedX []float64, data, errs *mat.Dense, bgd func(x, y float64) float64, opts TransverseOptions) error {
	columns := [][]float64{t.Amplitude, t.YC, t.FWHM}
	for k := range t.Shape {
		columns = append(columns, t.Shape[k])
	}

	for _, values := range columns {
		samples := make([]float64, len(fittedX))
		for n, x := range fittedX {
			samples[n] = values[int(x)]
		}

		var pl interp.PiecewiseLinear
		if err := pl.Fit(fittedX, samples); err != nil {
			return fmt.Errorf("chromatic: interpolating fitted columns: %w", err)
		}

		for i := 0; i < t.Nx; i++ {
			values[i] = pl.Predict(float64(i))
		}
	}

	col := make([]float64, t.Ny)
	colErr := make([]float64, t.Ny)
	for i := 0; i < t.Nx; i++ {
		for y := 0; y < t.Ny; y++ {
			col[y] = data.At(y, i) - bgd(float64(i), float64(y))
			colErr[y] = errs.At(y, i)
		}

		theta := make([]float64, 2+t.NumShape())
		theta[0] = t.Amplitude[i]
		theta[1] = t.YC[i]
		for k := range t.Shape {
			theta[2+k] = t.Shape[k][i]
		}

		t.fillColumn(i, theta, col, colErr, opts.SignalHalfWidth)
	}

	return nil
}
