package fitting

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/cwbudde/algo-spectro/chromatic"
	"github.com/cwbudde/algo-spectro/internal/numeric"
)

// ErrFitFailed reports that the amplitude solve could not be completed.
var ErrFitFailed = errors.New("fitting: amplitude solve failed")

// PriorStrategy selects how the shape polynomial coefficients are
// constrained during the fit.
type PriorStrategy int

const (
	// PriorNone lets the shape coefficients float freely.
	PriorNone PriorStrategy = iota

	// PriorPSF1D anchors the shape coefficients to their starting values
	// with a quadratic penalty. Used for the 2-D pass, seeded by the 1-D
	// fit.
	PriorPSF1D

	// PriorFixed freezes the shape coefficients entirely; only the
	// amplitudes are solved.
	PriorFixed
)

// String returns the canonical strategy name.
func (p PriorStrategy) String() string {
	switch p {
	case PriorNone:
		return "noprior"
	case PriorPSF1D:
		return "psf1d"
	case PriorFixed:
		return "fixed"
	default:
		return fmt.Sprintf("PriorStrategy(%d)", int(p))
	}
}

// Options configures a chromatic PSF fit.
type Options struct {
	// Mode selects the model rendering: per-column 1-D sums or the full
	// 2-D pixel grid.
	Mode chromatic.Mode

	// Priors selects the shape coefficient constraint strategy.
	Priors PriorStrategy

	// RegGrid holds the candidate regularisation strengths scanned in 2-D
	// mode. Ignored in 1-D mode.
	RegGrid []float64

	// PriorStrength scales the quadratic penalty of PriorPSF1D.
	PriorStrength float64

	// MaxShapeIterations bounds the objective evaluations of the outer
	// shape refinement.
	MaxShapeIterations int

	// Logger receives fit progress at debug level.
	Logger zerolog.Logger
}

// DefaultOptions returns the standard fit options for the given mode: a
// 13-step logarithmic regularisation grid from 1e-4 to 1e2, the prior
// strategy matching the mode, and a bounded shape refinement.
func DefaultOptions(mode chromatic.Mode) Options {
	grid := make([]float64, 13)
	for k := range grid {
		grid[k] = math.Pow(10, -4+0.5*float64(k))
	}

	priors := PriorNone
	if mode == chromatic.Mode2D {
		priors = PriorPSF1D
	}

	return Options{
		Mode:               mode,
		Priors:             priors,
		RegGrid:            grid,
		PriorStrength:      100,
		MaxShapeIterations: 300,
		Logger:             zerolog.Nop(),
	}
}

// Result holds the outcome of a chromatic PSF fit.
type Result struct {
	// Amplitudes and AmplitudeErrs are the fitted per-column flux values
	// and their statistical errors.
	Amplitudes    []float64
	AmplitudeErrs []float64

	// AmplitudeCov is the amplitude covariance. Diagonal in 1-D mode.
	AmplitudeCov *mat.SymDense

	// OptReg is the selected regularisation strength. -1 in 1-D mode,
	// where no regularisation applies.
	OptReg float64

	// Chi2 is the weighted residual sum of the final solve.
	Chi2 float64

	// ShapeEvals counts the objective evaluations spent on the shape
	// refinement.
	ShapeEvals int
}

// Fit solves the chromatic PSF model of t against the background-subtracted
// data. The table's current columns provide the starting point; on success
// the table is updated in place with the fitted amplitudes, shapes and flux
// bookkeeping.
func Fit(t *chromatic.Table, data, errs *mat.Dense, bgd func(x, y float64) float64, opts Options) (*Result, error) {
	ny, nx := data.Dims()
	if ny != t.Ny || nx != t.Nx {
		return nil, fmt.Errorf("%w: data %dx%d for table %dx%d", ErrFitFailed, ny, nx, t.Ny, t.Nx)
	}

	if er, ec := errs.Dims(); er != ny || ec != nx {
		return nil, fmt.Errorf("%w: error array %dx%d for data %dx%d", ErrFitFailed, er, ec, ny, nx)
	}

	resid, weights := prepareData(t, data, errs, bgd)

	poly0, err := t.PolyParams()
	if err != nil {
		return nil, err
	}

	shape0 := append([]float64(nil), poly0[t.Nx:]...)

	// Amplitude priors for the regularised 2-D solve come from the current
	// table state.
	priorAmp := append([]float64(nil), t.Amplitude...)
	priorVar := make([]float64, t.Nx)
	for i, e := range t.FluxErr {
		if e <= 0 || math.IsNaN(e) {
			e = math.Max(math.Abs(priorAmp[i])*0.1, 1)
		}

		priorVar[i] = e * e
	}

	solve := func(shape []float64, reg float64) (*solveResult, error) {
		rows, err := profileRows(t, shape)
		if err != nil {
			return nil, err
		}

		if opts.Mode == chromatic.Mode2D {
			return solve2D(t, rows, resid, weights, reg, priorAmp, priorVar)
		}

		return solve1D(t, rows, resid, weights)
	}

	// In 2-D mode the regularisation strength is scanned once, at the
	// starting shapes, then held fixed during the shape refinement.
	optReg := -1.0
	if opts.Mode == chromatic.Mode2D {
		optReg, err = scanRegularisation(t, shape0, resid, weights, priorAmp, priorVar, opts)
		if err != nil {
			return nil, err
		}

		opts.Logger.Debug().Float64("reg", optReg).Msg("regularisation strength selected")
	}

	shape := shape0
	shapeEvals := 0
	if opts.Priors != PriorFixed && opts.MaxShapeIterations > 0 {
		shape, shapeEvals = refineShape(shape0, opts, func(candidate []float64) float64 {
			sr, err := solve(candidate, optReg)
			if err != nil {
				return math.Inf(1)
			}

			return sr.chi2
		})
	}

	final, err := solve(shape, optReg)
	if err != nil {
		return nil, err
	}

	if err := applyToTable(t, shape, final); err != nil {
		return nil, err
	}

	opts.Logger.Debug().
		Str("mode", opts.Mode.String()).
		Float64("chi2", final.chi2).
		Int("shape_evals", shapeEvals).
		Msg("chromatic fit complete")

	return &Result{
		Amplitudes:    final.amps,
		AmplitudeErrs: final.ampErrs,
		AmplitudeCov:  final.cov,
		OptReg:        optReg,
		Chi2:          final.chi2,
		ShapeEvals:    shapeEvals,
	}, nil
}

// solveResult is the outcome of a single amplitude solve at fixed shapes.
type solveResult struct {
	amps    []float64
	ampErrs []float64
	cov     *mat.SymDense
	chi2    float64
}

// prepareData returns the background-subtracted data and the inverse
// variance weights, with zero weight for unusable pixels.
func prepareData(t *chromatic.Table, data, errs *mat.Dense, bgd func(x, y float64) float64) (resid, weights *mat.Dense) {
	resid = mat.NewDense(t.Ny, t.Nx, nil)
	weights = mat.NewDense(t.Ny, t.Nx, nil)

	for y := 0; y < t.Ny; y++ {
		for x := 0; x < t.Nx; x++ {
			v := data.At(y, x) - bgd(float64(x), float64(y))
			e := errs.At(y, x)
			if math.IsNaN(v) || e <= 0 || math.IsNaN(e) {
				continue
			}

			if t.Saturation > 0 && data.At(y, x) >= t.Saturation {
				continue
			}

			resid.Set(y, x, v)
			weights.Set(y, x, 1/(e*e))
		}
	}

	return resid, weights
}

// profileRows expands shape polynomial coefficients into per-column
// [amplitude, center, shape...] rows with bounds applied. The amplitude
// entries are placeholders; the solve replaces them.
func profileRows(t *chromatic.Table, shapeCoeffs []float64) ([][]float64, error) {
	poly := make([]float64, 0, t.PolyLen())
	poly = append(poly, t.Amplitude...)
	poly = append(poly, shapeCoeffs...)

	return t.ProfileParamsFromPoly(poly, true)
}

// refineShape runs a bounded Nelder-Mead refinement of the shape polynomial
// coefficients against chi2, with the configured prior penalty.
func refineShape(shape0 []float64, opts Options, chi2 func([]float64) float64) (shape []float64, evals int) {
	scale := make([]float64, len(shape0))
	for k, c := range shape0 {
		scale[k] = math.Max(math.Abs(c), 1)
	}

	objective := func(x []float64) float64 {
		evals++

		v := chi2(x)
		if opts.Priors == PriorPSF1D {
			penalty := 0.0
			for k := range x {
				d := (x[k] - shape0[k]) / scale[k]
				penalty += d * d
			}

			v += opts.PriorStrength * penalty
		}

		return v
	}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{FuncEvaluations: opts.MaxShapeIterations}

	result, err := optimize.Minimize(problem, append([]float64(nil), shape0...), settings, &optimize.NelderMead{})
	if err != nil || result == nil || !numeric.AllFinite(result.X) {
		return shape0, evals
	}

	if result.F > chi2(shape0) {
		return shape0, evals
	}

	return result.X, evals
}

// applyToTable writes the final shapes and amplitudes back into the table.
func applyToTable(t *chromatic.Table, shapeCoeffs []float64, sr *solveResult) error {
	poly := make([]float64, 0, t.PolyLen())
	poly = append(poly, sr.amps...)
	poly = append(poly, shapeCoeffs...)

	params, err := t.ProfileParamsFromPoly(poly, true)
	if err != nil {
		return err
	}

	if err := t.FillFromProfileParams(params); err != nil {
		return err
	}

	copy(t.FluxErr, sr.ampErrs)

	return nil
}
