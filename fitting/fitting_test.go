package fitting

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spectro/chromatic"
	"github.com/cwbudde/algo-spectro/internal/testutil"
	"github.com/cwbudde/algo-spectro/psf"
)

// seedTable builds a table matching the synthetic scene, with the trace and
// width columns set to their true values.
func seedTable(t *testing.T, spec testutil.SpectrogramSpec) *chromatic.Table {
	t.Helper()

	table, err := chromatic.NewTable(psf.Gaussian{}, spec.Nx, spec.Ny, spec.PeakColumn, float64(spec.Ny)/2, 2, 0)
	require.NoError(t, err)

	for i := 0; i < spec.Nx; i++ {
		table.YC[i] = float64(spec.Ny) / 2
		table.Shape[0][i] = spec.Sigma
		table.Amplitude[i] = spec.Amplitude(float64(i))
		table.FluxErr[i] = 10
	}

	return table
}

func TestFit1DRecoversAmplitudes(t *testing.T) {
	spec := testutil.DefaultSpectrogramSpec()
	spec.Noise = 2
	data, errs, truth := spec.Generate()

	table := seedTable(t, spec)
	bgd := func(x, y float64) float64 { return spec.Background }

	opts := DefaultOptions(chromatic.Mode1D)
	opts.Priors = PriorFixed

	result, err := Fit(table, data, errs, bgd, opts)
	require.NoError(t, err)

	require.Equal(t, -1.0, result.OptReg, "1-D mode carries the no-regularisation sentinel")
	require.Len(t, result.Amplitudes, spec.Nx)

	lo, hi := spec.Nx/10, spec.Nx-spec.Nx/10
	for i := lo; i < hi; i++ {
		require.InDeltaf(t, truth[i], result.Amplitudes[i], 0.05*spec.PeakFlux,
			"column %d amplitude", i)
	}

	for i, e := range result.AmplitudeErrs {
		require.Greaterf(t, e, 0.0, "column %d amplitude error", i)
	}

	// The fit writes its result back into the table.
	testutil.RequireSliceNearlyEqual(t, table.Amplitude, result.Amplitudes, 1e-12)
	testutil.RequireSliceNearlyEqual(t, table.FluxErr, result.AmplitudeErrs, 1e-12)
}

func TestFit1DChi2NearDegreesOfFreedom(t *testing.T) {
	spec := testutil.DefaultSpectrogramSpec()
	data, errs, _ := spec.Generate()

	table := seedTable(t, spec)
	bgd := func(x, y float64) float64 { return spec.Background }

	opts := DefaultOptions(chromatic.Mode1D)
	opts.Priors = PriorFixed

	result, err := Fit(table, data, errs, bgd, opts)
	require.NoError(t, err)

	// With correct errors the reduced chi2 sits near one.
	npix := float64(spec.Nx * spec.Ny)
	require.InDelta(t, 1.0, result.Chi2/npix, 0.1)
}

// render2DScene draws a noisy spectrogram from the table's own 2-D model,
// so the joint solve has an exactly matching forward model.
func render2DScene(t *testing.T, table *chromatic.Table, noise float64, seed int64) (data, errs *mat.Dense) {
	t.Helper()

	poly, err := table.PolyParams()
	require.NoError(t, err)

	model, err := table.Evaluate(poly, chromatic.Mode2D)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(seed))
	data = mat.NewDense(table.Ny, table.Nx, nil)
	errs = mat.NewDense(table.Ny, table.Nx, nil)
	for y := 0; y < table.Ny; y++ {
		for x := 0; x < table.Nx; x++ {
			data.Set(y, x, model.At(y, x)+noise*rng.NormFloat64())
			errs.Set(y, x, noise)
		}
	}

	return data, errs
}

func TestFit2DFrozenShapesRecoversAmplitudes(t *testing.T) {
	spec := testutil.SpectrogramSpec{
		Nx: 60, Ny: 24,
		PeakFlux: 500, PeakColumn: 30, EnvelopeW: 500,
		Sigma: 2, Background: 0, Noise: 0.5, Seed: 7,
	}

	table := seedTable(t, spec)
	truth := append([]float64(nil), table.Amplitude...)

	data, errs := render2DScene(t, table, spec.Noise, spec.Seed)
	bgd := func(x, y float64) float64 { return 0 }

	opts := DefaultOptions(chromatic.Mode2D)
	opts.Priors = PriorFixed

	result, err := Fit(table, data, errs, bgd, opts)
	require.NoError(t, err)
	require.Greater(t, result.OptReg, 0.0)
	require.NotNil(t, result.AmplitudeCov)
	testutil.RequireFinite(t, result.Amplitudes)

	// Deconvolution noise dominates at the faint edges; check the bright
	// central band against the peak scale.
	for i := spec.Nx / 6; i < spec.Nx*5/6; i++ {
		require.InDeltaf(t, truth[i], result.Amplitudes[i], 0.1*spec.PeakFlux,
			"column %d amplitude", i)
	}
}

func TestFit2DWithShapeRefinement(t *testing.T) {
	spec := testutil.SpectrogramSpec{
		Nx: 60, Ny: 24,
		PeakFlux: 500, PeakColumn: 30, EnvelopeW: 500,
		Sigma: 2, Background: 0, Noise: 0.5, Seed: 11,
	}

	table := seedTable(t, spec)
	truth := append([]float64(nil), table.Amplitude...)

	data, errs := render2DScene(t, table, spec.Noise, spec.Seed)
	bgd := func(x, y float64) float64 { return 0 }

	// Perturb the starting width so the refinement has work to do.
	for i := range table.Shape[0] {
		table.Shape[0][i] = spec.Sigma * 1.1
	}

	opts := DefaultOptions(chromatic.Mode2D)
	opts.MaxShapeIterations = 200

	result, err := Fit(table, data, errs, bgd, opts)
	require.NoError(t, err)
	require.Greater(t, result.ShapeEvals, 0)
	testutil.RequireFinite(t, table.FWHM)

	for i := spec.Nx / 6; i < spec.Nx*5/6; i++ {
		require.InDeltaf(t, truth[i], result.Amplitudes[i], 0.12*spec.PeakFlux,
			"column %d amplitude", i)
	}
}

func TestFitFixedShapesReproduce1DAmplitudes(t *testing.T) {
	spec := testutil.DefaultSpectrogramSpec()
	data, errs, _ := spec.Generate()

	table := seedTable(t, spec)
	bgd := func(x, y float64) float64 { return spec.Background }

	// Full 1-D fit with shape refinement.
	first, err := Fit(table, data, errs, bgd, DefaultOptions(chromatic.Mode1D))
	require.NoError(t, err)

	// Re-solving with the shapes frozen at the refined values must land on
	// the same amplitudes.
	opts := DefaultOptions(chromatic.Mode1D)
	opts.Priors = PriorFixed

	second, err := Fit(table, data, errs, bgd, opts)
	require.NoError(t, err)

	testutil.RequireSliceClose(t, second.Amplitudes, first.Amplitudes, 1e-9)
}

func TestFitRejectsDimensionMismatch(t *testing.T) {
	table, err := chromatic.NewTable(psf.Gaussian{}, 20, 10, 10, 5, 1, 0)
	require.NoError(t, err)

	data := mat.NewDense(12, 20, nil)
	errs := mat.NewDense(12, 20, nil)
	bgd := func(x, y float64) float64 { return 0 }

	_, err = Fit(table, data, errs, bgd, DefaultOptions(chromatic.Mode1D))
	require.ErrorIs(t, err, ErrFitFailed)
}

func TestFitIgnoresBadPixels(t *testing.T) {
	spec := testutil.DefaultSpectrogramSpec()
	spec.Noise = 2
	data, errs, truth := spec.Generate()

	// Poison a stripe of pixels: NaN data and non-positive errors both
	// drop out of the fit.
	for y := 0; y < spec.Ny; y++ {
		data.Set(y, 50, math.NaN())
		errs.Set(y, 60, 0)
	}

	table := seedTable(t, spec)
	bgd := func(x, y float64) float64 { return spec.Background }

	opts := DefaultOptions(chromatic.Mode1D)
	opts.Priors = PriorFixed

	result, err := Fit(table, data, errs, bgd, opts)
	require.NoError(t, err)

	testutil.RequireFinite(t, result.Amplitudes)

	// Columns away from the poisoned stripe are unaffected.
	require.InDelta(t, truth[100], result.Amplitudes[100], 0.05*spec.PeakFlux)
}

func TestPriorStrategyString(t *testing.T) {
	require.Equal(t, "noprior", PriorNone.String())
	require.Equal(t, "psf1d", PriorPSF1D.String())
	require.Equal(t, "fixed", PriorFixed.String())
}
