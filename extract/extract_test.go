package extract

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spectro/geometry"
	"github.com/cwbudde/algo-spectro/internal/testutil"
	"github.com/cwbudde/algo-spectro/psf"
)

// syntheticImage embeds the reference synthetic scene into an Image with a
// zero rotation angle and a linear disperser placing the wavelength bounds
// at the frame edges.
func syntheticImage(t *testing.T, spec testutil.SpectrogramSpec, nmPerPixel float64) *Image {
	t.Helper()

	data, errs, _ := spec.Generate()

	return &Image{
		Data:        data,
		Err:         errs,
		RotatedData: data,
		RotatedErr:  errs,

		TargetX: 0, TargetY: float64(spec.Ny) / 2,
		RotatedTargetX: 0, RotatedTargetY: float64(spec.Ny) / 2,

		Disperser: geometry.DisperserFunc(func(dx float64) float64 {
			return 300 + nmPerPixel*dx
		}),

		RotationAngle: 0,
		Units:         "ADU",
	}
}

// inclinedImage builds a detector frame whose trace climbs away from the
// horizontal at angleDeg, paired with the rotated counterpart where the
// dispersion axis is horizontal. The disperser maps the distance along the
// inclined axis to wavelength.
func inclinedImage(t *testing.T, spec testutil.SpectrogramSpec, nyRaw int, targetY, angleDeg, nmPerPixel float64) *Image {
	t.Helper()

	rotData, rotErrs, _ := spec.Generate()

	a := angleDeg * math.Pi / 180
	sin, cos := math.Sincos(a)

	rng := rand.New(rand.NewSource(spec.Seed + 1))
	data := mat.NewDense(nyRaw, spec.Nx, nil)
	errs := mat.NewDense(nyRaw, spec.Nx, nil)

	norm := cos / (spec.Sigma * math.Sqrt(2*math.Pi))
	for x := 0; x < spec.Nx; x++ {
		amp := spec.Amplitude(float64(x) / cos)
		yc := targetY + float64(x)*sin/cos

		for y := 0; y < nyRaw; y++ {
			u := (float64(y) - yc) * cos / spec.Sigma
			v := spec.Background + amp*norm*math.Exp(-0.5*u*u)
			data.Set(y, x, v+spec.Noise*rng.NormFloat64())
			errs.Set(y, x, spec.Noise)
		}
	}

	return &Image{
		Data:        data,
		Err:         errs,
		RotatedData: rotData,
		RotatedErr:  rotErrs,

		TargetX: 0, TargetY: targetY,
		RotatedTargetX: 0, RotatedTargetY: float64(spec.Ny) / 2,

		Disperser: geometry.DisperserFunc(func(dx float64) float64 {
			return 300 + nmPerPixel*dx
		}),

		RotationAngle: -angleDeg,
		Units:         "ADU",
	}
}

func gaussianParams() Params {
	p := DefaultParams()
	p.Profile = psf.TypeGaussian
	p.LambdaMin = 300
	p.LambdaMax = 1100

	return p
}

func TestExtractSpectrum1D(t *testing.T) {
	spec := testutil.DefaultSpectrogramSpec()
	img := syntheticImage(t, spec, 4)

	spectrum, err := ExtractSpectrum(img, gaussianParams())
	require.NoError(t, err)

	// Row-count consistency across the crop.
	nx := spectrum.XMax - spectrum.XMin
	require.Equal(t, nx, len(spectrum.Flux))
	require.Equal(t, nx, len(spectrum.FluxErr))
	require.Equal(t, nx, len(spectrum.Pixels))
	require.Equal(t, nx, len(spectrum.Lambdas))

	testutil.RequireFinite(t, spectrum.Flux)
	testutil.RequireFinite(t, spectrum.FluxErr)
	testutil.RequireMatFinite(t, spectrum.SpectrogramBackground)

	// The fitted amplitudes track the true envelope over the central 80%
	// of columns.
	lo := spectrum.XMin + nx/10
	hi := spectrum.XMin + nx*9/10
	sumAbs, n := 0.0, 0
	for x := lo; x < hi; x++ {
		i := x - spectrum.XMin
		truth := spec.Amplitude(float64(x))
		require.InDeltaf(t, truth, spectrum.Flux[i], 0.1*spec.PeakFlux, "column %d", x)

		sumAbs += math.Abs(spectrum.Flux[i] - truth)
		n++
	}

	require.Less(t, sumAbs/float64(n), 0.05*spec.PeakFlux)

	// The recovered background sits on the true sky level.
	r, c := spectrum.SpectrogramBackground.Dims()
	bgSum := 0.0
	for y := 0; y < r; y++ {
		for x := 0; x < c; x++ {
			bgSum += spectrum.SpectrogramBackground.At(y, x)
		}
	}

	require.InDelta(t, spec.Background, bgSum/float64(r*c), 1)

	// 1-D mode carries the no-regularisation sentinel.
	require.Equal(t, -1.0, spectrum.OptReg)
	require.Equal(t, "-1", spectrum.Header["PSF_REG"])
	require.Equal(t, "PSF_1D", spectrum.Header["MODE"])
	require.Equal(t, "ADU", spectrum.Units)
	require.Nil(t, spectrum.SpectrogramResiduals)
}

func TestExtractSpectrumWavelengths(t *testing.T) {
	spec := testutil.DefaultSpectrogramSpec()
	img := syntheticImage(t, spec, 4)

	spectrum, err := ExtractSpectrum(img, gaussianParams())
	require.NoError(t, err)

	// With a zero rotation angle the wavelength of each column is the
	// disperser applied to the pixel offset from the target.
	for i, x := range spectrum.Pixels {
		want := 300 + 4*(x-img.TargetX)
		require.InDeltaf(t, want, spectrum.Lambdas[i], 1e-6, "column %d", i)
	}

	// Wavelengths increase along the dispersion axis.
	for i := 1; i < len(spectrum.Lambdas); i++ {
		require.Greater(t, spectrum.Lambdas[i], spectrum.Lambdas[i-1])
	}
}

func TestExtractSpectrumRotatedTrace(t *testing.T) {
	spec := testutil.DefaultSpectrogramSpec()
	const angle = 12.0
	img := inclinedImage(t, spec, 130, 45, angle, 4)

	spectrum, err := ExtractSpectrum(img, gaussianParams())
	require.NoError(t, err)

	tanA := math.Tan(angle * math.Pi / 180)
	cosA := math.Cos(angle * math.Pi / 180)

	// The detector-frame crop follows the dispersion-axis track: every
	// trace center stays inside the lateral window.
	for _, x := range spectrum.Pixels {
		yc := img.TargetY + (x-img.TargetX)*tanA
		require.GreaterOrEqualf(t, yc, float64(spectrum.YMin), "column %v trace below crop", x)
		require.Lessf(t, yc, float64(spectrum.YMax), "column %v trace above crop", x)
	}

	// Amplitudes track the envelope sampled along the inclined axis.
	nx := len(spectrum.Flux)
	for i := nx / 10; i < nx*9/10; i++ {
		d := (spectrum.Pixels[i] - img.TargetX) / cosA
		require.InDeltaf(t, spec.Amplitude(d), spectrum.Flux[i], 0.1*spec.PeakFlux, "column %d", i)
	}

	// Wavelengths follow the distance along the inclined axis.
	for i := 1; i < len(spectrum.Lambdas); i++ {
		require.Greater(t, spectrum.Lambdas[i], spectrum.Lambdas[i-1])
	}
}

func TestExtractSpectrumWidthLimit(t *testing.T) {
	spec := testutil.DefaultSpectrogramSpec()
	img := syntheticImage(t, spec, 4)

	// A target offset between the frames pushes the detector-frame crop
	// past the cap.
	img.TargetX = 20

	p := gaussianParams()
	p.WidthLimit = 150

	spectrum, err := ExtractSpectrum(img, p)
	require.NoError(t, err)

	require.LessOrEqual(t, spectrum.XMax, p.WidthLimit)
	require.Equal(t, spectrum.XMax-spectrum.XMin, len(spectrum.Flux))
}

func TestExtractSpectrum2D(t *testing.T) {
	spec := testutil.SpectrogramSpec{
		Nx: 100, Ny: 60,
		PeakFlux: 1000, PeakColumn: 50, EnvelopeW: 800,
		Sigma: 3, Background: 50, Noise: 5, Seed: 1,
	}
	img := syntheticImage(t, spec, 8)

	p := gaussianParams()
	p.Mode = ModePSF2D

	spectrum, err := ExtractSpectrum(img, p)
	require.NoError(t, err)

	require.Greater(t, spectrum.OptReg, 0.0)
	require.Equal(t, "PSF_2D", spectrum.Header["MODE"])
	require.NotNil(t, spectrum.SpectrogramResiduals)
	require.NotNil(t, spectrum.Cov)

	testutil.RequireFinite(t, spectrum.Flux)
	testutil.RequireMatFinite(t, spectrum.SpectrogramResiduals)

	nx := spectrum.XMax - spectrum.XMin
	sumAbs, n := 0.0, 0
	for x := spectrum.XMin + nx/6; x < spectrum.XMin+nx*5/6; x++ {
		i := x - spectrum.XMin
		sumAbs += math.Abs(spectrum.Flux[i] - spec.Amplitude(float64(x)))
		n++
	}

	require.Less(t, sumAbs/float64(n), 0.1*spec.PeakFlux)
}

func TestExtractSpectrumModeValidatedFirst(t *testing.T) {
	// An unsupported mode must surface before any pixel array is read:
	// the image here would fail its own checks if touched.
	p := DefaultParams()
	p.Mode = Mode(42)

	_, err := ExtractSpectrum(&Image{}, p)
	require.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestParamsValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"signal half-width", func(p *Params) { p.SignalHalfWidth = 0 }},
		{"lateral widths", func(p *Params) { p.BackgroundOuter = p.BackgroundInner }},
		{"poly degree", func(p *Params) { p.PolyDegree = -1 }},
		{"wavelength bounds", func(p *Params) { p.LambdaMin, p.LambdaMax = 900, 400 }},
		{"profile", func(p *Params) { p.Profile = psf.Type(9) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			tc.mutate(&p)
			require.ErrorIs(t, p.Validate(), ErrBadParams)
		})
	}

	require.NoError(t, DefaultParams().Validate())
}

func TestExtractSpectrumRejectsBadImage(t *testing.T) {
	img := &Image{Data: mat.NewDense(4, 4, nil)}

	_, err := ExtractSpectrum(img, gaussianParams())
	require.ErrorIs(t, err, ErrBadImage)
}

func TestModeString(t *testing.T) {
	require.Equal(t, "PSF_1D", ModePSF1D.String())
	require.Equal(t, "PSF_2D", ModePSF2D.String())
}
