package testutil

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// SpectrogramSpec describes a synthetic dispersed-light trace: a Gaussian
// transverse profile centered on the middle row, with a Gaussian amplitude
// envelope along the dispersion axis over a flat sky background.
type SpectrogramSpec struct {
	Nx, Ny     int
	PeakFlux   float64 // amplitude envelope peak
	PeakColumn float64 // envelope center column
	EnvelopeW  float64 // envelope variance scale: A(x) = PeakFlux*exp(-(x-PeakColumn)^2/EnvelopeW)
	Sigma      float64 // transverse Gaussian width in pixels
	Background float64 // flat sky level
	Noise      float64 // Gaussian noise sigma
	Seed       int64
}

// DefaultSpectrogramSpec returns the reference synthetic scene: a 200x60
// crop with A(x) = 1000*exp(-(x-100)^2/2000), width 3, sky 50, noise 5.
func DefaultSpectrogramSpec() SpectrogramSpec {
	return SpectrogramSpec{
		Nx:         200,
		Ny:         60,
		PeakFlux:   1000,
		PeakColumn: 100,
		EnvelopeW:  2000,
		Sigma:      3,
		Background: 50,
		Noise:      5,
		Seed:       1,
	}
}

// Amplitude returns the true amplitude envelope at column x.
func (s SpectrogramSpec) Amplitude(x float64) float64 {
	d := x - s.PeakColumn
	return s.PeakFlux * math.Exp(-d*d/s.EnvelopeW)
}

// Generate renders the synthetic spectrogram. It returns the noisy data,
// the matching per-pixel error array and the true amplitude sequence.
func (s SpectrogramSpec) Generate() (data, errs *mat.Dense, truth []float64) {
	rng := rand.New(rand.NewSource(s.Seed))

	data = mat.NewDense(s.Ny, s.Nx, nil)
	errs = mat.NewDense(s.Ny, s.Nx, nil)
	truth = make([]float64, s.Nx)

	center := float64(s.Ny) / 2
	norm := 1 / (s.Sigma * math.Sqrt(2*math.Pi))
	for x := 0; x < s.Nx; x++ {
		amp := s.Amplitude(float64(x))
		truth[x] = amp

		for y := 0; y < s.Ny; y++ {
			u := (float64(y) - center) / s.Sigma
			v := s.Background + amp*norm*math.Exp(-0.5*u*u)
			data.Set(y, x, v+s.Noise*rng.NormFloat64())
			errs.Set(y, x, s.Noise)
		}
	}

	return data, errs, truth
}
