package psf

import "math"

// gaussFWHMFactor converts a Gaussian sigma to FWHM: 2*sqrt(2*ln 2).
const gaussFWHMFactor = 2.3548200450309493

// Gaussian is a Gaussian PSF profile. Shape: [sigma].
type Gaussian struct{}

// Name implements Profile.
func (Gaussian) Name() string { return "gaussian" }

// ShapeNames implements Profile.
func (Gaussian) ShapeNames() []string { return []string{"sigma"} }

// Transverse evaluates the unit-normalised 1-D Gaussian at y.
func (Gaussian) Transverse(y float64, p Params) float64 {
	sigma := p.Shape[0]
	if sigma <= 0 {
		return 0
	}

	u := (y - p.CenterY) / sigma
	v := p.Amplitude * math.Exp(-0.5*u*u) / (sigma * math.Sqrt(2*math.Pi))

	return clip(v, p)
}

// Evaluate evaluates the unit-normalised radial 2-D Gaussian at (x, y).
func (Gaussian) Evaluate(x, y float64, p Params) float64 {
	sigma := p.Shape[0]
	if sigma <= 0 {
		return 0
	}

	dx := (x - p.CenterX) / sigma
	dy := (y - p.CenterY) / sigma
	v := p.Amplitude * math.Exp(-0.5*(dx*dx+dy*dy)) / (2 * math.Pi * sigma * sigma)

	return clip(v, p)
}

// FWHM implements Profile.
func (Gaussian) FWHM(shape []float64) float64 {
	return gaussFWHMFactor * shape[0]
}

// DefaultShape implements Profile.
func (Gaussian) DefaultShape() []float64 { return []float64{2} }

// ShapeBounds implements Profile.
func (Gaussian) ShapeBounds(ny float64) []Bound {
	return []Bound{{Lower: 0.1, Upper: ny / 2}}
}
