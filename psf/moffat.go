package psf

import "math"

// Moffat is a Moffat PSF profile with power-law wings. Shape: [gamma, alpha].
// Alpha must stay above one for the radial density to be normalisable.
type Moffat struct{}

// Name implements Profile.
func (Moffat) Name() string { return "moffat" }

// ShapeNames implements Profile.
func (Moffat) ShapeNames() []string { return []string{"gamma", "alpha"} }

// Transverse evaluates the unit-normalised 1-D Moffat at y.
//
// The 1-D normalisation constant is Gamma(alpha) / (gamma*sqrt(pi)*Gamma(alpha-1/2)).
func (Moffat) Transverse(y float64, p Params) float64 {
	gamma, alpha := p.Shape[0], p.Shape[1]
	if gamma <= 0 || alpha <= 0.5 {
		return 0
	}

	norm := math.Gamma(alpha) / (gamma * math.Sqrt(math.Pi) * math.Gamma(alpha-0.5))
	u := (y - p.CenterY) / gamma
	v := p.Amplitude * norm * math.Pow(1+u*u, -alpha)

	return clip(v, p)
}

// Evaluate evaluates the unit-normalised radial 2-D Moffat at (x, y).
//
// The 2-D normalisation constant is (alpha-1) / (pi*gamma^2).
func (Moffat) Evaluate(x, y float64, p Params) float64 {
	gamma, alpha := p.Shape[0], p.Shape[1]
	if gamma <= 0 || alpha <= 1 {
		return 0
	}

	dx := (x - p.CenterX) / gamma
	dy := (y - p.CenterY) / gamma
	norm := (alpha - 1) / (math.Pi * gamma * gamma)
	v := p.Amplitude * norm * math.Pow(1+dx*dx+dy*dy, -alpha)

	return clip(v, p)
}

// FWHM implements Profile.
func (Moffat) FWHM(shape []float64) float64 {
	gamma, alpha := shape[0], shape[1]
	if alpha <= 0 {
		return 0
	}

	return 2 * gamma * math.Sqrt(math.Pow(2, 1/alpha)-1)
}

// DefaultShape implements Profile.
func (Moffat) DefaultShape() []float64 { return []float64{3, 2.5} }

// ShapeBounds implements Profile.
func (Moffat) ShapeBounds(ny float64) []Bound {
	return []Bound{
		{Lower: 0.5, Upper: ny / 2},
		{Lower: 1.1, Upper: 10},
	}
}
