package psf

import (
	"errors"
	"fmt"
)

// Profile errors.
var (
	ErrUnknownType   = errors.New("psf: unknown profile type")
	ErrShapeMismatch = errors.New("psf: shape parameter count mismatch")
)

// Type identifies a PSF profile family.
type Type int

const (
	// TypeGaussian is a Gaussian transverse profile with a single width
	// parameter (sigma).
	TypeGaussian Type = iota

	// TypeMoffat is a Moffat transverse profile with a core width (gamma)
	// and a power-law wing index (alpha).
	TypeMoffat
)

// String returns the canonical family name.
func (t Type) String() string {
	switch t {
	case TypeGaussian:
		return "gaussian"
	case TypeMoffat:
		return "moffat"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Params holds the per-column parameters of a profile evaluation.
type Params struct {
	// Amplitude is the integrated flux carried by the profile.
	Amplitude float64

	// CenterX, CenterY locate the profile center in pixel coordinates.
	// Transverse evaluation only uses CenterY.
	CenterX float64
	CenterY float64

	// Shape holds the family-specific shape parameters, in the order
	// reported by Profile.ShapeNames.
	Shape []float64

	// Saturation caps the rendered pixel value. Zero or negative disables
	// clipping.
	Saturation float64
}

// Bound is an inclusive [lower, upper] interval for one shape parameter.
type Bound struct {
	Lower float64
	Upper float64
}

// Profile is a PSF family evaluable as a transverse (1-D) or radial (2-D)
// density.
type Profile interface {
	// Name returns the family name.
	Name() string

	// ShapeNames returns the ordered names of the shape parameters. Its
	// length fixes the expected len(Params.Shape).
	ShapeNames() []string

	// Transverse evaluates the profile at cross-dispersion coordinate y.
	// The underlying density integrates to one along y, so Amplitude
	// carries flux. The result is clipped at Params.Saturation when set.
	Transverse(y float64, p Params) float64

	// Evaluate evaluates the radial 2-D profile at pixel (x, y). The
	// density integrates to one over the plane. The result is clipped at
	// Params.Saturation when set.
	Evaluate(x, y float64, p Params) float64

	// FWHM returns the full width at half maximum for the given shape.
	FWHM(shape []float64) float64

	// DefaultShape returns a reasonable starting shape for fits.
	DefaultShape() []float64

	// ShapeBounds returns fit bounds for each shape parameter given the
	// cross-dispersion extent ny of the data.
	ShapeBounds(ny float64) []Bound
}

// New returns the profile implementation for the given family type.
func New(t Type) (Profile, error) {
	switch t {
	case TypeGaussian:
		return Gaussian{}, nil
	case TypeMoffat:
		return Moffat{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
}

// clip applies the saturation cap of p to a rendered value.
func clip(v float64, p Params) float64 {
	if p.Saturation > 0 && v > p.Saturation {
		return p.Saturation
	}

	return v
}
