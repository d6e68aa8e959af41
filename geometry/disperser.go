package geometry

// Disperser maps a pixel offset along the dispersion axis, measured from the
// target position, to a wavelength in nanometres. Implementations are
// consumed read-only.
type Disperser interface {
	PixelToWavelength(dx float64) float64
}

// DisperserFunc adapts a plain function to the Disperser interface.
type DisperserFunc func(dx float64) float64

// PixelToWavelength implements Disperser.
func (f DisperserFunc) PixelToWavelength(dx float64) float64 { return f(dx) }
