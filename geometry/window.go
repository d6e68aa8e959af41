package geometry

import (
	"fmt"
	"math"
)

// Window is a half-open pixel interval [XMin, XMax) along the dispersion
// axis.
type Window struct {
	XMin int
	XMax int
}

// Width returns the number of pixel columns covered by the window.
func (w Window) Width() int { return w.XMax - w.XMin }

// WavelengthWindow computes the crop window along the dispersion axis whose
// mapped wavelengths come closest to [lambdaMin, lambdaMax]. Pixel offsets
// are measured from targetX; width is the number of columns available;
// widthLimit caps the right edge (values <= 0 disable the cap).
func WavelengthWindow(d Disperser, targetX float64, width int, lambdaMin, lambdaMax float64, widthLimit int) (Window, error) {
	if width <= 0 {
		return Window{}, fmt.Errorf("geometry: window width must be > 0: %d", width)
	}

	if lambdaMin >= lambdaMax {
		return Window{}, fmt.Errorf("geometry: wavelength bounds not ordered: [%f, %f]", lambdaMin, lambdaMax)
	}

	lambdas := make([]float64, width)
	for i := range lambdas {
		lambdas[i] = d.PixelToWavelength(float64(i) - targetX)
	}

	xmin := nearestIndex(lambdas, lambdaMin)
	xmax := nearestIndex(lambdas, lambdaMax)
	if widthLimit > 0 && xmax > widthLimit {
		xmax = widthLimit
	}

	if xmax <= xmin {
		return Window{}, fmt.Errorf("geometry: empty wavelength window [%d, %d)", xmin, xmax)
	}

	return Window{XMin: xmin, XMax: xmax}, nil
}

// WavelengthWindowAt computes the crop window from an explicit distance grid
// along the dispersion axis, used once the trace geometry is known on the
// unrotated frame. It returns indices into the distance slice.
func WavelengthWindowAt(d Disperser, distance []float64, lambdaMin, lambdaMax float64) (lo, hi int, err error) {
	if len(distance) == 0 {
		return 0, 0, fmt.Errorf("geometry: empty distance grid")
	}

	lambdas := make([]float64, len(distance))
	for i, dx := range distance {
		lambdas[i] = d.PixelToWavelength(dx)
	}

	lo = nearestIndex(lambdas, lambdaMin)
	hi = nearestIndex(lambdas, lambdaMax)
	if hi < lo {
		lo, hi = hi, lo
	}

	return lo, hi, nil
}

// nearestIndex returns the index whose value is closest to target.
func nearestIndex(values []float64, target float64) int {
	best := 0
	bestDiff := math.Inf(1)
	for i, v := range values {
		diff := math.Abs(v - target)
		if diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}

	return best
}
