package background

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-spectro/internal/numeric"
)

// gaussianKernel returns a normalised Gaussian kernel with the given sigma,
// truncated at three sigma.
func gaussianKernel(sigma float64) []float64 {
	if sigma <= 0 {
		return []float64{1}
	}

	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)

	sum := 0.0
	for i := range kernel {
		u := float64(i-radius) / sigma
		kernel[i] = math.Exp(-0.5 * u * u)
		sum += kernel[i]
	}

	for i := range kernel {
		kernel[i] /= sum
	}

	return kernel
}

// smoothRow convolves row with a normalised kernel via FFT and renormalises
// near the edges so that a constant row stays constant. The result has the
// same length as row.
func smoothRow(row, kernel []float64) ([]float64, error) {
	n := len(row)
	m := len(kernel)
	if n == 0 {
		return nil, fmt.Errorf("background: empty row")
	}

	if m <= 1 {
		return append([]float64(nil), row...), nil
	}

	fftSize := numeric.NextPowerOf2(n + m - 1)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("background: failed to create FFT plan: %w", err)
	}

	rowPadded := make([]complex128, fftSize)
	maskPadded := make([]complex128, fftSize)
	kernelPadded := make([]complex128, fftSize)

	for i := range n {
		rowPadded[i] = complex(row[i], 0)
		maskPadded[i] = complex(1, 0)
	}

	for i := range m {
		kernelPadded[i] = complex(kernel[i], 0)
	}

	rowFreq := make([]complex128, fftSize)
	maskFreq := make([]complex128, fftSize)
	kernelFreq := make([]complex128, fftSize)

	if err := plan.Forward(rowFreq, rowPadded); err != nil {
		return nil, err
	}

	if err := plan.Forward(maskFreq, maskPadded); err != nil {
		return nil, err
	}

	if err := plan.Forward(kernelFreq, kernelPadded); err != nil {
		return nil, err
	}

	for i := range rowFreq {
		rowFreq[i] *= kernelFreq[i]
		maskFreq[i] *= kernelFreq[i]
	}

	rowTime := make([]complex128, fftSize)
	maskTime := make([]complex128, fftSize)

	if err := plan.Inverse(rowTime, rowFreq); err != nil {
		return nil, err
	}

	if err := plan.Inverse(maskTime, maskFreq); err != nil {
		return nil, err
	}

	// Centre of the linear convolution; divide by the smoothed mask to
	// undo the missing kernel mass at the edges.
	radius := (m - 1) / 2
	out := make([]float64, n)
	for i := range out {
		weight := real(maskTime[i+radius])
		if weight <= 0 {
			weight = 1
		}

		out[i] = real(rowTime[i+radius]) / weight
	}

	return out, nil
}
