package extract

import (
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spectro/chromatic"
)

// Spectrum is the extraction product: the 1-D flux sequence with its
// uncertainty and covariance, the spectrogram arrays it was derived from,
// and the crop geometry. It is filled by ExtractSpectrum and persisted by
// an external writer.
type Spectrum struct {
	// Pixels is the absolute detector column of each spectrum sample.
	Pixels []float64

	// Lambdas is the first-guess wavelength of each sample, from the
	// disperser mapping.
	Lambdas []float64

	// Flux and FluxErr are the fitted amplitudes and their statistical
	// errors.
	Flux    []float64
	FluxErr []float64

	// Cov is the amplitude covariance matrix.
	Cov *mat.SymDense

	// Spectrogram artifacts: the final unrotated crop, its error array,
	// the fitted background surface on the crop grid, and (in 2-D mode)
	// the normalised fit residuals (data - model - background) / err.
	SpectrogramData       *mat.Dense
	SpectrogramErr        *mat.Dense
	SpectrogramBackground *mat.Dense
	SpectrogramResiduals  *mat.Dense

	// Crop geometry in unrotated detector coordinates.
	XMin, XMax int
	YMin, YMax int

	// TargetX, TargetY is the target position in crop-local coordinates.
	TargetX, TargetY float64

	// Deg is the shape polynomial degree used by the fit.
	Deg int

	// Saturation is the detector saturation level.
	Saturation float64

	// OptReg is the selected regularisation strength of the 2-D solve,
	// or -1 when the extraction ran in 1-D mode.
	OptReg float64

	// Units labels the flux values.
	Units string

	// Table is the final chromatic PSF table behind the flux sequence,
	// kept for read-only inspection.
	Table *chromatic.Table

	// Header holds free-form key/value metadata for the external writer.
	Header map[string]string
}
