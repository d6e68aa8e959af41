package extract

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spectro/geometry"
)

// Image errors.
var ErrBadImage = errors.New("extract: incomplete image")

// Image carries the detector frames and geometry consumed by the pipeline.
// The pipeline treats it as read-only.
type Image struct {
	// Data and Err are the unrotated detector frame and its per-pixel
	// error array.
	Data *mat.Dense
	Err  *mat.Dense

	// RotatedData and RotatedErr hold the same frame rotated so the
	// dispersion axis is horizontal.
	RotatedData *mat.Dense
	RotatedErr  *mat.Dense

	// TargetX, TargetY locate the zeroth-order target in the unrotated
	// frame; RotatedTargetX, RotatedTargetY in the rotated frame.
	TargetX, TargetY               float64
	RotatedTargetX, RotatedTargetY float64

	// Disperser maps pixel offsets from the target to wavelengths.
	Disperser geometry.Disperser

	// RotationAngle is the angle, in degrees, that was applied to produce
	// the rotated frame.
	RotationAngle float64

	// Saturation is the detector saturation level. Zero or negative
	// disables saturation handling.
	Saturation float64

	// Units labels the pixel values.
	Units string
}

// check verifies the image carries everything the pipeline reads.
func (img *Image) check() error {
	if img == nil || img.Data == nil || img.Err == nil || img.RotatedData == nil || img.RotatedErr == nil {
		return fmt.Errorf("%w: missing pixel or error arrays", ErrBadImage)
	}

	if img.Disperser == nil {
		return fmt.Errorf("%w: missing disperser mapping", ErrBadImage)
	}

	dr, dc := img.Data.Dims()
	er, ec := img.Err.Dims()
	if dr != er || dc != ec {
		return fmt.Errorf("%w: data %dx%d and error %dx%d arrays disagree", ErrBadImage, dr, dc, er, ec)
	}

	rr, rc := img.RotatedData.Dims()
	rer, rec := img.RotatedErr.Dims()
	if rr != rer || rc != rec {
		return fmt.Errorf("%w: rotated data %dx%d and error %dx%d arrays disagree", ErrBadImage, rr, rc, rer, rec)
	}

	return nil
}
