package extract

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-spectro/psf"
)

// Configuration errors.
var (
	ErrUnsupportedMode = errors.New("extract: unsupported extraction mode")
	ErrBadParams       = errors.New("extract: invalid extraction parameters")
)

// Mode selects the extraction fidelity.
type Mode int

const (
	// ModePSF1D stops after the per-column 1-D fit.
	ModePSF1D Mode = iota

	// ModePSF2D adds the joint 2-D deconvolution pass, seeded by the 1-D
	// results.
	ModePSF2D
)

// String returns the canonical mode name.
func (m Mode) String() string {
	switch m {
	case ModePSF1D:
		return "PSF_1D"
	case ModePSF2D:
		return "PSF_2D"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Params is the configuration surface of an extraction.
type Params struct {
	// Mode selects the extraction fidelity.
	Mode Mode

	// SignalHalfWidth is the half-width, in pixels, of the central band
	// treated as signal.
	SignalHalfWidth int

	// BackgroundInner and BackgroundOuter are the lateral half-widths
	// (w0, w1) bounding the background estimation rows.
	BackgroundInner int
	BackgroundOuter int

	// BackgroundBoxSize is the starting background estimation box size.
	BackgroundBoxSize int

	// PolyDegree is the shape polynomial degree of the chromatic model.
	PolyDegree int

	// Profile selects the PSF family.
	Profile psf.Type

	// LambdaMin and LambdaMax bound the extracted wavelength range, in
	// nanometres.
	LambdaMin float64
	LambdaMax float64

	// WidthLimit caps the crop width in pixels. Zero or negative disables
	// the cap.
	WidthLimit int

	// Logger receives pipeline progress. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// DefaultParams returns the standard extraction parameters.
func DefaultParams() Params {
	return Params{
		Mode:              ModePSF1D,
		SignalHalfWidth:   10,
		BackgroundInner:   20,
		BackgroundOuter:   30,
		BackgroundBoxSize: 20,
		PolyDegree:        2,
		Profile:           psf.TypeMoffat,
		LambdaMin:         300,
		LambdaMax:         1100,
		Logger:            zerolog.Nop(),
	}
}

// Validate checks the configuration. It is called before any pixel array is
// read, so an unsupported mode never triggers computation.
func (p Params) Validate() error {
	if p.Mode != ModePSF1D && p.Mode != ModePSF2D {
		return fmt.Errorf("%w: %d", ErrUnsupportedMode, int(p.Mode))
	}

	if p.SignalHalfWidth <= 0 {
		return fmt.Errorf("%w: signal half-width %d", ErrBadParams, p.SignalHalfWidth)
	}

	if p.BackgroundInner <= 0 || p.BackgroundOuter <= p.BackgroundInner {
		return fmt.Errorf("%w: lateral half-widths (%d, %d)", ErrBadParams, p.BackgroundInner, p.BackgroundOuter)
	}

	if p.PolyDegree < 0 {
		return fmt.Errorf("%w: polynomial degree %d", ErrBadParams, p.PolyDegree)
	}

	if p.LambdaMin >= p.LambdaMax {
		return fmt.Errorf("%w: wavelength bounds [%f, %f]", ErrBadParams, p.LambdaMin, p.LambdaMax)
	}

	if _, err := psf.New(p.Profile); err != nil {
		return fmt.Errorf("%w: %v", ErrBadParams, err)
	}

	return nil
}
