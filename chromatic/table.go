package chromatic

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-spectro/geometry"
	"github.com/cwbudde/algo-spectro/psf"
)

// Table errors.
var (
	ErrBadDimensions  = errors.New("chromatic: table dimensions must be positive")
	ErrBadPolyLength  = errors.New("chromatic: polynomial parameter vector length mismatch")
	ErrLengthMismatch = errors.New("chromatic: column length mismatch")
)

// Table holds the chromatic PSF parameters of a spectrogram crop, one row
// per along-dispersion pixel column. The row count always equals Nx.
type Table struct {
	// Nx, Ny are the crop dimensions in pixels.
	Nx, Ny int

	// X0, Y0 is the target position in crop-local coordinates.
	X0, Y0 float64

	// Deg is the degree of the shape polynomials.
	Deg int

	// Saturation caps rendered pixel values.
	Saturation float64

	// Profile is the PSF family used by this table.
	Profile psf.Profile

	// Per-column fit results.
	Amplitude []float64
	XC, YC    []float64
	Shape     [][]float64 // [shape param][column]
	FWHM      []float64

	// Flux bookkeeping: cross-dispersion data sum, model integral and the
	// propagated statistical error.
	FluxSum      []float64
	FluxIntegral []float64
	FluxErr      []float64

	// Frame-relative offsets from the target position, and the track of
	// the dispersion axis.
	Dx, Dy     []float64
	DyDispAxis []float64

	// FWHM band around the trace: Dy -/+ FWHM/2.
	DyFWHMInf, DyFWHMSup []float64

	// Lambdas holds the first-guess wavelength of each column.
	Lambdas []float64
}

// NewTable creates a table for an Nx x Ny crop with the target at crop-local
// (x0, y0), shape polynomials of degree deg and the given saturation level.
// Columns are initialised with the profile's default shape and the trace
// centered on y0.
func NewTable(p psf.Profile, nx, ny int, x0, y0 float64, deg int, saturation float64) (*Table, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: nx=%d ny=%d", ErrBadDimensions, nx, ny)
	}

	if deg < 0 {
		return nil, fmt.Errorf("chromatic: polynomial degree must be >= 0: %d", deg)
	}

	nShape := len(p.ShapeNames())
	t := &Table{
		Nx:         nx,
		Ny:         ny,
		X0:         x0,
		Y0:         y0,
		Deg:        deg,
		Saturation: saturation,
		Profile:    p,

		Amplitude:    make([]float64, nx),
		XC:           make([]float64, nx),
		YC:           make([]float64, nx),
		Shape:        make([][]float64, nShape),
		FWHM:         make([]float64, nx),
		FluxSum:      make([]float64, nx),
		FluxIntegral: make([]float64, nx),
		FluxErr:      make([]float64, nx),
		Dx:           make([]float64, nx),
		Dy:           make([]float64, nx),
		DyDispAxis:   make([]float64, nx),
		DyFWHMInf:    make([]float64, nx),
		DyFWHMSup:    make([]float64, nx),
		Lambdas:      make([]float64, nx),
	}

	defShape := p.DefaultShape()
	for k := range t.Shape {
		t.Shape[k] = make([]float64, nx)
		for i := range t.Shape[k] {
			t.Shape[k][i] = defShape[k]
		}
	}

	fwhm := p.FWHM(defShape)
	for i := 0; i < nx; i++ {
		t.XC[i] = float64(i)
		t.YC[i] = y0
		t.FWHM[i] = fwhm
		t.Dx[i] = float64(i) - x0
	}

	t.updateFWHMBands()

	return t, nil
}

// NumShape returns the number of shape parameters of the table's profile.
func (t *Table) NumShape() int { return len(t.Shape) }

// shapeAt returns the shape parameter vector of column i.
func (t *Table) shapeAt(i int) []float64 {
	shape := make([]float64, len(t.Shape))
	for k := range t.Shape {
		shape[k] = t.Shape[k][i]
	}

	return shape
}

// SetRotatedOffsets records the offset columns relative to the rotated-frame
// target position for a crop starting at (xmin, ymin). The dispersion axis
// is horizontal in the rotated frame, so its track is zero.
func (t *Table) SetRotatedOffsets(targetXRot, targetYRot float64, xmin, ymin int) {
	for i := range t.Dx {
		t.Dx[i] = float64(xmin+i) - targetXRot
		t.Dy[i] = t.YC[i] - (targetYRot - float64(ymin))
		t.DyDispAxis[i] = 0
	}

	t.updateFWHMBands()
}

// Rotate applies a rotation by angleDeg degrees to the offset columns,
// converting them between the rotated working frame and the unrotated
// detector frame. A zero angle is an exact identity. The dispersion-axis
// track rotates with the pre-rotation Dx.
func (t *Table) Rotate(angleDeg float64) {
	if angleDeg == 0 {
		t.updateFWHMBands()
		return
	}

	dx := append([]float64(nil), t.Dx...)
	geometry.RotateOffsets(t.Dx, t.Dy, angleDeg)
	geometry.RotateOffsets(dx, t.DyDispAxis, angleDeg)

	t.updateFWHMBands()
}

// SetFrameOrigin records the target position of a new crop frame and
// recomputes the absolute centers, preserving center = target + offset.
func (t *Table) SetFrameOrigin(x0, y0 float64) {
	t.X0 = x0
	t.Y0 = y0

	for i := range t.Dx {
		t.XC[i] = t.Dx[i] + x0
		t.YC[i] = t.Dy[i] + y0
	}
}

// DistanceAlongDispersionAxis returns the signed distance of each column
// from the target position measured along the dispersion axis.
func (t *Table) DistanceAlongDispersionAxis() []float64 {
	dist := make([]float64, t.Nx)
	for i := range dist {
		d := math.Hypot(t.Dx[i], t.DyDispAxis[i])
		if t.Dx[i] < 0 {
			d = -d
		}

		dist[i] = d
	}

	return dist
}

// updateFWHMBands refreshes the FWHM band columns from Dy and FWHM.
func (t *Table) updateFWHMBands() {
	for i := range t.Dy {
		t.DyFWHMInf[i] = t.Dy[i] - 0.5*t.FWHM[i]
		t.DyFWHMSup[i] = t.Dy[i] + 0.5*t.FWHM[i]
	}
}
