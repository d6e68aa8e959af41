package chromatic

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spectro/internal/testutil"
	"github.com/cwbudde/algo-spectro/psf"
)

func TestFitTransverseProfileRecoversTrace(t *testing.T) {
	spec := testutil.DefaultSpectrogramSpec()
	data, errs, truth := spec.Generate()

	table, err := NewTable(psf.Gaussian{}, spec.Nx, spec.Ny, spec.PeakColumn, float64(spec.Ny)/2, 2, 0)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	bgd := func(x, y float64) float64 { return spec.Background }

	if err := table.FitTransverseProfile(data, errs, bgd, DefaultTransverseOptions()); err != nil {
		t.Fatalf("FitTransverseProfile: %v", err)
	}

	testutil.RequireFinite(t, table.Amplitude)
	testutil.RequireFinite(t, table.YC)
	testutil.RequireFinite(t, table.FWHM)

	// Over the bright central band the fitted amplitudes track the truth
	// to a few percent of the peak. The stride sampling and the pixel
	// noise both contribute to the spread.
	lo, hi := spec.Nx*3/10, spec.Nx*7/10
	for i := lo; i < hi; i++ {
		if math.Abs(table.Amplitude[i]-truth[i]) > 0.1*spec.PeakFlux {
			t.Fatalf("column %d: amplitude %f, truth %f", i, table.Amplitude[i], truth[i])
		}
	}

	wantFWHM := 2.3548200450309493 * spec.Sigma
	center := float64(spec.Ny) / 2
	for i := lo; i < hi; i++ {
		if math.Abs(table.YC[i]-center) > 1 {
			t.Fatalf("column %d: trace center %f, want about %f", i, table.YC[i], center)
		}

		if math.Abs(table.FWHM[i]-wantFWHM) > 0.2*wantFWHM {
			t.Fatalf("column %d: FWHM %f, want about %f", i, table.FWHM[i], wantFWHM)
		}
	}
}

func TestFitTransverseProfileFluxBookkeeping(t *testing.T) {
	spec := testutil.DefaultSpectrogramSpec()
	spec.Noise = 1
	data, errs, truth := spec.Generate()

	table, err := NewTable(psf.Gaussian{}, spec.Nx, spec.Ny, spec.PeakColumn, float64(spec.Ny)/2, 2, 0)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	bgd := func(x, y float64) float64 { return spec.Background }
	opts := DefaultTransverseOptions()

	if err := table.FitTransverseProfile(data, errs, bgd, opts); err != nil {
		t.Fatalf("FitTransverseProfile: %v", err)
	}

	// The background-subtracted band sum approximates the true flux where
	// the signal dominates, and the error column stays positive.
	peak := int(spec.PeakColumn)
	if math.Abs(table.FluxSum[peak]-truth[peak]) > 0.1*truth[peak] {
		t.Fatalf("peak flux sum %f, truth %f", table.FluxSum[peak], truth[peak])
	}

	for i := range table.FluxErr {
		if table.FluxErr[i] <= 0 {
			t.Fatalf("column %d: flux error %f must be positive", i, table.FluxErr[i])
		}
	}
}

func TestFitTransverseProfileSkipsSaturatedPixels(t *testing.T) {
	spec := testutil.DefaultSpectrogramSpec()
	data, errs, _ := spec.Generate()

	// Clip the core of the brightest columns to a hard ceiling.
	const ceiling = 120.0
	for x := 95; x <= 105; x++ {
		for y := 0; y < spec.Ny; y++ {
			if data.At(y, x) > ceiling {
				data.Set(y, x, ceiling)
			}
		}
	}

	table, err := NewTable(psf.Gaussian{}, spec.Nx, spec.Ny, spec.PeakColumn, float64(spec.Ny)/2, 2, ceiling)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	bgd := func(x, y float64) float64 { return spec.Background }
	opts := DefaultTransverseOptions()
	opts.Saturation = ceiling

	if err := table.FitTransverseProfile(data, errs, bgd, opts); err != nil {
		t.Fatalf("FitTransverseProfile: %v", err)
	}

	testutil.RequireFinite(t, table.Amplitude)
	testutil.RequireFinite(t, table.YC)
}

func TestFitTransverseProfileDimensionMismatch(t *testing.T) {
	table, err := NewTable(psf.Gaussian{}, 20, 10, 10, 5, 1, 0)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	data := mat.NewDense(12, 20, nil)
	errs := mat.NewDense(12, 20, nil)
	bgd := func(x, y float64) float64 { return 0 }

	if err := table.FitTransverseProfile(data, errs, bgd, DefaultTransverseOptions()); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}
