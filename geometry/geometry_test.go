package geometry

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// linearDisperser maps pixel offsets to wavelengths at 2 nm per pixel from a
// 300 nm origin, roughly a low-dispersion grating.
func linearDisperser() Disperser {
	return DisperserFunc(func(dx float64) float64 { return 300 + 2*dx })
}

func TestWavelengthWindow(t *testing.T) {
	d := linearDisperser()

	got, err := WavelengthWindow(d, 0, 500, 350, 1000, 0)
	if err != nil {
		t.Fatalf("WavelengthWindow: %v", err)
	}

	// 350 nm maps to pixel 25, 1000 nm to pixel 350.
	want := Window{XMin: 25, XMax: 350}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("window mismatch (-want +got):\n%s", diff)
	}

	if got.Width() != 325 {
		t.Fatalf("width = %d, want 325", got.Width())
	}
}

func TestWavelengthWindowWidthLimit(t *testing.T) {
	d := linearDisperser()

	got, err := WavelengthWindow(d, 0, 500, 350, 1000, 200)
	if err != nil {
		t.Fatalf("WavelengthWindow: %v", err)
	}

	want := Window{XMin: 25, XMax: 200}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("window mismatch (-want +got):\n%s", diff)
	}
}

func TestWavelengthWindowTargetOffset(t *testing.T) {
	d := linearDisperser()

	got, err := WavelengthWindow(d, 100, 500, 350, 1000, 0)
	if err != nil {
		t.Fatalf("WavelengthWindow: %v", err)
	}

	want := Window{XMin: 125, XMax: 450}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("window mismatch (-want +got):\n%s", diff)
	}
}

func TestWavelengthWindowErrors(t *testing.T) {
	d := linearDisperser()

	if _, err := WavelengthWindow(d, 0, 0, 350, 1000, 0); err == nil {
		t.Fatal("expected error for zero width")
	}

	if _, err := WavelengthWindow(d, 0, 100, 1000, 350, 0); err == nil {
		t.Fatal("expected error for inverted wavelength bounds")
	}
}

func TestRotatePointIdentity(t *testing.T) {
	x, y := RotatePoint(3.5, -1.25, 0)
	if x != 3.5 || y != -1.25 {
		t.Fatalf("zero-angle rotation must be exact identity, got (%f, %f)", x, y)
	}
}

func TestRotateOffsetsRoundTrip(t *testing.T) {
	dx := []float64{0, 1, 10, -4, 120.5}
	dy := []float64{0, -2, 3, 7.25, -0.5}

	origX := append([]float64(nil), dx...)
	origY := append([]float64(nil), dy...)

	const angle = 13.7
	RotateOffsets(dx, dy, angle)
	RotateOffsets(dx, dy, -angle)

	for i := range dx {
		if math.Abs(dx[i]-origX[i]) > 1e-9 || math.Abs(dy[i]-origY[i]) > 1e-9 {
			t.Fatalf("round trip mismatch at %d: got (%f, %f), want (%f, %f)",
				i, dx[i], dy[i], origX[i], origY[i])
		}
	}
}

func TestRotatePointQuarterTurn(t *testing.T) {
	x, y := RotatePoint(1, 0, 90)
	if math.Abs(x) > 1e-12 || math.Abs(y-1) > 1e-12 {
		t.Fatalf("quarter turn of (1,0) = (%f, %f), want (0, 1)", x, y)
	}
}
