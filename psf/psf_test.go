package psf

import (
	"errors"
	"math"
	"testing"
)

func integrateTransverse(p Profile, params Params, lo, hi, step float64) float64 {
	sum := 0.0
	for y := lo; y <= hi; y += step {
		sum += p.Transverse(y, params) * step
	}

	return sum
}

func TestTransverseNormalisation(t *testing.T) {
	cases := []struct {
		name  string
		typ   Type
		shape []float64
	}{
		{"gaussian", TypeGaussian, []float64{3}},
		{"moffat", TypeMoffat, []float64{3, 2.5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(tc.typ)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			params := Params{Amplitude: 1, CenterY: 0, Shape: tc.shape}
			got := integrateTransverse(p, params, -200, 200, 0.05)
			if math.Abs(got-1) > 1e-3 {
				t.Fatalf("transverse integral = %f, want 1", got)
			}
		})
	}
}

func TestRadialNormalisationGaussian(t *testing.T) {
	p := Gaussian{}
	params := Params{Amplitude: 1, Shape: []float64{2}}

	sum := 0.0
	for x := -30.0; x <= 30; x += 0.1 {
		for y := -30.0; y <= 30; y += 0.1 {
			sum += p.Evaluate(x, y, params) * 0.01
		}
	}

	if math.Abs(sum-1) > 1e-3 {
		t.Fatalf("radial integral = %f, want 1", sum)
	}
}

func TestFWHMHalfMaximum(t *testing.T) {
	cases := []struct {
		name  string
		p     Profile
		shape []float64
	}{
		{"gaussian", Gaussian{}, []float64{2.5}},
		{"moffat", Moffat{}, []float64{3, 2.2}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := Params{Amplitude: 1, CenterY: 0, Shape: tc.shape}
			peak := tc.p.Transverse(0, params)
			half := tc.p.Transverse(tc.p.FWHM(tc.shape)/2, params)

			if math.Abs(half-0.5*peak) > 1e-9*peak {
				t.Fatalf("value at FWHM/2 = %g, want %g", half, 0.5*peak)
			}
		})
	}
}

func TestSaturationClipping(t *testing.T) {
	p := Gaussian{}
	params := Params{Amplitude: 1e6, CenterY: 0, Shape: []float64{1}, Saturation: 100}

	if got := p.Transverse(0, params); got != 100 {
		t.Fatalf("clipped value = %f, want 100", got)
	}

	if got := p.Evaluate(0, 0, params); got != 100 {
		t.Fatalf("clipped 2-D value = %f, want 100", got)
	}
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(Type(42))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestShapeBoundsOrdering(t *testing.T) {
	for _, typ := range []Type{TypeGaussian, TypeMoffat} {
		p, err := New(typ)
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		bounds := p.ShapeBounds(60)
		if len(bounds) != len(p.ShapeNames()) {
			t.Fatalf("%s: %d bounds for %d shape params", p.Name(), len(bounds), len(p.ShapeNames()))
		}

		for i, b := range bounds {
			if b.Lower >= b.Upper {
				t.Fatalf("%s: bound %d not ordered: %+v", p.Name(), i, b)
			}
		}
	}
}
