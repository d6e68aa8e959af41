package numeric

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	cases := []struct {
		value, min, max, want float64
	}{
		{0.5, 0, 1, 0.5},
		{-1, 0, 1, 0},
		{2, 0, 1, 1},
		{0.5, 1, 0, 0.5}, // swapped bounds
		{5, 1, 0, 1},
	}

	for _, tc := range cases {
		if got := Clamp(tc.value, tc.min, tc.max); got != tc.want {
			t.Fatalf("Clamp(%v, %v, %v) = %v, want %v", tc.value, tc.min, tc.max, got, tc.want)
		}
	}
}

func TestNearlyEqual(t *testing.T) {
	if !NearlyEqual(1, 1+1e-13, 0) {
		t.Fatal("values within default epsilon reported unequal")
	}

	if NearlyEqual(1, 1.1, 1e-6) {
		t.Fatal("distant values reported equal")
	}

	if !NearlyEqual(1e12, 1e12+1, 1e-9) {
		t.Fatal("relative comparison failed for large values")
	}
}

func TestAllFinite(t *testing.T) {
	if !AllFinite([]float64{0, -1, 1e300}) {
		t.Fatal("finite slice reported non-finite")
	}

	if AllFinite([]float64{0, math.NaN()}) {
		t.Fatal("NaN not detected")
	}

	if AllFinite([]float64{math.Inf(1)}) {
		t.Fatal("Inf not detected")
	}
}

func TestNextPowerOf2(t *testing.T) {
	cases := []struct{ n, want int }{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{1000, 1024},
		{1024, 1024},
	}

	for _, tc := range cases {
		if got := NextPowerOf2(tc.n); got != tc.want {
			t.Fatalf("NextPowerOf2(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}
