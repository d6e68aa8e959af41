package background

import "gonum.org/v1/gonum/mat"

// Model is a continuous background surface built from a coarse grid of
// robust node estimates, evaluable at arbitrary (x, y) pixel coordinates
// through bilinear interpolation.
type Model struct {
	xs      []float64  // node x coordinates, ascending
	ys      []float64  // node y coordinates, ascending
	values  *mat.Dense // len(ys) x len(xs)
	boxSize int
}

// BoxSize returns the box size the model was built with.
func (m *Model) BoxSize() int { return m.boxSize }

// At evaluates the background surface at pixel coordinates (x, y).
// Coordinates outside the node hull are clamped to the border.
func (m *Model) At(x, y float64) float64 {
	cx, tx := locate(m.xs, x)
	cy, ty := locate(m.ys, y)

	v00 := m.values.At(cy, cx)
	v01 := m.values.At(cy, cx+1)
	v10 := m.values.At(cy+1, cx)
	v11 := m.values.At(cy+1, cx+1)

	top := v00 + tx*(v01-v00)
	bottom := v10 + tx*(v11-v10)

	return top + ty*(bottom-top)
}

// EvalGrid renders the surface on the full ny x nx pixel grid.
func (m *Model) EvalGrid(nx, ny int) *mat.Dense {
	out := mat.NewDense(ny, nx, nil)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			out.Set(y, x, m.At(float64(x), float64(y)))
		}
	}

	return out
}

// locate finds the node cell containing v and the interpolation fraction
// within it. nodes must hold at least two ascending values.
func locate(nodes []float64, v float64) (int, float64) {
	n := len(nodes)
	if v <= nodes[0] {
		return 0, 0
	}

	if v >= nodes[n-1] {
		return n - 2, 1
	}

	lo := 0
	for lo < n-2 && nodes[lo+1] <= v {
		lo++
	}

	span := nodes[lo+1] - nodes[lo]
	if span == 0 {
		return lo, 0
	}

	return lo, (v - nodes[lo]) / span
}
