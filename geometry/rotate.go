package geometry

import "math"

// RotatePoint rotates the offset (dx, dy) by angleDeg degrees
// counter-clockwise around the origin.
func RotatePoint(dx, dy, angleDeg float64) (float64, float64) {
	if angleDeg == 0 {
		return dx, dy
	}

	a := angleDeg * math.Pi / 180
	sin, cos := math.Sincos(a)

	return dx*cos - dy*sin, dx*sin + dy*cos
}

// RotateOffsets rotates the offset pairs (dx[i], dy[i]) in place by angleDeg
// degrees counter-clockwise. Slices must have equal length.
func RotateOffsets(dx, dy []float64, angleDeg float64) {
	if angleDeg == 0 {
		return
	}

	a := angleDeg * math.Pi / 180
	sin, cos := math.Sincos(a)

	for i := range dx {
		x, y := dx[i], dy[i]
		dx[i] = x*cos - y*sin
		dy[i] = x*sin + y*cos
	}
}
