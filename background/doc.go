// Package background estimates a smooth 2-D sky background surface from the
// lateral (non-signal) rows of a spectrogram.
//
// The estimator tiles the lateral bands with boxes, takes a sigma-clipped
// median in each box to resist point-like contaminants, smooths the
// resulting coarse grid and exposes the surface through bilinear
// interpolation. An iterative refinement loop shrinks the box size while
// the residual pull distribution over the background rows fails its
// acceptance criterion; the box size is a locally owned value, never a
// process-wide setting, so concurrent extractions cannot interfere.
package background
