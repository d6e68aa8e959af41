// Package fitting solves the global chromatic PSF fit of a spectrogram
// crop: per-column amplitude estimation against a 1-D rendered model, or a
// regularised joint deconvolution against the full 2-D pixel grid, with an
// outer refinement of the shape polynomial coefficients.
package fitting
