// Package chromatic models a chromatic point-spread function: a PSF whose
// shape parameters vary smoothly with the along-dispersion coordinate.
//
// The central object is the Table, holding one row per spectrogram column
// (amplitude, center, shape, flux bookkeeping and frame-relative offsets).
// The table converts to and from a compact polynomial parameter vector, can
// render a synthetic spectrogram in a fast per-column mode or a full 2-D
// mode with cross-column PSF mixing, and hosts the per-column transverse
// profile fitter that seeds the global deconvolution.
package chromatic
