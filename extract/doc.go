// Package extract runs the spectrogram extraction pipeline: wavelength
// windowing and cropping, iterative background estimation, per-column
// transverse profile fitting, the global chromatic PSF fit in one or two
// dimensions, and the frame bookkeeping between the rotated working frame
// and the unrotated detector frame.
package extract
