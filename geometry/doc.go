// Package geometry provides coordinate bookkeeping for spectrogram
// extraction: the disperser pixel-to-wavelength mapping, wavelength-bounded
// crop windows along the dispersion axis, and rotation of offset vectors
// between the rotated working frame and the unrotated detector frame.
package geometry
