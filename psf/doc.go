// Package psf provides transverse point-spread-function profile families.
//
// A Profile describes the cross-dispersion light distribution of a point
// source at a single wavelength. Each family exposes a unit-normalised
// transverse density (integral one along the cross-dispersion axis) and a
// unit-normalised radial 2-D density, so that the amplitude parameter always
// carries integrated flux. Profile families are selected through a closed
// Type enumeration rather than free-form strings.
package psf
