package diag

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cwbudde/algo-spectro/extract"
)

// ErrNoData reports a diagnostic request over an empty result.
var ErrNoData = errors.New("diag: nothing to plot")

// SaveSpectrumPlot writes a PNG of flux against wavelength, with the
// one-sigma error band drawn as separate lines.
func SaveSpectrumPlot(s *extract.Spectrum, path string) error {
	if s == nil || len(s.Flux) == 0 {
		return ErrNoData
	}

	p := plot.New()
	p.Title.Text = "Extracted spectrum"
	p.X.Label.Text = "Wavelength (nm)"
	p.Y.Label.Text = fmt.Sprintf("Flux (%s)", s.Units)

	flux := make(plotter.XYs, len(s.Flux))
	upper := make(plotter.XYs, len(s.Flux))
	lower := make(plotter.XYs, len(s.Flux))
	for i := range s.Flux {
		flux[i] = plotter.XY{X: s.Lambdas[i], Y: s.Flux[i]}
		upper[i] = plotter.XY{X: s.Lambdas[i], Y: s.Flux[i] + s.FluxErr[i]}
		lower[i] = plotter.XY{X: s.Lambdas[i], Y: s.Flux[i] - s.FluxErr[i]}
	}

	line, err := plotter.NewLine(flux)
	if err != nil {
		return fmt.Errorf("diag: spectrum plot: %w", err)
	}

	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("flux", line)

	for _, band := range []plotter.XYs{upper, lower} {
		bl, err := plotter.NewLine(band)
		if err != nil {
			return fmt.Errorf("diag: spectrum plot: %w", err)
		}

		bl.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		p.Add(bl)
	}

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}

// SaveWidthPlot writes a PNG of the fitted trace FWHM against wavelength,
// together with the flux_sum / flux_integral consistency curves.
func SaveWidthPlot(s *extract.Spectrum, path string) error {
	if s == nil || s.Table == nil || s.Table.Nx == 0 {
		return ErrNoData
	}

	t := s.Table

	p := plot.New()
	p.Title.Text = "Trace width and flux consistency"
	p.X.Label.Text = "Wavelength (nm)"
	p.Y.Label.Text = "Pixels / flux ratio"

	fwhm := make(plotter.XYs, t.Nx)
	ratio := make(plotter.XYs, 0, t.Nx)
	for i := 0; i < t.Nx; i++ {
		fwhm[i] = plotter.XY{X: t.Lambdas[i], Y: t.FWHM[i]}
		if t.FluxIntegral[i] != 0 {
			ratio = append(ratio, plotter.XY{X: t.Lambdas[i], Y: t.FluxSum[i] / t.FluxIntegral[i]})
		}
	}

	fl, err := plotter.NewLine(fwhm)
	if err != nil {
		return fmt.Errorf("diag: width plot: %w", err)
	}

	p.Add(fl)
	p.Legend.Add("FWHM", fl)

	if len(ratio) > 0 {
		rl, err := plotter.NewLine(ratio)
		if err != nil {
			return fmt.Errorf("diag: width plot: %w", err)
		}

		rl.LineStyle.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
		p.Add(rl)
		p.Legend.Add("flux_sum / flux_integral", rl)
	}

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}

// SaveResidualMap writes a PNG heat map of the normalised 2-D fit
// residuals. Only available after a 2-D extraction.
func SaveResidualMap(s *extract.Spectrum, path string) error {
	if s == nil || s.SpectrogramResiduals == nil {
		return ErrNoData
	}

	p := plot.New()
	p.Title.Text = "Fit residuals (data - model - background) / err"
	p.X.Label.Text = "Column"
	p.Y.Label.Text = "Row"

	hm := plotter.NewHeatMap(matGrid{s.SpectrogramResiduals}, moreland.SmoothBlueRed().Palette(255))
	p.Add(hm)

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}

// matGrid adapts a dense matrix to the heat map grid interface.
type matGrid struct {
	m *mat.Dense
}

func (g matGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g matGrid) Z(c, r int) float64 { return g.m.At(r, c) }
func (g matGrid) X(c int) float64    { return float64(c) }
func (g matGrid) Y(r int) float64    { return float64(r) }
