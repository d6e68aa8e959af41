package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/cwbudde/algo-spectro/extract"
)

// RenderHTMLReport writes a self-contained interactive report of the
// extraction to w: the spectrum with its error band, the fitted trace
// geometry, and the flux consistency curves.
func RenderHTMLReport(s *extract.Spectrum, w io.Writer) error {
	if s == nil || len(s.Flux) == 0 {
		return ErrNoData
	}

	page := components.NewPage()
	page.PageTitle = "Spectrogram extraction report"

	page.AddCharts(spectrumChart(s))
	if s.Table != nil && s.Table.Nx > 0 {
		page.AddCharts(traceChart(s), fluxConsistencyChart(s))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("diag: rendering report: %w", err)
	}

	return nil
}

// SaveHTMLReport renders the report into a file at path.
func SaveHTMLReport(s *extract.Spectrum, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("diag: creating report file: %w", err)
	}
	defer f.Close()

	if err := RenderHTMLReport(s, f); err != nil {
		return err
	}

	return f.Close()
}

func spectrumChart(s *extract.Spectrum) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Extracted spectrum",
			Subtitle: fmt.Sprintf("mode=%s reg=%s", s.Header["MODE"], s.Header["PSF_REG"]),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Wavelength (nm)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("Flux (%s)", s.Units)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	xs := make([]string, len(s.Lambdas))
	flux := make([]opts.LineData, len(s.Flux))
	upper := make([]opts.LineData, len(s.Flux))
	lower := make([]opts.LineData, len(s.Flux))
	for i := range s.Flux {
		xs[i] = fmt.Sprintf("%.1f", s.Lambdas[i])
		flux[i] = opts.LineData{Value: s.Flux[i]}
		upper[i] = opts.LineData{Value: s.Flux[i] + s.FluxErr[i]}
		lower[i] = opts.LineData{Value: s.Flux[i] - s.FluxErr[i]}
	}

	line.SetXAxis(xs).
		AddSeries("flux", flux).
		AddSeries("flux + err", upper).
		AddSeries("flux - err", lower)

	return line
}

func traceChart(s *extract.Spectrum) *charts.Line {
	t := s.Table

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Trace geometry"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Column"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Row offset (pixels)"}),
	)

	xs := make([]string, t.Nx)
	center := make([]opts.LineData, t.Nx)
	bandLo := make([]opts.LineData, t.Nx)
	bandHi := make([]opts.LineData, t.Nx)
	for i := 0; i < t.Nx; i++ {
		xs[i] = fmt.Sprintf("%d", i)
		center[i] = opts.LineData{Value: t.Dy[i]}
		bandLo[i] = opts.LineData{Value: t.DyFWHMInf[i]}
		bandHi[i] = opts.LineData{Value: t.DyFWHMSup[i]}
	}

	line.SetXAxis(xs).
		AddSeries("trace center", center).
		AddSeries("center - FWHM/2", bandLo).
		AddSeries("center + FWHM/2", bandHi)

	return line
}

func fluxConsistencyChart(s *extract.Spectrum) *charts.Line {
	t := s.Table

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Flux consistency"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Column"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Flux"}),
	)

	xs := make([]string, t.Nx)
	sum := make([]opts.LineData, t.Nx)
	integral := make([]opts.LineData, t.Nx)
	for i := 0; i < t.Nx; i++ {
		xs[i] = fmt.Sprintf("%d", i)
		sum[i] = opts.LineData{Value: t.FluxSum[i]}
		integral[i] = opts.LineData{Value: t.FluxIntegral[i]}
	}

	line.SetXAxis(xs).
		AddSeries("flux_sum", sum).
		AddSeries("flux_integral", integral)

	return line
}
