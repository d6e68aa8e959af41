package extract

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spectro/background"
	"github.com/cwbudde/algo-spectro/chromatic"
	"github.com/cwbudde/algo-spectro/fitting"
	"github.com/cwbudde/algo-spectro/geometry"
	"github.com/cwbudde/algo-spectro/psf"
)

// ExtractSpectrum runs the full extraction pipeline on img: crop the
// rotated frame by the wavelength window, estimate the background, fit the
// transverse profiles, run the global 1-D fit, derotate the parameter table
// onto the detector frame, recrop and re-estimate the background there, and
// in 2-D mode run the joint deconvolution seeded by the 1-D results.
func ExtractSpectrum(img *Image, p Params) (*Spectrum, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := img.check(); err != nil {
		return nil, err
	}

	profile, err := psf.New(p.Profile)
	if err != nil {
		return nil, err
	}

	// First pass: rotated working frame, dispersion axis horizontal.
	nyRot, nxRot := img.RotatedData.Dims()
	win, err := geometry.WavelengthWindow(img.Disperser, img.RotatedTargetX, nxRot, p.LambdaMin, p.LambdaMax, p.WidthLimit)
	if err != nil {
		return nil, err
	}

	ymin := clampInt(int(math.Round(img.RotatedTargetY))-p.BackgroundOuter, 0, nyRot-1)
	ymax := clampInt(int(math.Round(img.RotatedTargetY))+p.BackgroundOuter, ymin+1, nyRot)

	data := mat.DenseCopyOf(img.RotatedData.Slice(ymin, ymax, win.XMin, win.XMax))
	errs := mat.DenseCopyOf(img.RotatedErr.Slice(ymin, ymax, win.XMin, win.XMax))

	p.Logger.Info().
		Int("xmin", win.XMin).Int("xmax", win.XMax).
		Int("ymin", ymin).Int("ymax", ymax).
		Msg("rotated frame cropped by wavelength window")

	bgdRes, err := estimateBackground(data, errs, p)
	if err != nil {
		return nil, err
	}

	bgd := bgdRes.Model.At

	table, err := chromatic.NewTable(profile, win.Width(), ymax-ymin,
		img.RotatedTargetX-float64(win.XMin), img.RotatedTargetY-float64(ymin),
		p.PolyDegree, img.Saturation)
	if err != nil {
		return nil, err
	}

	topts := chromatic.DefaultTransverseOptions()
	topts.SignalHalfWidth = p.SignalHalfWidth
	topts.Saturation = img.Saturation
	topts.Logger = p.Logger

	if err := table.FitTransverseProfile(data, errs, bgd, topts); err != nil {
		return nil, err
	}

	fit1 := fitting.DefaultOptions(chromatic.Mode1D)
	fit1.Logger = p.Logger

	res1D, err := fitting.Fit(table, data, errs, bgd, fit1)
	if err != nil {
		return nil, err
	}

	p.Logger.Info().Float64("chi2", res1D.Chi2).Msg("global 1-D fit complete")

	// Derotate the table onto the detector frame and recompute the crop
	// window there from the wavelength bounds.
	table.SetRotatedOffsets(img.RotatedTargetX, img.RotatedTargetY, win.XMin, ymin)
	table.Rotate(-img.RotationAngle)

	lo, hi, err := geometry.WavelengthWindowAt(img.Disperser, table.DistanceAlongDispersionAxis(), p.LambdaMin, p.LambdaMax)
	if err != nil {
		return nil, err
	}

	nyRaw, nxRaw := img.Data.Dims()
	rightEdge := nxRaw
	if p.WidthLimit > 0 && p.WidthLimit < rightEdge {
		rightEdge = p.WidthLimit
	}

	// The lateral window follows the dispersion-axis track so an inclined
	// trace stays inside the crop.
	dispMin := floats.Min(table.DyDispAxis)
	dispMax := floats.Max(table.DyDispAxis)

	xmin2 := clampInt(int(math.Round(img.TargetX+table.Dx[lo])), 0, rightEdge-2)
	xmax2 := clampInt(int(math.Round(img.TargetX+table.Dx[hi]))+1, xmin2+1, rightEdge)
	ymin2 := clampInt(int(math.Round(img.TargetY))+int(dispMin)-p.BackgroundOuter, 0, nyRaw-1)
	ymax2 := clampInt(int(math.Round(img.TargetY))+int(dispMax)+p.BackgroundOuter+1, ymin2+1, nyRaw)

	data2 := mat.DenseCopyOf(img.Data.Slice(ymin2, ymax2, xmin2, xmax2))
	errs2 := mat.DenseCopyOf(img.Err.Slice(ymin2, ymax2, xmin2, xmax2))

	p.Logger.Info().
		Int("xmin", xmin2).Int("xmax", xmax2).
		Int("ymin", ymin2).Int("ymax", ymax2).
		Msg("detector frame cropped")

	bgdRes2, err := estimateBackground(data2, errs2, p)
	if err != nil {
		return nil, err
	}

	bgd2 := bgdRes2.Model.At

	// Reinitialize the table on the new grid, carrying the 1-D results as
	// priors for the 2-D pass.
	poly, err := table.PolyParams()
	if err != nil {
		return nil, err
	}

	nx2 := xmax2 - xmin2
	dxNew := make([]float64, nx2)
	for i := range dxNew {
		dxNew[i] = float64(xmin2+i) - img.TargetX
	}

	final, err := chromatic.Reinitialize(table, nx2, ymax2-ymin2,
		img.TargetX-float64(xmin2), img.TargetY-float64(ymin2),
		dxNew, poly[table.Nx:])
	if err != nil {
		return nil, err
	}

	optReg := -1.0
	var cov *mat.SymDense
	var residuals *mat.Dense

	switch p.Mode {
	case ModePSF2D:
		fit2 := fitting.DefaultOptions(chromatic.Mode2D)
		fit2.Logger = p.Logger

		res2D, err := fitting.Fit(final, data2, errs2, bgd2, fit2)
		if err != nil {
			return nil, err
		}

		optReg = res2D.OptReg
		cov = res2D.AmplitudeCov

		residuals, err = fitResiduals(final, data2, errs2, bgd2)
		if err != nil {
			return nil, err
		}

		p.Logger.Info().Float64("chi2", res2D.Chi2).Float64("reg", optReg).Msg("joint 2-D fit complete")
	default:
		cov = mat.NewSymDense(nx2, nil)
		for i, e := range final.FluxErr {
			cov.SetSym(i, i, e*e)
		}
	}

	// First-guess wavelengths from the dispersion-axis distance.
	dist := final.DistanceAlongDispersionAxis()
	for i, d := range dist {
		final.Lambdas[i] = img.Disperser.PixelToWavelength(d)
	}

	spectrum := &Spectrum{
		Pixels:  make([]float64, nx2),
		Lambdas: append([]float64(nil), final.Lambdas...),
		Flux:    append([]float64(nil), final.Amplitude...),
		FluxErr: append([]float64(nil), final.FluxErr...),
		Cov:     cov,

		SpectrogramData:       data2,
		SpectrogramErr:        errs2,
		SpectrogramBackground: bgdRes2.Model.EvalGrid(nx2, ymax2-ymin2),
		SpectrogramResiduals:  residuals,

		XMin: xmin2, XMax: xmax2,
		YMin: ymin2, YMax: ymax2,

		TargetX: img.TargetX - float64(xmin2),
		TargetY: img.TargetY - float64(ymin2),

		Deg:        p.PolyDegree,
		Saturation: img.Saturation,
		OptReg:     optReg,
		Units:      img.Units,
		Table:      final,

		Header: map[string]string{
			"PSF_REG": strconv.FormatFloat(optReg, 'g', -1, 64),
			"MODE":    p.Mode.String(),
			"UNIT1":   img.Units,
		},
	}

	for i := range spectrum.Pixels {
		spectrum.Pixels[i] = float64(xmin2 + i)
	}

	return spectrum, nil
}

// estimateBackground runs the iterative background refinement with the
// configured lateral geometry.
func estimateBackground(data, errs *mat.Dense, p Params) (background.Result, error) {
	opts := background.DefaultOptions()
	opts.InnerHalfWidth = p.BackgroundInner
	opts.OuterHalfWidth = p.BackgroundOuter
	opts.BoxSize = p.BackgroundBoxSize
	opts.Logger = p.Logger

	res, err := background.EstimateIterative(data, errs, opts)
	if err != nil {
		return background.Result{}, fmt.Errorf("extract: background estimation: %w", err)
	}

	if res.Exhausted {
		p.Logger.Warn().
			Float64("pull_mean", res.PullMean).
			Float64("pull_std", res.PullStd).
			Msg("background refinement exhausted; keeping last model")
	}

	return res, nil
}

// fitResiduals renders the fitted 2-D model and returns the normalised
// residual map (data - model - background) / err.
func fitResiduals(t *chromatic.Table, data, errs *mat.Dense, bgd func(x, y float64) float64) (*mat.Dense, error) {
	poly, err := t.PolyParams()
	if err != nil {
		return nil, err
	}

	model, err := t.Evaluate(poly, chromatic.Mode2D)
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(t.Ny, t.Nx, nil)
	for y := 0; y < t.Ny; y++ {
		for x := 0; x < t.Nx; x++ {
			e := errs.At(y, x)
			if e <= 0 || math.IsNaN(e) {
				continue
			}

			out.Set(y, x, (data.At(y, x)-model.At(y, x)-bgd(float64(x), float64(y)))/e)
		}
	}

	return out, nil
}

// clampInt clamps v to [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
