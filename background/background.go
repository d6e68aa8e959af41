package background

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MinBoxSize is the floor below which the refinement loop never shrinks the
// estimation box.
const MinBoxSize = 5

// Estimation errors.
var (
	ErrEmptyInput   = errors.New("background: empty input array")
	ErrNoLateral    = errors.New("background: no lateral rows outside the signal band")
	ErrBadHalfWidth = errors.New("background: lateral half-widths must satisfy 0 < w0 < w1")
)

// Options configures a background estimation.
type Options struct {
	// InnerHalfWidth (w0) excludes rows within [Ny/2-w0, Ny/2+w0) from the
	// estimation.
	InnerHalfWidth int

	// OuterHalfWidth (w1) is the outer lateral extent; it must exceed
	// InnerHalfWidth.
	OuterHalfWidth int

	// BoxSize is the starting estimation box size in pixels.
	BoxSize int

	// SigmaClip is the rejection threshold of the per-box robust median.
	SigmaClip float64

	// ClipIterations bounds the per-box rejection loop.
	ClipIterations int

	// SmoothSigma is the Gaussian smoothing width applied to the coarse
	// grid rows, in grid nodes.
	SmoothSigma float64

	// Logger receives refinement diagnostics. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// DefaultOptions returns the standard estimation options.
func DefaultOptions() Options {
	return Options{
		InnerHalfWidth: 20,
		OuterHalfWidth: 30,
		BoxSize:        20,
		SigmaClip:      3,
		ClipIterations: 5,
		SmoothSigma:    1,
		Logger:         zerolog.Nop(),
	}
}

// Result reports the outcome of an iterative estimation.
type Result struct {
	// Model is the accepted (or last attempted) background surface.
	Model *Model

	// BoxSize is the box size the final model was built with.
	BoxSize int

	// Iterations counts the estimation passes performed.
	Iterations int

	// Exhausted is true when the floor was reached without satisfying the
	// pull acceptance criterion. The last model is still usable.
	Exhausted bool

	// PullMean and PullStd describe the final residual pull distribution
	// over the background rows.
	PullMean float64
	PullStd  float64
}

func (o Options) validate(ny int) error {
	if o.InnerHalfWidth <= 0 || o.OuterHalfWidth <= o.InnerHalfWidth {
		return fmt.Errorf("%w: w0=%d w1=%d", ErrBadHalfWidth, o.InnerHalfWidth, o.OuterHalfWidth)
	}

	if ny/2-o.InnerHalfWidth <= 0 && ny/2+o.InnerHalfWidth >= ny {
		return ErrNoLateral
	}

	return nil
}

// lateralRows returns the row indices outside the central signal band.
func lateralRows(ny, w0 int) []int {
	rows := make([]int, 0, ny)
	for y := 0; y < ny/2-w0; y++ {
		rows = append(rows, y)
	}

	for y := ny/2 + w0; y < ny; y++ {
		rows = append(rows, y)
	}

	return rows
}

// Estimate builds a background surface from the lateral rows of data using
// a single pass at the configured box size.
func Estimate(data *mat.Dense, opts Options) (*Model, error) {
	ny, nx := data.Dims()
	if ny == 0 || nx == 0 {
		return nil, ErrEmptyInput
	}

	if err := opts.validate(ny); err != nil {
		return nil, err
	}

	boxSize := opts.BoxSize
	if boxSize < MinBoxSize {
		boxSize = MinBoxSize
	}

	rows := lateralRows(ny, opts.InnerHalfWidth)
	if len(rows) == 0 {
		return nil, ErrNoLateral
	}

	inLateral := make([]bool, ny)
	for _, y := range rows {
		inLateral[y] = true
	}

	xs := nodeCenters(nx, boxSize)
	ys := nodeCenters(ny, boxSize)

	values := mat.NewDense(len(ys), len(xs), nil)
	valid := make([][]bool, len(ys))

	for ky := range ys {
		valid[ky] = make([]bool, len(xs))
		y0, y1 := nodeBounds(ny, ky, len(ys))
		for kx := range xs {
			x0, x1 := nodeBounds(nx, kx, len(xs))

			samples := make([]float64, 0, (y1-y0)*(x1-x0))
			for y := y0; y < y1; y++ {
				if !inLateral[y] {
					continue
				}

				for x := x0; x < x1; x++ {
					v := data.At(y, x)
					if !math.IsNaN(v) {
						samples = append(samples, v)
					}
				}
			}

			if len(samples) >= 5 {
				values.Set(ky, kx, clippedMedian(samples, opts.SigmaClip, opts.ClipIterations))
				valid[ky][kx] = true
			}
		}
	}

	fillExcludedNodes(values, valid)

	kernel := gaussianKernel(opts.SmoothSigma)
	for ky := range ys {
		row := mat.Row(nil, ky, values)
		smoothed, err := smoothRow(row, kernel)
		if err != nil {
			return nil, err
		}

		values.SetRow(ky, smoothed)
	}

	return &Model{xs: xs, ys: ys, values: values, boxSize: boxSize}, nil
}

// EstimateIterative runs the refinement loop: while the residual pull over
// the background rows has |mean| > 1 or std > 2, the box size is halved
// (floor MinBoxSize) and the model refit. Reaching the floor without
// satisfying the criterion is not fatal; the last model is kept and
// reported through Result.Exhausted.
func EstimateIterative(data, errs *mat.Dense, opts Options) (Result, error) {
	ny, nx := data.Dims()
	rows := lateralRows(ny, opts.InnerHalfWidth)

	boxSize := opts.BoxSize
	if boxSize < MinBoxSize {
		boxSize = MinBoxSize
	}

	res := Result{}
	for {
		res.Iterations++

		iterOpts := opts
		iterOpts.BoxSize = boxSize

		model, err := Estimate(data, iterOpts)
		if err != nil {
			return Result{}, err
		}

		res.Model = model
		res.BoxSize = boxSize
		res.PullMean, res.PullStd = pullStats(data, errs, model, rows, nx)

		if math.Abs(res.PullMean) <= 1 && res.PullStd <= 2 {
			return res, nil
		}

		if boxSize <= MinBoxSize {
			res.Exhausted = true
			opts.Logger.Warn().
				Int("box_size", boxSize).
				Float64("pull_mean", res.PullMean).
				Float64("pull_std", res.PullStd).
				Msg("background refinement exhausted at floor box size; keeping last model")

			return res, nil
		}

		next := boxSize / 2
		if next < MinBoxSize {
			next = MinBoxSize
		}

		opts.Logger.Warn().
			Int("box_size", boxSize).
			Int("next_box_size", next).
			Float64("pull_mean", res.PullMean).
			Float64("pull_std", res.PullStd).
			Msg("background residual pull out of bounds; halving box size")

		boxSize = next
	}
}

// pullStats computes the mean and standard deviation of (data-model)/err
// over the given rows.
func pullStats(data, errs *mat.Dense, model *Model, rows []int, nx int) (float64, float64) {
	pulls := make([]float64, 0, len(rows)*nx)
	for _, y := range rows {
		for x := 0; x < nx; x++ {
			e := errs.At(y, x)
			if e <= 0 || math.IsNaN(e) {
				continue
			}

			v := data.At(y, x)
			if math.IsNaN(v) {
				continue
			}

			pulls = append(pulls, (v-model.At(float64(x), float64(y)))/e)
		}
	}

	if len(pulls) == 0 {
		return 0, 0
	}

	return stat.Mean(pulls, nil), stat.StdDev(pulls, nil)
}

// nodeCenters returns the node coordinates tiling [0, n) with boxes of the
// given size. At least two nodes are always produced so the surface can be
// interpolated.
func nodeCenters(n, boxSize int) []float64 {
	count := (n + boxSize - 1) / boxSize
	if count < 2 {
		count = 2
	}

	centers := make([]float64, count)
	for k := range centers {
		lo, hi := nodeBounds(n, k, count)
		centers[k] = 0.5 * float64(lo+hi-1)
	}

	return centers
}

// nodeBounds returns the half-open pixel interval of node k out of count
// nodes evenly tiling [0, n).
func nodeBounds(n, k, count int) (int, int) {
	size := (n + count - 1) / count

	lo := k * size
	hi := lo + size
	if k == count-1 || hi > n {
		hi = n
	}

	if lo >= hi {
		lo = hi - 1
	}

	return lo, hi
}

// fillExcludedNodes replaces invalid nodes (those under the signal band)
// with values interpolated vertically between their nearest valid
// neighbours in the same column.
func fillExcludedNodes(values *mat.Dense, valid [][]bool) {
	rows, cols := values.Dims()
	for kx := 0; kx < cols; kx++ {
		for ky := 0; ky < rows; ky++ {
			if valid[ky][kx] {
				continue
			}

			lo := ky - 1
			for lo >= 0 && !valid[lo][kx] {
				lo--
			}

			hi := ky + 1
			for hi < rows && !valid[hi][kx] {
				hi++
			}

			switch {
			case lo >= 0 && hi < rows:
				t := float64(ky-lo) / float64(hi-lo)
				values.Set(ky, kx, values.At(lo, kx)+t*(values.At(hi, kx)-values.At(lo, kx)))
			case lo >= 0:
				values.Set(ky, kx, values.At(lo, kx))
			case hi < rows:
				values.Set(ky, kx, values.At(hi, kx))
			}
		}
	}
}
