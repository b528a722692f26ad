package line2d

import (
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/ironsheep/line2d-mcp/internal/imaging"
	"github.com/ironsheep/line2d-mcp/internal/parallel"
)

// LinearizedMaps holds the response maps of one query pyramid level, one
// buffer per orientation bin, repacked into T x T cell-interleaved memory.
//
// # Layout
//
// The image is divided into CellsX x CellsY cells of T x T pixels. The
// response of pixel (x, y) is stored at
//
//	((gy*T + gx)*CellsY + cy)*CellsX + cx
//
// where (gx, gy) = (x mod T, y mod T) and (cx, cy) = (x div T, y div T). For a
// fixed in-cell offset, the cells of one cell row are contiguous, so adding a
// feature's contribution to a whole row of grid placements is a linear scan.
// Cells beyond the image edge hold zero.
//
// LinearizedMaps is immutable once returned and safe to share.
type LinearizedMaps struct {
	Width  int
	Height int
	T      int
	CellsX int
	CellsY int

	planes [NumOrientations][]uint8

	// dominant is the unspread orientation map, used to localise matches
	// inside the spreading tolerance.
	dominant *OrientationMap
}

// NewLinearizedMaps spreads a dominant orientation map with neighbourhood t,
// computes the per-orientation responses and repacks them.
//
// Each orientation plane is built by its own worker into a buffer it owns;
// the maps are returned only after every plane is complete.
func NewLinearizedMaps(om *OrientationMap, t, workers int) (*LinearizedMaps, error) {
	if t < 1 {
		return nil, &ConfigError{Field: "neighborhood", Value: t, Reason: "must be at least 1"}
	}
	if om == nil || om.Width <= 0 || om.Height <= 0 {
		return nil, &ConfigError{Field: "orientation map", Value: nil, Reason: "empty"}
	}

	lm := &LinearizedMaps{
		Width:    om.Width,
		Height:   om.Height,
		T:        t,
		CellsX:   (om.Width + t - 1) / t,
		CellsY:   (om.Height + t - 1) / t,
		dominant: om,
	}
	spread := Spread(om, t)
	planeSize := t * t * lm.CellsX * lm.CellsY

	parallel.Each(NumOrientations, workers, func(bin int) {
		table := &similarity[bin]
		buf := make([]uint8, planeSize)
		for y := 0; y < lm.Height; y++ {
			gy, cy := y%t, y/t
			src := spread.Bins[y*lm.Width : (y+1)*lm.Width]
			for x, mask := range src {
				gx, cx := x%t, x/t
				buf[((gy*t+gx)*lm.CellsY+cy)*lm.CellsX+cx] = table[mask]
			}
		}
		lm.planes[bin] = buf
	})
	return lm, nil
}

// Response returns the similarity of orientation bin at pixel (x, y), or 0
// outside the image.
func (lm *LinearizedMaps) Response(bin, x, y int) uint8 {
	if bin < 0 || bin >= NumOrientations || x < 0 || y < 0 || x >= lm.Width || y >= lm.Height {
		return 0
	}
	t := lm.T
	return lm.planes[bin][((y%t*t+x%t)*lm.CellsY+y/t)*lm.CellsX+x/t]
}

// line returns the contiguous cell row for in-cell offset (gx, gy) and cell
// row cy.
func (lm *LinearizedMaps) line(bin, gx, gy, cy int) []uint8 {
	start := ((gy*lm.T+gx)*lm.CellsY + cy) * lm.CellsX
	return lm.planes[bin][start : start+lm.CellsX]
}

// exact returns the unspread similarity of bin at (x, y).
func (lm *LinearizedMaps) exact(bin, x, y int) uint8 {
	return Similarity(bin, lm.dominant.At(x, y))
}

// Dominant returns the unspread orientation map the responses were built
// from.
func (lm *LinearizedMaps) Dominant() *OrientationMap { return lm.dominant }

// PyramidOptions controls how a query image is turned into linearized maps.
type PyramidOptions struct {
	// MinMagnitude is the query gradient threshold.
	MinMagnitude float64

	// MinSameOrientations is the dominant-orientation vote count (0..9).
	MinSameOrientations int

	// Ratio is the downsample factor between levels. Must match the
	// templates.
	Ratio int

	// NeighborhoodPerLevel holds the spreading neighbourhood T of each level;
	// its length is the number of levels.
	NeighborhoodPerLevel []int

	// SmoothRadius applies a Gaussian blur before gradient extraction when
	// positive.
	SmoothRadius float64

	// Workers bounds the goroutines used per level; <= 0 means one per CPU.
	Workers int
}

// DefaultPyramidOptions returns the query settings matching
// DefaultEncoderOptions.
func DefaultPyramidOptions() PyramidOptions {
	return PyramidOptions{
		MinMagnitude:         35,
		MinSameOrientations:  4,
		Ratio:                2,
		NeighborhoodPerLevel: []int{5, 8},
	}
}

// Validate checks the options.
func (o PyramidOptions) Validate() error {
	switch {
	case o.MinMagnitude < 0:
		return &ConfigError{Field: "min magnitude", Value: o.MinMagnitude, Reason: "must not be negative"}
	case o.MinSameOrientations < 0 || o.MinSameOrientations > 9:
		return &ConfigError{Field: "min same orientations", Value: o.MinSameOrientations, Reason: "must be within 0..9"}
	case len(o.NeighborhoodPerLevel) == 0:
		return &ConfigError{Field: "neighborhood per level", Value: o.NeighborhoodPerLevel, Reason: "at least one level required"}
	case len(o.NeighborhoodPerLevel) > 1 && o.Ratio < 2:
		return &ConfigError{Field: "pyramid ratio", Value: o.Ratio, Reason: "must be at least 2"}
	case o.SmoothRadius < 0:
		return &ConfigError{Field: "smooth radius", Value: o.SmoothRadius, Reason: "must not be negative"}
	}
	for i, t := range o.NeighborhoodPerLevel {
		if t < 1 {
			return &ConfigError{Field: fmt.Sprintf("neighborhood at level %d", i), Value: t, Reason: "must be at least 1"}
		}
	}
	return nil
}

// LinearizedPyramid is the per-frame query representation, level 0 finest.
type LinearizedPyramid struct {
	Ratio  int
	Levels []*LinearizedMaps
}

// BuildPyramid extracts orientations from g at every level and linearizes
// them.
//
// Level 0 is g itself, optionally smoothed; level l is imaging.PyrDown of
// level l-1. Returns a *ConfigError for invalid options or an image too small
// for the requested number of levels.
func BuildPyramid(g imaging.Gray, opts PyramidOptions) (*LinearizedPyramid, error) {
	return buildPyramid(grayLevel{g}, opts)
}

// BuildPyramidColor is BuildPyramid for color frames: each level takes its
// orientations from the strongest of the three channels.
func BuildPyramidColor(img *image.NRGBA, opts PyramidOptions) (*LinearizedPyramid, error) {
	return buildPyramid(colorLevel{imaging.ToNRGBA(img)}, opts)
}

func buildPyramid(src levelImage, opts PyramidOptions) (*LinearizedPyramid, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := validLevel(src, "query image"); err != nil {
		return nil, err
	}

	lp := &LinearizedPyramid{Ratio: opts.Ratio}
	if len(opts.NeighborhoodPerLevel) == 1 {
		lp.Ratio = 1
	}

	img := src.smooth(opts.SmoothRadius)
	for level, t := range opts.NeighborhoodPerLevel {
		if level > 0 {
			down, err := img.down(opts.Ratio)
			if err != nil {
				return nil, &ConfigError{Field: "query image", Value: src.bounds(), Reason: err.Error()}
			}
			img = down
		}
		om, err := orientations(img.gradients(), opts.MinMagnitude, opts.MinSameOrientations)
		if err != nil {
			return nil, err
		}
		lm, err := NewLinearizedMaps(om, t, opts.Workers)
		if err != nil {
			return nil, err
		}
		lp.Levels = append(lp.Levels, lm)
	}
	return lp, nil
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
