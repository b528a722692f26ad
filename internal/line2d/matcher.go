package line2d

import (
	"fmt"
	"image"
	"log/slog"
	"sort"

	"github.com/ironsheep/line2d-mcp/internal/parallel"
)

// Match is one detection of a template in a query image.
type Match struct {
	// X and Y are the top-left corner of the template placement.
	X int
	Y int

	// Score is the normalized similarity, 0..100.
	Score float64

	// Template is the finest level of the matched pyramid.
	Template *Template
}

// Label returns the class label of the matched template.
func (m Match) Label() string {
	if m.Template == nil {
		return ""
	}
	return m.Template.Label
}

// BoundingRect returns the placed template region.
func (m Match) BoundingRect() image.Rectangle {
	if m.Template == nil {
		return image.Rectangle{}
	}
	return m.Template.Size().Add(image.Pt(m.X, m.Y))
}

// Points projects the template features into image coordinates.
func (m Match) Points() []image.Point {
	if m.Template == nil {
		return nil
	}
	pts := make([]image.Point, len(m.Template.Features))
	for i, f := range m.Template.Features {
		pts[i] = image.Pt(m.X+f.X, m.Y+f.Y)
	}
	return pts
}

// Box implements detection.Boxed.
func (m Match) Box() image.Rectangle { return m.BoundingRect() }

// Weight implements detection.Boxed.
func (m Match) Weight() float64 { return m.Score }

// MatchOptions controls the search.
type MatchOptions struct {
	// Threshold is the minimum normalized score (0..100) a placement must
	// reach at every pyramid level.
	Threshold float64

	// Workers bounds the goroutines used per pass; <= 0 means one per CPU.
	Workers int

	// Logger receives per-template debug output. Nil disables logging.
	Logger *slog.Logger
}

// Validate checks the options.
func (o MatchOptions) Validate() error {
	if o.Threshold < 0 || o.Threshold > 100 {
		return &ConfigError{Field: "threshold", Value: o.Threshold, Reason: "must be within 0..100"}
	}
	return nil
}

// Matcher slides template pyramids over linearized query pyramids. A Matcher
// holds no per-frame state and may be used from several goroutines.
type Matcher struct {
	opts   MatchOptions
	logger *slog.Logger
}

// NewMatcher validates opts and returns a Matcher.
func NewMatcher(opts MatchOptions) (*Matcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{opts: opts, logger: loggerOrDiscard(opts.Logger)}, nil
}

// Threshold returns the configured score threshold.
func (m *Matcher) Threshold() float64 { return m.opts.Threshold }

// placement is a candidate position at one pyramid level.
type placement struct {
	x, y int

	// extent is the side of the square of positions the placement stands
	// for: the neighbourhood T for coarse grid positions, 1 afterwards.
	extent int

	score float64
	exact float64

	// floor is the weakest score along the coarse-to-fine path.
	floor float64
}

// Match finds every placement of every template whose score reaches the
// threshold at all pyramid levels.
//
// Parameters:
//   - lp: linearized query pyramid built with BuildPyramid
//   - pyrs: template pyramids with the same level count and ratio as lp
//
// Returns:
//   - []Match: survivors of the finest level, strongest first
//   - error: wrapping ErrLevelMismatch or ErrInvalidConfig when the inputs
//     are inconsistent; nothing is matched in that case
//
// # Algorithm
//
//  1. Coarse pass on the coarsest level: every grid placement (multiples of
//     T) is scored by summing contiguous rows of the linearized maps, rows of
//     placements being split across workers. Placements below the threshold
//     are pruned.
//  2. Refinement on each finer level: every pixel of the survivor's
//     projected neighbourhood is scored. The best position by spread score,
//     then unspread score, then closeness to the centroid of the tied
//     positions, survives if it still reaches the threshold. With a single
//     level, the grid survivors are refined once on that level.
//  3. Survivors at identical positions collapse. A final peak filter keeps,
//     per template, only placements no stronger placement lies within
//     max(T, min(width, height)/2) pixels of, comparing the weakest score
//     along each path first.
//
// Placements whose template rectangle leaves the image are never evaluated.
func (m *Matcher) Match(lp *LinearizedPyramid, pyrs []*TemplatePyramid) ([]Match, error) {
	if err := validateInputs(lp, pyrs); err != nil {
		return nil, err
	}

	var matches []Match
	for _, pyr := range pyrs {
		found := m.matchPyramid(lp, pyr)
		m.logger.Debug("matched template", "label", pyr.Label, "matches", len(found))
		matches = append(matches, found...)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Y != matches[j].Y {
			return matches[i].Y < matches[j].Y
		}
		return matches[i].X < matches[j].X
	})
	return matches, nil
}

func validateInputs(lp *LinearizedPyramid, pyrs []*TemplatePyramid) error {
	if lp == nil || len(lp.Levels) == 0 {
		return &ConfigError{Field: "query pyramid", Value: nil, Reason: "no levels"}
	}
	levels := len(lp.Levels)
	for i, p := range pyrs {
		if p == nil {
			return &ConfigError{Field: "template pyramid", Value: i, Reason: "nil"}
		}
		if len(p.Levels) != levels {
			return fmt.Errorf("template %q has %d levels, query has %d: %w", p.Label, len(p.Levels), levels, ErrLevelMismatch)
		}
		if levels > 1 && p.Ratio != lp.Ratio {
			return fmt.Errorf("template %q has ratio %d, query has %d: %w", p.Label, p.Ratio, lp.Ratio, ErrLevelMismatch)
		}
		for l, t := range p.Levels {
			if err := validateTemplate(t); err != nil {
				return fmt.Errorf("template %q level %d: %w", p.Label, l, err)
			}
		}
	}
	return nil
}

func validateTemplate(t *Template) error {
	if t == nil {
		return &ConfigError{Field: "template", Value: nil, Reason: "missing level"}
	}
	if len(t.Features) == 0 || len(t.Features) > MaxFeatures {
		return &ConfigError{Field: "feature count", Value: len(t.Features), Reason: fmt.Sprintf("must be within 1..%d", MaxFeatures)}
	}
	for _, f := range t.Features {
		if f.X < 0 || f.Y < 0 || f.X >= t.Width || f.Y >= t.Height {
			return &ConfigError{Field: "feature", Value: image.Pt(f.X, f.Y), Reason: "outside template size"}
		}
		if !f.Orientation.Valid() {
			return &ConfigError{Field: "feature orientation", Value: uint8(f.Orientation), Reason: "must be one-hot"}
		}
	}
	return nil
}

func (m *Matcher) matchPyramid(lp *LinearizedPyramid, pyr *TemplatePyramid) []Match {
	top := len(lp.Levels) - 1
	cands := m.coarse(lp.Levels[top], pyr.Levels[top])
	m.logger.Debug("coarse pass", "label", pyr.Label, "level", top, "candidates", len(cands))

	if top == 0 {
		cands = m.refine(lp.Levels[0], pyr.Levels[0], cands, 1, 0)
	}
	for level := top - 1; level >= 0 && len(cands) > 0; level-- {
		cands = m.refine(lp.Levels[level], pyr.Levels[level], cands, lp.Ratio, lp.Ratio)
		m.logger.Debug("refinement pass", "label", pyr.Label, "level", level, "candidates", len(cands))
	}

	finest := pyr.Levels[0]
	radius := lp.Levels[0].T
	if half := min(finest.Width, finest.Height) / 2; half > radius {
		radius = half
	}
	cands = peaks(cands, radius)

	out := make([]Match, len(cands))
	for i, c := range cands {
		out[i] = Match{X: c.x, Y: c.y, Score: c.score, Template: finest}
	}
	return out
}

// coarse scores every grid placement of tpl on lm.
func (m *Matcher) coarse(lm *LinearizedMaps, tpl *Template) []placement {
	if tpl.Width > lm.Width || tpl.Height > lm.Height {
		return nil
	}
	t := lm.T
	nx := (lm.Width-tpl.Width)/t + 1
	ny := (lm.Height-tpl.Height)/t + 1
	n := len(tpl.Features)

	chunks := parallel.Chunks(ny, m.opts.Workers)
	results := make([][]placement, len(chunks))
	parallel.For(ny, m.opts.Workers, func(chunk int, r parallel.Range) {
		acc := make([]uint16, nx)
		var out []placement
		for cy := r.Lo; cy < r.Hi; cy++ {
			for i := range acc {
				acc[i] = 0
			}
			for _, f := range tpl.Features {
				row := lm.line(f.Orientation.Index(), f.X%t, f.Y%t, cy+f.Y/t)
				off := f.X / t
				for i, v := range row[off : off+nx] {
					acc[i] += uint16(v)
				}
			}
			for cx, raw := range acc {
				s := normalize(int(raw), n)
				if s >= m.opts.Threshold {
					out = append(out, placement{x: cx * t, y: cy * t, extent: t, score: s, floor: s})
				}
			}
		}
		results[chunk] = out
	})
	return concat(results)
}

// refine rescores each candidate over its projected neighbourhood on lm.
//
// A candidate at (x, y) with extent e on the coarser level covers positions
// [x*scale - margin, (x+e-1)*scale + margin] on this level, clipped to the
// placements that keep the template inside the image.
func (m *Matcher) refine(lm *LinearizedMaps, tpl *Template, cands []placement, scale, margin int) []placement {
	maxX, maxY := lm.Width-tpl.Width, lm.Height-tpl.Height
	if maxX < 0 || maxY < 0 {
		return nil
	}
	n := len(tpl.Features)

	chunks := parallel.Chunks(len(cands), m.opts.Workers)
	results := make([][]placement, len(chunks))
	parallel.For(len(cands), m.opts.Workers, func(chunk int, r parallel.Range) {
		var out []placement
		for _, c := range cands[r.Lo:r.Hi] {
			x0 := max(c.x*scale-margin, 0)
			y0 := max(c.y*scale-margin, 0)
			x1 := min((c.x+c.extent-1)*scale+margin, maxX)
			y1 := min((c.y+c.extent-1)*scale+margin, maxY)
			if x0 > x1 || y0 > y1 {
				continue
			}
			best, ok := bestInWindow(lm, tpl, x0, y0, x1, y1)
			if !ok {
				continue
			}
			best.score = normalize(best.rawScore, n)
			if best.score < m.opts.Threshold {
				continue
			}
			out = append(out, placement{
				x:      best.x,
				y:      best.y,
				extent: 1,
				score:  best.score,
				exact:  normalize(best.rawExact, n),
				floor:  min(c.floor, best.score),
			})
		}
		results[chunk] = out
	})
	return dedupe(concat(results))
}

type windowBest struct {
	x, y     int
	rawScore int
	rawExact int
	score    float64
}

// bestInWindow scores every placement in [x0, x1] x [y0, y1] and returns the
// best one. Placements tied on both scores resolve to the one nearest their
// centroid, earliest in row-major order on equal distance.
func bestInWindow(lm *LinearizedMaps, tpl *Template, x0, y0, x1, y1 int) (windowBest, bool) {
	bestScore, bestExact := -1, -1
	var ties []image.Point
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			var s, e int
			for _, f := range tpl.Features {
				bin := f.Orientation.Index()
				s += int(lm.Response(bin, x+f.X, y+f.Y))
				e += int(lm.exact(bin, x+f.X, y+f.Y))
			}
			switch {
			case s > bestScore || (s == bestScore && e > bestExact):
				bestScore, bestExact = s, e
				ties = append(ties[:0], image.Pt(x, y))
			case s == bestScore && e == bestExact:
				ties = append(ties, image.Pt(x, y))
			}
		}
	}
	if len(ties) == 0 {
		return windowBest{}, false
	}

	p := ties[0]
	if len(ties) > 1 {
		var sx, sy int
		for _, t := range ties {
			sx += t.X
			sy += t.Y
		}
		// Distances are compared at len(ties) scale to stay in integers.
		k := len(ties)
		bestD := -1
		for _, t := range ties {
			dx, dy := t.X*k-sx, t.Y*k-sy
			if d := dx*dx + dy*dy; bestD < 0 || d < bestD {
				bestD, p = d, t
			}
		}
	}
	return windowBest{x: p.X, y: p.Y, rawScore: bestScore, rawExact: bestExact}, true
}

// dedupe collapses placements at identical positions, keeping the one with
// the highest floor, and returns them in row-major order.
func dedupe(ps []placement) []placement {
	if len(ps) < 2 {
		return ps
	}
	byPos := make(map[image.Point]int, len(ps))
	out := ps[:0:0]
	for _, p := range ps {
		key := image.Pt(p.x, p.y)
		if i, ok := byPos[key]; ok {
			if p.floor > out[i].floor {
				out[i] = p
			}
			continue
		}
		byPos[key] = len(out)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].y != out[j].y {
			return out[i].y < out[j].y
		}
		return out[i].x < out[j].x
	})
	return out
}

// stronger orders placements by floor, score, unspread score and finally
// position, so that no two distinct placements compare equal.
func stronger(a, b placement) bool {
	switch {
	case a.floor != b.floor:
		return a.floor > b.floor
	case a.score != b.score:
		return a.score > b.score
	case a.exact != b.exact:
		return a.exact > b.exact
	case a.y != b.y:
		return a.y < b.y
	default:
		return a.x < b.x
	}
}

// peaks keeps the placements that no stronger placement lies within radius
// of (Chebyshev distance).
func peaks(ps []placement, radius int) []placement {
	var out []placement
	for i, p := range ps {
		keep := true
		for j, q := range ps {
			if i == j {
				continue
			}
			if abs(p.x-q.x) <= radius && abs(p.y-q.y) <= radius && stronger(q, p) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, p)
		}
	}
	return out
}

func normalize(raw, features int) float64 {
	return float64(raw) * 100 / float64(MaxSimilarity*features)
}

func concat(parts [][]placement) []placement {
	var out []placement
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
