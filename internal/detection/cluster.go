package detection

import (
	"fmt"
	"image"
)

// Boxed is anything with a bounding box and a quality weight, typically a
// template match whose weight is its score.
type Boxed interface {
	Box() image.Rectangle
	Weight() float64
}

// Bounds is the JSON form of a bounding box.
//
// The coordinate convention follows standard image bounds:
//   - (X1, Y1) is the top-left corner (inclusive)
//   - (X2, Y2) is the bottom-right corner (exclusive)
type Bounds struct {
	X1 int `json:"x1"` // Left edge (inclusive)
	Y1 int `json:"y1"` // Top edge (inclusive)
	X2 int `json:"x2"` // Right edge (exclusive)
	Y2 int `json:"y2"` // Bottom edge (exclusive)
}

// BoundsOf converts an image rectangle.
func BoundsOf(r image.Rectangle) Bounds {
	return Bounds{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Rect converts back to an image rectangle.
func (b Bounds) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// DefaultOverlapThreshold is the overlap above which two boxes are near.
const DefaultOverlapThreshold = 0.2

// ClusterOptions controls grouping.
type ClusterOptions struct {
	// Threshold is the intersection-over-union above which two boxes belong
	// to the same group. Must be within [0, 1).
	Threshold float64 `json:"threshold"`

	// MinNeighbors drops groups with fewer members. Values <= 1 keep
	// singletons.
	MinNeighbors int `json:"min_neighbors"`
}

// DefaultClusterOptions returns a 0.2 overlap threshold and keeps singletons.
func DefaultClusterOptions() ClusterOptions {
	return ClusterOptions{Threshold: DefaultOverlapThreshold}
}

// Validate checks the options.
func (o ClusterOptions) Validate() error {
	if o.Threshold < 0 || o.Threshold >= 1 {
		return fmt.Errorf("invalid cluster overlap %v: must be within [0, 1)", o.Threshold)
	}
	if o.MinNeighbors < 0 {
		return fmt.Errorf("invalid min neighbors %d: must not be negative", o.MinNeighbors)
	}
	return nil
}

// Overlap returns the intersection area divided by the union area of two
// rectangles, 0 when either is empty.
func Overlap(a, b image.Rectangle) float64 {
	if a.Empty() || b.Empty() {
		return 0
	}
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := area(inter)
	union := area(a) + area(b) - ia
	return float64(ia) / float64(union)
}

// Near reports whether two boxes belong together: their overlap exceeds
// threshold, or one contains the other.
func Near(a, b image.Rectangle, threshold float64) bool {
	if a.Empty() || b.Empty() {
		return false
	}
	if a.In(b) || b.In(a) {
		return true
	}
	return Overlap(a, b) > threshold
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

// MatchGroup is a set of mutually overlapping items and the member chosen to
// stand for them.
type MatchGroup[T Boxed] struct {
	Members        []T
	Representative T
}

// Neighbors returns the number of members.
func (g MatchGroup[T]) Neighbors() int { return len(g.Members) }

// Bounds returns the union of the member boxes.
func (g MatchGroup[T]) Bounds() image.Rectangle {
	var r image.Rectangle
	for _, m := range g.Members {
		r = r.Union(m.Box())
	}
	return r
}

// Better reports whether a should replace b as a group's representative.
type Better[T Boxed] func(a, b T) bool

// ByArea prefers the larger box, then the higher weight.
func ByArea[T Boxed](a, b T) bool {
	aa, ab := area(a.Box()), area(b.Box())
	if aa != ab {
		return aa > ab
	}
	return a.Weight() > b.Weight()
}

// ByWeight prefers the higher weight, then the larger box.
func ByWeight[T Boxed](a, b T) bool {
	if a.Weight() != b.Weight() {
		return a.Weight() > b.Weight()
	}
	return area(a.Box()) > area(b.Box())
}

// Cluster groups items whose boxes are transitively near each other.
//
// Parameters:
//   - items: boxes to group, in any order
//   - opts: overlap threshold and minimum group size
//   - better: representative rule; nil selects ByArea
//
// Returns groups in order of their first member's input position. Members
// keep input order and the representative is the first member no other
// member beats.
//
// # Algorithm
//
// Every pair is tested with Near and joined with union-find, so the result
// does not depend on input order beyond labelling. Clustering the
// representatives again with the same options yields the same
// representatives: two representatives that were near would already share a
// group.
func Cluster[T Boxed](items []T, opts ClusterOptions, better Better[T]) []MatchGroup[T] {
	if len(items) == 0 {
		return nil
	}
	if better == nil {
		better = ByArea[T]
	}

	parent := make([]int, len(items))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	boxes := make([]image.Rectangle, len(items))
	for i, it := range items {
		boxes[i] = it.Box()
	}
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if !Near(boxes[i], boxes[j], opts.Threshold) {
				continue
			}
			ri, rj := find(i), find(j)
			if ri == rj {
				continue
			}
			// The smaller index becomes the root so labels follow input order.
			if rj < ri {
				ri, rj = rj, ri
			}
			parent[rj] = ri
		}
	}

	index := make(map[int]int)
	var groups []MatchGroup[T]
	for i, it := range items {
		root := find(i)
		g, ok := index[root]
		if !ok {
			g = len(groups)
			index[root] = g
			groups = append(groups, MatchGroup[T]{Representative: it})
		}
		groups[g].Members = append(groups[g].Members, it)
		if better(it, groups[g].Representative) {
			groups[g].Representative = it
		}
	}

	if opts.MinNeighbors <= 1 {
		return groups
	}
	kept := groups[:0]
	for _, g := range groups {
		if len(g.Members) >= opts.MinNeighbors {
			kept = append(kept, g)
		}
	}
	return kept
}

// Representatives returns the representative of every group.
func Representatives[T Boxed](groups []MatchGroup[T]) []T {
	out := make([]T, len(groups))
	for i, g := range groups {
		out[i] = g.Representative
	}
	return out
}
