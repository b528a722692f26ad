package line2d

import (
	"image"

	"github.com/ironsheep/line2d-mcp/internal/imaging"
)

// OrientationMap is a dense row-major grid of orientation masks.
type OrientationMap struct {
	Width  int
	Height int
	Bins   []Orientation
}

// NewOrientationMap allocates an empty map.
func NewOrientationMap(width, height int) *OrientationMap {
	return &OrientationMap{
		Width:  width,
		Height: height,
		Bins:   make([]Orientation, width*height),
	}
}

// At returns the mask at (x, y), or NoOrientation outside the map.
func (m *OrientationMap) At(x, y int) Orientation {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return NoOrientation
	}
	return m.Bins[y*m.Width+x]
}

// Indices returns one byte per pixel holding the bin index of one-hot
// pixels and 0xFF elsewhere, the layout imaging.RenderOrientations expects.
func (m *OrientationMap) Indices() []uint8 {
	out := make([]uint8, len(m.Bins))
	for i, o := range m.Bins {
		if idx := o.Index(); idx >= 0 {
			out[i] = uint8(idx)
		} else {
			out[i] = 0xFF
		}
	}
	return out
}

// QuantizeField quantizes every pixel of a gradient field.
func QuantizeField(f *imaging.GradientField, minMagnitude float64) *OrientationMap {
	m := NewOrientationMap(f.Width, f.Height)
	minSqr := minMagnitude * minMagnitude
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			ms := f.MagnitudeSqr(x, y)
			if ms == 0 || (minMagnitude > 0 && float64(ms) < minSqr) {
				continue
			}
			m.Bins[y*f.Width+x] = Quantize(f.AngleDegrees(x, y), f.Magnitude(x, y), minMagnitude)
		}
	}
	return m
}

// RetainDominant keeps only orientations that agree with their neighbourhood.
//
// Each interior pixel that has an orientation is replaced by the most frequent
// bin of its 3x3 neighbourhood, provided that bin has at least minSame votes;
// otherwise it becomes NoOrientation. The lowest bin wins frequency ties.
// Border pixels are always cleared because their neighbourhood is incomplete.
//
// Returns a *ConfigError if minSame is outside 0..9.
func RetainDominant(m *OrientationMap, minSame int) (*OrientationMap, error) {
	if minSame < 0 || minSame > 9 {
		return nil, &ConfigError{Field: "min same orientations", Value: minSame, Reason: "must be within 0..9"}
	}
	out := NewOrientationMap(m.Width, m.Height)
	w := m.Width
	for y := 1; y < m.Height-1; y++ {
		for x := 1; x < w-1; x++ {
			if m.Bins[y*w+x] == NoOrientation {
				continue
			}
			var votes [NumOrientations]int
			for dy := -1; dy <= 1; dy++ {
				row := m.Bins[(y+dy)*w:]
				for dx := -1; dx <= 1; dx++ {
					if idx := row[x+dx].Index(); idx >= 0 {
						votes[idx]++
					}
				}
			}
			best := 0
			for i := 1; i < NumOrientations; i++ {
				if votes[i] > votes[best] {
					best = i
				}
			}
			if votes[best] >= minSame {
				out.Bins[y*w+x] = FromIndex(best)
			}
		}
	}
	return out, nil
}

// Spread ORs every mask over the forward T x T window:
//
//	out(x, y) = OR of in(x+c, y+r) for 0 <= c, r < T
//
// Pixels past the map edge contribute nothing. The pass is separable, first
// along rows and then along columns.
func Spread(m *OrientationMap, t int) *OrientationMap {
	if t <= 1 {
		out := NewOrientationMap(m.Width, m.Height)
		copy(out.Bins, m.Bins)
		return out
	}
	w, h := m.Width, m.Height
	rows := NewOrientationMap(w, h)
	for y := 0; y < h; y++ {
		src := m.Bins[y*w : (y+1)*w]
		dst := rows.Bins[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var acc Orientation
			end := x + t
			if end > w {
				end = w
			}
			for _, o := range src[x:end] {
				acc |= o
			}
			dst[x] = acc
		}
	}

	out := NewOrientationMap(w, h)
	for y := 0; y < h; y++ {
		end := y + t
		if end > h {
			end = h
		}
		dst := out.Bins[y*w : (y+1)*w]
		for r := y; r < end; r++ {
			src := rows.Bins[r*w : (r+1)*w]
			for x, o := range src {
				dst[x] |= o
			}
		}
	}
	return out
}

// ComputeOrientationMap runs the full extraction chain on an image: Sobel
// gradients, quantization against minMagnitude and the dominant-orientation
// filter.
func ComputeOrientationMap(g imaging.Gray, minMagnitude float64, minSame int) (*OrientationMap, error) {
	if err := g.Valid(); err != nil {
		return nil, &ConfigError{Field: "image", Value: g.Bounds(), Reason: err.Error()}
	}
	return orientations(imaging.Sobel(g), minMagnitude, minSame)
}

// ComputeOrientationMapColor is ComputeOrientationMap on the strongest
// channel of a color image.
func ComputeOrientationMapColor(img *image.NRGBA, minMagnitude float64, minSame int) (*OrientationMap, error) {
	l := colorLevel{imaging.ToNRGBA(img)}
	if err := validLevel(l, "image"); err != nil {
		return nil, err
	}
	return orientations(l.gradients(), minMagnitude, minSame)
}

func orientations(f *imaging.GradientField, minMagnitude float64, minSame int) (*OrientationMap, error) {
	return RetainDominant(QuantizeField(f, minMagnitude), minSame)
}
