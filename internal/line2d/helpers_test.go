package line2d

import (
	"testing"

	"github.com/ironsheep/line2d-mcp/internal/imaging"
)

// diamondGray returns a size x size black image holding a white diamond
// (|x-c| + |y-c| <= half) centred in it.
func diamondGray(size, half int) imaging.Gray {
	g := imaging.NewGray(size, size)
	c := size / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if abs(x-c)+abs(y-c) <= half {
				g.Set(x, y, 255)
			}
		}
	}
	return g
}

// boxGray returns a black image with a white filled rectangle.
func boxGray(width, height, x0, y0, x1, y1 int) imaging.Gray {
	g := imaging.NewGray(width, height)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			g.Set(x, y, 255)
		}
	}
	return g
}

// paste copies src into dst with its top-left corner at (ox, oy), clipping
// whatever falls outside dst.
func paste(dst, src imaging.Gray, ox, oy int) {
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			if ox+x < dst.Width && oy+y < dst.Height {
				dst.Set(ox+x, oy+y, src.At(x, y))
			}
		}
	}
}

// padded returns a copy of g whose rows carry extra bytes of noise.
func padded(g imaging.Gray, pad int) imaging.Gray {
	stride := g.Width + pad
	out := imaging.Gray{Pix: make([]byte, stride*g.Height), Stride: stride, Width: g.Width, Height: g.Height}
	for i := range out.Pix {
		out.Pix[i] = byte(i * 37)
	}
	for y := 0; y < g.Height; y++ {
		copy(out.Row(y), g.Row(y))
	}
	return out
}

func testEncoder(t *testing.T, maxPerLevel ...int) *Encoder {
	t.Helper()
	opts := DefaultEncoderOptions()
	opts.MaxFeaturesPerLevel = maxPerLevel
	if len(maxPerLevel) == 1 {
		opts.Ratio = 1
	}
	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	return enc
}

func testDetector(t *testing.T, threshold float64, neighborhoods ...int) *Detector {
	t.Helper()
	opts := DefaultDetectorOptions()
	opts.Match.Threshold = threshold
	opts.Match.Workers = 3
	opts.Pyramid.Workers = 3
	if len(neighborhoods) > 0 {
		opts.Pyramid.NeighborhoodPerLevel = neighborhoods
	}
	d, err := NewDetector(opts)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	return d
}

func encode(t *testing.T, enc *Encoder, g imaging.Gray, label string) *TemplatePyramid {
	t.Helper()
	pyr, err := enc.Encode(g, label)
	if err != nil {
		t.Fatalf("Encode(%s) failed: %v", label, err)
	}
	return pyr
}
