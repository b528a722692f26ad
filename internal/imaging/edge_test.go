package imaging

import (
	"math"
	"testing"
)

func TestSobel_UniformImage(t *testing.T) {
	g := paddedGray(12, 9, 3, func(x, y int) byte { return 128 })
	f := Sobel(g)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			if f.MagnitudeSqr(x, y) != 0 {
				t.Fatalf("uniform image has gradient at (%d,%d)", x, y)
			}
		}
	}
}

func TestSobel_StepEdges(t *testing.T) {
	tests := []struct {
		name      string
		fill      func(x, y int) byte
		at        [2]int
		wantAngle float64
	}{
		{
			name: "dark to bright rightward",
			fill: func(x, y int) byte {
				if x < 8 {
					return 0
				}
				return 200
			},
			at:        [2]int{8, 8},
			wantAngle: 0,
		},
		{
			name: "bright to dark rightward",
			fill: func(x, y int) byte {
				if x < 8 {
					return 200
				}
				return 0
			},
			at:        [2]int{8, 8},
			wantAngle: 180,
		},
		{
			name: "dark to bright downward",
			fill: func(x, y int) byte {
				if y < 8 {
					return 0
				}
				return 200
			},
			at:        [2]int{8, 8},
			wantAngle: 90,
		},
		{
			name: "diagonal",
			fill: func(x, y int) byte {
				if x+y < 16 {
					return 0
				}
				return 200
			},
			at:        [2]int{8, 8},
			wantAngle: 45,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Sobel(paddedGray(16, 16, 2, tt.fill))
			x, y := tt.at[0], tt.at[1]
			if f.Magnitude(x, y) == 0 {
				t.Fatalf("no gradient at (%d,%d)", x, y)
			}
			if got := f.AngleDegrees(x, y); math.Abs(got-tt.wantAngle) > 1e-9 {
				t.Errorf("AngleDegrees = %v, want %v", got, tt.wantAngle)
			}
		})
	}
}

func TestSobel_MaxResponse(t *testing.T) {
	g := paddedGray(6, 6, 0, func(x, y int) byte {
		if x < 3 {
			return 0
		}
		return 255
	})
	f := Sobel(g)
	if got := f.DX[3*6+3]; got != 1020 {
		t.Errorf("DX at step = %d, want 1020", got)
	}
	if got := f.DY[3*6+3]; got != 0 {
		t.Errorf("DY at vertical step = %d, want 0", got)
	}
	// Replicated borders leave the outermost columns flat.
	if f.MagnitudeSqr(0, 3) != 0 || f.MagnitudeSqr(5, 3) != 0 {
		t.Error("clamped border produced a gradient")
	}
}

func TestSobel_EmptyImage(t *testing.T) {
	f := Sobel(Gray{})
	if f.Width != 0 || len(f.DX) != 0 {
		t.Errorf("empty image gave %dx%d field", f.Width, f.Height)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		val, min, max, want int
	}{
		{5, 0, 10, 5},
		{-5, 0, 10, 0},
		{15, 0, 10, 10},
		{0, 0, 10, 0},
		{10, 0, 10, 10},
	}
	for _, tt := range tests {
		if got := clamp(tt.val, tt.min, tt.max); got != tt.want {
			t.Errorf("clamp(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.want)
		}
	}
}
