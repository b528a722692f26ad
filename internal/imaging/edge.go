package imaging

import (
	"math"
)

// GradientField holds per-pixel Sobel derivatives of a Gray image.
//
// DX and DY are stored row-major without padding (index y*Width+x). For 8-bit
// input each derivative lies in [-1020, 1020].
type GradientField struct {
	Width  int
	Height int
	DX     []int32
	DY     []int32

	// Channel holds the source channel of each pixel's derivatives for
	// fields computed by SobelColor; nil for gray input.
	Channel []uint8
}

// ChannelAt returns the channel the derivatives at (x, y) come from, 0 for
// gray input.
func (f *GradientField) ChannelAt(x, y int) uint8 {
	if f.Channel == nil {
		return 0
	}
	return f.Channel[y*f.Width+x]
}

// Sobel computes horizontal and vertical derivatives with 3x3 Sobel kernels.
//
// # Algorithm
//
//	DX kernel     DY kernel
//	-1  0  1      -1 -2 -1
//	-2  0  2       0  0  0
//	-1  0  1       1  2  1
//
// Border pixels use clamped (replicated) edge values, so a region that is
// uniform up to the image border produces no gradient there.
func Sobel(g Gray) *GradientField {
	w, h := g.Width, g.Height
	f := &GradientField{
		Width:  w,
		Height: h,
		DX:     make([]int32, w*h),
		DY:     make([]int32, w*h),
	}
	if w == 0 || h == 0 {
		return f
	}

	for y := 0; y < h; y++ {
		up := g.Row(clamp(y-1, 0, h-1))
		mid := g.Row(y)
		down := g.Row(clamp(y+1, 0, h-1))
		for x := 0; x < w; x++ {
			l := clamp(x-1, 0, w-1)
			r := clamp(x+1, 0, w-1)

			dx := int32(up[r]) + 2*int32(mid[r]) + int32(down[r]) -
				int32(up[l]) - 2*int32(mid[l]) - int32(down[l])
			dy := int32(down[l]) + 2*int32(down[x]) + int32(down[r]) -
				int32(up[l]) - 2*int32(up[x]) - int32(up[r])

			f.DX[y*w+x] = dx
			f.DY[y*w+x] = dy
		}
	}
	return f
}

// MagnitudeSqr returns the squared gradient magnitude at (x, y).
func (f *GradientField) MagnitudeSqr(x, y int) int64 {
	i := y*f.Width + x
	dx, dy := int64(f.DX[i]), int64(f.DY[i])
	return dx*dx + dy*dy
}

// Magnitude returns the gradient magnitude at (x, y).
func (f *GradientField) Magnitude(x, y int) float64 {
	return math.Sqrt(float64(f.MagnitudeSqr(x, y)))
}

// AngleDegrees returns the gradient direction at (x, y) in [0, 360).
// Angles grow from the +X axis towards +Y (image down).
func (f *GradientField) AngleDegrees(x, y int) float64 {
	i := y*f.Width + x
	a := math.Atan2(float64(f.DY[i]), float64(f.DX[i])) * 180 / math.Pi
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a -= 360
	}
	return a
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
