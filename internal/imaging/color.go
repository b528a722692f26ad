package imaging

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// Color channels of an NRGBA pixel, in the order SobelColor examines them.
const (
	ChannelRed uint8 = iota
	ChannelGreen
	ChannelBlue
)

// ToNRGBA returns img as an *image.NRGBA anchored at the origin. Such
// images are returned as is; anything else is copied.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}

// LoadColor loads an image through the cache as NRGBA. The result may share
// memory with the cache; callers must not modify it.
func LoadColor(cache *ImageCache, path string) (*image.NRGBA, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}
	n := ToNRGBA(img)
	if n.Rect.Empty() {
		return nil, fmt.Errorf("failed to convert %s: empty image", path)
	}
	return n, nil
}

// CropColor copies a sub-rectangle of a color image, clipped to its bounds.
func CropColor(img *image.NRGBA, r image.Rectangle) (*image.NRGBA, error) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("crop region outside image bounds %dx%d", img.Rect.Dx(), img.Rect.Dy())
	}
	return imaging.Crop(img, r), nil
}

// PyrDownColor is PyrDown for color images.
func PyrDownColor(img *image.NRGBA, ratio int) (*image.NRGBA, error) {
	if ratio < 2 {
		return nil, fmt.Errorf("invalid pyramid ratio %d: must be >= 2", ratio)
	}
	b := img.Bounds()
	w, h := b.Dx()/ratio, b.Dy()/ratio
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("image %dx%d too small for pyramid ratio %d", b.Dx(), b.Dy(), ratio)
	}
	return imaging.Resize(img, w, h, imaging.Box), nil
}

// SmoothColor applies a Gaussian blur to every channel. A radius <= 0
// returns the input unchanged.
func SmoothColor(img *image.NRGBA, radius float64) *image.NRGBA {
	if radius <= 0 {
		return img
	}
	return imaging.Clone(blur.Gaussian(img, radius))
}

// Invert swaps the polarity of an image, so that a dark object on a light
// background becomes a light object on a dark one. Alpha is kept.
func Invert(img image.Image) image.Image {
	return effect.Invert(img)
}

// SobelColor computes Sobel derivatives on the red, green and blue channels
// and keeps, per pixel, those of the channel with the largest magnitude.
// The winning channel is recorded in Channel; on equal magnitudes the
// earlier channel wins.
//
// Edges between colors of equal brightness vanish in a luminance image but
// survive here, since at least one channel still changes across them.
// Alpha is ignored. Borders are clamped as in Sobel.
func SobelColor(img *image.NRGBA) *GradientField {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	f := &GradientField{
		Width:   w,
		Height:  h,
		DX:      make([]int32, w*h),
		DY:      make([]int32, w*h),
		Channel: make([]uint8, w*h),
	}
	if w == 0 || h == 0 {
		return f
	}

	row := func(y int) []uint8 {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		return img.Pix[off : off+4*w]
	}
	for y := 0; y < h; y++ {
		up := row(clamp(y-1, 0, h-1))
		mid := row(y)
		down := row(clamp(y+1, 0, h-1))
		for x := 0; x < w; x++ {
			l := 4 * clamp(x-1, 0, w-1)
			r := 4 * clamp(x+1, 0, w-1)
			c := 4 * x

			var best int64 = -1
			for ch := 0; ch < 3; ch++ {
				dx := int32(up[r+ch]) + 2*int32(mid[r+ch]) + int32(down[r+ch]) -
					int32(up[l+ch]) - 2*int32(mid[l+ch]) - int32(down[l+ch])
				dy := int32(down[l+ch]) + 2*int32(down[c+ch]) + int32(down[r+ch]) -
					int32(up[l+ch]) - 2*int32(up[c+ch]) - int32(up[r+ch])
				if m := int64(dx)*int64(dx) + int64(dy)*int64(dy); m > best {
					best = m
					i := y*w + x
					f.DX[i], f.DY[i], f.Channel[i] = dx, dy, uint8(ch)
				}
			}
		}
	}
	return f
}
