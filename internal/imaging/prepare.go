package imaging

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
)

// PyrDown reduces an image by an integer ratio for the next pyramid level.
//
// The result is floor(width/ratio) x floor(height/ratio) and is produced by
// box-filter resampling, so each output sample averages a ratio x ratio
// block. Templates and query frames must both go through PyrDown so their
// pyramid levels stay geometrically consistent.
//
// Returns an error if ratio < 2 or if either output dimension would be zero.
func PyrDown(g Gray, ratio int) (Gray, error) {
	if ratio < 2 {
		return Gray{}, fmt.Errorf("invalid pyramid ratio %d: must be >= 2", ratio)
	}
	w, h := g.Width/ratio, g.Height/ratio
	if w == 0 || h == 0 {
		return Gray{}, fmt.Errorf("image %dx%d too small for pyramid ratio %d", g.Width, g.Height, ratio)
	}
	return fromNRGBA(imaging.Resize(g.ToImage(), w, h, imaging.Box)), nil
}

// Smooth applies a Gaussian blur of the given radius. A radius <= 0 returns
// the input unchanged.
func Smooth(g Gray, radius float64) Gray {
	if radius <= 0 {
		return g
	}
	blurred := blur.Gaussian(g.ToImage(), radius)
	out := NewGray(g.Width, g.Height)
	for y := 0; y < out.Height; y++ {
		src := blurred.Pix[y*blurred.Stride:]
		row := out.Row(y)
		for x := range row {
			row[x] = src[x*4]
		}
	}
	return out
}

// Binarize thresholds an image: samples >= level become 255, the rest 0.
// Templates are usually prepared this way so only the object silhouette
// produces gradients.
func Binarize(g Gray, level uint8) Gray {
	return FromImage(segment.Threshold(g.ToImage(), level))
}

func fromNRGBA(img *image.NRGBA) Gray {
	b := img.Bounds()
	out := NewGray(b.Dx(), b.Dy())
	for y := 0; y < out.Height; y++ {
		src := img.Pix[y*img.Stride:]
		row := out.Row(y)
		for x := range row {
			row[x] = src[x*4]
		}
	}
	return out
}
