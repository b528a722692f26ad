package line2d

import (
	"image"

	"github.com/ironsheep/line2d-mcp/internal/imaging"
)

// levelImage is one pyramid level of a template or query image. Gray input
// takes its gradients from intensity; color input from the strongest of its
// three channels.
type levelImage interface {
	bounds() image.Rectangle
	gradients() *imaging.GradientField
	down(ratio int) (levelImage, error)
	smooth(radius float64) levelImage
	mask() *image.Gray
}

type grayLevel struct{ g imaging.Gray }

func (l grayLevel) bounds() image.Rectangle { return l.g.Bounds() }

func (l grayLevel) gradients() *imaging.GradientField { return imaging.Sobel(l.g) }

func (l grayLevel) down(ratio int) (levelImage, error) {
	g, err := imaging.PyrDown(l.g, ratio)
	if err != nil {
		return nil, err
	}
	return grayLevel{g}, nil
}

func (l grayLevel) smooth(radius float64) levelImage {
	return grayLevel{imaging.Smooth(l.g, radius)}
}

func (l grayLevel) mask() *image.Gray { return objectMask(l.g) }

type colorLevel struct{ img *image.NRGBA }

func (l colorLevel) bounds() image.Rectangle {
	return image.Rect(0, 0, l.img.Rect.Dx(), l.img.Rect.Dy())
}

func (l colorLevel) gradients() *imaging.GradientField { return imaging.SobelColor(l.img) }

func (l colorLevel) down(ratio int) (levelImage, error) {
	img, err := imaging.PyrDownColor(l.img, ratio)
	if err != nil {
		return nil, err
	}
	return colorLevel{img}, nil
}

func (l colorLevel) smooth(radius float64) levelImage {
	return colorLevel{imaging.SmoothColor(l.img, radius)}
}

// mask treats every pixel with a non-black color as object.
func (l colorLevel) mask() *image.Gray {
	b := l.bounds()
	m := image.NewGray(b)
	for y := 0; y < b.Dy(); y++ {
		src := l.img.Pix[l.img.PixOffset(l.img.Rect.Min.X, l.img.Rect.Min.Y+y):]
		dst := m.Pix[y*m.Stride:]
		for x := 0; x < b.Dx(); x++ {
			if p := src[4*x:]; p[0]|p[1]|p[2] != 0 {
				dst[x] = 0xFF
			}
		}
	}
	return m
}

func validLevel(l levelImage, field string) error {
	if r := l.bounds(); r.Empty() {
		return &ConfigError{Field: field, Value: r, Reason: "empty image"}
	}
	if gl, ok := l.(grayLevel); ok {
		if err := gl.g.Valid(); err != nil {
			return &ConfigError{Field: field, Value: gl.g.Bounds(), Reason: err.Error()}
		}
	}
	return nil
}
