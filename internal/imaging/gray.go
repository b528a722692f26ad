package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Gray is a strided view over 8-bit single-channel intensity samples.
//
// Gray is the input contract of the matcher. Rows are Stride bytes apart and
// only the first Width bytes of each row are samples; any remaining bytes are
// row padding and are never read.
//
// # Layout
//
// The sample at (x, y) lives at Pix[y*Stride+x]. The stride is always an
// element count (bytes, since samples are 8-bit), never an implicit size-of
// product.
type Gray struct {
	Pix    []byte
	Stride int
	Width  int
	Height int
}

// NewGray allocates a zeroed, unpadded Gray of the given size.
func NewGray(width, height int) Gray {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return Gray{
		Pix:    make([]byte, width*height),
		Stride: width,
		Width:  width,
		Height: height,
	}
}

// Valid reports whether the view is internally consistent.
func (g Gray) Valid() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", g.Width, g.Height)
	}
	if g.Stride < g.Width {
		return fmt.Errorf("stride %d smaller than width %d", g.Stride, g.Width)
	}
	if need := (g.Height-1)*g.Stride + g.Width; len(g.Pix) < need {
		return fmt.Errorf("pixel buffer too short: have %d, need %d", len(g.Pix), need)
	}
	return nil
}

// At returns the sample at (x, y). Out-of-range coordinates panic through the
// slice bounds check.
func (g Gray) At(x, y int) byte {
	return g.Pix[y*g.Stride+x]
}

// Set stores v at (x, y).
func (g Gray) Set(x, y int, v byte) {
	g.Pix[y*g.Stride+x] = v
}

// Row returns the Width samples of row y without the padding.
func (g Gray) Row(y int) []byte {
	off := y * g.Stride
	return g.Pix[off : off+g.Width]
}

// Bounds returns the image rectangle anchored at the origin.
func (g Gray) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.Width, g.Height)
}

// Clone returns an unpadded deep copy.
func (g Gray) Clone() Gray {
	out := NewGray(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		copy(out.Row(y), g.Row(y))
	}
	return out
}

// ToImage wraps the samples in an *image.Gray sharing the same memory.
func (g Gray) ToImage() *image.Gray {
	return &image.Gray{
		Pix:    g.Pix,
		Stride: g.Stride,
		Rect:   g.Bounds(),
	}
}

// FromImage converts any image to a Gray view.
//
// *image.Gray sources are wrapped without copying and keep their stride.
// 16-bit gray images are scaled down to 8 bits. All other color models are
// converted to luminance through imaging.Grayscale.
func FromImage(img image.Image) Gray {
	switch src := img.(type) {
	case *image.Gray:
		b := src.Bounds()
		off := src.PixOffset(b.Min.X, b.Min.Y)
		return Gray{
			Pix:    src.Pix[off:],
			Stride: src.Stride,
			Width:  b.Dx(),
			Height: b.Dy(),
		}
	case *image.Gray16:
		b := src.Bounds()
		out := NewGray(b.Dx(), b.Dy())
		for y := 0; y < out.Height; y++ {
			row := out.Row(y)
			for x := range row {
				row[x] = uint8(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y >> 8)
			}
		}
		return out
	default:
		nrgba := imaging.Grayscale(img)
		b := nrgba.Bounds()
		out := NewGray(b.Dx(), b.Dy())
		for y := 0; y < out.Height; y++ {
			row := out.Row(y)
			src := nrgba.Pix[y*nrgba.Stride:]
			for x := range row {
				// Grayscale writes the luminance into all three channels.
				row[x] = src[x*4]
			}
		}
		return out
	}
}

// Sample is the closed set of sample depths FromSamples accepts.
type Sample interface {
	~uint8 | ~uint16 | ~float32 | ~float64
}

// FromSamples converts a strided single-channel buffer of any supported depth
// to an 8-bit Gray. Each sample is multiplied by scale, rounded and clamped
// to [0, 255]. Use scale 1 for 8-bit data, 1.0/257 for 16-bit data and 255
// for floating point data normalised to [0, 1].
func FromSamples[T Sample](data []T, stride, width, height int, scale float64) (Gray, error) {
	if width <= 0 || height <= 0 {
		return Gray{}, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if stride < width {
		return Gray{}, fmt.Errorf("stride %d smaller than width %d", stride, width)
	}
	if need := (height-1)*stride + width; len(data) < need {
		return Gray{}, fmt.Errorf("sample buffer too short: have %d, need %d", len(data), need)
	}

	out := NewGray(width, height)
	for y := 0; y < height; y++ {
		src := data[y*stride : y*stride+width]
		row := out.Row(y)
		for x, v := range src {
			row[x] = clampByte(math.Round(float64(v) * scale))
		}
	}
	return out, nil
}

func clampByte(v float64) byte {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v)
}
