package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// OverlayResult contains a rendered debug image encoded as base64 PNG.
type OverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// OverlayBox is one detection to draw.
type OverlayBox struct {
	// Rect is the detection bounding box in image coordinates.
	Rect image.Rectangle

	// Label selects the box color; equal labels share a color.
	Label string

	// Score is printed in the top-left corner of the box (0-100).
	Score float64

	// Points are optional feature locations drawn as single pixels.
	Points []image.Point
}

// RenderMatches draws detection boxes over a copy of img.
//
// Each distinct label gets a stable hue derived from a hash of the label, so
// the same class keeps its color across frames. Boxes are drawn as 1-pixel
// outlines, feature points in a lighter shade of the same hue and the score is
// printed as an integer percentage. The source image is never modified.
func RenderMatches(img image.Image, boxes []OverlayBox) (*OverlayResult, error) {
	canvas := toRGBA(img)
	bounds := canvas.Bounds()

	labelBg := color.RGBA{0, 0, 0, 180}
	for _, b := range boxes {
		stroke, light := labelColors(b.Label)
		r := b.Rect.Add(bounds.Min)

		for x := r.Min.X; x < r.Max.X; x++ {
			setClipped(canvas, x, r.Min.Y, stroke)
			setClipped(canvas, x, r.Max.Y-1, stroke)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			setClipped(canvas, r.Min.X, y, stroke)
			setClipped(canvas, r.Max.X-1, y, stroke)
		}
		for _, p := range b.Points {
			setClipped(canvas, p.X+bounds.Min.X, p.Y+bounds.Min.Y, light)
		}
		drawLabel(canvas, r.Min.X+2, r.Min.Y+2, fmt.Sprintf("%d", int(math.Round(b.Score))), light, labelBg)
	}

	return encodeOverlay(canvas)
}

// RenderOrientations visualises a quantized orientation map.
//
// bins holds one value per pixel (row-major, width*height entries): values in
// [0, numBins) are orientation bin indices and anything else means "no
// gradient". Each bin is drawn with its own hue evenly spaced around the
// color wheel; pixels without gradient are black.
func RenderOrientations(bins []uint8, width, height, numBins int) (*OverlayResult, error) {
	if width <= 0 || height <= 0 || len(bins) < width*height {
		return nil, fmt.Errorf("invalid orientation map %dx%d with %d samples", width, height, len(bins))
	}
	if numBins <= 0 {
		return nil, fmt.Errorf("invalid bin count %d", numBins)
	}

	palette := make([]color.RGBA, numBins)
	for i := range palette {
		r, g, b := colorful.Hsv(360*float64(i)/float64(numBins), 0.9, 1).RGB255()
		palette[i] = color.RGBA{r, g, b, 255}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	black := color.RGBA{0, 0, 0, 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			bin := int(bins[y*width+x])
			if bin < numBins {
				canvas.SetRGBA(x, y, palette[bin])
			} else {
				canvas.SetRGBA(x, y, black)
			}
		}
	}

	return encodeOverlay(canvas)
}

// labelColors returns the stroke and highlight colors for a label.
func labelColors(label string) (color.RGBA, color.RGBA) {
	h := fnv.New32a()
	h.Write([]byte(label))
	hue := float64(h.Sum32()%360) + 0.5

	sr, sg, sb := colorful.Hcl(hue, 0.9, 0.55).Clamped().RGB255()
	lr, lg, lb := colorful.Hcl(hue, 0.6, 0.85).Clamped().RGB255()
	return color.RGBA{sr, sg, sb, 255}, color.RGBA{lr, lg, lb, 255}
}

func toRGBA(img image.Image) *image.RGBA {
	if img == nil {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	src := imaging.Clone(img)
	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)
	return canvas
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{x, y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func encodeOverlay(canvas *image.RGBA) (*OverlayResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode overlay image: %w", err)
	}

	return &OverlayResult{
		Width:       canvas.Bounds().Dx(),
		Height:      canvas.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// drawLabel prints a score with a 3x5 pixel digit font on a filled
// background. Characters outside the font leave a blank cell.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
		'.': {"000", "000", "000", "000", "010"},
	}

	bounds := img.Bounds()
	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			px, py := x+dx, y+dy
			if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
				img.Set(px, py, bg)
			}
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					px, py := cx+col, y+row
					if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
						img.Set(px, py, fg)
					}
				}
			}
		}
		cx += charWidth
	}
}
