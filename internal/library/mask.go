package library

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/ironsheep/line2d-mcp/internal/imaging"
)

func encodeMask(m *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		return nil, fmt.Errorf("failed to encode mask: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeMask decodes a PNG mask and checks it covers the template level.
func decodeMask(data []byte, width, height int) (*image.Gray, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: mask: %v", ErrFormat, err)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("%w: mask is %dx%d, level is %dx%d", ErrFormat, b.Dx(), b.Dy(), width, height)
	}
	return imaging.FromImage(img).Clone().ToImage(), nil
}
