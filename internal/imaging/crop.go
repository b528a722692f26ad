package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Crop copies a sub-rectangle of the image. The rectangle is clipped to the
// image bounds; an empty intersection is an error.
func Crop(g Gray, r image.Rectangle) (Gray, error) {
	r = r.Intersect(g.Bounds())
	if r.Empty() {
		return Gray{}, fmt.Errorf("crop region outside image bounds %dx%d", g.Width, g.Height)
	}
	return fromNRGBA(imaging.Crop(g.ToImage(), r)), nil
}
