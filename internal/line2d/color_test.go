package line2d

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/ironsheep/line2d-mcp/internal/imaging"
)

// Both colors have luminance 100.
var (
	isoBackground = color.NRGBA{R: 100, G: 100, B: 100, A: 255}
	isoObject     = color.NRGBA{R: 41, G: 100, B: 255, A: 255}
)

// isoDiamond draws a size x size diamond of isoObject on isoBackground with
// its top-left corner at (ox, oy) of a w x h frame.
func isoDiamond(w, h, ox, oy, size, half int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	c := size / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := x-ox-c, y-oy-c
			if x >= ox && x < ox+size && y >= oy && y < oy+size && abs(dx)+abs(dy) <= half {
				img.SetNRGBA(x, y, isoObject)
			} else {
				img.SetNRGBA(x, y, isoBackground)
			}
		}
	}
	return img
}

func TestEncodeColor_EqualLuminance(t *testing.T) {
	tpl := isoDiamond(64, 64, 0, 0, 64, 20)
	enc := testEncoder(t, 60, 30)

	_, err := enc.Encode(imaging.FromImage(tpl), "iso")
	if !errors.Is(err, ErrInsufficientFeatures) {
		t.Fatalf("gray encoding error = %v, want ErrInsufficientFeatures", err)
	}

	pyr, err := enc.EncodeColor(tpl, "iso")
	if err != nil {
		t.Fatalf("EncodeColor failed: %v", err)
	}
	if len(pyr.Levels) != 2 {
		t.Fatalf("got %d levels, want 2", len(pyr.Levels))
	}
	for l, level := range pyr.Levels {
		if len(level.Features) < 4 {
			t.Fatalf("level %d has %d features", l, len(level.Features))
		}
		for _, f := range level.Features {
			// Blue changes by 155 across the edge, red by 59, green not at all.
			if f.Channel != imaging.ChannelBlue {
				t.Fatalf("level %d feature (%d,%d) channel = %d, want blue", l, f.X, f.Y, f.Channel)
			}
		}
	}
}

func TestEncodeColor_Mask(t *testing.T) {
	opts := DefaultEncoderOptions()
	opts.KeepMask = true
	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			img.SetNRGBA(x, y, color.NRGBA{B: 200, A: 255})
		}
	}
	pyr, err := enc.EncodeColor(img, "square")
	if err != nil {
		t.Fatalf("EncodeColor failed: %v", err)
	}
	m := pyr.Levels[0].Mask
	if m == nil {
		t.Fatal("mask missing")
	}
	if m.GrayAt(20, 20).Y != 0xFF || m.GrayAt(5, 5).Y != 0 {
		t.Errorf("mask inside = %d, outside = %d", m.GrayAt(20, 20).Y, m.GrayAt(5, 5).Y)
	}
}

func TestDetectColor_EqualLuminance(t *testing.T) {
	pyr, err := testEncoder(t, 60, 30).EncodeColor(isoDiamond(64, 64, 0, 0, 64, 20), "iso")
	if err != nil {
		t.Fatal(err)
	}
	frame := isoDiamond(128, 128, 16, 20, 64, 20)
	d := testDetector(t, 80)

	matches, err := d.DetectColor(frame, []*TemplatePyramid{pyr})
	if err != nil {
		t.Fatalf("DetectColor failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(matches), matches)
	}
	if m := matches[0]; abs(m.X-16) > 1 || abs(m.Y-20) > 1 || m.Score < 90 {
		t.Errorf("match = (%d,%d) score %.1f, want (16,20) scoring >= 90", m.X, m.Y, m.Score)
	}

	gray, err := d.DetectGray(imaging.FromImage(frame), []*TemplatePyramid{pyr})
	if err != nil {
		t.Fatal(err)
	}
	if len(gray) != 0 {
		t.Errorf("luminance frame produced %d matches, want 0", len(gray))
	}
}

func TestDetectImage_ColorOption(t *testing.T) {
	pyr, err := testEncoder(t, 60, 30).EncodeColor(isoDiamond(64, 64, 0, 0, 64, 20), "iso")
	if err != nil {
		t.Fatal(err)
	}
	frame := isoDiamond(96, 96, 16, 16, 64, 20)

	tests := []struct {
		color bool
		want  int
	}{
		{false, 0},
		{true, 1},
	}
	for _, tt := range tests {
		opts := DefaultDetectorOptions()
		opts.Color = tt.color
		d, err := NewDetector(opts)
		if err != nil {
			t.Fatal(err)
		}
		matches, err := d.DetectImage(frame, []*TemplatePyramid{pyr})
		if err != nil {
			t.Fatalf("color=%v: %v", tt.color, err)
		}
		if len(matches) != tt.want {
			t.Errorf("color=%v: got %d matches, want %d", tt.color, len(matches), tt.want)
		}
	}
}

func TestComputeOrientationMapColor(t *testing.T) {
	img := isoDiamond(32, 32, 0, 0, 32, 10)
	om, err := ComputeOrientationMapColor(img, 35, 4)
	if err != nil {
		t.Fatal(err)
	}
	var oriented int
	for _, o := range om.Bins {
		if o != NoOrientation {
			oriented++
		}
	}
	if oriented == 0 {
		t.Error("color orientation map is empty")
	}

	gray, err := ComputeOrientationMap(imaging.FromImage(img), 35, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i, o := range gray.Bins {
		if o != NoOrientation {
			t.Fatalf("luminance map has orientation at %d", i)
		}
	}

	if _, err := ComputeOrientationMapColor(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 35, 4); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty image error = %v, want ErrInvalidConfig", err)
	}
}
