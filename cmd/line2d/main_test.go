package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func diamondImage(width, height, cx, cy, half int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := x-cx, y-cy
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			if dx+dy <= half {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img
}

func savePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func runCmd(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRun_VersionAndHelp(t *testing.T) {
	out, _, err := runCmd(t, "", "version")
	if err != nil || !strings.HasPrefix(out, "line2d dev") {
		t.Errorf("version: %q, %v", out, err)
	}
	out, _, err = runCmd(t, "", "help")
	if err != nil || !strings.Contains(out, "line2d build") {
		t.Errorf("help: %q, %v", out, err)
	}
	_, errOut, err := runCmd(t, "", "frobnicate")
	if !errors.Is(err, errUsage) || !strings.Contains(errOut, "unknown command") {
		t.Errorf("unknown command: %q, %v", errOut, err)
	}
}

func TestRun_BuildDetectBench(t *testing.T) {
	t.Setenv("LINE2D_LOG_LEVEL", "error")
	dir := t.TempDir()
	tpl := filepath.Join(dir, "diamond.png")
	frame := filepath.Join(dir, "frame.png")
	lib := filepath.Join(dir, "lib.l2d")
	overlay := filepath.Join(dir, "overlay.png")
	savePNG(t, tpl, diamondImage(64, 64, 32, 32, 20))
	savePNG(t, frame, diamondImage(160, 128, 40+32, 30+32, 20))

	out, errOut, err := runCmd(t, "", "build", "-o", lib, tpl)
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, errOut)
	}
	if !strings.Contains(out, "built 1 templates") {
		t.Errorf("build output = %q", out)
	}

	out, errOut, err = runCmd(t, "", "detect", "-t", lib, "-json", "-overlay", overlay, frame)
	if err != nil {
		t.Fatalf("detect failed: %v\n%s", err, errOut)
	}
	var found bool
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var d detectionLine
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			t.Fatalf("bad detection line %q: %v", line, err)
		}
		if d.Label == "diamond" && d.Score >= 90 && d.X >= 39 && d.X <= 41 && d.Y >= 29 && d.Y <= 31 {
			found = true
		}
	}
	if !found {
		t.Errorf("diamond not detected at (40,30):\n%s", out)
	}
	if f, err := os.Open(overlay); err != nil {
		t.Errorf("overlay not written: %v", err)
	} else {
		defer f.Close()
		if _, err := png.Decode(f); err != nil {
			t.Errorf("overlay is not a PNG: %v", err)
		}
	}

	out, errOut, err = runCmd(t, "", "bench", "-t", lib, "-n", "3", frame)
	if err != nil {
		t.Fatalf("bench failed: %v\n%s", err, errOut)
	}
	if !strings.Contains(out, "runs=3") || !strings.Contains(out, "median=") {
		t.Errorf("bench output = %q", out)
	}
}

// isoDiamondImage draws the diamond in a color of the same luminance as its
// gray background.
func isoDiamondImage(width, height, cx, cy, half int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA{R: 100, G: 100, B: 100, A: 255}
			dx, dy := x-cx, y-cy
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			if dx+dy <= half {
				c = color.NRGBA{R: 41, G: 100, B: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func invertGray(img *image.Gray) *image.Gray {
	for i, v := range img.Pix {
		img.Pix[i] = 255 - v
	}
	return img
}

func TestRun_BuildOptions(t *testing.T) {
	t.Setenv("LINE2D_LOG_LEVEL", "error")

	tests := []struct {
		name      string
		tpl       image.Image
		frame     image.Image
		buildArgs []string
		detectArg []string
	}{
		{
			"invert",
			invertGray(diamondImage(64, 64, 32, 32, 20)),
			invertGray(diamondImage(160, 128, 40+32, 30+32, 20)),
			[]string{"-invert", "-mask"},
			nil,
		},
		{
			"color",
			isoDiamondImage(64, 64, 32, 32, 20),
			isoDiamondImage(160, 128, 40+32, 30+32, 20),
			[]string{"-color"},
			[]string{"-color"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tpl := filepath.Join(dir, "shape.png")
			frame := filepath.Join(dir, "frame.png")
			lib := filepath.Join(dir, "lib.xml")
			savePNG(t, tpl, tt.tpl)
			savePNG(t, frame, tt.frame)

			args := append(append([]string{"build", "-o", lib}, tt.buildArgs...), tpl)
			if _, errOut, err := runCmd(t, "", args...); err != nil {
				t.Fatalf("build failed: %v\n%s", err, errOut)
			}

			args = append(append([]string{"detect", "-t", lib, "-json"}, tt.detectArg...), frame)
			out, errOut, err := runCmd(t, "", args...)
			if err != nil {
				t.Fatalf("detect failed: %v\n%s", err, errOut)
			}
			var found bool
			for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
				var d detectionLine
				if err := json.Unmarshal([]byte(line), &d); err != nil {
					t.Fatalf("bad detection line %q: %v", line, err)
				}
				if d.Label == "shape" && d.X >= 39 && d.X <= 41 && d.Y >= 29 && d.Y <= 31 {
					found = true
				}
			}
			if !found {
				t.Errorf("shape not detected at (40,30):\n%s", out)
			}
		})
	}
}

func TestRun_UsageErrors(t *testing.T) {
	tests := [][]string{
		{"build", "x.png"},
		{"detect", "frame.png"},
		{"bench", "-t", "lib.xml"},
		{"bench", "-n", "0", "-t", "lib.xml", "frame.png"},
		{"detect", "-nosuchflag"},
	}
	for _, args := range tests {
		if _, _, err := runCmd(t, "", args...); !errors.Is(err, errUsage) {
			t.Errorf("%v: error = %v, want usage error", args, err)
		}
	}
}

func TestRun_Serve(t *testing.T) {
	t.Setenv("LINE2D_LOG_LEVEL", "error")
	out, errOut, err := runCmd(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n", "serve")
	if err != nil {
		t.Fatalf("serve failed: %v\n%s", err, errOut)
	}
	if !strings.Contains(out, `"id":1`) || !strings.Contains(out, `"result":{}`) {
		t.Errorf("serve output = %q", out)
	}
}
