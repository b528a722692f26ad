package line2d

import (
	"errors"
	"image"
	"testing"

	"github.com/ironsheep/line2d-mcp/internal/detection"
	"github.com/ironsheep/line2d-mcp/internal/imaging"
)

func TestMatch_SelfMatch(t *testing.T) {
	src := diamondGray(64, 20)
	pyr := encode(t, testEncoder(t, 60, 30), src, "diamond")

	matches, err := testDetector(t, 90).DetectGray(src, []*TemplatePyramid{pyr})
	if err != nil {
		t.Fatalf("DetectGray failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(matches), matches)
	}
	m := matches[0]
	if m.X != 0 || m.Y != 0 {
		t.Errorf("match at (%d,%d), want (0,0)", m.X, m.Y)
	}
	if m.Score < 95 {
		t.Errorf("score = %.1f, want >= 95", m.Score)
	}
	if m.Label() != "diamond" || m.Template != pyr.Levels[0] {
		t.Error("match should reference the finest template level")
	}
}

func TestMatch_SingleLevelSelfMatch(t *testing.T) {
	src := diamondGray(48, 16)
	pyr := encode(t, testEncoder(t, 40), src, "flat")

	matches, err := testDetector(t, 90, 4).DetectGray(src, []*TemplatePyramid{pyr})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].X != 0 || matches[0].Y != 0 || matches[0].Score < 95 {
		t.Errorf("matches = %+v, want one at (0,0) scoring >= 95", matches)
	}
}

// The translated example: a 64x64 template with ten features found in a
// 128x128 frame at offset (15, 20).
func TestDetect_TranslatedTemplate(t *testing.T) {
	tplImg := diamondGray(64, 20)
	pyr := encode(t, testEncoder(t, 10, 10), tplImg, "edge")
	if n := len(pyr.Levels[0].Features); n != 10 {
		t.Fatalf("template has %d features, want 10", n)
	}

	frame := imaging.NewGray(128, 128)
	paste(frame, tplImg, 15, 20)

	d := testDetector(t, 70)
	matches, err := d.DetectGray(frame, []*TemplatePyramid{pyr})
	if err != nil {
		t.Fatalf("DetectGray failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(matches), matches)
	}
	m := matches[0]
	if abs(m.X-15) > 1 || abs(m.Y-20) > 1 {
		t.Errorf("match at (%d,%d), want (15,20) +-1", m.X, m.Y)
	}
	if m.Score < 90 {
		t.Errorf("score = %.1f, want >= 90", m.Score)
	}
	if got := m.BoundingRect(); got != image.Rect(m.X, m.Y, m.X+64, m.Y+64) {
		t.Errorf("BoundingRect = %v", got)
	}
	if pts := m.Points(); len(pts) != 10 || pts[0] != image.Pt(m.X+pyr.Levels[0].Features[0].X, m.Y+pyr.Levels[0].Features[0].Y) {
		t.Errorf("Points = %v", pts)
	}

	groups := detection.Cluster(matches, detection.DefaultClusterOptions(), nil)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].Representative != m {
		t.Errorf("representative = %+v, want %+v", groups[0].Representative, m)
	}
}

// multiObjectFrame holds two diamonds and a square plus a partial diamond
// cut by the right border.
func multiObjectFrame() imaging.Gray {
	frame := imaging.NewGray(240, 160)
	paste(frame, diamondGray(64, 20), 8, 10)
	paste(frame, diamondGray(64, 20), 120, 80)
	paste(frame, boxGray(48, 48, 10, 10, 38, 38), 90, 8)
	paste(frame, diamondGray(64, 20), 200, 40)
	return frame
}

func TestMatch_ThresholdMonotonicity(t *testing.T) {
	pyr := encode(t, testEncoder(t, 40, 20), diamondGray(64, 20), "diamond")
	lp, err := BuildPyramid(multiObjectFrame(), DefaultPyramidOptions())
	if err != nil {
		t.Fatal(err)
	}

	var prev map[image.Point]bool
	for _, th := range []float64{30, 50, 60, 70, 80, 90, 95, 100} {
		m, err := NewMatcher(MatchOptions{Threshold: th, Workers: 2})
		if err != nil {
			t.Fatal(err)
		}
		matches, err := m.Match(lp, []*TemplatePyramid{pyr})
		if err != nil {
			t.Fatal(err)
		}
		cur := make(map[image.Point]bool, len(matches))
		for _, mt := range matches {
			if mt.Score < th {
				t.Errorf("threshold %v returned score %.1f", th, mt.Score)
			}
			cur[image.Pt(mt.X, mt.Y)] = true
		}
		for p := range cur {
			if prev != nil && !prev[p] {
				t.Errorf("threshold %v returned %v, missing at the lower threshold", th, p)
			}
		}
		prev = cur
	}
}

func TestMatch_FindsEveryInstance(t *testing.T) {
	pyr := encode(t, testEncoder(t, 40, 20), diamondGray(64, 20), "diamond")
	matches, err := testDetector(t, 85).DetectGray(multiObjectFrame(), []*TemplatePyramid{pyr})
	if err != nil {
		t.Fatal(err)
	}
	want := []image.Point{{8, 10}, {120, 80}}
	for _, w := range want {
		found := false
		for _, m := range matches {
			if abs(m.X-w.X) <= 1 && abs(m.Y-w.Y) <= 1 {
				found = true
			}
		}
		if !found {
			t.Errorf("no match near %v in %+v", w, matches)
		}
	}
	// The diamond at x=200 is cut by the border; skipped placements never match it.
	for _, m := range matches {
		if m.X+64 > 240 || m.Y+64 > 160 {
			t.Errorf("match %+v leaves the frame", m)
		}
	}
}

func TestMatch_IndependentOfWorkersAndStride(t *testing.T) {
	pyr := encode(t, testEncoder(t, 40, 20), diamondGray(64, 20), "diamond")
	frame := multiObjectFrame()

	var want []Match
	for i, workers := range []int{1, 4, 0} {
		img := frame
		if i == 1 {
			img = padded(frame, 13)
		}
		opts := DefaultPyramidOptions()
		opts.Workers = workers
		lp, err := BuildPyramid(img, opts)
		if err != nil {
			t.Fatal(err)
		}
		m, err := NewMatcher(MatchOptions{Threshold: 60, Workers: workers})
		if err != nil {
			t.Fatal(err)
		}
		got, err := m.Match(lp, []*TemplatePyramid{pyr})
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			want = got
			continue
		}
		if len(got) != len(want) {
			t.Fatalf("workers=%d: %d matches, want %d", workers, len(got), len(want))
		}
		for j := range got {
			if got[j] != want[j] {
				t.Errorf("workers=%d match %d = %+v, want %+v", workers, j, got[j], want[j])
			}
		}
	}
}

func TestMatch_TemplateLargerThanFrame(t *testing.T) {
	pyr := encode(t, testEncoder(t, 40, 20), diamondGray(64, 20), "big")
	matches, err := testDetector(t, 10).DetectGray(diamondGray(48, 16), []*TemplatePyramid{pyr})
	if err != nil {
		t.Fatalf("DetectGray failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches, want none", len(matches))
	}
}

func TestMatch_ConfigurationErrors(t *testing.T) {
	pyr2 := encode(t, testEncoder(t, 40, 20), diamondGray(64, 20), "two")
	lp2, err := BuildPyramid(diamondGray(64, 20), DefaultPyramidOptions())
	if err != nil {
		t.Fatal(err)
	}
	one := DefaultPyramidOptions()
	one.NeighborhoodPerLevel = []int{5}
	lp1, err := BuildPyramid(diamondGray(64, 20), one)
	if err != nil {
		t.Fatal(err)
	}
	ratio3 := *pyr2
	ratio3.Ratio = 3
	empty := &TemplatePyramid{Label: "empty", Ratio: 2, Levels: []*Template{{Width: 64, Height: 64}, {Width: 32, Height: 32}}}
	outside := &TemplatePyramid{Label: "outside", Ratio: 2, Levels: []*Template{
		{Width: 8, Height: 8, Features: []Feature{{X: 9, Y: 1, Orientation: FromIndex(0)}}},
		{Width: 4, Height: 4, Features: []Feature{{X: 1, Y: 1, Orientation: FromIndex(0)}}},
	}}

	m, err := NewMatcher(MatchOptions{Threshold: 80})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		lp   *LinearizedPyramid
		pyrs []*TemplatePyramid
		want error
	}{
		{"level count", lp1, []*TemplatePyramid{pyr2}, ErrLevelMismatch},
		{"ratio", lp2, []*TemplatePyramid{&ratio3}, ErrLevelMismatch},
		{"no query", nil, []*TemplatePyramid{pyr2}, ErrInvalidConfig},
		{"nil template", lp2, []*TemplatePyramid{nil}, ErrInvalidConfig},
		{"no features", lp2, []*TemplatePyramid{empty}, ErrInvalidConfig},
		{"feature outside template", lp2, []*TemplatePyramid{outside}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := m.Match(tt.lp, tt.pyrs)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if matches != nil {
				t.Errorf("got matches %v alongside an error", matches)
			}
		})
	}

	for _, th := range []float64{-1, 100.5} {
		if _, err := NewMatcher(MatchOptions{Threshold: th}); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("threshold %v: err = %v, want ErrInvalidConfig", th, err)
		}
	}
}

func TestDetector_Group(t *testing.T) {
	tpl := &Template{Width: 10, Height: 10, Label: "t"}
	matches := []Match{
		{X: 0, Y: 0, Score: 90, Template: tpl},
		{X: 2, Y: 1, Score: 95, Template: tpl},
		{X: 50, Y: 50, Score: 80, Template: tpl},
	}

	d := testDetector(t, 80)
	groups := d.Group(matches)
	if len(groups) != 2 || groups[0].Neighbors() != 2 {
		t.Fatalf("groups = %+v", groups)
	}
	// Equal areas: ByArea falls back to the score.
	if groups[0].Representative.Score != 95 {
		t.Errorf("representative score = %v, want 95", groups[0].Representative.Score)
	}

	opts := DefaultDetectorOptions()
	opts.ByScore = true
	opts.Cluster.MinNeighbors = 2
	d2, err := NewDetector(opts)
	if err != nil {
		t.Fatal(err)
	}
	if groups := d2.Group(matches); len(groups) != 1 {
		t.Errorf("min neighbors 2 kept %d groups, want 1", len(groups))
	}
}

func TestNewDetector_Invalid(t *testing.T) {
	opts := DefaultDetectorOptions()
	opts.Cluster.Threshold = 1.5
	if _, err := NewDetector(opts); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}
