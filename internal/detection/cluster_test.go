package detection

import (
	"image"
	"testing"
)

type box struct {
	r image.Rectangle
	w float64
}

func (b box) Box() image.Rectangle { return b.r }
func (b box) Weight() float64      { return b.w }

func rect(x, y, w, h int) image.Rectangle {
	return image.Rect(x, y, x+w, y+h)
}

func TestOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b image.Rectangle
		want float64
	}{
		{"identical", rect(0, 0, 10, 10), rect(0, 0, 10, 10), 1},
		{"half shifted", rect(0, 0, 10, 10), rect(5, 0, 10, 10), 50.0 / 150.0},
		{"disjoint", rect(0, 0, 10, 10), rect(20, 20, 5, 5), 0},
		{"touching", rect(0, 0, 10, 10), rect(10, 0, 10, 10), 0},
		{"empty", rect(0, 0, 0, 10), rect(0, 0, 10, 10), 0},
		{"contained", rect(0, 0, 10, 10), rect(2, 2, 5, 5), 25.0 / 100.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Overlap(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-12 || diff < -1e-12 {
				t.Errorf("Overlap = %v, want %v", got, tt.want)
			}
			if rev := Overlap(tt.b, tt.a); rev != got {
				t.Errorf("Overlap not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestNear(t *testing.T) {
	if !Near(rect(0, 0, 20, 20), rect(1, 1, 3, 3), 0.9) {
		t.Error("containment should count as near regardless of threshold")
	}
	if Near(rect(0, 0, 10, 10), rect(5, 0, 10, 10), 0.5) {
		t.Error("overlap 1/3 should not be near at threshold 0.5")
	}
	if !Near(rect(0, 0, 10, 10), rect(5, 0, 10, 10), 0.2) {
		t.Error("overlap 1/3 should be near at threshold 0.2")
	}
	if Near(image.Rectangle{}, rect(0, 0, 10, 10), 0) {
		t.Error("empty boxes are never near")
	}
}

func TestCluster(t *testing.T) {
	items := []box{
		{rect(0, 0, 10, 10), 0.9},
		{rect(100, 100, 10, 10), 0.5},
		{rect(2, 1, 10, 10), 0.95},
		{rect(4, 2, 12, 12), 0.7},
		{rect(200, 0, 10, 10), 0.8},
	}

	groups := Cluster(items, DefaultClusterOptions(), nil)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if groups[0].Neighbors() != 3 || groups[1].Neighbors() != 1 || groups[2].Neighbors() != 1 {
		t.Errorf("group sizes = %d %d %d, want 3 1 1", groups[0].Neighbors(), groups[1].Neighbors(), groups[2].Neighbors())
	}
	if groups[0].Members[0] != items[0] || groups[0].Members[1] != items[2] {
		t.Error("members should keep input order")
	}
	if groups[0].Representative != items[3] {
		t.Errorf("ByArea representative = %+v, want the 12x12 box", groups[0].Representative)
	}
	if got := groups[0].Bounds(); got != image.Rect(0, 0, 16, 14) {
		t.Errorf("Bounds = %v", got)
	}
	if groups[1].Representative != items[1] {
		t.Error("groups should be labelled in input order")
	}

	byWeight := Cluster(items, DefaultClusterOptions(), ByWeight[box])
	if byWeight[0].Representative != items[2] {
		t.Errorf("ByWeight representative = %+v, want weight 0.95", byWeight[0].Representative)
	}
}

func TestCluster_Transitive(t *testing.T) {
	// a-b and b-c overlap, a-c do not.
	items := []box{
		{rect(0, 0, 10, 10), 1},
		{rect(20, 0, 10, 10), 1},
		{rect(5, 0, 20, 10), 1},
	}
	if Overlap(items[0].r, items[1].r) != 0 {
		t.Fatal("ends should not overlap")
	}
	groups := Cluster(items, ClusterOptions{Threshold: 0.01}, nil)
	if len(groups) != 1 || groups[0].Neighbors() != 3 {
		t.Errorf("got %d groups, want one of three", len(groups))
	}
}

func TestCluster_MinNeighbors(t *testing.T) {
	items := []box{
		{rect(0, 0, 10, 10), 1},
		{rect(1, 1, 10, 10), 1},
		{rect(50, 50, 10, 10), 1},
	}
	tests := []struct {
		min  int
		want int
	}{
		{0, 2},
		{1, 2},
		{2, 1},
		{3, 0},
	}
	for _, tt := range tests {
		got := Cluster(items, ClusterOptions{Threshold: 0.2, MinNeighbors: tt.min}, nil)
		if len(got) != tt.want {
			t.Errorf("MinNeighbors %d: %d groups, want %d", tt.min, len(got), tt.want)
		}
	}
}

func TestCluster_Idempotent(t *testing.T) {
	var items []box
	for i := 0; i < 40; i++ {
		x := (i * 37) % 200
		y := (i * 53) % 150
		items = append(items, box{rect(x, y, 20+i%7, 20+i%5), float64(i%9) / 9})
	}

	for _, rule := range []Better[box]{ByArea[box], ByWeight[box]} {
		first := Representatives(Cluster(items, DefaultClusterOptions(), rule))
		second := Representatives(Cluster(first, DefaultClusterOptions(), rule))
		if len(first) != len(second) {
			t.Fatalf("second pass changed group count %d -> %d", len(first), len(second))
		}
		for i := range first {
			if first[i] != second[i] {
				t.Errorf("representative %d changed: %+v -> %+v", i, first[i], second[i])
			}
		}
	}
}

func TestCluster_Empty(t *testing.T) {
	if got := Cluster[box](nil, DefaultClusterOptions(), nil); got != nil {
		t.Errorf("Cluster(nil) = %v, want nil", got)
	}
}

func TestClusterOptions_Validate(t *testing.T) {
	tests := []struct {
		opts    ClusterOptions
		wantErr bool
	}{
		{DefaultClusterOptions(), false},
		{ClusterOptions{Threshold: 0}, false},
		{ClusterOptions{Threshold: 1}, true},
		{ClusterOptions{Threshold: -0.1}, true},
		{ClusterOptions{Threshold: 0.2, MinNeighbors: -1}, true},
	}
	for _, tt := range tests {
		if err := tt.opts.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.opts, err, tt.wantErr)
		}
	}
}

func TestBounds(t *testing.T) {
	r := image.Rect(3, 4, 10, 12)
	b := BoundsOf(r)
	if b != (Bounds{X1: 3, Y1: 4, X2: 10, Y2: 12}) || b.Rect() != r {
		t.Errorf("BoundsOf/Rect round trip = %+v", b)
	}
}
