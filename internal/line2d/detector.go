package line2d

import (
	"image"
	"log/slog"

	"github.com/ironsheep/line2d-mcp/internal/detection"
	"github.com/ironsheep/line2d-mcp/internal/imaging"
)

// DetectorOptions bundles everything needed to go from a frame to grouped
// detections.
type DetectorOptions struct {
	Pyramid PyramidOptions
	Match   MatchOptions
	Cluster detection.ClusterOptions

	// ByScore selects the best-scoring member as group representative
	// instead of the largest box.
	ByScore bool

	// Color makes DetectImage keep color and take gradients from the
	// strongest channel instead of luminance.
	Color bool

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger
}

// DefaultDetectorOptions returns the default query pyramid, a threshold of
// 80 and the default clustering rule.
func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{
		Pyramid: DefaultPyramidOptions(),
		Match:   MatchOptions{Threshold: 80},
		Cluster: detection.DefaultClusterOptions(),
	}
}

// Detector runs the full per-frame pipeline. It holds no per-frame state and
// may be shared between goroutines.
type Detector struct {
	opts    DetectorOptions
	matcher *Matcher
	logger  *slog.Logger
}

// NewDetector validates every option set and returns a Detector.
func NewDetector(opts DetectorOptions) (*Detector, error) {
	if err := opts.Pyramid.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Cluster.Validate(); err != nil {
		return nil, &ConfigError{Field: "cluster options", Value: opts.Cluster, Reason: err.Error()}
	}
	if opts.Match.Logger == nil {
		opts.Match.Logger = opts.Logger
	}
	m, err := NewMatcher(opts.Match)
	if err != nil {
		return nil, err
	}
	return &Detector{opts: opts, matcher: m, logger: loggerOrDiscard(opts.Logger)}, nil
}

// Options returns the options the detector was built with.
func (d *Detector) Options() DetectorOptions { return d.opts }

// Prepare builds the linearized query pyramid for a frame.
func (d *Detector) Prepare(g imaging.Gray) (*LinearizedPyramid, error) {
	return BuildPyramid(g, d.opts.Pyramid)
}

// DetectGray matches every template pyramid against a frame.
//
// Returns a nil slice and an error when the frame or the templates do not
// fit the detector configuration. A frame without detections returns an
// empty result and no error.
func (d *Detector) DetectGray(g imaging.Gray, pyrs []*TemplatePyramid) ([]Match, error) {
	lp, err := d.Prepare(g)
	if err != nil {
		return nil, err
	}
	return d.match(lp, pyrs)
}

// DetectColor matches every template pyramid against a color frame, taking
// gradients from the strongest channel.
func (d *Detector) DetectColor(img *image.NRGBA, pyrs []*TemplatePyramid) ([]Match, error) {
	lp, err := BuildPyramidColor(img, d.opts.Pyramid)
	if err != nil {
		return nil, err
	}
	return d.match(lp, pyrs)
}

// DetectImage runs DetectColor when the detector is configured for color
// and DetectGray on the luminance of img otherwise.
func (d *Detector) DetectImage(img image.Image, pyrs []*TemplatePyramid) ([]Match, error) {
	if d.opts.Color {
		return d.DetectColor(imaging.ToNRGBA(img), pyrs)
	}
	return d.DetectGray(imaging.FromImage(img), pyrs)
}

func (d *Detector) match(lp *LinearizedPyramid, pyrs []*TemplatePyramid) ([]Match, error) {
	matches, err := d.matcher.Match(lp, pyrs)
	if err != nil {
		return nil, err
	}
	base := lp.Levels[0]
	d.logger.Debug("detected", "width", base.Width, "height", base.Height, "templates", len(pyrs), "matches", len(matches))
	return matches, nil
}

// Group clusters matches with the detector's clustering options.
func (d *Detector) Group(matches []Match) []detection.MatchGroup[Match] {
	var better detection.Better[Match] = detection.ByArea[Match]
	if d.opts.ByScore {
		better = detection.ByWeight[Match]
	}
	return detection.Cluster(matches, d.opts.Cluster, better)
}

// DetectAndGroup runs DetectGray and clusters the result.
func (d *Detector) DetectAndGroup(g imaging.Gray, pyrs []*TemplatePyramid) ([]detection.MatchGroup[Match], error) {
	matches, err := d.DetectGray(g, pyrs)
	if err != nil {
		return nil, err
	}
	return d.Group(matches), nil
}
