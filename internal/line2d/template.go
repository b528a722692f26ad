package line2d

import (
	"fmt"
	"image"
	"log/slog"
	"sort"

	"github.com/ironsheep/line2d-mcp/internal/imaging"
)

// Feature is one sparse template sample.
type Feature struct {
	// X and Y are offsets from the template origin.
	X int `json:"x"`
	Y int `json:"y"`

	// Orientation is one-hot.
	Orientation Orientation `json:"orientation"`

	// Channel is the color channel (imaging.ChannelRed, ChannelGreen or
	// ChannelBlue) the orientation was taken from. Gray templates leave it
	// 0. Matching compares orientations only.
	Channel uint8 `json:"channel,omitempty"`
}

// Template is the feature list of one pyramid level.
//
// Width and Height are the size of the source region at that level; feature
// coordinates are relative to its top-left corner. Templates are read-only
// once encoded and may be shared between goroutines.
type Template struct {
	Width    int
	Height   int
	Label    string
	Features []Feature

	// Mask is the optional binary object mask, object 255 on black.
	Mask *image.Gray
}

// Size returns the template region as a rectangle at the origin.
func (t *Template) Size() image.Rectangle {
	return image.Rect(0, 0, t.Width, t.Height)
}

// TemplatePyramid holds one Template per level, level 0 being the finest.
type TemplatePyramid struct {
	Label  string
	Ratio  int
	Levels []*Template
}

// Coarsest returns the last level, or nil for an empty pyramid.
func (p *TemplatePyramid) Coarsest() *Template {
	if len(p.Levels) == 0 {
		return nil
	}
	return p.Levels[len(p.Levels)-1]
}

// EncoderOptions controls template encoding.
type EncoderOptions struct {
	// MinMagnitude is the gradient magnitude below which pixels carry no
	// orientation.
	MinMagnitude float64

	// MinSameOrientations is the vote count the dominant-orientation filter
	// requires (0..9).
	MinSameOrientations int

	// MinSpacing is the minimum Euclidean distance between two features.
	MinSpacing int

	// MaxFeaturesPerLevel caps the features of each level; its length is the
	// number of pyramid levels.
	MaxFeaturesPerLevel []int

	// MinFeatures is the smallest acceptable feature count at any level.
	MinFeatures int

	// Ratio is the downsample factor between levels.
	Ratio int

	// KeepMask stores the binary object mask with every level.
	KeepMask bool

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger
}

// DefaultEncoderOptions returns the settings used for binarized templates.
func DefaultEncoderOptions() EncoderOptions {
	return EncoderOptions{
		MinMagnitude:        40,
		MinSameOrientations: 4,
		MinSpacing:          2,
		MaxFeaturesPerLevel: []int{100, 50},
		MinFeatures:         4,
		Ratio:               2,
	}
}

// Validate checks the options and returns a *ConfigError describing the
// first problem found.
func (o EncoderOptions) Validate() error {
	switch {
	case o.MinMagnitude < 0:
		return &ConfigError{Field: "min magnitude", Value: o.MinMagnitude, Reason: "must not be negative"}
	case o.MinSameOrientations < 0 || o.MinSameOrientations > 9:
		return &ConfigError{Field: "min same orientations", Value: o.MinSameOrientations, Reason: "must be within 0..9"}
	case o.MinSpacing < 1:
		return &ConfigError{Field: "min spacing", Value: o.MinSpacing, Reason: "must be at least 1"}
	case o.MinFeatures < 1:
		return &ConfigError{Field: "min features", Value: o.MinFeatures, Reason: "must be at least 1"}
	case len(o.MaxFeaturesPerLevel) == 0:
		return &ConfigError{Field: "max features per level", Value: o.MaxFeaturesPerLevel, Reason: "at least one level required"}
	case len(o.MaxFeaturesPerLevel) > 1 && o.Ratio < 2:
		return &ConfigError{Field: "pyramid ratio", Value: o.Ratio, Reason: "must be at least 2"}
	}
	for i, n := range o.MaxFeaturesPerLevel {
		if n < o.MinFeatures || n > MaxFeatures {
			return &ConfigError{
				Field:  fmt.Sprintf("max features at level %d", i),
				Value:  n,
				Reason: fmt.Sprintf("must be within %d..%d", o.MinFeatures, MaxFeatures),
			}
		}
	}
	return nil
}

// Encoder turns prepared template images into template pyramids.
type Encoder struct {
	opts   EncoderOptions
	logger *slog.Logger
}

// NewEncoder validates opts and returns an Encoder.
func NewEncoder(opts EncoderOptions) (*Encoder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.MaxFeaturesPerLevel = append([]int(nil), opts.MaxFeaturesPerLevel...)
	return &Encoder{opts: opts, logger: loggerOrDiscard(opts.Logger)}, nil
}

// Levels returns the number of pyramid levels the encoder produces.
func (e *Encoder) Levels() int { return len(e.opts.MaxFeaturesPerLevel) }

// Ratio returns the downsample factor between levels.
func (e *Encoder) Ratio() int { return e.opts.Ratio }

// Encode builds a template pyramid from a prepared image.
//
// Parameters:
//   - src: the prepared template image, usually binarized with the object
//     white on black
//   - label: class label stored with every level
//
// Returns:
//   - *TemplatePyramid: one Template per level, level 0 at full resolution
//   - error: *EncodeError when a level has fewer than MinFeatures features,
//     *ConfigError for an invalid image
//
// # Algorithm
//
// Level l+1 is produced by downsampling level l's image with imaging.PyrDown
// and extracting orientations again, so coarse features are quantized at
// their own scale instead of being subsampled from the finer level. The
// feature cap of level l+1 is the smaller of its configured maximum and the
// number of features found at level l, which keeps counts non-increasing.
func (e *Encoder) Encode(src imaging.Gray, label string) (*TemplatePyramid, error) {
	return e.encode(grayLevel{src}, label)
}

// EncodeColor is Encode for color templates. Orientations come from the
// channel with the strongest gradient at each pixel, and every feature
// records that channel.
func (e *Encoder) EncodeColor(src *image.NRGBA, label string) (*TemplatePyramid, error) {
	return e.encode(colorLevel{imaging.ToNRGBA(src)}, label)
}

func (e *Encoder) encode(src levelImage, label string) (*TemplatePyramid, error) {
	pyr := &TemplatePyramid{Label: label, Ratio: e.opts.Ratio}
	if len(e.opts.MaxFeaturesPerLevel) == 1 {
		pyr.Ratio = 1
	}

	img := src
	limit := MaxFeatures
	for level, capacity := range e.opts.MaxFeaturesPerLevel {
		if level > 0 {
			down, err := img.down(e.opts.Ratio)
			if err != nil {
				return nil, &EncodeError{Label: label, Level: level, Found: 0, Required: e.opts.MinFeatures}
			}
			img = down
		}
		if capacity > limit {
			capacity = limit
		}

		tpl, err := e.encodeLevel(img, label, level, capacity)
		if err != nil {
			return nil, err
		}
		pyr.Levels = append(pyr.Levels, tpl)
		limit = len(tpl.Features)
	}

	e.logger.Debug("encoded template pyramid",
		"label", label,
		"levels", len(pyr.Levels),
		"features", len(pyr.Levels[0].Features))
	return pyr, nil
}

// EncodeTemplate extracts a single-level template with at most maxFeatures
// features.
func (e *Encoder) EncodeTemplate(src imaging.Gray, label string, maxFeatures int) (*Template, error) {
	if maxFeatures < 1 || maxFeatures > MaxFeatures {
		return nil, &ConfigError{Field: "max features", Value: maxFeatures, Reason: fmt.Sprintf("must be within 1..%d", MaxFeatures)}
	}
	return e.encodeLevel(grayLevel{src}, label, 0, maxFeatures)
}

func (e *Encoder) encodeLevel(img levelImage, label string, level, maxFeatures int) (*Template, error) {
	if err := validLevel(img, "template image"); err != nil {
		return nil, err
	}

	field := img.gradients()
	size := img.bounds()
	om, err := RetainDominant(QuantizeField(field, e.opts.MinMagnitude), e.opts.MinSameOrientations)
	if err != nil {
		return nil, err
	}

	features := selectScattered(collectCandidates(om, field), maxFeatures, e.opts.MinSpacing, size.Dx(), size.Dy())
	if len(features) < e.opts.MinFeatures {
		return nil, &EncodeError{Label: label, Level: level, Found: len(features), Required: e.opts.MinFeatures}
	}

	tpl := &Template{
		Width:    size.Dx(),
		Height:   size.Dy(),
		Label:    label,
		Features: features,
	}
	if e.opts.KeepMask {
		tpl.Mask = img.mask()
	}
	return tpl, nil
}

type candidate struct {
	Feature
	strength int64
}

// collectCandidates lists every oriented pixel ordered by gradient strength,
// strongest first. Equal strengths keep row-major order.
func collectCandidates(om *OrientationMap, field *imaging.GradientField) []candidate {
	var out []candidate
	for y := 0; y < om.Height; y++ {
		for x := 0; x < om.Width; x++ {
			o := om.Bins[y*om.Width+x]
			if o == NoOrientation {
				continue
			}
			out = append(out, candidate{
				Feature:  Feature{X: x, Y: y, Orientation: o, Channel: field.ChannelAt(x, y)},
				strength: field.MagnitudeSqr(x, y),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].strength > out[j].strength
	})
	return out
}

// initialSpacing is the widest spacing tried by selectScattered.
const initialSpacing = 50

// selectScattered greedily picks up to count well-separated candidates.
//
// # Algorithm
//
// Candidates are visited in order. One is accepted when it lies at least the
// current spacing away from every accepted feature. After each full pass
// without reaching count, the spacing is relaxed by one pixel and the scan
// restarts, keeping what was already accepted. Scanning stops once the
// spacing would drop below minSpacing, so every accepted pair is at least
// minSpacing apart.
func selectScattered(cands []candidate, count, minSpacing, width, height int) []Feature {
	if len(cands) == 0 || count <= 0 {
		return nil
	}
	spacing := width
	if height > spacing {
		spacing = height
	}
	spacing /= 2
	if spacing > initialSpacing {
		spacing = initialSpacing
	}
	if spacing < minSpacing {
		spacing = minSpacing
	}

	taken := make([]bool, len(cands))
	var out []Feature
	for ; spacing >= minSpacing && len(out) < count; spacing-- {
		limit := spacing * spacing
		for i, c := range cands {
			if taken[i] {
				continue
			}
			if farFromAll(c.Feature, out, limit) {
				taken[i] = true
				out = append(out, c.Feature)
				if len(out) == count {
					break
				}
			}
		}
	}
	return out
}

func farFromAll(f Feature, accepted []Feature, limitSqr int) bool {
	for _, a := range accepted {
		dx, dy := f.X-a.X, f.Y-a.Y
		if dx*dx+dy*dy < limitSqr {
			return false
		}
	}
	return true
}

// objectMask marks every non-zero sample as object. It expects the object
// bright on a black background, which is what binarization produces; dark
// objects must be inverted first.
func objectMask(img imaging.Gray) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		row := img.Row(y)
		dst := mask.Pix[y*mask.Stride:]
		for x, v := range row {
			if v > 0 {
				dst[x] = 0xFF
			}
		}
	}
	return mask
}
