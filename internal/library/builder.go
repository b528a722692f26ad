package library

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ironsheep/line2d-mcp/internal/imaging"
	"github.com/ironsheep/line2d-mcp/internal/line2d"
	"github.com/ironsheep/line2d-mcp/internal/parallel"
)

// BuildOptions controls batch template building.
type BuildOptions struct {
	Encoder line2d.EncoderOptions

	// BinarizeLevel thresholds each template image before encoding so only
	// the object silhouette produces gradients. 0 disables binarization.
	// Samples at or above the level become object, so templates are
	// expected to show a bright object on a dark background; set Invert
	// for the opposite polarity. Color templates are never binarized.
	BinarizeLevel uint8

	// Invert swaps polarity before anything else, turning a dark object on
	// a light background into the layout binarization and masks expect.
	Invert bool

	// Color encodes color gradients from the strongest channel instead of
	// luminance.
	Color bool

	// Workers bounds the number of templates encoded at once; <= 0 means one
	// per CPU.
	Workers int

	// Logger receives one warning per skipped template. Nil disables
	// logging.
	Logger *slog.Logger
}

// DefaultBuildOptions binarizes at mid-gray with the default encoder.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Encoder:       line2d.DefaultEncoderOptions(),
		BinarizeLevel: 128,
	}
}

// BuildError reports one template that could not be built.
type BuildError struct {
	Path string
	Err  error
}

func (e BuildError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e BuildError) Unwrap() error { return e.Err }

// Builder encodes template images into a Library.
type Builder struct {
	opts    BuildOptions
	encoder *line2d.Encoder
	cache   *imaging.ImageCache
	logger  *slog.Logger
}

// NewBuilder validates opts and returns a Builder. A nil cache gets a
// private one.
func NewBuilder(cache *imaging.ImageCache, opts BuildOptions) (*Builder, error) {
	if opts.Encoder.Logger == nil {
		opts.Encoder.Logger = opts.Logger
	}
	enc, err := line2d.NewEncoder(opts.Encoder)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		cache = imaging.NewImageCache()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{opts: opts, encoder: enc, cache: cache, logger: logger}, nil
}

// BuildImage prepares and encodes a single template image.
func (b *Builder) BuildImage(img image.Image, label string) (*line2d.TemplatePyramid, error) {
	if b.opts.Invert {
		img = imaging.Invert(img)
	}
	if b.opts.Color {
		return b.encoder.EncodeColor(imaging.ToNRGBA(img), label)
	}
	g := imaging.FromImage(img)
	if b.opts.BinarizeLevel > 0 {
		g = imaging.Binarize(g, b.opts.BinarizeLevel)
	}
	return b.encoder.Encode(g, label)
}

// BuildFiles encodes every image in paths.
//
// Parameters:
//   - paths: template image files
//   - label: class label for every pyramid; empty derives each label from
//     its file name without extension
//
// Returns the library of successfully built pyramids in input order and one
// BuildError per skipped file. Errors never stop the batch.
func (b *Builder) BuildFiles(paths []string, label string) (*Library, []BuildError) {
	pyrs := make([]*line2d.TemplatePyramid, len(paths))
	errs := make([]error, len(paths))

	parallel.Each(len(paths), b.opts.Workers, func(i int) {
		img, err := b.cache.Load(paths[i])
		if err != nil {
			errs[i] = err
			return
		}
		l := label
		if l == "" {
			l = LabelFromPath(paths[i])
		}
		pyrs[i], errs[i] = b.BuildImage(img, l)
	})

	lib := New()
	var failed []BuildError
	for i, p := range pyrs {
		if errs[i] != nil {
			b.logger.Warn("skipping template", "path", paths[i], "error", errs[i])
			failed = append(failed, BuildError{Path: paths[i], Err: errs[i]})
			continue
		}
		lib.Add(p)
	}
	b.logger.Info("built template library", "templates", lib.Len(), "skipped", len(failed))
	return lib, failed
}

// LabelFromPath returns the file name without directory and extension.
func LabelFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ExpandPaths replaces every directory in paths with the image files it
// directly contains, sorted by name. Plain files are kept as given.
func ExpandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() && imaging.IsImageFile(e.Name()) {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(files)
		out = append(out, files...)
	}
	return out, nil
}
