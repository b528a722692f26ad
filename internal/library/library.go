package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/line2d-mcp/internal/line2d"
)

// ErrFormat is wrapped by every error caused by a malformed library file.
var ErrFormat = errors.New("malformed template library")

// Library is an ordered collection of template pyramids.
type Library struct {
	Pyramids []*line2d.TemplatePyramid
}

// New returns a library holding pyrs.
func New(pyrs ...*line2d.TemplatePyramid) *Library {
	return &Library{Pyramids: pyrs}
}

// Add appends pyramids to the library.
func (l *Library) Add(pyrs ...*line2d.TemplatePyramid) {
	l.Pyramids = append(l.Pyramids, pyrs...)
}

// Len returns the number of pyramids.
func (l *Library) Len() int { return len(l.Pyramids) }

// Labels returns the distinct labels in order of first appearance.
func (l *Library) Labels() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, p := range l.Pyramids {
		if !seen[p.Label] {
			seen[p.Label] = true
			labels = append(labels, p.Label)
		}
	}
	return labels
}

// WithLabels returns the pyramids whose label is in labels. An empty
// argument list returns every pyramid.
func (l *Library) WithLabels(labels ...string) []*line2d.TemplatePyramid {
	if len(labels) == 0 {
		return l.Pyramids
	}
	want := make(map[string]bool, len(labels))
	for _, s := range labels {
		want[s] = true
	}
	var out []*line2d.TemplatePyramid
	for _, p := range l.Pyramids {
		if want[p.Label] {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that every pyramid is usable by the matcher: at least one
// level, positive sizes, between 1 and line2d.MaxFeatures features per level
// and one-hot features inside their level. A library holding a pyramid the
// matcher would reject never loads, so it cannot fail detection for the
// other classes later.
func (l *Library) Validate() error {
	for i, p := range l.Pyramids {
		if err := validatePyramid(p); err != nil {
			return fmt.Errorf("pyramid %d (%q): %w", i, p.Label, err)
		}
	}
	return nil
}

func validatePyramid(p *line2d.TemplatePyramid) error {
	if len(p.Levels) == 0 {
		return fmt.Errorf("%w: no levels", ErrFormat)
	}
	if p.Ratio < 1 || (len(p.Levels) > 1 && p.Ratio < 2) {
		return fmt.Errorf("%w: invalid ratio %d for %d levels", ErrFormat, p.Ratio, len(p.Levels))
	}
	for li, t := range p.Levels {
		if t == nil || t.Width <= 0 || t.Height <= 0 {
			return fmt.Errorf("%w: level %d has no size", ErrFormat, li)
		}
		if len(t.Features) == 0 {
			return fmt.Errorf("%w: level %d has no features", ErrFormat, li)
		}
		if len(t.Features) > line2d.MaxFeatures {
			return fmt.Errorf("%w: level %d has %d features, limit %d", ErrFormat, li, len(t.Features), line2d.MaxFeatures)
		}
		for _, f := range t.Features {
			if !f.Orientation.Valid() {
				return fmt.Errorf("%w: level %d feature (%d,%d) orientation %#x is not one-hot", ErrFormat, li, f.X, f.Y, uint8(f.Orientation))
			}
			if f.X < 0 || f.Y < 0 || f.X >= t.Width || f.Y >= t.Height {
				return fmt.Errorf("%w: level %d feature (%d,%d) outside %dx%d", ErrFormat, li, f.X, f.Y, t.Width, t.Height)
			}
		}
	}
	return nil
}

// Format identifies a persistence format.
type Format int

const (
	FormatXML Format = iota
	FormatBinary
	FormatMsgpack
)

// FormatFromPath picks the format by extension: ".xml", ".l2d" or ".msgpack".
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return FormatXML, nil
	case ".l2d":
		return FormatBinary, nil
	case ".msgpack", ".mp":
		return FormatMsgpack, nil
	default:
		return 0, fmt.Errorf("unsupported library extension %q: use .xml, .l2d or .msgpack", filepath.Ext(path))
	}
}

// Save writes the library to path in the format its extension selects.
func (l *Library) Save(path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create library file: %w", err)
	}

	switch format {
	case FormatXML:
		err = l.WriteXML(f)
	case FormatMsgpack:
		err = l.WriteMsgpack(f)
	default:
		err = l.WriteBinary(f)
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close library file: %w", cerr)
	}
	return err
}

// Load reads a library from path in the format its extension selects.
func Load(path string) (*Library, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open library file: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatXML:
		return ReadXML(f)
	case FormatMsgpack:
		return ReadMsgpack(f)
	default:
		return ReadBinary(f)
	}
}
