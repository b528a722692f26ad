package library

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/ironsheep/line2d-mcp/internal/line2d"
)

// formatVersion is written by both formats and is the only version read.
const formatVersion = 1

type xmlLibrary struct {
	XMLName  xml.Name     `xml:"templates"`
	Version  int          `xml:"version,attr"`
	Pyramids []xmlPyramid `xml:"pyramid"`
}

type xmlPyramid struct {
	Label  string     `xml:"label,attr"`
	Ratio  int        `xml:"ratio,attr"`
	Levels []xmlLevel `xml:"level"`
}

type xmlLevel struct {
	Index    int          `xml:"index,attr"`
	Width    int          `xml:"width,attr"`
	Height   int          `xml:"height,attr"`
	Features []xmlFeature `xml:"feature"`
	Mask     string       `xml:"mask,omitempty"`
}

// xmlFeature stores the orientation as its bin index so files stay readable.
type xmlFeature struct {
	X           int   `xml:"x,attr"`
	Y           int   `xml:"y,attr"`
	Orientation int   `xml:"orientation,attr"`
	Channel     uint8 `xml:"channel,attr,omitempty"`
}

// WriteXML encodes the library as indented XML.
func (l *Library) WriteXML(w io.Writer) error {
	doc := xmlLibrary{Version: formatVersion}
	for _, p := range l.Pyramids {
		xp := xmlPyramid{Label: p.Label, Ratio: p.Ratio}
		for i, t := range p.Levels {
			xl := xmlLevel{Index: i, Width: t.Width, Height: t.Height}
			xl.Features = make([]xmlFeature, len(t.Features))
			for j, f := range t.Features {
				xl.Features[j] = xmlFeature{X: f.X, Y: f.Y, Orientation: f.Orientation.Index(), Channel: f.Channel}
			}
			if t.Mask != nil {
				data, err := encodeMask(t.Mask)
				if err != nil {
					return err
				}
				xl.Mask = base64.StdEncoding.EncodeToString(data)
			}
			xp.Levels = append(xp.Levels, xl)
		}
		doc.Pyramids = append(doc.Pyramids, xp)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write library: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write library: %w", err)
	}
	return nil
}

// ReadXML decodes a library written by WriteXML and validates it.
func ReadXML(r io.Reader) (*Library, error) {
	var doc xmlLibrary
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, doc.Version)
	}

	lib := New()
	for _, xp := range doc.Pyramids {
		p := &line2d.TemplatePyramid{Label: xp.Label, Ratio: xp.Ratio}
		for i, xl := range xp.Levels {
			if xl.Index != i {
				return nil, fmt.Errorf("%w: pyramid %q level %d stored as index %d", ErrFormat, xp.Label, i, xl.Index)
			}
			t := &line2d.Template{Width: xl.Width, Height: xl.Height, Label: xp.Label}
			t.Features = make([]line2d.Feature, len(xl.Features))
			for j, xf := range xl.Features {
				t.Features[j] = line2d.Feature{X: xf.X, Y: xf.Y, Orientation: line2d.FromIndex(xf.Orientation), Channel: xf.Channel}
			}
			if xl.Mask != "" {
				data, err := base64.StdEncoding.DecodeString(xl.Mask)
				if err != nil {
					return nil, fmt.Errorf("%w: mask: %v", ErrFormat, err)
				}
				if t.Mask, err = decodeMask(data, t.Width, t.Height); err != nil {
					return nil, err
				}
			}
			p.Levels = append(p.Levels, t)
		}
		lib.Add(p)
	}
	if err := lib.Validate(); err != nil {
		return nil, err
	}
	return lib, nil
}
