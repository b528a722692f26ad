package library

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ironsheep/line2d-mcp/internal/line2d"
)

// The msgpack layout mirrors the XML one with short keys. Masks are kept as
// raw PNG bytes since msgpack carries binary natively.

type mpLibrary struct {
	Version  int         `msgpack:"v"`
	Pyramids []mpPyramid `msgpack:"p"`
}

type mpPyramid struct {
	Label  string    `msgpack:"label"`
	Ratio  int       `msgpack:"ratio"`
	Levels []mpLevel `msgpack:"levels"`
}

type mpLevel struct {
	Width    int         `msgpack:"w"`
	Height   int         `msgpack:"h"`
	Features []mpFeature `msgpack:"f"`
	Mask     []byte      `msgpack:"mask,omitempty"`
}

// mpFeature is encoded as a four element array.
type mpFeature struct {
	_msgpack    struct{} `msgpack:",as_array"`
	X           int
	Y           int
	Orientation uint8
	Channel     uint8
}

// WriteMsgpack encodes the library as a single msgpack document.
func (l *Library) WriteMsgpack(w io.Writer) error {
	doc := mpLibrary{Version: formatVersion}
	for _, p := range l.Pyramids {
		mp := mpPyramid{Label: p.Label, Ratio: p.Ratio}
		for _, t := range p.Levels {
			ml := mpLevel{Width: t.Width, Height: t.Height}
			ml.Features = make([]mpFeature, len(t.Features))
			for j, f := range t.Features {
				ml.Features[j] = mpFeature{X: f.X, Y: f.Y, Orientation: uint8(f.Orientation.Index()), Channel: f.Channel}
			}
			if t.Mask != nil {
				data, err := encodeMask(t.Mask)
				if err != nil {
					return err
				}
				ml.Mask = data
			}
			mp.Levels = append(mp.Levels, ml)
		}
		doc.Pyramids = append(doc.Pyramids, mp)
	}

	if err := msgpack.NewEncoder(w).Encode(&doc); err != nil {
		return fmt.Errorf("failed to write library: %w", err)
	}
	return nil
}

// ReadMsgpack decodes a library written by WriteMsgpack and validates it.
func ReadMsgpack(r io.Reader) (*Library, error) {
	var doc mpLibrary
	if err := msgpack.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, doc.Version)
	}

	lib := New()
	for _, mp := range doc.Pyramids {
		p := &line2d.TemplatePyramid{Label: mp.Label, Ratio: mp.Ratio}
		for _, ml := range mp.Levels {
			t := &line2d.Template{Width: ml.Width, Height: ml.Height, Label: mp.Label}
			t.Features = make([]line2d.Feature, len(ml.Features))
			for j, mf := range ml.Features {
				t.Features[j] = line2d.Feature{X: mf.X, Y: mf.Y, Orientation: line2d.FromIndex(int(mf.Orientation)), Channel: mf.Channel}
			}
			if len(ml.Mask) > 0 {
				var err error
				if t.Mask, err = decodeMask(ml.Mask, t.Width, t.Height); err != nil {
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
