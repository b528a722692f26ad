package library

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ironsheep/line2d-mcp/internal/line2d"
)

// magic opens every binary library.
var magic = [4]byte{'L', '2', 'D', 'T'}

// maxMaskBytes bounds a stored mask so a corrupt length cannot exhaust
// memory.
const maxMaskBytes = 64 << 20

var order = binary.LittleEndian

type binHeader struct {
	Magic    [4]byte
	Version  uint16
	Pyramids uint32
}

type binPyramid struct {
	LabelLen uint16
	Ratio    uint16
	Levels   uint16
}

type binLevel struct {
	Width    uint32
	Height   uint32
	Features uint32
	MaskLen  uint32
}

type binFeature struct {
	X           int32
	Y           int32
	Orientation uint8
	Channel     uint8
}

// WriteBinary encodes the library in the compact binary format.
//
// # Layout
//
// All integers are little-endian.
//
//	header   magic "L2DT", version u16, pyramid count u32
//	pyramid  label length u16, ratio u16, level count u16, label bytes
//	level    width u32, height u32, feature count u32, mask length u32
//	feature  x i32, y i32, orientation bin u8, channel u8
//	mask     PNG bytes, present when mask length > 0
func (l *Library) WriteBinary(w io.Writer) error {
	bw := bufio.NewWriter(w)
	write := func(v any) error {
		if err := binary.Write(bw, order, v); err != nil {
			return fmt.Errorf("failed to write library: %w", err)
		}
		return nil
	}

	if err := write(binHeader{Magic: magic, Version: formatVersion, Pyramids: uint32(len(l.Pyramids))}); err != nil {
		return err
	}
	for _, p := range l.Pyramids {
		if len(p.Label) > 0xFFFF {
			return fmt.Errorf("label of %d bytes too long", len(p.Label))
		}
		if err := write(binPyramid{LabelLen: uint16(len(p.Label)), Ratio: uint16(p.Ratio), Levels: uint16(len(p.Levels))}); err != nil {
			return err
		}
		if err := write([]byte(p.Label)); err != nil {
			return err
		}
		for _, t := range p.Levels {
			var mask []byte
			if t.Mask != nil {
				var err error
				if mask, err = encodeMask(t.Mask); err != nil {
					return err
				}
			}
			hdr := binLevel{
				Width:    uint32(t.Width),
				Height:   uint32(t.Height),
				Features: uint32(len(t.Features)),
				MaskLen:  uint32(len(mask)),
			}
			if err := write(hdr); err != nil {
				return err
			}
			feats := make([]binFeature, len(t.Features))
			for i, f := range t.Features {
				feats[i] = binFeature{X: int32(f.X), Y: int32(f.Y), Orientation: uint8(f.Orientation.Index()), Channel: f.Channel}
			}
			if err := write(feats); err != nil {
				return err
			}
			if err := write(mask); err != nil {
				return err
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write library: %w", err)
	}
	return nil
}

// ReadBinary decodes a library written by WriteBinary and validates it.
func ReadBinary(r io.Reader) (*Library, error) {
	br := bufio.NewReader(r)
	read := func(v any) error {
		if err := binary.Read(br, order, v); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return nil
	}

	var hdr binHeader
	if err := read(&hdr); err != nil {
		return nil, err
	}
	if hdr.Magic != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, hdr.Magic[:])
	}
	if hdr.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, hdr.Version)
	}

	lib := New()
	for i := uint32(0); i < hdr.Pyramids; i++ {
		var bp binPyramid
		if err := read(&bp); err != nil {
			return nil, err
		}
		label := make([]byte, bp.LabelLen)
		if err := read(label); err != nil {
			return nil, err
		}
		p := &line2d.TemplatePyramid{Label: string(label), Ratio: int(bp.Ratio)}

		for li := 0; li < int(bp.Levels); li++ {
			var bl binLevel
			if err := read(&bl); err != nil {
				return nil, err
			}
			if bl.Features > line2d.MaxFeatures {
				return nil, fmt.Errorf("%w: level %d has %d features, limit %d", ErrFormat, li, bl.Features, line2d.MaxFeatures)
			}
			if bl.MaskLen > maxMaskBytes {
				return nil, fmt.Errorf("%w: mask of %d bytes", ErrFormat, bl.MaskLen)
			}

			feats := make([]binFeature, bl.Features)
			if err := read(feats); err != nil {
				return nil, err
			}
			t := &line2d.Template{Width: int(bl.Width), Height: int(bl.Height), Label: p.Label}
			t.Features = make([]line2d.Feature, len(feats))
			for j, f := range feats {
				t.Features[j] = line2d.Feature{X: int(f.X), Y: int(f.Y), Orientation: line2d.FromIndex(int(f.Orientation)), Channel: f.Channel}
			}
			if bl.MaskLen > 0 {
				data := make([]byte, bl.MaskLen)
				if err := read(data); err != nil {
					return nil, err
				}
				var err error
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
