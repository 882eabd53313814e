package blob

import (
	"encoding/binary"
	"fmt"
	"image/color"
	"math"
	"unicode/utf8"

	"github.com/gogpu/imageapi"
)

// Command is one decoded command. Only the fields used by Tag are set.
type Command struct {
	Tag Tag

	// Color is set for TagSetColor.
	Color color.NRGBA

	// Points holds the coordinates of path commands: the end point for
	// MoveTo and LineTo, control then end for QuadTo, two controls then
	// end for CubicTo. For FillRect, Points[0] is the origin and Points[1]
	// the size.
	Points [3]imageapi.DevicePoint

	// Origin is set for TagGlyphs, TagText and TagImage.
	Origin imageapi.DevicePoint

	// Font is set for TagGlyphs and TagText.
	Font FontRef

	// Glyphs is set for TagGlyphs.
	Glyphs []Glyph

	// Text is set for TagText.
	Text string

	// Image is set for TagImage.
	Image imageapi.ImageKey
}

// Decoder iterates over the commands of a blob stream.
//
//	dec, err := NewDecoder(data)
//	if err != nil {
//	    return err
//	}
//	for dec.Next() {
//	    cmd := dec.Command()
//	    ...
//	}
//	if err := dec.Err(); err != nil {
//	    return err
//	}
//
// Every error is a *imageapi.BlobImageError of kind InvalidData.
type Decoder struct {
	data []byte
	pos  int
	cmd  Command
	err  error
}

// NewDecoder checks the stream header and returns a decoder positioned
// before the first command.
func NewDecoder(data imageapi.BlobImageData) (*Decoder, error) {
	if len(data) < headerSize || string(data[:len(Magic)]) != Magic {
		return nil, invalidData("missing stream header")
	}
	if v := data[len(Magic)]; v != Version {
		return nil, invalidData(fmt.Sprintf("unsupported stream version %d", v))
	}
	return &Decoder{data: data, pos: headerSize}, nil
}

// Next decodes the next command. It returns false at the end of the stream
// or on the first error.
func (d *Decoder) Next() bool {
	if d.err != nil || d.pos >= len(d.data) {
		return false
	}

	start := d.pos
	tag := Tag(d.data[d.pos])
	d.pos++
	d.cmd = Command{Tag: tag}

	switch tag {
	case TagSetColor:
		if b := d.take(4); b != nil {
			d.cmd.Color = color.NRGBA{R: b[0], G: b[1], B: b[2], A: b[3]}
		}
	case TagMoveTo, TagLineTo:
		d.points(1)
	case TagQuadTo:
		d.points(2)
	case TagCubicTo:
		d.points(3)
	case TagClosePath, TagFill:
	case TagFillRect:
		d.points(2)
		if d.err == nil && (d.cmd.Points[1].X < 0 || d.cmd.Points[1].Y < 0) {
			d.fail(start, "negative rectangle size")
		}
	case TagGlyphs:
		d.fontRef()
		d.cmd.Origin = d.point()
		d.glyphs(start)
	case TagText:
		d.fontRef()
		d.cmd.Origin = d.point()
		n := d.u32()
		if b := d.take(int(n)); b != nil {
			if !utf8.Valid(b) {
				d.fail(start, "text is not valid UTF-8")
			}
			d.cmd.Text = string(b)
		}
	case TagImage:
		ns, id := d.u32(), d.u32()
		d.cmd.Image = imageapi.NewImageKey(imageapi.IDNamespace(ns), id)
		d.cmd.Origin = d.point()
	default:
		d.fail(start, fmt.Sprintf("unknown tag 0x%02x", byte(tag)))
	}

	return d.err == nil
}

// Command returns the command decoded by the last successful Next.
func (d *Decoder) Command() Command {
	return d.cmd
}

// Err returns the first decoding error, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Decode decodes a whole stream. A stream is used either completely or not
// at all, so a malformed command anywhere rejects the stream.
func Decode(data imageapi.BlobImageData) ([]Command, error) {
	dec, err := NewDecoder(data)
	if err != nil {
		return nil, err
	}
	var cmds []Command
	for dec.Next() {
		cmds = append(cmds, dec.Command())
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return cmds, nil
}

// Validate reports whether data is a well-formed command stream.
func Validate(data imageapi.BlobImageData) error {
	_, err := Decode(data)
	return err
}

// Dependencies returns the fonts and images a stream refers to, each
// listed once in order of first use.
func Dependencies(data imageapi.BlobImageData) ([]imageapi.FontKey, []imageapi.ImageKey, error) {
	cmds, err := Decode(data)
	if err != nil {
		return nil, nil, err
	}

	var fonts []imageapi.FontKey
	var images []imageapi.ImageKey
	seenFonts := map[imageapi.FontKey]bool{}
	seenImages := map[imageapi.ImageKey]bool{}

	for _, cmd := range cmds {
		switch cmd.Tag {
		case TagGlyphs, TagText:
			if !seenFonts[cmd.Font.Font] {
				seenFonts[cmd.Font.Font] = true
				fonts = append(fonts, cmd.Font.Font)
			}
		case TagImage:
			if !seenImages[cmd.Image] {
				seenImages[cmd.Image] = true
				images = append(images, cmd.Image)
			}
		}
	}
	return fonts, images, nil
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.data)-d.pos < n {
		d.fail(d.pos, "truncated command")
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *Decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) f32() float32 {
	at := d.pos
	v := math.Float32frombits(d.u32())
	if d.err == nil && (math.IsNaN(float64(v)) || math.IsInf(float64(v), 0)) {
		d.fail(at, "non-finite coordinate")
	}
	return v
}

func (d *Decoder) point() imageapi.DevicePoint {
	x := d.f32()
	y := d.f32()
	return imageapi.DevicePoint{X: x, Y: y}
}

func (d *Decoder) points(n int) {
	for i := range n {
		d.cmd.Points[i] = d.point()
	}
}

func (d *Decoder) fontRef() {
	ins, iid := d.u32(), d.u32()
	fns, fid := d.u32(), d.u32()
	d.cmd.Font = FontRef{
		Instance: imageapi.NewFontInstanceKey(imageapi.IDNamespace(ins), iid),
		Font:     imageapi.NewFontKey(imageapi.IDNamespace(fns), fid),
		Size:     d.f32(),
	}
	if d.err == nil && d.cmd.Font.Size <= 0 {
		d.fail(d.pos, "font size must be positive")
	}
}

// glyphRecordSize is uint16 id + 2 float32 offsets.
const glyphRecordSize = 2 + 4 + 4

func (d *Decoder) glyphs(start int) {
	n := d.u32()
	if d.err != nil {
		return
	}
	if uint64(n)*glyphRecordSize > uint64(len(d.data)-d.pos) {
		d.fail(start, "glyph count exceeds stream")
		return
	}
	d.cmd.Glyphs = make([]Glyph, n)
	for i := range d.cmd.Glyphs {
		b := d.take(2)
		if b == nil {
			return
		}
		d.cmd.Glyphs[i] = Glyph{ID: binary.LittleEndian.Uint16(b), DX: d.f32(), DY: d.f32()}
	}
}

func (d *Decoder) fail(offset int, msg string) {
	if d.err == nil {
		d.err = invalidData(fmt.Sprintf("%s at byte %d", msg, offset))
	}
}

func invalidData(msg string) error {
	return imageapi.NewBlobError(imageapi.BlobErrorInvalidData, msg)
}
