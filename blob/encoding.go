package blob

import (
	"encoding/binary"
	"image/color"
	"math"

	"github.com/gogpu/imageapi"
)

// Magic and Version open every command stream.
const (
	Magic   = "GGBL"
	Version = 1

	headerSize = len(Magic) + 1
)

// Tag is the one-byte identifier of a command. Tags are grouped by their
// high nibble:
//
//	0x0X: state
//	0x1X: path construction
//	0x2X: fills
//	0x3X: text
//	0x4X: images
type Tag byte

// Each tag has a fixed little-endian payload, documented below.
const (
	// TagSetColor sets the fill color.
	// Data: 4 uint8 [r, g, b, a], not premultiplied.
	TagSetColor Tag = 0x01

	// TagMoveTo starts a new subpath.
	// Data: 2 float32 [x, y]
	TagMoveTo Tag = 0x11

	// TagLineTo adds a line.
	// Data: 2 float32 [x, y]
	TagLineTo Tag = 0x12

	// TagQuadTo adds a quadratic Bezier curve.
	// Data: 4 float32 [cx, cy, x, y]
	TagQuadTo Tag = 0x13

	// TagCubicTo adds a cubic Bezier curve.
	// Data: 6 float32 [c1x, c1y, c2x, c2y, x, y]
	TagCubicTo Tag = 0x14

	// TagClosePath closes the current subpath.
	// Data: none
	TagClosePath Tag = 0x16

	// TagFill fills the current path with the nonzero rule and starts a
	// new, empty path.
	// Data: none
	TagFill Tag = 0x20

	// TagFillRect fills an axis-aligned rectangle.
	// Data: 4 float32 [x, y, w, h]
	TagFillRect Tag = 0x21

	// TagGlyphs draws positioned glyphs.
	// Data: font ref (2x2 uint32 keys, float32 size), 2 float32 origin,
	// uint32 count, then count x (uint16 id, float32 dx, float32 dy).
	TagGlyphs Tag = 0x30

	// TagText draws a UTF-8 string, shaped at raster time.
	// Data: font ref, 2 float32 origin, uint32 length, then the bytes.
	TagText Tag = 0x31

	// TagImage draws a raw image resource with its top-left at the origin.
	// Data: 2 uint32 image key, 2 float32 origin.
	TagImage Tag = 0x40
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagSetColor:
		return "SetColor"
	case TagMoveTo:
		return "MoveTo"
	case TagLineTo:
		return "LineTo"
	case TagQuadTo:
		return "QuadTo"
	case TagCubicTo:
		return "CubicTo"
	case TagClosePath:
		return "ClosePath"
	case TagFill:
		return "Fill"
	case TagFillRect:
		return "FillRect"
	case TagGlyphs:
		return "Glyphs"
	case TagText:
		return "Text"
	case TagImage:
		return "Image"
	default:
		return "Unknown"
	}
}

// FontRef names the font used by a text command. Instance scopes the
// renderer's glyph cache, Font selects the font file and Size is in pixels
// per em.
type FontRef struct {
	Instance imageapi.FontInstanceKey
	Font     imageapi.FontKey
	Size     float32
}

// Glyph is one glyph of a Glyphs command, offset from the command origin.
type Glyph struct {
	ID     uint16
	DX, DY float32
}

// Builder records commands into a blob command stream.
//
// Builder is not safe for concurrent use.
type Builder struct {
	buf []byte
}

// NewBuilder returns a builder holding just the stream header.
func NewBuilder() *Builder {
	b := &Builder{}
	b.Reset()
	return b
}

// Reset discards all recorded commands.
func (b *Builder) Reset() {
	b.buf = append(b.buf[:0], Magic...)
	b.buf = append(b.buf, Version)
}

// Len returns the encoded size in bytes.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Finish returns the command stream. The builder must not be used again
// except through Reset, which starts a new buffer.
func (b *Builder) Finish() imageapi.BlobImageData {
	data := imageapi.BlobImageData(b.buf)
	b.buf = nil
	return data
}

// SetColor sets the color used by subsequent fills.
func (b *Builder) SetColor(c color.NRGBA) {
	b.buf = append(b.buf, byte(TagSetColor), c.R, c.G, c.B, c.A)
}

// MoveTo starts a new subpath at (x, y).
func (b *Builder) MoveTo(x, y float32) {
	b.tag(TagMoveTo)
	b.f32(x, y)
}

// LineTo adds a line to (x, y).
func (b *Builder) LineTo(x, y float32) {
	b.tag(TagLineTo)
	b.f32(x, y)
}

// QuadTo adds a quadratic curve through control point (cx, cy) to (x, y).
func (b *Builder) QuadTo(cx, cy, x, y float32) {
	b.tag(TagQuadTo)
	b.f32(cx, cy, x, y)
}

// CubicTo adds a cubic curve with control points (c1x, c1y) and (c2x, c2y).
func (b *Builder) CubicTo(c1x, c1y, c2x, c2y, x, y float32) {
	b.tag(TagCubicTo)
	b.f32(c1x, c1y, c2x, c2y, x, y)
}

// ClosePath closes the current subpath.
func (b *Builder) ClosePath() {
	b.tag(TagClosePath)
}

// Fill fills the current path and starts a new one.
func (b *Builder) Fill() {
	b.tag(TagFill)
}

// FillRect fills the rectangle at (x, y) of size w x h.
func (b *Builder) FillRect(x, y, w, h float32) {
	b.tag(TagFillRect)
	b.f32(x, y, w, h)
}

// Glyphs draws glyphs of font relative to the origin (x, y), which is on
// the baseline.
func (b *Builder) Glyphs(font FontRef, x, y float32, glyphs []Glyph) {
	b.tag(TagGlyphs)
	b.fontRef(font)
	b.f32(x, y)
	b.u32(uint32(len(glyphs))) //nolint:gosec // glyph runs are far below 4G entries
	for _, g := range glyphs {
		b.buf = binary.LittleEndian.AppendUint16(b.buf, g.ID)
		b.f32(g.DX, g.DY)
	}
}

// Text draws s with its baseline origin at (x, y).
func (b *Builder) Text(font FontRef, x, y float32, s string) {
	b.tag(TagText)
	b.fontRef(font)
	b.f32(x, y)
	b.u32(uint32(len(s))) //nolint:gosec // text runs are far below 4G bytes
	b.buf = append(b.buf, s...)
}

// Image draws the raw image registered under key at (x, y).
func (b *Builder) Image(key imageapi.ImageKey, x, y float32) {
	b.tag(TagImage)
	b.u32(uint32(key.Namespace), key.ID)
	b.f32(x, y)
}

func (b *Builder) tag(t Tag) {
	b.buf = append(b.buf, byte(t))
}

func (b *Builder) f32(vals ...float32) {
	for _, v := range vals {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, math.Float32bits(v))
	}
}

func (b *Builder) u32(vals ...uint32) {
	for _, v := range vals {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
	}
}

func (b *Builder) fontRef(f FontRef) {
	b.u32(uint32(f.Instance.Namespace), f.Instance.ID, uint32(f.Font.Namespace), f.Font.ID)
	b.f32(f.Size)
}
