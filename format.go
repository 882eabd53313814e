package imageapi

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ImageFormat is the pixel layout of an image. The numeric values are part
// of the wire format and must not change.
type ImageFormat uint32

const (
	// FormatR8 is a single 8-bit channel (1 byte per pixel).
	FormatR8 ImageFormat = 1

	// FormatBGRA8 is 8-bit BGRA with premultiplied alpha (4 bytes per pixel).
	FormatBGRA8 ImageFormat = 3

	// FormatRGBAF32 is four 32-bit float channels (16 bytes per pixel).
	FormatRGBAF32 ImageFormat = 4

	// FormatRG8 is two 8-bit channels (2 bytes per pixel).
	FormatRG8 ImageFormat = 5
)

// BytesPerPixel returns the size of one pixel in bytes.
//
// The mapping covers every format. It panics on a value outside the
// enumeration so that a new format cannot silently get a default size.
func (f ImageFormat) BytesPerPixel() uint32 {
	switch f {
	case FormatR8:
		return 1
	case FormatBGRA8:
		return 4
	case FormatRGBAF32:
		return 16
	case FormatRG8:
		return 2
	default:
		panic(fmt.Sprintf("imageapi: unknown image format %d", uint32(f)))
	}
}

// IsValid reports whether f is one of the enumerated formats.
func (f ImageFormat) IsValid() bool {
	switch f {
	case FormatR8, FormatBGRA8, FormatRGBAF32, FormatRG8:
		return true
	default:
		return false
	}
}

// TextureFormat returns the GPU texture format a backend allocates for f.
// It panics on an unknown format, like BytesPerPixel.
func (f ImageFormat) TextureFormat() gputypes.TextureFormat {
	switch f {
	case FormatR8:
		return gputypes.TextureFormatR8Unorm
	case FormatBGRA8:
		return gputypes.TextureFormatBGRA8Unorm
	case FormatRGBAF32:
		return gputypes.TextureFormatRGBA32Float
	case FormatRG8:
		return gputypes.TextureFormatRG8Unorm
	default:
		panic(fmt.Sprintf("imageapi: unknown image format %d", uint32(f)))
	}
}

// String returns the format name.
func (f ImageFormat) String() string {
	switch f {
	case FormatR8:
		return "R8"
	case FormatBGRA8:
		return "BGRA8"
	case FormatRGBAF32:
		return "RGBAF32"
	case FormatRG8:
		return "RG8"
	default:
		return fmt.Sprintf("ImageFormat(%d)", uint32(f))
	}
}

// ImageDescriptor describes the layout of a pixel buffer. Width and Height
// give the content extent, not the allocation size.
type ImageDescriptor struct {
	Format ImageFormat `json:"format"`
	Width  uint32      `json:"width"`
	Height uint32      `json:"height"`

	// Stride is the distance in bytes between two rows.
	// Zero means unset: rows are tightly packed.
	Stride uint32 `json:"stride,omitempty"`

	// Offset is the byte offset of the first pixel in the buffer.
	Offset uint32 `json:"offset"`

	// IsOpaque tells the renderer it may skip blending.
	IsOpaque bool `json:"is_opaque"`
}

// NewImageDescriptor returns a tightly packed descriptor with no offset.
func NewImageDescriptor(width, height uint32, format ImageFormat, isOpaque bool) ImageDescriptor {
	return ImageDescriptor{
		Format:   format,
		Width:    width,
		Height:   height,
		IsOpaque: isOpaque,
	}
}

// ComputeStride returns the effective row stride in bytes: the explicit
// stride if set, otherwise Width * BytesPerPixel.
func (d ImageDescriptor) ComputeStride() uint32 {
	if d.Stride != 0 {
		return d.Stride
	}
	return d.Width * d.Format.BytesPerPixel()
}

// ComputeTotalSize returns the number of bytes a buffer must hold to back
// this descriptor, including the leading offset.
func (d ImageDescriptor) ComputeTotalSize() uint64 {
	return uint64(d.Offset) + uint64(d.ComputeStride())*uint64(d.Height)
}

// Extent returns the descriptor size as a 2D GPU extent.
func (d ImageDescriptor) Extent() gputypes.Extent3D {
	return gputypes.NewExtent2D(d.Width, d.Height)
}
