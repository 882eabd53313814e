package imageapi

import "fmt"

// ImageData is the storage origin of an image's content. Exactly one of
// three variants is used:
//
//   - RawImageData: pixel bytes in a shared immutable buffer
//   - BlobImageData: a vector command stream rasterized on demand
//   - ExternalImageData: a reference to host-owned memory or texture
//
// The set is closed: only this package can add variants. Consumers switch
// over the concrete types and panic in the default branch, so adding a
// variant forces every classification site to be revisited.
//
// A key's data only changes through an explicit update that replaces the
// whole value; ImageData values are never mutated in place.
type ImageData interface {
	imageData()
}

// SharedBuffer is an immutable byte buffer shared by any number of owners.
// It is safe for concurrent reads. Nobody may write to the slice returned
// by Bytes.
type SharedBuffer struct {
	bytes []byte
}

// NewSharedBuffer takes ownership of b. The caller must not modify b
// afterwards.
func NewSharedBuffer(b []byte) *SharedBuffer {
	return &SharedBuffer{bytes: b}
}

// Bytes returns the buffer content. The result must be treated as read-only.
func (b *SharedBuffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.bytes
}

// Len returns the buffer length in bytes.
func (b *SharedBuffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.bytes)
}

// RawImageData holds pixels directly.
type RawImageData struct {
	Buffer *SharedBuffer
}

// Bytes returns the pixel bytes.
func (d RawImageData) Bytes() []byte {
	return d.Buffer.Bytes()
}

// BlobImageData is a recorded command stream. It owns commands, not pixels.
type BlobImageData []byte

// ExternalImageType says what kind of host resource an external image is.
type ExternalImageType uint32

const (
	// ExternalTexture2DHandle is a GPU 2D texture handle.
	ExternalTexture2DHandle ExternalImageType = iota

	// ExternalTexture2DArrayHandle is a GPU 2D array texture handle.
	ExternalTexture2DArrayHandle

	// ExternalTextureRectHandle is a GPU rectangle texture handle.
	ExternalTextureRectHandle

	// ExternalTextureExternalHandle is a GPU external (sampler-external) texture handle.
	ExternalTextureExternalHandle

	// ExternalBuffer is a host memory buffer.
	ExternalBuffer
)

// IsValid reports whether t is one of the five external image types.
func (t ExternalImageType) IsValid() bool {
	return t <= ExternalBuffer
}

// String returns the type name.
func (t ExternalImageType) String() string {
	switch t {
	case ExternalTexture2DHandle:
		return "Texture2DHandle"
	case ExternalTexture2DArrayHandle:
		return "Texture2DArrayHandle"
	case ExternalTextureRectHandle:
		return "TextureRectHandle"
	case ExternalTextureExternalHandle:
		return "TextureExternalHandle"
	case ExternalBuffer:
		return "ExternalBuffer"
	default:
		return fmt.Sprintf("ExternalImageType(%d)", uint32(t))
	}
}

// ExternalImageData refers to an image whose memory the host owns.
// ChannelIndex tells apart the planes of a multi-plane source (such as
// video) that share one ID.
type ExternalImageData struct {
	ID           ExternalImageID   `json:"id"`
	ChannelIndex uint8             `json:"channel_index"`
	ImageType    ExternalImageType `json:"image_type"`
}

func (RawImageData) imageData()      {}
func (BlobImageData) imageData()     {}
func (ExternalImageData) imageData() {}

// NewImageData returns raw image data that takes ownership of bytes.
func NewImageData(bytes []byte) ImageData {
	return RawImageData{Buffer: NewSharedBuffer(bytes)}
}

// NewSharedImageData returns raw image data backed by a buffer that is
// already shared with another owner. No bytes are copied.
func NewSharedImageData(buf *SharedBuffer) ImageData {
	return RawImageData{Buffer: buf}
}

// NewBlobImageData returns blob image data for a command stream.
func NewBlobImageData(commands []byte) ImageData {
	return BlobImageData(commands)
}

// NewExternalImageData returns image data referring to a host resource.
func NewExternalImageData(id ExternalImageID, channel uint8, typ ExternalImageType) ImageData {
	return ExternalImageData{ID: id, ChannelIndex: channel, ImageType: typ}
}

// IsBlob reports whether d is blob data.
func IsBlob(d ImageData) bool {
	_, ok := d.(BlobImageData)
	return ok
}

// UsesTextureCache reports whether the pixels of d must be copied into the
// texture cache. Raw and blob data always are. External data is only when it
// is a host buffer; GPU texture handles are sampled directly.
func UsesTextureCache(d ImageData) bool {
	switch d := d.(type) {
	case RawImageData:
		return true
	case BlobImageData:
		return true
	case ExternalImageData:
		switch d.ImageType {
		case ExternalTexture2DHandle,
			ExternalTexture2DArrayHandle,
			ExternalTextureRectHandle,
			ExternalTextureExternalHandle:
			return false
		case ExternalBuffer:
			return true
		default:
			panic(fmt.Sprintf("imageapi: unclassified external image type %v", d.ImageType))
		}
	default:
		panic(fmt.Sprintf("imageapi: unknown image data variant %T", d))
	}
}
