package imageapi

import "fmt"

// IDNamespace separates the identifiers allocated by different API clients.
// Namespace 0 is reserved for the dummy key.
type IDNamespace uint32

// ImageKey is the stable identity of one image resource, independent of
// where its content is stored. Keys are unique per (Namespace, ID).
type ImageKey struct {
	Namespace IDNamespace `json:"namespace"`
	ID        uint32      `json:"id"`
}

// NewImageKey returns the key for id within namespace ns.
func NewImageKey(ns IDNamespace, id uint32) ImageKey {
	return ImageKey{Namespace: ns, ID: id}
}

// DummyImageKey returns the key that means "no image". It is never handed
// out for a real allocation.
func DummyImageKey() ImageKey {
	return ImageKey{}
}

// IsDummy reports whether k is the dummy key.
func (k ImageKey) IsDummy() bool {
	return k == ImageKey{}
}

func (k ImageKey) String() string {
	return fmt.Sprintf("ImageKey(%d, %d)", k.Namespace, k.ID)
}

// ExternalImageID identifies a host-owned image. The host guarantees
// uniqueness; it is not checked here.
type ExternalImageID uint64

func (id ExternalImageID) String() string {
	return fmt.Sprintf("ExternalImageID(%d)", uint64(id))
}

// FontKey identifies a font file registered with the resource storage.
type FontKey struct {
	Namespace IDNamespace `json:"namespace"`
	ID        uint32      `json:"id"`
}

// NewFontKey returns the key for id within namespace ns.
func NewFontKey(ns IDNamespace, id uint32) FontKey {
	return FontKey{Namespace: ns, ID: id}
}

func (k FontKey) String() string {
	return fmt.Sprintf("FontKey(%d, %d)", k.Namespace, k.ID)
}

// FontInstanceKey identifies one sized instance of a font.
type FontInstanceKey struct {
	Namespace IDNamespace `json:"namespace"`
	ID        uint32      `json:"id"`
}

// NewFontInstanceKey returns the key for id within namespace ns.
func NewFontInstanceKey(ns IDNamespace, id uint32) FontInstanceKey {
	return FontInstanceKey{Namespace: ns, ID: id}
}

func (k FontInstanceKey) String() string {
	return fmt.Sprintf("FontInstanceKey(%d, %d)", k.Namespace, k.ID)
}

// FontTemplate is the raw content of a font file. Index selects a face
// inside a font collection and is 0 for single-face files.
//
// Bytes are shared with the font storage and must not be modified.
type FontTemplate struct {
	Bytes []byte `json:"bytes"`
	Index uint32 `json:"index"`
}

// PipelineID identifies a rendering pipeline whose output can be copied
// to a host texture.
type PipelineID struct {
	Namespace IDNamespace `json:"namespace"`
	ID        uint32      `json:"id"`
}

func (p PipelineID) String() string {
	return fmt.Sprintf("PipelineID(%d, %d)", p.Namespace, p.ID)
}
