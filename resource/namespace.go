package resource

import (
	"sync/atomic"

	"github.com/gogpu/imageapi"
)

// Namespace hands out keys within one IDNamespace. Ids start at 1, so the
// dummy key is never produced. Namespace is safe for concurrent use.
type Namespace struct {
	ns        imageapi.IDNamespace
	images    atomic.Uint32
	fonts     atomic.Uint32
	instances atomic.Uint32
}

// NewNamespace returns an allocator for ns.
func NewNamespace(ns imageapi.IDNamespace) *Namespace {
	return &Namespace{ns: ns}
}

// ID returns the namespace keys are allocated in.
func (n *Namespace) ID() imageapi.IDNamespace {
	return n.ns
}

// ImageKey returns a fresh image key.
func (n *Namespace) ImageKey() imageapi.ImageKey {
	return imageapi.NewImageKey(n.ns, n.images.Add(1))
}

// FontKey returns a fresh font key.
func (n *Namespace) FontKey() imageapi.FontKey {
	return imageapi.NewFontKey(n.ns, n.fonts.Add(1))
}

// FontInstanceKey returns a fresh font instance key.
func (n *Namespace) FontInstanceKey() imageapi.FontInstanceKey {
	return imageapi.NewFontInstanceKey(n.ns, n.instances.Add(1))
}
