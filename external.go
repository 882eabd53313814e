package imageapi

import "github.com/gogpu/gputypes"

// ExternalImageSource is where the pixels of a locked external image live.
// The set is closed: RawDataSource, NativeTextureSource or InvalidSource.
type ExternalImageSource interface {
	externalImageSource()
}

// RawDataSource is a host buffer. It is borrowed: the renderer must not
// keep it past the matching Unlock.
type RawDataSource []byte

// NativeTextureSource is a GPU texture handle interpreted by the backend.
type NativeTextureSource uint32

// InvalidSource reports that the lock failed softly. The renderer treats
// the image as absent for this frame.
type InvalidSource struct{}

func (RawDataSource) externalImageSource()       {}
func (NativeTextureSource) externalImageSource() {}
func (InvalidSource) externalImageSource()       {}

// ExternalImage is what the host returns from a lock. The UV bounds are in
// texel space, not normalized, so that atlas-backed sources can address a
// sub-region.
type ExternalImage struct {
	U0, V0 float32
	U1, V1 float32
	Source ExternalImageSource
}

// ExternalImageHandler is implemented by the host to lend external images.
//
// Lock grants read-only access until the matching Unlock with the same id
// and channel. The host must not change the content in between, and the
// renderer must not read it afterwards.
//
// The host must also not free or reuse an id while a frame that references
// it may still be in flight. That is tracked by the host through frame
// epochs; this interface only defines the lock and unlock boundaries.
type ExternalImageHandler interface {
	Lock(id ExternalImageID, channel uint8) ExternalImage
	Unlock(id ExternalImageID, channel uint8)
}

// OutputTarget is the destination texture for a pipeline's output.
type OutputTarget struct {
	// Handle is the native texture handle the renderer copies into.
	Handle uint32

	// Size is the texture size.
	Size gputypes.Extent3D
}

// OutputImageHandler is implemented by the host to receive the rendered
// output of a pipeline in one of its own textures.
//
// Lock returns false when the host has no destination ready; the renderer
// then skips the copy for this frame. Unlock is called if and only if Lock
// returned true and the copy commands were issued.
type OutputImageHandler interface {
	Lock(pipeline PipelineID) (OutputTarget, bool)
	Unlock(pipeline PipelineID)
}
