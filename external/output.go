package external

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/imageapi"
)

// OutputHandoff drives an OutputImageHandler for one copy at a time.
type OutputHandoff struct {
	handler imageapi.OutputImageHandler
}

// NewOutputHandoff wraps handler.
func NewOutputHandoff(handler imageapi.OutputImageHandler) *OutputHandoff {
	return &OutputHandoff{handler: handler}
}

// Copy locks the destination of pipeline and calls fn to issue the copy.
// If the host has no destination ready, fn is not called and Copy reports
// false. Unlock follows only a successful Lock whose copy fn issued
// without error.
func (o *OutputHandoff) Copy(pipeline imageapi.PipelineID, fn func(imageapi.OutputTarget) error) (bool, error) {
	target, ok := o.handler.Lock(pipeline)
	if !ok {
		imageapi.Logger().Debug("external: no output destination", "pipeline", pipeline)
		return false, nil
	}
	if err := fn(target); err != nil {
		return false, fmt.Errorf("external: copy %v: %w", pipeline, err)
	}
	o.handler.Unlock(pipeline)
	return true, nil
}

type textureOutput struct {
	texture gpucontext.Texture
	handle  uint32
	locked  bool
	frames  uint64
}

// TextureOutputs is an imageapi.OutputImageHandler backed by gpucontext
// textures. Each pipeline has at most one destination; a locked
// destination is not handed out again until it is unlocked.
//
// TextureOutputs is safe for concurrent use.
type TextureOutputs struct {
	mu      sync.Mutex
	outputs map[imageapi.PipelineID]*textureOutput
}

var _ imageapi.OutputImageHandler = (*TextureOutputs)(nil)

// NewTextureOutputs returns an empty table.
func NewTextureOutputs() *TextureOutputs {
	return &TextureOutputs{outputs: make(map[imageapi.PipelineID]*textureOutput)}
}

// Register sets the destination of pipeline. handle is the native texture
// handle the renderer copies into.
func (t *TextureOutputs) Register(pipeline imageapi.PipelineID, tex gpucontext.Texture, handle uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if out, ok := t.outputs[pipeline]; ok && out.locked {
		return fmt.Errorf("external: register %v: %w", pipeline, ErrLocked)
	}
	t.outputs[pipeline] = &textureOutput{texture: tex, handle: handle}
	return nil
}

// Unregister removes the destination of pipeline.
func (t *TextureOutputs) Unregister(pipeline imageapi.PipelineID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	out, ok := t.outputs[pipeline]
	if !ok {
		return fmt.Errorf("external: unregister %v: %w", pipeline, imageapi.ErrNotRegistered)
	}
	if out.locked {
		return fmt.Errorf("external: unregister %v: %w", pipeline, ErrLocked)
	}
	delete(t.outputs, pipeline)
	return nil
}

// Lock hands out the destination of pipeline.
func (t *TextureOutputs) Lock(pipeline imageapi.PipelineID) (imageapi.OutputTarget, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out, ok := t.outputs[pipeline]
	if !ok || out.locked {
		return imageapi.OutputTarget{}, false
	}
	out.locked = true
	return imageapi.OutputTarget{
		Handle: out.handle,
		Size: gputypes.Extent3D{
			Width:              uint32(out.texture.Width()),  //nolint:gosec // texture sizes are positive
			Height:             uint32(out.texture.Height()), //nolint:gosec // texture sizes are positive
			DepthOrArrayLayers: 1,
		},
	}, true
}

// Unlock returns the destination of pipeline and counts a delivered frame.
func (t *TextureOutputs) Unlock(pipeline imageapi.PipelineID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if out, ok := t.outputs[pipeline]; ok && out.locked {
		out.locked = false
		out.frames++
	}
}

// Upload writes CPU pixels into the locked destination of pipeline, for
// backends that copy through host memory. The texture must implement
// gpucontext.TextureUpdater.
func (t *TextureOutputs) Upload(pipeline imageapi.PipelineID, pixels []byte) error {
	t.mu.Lock()
	out, ok := t.outputs[pipeline]
	locked := ok && out.locked
	t.mu.Unlock()

	switch {
	case !ok:
		return fmt.Errorf("external: upload %v: %w", pipeline, imageapi.ErrNotRegistered)
	case !locked:
		return fmt.Errorf("external: upload %v: destination not locked", pipeline)
	}
	up, ok := out.texture.(gpucontext.TextureUpdater)
	if !ok {
		return fmt.Errorf("external: upload %v: %w", pipeline, ErrNotUpdatable)
	}
	if err := up.UpdateData(pixels); err != nil {
		return fmt.Errorf("external: upload %v: %w", pipeline, err)
	}
	return nil
}

// Frames returns how many copies into pipeline's destination completed.
func (t *TextureOutputs) Frames(pipeline imageapi.PipelineID) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if out, ok := t.outputs[pipeline]; ok {
		return out.frames
	}
	return 0
}
