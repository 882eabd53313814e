package external

import (
	"errors"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/imageapi"
)

// recordingHandler counts calls and returns a fixed image per id.
type recordingHandler struct {
	mu      sync.Mutex
	images  map[imageapi.ExternalImageID]imageapi.ExternalImage
	locks   int
	unlocks int
}

func (h *recordingHandler) Lock(id imageapi.ExternalImageID, _ uint8) imageapi.ExternalImage {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.locks++
	if img, ok := h.images[id]; ok {
		return img
	}
	return imageapi.ExternalImage{Source: imageapi.InvalidSource{}}
}

func (h *recordingHandler) Unlock(imageapi.ExternalImageID, uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unlocks++
}

func TestHandoffLockUnlock(t *testing.T) {
	h := &recordingHandler{images: map[imageapi.ExternalImageID]imageapi.ExternalImage{
		7: {U1: 4, V1: 2, Source: imageapi.RawDataSource{1, 2, 3}},
	}}
	ho := NewHandoff(h)

	l, err := ho.Lock(7, 0)
	require.NoError(t, err)
	assert.Equal(t, imageapi.ExternalImageID(7), l.ID())

	view, err := l.View()
	require.NoError(t, err)
	assert.Equal(t, float32(4), view.U1)

	b, err := l.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)

	require.NoError(t, l.Unlock())
	assert.Equal(t, 1, h.unlocks)

	_, err = l.View()
	assert.ErrorIs(t, err, ErrAlreadyUnlocked)
	assert.ErrorIs(t, l.Unlock(), ErrAlreadyUnlocked)
	assert.Equal(t, 1, h.unlocks, "second unlock must not reach the host")
}

func TestHandoffInvalidSource(t *testing.T) {
	h := &recordingHandler{}
	ho := NewHandoff(h)

	_, err := ho.Lock(3, 1)
	assert.ErrorIs(t, err, ErrImageAbsent)
	assert.Equal(t, 1, h.locks)
	assert.Equal(t, 1, h.unlocks, "invalid source is still unlocked")
	assert.Empty(t, ho.Outstanding())
}

func TestHandoffNativeTexture(t *testing.T) {
	h := &recordingHandler{images: map[imageapi.ExternalImageID]imageapi.ExternalImage{
		1: {Source: imageapi.NativeTextureSource(42)},
	}}
	l, err := NewHandoff(h).Lock(1, 0)
	require.NoError(t, err)

	_, err = l.Bytes()
	assert.ErrorIs(t, err, ErrNotRaw)
	require.NoError(t, l.Unlock())
}

func TestHandoffUnlockAll(t *testing.T) {
	h := &recordingHandler{images: map[imageapi.ExternalImageID]imageapi.ExternalImage{
		1: {Source: imageapi.RawDataSource{}},
		2: {Source: imageapi.NativeTextureSource(5)},
	}}
	ho := NewHandoff(h)

	a, err := ho.Lock(2, 0)
	require.NoError(t, err)
	_, err = ho.Lock(1, 1)
	require.NoError(t, err)
	_, err = ho.Lock(1, 0)
	require.NoError(t, err)
	require.NoError(t, a.Unlock())

	out := ho.Outstanding()
	require.Len(t, out, 2)
	assert.Equal(t, uint8(0), out[0].Channel())
	assert.Equal(t, uint8(1), out[1].Channel())

	assert.Equal(t, 2, ho.UnlockAll())
	assert.Empty(t, ho.Outstanding())
	assert.Equal(t, h.locks, h.unlocks)
}

func TestBufferHandler(t *testing.T) {
	b := NewBufferHandler()
	require.NoError(t, b.Register(1, 0, []byte{9, 9, 9, 9}, 2, 2))
	assert.ErrorIs(t, b.Register(1, 0, nil, 0, 0), imageapi.ErrAlreadyRegistered)

	ho := NewHandoff(b)
	l, err := ho.Lock(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Locks(1, 0))

	view, err := l.View()
	require.NoError(t, err)
	assert.Equal(t, imageapi.ExternalImage{U1: 2, V1: 2, Source: imageapi.RawDataSource{9, 9, 9, 9}}, view)

	assert.ErrorIs(t, b.Replace(1, 0, []byte{1}, 1, 1), ErrLocked)
	assert.ErrorIs(t, b.Remove(1, 0), ErrLocked)

	require.NoError(t, l.Unlock())
	assert.Zero(t, b.Locks(1, 0))

	require.NoError(t, b.Replace(1, 0, []byte{1}, 1, 1))
	require.NoError(t, b.Remove(1, 0))
	assert.ErrorIs(t, b.Remove(1, 0), imageapi.ErrNotRegistered)

	_, err = ho.Lock(1, 0)
	assert.ErrorIs(t, err, ErrImageAbsent)
}

// recordingOutput is an OutputImageHandler with a switchable destination.
type recordingOutput struct {
	ready   bool
	locks   int
	unlocks int
}

func (o *recordingOutput) Lock(imageapi.PipelineID) (imageapi.OutputTarget, bool) {
	o.locks++
	return imageapi.OutputTarget{Handle: 11}, o.ready
}

func (o *recordingOutput) Unlock(imageapi.PipelineID) {
	o.unlocks++
}

func TestOutputHandoffCopy(t *testing.T) {
	pipeline := imageapi.PipelineID{Namespace: 1, ID: 1}

	t.Run("no destination", func(t *testing.T) {
		h := &recordingOutput{}
		called := false
		copied, err := NewOutputHandoff(h).Copy(pipeline, func(imageapi.OutputTarget) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.False(t, copied)
		assert.False(t, called)
		assert.Zero(t, h.unlocks, "no unlock after a failed lock")
	})

	t.Run("copied", func(t *testing.T) {
		h := &recordingOutput{ready: true}
		var got imageapi.OutputTarget
		copied, err := NewOutputHandoff(h).Copy(pipeline, func(target imageapi.OutputTarget) error {
			got = target
			return nil
		})
		require.NoError(t, err)
		assert.True(t, copied)
		assert.Equal(t, uint32(11), got.Handle)
		assert.Equal(t, 1, h.unlocks)
	})

	t.Run("copy failed", func(t *testing.T) {
		h := &recordingOutput{ready: true}
		boom := errors.New("boom")
		copied, err := NewOutputHandoff(h).Copy(pipeline, func(imageapi.OutputTarget) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.False(t, copied)
		assert.Zero(t, h.unlocks)
	})
}

type fakeTexture struct {
	width, height int
	data          []byte
}

func (f *fakeTexture) Width() int  { return f.width }
func (f *fakeTexture) Height() int { return f.height }

func (f *fakeTexture) UpdateData(data []byte) error {
	f.data = append(f.data[:0], data...)
	return nil
}

// sizedTexture has no upload path.
type sizedTexture struct{}

func (sizedTexture) Width() int  { return 1 }
func (sizedTexture) Height() int { return 1 }

func TestTextureOutputs(t *testing.T) {
	pipeline := imageapi.PipelineID{Namespace: 2, ID: 5}
	tex := &fakeTexture{width: 64, height: 32}

	outputs := NewTextureOutputs()
	require.NoError(t, outputs.Register(pipeline, tex, 77))

	copied, err := NewOutputHandoff(outputs).Copy(pipeline, func(target imageapi.OutputTarget) error {
		assert.Equal(t, uint32(77), target.Handle)
		assert.Equal(t, gputypes.Extent3D{Width: 64, Height: 32, DepthOrArrayLayers: 1}, target.Size)

		_, again := outputs.Lock(pipeline)
		assert.False(t, again, "destination handed out twice")
		assert.ErrorIs(t, outputs.Register(pipeline, tex, 1), ErrLocked)

		return outputs.Upload(pipeline, []byte{1, 2, 3, 4})
	})
	require.NoError(t, err)
	assert.True(t, copied)
	assert.Equal(t, []byte{1, 2, 3, 4}, tex.data)
	assert.Equal(t, uint64(1), outputs.Frames(pipeline))

	assert.Error(t, outputs.Upload(pipeline, nil), "upload needs a lock")

	other := imageapi.PipelineID{Namespace: 2, ID: 6}
	require.NoError(t, outputs.Register(other, sizedTexture{}, 1))
	_, ok := outputs.Lock(other)
	require.True(t, ok)
	assert.ErrorIs(t, outputs.Upload(other, nil), ErrNotUpdatable)
	outputs.Unlock(other)

	require.NoError(t, outputs.Unregister(pipeline))
	assert.ErrorIs(t, outputs.Unregister(pipeline), imageapi.ErrNotRegistered)
	_, ok = outputs.Lock(pipeline)
	assert.False(t, ok)
}
