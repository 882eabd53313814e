package resource

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/gogpu/imageapi"
	"github.com/gogpu/imageapi/blob"
)

func TestNamespace(t *testing.T) {
	ns := NewNamespace(4)
	assert.Equal(t, imageapi.IDNamespace(4), ns.ID())

	first := ns.ImageKey()
	assert.Equal(t, imageapi.NewImageKey(4, 1), first)
	assert.False(t, first.IsDummy())
	assert.Equal(t, imageapi.NewImageKey(4, 2), ns.ImageKey())
	assert.Equal(t, imageapi.NewFontKey(4, 1), ns.FontKey())
	assert.Equal(t, imageapi.NewFontInstanceKey(4, 1), ns.FontInstanceKey())

	zero := NewNamespace(0)
	assert.False(t, zero.ImageKey().IsDummy(), "dummy key is never allocated")
}

func TestNamespaceConcurrent(t *testing.T) {
	ns := NewNamespace(1)
	var mu sync.Mutex
	seen := map[imageapi.ImageKey]bool{}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				k := ns.ImageKey()
				mu.Lock()
				seen[k] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestStoreImages(t *testing.T) {
	s := NewStore()
	key := imageapi.NewImageKey(1, 1)
	desc := imageapi.NewImageDescriptor(2, 2, imageapi.FormatR8, false)

	require.NoError(t, s.AddImage(key, desc, imageapi.NewImageData([]byte{1, 2, 3, 4})))
	assert.ErrorIs(t, s.AddImage(key, desc, imageapi.NewImageData([]byte{1, 2, 3, 4})), imageapi.ErrAlreadyRegistered)

	data, got, ok := s.Image(key)
	require.True(t, ok)
	assert.Equal(t, desc, got)
	assert.Equal(t, []byte{1, 2, 3, 4}, data.(imageapi.RawImageData).Bytes())

	ext := imageapi.NewExternalImageData(9, 0, imageapi.ExternalTexture2DHandle)
	require.NoError(t, s.UpdateImage(key, desc, ext))
	data, _, _ = s.Image(key)
	assert.Equal(t, ext, data)

	require.NoError(t, s.DeleteImage(key))
	_, _, ok = s.Image(key)
	assert.False(t, ok)
	assert.ErrorIs(t, s.DeleteImage(key), imageapi.ErrNotRegistered)
	assert.ErrorIs(t, s.UpdateImage(key, desc, ext), imageapi.ErrNotRegistered)
}

func TestStoreRejectsShortBuffer(t *testing.T) {
	s := NewStore()
	desc := imageapi.NewImageDescriptor(4, 4, imageapi.FormatBGRA8, true)
	err := s.AddImage(imageapi.NewImageKey(1, 1), desc, imageapi.NewImageData(make([]byte, 63)))
	assert.ErrorIs(t, err, ErrShortBuffer)
	assert.Zero(t, s.Len())
}

func TestStoreFonts(t *testing.T) {
	s := NewStore()
	font := imageapi.NewFontKey(1, 1)
	inst := imageapi.NewFontInstanceKey(1, 1)

	assert.ErrorIs(t, s.AddFontInstance(inst, font, 12), imageapi.ErrNotRegistered)

	require.NoError(t, s.AddFont(font, imageapi.FontTemplate{Bytes: []byte("ttf")}))
	require.NoError(t, s.AddFontInstance(inst, font, 12))

	tmpl, ok := s.FontData(font)
	require.True(t, ok)
	assert.Equal(t, []byte("ttf"), tmpl.Bytes)

	fi, ok := s.FontInstance(inst)
	require.True(t, ok)
	assert.Equal(t, FontInstance{Font: font, Size: 12}, fi)

	require.NoError(t, s.DeleteFontInstance(inst))
	require.NoError(t, s.DeleteFont(font))
	assert.ErrorIs(t, s.DeleteFont(font), imageapi.ErrNotRegistered)
}

func TestUpdatesEncodeDecode(t *testing.T) {
	dirty := image.Rect(1, 2, 3, 4)
	var u Updates
	u.AddImage(imageapi.NewImageKey(1, 1), imageapi.NewImageDescriptor(1, 1, imageapi.FormatR8, false), imageapi.NewImageData([]byte{7}), 0)
	u.AddImage(imageapi.NewImageKey(1, 2), imageapi.NewImageDescriptor(8, 8, imageapi.FormatBGRA8, false), imageapi.NewBlobImageData([]byte("GGBL\x01")), 64)
	u.UpdateImage(imageapi.NewImageKey(1, 2), imageapi.NewImageDescriptor(8, 8, imageapi.FormatBGRA8, false), imageapi.NewBlobImageData([]byte("GGBL\x01")), &dirty)
	u.AddImage(imageapi.NewImageKey(1, 3), imageapi.NewImageDescriptor(8, 8, imageapi.FormatBGRA8, false),
		imageapi.NewExternalImageData(5, 1, imageapi.ExternalBuffer), 0)
	u.AddFont(imageapi.NewFontKey(1, 1), imageapi.FontTemplate{Bytes: []byte{1, 2}, Index: 1})
	u.AddFontInstance(imageapi.NewFontInstanceKey(1, 1), imageapi.NewFontKey(1, 1), 14)

	var buf bytes.Buffer
	require.NoError(t, u.Encode(&buf))
	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, u.Len(), got.Len())

	raw, ok := got.Ops[0].Data.ImageData.(imageapi.RawImageData)
	require.True(t, ok)
	assert.Equal(t, []byte{7}, raw.Bytes())

	assert.Equal(t, imageapi.BlobImageData("GGBL\x01"), got.Ops[1].Data.ImageData)
	assert.Equal(t, imageapi.TileSize(64), got.Ops[1].Tiling)
	assert.Equal(t, &dirty, got.Ops[2].Dirty)
	assert.Equal(t, imageapi.ExternalImageData{ID: 5, ChannelIndex: 1, ImageType: imageapi.ExternalBuffer}, got.Ops[3].Data.ImageData)
	assert.Equal(t, &imageapi.FontTemplate{Bytes: []byte{1, 2}, Index: 1}, got.Ops[4].Template)
	assert.Equal(t, float32(14), got.Ops[5].Size)
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte(`{"ops":[{"op":"add_image","data":{"kind":"pixels"}}]}`)))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestUpdatesApplyIsAllOrNothing(t *testing.T) {
	s := NewStore()
	desc := imageapi.NewImageDescriptor(1, 1, imageapi.FormatR8, false)
	existing := imageapi.NewImageKey(1, 1)
	require.NoError(t, s.AddImage(existing, desc, imageapi.NewImageData([]byte{1})))

	var u Updates
	u.AddImage(imageapi.NewImageKey(1, 2), desc, imageapi.NewImageData([]byte{2}), 0)
	u.DeleteImage(existing)
	u.DeleteImage(existing)

	err := u.Apply(s, nil)
	assert.ErrorIs(t, err, imageapi.ErrNotRegistered)
	assert.Equal(t, 1, s.Len())
	_, _, ok := s.Image(existing)
	assert.True(t, ok)
}

func TestUpdatesApplyChecksRenderer(t *testing.T) {
	s := NewStore()
	r := blob.NewRenderer(blob.WithSynchronous())
	defer r.Close()

	desc := imageapi.NewImageDescriptor(4, 4, imageapi.FormatR8, false)
	b := blob.NewBuilder()
	b.FillRect(0, 0, 4, 4)
	stream := b.Finish()

	// Registered with the store while no renderer was attached.
	key := imageapi.NewImageKey(1, 1)
	var first Updates
	first.AddImage(key, desc, imageapi.NewBlobImageData(stream), 0)
	require.NoError(t, first.Apply(s, nil))

	fresh := imageapi.NewImageKey(1, 2)
	var u Updates
	u.AddImage(fresh, desc, imageapi.NewBlobImageData(stream), 0)
	u.UpdateImage(key, desc, imageapi.NewBlobImageData(stream), nil)

	err := u.Apply(s, r)
	assert.ErrorIs(t, err, imageapi.ErrNotRegistered)
	assert.Equal(t, 1, s.Len())
	_, ok := r.Tiling(fresh)
	assert.False(t, ok)

	require.NoError(t, r.Add(key, stream, 0))
	require.NoError(t, u.Apply(s, r))
	assert.Equal(t, 2, s.Len())
	_, ok = r.Tiling(fresh)
	assert.True(t, ok)
}

func TestUpdatesApplyInOrder(t *testing.T) {
	s := NewStore()
	desc := imageapi.NewImageDescriptor(1, 1, imageapi.FormatR8, false)
	key := imageapi.NewImageKey(1, 1)

	var u Updates
	u.AddImage(key, desc, imageapi.NewImageData([]byte{1}), 0)
	u.UpdateImage(key, desc, imageapi.NewImageData([]byte{2}), nil)
	u.DeleteImage(key)
	u.AddImage(key, desc, imageapi.NewImageData([]byte{3}), 0)
	require.NoError(t, u.Apply(s, nil))

	data, _, ok := s.Image(key)
	require.True(t, ok)
	assert.Equal(t, []byte{3}, data.(imageapi.RawImageData).Bytes())
}

func TestUpdatesApplyMalformed(t *testing.T) {
	u := Updates{Ops: []Update{{Op: OpAddImage}}}
	assert.ErrorIs(t, u.Apply(NewStore(), nil), ErrMalformed)

	u = Updates{Ops: []Update{{Op: "resize"}}}
	assert.ErrorIs(t, u.Apply(NewStore(), nil), ErrMalformed)
}

// End to end: the store feeds the blob renderer its fonts and images, and
// updates reach both.
func TestUpdatesDriveBlobRenderer(t *testing.T) {
	s := NewStore()
	r := blob.NewRenderer(blob.WithSynchronous())
	defer r.Close()

	ns := NewNamespace(1)
	fontKey, instKey := ns.FontKey(), ns.FontInstanceKey()
	maskKey, blobKey := ns.ImageKey(), ns.ImageKey()
	font := blob.FontRef{Instance: instKey, Font: fontKey, Size: 12}

	b := blob.NewBuilder()
	b.SetColor(color.NRGBA{A: 0xff})
	b.Image(maskKey, 0, 0)
	b.Text(font, 4, 14, "Hi")

	desc := imageapi.NewImageDescriptor(32, 16, imageapi.FormatR8, false)
	var u Updates
	u.AddFont(fontKey, imageapi.FontTemplate{Bytes: goregular.TTF})
	u.AddFontInstance(instKey, fontKey, 12)
	u.AddImage(maskKey, imageapi.NewImageDescriptor(2, 2, imageapi.FormatR8, false), imageapi.NewImageData([]byte{0xff, 0xff, 0xff, 0xff}), 0)
	u.AddImage(blobKey, desc, imageapi.NewBlobImageData(b.Finish()), 0)
	require.NoError(t, u.Apply(s, r))

	bd := imageapi.BlobImageDescriptor{Width: 32, Height: 16, Format: imageapi.FormatR8}
	req := imageapi.UntiledRequest(blobKey)
	r.Request(s, req, bd, nil)
	img, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), img.Data[0])

	var del Updates
	del.DeleteImage(blobKey)
	del.DeleteFontInstance(instKey)
	del.DeleteFont(fontKey)
	require.NoError(t, del.Apply(s, r))

	r.Request(s, req, bd, nil)
	_, err = r.Resolve(context.Background(), req)
	assert.ErrorIs(t, err, imageapi.ErrInvalidKey)
}
