package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/imageapi"
	"github.com/gogpu/imageapi/resource"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func TestRenderSampleTiled(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tiled.png")
	_, err := execute(t, "--width", "100", "--height", "50", "--tile", "32", "--out", out)
	require.NoError(t, err)

	img := decodePNG(t, out)
	assert.Equal(t, image.Rect(0, 0, 100, 50), img.Bounds())

	background := color.RGBAModel.Convert(img.At(2, 2)).(color.RGBA)
	assert.Equal(t, color.RGBA{R: 0xf4, G: 0xf1, B: 0xea, A: 0xff}, background)

	// Checker sprite, top-left square is red in RGBA order.
	sprite := color.RGBAModel.Convert(img.At(100-checkerSize-8+1, 9)).(color.RGBA)
	assert.Equal(t, color.RGBA{R: 0xd0, G: 0x30, B: 0x30, A: 0xff}, sprite)
}

func TestRenderTiledMatchesUntiled(t *testing.T) {
	dir := t.TempDir()
	tiled, untiled := filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")
	_, err := execute(t, "--width", "90", "--height", "40", "--tile", "16", "--out", tiled)
	require.NoError(t, err)
	_, err = execute(t, "--width", "90", "--height", "40", "--tile", "0", "--out", untiled)
	require.NoError(t, err)

	a, b := decodePNG(t, tiled), decodePNG(t, untiled)
	for y := range 40 {
		for x := range 90 {
			ra, ga, ba, aa := a.At(x, y).RGBA()
			rb, gb, bb, ab := b.At(x, y).RGBA()
			// Antialiased edges may differ by a rounding step between tiles.
			assert.InDelta(t, ra, rb, 0x404, "pixel %d,%d", x, y)
			assert.InDelta(t, ga, gb, 0x404, "pixel %d,%d", x, y)
			assert.InDelta(t, ba, bb, 0x404, "pixel %d,%d", x, y)
			assert.InDelta(t, aa, ab, 0x404, "pixel %d,%d", x, y)
		}
	}
}

func TestRenderR8(t *testing.T) {
	out := filepath.Join(t.TempDir(), "mask.png")
	_, err := execute(t, "--width", "40", "--height", "40", "--format", "r8", "--out", out)
	require.NoError(t, err)
	img := decodePNG(t, out)
	_, ok := img.(*image.Gray)
	assert.True(t, ok)
	assert.Equal(t, color.Gray{Y: 0xff}, img.At(1, 1))
}

func TestSceneRoundTrip(t *testing.T) {
	dir := t.TempDir()
	scene, err := execute(t, "scene", "--width", "64", "--height", "32")
	require.NoError(t, err)

	u, err := resource.Decode(bytes.NewReader([]byte(scene)))
	require.NoError(t, err)
	tgt, err := findTarget(u)
	require.NoError(t, err)
	assert.Equal(t, imageapi.NewImageDescriptor(64, 32, imageapi.FormatBGRA8, false), tgt.desc)

	path := filepath.Join(dir, "scene.json")
	require.NoError(t, os.WriteFile(path, []byte(scene), 0o600))
	out := filepath.Join(dir, "scene.png")
	_, err = execute(t, "--updates", path, "--out", out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 32), decodePNG(t, out).Bounds())
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("BLOBRASTER_WIDTH", "48")
	t.Setenv("BLOBRASTER_FONT_SIZE", "12")
	out := filepath.Join(t.TempDir(), "env.png")
	_, err := execute(t, "--height", "24", "--out", out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 48, 24), decodePNG(t, out).Bounds())
}

func TestRenderErrors(t *testing.T) {
	_, err := execute(t, "--format", "rgba16")
	assert.ErrorContains(t, err, "unsupported format")

	_, err = execute(t, "--width", "0")
	assert.ErrorContains(t, err, "empty")

	empty := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"ops":[]}`), 0o600))
	_, err = execute(t, "--updates", empty)
	assert.ErrorIs(t, err, errNoBlob)
}
