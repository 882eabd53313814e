package blob

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gogpu/imageapi"
)

func TestTiles(t *testing.T) {
	tiles := Tiles(300, 200, 128)
	assert.Len(t, tiles, 3*2)
	assert.Equal(t, imageapi.TileOffset{X: 0, Y: 0}, tiles[0])
	assert.Equal(t, imageapi.TileOffset{X: 2, Y: 0}, tiles[2])
	assert.Equal(t, imageapi.TileOffset{X: 2, Y: 1}, tiles[5])

	assert.Nil(t, Tiles(300, 200, 0))
	assert.Nil(t, Tiles(0, 200, 128))
	assert.Len(t, Tiles(256, 256, 128), 4)
}

func TestTileRect(t *testing.T) {
	assert.Equal(t, image.Rect(128, 128, 256, 200), TileRect(300, 200, 128, imageapi.TileOffset{X: 1, Y: 1}))
	assert.Equal(t, image.Rect(256, 0, 300, 128), TileRect(300, 200, 128, imageapi.TileOffset{X: 2, Y: 0}))
}

func TestTileDescriptor(t *testing.T) {
	full := imageapi.BlobImageDescriptor{
		Width:  300,
		Height: 200,
		Offset: imageapi.DevicePoint{X: 10, Y: 20},
		Format: imageapi.FormatR8,
	}

	got := TileDescriptor(full, 128, imageapi.TileOffset{X: 2, Y: 1})
	assert.Equal(t, imageapi.BlobImageDescriptor{
		Width:  44,
		Height: 72,
		Offset: imageapi.DevicePoint{X: 266, Y: 148},
		Format: imageapi.FormatR8,
	}, got)

	// Tiles cover the image exactly once.
	var area uint32
	for _, tile := range Tiles(full.Width, full.Height, 128) {
		d := TileDescriptor(full, 128, tile)
		area += d.Width * d.Height
	}
	assert.Equal(t, full.Width*full.Height, area)
}
