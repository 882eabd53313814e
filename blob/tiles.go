package blob

import (
	"image"

	"github.com/gogpu/imageapi"
)

// Tiles returns the offsets of the tiles covering a width x height image,
// row by row. The last row and column may be partial. A zero size yields
// nil.
func Tiles(width, height uint32, size imageapi.TileSize) []imageapi.TileOffset {
	if size == 0 || width == 0 || height == 0 {
		return nil
	}
	s := uint32(size)
	cols := (width + s - 1) / s
	rows := (height + s - 1) / s

	tiles := make([]imageapi.TileOffset, 0, cols*rows)
	for y := range rows {
		for x := range cols {
			tiles = append(tiles, imageapi.TileOffset{X: uint16(x), Y: uint16(y)}) //nolint:gosec // tile counts fit in 16 bits for any texture size
		}
	}
	return tiles
}

// TileRect returns the image-space rectangle of a tile, clamped to the
// image bounds.
func TileRect(width, height uint32, size imageapi.TileSize, tile imageapi.TileOffset) imageapi.DeviceUintRect {
	s := int(size)
	r := image.Rect(int(tile.X)*s, int(tile.Y)*s, (int(tile.X)+1)*s, (int(tile.Y)+1)*s)
	return r.Intersect(image.Rect(0, 0, int(width), int(height)))
}

// TileDescriptor derives the descriptor of one tile from the descriptor of
// the whole image.
func TileDescriptor(desc imageapi.BlobImageDescriptor, size imageapi.TileSize, tile imageapi.TileOffset) imageapi.BlobImageDescriptor {
	r := TileRect(desc.Width, desc.Height, size, tile)
	return imageapi.BlobImageDescriptor{
		Width:  uint32(r.Dx()), //nolint:gosec // clamped to desc
		Height: uint32(r.Dy()), //nolint:gosec // clamped to desc
		Offset: imageapi.DevicePoint{
			X: desc.Offset.X + float32(r.Min.X),
			Y: desc.Offset.Y + float32(r.Min.Y),
		},
		Format: desc.Format,
	}
}
