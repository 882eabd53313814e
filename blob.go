package imageapi

import (
	"context"
	"fmt"
	"image"
)

// TileSize is the edge length in pixels of the square tiles a blob image is
// split into. Zero means the image is not tiled.
type TileSize uint16

// TileOffset is the column and row of a tile within a tiled blob image.
type TileOffset struct {
	X uint16 `json:"x"`
	Y uint16 `json:"y"`
}

// DeviceUintRect is a rectangle in device pixels.
type DeviceUintRect = image.Rectangle

// DevicePoint is a position in device pixels.
type DevicePoint struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// BlobImageRequest names one unit of rasterization work: a whole blob image,
// or one tile of it. Requests are comparable and used as map keys.
type BlobImageRequest struct {
	Key  ImageKey   `json:"key"`
	Tile TileOffset `json:"tile"`

	// Tiled is false for whole-image requests; Tile is then ignored.
	Tiled bool `json:"tiled"`
}

// UntiledRequest returns the request for the whole image.
func UntiledRequest(key ImageKey) BlobImageRequest {
	return BlobImageRequest{Key: key}
}

// TileRequest returns the request for one tile.
func TileRequest(key ImageKey, tile TileOffset) BlobImageRequest {
	return BlobImageRequest{Key: key, Tile: tile, Tiled: true}
}

func (r BlobImageRequest) String() string {
	if !r.Tiled {
		return r.Key.String()
	}
	return fmt.Sprintf("%v tile(%d, %d)", r.Key, r.Tile.X, r.Tile.Y)
}

// BlobImageDescriptor describes the pixels one request must produce.
// Offset is the image-space position of the top-left output pixel.
type BlobImageDescriptor struct {
	Width  uint32      `json:"width"`
	Height uint32      `json:"height"`
	Offset DevicePoint `json:"offset"`
	Format ImageFormat `json:"format"`
}

// Bounds returns the device rectangle covered by the request, in image space.
func (d BlobImageDescriptor) Bounds() DeviceUintRect {
	x, y := int(d.Offset.X), int(d.Offset.Y)
	return image.Rect(x, y, x+int(d.Width), y+int(d.Height))
}

// RasterizedBlobImage is the result of one request. It matches the
// BlobImageDescriptor that asked for it: Data holds Width * Height pixels
// of the requested format, tightly packed.
type RasterizedBlobImage struct {
	Width  uint32
	Height uint32
	Data   []byte
}

// BlobImageResources gives a blob renderer read-only access to the fonts
// and images that blob commands reference. Implementations must be safe for
// concurrent use; the renderer never mutates through them.
type BlobImageResources interface {
	// FontData returns the font file registered under key.
	FontData(key FontKey) (FontTemplate, bool)

	// Image returns the data and descriptor registered under key.
	Image(key ImageKey) (ImageData, ImageDescriptor, bool)
}

// BlobImageRenderer rasterizes blob images on behalf of the renderer.
//
// The host supplies one implementation at startup. Per request the life
// cycle is Unregistered -> Registered (Add) -> Requested (Request) ->
// Resolved (Resolve), looping between Requested and Resolved as the host
// updates the image.
//
// Request must not block. Resolve may block, but only on the work for the
// request it is given. For one request the latest Update/Request pair
// supersedes earlier ones: Resolve never returns pixels from before an
// observed Update. Requests for different keys or tiles carry no ordering
// guarantee and can be resolved concurrently.
type BlobImageRenderer interface {
	// Add registers a new blob image. A non-zero tiling fixes the tile size
	// used by later tiled requests. Adding a registered key returns
	// ErrAlreadyRegistered.
	Add(key ImageKey, data BlobImageData, tiling TileSize) error

	// Update replaces the command stream of a registered key. A nil dirty
	// rectangle marks the whole image as changed.
	Update(key ImageKey, data BlobImageData, dirty *DeviceUintRect) error

	// Delete unregisters key. Requests issued before the deletion are
	// discarded: resolving one returns ErrInvalidKey, or ErrNotRequested
	// once key is added again. They never yield pixels.
	Delete(key ImageKey) error

	// Request enqueues rasterization of req at desc, optionally limited to
	// the dirty rectangle. It returns immediately.
	Request(res BlobImageResources, req BlobImageRequest, desc BlobImageDescriptor, dirty *DeviceUintRect)

	// Resolve waits for the result of a previous Request. Each Request is
	// resolved at most once.
	Resolve(ctx context.Context, req BlobImageRequest) (*RasterizedBlobImage, error)

	// DeleteFont drops any state cached for the font.
	DeleteFont(key FontKey)

	// DeleteFontInstance drops any state cached for the font instance.
	DeleteFontInstance(key FontInstanceKey)
}
