package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/imageapi"
	"github.com/gogpu/imageapi/blob"
	"github.com/gogpu/imageapi/resource"
	"github.com/gogpu/imageapi/texcache"
)

var errNoBlob = errors.New("no blob image in updates")

type config struct {
	Width    uint32
	Height   uint32
	Tile     imageapi.TileSize
	Format   imageapi.ImageFormat
	Workers  int
	Text     string
	FontSize float32
	Updates  string
	Out      string
}

func parseFormat(s string) (imageapi.ImageFormat, error) {
	switch strings.ToLower(s) {
	case "bgra8":
		return imageapi.FormatBGRA8, nil
	case "r8":
		return imageapi.FormatR8, nil
	default:
		return 0, fmt.Errorf("unsupported format %q (want bgra8 or r8)", s)
	}
}

// target is the blob image a run rasterizes.
type target struct {
	key    imageapi.ImageKey
	desc   imageapi.ImageDescriptor
	tiling imageapi.TileSize
}

// findTarget returns the last blob image added by u.
func findTarget(u *resource.Updates) (target, error) {
	var t target
	found := false
	for _, op := range u.Ops {
		if op.Op != resource.OpAddImage || op.Data == nil || !imageapi.IsBlob(op.Data.ImageData) {
			continue
		}
		t = target{key: *op.Image, desc: *op.Descriptor, tiling: op.Tiling}
		found = true
	}
	if !found {
		return target{}, errNoBlob
	}
	return t, nil
}

func loadUpdates(cfg config) (*resource.Updates, error) {
	if cfg.Updates == "" {
		return sampleScene(resource.NewNamespace(1), cfg), nil
	}
	f, err := os.Open(cfg.Updates)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return resource.Decode(f)
}

// render rasterizes the blob image of the configured updates and writes it
// as a PNG.
func render(ctx context.Context, cfg config) error {
	updates, err := loadUpdates(cfg)
	if err != nil {
		return err
	}
	tgt, err := findTarget(updates)
	if err != nil {
		return err
	}

	store := resource.NewStore()
	r := blob.NewRenderer(blob.WithWorkers(cfg.Workers))
	defer r.Close()
	if err := updates.Apply(store, r); err != nil {
		return err
	}

	img, err := rasterize(ctx, store, r, tgt)
	if err != nil {
		return err
	}

	data, desc, ok := store.Image(tgt.key)
	if !ok {
		return fmt.Errorf("%v: %w", tgt.key, imageapi.ErrNotRegistered)
	}
	cache := texcache.New()
	entry, err := cache.Admit(tgt.key, data, desc, nil, 1)
	if err != nil {
		return err
	}
	slog.Debug("texture resident", "key", entry.Key, "format", entry.Format, "bytes", entry.Bytes)

	out, err := os.Create(cfg.Out)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	slog.Info("wrote image", "path", cfg.Out, "width", tgt.desc.Width, "height", tgt.desc.Height, "format", tgt.desc.Format)
	return nil
}

// rasterize requests every tile of tgt and resolves them concurrently into
// one image.
func rasterize(ctx context.Context, res imageapi.BlobImageResources, r *blob.Renderer, tgt target) (image.Image, error) {
	full := imageapi.BlobImageDescriptor{Width: tgt.desc.Width, Height: tgt.desc.Height, Format: tgt.desc.Format}

	type part struct {
		req  imageapi.BlobImageRequest
		rect image.Rectangle
	}
	var parts []part
	if tgt.tiling == 0 {
		req := imageapi.UntiledRequest(tgt.key)
		r.Request(res, req, full, nil)
		parts = append(parts, part{req: req, rect: full.Bounds()})
	} else {
		for _, tile := range blob.Tiles(full.Width, full.Height, tgt.tiling) {
			req := imageapi.TileRequest(tgt.key, tile)
			desc := blob.TileDescriptor(full, tgt.tiling, tile)
			r.Request(res, req, desc, nil)
			parts = append(parts, part{req: req, rect: desc.Bounds()})
		}
	}

	// Parts cover disjoint rectangles, so blits need no lock.
	dst := newTarget(full)
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range parts {
		g.Go(func() error {
			tile, err := r.Resolve(ctx, p.req)
			if err != nil {
				return fmt.Errorf("%v: %w", p.req, err)
			}
			blit(dst, p.rect, tile, full.Format)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slog.Debug("rasterized", "key", tgt.key, "parts", len(parts))
	return dst, nil
}

func newTarget(desc imageapi.BlobImageDescriptor) image.Image {
	rect := image.Rect(0, 0, int(desc.Width), int(desc.Height))
	if desc.Format == imageapi.FormatR8 {
		return image.NewGray(rect)
	}
	return image.NewRGBA(rect)
}

// blit copies a rasterized tile into dst at rect, swizzling BGRA to RGBA.
func blit(dst image.Image, rect image.Rectangle, tile *imageapi.RasterizedBlobImage, format imageapi.ImageFormat) {
	w := int(tile.Width)
	switch d := dst.(type) {
	case *image.Gray:
		for y := range int(tile.Height) {
			copy(d.Pix[d.PixOffset(rect.Min.X, rect.Min.Y+y):], tile.Data[y*w:(y+1)*w])
		}
	case *image.RGBA:
		bpp := int(format.BytesPerPixel())
		for y := range int(tile.Height) {
			row := d.Pix[d.PixOffset(rect.Min.X, rect.Min.Y+y):]
			src := tile.Data[y*w*bpp:]
			for x := range w {
				s := src[x*4 : x*4+4]
				row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = s[2], s[1], s[0], s[3]
			}
		}
	}
}
