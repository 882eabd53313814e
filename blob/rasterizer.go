package blob

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/vector"

	"github.com/gogpu/imageapi"
)

const (
	// masksPerRequest counts the path mask and the scratch mask shared by
	// rectangles and glyph runs.
	masksPerRequest = 2

	// maskBytesPerPixel is the coverage accumulator size of vector.Rasterizer.
	maskBytesPerPixel = 4
)

// canvas is the target of one rasterization: either an *image.RGBA, whose
// bytes are swizzled to BGRA at the end, or an *image.Alpha for R8.
type canvas struct {
	dst    draw.Image
	pix    *[]byte
	format imageapi.ImageFormat
	bounds image.Rectangle

	// clip is the part of bounds that may be written.
	clip image.Rectangle

	// offset is the image-space position of the canvas origin.
	offX, offY float32
}

func newCanvas(desc imageapi.BlobImageDescriptor, dirty *imageapi.DeviceUintRect, maxBytes uint64) (*canvas, error) {
	switch desc.Format {
	case imageapi.FormatBGRA8, imageapi.FormatR8:
	default:
		return nil, imageapi.NewOtherError(fmt.Sprintf("unsupported output format %v", desc.Format))
	}

	bounds := image.Rect(0, 0, int(desc.Width), int(desc.Height))
	c := &canvas{
		format: desc.Format,
		bounds: bounds,
		clip:   bounds,
		offX:   desc.Offset.X,
		offY:   desc.Offset.Y,
	}
	if dirty != nil {
		origin := image.Pt(int(desc.Offset.X), int(desc.Offset.Y))
		c.clip = dirty.Sub(origin).Intersect(bounds)
	}

	size := uint64(desc.Width) * uint64(desc.Height) * uint64(desc.Format.BytesPerPixel())
	if !c.clip.Empty() {
		size += masksPerRequest * maskBytesPerPixel * uint64(c.clip.Dx()) * uint64(c.clip.Dy())
	}
	if size > maxBytes {
		return nil, imageapi.NewBlobError(imageapi.BlobErrorOom,
			fmt.Sprintf("%dx%d target needs %d bytes, limit %d", desc.Width, desc.Height, size, maxBytes))
	}

	if desc.Format == imageapi.FormatR8 {
		img := image.NewAlpha(bounds)
		c.dst, c.pix = img, &img.Pix
	} else {
		img := image.NewRGBA(bounds)
		c.dst, c.pix = img, &img.Pix
	}
	return c, nil
}

// finish returns the tightly packed pixels in the requested format.
func (c *canvas) finish() *imageapi.RasterizedBlobImage {
	pix := *c.pix
	if c.format == imageapi.FormatBGRA8 {
		for i := 0; i+3 < len(pix); i += 4 {
			pix[i], pix[i+2] = pix[i+2], pix[i]
		}
	}
	return &imageapi.RasterizedBlobImage{
		Width:  uint32(c.bounds.Dx()), //nolint:gosec // bounds come from uint32
		Height: uint32(c.bounds.Dy()), //nolint:gosec // bounds come from uint32
		Data:   pix,
	}
}

// rasterizer executes decoded commands onto a canvas.
type rasterizer struct {
	canvas *canvas
	fonts  *fontCache
	res    imageapi.BlobImageResources

	color   color.NRGBA
	path    *vector.Rasterizer
	hasPath bool

	scratch *vector.Rasterizer
}

// rasterize renders a whole command stream for one request. The stream is
// decoded before any pixel is touched, so a malformed stream never yields
// partial output.
func rasterize(
	data imageapi.BlobImageData,
	res imageapi.BlobImageResources,
	fonts *fontCache,
	desc imageapi.BlobImageDescriptor,
	dirty *imageapi.DeviceUintRect,
	maxBytes uint64,
) (*imageapi.RasterizedBlobImage, error) {
	cmds, err := Decode(data)
	if err != nil {
		return nil, err
	}
	c, err := newCanvas(desc, dirty, maxBytes)
	if err != nil {
		return nil, err
	}
	if c.clip.Empty() {
		return c.finish(), nil
	}

	r := &rasterizer{
		canvas: c,
		fonts:  fonts,
		res:    res,
		color:  color.NRGBA{A: 0xff},
		path:   c.newMask(),
	}
	for i := range cmds {
		if err := r.exec(&cmds[i]); err != nil {
			return nil, err
		}
	}
	return c.finish(), nil
}

func (r *rasterizer) exec(cmd *Command) error {
	switch cmd.Tag {
	case TagSetColor:
		r.color = cmd.Color
	case TagMoveTo:
		x, y := r.toMask(cmd.Points[0])
		r.path.MoveTo(x, y)
		r.hasPath = true
	case TagLineTo:
		x, y := r.toMask(cmd.Points[0])
		r.path.LineTo(x, y)
		r.hasPath = true
	case TagQuadTo:
		cx, cy := r.toMask(cmd.Points[0])
		x, y := r.toMask(cmd.Points[1])
		r.path.QuadTo(cx, cy, x, y)
		r.hasPath = true
	case TagCubicTo:
		c1x, c1y := r.toMask(cmd.Points[0])
		c2x, c2y := r.toMask(cmd.Points[1])
		x, y := r.toMask(cmd.Points[2])
		r.path.CubeTo(c1x, c1y, c2x, c2y, x, y)
		r.hasPath = true
	case TagClosePath:
		r.path.ClosePath()
	case TagFill:
		r.fill()
	case TagFillRect:
		r.fillRect(cmd.Points[0], cmd.Points[1])
	case TagGlyphs:
		return r.glyphs(cmd.Font, cmd.Origin, cmd.Glyphs)
	case TagText:
		f, err := r.fonts.font(r.res, cmd.Font.Font)
		if err != nil {
			return err
		}
		glyphs, err := r.fonts.shape(f, cmd.Font, cmd.Text)
		if err != nil {
			return err
		}
		return r.glyphs(cmd.Font, cmd.Origin, glyphs)
	case TagImage:
		return r.image(cmd.Image, cmd.Origin)
	}
	return nil
}

func (r *rasterizer) toCanvas(p imageapi.DevicePoint) (float32, float32) {
	return p.X - r.canvas.offX, p.Y - r.canvas.offY
}

// toMask maps an image-space point into coverage masks, whose origin is
// the top-left of the clip.
func (r *rasterizer) toMask(p imageapi.DevicePoint) (float32, float32) {
	x, y := r.toCanvas(p)
	return x - float32(r.canvas.clip.Min.X), y - float32(r.canvas.clip.Min.Y)
}

// newMask returns a coverage rasterizer covering the clip. vector maps
// mask pixel (0, 0) to the top-left of the rectangle it draws into.
func (c *canvas) newMask() *vector.Rasterizer {
	return vector.NewRasterizer(c.clip.Dx(), c.clip.Dy())
}

// scratchMask returns the cleared mask used by single-command fills.
func (r *rasterizer) scratchMask() *vector.Rasterizer {
	if r.scratch == nil {
		r.scratch = r.canvas.newMask()
	} else {
		r.scratch.Reset(r.canvas.clip.Dx(), r.canvas.clip.Dy())
	}
	return r.scratch
}

// paint fills the coverage of z with the current color.
func (r *rasterizer) paint(z *vector.Rasterizer) {
	if r.color.A == 0 {
		return
	}
	clip := r.canvas.clip
	z.Draw(r.canvas.dst, clip, image.NewUniform(r.color), clip.Min)
}

// fill draws the current path with the nonzero rule and clears it.
func (r *rasterizer) fill() {
	if !r.hasPath {
		return
	}
	r.path.ClosePath()
	r.paint(r.path)
	r.path.Reset(r.canvas.clip.Dx(), r.canvas.clip.Dy())
	r.hasPath = false
}

func (r *rasterizer) fillRect(origin, size imageapi.DevicePoint) {
	// A rectangle is its own path; a pending path is kept for a later Fill.
	if size.X == 0 || size.Y == 0 || r.color.A == 0 {
		return
	}
	x0, y0 := r.toMask(origin)
	x1, y1 := x0+size.X, y0+size.Y

	z := r.scratchMask()
	z.MoveTo(x0, y0)
	z.LineTo(x1, y0)
	z.LineTo(x1, y1)
	z.LineTo(x0, y1)
	z.ClosePath()
	r.paint(z)
}

// glyphs fills the outlines of positioned glyphs with the current color.
// All glyphs of one command share a single coverage pass.
func (r *rasterizer) glyphs(ref FontRef, origin imageapi.DevicePoint, glyphs []Glyph) error {
	if len(glyphs) == 0 {
		return nil
	}
	f, err := r.fonts.font(r.res, ref.Font)
	if err != nil {
		return err
	}

	ox, oy := r.toMask(origin)
	z := r.scratchMask()
	drawn := false
	for _, g := range glyphs {
		segs, err := r.fonts.outline(f, ref, g.ID)
		if err != nil {
			return err
		}
		if len(segs) == 0 {
			continue
		}
		appendOutline(z, segs, ox+g.DX, oy+g.DY)
		drawn = true
	}

	if drawn {
		r.paint(z)
	}
	return nil
}

// appendOutline adds sfnt segments, in 26.6 fixed point, at (x, y).
func appendOutline(z *vector.Rasterizer, segs []sfnt.Segment, x, y float32) {
	pt := func(i int, s sfnt.Segment) (float32, float32) {
		return x + fixedToFloat(s.Args[i].X), y + fixedToFloat(s.Args[i].Y)
	}
	for _, s := range segs {
		switch s.Op {
		case sfnt.SegmentOpMoveTo:
			z.MoveTo(pt(0, s))
		case sfnt.SegmentOpLineTo:
			z.LineTo(pt(0, s))
		case sfnt.SegmentOpQuadTo:
			cx, cy := pt(0, s)
			px, py := pt(1, s)
			z.QuadTo(cx, cy, px, py)
		case sfnt.SegmentOpCubeTo:
			c1x, c1y := pt(0, s)
			c2x, c2y := pt(1, s)
			px, py := pt(2, s)
			z.CubeTo(c1x, c1y, c2x, c2y, px, py)
		}
	}
	z.ClosePath()
}

// image composites a raw dependency image with its top-left at origin.
func (r *rasterizer) image(key imageapi.ImageKey, origin imageapi.DevicePoint) error {
	data, desc, ok := r.res.Image(key)
	if !ok {
		return imageapi.NewOtherError(fmt.Sprintf("dependency %v not found", key))
	}
	raw, ok := data.(imageapi.RawImageData)
	if !ok {
		return imageapi.NewOtherError(fmt.Sprintf("dependency %v is not raw pixel data", key))
	}
	src, err := sourceImage(raw.Bytes(), desc)
	if err != nil {
		return imageapi.NewOtherError(fmt.Sprintf("dependency %v: %v", key, err))
	}

	x, y := r.toCanvas(origin)
	placed := src.Bounds().Add(image.Pt(int(x), int(y)))
	target := placed.Intersect(r.canvas.clip)
	if target.Empty() {
		return nil
	}
	draw.Draw(r.canvas.dst, target, src, target.Min.Sub(placed.Min), draw.Over)
	return nil
}

// sourceImage views raw pixels as an image.Image. BGRA8 data is copied into
// RGBA order; R8 data is used in place.
func sourceImage(pix []byte, desc imageapi.ImageDescriptor) (image.Image, error) {
	w, h := int(desc.Width), int(desc.Height)
	stride := int(desc.ComputeStride())
	offset := int(desc.Offset)
	bpp := 0
	switch desc.Format {
	case imageapi.FormatBGRA8, imageapi.FormatR8:
		bpp = int(desc.Format.BytesPerPixel())
	default:
		return nil, fmt.Errorf("unsupported format %v", desc.Format)
	}
	if w == 0 || h == 0 {
		return image.NewAlpha(image.Rect(0, 0, 0, 0)), nil
	}
	if stride < w*bpp || offset+stride*(h-1)+w*bpp > len(pix) {
		return nil, fmt.Errorf("%d bytes too short for %dx%d stride %d offset %d", len(pix), w, h, stride, offset)
	}

	if desc.Format == imageapi.FormatR8 {
		return &image.Alpha{Pix: pix[offset:], Stride: stride, Rect: image.Rect(0, 0, w, h)}, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for row := range h {
		s := pix[offset+row*stride : offset+row*stride+w*4]
		d := img.Pix[row*img.Stride : row*img.Stride+w*4]
		for i := 0; i < len(s); i += 4 {
			d[i], d[i+1], d[i+2], d[i+3] = s[i+2], s[i+1], s[i], s[i+3]
		}
	}
	return img, nil
}
