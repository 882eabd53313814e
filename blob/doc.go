// Package blob rasterizes blob images on the CPU.
//
// A blob image is a compact command stream recorded with a Builder and
// registered with a Renderer. The renderer turns it into pixels on demand,
// per request and optionally per tile:
//
//	b := blob.NewBuilder()
//	b.SetColor(color.NRGBA{R: 0xff, A: 0xff})
//	b.FillRect(0, 0, 64, 64)
//
//	r := blob.NewRenderer()
//	defer r.Close()
//
//	key := imageapi.NewImageKey(1, 1)
//	_ = r.Add(key, b.Finish(), 0)
//
//	desc := imageapi.BlobImageDescriptor{Width: 64, Height: 64, Format: imageapi.FormatBGRA8}
//	r.Request(resources, imageapi.UntiledRequest(key), desc, nil)
//	img, err := r.Resolve(ctx, imageapi.UntiledRequest(key))
//
// Paths are filled with golang.org/x/image/vector. Glyph outlines are read
// with golang.org/x/image/font/sfnt, and Text commands are shaped with
// go-text/typesetting after splitting the text into bidi runs.
//
// Output is BGRA8 with premultiplied alpha, or R8 coverage.
package blob
