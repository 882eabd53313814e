// Package imageapi defines how images are identified, described and
// provisioned for the gogpu rendering stack.
//
// # Overview
//
// Every image the renderer draws is named by an [ImageKey] and described by
// an [ImageDescriptor]. Its content comes from one of three places, modeled
// by the sealed [ImageData] type:
//
//   - [RawImageData]: pixel bytes owned (or co-owned) by the renderer
//   - [BlobImageData]: a recorded vector command stream, rasterized on
//     demand, optionally tile by tile, by a [BlobImageRenderer]
//   - [ExternalImageData]: a buffer or texture owned by the host and lent to
//     the renderer through an [ExternalImageHandler]
//
// The rest of the pipeline sees a uniform (ImageData, ImageDescriptor) pair
// and uses [UsesTextureCache] to decide whether the pixels need to be copied
// into the texture cache.
//
// # Blob images
//
// A blob image goes through Add, then any number of Update/Request/Resolve
// rounds, then Delete:
//
//	r.Add(key, commands, 256)
//	r.Request(resources, imageapi.TileRequest(key, tile), desc, nil)
//	img, err := r.Resolve(ctx, imageapi.TileRequest(key, tile))
//
// Request never blocks. Resolve blocks only on the work for the request it
// was given. Rasterization failures come back as [*BlobImageError] values
// and only affect that one request.
//
// The blob sub-package provides the command stream format and a concrete
// renderer backed by a worker pool.
//
// # External images
//
// The host lends buffers for exactly the span between Lock and Unlock.
// The external sub-package wraps handlers so the view cannot be used after
// the matching Unlock.
//
// # Logging
//
// The package is silent by default. Call [SetLogger] to enable logging for
// imageapi and all its sub-packages.
package imageapi
