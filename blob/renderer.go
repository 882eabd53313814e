package blob

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/imageapi"
	"github.com/gogpu/imageapi/internal/parallel"
)

// maxDirtyHistory bounds the dirty rectangles remembered per image. Older
// history collapses into a single whole-image entry.
const maxDirtyHistory = 64

// Renderer is a CPU implementation of imageapi.BlobImageRenderer.
//
// Requests are rasterized on a worker pool as soon as they are issued;
// Resolve waits only for the job of the request it is given. A request that
// no worker has picked up yet is run directly by Resolve.
//
// Renderer is safe for concurrent use.
type Renderer struct {
	opts  options
	log   *slog.Logger
	fonts *fontCache
	pool  *parallel.WorkerPool

	mu     sync.Mutex
	images map[imageapi.ImageKey]*blobImage
	jobs   map[imageapi.BlobImageRequest]*job
}

var _ imageapi.BlobImageRenderer = (*Renderer)(nil)

// blobImage is the registered state of one key.
type blobImage struct {
	data       imageapi.BlobImageData
	tiling     imageapi.TileSize
	generation uint64

	// updates records the dirty rectangle of each Update, oldest first.
	updates []dirtyUpdate

	// requested is the generation each request last saw.
	requested map[imageapi.BlobImageRequest]uint64
}

type dirtyUpdate struct {
	generation uint64
	rect       *imageapi.DeviceUintRect // nil means the whole image
}

// job is one rasterization. It runs at most once, either on a worker or on
// the goroutine resolving it.
type job struct {
	req        imageapi.BlobImageRequest
	res        imageapi.BlobImageResources
	desc       imageapi.BlobImageDescriptor
	dirty      *imageapi.DeviceUintRect
	data       imageapi.BlobImageData
	image      *blobImage
	generation uint64

	abandoned atomic.Bool
	once      sync.Once
	done      chan struct{}
	result    *imageapi.RasterizedBlobImage
	err       error
}

// NewRenderer creates a renderer.
func NewRenderer(opts ...Option) *Renderer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		log = imageapi.Logger()
	}

	r := &Renderer{
		opts:   o,
		log:    log,
		fonts:  newFontCache(o.glyphCacheSize),
		images: make(map[imageapi.ImageKey]*blobImage),
		jobs:   make(map[imageapi.BlobImageRequest]*job),
	}
	if !o.synchronous {
		r.pool = parallel.NewWorkerPool(o.workers)
	}
	return r
}

// Close stops the worker pool after finishing queued jobs. Outstanding
// requests can still be resolved afterwards; they run inline.
func (r *Renderer) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Add registers a blob image.
func (r *Renderer) Add(key imageapi.ImageKey, data imageapi.BlobImageData, tiling imageapi.TileSize) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.images[key]; ok {
		return fmt.Errorf("blob: add %v: %w", key, imageapi.ErrAlreadyRegistered)
	}
	r.images[key] = &blobImage{
		data:      data,
		tiling:    tiling,
		requested: make(map[imageapi.BlobImageRequest]uint64),
	}
	r.log.Debug("blob: image added", "key", key, "bytes", len(data), "tiling", tiling)
	return nil
}

// Update replaces the command stream of key. The new stream is used by all
// later requests and by resolutions of earlier ones.
func (r *Renderer) Update(key imageapi.ImageKey, data imageapi.BlobImageData, dirty *imageapi.DeviceUintRect) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, ok := r.images[key]
	if !ok {
		return fmt.Errorf("blob: update %v: %w", key, imageapi.ErrNotRegistered)
	}
	img.data = data
	img.generation++
	if len(img.updates) >= maxDirtyHistory {
		img.updates = img.updates[:0]
		dirty = nil
	}
	img.updates = append(img.updates, dirtyUpdate{generation: img.generation, rect: copyRect(dirty)})

	r.log.Debug("blob: image updated", "key", key, "generation", img.generation, "dirty", dirty)
	return nil
}

// Delete unregisters key and discards its outstanding requests. Resolving
// one of them afterwards returns an InvalidKey error while key stays
// unregistered, and ErrNotRequested once it is added again.
func (r *Renderer) Delete(key imageapi.ImageKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.images[key]; !ok {
		return fmt.Errorf("blob: delete %v: %w", key, imageapi.ErrNotRegistered)
	}
	delete(r.images, key)

	for req, j := range r.jobs {
		if req.Key == key {
			j.abandoned.Store(true)
			delete(r.jobs, req)
		}
	}
	r.log.Debug("blob: image deleted", "key", key)
	return nil
}

// Request schedules rasterization of req. It never blocks; errors are
// reported by Resolve. A new request supersedes an unresolved one for the
// same key and tile.
func (r *Renderer) Request(
	res imageapi.BlobImageResources,
	req imageapi.BlobImageRequest,
	desc imageapi.BlobImageDescriptor,
	dirty *imageapi.DeviceUintRect,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.jobs[req]; ok {
		old.abandoned.Store(true)
	}

	img, ok := r.images[req.Key]
	switch {
	case !ok:
		r.jobs[req] = failedJob(req, invalidKey(req.Key))
		return
	case req.Tiled && img.tiling == 0:
		r.jobs[req] = failedJob(req, imageapi.NewOtherError(fmt.Sprintf("tile request for untiled %v", req.Key)))
		return
	}

	j := &job{
		req:        req,
		res:        res,
		desc:       desc,
		dirty:      copyRect(dirty),
		data:       img.data,
		image:      img,
		generation: img.generation,
		done:       make(chan struct{}),
	}
	img.requested[req] = img.generation
	r.jobs[req] = j

	if r.pool != nil && !r.pool.Submit(func() { r.run(j) }) {
		r.log.Debug("blob: pool closed, request left for resolve", "request", req)
	}
}

// Resolve waits for the result of the last Request for req and consumes
// it. If the image was updated after the request, the latest data is
// rasterized instead. If ctx ends first, the request stays outstanding.
func (r *Renderer) Resolve(ctx context.Context, req imageapi.BlobImageRequest) (*imageapi.RasterizedBlobImage, error) {
	r.mu.Lock()
	j, ok := r.jobs[req]
	if ok {
		delete(r.jobs, req)
	}
	_, registered := r.images[req.Key]
	r.mu.Unlock()
	switch {
	case !ok && !registered:
		return nil, fmt.Errorf("blob: resolve %v: %w", req, invalidKey(req.Key))
	case !ok:
		return nil, fmt.Errorf("blob: resolve %v: %w", req, imageapi.ErrNotRequested)
	}

	for {
		if err := r.wait(ctx, j); err != nil {
			r.mu.Lock()
			_, taken := r.jobs[req]
			if !taken && (j.image == nil || r.images[req.Key] == j.image) {
				r.jobs[req] = j
			}
			r.mu.Unlock()
			return nil, err
		}

		// A failed job that never reached an image has nothing to refresh.
		if j.image == nil {
			return nil, j.err
		}

		r.mu.Lock()
		cur, ok := r.images[req.Key]
		switch {
		case !ok || cur != j.image:
			r.mu.Unlock()
			return nil, invalidKey(req.Key)
		case cur.generation == j.generation:
			r.mu.Unlock()
			if j.err != nil {
				r.log.Warn("blob: rasterization failed", "request", req, "err", j.err)
			}
			return j.result, j.err
		}

		// Stale: the dirty rectangle of the request no longer covers what
		// changed, so redraw the whole target.
		r.log.Debug("blob: re-rasterizing stale request", "request", req,
			"have", j.generation, "want", cur.generation)
		j = &job{
			req:        req,
			res:        j.res,
			desc:       j.desc,
			data:       cur.data,
			image:      cur,
			generation: cur.generation,
			done:       make(chan struct{}),
		}
		cur.requested[req] = cur.generation
		r.mu.Unlock()
	}
}

// wait runs j if nobody has started it and waits for it to finish.
func (r *Renderer) wait(ctx context.Context, j *job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.pool == nil {
		r.run(j)
		return nil
	}

	go r.run(j)
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Renderer) run(j *job) {
	j.once.Do(func() {
		defer close(j.done)
		if j.abandoned.Load() {
			j.err = imageapi.NewOtherError("request superseded")
			return
		}
		j.result, j.err = rasterize(j.data, j.res, r.fonts, j.desc, j.dirty, r.opts.maxTargetBytes)
	})
}

// NeedsRaster reports whether tile, in image space, intersects anything
// updated since req was last requested. Unrequested tiles always need
// rasterization; unknown keys never do.
func (r *Renderer) NeedsRaster(req imageapi.BlobImageRequest, tile imageapi.DeviceUintRect) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, ok := r.images[req.Key]
	if !ok {
		return false
	}
	seen, ok := img.requested[req]
	if !ok {
		return true
	}
	for _, u := range img.updates {
		if u.generation <= seen {
			continue
		}
		if u.rect == nil || u.rect.Overlaps(tile) {
			return true
		}
	}
	return false
}

// Tiling returns the tile size key was added with.
func (r *Renderer) Tiling(key imageapi.ImageKey) (imageapi.TileSize, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, ok := r.images[key]
	if !ok {
		return 0, false
	}
	return img.tiling, true
}

// DeleteFont drops the parsed font and its cached glyph outlines.
func (r *Renderer) DeleteFont(key imageapi.FontKey) {
	r.fonts.deleteFont(key)
	r.log.Debug("blob: font deleted", "font", key)
}

// DeleteFontInstance drops the glyph outlines cached for the instance.
func (r *Renderer) DeleteFontInstance(key imageapi.FontInstanceKey) {
	r.fonts.deleteInstance(key)
	r.log.Debug("blob: font instance deleted", "instance", key)
}

func failedJob(req imageapi.BlobImageRequest, err error) *job {
	j := &job{req: req, err: err, done: make(chan struct{})}
	j.once.Do(func() { close(j.done) })
	return j
}

func invalidKey(key imageapi.ImageKey) error {
	return imageapi.NewBlobError(imageapi.BlobErrorInvalidKey, key.String()+" is not registered")
}

func copyRect(r *imageapi.DeviceUintRect) *imageapi.DeviceUintRect {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
