package blob

import "log/slog"

// Option configures a Renderer during creation.
//
// Example:
//
//	// Worker pool sized to GOMAXPROCS
//	r := blob.NewRenderer()
//
//	// Rasterize inside Resolve, on the caller's goroutine
//	r := blob.NewRenderer(blob.WithSynchronous())
type Option func(*options)

// Defaults.
const (
	// DefaultMaxTargetBytes bounds the size of one rasterization target.
	// Larger requests fail with an Oom error.
	DefaultMaxTargetBytes = 256 << 20

	// DefaultGlyphCacheSize is the number of glyph outlines kept.
	DefaultGlyphCacheSize = 4096
)

type options struct {
	workers        int
	synchronous    bool
	maxTargetBytes uint64
	glyphCacheSize int
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		workers:        0, // GOMAXPROCS
		maxTargetBytes: DefaultMaxTargetBytes,
		glyphCacheSize: DefaultGlyphCacheSize,
	}
}

// WithWorkers sets the number of rasterization workers.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithSynchronous disables the worker pool. Each request is rasterized
// when it is resolved, on the goroutine calling Resolve.
func WithSynchronous() Option {
	return func(o *options) {
		o.synchronous = true
	}
}

// WithMaxTargetBytes sets how much a single request may allocate: the
// target buffer plus the coverage masks over its dirty area. Zero keeps
// the default.
func WithMaxTargetBytes(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTargetBytes = n
		}
	}
}

// WithGlyphCacheSize sets how many glyph outlines are cached.
// Values below 1 keep the default.
func WithGlyphCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.glyphCacheSize = n
		}
	}
}

// WithLogger sets the logger. By default the renderer logs through
// imageapi.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
