package imageapi

import "errors"

// Registration errors. These are caller contract violations, reported
// instead of silently ignored.
var (
	// ErrAlreadyRegistered is returned when adding a key that is registered.
	ErrAlreadyRegistered = errors.New("imageapi: key already registered")

	// ErrNotRegistered is returned when updating or deleting an unknown key.
	ErrNotRegistered = errors.New("imageapi: key not registered")

	// ErrNotRequested is returned by Resolve when no Request is outstanding
	// for the given request.
	ErrNotRequested = errors.New("imageapi: no outstanding request")
)

// BlobErrorKind classifies rasterization failures.
type BlobErrorKind uint8

const (
	// BlobErrorOom means the target buffer could not be allocated. The
	// caller may retry once memory pressure is relieved.
	BlobErrorOom BlobErrorKind = iota + 1

	// BlobErrorInvalidKey means the key is unknown or was deleted. It is
	// fatal to the request, not to the renderer.
	BlobErrorInvalidKey

	// BlobErrorInvalidData means the command stream is malformed. The key
	// stays broken until its next Update.
	BlobErrorInvalidData

	// BlobErrorOther is an opaque failure, treated as permanent.
	BlobErrorOther
)

func (k BlobErrorKind) String() string {
	switch k {
	case BlobErrorOom:
		return "Oom"
	case BlobErrorInvalidKey:
		return "InvalidKey"
	case BlobErrorInvalidData:
		return "InvalidData"
	case BlobErrorOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// BlobImageError is the error returned by Resolve when rasterization fails.
// It only concerns the request that produced it.
type BlobImageError struct {
	Kind    BlobErrorKind
	Message string
}

// Sentinel blob errors for use with errors.Is. Any *BlobImageError of the
// same kind matches, whatever its message.
var (
	ErrOom         = &BlobImageError{Kind: BlobErrorOom}
	ErrInvalidKey  = &BlobImageError{Kind: BlobErrorInvalidKey}
	ErrInvalidData = &BlobImageError{Kind: BlobErrorInvalidData}
)

// NewBlobError returns an error of the given kind with a diagnostic message.
func NewBlobError(kind BlobErrorKind, msg string) *BlobImageError {
	return &BlobImageError{Kind: kind, Message: msg}
}

// NewOtherError returns an opaque rasterization failure.
func NewOtherError(msg string) *BlobImageError {
	return &BlobImageError{Kind: BlobErrorOther, Message: msg}
}

func (e *BlobImageError) Error() string {
	if e.Message == "" {
		return "imageapi: blob image error: " + e.Kind.String()
	}
	return "imageapi: blob image error: " + e.Kind.String() + ": " + e.Message
}

// Is matches any *BlobImageError with the same kind.
func (e *BlobImageError) Is(target error) bool {
	t, ok := target.(*BlobImageError)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether the same request may succeed later without an
// Update. Only out-of-memory failures are retryable.
func (e *BlobImageError) Retryable() bool {
	return e.Kind == BlobErrorOom
}
