package external

import "errors"

var (
	// ErrImageAbsent is returned by Handoff.Lock when the host reports an
	// invalid source. The image is treated as absent for the frame.
	ErrImageAbsent = errors.New("external: image absent")

	// ErrAlreadyUnlocked is returned when a released lock is used again.
	ErrAlreadyUnlocked = errors.New("external: lock already released")

	// ErrLocked is returned when changing a buffer or texture that is
	// currently lent to the renderer.
	ErrLocked = errors.New("external: resource is locked")

	// ErrNotRaw is returned by LockedImage.Bytes for texture sources.
	ErrNotRaw = errors.New("external: source is not a raw buffer")

	// ErrNotUpdatable is returned when a destination texture cannot be
	// written from the CPU.
	ErrNotUpdatable = errors.New("external: texture does not accept uploads")
)
