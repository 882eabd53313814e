package external

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/imageapi"
)

type bufferKey struct {
	id      imageapi.ExternalImageID
	channel uint8
}

type buffer struct {
	data          []byte
	width, height uint32
	locks         int
}

// BufferHandler is an imageapi.ExternalImageHandler that lends byte
// buffers owned by the host. A buffer cannot be replaced or removed while
// it is locked.
//
// BufferHandler is safe for concurrent use.
type BufferHandler struct {
	log *slog.Logger

	mu      sync.Mutex
	buffers map[bufferKey]*buffer
}

var _ imageapi.ExternalImageHandler = (*BufferHandler)(nil)

// NewBufferHandler returns an empty handler.
func NewBufferHandler() *BufferHandler {
	return &BufferHandler{
		log:     imageapi.Logger(),
		buffers: make(map[bufferKey]*buffer),
	}
}

// Register adds a width x height buffer under id and channel. The handler
// keeps data; the caller must not modify it while registered.
func (b *BufferHandler) Register(id imageapi.ExternalImageID, channel uint8, data []byte, width, height uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := bufferKey{id, channel}
	if _, ok := b.buffers[k]; ok {
		return fmt.Errorf("external: register %v channel %d: %w", id, channel, imageapi.ErrAlreadyRegistered)
	}
	b.buffers[k] = &buffer{data: data, width: width, height: height}
	return nil
}

// Replace swaps the content of a registered buffer.
func (b *BufferHandler) Replace(id imageapi.ExternalImageID, channel uint8, data []byte, width, height uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := b.unlocked(id, channel, "replace")
	if err != nil {
		return err
	}
	buf.data, buf.width, buf.height = data, width, height
	return nil
}

// Remove unregisters a buffer.
func (b *BufferHandler) Remove(id imageapi.ExternalImageID, channel uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.unlocked(id, channel, "remove"); err != nil {
		return err
	}
	delete(b.buffers, bufferKey{id, channel})
	return nil
}

func (b *BufferHandler) unlocked(id imageapi.ExternalImageID, channel uint8, op string) (*buffer, error) {
	buf, ok := b.buffers[bufferKey{id, channel}]
	if !ok {
		return nil, fmt.Errorf("external: %s %v channel %d: %w", op, id, channel, imageapi.ErrNotRegistered)
	}
	if buf.locks > 0 {
		return nil, fmt.Errorf("external: %s %v channel %d: %w", op, id, channel, ErrLocked)
	}
	return buf, nil
}

// Lock lends the buffer. UVs span the whole buffer in texels. An unknown
// buffer yields an invalid source.
func (b *BufferHandler) Lock(id imageapi.ExternalImageID, channel uint8) imageapi.ExternalImage {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[bufferKey{id, channel}]
	if !ok {
		return imageapi.ExternalImage{Source: imageapi.InvalidSource{}}
	}
	buf.locks++
	return imageapi.ExternalImage{
		U1:     float32(buf.width),
		V1:     float32(buf.height),
		Source: imageapi.RawDataSource(buf.data),
	}
}

// Unlock ends one lend of the buffer.
func (b *BufferHandler) Unlock(id imageapi.ExternalImageID, channel uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[bufferKey{id, channel}]
	if !ok || buf.locks == 0 {
		// The unlock matching an invalid source lands here too.
		b.log.Debug("external: unlock without lock", "id", id, "channel", channel)
		return
	}
	buf.locks--
}

// Locks returns how many times the buffer is currently lent.
func (b *BufferHandler) Locks(id imageapi.ExternalImageID, channel uint8) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if buf, ok := b.buffers[bufferKey{id, channel}]; ok {
		return buf.locks
	}
	return 0
}
