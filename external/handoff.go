package external

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/imageapi"
)

// Handoff pairs every Lock on an ExternalImageHandler with exactly one
// Unlock.
//
// Handoff is safe for concurrent use. A LockedImage may be unlocked from
// any goroutine.
type Handoff struct {
	handler imageapi.ExternalImageHandler
	log     *slog.Logger

	mu   sync.Mutex
	live map[*LockedImage]struct{}
}

// NewHandoff wraps handler. It logs through imageapi.Logger().
func NewHandoff(handler imageapi.ExternalImageHandler) *Handoff {
	return &Handoff{
		handler: handler,
		log:     imageapi.Logger(),
		live:    make(map[*LockedImage]struct{}),
	}
}

// LockedImage is the capability to read one locked external image.
// Its content is valid until Unlock.
type LockedImage struct {
	h        *Handoff
	id       imageapi.ExternalImageID
	channel  uint8
	image    imageapi.ExternalImage
	released atomic.Bool
}

// Lock locks channel of the external image id. If the host reports an
// invalid source the matching unlock is issued at once and ErrImageAbsent
// is returned.
func (h *Handoff) Lock(id imageapi.ExternalImageID, channel uint8) (*LockedImage, error) {
	img := h.handler.Lock(id, channel)

	switch img.Source.(type) {
	case imageapi.RawDataSource, imageapi.NativeTextureSource:
	default:
		h.handler.Unlock(id, channel)
		h.log.Debug("external: image absent", "id", id, "channel", channel)
		return nil, fmt.Errorf("external: lock %v channel %d: %w", id, channel, ErrImageAbsent)
	}

	l := &LockedImage{h: h, id: id, channel: channel, image: img}
	h.mu.Lock()
	h.live[l] = struct{}{}
	h.mu.Unlock()
	return l, nil
}

// Outstanding returns the locks not yet released, ordered by id and
// channel.
func (h *Handoff) Outstanding() []*LockedImage {
	h.mu.Lock()
	out := make([]*LockedImage, 0, len(h.live))
	for l := range h.live {
		out = append(out, l)
	}
	h.mu.Unlock()

	slices.SortFunc(out, func(a, b *LockedImage) int {
		if c := cmp.Compare(a.id, b.id); c != 0 {
			return c
		}
		return cmp.Compare(a.channel, b.channel)
	})
	return out
}

// UnlockAll releases every outstanding lock, for use at the end of a frame.
// It returns how many locks were released.
func (h *Handoff) UnlockAll() int {
	n := 0
	for _, l := range h.Outstanding() {
		if l.Unlock() == nil {
			n++
		}
	}
	if n > 0 {
		h.log.Debug("external: released outstanding locks", "count", n)
	}
	return n
}

// ID returns the locked image id.
func (l *LockedImage) ID() imageapi.ExternalImageID { return l.id }

// Channel returns the locked channel.
func (l *LockedImage) Channel() uint8 { return l.channel }

// View returns what the host lent.
func (l *LockedImage) View() (imageapi.ExternalImage, error) {
	if l.released.Load() {
		return imageapi.ExternalImage{}, ErrAlreadyUnlocked
	}
	return l.image, nil
}

// Bytes returns the lent buffer of a raw source. The slice must not be
// used after Unlock.
func (l *LockedImage) Bytes() ([]byte, error) {
	img, err := l.View()
	if err != nil {
		return nil, err
	}
	raw, ok := img.Source.(imageapi.RawDataSource)
	if !ok {
		return nil, ErrNotRaw
	}
	return raw, nil
}

// Unlock returns the image to the host. A second call returns
// ErrAlreadyUnlocked and does not reach the host.
func (l *LockedImage) Unlock() error {
	if !l.released.CompareAndSwap(false, true) {
		return ErrAlreadyUnlocked
	}
	l.h.mu.Lock()
	delete(l.h.live, l)
	l.h.mu.Unlock()

	l.h.handler.Unlock(l.id, l.channel)
	return nil
}
