// Package resource keeps the images and fonts a host has registered and
// serves them to blob rasterization.
package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/imageapi"
)

// ErrShortBuffer is returned when raw pixel data is smaller than its
// descriptor requires.
var ErrShortBuffer = errors.New("resource: pixel data shorter than descriptor")

// FontInstance is a font at one size.
type FontInstance struct {
	Font imageapi.FontKey `json:"font"`
	Size float32          `json:"size"`
}

type imageEntry struct {
	data   imageapi.ImageData
	desc   imageapi.ImageDescriptor
	tiling imageapi.TileSize
}

// Store holds registered images, fonts and font instances. It implements
// imageapi.BlobImageResources and is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	images    map[imageapi.ImageKey]imageEntry
	fonts     map[imageapi.FontKey]imageapi.FontTemplate
	instances map[imageapi.FontInstanceKey]FontInstance
}

var _ imageapi.BlobImageResources = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		images:    make(map[imageapi.ImageKey]imageEntry),
		fonts:     make(map[imageapi.FontKey]imageapi.FontTemplate),
		instances: make(map[imageapi.FontInstanceKey]FontInstance),
	}
}

// AddImage registers an image.
func (s *Store) AddImage(key imageapi.ImageKey, desc imageapi.ImageDescriptor, data imageapi.ImageData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addImage(key, desc, data, 0)
}

// UpdateImage replaces the descriptor and data of an image. The previous
// data is dropped as a whole.
func (s *Store) UpdateImage(key imageapi.ImageKey, desc imageapi.ImageDescriptor, data imageapi.ImageData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateImage(key, desc, data, 0)
}

// DeleteImage unregisters an image.
func (s *Store) DeleteImage(key imageapi.ImageKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteImage(key)
}

// AddFont registers a font file.
func (s *Store) AddFont(key imageapi.FontKey, tmpl imageapi.FontTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFont(key, tmpl)
}

// DeleteFont unregisters a font file.
func (s *Store) DeleteFont(key imageapi.FontKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteFont(key)
}

// AddFontInstance registers a sized instance of a registered font.
func (s *Store) AddFontInstance(key imageapi.FontInstanceKey, font imageapi.FontKey, size float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFontInstance(key, FontInstance{Font: font, Size: size})
}

// DeleteFontInstance unregisters a font instance.
func (s *Store) DeleteFontInstance(key imageapi.FontInstanceKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteFontInstance(key)
}

// FontData implements imageapi.BlobImageResources.
func (s *Store) FontData(key imageapi.FontKey) (imageapi.FontTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.fonts[key]
	return t, ok
}

// Image implements imageapi.BlobImageResources.
func (s *Store) Image(key imageapi.ImageKey) (imageapi.ImageData, imageapi.ImageDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.images[key]
	return e.data, e.desc, ok
}

// FontInstance returns a registered font instance.
func (s *Store) FontInstance(key imageapi.FontInstanceKey) (FontInstance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fi, ok := s.instances[key]
	return fi, ok
}

// Len returns the number of registered images.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// The methods below expect s.mu to be held.

func (s *Store) addImage(key imageapi.ImageKey, desc imageapi.ImageDescriptor, data imageapi.ImageData, tiling imageapi.TileSize) error {
	if _, ok := s.images[key]; ok {
		return fmt.Errorf("resource: add %v: %w", key, imageapi.ErrAlreadyRegistered)
	}
	if err := checkImage(key, desc, data); err != nil {
		return err
	}
	s.images[key] = imageEntry{data: data, desc: desc, tiling: tiling}
	return nil
}

func (s *Store) updateImage(key imageapi.ImageKey, desc imageapi.ImageDescriptor, data imageapi.ImageData, tiling imageapi.TileSize) error {
	old, ok := s.images[key]
	if !ok {
		return fmt.Errorf("resource: update %v: %w", key, imageapi.ErrNotRegistered)
	}
	if err := checkImage(key, desc, data); err != nil {
		return err
	}
	if tiling == 0 {
		tiling = old.tiling
	}
	s.images[key] = imageEntry{data: data, desc: desc, tiling: tiling}
	return nil
}

func (s *Store) deleteImage(key imageapi.ImageKey) error {
	if _, ok := s.images[key]; !ok {
		return fmt.Errorf("resource: delete %v: %w", key, imageapi.ErrNotRegistered)
	}
	delete(s.images, key)
	return nil
}

func (s *Store) addFont(key imageapi.FontKey, tmpl imageapi.FontTemplate) error {
	if _, ok := s.fonts[key]; ok {
		return fmt.Errorf("resource: add %v: %w", key, imageapi.ErrAlreadyRegistered)
	}
	s.fonts[key] = tmpl
	return nil
}

func (s *Store) deleteFont(key imageapi.FontKey) error {
	if _, ok := s.fonts[key]; !ok {
		return fmt.Errorf("resource: delete %v: %w", key, imageapi.ErrNotRegistered)
	}
	delete(s.fonts, key)
	return nil
}

func (s *Store) addFontInstance(key imageapi.FontInstanceKey, fi FontInstance) error {
	if _, ok := s.instances[key]; ok {
		return fmt.Errorf("resource: add %v: %w", key, imageapi.ErrAlreadyRegistered)
	}
	if _, ok := s.fonts[fi.Font]; !ok {
		return fmt.Errorf("resource: add %v for %v: %w", key, fi.Font, imageapi.ErrNotRegistered)
	}
	s.instances[key] = fi
	return nil
}

func (s *Store) deleteFontInstance(key imageapi.FontInstanceKey) error {
	if _, ok := s.instances[key]; !ok {
		return fmt.Errorf("resource: delete %v: %w", key, imageapi.ErrNotRegistered)
	}
	delete(s.instances, key)
	return nil
}

// checkImage rejects raw data too short for its descriptor. Other variants
// carry no pixels to check.
func checkImage(key imageapi.ImageKey, desc imageapi.ImageDescriptor, data imageapi.ImageData) error {
	if !desc.Format.IsValid() {
		return fmt.Errorf("resource: %v: invalid format %d", key, uint32(desc.Format))
	}
	raw, ok := data.(imageapi.RawImageData)
	if !ok {
		return nil
	}
	if need := desc.ComputeTotalSize(); uint64(raw.Buffer.Len()) < need {
		return fmt.Errorf("resource: %v: %d bytes, need %d: %w", key, raw.Buffer.Len(), need, ErrShortBuffer)
	}
	return nil
}
