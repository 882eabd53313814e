package resource

import (
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/gogpu/imageapi"
)

// ErrMalformed is returned for an update that lacks a field its op needs.
var ErrMalformed = errors.New("resource: malformed update")

// Op names one resource change.
type Op string

// Resource operations.
const (
	OpAddImage           Op = "add_image"
	OpUpdateImage        Op = "update_image"
	OpDeleteImage        Op = "delete_image"
	OpAddFont            Op = "add_font"
	OpDeleteFont         Op = "delete_font"
	OpAddFontInstance    Op = "add_font_instance"
	OpDeleteFontInstance Op = "delete_font_instance"
)

// Update is one operation of a batch. Only the fields its Op uses are set.
type Update struct {
	Op Op `json:"op"`

	Image      *imageapi.ImageKey        `json:"image,omitempty"`
	Descriptor *imageapi.ImageDescriptor `json:"descriptor,omitempty"`
	Data       *Payload                  `json:"data,omitempty"`
	Tiling     imageapi.TileSize         `json:"tiling,omitempty"`
	Dirty      *imageapi.DeviceUintRect  `json:"dirty,omitempty"`

	Font     *imageapi.FontKey         `json:"font,omitempty"`
	Template *imageapi.FontTemplate    `json:"template,omitempty"`
	Instance *imageapi.FontInstanceKey `json:"instance,omitempty"`
	Size     float32                   `json:"size,omitempty"`
}

// Updates is a batch of resource changes. It is applied as a whole: either
// every operation is valid against the store and all are applied in order,
// or none is. Batches encode to JSON so a client in another process can
// send them.
type Updates struct {
	Ops []Update `json:"ops"`
}

// AddImage appends the registration of an image. A non-zero tiling applies
// to blob data.
func (u *Updates) AddImage(key imageapi.ImageKey, desc imageapi.ImageDescriptor, data imageapi.ImageData, tiling imageapi.TileSize) {
	u.Ops = append(u.Ops, Update{Op: OpAddImage, Image: &key, Descriptor: &desc, Data: &Payload{data}, Tiling: tiling})
}

// UpdateImage appends the replacement of an image. dirty limits the change
// for blob data; nil means the whole image.
func (u *Updates) UpdateImage(key imageapi.ImageKey, desc imageapi.ImageDescriptor, data imageapi.ImageData, dirty *imageapi.DeviceUintRect) {
	u.Ops = append(u.Ops, Update{Op: OpUpdateImage, Image: &key, Descriptor: &desc, Data: &Payload{data}, Dirty: dirty})
}

// DeleteImage appends the removal of an image.
func (u *Updates) DeleteImage(key imageapi.ImageKey) {
	u.Ops = append(u.Ops, Update{Op: OpDeleteImage, Image: &key})
}

// AddFont appends the registration of a font file.
func (u *Updates) AddFont(key imageapi.FontKey, tmpl imageapi.FontTemplate) {
	u.Ops = append(u.Ops, Update{Op: OpAddFont, Font: &key, Template: &tmpl})
}

// DeleteFont appends the removal of a font file.
func (u *Updates) DeleteFont(key imageapi.FontKey) {
	u.Ops = append(u.Ops, Update{Op: OpDeleteFont, Font: &key})
}

// AddFontInstance appends the registration of a font instance.
func (u *Updates) AddFontInstance(key imageapi.FontInstanceKey, font imageapi.FontKey, size float32) {
	u.Ops = append(u.Ops, Update{Op: OpAddFontInstance, Instance: &key, Font: &font, Size: size})
}

// DeleteFontInstance appends the removal of a font instance.
func (u *Updates) DeleteFontInstance(key imageapi.FontInstanceKey) {
	u.Ops = append(u.Ops, Update{Op: OpDeleteFontInstance, Instance: &key})
}

// Len returns the number of operations.
func (u *Updates) Len() int {
	return len(u.Ops)
}

// Encode writes the batch as JSON.
func (u *Updates) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(u)
}

// Decode reads a batch written by Encode.
func Decode(r io.Reader) (*Updates, error) {
	var u Updates
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return nil, fmt.Errorf("resource: decode updates: %w", err)
	}
	return &u, nil
}

// Apply applies the batch to s. Blob images and font deletions are
// forwarded to r so its state follows the store; r may be nil.
//
// The store is locked for the whole batch. Nothing changes if any
// operation is invalid. Operations forwarded to r are checked against it
// too when r reports its keys, as *blob.Renderer does; otherwise a
// renderer error stops the batch after the operations before it.
func (u *Updates) Apply(s *Store, r imageapi.BlobImageRenderer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := u.check(s, r); err != nil {
		return err
	}
	for i, op := range u.Ops {
		if err := s.apply(op, r); err != nil {
			return fmt.Errorf("resource: op %d (%s): %w", i, op.Op, err)
		}
	}
	imageapi.Logger().Debug("resource: updates applied", "ops", len(u.Ops))
	return nil
}

// blobRegistry is implemented by renderers that report which blob keys
// they hold.
type blobRegistry interface {
	Tiling(key imageapi.ImageKey) (imageapi.TileSize, bool)
}

// check validates every operation against the store, and r when it is a
// blobRegistry, as changed by the operations before it.
func (u *Updates) check(s *Store, r imageapi.BlobImageRenderer) error {
	reg, _ := r.(blobRegistry)
	images := map[imageapi.ImageKey]bool{}
	blobs := map[imageapi.ImageKey]bool{}
	forwarded := map[imageapi.ImageKey]bool{}
	fonts := map[imageapi.FontKey]bool{}
	instances := map[imageapi.FontInstanceKey]bool{}

	hasImage := func(k imageapi.ImageKey) bool {
		if v, ok := images[k]; ok {
			return v
		}
		_, ok := s.images[k]
		return ok
	}
	isBlob := func(k imageapi.ImageKey) bool {
		if v, ok := blobs[k]; ok {
			return v
		}
		return imageapi.IsBlob(s.images[k].data)
	}
	// forward checks that k is registered with reg as an operation passed
	// on to it expects, and records whether it is registered afterwards.
	forward := func(k imageapi.ImageKey, before, after bool) error {
		if reg == nil {
			return nil
		}
		registered, ok := forwarded[k]
		if !ok {
			_, registered = reg.Tiling(k)
		}
		switch {
		case before && !registered:
			return fmt.Errorf("renderer: %w", imageapi.ErrNotRegistered)
		case !before && registered:
			return fmt.Errorf("renderer: %w", imageapi.ErrAlreadyRegistered)
		}
		forwarded[k] = after
		return nil
	}
	hasFont := func(k imageapi.FontKey) bool {
		if v, ok := fonts[k]; ok {
			return v
		}
		_, ok := s.fonts[k]
		return ok
	}
	hasInstance := func(k imageapi.FontInstanceKey) bool {
		if v, ok := instances[k]; ok {
			return v
		}
		_, ok := s.instances[k]
		return ok
	}

	for i, op := range u.Ops {
		fail := func(err error) error {
			return fmt.Errorf("resource: op %d (%s): %w", i, op.Op, err)
		}
		if err := op.complete(); err != nil {
			return fail(err)
		}

		switch op.Op {
		case OpAddImage, OpUpdateImage:
			exists := hasImage(*op.Image)
			if op.Op == OpAddImage && exists {
				return fail(imageapi.ErrAlreadyRegistered)
			}
			if op.Op == OpUpdateImage && !exists {
				return fail(imageapi.ErrNotRegistered)
			}
			if err := checkImage(*op.Image, *op.Descriptor, op.Data.ImageData); err != nil {
				return fail(err)
			}
			wasBlob := exists && isBlob(*op.Image)
			nowBlob := imageapi.IsBlob(op.Data.ImageData)
			var err error
			switch {
			case wasBlob && nowBlob:
				err = forward(*op.Image, true, true)
			case wasBlob:
				err = forward(*op.Image, true, false)
			case nowBlob:
				err = forward(*op.Image, false, true)
			}
			if err != nil {
				return fail(err)
			}
			images[*op.Image] = true
			blobs[*op.Image] = nowBlob
		case OpDeleteImage:
			if !hasImage(*op.Image) {
				return fail(imageapi.ErrNotRegistered)
			}
			if isBlob(*op.Image) {
				if err := forward(*op.Image, true, false); err != nil {
					return fail(err)
				}
			}
			images[*op.Image] = false
			blobs[*op.Image] = false
		case OpAddFont:
			if hasFont(*op.Font) {
				return fail(imageapi.ErrAlreadyRegistered)
			}
			fonts[*op.Font] = true
		case OpDeleteFont:
			if !hasFont(*op.Font) {
				return fail(imageapi.ErrNotRegistered)
			}
			fonts[*op.Font] = false
		case OpAddFontInstance:
			if hasInstance(*op.Instance) {
				return fail(imageapi.ErrAlreadyRegistered)
			}
			if !hasFont(*op.Font) {
				return fail(imageapi.ErrNotRegistered)
			}
			instances[*op.Instance] = true
		case OpDeleteFontInstance:
			if !hasInstance(*op.Instance) {
				return fail(imageapi.ErrNotRegistered)
			}
			instances[*op.Instance] = false
		}
	}
	return nil
}

// complete reports whether op carries the fields it needs.
func (op Update) complete() error {
	var ok bool
	switch op.Op {
	case OpAddImage, OpUpdateImage:
		ok = op.Image != nil && op.Descriptor != nil && op.Data != nil && op.Data.ImageData != nil
	case OpDeleteImage:
		ok = op.Image != nil
	case OpAddFont:
		ok = op.Font != nil && op.Template != nil
	case OpDeleteFont:
		ok = op.Font != nil
	case OpAddFontInstance:
		ok = op.Instance != nil && op.Font != nil
	case OpDeleteFontInstance:
		ok = op.Instance != nil
	default:
		return fmt.Errorf("%w: unknown op %q", ErrMalformed, op.Op)
	}
	if !ok {
		return ErrMalformed
	}
	return nil
}

// apply runs one checked operation. s.mu must be held.
func (s *Store) apply(op Update, r imageapi.BlobImageRenderer) error {
	switch op.Op {
	case OpAddImage:
		if err := s.addImage(*op.Image, *op.Descriptor, op.Data.ImageData, op.Tiling); err != nil {
			return err
		}
		if blob, ok := op.Data.ImageData.(imageapi.BlobImageData); ok && r != nil {
			return r.Add(*op.Image, blob, op.Tiling)
		}
	case OpUpdateImage:
		old := s.images[*op.Image]
		if err := s.updateImage(*op.Image, *op.Descriptor, op.Data.ImageData, op.Tiling); err != nil {
			return err
		}
		if r == nil {
			return nil
		}
		_, wasBlob := old.data.(imageapi.BlobImageData)
		blob, isBlob := op.Data.ImageData.(imageapi.BlobImageData)
		switch {
		case wasBlob && isBlob:
			return r.Update(*op.Image, blob, op.Dirty)
		case wasBlob:
			return r.Delete(*op.Image)
		case isBlob:
			return r.Add(*op.Image, blob, s.images[*op.Image].tiling)
		}
	case OpDeleteImage:
		old := s.images[*op.Image]
		if err := s.deleteImage(*op.Image); err != nil {
			return err
		}
		if imageapi.IsBlob(old.data) && r != nil {
			return r.Delete(*op.Image)
		}
	case OpAddFont:
		return s.addFont(*op.Font, *op.Template)
	case OpDeleteFont:
		if err := s.deleteFont(*op.Font); err != nil {
			return err
		}
		if r != nil {
			r.DeleteFont(*op.Font)
		}
	case OpAddFontInstance:
		return s.addFontInstance(*op.Instance, FontInstance{Font: *op.Font, Size: op.Size})
	case OpDeleteFontInstance:
		if err := s.deleteFontInstance(*op.Instance); err != nil {
			return err
		}
		if r != nil {
			r.DeleteFontInstance(*op.Instance)
		}
	}
	return nil
}

// Payload wraps ImageData for JSON, tagging the variant with a kind.
type Payload struct {
	imageapi.ImageData
}

type payloadJSON struct {
	Kind     string                      `json:"kind"`
	Bytes    []byte                      `json:"bytes,omitempty"`
	External *imageapi.ExternalImageData `json:"external,omitempty"`
}

const (
	kindRaw      = "raw"
	kindBlob     = "blob"
	kindExternal = "external"
)

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	var v payloadJSON
	switch d := p.ImageData.(type) {
	case imageapi.RawImageData:
		v = payloadJSON{Kind: kindRaw, Bytes: d.Bytes()}
	case imageapi.BlobImageData:
		v = payloadJSON{Kind: kindBlob, Bytes: d}
	case imageapi.ExternalImageData:
		v = payloadJSON{Kind: kindExternal, External: &d}
	default:
		return nil, fmt.Errorf("resource: cannot encode image data %T", p.ImageData)
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Payload) UnmarshalJSON(b []byte) error {
	var v payloadJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v.Kind {
	case kindRaw:
		p.ImageData = imageapi.NewImageData(v.Bytes)
	case kindBlob:
		p.ImageData = imageapi.NewBlobImageData(v.Bytes)
	case kindExternal:
		if v.External == nil || !v.External.ImageType.IsValid() {
			return fmt.Errorf("%w: bad external image", ErrMalformed)
		}
		p.ImageData = *v.External
	default:
		return fmt.Errorf("%w: unknown image data kind %q", ErrMalformed, v.Kind)
	}
	return nil
}
