package blob

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-text/typesetting/di"
	gotext "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/bidi"

	"github.com/gogpu/imageapi"
)

// parsedFont is one font file parsed for outline extraction. The go-text
// font used for shaping is parsed on first use, since glyph-only streams
// never need it.
type parsedFont struct {
	outlines *sfnt.Font
	data     []byte
	index    uint32

	// epoch is the DeleteFont count of the key when the file was loaded.
	epoch uint64

	shapeOnce sync.Once
	shapeFont *gotext.Font
	shapeErr  error
}

// shaping returns the go-text font for the file. *gotext.Font is read-only
// and safe for concurrent use.
func (p *parsedFont) shaping() (*gotext.Font, error) {
	p.shapeOnce.Do(func() {
		r := bytes.NewReader(p.data)
		if bytes.HasPrefix(p.data, []byte("ttcf")) {
			faces, err := gotext.ParseTTC(r)
			if err != nil {
				p.shapeErr = err
				return
			}
			if int(p.index) >= len(faces) {
				p.shapeErr = fmt.Errorf("collection index %d out of range", p.index)
				return
			}
			p.shapeFont = faces[p.index].Font
			return
		}
		face, err := gotext.ParseTTF(r)
		if err != nil {
			p.shapeErr = err
			return
		}
		p.shapeFont = face.Font
	})
	return p.shapeFont, p.shapeErr
}

// glyphKey identifies a cached outline. Size is stored as float bits so
// the key stays comparable. Outlines added from a font retired by
// DeleteFont carry its old epoch and are never looked up again.
type glyphKey struct {
	instance imageapi.FontInstanceKey
	font     imageapi.FontKey
	epoch    uint64
	glyph    uint16
	size     uint32
}

// fontCache holds parsed fonts and glyph outlines shared by all jobs of a
// renderer. It is safe for concurrent use.
type fontCache struct {
	mu     sync.Mutex
	fonts  map[imageapi.FontKey]*parsedFont
	epochs map[imageapi.FontKey]uint64

	parse  singleflight.Group
	glyphs *lru.Cache[glyphKey, []sfnt.Segment]

	buffers sync.Pool
	shapers sync.Pool
}

func newFontCache(glyphCacheSize int) *fontCache {
	glyphs, err := lru.New[glyphKey, []sfnt.Segment](glyphCacheSize)
	if err != nil {
		// Only returned for a non-positive size, which options rule out.
		panic(err)
	}
	return &fontCache{
		fonts:   make(map[imageapi.FontKey]*parsedFont),
		epochs:  make(map[imageapi.FontKey]uint64),
		glyphs:  glyphs,
		buffers: sync.Pool{New: func() any { return new(sfnt.Buffer) }},
		shapers: sync.Pool{New: func() any { return &shaping.HarfbuzzShaper{} }},
	}
}

// font returns the parsed font for key, loading it from res on first use.
// Concurrent loads of one key parse the file once.
func (c *fontCache) font(res imageapi.BlobImageResources, key imageapi.FontKey) (*parsedFont, error) {
	c.mu.Lock()
	if f, ok := c.fonts[key]; ok {
		c.mu.Unlock()
		return f, nil
	}
	epoch := c.epochs[key]
	c.mu.Unlock()

	v, err, _ := c.parse.Do(fmt.Sprintf("%v/%d", key, epoch), func() (any, error) {
		tmpl, ok := res.FontData(key)
		if !ok {
			return nil, imageapi.NewOtherError(fmt.Sprintf("%v not found", key))
		}
		coll, err := sfnt.ParseCollection(tmpl.Bytes)
		if err != nil {
			return nil, imageapi.NewOtherError(fmt.Sprintf("parse %v: %v", key, err))
		}
		f, err := coll.Font(int(tmpl.Index))
		if err != nil {
			return nil, imageapi.NewOtherError(fmt.Sprintf("parse %v: %v", key, err))
		}
		p := &parsedFont{outlines: f, data: tmpl.Bytes, index: tmpl.Index, epoch: epoch}

		c.mu.Lock()
		// A DeleteFont during the parse bumps the epoch; the result is
		// still returned to this caller but not kept.
		if c.epochs[key] == epoch {
			c.fonts[key] = p
		}
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*parsedFont), nil
}

// outline returns the segments of one glyph at the size in ref, in pixels
// with y pointing down and the origin on the baseline. A glyph without an
// outline, such as a space or a color glyph, yields no segments.
func (c *fontCache) outline(f *parsedFont, ref FontRef, gid uint16) ([]sfnt.Segment, error) {
	key := glyphKey{
		instance: ref.Instance,
		font:     ref.Font,
		epoch:    f.epoch,
		glyph:    gid,
		size:     math.Float32bits(ref.Size),
	}
	if segs, ok := c.glyphs.Get(key); ok {
		return segs, nil
	}

	buf := c.buffers.Get().(*sfnt.Buffer)
	defer c.buffers.Put(buf)

	ppem := fixed.Int26_6(ref.Size * 64)
	segs, err := f.outlines.LoadGlyph(buf, sfnt.GlyphIndex(gid), ppem, nil)
	switch {
	case errors.Is(err, sfnt.ErrColoredGlyph):
		segs = nil
	case err != nil:
		return nil, imageapi.NewOtherError(fmt.Sprintf("glyph %d of %v: %v", gid, ref.Font, err))
	}

	// LoadGlyph returns a slice of buf, which goes back to the pool.
	owned := make([]sfnt.Segment, len(segs))
	copy(owned, segs)
	c.glyphs.Add(key, owned)
	return owned, nil
}

// shape converts text into glyphs positioned relative to the text origin.
// Runs of each bidi direction are shaped separately and laid out left to
// right in visual order.
func (c *fontCache) shape(f *parsedFont, ref FontRef, text string) ([]Glyph, error) {
	if text == "" {
		return nil, nil
	}
	gf, err := f.shaping()
	if err != nil {
		return nil, imageapi.NewOtherError(fmt.Sprintf("shape %v: %v", ref.Font, err))
	}

	var out []Glyph
	var pen float32
	for _, run := range bidiRuns(text) {
		runes := []rune(run.text)
		input := shaping.Input{
			Text:      runes,
			RunStart:  0,
			RunEnd:    len(runes),
			Direction: run.dir,
			Face:      gotext.NewFace(gf),
			Size:      fixed.Int26_6(ref.Size * 64),
			Script:    detectScript(runes),
			Language:  language.NewLanguage("en"),
		}

		hb := c.shapers.Get().(*shaping.HarfbuzzShaper)
		output := hb.Shape(input)
		c.shapers.Put(hb)

		for _, g := range output.Glyphs {
			out = append(out, Glyph{
				ID: uint16(g.GlyphID), //nolint:gosec // sfnt glyph indices are 16-bit
				DX: pen + fixedToFloat(g.XOffset),
				DY: -fixedToFloat(g.YOffset),
			})
			pen += fixedToFloat(g.Advance)
		}
	}
	return out, nil
}

// deleteFont drops the parsed font and all of its cached outlines.
func (c *fontCache) deleteFont(key imageapi.FontKey) {
	c.mu.Lock()
	delete(c.fonts, key)
	c.epochs[key]++
	c.mu.Unlock()

	for _, k := range c.glyphs.Keys() {
		if k.font == key {
			c.glyphs.Remove(k)
		}
	}
}

// deleteInstance drops the outlines cached for one font instance.
func (c *fontCache) deleteInstance(key imageapi.FontInstanceKey) {
	for _, k := range c.glyphs.Keys() {
		if k.instance == key {
			c.glyphs.Remove(k)
		}
	}
}

type textRun struct {
	text string
	dir  di.Direction
}

// bidiRuns splits text into directional runs in visual order.
func bidiRuns(text string) []textRun {
	p := bidi.Paragraph{}
	if _, err := p.SetString(text, bidi.DefaultDirection(bidi.Neutral)); err != nil {
		return []textRun{{text: text, dir: di.DirectionLTR}}
	}
	ordering, err := p.Order()
	if err != nil {
		return []textRun{{text: text, dir: di.DirectionLTR}}
	}

	runs := make([]textRun, 0, ordering.NumRuns())
	for i := range ordering.NumRuns() {
		run := ordering.Run(i)
		dir := di.DirectionLTR
		if run.Direction() == bidi.RightToLeft {
			dir = di.DirectionRTL
		}
		runs = append(runs, textRun{text: run.String(), dir: dir})
	}
	return runs
}

// detectScript returns the script of the first non-space rune.
func detectScript(runes []rune) language.Script {
	for _, r := range runes {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		return language.LookupScript(r)
	}
	return language.Latin
}

func fixedToFloat(v fixed.Int26_6) float32 {
	return float32(v) / 64
}
