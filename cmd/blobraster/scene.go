package main

import (
	"image/color"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/gogpu/imageapi"
	"github.com/gogpu/imageapi/blob"
	"github.com/gogpu/imageapi/resource"
)

const checkerSize = 16

// sampleScene returns the resource updates for the demo image: a
// background, a curved shape, a checker sprite and a line of text.
func sampleScene(ns *resource.Namespace, cfg config) *resource.Updates {
	fontKey := ns.FontKey()
	instKey := ns.FontInstanceKey()
	spriteKey := ns.ImageKey()
	sceneKey := ns.ImageKey()

	w, h := float32(cfg.Width), float32(cfg.Height)
	font := blob.FontRef{Instance: instKey, Font: fontKey, Size: cfg.FontSize}

	b := blob.NewBuilder()
	b.SetColor(color.NRGBA{R: 0xf4, G: 0xf1, B: 0xea, A: 0xff})
	b.FillRect(0, 0, w, h)

	b.SetColor(color.NRGBA{R: 0x2b, G: 0x6c, B: 0xb0, A: 0xc0})
	b.MoveTo(0, h)
	b.CubicTo(w*0.25, h*0.4, w*0.6, h*1.1, w, h*0.55)
	b.LineTo(w, h)
	b.ClosePath()
	b.Fill()

	b.Image(spriteKey, w-checkerSize-8, 8)

	b.SetColor(color.NRGBA{R: 0x1a, G: 0x1a, B: 0x1a, A: 0xff})
	b.Text(font, 12, cfg.FontSize+8, cfg.Text)

	var u resource.Updates
	u.AddFont(fontKey, imageapi.FontTemplate{Bytes: goregular.TTF})
	u.AddFontInstance(instKey, fontKey, cfg.FontSize)
	u.AddImage(spriteKey, imageapi.NewImageDescriptor(checkerSize, checkerSize, imageapi.FormatBGRA8, true),
		imageapi.NewImageData(checker(checkerSize)), 0)
	u.AddImage(sceneKey, imageapi.NewImageDescriptor(cfg.Width, cfg.Height, cfg.Format, false),
		imageapi.NewBlobImageData(b.Finish()), cfg.Tile)
	return &u
}

// checker returns n x n BGRA pixels in 4 pixel squares.
func checker(n int) []byte {
	pix := make([]byte, n*n*4)
	for y := range n {
		for x := range n {
			p := pix[(y*n+x)*4:]
			if (x/4+y/4)%2 == 0 {
				p[0], p[1], p[2] = 0x30, 0x30, 0xd0
			} else {
				p[0], p[1], p[2] = 0xf0, 0xf0, 0xf0
			}
			p[3] = 0xff
		}
	}
	return pix
}
