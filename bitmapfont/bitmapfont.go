// Package bitmapfont holds fixed-size 1 bit per pixel glyph tables for the
// printable ASCII range.
//
// Rows are packed most significant bit first and padded to a whole byte, so
// a glyph is Height×Stride bytes and glyph i describes code i+32.
package bitmapfont

import (
	"image/color"

	"golang.org/x/image/font/basicfont"
	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
)

// Printable range covered by a Font.
const (
	First = 32
	Last  = 126
)

// Font is a monospace bitmap font.
type Font struct {
	Width  int    // Glyph cell width in pixels
	Height int    // Glyph cell height in pixels
	Ascent int    // Rows above the baseline
	Stride int    // Bytes per glyph row
	Data   []byte // Glyphs for First..Last
}

// Font7x13 is the 7×13 face from golang.org/x/image/font/basicfont.
var Font7x13 = FromFace(basicfont.Face7x13)

// FromFace rasterizes the printable range of a basicfont face. Runes the face
// does not cover are left blank.
func FromFace(face *basicfont.Face) *Font {
	f := &Font{
		Width:  face.Advance,
		Height: face.Height,
		Ascent: face.Ascent,
		Stride: (face.Advance + 7) / 8,
	}
	f.Data = make([]byte, (Last-First+1)*f.Height*f.Stride)
	mb := face.Mask.Bounds()
	for code := First; code <= Last; code++ {
		idx, ok := faceIndex(face, rune(code))
		if !ok {
			continue
		}
		glyph := f.Data[(code-First)*f.Height*f.Stride:]
		for y := 0; y < f.Height; y++ {
			for x := 0; x < face.Width && x+face.Left < f.Width; x++ {
				_, _, _, a := face.Mask.At(mb.Min.X+x, mb.Min.Y+idx*face.Height+y).RGBA()
				if a >= 0x8000 {
					col := x + face.Left
					glyph[y*f.Stride+col/8] |= 0x80 >> (col % 8)
				}
			}
		}
	}
	return f
}

func faceIndex(face *basicfont.Face, r rune) (int, bool) {
	for _, rr := range face.Ranges {
		if r >= rr.Low && r < rr.High {
			return rr.Offset + int(r-rr.Low), true
		}
	}
	return 0, false
}

// Printable reports whether code has a glyph.
func Printable(code byte) bool {
	return code >= First && code <= Last
}

// Glyph returns the bitmap for code.
func (f *Font) Glyph(code byte) ([]byte, bool) {
	if !Printable(code) {
		return nil, false
	}
	n := f.Height * f.Stride
	i := int(code-First) * n
	if i+n > len(f.Data) {
		return nil, false
	}
	return f.Data[i : i+n], true
}

// Bit reports whether the pixel at (x, y) of a glyph bitmap is set.
func (f *Font) Bit(glyph []byte, x, y int) bool {
	return glyph[y*f.Stride+x/8]&(0x80>>(x%8)) != 0
}

// StringWidth returns the width of s in pixels.
func (f *Font) StringWidth(s string) int {
	return len(s) * f.Width
}

// GetGlyph implements tinyfont.Fonter. Runes outside the printable range
// render as '?'.
func (f *Font) GetGlyph(r rune) tinyfont.Glypher {
	return glyph{f: f, r: r}
}

// GetYAdvance implements tinyfont.Fonter.
func (f *Font) GetYAdvance() uint8 {
	return uint8(f.Height)
}

type glyph struct {
	f *Font
	r rune
}

func (g glyph) code() byte {
	if g.r < First || g.r > Last {
		return '?'
	}
	return byte(g.r)
}

// Draw implements tinyfont.Glypher. (x, y) is the baseline origin.
func (g glyph) Draw(d drivers.Displayer, x, y int16, c color.RGBA) {
	bm, ok := g.f.Glyph(g.code())
	if !ok {
		return
	}
	top := y - int16(g.f.Ascent)
	for row := 0; row < g.f.Height; row++ {
		for col := 0; col < g.f.Width; col++ {
			if g.f.Bit(bm, col, row) {
				d.SetPixel(x+int16(col), top+int16(row), c)
			}
		}
	}
}

// Info implements tinyfont.Glypher.
func (g glyph) Info() tinyfont.GlyphInfo {
	return tinyfont.GlyphInfo{
		Rune:     g.r,
		Width:    uint8(g.f.Width),
		Height:   uint8(g.f.Height),
		XAdvance: uint8(g.f.Width),
		YOffset:  int8(-g.f.Ascent),
	}
}
