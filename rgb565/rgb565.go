package rgb565

import (
	"image"
	"image/color"
	"math/bits"

	"tinygo.org/x/drivers/pixel"
)

// Color is a 16-bit packed color: 5 bits red, 6 bits green, 5 bits blue.
type Color uint16

// Channel masks of the packed value.
const (
	maskRB = 0xF81F
	maskG  = 0x07E0
)

// FromRGB packs 8-bit channels, rounding each to the nearest representable level.
func FromRGB(r, g, b uint8) Color {
	r5 := (uint16(r)*31 + 127) / 255
	g6 := (uint16(g)*63 + 127) / 255
	b5 := (uint16(b)*31 + 127) / 255
	return Color(r5<<11 | g6<<5 | b5)
}

// FromRGB888 truncates a 0xRRGGBB value to 5/6/5, the way the accelerator
// reads its color registers.
func FromRGB888(v uint32) Color {
	r := uint16(v>>19) & 0x1F
	g := uint16(v>>10) & 0x3F
	b := uint16(v>>3) & 0x1F
	return Color(r<<11 | g<<5 | b)
}

// RGB expands the channels to 8 bits by bit replication, so 0x1F maps to 0xFF.
func (c Color) RGB() (r, g, b uint8) {
	r5 := uint8(c>>11) & 0x1F
	g6 := uint8(c>>5) & 0x3F
	b5 := uint8(c) & 0x1F
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}

// RGB888 returns the color as 0xRRGGBB.
func (c Color) RGB888() uint32 {
	r, g, b := c.RGB()
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// RGBA implements color.Color. Colors are always opaque.
func (c Color) RGBA() (r, g, b, a uint32) {
	r8, g8, b8 := c.RGB()
	return uint32(r8) * 0x101, uint32(g8) * 0x101, uint32(b8) * 0x101, 0xFFFF
}

// Swap returns c with its two bytes exchanged.
func (c Color) Swap() Color {
	return Color(bits.ReverseBytes16(uint16(c)))
}

func toColor(c color.Color) color.Color {
	if v, ok := c.(Color); ok {
		return v
	}
	r, g, b, _ := c.RGBA()
	return FromRGB(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// Model converts colors to Color.
var Model = color.ModelFunc(toColor)

// Blend combines fg over bg with an 8-bit alpha.
//
// Alpha is reduced to a weight in [0, 64]. The red/blue pair and the green
// channel are accumulated separately so no channel can carry into its
// neighbour before the final shift. Blend(fg, bg, 255) == fg and
// Blend(fg, bg, 0) == bg.
func Blend(fg, bg Color, alpha uint8) Color {
	w := (uint32(alpha) + 2) >> 2
	iw := 64 - w
	f, b := uint32(fg), uint32(bg)
	rb := (w*(f&maskRB) + iw*(b&maskRB)) & (maskRB << 6)
	g := (w*(f&maskG) + iw*(b&maskG)) & (maskG << 6)
	return Color((rb | g) >> 6)
}

// Image is an RGB565 image with big-endian pixel storage.
type Image struct {
	Pix    []byte          // 2 bytes per pixel, high byte first
	Stride int             // Bytes per row
	Rect   image.Rectangle // Image bounds
}

// NewImage creates a zeroed (black) image with the specified bounds.
func NewImage(r image.Rectangle) *Image {
	w, h := r.Dx(), r.Dy()
	if w < 0 || h < 0 {
		return &Image{Rect: r}
	}
	return &Image{
		Pix:    make([]byte, 2*w*h),
		Stride: 2 * w,
		Rect:   r,
	}
}

// ColorModel returns Model.
func (p *Image) ColorModel() color.Model {
	return Model
}

// Bounds returns the image bounds.
func (p *Image) Bounds() image.Rectangle {
	return p.Rect
}

// At implements image.Image.
func (p *Image) At(x, y int) color.Color {
	return p.RGB565At(x, y)
}

// RGB565At returns the packed color at (x, y), or black outside the bounds.
func (p *Image) RGB565At(x, y int) Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return 0
	}
	i := p.PixOffset(x, y)
	return Color(p.Pix[i])<<8 | Color(p.Pix[i+1])
}

// Set implements draw.Image.
func (p *Image) Set(x, y int, c color.Color) {
	p.SetRGB565(x, y, Model.Convert(c).(Color))
}

// SetRGB565 sets the pixel at (x, y). Points outside the bounds are ignored.
func (p *Image) SetRGB565(x, y int, c Color) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	p.Pix[i] = byte(c >> 8)
	p.Pix[i+1] = byte(c)
}

// PixOffset returns the index of the first byte of the pixel at (x, y).
func (p *Image) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*2
}

// Pixels returns a tinygo pixel view sharing the image memory.
// RGB565BE keeps its bytes in the same order as Image.
func (p *Image) Pixels() pixel.Image[pixel.RGB565BE] {
	return pixel.NewImageFromBytes[pixel.RGB565BE](p.Rect.Dx(), p.Rect.Dy(), p.Pix)
}
