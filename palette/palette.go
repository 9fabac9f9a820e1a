// Package palette maps small color indices to packed RGB565 colors.
//
// Drawing calls take an Index rather than a raw packed value, so callers never
// deal with the panel's pixel format. The default table is compiled in and
// never changes after start.
package palette

import (
	"image/color"

	"periph.io/x/devices/v3/ili9341/rgb565"
)

// Index selects a palette entry.
type Index uint8

// Named indices of the default palette.
const (
	Black Index = iota
	White
	Blue
	DarkBlue
	Cyan
	Yellow
	DarkYellow
	Orange
	Red
	DarkRed
	Green
	DarkGreen
	LightGreen
	Gray
	DarkGray
	LightGray
	MediumGray
	PanelBackground
	PanelLine
	PanelDarkLine
	PanelLightGray
	PanelMediumGray

	// NumColors is the number of entries in the default palette.
	NumColors
)

// MaxColors is the largest palette an Index can address.
const MaxColors = 256

var defaultColors = [NumColors]rgb565.Color{
	Black:           0x0000,
	White:           0xFFFF,
	Blue:            0x5AFF, // 5a5dff
	DarkBlue:        0x18EB, // 191c5a
	Cyan:            0x76FD, // 76dfef
	Yellow:          0xFFE0, // ffff00
	DarkYellow:      0x49E1, // 4a3d08
	Orange:          0xFBE0, // ff7f00
	Red:             0xF9E1, // ff4010
	DarkRed:         0x4880, // 401000
	Green:           0x3FE7, // 40ff40
	DarkGreen:       0x01E0, // 004000
	LightGreen:      0x6FED, // 70ff70
	Gray:            0x5AEB, // 606060
	DarkGray:        0x2965, // 303030
	LightGray:       0xAD75, // b0b0b0
	MediumGray:      0x8C71, // 909090
	PanelBackground: 0x4A69, // 4d4d4d
	PanelLine:       0x39E7, // 3d3d3d
	PanelDarkLine:   0x31A6, // 363636
	PanelLightGray:  0x52AA, // 555555
	PanelMediumGray: 0x4228, // 454545
}

// Palette is an immutable index to color table.
type Palette struct {
	colors [MaxColors]rgb565.Color
	n      int
}

// Default returns the compiled-in palette.
func Default() *Palette {
	p := &Palette{n: int(NumColors)}
	copy(p.colors[:], defaultColors[:])
	return p
}

// New builds a palette from 8-bit colors. Entries past MaxColors are dropped.
func New(entries []color.RGBA) *Palette {
	p := &Palette{}
	for i, e := range entries {
		if i == MaxColors {
			break
		}
		p.colors[i] = rgb565.FromRGB(e.R, e.G, e.B)
		p.n++
	}
	return p
}

// Len returns the number of defined entries.
func (p *Palette) Len() int {
	return p.n
}

// Resolve returns the packed color for i. Undefined indices resolve to black.
func (p *Palette) Resolve(i Index) rgb565.Color {
	c, _ := p.Lookup(i)
	return c
}

// Lookup is like Resolve but also reports whether i is defined.
func (p *Palette) Lookup(i Index) (rgb565.Color, bool) {
	if int(i) >= p.n {
		return 0, false
	}
	return p.colors[i], true
}
