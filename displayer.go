package ili9341

import (
	"context"
	"image/color"

	"tinygo.org/x/drivers"

	"periph.io/x/devices/v3/ili9341/rgb565"
)

// Displayer adapts a Dev to drivers.Displayer so that tinygo drawing
// packages such as tinyfont and tinydraw can render into the frame buffer.
type Displayer struct {
	d *Dev
}

var _ drivers.Displayer = Displayer{}

// Displayer returns the tinygo drivers view of d.
func (d *Dev) Displayer() Displayer {
	return Displayer{d: d}
}

// Size returns the panel dimensions.
func (p Displayer) Size() (x, y int16) {
	return int16(p.d.rect.Dx()), int16(p.d.rect.Dy())
}

// SetPixel sets one pixel of the frame buffer. Colors with an alpha below 255
// are blended over the current content.
func (p Displayer) SetPixel(x, y int16, c color.RGBA) {
	if p.d.haltedErr() != nil {
		return
	}
	p.d.comp.paint(int(x), int(y), rgb565.FromRGB(c.R, c.G, c.B), c.A)
}

// Display waits for the frame in flight, if any, and sends the frame buffer.
func (p Displayer) Display() error {
	if err := p.d.Wait(context.Background()); err != nil {
		return err
	}
	return p.d.RequestUpdate()
}
