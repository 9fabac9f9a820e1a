package ili9341

import (
	"image"

	"periph.io/x/devices/v3/ili9341/bitmapfont"
	"periph.io/x/devices/v3/ili9341/palette"
)

// Driver is the drawing surface offered to user interface code. It is
// implemented by *Dev.
type Driver interface {
	DrawLine(x0, y0, x1, y1 int, c palette.Index, alpha uint8) error
	DrawRect(r image.Rectangle, c palette.Index, alpha uint8) error
	FillRect(r image.Rectangle, c palette.Index, alpha uint8) error
	WriteString(s string, x, y int, f *bitmapfont.Font, c palette.Index) (int, error)
	Update() error
	IsReady() bool
}

var _ Driver = (*Dev)(nil)
