package ili9341

import (
	"image"

	"periph.io/x/devices/v3/ili9341/bitmapfont"
	"periph.io/x/devices/v3/ili9341/palette"
)

// FillRect paints r with palette color c, blended when alpha is below 255.
// r must lie inside the panel; a zero-area r does nothing.
func (d *Dev) FillRect(r image.Rectangle, c palette.Index, alpha uint8) error {
	if err := d.haltedErr(); err != nil {
		return err
	}
	return d.check(d.comp.FillRect(r, c, alpha))
}

// Fill paints the whole panel.
func (d *Dev) Fill(c palette.Index) error {
	return d.FillRect(d.rect, c, 0xFF)
}

// fillClipped fills the part of r that is on the panel.
func (d *Dev) fillClipped(r image.Rectangle, c palette.Index, alpha uint8) error {
	return d.FillRect(r.Canon().Intersect(d.rect), c, alpha)
}

// DrawPixel blends palette color c over the pixel at (x, y).
func (d *Dev) DrawPixel(x, y int, c palette.Index, alpha uint8) error {
	if err := d.haltedErr(); err != nil {
		return err
	}
	d.comp.PaintPixel(x, y, c, alpha)
	return nil
}

// DrawLine draws a line between two points, both included. Off-panel parts
// are clipped.
func (d *Dev) DrawLine(x0, y0, x1, y1 int, c palette.Index, alpha uint8) error {
	if err := d.haltedErr(); err != nil {
		return err
	}
	if x0 == x1 || y0 == y1 {
		r := image.Rect(min(x0, x1), min(y0, y1), max(x0, x1)+1, max(y0, y1)+1)
		return d.fillClipped(r, c, alpha)
	}

	dx, dy := abs(x1-x0), abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx - dy
	for {
		d.comp.PaintPixel(x0, y0, c, alpha)
		if x0 == x1 && y0 == y1 {
			return nil
		}
		e2 := 2 * e
		if e2 > -dy {
			e -= dy
			x0 += sx
		}
		if e2 < dx {
			e += dx
			y0 += sy
		}
	}
}

// DrawRect draws the outline of r. Each outline pixel is painted once.
func (d *Dev) DrawRect(r image.Rectangle, c palette.Index, alpha uint8) error {
	r = r.Canon()
	if r.Empty() {
		return nil
	}
	if r.Dx() <= 2 || r.Dy() <= 2 {
		return d.fillClipped(r, c, alpha)
	}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1),
		image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y+1, r.Min.X+1, r.Max.Y-1),
		image.Rect(r.Max.X-1, r.Min.Y+1, r.Max.X, r.Max.Y-1),
	}
	for _, e := range edges {
		if err := d.fillClipped(e, c, alpha); err != nil {
			return err
		}
	}
	return nil
}

// DrawTriangle draws the outline of a triangle.
func (d *Dev) DrawTriangle(x0, y0, x1, y1, x2, y2 int, c palette.Index, alpha uint8) error {
	if err := d.DrawLine(x0, y0, x1, y1, c, alpha); err != nil {
		return err
	}
	if err := d.DrawLine(x1, y1, x2, y2, c, alpha); err != nil {
		return err
	}
	return d.DrawLine(x2, y2, x0, y0, c, alpha)
}

// FillTriangle fills a triangle with horizontal spans.
func (d *Dev) FillTriangle(x0, y0, x1, y1, x2, y2 int, c palette.Index, alpha uint8) error {
	// Sort by y so that y0 <= y1 <= y2.
	if y0 > y1 {
		x0, y0, x1, y1 = x1, y1, x0, y0
	}
	if y1 > y2 {
		x1, y1, x2, y2 = x2, y2, x1, y1
	}
	if y0 > y1 {
		x0, y0, x1, y1 = x1, y1, x0, y0
	}

	if y0 == y2 {
		a, b := min(x0, x1, x2), max(x0, x1, x2)
		return d.span(a, b, y0, c, alpha)
	}

	for y := y0; y <= y2; y++ {
		// Long edge 0-2 on one side, 0-1 or 1-2 on the other.
		b := x0 + (x2-x0)*(y-y0)/(y2-y0)
		var a int
		if y < y1 || (y == y1 && y1 == y2) {
			if y1 == y0 {
				a = x1
			} else {
				a = x0 + (x1-x0)*(y-y0)/(y1-y0)
			}
		} else {
			a = x1 + (x2-x1)*(y-y1)/(y2-y1)
		}
		if err := d.span(min(a, b), max(a, b), y, c, alpha); err != nil {
			return err
		}
	}
	return nil
}

// span fills the pixels x0..x1 of row y.
func (d *Dev) span(x0, x1, y int, c palette.Index, alpha uint8) error {
	return d.fillClipped(image.Rect(x0, y, x1+1, y+1), c, alpha)
}

// DrawCircle draws the outline of a circle of radius r centered on (x0, y0).
func (d *Dev) DrawCircle(x0, y0, r int, c palette.Index, alpha uint8) error {
	if err := d.haltedErr(); err != nil {
		return err
	}
	f := 1 - r
	ddx, ddy := 1, -2*r
	x, y := 0, r
	plot := func(px, py int) {
		d.comp.PaintPixel(px, py, c, alpha)
	}
	plot(x0, y0+r)
	plot(x0, y0-r)
	plot(x0+r, y0)
	plot(x0-r, y0)
	for x < y {
		if f >= 0 {
			y--
			ddy += 2
			f += ddy
		}
		x++
		ddx += 2
		f += ddx

		plot(x0+x, y0+y)
		plot(x0-x, y0+y)
		plot(x0+x, y0-y)
		plot(x0-x, y0-y)
		if x != y {
			plot(x0+y, y0+x)
			plot(x0-y, y0+x)
			plot(x0+y, y0-x)
			plot(x0-y, y0-x)
		}
	}
	return nil
}

// FillCircle fills a circle of radius r centered on (x0, y0).
func (d *Dev) FillCircle(x0, y0, r int, c palette.Index, alpha uint8) error {
	if r < 0 {
		return nil
	}
	for dy := -r; dy <= r; dy++ {
		dx := isqrt(r*r - dy*dy)
		if err := d.span(x0-dx, x0+dx, y0+dy, c, alpha); err != nil {
			return err
		}
	}
	return nil
}

// WriteChar draws one character with its top left corner at (x, y). It
// reports false when the character is not printable or does not fit.
func (d *Dev) WriteChar(ch byte, x, y int, f *bitmapfont.Font, c palette.Index) (bool, error) {
	if err := d.haltedErr(); err != nil {
		return false, err
	}
	ok, err := d.comp.DrawGlyph(x, y, ch, f, c)
	return ok, d.check(err)
}

// WriteString draws s left to right from (x, y) and stops at the first
// character that cannot be written. It returns the number of characters
// written.
func (d *Dev) WriteString(s string, x, y int, f *bitmapfont.Font, c palette.Index) (int, error) {
	for i := 0; i < len(s); i++ {
		ok, err := d.WriteChar(s[i], x, y, f, c)
		if err != nil || !ok {
			return i, err
		}
		x += f.Width
	}
	return len(s), nil
}

// StringWidth returns the width of s in pixels.
func (d *Dev) StringWidth(s string, f *bitmapfont.Font) int {
	return f.StringWidth(s)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// isqrt returns the largest integer whose square is at most v.
func isqrt(v int) int {
	if v <= 0 {
		return 0
	}
	r := 0
	for b := 1 << 30; b > 0; b >>= 2 {
		if v >= r+b {
			v -= r + b
			r = r>>1 + b
		} else {
			r >>= 1
		}
	}
	return r
}
