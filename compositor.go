package ili9341

import (
	"image"
	"log/slog"
	"time"

	"periph.io/x/devices/v3/ili9341/bitmapfont"
	"periph.io/x/devices/v3/ili9341/dma2d"
	"periph.io/x/devices/v3/ili9341/palette"
	"periph.io/x/devices/v3/ili9341/rgb565"
)

// Accelerator bus addresses of the compositor's buffers.
const (
	frameAddr   = 0xC000_0000
	scratchAddr = 0xC010_0000
	glyphAddr   = 0x2400_0000
)

const glyphStaging = 512

// DefaultPollTimeout bounds how long the compositor waits for one accelerator
// operation.
const DefaultPollTimeout = 100 * time.Millisecond

// mapper is implemented by accelerators that address buffers through a
// memory map.
type mapper interface {
	Map(base uint32, mem []byte)
}

// Compositor draws into the frame buffer. Every accelerated operation runs to
// completion before the call returns. A Compositor is not safe for concurrent
// use.
type Compositor struct {
	fb          *rgb565.Image
	pal         *palette.Palette
	acc         dma2d.Accelerator
	pollTimeout time.Duration
	log         *slog.Logger

	scratch []byte
	glyph   []byte
}

// NewCompositor returns a Compositor drawing into fb. With a nil accelerator
// every operation is done in software.
func NewCompositor(fb *rgb565.Image, pal *palette.Palette, acc dma2d.Accelerator, pollTimeout time.Duration, log *slog.Logger) *Compositor {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Compositor{
		fb:          fb,
		pal:         pal,
		acc:         acc,
		pollTimeout: pollTimeout,
		log:         log,
	}
	if acc != nil {
		c.scratch = make([]byte, len(fb.Pix))
		c.glyph = make([]byte, glyphStaging)
		if m, ok := acc.(mapper); ok {
			m.Map(frameAddr, fb.Pix)
			m.Map(scratchAddr, c.scratch)
			m.Map(glyphAddr, c.glyph)
		}
	}
	return c
}

// Accelerated reports whether an accelerator is in use.
func (c *Compositor) Accelerated() bool {
	return c.acc != nil
}

func (c *Compositor) frameAddr(x, y int) uint32 {
	return frameAddr + uint32(c.fb.PixOffset(x, y))
}

// run starts regs and waits for the accelerator to finish.
func (c *Compositor) run(op string, regs *dma2d.Regs) error {
	err := c.acc.Start(regs)
	if err == nil {
		err = c.acc.Poll(c.pollTimeout)
	}
	if err != nil {
		c.log.Debug("accelerator operation failed", "op", op, "mode", regs.Mode(), "err", err)
		return &AcceleratorFault{Op: op, Err: err}
	}
	return nil
}

// FillRect paints r with palette color ci. An alpha below 255 blends the
// color over the current content. A zero-area r does nothing; r must
// otherwise lie inside the panel.
func (c *Compositor) FillRect(r image.Rectangle, ci palette.Index, alpha uint8) error {
	if r.Empty() {
		return nil
	}
	if !r.In(c.fb.Rect) {
		return ErrOutOfBounds
	}
	col := c.pal.Resolve(ci)
	switch {
	case c.acc == nil:
		c.fillSoftware(r, col, alpha)
		return nil
	case alpha == 0xFF:
		return c.fillOpaque(r, col)
	default:
		return c.fillBlend(r, col, alpha)
	}
}

func (c *Compositor) fillOpaque(r image.Rectangle, col rgb565.Color) error {
	w, h := r.Dx(), r.Dy()
	regs := dma2d.Regs{
		CR:     dma2d.CR(dma2d.ModeR2M) | dma2d.CRStart,
		OPFCCR: dma2d.OPFCCR(dma2d.RGB565, true),
		OCOLR:  uint32(col),
		OMAR:   c.frameAddr(r.Min.X, r.Min.Y),
		OOR:    uint32(c.fb.Rect.Dx() - w),
		NLR:    dma2d.NLR(w, h),
	}
	return c.run("fill", &regs)
}

// fillBlend has no single pass equivalent: the color is first filled into the
// packed scratch buffer, then blended over the frame buffer in place.
func (c *Compositor) fillBlend(r image.Rectangle, col rgb565.Color, alpha uint8) error {
	w, h := r.Dx(), r.Dy()
	pitch := uint32(c.fb.Rect.Dx() - w)
	addr := c.frameAddr(r.Min.X, r.Min.Y)

	fill := dma2d.Regs{
		CR:     dma2d.CR(dma2d.ModeR2M) | dma2d.CRStart,
		OPFCCR: dma2d.OPFCCR(dma2d.RGB565, true),
		OCOLR:  uint32(col),
		OMAR:   scratchAddr,
		NLR:    dma2d.NLR(w, h),
	}
	if err := c.run("blend fill", &fill); err != nil {
		return err
	}

	blend := dma2d.Regs{
		CR:      dma2d.CR(dma2d.ModeM2MBlend) | dma2d.CRStart,
		FGMAR:   scratchAddr,
		FGPFCCR: dma2d.PFCCR(dma2d.RGB565, dma2d.AlphaReplace, alpha) | dma2d.PFCCRSwap,
		BGMAR:   addr,
		BGOR:    pitch,
		BGPFCCR: dma2d.PFCCR(dma2d.RGB565, dma2d.AlphaReplace, 0xFF) | dma2d.PFCCRSwap,
		OPFCCR:  dma2d.OPFCCR(dma2d.RGB565, true),
		OMAR:    addr,
		OOR:     pitch,
		NLR:     dma2d.NLR(w, h),
	}
	return c.run("blend", &blend)
}

func (c *Compositor) fillSoftware(r image.Rectangle, col rgb565.Color, alpha uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c.paint(x, y, col, alpha)
		}
	}
}

// DrawGlyph paints the glyph for code with its top left corner at (x, y),
// leaving unset glyph pixels untouched. It reports false, without drawing,
// for codes outside the printable range or glyphs that do not fit the panel.
func (c *Compositor) DrawGlyph(x, y int, code byte, f *bitmapfont.Font, ci palette.Index) (bool, error) {
	bm, ok := f.Glyph(code)
	if !ok {
		return false, nil
	}
	r := image.Rect(x, y, x+f.Width, y+f.Height)
	if !r.In(c.fb.Rect) {
		return false, nil
	}
	col := c.pal.Resolve(ci)

	if c.acc == nil || len(bm) > len(c.glyph) {
		for row := 0; row < f.Height; row++ {
			for px := 0; px < f.Width; px++ {
				if f.Bit(bm, px, row) {
					c.paint(x+px, y+row, col, 0xFF)
				}
			}
		}
		return true, nil
	}

	copy(c.glyph, bm)
	addr := c.frameAddr(x, y)
	pitch := uint32(c.fb.Rect.Dx() - f.Width)
	regs := dma2d.Regs{
		CR:      dma2d.CR(dma2d.ModeM2MBlend) | dma2d.CRStart,
		FGMAR:   glyphAddr,
		FGOR:    uint32(f.Stride*8 - f.Width),
		FGPFCCR: dma2d.PFCCR(dma2d.A1, dma2d.AlphaNoModify, 0),
		FGCOLR:  col.RGB888(),
		BGMAR:   addr,
		BGOR:    pitch,
		BGPFCCR: dma2d.PFCCR(dma2d.RGB565, dma2d.AlphaNoModify, 0) | dma2d.PFCCRSwap,
		OPFCCR:  dma2d.OPFCCR(dma2d.RGB565, true),
		OMAR:    addr,
		OOR:     pitch,
		NLR:     dma2d.NLR(f.Width, f.Height),
	}
	if err := c.run("glyph", &regs); err != nil {
		return false, err
	}
	return true, nil
}

// PaintPixel blends palette color ci over the pixel at (x, y). Points outside
// the panel are ignored.
func (c *Compositor) PaintPixel(x, y int, ci palette.Index, alpha uint8) {
	c.paint(x, y, c.pal.Resolve(ci), alpha)
}

func (c *Compositor) paint(x, y int, col rgb565.Color, alpha uint8) {
	if !(image.Point{X: x, Y: y}.In(c.fb.Rect)) {
		return
	}
	if alpha != 0xFF {
		col = rgb565.Blend(col, c.fb.RGB565At(x, y), alpha)
	}
	c.fb.SetRGB565(x, y, col)
}
