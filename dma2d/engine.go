package dma2d

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"periph.io/x/devices/v3/ili9341/rgb565"
)

// Engine executes transfers in software over a set of mapped memory regions.
//
// Transfers run on their own goroutine, so a caller that does not Poll sees
// the same asynchronous behaviour as real hardware. The blend datapath uses
// rgb565.Blend and produces results identical to the software fallback.
type Engine struct {
	clock clockwork.Clock

	mu         sync.Mutex
	regions    []region
	busy       bool
	done       chan struct{}
	err        error
	isr        uint32
	onComplete func(error)
}

type region struct {
	base uint32
	mem  []byte
}

// NewEngine returns an Engine with no mapped memory. A nil clock uses the
// real clock.
func NewEngine(clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{clock: clock}
}

// Map makes mem addressable at base. Regions must not overlap.
func (e *Engine) Map(base uint32, mem []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.regions = append(e.regions, region{base: base, mem: mem})
}

// OnComplete registers f to be called when a transfer started with CR.TCIE
// (or CR.TEIE for failures) finishes. f runs on the engine goroutine.
func (e *Engine) OnComplete(f func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onComplete = f
}

// Busy implements Accelerator.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// ISR returns the interrupt status flags of the last transfer.
func (e *Engine) ISR() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isr
}

// Start implements Accelerator.
func (e *Engine) Start(r *Regs) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrBusy
	}
	regs := *r
	if err := validate(&regs); err != nil {
		e.isr = ISRCEIF
		return err
	}
	e.busy = true
	e.err = nil
	e.isr = 0
	e.done = make(chan struct{})
	go e.run(regs, e.done)
	return nil
}

// Poll implements Accelerator. It returns ErrTransfer once for a transfer
// that failed, and nil when no transfer was started.
func (e *Engine) Poll(timeout time.Duration) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-e.clock.After(timeout):
			return ErrTimeout
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.err
	e.err = nil
	return err
}

func (e *Engine) run(r Regs, done chan struct{}) {
	err := e.execute(&r)

	e.mu.Lock()
	e.busy = false
	if err != nil {
		e.err = fmt.Errorf("%w: %v", ErrTransfer, err)
		e.isr |= ISRTEIF
	} else {
		e.isr |= ISRTCIF
	}
	cb := e.onComplete
	err = e.err
	close(done)
	e.mu.Unlock()

	if cb == nil {
		return
	}
	if (err == nil && r.CR&CRTCIE != 0) || (err != nil && r.CR&CRTEIE != 0) {
		cb(err)
	}
}

func validate(r *Regs) error {
	pl, nl := r.Size()
	if pl == 0 || nl == 0 {
		return fmt.Errorf("%w: empty area %dx%d", ErrConfig, pl, nl)
	}
	if ColorMode(r.OPFCCR&opfccrCMMask) != RGB565 {
		return fmt.Errorf("%w: unsupported output format %d", ErrConfig, r.OPFCCR&opfccrCMMask)
	}
	switch m := r.Mode(); m {
	case ModeR2M:
	case ModeM2M, ModeM2MPFC:
		if err := validateLayer("foreground", r.FGPFCCR); err != nil {
			return err
		}
	case ModeM2MBlend:
		if err := validateLayer("foreground", r.FGPFCCR); err != nil {
			return err
		}
		if err := validateLayer("background", r.BGPFCCR); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unsupported mode %d", ErrConfig, m)
	}
	return nil
}

func validateLayer(name string, pfccr uint32) error {
	if _, ok := bitsPerPixel(ColorMode(pfccr & pfccrCMMask)); !ok {
		return fmt.Errorf("%w: unsupported %s format %d", ErrConfig, name, pfccr&pfccrCMMask)
	}
	if AlphaMode(pfccr&pfccrAMMask>>pfccrAMShift) > AlphaMultiply {
		return fmt.Errorf("%w: invalid %s alpha mode", ErrConfig, name)
	}
	return nil
}

func bitsPerPixel(cm ColorMode) (int, bool) {
	switch cm {
	case RGB565:
		return 16, true
	case A8:
		return 8, true
	case A4:
		return 4, true
	case A1:
		return 1, true
	}
	return 0, false
}

// memory returns the mapped bytes covering n bytes at addr.
func (e *Engine) memory(addr uint32, n int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, reg := range e.regions {
		if addr < reg.base {
			continue
		}
		off := int(addr - reg.base)
		if off < len(reg.mem) && off+n <= len(reg.mem) {
			return reg.mem[off : off+n], nil
		}
	}
	return nil, fmt.Errorf("%d bytes at %#08x not mapped", n, addr)
}

// footprint returns the number of bytes spanned by an area of pl×nl pixels
// with a line offset of lo pixels.
func footprint(pl, nl, lo, bpp int) int {
	bitsSpan := ((nl-1)*(pl+lo) + pl) * bpp
	return (bitsSpan + 7) / 8
}

type layer struct {
	mem    []byte
	cm     ColorMode
	am     AlphaMode
	alpha  uint8
	invert bool
	swap   bool
	color  rgb565.Color
	stride int
}

func (e *Engine) layer(addr, lo, pfccr, colr uint32, pl, nl int) (*layer, error) {
	cm := ColorMode(pfccr & pfccrCMMask)
	bpp, _ := bitsPerPixel(cm)
	stride := pl + int(lo&orLOMask)
	mem, err := e.memory(addr, footprint(pl, nl, int(lo&orLOMask), bpp))
	if err != nil {
		return nil, err
	}
	return &layer{
		mem:    mem,
		cm:     cm,
		am:     AlphaMode(pfccr & pfccrAMMask >> pfccrAMShift),
		alpha:  uint8(pfccr >> pfccrAlphaShift),
		invert: pfccr&PFCCRAI != 0,
		swap:   pfccr&PFCCRSwap != 0,
		color:  rgb565.FromRGB888(colr),
		stride: stride,
	}, nil
}

func (l *layer) at(x, y int) (rgb565.Color, uint8) {
	i := y*l.stride + x
	c := l.color
	a := uint8(0xFF)
	switch l.cm {
	case RGB565:
		b0, b1 := l.mem[2*i], l.mem[2*i+1]
		if l.swap {
			c = rgb565.Color(b0)<<8 | rgb565.Color(b1)
		} else {
			c = rgb565.Color(b1)<<8 | rgb565.Color(b0)
		}
	case A8:
		a = l.mem[i]
	case A4:
		n := l.mem[i/2]
		if i%2 == 1 {
			n >>= 4
		}
		a = (n & 0x0F) * 0x11
	case A1:
		if l.mem[i/8]&(0x80>>(i%8)) == 0 {
			a = 0
		}
	}
	if l.invert {
		a = 0xFF - a
	}
	switch l.am {
	case AlphaReplace:
		a = l.alpha
	case AlphaMultiply:
		a = uint8(uint16(a) * uint16(l.alpha) / 0xFF)
	}
	return c, a
}

func (e *Engine) execute(r *Regs) error {
	pl, nl := r.Size()
	oo := int(r.OOR & orLOMask)
	out, err := e.memory(r.OMAR, footprint(pl, nl, oo, 16))
	if err != nil {
		return err
	}
	swapOut := r.OPFCCR&OPFCCRSB != 0
	put := func(x, y int, c rgb565.Color) {
		i := 2 * (y*(pl+oo) + x)
		if swapOut {
			out[i], out[i+1] = byte(c>>8), byte(c)
		} else {
			out[i], out[i+1] = byte(c), byte(c>>8)
		}
	}

	mode := r.Mode()
	if mode == ModeR2M {
		c := rgb565.Color(r.OCOLR)
		for y := 0; y < nl; y++ {
			for x := 0; x < pl; x++ {
				put(x, y, c)
			}
		}
		return nil
	}

	fg, err := e.layer(r.FGMAR, r.FGOR, r.FGPFCCR, r.FGCOLR, pl, nl)
	if err != nil {
		return err
	}
	if mode != ModeM2MBlend {
		for y := 0; y < nl; y++ {
			for x := 0; x < pl; x++ {
				c, _ := fg.at(x, y)
				put(x, y, c)
			}
		}
		return nil
	}

	bg, err := e.layer(r.BGMAR, r.BGOR, r.BGPFCCR, r.BGCOLR, pl, nl)
	if err != nil {
		return err
	}
	for y := 0; y < nl; y++ {
		for x := 0; x < pl; x++ {
			fc, fa := fg.at(x, y)
			bc, _ := bg.at(x, y)
			put(x, y, rgb565.Blend(fc, bc, fa))
		}
	}
	return nil
}
