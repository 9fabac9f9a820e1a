package ili9341

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"tinygo.org/x/drivers"

	"periph.io/x/devices/v3/ili9341/dma2d"
	"periph.io/x/devices/v3/ili9341/palette"
	"periph.io/x/devices/v3/ili9341/rgb565"
)

// Opts is the configuration for the ILI9341 display.
//
// A nil *Opts selects landscape (Rotation90, 320x240) and every default below.
// In a non-nil Opts the zero Rotation is portrait.
type Opts struct {
	// Panel orientation; mirrored rotations are not supported
	Rotation drivers.Rotation

	// Optional hardware reset pin
	RST gpio.PinOut

	// SPI clock (default: 40MHz)
	Frequency physic.Frequency

	// Frame transfer
	DMA            DMA           // Asynchronous writer (default: goroutine per chunk over SPI)
	MaxChunk       int           // Largest chunk in bytes (default: 65535)
	ChunkAlign     int           // Chunk boundary alignment in bytes (default: 2, whole pixels)
	ChunkTimeout   time.Duration // Watchdog per chunk (default: 1s)
	Retry          *RetryConfig  // Failed chunk policy (default: DefaultRetryConfig())
	SnapshotOnSend bool          // Copy the frame buffer at frame start instead of accepting tearing

	// Compositing
	Accelerator dma2d.Accelerator // Default: a dma2d.Engine
	Software    bool              // Draw without any accelerator
	PollTimeout time.Duration     // Accelerator wait bound (default: 100ms)
	Palette     *palette.Palette  // Default: palette.Default()

	Clock  clockwork.Clock // Default: real clock
	Logger *slog.Logger    // Default: slog.Default()
}

// Dev is the device handle for the ILI9341 display.
//
// Drawing goes to an off-screen RGB565 frame buffer. RequestUpdate streams
// the buffer to the panel in the background; IsReady reports when the next
// update may be requested.
type Dev struct {
	t    *Transport
	comp *Compositor
	fb   *rgb565.Image
	pal  *palette.Palette
	fps  *frameCounter
	log  *slog.Logger
	rect image.Rectangle
	mad  byte

	mu     sync.Mutex
	halted bool
	fault  error
}

var _ display.Drawer = (*Dev)(nil)

// NewSPI creates a new ILI9341 device connected via SPI and runs the panel
// bring-up sequence.
//
// The SPI port is configured for Mode0, 8-bit transfers. The dc
// (Data/Command) GPIO pin must be provided and configured as an output.
func NewSPI(p spi.Port, dc gpio.PinOut, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &Opts{Rotation: drivers.Rotation90}
	}
	if dc == nil {
		return nil, errors.New("ili9341: DC pin is required")
	}
	if opts.MaxChunk < 0 || opts.ChunkAlign < 0 {
		return nil, errors.New("ili9341: chunk size and alignment must not be negative")
	}
	if opts.Frequency == 0 {
		opts.Frequency = 40 * physic.MegaHertz
	}

	c, err := p.Connect(opts.Frequency, spi.Mode0, 8)
	if err != nil {
		return nil, err
	}
	d, err := newDev(c, dc, opts)
	if err != nil {
		return nil, err
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

// newDev wires the frame buffer, compositor and transport without touching
// the panel.
func newDev(c conn.Conn, dc gpio.PinOut, opts *Opts) (*Dev, error) {
	mad, w, h, err := madctl(opts.Rotation)
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	pal := opts.Palette
	if pal == nil {
		pal = palette.Default()
	}

	fb := rgb565.NewImage(image.Rect(0, 0, w, h))

	var acc dma2d.Accelerator
	if !opts.Software {
		acc = opts.Accelerator
		if acc == nil {
			acc = dma2d.NewEngine(clock)
		}
	}

	t, err := NewTransport(TransportConfig{
		Conn:           c,
		DC:             dc,
		RST:            opts.RST,
		DMA:            opts.DMA,
		Frame:          fb.Pix,
		MaxChunk:       opts.MaxChunk,
		ChunkAlign:     opts.ChunkAlign,
		ChunkTimeout:   opts.ChunkTimeout,
		Retry:          opts.Retry,
		SnapshotOnSend: opts.SnapshotOnSend,
		Clock:          clock,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	return &Dev{
		t:    t,
		comp: NewCompositor(fb, pal, acc, opts.PollTimeout, log),
		fb:   fb,
		pal:  pal,
		fps:  newFrameCounter(clock),
		log:  log,
		rect: fb.Rect,
		mad:  mad,
	}, nil
}

// init resets the panel, sends the bring-up sequence and selects the whole
// panel as the RAM write window. Frames rely on the controller wrapping back
// to the window origin, so the window is set only once.
func (d *Dev) init() error {
	if err := d.t.Reset(); err != nil {
		return err
	}
	if err := d.t.runInit(initSequence); err != nil {
		return err
	}
	if err := d.t.command(cmdMADCTL, d.mad); err != nil {
		return err
	}
	if err := d.t.SetAddressWindow(0, 0, uint16(d.rect.Dx()-1), uint16(d.rect.Dy()-1)); err != nil {
		return err
	}
	d.log.Info("panel initialized", "width", d.rect.Dx(), "height", d.rect.Dy(), "accelerated", d.comp.Accelerated())
	return nil
}

// check halts the device when err is a hardware fault.
func (d *Dev) check(err error) error {
	if err != nil && IsFault(err) {
		d.mu.Lock()
		if !d.halted {
			d.halted = true
			d.fault = err
			d.log.Error("pipeline halted", "err", err)
		}
		d.mu.Unlock()
	}
	return err
}

func (d *Dev) haltedErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.halted {
		return nil
	}
	if d.fault != nil {
		return fmt.Errorf("%w: %w", ErrHalted, d.fault)
	}
	return ErrHalted
}

// IsReady reports whether an update may be requested: no frame is in flight
// and the pipeline has not faulted.
func (d *Dev) IsReady() bool {
	return d.haltedErr() == nil && !d.t.Busy() && d.t.Err() == nil
}

// RequestUpdate starts sending the frame buffer to the panel and returns
// immediately. It fails with ErrBusy while the previous frame is in flight.
func (d *Dev) RequestUpdate() error {
	if err := d.haltedErr(); err != nil {
		return err
	}
	if err := d.t.StartFrame(); err != nil {
		if t := d.t.Err(); t != nil {
			d.check(t)
		}
		return err
	}
	d.fps.tick()
	return nil
}

// Update is RequestUpdate.
func (d *Dev) Update() error {
	return d.RequestUpdate()
}

// Wait blocks until the frame in flight, if any, has been sent. A transfer
// fault halts the device and is returned.
func (d *Dev) Wait(ctx context.Context) error {
	err := d.t.Wait(ctx)
	return d.check(err)
}

// Fps returns the number of updates requested during the last full second.
func (d *Dev) Fps() int {
	return d.fps.rate()
}

// ElapsedSendTime returns how long the last complete frame took to send.
func (d *Dev) ElapsedSendTime() time.Duration {
	return d.t.Elapsed()
}

// TransferState returns a snapshot of the frame transfer.
func (d *Dev) TransferState() TransferState {
	return d.t.State()
}

// FrameBuffer returns the image drawn into. It is shared with the transport.
func (d *Dev) FrameBuffer() *rgb565.Image {
	return d.fb
}

// Palette returns the palette resolving color indices.
func (d *Dev) Palette() *palette.Palette {
	return d.pal
}

// ColorModel returns the color model of the display.
func (d *Dev) ColorModel() color.Model {
	return rgb565.Model
}

// Bounds returns the image bounds of the display.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Draw draws src into the frame buffer and requests an update when the panel
// is ready. Content drawn while a frame is in flight goes out with the next
// update.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	if err := d.haltedErr(); err != nil {
		return err
	}
	dst = dst.Intersect(d.rect)
	if dst.Empty() {
		return nil
	}
	draw.Draw(d.fb, dst, src, sp, draw.Src)
	if !d.IsReady() {
		return nil
	}
	return d.RequestUpdate()
}

// Invert inverts the display colors.
func (d *Dev) Invert(invert bool) error {
	if err := d.haltedErr(); err != nil {
		return err
	}
	cmd := byte(cmdINVOFF)
	if invert {
		cmd = cmdINVON
	}
	return d.t.SendCommand(cmd)
}

// Halt waits for the frame in flight and turns the display off.
// After calling Halt, the display will not respond to further commands
// until the device is re-initialized.
func (d *Dev) Halt() error {
	d.mu.Lock()
	d.halted = true
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.t.Wait(ctx); err != nil {
		return err
	}
	return d.t.SendCommand(cmdDISPOFF)
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("ili9341.Dev{%dx%d}", d.rect.Dx(), d.rect.Dy())
}
