package ili9341

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// DefaultMaxChunk is the largest transfer the DMA length field can describe.
const DefaultMaxChunk = math.MaxUint16

// DMA starts asynchronous bus writes.
type DMA interface {
	// Transmit starts sending p and calls done exactly once when the write
	// finished. done may run on any goroutine, including the caller's.
	Transmit(p []byte, done func(error)) error
}

// connDMA runs each write on its own goroutine.
type connDMA struct {
	c conn.Conn
}

func (d connDMA) Transmit(p []byte, done func(error)) error {
	go func() {
		done(d.c.Tx(p, nil))
	}()
	return nil
}

// RetryConfig bounds how a failed chunk is retried.
type RetryConfig struct {
	MaxAttempts       int           // Total attempts per chunk, including the first
	InitialBackoff    time.Duration // Delay before the first retry
	MaxBackoff        time.Duration // Upper bound of the delay
	BackoffMultiplier float64       // Growth factor between retries
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

// backoff returns the delay before retry number attempt (1 based).
func (r *RetryConfig) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := r.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(r.InitialBackoff) * math.Pow(mult, float64(attempt-1)))
	if r.MaxBackoff > 0 && (d > r.MaxBackoff || d < 0) {
		d = r.MaxBackoff
	}
	return d
}

// TransferState is a snapshot of the frame transfer.
type TransferState struct {
	Busy      bool          // A frame send is outstanding
	Remaining int           // Bytes of the current frame not yet acknowledged
	Start     time.Time     // When the current or last frame started
	Elapsed   time.Duration // Duration of the last complete frame
}

// TransportConfig holds the collaborators and limits of a Transport.
type TransportConfig struct {
	Conn  conn.Conn   // Bus used for commands, and for frames when DMA is nil
	DC    gpio.PinOut // Data/command select
	RST   gpio.PinOut // Optional reset line
	DMA   DMA         // Optional asynchronous writer
	Frame []byte      // Frame buffer streamed by StartFrame

	MaxChunk     int           // Default DefaultMaxChunk, lowered to the bus limit
	ChunkAlign   int           // Chunk boundaries are multiples of this; default 2
	ChunkTimeout time.Duration // Per chunk watchdog; default 1s
	Retry        *RetryConfig  // Default DefaultRetryConfig()

	// SnapshotOnSend copies the frame buffer when a frame starts so drawing
	// during the transfer cannot tear it.
	SnapshotOnSend bool

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Transport streams a frame buffer to the panel in bounded chunks.
//
// A frame is sent as a chain: the completion of chunk i issues chunk i+1 from
// the completion callback, and the last completion returns the transport to
// idle. Commands are blocking and refused while a frame is in flight.
type Transport struct {
	c            conn.Conn
	dc           gpio.PinOut
	rst          gpio.PinOut
	dma          DMA
	fb           []byte
	snapshot     []byte
	chunkSize    int
	chunkTimeout time.Duration
	retry        RetryConfig
	clock        clockwork.Clock
	log          *slog.Logger

	busy atomic.Bool

	mu       sync.Mutex
	src      []byte
	state    TransferState
	seq      uint64
	chunk    int
	attempt  int
	watchdog clockwork.Timer
	backoff  clockwork.Timer
	idle     chan struct{}
	err      error
}

// NewTransport validates cfg and returns an idle Transport.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.Conn == nil {
		return nil, errors.New("ili9341: transport needs a connection")
	}
	if cfg.DC == nil {
		return nil, errors.New("ili9341: transport needs a DC pin")
	}
	if len(cfg.Frame) == 0 {
		return nil, errors.New("ili9341: empty frame buffer")
	}
	if cfg.MaxChunk == 0 {
		cfg.MaxChunk = DefaultMaxChunk
	}
	if l, ok := cfg.Conn.(conn.Limits); ok {
		if m := l.MaxTxSize(); m > 0 && m < cfg.MaxChunk {
			cfg.MaxChunk = m
		}
	}
	if cfg.ChunkAlign == 0 {
		cfg.ChunkAlign = 2
	}
	if cfg.ChunkAlign < 0 || cfg.MaxChunk < cfg.ChunkAlign {
		return nil, fmt.Errorf("ili9341: max chunk %d cannot hold an aligned chunk of %d", cfg.MaxChunk, cfg.ChunkAlign)
	}
	if cfg.ChunkTimeout == 0 {
		cfg.ChunkTimeout = time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, errors.New("ili9341: retry needs at least one attempt")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DMA == nil {
		cfg.DMA = connDMA{c: cfg.Conn}
	}

	t := &Transport{
		c:            cfg.Conn,
		dc:           cfg.DC,
		rst:          cfg.RST,
		dma:          cfg.DMA,
		fb:           cfg.Frame,
		chunkSize:    cfg.MaxChunk - cfg.MaxChunk%cfg.ChunkAlign,
		chunkTimeout: cfg.ChunkTimeout,
		retry:        *cfg.Retry,
		clock:        cfg.Clock,
		log:          cfg.Logger,
	}
	if cfg.SnapshotOnSend {
		t.snapshot = make([]byte, len(cfg.Frame))
	}
	return t, nil
}

// ChunkSizes returns the chunk sizes one frame of total bytes is sent in,
// given the largest transfer maxChunk and the boundary alignment align.
func ChunkSizes(total, maxChunk, align int) []int {
	if align < 1 {
		align = 1
	}
	size := maxChunk - maxChunk%align
	if size <= 0 || total <= 0 {
		return nil
	}
	sizes := make([]int, 0, (total+size-1)/size)
	for remaining := total; remaining > 0; remaining -= size {
		sizes = append(sizes, min(remaining, size))
	}
	return sizes
}

// Busy reports whether a frame is in flight.
func (t *Transport) Busy() bool {
	return t.busy.Load()
}

// State returns a snapshot of the transfer state.
func (t *Transport) State() TransferState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Elapsed returns how long the last complete frame took to send.
func (t *Transport) Elapsed() time.Duration {
	return t.State().Elapsed
}

// Err returns the fault that stopped the transport, if any.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// ChunkSize returns the size of every chunk but the last.
func (t *Transport) ChunkSize() int {
	return t.chunkSize
}

// Wait blocks until the frame in flight, if any, is done.
func (t *Transport) Wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()
	if idle != nil {
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return t.Err()
}

func (t *Transport) checkIdleLocked() error {
	if t.err != nil {
		return fmt.Errorf("%w: %w", ErrHalted, t.err)
	}
	if t.state.Busy {
		return ErrBusy
	}
	return nil
}

// StartFrame begins sending the frame buffer and returns without waiting.
func (t *Transport) StartFrame() error {
	t.mu.Lock()
	if err := t.checkIdleLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	if err := t.dc.Out(gpio.High); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("ili9341: failed to pull DC high: %w", err)
	}
	t.src = t.fb
	if t.snapshot != nil {
		copy(t.snapshot, t.fb)
		t.src = t.snapshot
	}
	t.seq++
	t.chunk = 0
	t.attempt = 0
	t.state.Busy = true
	t.state.Remaining = len(t.src)
	t.state.Start = t.clock.Now()
	t.idle = make(chan struct{})
	t.busy.Store(true)
	seq := t.seq
	total := len(t.src)
	t.mu.Unlock()

	t.log.Debug("frame started", "bytes", total, "chunk", t.chunkSize)
	t.issue(seq, 0, 0, min(total, t.chunkSize))
	return nil
}

// issue sends one chunk. It must be called without holding t.mu.
func (t *Transport) issue(seq uint64, idx, off, n int) {
	t.mu.Lock()
	if seq != t.seq {
		t.mu.Unlock()
		return
	}
	t.watchdog = t.clock.AfterFunc(t.chunkTimeout, func() {
		t.expire(seq, idx, off)
	})
	t.mu.Unlock()

	done := func(err error) {
		t.complete(seq, idx, off, n, err)
	}
	if err := t.dma.Transmit(t.src[off:off+n], done); err != nil {
		done(err)
	}
}

// complete handles the completion of chunk idx of frame seq.
func (t *Transport) complete(seq uint64, idx, off, n int, err error) {
	t.mu.Lock()
	if seq != t.seq || idx != t.chunk || !t.state.Busy {
		t.mu.Unlock()
		t.log.Debug("dropped stale chunk completion", "chunk", idx)
		return
	}
	if t.watchdog != nil {
		t.watchdog.Stop()
		t.watchdog = nil
	}

	if err != nil {
		t.attempt++
		if t.attempt >= t.retry.MaxAttempts {
			t.failLocked(&TransferFault{Chunk: idx, Offset: off, Attempts: t.attempt, Err: err})
			t.mu.Unlock()
			return
		}
		wait := t.retry.backoff(t.attempt)
		t.log.Warn("chunk transfer failed, retrying", "chunk", idx, "attempt", t.attempt, "backoff", wait, "err", err)
		t.backoff = t.clock.AfterFunc(wait, func() {
			t.issue(seq, idx, off, n)
		})
		t.mu.Unlock()
		return
	}

	t.attempt = 0
	t.state.Remaining -= n
	if t.state.Remaining == 0 {
		t.state.Busy = false
		t.state.Elapsed = t.clock.Since(t.state.Start)
		elapsed := t.state.Elapsed
		t.busy.Store(false)
		close(t.idle)
		t.mu.Unlock()
		t.log.Debug("frame sent", "chunks", idx+1, "elapsed", elapsed)
		return
	}
	t.chunk++
	next := len(t.src) - t.state.Remaining
	size := min(t.state.Remaining, t.chunkSize)
	idx = t.chunk
	t.mu.Unlock()

	t.issue(seq, idx, next, size)
}

// expire fires when chunk idx did not complete in time.
func (t *Transport) expire(seq uint64, idx, off int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.seq || idx != t.chunk || !t.state.Busy {
		return
	}
	t.failLocked(&TransferFault{Chunk: idx, Offset: off, Attempts: t.attempt + 1, Err: ErrTransferTimeout})
}

// failLocked stops the pipeline. Late completions of the frame are dropped.
func (t *Transport) failLocked(err error) {
	t.err = err
	t.seq++
	t.state.Busy = false
	if t.watchdog != nil {
		t.watchdog.Stop()
		t.watchdog = nil
	}
	if t.backoff != nil {
		t.backoff.Stop()
		t.backoff = nil
	}
	t.busy.Store(false)
	close(t.idle)
	t.log.Error("frame transfer failed", "err", err)
}

// SendCommand sends a single command byte with DC low.
func (t *Transport) SendCommand(cmd byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIdleLocked(); err != nil {
		return err
	}
	if err := t.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("ili9341: failed to pull DC low: %w", err)
	}
	return t.c.Tx([]byte{cmd}, nil)
}

// SendDataBlocking sends a command payload with DC high.
func (t *Transport) SendDataBlocking(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIdleLocked(); err != nil {
		return err
	}
	if err := t.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("ili9341: failed to pull DC high: %w", err)
	}
	for len(p) > 0 {
		n := min(len(p), t.chunkSize)
		if err := t.c.Tx(p[:n], nil); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// command sends cmd followed by its arguments, if any.
func (t *Transport) command(cmd byte, args ...byte) error {
	if err := t.SendCommand(cmd); err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	return t.SendDataBlocking(args)
}

// Reset pulses the reset line. It is a no-op without a reset pin.
func (t *Transport) Reset() error {
	if t.rst == nil {
		return nil
	}
	if err := t.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("ili9341: failed to pull RST low: %w", err)
	}
	t.clock.Sleep(10 * time.Millisecond)
	if err := t.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("ili9341: failed to pull RST high: %w", err)
	}
	t.clock.Sleep(10 * time.Millisecond)
	return nil
}

// SetAddressWindow selects the panel RAM area written by RAMWR, inclusive.
func (t *Transport) SetAddressWindow(x0, y0, x1, y1 uint16) error {
	if err := t.command(cmdCASET, byte(x0>>8), byte(x0), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	if err := t.command(cmdPASET, byte(y0>>8), byte(y0), byte(y1>>8), byte(y1)); err != nil {
		return err
	}
	return t.SendCommand(cmdRAMWR)
}

// runInit executes an encoded init table.
func (t *Transport) runInit(seq []byte) error {
	for i := 0; i < len(seq); {
		cmd := seq[i]
		nargs := int(seq[i+1] &^ initDelay)
		delay := seq[i+1]&initDelay != 0
		i += 2
		if err := t.command(cmd, seq[i:i+nargs]...); err != nil {
			return fmt.Errorf("ili9341: init command %#02x: %w", cmd, err)
		}
		i += nargs
		if delay {
			t.clock.Sleep(time.Duration(seq[i]) * time.Millisecond)
			i++
		}
	}
	return nil
}
