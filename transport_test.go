package ili9341

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"
)

var errBus = errors.New("bus error")

// fakeDMA records every chunk. Held transfers complete only on release;
// otherwise they complete before Transmit returns, failing the first
// failures of them.
type fakeDMA struct {
	mu       sync.Mutex
	chunks   [][]byte
	hold     bool
	failures int
	pending  []func(error)
}

func (f *fakeDMA) Transmit(p []byte, done func(error)) error {
	f.mu.Lock()
	f.chunks = append(f.chunks, append([]byte(nil), p...))
	if f.hold {
		f.pending = append(f.pending, done)
		f.mu.Unlock()
		return nil
	}
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()

	if fail {
		done(errBus)
	} else {
		done(nil)
	}
	return nil
}

// release completes the oldest held transfer with err.
func (f *fakeDMA) release(err error) bool {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return false
	}
	done := f.pending[0]
	f.pending = f.pending[1:]
	f.mu.Unlock()
	done(err)
	return true
}

func (f *fakeDMA) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s []int
	for _, c := range f.chunks {
		s = append(s, len(c))
	}
	return s
}

func (f *fakeDMA) chunk(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks[i]
}

func recordConn(t *testing.T) (*spitest.Record, spi.Conn) {
	t.Helper()
	rec := &spitest.Record{}
	c, err := rec.Connect(0, spi.Mode0, 8)
	require.NoError(t, err)
	return rec, c
}

func writes(rec *spitest.Record) [][]byte {
	rec.Lock()
	defer rec.Unlock()
	var w [][]byte
	for _, op := range rec.Ops {
		w = append(w, op.W)
	}
	return w
}

func newTestTransport(t *testing.T, frame []byte, dma *fakeDMA, mod func(*TransportConfig)) (*Transport, *spitest.Record, *gpiotest.Pin) {
	t.Helper()
	rec, c := recordConn(t)
	dc := &gpiotest.Pin{N: "DC"}
	cfg := TransportConfig{
		Conn:  c,
		DC:    dc,
		DMA:   dma,
		Frame: frame,
		Retry: &RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond, BackoffMultiplier: 2},
	}
	if mod != nil {
		mod(&cfg)
	}
	tr, err := NewTransport(cfg)
	require.NoError(t, err)
	return tr, rec, dc
}

func TestChunkSizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		total int
		max   int
		align int
		want  []int
	}{
		{"full frame unaligned", 153600, 65535, 1, []int{65535, 65535, 22530}},
		{"full frame pixel aligned", 153600, 65535, 2, []int{65534, 65534, 22532}},
		{"fits one chunk", 100, 65535, 2, []int{100}},
		{"exact multiple", 12, 4, 2, []int{4, 4, 4}},
		{"align larger than max", 12, 3, 4, nil},
		{"empty", 0, 10, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkSizes(tt.total, tt.max, tt.align)
			assert.Equal(t, tt.want, got)
			sum := 0
			for _, s := range got {
				assert.LessOrEqual(t, s, tt.max)
				sum += s
			}
			if got != nil {
				assert.Equal(t, tt.total, sum)
			}
		})
	}
}

func TestFullFrameChunking(t *testing.T) {
	t.Parallel()

	frame := make([]byte, 320*240*2)
	for i := range frame {
		frame[i] = byte(i * 7)
	}
	dma := &fakeDMA{}
	tr, _, dc := newTestTransport(t, frame, dma, func(c *TransportConfig) {
		c.ChunkAlign = 1
	})

	require.NoError(t, tr.StartFrame())
	require.NoError(t, tr.Wait(context.Background()))

	assert.Equal(t, []int{65535, 65535, 22530}, dma.sizes())
	var sent []byte
	for i := range dma.sizes() {
		sent = append(sent, dma.chunk(i)...)
	}
	assert.Equal(t, frame, sent)
	assert.Equal(t, gpio.High, dc.Read())
	assert.False(t, tr.Busy())
	assert.Zero(t, tr.State().Remaining)
}

func TestDefaultChunksEndOnPixelBoundaries(t *testing.T) {
	t.Parallel()

	dma := &fakeDMA{}
	tr, _, _ := newTestTransport(t, make([]byte, 320*240*2), dma, nil)
	assert.Equal(t, 65534, tr.ChunkSize())

	require.NoError(t, tr.StartFrame())
	off := 0
	for _, s := range dma.sizes() {
		assert.Zero(t, off%2)
		off += s
	}
	assert.Equal(t, 320*240*2, off)
}

type limitedConn struct {
	conn.Conn
	max int
}

func (l limitedConn) MaxTxSize() int { return l.max }

func TestMaxTxSizeLowersChunk(t *testing.T) {
	t.Parallel()

	_, c := recordConn(t)
	tr, err := NewTransport(TransportConfig{
		Conn:  limitedConn{Conn: c, max: 4097},
		DC:    &gpiotest.Pin{N: "DC"},
		Frame: make([]byte, 64),
	})
	require.NoError(t, err)
	assert.Equal(t, 4096, tr.ChunkSize())
}

func TestNewTransportValidation(t *testing.T) {
	t.Parallel()

	_, c := recordConn(t)
	dc := &gpiotest.Pin{N: "DC"}
	tests := []struct {
		name string
		cfg  TransportConfig
	}{
		{"no conn", TransportConfig{DC: dc, Frame: make([]byte, 4)}},
		{"no dc", TransportConfig{Conn: c, Frame: make([]byte, 4)}},
		{"no frame", TransportConfig{Conn: c, DC: dc}},
		{"align above max", TransportConfig{Conn: c, DC: dc, Frame: make([]byte, 4), MaxChunk: 3, ChunkAlign: 4}},
		{"no attempts", TransportConfig{Conn: c, DC: dc, Frame: make([]byte, 4), Retry: &RetryConfig{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTransport(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestBusyWhileFrameInFlight(t *testing.T) {
	t.Parallel()

	dma := &fakeDMA{hold: true}
	tr, _, _ := newTestTransport(t, make([]byte, 10), dma, func(c *TransportConfig) {
		c.MaxChunk = 4
	})

	require.NoError(t, tr.StartFrame())
	assert.True(t, tr.Busy())
	assert.Equal(t, 10, tr.State().Remaining)
	assert.ErrorIs(t, tr.StartFrame(), ErrBusy)
	assert.ErrorIs(t, tr.SendCommand(cmdDISPON), ErrBusy)
	assert.ErrorIs(t, tr.SendDataBlocking([]byte{1}), ErrBusy)

	require.True(t, dma.release(nil))
	assert.True(t, tr.Busy())
	assert.Equal(t, 6, tr.State().Remaining)
	require.True(t, dma.release(nil))
	require.True(t, dma.release(nil))
	assert.False(t, dma.release(nil))

	assert.False(t, tr.Busy())
	require.NoError(t, tr.Wait(context.Background()))
	assert.Equal(t, []int{4, 4, 2}, dma.sizes())

	// A new frame may start once idle.
	require.NoError(t, tr.StartFrame())
	assert.True(t, tr.Busy())
}

func TestRetryThenSuccess(t *testing.T) {
	t.Parallel()

	dma := &fakeDMA{failures: 2}
	tr, _, _ := newTestTransport(t, make([]byte, 10), dma, func(c *TransportConfig) {
		c.MaxChunk = 4
	})

	require.NoError(t, tr.StartFrame())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))

	assert.Equal(t, []int{4, 4, 4, 4, 2}, dma.sizes())
	assert.NoError(t, tr.Err())
	assert.False(t, tr.Busy())
}

func TestRetriesExhausted(t *testing.T) {
	t.Parallel()

	dma := &fakeDMA{failures: 100}
	tr, _, _ := newTestTransport(t, make([]byte, 10), dma, func(c *TransportConfig) {
		c.MaxChunk = 4
	})

	require.NoError(t, tr.StartFrame())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := tr.Wait(ctx)

	var tf *TransferFault
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, 0, tf.Chunk)
	assert.Equal(t, 0, tf.Offset)
	assert.Equal(t, 3, tf.Attempts)
	assert.ErrorIs(t, err, errBus)
	assert.Len(t, dma.sizes(), 3)
	assert.False(t, tr.Busy())

	// The pipeline stays halted.
	err = tr.StartFrame()
	assert.ErrorIs(t, err, ErrHalted)
	assert.ErrorIs(t, err, errBus)
	assert.ErrorIs(t, tr.SendCommand(cmdDISPON), ErrHalted)
}

func TestChunkWatchdog(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	dma := &fakeDMA{hold: true}
	tr, _, _ := newTestTransport(t, make([]byte, 10), dma, func(c *TransportConfig) {
		c.MaxChunk = 4
		c.ChunkTimeout = 50 * time.Millisecond
		c.Clock = clock
	})

	require.NoError(t, tr.StartFrame())
	require.True(t, dma.release(nil))
	clock.BlockUntil(1)
	clock.Advance(50 * time.Millisecond)

	require.Eventually(t, func() bool { return tr.Err() != nil }, time.Second, time.Millisecond)
	err := tr.Err()
	var tf *TransferFault
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, 1, tf.Chunk)
	assert.Equal(t, 4, tf.Offset)
	assert.ErrorIs(t, err, ErrTransferTimeout)
	assert.False(t, tr.Busy())

	// The late completion of the timed out chunk is ignored.
	require.True(t, dma.release(nil))
	assert.Len(t, dma.sizes(), 2)
	assert.ErrorIs(t, tr.StartFrame(), ErrHalted)
}

func TestElapsedSendTime(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	dma := &fakeDMA{hold: true}
	tr, _, _ := newTestTransport(t, make([]byte, 8), dma, func(c *TransportConfig) {
		c.Clock = clock
	})

	require.NoError(t, tr.StartFrame())
	assert.Equal(t, clock.Now(), tr.State().Start)
	clock.Advance(7 * time.Millisecond)
	require.True(t, dma.release(nil))
	assert.Equal(t, 7*time.Millisecond, tr.Elapsed())
}

func TestSnapshotOnSend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		snapshot bool
		want     byte
	}{
		{"tearing accepted", false, 0xAA},
		{"snapshot", true, 0x00},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := make([]byte, 8)
			dma := &fakeDMA{hold: true}
			tr, _, _ := newTestTransport(t, frame, dma, func(c *TransportConfig) {
				c.MaxChunk = 4
				c.SnapshotOnSend = tt.snapshot
			})

			require.NoError(t, tr.StartFrame())
			frame[4] = 0xAA
			require.True(t, dma.release(nil))
			require.True(t, dma.release(nil))
			assert.Equal(t, tt.want, dma.chunk(1)[0])
		})
	}
}

func TestSendCommandAndData(t *testing.T) {
	t.Parallel()

	tr, rec, dc := newTestTransport(t, make([]byte, 8), &fakeDMA{}, func(c *TransportConfig) {
		c.MaxChunk = 2
	})

	require.NoError(t, tr.SendCommand(cmdSLPOUT))
	assert.Equal(t, gpio.Low, dc.Read())
	require.NoError(t, tr.SendDataBlocking([]byte{1, 2, 3}))
	assert.Equal(t, gpio.High, dc.Read())

	assert.Equal(t, [][]byte{{cmdSLPOUT}, {1, 2}, {3}}, writes(rec))
}

func TestSetAddressWindow(t *testing.T) {
	t.Parallel()

	tr, rec, _ := newTestTransport(t, make([]byte, 8), &fakeDMA{}, nil)
	require.NoError(t, tr.SetAddressWindow(0, 0, 319, 239))

	want := [][]byte{
		{cmdCASET}, {0x00, 0x00, 0x01, 0x3F},
		{cmdPASET}, {0x00, 0x00, 0x00, 0xEF},
		{cmdRAMWR},
	}
	assert.Equal(t, want, writes(rec))
}

func TestReset(t *testing.T) {
	t.Parallel()

	rst := &gpiotest.Pin{N: "RST"}
	tr, _, _ := newTestTransport(t, make([]byte, 8), &fakeDMA{}, func(c *TransportConfig) {
		c.RST = rst
	})
	require.NoError(t, tr.Reset())
	assert.Equal(t, gpio.High, rst.Read())

	noRST, _, _ := newTestTransport(t, make([]byte, 8), &fakeDMA{}, nil)
	assert.NoError(t, noRST.Reset())
}

func TestRunInit(t *testing.T) {
	t.Parallel()

	tr, rec, _ := newTestTransport(t, make([]byte, 8), &fakeDMA{}, nil)
	seq := []byte{
		cmdSWRESET, initDelay, 1,
		cmdPIXSET, 1, 0x55,
		cmdDISPON, 0,
	}
	require.NoError(t, tr.runInit(seq))
	assert.Equal(t, [][]byte{{cmdSWRESET}, {cmdPIXSET}, {0x55}, {cmdDISPON}}, writes(rec))
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	r := RetryConfig{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
	assert.Equal(t, time.Millisecond, r.backoff(1))
	assert.Equal(t, 2*time.Millisecond, r.backoff(2))
	assert.Equal(t, 4*time.Millisecond, r.backoff(3))
	assert.Equal(t, 5*time.Millisecond, r.backoff(4))
}
