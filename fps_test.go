package ili9341

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestFrameCounterWindow(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	f := newFrameCounter(clock)
	for i := 0; i < 65; i++ {
		f.tick()
		clock.Advance(10 * time.Millisecond)
	}
	assert.Zero(t, f.rate(), "window still open")

	clock.Advance(350 * time.Millisecond)
	assert.Equal(t, 65, f.rate())
	assert.Equal(t, 65, f.rate())

	clock.Advance(time.Second)
	assert.Zero(t, f.rate())
}

func TestFrameCounterTickClosesWindow(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	f := newFrameCounter(clock)
	f.tick()
	f.tick()
	clock.Advance(1500 * time.Millisecond)
	f.tick()
	assert.Equal(t, 2, f.rate())
}
