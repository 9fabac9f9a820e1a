package ili9341

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// frameCounter turns update requests into a frames per second figure over
// rolling one second windows.
type frameCounter struct {
	clock clockwork.Clock

	mu     sync.Mutex
	start  time.Time
	frames int
	fps    int
}

func newFrameCounter(clock clockwork.Clock) *frameCounter {
	return &frameCounter{clock: clock, start: clock.Now()}
}

// roll closes the current window once a second has passed.
func (f *frameCounter) roll(now time.Time) {
	if now.Sub(f.start) < time.Second {
		return
	}
	f.fps = f.frames
	f.frames = 0
	f.start = now
}

func (f *frameCounter) tick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roll(f.clock.Now())
	f.frames++
}

func (f *frameCounter) rate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roll(f.clock.Now())
	return f.fps
}
