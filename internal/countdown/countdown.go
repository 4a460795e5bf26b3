package countdown

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Signal is delivered to the owner's event loop once per elapsed second of a run.
// The owner hands it back to Advance; signals from canceled runs are ignored there.
type Signal struct {
	run uint64
}

// Countdown is a cancelable per-question clock. Start, Cancel and Advance must be
// called from the owner's event loop; only the ticker forwarding runs on its own goroutine.
type Countdown struct {
	clock     clockwork.Clock
	out       chan<- Signal
	run       uint64
	remaining int
	active    bool
	stop      chan struct{}
}

// New creates a countdown that delivers signals on out.
func New(clock clockwork.Clock, out chan<- Signal) *Countdown {
	return &Countdown{clock: clock, out: out}
}

// Start begins a new run of the given seconds, superseding any run in progress.
func (c *Countdown) Start(seconds int) {
	c.Cancel()
	if seconds < 1 {
		seconds = 1
	}
	c.run++
	c.remaining = seconds
	c.active = true
	c.stop = make(chan struct{})

	ticker := c.clock.NewTicker(time.Second)
	go forward(ticker, Signal{run: c.run}, c.out, c.stop)
}

// Cancel stops the current run. Pending signals of that run become stale.
func (c *Countdown) Cancel() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.active = false
}

// Advance consumes one signal and reports the seconds left. expired is true exactly
// once per run, on the signal that reaches zero. ok is false for stale signals.
func (c *Countdown) Advance(s Signal) (remaining int, expired bool, ok bool) {
	if !c.active || s.run != c.run {
		return c.remaining, false, false
	}
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.Cancel()
		return 0, true, true
	}
	return c.remaining, false, true
}

// Remaining returns the seconds left in the current or last run.
func (c *Countdown) Remaining() int {
	return c.remaining
}

// Active reports whether a run is ticking.
func (c *Countdown) Active() bool {
	return c.active
}

func forward(ticker clockwork.Ticker, sig Signal, out chan<- Signal, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			select {
			case out <- sig:
			case <-stop:
				return
			}
		}
	}
}
