// Package confirm tracks how long the selected candidate has been held at the
// target point and decides when it is confirmed.
//
// Progress is time based: it is the elapsed time since the candidate was first
// selected divided by the confirmation window, so frame-rate variance does not
// change confirmation latency. Losing the selection restarts confirmation from
// zero unless a grace allowance has been configured.
package confirm

import (
	"fmt"
	"time"

	"reticle/internal/detection"
	"reticle/internal/services"
)

// Option customizes a Controller.
type Option func(*Controller)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithGraceFrames tolerates up to n consecutive frames without a selection
// before confirmation restarts.
func WithGraceFrames(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.grace = n
		}
	}
}

// Controller is the per-session confirmation state machine. It is not safe
// for concurrent use; the session event loop owns it.
type Controller struct {
	window time.Duration
	grace  int
	now    func() time.Time

	active    bool
	identity  detection.Identity
	anchor    time.Time
	progress  float64
	confirmed bool
	misses    int
}

// New constructs a controller for the given window.
func New(window time.Duration, opts ...Option) (*Controller, error) {
	if window <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "confirm", "new", fmt.Sprintf("confirmation window %s must be positive", window), nil)
	}
	c := &Controller{window: window, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Confirming records that id is selected for the current frame and returns the
// updated progress. crossed is true only on the call where progress first
// reaches 1.
func (c *Controller) Confirming(id detection.Identity) (progress float64, crossed bool) {
	now := c.now()
	c.misses = 0
	if !c.active || c.identity != id {
		c.begin(id, now)
	}
	if c.confirmed {
		return c.progress, false
	}
	elapsed := now.Sub(c.anchor)
	if elapsed >= c.window {
		c.progress = 1
		c.confirmed = true
		return c.progress, true
	}
	if p := float64(elapsed) / float64(c.window); p > c.progress {
		c.progress = p
	}
	return c.progress, false
}

// Measure records an externally measured progress for id, such as the barcode
// size requirement. Progress never decreases while id stays selected.
func (c *Controller) Measure(id detection.Identity, progress float64) (float64, bool) {
	c.misses = 0
	if !c.active || c.identity != id {
		c.begin(id, c.now())
	}
	if c.confirmed {
		return c.progress, false
	}
	progress = min(max(progress, 0), 1)
	if progress > c.progress {
		c.progress = progress
	}
	if c.progress >= 1 {
		c.confirmed = true
		return c.progress, true
	}
	return c.progress, false
}

// Miss records a frame without a selection. It reports whether the controller
// reset as a result.
func (c *Controller) Miss() bool {
	if !c.active {
		return true
	}
	c.misses++
	if c.misses <= c.grace {
		return false
	}
	c.Reset()
	return true
}

// Reset clears the tracked identity and progress.
func (c *Controller) Reset() {
	c.active = false
	c.identity = detection.Identity{}
	c.anchor = time.Time{}
	c.progress = 0
	c.confirmed = false
	c.misses = 0
}

// Progress returns the current confirmation progress in [0, 1].
func (c *Controller) Progress() float64 { return c.progress }

// IsConfirmed reports whether progress has reached 1 since the last reset.
func (c *Controller) IsConfirmed() bool { return c.confirmed }

// Identity returns the tracked identity and whether one is being confirmed.
func (c *Controller) Identity() (detection.Identity, bool) {
	return c.identity, c.active
}

// Window returns the configured confirmation window.
func (c *Controller) Window() time.Duration { return c.window }

func (c *Controller) begin(id detection.Identity, now time.Time) {
	c.Reset()
	c.active = true
	c.identity = id
	c.anchor = now
}
