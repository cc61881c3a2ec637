// Package scheduler runs the poll and command activities of a session and stops them together.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Controller is the shared termination signal plus an interruptible wait.
type Controller struct {
	once sync.Once
	stop chan struct{}
}

// NewController returns a running controller.
func NewController() *Controller {
	return &Controller{stop: make(chan struct{})}
}

// Stop signals every activity to finish. Safe to call repeatedly.
func (c *Controller) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// Done is closed once Stop has been called.
func (c *Controller) Done() <-chan struct{} { return c.stop }

// Stopped reports whether Stop has been called.
func (c *Controller) Stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Wait sleeps for d and reports true, or returns false as soon as the controller
// is stopped or ctx is done.
func (c *Controller) Wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !c.Stopped() && ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !c.Stopped()
	case <-c.stop:
		return false
	case <-ctx.Done():
		return false
	}
}
