package store

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid bursts of triggers into one trailing call after
// a quiet period. Used to recompute and broadcast the live column without
// reacting to every intermediate state.
type Debouncer struct {
	mu    sync.Mutex
	quiet time.Duration
	fn    func()
	timer *time.Timer
}

func NewDebouncer(quiet time.Duration, fn func()) *Debouncer {
	return &Debouncer{quiet: quiet, fn: fn}
}

// Trigger (re)arms the timer. The callback fires once, quiet-period after
// the last trigger, on the timer's goroutine.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.fn)
}

// Stop cancels any pending call. No callback fires after Stop returns
// unless Trigger is called again.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
