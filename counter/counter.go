// Copyright 2024 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy
// of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package counter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrClosed is returned by Wait when the counter gets closed while waiting, or
// has already been closed before.
var ErrClosed = errors.New("interrupt counter closed")

// Result classifies how a Wait ended.
type Result int

// Wait results; a failed wait is signalled by a non-nil error instead.
const (
	Changed   Result = iota // counter differs from the baseline.
	Expired                 // timeout elapsed without any change.
	Cancelled               // context got cancelled or its deadline passed.
)

// Counter is a monotonic interrupt occurrence counter that waiters can block
// on until it moves away from a baseline they've snapshot before.
//
// Reading the current value never takes a lock. Raising the counter and
// enqueueing a waiter both take the same mutex, so a waiter either sees the
// new value when re-checking its condition, or it is already parked on the
// broadcast channel that the raise is going to close. This closes the classic
// “check condition, then sleep” race.
type Counter struct {
	value atomic.Uint64

	mu      sync.Mutex
	changed chan struct{} // closed and replaced on each raise.
	closed  bool
	waiters int

	clk clock.Clock
}

// Option configures a Counter.
type Option func(*Counter)

// WithClock sets the clock used for arming wait timeouts; tests pass in a
// mock clock here.
func WithClock(clk clock.Clock) Option {
	return func(c *Counter) {
		c.clk = clk
	}
}

// New returns a new Counter starting at zero.
func New(opts ...Option) *Counter {
	c := &Counter{
		changed: make(chan struct{}),
		clk:     clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Value returns the current counter value.
func (c *Counter) Value() uint64 { return c.value.Load() }

// Waiters returns the number of currently parked waiters.
func (c *Counter) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters
}

// Raise accounts for a single interrupt occurrence and wakes all waiters.
func (c *Counter) Raise() { c.Add(1) }

// Add accounts for n interrupt occurrences at once, waking all waiters. Adding
// zero is a no-op and doesn't wake anyone. Raising a closed counter is
// silently ignored.
func (c *Counter) Add(n uint64) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.value.Add(n)
	close(c.changed)
	c.changed = make(chan struct{})
}

// Close releases all current waiters with ErrClosed; later waits fail
// immediately. The counter value is left as-is.
func (c *Counter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.changed)
}

// Wait blocks until the counter value differs from baseline, the timeout
// elapses, or ctx is done, whatever comes first. A non-positive timeout still
// checks the condition once but then expires without blocking.
func (c *Counter) Wait(ctx context.Context, baseline uint64, timeout time.Duration) (Result, error) {
	// Arm the timer before enqueueing, so that anyone seeing us parked also
	// knows that our timer is already ticking.
	timer := c.clk.Timer(max(timeout, 0))
	defer timer.Stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Expired, ErrClosed
	}
	if c.value.Load() != baseline {
		c.mu.Unlock()
		return Changed, nil
	}
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return Cancelled, nil
	}
	changed := c.changed
	c.waiters++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.waiters--
		c.mu.Unlock()
	}()

	select {
	case <-changed:
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed && c.value.Load() == baseline {
			return Expired, ErrClosed
		}
		return Changed, nil
	case <-timer.C:
		return Expired, nil
	case <-ctx.Done():
		return Cancelled, nil
	}
}
