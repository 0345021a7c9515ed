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

package procirq

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/thediveo/perfmonirq/counter"
	"github.com/thediveo/perfmonirq/gate"
)

// DefaultPollInterval is the default interval for sampling the interrupt
// counter table.
const DefaultPollInterval = 10 * time.Millisecond

// Watcher follows a host IRQ line by periodically sampling its total count
// from “/proc/interrupts” and forwarding any increments into an interrupt
// counter. As user space cannot mask host interrupts, a Watcher instead acts
// as the interrupt controller itself: while disabled, increments are observed
// but not forwarded.
type Watcher struct {
	irq      uint
	path     string
	interval time.Duration
	clk      clock.Clock
	log      logr.Logger

	enabled atomic.Bool
	samples atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

var _ gate.Controller = (*Watcher)(nil)

// Option configures a Watcher.
type Option func(*Watcher)

// WithPollInterval sets the sampling interval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithPath reads the interrupt counter table from a different location than
// “/proc/interrupts”.
func WithPath(path string) Option {
	return func(w *Watcher) { w.path = path }
}

// WithClock sets the clock driving the sampling ticker.
func WithClock(clk clock.Clock) Option {
	return func(w *Watcher) { w.clk = clk }
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(w *Watcher) { w.log = log }
}

// New returns a Watcher for the specified IRQ line. It needs to be started
// using [Watcher.Start] in order to actually sample.
func New(irq uint, opts ...Option) *Watcher {
	w := &Watcher{
		irq:      irq,
		path:     ProcInterruptsPath,
		interval: DefaultPollInterval,
		clk:      clock.New(),
		log:      logr.Discard(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// IRQ returns the number of the IRQ line watched.
func (w *Watcher) IRQ() uint { return w.irq }

// Enable starts forwarding interrupts of the watched line.
func (w *Watcher) Enable(src gate.Source) { w.enabled.Store(true) }

// Disable stops forwarding interrupts of the watched line.
func (w *Watcher) Disable(src gate.Source) { w.enabled.Store(false) }

// Samples returns the number of successful samples taken so far, including
// the initial baseline sample.
func (w *Watcher) Samples() uint64 { return w.samples.Load() }

// Start takes the baseline sample and then keeps sampling in the background,
// adding increments to the specified counter. Start fails if the IRQ line
// cannot be found; it must be called at most once.
func (w *Watcher) Start(cntr *counter.Counter) error {
	started := false
	var err error
	w.startOnce.Do(func() {
		started = true
		last, ok := countFile(w.path, w.irq)
		if !ok {
			err = errors.Errorf("IRQ %d not found in %s", w.irq, w.path)
			close(w.done)
			return
		}
		w.samples.Add(1)
		// Create the ticker before going into the background, so that a
		// (mock) clock advancing right after Start returns won't get lost.
		ticker := w.clk.Ticker(w.interval)
		go w.sample(cntr, ticker, last)
		w.log.Info("watching host IRQ line",
			"irq", w.irq, "path", w.path, "interval", w.interval.String())
	})
	if !started {
		return errors.New("watcher already started")
	}
	return err
}

func (w *Watcher) sample(cntr *counter.Counter, ticker *clock.Ticker, last uint64) {
	defer close(w.done)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}
		total, ok := countFile(w.path, w.irq)
		if !ok {
			continue
		}
		w.samples.Add(1)
		// Counters only shrink when CPUs go offline, taking their share
		// of the total with them; just rebase in this case.
		if total > last && w.enabled.Load() {
			cntr.Add(total - last)
		}
		last = total
	}
}

// Close stops sampling and waits for the background sampler to terminate.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.stop) })
	// never started? Then make sure that nobody is going to start us later.
	w.startOnce.Do(func() { close(w.done) })
	<-w.done
	return nil
}
