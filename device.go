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

package perfmonirq

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/thediveo/perfmonirq/counter"
	"github.com/thediveo/perfmonirq/gate"
)

// Platform tells whether a device supports perfmon buffer interrupts.
type Platform interface {
	PerfmonInterrupts() bool
}

// Device is a GPU device's perfmon interrupt control plane, consisting of an
// interrupt gate and an interrupt counter. All state is per device; devices
// are independent of each other.
type Device struct {
	name     string
	platform Platform
	ctrl     gate.Controller
	gate     *gate.Gate
	counter  *counter.Counter

	maxWaitMs uint32
	tick      time.Duration
	log       logr.Logger

	outcomes [numWaitOutcomes]atomic.Uint64
	closed   atomic.Bool
}

// DeviceOption configures a Device when creating it using [NewDevice].
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	log       logr.Logger
	maxWaitMs uint32
	tick      time.Duration
	clk       clock.Clock
}

// WithLogger sets the logger to use; defaults to discarding all logging.
func WithLogger(log logr.Logger) DeviceOption {
	return func(o *deviceOptions) { o.log = log }
}

// WithMaxWaitTimeout overrides the default maximum wait timeout of
// [MaxWaitTimeoutMs].
func WithMaxWaitTimeout(ms uint32) DeviceOption {
	return func(o *deviceOptions) { o.maxWaitMs = ms }
}

// WithTickResolution sets the resolution of the device's timer ticks; wait
// timeouts are rounded up to whole ticks. Defaults to a millisecond.
func WithTickResolution(tick time.Duration) DeviceOption {
	return func(o *deviceOptions) { o.tick = tick }
}

// WithClock sets the clock used for wait timeouts.
func WithClock(clk clock.Clock) DeviceOption {
	return func(o *deviceOptions) { o.clk = clk }
}

// NewDevice returns a new Device with the specified name, capabilities, and
// interrupt controller. If the controller additionally implements
// [io.Closer], it will be closed together with the device.
func NewDevice(name string, platform Platform, ctrl gate.Controller, opts ...DeviceOption) *Device {
	o := deviceOptions{
		log:       logr.Discard(),
		maxWaitMs: MaxWaitTimeoutMs,
		tick:      time.Millisecond,
		clk:       clock.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.WithValues("device", name)
	d := &Device{
		name:      name,
		platform:  platform,
		ctrl:      ctrl,
		gate:      gate.New(ctrl, gate.PerfmonBuffer, log),
		counter:   counter.New(counter.WithClock(o.clk)),
		maxWaitMs: o.maxWaitMs,
		tick:      o.tick,
		log:       log,
	}
	log.Info("perfmon device opened",
		"supported", platform.PerfmonInterrupts(),
		"maxWaitTimeoutMs", o.maxWaitMs)
	return d
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Counter returns the device's perfmon buffer interrupt counter; the interrupt
// handling path raises it once per interrupt occurrence.
func (d *Device) Counter() *counter.Counter { return d.counter }

// MaxWaitTimeoutMs returns the maximum allowed wait timeout in milliseconds.
func (d *Device) MaxWaitTimeoutMs() uint32 { return d.maxWaitMs }

// InterruptEnabled reports whether the perfmon buffer interrupt is currently
// enabled.
func (d *Device) InterruptEnabled() bool { return d.gate.Enabled() }

// Waits returns how many waits on this device ended with the specified
// outcome.
func (d *Device) Waits(o WaitOutcome) uint64 {
	if o >= numWaitOutcomes {
		return 0
	}
	return d.outcomes[o].Load()
}

// SetInterrupt enables or disables delivery of the perfmon buffer interrupt.
// It returns ErrUnsupported for devices lacking perfmon interrupt support.
func (d *Device) SetInterrupt(enable bool) error {
	if !d.platform.PerfmonInterrupts() {
		return ErrUnsupported
	}
	d.gate.Set(enable)
	return nil
}

// WaitForInterrupt blocks until the next perfmon buffer interrupt, the
// timeout expires, or ctx is done, returning the corresponding outcome. It
// doesn't validate the timeout against the maximum allowed timeout; this is
// the job of [Device.Dispatch]. Only devices without perfmon interrupt support
// cause an error, and they do so before any blocking.
func (d *Device) WaitForInterrupt(ctx context.Context, timeoutMs uint32) (WaitOutcome, error) {
	if !d.platform.PerfmonInterrupts() {
		return WaitFailed, ErrUnsupported
	}
	baseline := d.counter.Value()
	res, err := d.counter.Wait(ctx, baseline, timeoutDuration(timeoutMs, d.tick))
	var outcome WaitOutcome
	switch {
	case err != nil:
		outcome = WaitFailed
	case res == counter.Changed:
		outcome = WaitOK
	case res == counter.Expired:
		outcome = WaitTimeout
	case res == counter.Cancelled:
		outcome = WaitInterrupted
	default:
		outcome = WaitFailed
	}
	d.outcomes[outcome].Add(1)
	d.log.V(2).Info("perfmon interrupt wait done",
		"timeoutMs", timeoutMs, "outcome", outcome.String())
	return outcome, nil
}

// timeoutDuration converts a timeout in milliseconds into a duration that is a
// whole multiple of the tick resolution, rounding up.
func timeoutDuration(ms uint32, tick time.Duration) time.Duration {
	d := time.Duration(ms) * time.Millisecond
	if tick <= 0 {
		return d
	}
	return (d + tick - 1) / tick * tick
}

// Close disables the perfmon buffer interrupt, releases any waiters with a
// failed outcome, and closes the interrupt controller if it is closable.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	if d.platform.PerfmonInterrupts() && d.gate.Enabled() {
		d.gate.Set(false)
	}
	d.counter.Close()
	d.log.Info("perfmon device closed", "interrupts", d.counter.Value())
	if closer, ok := d.ctrl.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return errors.Wrapf(err, "cannot close interrupt controller of device %q", d.name)
		}
	}
	return nil
}
