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

// Package sim simulates a GPU's GT interrupt controller: an interrupt mask
// register with one bit per interrupt source, where a cleared bit means that
// the source is enabled (unmasked). Firing an unmasked source raises the
// interrupt counter attached to it; firing a masked source drops the
// interrupt on the floor.
package sim

import (
	"sync"

	"github.com/thediveo/perfmonirq/counter"
	"github.com/thediveo/perfmonirq/gate"
)

// PerfmonGeneration is the only hardware generation with perfmon buffer
// interrupts.
const PerfmonGeneration = 7

// Controller is a simulated interrupt controller for a single device. It
// implements [gate.Controller] as well as the device capability check.
type Controller struct {
	generation int

	mu        sync.Mutex
	imr       uint32               // interrupt mask register; all masked initially.
	bits      map[gate.Source]uint // source to IMR bit assignment.
	sinks     map[gate.Source]*counter.Counter
	dropped   map[gate.Source]uint64
	delivered map[gate.Source]uint64
}

// New returns a simulated interrupt controller for a device of the specified
// hardware generation, with all sources masked.
func New(generation int) *Controller {
	return &Controller{
		generation: generation,
		imr:        ^uint32(0),
		bits:       map[gate.Source]uint{},
		sinks:      map[gate.Source]*counter.Counter{},
		dropped:    map[gate.Source]uint64{},
		delivered:  map[gate.Source]uint64{},
	}
}

// Generation returns the simulated hardware generation.
func (c *Controller) Generation() int { return c.generation }

// PerfmonInterrupts returns true only for generation 7 devices.
func (c *Controller) PerfmonInterrupts() bool { return c.generation == PerfmonGeneration }

// bit returns the IMR bit mask for src, assigning the next free bit on first
// use. Must be called with the lock held.
func (c *Controller) bit(src gate.Source) uint32 {
	b, ok := c.bits[src]
	if !ok {
		b = uint(len(c.bits))
		c.bits[src] = b
	}
	return 1 << b
}

// Enable unmasks src.
func (c *Controller) Enable(src gate.Source) {
	c.mu.Lock()
	c.imr &^= c.bit(src)
	c.mu.Unlock()
}

// Disable masks src.
func (c *Controller) Disable(src gate.Source) {
	c.mu.Lock()
	c.imr |= c.bit(src)
	c.mu.Unlock()
}

// Enabled reports whether src is currently unmasked.
func (c *Controller) Enabled(src gate.Source) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imr&c.bit(src) == 0
}

// IMR returns the current contents of the interrupt mask register.
func (c *Controller) IMR() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imr
}

// Attach routes interrupts of src to the specified counter, replacing any
// previously attached counter. Attaching nil detaches.
func (c *Controller) Attach(src gate.Source, cntr *counter.Counter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cntr == nil {
		delete(c.sinks, src)
		return
	}
	c.sinks[src] = cntr
}

// Fire simulates the hardware raising an interrupt of src, returning true if
// the interrupt was delivered. Masked sources and sources without an attached
// counter drop their interrupts.
func (c *Controller) Fire(src gate.Source) bool {
	c.mu.Lock()
	sink := c.sinks[src]
	if c.imr&c.bit(src) != 0 || sink == nil {
		c.dropped[src]++
		c.mu.Unlock()
		return false
	}
	c.delivered[src]++
	c.mu.Unlock()
	// raise outside our lock, the counter has its own.
	sink.Raise()
	return true
}

// Dropped returns the number of interrupts of src that were dropped.
func (c *Controller) Dropped(src gate.Source) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped[src]
}

// Delivered returns the number of interrupts of src that were delivered.
func (c *Controller) Delivered(src gate.Source) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivered[src]
}
