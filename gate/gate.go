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

package gate

import (
	"sync"

	"github.com/go-logr/logr"
)

// Source names an individually maskable interrupt source at the interrupt
// controller.
type Source string

// PerfmonBuffer is the render engine's performance-monitor buffer interrupt
// source, raised when the perfmon buffer runs half full.
const PerfmonBuffer Source = "perfmon-buffer"

// Controller is the interrupt controller primitive that unmasks or masks
// delivery of an interrupt source. Implementations must not block.
type Controller interface {
	Enable(src Source)
	Disable(src Source)
}

// Gate serializes enabling and disabling a single interrupt source. The lock
// is held only for the duration of the controller toggle.
type Gate struct {
	mu      sync.Mutex
	ctrl    Controller
	src     Source
	enabled bool
	log     logr.Logger
}

// New returns a Gate for the specified source at the given controller. The
// gate initially assumes the source to be disabled.
func New(ctrl Controller, src Source, log logr.Logger) *Gate {
	return &Gate{
		ctrl: ctrl,
		src:  src,
		log:  log,
	}
}

// Set enables or disables delivery of the gate's interrupt source. Setting the
// same state repeatedly is fine and always toggles the controller again, so
// that the hardware state is guaranteed to match afterwards.
func (g *Gate) Set(enable bool) {
	g.mu.Lock()
	if enable {
		g.ctrl.Enable(g.src)
	} else {
		g.ctrl.Disable(g.src)
	}
	changed := g.enabled != enable
	g.enabled = enable
	g.mu.Unlock()
	if changed {
		g.log.V(1).Info("interrupt source toggled", "source", g.src, "enabled", enable)
	}
}

// Enabled reports the last state set.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Source returns the interrupt source controlled by this gate.
func (g *Gate) Source() Source { return g.src }
