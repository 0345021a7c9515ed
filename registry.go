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
	"slices"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Registry keeps track of perfmon devices by their names.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewRegistry returns an empty device registry.
func NewRegistry() *Registry {
	return &Registry{devices: map[string]*Device{}}
}

// Add registers the specified device, failing if a device with the same name
// has already been registered.
func (r *Registry) Add(d *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[d.Name()]; ok {
		return errors.Errorf("duplicate perfmon device %q", d.Name())
	}
	r.devices[d.Name()] = d
	return nil
}

// Lookup returns the device with the specified name, if registered.
func (r *Registry) Lookup(name string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[name]
	return d, ok
}

// Names returns the sorted names of all registered devices.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Devices returns all registered devices, sorted by their names.
func (r *Registry) Devices() []*Device {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	devs := make([]*Device, 0, len(names))
	for _, name := range names {
		if d, ok := r.devices[name]; ok {
			devs = append(devs, d)
		}
	}
	return devs
}

// Close closes and unregisters all devices, returning the combined errors of
// closing them.
func (r *Registry) Close() error {
	r.mu.Lock()
	devs := r.devices
	r.devices = map[string]*Device{}
	r.mu.Unlock()
	var err error
	for _, d := range devs {
		err = multierr.Append(err, d.Close())
	}
	return err
}
