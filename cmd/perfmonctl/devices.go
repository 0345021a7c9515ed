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

package main

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/thediveo/perfmonirq"
	"github.com/thediveo/perfmonirq/config"
	"github.com/thediveo/perfmonirq/gate"
	"github.com/thediveo/perfmonirq/procirq"
	"github.com/thediveo/perfmonirq/sim"
)

// setup holds the devices built from a device table, together with the
// simulated interrupt controllers so that they can be fired.
type setup struct {
	registry *perfmonirq.Registry
	sims     map[string]*sim.Controller
}

// newSetup builds and starts all devices of the specified device table. On
// error, any devices already built are closed again.
func newSetup(cfg *config.Config, log logr.Logger) (*setup, error) {
	s := &setup{
		registry: perfmonirq.NewRegistry(),
		sims:     map[string]*sim.Controller{},
	}
	for _, dc := range cfg.Devices {
		if err := s.add(dc, log); err != nil {
			_ = s.registry.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *setup) add(dc config.Device, log logr.Logger) error {
	opts := []perfmonirq.DeviceOption{
		perfmonirq.WithLogger(log),
		perfmonirq.WithMaxWaitTimeout(dc.MaxWaitTimeoutMs),
		perfmonirq.WithTickResolution(dc.Tick),
	}
	switch dc.Source {
	case config.SourceSim:
		ctrl := sim.New(dc.Generation)
		dev := perfmonirq.NewDevice(dc.Name, ctrl, ctrl, opts...)
		ctrl.Attach(gate.PerfmonBuffer, dev.Counter())
		s.sims[dc.Name] = ctrl
		return s.registry.Add(dev)
	case config.SourceProcfs:
		irq := dc.IRQ
		if irq == 0 {
			var ok bool
			irq, ok = procirq.LookupIRQ(dc.IRQAction)
			if !ok {
				return errors.Errorf("device %q: no IRQ with action %q", dc.Name, dc.IRQAction)
			}
		}
		w := procirq.New(irq,
			procirq.WithPollInterval(dc.PollInterval),
			procirq.WithLogger(log.WithValues("device", dc.Name)))
		dev := perfmonirq.NewDevice(dc.Name, perfmonirq.Generation(dc.Generation), w, opts...)
		if err := w.Start(dev.Counter()); err != nil {
			_ = dev.Close()
			return errors.Wrapf(err, "device %q", dc.Name)
		}
		if err := s.registry.Add(dev); err != nil {
			_ = dev.Close()
			return err
		}
		return nil
	}
	return errors.Errorf("device %q: unknown interrupt source %q", dc.Name, dc.Source)
}

// device returns the named device.
func (s *setup) device(name string) (*perfmonirq.Device, error) {
	dev, ok := s.registry.Lookup(name)
	if !ok {
		return nil, errors.Errorf("unknown device %q", name)
	}
	return dev, nil
}

// fireSims periodically fires the perfmon buffer interrupt of all simulated
// devices until ctx is done.
func (s *setup) fireSims(ctx context.Context, interval time.Duration) {
	if interval <= 0 || len(s.sims) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ctrl := range s.sims {
				ctrl.Fire(gate.PerfmonBuffer)
			}
		}
	}
}

func (s *setup) Close() error { return s.registry.Close() }
