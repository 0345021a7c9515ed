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

// Package config loads the perfmon device table from YAML.
//
// A device table lists the GPU devices to control, where their perfmon buffer
// interrupts come from, and the per-device timing parameters:
//
//	devices:
//	  - name: card0
//	    generation: 7
//	    source: procfs
//	    irq-action: i915
//	    poll-interval: 10ms
//	    tick: 4ms
//	    max-wait-timeout-ms: 1000
package config

import (
	"bytes"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Source tells where a device's interrupts come from.
type Source string

const (
	SourceSim    Source = "sim"    // simulated interrupt controller
	SourceProcfs Source = "procfs" // host IRQ line via /proc/interrupts
)

// Defaults applied to devices not specifying these settings.
const (
	DefaultPollInterval     = 10 * time.Millisecond
	DefaultTick             = time.Millisecond
	DefaultMaxWaitTimeoutMs = 1000
)

// Config is the device table.
type Config struct {
	Devices []Device `yaml:"devices"`
}

// Device describes a single perfmon device.
type Device struct {
	Name             string        `yaml:"name"`
	Generation       int           `yaml:"generation"`
	Source           Source        `yaml:"source"`
	IRQ              uint          `yaml:"irq"`
	IRQAction        string        `yaml:"irq-action"`
	PollInterval     time.Duration `yaml:"poll-interval"`
	Tick             time.Duration `yaml:"tick"`
	MaxWaitTimeoutMs uint32        `yaml:"max-wait-timeout-ms"`
}

// Load reads and parses the device table from the specified file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read perfmon device table")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid perfmon device table %s", path)
	}
	return cfg, nil
}

// Parse parses a device table in YAML format, applying defaults and
// validating the result. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "malformed YAML")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Source == "" {
			d.Source = SourceSim
		}
		if d.PollInterval == 0 {
			d.PollInterval = DefaultPollInterval
		}
		if d.Tick == 0 {
			d.Tick = DefaultTick
		}
		if d.MaxWaitTimeoutMs == 0 {
			d.MaxWaitTimeoutMs = DefaultMaxWaitTimeoutMs
		}
	}
}

// Validate checks the device table for duplicate or missing names, unknown
// interrupt sources, and incomplete source settings.
func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return errors.New("no devices")
	}
	names := map[string]struct{}{}
	for idx, d := range c.Devices {
		if d.Name == "" {
			return errors.Errorf("device #%d lacks a name", idx+1)
		}
		if _, ok := names[d.Name]; ok {
			return errors.Errorf("duplicate device %q", d.Name)
		}
		names[d.Name] = struct{}{}
		if d.Generation <= 0 {
			return errors.Errorf("device %q: invalid generation %d", d.Name, d.Generation)
		}
		switch d.Source {
		case SourceSim:
		case SourceProcfs:
			if d.IRQ == 0 && d.IRQAction == "" {
				return errors.Errorf("device %q: procfs source needs either irq or irq-action", d.Name)
			}
		default:
			return errors.Errorf("device %q: unknown interrupt source %q", d.Name, d.Source)
		}
		if d.PollInterval < 0 || d.Tick < 0 {
			return errors.Errorf("device %q: negative durations", d.Name)
		}
	}
	return nil
}
