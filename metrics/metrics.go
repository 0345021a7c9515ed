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

// Package metrics exposes the state of perfmon devices as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/thediveo/perfmonirq"
)

const namespace = "perfmon"

// Devices lists the perfmon devices to report on; [perfmonirq.Registry]
// satisfies it.
type Devices interface {
	Devices() []*perfmonirq.Device
}

// Collector is a [prometheus.Collector] reporting interrupt counts, interrupt
// enable state, and wait outcomes of perfmon devices. It samples the devices
// only when scraped.
type Collector struct {
	devices Devices

	interrupts *prometheus.Desc
	enabled    *prometheus.Desc
	waiters    *prometheus.Desc
	waits      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a new collector for the specified devices.
func NewCollector(devices Devices) *Collector {
	return &Collector{
		devices: devices,
		interrupts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "buffer", "interrupts_total"),
			"Number of perfmon buffer interrupts delivered.",
			[]string{"device"}, nil),
		enabled: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "buffer", "irq_enabled"),
			"Whether the perfmon buffer interrupt is enabled (1) or not (0).",
			[]string{"device"}, nil),
		waiters: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "buffer", "irq_waiters"),
			"Number of clients currently waiting for a perfmon buffer interrupt.",
			[]string{"device"}, nil),
		waits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "buffer", "irq_waits_total"),
			"Number of finished perfmon buffer interrupt waits by outcome.",
			[]string{"device", "outcome"}, nil),
	}
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.interrupts
	ch <- c.enabled
	ch <- c.waiters
	ch <- c.waits
}

// Collect implements [prometheus.Collector].
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, dev := range c.devices.Devices() {
		name := dev.Name()
		ch <- prometheus.MustNewConstMetric(c.interrupts, prometheus.CounterValue,
			float64(dev.Counter().Value()), name)
		enabled := 0.0
		if dev.InterruptEnabled() {
			enabled = 1
		}
		ch <- prometheus.MustNewConstMetric(c.enabled, prometheus.GaugeValue, enabled, name)
		ch <- prometheus.MustNewConstMetric(c.waiters, prometheus.GaugeValue,
			float64(dev.Counter().Waiters()), name)
		for _, outcome := range perfmonirq.WaitOutcomes() {
			ch <- prometheus.MustNewConstMetric(c.waits, prometheus.CounterValue,
				float64(dev.Waits(outcome)), name, outcome.String())
		}
	}
}
