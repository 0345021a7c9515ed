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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// maskRegister is a minimal Controller keeping per-source unmask state and
// checking that toggles never overlap.
type maskRegister struct {
	mu      sync.Mutex
	inside  bool
	overlap bool
	enabled map[Source]bool
	toggles int
}

func (m *maskRegister) toggle(src Source, on bool) {
	m.mu.Lock()
	if m.inside {
		m.overlap = true
	}
	m.inside = true
	m.mu.Unlock()

	m.mu.Lock()
	if m.enabled == nil {
		m.enabled = map[Source]bool{}
	}
	m.enabled[src] = on
	m.toggles++
	m.inside = false
	m.mu.Unlock()
}

func (m *maskRegister) Enable(src Source)  { m.toggle(src, true) }
func (m *maskRegister) Disable(src Source) { m.toggle(src, false) }

func (m *maskRegister) isEnabled(src Source) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[src]
}

var _ = Describe("interrupt gate", func() {

	It("starts disabled", func() {
		g := New(&maskRegister{}, PerfmonBuffer, GinkgoLogr)
		Expect(g.Enabled()).To(BeFalse())
		Expect(g.Source()).To(Equal(PerfmonBuffer))
	})

	DescribeTable("setting the same state twice is idempotent",
		func(enable bool) {
			regs := &maskRegister{}
			g := New(regs, PerfmonBuffer, GinkgoLogr)
			g.Set(enable)
			g.Set(enable)
			Expect(g.Enabled()).To(Equal(enable))
			Expect(regs.isEnabled(PerfmonBuffer)).To(Equal(enable))
			Expect(regs.toggles).To(Equal(2))
		},
		Entry("enable", true),
		Entry("disable", false),
	)

	It("serializes concurrent toggles", func() {
		regs := &maskRegister{}
		g := New(regs, PerfmonBuffer, GinkgoLogr)
		var wg sync.WaitGroup
		for i := range 64 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				g.Set(i%2 == 0)
			}()
		}
		wg.Wait()
		Expect(regs.overlap).To(BeFalse())
		Expect(regs.toggles).To(Equal(64))
		Expect(regs.isEnabled(PerfmonBuffer)).To(Equal(g.Enabled()))
	})

})
