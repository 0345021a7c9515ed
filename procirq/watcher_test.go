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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/thediveo/perfmonirq/counter"
	"github.com/thediveo/perfmonirq/gate"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gleak"
)

func writeInterrupts(path string, cpu0, cpu1 uint64) {
	GinkgoHelper()
	text := fmt.Sprintf(" CPU0 CPU1\n 1: 5 5 timer\n 147: %d %d IR-PCI-MSI i915\n", cpu0, cpu1)
	Expect(os.WriteFile(path, []byte(text), 0o644)).To(Succeed())
}

var _ = Describe("IRQ line watcher", func() {

	var path string
	var mock *clock.Mock

	BeforeEach(func() {
		goodgos := Goroutines()
		DeferCleanup(func() {
			Eventually(Goroutines).Within(2 * time.Second).ProbeEvery(50 * time.Millisecond).
				ShouldNot(HaveLeaked(goodgos))
		})
		path = filepath.Join(GinkgoT().TempDir(), "interrupts")
		mock = clock.NewMock()
	})

	It("fails for unknown IRQs", func() {
		writeInterrupts(path, 0, 0)
		w := New(666, WithPath(path), WithClock(mock), WithLogger(GinkgoLogr))
		Expect(w.Start(counter.New())).To(MatchError(ContainSubstring("IRQ 666 not found")))
		Expect(w.Close()).To(Succeed())
	})

	It("forwards increments only while enabled", func() {
		writeInterrupts(path, 10, 20)
		cntr := counter.New()
		w := New(147, WithPath(path), WithClock(mock), WithPollInterval(5*time.Millisecond),
			WithLogger(GinkgoLogr))
		Expect(w.IRQ()).To(Equal(uint(147)))
		Expect(w.Start(cntr)).To(Succeed())
		defer func() { Expect(w.Close()).To(Succeed()) }()
		Expect(w.Start(cntr)).NotTo(Succeed())

		writeInterrupts(path, 11, 20)
		mock.Add(5 * time.Millisecond)
		Eventually(w.Samples).Should(BeNumerically(">=", 2))
		Expect(cntr.Value()).To(BeZero())

		w.Enable(gate.PerfmonBuffer)
		writeInterrupts(path, 12, 22)
		mock.Add(5 * time.Millisecond)
		Eventually(cntr.Value).Should(Equal(uint64(3)))

		w.Disable(gate.PerfmonBuffer)
		writeInterrupts(path, 20, 30)
		mock.Add(5 * time.Millisecond)
		Eventually(w.Samples).Should(BeNumerically(">=", 4))
		Consistently(cntr.Value, 50*time.Millisecond).Should(Equal(uint64(3)))
	})

	It("wakes waiters on host interrupts", func() {
		writeInterrupts(path, 0, 0)
		cntr := counter.New()
		w := New(147, WithPath(path), WithClock(mock))
		w.Enable(gate.PerfmonBuffer)
		Expect(w.Start(cntr)).To(Succeed())
		defer w.Close()

		done := make(chan counter.Result)
		go func() {
			res, _ := cntr.Wait(context.Background(), cntr.Value(), 10*time.Second)
			done <- res
		}()
		Eventually(cntr.Waiters).Should(Equal(1))
		writeInterrupts(path, 1, 0)
		mock.Add(DefaultPollInterval)
		Eventually(done).Should(Receive(Equal(counter.Changed)))
	})

	It("can be closed without ever being started", func() {
		w := New(1)
		Expect(w.Close()).To(Succeed())
		Expect(w.Close()).To(Succeed())
	})

})
