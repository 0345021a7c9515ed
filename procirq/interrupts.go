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
	"bufio"
	"io"
	"os"
)

// ProcInterruptsPath is the location of the kernel's interrupt counter table.
const ProcInterruptsPath = "/proc/interrupts"

// Count returns the total number of interrupts so far of the specified IRQ
// line, summed over all CPUs currently online. It returns false if the IRQ
// isn't listed or “/proc/interrupts” cannot be read.
func Count(irq uint) (uint64, bool) {
	return countFile(ProcInterruptsPath, irq)
}

func countFile(path string, irq uint) (uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	return count(f, irq)
}

// count scans interrupt counter table data in “/proc/interrupts” format for
// the line of the specified IRQ and returns the sum of its per-CPU counters.
//
// The header line tells us how many CPUs are online and thus how many counter
// columns follow the “NUM:” prefix of each IRQ line. Numbered IRQs come first;
// the scan stops at the first line without an IRQ number, as the remaining
// lines are architecture-specific interrupts.
func count(r io.Reader, irq uint) (uint64, bool) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return 0, false
	}
	numCPUs := onlineCPUs(sc.Bytes())
	if numCPUs == 0 {
		return 0, false
	}
	for sc.Scan() {
		l := line{b: sc.Bytes()}
		if l.skipBlanks() {
			return 0, false
		}
		num, ok := l.number()
		if !ok || !l.expect(":") {
			return 0, false
		}
		if uint(num) != irq {
			continue
		}
		var total uint64
		for range numCPUs {
			if l.skipBlanks() {
				return 0, false
			}
			cnt, ok := l.number()
			if !ok {
				return 0, false
			}
			total += cnt
		}
		return total, true
	}
	return 0, false
}

// onlineCPUs returns the number of CPU columns in the header line of
// “/proc/interrupts”, or zero if the header is malformed.
func onlineCPUs(header []byte) int {
	l := line{b: header}
	n := l.fields()
	for i := 0; i < n; i++ {
		l.skipBlanks()
		if !l.expect("CPU") {
			return 0
		}
		if _, ok := l.number(); !ok {
			return 0
		}
	}
	if !l.skipBlanks() {
		return 0
	}
	return n
}
