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
	"bytes"

	"github.com/thediveo/faf"
)

const (
	sysKernelIRQPath = "/sys/kernel/irq/"
	actionsNode      = "/actions"
)

// LookupIRQ returns the number of the (lowest-numbered) IRQ that has the
// specified action registered, such as “i915”. Each IRQ's action chain is
// taken from “/sys/kernel/irq/#/actions”.
func LookupIRQ(action string) (uint, bool) {
	return lookupIRQ("", action)
}

func lookupIRQ(root string, action string) (irq uint, found bool) {
	want := []byte(action)
	var contents []byte
	for entry := range faf.ReadDir(root + sysKernelIRQPath) {
		if !entry.IsDir() {
			continue
		}
		name := string(entry.Name)
		num, ok := faf.ParseUint([]byte(name))
		if !ok {
			continue
		}
		// the read buffer gets recycled for each pseudo file.
		contents, ok = faf.ReadFile(root+sysKernelIRQPath+name+actionsNode, contents)
		if !ok {
			continue
		}
		for _, act := range bytes.Split(bytes.TrimRight(contents, "\n"), []byte(",")) {
			if !bytes.Equal(bytes.TrimSpace(act), want) {
				continue
			}
			if !found || uint(num) < irq {
				irq, found = uint(num), true
			}
			break
		}
	}
	return
}
