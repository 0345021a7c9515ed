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

// PerfmonGeneration is the hardware generation supporting perfmon buffer
// interrupts.
const PerfmonGeneration = 7

// Generation is a [Platform] deciding perfmon interrupt support solely on the
// device's hardware generation.
type Generation int

// PerfmonInterrupts returns true for generation 7 devices only.
func (g Generation) PerfmonInterrupts() bool { return g == PerfmonGeneration }
