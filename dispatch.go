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
	"context"
	"fmt"
)

// Dispatch carries out the perfmon request, routing it to the interrupt gate
// or the interrupt wait. For a wait request, the wait outcome is stored in
// req.WaitIRQs.RetCode and Dispatch returns nil whatever the outcome; only
// unsupported devices, out-of-range timeouts and unknown operations are
// errors.
func (d *Device) Dispatch(ctx context.Context, req *Request) error {
	switch req.Op {
	case OpSetBufferIRQs:
		return d.SetInterrupt(req.SetIRQs.Enable)
	case OpWaitBufferIRQs:
		if req.WaitIRQs.TimeoutMs > d.maxWaitMs {
			return fmt.Errorf("wait timeout %dms exceeds maximum of %dms: %w",
				req.WaitIRQs.TimeoutMs, d.maxWaitMs, ErrInvalidArgument)
		}
		outcome, err := d.WaitForInterrupt(ctx, req.WaitIRQs.TimeoutMs)
		if err != nil {
			return err
		}
		req.WaitIRQs.RetCode = outcome
		return nil
	}
	return fmt.Errorf("unknown perfmon operation %s: %w", req.Op, ErrInvalidArgument)
}

// Ioctl is the binary command surface: it decodes the argument record in arg,
// dispatches it, and for wait requests writes the wait outcome back into arg.
// It returns 0 if the request was accepted, otherwise a negative errno.
func (d *Device) Ioctl(ctx context.Context, arg []byte) int {
	var req Request
	if err := req.UnmarshalBinary(arg); err != nil {
		return Status(err)
	}
	if err := d.Dispatch(ctx, &req); err != nil {
		d.log.V(1).Info("perfmon request rejected", "op", req.Op.String(), "error", err.Error())
		return Status(err)
	}
	if req.Op == OpWaitBufferIRQs {
		b, _ := req.MarshalBinary()
		copy(arg[8:RecordSize], b[8:RecordSize])
	}
	return 0
}
