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
	"encoding/binary"
	"time"

	"github.com/thediveo/perfmonirq/gate"
	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"
)

var _ = Describe("dispatching perfmon requests", func() {

	It("toggles the interrupt", func() {
		d, ctrl := newSimDevice(PerfmonGeneration)
		req := &Request{Op: OpSetBufferIRQs, SetIRQs: SetIRQsArgs{Enable: true}}
		Expect(d.Dispatch(context.Background(), req)).To(Succeed())
		Expect(ctrl.Enabled(gate.PerfmonBuffer)).To(BeTrue())
		req.SetIRQs.Enable = false
		Expect(d.Dispatch(context.Background(), req)).To(Succeed())
		Expect(ctrl.Enabled(gate.PerfmonBuffer)).To(BeFalse())
	})

	It("propagates unsupported devices", func() {
		d, _ := newSimDevice(6)
		Expect(d.Dispatch(context.Background(),
			&Request{Op: OpSetBufferIRQs, SetIRQs: SetIRQsArgs{Enable: true}})).To(MatchError(ErrUnsupported))
		Expect(d.Dispatch(context.Background(),
			&Request{Op: OpWaitBufferIRQs, WaitIRQs: WaitIRQsArgs{TimeoutMs: 100}})).To(MatchError(ErrUnsupported))
	})

	It("writes back the wait outcome", func() {
		d, _ := newSimDevice(PerfmonGeneration)
		req := &Request{Op: OpWaitBufferIRQs, WaitIRQs: WaitIRQsArgs{TimeoutMs: 10, RetCode: WaitFailed}}
		Expect(d.Dispatch(context.Background(), req)).To(Succeed())
		Expect(req.WaitIRQs.RetCode).To(Equal(WaitTimeout))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(d.Dispatch(ctx, req)).To(Succeed())
		Expect(req.WaitIRQs.RetCode).To(Equal(WaitInterrupted))
	})

	It("accepts the maximum timeout", func() {
		d, _ := newSimDevice(PerfmonGeneration, WithMaxWaitTimeout(20))
		Expect(d.MaxWaitTimeoutMs()).To(Equal(uint32(20)))
		req := &Request{Op: OpWaitBufferIRQs, WaitIRQs: WaitIRQsArgs{TimeoutMs: 20}}
		Expect(d.Dispatch(context.Background(), req)).To(Succeed())
		Expect(req.WaitIRQs.RetCode).To(Equal(WaitTimeout))
	})

	DescribeTable("rejecting out-of-range timeouts without blocking",
		func(timeoutMs uint32) {
			d, _ := newSimDevice(PerfmonGeneration)
			req := &Request{Op: OpWaitBufferIRQs, WaitIRQs: WaitIRQsArgs{TimeoutMs: timeoutMs, RetCode: WaitFailed}}
			start := time.Now()
			Expect(d.Dispatch(context.Background(), req)).To(MatchError(ErrInvalidArgument))
			Expect(time.Since(start)).To(BeNumerically("<", time.Millisecond))
			Expect(req.WaitIRQs.RetCode).To(Equal(WaitFailed))
			Expect(d.Counter().Waiters()).To(BeZero())
			Expect(d.Waits(WaitTimeout)).To(BeZero())
		},
		Entry("MAX+1", uint32(MaxWaitTimeoutMs+1)),
		Entry("way too large", ^uint32(0)),
	)

	It("rejects unknown operations", func() {
		d, _ := newSimDevice(PerfmonGeneration)
		Expect(d.Dispatch(context.Background(), &Request{})).To(MatchError(ErrInvalidArgument))
		Expect(d.Dispatch(context.Background(), &Request{Op: 42})).To(MatchError(ErrInvalidArgument))
	})

	Context("binary command surface", func() {

		record := func(op, arg0, arg1 uint32) []byte {
			b := make([]byte, RecordSize)
			binary.LittleEndian.PutUint32(b[0:], op)
			binary.LittleEndian.PutUint32(b[4:], arg0)
			binary.LittleEndian.PutUint32(b[8:], arg1)
			return b
		}

		It("enables the interrupt", func() {
			d, ctrl := newSimDevice(PerfmonGeneration)
			Expect(d.Ioctl(context.Background(), record(uint32(OpSetBufferIRQs), 1, 0))).To(BeZero())
			Expect(ctrl.Enabled(gate.PerfmonBuffer)).To(BeTrue())
		})

		It("returns the wait outcome in the record", func() {
			d, _ := newSimDevice(PerfmonGeneration)
			arg := record(uint32(OpWaitBufferIRQs), 5, 0xdeadbeef)
			Expect(d.Ioctl(context.Background(), arg)).To(BeZero())
			Expect(binary.LittleEndian.Uint32(arg[8:])).To(Equal(uint32(WaitTimeout)))
			Expect(binary.LittleEndian.Uint32(arg[4:])).To(Equal(uint32(5)))
		})

		It("rejects bad records with -EINVAL", func() {
			d, _ := newSimDevice(PerfmonGeneration)
			einval := -int(unix.EINVAL)
			Expect(d.Ioctl(context.Background(), []byte{1, 0, 0})).To(Equal(einval))
			Expect(d.Ioctl(context.Background(), record(0, 0, 0))).To(Equal(einval))
			arg := record(uint32(OpWaitBufferIRQs), MaxWaitTimeoutMs+1, 0xdeadbeef)
			Expect(d.Ioctl(context.Background(), arg)).To(Equal(einval))
			Expect(binary.LittleEndian.Uint32(arg[8:])).To(Equal(uint32(0xdeadbeef)))
		})

		It("rejects unsupported devices with -EINVAL", func() {
			d, _ := newSimDevice(6)
			Expect(d.Ioctl(context.Background(),
				Successful((&Request{Op: OpSetBufferIRQs}).MarshalBinary()))).To(Equal(-int(unix.EINVAL)))
		})

	})

})
