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
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"
)

var _ = Describe("perfmon requests", func() {

	It("keeps the wait outcome codes stable", func() {
		Expect(WaitOK).To(BeEquivalentTo(0))
		Expect(WaitFailed).To(BeEquivalentTo(1))
		Expect(WaitTimeout).To(BeEquivalentTo(2))
		Expect(WaitInterrupted).To(BeEquivalentTo(3))
		Expect(WaitOutcomes()).To(HaveExactElements(WaitOK, WaitFailed, WaitTimeout, WaitInterrupted))
	})

	It("names things", func() {
		Expect(WaitTimeout.String()).To(Equal("TIMEOUT"))
		Expect(WaitOutcome(42).String()).To(Equal("WaitOutcome(42)"))
		Expect(OpWaitBufferIRQs.String()).To(Equal("WAIT_BUFFER_IRQS"))
		Expect(Op(0).String()).To(Equal("Op(0)"))
	})

	It("encodes set requests", func() {
		req := Request{Op: OpSetBufferIRQs, SetIRQs: SetIRQsArgs{Enable: true}}
		Expect(req.MarshalBinary()).To(Equal([]byte{1, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0}))
	})

	It("encodes and decodes wait requests", func() {
		req := Request{Op: OpWaitBufferIRQs, WaitIRQs: WaitIRQsArgs{TimeoutMs: 0x0102, RetCode: WaitInterrupted}}
		b := Successful(req.MarshalBinary())
		Expect(b).To(Equal([]byte{2, 0, 0, 0, 2, 1, 0, 0, 3, 0, 0, 0}))
		var decoded Request
		Expect(decoded.UnmarshalBinary(b)).To(Succeed())
		Expect(decoded).To(Equal(req))
	})

	It("decodes unknown operations without arguments", func() {
		var req Request
		Expect(req.UnmarshalBinary([]byte{42, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 0xff})).To(Succeed())
		Expect(req).To(Equal(Request{Op: 42}))
	})

	It("rejects short records", func() {
		var req Request
		Expect(req.UnmarshalBinary(make([]byte, RecordSize-1))).To(MatchError(ErrInvalidArgument))
	})

	It("maps errors to statuses", func() {
		Expect(Status(nil)).To(BeZero())
		Expect(Status(ErrUnsupported)).To(Equal(-int(unix.EINVAL)))
		Expect(Status(fmt.Errorf("foo: %w", ErrInvalidArgument))).To(Equal(-int(unix.EINVAL)))
		Expect(Status(errors.New("D'OH!"))).To(Equal(-int(unix.EIO)))
	})

})
