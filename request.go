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
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// MaxWaitTimeoutMs is the default upper bound for wait timeouts in
// milliseconds; wait requests with larger timeouts get rejected.
const MaxWaitTimeoutMs = 1000

var (
	// ErrUnsupported indicates a device without perfmon interrupt support.
	ErrUnsupported = errors.New("perfmon interrupts unsupported by device")
	// ErrInvalidArgument indicates an unknown operation, an out-of-range
	// timeout, or a malformed argument record.
	ErrInvalidArgument = errors.New("invalid argument")
)

// WaitOutcome classifies the result of waiting for a perfmon buffer
// interrupt. The numeric values are part of the client ABI and must not
// change.
type WaitOutcome uint32

const (
	WaitOK          WaitOutcome = 0 // interrupt observed
	WaitFailed      WaitOutcome = 1 // waiting failed for other reasons
	WaitTimeout     WaitOutcome = 2 // no interrupt before the timeout
	WaitInterrupted WaitOutcome = 3 // wait cancelled by the caller

	numWaitOutcomes = 4
)

var waitOutcomeNames = [numWaitOutcomes]string{
	WaitOK:          "OK",
	WaitFailed:      "FAILED",
	WaitTimeout:     "TIMEOUT",
	WaitInterrupted: "INTERRUPTED",
}

// String returns the client-facing name of the wait outcome.
func (o WaitOutcome) String() string {
	if o < numWaitOutcomes {
		return waitOutcomeNames[o]
	}
	return fmt.Sprintf("WaitOutcome(%d)", uint32(o))
}

// WaitOutcomes returns all defined wait outcomes in ascending order.
func WaitOutcomes() []WaitOutcome {
	return []WaitOutcome{WaitOK, WaitFailed, WaitTimeout, WaitInterrupted}
}

// Op is the operation tag of a perfmon request. The zero value is never a
// valid operation.
type Op uint32

const (
	OpSetBufferIRQs  Op = 1 // enable or disable the perfmon buffer interrupt
	OpWaitBufferIRQs Op = 2 // wait for the next perfmon buffer interrupt
)

// String returns the operation's name.
func (op Op) String() string {
	switch op {
	case OpSetBufferIRQs:
		return "SET_BUFFER_IRQS"
	case OpWaitBufferIRQs:
		return "WAIT_BUFFER_IRQS"
	}
	return fmt.Sprintf("Op(%d)", uint32(op))
}

// SetIRQsArgs are the arguments of [OpSetBufferIRQs].
type SetIRQsArgs struct {
	Enable bool
}

// WaitIRQsArgs are the arguments of [OpWaitBufferIRQs]; RetCode gets filled
// in when the wait has been carried out.
type WaitIRQsArgs struct {
	TimeoutMs uint32
	RetCode   WaitOutcome // out
}

// Request is a perfmon operation request; only the argument block belonging
// to Op is relevant.
type Request struct {
	Op       Op
	SetIRQs  SetIRQsArgs
	WaitIRQs WaitIRQsArgs
}

// RecordSize is the size in bytes of a binary perfmon argument record: a
// 32-bit operation code followed by a union of two 32-bit words.
const RecordSize = 12

// MarshalBinary encodes the request into its fixed-size little-endian argument
// record.
func (r *Request) MarshalBinary() ([]byte, error) {
	b := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(r.Op))
	switch r.Op {
	case OpSetBufferIRQs:
		if r.SetIRQs.Enable {
			binary.LittleEndian.PutUint32(b[4:], 1)
		}
	case OpWaitBufferIRQs:
		binary.LittleEndian.PutUint32(b[4:], r.WaitIRQs.TimeoutMs)
		binary.LittleEndian.PutUint32(b[8:], uint32(r.WaitIRQs.RetCode))
	}
	return b, nil
}

// UnmarshalBinary decodes a binary argument record. Unknown operation codes
// are decoded without their arguments; it is up to dispatching to reject them.
func (r *Request) UnmarshalBinary(b []byte) error {
	if len(b) < RecordSize {
		return fmt.Errorf("short perfmon argument record of %d bytes: %w",
			len(b), ErrInvalidArgument)
	}
	*r = Request{Op: Op(binary.LittleEndian.Uint32(b[0:]))}
	switch r.Op {
	case OpSetBufferIRQs:
		r.SetIRQs.Enable = binary.LittleEndian.Uint32(b[4:]) != 0
	case OpWaitBufferIRQs:
		r.WaitIRQs.TimeoutMs = binary.LittleEndian.Uint32(b[4:])
		r.WaitIRQs.RetCode = WaitOutcome(binary.LittleEndian.Uint32(b[8:]))
	}
	return nil
}

// Status maps the error result of dispatching a request to the integer status
// of the command surface: 0 if accepted, a negative errno if rejected.
func Status(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUnsupported), errors.Is(err, ErrInvalidArgument):
		return -int(unix.EINVAL)
	}
	return -int(unix.EIO)
}
