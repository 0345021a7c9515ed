/*
Package perfmonirq provides the control plane for a GPU's performance-monitor
buffer interrupt: clients can enable or disable the interrupt, and they can
block until the interrupt next fires or a timeout elapses.

# Overview

A [Device] bundles three things per GPU device:

  - an interrupt gate ([github.com/thediveo/perfmonirq/gate]) that unmasks or
    masks the perfmon buffer interrupt at the interrupt controller, under a
    device-wide lock that is only ever held for the toggle itself.
  - an interrupt counter ([github.com/thediveo/perfmonirq/counter]) that the
    interrupt-raising path increments exactly once per interrupt occurrence,
    and that waiters block on until it moves away from their snapshot.
  - a capability check deciding whether the device supports perfmon
    interrupts at all (only generation 7 GPUs do, see [Generation]).

Requests come in either as typed [Request] values via [Device.Dispatch], or as
fixed-size binary argument records via [Device.Ioctl] that mirror the layout
of the driver's ioctl argument structure.

# Waiting

[Device.WaitForInterrupt] snapshots the interrupt counter and then blocks until
the counter differs from that snapshot, the timeout expires, or the caller's
context gets cancelled. The outcome is reported as a [WaitOutcome] – timeouts
and cancellations are perfectly normal results and thus never errors.
Multiple concurrent waiters are all released by the same single interrupt; no
fairness or ordering among waiters is implied.

Timeouts are specified in whole milliseconds and are limited to
[MaxWaitTimeoutMs] (unless configured otherwise per device using
[WithMaxWaitTimeout]). When a device has a coarser timer tick resolution, see
[WithTickResolution], timeouts get rounded up to the next full tick so that a
wait never ends early.

# Interrupt Sources

Where the interrupts actually come from is up to the [gate.Controller]
implementation: [github.com/thediveo/perfmonirq/sim] simulates an interrupt
controller with a mask register, while
[github.com/thediveo/perfmonirq/procirq] follows a host IRQ line via its
“/proc/interrupts” counters.
*/
package perfmonirq
