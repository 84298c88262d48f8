// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kernel implements the core of a statically-configured embedded
// microkernel for ARMv7-M/ARMv8-M class microcontrollers: the task table,
// the MPU-backed memory model, the synchronous IPC state machine (SEND,
// RECEIVE, REPLY and leases/borrows), the fixed-priority scheduler, the
// timer wheel, and the interrupt-to-notification bridge.
//
// Everything outside this package (device drivers, the network stack, the
// update agent, and so on) is an ordinary task that speaks to the kernel
// only through the syscalls this package dispatches. Dynamic task
// creation, dynamic kernel allocation, demand paging, MMU-based virtual
// memory, and SMP are deliberately not modeled.
//
// The kernel is non-reentrant and single-threaded: a Kernel method call
// represents one hardware exception being serviced to completion. There
// are no suspension points inside it; "blocking" a task means recording a
// SchedState transition and letting the caller (the board's exception
// handler, or cmd/ksim's simulated one) consult NextTask to decide what
// runs next.
package kernel
