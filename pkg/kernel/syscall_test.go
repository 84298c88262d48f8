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

package kernel

import "testing"

// TestDispatchUnknownSyscallFaults checks spec §4.3: an unrecognized
// syscall number faults the caller rather than being ignored.
func TestDispatchUnknownSyscallFaults(t *testing.T) {
	r := newRig(1)
	k := r.k
	regs := &SimRegisters{Num: 0xFF}

	hint := k.Dispatch(0, regs)
	if hint != Specific(0) {
		t.Fatalf("Dispatch unknown syscall: got %+v, want Specific(0)", hint)
	}
	if !k.Task(0).State.IsFaulted || k.Task(0).State.Fault.Usage != UsageUnknownSyscall {
		t.Fatalf("caller state: got %+v", k.Task(0).State)
	}
}

// TestPanicCarriesMessage checks that PANIC reads the task-supplied
// message out of its own memory into the fault record.
func TestPanicCarriesMessage(t *testing.T) {
	r := newRig(1)
	k := r.k
	msg := []byte("assertion failed")
	r.mem[0].WriteAt(taskOrigin(0)+0x10, msg)

	regs := &SimRegisters{Num: SyscallPanic}
	regs.Args[0] = taskOrigin(0) + 0x10
	regs.Args[1] = uint32(len(msg))

	k.Dispatch(0, regs)
	if !k.Task(0).State.IsFaulted || k.Task(0).State.Fault.Kind != FaultPanic {
		t.Fatalf("panic fault state: got %+v", k.Task(0).State)
	}
	if k.Task(0).State.Fault.Message != string(msg) {
		t.Fatalf("panic message: got %q, want %q", k.Task(0).State.Fault.Message, msg)
	}
}

// TestCurrentTaskIDSyscall checks the supplemented CURRENT_TASK_ID
// syscall: a caller naming a live index gets back a fresh TaskID for it.
func TestCurrentTaskIDSyscall(t *testing.T) {
	r := newRig(2)
	k := r.k
	regs := &SimRegisters{Num: SyscallCurrentTaskID}
	regs.Args[0] = 1

	k.Dispatch(0, regs)
	want := k.Task(1).TaskID()
	if TaskID(regs.Rets[0]) != want {
		t.Fatalf("CURRENT_TASK_ID result: got %d, want %d", regs.Rets[0], want)
	}
}
