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

// Syscall numbers, placed by user code in the architecture scratch
// register Registers.SyscallNumber reads (spec §4.3). 10 is the
// CURRENT_TASK_ID ancillary syscall.
const (
	SyscallSend = iota
	SyscallReceive
	SyscallReply
	SyscallReplyFault
	SyscallSetTimer
	SyscallBorrowRead
	SyscallBorrowWrite
	SyscallBorrowInfo
	SyscallIRQControl
	SyscallPanic
	SyscallCurrentTaskID
)

// Dispatch decodes the syscall number out of caller's saved registers
// and routes to the matching engine method, returning the resulting
// scheduling hint. An unrecognized syscall number faults the caller
// (spec §4.3 "unknown syscall numbers fault the caller rather than being
// silently ignored").
func (k *Kernel) Dispatch(caller int, regs Registers) NextTask {
	t := k.Task(caller)
	if t == nil {
		return Same()
	}
	t.Regs = regs

	switch regs.SyscallNumber() {
	case SyscallSend:
		return k.Send(caller)
	case SyscallReceive:
		return k.Receive(caller)
	case SyscallReply:
		return k.Reply(caller)
	case SyscallReplyFault:
		return k.ReplyFault(caller)
	case SyscallSetTimer:
		return k.SetTimer(caller)
	case SyscallBorrowRead:
		return k.BorrowRead(caller)
	case SyscallBorrowWrite:
		return k.BorrowWrite(caller)
	case SyscallBorrowInfo:
		return k.BorrowInfo(caller)
	case SyscallIRQControl:
		return k.IRQControl(caller)
	case SyscallPanic:
		return k.Panic(caller)
	case SyscallCurrentTaskID:
		return k.currentTaskIDSyscall(caller)
	default:
		return k.Fault(caller, Fault{Kind: FaultSyscallUsage, Usage: UsageUnknownSyscall})
	}
}

// Panic implements the PANIC syscall (spec §4.8): a task voluntarily
// forces its own fault, carrying a diagnostic message read out of its
// own memory.
func (k *Kernel) Panic(caller int) NextTask {
	t := k.Task(caller)
	pa := panicArgs{t.Regs}
	msgBase, msgLen := pa.message()

	msg := ""
	if msgLen > 0 && t.Regions.CanRead(msgBase, msgLen) {
		if data, ok := k.mem[caller].ReadAt(msgBase, msgLen); ok {
			msg = string(data)
		}
	}
	return k.Fault(caller, Fault{Kind: FaultPanic, Message: msg})
}

// currentTaskIDSyscall implements the CURRENT_TASK_ID ancillary syscall:
// a task that only remembers a table index, not a generation (typically
// because it cached a TaskID across a peer restart), can recover a fresh
// one for itself by asking the kernel about a given index.
func (k *Kernel) currentTaskIDSyscall(caller int) NextTask {
	t := k.Task(caller)
	idx := int(t.Regs.Arg0())
	id, ok := k.CurrentTaskID(idx)
	if !ok {
		return k.Fault(caller, Fault{Kind: FaultSyscallUsage, Usage: UsageTaskOutOfRange})
	}
	t.Regs.SetRet0(uint32(id))
	return Same()
}
