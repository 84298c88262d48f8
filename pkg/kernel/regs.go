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

// Registers is the kernel's only window into a task's saved machine state.
// The kernel never interprets architecture register names directly (spec
// §9 "Register file opacity"); every engine reads and writes arguments and
// results exclusively through these eight argument and six result
// accessors, which an ARMv7-M/ARMv8-M port binds to r4-r11 (or wherever
// the board's calling convention stashes syscall arguments) and a
// simulator binds to a plain array.
type Registers interface {
	// SyscallNumber returns the value user code placed in the
	// architecture-defined scratch register before trapping into the
	// kernel (spec §4.3).
	SyscallNumber() uint32

	Arg0() uint32
	Arg1() uint32
	Arg2() uint32
	Arg3() uint32
	Arg4() uint32
	Arg5() uint32
	Arg6() uint32
	Arg7() uint32

	SetRet0(uint32)
	SetRet1(uint32)
	SetRet2(uint32)
	SetRet3(uint32)
	SetRet4(uint32)
	SetRet5(uint32)
}

// SimRegisters is a Registers implementation backed by a plain array,
// suitable for unit tests and the host simulator (cmd/ksim), where there
// is no real machine register file to bind to.
type SimRegisters struct {
	Num  uint32
	Args [8]uint32
	Rets [6]uint32
}

func (r *SimRegisters) SyscallNumber() uint32 { return r.Num }

func (r *SimRegisters) Arg0() uint32 { return r.Args[0] }
func (r *SimRegisters) Arg1() uint32 { return r.Args[1] }
func (r *SimRegisters) Arg2() uint32 { return r.Args[2] }
func (r *SimRegisters) Arg3() uint32 { return r.Args[3] }
func (r *SimRegisters) Arg4() uint32 { return r.Args[4] }
func (r *SimRegisters) Arg5() uint32 { return r.Args[5] }
func (r *SimRegisters) Arg6() uint32 { return r.Args[6] }
func (r *SimRegisters) Arg7() uint32 { return r.Args[7] }

func (r *SimRegisters) SetRet0(v uint32) { r.Rets[0] = v }
func (r *SimRegisters) SetRet1(v uint32) { r.Rets[1] = v }
func (r *SimRegisters) SetRet2(v uint32) { r.Rets[2] = v }
func (r *SimRegisters) SetRet3(v uint32) { r.Rets[3] = v }
func (r *SimRegisters) SetRet4(v uint32) { r.Rets[4] = v }
func (r *SimRegisters) SetRet5(v uint32) { r.Rets[5] = v }

// sendArgs names the SEND syscall's argument registers (spec §4.4).
type sendArgs struct{ r Registers }

func (a sendArgs) callee() TaskID      { return TaskID(a.r.Arg0() >> 16) }
func (a sendArgs) operation() uint16   { return uint16(a.r.Arg0()) }
func (a sendArgs) message() (base, length uint32)  { return a.r.Arg1(), a.r.Arg2() }
func (a sendArgs) response() (base, length uint32) { return a.r.Arg3(), a.r.Arg4() }
func (a sendArgs) leases() (base, length uint32)   { return a.r.Arg5(), a.r.Arg6() }

// setSendResult writes the SEND return registers: response code and
// number of bytes copied into the caller's response buffer.
func setSendResult(r Registers, code, length uint32) {
	r.SetRet0(code)
	r.SetRet1(length)
}

// recvArgs names the RECEIVE syscall's argument registers.
type recvArgs struct{ r Registers }

func (a recvArgs) buffer() (base, length uint32) { return a.r.Arg0(), a.r.Arg1() }

// closedFrom reports the task index RECEIVE should restrict delivery to,
// when the syscall was issued in closed-receive form (arg2 != 0 encodes
// "closed", arg3 names the sender). spec §4.4 RECEIVE step 2.
func (a recvArgs) closedFrom() (idx int, closed bool) {
	if a.r.Arg2() == 0 {
		return 0, false
	}
	return int(a.r.Arg3()), true
}

// setRecvResult writes the RECEIVE return registers: sender TaskID,
// operation code (a real SEND zero-extends its 16-bit op into this 32-bit
// field; a synthesized notification message uses the full width for its
// consumed notification bits), message length, response capacity the
// sender declared, and lease count the sender declared.
func setRecvResult(r Registers, sender TaskID, operation uint32, msgLen, respCap, leaseCount int) {
	r.SetRet0(uint32(sender))
	r.SetRet1(operation)
	r.SetRet2(uint32(msgLen))
	r.SetRet3(uint32(respCap))
	r.SetRet4(uint32(leaseCount))
}

// replyArgs names the REPLY and REPLY_FAULT syscalls' argument registers.
type replyArgs struct{ r Registers }

func (a replyArgs) target() TaskID            { return TaskID(a.r.Arg0()) }
func (a replyArgs) code() uint32              { return a.r.Arg1() }
func (a replyArgs) payload() (base, length uint32) { return a.r.Arg2(), a.r.Arg3() }

// borrowArgs names the BORROW_READ/BORROW_WRITE/BORROW_INFO syscalls'
// argument registers: which peer published the lease, which lease of
// theirs, at what offset, copied to/from which of the caller's own local
// bytes (spec §4.4 "BORROW_*").
type borrowArgs struct{ r Registers }

func (a borrowArgs) lender() TaskID               { return TaskID(a.r.Arg4()) }
func (a borrowArgs) leaseIndex() int              { return int(a.r.Arg0()) }
func (a borrowArgs) offset() uint32               { return a.r.Arg1() }
func (a borrowArgs) slice() (base, length uint32) { return a.r.Arg2(), a.r.Arg3() }

func setBorrowResult(r Registers, code uint32, n int) {
	r.SetRet0(code)
	r.SetRet1(uint32(n))
}

func setBorrowInfoResult(r Registers, code uint32, attrs Attrs, length uint32) {
	r.SetRet0(code)
	r.SetRet1(uint32(attrs))
	r.SetRet2(length)
}

// setTimerArgs names the SET_TIMER syscall's argument registers.
type setTimerArgs struct{ r Registers }

func (a setTimerArgs) enabled() bool   { return a.r.Arg0() != 0 }
func (a setTimerArgs) deadline() uint64 {
	return uint64(a.r.Arg1()) | uint64(a.r.Arg2())<<32
}
func (a setTimerArgs) bits() NotificationSet { return NotificationSet(a.r.Arg3()) }

// irqControlArgs names the IRQ_CONTROL syscall's argument registers.
type irqControlArgs struct{ r Registers }

func (a irqControlArgs) mask() NotificationSet { return NotificationSet(a.r.Arg0()) }
func (a irqControlArgs) enable() bool          { return a.r.Arg1() != 0 }

// panicArgs names the PANIC syscall's argument registers.
type panicArgs struct{ r Registers }

func (a panicArgs) message() (base, length uint32) { return a.r.Arg0(), a.r.Arg1() }
