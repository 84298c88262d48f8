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

// Send implements the SEND syscall (spec §4.4). caller is the task index
// that trapped into the kernel; its saved Regs carry the syscall's
// arguments.
func (k *Kernel) Send(caller int) NextTask {
	c := k.Task(caller)
	sa := sendArgs{c.Regs}

	calleeID := sa.callee()
	targetIdx := calleeID.Index()
	if targetIdx < 0 || targetIdx >= len(k.tasks) {
		return k.Fault(caller, Fault{Kind: FaultSyscallUsage, Usage: UsageTaskOutOfRange})
	}

	msgBase, msgLen := sa.message()
	respBase, respLen := sa.response()
	leaseBase, leaseLen := sa.leases()
	if !c.Regions.CanRead(msgBase, msgLen) || !c.Regions.CanRead(respBase, respLen) || !c.Regions.CanRead(leaseBase, leaseLen) {
		return k.Fault(caller, Fault{Kind: FaultSyscallUsage, Usage: UsageInvalidSlice})
	}
	if leaseLen%leaseSize != 0 || int(leaseLen)/leaseSize > maxLeases {
		return k.Fault(caller, Fault{Kind: FaultSyscallUsage, Usage: UsageBadLease})
	}

	target := k.tasks[targetIdx]
	if calleeID.Generation() != target.Generation {
		setSendResult(c.Regs, DeadResponseCode, 0)
		return Same()
	}

	accepts := !target.State.IsFaulted && target.State.Sched.AcceptsSenderFrom(caller)
	if accepts {
		return k.deliver(caller, targetIdx)
	}
	if targetIdx == caller {
		// A send to oneself can only ever be satisfied if the target
		// (== the sender) was already parked in a matching receive,
		// which accepts() just ruled out. Blocking would park the
		// task SendingTo itself, a deadlock no other task can ever
		// break, so the engine rejects it as a dead peer instead
		// (spec §4.4 edge cases).
		setSendResult(c.Regs, DeadResponseCode, 0)
		return Same()
	}

	c.State.Sched = HealthySendingTo(targetIdx)
	return Other()
}

// deliver performs the rendezvous copy from callerIdx's outgoing message
// into calleeIdx's receive buffer and transitions both tasks' scheduling
// state. It is shared by Send (immediate delivery into an already-waiting
// receiver) and Receive (delivery to a pending sender picked up off the
// blocked queue).
func (k *Kernel) deliver(callerIdx, calleeIdx int) NextTask {
	c := k.tasks[callerIdx]
	callee := k.tasks[calleeIdx]
	sa := sendArgs{c.Regs}

	msgBase, msgLen := sa.message()
	_, respLen := sa.response()
	_, leaseLen := sa.leases()
	leaseCount := int(leaseLen) / leaseSize

	dst := recvArgs{callee.Regs}
	dstBase, dstLen := dst.buffer()
	n := min(msgLen, dstLen)

	if n > 0 {
		if !c.Regions.CanRead(msgBase, n) {
			return k.Fault(callerIdx, Fault{Kind: FaultMemoryAccess, Address: msgBase, HasAddr: true, Source: FaultFromKernel})
		}
		if !callee.Regions.CanWrite(dstBase, n) {
			return k.Fault(calleeIdx, Fault{Kind: FaultMemoryAccess, Address: dstBase, HasAddr: true, Source: FaultFromKernel})
		}
		data, ok := k.mem[callerIdx].ReadAt(msgBase, n)
		if !ok {
			return k.Fault(callerIdx, Fault{Kind: FaultMemoryAccess, Address: msgBase, HasAddr: true, Source: FaultFromKernel})
		}
		if !k.mem[calleeIdx].WriteAt(dstBase, data) {
			return k.Fault(calleeIdx, Fault{Kind: FaultMemoryAccess, Address: dstBase, HasAddr: true, Source: FaultFromKernel})
		}
	}

	setRecvResult(callee.Regs, c.TaskID(), uint32(sa.operation()), int(n), int(respLen), leaseCount)
	c.State.Sched = HealthyAwaitingReplyFrom(calleeIdx)
	callee.State.Sched = HealthyRunnable()
	return Specific(calleeIdx)
}

// Receive implements the RECEIVE syscall (spec §4.4), in both its open
// (any sender) and closed (one named sender) forms.
func (k *Kernel) Receive(caller int) NextTask {
	c := k.Task(caller)
	ra := recvArgs{c.Regs}

	bufBase, bufLen := ra.buffer()
	if !c.Regions.CanWrite(bufBase, bufLen) {
		return k.Fault(caller, Fault{Kind: FaultSyscallUsage, Usage: UsageInvalidSlice})
	}
	closedIdx, closed := ra.closedFrom()
	if closed && (closedIdx < 0 || closedIdx >= len(k.tasks)) {
		return k.Fault(caller, Fault{Kind: FaultSyscallUsage, Usage: UsageTaskOutOfRange})
	}

	// Pending notifications are serviced before any pending sender,
	// open or closed receive alike: they're cheaper to check and a
	// task parked in a closed receive still wants its timer tick.
	if bits := c.Notifications & c.Mask; bits != 0 {
		c.Notifications &^= bits
		setRecvResult(c.Regs, kernelTaskID, uint32(bits), 0, 0, 0)
		return Same()
	}

	// Among pending senders, the highest-priority one (lowest Priority
	// value) wins; ties go to the lower task index, which the ascending
	// scan and strict-less-than comparison below give for free (spec
	// §4.4 RECEIVE step 3).
	best := -1
	for i, t := range k.tasks {
		if t == nil || t.State.IsFaulted || t.State.Sched.Kind != SendingTo {
			continue
		}
		if t.State.Sched.Peer != caller {
			continue
		}
		if closed && i != closedIdx {
			continue
		}
		if best == -1 || t.Priority < k.tasks[best].Priority {
			best = i
		}
	}
	if best >= 0 {
		return k.deliver(best, caller)
	}

	if closed {
		c.State.Sched = HealthyReceivingClosed(closedIdx)
	} else {
		c.State.Sched = HealthyReceivingOpen()
	}
	return Other()
}

// replyTarget resolves and validates the task a REPLY or REPLY_FAULT
// names: it must still exist at the generation the replier remembers and
// must still be AwaitingReplyFrom the replier. A stale target (the peer
// already restarted, or was never actually waiting on this replier) is
// silently ignored: the replier keeps running, since a reply that
// arrived too late to matter is not itself an error.
func (k *Kernel) replyTarget(replier int, id TaskID) (*Task, int, bool) {
	idx := id.Index()
	t := k.Task(idx)
	if t == nil || t.Generation != id.Generation() || t.State.IsFaulted {
		return nil, 0, false
	}
	if t.State.Sched.Kind != AwaitingReplyFrom || t.State.Sched.Peer != replier {
		return nil, 0, false
	}
	return t, idx, true
}

// Reply implements the REPLY syscall (spec §4.4): it copies the
// replier's payload into the waiting client's response buffer, writes
// the response code, and wakes it.
func (k *Kernel) Reply(replier int) NextTask {
	r := k.Task(replier)
	ra := replyArgs{r.Regs}

	target, targetIdx, ok := k.replyTarget(replier, ra.target())
	if !ok {
		return Same()
	}

	sa := sendArgs{target.Regs}
	respBase, respCap := sa.response()
	payloadBase, payloadLen := ra.payload()
	n := min(payloadLen, respCap)

	if n > 0 {
		if !r.Regions.CanRead(payloadBase, n) {
			return k.Fault(replier, Fault{Kind: FaultSyscallUsage, Usage: UsageInvalidSlice})
		}
		if !target.Regions.CanWrite(respBase, n) {
			return k.Fault(targetIdx, Fault{Kind: FaultMemoryAccess, Address: respBase, HasAddr: true, Source: FaultFromKernel})
		}
		data, ok := k.mem[replier].ReadAt(payloadBase, n)
		if !ok {
			return k.Fault(replier, Fault{Kind: FaultMemoryAccess, Address: payloadBase, HasAddr: true, Source: FaultFromKernel})
		}
		if !k.mem[targetIdx].WriteAt(respBase, data) {
			return k.Fault(targetIdx, Fault{Kind: FaultMemoryAccess, Address: respBase, HasAddr: true, Source: FaultFromKernel})
		}
	}

	setSendResult(target.Regs, ra.code(), n)
	target.State.Sched = HealthyRunnable()
	return Specific(targetIdx)
}

// ReplyFault implements the REPLY_FAULT syscall (spec §4.4/§4.8): rather
// than completing the rendezvous normally, the replier accuses its
// waiting client of protocol misuse and the kernel faults the client on
// the replier's behalf.
func (k *Kernel) ReplyFault(replier int) NextTask {
	r := k.Task(replier)
	ra := replyArgs{r.Regs}

	_, targetIdx, ok := k.replyTarget(replier, ra.target())
	if !ok {
		return Same()
	}
	return k.Fault(targetIdx, Fault{Kind: FaultFromServer, Replier: replier, Reason: ra.code()})
}

// lookupLender resolves the peer a BORROW_* syscall names, mirroring
// replyTarget's staleness handling but returning a BorrowStatus so the
// borrow result register can report why, rather than silently doing
// nothing: a borrow is a read or write the caller is actively expecting
// to complete, not a fire-and-forget reply.
func (k *Kernel) lookupLender(callerIdx int, id TaskID) (*Task, int, BorrowStatus) {
	idx := id.Index()
	t := k.Task(idx)
	if t == nil || t.Generation != id.Generation() {
		return nil, 0, BorrowNotAwaitingReply
	}
	if t.State.IsFaulted {
		return nil, 0, BorrowPeerDied
	}
	if t.State.Sched.Kind != AwaitingReplyFrom || t.State.Sched.Peer != callerIdx {
		return nil, 0, BorrowNotAwaitingReply
	}
	return t, idx, BorrowOK
}

// lookupLease decodes lease index from lender's lease table, which was
// already bounds-checked for readability back in Send but whose contents
// are otherwise exactly as untrusted as any other user-supplied data.
func (k *Kernel) lookupLease(lender *Task, lenderIdx, index int) (Lease, BorrowStatus) {
	sa := sendArgs{lender.Regs}
	base, length := sa.leases()
	if length%leaseSize != 0 {
		return Lease{}, BorrowNoSuchLease
	}
	count := int(length) / leaseSize
	if index < 0 || index >= count || count > maxLeases {
		return Lease{}, BorrowNoSuchLease
	}
	entryBase := base + uint32(index*leaseSize)
	if !lender.Regions.CanRead(entryBase, leaseSize) {
		return Lease{}, BorrowNoSuchLease
	}
	raw, ok := k.mem[lenderIdx].ReadAt(entryBase, leaseSize)
	if !ok {
		return Lease{}, BorrowNoSuchLease
	}
	return decodeLease(raw), BorrowOK
}

// BorrowInfo implements BORROW_INFO (spec §4.4): it reports a lease's
// attributes and length without transferring any bytes, so a server can
// size a buffer before committing to BORROW_READ/BORROW_WRITE.
func (k *Kernel) BorrowInfo(caller int) NextTask {
	c := k.Task(caller)
	ba := borrowArgs{c.Regs}

	lender, lenderIdx, status := k.lookupLender(caller, ba.lender())
	if status != BorrowOK {
		setBorrowInfoResult(c.Regs, uint32(status), 0, 0)
		return Same()
	}
	lease, status := k.lookupLease(lender, lenderIdx, ba.leaseIndex())
	if status != BorrowOK {
		setBorrowInfoResult(c.Regs, uint32(status), 0, 0)
		return Same()
	}
	setBorrowInfoResult(c.Regs, uint32(BorrowOK), lease.Attrs, lease.Length)
	return Same()
}

// borrowCopy implements the shared machinery of BORROW_READ (write ==
// false: kernel copies lender memory into the caller's local buffer) and
// BORROW_WRITE (write == true: the reverse). Both directions revalidate
// the lease's own address range against the lender's region table:
// the lease table is the lender's own untrusted data, and a malicious or
// buggy lender could otherwise assert a lease that reaches outside its
// actual regions.
func (k *Kernel) borrowCopy(caller int, write bool) NextTask {
	c := k.Task(caller)
	ba := borrowArgs{c.Regs}

	lender, lenderIdx, status := k.lookupLender(caller, ba.lender())
	if status != BorrowOK {
		setBorrowResult(c.Regs, uint32(status), 0)
		return Same()
	}
	lease, status := k.lookupLease(lender, lenderIdx, ba.leaseIndex())
	if status != BorrowOK {
		setBorrowResult(c.Regs, uint32(status), 0)
		return Same()
	}

	required := AttrRead
	if write {
		required = AttrWrite
	}
	if !lease.Attrs.Has(required) {
		setBorrowResult(c.Regs, uint32(BorrowBadAttrs), 0)
		return Same()
	}

	offset := ba.offset()
	localBase, requestedLen := ba.slice()
	if offset > lease.Length {
		setBorrowResult(c.Regs, uint32(BorrowOutOfRange), 0)
		return Same()
	}
	// A request reaching past the lease window is clamped to whatever
	// remains rather than rejected outright (spec §4.4 "Borrow bounds":
	// BORROW_READ(0, 14, dst_len=8) against a 16-byte lease copies 2
	// bytes, not a fault or an all-or-nothing failure).
	localLen := min(requestedLen, lease.Length-offset)
	leaseAddr := lease.Base + offset

	if !write {
		if !c.Regions.CanWrite(localBase, localLen) {
			return k.Fault(caller, Fault{Kind: FaultSyscallUsage, Usage: UsageInvalidSlice})
		}
		if !lender.Regions.CanRead(leaseAddr, localLen) {
			setBorrowResult(c.Regs, uint32(BorrowPeerDied), 0)
			return k.Fault(lenderIdx, Fault{Kind: FaultMemoryAccess, Address: leaseAddr, HasAddr: true, Source: FaultFromKernel})
		}
		data, ok := k.mem[lenderIdx].ReadAt(leaseAddr, localLen)
		if !ok {
			setBorrowResult(c.Regs, uint32(BorrowPeerDied), 0)
			return k.Fault(lenderIdx, Fault{Kind: FaultMemoryAccess, Address: leaseAddr, HasAddr: true, Source: FaultFromKernel})
		}
		if !k.mem[caller].WriteAt(localBase, data) {
			return k.Fault(caller, Fault{Kind: FaultSyscallUsage, Usage: UsageInvalidSlice})
		}
	} else {
		if !c.Regions.CanRead(localBase, localLen) {
			return k.Fault(caller, Fault{Kind: FaultSyscallUsage, Usage: UsageInvalidSlice})
		}
		if !lender.Regions.CanWrite(leaseAddr, localLen) {
			setBorrowResult(c.Regs, uint32(BorrowPeerDied), 0)
			return k.Fault(lenderIdx, Fault{Kind: FaultMemoryAccess, Address: leaseAddr, HasAddr: true, Source: FaultFromKernel})
		}
		data, ok := k.mem[caller].ReadAt(localBase, localLen)
		if !ok {
			return k.Fault(caller, Fault{Kind: FaultSyscallUsage, Usage: UsageInvalidSlice})
		}
		if !k.mem[lenderIdx].WriteAt(leaseAddr, data) {
			setBorrowResult(c.Regs, uint32(BorrowPeerDied), 0)
			return k.Fault(lenderIdx, Fault{Kind: FaultMemoryAccess, Address: leaseAddr, HasAddr: true, Source: FaultFromKernel})
		}
	}

	setBorrowResult(c.Regs, uint32(BorrowOK), int(localLen))
	return Same()
}

// BorrowRead implements BORROW_READ: copy lender memory into the
// caller's local buffer.
func (k *Kernel) BorrowRead(caller int) NextTask { return k.borrowCopy(caller, false) }

// BorrowWrite implements BORROW_WRITE: copy the caller's local buffer
// into lender memory.
func (k *Kernel) BorrowWrite(caller int) NextTask { return k.borrowCopy(caller, true) }
