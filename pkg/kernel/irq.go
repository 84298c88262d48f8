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

// HandleIRQ is the kernel's entry point for a real interrupt (spec §4.7).
// It is not a syscall: the board's interrupt trampoline calls it
// directly from exception context, not through Dispatch, so it runs
// with the same non-reentrant, no-suspension-points discipline as every
// other engine method rather than as a second concurrent actor.
//
// The firing source is masked immediately and stays masked until the
// owning task explicitly re-enables it via IRQ_CONTROL; this bounds
// interrupt load to "at most one outstanding occurrence per source"
// without the kernel needing to count them.
func (k *Kernel) HandleIRQ(irq int) NextTask {
	k.nvic.Mask(irq)

	bi, ok := k.irqIndexByNum[irq]
	if !ok {
		// No task owns this source. A board bug, not a task fault;
		// the kernel already masked it, so it can't spin.
		k.warningf("IRQ %d fired with no owning task", irq)
		return Same()
	}
	b := k.irqs[bi]
	t := k.Task(b.Task)
	if t == nil {
		return Same()
	}

	woke := t.Post(b.Notification)
	k.addPendingIRQ(irq)
	if woke {
		return Specific(b.Task)
	}
	return Same()
}

func (k *Kernel) addPendingIRQ(irq int) {
	for _, p := range k.pendingIRQ {
		if p == irq {
			return
		}
	}
	k.pendingIRQ = append(k.pendingIRQ, irq)
}

func (k *Kernel) clearPendingIRQ(irq int) {
	out := k.pendingIRQ[:0]
	for _, p := range k.pendingIRQ {
		if p != irq {
			out = append(out, p)
		}
	}
	k.pendingIRQ = out
}

// PendingIRQs returns the IRQ numbers currently masked awaiting their
// owning task's IRQ_CONTROL re-enable. Diagnostic only; no engine logic
// depends on iteration order.
func (k *Kernel) PendingIRQs() []int {
	out := make([]int, len(k.pendingIRQ))
	copy(out, k.pendingIRQ)
	return out
}

// IRQControl implements the IRQ_CONTROL syscall (spec §4.7): a task
// toggles the mask state of every IRQ binding it owns whose notification
// bit intersects the caller-supplied mask. The common pattern is a
// driver task re-enabling the source it was just notified about once
// it's done draining the peripheral.
// A mask naming no IRQ binding owned by the caller is misuse, not a
// silent no-op (spec §4.7).
func (k *Kernel) IRQControl(caller int) NextTask {
	t := k.Task(caller)
	ica := irqControlArgs{t.Regs}
	mask := ica.mask()
	enable := ica.enable()

	matched := false
	for _, b := range k.irqs {
		if b.Task != caller || !b.Notification.Intersects(mask) {
			continue
		}
		matched = true
		if enable {
			k.nvic.Unmask(b.IRQ)
			k.clearPendingIRQ(b.IRQ)
		} else {
			k.nvic.Mask(b.IRQ)
			k.addPendingIRQ(b.IRQ)
		}
	}
	if !matched {
		return k.Fault(caller, Fault{Kind: FaultSyscallUsage, Usage: UsageBadIRQMask})
	}
	return Same()
}
